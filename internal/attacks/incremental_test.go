package attacks

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(ch <-chan string, limit int) []string {
	var got []string
	for pwd := range ch {
		got = append(got, pwd)
		if limit > 0 && len(got) >= limit {
			break
		}
	}
	return got
}

func TestIncrementalGenerator(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := IncrementalConfig{
		Charset:   "ab",
		MinLength: 1,
		MaxLength: 2,
	}

	got := collect(IncrementalGenerator(ctx, config), 0)
	assert.Equal(t, []string{"a", "b", "aa", "ab", "ba", "bb"}, got)
	assert.Equal(t, EstimateCombinations(config), uint64(len(got)))
}

func TestIncrementalGeneratorDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := collect(IncrementalGenerator(ctx, IncrementalConfig{}), 3)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestIncrementalGeneratorCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := IncrementalGenerator(ctx, IncrementalConfig{Charset: CharsetAll, MinLength: 8, MaxLength: 8})
	<-ch
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("generator did not stop after cancel")
	}
}

func TestEstimateCombinations(t *testing.T) {
	tests := []struct {
		config   IncrementalConfig
		expected uint64
	}{
		{IncrementalConfig{Charset: "ab", MinLength: 1, MaxLength: 1}, 2},
		{IncrementalConfig{Charset: "ab", MinLength: 1, MaxLength: 2}, 6},
		{IncrementalConfig{Charset: "abc", MinLength: 2, MaxLength: 2}, 9},
		{IncrementalConfig{Charset: "0123456789", MinLength: 4, MaxLength: 4}, 10000},
		{IncrementalConfig{Charset: CharsetAll, MinLength: 16, MaxLength: 40}, math.MaxUint64},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, EstimateCombinations(tt.config), "%+v", tt.config)
	}
}

func TestResolveCharset(t *testing.T) {
	assert.Equal(t, CharsetDigits, ResolveCharset("digits"))
	assert.Equal(t, CharsetAlphaNum, ResolveCharset("ALNUM"))
	assert.Equal(t, "xyz", ResolveCharset("xyz"))
}

func TestRandomGenerator(t *testing.T) {
	ctx := context.Background()
	config := RandomConfig{Charset: "abc", MinLength: 2, MaxLength: 4, Seed: 42, Limit: 500}

	got := collect(RandomGenerator(ctx, config), 0)
	require.Len(t, got, 500)
	for _, pwd := range got {
		assert.GreaterOrEqual(t, len(pwd), 2)
		assert.LessOrEqual(t, len(pwd), 4)
		for _, r := range pwd {
			assert.Contains(t, "abc", string(r))
		}
	}

	again := collect(RandomGenerator(ctx, config), 0)
	assert.Equal(t, got, again, "same seed yields the same sequence")
}

func BenchmarkIncrementalGenerator(b *testing.B) {
	ctx := context.Background()
	config := IncrementalConfig{
		Charset:   CharsetAlphaNum,
		MinLength: 1,
		MaxLength: 4,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithCancel(ctx)
		collect(IncrementalGenerator(ctx, config), 10000)
		cancel()
	}
}
