package md5block

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockCount(t *testing.T) {
	tests := []struct {
		length   int
		expected int
	}{
		{0, 1},
		{55, 1},
		{56, 2},
		{58, 2},
		{119, 2},
		{120, 3},
		{MaxMsgSize, MaxBlocks},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, BlockCount(tt.length), "length %d", tt.length)
	}
	assert.Equal(t, 5, MaxBlocks)
}

func TestPadRoundTrip(t *testing.T) {
	for n := 0; n <= MaxMsgSize-9; n++ {
		msg := strings.Repeat("a", n)
		padded := Pad(nil, msg)

		require.Len(t, padded, BlockCount(n)*BlockSize, "length %d", n)
		require.Equal(t, msg, string(padded[:n]))
		require.Equal(t, byte(0x80), padded[n])
		for _, b := range padded[n+1 : len(padded)-8] {
			require.Zero(t, b, "length %d", n)
		}

		bits := binary.LittleEndian.Uint64(padded[len(padded)-8:])
		require.Equal(t, uint64(n)*8, bits, "length %d", n)
	}
}

func TestPadAppends(t *testing.T) {
	dst := []byte("prefix")
	out := Pad(dst, "abc")
	assert.Equal(t, "prefix", string(out[:6]))
	assert.Len(t, out, 6+BlockSize)
}

func TestFiftyEightBytesIsTwoBlocks(t *testing.T) {
	p := NewPreprocessor(1)
	batch, err := p.Process([]string{strings.Repeat("x", 58)})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.NumBlocks())
	assert.Len(t, batch.Blocks, 2*BlockWords)
	assert.Equal(t, []uint32{0, 2}, batch.Offsets)
}

func TestProcessOffsets(t *testing.T) {
	p := NewPreprocessor(4)
	candidates := []string{"", "password", strings.Repeat("b", 60), strings.Repeat("c", MaxMsgSize)}

	batch, err := p.Process(candidates)
	require.NoError(t, err)

	require.Equal(t, len(candidates), batch.Count)
	require.Len(t, batch.Offsets, len(candidates)+1)
	assert.Equal(t, uint32(0), batch.Offsets[0])
	for i, c := range candidates {
		require.GreaterOrEqual(t, batch.Offsets[i+1], batch.Offsets[i])
		assert.Equal(t, uint32(BlockCount(len(c))), batch.Offsets[i+1]-batch.Offsets[i], "candidate %d", i)
	}
	assert.Equal(t, int(batch.Offsets[len(candidates)]), batch.NumBlocks())
}

func TestProcessWordLayout(t *testing.T) {
	p := NewPreprocessor(1)
	batch, err := p.Process([]string{"abcd"})
	require.NoError(t, err)

	require.Len(t, batch.Blocks, BlockWords)
	assert.Equal(t, uint32(0x64636261), batch.Blocks[0])
	assert.Equal(t, uint32(0x00000080), batch.Blocks[1])
	assert.Equal(t, uint32(32), batch.Blocks[14])
	assert.Equal(t, uint32(0), batch.Blocks[15])
}

func TestProcessIdempotent(t *testing.T) {
	p := NewPreprocessor(2)
	candidates := []string{"hello", strings.Repeat("z", 130)}

	first, err := p.Process(candidates)
	require.NoError(t, err)
	blocks := append([]uint32(nil), first.Blocks...)
	offsets := append([]uint32(nil), first.Offsets...)

	second, err := p.Process(candidates)
	require.NoError(t, err)
	assert.Equal(t, blocks, second.Blocks)
	assert.Equal(t, offsets, second.Offsets)

	other := NewPreprocessor(0)
	third, err := other.Process(candidates)
	require.NoError(t, err)
	assert.Equal(t, blocks, third.Blocks)
}

func TestProcessReusesBuffers(t *testing.T) {
	p := NewPreprocessor(2)
	_, err := p.Process([]string{strings.Repeat("a", 200), strings.Repeat("b", 200)})
	require.NoError(t, err)

	batch, err := p.Process([]string{"x"})
	require.NoError(t, err)
	assert.Len(t, batch.Blocks, BlockWords)
	assert.Equal(t, []uint32{0, 1}, batch.Offsets)
}

func TestProcessEmpty(t *testing.T) {
	p := NewPreprocessor(0)
	batch, err := p.Process(nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Count)
	assert.Empty(t, batch.Blocks)
	assert.Equal(t, []uint32{0}, batch.Offsets)
}

func TestProcessOverCapacity(t *testing.T) {
	p := NewPreprocessor(2)
	_, err := p.Process([]string{"ok", strings.Repeat("x", MaxMsgSize+1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverCapacity))

	var oce *OverCapacityError
	require.True(t, errors.As(err, &oce))
	assert.Equal(t, 1, oce.Index)
	assert.Equal(t, MaxMsgSize+1, oce.Length)
}

func BenchmarkProcess(b *testing.B) {
	candidates := make([]string, 4096)
	for i := range candidates {
		candidates[i] = strings.Repeat("p", i%64)
	}
	p := NewPreprocessor(len(candidates))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Process(candidates); err != nil {
			b.Fatal(err)
		}
	}
}
