package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h4m", formatDuration(3*time.Hour+4*time.Minute))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 20))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestBenchCandidate(t *testing.T) {
	assert.Equal(t, "00000042", benchCandidate(42, 8))
	assert.Equal(t, "789", benchCandidate(123456789, 3))
	assert.Equal(t, "", benchCandidate(5, 0))
}
