package cracker

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lth/md5crack/internal/gpu"
)

type recordingDevice struct {
	gpu.Device
	ops *[]string
}

func (d recordingDevice) NewBufferSet(label string) (gpu.BufferSet, error) {
	set, err := d.Device.NewBufferSet(label)
	if err != nil {
		return nil, err
	}
	return recordingSet{BufferSet: set, ops: d.ops}, nil
}

type recordingSet struct {
	gpu.BufferSet
	ops *[]string
}

func (s recordingSet) Upload(blocks, offsets []uint32, target [4]uint32, count int) error {
	*s.ops = append(*s.ops, "upload "+s.Label())
	return s.BufferSet.Upload(blocks, offsets, target, count)
}

func (s recordingSet) Dispatch(count int) error {
	*s.ops = append(*s.ops, "dispatch "+s.Label())
	return s.BufferSet.Dispatch(count)
}

func (s recordingSet) ReadResult() (int32, error) {
	*s.ops = append(*s.ops, "read "+s.Label())
	return s.BufferSet.ReadResult()
}

func threeBatches() []string {
	words := append([]string(nil), boundaryWordlist()...)
	for len(words) < 2*BatchSize+1 {
		words = append(words, words[len(words)%BatchSize]+"x")
	}
	return words
}

func TestPipelineOrdering(t *testing.T) {
	var ops []string
	c := newCracker(t, recordingDevice{Device: openHost(t), ops: &ops})

	res, err := c.Crack(context.Background(), digest("absent"), threeBatches())
	require.NoError(t, err)
	assert.False(t, res.Found)

	assert.Equal(t, []string{
		"upload Set A", "dispatch Set A",
		"upload Set B", "read Set A", "dispatch Set B",
		"upload Set A", "read Set B", "dispatch Set A",
		"read Set A",
	}, ops)
}

func TestPipelineShortCircuit(t *testing.T) {
	var ops []string
	c := newCracker(t, recordingDevice{Device: openHost(t), ops: &ops})
	words := threeBatches()

	res, err := c.Crack(context.Background(), digest(words[10]), words)
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, words[10], res.Password)
	assert.Equal(t, uint64(BatchSize), res.Attempts)

	assert.Equal(t, []string{
		"upload Set A", "dispatch Set A",
		"upload Set B", "read Set A",
	}, ops)

	// Set B was uploaded but never dispatched; the next run must still see a
	// clean result cell in both sets.
	res, err = c.Crack(context.Background(), digest(words[BatchSize+5]), words)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, words[BatchSize+5], res.Password)
}

type failingDevice struct {
	gpu.Device
	failAfter int
}

func (d failingDevice) NewBufferSet(label string) (gpu.BufferSet, error) {
	set, err := d.Device.NewBufferSet(label)
	if err != nil {
		return nil, err
	}
	n := d.failAfter
	return &failingSet{BufferSet: set, remaining: &n}, nil
}

type failingSet struct {
	gpu.BufferSet
	remaining *int
}

func (s *failingSet) Dispatch(count int) error {
	if *s.remaining == 0 {
		return gpu.ErrDeviceLost
	}
	*s.remaining--
	return s.BufferSet.Dispatch(count)
}

func TestPipelineDispatchError(t *testing.T) {
	c := newCracker(t, failingDevice{Device: openHost(t), failAfter: 0})

	_, err := c.Crack(context.Background(), digest("absent"), []string{"a", "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, gpu.ErrDeviceLost))
}

func TestPipelineMatchWinsOverLaterError(t *testing.T) {
	c := newCracker(t, openHost(t))
	words := append([]string(nil), boundaryWordlist()[:BatchSize]...)
	words = append(words, string(make([]byte, 300)))

	res, err := c.Crack(context.Background(), digest(words[4]), words)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, words[4], res.Password)
}
