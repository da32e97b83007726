// Package md5block turns candidate strings into padded, length-framed MD5
// blocks in the word layout the crack kernel consumes.
package md5block

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MaxMsgSize is the longest candidate, in bytes, a kernel lane accepts.
	MaxMsgSize = 256

	BlockSize  = 64
	BlockWords = BlockSize / 4

	// MaxBlocks is the per-lane scratch capacity of the kernel.
	MaxBlocks = (MaxMsgSize + 9 + BlockSize - 1) / BlockSize
)

var ErrOverCapacity = errors.New("candidate exceeds kernel block capacity")

// OverCapacityError reports a candidate that would not fit in MaxBlocks.
type OverCapacityError struct {
	Index  int
	Length int
}

func (e *OverCapacityError) Error() string {
	return fmt.Sprintf("candidate %d: %d bytes exceeds %d byte limit", e.Index, e.Length, MaxMsgSize)
}

func (e *OverCapacityError) Unwrap() error {
	return ErrOverCapacity
}

// BlockCount returns how many 64-byte blocks a message of n bytes pads to.
func BlockCount(n int) int {
	return (n + 9 + BlockSize - 1) / BlockSize
}

// Pad appends the MD5-padded form of msg to dst: the message, 0x80, zero
// fill, and the bit length as a little-endian uint64.
func Pad(dst []byte, msg string) []byte {
	size := BlockCount(len(msg)) * BlockSize
	start := len(dst)

	dst = append(dst, msg...)
	dst = append(dst, 0x80)
	for len(dst)-start < size-8 {
		dst = append(dst, 0)
	}
	return binary.LittleEndian.AppendUint64(dst, uint64(len(msg))*8)
}

// Batch is the kernel-ready form of a list of candidates. Candidate i owns
// blocks Offsets[i] up to Offsets[i+1]; Blocks holds BlockWords words per
// block.
type Batch struct {
	Blocks  []uint32
	Offsets []uint32
	Count   int
}

// NumBlocks returns the total block count of the batch.
func (b Batch) NumBlocks() int {
	return len(b.Blocks) / BlockWords
}

// Preprocessor packs candidates into a Batch. Its output buffers are reused
// across calls, so a returned Batch is only valid until the next Process.
type Preprocessor struct {
	words   []uint32
	offsets []uint32
	scratch []byte
}

// NewPreprocessor returns a Preprocessor with room for capacity candidates
// before its buffers have to grow.
func NewPreprocessor(capacity int) *Preprocessor {
	return &Preprocessor{
		words:   make([]uint32, 0, capacity*MaxBlocks*BlockWords),
		offsets: make([]uint32, 0, capacity+1),
		scratch: make([]byte, 0, MaxBlocks*BlockSize),
	}
}

func (p *Preprocessor) Process(candidates []string) (Batch, error) {
	p.words = p.words[:0]
	p.offsets = append(p.offsets[:0], 0)

	var block uint32
	for i, c := range candidates {
		if len(c) > MaxMsgSize {
			return Batch{}, &OverCapacityError{Index: i, Length: len(c)}
		}

		p.scratch = Pad(p.scratch[:0], c)
		for off := 0; off < len(p.scratch); off += 4 {
			p.words = append(p.words, binary.LittleEndian.Uint32(p.scratch[off:]))
		}

		block += uint32(len(p.scratch) / BlockSize)
		p.offsets = append(p.offsets, block)
	}

	return Batch{
		Blocks:  p.words,
		Offsets: p.offsets,
		Count:   len(candidates),
	}, nil
}
