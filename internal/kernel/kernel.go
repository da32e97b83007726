// Package kernel holds the MD5 crack kernel: the OpenCL C source compiled by
// the GPU backend and the equivalent per-lane Go routine run by the host
// backend.
package kernel

import (
	_ "embed"
	"math/bits"

	"go.uber.org/atomic"

	"github.com/lth/md5crack/internal/md5block"
)

//go:embed md5_crack.cl
var Source string

const (
	EntryPoint = "md5_crack"

	// GroupSize is the number of lanes per work group.
	GroupSize = 64

	// NoMatch is the sentinel held by the result cell until a lane matches.
	NoMatch int32 = -1
)

// Binding indexes, in kernel argument order.
const (
	BindBlocks = iota
	BindTarget
	BindResult
	BindCount
	BindOffsets
)

// Initial MD5 state.
const (
	init0 = 0x67452301
	init1 = 0xefcdab89
	init2 = 0x98badcfe
	init3 = 0x10325476
)

var shifts = [64]int{
	7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22, 7, 12, 17, 22,
	5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20, 5, 9, 14, 20,
	4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23, 4, 11, 16, 23,
	6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21, 6, 10, 15, 21,
}

var table = [64]uint32{
	0xd76aa478, 0xe8c7b756, 0x242070db, 0xc1bdceee, 0xf57c0faf, 0x4787c62a, 0xa8304613, 0xfd469501,
	0x698098d8, 0x8b44f7af, 0xffff5bb1, 0x895cd7be, 0x6b901122, 0xfd987193, 0xa679438e, 0x49b40821,
	0xf61e2562, 0xc040b340, 0x265e5a51, 0xe9b6c7aa, 0xd62f105d, 0x02441453, 0xd8a1e681, 0xe7d3fbc8,
	0x21e1cde6, 0xc33707d6, 0xf4d50d87, 0x455a14ed, 0xa9e3e905, 0xfcefa3f8, 0x676f02d9, 0x8d2a4c8a,
	0xfffa3942, 0x8771f681, 0x6d9d6122, 0xfde5380c, 0xa4beea44, 0x4bdecfa9, 0xf6bb4b60, 0xbebfbc70,
	0x289b7ec6, 0xeaa127fa, 0xd4ef3085, 0x04881d05, 0xd9d4d039, 0xe6db99e5, 0x1fa27cf8, 0xc4ac5665,
	0xf4292244, 0x432aff97, 0xab9423a7, 0xfc93a039, 0x655b59c3, 0x8f0ccc92, 0xffeff47d, 0x85845dd1,
	0x6fa87e4f, 0xfe2ce6e0, 0xa3014314, 0x4e0811a1, 0xf7537e82, 0xbd3af235, 0x2ad7d2bb, 0xeb86d391,
}

// Groups returns the number of work groups needed to cover count lanes.
func Groups(count int) int {
	return (count + GroupSize - 1) / GroupSize
}

// Args are the kernel bindings as seen by one dispatch.
type Args struct {
	Blocks  []uint32
	Target  [4]uint32
	Result  *atomic.Int32
	Count   uint32
	Offsets []uint32
}

// InitState returns the MD5 initialization vector.
func InitState() [4]uint32 {
	return [4]uint32{init0, init1, init2, init3}
}

// Compress runs the 64-round MD5 compression of one 16-word block into h.
func Compress(h *[4]uint32, m []uint32) {
	_ = m[md5block.BlockWords-1]

	a, b, c, d := h[0], h[1], h[2], h[3]
	for i := 0; i < 64; i++ {
		var f uint32
		var g int
		switch {
		case i < 16:
			f = (b & c) | (^b & d)
			g = i
		case i < 32:
			f = (d & b) | (^d & c)
			g = (5*i + 1) & 15
		case i < 48:
			f = b ^ c ^ d
			g = (3*i + 5) & 15
		default:
			f = c ^ (b | ^d)
			g = (7 * i) & 15
		}
		f += a + table[i] + m[g]
		a = d
		d = c
		c = b
		b += bits.RotateLeft32(f, shifts[i])
	}

	h[0] += a
	h[1] += b
	h[2] += c
	h[3] += d
}

// Hash runs the compression over every block of blocks from the MD5 IV.
func Hash(blocks []uint32) [4]uint32 {
	h := InitState()
	for off := 0; off+md5block.BlockWords <= len(blocks); off += md5block.BlockWords {
		Compress(&h, blocks[off:off+md5block.BlockWords])
	}
	return h
}

// Lane executes the kernel body for global invocation idx.
func Lane(idx uint32, a *Args) {
	if idx >= a.Count {
		return
	}

	start, end := a.Offsets[idx], a.Offsets[idx+1]
	if end <= start {
		return
	}
	if end-start > md5block.MaxBlocks {
		end = start + md5block.MaxBlocks
	}

	h := Hash(a.Blocks[start*md5block.BlockWords : end*md5block.BlockWords])
	if h == a.Target {
		a.Result.Store(int32(idx))
	}
}
