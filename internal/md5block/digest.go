package md5block

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
	hex "github.com/tmthrgd/go-hex"
)

// DigestSize is the length of an MD5 digest in bytes.
const DigestSize = 16

var ErrInvalidDigest = errors.New("digest must be 32 hex characters (16 bytes)")

// Digest is a raw 128-bit MD5 digest.
type Digest [DigestSize]byte

// ParseDigest decodes a hex string such as "5f4dcc3b5aa765d61d8327deb882cf99".
func ParseDigest(s string) (Digest, error) {
	var d Digest

	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return d, errors.Wrapf(ErrInvalidDigest, "decode %q: %v", s, err)
	}
	if len(raw) != DigestSize {
		return d, errors.Wrapf(ErrInvalidDigest, "got %d bytes", len(raw))
	}

	copy(d[:], raw)
	return d, nil
}

// Words returns the digest as the four little-endian state words the kernel
// compares against.
func (d Digest) Words() [4]uint32 {
	return [4]uint32{
		binary.LittleEndian.Uint32(d[0:4]),
		binary.LittleEndian.Uint32(d[4:8]),
		binary.LittleEndian.Uint32(d[8:12]),
		binary.LittleEndian.Uint32(d[12:16]),
	}
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// DigestFromWords is the inverse of Digest.Words.
func DigestFromWords(w [4]uint32) Digest {
	var d Digest
	for i, v := range w {
		binary.LittleEndian.PutUint32(d[i*4:], v)
	}
	return d
}
