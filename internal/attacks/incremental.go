package attacks

import (
	"context"
	"math"
	"strings"

	"github.com/lth/md5crack/internal/md5block"
)

type IncrementalConfig struct {
	Charset   string
	MinLength int
	MaxLength int
}

var (
	CharsetLower    = "abcdefghijklmnopqrstuvwxyz"
	CharsetUpper    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	CharsetDigits   = "0123456789"
	CharsetSpecial  = "!@#$%^&*()_+-=[]{}|;':\",./<>?"
	CharsetAlpha    = CharsetLower + CharsetUpper
	CharsetAlphaNum = CharsetAlpha + CharsetDigits
	CharsetAll      = CharsetAlphaNum + CharsetSpecial
)

// MaxBruteLength caps generated candidates. Longer keyspaces are never
// exhausted in practice.
const MaxBruteLength = 16

// ResolveCharset maps a charset name to its characters. Anything else is
// taken as a literal charset.
func ResolveCharset(cs string) string {
	switch strings.ToLower(cs) {
	case "lower":
		return CharsetLower
	case "upper":
		return CharsetUpper
	case "digits", "numbers":
		return CharsetDigits
	case "alpha":
		return CharsetAlpha
	case "alnum", "alphanumeric":
		return CharsetAlphaNum
	case "all", "full":
		return CharsetAll
	case "special":
		return CharsetSpecial
	default:
		return cs
	}
}

func (c IncrementalConfig) normalize() ([]byte, int, int) {
	charset := []byte(c.Charset)
	if len(charset) == 0 {
		charset = []byte(CharsetAlphaNum)
	}

	minLen := max(c.MinLength, 1)
	maxLen := max(c.MaxLength, minLen)
	maxLen = min(maxLen, MaxBruteLength, md5block.MaxMsgSize)
	minLen = min(minLen, maxLen)
	return charset, minLen, maxLen
}

// IncrementalGenerator emits every string over the charset from MinLength to
// MaxLength characters, shortest first, in charset order.
func IncrementalGenerator(ctx context.Context, config IncrementalConfig) <-chan string {
	ch := make(chan string, 10000)

	go func() {
		defer close(ch)

		charset, minLen, maxLen := config.normalize()
		for length := minLen; length <= maxLen; length++ {
			if ctx.Err() != nil {
				return
			}
			if !generateLength(ctx, ch, charset, length) {
				return
			}
		}
	}()

	return ch
}

func generateLength(ctx context.Context, ch chan<- string, charset []byte, length int) bool {
	indices := make([]int, length)
	password := make([]byte, length)

	for i := range password {
		password[i] = charset[0]
	}

	for {
		select {
		case <-ctx.Done():
			return false
		case ch <- string(password):
		}

		pos := length - 1
		for ; pos >= 0; pos-- {
			indices[pos]++
			if indices[pos] < len(charset) {
				password[pos] = charset[indices[pos]]
				break
			}
			indices[pos] = 0
			password[pos] = charset[0]
		}

		if pos < 0 {
			return true
		}
	}
}

// EstimateCombinations counts the candidates IncrementalGenerator emits for
// config, saturating at math.MaxUint64.
func EstimateCombinations(config IncrementalConfig) uint64 {
	charset, minLen, maxLen := config.normalize()
	base := uint64(len(charset))

	var total uint64
	for length := minLen; length <= maxLen; length++ {
		combinations := uint64(1)
		for i := 0; i < length; i++ {
			if combinations > math.MaxUint64/base {
				return math.MaxUint64
			}
			combinations *= base
		}
		if total > math.MaxUint64-combinations {
			return math.MaxUint64
		}
		total += combinations
	}

	return total
}
