package cracker

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/lth/md5crack/internal/md5block"
)

// chunkFunc returns the next batch of candidates to place in set slot. An
// empty chunk ends the run. A returned chunk must stay valid until the
// following call for the same slot.
type chunkFunc func(slot int) ([]string, error)

func sliceChunks(wordlist []string) chunkFunc {
	off := 0
	return func(int) ([]string, error) {
		n := min(BatchSize, len(wordlist)-off)
		chunk := wordlist[off : off+n]
		off += n
		return chunk, nil
	}
}

func (c *Cracker) streamChunks(ctx context.Context, passwords <-chan string) chunkFunc {
	return func(slot int) ([]string, error) {
		buf := c.chunks[slot][:0]
		defer func() { c.chunks[slot] = buf }()

		for len(buf) < BatchSize {
			select {
			case <-ctx.Done():
				return buf, nil
			case pwd, ok := <-passwords:
				if !ok {
					return buf, nil
				}
				buf = append(buf, pwd)
			}
		}
		return buf, nil
	}
}

// run drives the double-buffered pipeline. Batch i lives in set i%2: while
// the device hashes batch i-1, batch i is packed and uploaded, then the
// result of i-1 is read and batch i is dispatched. Every dispatched batch is
// read back before run returns.
func (c *Cracker) run(ctx context.Context, target md5block.Digest, next chunkFunc) (Result, error) {
	c.startTime = time.Now()
	c.attempts.Store(0)
	words := target.Words()

	var pending [2][]string
	prev := 0

	chunk, err := next(prev)
	if err != nil {
		return c.result("", false), err
	}
	if len(chunk) == 0 {
		return c.result("", false), ctx.Err()
	}
	if err := c.prepare(prev, chunk, words); err != nil {
		return c.result("", false), errors.Wrap(err, "batch 0")
	}
	if err := c.submit(prev, len(chunk)); err != nil {
		return c.result("", false), errors.Wrap(err, "batch 0")
	}
	pending[prev] = chunk

	for i := 1; ctx.Err() == nil; i++ {
		slot := i % 2

		chunk, err := next(slot)
		if err != nil {
			return c.drain(prev, pending[prev], errors.Wrapf(err, "batch %d", i))
		}
		if len(chunk) == 0 {
			break
		}
		if err := c.prepare(slot, chunk, words); err != nil {
			return c.drain(prev, pending[prev], errors.Wrapf(err, "batch %d", i))
		}

		password, found, err := c.read(prev, pending[prev])
		if err != nil {
			return c.result("", false), errors.Wrapf(err, "batch %d", i-1)
		}
		if found {
			return c.result(password, true), nil
		}

		if err := c.submit(slot, len(chunk)); err != nil {
			return c.result("", false), errors.Wrapf(err, "batch %d", i)
		}
		pending[slot] = chunk
		prev = slot
	}

	password, found, err := c.read(prev, pending[prev])
	if err != nil {
		return c.result("", false), err
	}
	if found {
		return c.result(password, true), nil
	}
	return c.result("", false), ctx.Err()
}

// drain reads the in-flight batch before returning cause. A match in that
// batch still wins over cause.
func (c *Cracker) drain(slot int, chunk []string, cause error) (Result, error) {
	password, found, err := c.read(slot, chunk)
	if err != nil {
		return c.result("", false), err
	}
	if found {
		return c.result(password, true), nil
	}
	return c.result("", false), cause
}
