package cracker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/lth/md5crack/internal/gpu"
	"github.com/lth/md5crack/internal/md5block"
)

// BatchSize is the number of candidates hashed per device dispatch.
const BatchSize = gpu.BatchSize

type Result struct {
	Found    bool
	Password string
	Attempts uint64
	Duration time.Duration
}

type Progress struct {
	Attempts    uint64
	Rate        float64
	Current     string
	ElapsedTime time.Duration
}

// Timing is the outcome of a timed single batch. GPUTime is only meaningful
// when Timed is set.
type Timing struct {
	Index   int
	Found   bool
	GPUTime time.Duration
	Timed   bool
}

type Option func(*Cracker)

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cracker) {
		c.log = log
	}
}

// Cracker searches wordlists for a candidate whose MD5 digest matches a
// target. It owns two buffer sets on one device and alternates between them
// so the host packs batch N+1 while the device hashes batch N.
//
// A Cracker is not safe for concurrent use.
type Cracker struct {
	dev        gpu.Device
	ownsDevice bool
	sets       [2]gpu.BufferSet
	pre        *md5block.Preprocessor

	// Candidate buffers per set for streamed input.
	chunks [2][]string

	log        logrus.FieldLogger
	attempts   atomic.Uint64
	startTime  time.Time
	progressCb func(Progress)
}

// New allocates both buffer sets on dev. The caller keeps ownership of dev.
func New(dev gpu.Device, opts ...Option) (*Cracker, error) {
	c := &Cracker{
		dev: dev,
		pre: md5block.NewPreprocessor(BatchSize),
		log: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, label := range [2]string{"Set A", "Set B"} {
		set, err := dev.NewBufferSet(label)
		if err != nil {
			c.Close()
			return nil, errors.Wrap(err, "allocate buffer sets")
		}
		c.sets[i] = set
	}

	return c, nil
}

// Open acquires a device with gpu.Open and builds a Cracker that closes it
// on Close.
func Open(devOpts gpu.Options, opts ...Option) (*Cracker, error) {
	dev, err := gpu.Open(devOpts)
	if err != nil {
		return nil, err
	}

	c, err := New(dev, opts...)
	if err != nil {
		dev.Close()
		return nil, err
	}
	c.ownsDevice = true
	return c, nil
}

func (c *Cracker) Close() {
	for i, set := range c.sets {
		if set != nil {
			set.Release()
			c.sets[i] = nil
		}
	}
	if c.ownsDevice && c.dev != nil {
		c.dev.Close()
		c.dev = nil
	}
}

func (c *Cracker) SetProgressCallback(cb func(Progress)) {
	c.progressCb = cb
}

func (c *Cracker) DeviceInfo() gpu.Info {
	return c.dev.Info()
}

func (c *Cracker) SupportsTiming() bool {
	return c.dev.SupportsTiming()
}

func (c *Cracker) Attempts() uint64 {
	return c.attempts.Load()
}

func (c *Cracker) reportProgress(current string) {
	if c.progressCb == nil {
		return
	}

	attempts := c.attempts.Load()
	elapsed := time.Since(c.startTime)
	var rate float64
	if elapsed > 0 {
		rate = float64(attempts) / elapsed.Seconds()
	}

	c.progressCb(Progress{
		Attempts:    attempts,
		Rate:        rate,
		Current:     current,
		ElapsedTime: elapsed,
	})
}

func (c *Cracker) result(password string, found bool) Result {
	return Result{
		Found:    found,
		Password: password,
		Attempts: c.attempts.Load(),
		Duration: time.Since(c.startTime),
	}
}

// prepare packs chunk and uploads it into set slot. It does not dispatch.
func (c *Cracker) prepare(slot int, chunk []string, target [4]uint32) error {
	batch, err := c.pre.Process(chunk)
	if err != nil {
		return err
	}
	return c.sets[slot].Upload(batch.Blocks, batch.Offsets, target, batch.Count)
}

func (c *Cracker) submit(slot int, n int) error {
	c.log.WithFields(logrus.Fields{
		"set":        c.sets[slot].Label(),
		"candidates": n,
	}).Debug("batch submitted")
	return c.sets[slot].Dispatch(n)
}

// read blocks on the result of set slot, which holds chunk.
func (c *Cracker) read(slot int, chunk []string) (string, bool, error) {
	idx, err := c.sets[slot].ReadResult()
	if err != nil {
		return "", false, err
	}

	c.attempts.Add(uint64(len(chunk)))
	if len(chunk) > 0 {
		c.reportProgress(chunk[len(chunk)-1])
	}

	if idx < 0 || int(idx) >= len(chunk) {
		return "", false, nil
	}

	c.log.WithFields(logrus.Fields{
		"set":   c.sets[slot].Label(),
		"index": idx,
	}).Info("match found")
	return chunk[idx], true, nil
}

// Crack searches wordlist for a candidate hashing to target and returns the
// first match in wordlist order.
func (c *Cracker) Crack(ctx context.Context, target md5block.Digest, wordlist []string) (Result, error) {
	return c.run(ctx, target, sliceChunks(wordlist))
}

// CrackWithWordlist is Crack over a stream of candidates. It returns once
// passwords is closed, a match is found or ctx is done.
func (c *Cracker) CrackWithWordlist(ctx context.Context, target md5block.Digest, passwords <-chan string) (Result, error) {
	return c.run(ctx, target, c.streamChunks(ctx, passwords))
}

func (c *Cracker) CrackWithGenerator(ctx context.Context, target md5block.Digest, generator func(ctx context.Context) <-chan string) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return c.CrackWithWordlist(ctx, target, generator(ctx))
}

// ProcessBatch hashes up to BatchSize candidates in one blocking dispatch on
// set A and returns the index of the match, if any.
func (c *Cracker) ProcessBatch(candidates []string, target md5block.Digest) (int, bool, error) {
	t, err := c.processBatch(candidates, target)
	return t.Index, t.Found, err
}

// ProcessBatchWithTiming is ProcessBatch that also reports device execution
// time when SupportsTiming is true.
func (c *Cracker) ProcessBatchWithTiming(candidates []string, target md5block.Digest) (Timing, error) {
	return c.processBatch(candidates, target)
}

func (c *Cracker) processBatch(candidates []string, target md5block.Digest) (Timing, error) {
	t := Timing{Index: -1}
	if len(candidates) == 0 {
		return t, nil
	}
	if len(candidates) > BatchSize {
		candidates = candidates[:BatchSize]
	}

	if err := c.prepare(0, candidates, target.Words()); err != nil {
		return t, err
	}
	if err := c.submit(0, len(candidates)); err != nil {
		return t, err
	}

	idx, err := c.sets[0].ReadResult()
	if err != nil {
		return t, err
	}
	if idx >= 0 && int(idx) < len(candidates) {
		t.Index = int(idx)
		t.Found = true
	}
	if c.dev.SupportsTiming() {
		t.GPUTime, t.Timed = c.sets[0].Elapsed()
	}
	return t, nil
}
