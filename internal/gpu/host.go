package gpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/lth/md5crack/internal/kernel"
)

const hostQueueDepth = 64

// hostDevice executes the kernel on the CPU. Commands run in submission
// order on a single queue goroutine, so Dispatch returns before the lanes
// run, the same way a GPU queue behaves.
type hostDevice struct {
	workers int
	log     logrus.FieldLogger

	// target is the shared target buffer. Only the queue goroutine touches it.
	target [4]uint32

	mu     sync.RWMutex
	closed bool
	cmds   chan func()
	done   chan struct{}
}

func newHostDevice(opts Options) *hostDevice {
	d := &hostDevice{
		workers: opts.Workers,
		log:     opts.Logger.WithField("backend", BackendHost),
		cmds:    make(chan func(), hostQueueDepth),
		done:    make(chan struct{}),
	}
	go d.run()

	d.log.WithField("workers", d.workers).Info("host compute device ready")
	return d
}

func (d *hostDevice) run() {
	defer close(d.done)
	for cmd := range d.cmds {
		cmd()
	}
}

func (d *hostDevice) submit(cmd func()) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceLost
	}
	d.cmds <- cmd
	return nil
}

func (d *hostDevice) Info() Info {
	return Info{
		Name:         fmt.Sprintf("host %s/%s", runtime.GOOS, runtime.GOARCH),
		Vendor:       "go",
		Backend:      BackendHost,
		ComputeUnits: d.workers,
	}
}

func (d *hostDevice) SupportsTiming() bool {
	return true
}

func (d *hostDevice) NewBufferSet(label string) (BufferSet, error) {
	d.mu.RLock()
	closed := d.closed
	d.mu.RUnlock()
	if closed {
		return nil, ErrDeviceLost
	}

	return &hostBufferSet{
		dev:     d,
		label:   label,
		blocks:  make([]uint32, BlockCapacity),
		offsets: make([]uint32, OffsetCapacity),
		result:  atomic.NewInt32(kernel.NoMatch),
		staging: kernel.NoMatch,
	}, nil
}

// Close drains the queue and stops it.
func (d *hostDevice) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.cmds)
	d.mu.Unlock()

	<-d.done
}

type readback struct {
	value   int32
	elapsed time.Duration
}

type hostBufferSet struct {
	dev   *hostDevice
	label string

	// Upload staging, owned by the caller's goroutine. written is closed
	// once the queue has copied it into device memory.
	upBlocks  []uint32
	upOffsets []uint32
	written   chan struct{}

	// Device memory, owned by the queue goroutine.
	blocks  []uint32
	offsets []uint32
	count   uint32
	result  *atomic.Int32
	staging int32
	elapsed time.Duration

	lastElapsed time.Duration
	haveElapsed bool
}

func (s *hostBufferSet) Label() string {
	return s.label
}

func (s *hostBufferSet) Upload(blocks, offsets []uint32, target [4]uint32, count int) error {
	if err := checkUpload(blocks, offsets, count); err != nil {
		return errors.Wrap(err, s.label)
	}

	if s.written != nil {
		<-s.written
	}

	s.upBlocks = append(s.upBlocks[:0], blocks...)
	s.upOffsets = append(s.upOffsets[:0], offsets...)
	upBlocks, upOffsets := s.upBlocks, s.upOffsets
	written := make(chan struct{})

	err := s.dev.submit(func() {
		defer close(written)
		copy(s.blocks, upBlocks)
		copy(s.offsets, upOffsets)
		s.dev.target = target
		s.count = uint32(count)
		s.result.Store(kernel.NoMatch)
	})
	if err != nil {
		return errors.Wrap(err, s.label)
	}

	s.written = written
	return nil
}

func (s *hostBufferSet) Dispatch(count int) error {
	groups := kernel.Groups(count)
	workers := s.dev.workers

	err := s.dev.submit(func() {
		start := time.Now()
		args := &kernel.Args{
			Blocks:  s.blocks,
			Target:  s.dev.target,
			Result:  s.result,
			Count:   s.count,
			Offsets: s.offsets,
		}

		var eg errgroup.Group
		eg.SetLimit(workers)
		for g := 0; g < groups; g++ {
			base := uint32(g * kernel.GroupSize)
			eg.Go(func() error {
				for lane := uint32(0); lane < kernel.GroupSize; lane++ {
					kernel.Lane(base+lane, args)
				}
				return nil
			})
		}
		_ = eg.Wait()

		s.elapsed = time.Since(start)
	})
	if err != nil {
		return errors.Wrap(err, s.label)
	}

	err = s.dev.submit(func() {
		s.staging = s.result.Load()
	})
	return errors.Wrap(err, s.label)
}

func (s *hostBufferSet) ReadResult() (int32, error) {
	reply := make(chan readback, 1)
	err := s.dev.submit(func() {
		reply <- readback{value: s.staging, elapsed: s.elapsed}
	})
	if err != nil {
		return kernel.NoMatch, errors.Wrap(err, s.label)
	}

	rb := <-reply
	s.lastElapsed = rb.elapsed
	s.haveElapsed = true
	return rb.value, nil
}

func (s *hostBufferSet) Elapsed() (time.Duration, bool) {
	return s.lastElapsed, s.haveElapsed
}

func (s *hostBufferSet) Release() {
	_ = s.dev.submit(func() {
		s.blocks = nil
		s.offsets = nil
	})
	s.upBlocks = nil
	s.upOffsets = nil
}
