// Package gpu owns the compute device: its command queue, the buffer sets a
// batch is uploaded into, kernel dispatch and result readback.
package gpu

import (
	"fmt"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lth/md5crack/internal/md5block"
)

// BatchSize is the number of candidates one buffer set holds.
const BatchSize = 65536

const (
	// BlockCapacity is the block buffer size of a set, in words.
	BlockCapacity = BatchSize * md5block.MaxBlocks * md5block.BlockWords

	// OffsetCapacity is the offsets buffer size of a set, in words.
	OffsetCapacity = BatchSize + 1
)

var (
	ErrNoDevice       = errors.New("no compatible compute device found")
	ErrGPUNotCompiled = errors.New("GPU support not compiled - rebuild with -tags opencl")
	ErrGPUInit        = errors.New("failed to initialize GPU")
	ErrKernelCompile  = errors.New("failed to compile OpenCL kernel")
	ErrBatchTooLarge  = errors.New("batch exceeds buffer set capacity")
	ErrDeviceLost     = errors.New("device queue closed")
)

const (
	BackendAuto   = "auto"
	BackendOpenCL = "opencl"
	BackendHost   = "host"
)

// Device is an opened compute device with one in-order command queue.
type Device interface {
	Info() Info
	// SupportsTiming reports whether BufferSet.Elapsed returns device time.
	SupportsTiming() bool
	NewBufferSet(label string) (BufferSet, error)
	Close()
}

// BufferSet is the device-side storage for one in-flight batch. A set is
// not safe for concurrent use.
type BufferSet interface {
	// Upload copies a preprocessed batch into the set and resets its match
	// cell. The caller may reuse blocks and offsets once Upload returns.
	Upload(blocks, offsets []uint32, target [4]uint32, count int) error

	// Dispatch enqueues the kernel over count lanes followed by a copy of
	// the match cell to staging memory. It does not wait for the device.
	Dispatch(count int) error

	// ReadResult blocks until the staging copy of the last dispatch is
	// visible and returns the matching lane, or kernel.NoMatch.
	ReadResult() (int32, error)

	// Elapsed is the device execution time of the last dispatch whose
	// result has been read.
	Elapsed() (time.Duration, bool)

	Label() string
	Release()
}

type Info struct {
	Name         string
	Vendor       string
	Backend      string
	ComputeUnits int
}

func (i Info) String() string {
	return fmt.Sprintf("%s [%s] (%d compute units)", i.Name, i.Backend, i.ComputeUnits)
}

type Options struct {
	Backend     string
	DeviceIndex int
	// Workers bounds the goroutines the host backend runs lanes on.
	Workers int
	Logger  logrus.FieldLogger
}

func (o *Options) setDefaults() {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// Open acquires a compute device. BackendAuto tries OpenCL first and falls
// back to the host backend.
func Open(opts Options) (Device, error) {
	opts.setDefaults()
	log := opts.Logger.WithField("backend", opts.Backend)

	switch opts.Backend {
	case BackendOpenCL:
		return openOpenCL(opts)
	case BackendHost:
		return newHostDevice(opts), nil
	case BackendAuto:
		dev, err := openOpenCL(opts)
		if err == nil {
			return dev, nil
		}
		log.WithError(err).Info("OpenCL unavailable, using host backend")
		return newHostDevice(opts), nil
	default:
		return nil, errors.Wrapf(ErrNoDevice, "unknown backend %q", opts.Backend)
	}
}

func checkUpload(blocks, offsets []uint32, count int) error {
	if count < 0 || count > BatchSize {
		return errors.Wrapf(ErrBatchTooLarge, "%d candidates", count)
	}
	if len(blocks) > BlockCapacity {
		return errors.Wrapf(ErrBatchTooLarge, "%d block words", len(blocks))
	}
	if len(offsets) != count+1 {
		return errors.Errorf("offsets: got %d entries for %d candidates", len(offsets), count)
	}
	return nil
}
