//go:build opencl
// +build opencl

package gpu

/*
#cgo CFLAGS: -I/usr/include -DCL_TARGET_OPENCL_VERSION=120
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lth/md5crack/internal/kernel"
)

func clCheck(op string, code C.cl_int) error {
	if code == C.CL_SUCCESS {
		return nil
	}
	return errors.Errorf("%s: OpenCL error %d", op, int(code))
}

type clDevice struct {
	platform C.cl_platform_id
	device   C.cl_device_id
	context  C.cl_context
	queue    C.cl_command_queue
	program  C.cl_program
	kernel   C.cl_kernel

	// Shared target buffer and its pinned host copy.
	target     C.cl_mem
	targetHost *C.cl_uint
	targetSet  bool

	profiling bool
	info      Info
	log       logrus.FieldLogger
}

func openOpenCL(opts Options) (Device, error) {
	d := &clDevice{log: opts.Logger.WithField("backend", BackendOpenCL)}

	if err := d.selectDevice(opts.DeviceIndex); err != nil {
		return nil, err
	}

	var clErr C.cl_int
	d.context = C.clCreateContext(nil, 1, &d.device, nil, nil, &clErr)
	if clErr != C.CL_SUCCESS {
		return nil, errors.Wrapf(ErrGPUInit, "create context: OpenCL error %d", int(clErr))
	}

	d.queue = C.clCreateCommandQueue(d.context, d.device, C.CL_QUEUE_PROFILING_ENABLE, &clErr)
	if clErr == C.CL_SUCCESS {
		d.profiling = true
	} else {
		d.queue = C.clCreateCommandQueue(d.context, d.device, 0, &clErr)
		if clErr != C.CL_SUCCESS {
			d.cleanup()
			return nil, errors.Wrapf(ErrGPUInit, "create command queue: OpenCL error %d", int(clErr))
		}
	}

	if err := d.buildKernel(); err != nil {
		d.cleanup()
		return nil, err
	}

	d.target = C.clCreateBuffer(d.context, C.CL_MEM_READ_ONLY, 16, nil, &clErr)
	if clErr != C.CL_SUCCESS {
		d.cleanup()
		return nil, errors.Wrapf(ErrGPUInit, "create target buffer: OpenCL error %d", int(clErr))
	}
	d.targetHost = (*C.cl_uint)(C.malloc(16))

	d.info = d.queryInfo()
	d.log.WithFields(logrus.Fields{
		"device":    d.info.Name,
		"vendor":    d.info.Vendor,
		"units":     d.info.ComputeUnits,
		"profiling": d.profiling,
	}).Info("OpenCL device ready")

	return d, nil
}

func (d *clDevice) selectDevice(index int) error {
	var numPlatforms C.cl_uint
	if C.clGetPlatformIDs(0, nil, &numPlatforms) != C.CL_SUCCESS || numPlatforms == 0 {
		return ErrNoDevice
	}

	platforms := make([]C.cl_platform_id, numPlatforms)
	C.clGetPlatformIDs(numPlatforms, &platforms[0], nil)

	seen := 0
	for _, platform := range platforms {
		var numDevices C.cl_uint
		if C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 0, nil, &numDevices) != C.CL_SUCCESS || numDevices == 0 {
			continue
		}

		devices := make([]C.cl_device_id, numDevices)
		C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, numDevices, &devices[0], nil)
		if index < seen+int(numDevices) {
			d.platform = platform
			d.device = devices[index-seen]
			return nil
		}
		seen += int(numDevices)
	}

	if seen == 0 {
		return ErrNoDevice
	}
	return errors.Wrapf(ErrNoDevice, "device index %d out of range (%d GPUs)", index, seen)
}

func (d *clDevice) buildKernel() error {
	var clErr C.cl_int

	src := C.CString(kernel.Source)
	defer C.free(unsafe.Pointer(src))

	d.program = C.clCreateProgramWithSource(d.context, 1, &src, nil, &clErr)
	if clErr != C.CL_SUCCESS {
		return errors.Wrapf(ErrKernelCompile, "create program: OpenCL error %d", int(clErr))
	}

	if ret := C.clBuildProgram(d.program, 1, &d.device, nil, nil, nil); ret != C.CL_SUCCESS {
		return errors.Wrapf(ErrKernelCompile, "build: OpenCL error %d\n%s", int(ret), d.buildLog())
	}

	name := C.CString(kernel.EntryPoint)
	defer C.free(unsafe.Pointer(name))

	d.kernel = C.clCreateKernel(d.program, name, &clErr)
	if clErr != C.CL_SUCCESS {
		return errors.Wrapf(ErrKernelCompile, "create kernel %s: OpenCL error %d", kernel.EntryPoint, int(clErr))
	}
	return nil
}

func (d *clDevice) buildLog() string {
	var size C.size_t
	C.clGetProgramBuildInfo(d.program, d.device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &size)
	if size == 0 {
		return ""
	}

	buf := make([]byte, size)
	C.clGetProgramBuildInfo(d.program, d.device, C.CL_PROGRAM_BUILD_LOG, size, unsafe.Pointer(&buf[0]), nil)
	return C.GoString((*C.char)(unsafe.Pointer(&buf[0])))
}

func (d *clDevice) queryInfo() Info {
	name := make([]byte, 256)
	C.clGetDeviceInfo(d.device, C.CL_DEVICE_NAME, 256, unsafe.Pointer(&name[0]), nil)

	vendor := make([]byte, 256)
	C.clGetDeviceInfo(d.device, C.CL_DEVICE_VENDOR, 256, unsafe.Pointer(&vendor[0]), nil)

	var maxUnits C.cl_uint
	C.clGetDeviceInfo(d.device, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(maxUnits)), unsafe.Pointer(&maxUnits), nil)

	return Info{
		Name:         C.GoString((*C.char)(unsafe.Pointer(&name[0]))),
		Vendor:       C.GoString((*C.char)(unsafe.Pointer(&vendor[0]))),
		Backend:      BackendOpenCL,
		ComputeUnits: int(maxUnits),
	}
}

func (d *clDevice) Info() Info {
	return d.info
}

func (d *clDevice) SupportsTiming() bool {
	return d.profiling
}

// writeTarget updates the shared target buffer. The pinned copy is only
// rewritten after the queue drains, since a pending write may still read it.
func (d *clDevice) writeTarget(target [4]uint32) error {
	host := unsafe.Slice((*uint32)(unsafe.Pointer(d.targetHost)), 4)
	if d.targetSet && [4]uint32(host) == target {
		return nil
	}

	if err := clCheck("finish", C.clFinish(d.queue)); err != nil {
		return err
	}
	copy(host, target[:])
	d.targetSet = true

	return clCheck("write target", C.clEnqueueWriteBuffer(d.queue, d.target, C.CL_FALSE, 0, 16,
		unsafe.Pointer(d.targetHost), 0, nil, nil))
}

func (d *clDevice) NewBufferSet(label string) (BufferSet, error) {
	s := &clBufferSet{dev: d, label: label}

	var clErr C.cl_int
	create := func(flags C.cl_mem_flags, size int) C.cl_mem {
		if clErr != C.CL_SUCCESS {
			return nil
		}
		return C.clCreateBuffer(d.context, flags, C.size_t(size), nil, &clErr)
	}

	s.blocks = create(C.CL_MEM_READ_ONLY, BlockCapacity*4)
	s.offsets = create(C.CL_MEM_READ_ONLY, OffsetCapacity*4)
	s.result = create(C.CL_MEM_READ_WRITE, 4)
	s.staging = create(C.CL_MEM_READ_WRITE|C.CL_MEM_ALLOC_HOST_PTR, 4)
	if clErr != C.CL_SUCCESS {
		s.Release()
		return nil, errors.Wrapf(ErrGPUInit, "%s: allocate buffers: OpenCL error %d", label, int(clErr))
	}

	s.hostBlocks = (*C.cl_uint)(C.malloc(C.size_t(BlockCapacity * 4)))
	s.hostOffsets = (*C.cl_uint)(C.malloc(C.size_t(OffsetCapacity * 4)))
	s.hostResult = (*C.cl_int)(C.malloc(4))
	*s.hostResult = C.cl_int(kernel.NoMatch)

	return s, nil
}

func (d *clDevice) cleanup() {
	if d.target != nil {
		C.clReleaseMemObject(d.target)
		d.target = nil
	}
	if d.targetHost != nil {
		C.free(unsafe.Pointer(d.targetHost))
		d.targetHost = nil
	}
	if d.kernel != nil {
		C.clReleaseKernel(d.kernel)
		d.kernel = nil
	}
	if d.program != nil {
		C.clReleaseProgram(d.program)
		d.program = nil
	}
	if d.queue != nil {
		C.clReleaseCommandQueue(d.queue)
		d.queue = nil
	}
	if d.context != nil {
		C.clReleaseContext(d.context)
		d.context = nil
	}
}

func (d *clDevice) Close() {
	if d.queue != nil {
		C.clFinish(d.queue)
	}
	d.cleanup()
}

type clBufferSet struct {
	dev   *clDevice
	label string

	blocks  C.cl_mem
	offsets C.cl_mem
	result  C.cl_mem
	staging C.cl_mem

	// Pinned upload sources. Non-blocking writes read them after Upload
	// returns, so they live in C memory and are reused only once written
	// has completed.
	hostBlocks  *C.cl_uint
	hostOffsets *C.cl_uint
	hostResult  *C.cl_int
	written     C.cl_event

	count    C.cl_uint
	dispatch C.cl_event

	lastElapsed time.Duration
	haveElapsed bool
}

func (s *clBufferSet) Label() string {
	return s.label
}

func (s *clBufferSet) Upload(blocks, offsets []uint32, target [4]uint32, count int) error {
	if err := checkUpload(blocks, offsets, count); err != nil {
		return errors.Wrap(err, s.label)
	}

	if s.written != nil {
		C.clWaitForEvents(1, &s.written)
		C.clReleaseEvent(s.written)
		s.written = nil
	}

	copy(unsafe.Slice((*uint32)(unsafe.Pointer(s.hostBlocks)), len(blocks)), blocks)
	copy(unsafe.Slice((*uint32)(unsafe.Pointer(s.hostOffsets)), len(offsets)), offsets)

	q := s.dev.queue
	if len(blocks) > 0 {
		ret := C.clEnqueueWriteBuffer(q, s.blocks, C.CL_FALSE, 0, C.size_t(len(blocks)*4),
			unsafe.Pointer(s.hostBlocks), 0, nil, nil)
		if err := clCheck(s.label+": write blocks", ret); err != nil {
			return err
		}
	}

	ret := C.clEnqueueWriteBuffer(q, s.offsets, C.CL_FALSE, 0, C.size_t(len(offsets)*4),
		unsafe.Pointer(s.hostOffsets), 0, nil, nil)
	if err := clCheck(s.label+": write offsets", ret); err != nil {
		return err
	}

	if err := s.dev.writeTarget(target); err != nil {
		return errors.Wrap(err, s.label)
	}

	ret = C.clEnqueueWriteBuffer(q, s.result, C.CL_FALSE, 0, 4,
		unsafe.Pointer(s.hostResult), 0, nil, &s.written)
	if err := clCheck(s.label+": reset result", ret); err != nil {
		return err
	}

	s.count = C.cl_uint(count)
	return nil
}

func (s *clBufferSet) setArgs() error {
	k := s.dev.kernel
	args := []struct {
		size C.size_t
		ptr  unsafe.Pointer
	}{
		kernel.BindBlocks:  {C.size_t(unsafe.Sizeof(s.blocks)), unsafe.Pointer(&s.blocks)},
		kernel.BindTarget:  {C.size_t(unsafe.Sizeof(s.dev.target)), unsafe.Pointer(&s.dev.target)},
		kernel.BindResult:  {C.size_t(unsafe.Sizeof(s.result)), unsafe.Pointer(&s.result)},
		kernel.BindCount:   {C.size_t(unsafe.Sizeof(s.count)), unsafe.Pointer(&s.count)},
		kernel.BindOffsets: {C.size_t(unsafe.Sizeof(s.offsets)), unsafe.Pointer(&s.offsets)},
	}

	for i, a := range args {
		if err := clCheck("set kernel arg", C.clSetKernelArg(k, C.cl_uint(i), a.size, a.ptr)); err != nil {
			return errors.Wrapf(err, "%s: binding %d", s.label, i)
		}
	}
	return nil
}

func (s *clBufferSet) Dispatch(count int) error {
	if err := s.setArgs(); err != nil {
		return err
	}

	if s.dispatch != nil {
		C.clReleaseEvent(s.dispatch)
		s.dispatch = nil
	}

	q := s.dev.queue
	if groups := kernel.Groups(count); groups > 0 {
		global := C.size_t(groups * kernel.GroupSize)
		local := C.size_t(kernel.GroupSize)
		ret := C.clEnqueueNDRangeKernel(q, s.dev.kernel, 1, nil, &global, &local, 0, nil, &s.dispatch)
		if err := clCheck(s.label+": enqueue kernel", ret); err != nil {
			return err
		}
	}

	ret := C.clEnqueueCopyBuffer(q, s.result, s.staging, 0, 0, 4, 0, nil, nil)
	if err := clCheck(s.label+": copy result", ret); err != nil {
		return err
	}

	return clCheck(s.label+": flush", C.clFlush(q))
}

func (s *clBufferSet) ReadResult() (int32, error) {
	var clErr C.cl_int
	q := s.dev.queue

	ptr := C.clEnqueueMapBuffer(q, s.staging, C.CL_TRUE, C.CL_MAP_READ, 0, 4, 0, nil, nil, &clErr)
	if err := clCheck(s.label+": map staging", clErr); err != nil {
		return kernel.NoMatch, err
	}
	value := int32(*(*C.cl_int)(ptr))

	if err := clCheck(s.label+": unmap staging", C.clEnqueueUnmapMemObject(q, s.staging, ptr, 0, nil, nil)); err != nil {
		return kernel.NoMatch, err
	}

	s.haveElapsed = false
	if s.dispatch != nil {
		if s.dev.profiling {
			var start, end C.cl_ulong
			C.clGetEventProfilingInfo(s.dispatch, C.CL_PROFILING_COMMAND_START, C.size_t(unsafe.Sizeof(start)), unsafe.Pointer(&start), nil)
			C.clGetEventProfilingInfo(s.dispatch, C.CL_PROFILING_COMMAND_END, C.size_t(unsafe.Sizeof(end)), unsafe.Pointer(&end), nil)
			s.lastElapsed = time.Duration(end - start)
			s.haveElapsed = true
		}
		C.clReleaseEvent(s.dispatch)
		s.dispatch = nil
	}

	return value, nil
}

func (s *clBufferSet) Elapsed() (time.Duration, bool) {
	return s.lastElapsed, s.haveElapsed
}

func (s *clBufferSet) Release() {
	if s.written != nil {
		C.clWaitForEvents(1, &s.written)
		C.clReleaseEvent(s.written)
		s.written = nil
	}
	if s.dispatch != nil {
		C.clReleaseEvent(s.dispatch)
		s.dispatch = nil
	}

	for _, m := range []*C.cl_mem{&s.blocks, &s.offsets, &s.result, &s.staging} {
		if *m != nil {
			C.clReleaseMemObject(*m)
			*m = nil
		}
	}

	if s.hostBlocks != nil {
		C.free(unsafe.Pointer(s.hostBlocks))
		s.hostBlocks = nil
	}
	if s.hostOffsets != nil {
		C.free(unsafe.Pointer(s.hostOffsets))
		s.hostOffsets = nil
	}
	if s.hostResult != nil {
		C.free(unsafe.Pointer(s.hostResult))
		s.hostResult = nil
	}
}
