//go:build !opencl
// +build !opencl

package gpu

func openOpenCL(opts Options) (Device, error) {
	return nil, ErrGPUNotCompiled
}
