//go:build opencl
// +build opencl

package gpu

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lth/md5crack/internal/kernel"
)

func openCL(t *testing.T) Device {
	t.Helper()

	logger, _ := test.NewNullLogger()
	dev, err := Open(Options{Backend: BackendOpenCL, Logger: logger})
	if errors.Is(err, ErrNoDevice) {
		t.Skip("no OpenCL GPU available")
	}
	require.NoError(t, err)
	t.Cleanup(dev.Close)
	return dev
}

func TestOpenCLDispatchAndRead(t *testing.T) {
	dev := openCL(t)
	t.Logf("device: %s", dev.Info())

	set, err := dev.NewBufferSet("Set A")
	require.NoError(t, err)
	defer set.Release()

	uploadBatch(t, set, []string{"wrong1", "wrong2", "password", "wrong3"}, "password")
	require.NoError(t, set.Dispatch(4))
	idx, err := set.ReadResult()
	require.NoError(t, err)
	assert.Equal(t, int32(2), idx)

	uploadBatch(t, set, []string{"wrong1"}, "password")
	require.NoError(t, set.Dispatch(1))
	idx, err = set.ReadResult()
	require.NoError(t, err)
	assert.Equal(t, kernel.NoMatch, idx)
}
