package attacks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lth/md5crack/internal/md5block"
)

func writeWordlist(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWordlist(t *testing.T) {
	long := strings.Repeat("x", md5block.MaxMsgSize+1)
	path := writeWordlist(t, "alpha\r\nbeta\n\n"+long+"\ngamma")

	logger, hook := test.NewNullLogger()
	words, err := LoadWordlist(path, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "", "gamma"}, words)

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 4, hook.LastEntry().Data["line"])
}

func TestLoadWordlistMissing(t *testing.T) {
	_, err := LoadWordlist(filepath.Join(t.TempDir(), "missing.txt"), nil)
	assert.Error(t, err)
}

func TestWordlistGenerator(t *testing.T) {
	path := writeWordlist(t, "one\ntwo\nthree\n")

	logger, _ := test.NewNullLogger()
	ch, err := WordlistGenerator(context.Background(), path, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, collect(ch, 0))
}

func TestSliceGenerator(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, []string{"a", "b"}, collect(SliceGenerator(ctx, []string{"a", "b"}), 0))
}
