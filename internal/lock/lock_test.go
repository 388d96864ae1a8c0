package lock

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

func TestAcquireIsExclusive(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	first, err := Acquire("ognpipe-test", logger.NewNop())
	require.NoError(t, err)

	_, err = Acquire("ognpipe-test", logger.NewNop())
	assert.ErrorContains(t, err, "already running")

	first.Release()

	second, err := Acquire("ognpipe-test", logger.NewNop())
	require.NoError(t, err)
	second.Release()
}

func TestReleaseRemovesLockFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)

	l, err := Acquire("ognpipe-test", logger.NewNop())
	require.NoError(t, err)
	assert.FileExists(t, l.path)

	l.Release()
	_, statErr := os.Stat(l.path)
	assert.True(t, os.IsNotExist(statErr))
}
