package stateio

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_SecondAcquireOnSamePathFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wan0.lock")
	l1, err := Acquire(path)
	require.NoError(t, err)
	defer l1.Release()

	_, err = Acquire(path)
	assert.Error(t, err)
}

func TestRelease_AllowsReacquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wan0.lock")
	l1, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := Acquire(path)
	require.NoError(t, err)
	defer l2.Release()
}

func TestRelease_NilLockIsANoOp(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
