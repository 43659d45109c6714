package stateio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsErrNotExist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	_, err := Load(path, func(data []byte) error { return nil })
	assert.True(t, os.IsNotExist(err))
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, []byte(`{"a":1}`)))

	var got string
	recovered, err := Load(path, func(data []byte) error {
		got = string(data)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, recovered)
	assert.Equal(t, `{"a":1}`, got)
}

func TestLoad_RecoversFromBackupWhenPrimaryCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, []byte(`{"a":1}`)))
	require.NoError(t, Save(path, []byte(`{"a":2}`)))
	// Corrupt the primary directly; the prior Save already populated .backup
	// with the first, valid write.
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	var got string
	recovered, err := Load(path, func(data []byte) error {
		if string(data) == "not json" {
			return errors.New("invalid")
		}
		got = string(data)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, `{"a":1}`, got)
}

func TestLoad_ReturnsErrCorruptWhenBothPrimaryAndBackupFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	_, err := Load(path, func(data []byte) error { return errors.New("invalid") })
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSave_WritesBackupOfPreviousContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, Save(path, []byte("first")))
	require.NoError(t, Save(path, []byte("second")))

	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "first", string(backup))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(current))
}
