// Package stateio implements the shared persistence primitives used by
// both daemons: atomic state writes with a backup sibling and recovery
// on load, an advisory per-WAN file lock, and a process-wide shutdown
// event. None of it is specific to autorate or steering state shape —
// callers supply the (de)serialization.
package stateio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorrupt is returned (wrapped) by Load when the primary file exists
// but fails to parse and the backup is missing or fails to parse too. The
// caller's decode function is what detects that — Load itself never
// parses; it only rearranges bytes.
var ErrCorrupt = errors.New("stateio: corrupt state file")

// Decode unmarshals raw bytes into a value and applies any schema
// bounds/defaults itself (type-coerce or clamp, §4.8 step 2); Load treats
// any error it returns as corruption, so it must not fail for
// well-formed-but-out-of-range input.
type Decode func(data []byte) error

// Load implements the §4.8 recovery algorithm:
//  1. missing primary -> caller already holds schema defaults, return os.ErrNotExist
//  2. parseable primary -> decode, return nil
//  3. corrupt primary -> try backup; decode success -> nil (caller logs "recovered from backup");
//     backup also fails/missing -> return ErrCorrupt (caller falls back to defaults)
func Load(path string, decode Decode) (recoveredFromBackup bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, err
		}
		return false, fmt.Errorf("stateio: read %s: %w", path, err)
	}

	if decErr := decode(data); decErr == nil {
		return false, nil
	}

	backupPath := path + ".backup"
	backupData, err := os.ReadFile(backupPath)
	if err != nil {
		return false, fmt.Errorf("%w: primary unparseable and backup unavailable: %v", ErrCorrupt, err)
	}
	if decErr := decode(backupData); decErr != nil {
		return false, fmt.Errorf("%w: primary and backup both unparseable: %v", ErrCorrupt, decErr)
	}
	return true, nil
}

// Save writes data to path atomically (temp file + fsync + rename) and,
// on success, copies the previous contents of path to path+".backup" so
// the next corrupt-primary Load has something to recover from.
func Save(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("stateio: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("stateio: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("stateio: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stateio: close temp file: %w", err)
	}

	// Snapshot the current file to .backup before it is replaced, so a
	// future corrupt write still has a recoverable predecessor.
	if prev, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".backup", prev, 0o600)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("stateio: rename temp file into place: %w", err)
	}
	return nil
}
