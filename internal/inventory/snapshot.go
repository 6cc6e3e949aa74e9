package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxSnapshotSize bounds snapshot documents read from disk (32MB).
const maxSnapshotSize = 32 << 20

// LoadSnapshot reads a snapshot document from a JSON file.
//
// A read failure is reported as ErrInventoryUnavailable: the file stands in
// for the controller, so losing it is the same failure as losing the
// controller.
func LoadSnapshot(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: opening snapshot: %w", ErrInventoryUnavailable, err)
	}
	defer f.Close() //nolint:errcheck // read-only

	return DecodeSnapshot(io.LimitReader(f, maxSnapshotSize))
}

// DecodeSnapshot decodes either a {"devices": [...], "entities": [...]}
// document or a bare array of device records.
func DecodeSnapshot(r io.Reader) (Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: reading snapshot: %w", ErrInventoryUnavailable, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("%w: empty document", ErrInvalidSnapshot)
	}

	var snap Snapshot
	if data[0] == '[' {
		if err := json.Unmarshal(data, &snap.Devices); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
		}
		return snap, nil
	}

	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return snap, nil
}
