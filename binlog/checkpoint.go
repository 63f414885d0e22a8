package binlog

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// checkpointFileName is the sidecar persisting the applied offset as four
// little-endian bytes. It's rewritten periodically and consulted at Init to
// bound how much of the log must be replayed.
const checkpointFileName = "binlog.applied"

func (b *Binlog) checkpointPath() string {
	return filepath.Join(b.cfg.Dir, checkpointFileName)
}

// readCheckpoint returns the applied offset persisted at |path|. A missing
// file is not an error: the node simply replays from offset zero.
func readCheckpoint(path string) (int64, error) {
	var buf, err = os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	} else if err != nil {
		return 0, err
	} else if len(buf) != 4 {
		return 0, errors.Errorf("checkpoint %s has %d bytes (expected 4)", path, len(buf))
	}
	return int64(binary.LittleEndian.Uint32(buf)), nil
}

// writeCheckpoint atomically persists the current applied offset, by writing
// a temporary file and renaming it over the canonical name.
func (b *Binlog) writeCheckpoint() error {
	b.mu.Lock()
	var applied = b.applied
	b.mu.Unlock()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(applied))
	return renameio.WriteFile(b.checkpointPath(), buf[:], 0644)
}
