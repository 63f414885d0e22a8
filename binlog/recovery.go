package binlog

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// recover replays entries in [applied, synced) into the state-machine
// callback, in order. It runs synchronously within Init, before the
// replicator or any write path starts, so no locking is required. A read
// failure is fatal to Init: it means the log is corrupted below its
// recorded extent.
func (b *Binlog) recover() error {
	var from = b.applied

	for b.applied < b.synced {
		var payload, err = readEntryAt(b.reader, b.applied)
		if err != nil {
			return errors.WithMessagef(err, "replaying log at offset %d", b.applied)
		}
		b.apply(payload)
		b.applied += entrySize(payload)
	}

	if b.applied != from {
		log.WithFields(log.Fields{
			"from": from,
			"to":   b.applied,
		}).Info("replayed unapplied log entries")
	}
	return nil
}
