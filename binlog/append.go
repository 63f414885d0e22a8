package binlog

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Log durably appends |entry| and blocks until the follower has acknowledged
// it, or until |timeout| elapses. It always returns true: the local append is
// the only hard contract. A timeout moves the leader into master-only mode,
// where writes are acknowledged without waiting until replication catches
// back up.
func (b *Binlog) Log(entry []byte, timeout time.Duration) bool {
	b.mu.Lock()
	b.mustLeaderLocked("Log")

	var last = b.current
	b.appendLocked(entry)
	b.signalWork()

	// Fast path: the follower was already behind when this entry was
	// written, so there's no point waiting on it.
	if b.masterOnly && b.synced < last {
		b.applied = b.current
		b.mu.Unlock()
		return true
	}

	var timer = time.NewTimer(timeout)
	defer timer.Stop()

	for b.synced != b.current {
		var doneCh = b.doneCh
		b.mu.Unlock()

		select {
		case <-doneCh:
			b.mu.Lock()
		case <-timer.C:
			b.mu.Lock()
			b.masterOnly = true
			b.applied = b.current
			b.mu.Unlock()
			log.WithFields(log.Fields{
				"offset":  last,
				"timeout": timeout,
			}).Warn("replication timed out; entering master-only mode")
			return true
		}
	}
	b.masterOnly = false
	b.applied = b.current
	b.mu.Unlock()
	return true
}

// LogAsync durably appends |entry| and arranges for |done| to be invoked
// with true exactly once: by the replicator when the follower acknowledges
// the entry, or by a fallback timer if the acknowledgement takes longer than
// the configured async timeout (which also moves the leader into master-only
// mode).
func (b *Binlog) LogAsync(entry []byte, done func(ok bool)) {
	b.mu.Lock()
	b.mustLeaderLocked("LogAsync")

	var last = b.current
	var length = b.appendLocked(entry)

	// In master-only mode the entry is acknowledged immediately, with no
	// registration and no timer.
	if b.masterOnly && b.synced < b.current {
		b.applied = b.current
		b.mu.Unlock()
		done(true)
		return
	}

	// Key by the offset one past the entry: the replicator resolves the
	// completion once synced has advanced past it.
	b.pending[last+length] = done
	b.signalWork()
	b.mu.Unlock()

	time.AfterFunc(b.cfg.AsyncTimeout, func() {
		b.processPending(last, length, true)
	})
}

// processPending resolves the completion registered for the entry at
// |offset|, spanning |length| log bytes. It is invoked by the replicator
// upon acknowledgement, and by the fallback timer of LogAsync with
// |timeoutCheck| set. Whichever arrives first wins; completions fire at most
// once. A timer which finds the completion still registered means the
// replicator is lagging, and flags master-only mode.
func (b *Binlog) processPending(offset, length int64, timeoutCheck bool) {
	var key = offset + length

	b.mu.Lock()
	var done, ok = b.pending[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	b.mu.Unlock()

	done(true)

	b.mu.Lock()
	if key > b.applied {
		b.applied = key
	}
	if timeoutCheck {
		b.masterOnly = true
		log.WithFields(log.Fields{
			"offset":  offset,
			"timeout": b.cfg.AsyncTimeout,
		}).Warn("async acknowledgement timed out; entering master-only mode")
	}
	b.mu.Unlock()
}

// appendLocked writes a length-prefixed entry through the log writer and
// advances current. Callers must hold mu. A write error is fatal: the
// invariant that the file length equals current cannot survive a partial
// write.
func (b *Binlog) appendLocked(entry []byte) int64 {
	var n, err = writeEntry(b.writer, entry)
	if err == nil && b.cfg.SyncWrites {
		err = b.writer.Sync()
	}
	if err != nil {
		log.WithFields(log.Fields{
			"offset": b.current,
			"err":    err,
		}).Fatal("binlog append failed")
	}
	b.current += n
	return n
}
