package binlog

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// replicate streams entries at [synced, current) to the follower via
// |client|, advancing synced as acknowledgements arrive and reconciling on
// rejection. It runs on its own goroutine for the life of the leader role,
// and blocks on the work channel whenever the follower is caught up.
func (b *Binlog) replicate(client Caller) {
	defer b.wg.Done()

	for {
		b.mu.Lock()
		for b.synced == b.current && !b.exiting {
			b.mu.Unlock()
			select {
			case <-b.workCh:
			case <-b.exitCh:
			}
			b.mu.Lock()
		}
		if b.exiting {
			b.mu.Unlock()
			return
		}
		var offset = b.synced
		b.mu.Unlock()

		// The read must succeed: entries below current are immutable and
		// fully written.
		var payload, err = readEntryAt(b.reader, offset)
		if err != nil {
			log.WithFields(log.Fields{
				"offset": offset,
				"err":    err,
			}).Fatal("reading binlog entry for replication")
		}
		var length = entrySize(payload)

		var resp = b.send(client, &AppendRequest{Offset: offset, LogData: payload})
		if resp == nil {
			return // Exiting.
		}

		switch {
		case resp.Success:
			b.processPending(offset, length, false)

			b.mu.Lock()
			b.synced = offset + length
			if b.synced == b.current {
				if b.masterOnly {
					b.masterOnly = false
					log.WithField("synced", b.synced).
						Info("replication caught up; leaving master-only mode")
				}
				b.broadcastDoneLocked()
			}
			b.mu.Unlock()

		case resp.Offset >= 0:
			// The follower is behind the offset we sent. Rewind to its
			// position and re-send the entries it's missing.
			b.mu.Lock()
			var rw = resp.Offset
			if rw > b.current {
				rw = b.current
			}
			log.WithFields(log.Fields{
				"synced":   b.synced,
				"follower": resp.Offset,
			}).Warn("follower is behind; rewinding replication")
			b.synced = rw
			b.mu.Unlock()

		default:
			// Stale request: the follower already has these bytes, which
			// happens after a takeover restarts replication at offset zero.
			// Fast-forward through the shared prefix rather than probing
			// entry by entry.
			b.mu.Lock()
			var ff = resp.Current
			if ff > b.current {
				ff = b.current
			}
			log.WithFields(log.Fields{
				"synced":   b.synced,
				"follower": resp.Current,
				"resumed":  ff,
			}).Info("follower is ahead; fast-forwarding replication")
			b.synced = ff
			if b.synced == b.current {
				b.broadcastDoneLocked()
			}
			b.mu.Unlock()
		}
	}
}

// send dispatches |req| to the follower, retrying transport failures
// indefinitely with a backoff. It returns nil only if the node is exiting.
// In-flight RPCs are not cancelled; they complete or time out in the
// transport.
func (b *Binlog) send(client Caller, req *AppendRequest) *AppendResponse {
	for {
		var resp, err = client.AppendLog(context.Background(), req)
		if err == nil {
			return resp
		}
		log.WithFields(log.Fields{
			"offset": req.Offset,
			"err":    err,
		}).Warn("AppendLog RPC failed; will retry")

		select {
		case <-time.After(b.cfg.RetryBackoff):
		case <-b.exitCh:
			return nil
		}
	}
}
