package binlog

import (
	log "github.com/sirupsen/logrus"
)

// AppendLog is the follower-side handler of the replication RPC. An entry
// arriving exactly at the follower's append position is written and applied
// in-line; anything else is rejected with enough context for the leader to
// reconcile. Re-delivery of an entry the follower already has is therefore
// an idempotent no-op.
func (b *Binlog) AppendLog(req *AppendRequest) *AppendResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.role != roleFollower {
		// A promoted leader no longer accepts appends; its old leader must
		// itself be demoted to follower out-of-band before it can sync.
		log.WithField("offset", req.Offset).Warn("rejecting AppendLog: not a follower")
		return &AppendResponse{Success: false, Offset: -1, Current: b.current}
	}

	switch {
	case req.Offset > b.current:
		// We're missing entries before this one. Tell the leader where to
		// rewind to.
		return &AppendResponse{Success: false, Offset: b.current, Current: b.current}
	case req.Offset < b.current:
		// Stale: we already have these bytes.
		return &AppendResponse{Success: false, Offset: -1, Current: b.current}
	}

	b.appendLocked(req.LogData)
	b.apply(req.LogData)
	b.applied = b.current
	b.synced = b.current
	return &AppendResponse{Success: true, Offset: req.Offset, Current: b.current}
}

// SwitchToLeader promotes this follower to leader, once the old leader is
// presumed gone. Replication restarts rooted at offset zero against the
// former leader: the new leader doesn't know how much of its log the new
// follower holds, so it re-sends from the start and relies on the
// follower's stale-rejection path to fast-forward through the shared
// prefix.
func (b *Binlog) SwitchToLeader() {
	b.mu.Lock()
	if b.role == roleLeader {
		b.mu.Unlock()
		log.Warn("SwitchToLeader: already the leader")
		return
	}
	b.role = roleLeader
	b.synced = 0
	b.client = b.dial(b.peer)
	var client, peer, current = b.client, b.peer, b.current
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"peer":    peer,
		"current": current,
	}).Info("promoted to leader; replicating from offset zero")

	b.wg.Add(1)
	go b.replicate(client)
	b.signalWork()
}
