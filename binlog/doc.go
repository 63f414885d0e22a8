// Package binlog implements the metadata server's replicated write-ahead
// binlog: a durable, append-only log of length-prefixed entries which a
// designated leader streams to a single follower.
//
// The leader offers two write paths. The synchronous path appends locally and
// blocks until the follower has acknowledged the entry or a timeout elapses;
// the asynchronous path appends locally and fires a completion callback once
// the entry is acknowledged, or after a fallback timeout. A timeout on either
// path never fails the caller: the entry is durably written regardless, and
// the leader instead degrades into master-only mode, acknowledging writes
// without waiting for the follower until replication catches back up.
//
// Replication progress is tracked by three byte offsets. current and applied
// only advance; synced is rewound when the follower reports it is behind, and
// reset to zero on promotion via SwitchToLeader:
//
//   - current: one past the last byte appended to the local log.
//   - synced:  one past the last byte acknowledged by the follower.
//   - applied: one past the last byte delivered to the state machine.
//
// On restart the log is replayed from the persisted applied checkpoint into
// the registered state-machine callback before any replication begins. Roles
// are assigned externally; the package never elects a leader, though a
// follower may be promoted once via SwitchToLeader.
package binlog
