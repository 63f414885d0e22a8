package binlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const logFileName = "binlog.log"

// ApplyFunc consumes one log entry payload into the node's state machine.
// Entries are delivered exactly once and in log order on each node; the
// payload is opaque to this package.
type ApplyFunc func(entry []byte)

// AppendRequest is the replication RPC sent by the leader for each entry.
// Offset is the leader's synced position: the byte offset at which the
// entry's length prefix must land in the follower's log.
type AppendRequest struct {
	Offset  int64  `json:"offset"`
	LogData []byte `json:"log_data"`
}

// AppendResponse is the follower's reply. On rejection, Offset is the
// follower's append position if the request was ahead of it, or -1 if the
// request was stale (the follower already has those bytes). Current is
// always the follower's append position, letting a newly promoted leader
// fast-forward through a stale prefix instead of probing entry by entry.
type AppendResponse struct {
	Success bool  `json:"success"`
	Offset  int64 `json:"offset"`
	Current int64 `json:"current"`
}

// Caller dispatches AppendLog requests to the peer node.
type Caller interface {
	AppendLog(ctx context.Context, req *AppendRequest) (*AppendResponse, error)
}

// DialFunc builds a Caller for the peer at |addr|. It's invoked when a
// leader initializes, and again on takeover to rebind to the new follower.
type DialFunc func(addr string) Caller

type role int8

const (
	roleFollower role = iota
	roleLeader
)

func (r role) String() string {
	if r == roleLeader {
		return RoleMaster
	}
	return RoleSlave
}

// Binlog is a replicated write-ahead log node, in either the leader or the
// follower role.
type Binlog struct {
	cfg   Config
	self  string
	dial  DialFunc
	apply ApplyFunc

	// writer is positioned at end-of-file by O_APPEND and is used only by
	// the append paths. reader serves recovery and the replicator via
	// positioned reads.
	writer *os.File
	reader *os.File

	// mu guards all fields below, and every offset transition. It may be
	// dropped across file writes and RPCs, but is reacquired before any
	// offset is updated.
	mu         sync.Mutex
	role       role
	peer       string
	client     Caller
	current    int64
	synced     int64
	applied    int64
	masterOnly bool
	exiting    bool
	pending    map[int64]func(bool)

	// workCh carries a wake token to the replicator when current advances.
	// The replicator catches up to the latest current on each wake, so a
	// single buffered token suffices.
	workCh chan struct{}
	// doneCh is closed and replaced each time synced catches current,
	// broadcasting to blocked synchronous writers.
	doneCh chan struct{}
	// exitCh is closed by Close to unblock the replicator and the
	// background status task.
	exitCh chan struct{}

	wg sync.WaitGroup
}

// New returns a Binlog with the given Config and peer dialer. Zero-valued
// intervals of |cfg| are set to their defaults. RegisterCallback and Init
// must be called, in that order, before any other method.
func New(cfg Config, dial DialFunc) *Binlog {
	if cfg.StatusInterval == 0 {
		cfg.StatusInterval = defaultStatusInterval
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.AsyncTimeout == 0 {
		cfg.AsyncTimeout = defaultAsyncTimeout
	}
	return &Binlog{
		cfg:     cfg,
		dial:    dial,
		pending: make(map[int64]func(bool)),
		workCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		exitCh:  make(chan struct{}),
	}
}

// RegisterCallback installs the state-machine apply function. It must be
// called exactly once, before Init: recovery replays into it.
func (b *Binlog) RegisterCallback(fn ApplyFunc) { b.apply = fn }

// Init opens the log and checkpoint files, replays unapplied entries into
// the registered callback, and starts background tasks (the replicator, if
// this node is the leader). No other method may be called until Init
// returns.
func (b *Binlog) Init() error {
	if b.apply == nil {
		return errors.New("RegisterCallback must be called before Init")
	} else if err := b.cfg.Validate(); err != nil {
		return errors.WithMessage(err, "config")
	} else if b.cfg.Role == RoleMaster && b.dial == nil {
		return errors.New("a leader requires a peer DialFunc")
	}
	b.self = b.cfg.Self
	b.peer, _ = b.cfg.peer()
	if b.cfg.Role == RoleMaster {
		b.role = roleLeader
	}

	if err := os.MkdirAll(b.cfg.Dir, 0755); err != nil {
		return errors.Wrap(err, "creating log directory")
	}
	var logPath = filepath.Join(b.cfg.Dir, logFileName)

	var err error
	if b.writer, err = os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644); err != nil {
		return errors.Wrap(err, "opening log writer")
	}
	info, err := b.writer.Stat()
	if err != nil {
		return errors.Wrap(err, "stat of log file")
	}
	b.current, b.synced = info.Size(), info.Size()

	if b.reader, err = os.Open(logPath); err != nil {
		return errors.Wrap(err, "opening log reader")
	}
	if b.applied, err = readCheckpoint(b.checkpointPath()); err != nil {
		return errors.WithMessage(err, "reading applied checkpoint")
	}
	if b.applied > b.current {
		return errors.Errorf("applied checkpoint %d is beyond the log length %d", b.applied, b.current)
	}

	if err = b.recover(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"role":    b.role,
		"self":    b.self,
		"peer":    b.peer,
		"current": b.current,
		"applied": b.applied,
	}).Info("binlog initialized")

	if b.role == roleLeader {
		b.client = b.dial(b.peer)
		b.wg.Add(1)
		go b.replicate(b.client)
	}
	b.wg.Add(1)
	go b.statusLoop()
	return nil
}

// IsLeader returns whether this node is currently the leader.
func (b *Binlog) IsLeader() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.role == roleLeader
}

// Status is a point-in-time snapshot of replication state.
type Status struct {
	Role       string `json:"role"`
	Current    int64  `json:"current"`
	Synced     int64  `json:"synced"`
	Applied    int64  `json:"applied"`
	Pending    int    `json:"pending"`
	MasterOnly bool   `json:"master_only"`
}

// Status returns a snapshot of the node's replication state.
func (b *Binlog) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Role:       b.role.String(),
		Current:    b.current,
		Synced:     b.synced,
		Applied:    b.applied,
		Pending:    len(b.pending),
		MasterOnly: b.masterOnly,
	}
}

// Close signals background tasks to exit, waits for them to drain, writes a
// final applied checkpoint, and closes the log files. Outstanding
// asynchronous completions whose timeout has not yet fired are resolved by
// their timers as usual.
func (b *Binlog) Close() error {
	b.mu.Lock()
	if b.exiting {
		b.mu.Unlock()
		return nil
	}
	b.exiting = true
	close(b.exitCh)
	b.mu.Unlock()

	b.wg.Wait()

	if err := b.writeCheckpoint(); err != nil {
		log.WithField("err", err).Warn("failed to write final applied checkpoint")
	}
	var errA, errB = b.writer.Close(), b.reader.Close()
	if errA != nil {
		return errA
	}
	return errB
}

// statusLoop periodically logs replication progress and checkpoints the
// applied offset.
func (b *Binlog) statusLoop() {
	defer b.wg.Done()
	var ticker = time.NewTicker(b.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.logStatus()
			if err := b.writeCheckpoint(); err != nil {
				log.WithField("err", err).Warn("failed to checkpoint applied offset")
			}
		case <-b.exitCh:
			return
		}
	}
}

func (b *Binlog) logStatus() {
	var s = b.Status()
	log.WithFields(log.Fields{
		"role":       s.Role,
		"current":    s.Current,
		"synced":     s.Synced,
		"applied":    s.Applied,
		"size":       humanize.IBytes(uint64(s.Current)),
		"pending":    english.Plural(s.Pending, "callback", ""),
		"masterOnly": s.MasterOnly,
	}).Info("binlog status")
}

// signalWork wakes the replicator after current has advanced. The token
// channel is buffered; a full buffer means a wake is already pending.
func (b *Binlog) signalWork() {
	select {
	case b.workCh <- struct{}{}:
	default:
	}
}

// broadcastDoneLocked wakes all synchronous writers blocked on replication
// catching up. Callers must hold mu.
func (b *Binlog) broadcastDoneLocked() {
	close(b.doneCh)
	b.doneCh = make(chan struct{})
}

// mustLeaderLocked asserts the leader role. Callers must hold mu.
func (b *Binlog) mustLeaderLocked(op string) {
	if b.role != roleLeader {
		log.WithFields(log.Fields{
			"op":   op,
			"role": b.role,
		}).Panic("operation requires the leader role")
	}
}
