package binlog

import (
	"time"

	"github.com/pkg/errors"
)

// Initial roles accepted by Config.Role. The leader is the "master" of the
// replication pair and the follower its "slave"; roles are assigned by the
// surrounding process and never negotiated here.
const (
	RoleMaster = "master"
	RoleSlave  = "slave"
)

const (
	defaultStatusInterval = 5 * time.Second
	defaultRetryBackoff   = 5 * time.Second
	defaultAsyncTimeout   = 10 * time.Second
)

// Config is the static configuration of a replication node.
type Config struct {
	// Dir holds the log file and the applied checkpoint sidecar.
	Dir string
	// Nodes are the addresses of the two-node replication pair.
	Nodes []string
	// Self is this node's address. It must appear in Nodes; the peer is
	// derived by elimination.
	Self string
	// Role is the initial role, RoleMaster or RoleSlave.
	Role string
	// SyncWrites syncs the log file after each append. Off by default:
	// durability beyond OS buffering is the caller's policy decision.
	SyncWrites bool

	// StatusInterval is the period of the status line and applied
	// checkpoint. Defaults to 5s.
	StatusInterval time.Duration
	// RetryBackoff is the pause between retries of a failed replication
	// RPC. Defaults to 5s.
	RetryBackoff time.Duration
	// AsyncTimeout bounds how long an asynchronous write waits for the
	// replicator before its completion fires anyway. Defaults to 10s.
	AsyncTimeout time.Duration
}

// Validate returns an error if the Config is malformed.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("Dir is required")
	} else if c.Role != RoleMaster && c.Role != RoleSlave {
		return errors.Errorf("invalid Role %q (expected %q or %q)", c.Role, RoleMaster, RoleSlave)
	} else if len(c.Nodes) != 2 {
		return errors.Errorf("expected exactly two Nodes (got %d)", len(c.Nodes))
	} else if c.Nodes[0] == c.Nodes[1] {
		return errors.Errorf("Nodes must be distinct (got %q twice)", c.Nodes[0])
	}
	if _, err := c.peer(); err != nil {
		return err
	}
	return nil
}

// peer returns the address of the other node of the pair.
func (c *Config) peer() (string, error) {
	switch c.Self {
	case c.Nodes[0]:
		return c.Nodes[1], nil
	case c.Nodes[1]:
		return c.Nodes[0], nil
	}
	return "", errors.Errorf("node %q is not a member of %v", c.Self, c.Nodes)
}
