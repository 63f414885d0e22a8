package binlog

import (
	"testing"

	"go.uber.org/goleak"
)

// Background tasks of every node must drain on Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
