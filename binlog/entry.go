package binlog

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// entryHeaderLen is the size of the little-endian length prefix which
// precedes every entry payload in the log file and on the wire.
const entryHeaderLen = 4

var (
	// ErrTruncatedEntry is returned when a read lands on a partially written
	// entry at the tail of the log.
	ErrTruncatedEntry = errors.New("truncated log entry")

	// ErrEntryTooLarge is returned when a payload cannot be represented by
	// the 32-bit length prefix.
	ErrEntryTooLarge = errors.New("entry exceeds 32-bit length prefix")
)

// entrySize returns the number of log bytes occupied by |payload|,
// including its length prefix.
func entrySize(payload []byte) int64 {
	return entryHeaderLen + int64(len(payload))
}

// writeEntry appends a length-prefixed entry to |w| as a single write, and
// returns the number of bytes written. The log file is opened with O_APPEND,
// so a single write keeps the entry contiguous even if another descriptor
// were to race ours.
func writeEntry(w io.Writer, payload []byte) (int64, error) {
	if int64(len(payload)) > math.MaxUint32 {
		return 0, ErrEntryTooLarge
	}
	var buf = make([]byte, entryHeaderLen+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[entryHeaderLen:], payload)

	var n, err = w.Write(buf)
	if err != nil {
		return int64(n), errors.Wrap(err, "log write failed")
	}
	return int64(n), nil
}

// readEntryAt reads the entry whose length prefix begins at |offset| and
// returns its payload. A short read of either the prefix or the payload
// returns ErrTruncatedEntry.
func readEntryAt(r io.ReaderAt, offset int64) ([]byte, error) {
	var hdr [entryHeaderLen]byte
	if _, err := r.ReadAt(hdr[:], offset); err != nil {
		return nil, errors.Wrapf(coerceTruncated(err), "reading entry prefix at %d", offset)
	}
	var payload = make([]byte, binary.LittleEndian.Uint32(hdr[:]))
	if len(payload) == 0 {
		return payload, nil
	}
	if _, err := r.ReadAt(payload, offset+entryHeaderLen); err != nil {
		return nil, errors.Wrapf(coerceTruncated(err), "reading entry payload at %d", offset)
	}
	return payload, nil
}

// coerceTruncated maps the EOF errors of a short ReadAt to ErrTruncatedEntry.
func coerceTruncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncatedEntry
	}
	return err
}
