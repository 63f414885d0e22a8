package binlog

import (
	"bytes"
	"testing"

	gc "github.com/go-check/check"
	"github.com/pkg/errors"
)

type EntrySuite struct{}

func (s *EntrySuite) TestRoundTrip(c *gc.C) {
	var buf bytes.Buffer
	var payloads = [][]byte{
		[]byte("hello"),
		{},
		[]byte("a much longer entry payload, with\x00binary\xffbytes"),
	}

	var offsets []int64
	var offset int64
	for _, p := range payloads {
		offsets = append(offsets, offset)

		var n, err = writeEntry(&buf, p)
		c.Assert(err, gc.IsNil)
		c.Check(n, gc.Equals, entrySize(p))
		offset += n
	}
	c.Check(int64(buf.Len()), gc.Equals, offset)

	var r = bytes.NewReader(buf.Bytes())
	for i, p := range payloads {
		var got, err = readEntryAt(r, offsets[i])
		c.Assert(err, gc.IsNil)
		c.Check(got, gc.DeepEquals, p)
	}
}

func (s *EntrySuite) TestZeroLengthEntry(c *gc.C) {
	var buf bytes.Buffer
	var n, err = writeEntry(&buf, nil)
	c.Assert(err, gc.IsNil)
	c.Check(n, gc.Equals, int64(entryHeaderLen))

	got, err := readEntryAt(bytes.NewReader(buf.Bytes()), 0)
	c.Assert(err, gc.IsNil)
	c.Check(got, gc.HasLen, 0)
}

func (s *EntrySuite) TestTruncatedPrefix(c *gc.C) {
	var buf bytes.Buffer
	var _, err = writeEntry(&buf, []byte("abc"))
	c.Assert(err, gc.IsNil)

	// A prefix cut short mid-header fails the read.
	var r = bytes.NewReader(buf.Bytes()[:2])
	_, err = readEntryAt(r, 0)
	c.Check(errors.Cause(err), gc.Equals, ErrTruncatedEntry)
}

func (s *EntrySuite) TestTruncatedPayload(c *gc.C) {
	var buf bytes.Buffer
	var _, err = writeEntry(&buf, []byte("abcdef"))
	c.Assert(err, gc.IsNil)

	// A full header whose payload is cut short also fails.
	var r = bytes.NewReader(buf.Bytes()[:buf.Len()-1])
	_, err = readEntryAt(r, 0)
	c.Check(errors.Cause(err), gc.Equals, ErrTruncatedEntry)
}

func (s *EntrySuite) TestReadBeyondEnd(c *gc.C) {
	var buf bytes.Buffer
	var n, err = writeEntry(&buf, []byte("abc"))
	c.Assert(err, gc.IsNil)

	_, err = readEntryAt(bytes.NewReader(buf.Bytes()), n)
	c.Check(errors.Cause(err), gc.Equals, ErrTruncatedEntry)
}

var _ = gc.Suite(&EntrySuite{})

func Test(t *testing.T) { gc.TestingT(t) }
