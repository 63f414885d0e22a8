package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uni159169/bfs/binlog"
)

func newTestFollower(t *testing.T) *binlog.Binlog {
	var bl = binlog.New(binlog.Config{
		Dir:            t.TempDir(),
		Nodes:          []string{"leader.test:8100", "follower.test:8100"},
		Self:           "follower.test:8100",
		Role:           binlog.RoleSlave,
		StatusInterval: time.Hour,
	}, nil)
	bl.RegisterCallback(func([]byte) {})
	require.NoError(t, bl.Init())
	t.Cleanup(func() { require.NoError(t, bl.Close()) })
	return bl
}

func newTestServer(t *testing.T) (*binlog.Binlog, *Client) {
	var bl = newTestFollower(t)
	var srv = httptest.NewServer(NewServer(bl).Handler())
	t.Cleanup(srv.Close)
	return bl, NewClient(strings.TrimPrefix(srv.URL, "http://"))
}

func TestAppendRoundTrip(t *testing.T) {
	var bl, client = newTestServer(t)
	var ctx = context.Background()

	resp, err := client.AppendLog(ctx, &binlog.AppendRequest{Offset: 0, LogData: []byte("abc")})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(7), resp.Current)

	// A duplicate delivery is rejected as stale, not an error.
	resp, err = client.AppendLog(ctx, &binlog.AppendRequest{Offset: 0, LogData: []byte("abc")})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, int64(-1), resp.Offset)

	// An append ahead of the log reports the rewind position.
	resp, err = client.AppendLog(ctx, &binlog.AppendRequest{Offset: 99, LogData: []byte("z")})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, int64(7), resp.Offset)

	assert.Equal(t, int64(7), bl.Status().Current)
}

func TestZeroLengthEntryOverTheWire(t *testing.T) {
	var bl, client = newTestServer(t)

	resp, err := client.AppendLog(context.Background(), &binlog.AppendRequest{Offset: 0})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(4), bl.Status().Current)
}

func TestClientTransportError(t *testing.T) {
	// Nothing is listening here.
	var client = NewClient("127.0.0.1:1")
	var _, err = client.AppendLog(context.Background(), &binlog.AppendRequest{Offset: 0})
	require.Error(t, err)
}

func TestStatusEndpoint(t *testing.T) {
	var bl = newTestFollower(t)
	var srv = httptest.NewServer(NewServer(bl).Handler())
	t.Cleanup(srv.Close)

	httpResp, err := http.Get(srv.URL + StatusPath)
	require.NoError(t, err)
	defer httpResp.Body.Close()
	require.Equal(t, http.StatusOK, httpResp.StatusCode)

	var status binlog.Status
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&status))
	assert.Equal(t, binlog.RoleSlave, status.Role)
	assert.Equal(t, int64(0), status.Current)
}

func TestAppendRejectsBadRequests(t *testing.T) {
	var bl = newTestFollower(t)
	var srv = httptest.NewServer(NewServer(bl).Handler())
	t.Cleanup(srv.Close)

	httpResp, err := http.Get(srv.URL + AppendPath)
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, httpResp.StatusCode)

	httpResp, err = http.Post(srv.URL+AppendPath, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	httpResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, httpResp.StatusCode)
}
