// Package rpc carries the binlog replication protocol between the two nodes
// of a pair, as JSON over HTTP. The core is transport-agnostic; this package
// provides the concrete Caller used by the daemon, and the server glue which
// exposes a node's append handler and status to its peer and to operators.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/uni159169/bfs/binlog"
)

const (
	// AppendPath serves the AppendLog RPC.
	AppendPath = "/binlog/append"
	// StatusPath serves a JSON snapshot of replication state.
	StatusPath = "/binlog/status"
)

// Client dispatches AppendLog requests to the peer's replication endpoint.
// It implements binlog.Caller.
type Client struct {
	addr string
	hc   *http.Client
}

// clientTimeout bounds a single AppendLog exchange. A hung follower surfaces
// as a transport error which the replicator retries, rather than wedging it
// indefinitely.
const clientTimeout = 10 * time.Second

// NewClient returns a Client of the peer at |addr| (a host:port).
func NewClient(addr string) *Client {
	return &Client{addr: addr, hc: &http.Client{Timeout: clientTimeout}}
}

// AppendLog posts |req| to the peer and decodes its response. Transport and
// non-200 failures are returned for the replicator to retry; a decoded
// rejection is not an error.
func (c *Client) AppendLog(ctx context.Context, req *binlog.AppendRequest) (*binlog.AppendResponse, error) {
	var body, err = json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding AppendRequest")
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", "http://"+c.addr+AppendPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "AppendLog request")
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("AppendLog request: %s", httpResp.Status)
	}
	var resp = new(binlog.AppendResponse)
	if err = json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return nil, errors.Wrap(err, "decoding AppendResponse")
	}
	return resp, nil
}

// Server exposes a Binlog node over HTTP.
type Server struct {
	bl *binlog.Binlog
}

// NewServer returns a Server of |bl|.
func NewServer(bl *binlog.Binlog) *Server { return &Server{bl: bl} }

// Handler returns the HTTP handler of the replication and status endpoints.
func (s *Server) Handler() http.Handler {
	var mux = http.NewServeMux()
	mux.HandleFunc(AppendPath, s.handleAppend)
	mux.HandleFunc(StatusPath, s.handleStatus)
	return mux
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req binlog.AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	respond(w, s.bl.AppendLog(&req))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respond(w, s.bl.Status())
}

func respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("err", err).Warn("failed to encode response")
	}
}
