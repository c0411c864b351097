// Package server implements ServerRole: a TCP accept loop dispatching one
// handler per connection to internal/wire's put/get protocol, backed by a
// internal/store.FileStore. Local put/get bypass the socket entirely.
package server

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/audit"
	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/bufferpool"
	"github.com/jobrun/blobcache/internal/debug"
	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/store"
	"github.com/jobrun/blobcache/internal/tracing"
	"github.com/jobrun/blobcache/internal/wire"
)

// Role is a bound TCP listener accepting put/get connections, with local
// put/get entry points that bypass the socket.
type Role struct {
	addr     string
	store    *store.FileStore
	metrics  *metrics.Metrics
	audit    audit.Logger
	tracer   *tracing.Provider
	log      *logrus.Entry

	mu        sync.Mutex
	listener  net.Listener
	accepting bool
	wg        sync.WaitGroup
}

// New constructs a Role bound to addr, backed by st. It does not listen
// until Start is called.
func New(addr string, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider, log *logrus.Logger) *Role {
	if tr == nil {
		tr = tracing.Noop()
	}
	st.SetMetrics(m)
	return &Role{
		addr:    addr,
		store:   st,
		metrics: m,
		audit:   al,
		tracer:  tr,
		log:     log.WithField("component", "server").WithField("addr", addr),
	}
}

// Start binds the listener and begins accepting connections on a background
// goroutine. Each accepted connection is dispatched to its own handler
// goroutine.
func (r *Role) Start() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "server:start", err)
	}

	r.mu.Lock()
	r.listener = ln
	r.accepting = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.acceptLoop(ln)

	r.log.WithField("bound_addr", ln.Addr().String()).Info("server listening")
	return nil
}

// Addr returns the listener's bound address. Only valid after Start
// succeeds; callers that bind to port 0 use this to discover the assigned
// port.
func (r *Role) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return r.addr
	}
	return r.listener.Addr().String()
}

func (r *Role) acceptLoop(ln net.Listener) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			r.mu.Lock()
			stopped := !r.accepting
			r.mu.Unlock()
			if stopped {
				return
			}
			r.log.WithError(err).Warn("accept failed")
			continue
		}
		go r.handleConn(conn)
	}
}

func (r *Role) handleConn(conn net.Conn) {
	defer conn.Close()
	r.metrics.IncrementActiveConnections()
	defer r.metrics.DecrementActiveConnections()

	op, err := wire.ReadOp(conn)
	if err != nil {
		r.log.WithError(err).Debug("failed to read op byte")
		return
	}

	if debug.Enabled() {
		r.log.WithField("op", op).WithField("remote", conn.RemoteAddr()).Debug("accepted frame")
	}

	switch op {
	case wire.OpPut:
		r.handleNetworkPut(conn)
	case wire.OpGet:
		r.handleNetworkGet(conn)
	}
}

// handleNetworkPut implements the network put handler: optional JobID
// frame, chunked body into a fresh temp file while hashing, promote, write
// the key trailer back.
func (r *Role) handleNetworkPut(conn net.Conn) {
	ctx, end := r.tracer.StartSpan(context.Background(), "server.put")
	defer end()
	start := time.Now()

	id, err := wire.ReadJobID(conn)
	if err != nil {
		r.log.WithError(err).Debug("failed to read job id frame")
		return
	}

	chunked := wire.NewChunkReader(conn)
	key, err := r.store.PutStream(chunked)
	duration := time.Since(start)

	var n int64
	jobIDStr := ""
	if id != nil {
		jobIDStr = id.String()
	}
	if err != nil {
		r.metrics.RecordOperation(ctx, "put", "server", duration, n, err)
		r.metrics.RecordOperationError("put", "server", kindOf(err))
		r.audit.LogPut("server", "", jobIDStr, conn.RemoteAddr().String(), 0, false, err, duration)
		return
	}

	if werr := wire.WriteKeyTrailer(conn, key); werr != nil {
		r.log.WithError(werr).Debug("failed to write key trailer")
		return
	}

	r.metrics.RecordOperation(ctx, "put", "server", duration, n, nil)
	r.audit.LogPut("server", key.Hex(), jobIDStr, conn.RemoteAddr().String(), n, true, nil, duration)
}

// handleNetworkGet implements the network get handler: read the requested
// key, look it up, reply with status + (on hit) the file's bytes.
func (r *Role) handleNetworkGet(conn net.Conn) {
	ctx, end := r.tracer.StartSpan(context.Background(), "server.get")
	defer end()
	start := time.Now()

	key, err := blobkey.Read(conn)
	if err != nil {
		r.log.WithError(err).Debug("failed to read requested key")
		return
	}

	f, err := r.store.OpenBlob(key)
	if err != nil {
		_ = wire.WriteMiss(conn)
		duration := time.Since(start)
		r.metrics.RecordOperation(ctx, "get", "server", duration, 0, err)
		r.audit.LogGet("server", key.Hex(), conn.RemoteAddr().String(), 0, false, err, duration)
		return
	}
	defer f.Close()

	if err := wire.WriteHit(conn); err != nil {
		r.log.WithError(err).Debug("failed to write hit status")
		return
	}

	buf := bufferpool.Global().Get()
	defer bufferpool.Global().Put(buf)
	n, err := io.CopyBuffer(conn, f, buf)
	duration := time.Since(start)

	r.metrics.RecordOperation(ctx, "get", "server", duration, n, err)
	r.audit.LogGet("server", key.Hex(), conn.RemoteAddr().String(), n, err == nil, err, duration)
}

// Put performs a local put (bypassing the socket): streams r into a fresh
// temp file while hashing, then promotes it. Returns the computed key.
func (r *Role) Put(ctx context.Context, rd io.Reader) (blobkey.Key, error) {
	ctx, end := r.tracer.StartSpan(ctx, "server.local_put")
	defer end()
	start := time.Now()

	key, err := r.store.PutStream(rd)
	duration := time.Since(start)
	r.metrics.RecordOperation(ctx, "put", "server", duration, 0, err)
	if err != nil {
		r.metrics.RecordOperationError("put", "server", kindOf(err))
		r.audit.LogPut("server", "", "", "local", 0, false, err, duration)
		return blobkey.Key{}, err
	}
	r.audit.LogPut("server", key.Hex(), "", "local", 0, true, nil, duration)
	return key, nil
}

// PutBytes is the byte-range local put variant.
func (r *Role) PutBytes(ctx context.Context, b []byte) (blobkey.Key, error) {
	key, err := r.store.PutBytes(b)
	if err != nil {
		r.metrics.RecordOperationError("put", "server", kindOf(err))
		return blobkey.Key{}, err
	}
	return key, nil
}

// Get performs a local get (bypassing the socket): returns a readable
// stream over the promoted file, or NotFound.
func (r *Role) Get(key blobkey.Key) (io.ReadCloser, error) {
	f, err := r.store.OpenBlob(key)
	if err != nil {
		r.audit.LogGet("server", key.Hex(), "local", 0, false, err, 0)
		return nil, err
	}
	return f, nil
}

// GetURL returns a file:-style URL for the blob's local path, or NotFound.
func (r *Role) GetURL(key blobkey.Key) (string, error) {
	path, ok := r.store.Lookup(key)
	if !ok {
		return "", blobcacheerr.New(blobcacheerr.KindNotFound, "server:getURL", nil)
	}
	return "file://" + path, nil
}

// Shutdown stops accepting, closes the listener, waits for the accept loop
// to exit, then wipes the storage directory. In-flight connection handlers
// are not individually joined.
func (r *Role) Shutdown() {
	r.mu.Lock()
	r.accepting = false
	ln := r.listener
	r.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	r.wg.Wait()
	r.store.Wipe()
	r.log.Info("server shut down")
}

func kindOf(err error) string {
	for _, k := range []blobcacheerr.Kind{
		blobcacheerr.KindIO, blobcacheerr.KindNotFound, blobcacheerr.KindUnexpectedEOF,
		blobcacheerr.KindProtocolViolation, blobcacheerr.KindCorruptTransfer, blobcacheerr.KindInvalidKeySize,
	} {
		if blobcacheerr.IsKind(err, k) {
			return k.String()
		}
	}
	return "io"
}
