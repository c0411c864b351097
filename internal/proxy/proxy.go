// Package proxy implements ProxyRole: a local-first get with read-through
// fetch-and-verify against a remote ServerRole, and puts forwarded straight
// to the server via internal/client.
package proxy

import (
	"bytes"
	"context"
	"crypto/sha1"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/audit"
	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/bufferpool"
	"github.com/jobrun/blobcache/internal/client"
	"github.com/jobrun/blobcache/internal/debug"
	"github.com/jobrun/blobcache/internal/jobid"
	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/store"
	"github.com/jobrun/blobcache/internal/tracing"
)

// Role holds the remote server's address and a local storage directory used
// as a read-through cache.
type Role struct {
	serverAddr string
	store      *store.FileStore
	metrics    *metrics.Metrics
	audit      audit.Logger
	tracer     *tracing.Provider
	log        *logrus.Entry
}

// New constructs a Role proxying to serverAddr, backed by a local st.
func New(serverAddr string, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider, log *logrus.Logger) *Role {
	if tr == nil {
		tr = tracing.Noop()
	}
	st.SetMetrics(m)
	return &Role{
		serverAddr: serverAddr,
		store:      st,
		metrics:    m,
		audit:      al,
		tracer:     tr,
		log:        log.WithField("component", "proxy").WithField("server_addr", serverAddr),
	}
}

// Put forwards r to the server and returns the verified key.
func (r *Role) Put(ctx context.Context, rd io.Reader, id *jobid.ID) (blobkey.Key, error) {
	ctx, end := r.tracer.StartSpan(ctx, "proxy.put")
	defer end()
	start := time.Now()

	key, err := client.Put(r.serverAddr, rd, id)
	duration := time.Since(start)

	jobIDStr := ""
	if id != nil {
		jobIDStr = id.String()
	}
	r.metrics.RecordOperation(ctx, "put", "proxy", duration, 0, err)
	if err != nil {
		r.metrics.RecordOperationError("put", "proxy", kindOf(err))
		r.audit.LogPut("proxy", "", jobIDStr, r.serverAddr, 0, false, err, duration)
		return blobkey.Key{}, err
	}
	r.audit.LogPut("proxy", key.Hex(), jobIDStr, r.serverAddr, 0, true, nil, duration)
	return key, nil
}

// PutBytes is the byte-range put variant.
func (r *Role) PutBytes(ctx context.Context, b []byte, id *jobid.ID) (blobkey.Key, error) {
	return r.Put(ctx, bytes.NewReader(b), id)
}

func openPath(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, blobcacheerr.New(blobcacheerr.KindIO, "proxy:open", err)
	}
	return f, nil
}

// Get returns a local read stream on a cache hit; on a miss it fetches the
// blob from the server into the local store before retrying lookup once.
func (r *Role) Get(ctx context.Context, key blobkey.Key) (io.ReadCloser, error) {
	ctx, end := r.tracer.StartSpan(ctx, "proxy.get")
	defer end()
	start := time.Now()

	if path, ok := r.store.Lookup(key); ok {
		f, err := openPath(path)
		duration := time.Since(start)
		r.metrics.RecordOperation(ctx, "get", "proxy", duration, 0, err)
		r.audit.LogGet("proxy", key.Hex(), "local", 0, err == nil, err, duration)
		return f, err
	}

	if err := r.fetch(ctx, key); err != nil {
		duration := time.Since(start)
		r.metrics.RecordOperation(ctx, "get", "proxy", duration, 0, err)
		r.metrics.RecordOperationError("get", "proxy", kindOf(err))
		r.audit.LogGet("proxy", key.Hex(), r.serverAddr, 0, false, err, duration)
		return nil, err
	}

	path, ok := r.store.Lookup(key)
	duration := time.Since(start)
	if !ok {
		err := blobcacheerr.New(blobcacheerr.KindNotFound, "proxy:get", nil)
		r.metrics.RecordOperation(ctx, "get", "proxy", duration, 0, err)
		r.audit.LogGet("proxy", key.Hex(), r.serverAddr, 0, false, err, duration)
		return nil, err
	}
	f, err := openPath(path)
	r.metrics.RecordOperation(ctx, "get", "proxy", duration, 0, err)
	r.audit.LogGet("proxy", key.Hex(), r.serverAddr, 0, err == nil, err, duration)
	return f, err
}

// fetch pulls key from the server into the local store, verifying the
// downloaded content hashes to the requested key before promoting it.
// Concurrent fetches of the same key race harmlessly: promotion is
// idempotent since the final name is a pure function of verified content.
func (r *Role) fetch(ctx context.Context, key blobkey.Key) error {
	start := time.Now()

	if debug.Enabled() {
		r.log.WithField("key", key.Hex()).Debug("read-through fetch starting")
	}

	stream, err := client.Get(r.serverAddr, key)
	if err != nil {
		return err
	}
	defer stream.Close()

	t, err := r.store.AllocTemp()
	if err != nil {
		return err
	}

	h := sha1.New()
	buf := bufferpool.Global().Get()
	defer bufferpool.Global().Put(buf)

	n, err := io.CopyBuffer(io.MultiWriter(t.File, h), stream, buf)
	if err != nil {
		r.store.Discard(t)
		return blobcacheerr.New(blobcacheerr.KindIO, "proxy:fetch", err)
	}

	got, err := blobkey.FromBytes(h.Sum(nil))
	if err != nil {
		r.store.Discard(t)
		return err
	}
	if !got.Equal(key) {
		r.store.Discard(t)
		return blobcacheerr.New(blobcacheerr.KindCorruptTransfer, "proxy:fetch", nil)
	}

	if err := r.store.Promote(t, key); err != nil {
		return err
	}

	duration := time.Since(start)
	r.metrics.RecordOperation(ctx, "fetch", "proxy", duration, n, nil)
	r.audit.LogFetch(key.Hex(), n, true, nil, duration)
	return nil
}

// GetURL returns a file: URL for key, fetching it first on a local miss.
func (r *Role) GetURL(ctx context.Context, key blobkey.Key) (string, error) {
	if path, ok := r.store.Lookup(key); ok {
		return "file://" + path, nil
	}
	if err := r.fetch(ctx, key); err != nil {
		return "", err
	}
	path, ok := r.store.Lookup(key)
	if !ok {
		return "", blobcacheerr.New(blobcacheerr.KindNotFound, "proxy:getURL", nil)
	}
	return "file://" + path, nil
}

// Shutdown wipes the local storage directory.
func (r *Role) Shutdown() {
	r.store.Wipe()
	r.log.Info("proxy shut down")
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
