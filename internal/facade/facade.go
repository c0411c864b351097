// Package facade implements the process-wide singleton that holds the
// single active role (ServerRole or ProxyRole) and dispatches put/get/getURL
// calls to it.
package facade

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/audit"
	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/jobid"
	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/proxy"
	"github.com/jobrun/blobcache/internal/server"
	"github.com/jobrun/blobcache/internal/store"
	"github.com/jobrun/blobcache/internal/tracing"
)

// activeRole is the shape the Facade dispatches through, satisfied by
// adapters over *server.Role and *proxy.Role.
type activeRole interface {
	Put(ctx context.Context, r io.Reader, id *jobid.ID) (blobkey.Key, error)
	PutBytes(ctx context.Context, b []byte, id *jobid.ID) (blobkey.Key, error)
	Get(ctx context.Context, key blobkey.Key) (io.ReadCloser, error)
	GetURL(ctx context.Context, key blobkey.Key) (string, error)
	Shutdown()
}

// Facade is the process-wide singleton. Its zero value is ready to use: no
// role is active until initServer/initProxy succeeds.
type Facade struct {
	mu   sync.Mutex
	role activeRole
}

// New constructs an empty Facade.
func New() *Facade {
	return &Facade{}
}

// InitServer constructs a ServerRole bound to addr and activates it, unless
// a role is already active — in which case it returns AlreadyInitialized
// instead of silently discarding the request, and the caller learns it lost
// the race.
func (f *Facade) InitServer(addr string, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider, log *logrus.Logger) error {
	role := server.New(addr, st, m, al, tr, log)

	f.mu.Lock()
	if f.role != nil {
		f.mu.Unlock()
		return blobcacheerr.New(blobcacheerr.KindAlreadyInitialized, "facade:initServer", nil)
	}
	if err := role.Start(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.role = &serverAdapter{role}
	f.mu.Unlock()
	return nil
}

// InitProxy constructs a ProxyRole against serverAddr and activates it, with
// the same already-initialized semantics as InitServer.
func (f *Facade) InitProxy(serverAddr string, st *store.FileStore, m *metrics.Metrics, al audit.Logger, tr *tracing.Provider, log *logrus.Logger) error {
	role := proxy.New(serverAddr, st, m, al, tr, log)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.role != nil {
		return blobcacheerr.New(blobcacheerr.KindAlreadyInitialized, "facade:initProxy", nil)
	}
	f.role = role
	return nil
}

// Put dispatches to the active role, failing with NotInitialized if none is
// active.
func (f *Facade) Put(ctx context.Context, r io.Reader, id *jobid.ID) (blobkey.Key, error) {
	role := f.current()
	if role == nil {
		return blobkey.Key{}, blobcacheerr.New(blobcacheerr.KindNotInitialized, "facade:put", nil)
	}
	return role.Put(ctx, r, id)
}

// PutBytes is the byte-range put variant.
func (f *Facade) PutBytes(ctx context.Context, b []byte, id *jobid.ID) (blobkey.Key, error) {
	role := f.current()
	if role == nil {
		return blobkey.Key{}, blobcacheerr.New(blobcacheerr.KindNotInitialized, "facade:putBytes", nil)
	}
	return role.PutBytes(ctx, b, id)
}

// Get dispatches to the active role, failing with NotInitialized if none is
// active.
func (f *Facade) Get(ctx context.Context, key blobkey.Key) (io.ReadCloser, error) {
	role := f.current()
	if role == nil {
		return nil, blobcacheerr.New(blobcacheerr.KindNotInitialized, "facade:get", nil)
	}
	return role.Get(ctx, key)
}

// GetURL dispatches to the active role, failing with NotInitialized if none
// is active.
func (f *Facade) GetURL(ctx context.Context, key blobkey.Key) (string, error) {
	role := f.current()
	if role == nil {
		return "", blobcacheerr.New(blobcacheerr.KindNotInitialized, "facade:getURL", nil)
	}
	return role.GetURL(ctx, key)
}

// Shutdown atomically takes and clears the active role and shuts it down.
// A no-op if no role is active.
func (f *Facade) Shutdown() {
	f.mu.Lock()
	role := f.role
	f.role = nil
	f.mu.Unlock()

	if role != nil {
		role.Shutdown()
	}
}

func (f *Facade) current() activeRole {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.role
}

// serverAdapter adapts *server.Role's local-entry-point shape (no jobid, no
// ctx on Get/GetURL) to activeRole.
type serverAdapter struct {
	r *server.Role
}

func (s *serverAdapter) Put(ctx context.Context, r io.Reader, _ *jobid.ID) (blobkey.Key, error) {
	return s.r.Put(ctx, r)
}

func (s *serverAdapter) PutBytes(ctx context.Context, b []byte, _ *jobid.ID) (blobkey.Key, error) {
	return s.r.PutBytes(ctx, b)
}

func (s *serverAdapter) Get(_ context.Context, key blobkey.Key) (io.ReadCloser, error) {
	return s.r.Get(key)
}

func (s *serverAdapter) GetURL(_ context.Context, key blobkey.Key) (string, error) {
	return s.r.GetURL(key)
}

func (s *serverAdapter) Shutdown() { s.r.Shutdown() }
