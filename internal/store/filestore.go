// Package store implements FileStore, the per-process content-addressed
// storage directory shared by the server and proxy roles: a temp-file
// allocator, atomic promote-by-rename, lookup, and shutdown wipe.
package store

import (
	"bytes"
	"context"
	"crypto/sha1"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/bufferpool"
	"github.com/jobrun/blobcache/internal/metrics"
)

// tempNameSpace bounds the random integer used to name temp files, per
// spec: n in [0, 10000).
const tempNameSpace = 10000

// TempFile is a handle to an allocated-but-not-yet-promoted file. Callers
// write to File, then either Promote it or let the store Discard it on any
// error path.
type TempFile struct {
	File *os.File
	path string
}

// FileStore owns one storage directory and serializes temp-name allocation
// within it so two concurrent allocations never race on the same name.
type FileStore struct {
	dir     string
	index   Index
	log     *logrus.Entry
	metrics *metrics.Metrics

	allocMu sync.Mutex
	rng     *rand.Rand
}

// SetMetrics attaches m so Lookup can record index-consultation outcomes.
// Left unset, Lookup simply records nothing.
func (s *FileStore) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Open creates (if missing) and returns a FileStore rooted at
// base/blob-<user>-<pid>. index may be nil, in which case lookups always
// fall back to disk.
func Open(base string, index Index, log *logrus.Logger) (*FileStore, error) {
	dir, err := ensureDir(base)
	if err != nil {
		return nil, err
	}
	if index == nil {
		index = NoopIndex{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FileStore{
		dir:   dir,
		index: index,
		log:   log.WithField("component", "filestore").WithField("dir", dir),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Dir returns the absolute path of the storage directory.
func (s *FileStore) Dir() string { return s.dir }

// AllocTemp picks a free tmp-<n> name under the storage directory and
// opens it for writing. Name probing is serialized so two concurrent
// allocations never race on the same n.
func (s *FileStore) AllocTemp() (*TempFile, error) {
	s.allocMu.Lock()
	defer s.allocMu.Unlock()

	for {
		n := s.rng.Intn(tempNameSpace)
		path := filepath.Join(s.dir, tempPrefix+strconv.Itoa(n))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return &TempFile{File: f, path: path}, nil
		}
		if os.IsExist(err) {
			continue
		}
		return nil, blobcacheerr.New(blobcacheerr.KindIO, "filestore:allocTemp", err)
	}
}

// Discard closes and removes a temp file. Callers invoke this on every
// error path between allocation and promotion.
func (s *FileStore) Discard(t *TempFile) {
	if t == nil {
		return
	}
	_ = t.File.Close()
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).WithField("path", t.path).Warn("failed to remove discarded temp file")
	}
}

// Promote closes t and atomically renames it to blob_<hex(key)>. A rename
// that fails because the target already exists is treated as success,
// since the target's bytes are guaranteed identical (both are SHA1(key)).
func (s *FileStore) Promote(t *TempFile, key blobkey.Key) error {
	if err := t.File.Close(); err != nil {
		s.Discard(t)
		return blobcacheerr.New(blobcacheerr.KindIO, "filestore:promote", err)
	}
	final := s.finalPath(key)
	if err := os.Rename(t.path, final); err != nil {
		if _, statErr := os.Stat(final); statErr == nil {
			_ = os.Remove(t.path)
		} else {
			_ = os.Remove(t.path)
			return blobcacheerr.New(blobcacheerr.KindIO, "filestore:promote", err)
		}
	}
	s.index.Add(context.Background(), key)
	return nil
}

// Lookup reports whether key has a promoted file. It consults the optional
// index (recording the outcome when metrics are attached) but always
// confirms with a disk stat, so the index never changes the answer.
func (s *FileStore) Lookup(key blobkey.Key) (path string, ok bool) {
	final := s.finalPath(key)
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	present, consulted := s.index.Contains(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordIndexLookup(consulted, present)
	}
	if consulted && present {
		if _, err := os.Stat(final); err == nil {
			return final, true
		}
	}
	if _, err := os.Stat(final); err == nil {
		return final, true
	}
	return "", false
}

// OpenBlob opens the promoted file for key for reading. Callers should check
// Lookup or handle the returned NotFound error.
func (s *FileStore) OpenBlob(key blobkey.Key) (*os.File, error) {
	f, err := os.Open(s.finalPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blobcacheerr.New(blobcacheerr.KindNotFound, "filestore:open", err)
		}
		return nil, blobcacheerr.New(blobcacheerr.KindIO, "filestore:open", err)
	}
	return f, nil
}

// PutStream streams all of r into a fresh temp file while computing its
// SHA-1 digest, then promotes it under the computed key. On any error the
// temp file is discarded. This is the shared core of ServerRole's local put
// and network put handler.
func (s *FileStore) PutStream(r io.Reader) (blobkey.Key, error) {
	t, err := s.AllocTemp()
	if err != nil {
		return blobkey.Key{}, err
	}

	h := sha1.New()
	buf := bufferpool.Global().Get()
	defer bufferpool.Global().Put(buf)

	if _, err := io.CopyBuffer(io.MultiWriter(t.File, h), r, buf); err != nil {
		s.Discard(t)
		return blobkey.Key{}, blobcacheerr.New(blobcacheerr.KindIO, "filestore:putStream", err)
	}

	key, err := blobkey.FromBytes(h.Sum(nil))
	if err != nil {
		s.Discard(t)
		return blobkey.Key{}, err
	}
	if err := s.Promote(t, key); err != nil {
		return blobkey.Key{}, err
	}
	return key, nil
}

// PutBytes is the byte-range put variant: the payload is already fully in
// memory (the caller read it from a job artifact), so there is no streaming
// source to drain incrementally, but the digest is still computed the same
// streaming way for symmetry with PutStream.
func (s *FileStore) PutBytes(b []byte) (blobkey.Key, error) {
	return s.PutStream(bytes.NewReader(b))
}

// Wipe deletes every blob_-prefixed entry in the storage directory, then
// removes the directory itself if it is left empty. Per-file deletion
// errors are logged and swallowed; shutdown is best-effort.
func (s *FileStore) Wipe() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.WithError(err).Warn("failed to list storage directory for wipe")
		return
	}
	for _, e := range entries {
		if !hasBlobPrefix(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			s.log.WithError(err).WithField("name", e.Name()).Warn("failed to remove blob during wipe")
		}
	}
	if err := os.Remove(s.dir); err != nil && !os.IsNotExist(err) {
		s.log.WithError(err).Debug("storage directory not empty after wipe, leaving in place")
	}
	if err := s.index.Close(); err != nil {
		s.log.WithError(err).Debug("failed to close index")
	}
}

func (s *FileStore) finalPath(key blobkey.Key) string {
	return filepath.Join(s.dir, blobPrefix+key.Hex())
}

func hasBlobPrefix(name string) bool {
	return len(name) >= len(blobPrefix) && name[:len(blobPrefix)] == blobPrefix
}
