package server

import (
	"bytes"
	"context"
	"crypto/sha1"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrun/blobcache/internal/audit"
	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/metrics"
	"github.com/jobrun/blobcache/internal/store"
	"github.com/jobrun/blobcache/internal/tracing"
	"github.com/jobrun/blobcache/internal/wire"
)

func discardLog() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestRole(t *testing.T) *Role {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(dir, nil, discardLog())
	require.NoError(t, err)
	t.Cleanup(st.Wipe)

	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	al := audit.NewLogger(100, nil)
	r := New("127.0.0.1:0", st, m, al, tracing.Noop(), discardLog())
	require.NoError(t, r.Start())
	t.Cleanup(r.Shutdown)
	return r
}

func TestLocalPutThenLocalGet(t *testing.T) {
	r := newTestRole(t)
	payload := []byte("hello blob cache")

	key, err := r.Put(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)

	sum := sha1.Sum(payload)
	want, _ := blobkey.FromBytes(sum[:])
	assert.Equal(t, want, key)

	rc, err := r.Get(key)
	require.NoError(t, err)
	defer rc.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())
}

func TestLocalGetMissIsNotFound(t *testing.T) {
	r := newTestRole(t)
	_, err := r.Get(blobkey.Key{0x01})
	assert.True(t, blobcacheerr.IsKind(err, blobcacheerr.KindNotFound))
}

func TestGetURLReturnsFileScheme(t *testing.T) {
	r := newTestRole(t)
	key, err := r.PutBytes(context.Background(), []byte("abc"))
	require.NoError(t, err)

	url, err := r.GetURL(key)
	require.NoError(t, err)
	assert.Contains(t, url, "file://")
	assert.Contains(t, url, key.Hex())
}

func TestGetURLMissIsNotFound(t *testing.T) {
	r := newTestRole(t)
	_, err := r.GetURL(blobkey.Key{0xff})
	assert.True(t, blobcacheerr.IsKind(err, blobcacheerr.KindNotFound))
}

func TestNetworkPutThenNetworkGet(t *testing.T) {
	r := newTestRole(t)
	addr := r.Addr()

	payload := bytes.Repeat([]byte("x"), 9000) // spans multiple 4KiB chunks

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, wire.WriteOp(conn, wire.OpPut))
	require.NoError(t, wire.WriteJobID(conn, nil))
	_, err = wire.CopyChunked(conn, bytes.NewReader(payload), make([]byte, wire.TransferBufferSize))
	require.NoError(t, err)
	key, err := wire.ReadKeyTrailerAndVerifyEOS(conn)
	require.NoError(t, err)
	conn.Close()

	sum := sha1.Sum(payload)
	want, _ := blobkey.FromBytes(sum[:])
	assert.Equal(t, want, key)

	getConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer getConn.Close()
	require.NoError(t, wire.WriteGetRequest(getConn, key))
	status, err := wire.ReadGetStatus(getConn)
	require.NoError(t, err)
	require.Equal(t, wire.StatusHit, status)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(getConn)
	require.NoError(t, err)
	assert.Equal(t, payload, buf.Bytes())
}

func TestNetworkGetMissWritesMissStatus(t *testing.T) {
	r := newTestRole(t)
	conn, err := net.Dial("tcp", r.Addr())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteGetRequest(conn, blobkey.Key{0x42}))
	status, err := wire.ReadGetStatus(conn)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusMiss, status)
}

func TestShutdownClosesListenerAndWipesDir(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(dir, nil, discardLog())
	require.NoError(t, err)
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	al := audit.NewLogger(10, nil)
	r := New("127.0.0.1:0", st, m, al, tracing.Noop(), discardLog())
	require.NoError(t, r.Start())
	storedDir := st.Dir()

	r.Shutdown()

	_, err = net.DialTimeout("tcp", r.Addr(), 200*time.Millisecond)
	assert.Error(t, err)

	_, statErr := os.Stat(storedDir)
	assert.True(t, os.IsNotExist(statErr))
}
