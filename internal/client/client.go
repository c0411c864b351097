// Package client implements the stateless Client: put and get routines that
// drive internal/wire's protocol against a remote ServerRole from any
// process, including ProxyRole itself.
package client

import (
	"bytes"
	"crypto/sha1"
	"io"
	"net"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/bufferpool"
	"github.com/jobrun/blobcache/internal/jobid"
	"github.com/jobrun/blobcache/internal/wire"
)

// Put streams r to serverAddr, using the chunking rule while hashing
// locally, and returns the key the server computed, verified against the
// locally computed digest. A non-nil id is carried in the JobID frame for
// provenance only.
func Put(serverAddr string, r io.Reader, id *jobid.ID) (blobkey.Key, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return blobkey.Key{}, blobcacheerr.New(blobcacheerr.KindIO, "client:put:dial", err)
	}
	defer conn.Close()

	if err := wire.WriteOp(conn, wire.OpPut); err != nil {
		return blobkey.Key{}, err
	}
	if err := wire.WriteJobID(conn, id); err != nil {
		return blobkey.Key{}, err
	}

	h := sha1.New()
	buf := bufferpool.Global().Get()
	defer bufferpool.Global().Put(buf)

	if _, err := wire.CopyChunked(conn, io.TeeReader(r, h), buf); err != nil {
		return blobkey.Key{}, err
	}

	serverKey, err := wire.ReadKeyTrailerAndVerifyEOS(conn)
	if err != nil {
		return blobkey.Key{}, err
	}

	localKey, err := blobkey.FromBytes(h.Sum(nil))
	if err != nil {
		return blobkey.Key{}, err
	}
	if !localKey.Equal(serverKey) {
		return blobkey.Key{}, blobcacheerr.New(blobcacheerr.KindCorruptTransfer, "client:put", nil)
	}
	return serverKey, nil
}

// PutBytes is the byte-range put variant.
func PutBytes(serverAddr string, b []byte, id *jobid.ID) (blobkey.Key, error) {
	return Put(serverAddr, bytes.NewReader(b), id)
}

// GetStream is the lifetime contract for a client-returned get stream: the
// socket is owned by the stream, so closing it closes the socket.
type GetStream struct {
	conn net.Conn
}

func (g *GetStream) Read(p []byte) (int, error) { return g.conn.Read(p) }
func (g *GetStream) Close() error                { return g.conn.Close() }

// Get opens a get connection to serverAddr for key. On a miss it closes the
// socket and returns NotFound. If the stream ends before the status byte it
// returns UnexpectedEOF, and on an unrecognized status byte
// ProtocolViolation, closing the socket first in both cases.
func Get(serverAddr string, key blobkey.Key) (*GetStream, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, blobcacheerr.New(blobcacheerr.KindIO, "client:get:dial", err)
	}

	if err := wire.WriteGetRequest(conn, key); err != nil {
		conn.Close()
		return nil, err
	}

	status, err := wire.ReadGetStatus(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	switch status {
	case wire.StatusHit:
		return &GetStream{conn: conn}, nil
	case wire.StatusMiss:
		conn.Close()
		return nil, blobcacheerr.New(blobcacheerr.KindNotFound, "client:get", nil)
	default:
		conn.Close()
		return nil, blobcacheerr.New(blobcacheerr.KindProtocolViolation, "client:get", nil)
	}
}
