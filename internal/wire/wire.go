// Package wire implements the blob cache's binary framing protocol: one
// operation per TCP connection, little-endian 4-byte length prefixes, and a
// fixed 20-byte BlobKey trailer on put. ChunkReader is a state-carrying
// io.Reader wrapping a bufio.Reader, the same shape as any streaming
// chunk-decoder that tracks bytes-remaining-in-chunk across Read calls.
package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
	"github.com/jobrun/blobcache/internal/blobkey"
	"github.com/jobrun/blobcache/internal/jobid"
)

// Op identifies the single operation a connection carries.
type Op byte

const (
	// OpPut uploads a blob's bytes to the server.
	OpPut Op = 0x00
	// OpGet downloads a blob's bytes from the server.
	OpGet Op = 0x01
)

// Get-response status byte.
const (
	StatusMiss byte = 0x00
	StatusHit  byte = 0x01
)

// TransferBufferSize bounds the length of any single put chunk. Producers
// must never send a chunk longer than this; readers use it to size their
// reusable buffers.
const TransferBufferSize = 4096

// terminator is the negative length value that ends a put payload stream.
const terminator int32 = -1

// jobIDPresent/jobIDAbsent are the two values of the optional JobID frame
// that immediately follows the op byte on a put connection.
const (
	jobIDAbsent  byte = 0x00
	jobIDPresent byte = 0x01
)

// WriteOp writes the single op byte that opens a connection.
func WriteOp(w io.Writer, op Op) error {
	if _, err := w.Write([]byte{byte(op)}); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeOp", err)
	}
	return nil
}

// ReadOp reads the op byte that opens a connection. Any value other than
// OpPut/OpGet is a protocol violation; the caller should close the
// connection without responding.
func ReadOp(r io.Reader) (Op, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:readOp", err)
	}
	op := Op(b[0])
	if op != OpPut && op != OpGet {
		return 0, blobcacheerr.New(blobcacheerr.KindProtocolViolation, "wire:readOp", nil)
	}
	return op, nil
}

// WriteJobID writes the optional JobID frame. A nil id writes the absent
// marker only.
func WriteJobID(w io.Writer, id *jobid.ID) error {
	if id == nil {
		if _, err := w.Write([]byte{jobIDAbsent}); err != nil {
			return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeJobID", err)
		}
		return nil
	}
	if _, err := w.Write([]byte{jobIDPresent}); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeJobID", err)
	}
	if _, err := w.Write(id.Bytes()); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeJobID", err)
	}
	return nil
}

// ReadJobID reads the optional JobID frame, returning nil when the producer
// sent no job id.
func ReadJobID(r io.Reader) (*jobid.ID, error) {
	var marker [1]byte
	if _, err := io.ReadFull(r, marker[:]); err != nil {
		return nil, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:readJobID", err)
	}
	switch marker[0] {
	case jobIDAbsent:
		return nil, nil
	case jobIDPresent:
		buf := make([]byte, jobid.Size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:readJobID", err)
		}
		id, ok := jobid.FromBytes(buf)
		if !ok {
			return nil, blobcacheerr.New(blobcacheerr.KindProtocolViolation, "wire:readJobID", nil)
		}
		return &id, nil
	default:
		return nil, blobcacheerr.New(blobcacheerr.KindProtocolViolation, "wire:readJobID", nil)
	}
}

// WriteLength writes a single little-endian signed length frame header.
func WriteLength(w io.Writer, l int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(l))
	if _, err := w.Write(buf[:]); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeLength", err)
	}
	return nil
}

// WriteTerminator ends a chunked payload stream.
func WriteTerminator(w io.Writer) error {
	return WriteLength(w, terminator)
}

// ChunkReader decodes the length-prefixed chunked put payload: a signed
// 4-byte little-endian length prefix per chunk, terminated by a -1 length.
type ChunkReader struct {
	r        *bufio.Reader
	left     int32
	finished bool
	err      error
}

// NewChunkReader wraps r for chunked decoding.
func NewChunkReader(r io.Reader) *ChunkReader {
	return &ChunkReader{r: bufio.NewReaderSize(r, TransferBufferSize)}
}

func (c *ChunkReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.finished {
		return 0, io.EOF
	}

	total := 0
	for total < len(p) {
		if c.left == 0 {
			var lenBuf [4]byte
			if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
				c.err = blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:chunkReader", err)
				return total, c.err
			}
			l := int32(binary.LittleEndian.Uint32(lenBuf[:]))
			if l < 0 {
				c.finished = true
				if total > 0 {
					return total, nil
				}
				return 0, io.EOF
			}
			c.left = l
			if c.left == 0 {
				continue
			}
		}

		toRead := len(p) - total
		if int32(toRead) > c.left {
			toRead = int(c.left)
		}
		n, err := c.r.Read(p[total : total+toRead])
		total += n
		c.left -= int32(n)
		if err != nil {
			c.err = blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:chunkReader", err)
			return total, c.err
		}
	}
	return total, nil
}

// CopyChunked streams all of r to w using length-prefixed chunks no larger
// than TransferBufferSize, followed by the terminator. buf must be at least
// TransferBufferSize bytes; callers typically draw it from a buffer pool.
func CopyChunked(w io.Writer, r io.Reader, buf []byte) (int64, error) {
	if len(buf) > TransferBufferSize {
		buf = buf[:TransferBufferSize]
	}
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := WriteLength(w, int32(n)); werr != nil {
				return total, werr
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, blobcacheerr.New(blobcacheerr.KindIO, "wire:copyChunked", werr)
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, WriteTerminator(w)
		}
		if err != nil {
			return total, blobcacheerr.New(blobcacheerr.KindIO, "wire:copyChunked", err)
		}
	}
}

// WriteKeyTrailer writes the 20-byte key that concludes a put response.
func WriteKeyTrailer(w io.Writer, k blobkey.Key) error {
	return blobkey.Write(w, k)
}

// ReadKeyTrailerAndVerifyEOS reads the 20-byte key trailer and confirms
// nothing but EOS follows, per the put-trailer framing rule.
func ReadKeyTrailerAndVerifyEOS(r io.Reader) (blobkey.Key, error) {
	k, err := blobkey.Read(r)
	if err != nil {
		return k, err
	}
	var extra [1]byte
	n, err := r.Read(extra[:])
	if n > 0 {
		return k, blobcacheerr.New(blobcacheerr.KindProtocolViolation, "wire:readKeyTrailer", nil)
	}
	if err != nil && err != io.EOF {
		return k, blobcacheerr.New(blobcacheerr.KindIO, "wire:readKeyTrailer", err)
	}
	return k, nil
}

// WriteGetRequest writes the GET op byte and the requested key.
func WriteGetRequest(w io.Writer, k blobkey.Key) error {
	if err := WriteOp(w, OpGet); err != nil {
		return err
	}
	return blobkey.Write(w, k)
}

// WriteMiss writes the get-response status byte for a miss.
func WriteMiss(w io.Writer) error {
	if _, err := w.Write([]byte{StatusMiss}); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeMiss", err)
	}
	return nil
}

// WriteHit writes the get-response status byte announcing payload follows.
func WriteHit(w io.Writer) error {
	if _, err := w.Write([]byte{StatusHit}); err != nil {
		return blobcacheerr.New(blobcacheerr.KindIO, "wire:writeHit", err)
	}
	return nil
}

// ReadGetStatus reads the single status byte of a get response.
func ReadGetStatus(r io.Reader) (byte, error) {
	var b [1]byte
	n, err := io.ReadFull(r, b[:])
	if n == 0 {
		return 0, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:readGetStatus", err)
	}
	if err != nil {
		return 0, blobcacheerr.New(blobcacheerr.KindUnexpectedEOF, "wire:readGetStatus", err)
	}
	return b[0], nil
}
