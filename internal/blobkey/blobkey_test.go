package blobkey

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobrun/blobcache/internal/blobcacheerr"
)

func TestFromBytesRejectsWrongSize(t *testing.T) {
	_, err := FromBytes(make([]byte, 19))
	require.Error(t, err)
	assert.True(t, blobcacheerr.IsKind(err, blobcacheerr.KindInvalidKeySize))

	_, err = FromBytes(make([]byte, 21))
	require.Error(t, err)
}

func TestZeroKeyGetIsExpectedToMiss(t *testing.T) {
	var k Key
	assert.True(t, k.Zero())

	sum := sha1.Sum([]byte("not empty"))
	nonZero, err := FromBytes(sum[:])
	require.NoError(t, err)
	assert.False(t, nonZero.Zero())
}

func TestHexRoundTrip(t *testing.T) {
	sum := sha1.Sum([]byte("hello world"))
	k, err := FromBytes(sum[:])
	require.NoError(t, err)

	hexForm := k.Hex()
	assert.Len(t, hexForm, 40)

	parsed, err := ParseHex(hexForm)
	require.NoError(t, err)
	assert.Equal(t, k, parsed)
}

func TestCompareIsUnsignedLexicographic(t *testing.T) {
	lo, err := FromBytes(bytes.Repeat([]byte{0x00}, Size))
	require.NoError(t, err)
	hi, err := FromBytes(bytes.Repeat([]byte{0xff}, Size))
	require.NoError(t, err)

	assert.Equal(t, -1, lo.Compare(hi))
	assert.Equal(t, 1, hi.Compare(lo))
	assert.Equal(t, 0, lo.Compare(lo))
}

func TestWireRoundTrip(t *testing.T) {
	sum := sha1.Sum([]byte("wire round trip"))
	k, err := FromBytes(sum[:])
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, k))
	assert.Equal(t, Size, buf.Len())

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestReadFailsOnShortStream(t *testing.T) {
	_, err := Read(bytes.NewReader([]byte{1, 2, 3}))
	require.Error(t, err)
	assert.True(t, blobcacheerr.IsKind(err, blobcacheerr.KindUnexpectedEOF))
}

func TestKnownDigests(t *testing.T) {
	cases := []struct {
		data []byte
		hex  string
	}{
		{[]byte{}, "da39a3ee5e6b4b0d3255bfef95601890afd80709"},
		{[]byte{0x01, 0x02, 0x03}, "7037807198c22a7d2b0807371d763779a84fdfcf"},
	}
	for _, c := range cases {
		sum := sha1.Sum(c.data)
		k, err := FromBytes(sum[:])
		require.NoError(t, err)
		assert.Equal(t, c.hex, k.Hex())
	}
}
