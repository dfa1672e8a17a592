package datastream

import (
	"bytes"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterStringLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.String("AB")
	require.NoError(t, w.Err())
	require.Equal(t, []byte{0, 0, 0, 4, 0, 'A', 0, 'B'}, buf.Bytes())
	require.EqualValues(t, 8, w.Written())
}

func TestWriterBigEndianFloat(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Float32(1)
	w.Uint16(0x0102)
	require.NoError(t, w.Err())
	require.Equal(t, []byte{0x3f, 0x80, 0, 0, 0x01, 0x02}, buf.Bytes())
}

func TestReaderNullString(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0, 7}))
	require.Equal(t, "", r.String())
	require.EqualValues(t, 7, r.Uint16())
	require.NoError(t, r.Err())
}

func TestReaderNonASCIIString(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.String("réseau ∑")
	w.Int32(-5)
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	require.Equal(t, "réseau ∑", r.String())
	require.EqualValues(t, -5, r.Int32())
	require.NoError(t, r.Err())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 1}))
	_ = r.Uint32()
	require.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
	require.EqualValues(t, 0, r.Uint8())
	require.True(t, errors.Is(r.Err(), io.ErrUnexpectedEOF))
}

func TestReaderRejectsOversizedString(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x7f, 0xff, 0xff, 0xfe}))
	require.Equal(t, "", r.String())
	require.ErrorIs(t, r.Err(), ErrStringTooLong)
}

func TestReaderTruncatedStringAllocatesOnlyWhatArrives(t *testing.T) {
	data := []byte{0x00, 0x10, 0x00, 0x00, 0, 'a'}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	r := NewReader(bytes.NewReader(data))
	require.Equal(t, "", r.String())
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, r.Err(), io.ErrUnexpectedEOF)
	require.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(MaxStringBytes/4))
}
