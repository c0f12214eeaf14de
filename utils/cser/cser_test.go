package cser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerRoundtrip(t *testing.T) {
	require := require.New(t)

	values64 := []uint64{0, 1, 0x7f, 0x80, 0xff, 0x100, math.MaxUint32, math.MaxUint64}

	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U8(0xa5)
		w.U16(0xbeef)
		w.U32(0xdeadbeef)
		for _, v := range values64 {
			w.U64(v)
		}
		w.Bool(true)
		w.Bool(false)
		w.U56(12345)
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		require.Equal(uint8(0xa5), r.U8())
		require.Equal(uint16(0xbeef), r.U16())
		require.Equal(uint32(0xdeadbeef), r.U32())
		for _, v := range values64 {
			require.Equal(v, r.U64())
		}
		require.True(r.Bool())
		require.False(r.Bool())
		require.Equal(uint64(12345), r.U56())
		return nil
	})
	require.NoError(err)
}

func TestSliceBytesRoundtrip(t *testing.T) {
	require := require.New(t)

	payloads := [][]byte{
		{},
		{0x01},
		{0x00, 0x00, 0x00},
		[]byte("hello dawn"),
	}
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		for _, p := range payloads {
			w.SliceBytes(p)
		}
		return nil
	})
	require.NoError(err)

	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		for _, p := range payloads {
			require.Equal(p, r.SliceBytes(1024))
		}
		return nil
	})
	require.NoError(err)
}

func TestMalformedInput(t *testing.T) {
	require := require.New(t)

	err := UnmarshalBinaryAdapter([]byte{}, func(r *Reader) error {
		return nil
	})
	require.Error(err)

	// truncated payload: reader asks for more than is available
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U8(1)
		return nil
	})
	require.NoError(err)
	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		r.U8()
		r.U64() // not present
		return nil
	})
	require.Error(err)
}

func TestNonCanonicalInputRejected(t *testing.T) {
	require := require.New(t)

	// leftover unread body bytes make the encoding non-canonical
	raw, err := MarshalBinaryAdapter(func(w *Writer) error {
		w.U8(1)
		w.U8(2)
		return nil
	})
	require.NoError(err)
	err = UnmarshalBinaryAdapter(raw, func(r *Reader) error {
		r.U8()
		return nil
	})
	require.Equal(ErrNonCanonicalEncoding, err)
}

func TestPaddedBytes(t *testing.T) {
	require := require.New(t)
	require.Equal([]byte{0, 0, 1}, PaddedBytes([]byte{1}, 3))
	require.Equal([]byte{1, 2, 3}, PaddedBytes([]byte{1, 2, 3}, 2))
}
