package bits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundtrip(t *testing.T) {
	require := require.New(t)

	arr := &Array{Bytes: make([]byte, 0, 8)}
	w := NewWriter(arr)

	w.Write(3, 0b101)
	w.Write(1, 1)
	w.Write(7, 0b1011011) // spills across the byte boundary
	w.Write(5, 0b10001)
	w.Write(16, 0xbeef)

	r := NewReader(arr)
	require.Equal(uint(0b101), r.Read(3))
	require.Equal(uint(1), r.Read(1))
	require.Equal(uint(0b1011011), r.Read(7))
	require.Equal(uint(0b10001), r.Read(5))
	require.Equal(uint(0xbeef), r.Read(16))
}

func TestReadZeroBits(t *testing.T) {
	arr := &Array{Bytes: []byte{0xff}}
	r := NewReader(arr)
	require.Equal(t, uint(0), r.Read(0))
	require.Equal(t, uint(0xff), r.Read(8))
}

func TestView(t *testing.T) {
	require := require.New(t)

	arr := &Array{}
	w := NewWriter(arr)
	w.Write(8, 0xa5)

	r := NewReader(arr)
	require.Equal(uint(0xa5), r.View(8))
	// View must not advance the cursor
	require.Equal(uint(0xa5), r.Read(8))
}

func TestNonReadCounters(t *testing.T) {
	require := require.New(t)

	arr := &Array{}
	w := NewWriter(arr)
	w.Write(12, 0xfff)

	r := NewReader(arr)
	require.Equal(2, r.NonReadBytes())
	require.Equal(16, r.NonReadBits())

	r.Read(4)
	require.Equal(2, r.NonReadBytes())
	require.Equal(12, r.NonReadBits())

	r.Read(4)
	require.Equal(1, r.NonReadBytes())
	require.Equal(8, r.NonReadBits())
}
