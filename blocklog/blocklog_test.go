package blocklog

import (
	"errors"
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-dawn-chain/inter"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "blocklog")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func makeChain(n int) []*inter.SignedBlock {
	blocks := make([]*inter.SignedBlock, 0, n)
	prev := inter.BlockID{}
	for i := 0; i < n; i++ {
		b := &inter.SignedBlock{}
		b.Previous = prev
		b.Timestamp = inter.Timestamp(1000 * (i + 1))
		b.Producer = "producer0"
		prev = b.ID()
		blocks = append(blocks, b)
	}
	return blocks
}

func TestAppendAndRead(t *testing.T) {
	require := require.New(t)

	dir := tempDir(t)
	l, err := Open(dir, false)
	require.NoError(err)
	defer l.Close()

	require.Nil(l.Head())

	blocks := makeChain(3)
	for _, b := range blocks {
		require.NoError(l.Append(b))
	}
	require.Equal(uint32(3), l.Head().Num())

	for i, b := range blocks {
		got, err := l.ReadBlockByNum(uint32(i + 1))
		require.NoError(err)
		require.NotNil(got)
		require.Equal(b.ID(), got.ID())

		got, err = l.ReadBlockByID(b.ID())
		require.NoError(err)
		require.NotNil(got)
		require.Equal(uint32(i+1), got.Num())
	}

	missing, err := l.ReadBlockByNum(4)
	require.NoError(err)
	require.Nil(missing)
}

func TestAppendOutOfOrder(t *testing.T) {
	require := require.New(t)

	l, err := Open(tempDir(t), false)
	require.NoError(err)
	defer l.Close()

	blocks := makeChain(3)
	require.NoError(l.Append(blocks[0]))

	err = l.Append(blocks[2]) // skips number 2
	require.True(errors.Is(err, ErrAppendOutOfOrder))

	err = l.Append(blocks[0]) // rewrite of an existing entry
	require.True(errors.Is(err, ErrAppendOutOfOrder))
}

func TestReopenRebuildsIndex(t *testing.T) {
	require := require.New(t)

	dir := tempDir(t)
	l, err := Open(dir, false)
	require.NoError(err)

	blocks := makeChain(5)
	for _, b := range blocks {
		require.NoError(l.Append(b))
	}
	require.NoError(l.Close())

	reopened, err := Open(dir, false)
	require.NoError(err)
	defer reopened.Close()

	head, err := reopened.ReadHead()
	require.NoError(err)
	require.Equal(blocks[4].ID(), head.ID())

	got, err := reopened.ReadBlockByID(blocks[2].ID())
	require.NoError(err)
	require.Equal(uint32(3), got.Num())

	// appending continues from the rebuilt head
	next := &inter.SignedBlock{}
	next.Previous = blocks[4].ID()
	next.Timestamp = 6000
	require.NoError(reopened.Append(next))
	require.Equal(uint32(6), reopened.Head().Num())
}

func TestReadOnly(t *testing.T) {
	require := require.New(t)

	dir := tempDir(t)
	l, err := Open(dir, false)
	require.NoError(err)
	require.NoError(l.Append(makeChain(1)[0]))
	require.NoError(l.Close())

	ro, err := Open(dir, true)
	require.NoError(err)
	defer ro.Close()

	require.True(ro.IsReadOnly())
	require.Error(ro.Append(makeChain(2)[1]))
	require.Equal(uint32(1), ro.Head().Num())
}
