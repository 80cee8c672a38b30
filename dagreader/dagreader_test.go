package dagreader

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/internal/vectors"
	"xdao.co/ufs/storage"
)

func store(t *testing.T, data []byte) (*storage.MemCAS, cidutil.ID) {
	t.Helper()
	cas := storage.NewMemCAS()
	root, err := hasher.SumWith(data, hasher.WithBlockSink(storage.BlockSink(cas)))
	require.NoError(t, err)
	return cas, root
}

func TestCopy_RoundTrip(t *testing.T) {
	for _, n := range []int{0, 11, hasher.ChunkSize, hasher.ChunkSize + 1, 3*hasher.ChunkSize + 17} {
		data, err := vectors.Generate(vectors.FillMod251, n)
		require.NoError(t, err)
		cas, root := store(t, data)

		var out bytes.Buffer
		written, err := Copy(&out, cas, root)
		require.NoError(t, err)
		require.Equal(t, int64(n), written)
		require.Equal(t, data, out.Bytes())

		size, err := Size(cas, root)
		require.NoError(t, err)
		require.Equal(t, uint64(n), size)
	}
}

func TestCopy_MissingBlock(t *testing.T) {
	data, err := vectors.Generate(vectors.FillMod251, 2*hasher.ChunkSize+1)
	require.NoError(t, err)
	full, root := store(t, data)

	// Copy everything except the second leaf.
	partial := storage.NewMemCAS()
	missing := cidutil.OfRaw(data[hasher.ChunkSize : 2*hasher.ChunkSize])
	require.NoError(t, Walk(full, root, func(b Block) error {
		if b.ID == missing {
			return nil
		}
		_, err := partial.Put(b.ID.Codec(), b.Data)
		return err
	}))

	var out bytes.Buffer
	written, err := Copy(&out, partial, root)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.Equal(t, int64(hasher.ChunkSize), written, "bytes before the gap are still written")
}

func TestCopy_RejectsInconsistentSizes(t *testing.T) {
	cas := storage.NewMemCAS()
	leaf, err := cas.Put(cidutil.Raw, []byte("abc"))
	require.NoError(t, err)

	n := &dagpb.Node{}
	n.AddChild(4, leaf, 3)
	root, err := cas.Put(cidutil.DagNode, n.Marshal())
	require.NoError(t, err)

	_, err = Copy(&bytes.Buffer{}, cas, root)
	require.ErrorIs(t, err, ErrInvalidDAG)
}

func TestCopy_RejectsMalformedNode(t *testing.T) {
	cas := storage.NewMemCAS()
	root, err := cas.Put(cidutil.DagNode, []byte("not protobuf"))
	require.NoError(t, err)
	_, err = Copy(&bytes.Buffer{}, cas, root)
	require.ErrorIs(t, err, dagpb.ErrMalformedNode)

	_, err = Copy(&bytes.Buffer{}, cas, cidutil.Undef)
	require.ErrorIs(t, err, storage.ErrInvalidCID)
}

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, errors.New("closed pipe") }

func TestCopy_WriterError(t *testing.T) {
	cas, root := store(t, []byte("hello"))
	_, err := Copy(errWriter{}, cas, root)
	require.ErrorContains(t, err, "closed pipe")
}

func TestWalk_PreOrderAndDedup(t *testing.T) {
	data := make([]byte, 3*hasher.ChunkSize+1)
	cas, root := store(t, data)

	var visited []Block
	require.NoError(t, Walk(cas, root, func(b Block) error {
		visited = append(visited, b)
		return nil
	}))
	require.Len(t, visited, 3)
	require.Equal(t, root, visited[0].ID)
	require.NotNil(t, visited[0].Node)
	require.Equal(t, 0, visited[0].Depth)
	require.Equal(t, cidutil.OfRaw(make([]byte, hasher.ChunkSize)), visited[1].ID)
	require.Equal(t, cidutil.OfRaw([]byte{0}), visited[2].ID)
	require.Equal(t, 1, visited[2].Depth)

	stop := errors.New("stop")
	calls := 0
	err := Walk(cas, root, func(Block) error { calls++; return stop })
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestStat(t *testing.T) {
	data, err := vectors.Generate(vectors.FillMod251, 3*hasher.ChunkSize+17)
	require.NoError(t, err)
	cas, root := store(t, data)

	st, err := Stat(cas, root)
	require.NoError(t, err)
	require.Equal(t, root, st.Root)
	require.Equal(t, uint64(len(data)), st.Size)
	require.Equal(t, 5, st.Blocks)
	require.Equal(t, 4, st.Leaves)
	require.Equal(t, 1, st.Nodes)
	require.Equal(t, 1, st.Depth)

	raw, err := cas.Put(cidutil.Raw, []byte("tiny"))
	require.NoError(t, err)
	st, err = Stat(cas, raw)
	require.NoError(t, err)
	require.Equal(t, Stats{Root: raw, Size: 4, Blocks: 1, Leaves: 1, StoredBytes: 4}, st)
}
