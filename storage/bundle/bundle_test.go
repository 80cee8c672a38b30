package bundle_test

import (
	"archive/tar"
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagreader"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/internal/vectors"
	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/bundle"
	"xdao.co/ufs/storage/localfs"
)

func storeFile(t *testing.T, cas storage.CAS, n int) ([]byte, cidutil.ID) {
	t.Helper()
	data, err := vectors.Generate(vectors.FillMod251, n)
	require.NoError(t, err)
	root, err := hasher.SumWith(data, hasher.WithBlockSink(storage.BlockSink(cas)))
	require.NoError(t, err)
	return data, root
}

func tarNames(t *testing.T, b []byte) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(bytes.NewReader(b))
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names
		}
		require.NoError(t, err)
		names = append(names, h.Name)
	}
}

func TestBundle_ExportIsDeterministic(t *testing.T) {
	cas, err := localfs.New(t.TempDir())
	require.NoError(t, err)

	_, a := storeFile(t, cas, 2*hasher.ChunkSize+5)
	_, b := storeFile(t, cas, 7)

	var outA, outB bytes.Buffer
	opts := bundle.ExportOptions{IncludeIndex: true, Labels: map[string]cidutil.ID{"small": b, "big": a}}
	require.NoError(t, bundle.Export(&outA, cas, []cidutil.ID{b, a}, opts))
	require.NoError(t, bundle.Export(&outB, cas, []cidutil.ID{a, b, a}, opts))
	require.Equal(t, outA.Bytes(), outB.Bytes())

	names := tarNames(t, outA.Bytes())
	// root + three distinct leaves of the big file + the small raw file + index
	require.Len(t, names, 6)
	require.Equal(t, "index.json", names[len(names)-1])
	require.IsIncreasing(t, names[:len(names)-1])
}

func TestBundle_ImportRoundTrip(t *testing.T) {
	src := storage.NewMemCAS()
	data, root := storeFile(t, src, 3*hasher.ChunkSize+17)

	var buf bytes.Buffer
	require.NoError(t, bundle.Export(&buf, src, []cidutil.ID{root}, bundle.ExportOptions{
		IncludeIndex: true,
		Labels:       map[string]cidutil.ID{"payload": root},
	}))

	dst, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	res, err := bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{RequireComplete: true})
	require.NoError(t, err)
	require.Len(t, res.Blocks, 5)
	require.Equal(t, []cidutil.ID{root}, res.Roots)
	require.Equal(t, root, res.Labels["payload"])

	var out bytes.Buffer
	_, err = dagreader.Copy(&out, dst, root)
	require.NoError(t, err)
	require.Equal(t, data, out.Bytes())
}

func TestBundle_BlocksOnly(t *testing.T) {
	src := storage.NewMemCAS()
	_, root := storeFile(t, src, hasher.ChunkSize+1)

	var buf bytes.Buffer
	require.NoError(t, bundle.Export(&buf, src, []cidutil.ID{root}, bundle.ExportOptions{BlocksOnly: true, IncludeIndex: true}))
	require.Equal(t, []string{"blocks/" + root.String(), "index.json"}, tarNames(t, buf.Bytes()))

	dst := storage.NewMemCAS()
	_, err := bundle.ImportWithOptions(bytes.NewReader(buf.Bytes()), dst, bundle.ImportOptions{RequireComplete: true})
	require.ErrorIs(t, err, bundle.ErrIncomplete)
	require.True(t, dst.Has(root))
}

func TestBundle_ExportMissingBlock(t *testing.T) {
	err := bundle.Export(io.Discard, storage.NewMemCAS(), []cidutil.ID{cidutil.OfRaw([]byte("x"))}, bundle.ExportOptions{})
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = bundle.Export(io.Discard, storage.NewMemCAS(), []cidutil.ID{cidutil.Undef}, bundle.ExportOptions{})
	require.ErrorIs(t, err, storage.ErrInvalidCID)
}

func TestBundle_ImportRejectsCIDMismatch(t *testing.T) {
	good := []byte("good")
	other := cidutil.OfRaw([]byte("other"))

	// Name says "other" but bytes are "good".
	err := bundle.Import(bytes.NewReader(makeDeterministicTar(t, "blocks/"+other.String(), good)), storage.NewMemCAS())
	require.ErrorIs(t, err, storage.ErrCIDMismatch)

	// Right digest, wrong codec.
	asNode := cidutil.OfNode(good)
	err = bundle.Import(bytes.NewReader(makeDeterministicTar(t, "blocks/"+asNode.String(), good)), storage.NewMemCAS())
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestBundle_ImportRejectsBadEntries(t *testing.T) {
	for name, entry := range map[string]string{
		"non-canonical id": "blocks/BAFKREI",
		"unknown entry":    "notes.txt",
		"traversal":        "blocks/../x",
	} {
		t.Run(name, func(t *testing.T) {
			err := bundle.Import(bytes.NewReader(makeDeterministicTar(t, entry, []byte("x"))), storage.NewMemCAS())
			require.Error(t, err)
		})
	}

	_, err := bundle.ImportWithOptions(
		bytes.NewReader(makeDeterministicTar(t, "notes.txt", []byte("x"))),
		storage.NewMemCAS(),
		bundle.ImportOptions{IgnoreUnknown: true})
	require.NoError(t, err)
}

func makeDeterministicTar(t *testing.T, name string, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	h := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  time.Unix(0, 0).UTC(),
		Typeflag: tar.TypeReg,
	}
	require.NoError(t, tw.WriteHeader(h))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return buf.Bytes()
}
