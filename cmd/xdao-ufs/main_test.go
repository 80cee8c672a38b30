package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/ufs/hasher"
	"xdao.co/ufs/internal/vectors"
	"xdao.co/ufs/model"
)

const helloCID = "bafkreifzjut3te2nhyekklss27nh3k72ysco7y32koao5eei66wof36n5e"

// runCLI invokes the CLI in-process and returns exit code, stdout and stderr.
func runCLI(t *testing.T, stdin []byte, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(args, bytes.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestCLI_CID(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "hello.txt", []byte("hello world"))

	for _, args := range [][]string{
		{"cid", p},
		{"cid", "--batch", p},
		{"cid", "--parallel", "-1", p},
		{"cid", "-v", "--parallel", "2", p},
	} {
		code, out, _ := runCLI(t, nil, args...)
		require.Equal(t, 0, code, "%v", args)
		require.Equal(t, helloCID+"\n", out, "%v", args)
	}

	code, out, _ := runCLI(t, []byte("hello world"), "cid", "-")
	require.Equal(t, 0, code)
	require.Equal(t, helloCID+"\n", out)
}

func TestCLI_CIDUsageErrors(t *testing.T) {
	code, _, errOut := runCLI(t, nil, "cid")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "usage: xdao-ufs cid")

	code, _, _ = runCLI(t, nil, "cid", "--nope", "x")
	require.Equal(t, 2, code)

	code, _, errOut = runCLI(t, nil, "cid", filepath.Join(t.TempDir(), "missing"))
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "open input")
}

func TestCLI_Verify(t *testing.T) {
	p := writeFile(t, t.TempDir(), "hello.txt", []byte("hello world"))

	code, out, _ := runCLI(t, nil, "verify", "--cid", helloCID, p)
	require.Equal(t, 0, code)
	require.Equal(t, "OK "+helloCID+"\n", out)

	other := hasher.Sum([]byte("hello world!")).String()
	code, out, _ = runCLI(t, nil, "verify", "--cid", other, p)
	require.Equal(t, 1, code)
	require.Equal(t, "MISMATCH expected "+other+" got "+helloCID+"\n", out)

	code, out, _ = runCLI(t, nil, "verify", "--json", "--cid", helloCID, p)
	require.Equal(t, 0, code)
	var v model.Verification
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.True(t, v.Match)
	require.Equal(t, uint64(11), v.Length)

	code, _, errOut := runCLI(t, nil, "verify", "--cid", "not-a-cid", p)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, string(model.ErrInvalidCID))
}

func TestCLI_PutCatInspect(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "cas")
	data, err := vectors.Generate(vectors.FillMod251, 3*hasher.ChunkSize+17)
	require.NoError(t, err)
	p := writeFile(t, dir, "payload.bin", data)
	want := hasher.Sum(data).String()

	code, out, errOut := runCLI(t, nil, "put", "--localfs-dir", store, p)
	require.Equal(t, 0, code, errOut)
	require.Equal(t, want+"\n", out)

	code, out, errOut = runCLI(t, nil, "cat", "--localfs-dir", store, "--cid", want)
	require.Equal(t, 0, code, errOut)
	require.Equal(t, data, []byte(out))

	dst := filepath.Join(dir, "copy.bin")
	code, _, errOut = runCLI(t, nil, "cat", "--localfs-dir", store, "--cache", "8", "--cid", want, "--out", dst)
	require.Equal(t, 0, code, errOut)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, got)

	code, out, errOut = runCLI(t, nil, "inspect", "--localfs-dir", store, "--json", want)
	require.Equal(t, 0, code, errOut)
	var ins model.Inspection
	require.NoError(t, json.Unmarshal([]byte(out), &ins))
	require.Equal(t, want, ins.CID)
	require.Equal(t, uint64(len(data)), ins.Filesize)
	require.Len(t, ins.Links, 4)

	code, out, errOut = runCLI(t, nil, "inspect", "--localfs-dir", store, "--dag", "--json", want)
	require.Equal(t, 0, code, errOut)
	var sum model.DAGSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	require.Equal(t, 5, sum.Blocks)
	require.Equal(t, 4, sum.Leaves)
	require.Equal(t, uint64(len(data)), sum.Size)

	code, out, _ = runCLI(t, nil, "inspect", "--localfs-dir", store, want)
	require.Equal(t, 0, code)
	require.Contains(t, out, "filesize:  "+"786449")
}

func TestCLI_CatMissingBlock(t *testing.T) {
	store := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out.bin")
	code, _, errOut := runCLI(t, nil, "cat", "--localfs-dir", store, "--cid", helloCID, "--out", dst)
	require.Equal(t, 1, code)
	require.Contains(t, errOut, string(model.ErrNotFound))
	_, err := os.Stat(dst)
	require.True(t, os.IsNotExist(err), "no partial output")
}

func TestCLI_StoreRequiresDirectory(t *testing.T) {
	code, _, errOut := runCLI(t, []byte("x"), "put", "-")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "localfs-dir")

	code, _, errOut = runCLI(t, []byte("x"), "put", "--backend", "nope", "-")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, `unknown backend "nope"`)
}

func TestCLI_CASConfig(t *testing.T) {
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a"), filepath.Join(dir, "b")
	cfg := writeFile(t, dir, "cas.yaml", []byte(`write_policy: all
backends:
  - name: localfs
    id: a
    config:
      localfs-dir: `+a+`
  - name: localfs
    id: b
    config:
      localfs-dir: `+b+`
`))

	code, out, errOut := runCLI(t, []byte("hello world"), "put", "--cas-config", cfg, "-")
	require.Equal(t, 0, code, errOut)
	require.Equal(t, helloCID+"\n", out)

	for _, store := range []string{a, b} {
		code, out, errOut = runCLI(t, nil, "cat", "--localfs-dir", store, "--cid", helloCID)
		require.Equal(t, 0, code, errOut)
		require.Equal(t, "hello world", out)
	}
}

func TestCLI_BundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	data, err := vectors.Generate(vectors.FillMod251, 2*hasher.ChunkSize+1)
	require.NoError(t, err)
	p := writeFile(t, dir, "payload.bin", data)

	code, out, errOut := runCLI(t, nil, "put", "--localfs-dir", src, p)
	require.Equal(t, 0, code, errOut)
	root := strings.TrimSpace(out)

	bundlePath := filepath.Join(dir, "out.tar")
	code, _, errOut = runCLI(t, nil, "bundle", "export", "--localfs-dir", src, "--out", bundlePath, "--label", "payload="+root, root)
	require.Equal(t, 0, code, errOut)

	code, out, errOut = runCLI(t, nil, "bundle", "import", "--localfs-dir", dst, "--require-complete", bundlePath)
	require.Equal(t, 0, code, errOut)
	require.Equal(t, root+"\n", out)

	code, out, errOut = runCLI(t, nil, "cat", "--localfs-dir", dst, "--cid", root)
	require.Equal(t, 0, code, errOut)
	require.Equal(t, data, []byte(out))

	code, _, errOut = runCLI(t, nil, "bundle", "export", "--localfs-dir", src, "--out", bundlePath, "--label", "broken", root)
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "invalid --label")

	code, _, _ = runCLI(t, nil, "bundle", "frobnicate")
	require.Equal(t, 2, code)
}

func TestCLI_BackendsAndHelp(t *testing.T) {
	code, out, _ := runCLI(t, nil, "backends")
	require.Equal(t, 0, code)
	for _, name := range []string{"localfs", "ipfs", "grpc"} {
		require.Contains(t, out, name)
	}

	code, out, _ = runCLI(t, nil, "help")
	require.Equal(t, 0, code)
	require.Contains(t, out, "Usage:")

	code, _, errOut := runCLI(t, nil, "frobnicate")
	require.Equal(t, 2, code)
	require.Contains(t, errOut, "unknown command: frobnicate")

	code, _, _ = runCLI(t, nil)
	require.Equal(t, 2, code)
}
