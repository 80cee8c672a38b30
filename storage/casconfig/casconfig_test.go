package casconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/casregistry"
	_ "xdao.co/ufs/storage/localfs"
)

func TestParse_YAMLAndJSON(t *testing.T) {
	y := []byte(`
write_policy: all
cache_entries: 16
backends:
  - name: localfs
    id: primary
    config: {localfs-dir: /tmp/a}
  - name: localfs
    id: mirror
    config:
      localfs-dir: /tmp/b
`)
	cfg, err := Parse(y)
	require.NoError(t, err)
	require.Equal(t, "all", cfg.WritePolicy)
	require.Equal(t, 16, cfg.CacheEntries)
	require.Len(t, cfg.Backends, 2)
	require.Equal(t, "/tmp/b", cfg.Backends[1].Config["localfs-dir"])

	j := []byte(`{"backends":[{"name":"localfs","config":{"localfs-dir":"/tmp/x"}}]}`)
	cfg, err = Parse(j)
	require.NoError(t, err)
	require.Equal(t, "localfs", cfg.Backends[0].Name)
}

func TestParse_Rejects(t *testing.T) {
	for name, doc := range map[string]string{
		"no backends":   `write_policy: first`,
		"unknown key":   "backends: [{name: localfs}]\nretries: 3",
		"bad policy":    "write_policy: some\nbackends: [{name: localfs}]",
		"duplicate ids": "backends: [{name: localfs}, {name: localfs}]",
		"missing name":  "backends: [{id: x}]",
		"negative":      "cache_entries: -1\nbackends: [{name: localfs}]",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestOpen_ReplicatesToAllBackends(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	cfg, err := LoadFile(writeConfig(t, `
write_policy: all
backends:
  - {name: localfs, id: a, config: {localfs-dir: `+a+`}}
  - {name: localfs, id: b, config: {localfs-dir: `+b+`}}
`))
	require.NoError(t, err)

	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "")
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, storage.ReplicatingCAS{}, cas)

	id, err := cas.Put(cidutil.DagNode, []byte("node"))
	require.NoError(t, err)

	for _, dir := range []string{a, b} {
		one, _, err := casregistry.OpenWithConfig("localfs", casregistry.UsageCLI, map[string]string{"localfs-dir": dir})
		require.NoError(t, err)
		require.True(t, one.Has(id), dir)
	}
}

func TestOpen_PreferredBackendAndCache(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	cfg := Config{
		CacheEntries: 8,
		Backends: []BackendConfig{
			{Name: "localfs", ID: "a", Config: map[string]string{"localfs-dir": a}},
			{Name: "localfs", ID: "b", Config: map[string]string{"localfs-dir": b}},
		},
	}
	cas, closeFn, err := cfg.Open(casregistry.UsageCLI, "b")
	require.NoError(t, err)
	defer closeFn()
	require.IsType(t, &storage.CachedCAS{}, cas)

	id, err := cas.Put(cidutil.Raw, []byte("leaf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(b, id.String()[len(id.String())-2:], id.String()))
	require.NoError(t, err, "write goes to the preferred backend")
	_, err = os.Stat(filepath.Join(a, id.String()[len(id.String())-2:], id.String()))
	require.True(t, os.IsNotExist(err))

	_, _, err = cfg.Open(casregistry.UsageCLI, "zzz")
	require.Error(t, err)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := Config{Backends: []BackendConfig{{Name: "nope"}}}
	_, _, err := cfg.Open(casregistry.UsageCLI, "")
	require.ErrorContains(t, err, "unknown backend")
}
