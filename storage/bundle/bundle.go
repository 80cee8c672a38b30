// Package bundle moves DAGs between stores as deterministic TAR archives.
//
// Layout:
//
//	blocks/<cid>   one entry per distinct block, sorted by cid text
//	index.json     optional, non-authoritative: roots, block list, labels
package bundle

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagreader"
	"xdao.co/ufs/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

const (
	blocksDir = "blocks/"
	indexName = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

// ErrIncomplete is returned by ImportWithOptions when RequireComplete is set
// and a root listed in the index cannot be walked in the destination.
var ErrIncomplete = errors.New("bundle: incomplete dag")

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to ids.
	Labels map[string]cidutil.ID
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
	// BlocksOnly exports exactly the given ids instead of the full DAG
	// reachable from each.
	BlocksOnly bool
}

// Export writes a deterministic TAR bundle containing every block reachable
// from roots. The same set of blocks always yields the same bytes,
// independent of root order. Every exported block is validated against its id.
func Export(w io.Writer, cas storage.CAS, roots []cidutil.ID, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	blocks := make(map[cidutil.ID][]byte)
	for _, root := range roots {
		if !root.Defined() {
			return storage.ErrInvalidCID
		}
		if opts.BlocksOnly {
			b, err := cas.Get(root)
			if err != nil {
				return err
			}
			if err := storage.Verify(root, b); err != nil {
				return err
			}
			blocks[root] = b
			continue
		}
		err := dagreader.Walk(cas, root, func(b dagreader.Block) error {
			blocks[b.ID] = b.Data
			return nil
		})
		if err != nil {
			return fmt.Errorf("bundle: export %s: %w", root, err)
		}
	}

	ids := make([]cidutil.ID, 0, len(blocks))
	for id := range blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	var idx indexJSON
	if opts.IncludeIndex {
		var err error
		if idx, err = buildIndex(roots, ids, blocks, opts.Labels); err != nil {
			return err
		}
	}

	tw := tar.NewWriter(w)
	for _, id := range ids {
		if err := writeFile(tw, blocksDir+id.String(), blocks[id]); err != nil {
			_ = tw.Close()
			return err
		}
	}
	if opts.IncludeIndex {
		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, indexName, b); err != nil {
			_ = tw.Close()
			return err
		}
	}
	return tw.Close()
}

func buildIndex(roots, ids []cidutil.ID, blocks map[cidutil.ID][]byte, labels map[string]cidutil.ID) (indexJSON, error) {
	idx := indexJSON{
		Version:   FormatVersion,
		Multihash: "sha2-256",
		Blocks:    make([]indexBlock, 0, len(ids)),
	}

	rootSet := make(map[string]struct{}, len(roots))
	for _, r := range roots {
		rootSet[r.String()] = struct{}{}
	}
	for r := range rootSet {
		idx.Roots = append(idx.Roots, r)
	}
	sort.Strings(idx.Roots)

	for _, id := range ids {
		idx.Blocks = append(idx.Blocks, indexBlock{
			CID:   id.String(),
			Codec: id.Codec().String(),
			Size:  len(blocks[id]),
		})
	}

	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == "" {
				return idx, fmt.Errorf("bundle: empty label key")
			}
			v := labels[k]
			if !v.Defined() {
				return idx, storage.ErrInvalidCID
			}
			idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: v.String()})
		}
	}
	return idx, nil
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
	// RequireComplete walks every root named in index.json after import and
	// fails with ErrIncomplete if any block is missing from cas.
	RequireComplete bool
}

// Result describes an import.
type Result struct {
	// Blocks lists the imported ids in archive order.
	Blocks []cidutil.ID
	// Roots and Labels come from index.json when present.
	Roots  []cidutil.ID
	Labels map[string]cidutil.ID
}

// Import reads a bundle from r and imports all blocks into cas.
//
// Default behavior is fail-closed: unknown entries cause an error.
func Import(r io.Reader, cas storage.CAS) error {
	_, err := ImportWithOptions(r, cas, ImportOptions{})
	return err
}

// ImportWithOptions reads a bundle from r and imports all blocks into cas.
//
// Each entry name must be a canonical identifier and its bytes must hash to
// it under the codec the identifier carries.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) (Result, error) {
	var res Result
	if cas == nil {
		return res, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[cidutil.ID]struct{}{}
	var idx *indexJSON

	for {
		h, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return res, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			b, err := io.ReadAll(tr)
			if err != nil {
				return res, err
			}
			idx = new(indexJSON)
			if err := json.Unmarshal(b, idx); err != nil {
				return res, fmt.Errorf("bundle: index.json: %w", err)
			}
			continue
		}

		if !strings.HasPrefix(name, blocksDir) {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cidutil.Parse(strings.TrimPrefix(name, blocksDir))
		if err != nil {
			return res, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return res, err
		}
		if err := storage.Verify(id, payload); err != nil {
			return res, err
		}
		if _, ok := seen[id]; ok {
			return res, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[id] = struct{}{}

		putID, err := cas.Put(id.Codec(), payload)
		if err != nil {
			return res, err
		}
		if putID != id {
			return res, storage.ErrCIDMismatch
		}
		res.Blocks = append(res.Blocks, id)
	}

	if idx != nil {
		if err := idx.apply(&res); err != nil {
			return res, err
		}
	}
	if opts.RequireComplete {
		for _, root := range res.Roots {
			if err := dagreader.Walk(cas, root, func(dagreader.Block) error { return nil }); err != nil {
				return res, fmt.Errorf("%w: %s: %v", ErrIncomplete, root, err)
			}
		}
	}
	return res, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	Multihash string       `json:"multihash"`
	Roots     []string     `json:"roots,omitempty"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID   string `json:"cid"`
	Codec string `json:"codec"`
	Size  int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func (idx *indexJSON) apply(res *Result) error {
	if idx.Version != FormatVersion {
		return fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	for _, s := range idx.Roots {
		id, err := cidutil.Parse(s)
		if err != nil {
			return fmt.Errorf("bundle: index root: %w", err)
		}
		res.Roots = append(res.Roots, id)
	}
	for _, l := range idx.Labels {
		id, err := cidutil.Parse(l.CID)
		if err != nil {
			return fmt.Errorf("bundle: label %q: %w", l.Name, err)
		}
		if res.Labels == nil {
			res.Labels = make(map[string]cidutil.ID, len(idx.Labels))
		}
		res.Labels[l.Name] = id
	}
	return nil
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices, so encoding/json output is deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(content)
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
