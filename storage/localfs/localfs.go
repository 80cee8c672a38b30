package localfs

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
)

// CAS is a local filesystem-backed block store.
//
// Blocks are stored immutably (mode 0444) under <root>/<shard>/<cid>, where
// shard is the last two characters of the text identifier; the first
// characters are shared by every id of the same codec.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New constructs a filesystem CAS rooted at root. The directory will be created if needed.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &CAS{root: root}, nil
}

// Root is the directory blocks are stored under.
func (c *CAS) Root() string { return c.root }

func (c *CAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	id, err := storage.IDFor(codec, data)
	if err != nil {
		return cidutil.Undef, err
	}

	path := c.pathFor(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cidutil.Undef, err
	}

	// Write to a temp file and link it into place so a crash never leaves a
	// truncated block under its final name.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return cidutil.Undef, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cidutil.Undef, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cidutil.Undef, err
	}
	if err := tmp.Close(); err != nil {
		return cidutil.Undef, err
	}
	if err := os.Chmod(tmpName, 0o444); err != nil {
		return cidutil.Undef, err
	}

	if err := os.Link(tmpName, path); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return cidutil.Undef, err
		}
		existing, rerr := os.ReadFile(path)
		if rerr != nil || !bytes.Equal(existing, data) {
			// Present but unreadable or different: never repair in place.
			return cidutil.Undef, storage.ErrImmutable
		}
	}
	return id, nil
}

func (c *CAS) Get(id cidutil.ID) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *CAS) Has(id cidutil.ID) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

// List returns every stored id in ascending order. Files whose names are not
// canonical identifiers are skipped.
func (c *CAS) List() ([]cidutil.ID, error) {
	var out []cidutil.ID
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		id, perr := cidutil.Parse(d.Name())
		if perr != nil {
			return nil
		}
		out = append(out, id)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("localfs: list: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out, nil
}

func (c *CAS) pathFor(id cidutil.ID) string {
	s := id.String()
	return filepath.Join(c.root, s[len(s)-2:], s)
}
