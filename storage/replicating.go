package storage

import (
	"fmt"

	"xdao.co/ufs/cidutil"
)

// NamedCAS associates a CAS with a stable backend name.
type NamedCAS struct {
	Name string
	CAS  CAS
}

// ReplicatingCAS writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require every
// returned ID to match the locally derived one (otherwise ErrCIDMismatch).
type ReplicatingCAS struct {
	Backends []NamedCAS
}

var _ CAS = ReplicatingCAS{}

// PutAll writes the same block to all backends.
//
// It returns the ID derived from codec and data, and a map of backend name
// to the ID that backend reported. The map is partial on error.
func (r ReplicatingCAS) PutAll(codec cidutil.Codec, data []byte) (cidutil.ID, map[string]cidutil.ID, error) {
	want, err := IDFor(codec, data)
	if err != nil {
		return cidutil.Undef, nil, err
	}
	if len(r.Backends) == 0 {
		return cidutil.Undef, nil, fmt.Errorf("storage: ReplicatingCAS has no backends")
	}

	out := make(map[string]cidutil.ID, len(r.Backends))
	for _, b := range r.Backends {
		if b.CAS == nil {
			return cidutil.Undef, out, fmt.Errorf("storage: nil CAS for backend %q", b.Name)
		}
		got, err := b.CAS.Put(codec, data)
		if err != nil {
			return cidutil.Undef, out, fmt.Errorf("storage: backend %q: %w", b.Name, err)
		}
		out[b.Name] = got
		if got != want {
			return cidutil.Undef, out, fmt.Errorf("%w: backend %q returned %s", ErrCIDMismatch, b.Name, got)
		}
	}
	return want, out, nil
}

func (r ReplicatingCAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	id, _, err := r.PutAll(codec, data)
	return id, err
}

func (r ReplicatingCAS) Get(id cidutil.ID) ([]byte, error) {
	backends := make([]CAS, 0, len(r.Backends))
	for _, b := range r.Backends {
		backends = append(backends, b.CAS)
	}
	return getFirst(id, backends)
}

func (r ReplicatingCAS) Has(id cidutil.ID) bool {
	for _, b := range r.Backends {
		if b.CAS != nil && b.CAS.Has(id) {
			return true
		}
	}
	return false
}
