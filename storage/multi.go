package storage

import (
	"errors"

	"xdao.co/ufs/cidutil"
)

// MultiCAS provides deterministic, ordered fallback across multiple CAS adapters.
//
// Reads try Adapters in slice order; callers MUST supply a fixed order.
// Put writes only to the first adapter.
type MultiCAS struct {
	Adapters []CAS
}

var _ CAS = MultiCAS{}

func (m MultiCAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	if len(m.Adapters) == 0 {
		return cidutil.Undef, errors.New("storage: MultiCAS has no adapters")
	}
	return m.Adapters[0].Put(codec, data)
}

func (m MultiCAS) Get(id cidutil.ID) ([]byte, error) {
	return getFirst(id, m.Adapters)
}

func (m MultiCAS) Has(id cidutil.ID) bool {
	for _, cas := range m.Adapters {
		if cas.Has(id) {
			return true
		}
	}
	return false
}

// getFirst returns the first successful read. Not-found falls through to the
// next backend; any other error stops the search.
func getFirst(id cidutil.ID, backends []CAS) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	for _, cas := range backends {
		if cas == nil {
			continue
		}
		b, err := cas.Get(id)
		if err == nil {
			return b, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}
