package storage

import (
	"sync"

	"xdao.co/ufs/cidutil"
)

// MemCAS is an in-memory CAS. The zero value is ready to use.
type MemCAS struct {
	mu     sync.RWMutex
	blocks map[cidutil.ID][]byte
}

var _ CAS = (*MemCAS)(nil)

func NewMemCAS() *MemCAS { return &MemCAS{} }

func (m *MemCAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	id, err := IDFor(codec, data)
	if err != nil {
		return cidutil.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocks == nil {
		m.blocks = make(map[cidutil.ID][]byte)
	}
	if _, ok := m.blocks[id]; !ok {
		m.blocks[id] = append([]byte(nil), data...)
	}
	return id, nil
}

func (m *MemCAS) Get(id cidutil.ID) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.blocks[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemCAS) Has(id cidutil.ID) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocks[id]
	return ok
}

// Len reports the number of stored blocks.
func (m *MemCAS) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blocks)
}
