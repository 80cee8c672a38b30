package hasher

import (
	"fmt"
	"io"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
)

// Sum returns the identifier of data. It is pure and safe for concurrent use.
func Sum(data []byte) cidutil.ID {
	id, err := SumWith(data)
	if err != nil {
		// Without a sink the only failure is a length overflow, which an
		// in-memory slice cannot reach.
		panic(fmt.Sprintf("hasher: %v", err))
	}
	return id
}

// SumWith is Sum with options. It fails only when a block sink fails.
func SumWith(data []byte, opts ...Option) (cidutil.ID, error) {
	c := newConfig(opts)
	s, err := c.sum(data)
	if err != nil {
		return cidutil.Undef, err
	}
	return s.ID, nil
}

// SumReader streams r through a Builder and returns the identifier.
func SumReader(r io.Reader, opts ...Option) (cidutil.ID, uint64, error) {
	b := New(opts...)
	if _, err := io.Copy(b, r); err != nil {
		return cidutil.Undef, b.Len(), err
	}
	id, err := b.Finalize()
	return id, b.Len(), err
}

func (c *config) sum(data []byte) (Span, error) {
	l := c.layout
	if len(data) <= l.chunkSize {
		return c.leaf(data)
	}
	chunks := (len(data) + l.chunkSize - 1) / l.chunkSize
	level, capacity := 1, l.maxLinks
	for capacity < chunks {
		capacity *= l.maxLinks
		level++
	}
	return c.dag(data, level)
}

// dag hashes data as a subtree of the given height. Level 1 nodes hand
// their chunks to the strategy; higher levels recurse over slices of
// chunkSize*maxLinks^(level-1) bytes.
func (c *config) dag(data []byte, level int) (Span, error) {
	if level == 0 {
		return c.leaf(data)
	}
	l := c.layout
	step := l.chunkSize
	for i := 1; i < level; i++ {
		step *= l.maxLinks
	}
	count := (len(data) + step - 1) / step
	spans := make([]Span, count)

	slice := func(i int) []byte {
		lo := i * step
		return data[lo:min(lo+step, len(data))]
	}

	var err error
	if level == 1 {
		err = c.strategy.forEach(count, func(i int) error {
			s, err := c.leaf(slice(i))
			spans[i] = s
			return err
		})
	} else {
		for i := range spans {
			if spans[i], err = c.dag(slice(i), level-1); err != nil {
				break
			}
		}
	}
	if err != nil {
		return Span{}, err
	}

	n := &dagpb.Node{
		Blocksizes: make([]uint64, 0, count),
		Links:      make([]dagpb.Link, 0, count),
	}
	for _, s := range spans {
		if err := addChild(n, s); err != nil {
			return Span{}, err
		}
	}
	return c.node(n, level)
}
