package hasher

import (
	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
)

// Builder computes the identifier of a payload delivered in pieces.
//
// Chunk boundaries always fall at multiples of ChunkSize from the start of
// the stream, and chunks are grouped positionally, so the result equals
// Sum of the concatenated writes however they were sliced.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	cfg config

	// buf holds the tail of the stream; it is only flushed as a leaf once
	// more bytes arrive, so a stream of exactly one chunk stays a raw leaf.
	buf []byte
	// levels[k] is the open node at height k+1: levels[0] collects leaves,
	// levels[k] collects sealed levels[k-1] nodes.
	levels []*dagpb.Node
	n      uint64

	root cidutil.ID
	done bool
	err  error
}

// New returns an empty Builder. WithStrategy is ignored.
func New(opts ...Option) *Builder {
	b := &Builder{cfg: newConfig(opts)}
	b.cfg.strategy = Sequential
	b.buf = make([]byte, 0, b.cfg.layout.chunkSize)
	return b
}

// Len reports the number of bytes consumed so far.
func (b *Builder) Len() uint64 { return b.n }

// Write consumes p. It fails only after Finalize or when the block sink
// fails; the first sink error is sticky.
func (b *Builder) Write(p []byte) (int, error) {
	if b.done {
		return 0, ErrFinalized
	}
	if b.err != nil {
		return 0, b.err
	}
	cs := b.cfg.layout.chunkSize
	consumed := 0
	for len(b.buf)+len(p) > cs {
		var err error
		if len(b.buf) == 0 {
			err = b.sealLeaf(p[:cs])
			p = p[cs:]
			consumed += cs
		} else {
			k := cs - len(b.buf)
			b.buf = append(b.buf, p[:k]...)
			p = p[k:]
			consumed += k
			err = b.sealLeaf(b.buf)
			b.buf = b.buf[:0]
		}
		if err != nil {
			b.err = err
			b.n += uint64(consumed)
			return consumed, err
		}
	}
	b.buf = append(b.buf, p...)
	consumed += len(p)
	b.n += uint64(consumed)
	return consumed, nil
}

// Finalize seals the remaining state and returns the root identifier.
// Calling it again returns the same result.
func (b *Builder) Finalize() (cidutil.ID, error) {
	if b.done {
		return b.root, b.err
	}
	b.done = true
	if b.err != nil {
		return cidutil.Undef, b.err
	}
	id, err := b.finalize()
	b.root, b.err = id, err
	b.buf, b.levels = nil, nil
	return id, err
}

// Reset discards all state so b can hash a new payload with the same options.
func (b *Builder) Reset() {
	b.buf = make([]byte, 0, b.cfg.layout.chunkSize)
	b.levels = nil
	b.n = 0
	b.root = cidutil.Undef
	b.done = false
	b.err = nil
}

func (b *Builder) finalize() (cidutil.ID, error) {
	if len(b.levels) == 0 {
		s, err := b.cfg.leaf(b.buf)
		if err != nil {
			return cidutil.Undef, err
		}
		return s.ID, nil
	}
	if len(b.buf) > 0 {
		if err := b.sealLeaf(b.buf); err != nil {
			return cidutil.Undef, err
		}
		b.buf = b.buf[:0]
	}
	// A partial node at every level below the top still belongs to its parent.
	for k := 0; k < len(b.levels)-1; k++ {
		if b.levels[k].Len() == 0 {
			continue
		}
		if err := b.seal(k); err != nil {
			return cidutil.Undef, err
		}
	}
	top := len(b.levels) - 1
	s, err := b.cfg.node(b.levels[top], top+1)
	if err != nil {
		return cidutil.Undef, err
	}
	return s.ID, nil
}

func (b *Builder) sealLeaf(chunk []byte) error {
	s, err := b.cfg.leaf(chunk)
	if err != nil {
		return err
	}
	return b.push(0, s)
}

// push appends s to levels[level]. Before a new leaf is added every full
// level is sealed into its parent, lowest first, like carrying in a
// base-maxLinks counter; afterwards no level holds more than maxLinks-1
// links, so the leaf and any later flush always fit.
func (b *Builder) push(level int, s Span) error {
	if level == 0 {
		for k := 0; k < len(b.levels); k++ {
			if b.levels[k].Len() < b.cfg.layout.maxLinks {
				continue
			}
			if err := b.seal(k); err != nil {
				return err
			}
		}
	}
	for len(b.levels) <= level {
		b.levels = append(b.levels, &dagpb.Node{})
	}
	return addChild(b.levels[level], s)
}

// seal hashes levels[k], empties it and links the result into levels[k+1].
func (b *Builder) seal(k int) error {
	s, err := b.cfg.node(b.levels[k], k+1)
	if err != nil {
		return err
	}
	b.levels[k].Reset()
	return b.push(k+1, s)
}
