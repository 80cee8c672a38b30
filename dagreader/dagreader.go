// Package dagreader reads payloads and block graphs back out of a
// storage.CAS. Every block is checked against its identifier before use.
package dagreader

import (
	"errors"
	"fmt"
	"io"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
	"xdao.co/ufs/storage"
)

// ErrInvalidDAG reports a graph whose blocks are individually valid but
// inconsistent with each other (sizes that do not add up).
var ErrInvalidDAG = errors.New("dagreader: invalid dag")

// Block is one verified block of a DAG.
type Block struct {
	ID   cidutil.ID
	Data []byte
	// Node is the decoded node, or nil for a raw leaf.
	Node *dagpb.Node
	// Depth is 0 for the root.
	Depth int
}

// WalkFunc is called once per distinct block.
type WalkFunc func(b Block) error

// Walk visits every block reachable from root in pre-order, children in
// link order. A block referenced more than once is visited only the first
// time. Walk stops at the first error from cas or fn.
func Walk(cas storage.CAS, root cidutil.ID, fn WalkFunc) error {
	seen := make(map[cidutil.ID]struct{})
	var visit func(id cidutil.ID, depth int) error
	visit = func(id cidutil.ID, depth int) error {
		if _, ok := seen[id]; ok {
			return nil
		}
		seen[id] = struct{}{}
		b, err := load(cas, id)
		if err != nil {
			return err
		}
		b.Depth = depth
		if err := fn(b); err != nil {
			return err
		}
		if b.Node == nil {
			return nil
		}
		for _, l := range b.Node.Links {
			if err := visit(l.Hash, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(root, 0)
}

// Copy writes the payload identified by root to w and returns the number of
// bytes written. Leaf lengths are checked against the blocksizes of their
// parents before they are written.
func Copy(w io.Writer, cas storage.CAS, root cidutil.ID) (int64, error) {
	var written int64
	var copyTree func(id cidutil.ID) (uint64, error)
	copyTree = func(id cidutil.ID) (uint64, error) {
		b, err := load(cas, id)
		if err != nil {
			return 0, err
		}
		if b.Node == nil {
			n, err := w.Write(b.Data)
			written += int64(n)
			return uint64(n), err
		}
		var total uint64
		for i, l := range b.Node.Links {
			n, err := copyTree(l.Hash)
			if err != nil {
				return total + n, err
			}
			if n != b.Node.Blocksizes[i] {
				return total + n, fmt.Errorf("%w: %s link %d covers %d bytes, blocksize says %d",
					ErrInvalidDAG, id, i, n, b.Node.Blocksizes[i])
			}
			total += n
		}
		return total, nil
	}
	_, err := copyTree(root)
	return written, err
}

// Size returns the payload length of root from its top block alone.
func Size(cas storage.CAS, root cidutil.ID) (uint64, error) {
	b, err := load(cas, root)
	if err != nil {
		return 0, err
	}
	if b.Node == nil {
		return uint64(len(b.Data)), nil
	}
	return b.Node.Filesize, nil
}

func load(cas storage.CAS, id cidutil.ID) (Block, error) {
	if !id.Defined() {
		return Block{}, storage.ErrInvalidCID
	}
	data, err := cas.Get(id)
	if err != nil {
		return Block{}, fmt.Errorf("dagreader: get %s: %w", id, err)
	}
	if err := storage.Verify(id, data); err != nil {
		return Block{}, fmt.Errorf("dagreader: %s: %w", id, err)
	}
	b := Block{ID: id, Data: data}
	if id.Codec() == cidutil.DagNode {
		n, err := dagpb.Unmarshal(data)
		if err != nil {
			return Block{}, fmt.Errorf("dagreader: %s: %w", id, err)
		}
		b.Node = n
	}
	return b, nil
}
