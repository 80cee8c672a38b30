// Package dagpb encodes and decodes the UnixFS "file" node used for the
// interior of a content tree.
//
// The wire layout is two nested protobuf messages written by hand with
// protowire; the schema is fixed:
//
//	PBNode  { Links: 2 repeated PBLink; Data: 1 bytes }   // links are written first
//	PBLink  { Hash: 1 bytes; Name: 2 string; Tsize: 3 uint64 }
//	Data    { Type: 1 enum (File=2); filesize: 3 uint64; blocksizes: 4 repeated uint64 (unpacked) }
package dagpb

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"xdao.co/ufs/cidutil"
)

// TypeFile is the UnixFS Data.Type value for file nodes.
const TypeFile = 2

const (
	nodeData  protowire.Number = 1
	nodeLinks protowire.Number = 2

	linkHash  protowire.Number = 1
	linkName  protowire.Number = 2
	linkTsize protowire.Number = 3

	dataType       protowire.Number = 1
	dataData       protowire.Number = 2
	dataFilesize   protowire.Number = 3
	dataBlocksizes protowire.Number = 4
)

// ErrMalformedNode is returned by Unmarshal for bytes that are not a
// canonical-enough UnixFS file node.
var ErrMalformedNode = errors.New("dagpb: malformed node")

// Link references one child of a node.
type Link struct {
	Hash cidutil.ID
	Name string
	// Tsize is the child's encoded length plus its subtree total.
	Tsize uint64
}

// Node is one interior level of a file tree.
type Node struct {
	// Filesize is the sum of Blocksizes.
	Filesize   uint64
	Blocksizes []uint64
	Links      []Link
}

// AddChild appends a child. The caller guarantees Filesize+length does not overflow.
func (n *Node) AddChild(length uint64, id cidutil.ID, tsize uint64) {
	n.Filesize += length
	n.Blocksizes = append(n.Blocksizes, length)
	n.Links = append(n.Links, Link{Hash: id, Tsize: tsize})
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.Links) }

// Reset empties n, keeping allocated capacity.
func (n *Node) Reset() {
	n.Filesize = 0
	n.Blocksizes = n.Blocksizes[:0]
	n.Links = n.Links[:0]
}

// Marshal returns the canonical encoding of n.
//
// It panics if n is internally inconsistent (mismatched link and blocksize
// counts, or an undefined link hash); nodes are only assembled by this module.
func (n *Node) Marshal() []byte {
	if len(n.Links) != len(n.Blocksizes) {
		panic(fmt.Sprintf("dagpb: %d links but %d blocksizes", len(n.Links), len(n.Blocksizes)))
	}

	var data []byte
	data = protowire.AppendTag(data, dataType, protowire.VarintType)
	data = protowire.AppendVarint(data, TypeFile)
	data = protowire.AppendTag(data, dataFilesize, protowire.VarintType)
	data = protowire.AppendVarint(data, n.Filesize)
	for _, s := range n.Blocksizes {
		data = protowire.AppendTag(data, dataBlocksizes, protowire.VarintType)
		data = protowire.AppendVarint(data, s)
	}

	out := make([]byte, 0, len(n.Links)*48+len(data)+8)
	var link []byte
	for i, l := range n.Links {
		if !l.Hash.Defined() {
			panic(fmt.Sprintf("dagpb: link %d has undefined hash", i))
		}
		link = link[:0]
		link = protowire.AppendTag(link, linkHash, protowire.BytesType)
		link = protowire.AppendBytes(link, l.Hash.Bytes())
		link = protowire.AppendTag(link, linkName, protowire.BytesType)
		link = protowire.AppendString(link, l.Name)
		link = protowire.AppendTag(link, linkTsize, protowire.VarintType)
		link = protowire.AppendVarint(link, l.Tsize)

		out = protowire.AppendTag(out, nodeLinks, protowire.BytesType)
		out = protowire.AppendBytes(out, link)
	}
	out = protowire.AppendTag(out, nodeData, protowire.BytesType)
	out = protowire.AppendBytes(out, data)
	return out
}

// Unmarshal decodes a UnixFS file node. Packed blocksizes are accepted.
func Unmarshal(b []byte) (*Node, error) {
	n := &Node{}
	var data []byte
	var sawData bool
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return nil, malformed("node tag: %v", protowire.ParseError(m))
		}
		b = b[m:]
		switch {
		case num == nodeLinks && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, malformed("link: %v", protowire.ParseError(m))
			}
			l, err := unmarshalLink(v)
			if err != nil {
				return nil, err
			}
			n.Links = append(n.Links, l)
			b = b[m:]
		case num == nodeData && typ == protowire.BytesType:
			if sawData {
				return nil, malformed("repeated Data field")
			}
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return nil, malformed("data: %v", protowire.ParseError(m))
			}
			data, sawData = v, true
			b = b[m:]
		default:
			return nil, malformed("unexpected field %d (wire type %d)", num, typ)
		}
	}
	if !sawData {
		return nil, malformed("missing Data field")
	}
	if err := unmarshalData(n, data); err != nil {
		return nil, err
	}
	if len(n.Blocksizes) != len(n.Links) {
		return nil, malformed("%d links but %d blocksizes", len(n.Links), len(n.Blocksizes))
	}
	var sum uint64
	for _, s := range n.Blocksizes {
		if sum+s < sum {
			return nil, malformed("blocksizes overflow")
		}
		sum += s
	}
	if sum != n.Filesize {
		return nil, malformed("filesize %d, blocksizes sum to %d", n.Filesize, sum)
	}
	return n, nil
}

func unmarshalLink(b []byte) (Link, error) {
	var l Link
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return l, malformed("link tag: %v", protowire.ParseError(m))
		}
		b = b[m:]
		switch {
		case num == linkHash && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return l, malformed("link hash: %v", protowire.ParseError(m))
			}
			id, err := cidutil.Cast(v)
			if err != nil {
				return l, malformed("link hash: %v", err)
			}
			l.Hash = id
			b = b[m:]
		case num == linkName && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return l, malformed("link name: %v", protowire.ParseError(m))
			}
			l.Name = v
			b = b[m:]
		case num == linkTsize && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return l, malformed("link tsize: %v", protowire.ParseError(m))
			}
			l.Tsize = v
			b = b[m:]
		default:
			return l, malformed("unexpected link field %d (wire type %d)", num, typ)
		}
	}
	if !l.Hash.Defined() {
		return l, malformed("link without hash")
	}
	return l, nil
}

func unmarshalData(n *Node, b []byte) error {
	var sawType, sawFilesize bool
	for len(b) > 0 {
		num, typ, m := protowire.ConsumeTag(b)
		if m < 0 {
			return malformed("data tag: %v", protowire.ParseError(m))
		}
		b = b[m:]
		switch {
		case num == dataType && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return malformed("type: %v", protowire.ParseError(m))
			}
			if v != TypeFile {
				return malformed("unixfs type %d is not a file", v)
			}
			sawType = true
			b = b[m:]
		case num == dataData && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return malformed("inline data: %v", protowire.ParseError(m))
			}
			if len(v) != 0 {
				return malformed("inline file data is not supported")
			}
			b = b[m:]
		case num == dataFilesize && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return malformed("filesize: %v", protowire.ParseError(m))
			}
			n.Filesize, sawFilesize = v, true
			b = b[m:]
		case num == dataBlocksizes && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return malformed("blocksize: %v", protowire.ParseError(m))
			}
			n.Blocksizes = append(n.Blocksizes, v)
			b = b[m:]
		case num == dataBlocksizes && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return malformed("packed blocksizes: %v", protowire.ParseError(m))
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return malformed("packed blocksize: %v", protowire.ParseError(k))
				}
				n.Blocksizes = append(n.Blocksizes, v)
				packed = packed[k:]
			}
			b = b[m:]
		default:
			return malformed("unexpected data field %d (wire type %d)", num, typ)
		}
	}
	if !sawType {
		return malformed("missing unixfs type")
	}
	if !sawFilesize {
		return malformed("missing filesize")
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedNode, fmt.Sprintf(format, args...))
}
