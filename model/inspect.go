package model

import (
	"io"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
	"xdao.co/ufs/dagreader"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/storage"
)

func parseID(s string) (cidutil.ID, error) {
	id, err := cidutil.Parse(s)
	if err != nil {
		return cidutil.Undef, NewError(ErrInvalidCID, err.Error())
	}
	return id, nil
}

// Inspect fetches and decodes one block.
func Inspect(cas storage.CAS, cid string) (*Inspection, error) {
	if cas == nil {
		return nil, NewError(ErrMissingCAS, "no CAS configured")
	}
	id, err := parseID(cid)
	if err != nil {
		return nil, err
	}
	b, err := cas.Get(id)
	if err != nil {
		return nil, Classify(err)
	}
	if err := storage.Verify(id, b); err != nil {
		return nil, Classify(err)
	}
	return InspectBlock(id, b)
}

// InspectBlock decodes a block the caller already holds and verified.
func InspectBlock(id cidutil.ID, b []byte) (*Inspection, error) {
	out := &Inspection{
		CID:       id.String(),
		Codec:     id.Codec().String(),
		Digest:    id.Digest().String(),
		BlockSize: len(b),
		Filesize:  uint64(len(b)),
	}
	if id.Codec() != cidutil.DagNode {
		return out, nil
	}
	n, err := dagpb.Unmarshal(b)
	if err != nil {
		return nil, Classify(err)
	}
	out.Filesize = n.Filesize
	out.Links = make([]Link, 0, n.Len())
	for i, l := range n.Links {
		out.Links = append(out.Links, Link{CID: l.Hash.String(), Tsize: l.Tsize, Blocksize: n.Blocksizes[i]})
	}
	return out, nil
}

// Summarize walks the DAG under cid.
func Summarize(cas storage.CAS, cid string) (*DAGSummary, error) {
	if cas == nil {
		return nil, NewError(ErrMissingCAS, "no CAS configured")
	}
	id, err := parseID(cid)
	if err != nil {
		return nil, err
	}
	st, err := dagreader.Stat(cas, id)
	if err != nil {
		return nil, Classify(err)
	}
	return &DAGSummary{
		Root:        st.Root.String(),
		Size:        st.Size,
		Blocks:      st.Blocks,
		Leaves:      st.Leaves,
		Nodes:       st.Nodes,
		Depth:       st.Depth,
		StoredBytes: st.StoredBytes,
	}, nil
}

// Verify hashes r and compares the result with the expected identifier.
// A mismatch is reported in the result, not as an error.
func Verify(r io.Reader, expected string) (*Verification, error) {
	want, err := parseID(expected)
	if err != nil {
		return nil, err
	}
	got, n, err := hasher.SumReader(r)
	if err != nil {
		return nil, Classify(err)
	}
	return &Verification{
		Expected: want.String(),
		Actual:   got.String(),
		Length:   n,
		Match:    got == want,
	}, nil
}
