// Package testkit holds the conformance suite every storage.CAS backend runs.
package testkit

import (
	"bytes"
	"errors"
	"testing"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/storage"
)

// NewCAS constructs a fresh, empty CAS instance for a test.
// The returned CAS MUST be isolated from other tests.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte("hello, ufs storage")

		id, err := cas.Put(cidutil.Raw, want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if wantID := cidutil.OfRaw(want); id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := cas.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}
	})

	t.Run("CodecIsPartOfTheKey", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes, two codecs")

		raw, err := cas.Put(cidutil.Raw, b)
		if err != nil {
			t.Fatalf("Put(raw) failed: %v", err)
		}
		node, err := cas.Put(cidutil.DagNode, b)
		if err != nil {
			t.Fatalf("Put(dag-pb) failed: %v", err)
		}
		if raw == node {
			t.Fatalf("raw and dag-pb ids collide: %s", raw)
		}
		if node != cidutil.OfNode(b) || node.Codec() != cidutil.DagNode {
			t.Fatalf("unexpected dag-pb id %s", node)
		}
		for _, id := range []cidutil.ID{raw, node} {
			got, err := cas.Get(id)
			if err != nil {
				t.Fatalf("Get(%s) failed: %v", id, err)
			}
			if !bytes.Equal(got, b) {
				t.Fatalf("Get(%s) bytes mismatch", id)
			}
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("same bytes")

		id1, err := cas.Put(cidutil.Raw, b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := cas.Put(cidutil.Raw, b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		b := []byte("missing")
		id := cidutil.OfRaw(b)

		if cas.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		if _, err := cas.Get(id); !storage.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		if _, err := cas.Put(cidutil.Raw, b); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !cas.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		if cas.Has(cidutil.Undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := cas.Get(cidutil.Undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})

	t.Run("RejectUnknownCodec", func(t *testing.T) {
		cas := newCAS(t)
		if _, err := cas.Put(cidutil.Codec(0x71), []byte("cbor")); !errors.Is(err, storage.ErrInvalidCID) {
			t.Fatalf("Put with dag-cbor: got err=%v want ErrInvalidCID", err)
		}
	})

	t.Run("StoresHasherBlocks", func(t *testing.T) {
		cas := newCAS(t)
		data := make([]byte, 2*hasher.ChunkSize+3)
		for i := range data {
			data[i] = byte(i % 251)
		}
		root, err := hasher.SumWith(data, hasher.WithBlockSink(storage.BlockSink(cas)))
		if err != nil {
			t.Fatalf("SumWith failed: %v", err)
		}
		if root != hasher.Sum(data) {
			t.Fatalf("sink changed the root: %s", root)
		}
		if !cas.Has(root) {
			t.Fatalf("root block %s missing", root)
		}
		for off := 0; off < len(data); off += hasher.ChunkSize {
			leaf := cidutil.OfRaw(data[off:min(off+hasher.ChunkSize, len(data))])
			if !cas.Has(leaf) {
				t.Fatalf("leaf at %d (%s) missing", off, leaf)
			}
		}
	})
}
