package storage

import "xdao.co/ufs/cidutil"

// CAS is a minimal content-addressable block store.
//
// Contract:
// - Put MUST be idempotent.
// - Stored blocks MUST be immutable.
// - IDs MUST be derived from the codec and bytes written.
// - Get MUST return ErrNotFound when the ID is absent, and MUST NOT return
//   bytes that do not hash to the requested ID.
type CAS interface {
	Put(codec cidutil.Codec, data []byte) (cidutil.ID, error)
	Get(id cidutil.ID) ([]byte, error)
	Has(id cidutil.ID) bool
}

// IDFor derives the identifier of data under codec.
func IDFor(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	if !codec.Valid() {
		return cidutil.Undef, ErrInvalidCID
	}
	return cidutil.Of(codec, data), nil
}

// Verify checks that data hashes to id.
func Verify(id cidutil.ID, data []byte) error {
	if !id.Defined() {
		return ErrInvalidCID
	}
	if cidutil.Of(id.Codec(), data) != id {
		return ErrCIDMismatch
	}
	return nil
}
