package storage

import (
	"fmt"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/hasher"
)

// BlockSink stores every block an engine produces in cas. The id the store
// reports must equal the one the engine derived.
func BlockSink(cas CAS) hasher.BlockSink {
	return hasher.BlockSinkFunc(func(id cidutil.ID, data []byte) error {
		got, err := cas.Put(id.Codec(), data)
		if err != nil {
			return err
		}
		if got != id {
			return fmt.Errorf("%w: stored %s as %s", ErrCIDMismatch, id, got)
		}
		return nil
	})
}
