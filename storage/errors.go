package storage

import "errors"

var (
	// ErrNotFound means no block is stored under the id.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidCID covers undefined ids and codecs other than raw and dag-pb.
	ErrInvalidCID = errors.New("storage: invalid cid")
	// ErrCIDMismatch means block bytes do not hash to the id they were stored or requested under.
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	// ErrImmutable means a backend already holds different bytes under the same id.
	ErrImmutable = errors.New("storage: immutable object mismatch")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
