// Package cidutil defines the content identifiers produced by this module:
// CIDv1 values carrying a sha2-256 multihash and either the "raw" or the
// "dag-pb" multicodec.
//
// IDs are only built by hashing bytes (Of, OfRaw, OfNode) or by parsing an
// identifier that satisfies the same contract (Parse, Cast). A zero ID is
// undefined.
package cidutil

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the byte length of a sha2-256 digest.
const DigestSize = 32

// ErrMalformedIdentifier is returned when identifier text or bytes do not
// describe a CIDv1 / sha2-256 / raw-or-dag-pb identifier.
var ErrMalformedIdentifier = errors.New("cidutil: malformed identifier")

// Codec selects the binary layout that was hashed to produce a digest.
type Codec uint64

const (
	// Raw tags a digest of a leaf chunk's bytes.
	Raw = Codec(multicodec.Raw)
	// DagNode tags a digest of a canonical dag-pb node encoding.
	DagNode = Codec(multicodec.DagPb)
)

func (c Codec) String() string { return multicodec.Code(c).String() }

// Valid reports whether c is one of the supported codecs.
func (c Codec) Valid() bool { return c == Raw || c == DagNode }

// ParseCodec accepts the multicodec names "raw" and "dag-pb".
func ParseCodec(s string) (Codec, error) {
	switch s {
	case Raw.String():
		return Raw, nil
	case DagNode.String():
		return DagNode, nil
	default:
		return 0, fmt.Errorf("cidutil: unsupported codec %q", s)
	}
}

// Digest is a sha2-256 output.
type Digest [DigestSize]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// ID is a self-describing content identifier. It is comparable and may be
// used as a map key; ordering is lexicographic on Bytes.
type ID struct {
	c cid.Cid
}

// Undef is the zero, undefined ID.
var Undef ID

// Of hashes data with sha2-256 and tags the result with codec.
// It panics if codec is not supported.
func Of(codec Codec, data []byte) ID {
	if !codec.Valid() {
		panic(fmt.Sprintf("cidutil: unsupported codec %d", uint64(codec)))
	}
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for unknown codes or bad lengths.
		panic(fmt.Sprintf("cidutil: sha2-256 multihash: %v", err))
	}
	return ID{c: cid.NewCidV1(uint64(codec), sum)}
}

// OfRaw returns the raw-tagged ID of a leaf chunk.
func OfRaw(chunk []byte) ID { return Of(Raw, chunk) }

// OfNode returns the dag-pb-tagged ID of an encoded node.
func OfNode(encoded []byte) ID { return Of(DagNode, encoded) }

// Parse decodes the canonical text form: 'b' followed by lowercase,
// unpadded base32 of the binary form.
func Parse(s string) (ID, error) {
	if s == "" {
		return Undef, fmt.Errorf("%w: empty string", ErrMalformedIdentifier)
	}
	if s[0] != 'b' {
		return Undef, fmt.Errorf("%w: multibase prefix %q, want 'b'", ErrMalformedIdentifier, s[0])
	}
	c, err := cid.Decode(s)
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	id, err := fromCid(c)
	if err != nil {
		return Undef, err
	}
	if id.String() != s {
		return Undef, fmt.Errorf("%w: non-canonical text %q", ErrMalformedIdentifier, s)
	}
	return id, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Cast decodes the binary form.
func Cast(b []byte) (ID, error) {
	c, err := cid.Cast(b)
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	id, err := fromCid(c)
	if err != nil {
		return Undef, err
	}
	if !bytes.Equal(id.Bytes(), b) {
		return Undef, fmt.Errorf("%w: trailing or non-canonical bytes", ErrMalformedIdentifier)
	}
	return id, nil
}

// FromCid validates a go-cid value against the identifier contract.
func FromCid(c cid.Cid) (ID, error) { return fromCid(c) }

func fromCid(c cid.Cid) (ID, error) {
	if !c.Defined() {
		return Undef, fmt.Errorf("%w: undefined cid", ErrMalformedIdentifier)
	}
	if c.Version() != 1 {
		return Undef, fmt.Errorf("%w: cid version %d", ErrMalformedIdentifier, c.Version())
	}
	if codec := Codec(c.Type()); !codec.Valid() {
		return Undef, fmt.Errorf("%w: unsupported codec 0x%x", ErrMalformedIdentifier, c.Type())
	}
	dec, err := multihash.Decode(c.Hash())
	if err != nil {
		return Undef, fmt.Errorf("%w: %v", ErrMalformedIdentifier, err)
	}
	if dec.Code != multihash.SHA2_256 {
		return Undef, fmt.Errorf("%w: unsupported hash function 0x%x", ErrMalformedIdentifier, dec.Code)
	}
	if dec.Length != DigestSize || len(dec.Digest) != DigestSize {
		return Undef, fmt.Errorf("%w: digest length %d", ErrMalformedIdentifier, dec.Length)
	}
	return ID{c: c}, nil
}

func (id ID) Defined() bool { return id.c.Defined() }

func (id ID) Codec() Codec { return Codec(id.c.Type()) }

// Digest returns the sha2-256 digest. It is zero for Undef.
func (id ID) Digest() Digest {
	var d Digest
	if !id.Defined() {
		return d
	}
	k := id.c.KeyString()
	copy(d[:], k[len(k)-DigestSize:])
	return d
}

// Bytes returns the binary form:
// varint(1) | varint(codec) | varint(0x12) | varint(32) | digest.
func (id ID) Bytes() []byte {
	if !id.Defined() {
		return nil
	}
	return id.c.Bytes()
}

// String returns the canonical text form, or "" for Undef.
func (id ID) String() string {
	if !id.Defined() {
		return ""
	}
	return id.c.String()
}

// Cid exposes the underlying go-cid value.
func (id ID) Cid() cid.Cid { return id.c }

func (id ID) Equals(o ID) bool { return id.c.Equals(o.c) }

// Compare orders IDs lexicographically by their binary form.
func (id ID) Compare(o ID) int {
	a, b := id.c.KeyString(), o.c.KeyString()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (id ID) MarshalText() ([]byte, error) {
	if !id.Defined() {
		return nil, fmt.Errorf("%w: undefined cid", ErrMalformedIdentifier)
	}
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(b []byte) error {
	got, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = got
	return nil
}
