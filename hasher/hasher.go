package hasher

import (
	"errors"
	"fmt"
	"math/bits"

	"go.uber.org/zap"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagpb"
)

const (
	// ChunkSize is the fixed leaf size in bytes.
	ChunkSize = 262144
	// MaxLinks is the maximum number of children per node.
	MaxLinks = 174
)

var (
	// ErrPayloadTooLarge is returned when a length does not fit the node's uint64 fields.
	ErrPayloadTooLarge = errors.New("hasher: payload too large")
	// ErrFinalized is returned by Write on a finalized Builder.
	ErrFinalized = errors.New("hasher: builder already finalized")
)

// Span is the result of hashing one chunk or node.
type Span struct {
	ID cidutil.ID
	// EncodedLen is the number of bytes that were hashed.
	EncodedLen uint64
	// SubtreeTotal is 0 for chunks and the node's filesize for nodes.
	SubtreeTotal uint64
	// Length is the original payload length covered by the span.
	Length uint64
}

// Tsize is the value recorded in the parent's link.
func (s Span) Tsize() uint64 { return s.EncodedLen + s.SubtreeTotal }

// layout carries the tree parameters. Only the default layout is reachable
// from the exported API.
type layout struct {
	chunkSize int
	maxLinks  int
}

var defaultLayout = layout{chunkSize: ChunkSize, maxLinks: MaxLinks}

// HashChunk hashes a leaf. It panics if len(chunk) > ChunkSize.
func HashChunk(chunk []byte) Span { return defaultLayout.hashChunk(chunk) }

func (l layout) hashChunk(chunk []byte) Span {
	if len(chunk) > l.chunkSize {
		panic(fmt.Sprintf("hasher: chunk of %d bytes exceeds %d", len(chunk), l.chunkSize))
	}
	n := uint64(len(chunk))
	return Span{ID: cidutil.OfRaw(chunk), EncodedLen: n, Length: n}
}

// HashNode encodes and hashes n, returning the span and the encoded bytes.
func HashNode(n *dagpb.Node) (Span, []byte) {
	enc := n.Marshal()
	return Span{
		ID:           cidutil.OfNode(enc),
		EncodedLen:   uint64(len(enc)),
		SubtreeTotal: n.Filesize,
		Length:       n.Filesize,
	}, enc
}

// addChild links s into n, rejecting lengths that overflow the node fields.
func addChild(n *dagpb.Node, s Span) error {
	if _, carry := bits.Add64(n.Filesize, s.Length, 0); carry != 0 {
		return fmt.Errorf("%w: filesize %d + %d", ErrPayloadTooLarge, n.Filesize, s.Length)
	}
	if _, carry := bits.Add64(s.EncodedLen, s.SubtreeTotal, 0); carry != 0 {
		return fmt.Errorf("%w: tsize %d + %d", ErrPayloadTooLarge, s.EncodedLen, s.SubtreeTotal)
	}
	n.AddChild(s.Length, s.ID, s.Tsize())
	return nil
}

// BlockSink receives every block an engine produces, children before parents.
// data is only valid for the duration of the call. Under the Parallel
// strategy PutBlock may be called concurrently.
type BlockSink interface {
	PutBlock(id cidutil.ID, data []byte) error
}

// BlockSinkFunc adapts a function to BlockSink.
type BlockSinkFunc func(id cidutil.ID, data []byte) error

func (f BlockSinkFunc) PutBlock(id cidutil.ID, data []byte) error { return f(id, data) }

// Option configures Sum, SumWith and New.
type Option func(*config)

// WithStrategy selects how the chunks of a node are hashed by the batch engine.
// The streaming Builder is always sequential.
func WithStrategy(s Strategy) Option {
	return func(c *config) {
		if s != nil {
			c.strategy = s
		}
	}
}

// WithBlockSink delivers every produced block to sink.
func WithBlockSink(sink BlockSink) Option {
	return func(c *config) { c.sink = sink }
}

// WithLogger sets the logger used for node-level debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// withLayout overrides the tree parameters. Test use only.
func withLayout(l layout) Option {
	return func(c *config) { c.layout = l }
}

type config struct {
	layout   layout
	strategy Strategy
	sink     BlockSink
	logger   *zap.Logger
}

func newConfig(opts []Option) config {
	c := config{
		layout:   defaultLayout,
		strategy: Sequential,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *config) leaf(chunk []byte) (Span, error) {
	s := c.layout.hashChunk(chunk)
	if c.sink != nil {
		if err := c.sink.PutBlock(s.ID, chunk); err != nil {
			return s, fmt.Errorf("hasher: put leaf %s: %w", s.ID, err)
		}
	}
	return s, nil
}

func (c *config) node(n *dagpb.Node, level int) (Span, error) {
	s, enc := HashNode(n)
	if ce := c.logger.Check(zap.DebugLevel, "sealed node"); ce != nil {
		ce.Write(
			zap.Stringer("cid", s.ID),
			zap.Int("level", level),
			zap.Int("links", n.Len()),
			zap.Uint64("filesize", n.Filesize),
			zap.Int("encoded", len(enc)),
		)
	}
	if c.sink != nil {
		if err := c.sink.PutBlock(s.ID, enc); err != nil {
			return s, fmt.Errorf("hasher: put node %s: %w", s.ID, err)
		}
	}
	return s, nil
}
