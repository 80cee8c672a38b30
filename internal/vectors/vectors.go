// Package vectors loads and materializes the identifier conformance vectors
// under testdata/conformance/unixfs-file.
package vectors

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FormatVersion is the current vectors.json schema version.
const FormatVersion = 1

// Fill names a deterministic payload generator.
const (
	FillZero   = "zero"
	FillMod251 = "mod251"
)

type File struct {
	Version   int      `json:"version"`
	ChunkSize int      `json:"chunkSize"`
	MaxLinks  int      `json:"maxLinks"`
	Vectors   []Vector `json:"vectors"`
}

// Vector is one payload and its expected identifier. A payload is either
// literal Text or Length bytes produced by Fill.
type Vector struct {
	Name   string `json:"name"`
	Text   string `json:"text,omitempty"`
	Fill   string `json:"fill,omitempty"`
	Length int    `json:"length"`
	CID    string `json:"cid"`
	// Large marks vectors skipped under `go test -short`.
	Large bool `json:"large,omitempty"`
}

// Payload returns the bytes described by v.
func (v Vector) Payload() ([]byte, error) {
	if v.Text != "" {
		if len(v.Text) != v.Length {
			return nil, fmt.Errorf("vectors: %s: text length %d, declared %d", v.Name, len(v.Text), v.Length)
		}
		return []byte(v.Text), nil
	}
	return Generate(v.Fill, v.Length)
}

// Generate produces n bytes with the named fill.
func Generate(fill string, n int) ([]byte, error) {
	b := make([]byte, n)
	switch fill {
	case FillZero:
	case FillMod251:
		for i := range b {
			b[i] = byte(i % 251)
		}
	default:
		return nil, fmt.Errorf("vectors: unknown fill %q", fill)
	}
	return b, nil
}

// DefaultPath is the repository's vectors.json.
func DefaultPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "testdata", "conformance", "unixfs-file", "vectors.json")
}

func Load(path string) (File, error) {
	var f File
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("vectors: %s: %w", path, err)
	}
	if f.Version != FormatVersion {
		return f, fmt.Errorf("vectors: unsupported version %d", f.Version)
	}
	return f, nil
}

// Save writes f to path in the checked-in layout.
func Save(path string, f File) error {
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
