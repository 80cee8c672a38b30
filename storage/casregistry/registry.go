package casregistry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/pflag"

	"xdao.co/ufs/storage"
)

// Backend is a build-time plugin that can open a storage.CAS implementation.
//
// Backends typically register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
//
// The binary must import the backend package for registration to occur.
type Backend struct {
	Name        string
	Description string
	Usage       Usage

	// RegisterFlags adds backend-specific flags to fs.
	// It must be safe to call exactly once per flag set.
	RegisterFlags func(fs *pflag.FlagSet)

	// Open constructs the CAS using values parsed into flags registered by RegisterFlags.
	// It returns an optional close function.
	Open func() (storage.CAS, func() error, error)

	// OpenWithConfig constructs the CAS from string settings keyed by flag
	// name (without dashes). Optional; backends without it cannot be used
	// from config files.
	OpenWithConfig func(cfg map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend.
func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.RegisterFlags == nil {
		return fmt.Errorf("casregistry: backend %q missing RegisterFlags", b.Name)
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns backend names matching usage, sorted.
func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// RegisterFlags registers flags for all backends matching usage, so a
// command can parse backend flags in a single pass.
func RegisterFlags(fs *pflag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		b.RegisterFlags(fs)
	}
}

func lookup(name string, usage Usage) (Backend, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return Backend{}, fmt.Errorf("unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return Backend{}, fmt.Errorf("backend %q not supported in this binary", name)
	}
	return b, nil
}

// Open opens the named backend if it exists and matches usage.
func Open(name string, usage Usage) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	return b.Open()
}

// OpenWithConfig opens the named backend from explicit settings instead of
// parsed flags.
func OpenWithConfig(name string, usage Usage, cfg map[string]string) (storage.CAS, func() error, error) {
	b, err := lookup(name, usage)
	if err != nil {
		return nil, nil, err
	}
	if b.OpenWithConfig == nil {
		return nil, nil, fmt.Errorf("backend %q does not support config files", name)
	}
	if cfg == nil {
		cfg = map[string]string{}
	}
	return b.OpenWithConfig(cfg)
}
