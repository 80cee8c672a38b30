package casconfig

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/casregistry"
)

// Config describes how to open one or more CAS backends via casregistry.
// Callers still need to link the desired backend plugins via blank imports.
//
// WritePolicy values:
// - "first" (default): write only to the first backend; reads fall back in order
// - "all": write to all backends and require ID equality (see storage.ReplicatingCAS)
//
// CacheEntries > 0 wraps the result in a storage.CachedCAS.
//
// Example:
//
//	write_policy: all
//	cache_entries: 4096
//	backends:
//	  - name: localfs
//	    config: {localfs-dir: /tmp/cas}
//	  - name: ipfs
//	    config: {ipfs-path: /tmp/ipfs, pin: "true"}
//
// JSON documents are accepted as well. Config values are backend-specific
// and usually mirror the backend's CLI flag names.
type Config struct {
	WritePolicy  string          `yaml:"write_policy,omitempty"`
	CacheEntries int             `yaml:"cache_entries,omitempty"`
	Backends     []BackendConfig `yaml:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend name to open (e.g. "grpc", "localfs", "ipfs").
	Name string `yaml:"name"`
	// ID is an optional stable alias used for identification and per-backend ID maps.
	// If empty, Name is used.
	ID     string            `yaml:"id,omitempty"`
	Config map[string]string `yaml:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return cfg, fmt.Errorf("casconfig: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML or JSON config. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("casconfig: decode: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	if c.CacheEntries < 0 {
		return fmt.Errorf("casconfig: negative cache_entries %d", c.CacheEntries)
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", "first", "all":
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens a CAS per config.
//
// If preferredBackend is non-empty, backends are reordered so preferredBackend
// is first (and thus used for writes when WritePolicy=="first").
func (c Config) Open(usage casregistry.Usage, preferredBackend string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferredBackend != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferredBackend || ordered[i].ID == preferredBackend {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferredBackend)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("casconfig: backend %q: %w", b.id(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	var out storage.CAS
	switch {
	case len(named) == 1:
		out = named[0].CAS
	case c.WritePolicy == "all":
		out = storage.ReplicatingCAS{Backends: named}
	default:
		adapters := make([]storage.CAS, 0, len(named))
		for _, n := range named {
			adapters = append(adapters, n.CAS)
		}
		out = storage.MultiCAS{Adapters: adapters}
	}

	if c.CacheEntries > 0 {
		cached, err := storage.NewCachedCAS(out, c.CacheEntries)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		out = cached
	}
	return out, closeAll, nil
}
