package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
)

// CAS is a block store backed by the local Kubo "ipfs" CLI.
//
// It operates on the local IPFS repo and does not need a daemon. Raw leaves
// and dag-pb nodes are stored with `block put --cid-codec`, so a file
// hashed by this module can be fetched with `ipfs cat <root>` afterwards.
// Every returned block is verified against its id; reachability through
// Kubo is not validity.
type CAS struct {
	bin string
	env []string
	pin bool
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the path to the ipfs binary. If empty, "ipfs" is used.
	Bin string
	// RepoPath sets IPFS_PATH for every command when non-empty.
	RepoPath string
	// Env optionally overrides the command environment.
	// If nil, the process environment is used.
	Env []string
	// Pin pins every stored block.
	Pin bool
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	env := opts.Env
	if opts.RepoPath != "" {
		if env == nil {
			env = os.Environ()
		}
		env = append(append([]string(nil), env...), "IPFS_PATH="+opts.RepoPath)
	}
	return &CAS{bin: bin, env: env, pin: opts.Pin}
}

func (c *CAS) Put(codec cidutil.Codec, data []byte) (cidutil.ID, error) {
	id, err := storage.IDFor(codec, data)
	if err != nil {
		return cidutil.Undef, err
	}

	out, err := c.run(data,
		"block", "put",
		"--cid-codec="+codec.String(),
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--pin="+strconv.FormatBool(c.pin),
	)
	if err != nil {
		return cidutil.Undef, err
	}

	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cidutil.Undef, fmt.Errorf("ipfs: unexpected block put output: %w", err)
	}
	if !got.Equals(id.Cid()) {
		return cidutil.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(id cidutil.ID) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}

	out, err := c.run(nil, "block", "get", id.String())
	if err != nil {
		if isLikelyNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if err := storage.Verify(id, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CAS) Has(id cidutil.ID) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	if c.env != nil {
		cmd.Env = c.env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		s := strings.TrimSpace(string(ee.Stderr))
		if s == "" {
			return nil, fmt.Errorf("ipfs: %v", err)
		}
		return nil, fmt.Errorf("ipfs: %s", s)
	}
	return nil, err
}

func isLikelyNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "could not find")
}
