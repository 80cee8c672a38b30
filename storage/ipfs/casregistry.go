package ipfs

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/casregistry"
)

var (
	flagBin  string
	flagRepo string
	flagPin  bool
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "Local Kubo repo via the ipfs CLI (offline)",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *pflag.FlagSet) {
			fs.StringVar(&flagBin, "ipfs-bin", "ipfs", "Path to the ipfs binary (for --backend=ipfs)")
			fs.StringVar(&flagRepo, "ipfs-path", "", "IPFS repo path; default uses IPFS_PATH (for --backend=ipfs)")
			fs.BoolVar(&flagPin, "pin", true, "Pin stored blocks in the local IPFS repo (for --backend=ipfs)")
		},
		Open: func() (storage.CAS, func() error, error) {
			return New(Options{Bin: flagBin, RepoPath: flagRepo, Pin: flagPin}), nil, nil
		},
		OpenWithConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			opts := Options{Bin: cfg["ipfs-bin"], RepoPath: cfg["ipfs-path"], Pin: true}
			if v, ok := cfg["pin"]; ok {
				pin, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, fmt.Errorf("ipfs: invalid pin %q", v)
				}
				opts.Pin = pin
			}
			return New(opts), nil, nil
		},
	})
}
