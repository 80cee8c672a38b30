package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/dagreader"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/model"
	"xdao.co/ufs/storage"
	"xdao.co/ufs/storage/bundle"
	"xdao.co/ufs/storage/casconfig"
	"xdao.co/ufs/storage/casregistry"
)

type storeFlags struct {
	fs         *pflag.FlagSet
	backend    string
	configPath string
	cache      int
}

func (s *storeFlags) add(fs *pflag.FlagSet) {
	s.fs = fs
	fs.StringVar(&s.backend, "backend", "localfs", "CAS backend name (see: xdao-ufs backends)")
	fs.StringVar(&s.configPath, "cas-config", "", "YAML/JSON CAS config; --backend then picks the write backend")
	fs.IntVar(&s.cache, "cache", 0, "Keep up to N blocks in an in-memory LRU")
	casregistry.RegisterFlags(fs, casregistry.UsageCLI)
}

func (s *storeFlags) open(log *zap.Logger) (storage.CAS, func() error, error) {
	var (
		cas     storage.CAS
		closeFn func() error
		err     error
	)
	if s.configPath != "" {
		cfg, lerr := casconfig.LoadFile(s.configPath)
		if lerr != nil {
			return nil, nil, lerr
		}
		preferred := ""
		if s.fs.Changed("backend") {
			preferred = s.backend
		}
		cas, closeFn, err = cfg.Open(casregistry.UsageCLI, preferred)
	} else {
		cas, closeFn, err = casregistry.Open(s.backend, casregistry.UsageCLI)
	}
	if err != nil {
		return nil, nil, err
	}
	if closeFn == nil {
		closeFn = func() error { return nil }
	}
	if s.cache > 0 {
		cached, cerr := storage.NewCachedCAS(cas, s.cache)
		if cerr != nil {
			_ = closeFn()
			return nil, nil, cerr
		}
		cas = cached
	}
	log.Debug("opened store", zap.String("backend", s.backend), zap.String("config", s.configPath), zap.Int("cache", s.cache))
	return cas, closeFn, nil
}

func printBackends(w io.Writer) {
	for _, b := range casregistry.List(casregistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func cmdPut(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("put")
	var store storeFlags
	store.add(fs)
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs put [store flags] <file|->")
		return 2
	}

	cas, closeFn, err := store.open(e.log)
	if err != nil {
		return e.fail(err)
	}
	defer closeFn()

	f, err := e.openInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.errOut, "open input: %v\n", err)
		return 1
	}
	defer f.Close()

	id, n, err := hasher.SumReader(bufio.NewReaderSize(f, hasher.ChunkSize),
		hasher.WithBlockSink(storage.BlockSink(cas)),
		hasher.WithLogger(e.log),
	)
	if err != nil {
		return e.fail(err)
	}
	e.log.Debug("stored", zap.Stringer("cid", id), zap.Uint64("bytes", n))
	_, _ = fmt.Fprintln(e.out, id.String())
	return 0
}

func cmdCat(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("cat")
	var store storeFlags
	store.add(fs)
	cidStr := fs.String("cid", "", "Root identifier to read")
	outPath := fs.String("out", "", "Output file (optional; default stdout)")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if *cidStr == "" || fs.NArg() != 0 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs cat [store flags] --cid <cid> [--out <file>]")
		return 2
	}
	root, err := cidutil.Parse(*cidStr)
	if err != nil {
		return e.fail(err)
	}

	cas, closeFn, err := store.open(e.log)
	if err != nil {
		return e.fail(err)
	}
	defer closeFn()

	if *outPath == "" {
		if _, err := dagreader.Copy(e.out, cas, root); err != nil {
			return e.fail(err)
		}
		return 0
	}

	// Write next to the target and rename, so a failed read leaves no partial file.
	tmp, err := os.CreateTemp(dirOf(*outPath), ".xdao-ufs-cat-*")
	if err != nil {
		fmt.Fprintf(e.errOut, "create output: %v\n", err)
		return 1
	}
	defer os.Remove(tmp.Name())
	w := bufio.NewWriter(tmp)
	n, err := dagreader.Copy(w, cas, root)
	if err == nil {
		err = w.Flush()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return e.fail(err)
	}
	if err := os.Rename(tmp.Name(), *outPath); err != nil {
		fmt.Fprintf(e.errOut, "write %s: %v\n", *outPath, err)
		return 1
	}
	e.log.Debug("wrote", zap.String("path", *outPath), zap.Int64("bytes", n))
	return 0
}

func dirOf(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[:i+1]
	}
	return "."
}

func cmdInspect(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("inspect")
	var store storeFlags
	store.add(fs)
	dag := fs.Bool("dag", false, "Summarize the whole DAG instead of one block")
	asJSON := fs.Bool("json", false, "Emit JSON")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs inspect [store flags] [--dag] [--json] <cid>")
		return 2
	}

	cas, closeFn, err := store.open(e.log)
	if err != nil {
		return e.fail(err)
	}
	defer closeFn()

	if *dag {
		sum, err := model.Summarize(cas, fs.Arg(0))
		if err != nil {
			return e.fail(err)
		}
		if *asJSON {
			if err := writeJSON(e.out, sum); err != nil {
				return e.fail(err)
			}
			return 0
		}
		fmt.Fprintf(e.out, "root:    %s\nsize:    %d\nblocks:  %d (%d leaves, %d nodes)\ndepth:   %d\nstored:  %d\n",
			sum.Root, sum.Size, sum.Blocks, sum.Leaves, sum.Nodes, sum.Depth, sum.StoredBytes)
		return 0
	}

	ins, err := model.Inspect(cas, fs.Arg(0))
	if err != nil {
		return e.fail(err)
	}
	if *asJSON {
		if err := writeJSON(e.out, ins); err != nil {
			return e.fail(err)
		}
		return 0
	}
	fmt.Fprintf(e.out, "cid:       %s\ncodec:     %s\ndigest:    %s\nblocksize: %d\nfilesize:  %d\n",
		ins.CID, ins.Codec, ins.Digest, ins.BlockSize, ins.Filesize)
	for i, l := range ins.Links {
		fmt.Fprintf(e.out, "link %d:    %s tsize=%d blocksize=%d\n", i, l.CID, l.Tsize, l.Blocksize)
	}
	return 0
}

func cmdBundle(e *cmdEnv, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs bundle <subcommand> ...")
		fmt.Fprintln(e.errOut, "subcommands: export, import")
		return 2
	}
	switch args[0] {
	case "export":
		return cmdBundleExport(e, args[1:])
	case "import":
		return cmdBundleImport(e, args[1:])
	default:
		fmt.Fprintf(e.errOut, "unknown bundle subcommand: %s\n", args[0])
		return 2
	}
}

func cmdBundleExport(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("bundle export")
	var store storeFlags
	store.add(fs)
	outPath := fs.String("out", "", "Bundle file to write")
	index := fs.Bool("index", false, "Include index.json")
	blocksOnly := fs.Bool("blocks-only", false, "Export only the named blocks, not their DAGs")
	labels := fs.StringArray("label", nil, "name=cid label for index.json (repeatable; implies --index)")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if *outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs bundle export [store flags] --out <file> [--index] [--label name=cid ...] <cid> [<cid> ...]")
		return 2
	}

	roots := make([]cidutil.ID, 0, fs.NArg())
	for _, s := range fs.Args() {
		id, err := cidutil.Parse(s)
		if err != nil {
			return e.fail(err)
		}
		roots = append(roots, id)
	}
	opts := bundle.ExportOptions{IncludeIndex: *index || len(*labels) > 0, BlocksOnly: *blocksOnly}
	for _, l := range *labels {
		name, value, ok := strings.Cut(l, "=")
		if !ok || name == "" {
			fmt.Fprintf(e.errOut, "invalid --label %q (want name=cid)\n", l)
			return 2
		}
		id, err := cidutil.Parse(value)
		if err != nil {
			return e.fail(err)
		}
		if opts.Labels == nil {
			opts.Labels = map[string]cidutil.ID{}
		}
		opts.Labels[name] = id
	}

	cas, closeFn, err := store.open(e.log)
	if err != nil {
		return e.fail(err)
	}
	defer closeFn()

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(e.errOut, "create %s: %v\n", *outPath, err)
		return 1
	}
	w := bufio.NewWriter(f)
	err = bundle.Export(w, cas, roots, opts)
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(*outPath)
		return e.fail(err)
	}
	return 0
}

func cmdBundleImport(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("bundle import")
	var store storeFlags
	store.add(fs)
	complete := fs.Bool("require-complete", false, "Fail unless every root in index.json is fully present afterwards")
	ignoreUnknown := fs.Bool("ignore-unknown", false, "Skip entries that are not blocks")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs bundle import [store flags] [--require-complete] <file|->")
		return 2
	}

	cas, closeFn, err := store.open(e.log)
	if err != nil {
		return e.fail(err)
	}
	defer closeFn()

	f, err := e.openInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.errOut, "open bundle: %v\n", err)
		return 1
	}
	defer f.Close()

	res, err := bundle.ImportWithOptions(bufio.NewReader(f), cas, bundle.ImportOptions{
		RequireComplete: *complete,
		IgnoreUnknown:   *ignoreUnknown,
	})
	if err != nil {
		return e.fail(err)
	}
	e.log.Debug("imported", zap.Int("blocks", len(res.Blocks)), zap.Int("roots", len(res.Roots)))
	for _, r := range res.Roots {
		_, _ = fmt.Fprintln(e.out, r.String())
	}
	return 0
}
