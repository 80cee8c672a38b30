package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "xdao.co/ufs/storage/grpccas"
	_ "xdao.co/ufs/storage/ipfs"
	_ "xdao.co/ufs/storage/localfs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, in io.Reader, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	env := &cmdEnv{in: in, out: out, errOut: errOut}
	switch args[0] {
	case "cid":
		return cmdCID(env, args[1:])
	case "verify":
		return cmdVerify(env, args[1:])
	case "inspect":
		return cmdInspect(env, args[1:])
	case "put":
		return cmdPut(env, args[1:])
	case "cat":
		return cmdCat(env, args[1:])
	case "bundle":
		return cmdBundle(env, args[1:])
	case "backends":
		printBackends(out)
		return 0
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "xdao-ufs: content identifiers for files, compatible with IPFS UnixFS")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  xdao-ufs cid [--batch] [--parallel N] <file|->")
	fmt.Fprintln(w, "  xdao-ufs verify --cid <cid> <file|->")
	fmt.Fprintln(w, "  xdao-ufs inspect [store flags] [--dag] [--json] <cid>")
	fmt.Fprintln(w, "  xdao-ufs put [store flags] <file|->")
	fmt.Fprintln(w, "  xdao-ufs cat [store flags] --cid <cid> [--out <file>]")
	fmt.Fprintln(w, "  xdao-ufs bundle export [store flags] --out <file> [--index] [--label name=cid ...] <cid> [<cid> ...]")
	fmt.Fprintln(w, "  xdao-ufs bundle import [store flags] [--require-complete] <file>")
	fmt.Fprintln(w, "  xdao-ufs backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Store flags:")
	fmt.Fprintln(w, "  --backend <name> plus that backend's flags, or --cas-config <file.yaml>")
	fmt.Fprintln(w, "  --cache <n> keeps up to n blocks in memory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - every command accepts -v for debug logs on stderr")
	fmt.Fprintln(w, "  - cid output matches `ipfs add --cid-version=1 --raw-leaves`")
	fmt.Fprintln(w, "  - cid --parallel N reads the whole file and hashes chunks on N workers")
}

type cmdEnv struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	log    *zap.Logger
}

// flags creates a subcommand flag set with the shared -v flag. Call
// env.parse instead of fs.Parse so the logger follows -v.
func (e *cmdEnv) flags(name string) (*pflag.FlagSet, *bool) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(e.errOut)
	fs.SortFlags = false
	verbose := fs.BoolP("verbose", "v", false, "Debug logs on stderr")
	return fs, verbose
}

func (e *cmdEnv) parse(fs *pflag.FlagSet, verbose *bool, args []string) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	e.log = newLogger(e.errOut, *verbose)
	return true
}

func newLogger(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}
