package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/hasher"
	"xdao.co/ufs/model"
)

// openInput opens path, or stdin for "-".
func (e *cmdEnv) openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(e.in), nil
	}
	return os.Open(path)
}

func (e *cmdEnv) fail(err error) int {
	fmt.Fprintln(e.errOut, model.Classify(err))
	return 1
}

func cmdCID(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("cid")
	batch := fs.Bool("batch", false, "Read the whole input, then hash it in one pass")
	parallel := fs.Int("parallel", 0, "Hash chunks on N workers (implies --batch; 0 = off, -1 = GOMAXPROCS)")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs cid [--batch] [--parallel N] <file|->")
		return 2
	}

	f, err := e.openInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.errOut, "open input: %v\n", err)
		return 1
	}
	defer f.Close()

	opts := []hasher.Option{hasher.WithLogger(e.log)}
	var id cidutil.ID
	var n uint64
	if *batch || *parallel != 0 {
		data, err := io.ReadAll(f)
		if err != nil {
			fmt.Fprintf(e.errOut, "read input: %v\n", err)
			return 1
		}
		if *parallel != 0 {
			opts = append(opts, hasher.WithStrategy(hasher.Parallel(max(*parallel, 0))))
		}
		if id, err = hasher.SumWith(data, opts...); err != nil {
			return e.fail(err)
		}
		n = uint64(len(data))
	} else {
		if id, n, err = hasher.SumReader(f, opts...); err != nil {
			return e.fail(err)
		}
	}
	e.log.Debug("hashed", zap.Stringer("cid", id), zap.Uint64("bytes", n))
	_, _ = fmt.Fprintln(e.out, id.String())
	return 0
}

func cmdVerify(e *cmdEnv, args []string) int {
	fs, verbose := e.flags("verify")
	want := fs.String("cid", "", "Expected content identifier")
	asJSON := fs.Bool("json", false, "Emit JSON")
	if !e.parse(fs, verbose, args) {
		return 2
	}
	if *want == "" || fs.NArg() != 1 {
		fmt.Fprintln(e.errOut, "usage: xdao-ufs verify --cid <cid> <file|->")
		return 2
	}

	f, err := e.openInput(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(e.errOut, "open input: %v\n", err)
		return 1
	}
	defer f.Close()

	v, err := model.Verify(f, *want)
	if err != nil {
		return e.fail(err)
	}
	if *asJSON {
		if err := writeJSON(e.out, v); err != nil {
			return e.fail(err)
		}
	} else if v.Match {
		_, _ = fmt.Fprintf(e.out, "OK %s\n", v.Actual)
	} else {
		_, _ = fmt.Fprintf(e.out, "MISMATCH expected %s got %s\n", v.Expected, v.Actual)
	}
	if !v.Match {
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
