package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"xdao.co/ufs/hasher"
	"xdao.co/ufs/internal/vectors"
)

func main() {
	fs := pflag.NewFlagSet("ufs_vector_gen", pflag.ExitOnError)
	path := fs.String("vectors", vectors.DefaultPath(), "vectors.json to check or rewrite")
	write := fs.Bool("write", false, "Rewrite cid fields in place instead of checking them")
	_ = fs.Parse(os.Args[1:])

	f, err := vectors.Load(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	f.ChunkSize, f.MaxLinks = hasher.ChunkSize, hasher.MaxLinks

	stale := 0
	for i := range f.Vectors {
		v := &f.Vectors[i]
		data, err := v.Payload()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		got := hasher.Sum(data).String()
		if got == v.CID {
			continue
		}
		stale++
		fmt.Printf("%s: %s -> %s\n", v.Name, v.CID, got)
		v.CID = got
	}

	if !*write {
		if stale > 0 {
			fmt.Fprintf(os.Stderr, "%d stale vector(s); rerun with --write\n", stale)
			os.Exit(1)
		}
		fmt.Printf("%d vectors OK\n", len(f.Vectors))
		return
	}
	if err := vectors.Save(*path, f); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d updated)\n", *path, stale)
}
