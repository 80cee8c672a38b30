package hasher

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Strategy decides how the independent chunks of one node are hashed.
// Results are always assembled in slice order, so every strategy yields
// the same identifiers.
type Strategy interface {
	forEach(n int, fn func(i int) error) error
}

// Sequential hashes chunks one after another on the calling goroutine.
var Sequential Strategy = sequential{}

type sequential struct{}

func (sequential) forEach(n int, fn func(i int) error) error {
	for i := 0; i < n; i++ {
		if err := fn(i); err != nil {
			return err
		}
	}
	return nil
}

// Parallel hashes the chunks of each node on up to workers goroutines.
// workers <= 0 means GOMAXPROCS.
func Parallel(workers int) Strategy {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return parallel{workers: workers}
}

type parallel struct {
	workers int
}

func (p parallel) forEach(n int, fn func(i int) error) error {
	if p.workers == 1 || n < 2 {
		return sequential{}.forEach(n, fn)
	}
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}
