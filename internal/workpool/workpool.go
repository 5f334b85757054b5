// Package workpool runs independent tasks on a bounded number of goroutines.
package workpool

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// CPUs left for the rest of the system when the thread count is automatic
const reserveCPUs = 1

// Threads returns the number of workers for a requested thread count.
// Zero or less means all CPUs but one.
func Threads(requested int) int {
	if requested > 0 {
		return requested
	}
	return max(runtime.NumCPU()-reserveCPUs, 1)
}

// Pool runs the tasks of one pipeline stage
type Pool struct {
	Name    string
	Threads int
}

// New returns a pool for a stage
func New(name string, threads int) *Pool {
	return &Pool{Name: name, Threads: Threads(threads)}
}

// Run calls task for units 0..n-1 and waits for all of them. A failing
// task is logged and does not stop the others. Run returns the number of
// failed units. Cancelling ctx is only reported; started tasks complete.
func (p *Pool) Run(ctx context.Context, n int, task func(unit int) error) int {
	var g errgroup.Group
	g.SetLimit(p.Threads)
	var failed atomic.Int64
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
				if err != nil {
					failed.Add(1)
					log.Printf("%s: unit %d: %v", p.Name, i, err)
				}
			}()
			return task(i)
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		log.Printf("%s: interrupted (%v), results are complete", p.Name, ctx.Err())
	}
	return int(failed.Load())
}
