// Package worker decodes frames on a pool of goroutines and hands them back in order.
package worker

import (
	"context"
	"sync"

	"github.com/andresmejia3/pipscan/internal/types"
	"github.com/andresmejia3/pipscan/internal/utils"
)

// Result is one decoded frame. Err is set when the source could not be read or decoded.
type Result struct {
	Index int
	Path  string
	Frame types.Frame
	Err   error
}

// DecodeFunc turns a task into a frame.
type DecodeFunc func(task types.FrameTask) (types.Frame, error)

// Decode is the default DecodeFunc: it decodes Data when present, else loads Path.
func Decode(task types.FrameTask) (types.Frame, error) {
	if task.Data != nil {
		return utils.DecodeFrame(task.Data)
	}
	return utils.LoadFrame(task.Path)
}

// Pool runs a fixed number of decoders.
type Pool struct {
	Workers int
	Decode  DecodeFunc
}

// Run consumes tasks until the channel closes or ctx is canceled, and closes the
// returned channel once every worker has exited. Results arrive in completion order.
func (p Pool) Run(ctx context.Context, tasks <-chan types.FrameTask) <-chan Result {
	n := p.Workers
	if n < 1 {
		n = 1
	}
	decode := p.Decode
	if decode == nil {
		decode = Decode
	}

	results := make(chan Result, n*2)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				frame, err := decode(task)
				select {
				case results <- Result{Index: task.Index, Path: task.Path, Frame: frame, Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// Ordered re-sequences results (Worker 2 might finish before Worker 1) and calls emit
// in strict index order starting at first. Indices must be consecutive. It returns
// the number of results emitted; anything stranded behind a gap is dropped.
func Ordered(results <-chan Result, first int, emit func(Result)) int {
	buffer := make(map[int]Result)
	next := first
	emitted := 0
	for res := range results {
		buffer[res.Index] = res
		for {
			r, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)
			emit(r)
			emitted++
			next++
		}
	}
	return emitted
}
