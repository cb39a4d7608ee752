package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"math/rand"
	"testing"
	"time"

	"github.com/andresmejia3/pipscan/internal/types"
)

func feed(tasks []types.FrameTask) <-chan types.FrameTask {
	ch := make(chan types.FrameTask, len(tasks))
	for _, t := range tasks {
		ch <- t
	}
	close(ch)
	return ch
}

func TestPoolDecodesEveryTask(t *testing.T) {
	var tasks []types.FrameTask
	for i := 0; i < 20; i++ {
		tasks = append(tasks, types.FrameTask{Index: i})
	}

	// Jitter the decode time so completions arrive out of order.
	rng := rand.New(rand.NewSource(7))
	delays := make([]time.Duration, len(tasks))
	for i := range delays {
		delays[i] = time.Duration(rng.Intn(3)) * time.Millisecond
	}
	pool := Pool{
		Workers: 4,
		Decode: func(task types.FrameTask) (types.Frame, error) {
			time.Sleep(delays[task.Index])
			return types.Frame{Width: task.Index}, nil
		},
	}

	var order []int
	n := Ordered(pool.Run(context.Background(), feed(tasks)), 0, func(r Result) {
		if r.Frame.Width != r.Index {
			t.Errorf("Result %d carries frame for %d", r.Index, r.Frame.Width)
		}
		order = append(order, r.Index)
	})
	if n != len(tasks) {
		t.Fatalf("Expected %d results, got %d", len(tasks), n)
	}
	for i, idx := range order {
		if idx != i {
			t.Fatalf("Out of order emission: %v", order)
		}
	}
}

func TestPoolReportsDecodeErrors(t *testing.T) {
	bad := errors.New("corrupt")
	pool := Pool{
		Workers: 2,
		Decode: func(task types.FrameTask) (types.Frame, error) {
			if task.Index == 1 {
				return types.Frame{}, bad
			}
			return types.Frame{}, nil
		},
	}
	var failed []int
	Ordered(pool.Run(context.Background(), feed([]types.FrameTask{{Index: 0}, {Index: 1}, {Index: 2}})), 0, func(r Result) {
		if r.Err != nil {
			failed = append(failed, r.Index)
		}
	})
	if len(failed) != 1 || failed[0] != 1 {
		t.Errorf("Expected only frame 1 to fail, got %v", failed)
	}
}

func TestDefaultDecodeUsesData(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 5, 2))); err != nil {
		t.Fatal(err)
	}
	f, err := Decode(types.FrameTask{Data: buf.Bytes(), Path: "/does/not/exist.png"})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if f.Width != 5 || f.Height != 2 || len(f.Pix) != 5*2*4 {
		t.Errorf("Unexpected frame %dx%d with %d bytes", f.Width, f.Height, len(f.Pix))
	}

	if _, err := Decode(types.FrameTask{Path: "/does/not/exist.png"}); err == nil {
		t.Error("Expected error for a missing file")
	}
}

func TestOrderedDropsAfterGap(t *testing.T) {
	ch := make(chan Result, 3)
	ch <- Result{Index: 2}
	ch <- Result{Index: 0}
	ch <- Result{Index: 3}
	close(ch)

	var got []int
	n := Ordered(ch, 0, func(r Result) { got = append(got, r.Index) })
	if n != 1 || len(got) != 1 || got[0] != 0 {
		t.Errorf("Expected only index 0 before the gap, got %v", got)
	}
}

func TestPoolStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tasks := make(chan types.FrameTask)
	results := Pool{Workers: 2, Decode: func(types.FrameTask) (types.Frame, error) { return types.Frame{}, nil }}.Run(ctx, tasks)

	cancel()
	close(tasks)
	select {
	case _, ok := <-results:
		for ok {
			_, ok = <-results
		}
	case <-time.After(time.Second):
		t.Fatal("Results channel was not closed after cancel")
	}
}
