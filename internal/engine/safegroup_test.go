package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marketpack/marketpack/internal/engine"
)

func TestSafeGroup_RecoversPanic(t *testing.T) {
	group, _ := engine.NewSafeGroup(context.Background(), nil)

	var ran atomic.Bool
	group.Go("5.3", func() error { panic("boom") })
	group.Go("5.4", func() error {
		ran.Store(true)
		return nil
	})

	err := group.Wait()
	if err == nil || !strings.Contains(err.Error(), "5.3: goroutine panic: boom") {
		t.Errorf("Wait() error = %v", err)
	}
	if !ran.Load() {
		t.Error("sibling task did not run")
	}
}

func TestSafeGroup_ReturnsFirstError(t *testing.T) {
	group, ctx := engine.NewSafeGroup(context.Background(), nil)
	want := errors.New("failed")

	group.Go("a", func() error { return want })
	group.Go("b", func() error {
		<-ctx.Done()
		return nil
	})

	if err := group.Wait(); !errors.Is(err, want) {
		t.Errorf("Wait() error = %v, want %v", err, want)
	}
}

func TestSafeGroup_SetLimit(t *testing.T) {
	group, _ := engine.NewSafeGroup(context.Background(), nil)
	group.SetLimit(2)

	var running, peak atomic.Int32
	for i := 0; i < 6; i++ {
		group.Go("task", func() error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatal(err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}
