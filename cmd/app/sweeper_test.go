package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunSweeper(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		var calls atomic.Int32
		sweep := func(context.Context) (outbox.SweepResult, error) {
			calls.Add(1)
			return outbox.SweepResult{}, nil
		}

		done := make(chan struct{})
		go func() {
			runSweeper(context.Background(), 0, sweep, nil, zap.NewNop())
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("runSweeper did not return with a zero interval")
		}
		assert.Zero(t, calls.Load())
	})

	t.Run("Sweeps Until Cancelled", func(t *testing.T) {
		var sweeps, purges atomic.Int32
		sweep := func(context.Context) (outbox.SweepResult, error) {
			sweeps.Add(1)
			return outbox.SweepResult{Attempted: 1, Sent: 1}, nil
		}
		purge := func(context.Context) (int64, error) {
			purges.Add(1)
			return 0, nil
		}

		core, logs := observer.New(zapcore.InfoLevel)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			runSweeper(ctx, 5*time.Millisecond, sweep, purge, zap.New(core))
			close(done)
		}()

		assert.Eventually(t, func() bool { return sweeps.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		<-done
		assert.GreaterOrEqual(t, purges.Load(), int32(1))
		// The dispatcher reports each sweep itself.
		assert.Zero(t, logs.FilterMessage("outbox sweep finished").Len())
	})
}
