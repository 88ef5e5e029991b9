package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	calls atomic.Int32
	grace atomic.Int64
	done  chan struct{}
	err   error
}

func (f *fakeSweeper) SweepOrphanedDocuments(ctx context.Context, grace time.Duration) (int, error) {
	f.calls.Add(1)
	f.grace.Store(int64(grace))
	defer func() { f.done <- struct{}{} }()
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("sweep must run with a deadline")
	}
	return 3, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	sweeper := &fakeSweeper{done: make(chan struct{}, 1)}
	s := NewScheduler(sweeper, Config{SweepGrace: 2 * time.Hour}, discardLogger())

	s.RunNow()

	select {
	case <-sweeper.done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run")
	}
	assert.Equal(t, int32(1), sweeper.calls.Load())
	assert.Equal(t, int64(2*time.Hour), sweeper.grace.Load())
}

func TestScheduler_Defaults(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, Config{}, discardLogger())

	assert.Equal(t, "*/30 * * * *", s.cfg.SweepSchedule)
	assert.Equal(t, time.Hour, s.cfg.SweepGrace)
	assert.Equal(t, 10*time.Minute, s.cfg.SweepTimeout)
}

func TestScheduler_StartRegistersJob(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, Config{SweepSchedule: "0 3 * * *"}, discardLogger())

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 1)
	<-s.Stop().Done()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&fakeSweeper{}, Config{SweepSchedule: "every now and then"}, discardLogger())

	assert.Error(t, s.Start())
}

func TestScheduler_SweepErrorIsLogged(t *testing.T) {
	sweeper := &fakeSweeper{done: make(chan struct{}, 1), err: errors.New("db down")}
	s := NewScheduler(sweeper, Config{}, discardLogger())

	s.sweepOrphanedDocuments()
	<-sweeper.done
	assert.Equal(t, int32(1), sweeper.calls.Load())
}
