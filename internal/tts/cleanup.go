package tts

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-bridge/internal/metrics"
)

// CleanupState is the lifecycle state of a CleanupScheduler.
type CleanupState int32

const (
	// CleanupIdle means Start has not been called yet.
	CleanupIdle CleanupState = iota
	// CleanupDisabled means the interval is not positive; no task ever runs.
	CleanupDisabled
	// CleanupRunning means the purge loop is active.
	CleanupRunning
	// CleanupStopped means the loop exited after its context was cancelled.
	CleanupStopped
)

// Log messages.
const (
	logCleanupEnabled  = "Scratch cleanup enabled, interval %s."
	logCleanupDisabled = "Scratch cleanup disabled."
	logCleanupStopped  = "Scratch cleanup stopped."
	logPurgeFailed     = "Scratch purge failed: %v"
)

// CleanupScheduler purges the scratch directory once at start and then on a
// fixed interval. It is the only component that deletes audio artifacts.
type CleanupScheduler struct {
	store    AudioStore
	interval time.Duration
	log      *logger.Logger
	state    atomic.Int32
	done     chan struct{}
}

// NewCleanupScheduler creates a scheduler. The interval cannot change later.
func NewCleanupScheduler(store AudioStore, interval time.Duration, log *logger.Logger) *CleanupScheduler {
	return &CleanupScheduler{
		store:    store,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start launches the purge loop and reports whether it did. A non-positive
// interval leaves the scheduler disabled. Cancelling ctx stops the loop.
// Calls after the first are no-ops.
func (s *CleanupScheduler) Start(ctx context.Context) bool {
	if s.interval <= 0 {
		if s.state.CompareAndSwap(int32(CleanupIdle), int32(CleanupDisabled)) {
			s.log.Info(logCleanupDisabled)
			close(s.done)
		}

		return false
	}

	if !s.state.CompareAndSwap(int32(CleanupIdle), int32(CleanupRunning)) {
		return false
	}

	s.log.Info(logCleanupEnabled, s.interval)

	go s.loop(ctx)

	return true
}

// State returns the current lifecycle state.
func (s *CleanupScheduler) State() CleanupState {
	return CleanupState(s.state.Load())
}

// Done is closed once the loop has exited, or immediately when disabled.
func (s *CleanupScheduler) Done() <-chan struct{} {
	return s.done
}

func (s *CleanupScheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.state.Store(int32(CleanupStopped))

	s.purgeOnce()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info(logCleanupStopped)

			return
		case <-timer.C:
			s.purgeOnce()
			timer.Reset(s.interval)
		}
	}
}

// purgeOnce runs one pass; a failed pass is logged and the loop carries on.
func (s *CleanupScheduler) purgeOnce() {
	result, err := s.store.Purge()
	if err != nil {
		s.log.Error(logPurgeFailed, err)
		metrics.RecordPurgeError()

		return
	}

	metrics.RecordPurge(result.Deleted, result.Failed)
}
