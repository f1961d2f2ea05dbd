package tts_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/tts-bridge/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockPurge = errors.New("mock purge error")

// mockAudioStore counts purge passes and optionally fails them.
type mockAudioStore struct {
	purges    atomic.Int32
	failPurge bool
}

func (m *mockAudioStore) Save(name string, _ []byte) (string, error) {
	return filepath.Join("/scratch", name), nil
}

func (m *mockAudioStore) Purge() (tts.PurgeResult, error) {
	m.purges.Add(1)

	if m.failPurge {
		return tts.PurgeResult{}, errMockPurge
	}

	return tts.PurgeResult{Deleted: 0, Failed: 0}, nil
}

func (m *mockAudioStore) Dir() string {
	return "/scratch"
}

func TestCleanupScheduler_DisabledNeverRuns(t *testing.T) {
	t.Parallel()

	for _, interval := range []time.Duration{0, -time.Hour} {
		store := &mockAudioStore{}
		scheduler := tts.NewCleanupScheduler(store, interval, newTestLogger(t))

		started := scheduler.Start(context.Background())
		assert.False(t, started)
		assert.Equal(t, tts.CleanupDisabled, scheduler.State())

		select {
		case <-scheduler.Done():
		case <-time.After(time.Second):
			t.Fatal("disabled scheduler should report done immediately")
		}

		time.Sleep(20 * time.Millisecond)
		assert.Zero(t, store.purges.Load())
	}
}

func TestCleanupScheduler_PurgesImmediatelyThenPeriodically(t *testing.T) {
	t.Parallel()

	store := &mockAudioStore{}
	scheduler := tts.NewCleanupScheduler(store, 10*time.Millisecond, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, scheduler.Start(ctx))
	assert.Equal(t, tts.CleanupRunning, scheduler.State())
	assert.False(t, scheduler.Start(ctx), "second start must be a no-op")

	require.Eventually(t, func() bool {
		return store.purges.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()

	select {
	case <-scheduler.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}

	assert.Equal(t, tts.CleanupStopped, scheduler.State())
}

func TestCleanupScheduler_FirstPassIsImmediate(t *testing.T) {
	t.Parallel()

	store := &mockAudioStore{}
	scheduler := tts.NewCleanupScheduler(store, time.Hour, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, scheduler.Start(ctx))

	require.Eventually(t, func() bool {
		return store.purges.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestCleanupScheduler_SurvivesFailedPasses(t *testing.T) {
	t.Parallel()

	store := &mockAudioStore{failPurge: true}
	scheduler := tts.NewCleanupScheduler(store, 10*time.Millisecond, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, scheduler.Start(ctx))

	require.Eventually(t, func() bool {
		return store.purges.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, tts.CleanupRunning, scheduler.State())
}

func TestCleanupScheduler_RemovesArtifacts(t *testing.T) {
	t.Parallel()

	store, err := tts.NewDirStore(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	path, err := store.Save("1_2_hi.wav", []byte("audio"))
	require.NoError(t, err)

	scheduler := tts.NewCleanupScheduler(store, time.Hour, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.True(t, scheduler.Start(ctx))

	require.Eventually(t, func() bool {
		_, statErr := os.Stat(path)

		return os.IsNotExist(statErr)
	}, time.Second, 5*time.Millisecond)
}
