package dbcache

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostsel/hostsel/alloc"
	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/state"
)

// countingStorage counts the reads that get past the cache.
type countingStorage struct {
	*state.MemStorage
	settingsReads int
	runReads      int
}

func (c *countingStorage) FetchSettings(ctx context.Context) (*model.Settings, error) {
	c.settingsReads++
	return c.MemStorage.FetchSettings(ctx)
}

func (c *countingStorage) FetchRun(ctx context.Context, id string) (*model.Run, error) {
	c.runReads++
	return c.MemStorage.FetchRun(ctx, id)
}

func TestSettingsStorageTTL(t *testing.T) {
	ctx := context.Background()
	next := &countingStorage{MemStorage: state.NewMemStorage()}
	clock := clockwork.NewFakeClock()
	s := NewSettingsStorage(next, clock, 30*time.Minute)

	_, err := s.FetchSettings(ctx)
	require.NoError(t, err)
	_, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next.settingsReads)

	clock.Advance(29 * time.Minute)
	_, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next.settingsReads)

	clock.Advance(2 * time.Minute)
	_, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.settingsReads)

	s.Invalidate()
	_, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, next.settingsReads)
}

func TestSettingsStorageSaveRefreshesCache(t *testing.T) {
	ctx := context.Background()
	next := &countingStorage{MemStorage: state.NewMemStorage()}
	s := NewSettingsStorage(next, clockwork.NewFakeClock(), time.Hour)

	updated := model.DefaultSettings()
	updated.CapacityPerInstructor = 5
	require.NoError(t, s.SaveSettings(ctx, updated))

	got, err := s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CapacityPerInstructor)
	assert.Equal(t, 0, next.settingsReads)

	// Callers can't reach into the cache.
	got.Instructors[0] = "mutated"
	again, err := s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Instructor 1", again.Instructors[0])

	bad := model.DefaultSettings()
	bad.Instructors = nil
	assert.Error(t, s.SaveSettings(ctx, bad))
	got, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.CapacityPerInstructor)
	assert.Equal(t, 1, next.settingsReads)
}

func testRun(t *testing.T, id string, at time.Time) *model.Run {
	t.Helper()
	res, err := alloc.Allocate([]alloc.Participant{
		{ID: "p1", Name: "One", Preferences: []alloc.InstructorID{"A", "B"}},
	}, []alloc.InstructorID{"A", "B"}, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return &model.Run{RunID: id, GeneratedAt: at, Result: res}
}

func TestRunStorageCachesByID(t *testing.T) {
	ctx := context.Background()
	next := &countingStorage{MemStorage: state.NewMemStorage()}
	s := NewRunStorage(4, next)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.ReplaceAllocation(ctx, testRun(t, "r1", t0)))
	got, err := s.FetchRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
	assert.Equal(t, 0, next.runReads)

	_, err = s.FetchRun(ctx, "missing")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.Equal(t, 1, next.runReads)

	require.NoError(t, s.ReplaceAllocation(ctx, testRun(t, "r2", t0.Add(time.Hour))))
	latest, err := s.FetchCurrentRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", latest.RunID)

	n, err := s.PruneRuns(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = s.FetchRun(ctx, "r1")
	assert.ErrorIs(t, err, state.ErrNotFound)
	assert.Equal(t, 2, next.runReads)

	count, err := s.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
