package state

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostsel/hostsel/alloc"
	"github.com/hostsel/hostsel/model"
)

func participant(id, name string, submitted bool, prefs ...string) *model.Participant {
	return &model.Participant{ParticipantID: id, Name: name, IsSubmitted: submitted, Preferences: prefs}
}

func TestSortRoster(t *testing.T) {
	ps := []*model.Participant{
		participant("4", "Dana", false),
		participant("2", "Bea", true),
		participant("3", "Al", false),
		participant("1", "Cy", true),
		participant("0", "Bea", true),
	}
	SortRoster(ps)

	var got []string
	for _, p := range ps {
		got = append(got, p.ParticipantID)
	}
	assert.Equal(t, []string{"0", "2", "1", "3", "4"}, got)
}

func TestMemStorageParticipants(t *testing.T) {
	ctx := context.Background()
	s := NewMemStorage()

	require.NoError(t, s.SaveParticipants(ctx, []*model.Participant{
		participant("p1", "Zed", false),
		participant("p2", "Amy", true, "A", "B"),
		participant("p3", "Bob", true, "B"),
	}))

	all, err := s.FetchParticipants(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "p2", all[0].ParticipantID)
	assert.Equal(t, "p3", all[1].ParticipantID)
	assert.Equal(t, "p1", all[2].ParticipantID)

	submitted, err := s.FetchParticipants(ctx, true)
	require.NoError(t, err)
	assert.Len(t, submitted, 2)

	// Callers get copies.
	all[0].Preferences[0] = "Q"
	p2, err := s.FetchParticipant(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, p2.Preferences)

	require.NoError(t, s.ResetParticipant(ctx, "p2"))
	p2, err = s.FetchParticipant(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, p2.IsSubmitted)
	assert.Empty(t, p2.Preferences)

	assert.ErrorIs(t, s.ResetParticipant(ctx, "nobody"), ErrNotFound)
	_, err = s.FetchParticipant(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.ClearAll(ctx, false))
	all, err = s.FetchParticipants(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemStorageSettings(t *testing.T) {
	ctx := context.Background()
	s := NewMemStorage()

	got, err := s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), got)

	bad := model.DefaultSettings()
	bad.CapacityPerInstructor = 0
	assert.Error(t, s.SaveSettings(ctx, bad))

	good := model.DefaultSettings()
	good.Instructors = []string{"A", "B"}
	good.CapacityPerInstructor = 3
	require.NoError(t, s.SaveSettings(ctx, good))
	good.Instructors[0] = "mutated"

	got, err = s.FetchSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.Instructors)
	assert.Equal(t, 3, got.CapacityPerInstructor)
}

func makeRun(t *testing.T, id string, at time.Time) *model.Run {
	t.Helper()
	res, err := alloc.Allocate([]alloc.Participant{
		{ID: "p1", Name: "One", Preferences: []alloc.InstructorID{"A", "B"}},
		{ID: "p2", Name: "Two"},
	}, []alloc.InstructorID{"A", "B"}, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return &model.Run{
		RunID:       id,
		GeneratedAt: at,
		Seed:        1,
		Scoring:     "sum",
		Slots:       model.DefaultSettings().Slots,
		Result:      res,
	}
}

func TestMemStorageRuns(t *testing.T) {
	ctx := context.Background()
	s := NewMemStorage()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.FetchCurrentRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	r1 := makeRun(t, "run-1", t0)
	r2 := makeRun(t, "run-2", t0.Add(time.Hour))
	r3 := makeRun(t, "run-3", t0.Add(2*time.Hour))
	for _, r := range []*model.Run{r1, r2, r3} {
		require.NoError(t, s.ReplaceAllocation(ctx, r))
	}
	assert.Error(t, s.ReplaceAllocation(ctx, r2), "run ids are unique")

	latest, err := s.FetchCurrentRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)
	if diff := cmp.Diff(r3.Result.Assignments, latest.Result.Assignments); diff != "" {
		t.Errorf("stored assignments differ (-want +got):\n%s", diff)
	}

	got, err := s.FetchRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, t0.Equal(got.GeneratedAt))
	_, err = s.FetchRun(ctx, "run-9")
	assert.ErrorIs(t, err, ErrNotFound)

	slugs, err := s.FetchRunSlugs(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, slugs, 2)
	assert.Equal(t, "run-3", slugs[0].RunID)
	assert.Equal(t, "run-2", slugs[1].RunID)
	assert.Equal(t, 2, slugs[0].Allocated)

	slugs, err = s.FetchRunSlugs(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, slugs)

	n, err := s.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pruned, err := s.PruneRuns(ctx, t0.Add(90*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)

	// Everything is old, but the current run stays.
	pruned, err = s.PruneRuns(ctx, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, pruned)
	latest, err = s.FetchCurrentRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)
}

func TestMemStorageRunsWithSameStamp(t *testing.T) {
	ctx := context.Background()
	s := NewMemStorage()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		require.NoError(t, s.ReplaceAllocation(ctx, makeRun(t, id, t0)))
	}

	latest, err := s.FetchCurrentRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)

	slugs, err := s.FetchRunSlugs(ctx, 0, -1)
	require.NoError(t, err)
	require.Len(t, slugs, 3)
	assert.Equal(t, "run-3", slugs[0].RunID)
	assert.Equal(t, "run-1", slugs[2].RunID)

	pruned, err := s.PruneRuns(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 2, pruned)
	latest, err = s.FetchCurrentRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-3", latest.RunID)
}

func TestMemStorageResetAndClearDropCurrentRun(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		drop     func(t *testing.T, s *MemStorage) error
		runsLeft int
		roster   int
	}{
		{"reset all", func(t *testing.T, s *MemStorage) error {
			n, err := s.ResetAllParticipants(ctx)
			assert.EqualValues(t, 2, n)
			return err
		}, 2, 2},
		{"clear keeping history", func(t *testing.T, s *MemStorage) error { return s.ClearAll(ctx, false) }, 2, 0},
		{"clear with history", func(t *testing.T, s *MemStorage) error { return s.ClearAll(ctx, true) }, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemStorage()
			require.NoError(t, s.SaveParticipants(ctx, []*model.Participant{
				participant("p1", "One", true, "A", "B"),
				participant("p2", "Two", false, "B"),
			}))
			require.NoError(t, s.ReplaceAllocation(ctx, makeRun(t, "run-1", t0)))
			require.NoError(t, s.ReplaceAllocation(ctx, makeRun(t, "run-2", t0.Add(time.Hour))))

			require.NoError(t, tt.drop(t, s))

			_, err := s.FetchCurrentRun(ctx)
			assert.ErrorIs(t, err, ErrNotFound)
			n, err := s.CountRuns(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.runsLeft, n)

			ps, err := s.FetchParticipants(ctx, false)
			require.NoError(t, err)
			require.Len(t, ps, tt.roster)
			for _, p := range ps {
				assert.False(t, p.IsSubmitted)
				assert.Empty(t, p.Preferences)
			}

			// A new run is current again, even one stamped earlier than a
			// dropped run.
			require.NoError(t, s.ReplaceAllocation(ctx, makeRun(t, "run-3", t0.Add(-time.Hour))))
			current, err := s.FetchCurrentRun(ctx)
			require.NoError(t, err)
			assert.Equal(t, "run-3", current.RunID)
		})
	}
}
