package state

// package state manages persistence.

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/hostsel/hostsel/model"
)

var (
	// ErrNotFound is returned (wrapped) when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadySubmitted means a participant's preferences are locked until
	// an admin resets them.
	ErrAlreadySubmitted = errors.New("preferences already submitted")
)

type Closer interface {
	Close()
}

// ParticipantStorage holds the roster.
type ParticipantStorage interface {
	Closer

	// FetchParticipants returns the roster with submitted participants first,
	// then by name.  That order is the allocation priority.
	FetchParticipants(ctx context.Context, onlySubmitted bool) ([]*model.Participant, error)
	FetchParticipant(ctx context.Context, id string) (*model.Participant, error)
	// SaveParticipants inserts or replaces each participant by id.
	SaveParticipants(ctx context.Context, ps []*model.Participant) error
	// ResetParticipant clears preferences and the submitted flag.
	ResetParticipant(ctx context.Context, id string) error
	// ResetAllParticipants clears everyone's preferences and submitted flag
	// and drops the current allocation, returning how many participants it
	// touched.  History is kept.
	ResetAllParticipants(ctx context.Context) (int64, error)
	// ClearAll removes every participant and drops the current allocation.
	// Run history goes too when history is set.
	ClearAll(ctx context.Context, history bool) error
}

type SettingsStorage interface {
	Closer

	// FetchSettings returns stored settings, or model.DefaultSettings if
	// nothing has been saved yet.
	FetchSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s *model.Settings) error
}

type RunStorage interface {
	Closer

	// ReplaceAllocation makes run the current allocation and appends it to
	// history, all or nothing.
	ReplaceAllocation(ctx context.Context, run *model.Run) error
	// FetchCurrentRun returns the newest run that hasn't been dropped by a
	// reset or clear.  Runs with the same stamp are ordered by when they
	// were stored.
	FetchCurrentRun(ctx context.Context) (*model.Run, error)
	FetchRun(ctx context.Context, id string) (*model.Run, error)
	// FetchRunSlugs lists history newest first.  A negative limit means no
	// limit.
	FetchRunSlugs(ctx context.Context, offset, limit int) ([]*model.RunSlug, error)
	CountRuns(ctx context.Context) (int, error)
	// PruneRuns deletes history older than before, except the newest run,
	// whether or not it is still current.
	PruneRuns(ctx context.Context, before time.Time) (int64, error)
}

// Storage is everything the allocation manager needs.
type Storage interface {
	ParticipantStorage
	SettingsStorage
	RunStorage
}

// SortRoster puts ps in allocation priority order: submitted first, then by
// name, then by id so equal names are stable.
func SortRoster(ps []*model.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.IsSubmitted != b.IsSubmitted {
			return a.IsSubmitted
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ParticipantID < b.ParticipantID
	})
}
