package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hostsel/hostsel/model"
)

// MemStorage keeps everything in process.  The admin tool uses it when
// allocating straight from a roster file, and tests use it everywhere.
type MemStorage struct {
	lock         sync.Mutex
	participants map[string]*model.Participant
	settings     *model.Settings
	// runs is in insertion order.
	runs []*model.Run
	// cleared holds the ids of runs dropped by a reset or clear.
	cleared map[string]bool
}

var _ Storage = &MemStorage{}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		participants: map[string]*model.Participant{},
		cleared:      map[string]bool{},
	}
}

func (s *MemStorage) Close() {}

func (s *MemStorage) FetchParticipants(_ context.Context, onlySubmitted bool) ([]*model.Participant, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	ps := []*model.Participant{}
	for _, p := range s.participants {
		if onlySubmitted && !p.IsSubmitted {
			continue
		}
		ps = append(ps, p.Clone())
	}
	SortRoster(ps)
	return ps, nil
}

func (s *MemStorage) FetchParticipant(_ context.Context, id string) (*model.Participant, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return nil, fmt.Errorf("participant %q: %w", id, ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *MemStorage) SaveParticipants(_ context.Context, ps []*model.Participant) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, p := range ps {
		s.participants[p.ParticipantID] = p.Clone()
	}
	return nil
}

func (s *MemStorage) ResetParticipant(_ context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return fmt.Errorf("participant %q: %w", id, ErrNotFound)
	}
	p.Preferences = nil
	p.IsSubmitted = false
	p.SubmittedAt = nil
	return nil
}

func (s *MemStorage) ResetAllParticipants(_ context.Context) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, p := range s.participants {
		p.Preferences = nil
		p.IsSubmitted = false
		p.SubmittedAt = nil
	}
	s.clearCurrent()
	return int64(len(s.participants)), nil
}

func (s *MemStorage) ClearAll(_ context.Context, history bool) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.participants = map[string]*model.Participant{}
	if history {
		s.runs = nil
		s.cleared = map[string]bool{}
		return nil
	}
	s.clearCurrent()
	return nil
}

// clearCurrent marks every run as dropped.  Caller holds the lock.
func (s *MemStorage) clearCurrent() {
	for _, r := range s.runs {
		s.cleared[r.RunID] = true
	}
}

func (s *MemStorage) FetchSettings(_ context.Context) (*model.Settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.settings == nil {
		return model.DefaultSettings(), nil
	}
	return s.settings.Clone(), nil
}

func (s *MemStorage) SaveSettings(_ context.Context, settings *model.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	s.settings = settings.Clone()
	return nil
}

// cloneRun deep-copies through JSON, the same trip a run takes through the
// database.
func cloneRun(run *model.Run) (*model.Run, error) {
	bytes, err := json.Marshal(run)
	if err != nil {
		return nil, err
	}
	cpy := &model.Run{}
	if err := json.Unmarshal(bytes, cpy); err != nil {
		return nil, err
	}
	return cpy, nil
}

func (s *MemStorage) ReplaceAllocation(_ context.Context, run *model.Run) error {
	cpy, err := cloneRun(run)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, r := range s.runs {
		if r.RunID == run.RunID {
			return fmt.Errorf("run %s already recorded", run.RunID)
		}
	}
	s.runs = append(s.runs, cpy)
	return nil
}

// latest is the most recently generated run, later inserts winning ties.
// With current set, dropped runs are skipped.  Caller holds the lock.
func (s *MemStorage) latest(current bool) *model.Run {
	var best *model.Run
	for _, r := range s.runs {
		if current && s.cleared[r.RunID] {
			continue
		}
		if best == nil || !r.GeneratedAt.Before(best.GeneratedAt) {
			best = r
		}
	}
	return best
}

func (s *MemStorage) FetchCurrentRun(_ context.Context) (*model.Run, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r := s.latest(true)
	if r == nil {
		return nil, fmt.Errorf("current run: %w", ErrNotFound)
	}
	return cloneRun(r)
}

func (s *MemStorage) FetchRun(_ context.Context, id string) (*model.Run, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, r := range s.runs {
		if r.RunID == id {
			return cloneRun(r)
		}
	}
	return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
}

func (s *MemStorage) FetchRunSlugs(_ context.Context, offset, limit int) ([]*model.RunSlug, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Newest insert first, so equal stamps list the way latest picks them.
	slugs := make([]*model.RunSlug, 0, len(s.runs))
	for i := len(s.runs) - 1; i >= 0; i-- {
		slugs = append(slugs, s.runs[i].Slug())
	}
	sort.SliceStable(slugs, func(i, j int) bool {
		return slugs[i].GeneratedAt.After(slugs[j].GeneratedAt)
	})
	offset = max(offset, 0)
	if offset >= len(slugs) {
		return []*model.RunSlug{}, nil
	}
	slugs = slugs[offset:]
	if limit >= 0 && limit < len(slugs) {
		slugs = slugs[:limit]
	}
	return slugs, nil
}

func (s *MemStorage) CountRuns(_ context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.runs), nil
}

func (s *MemStorage) PruneRuns(_ context.Context, before time.Time) (int64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	keep := s.latest(false)
	var n int64
	kept := s.runs[:0]
	for _, r := range s.runs {
		if r != keep && r.GeneratedAt.Before(before) {
			delete(s.cleared, r.RunID)
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.runs = kept
	return n, nil
}
