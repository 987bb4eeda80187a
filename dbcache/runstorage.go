package dbcache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/state"
	"github.com/hostsel/hostsel/varz"
)

var (
	runCacheHits   = varz.NewInt("runCacheHits")
	runCacheMisses = varz.NewInt("runCacheMisses")
)

// RunStorage caches runs by id.  A run never changes once recorded, so
// the only invalidation is pruning.  Cached runs are shared; callers must
// not modify them.
type RunStorage struct {
	cache *lru.Cache[string, *model.Run]
	next  state.RunStorage
}

var _ state.RunStorage = (*RunStorage)(nil)

func NewRunStorage(size int, next state.RunStorage) *RunStorage {
	cache, err := lru.New[string, *model.Run](size)
	if err != nil {
		log.Fatalf("Failed to create RunStorage cache: %v", err)
	}
	return &RunStorage{
		cache: cache,
		next:  next,
	}
}

func (s *RunStorage) Close() {
	s.next.Close()
}

func (s *RunStorage) ReplaceAllocation(ctx context.Context, run *model.Run) error {
	if err := s.next.ReplaceAllocation(ctx, run); err != nil {
		return err
	}
	s.cache.Add(run.RunID, run)
	return nil
}

// FetchCurrentRun always asks storage which run is current, since another
// process may have generated or dropped one.
func (s *RunStorage) FetchCurrentRun(ctx context.Context) (*model.Run, error) {
	run, err := s.next.FetchCurrentRun(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Add(run.RunID, run)
	return run, nil
}

func (s *RunStorage) FetchRun(ctx context.Context, id string) (*model.Run, error) {
	if run, ok := s.cache.Get(id); ok {
		runCacheHits.Add(1)
		return run, nil
	}
	runCacheMisses.Add(1)
	run, err := s.next.FetchRun(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, run)
	return run, nil
}

func (s *RunStorage) FetchRunSlugs(ctx context.Context, offset, limit int) ([]*model.RunSlug, error) {
	return s.next.FetchRunSlugs(ctx, offset, limit)
}

func (s *RunStorage) CountRuns(ctx context.Context) (int, error) {
	return s.next.CountRuns(ctx)
}

// PruneRuns drops the whole cache, which is cheaper than working out which
// entries went away.
func (s *RunStorage) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.next.PruneRuns(ctx, before)
	if n > 0 || err != nil {
		s.cache.Purge()
	}
	return n, err
}
