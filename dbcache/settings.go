package dbcache

import (
	"context"
	"sync"
	"time"

	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/state"
	"github.com/hostsel/hostsel/varz"
)

// Note that this assumes it is the only writer, and it is not: another admin
// process can save settings underneath us.  The TTL bounds how stale we get.

type Nower interface {
	Now() time.Time
}

type SettingsStorage struct {
	clock Nower
	ttl   time.Duration
	next  state.SettingsStorage

	lock      sync.Mutex
	cached    *model.Settings
	fetchedAt time.Time
}

var _ state.SettingsStorage = (*SettingsStorage)(nil)

var (
	settingsCacheHits   = varz.NewInt("settingsCacheHits")
	settingsCacheMisses = varz.NewInt("settingsCacheMisses")
)

func NewSettingsStorage(next state.SettingsStorage, clock Nower, ttl time.Duration) *SettingsStorage {
	return &SettingsStorage{
		next:  next,
		clock: clock,
		ttl:   ttl,
	}
}

func (s *SettingsStorage) Close() {
	s.next.Close()
}

// FetchSettings implements state.SettingsStorage.
func (s *SettingsStorage) FetchSettings(ctx context.Context) (*model.Settings, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.cached != nil && s.fetchedAt.Add(s.ttl).After(s.clock.Now()) {
		settingsCacheHits.Add(1)
		return s.cached.Clone(), nil
	}
	settingsCacheMisses.Add(1)
	settings, err := s.next.FetchSettings(ctx)
	if err != nil {
		return nil, err
	}
	s.fetchedAt = s.clock.Now()
	s.cached = settings.Clone()
	return settings, nil
}

// SaveSettings implements state.SettingsStorage.
func (s *SettingsStorage) SaveSettings(ctx context.Context, settings *model.Settings) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := s.next.SaveSettings(ctx, settings); err != nil {
		// Whatever is stored now, we don't know it.
		s.cached = nil
		return err
	}
	s.cached = settings.Clone()
	s.fetchedAt = s.clock.Now()
	return nil
}

// Invalidate forgets the cached settings, e.g. when another process saved
// new ones.
func (s *SettingsStorage) Invalidate() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.cached = nil
}
