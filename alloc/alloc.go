// Package alloc assigns participants to one instructor per time slot.
//
// Every participant gets a different instructor in each slot, and no
// instructor takes more than the configured number of participants in any
// one slot.  Participants are placed strictly in the order the caller gives
// them; whoever comes first gets first pick of scarce seats, so input order
// is the fairness policy and belongs to the caller.
//
// For each participant we first walk the ordered tuples drawn from their
// ranked preferences, best score first, and take the first one that fits.
// If none fits (or the list is too short to form a tuple) we shuffle the
// instructors and take any tuple that fits.  If nothing fits at all, the
// participant is reported as unallocated; that is data, not an error.
//
// The engine keeps nothing between calls.  All randomness comes from the
// *rand.Rand handed to New, so a fixed seed gives a fixed result.
package alloc

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hostsel/hostsel/ick"
)

// DefaultSlots is the number of slots when Config.Slots is zero.
const DefaultSlots = 2

// InstructorID names an instructor.  It is opaque to the engine.
type InstructorID string

// Participant is one member of the roster, with preferences most-preferred
// first.  Preferences may be empty, short, or name instructors that don't
// exist; none of that is an error.
type Participant struct {
	ID          string
	Name        string
	Preferences []InstructorID
}

// Ref returns the short form of p kept in rosters and results.
func (p Participant) Ref() ParticipantRef {
	return ParticipantRef{ID: p.ID, Name: p.Name}
}

type ParticipantRef struct {
	ID   string `json:"participant_id"`
	Name string `json:"name"`
}

// Method says how an assignment was found.
type Method string

const (
	MethodPreference Method = "preference"
	MethodRandom     Method = "random"
)

// Reason explains a fallback or a failure.
type Reason string

const (
	// ReasonNoPreferences: the participant ranked nobody, so we went straight
	// to the random fallback.
	ReasonNoPreferences Reason = "no_preferences"
	// ReasonPreferencesUnavailable: the participant ranked somebody, but no
	// tuple from the list had room (or the list was too short).
	ReasonPreferencesUnavailable Reason = "preferences_unavailable"
	// ReasonCapacityExhausted: no tuple of distinct instructors had room.
	ReasonCapacityExhausted Reason = "capacity_exhausted"
)

// Assignment places one participant.  Instructors and Ranks are indexed by
// slot (index 0 is slot 1).  A rank is the 0-based position of the
// instructor in the participant's preference list, or -1 for a random pick.
type Assignment struct {
	Participant ParticipantRef `json:"participant"`
	Instructors []InstructorID `json:"instructors"`
	Ranks       []int          `json:"ranks"`
	Method      Method         `json:"method"`
	Reason      Reason         `json:"reason,omitempty"`
}

// BestRank returns the lowest preference rank satisfied by a, if any.
// Random assignments never satisfy a preference, even by accident.
func (a *Assignment) BestRank() (int, bool) {
	if a.Method != MethodPreference {
		return 0, false
	}
	best := -1
	for _, r := range a.Ranks {
		if r >= 0 && (best < 0 || r < best) {
			best = r
		}
	}
	return best, best >= 0
}

// Unallocated is a participant we couldn't place.
type Unallocated struct {
	Participant ParticipantRef `json:"participant"`
	Reason      Reason         `json:"reason"`
}

// Result is the output of one run.  It is built fresh every time and nothing
// in the engine holds on to it.
type Result struct {
	Assignments []Assignment  `json:"assignments"`
	Stats       Stats         `json:"stats"`
	Unallocated []Unallocated `json:"unallocated"`
}

// Config is everything a run needs besides the roster.
type Config struct {
	Instructors     []InstructorID
	CapacityPerSlot int
	// Slots is the number of sessions; zero means DefaultSlots.
	Slots   int
	Scoring Scoring
}

// SlotCount returns the effective number of slots.
func (c Config) SlotCount() int {
	if c.Slots == 0 {
		return DefaultSlots
	}
	return c.Slots
}

func (c Config) validate() error {
	if len(c.Instructors) == 0 {
		return &ConfigError{Field: "instructors", Reason: "must not be empty"}
	}
	seen := make(map[InstructorID]bool, len(c.Instructors))
	for _, id := range c.Instructors {
		if id == "" {
			return &ConfigError{Field: "instructors", Reason: "must not contain an empty id"}
		}
		if seen[id] {
			return &ConfigError{Field: "instructors", Reason: "contains duplicate id " + string(id)}
		}
		seen[id] = true
	}
	if c.CapacityPerSlot < 1 {
		return &ConfigError{Field: "capacity", Reason: "must be at least 1"}
	}
	if c.SlotCount() < 1 {
		return &ConfigError{Field: "slots", Reason: "must be at least 1"}
	}
	if !c.Scoring.valid() {
		return &ConfigError{Field: "scoring", Reason: "is not a known policy"}
	}
	return nil
}

// Engine runs allocations for one configuration.
type Engine struct {
	cfg Config
	rng *rand.Rand
	log log.FieldLogger
}

type Option func(*Engine)

// WithLogger sends per-participant chatter to l instead of the standard
// logger.
func WithLogger(l log.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New checks cfg and returns an engine.  A nil rng gets a clock-seeded one,
// which is fine for production and useless for tests.
func New(cfg Config, rng *rand.Rand, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cfg.Instructors = append([]InstructorID(nil), cfg.Instructors...)
	e := &Engine{
		cfg: cfg,
		rng: rng,
		log: log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Allocate is the three-argument form: two slots, sum-of-ranks scoring.
func Allocate(participants []Participant, instructors []InstructorID, capacity int, rng *rand.Rand) (*Result, error) {
	e, err := New(Config{Instructors: instructors, CapacityPerSlot: capacity}, rng)
	if err != nil {
		return nil, err
	}
	return e.Allocate(participants), nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	cfg := e.cfg
	cfg.Instructors = append([]InstructorID(nil), e.cfg.Instructors...)
	return cfg
}

// Allocate places participants in the order given.
func (e *Engine) Allocate(participants []Participant) *Result {
	r := &run{
		Engine:     e,
		table:      NewTable(e.cfg.Instructors, e.cfg.SlotCount(), e.cfg.CapacityPerSlot),
		candidates: map[string][]candidate{},
	}

	res := &Result{
		Assignments: []Assignment{},
		Unallocated: []Unallocated{},
	}
	longest := 0
	for _, p := range participants {
		longest = max(longest, len(p.Preferences))
		a, ok := r.place(p)
		if !ok {
			e.log.WithField("participant", p.ID).Infof("can't place %s: every instructor combination is full", p.Name)
			res.Unallocated = append(res.Unallocated, Unallocated{
				Participant: p.Ref(),
				Reason:      ReasonCapacityExhausted,
			})
			continue
		}
		res.Assignments = append(res.Assignments, a)
	}

	res.Stats = BuildStats(r.table, res.Assignments, res.Unallocated, longest)
	e.log.Debugf("placed %d of %d participants", res.Stats.Allocated, res.Stats.Total)
	return res
}

// run holds the state of one Allocate call.
type run struct {
	*Engine
	table *Table
	// candidates caches the sorted position tuples by usable positions.
	candidates map[string][]candidate
}

type candidate struct {
	positions []int
	score     int
}

func (r *run) place(p Participant) (Assignment, bool) {
	slots := r.table.Slots()
	reason := ReasonPreferencesUnavailable
	if len(p.Preferences) == 0 {
		reason = ReasonNoPreferences
	}

	if usable := r.usablePositions(p.Preferences); len(usable) >= slots {
		picked := make([]InstructorID, slots)
		for _, c := range r.sortedCandidates(usable) {
			for s, pos := range c.positions {
				picked[s] = p.Preferences[pos]
			}
			if !r.table.fits(picked) {
				continue
			}
			r.table.commit(p.Ref(), picked)
			return Assignment{
				Participant: p.Ref(),
				Instructors: append([]InstructorID(nil), picked...),
				Ranks:       append([]int(nil), c.positions...),
				Method:      MethodPreference,
			}, true
		}
	}

	picked := r.fallback()
	if picked == nil {
		return Assignment{}, false
	}
	r.log.WithFields(log.Fields{
		"participant": p.ID,
		"reason":      reason,
	}).Debugf("placed %s at random: %v", p.Name, picked)
	r.table.commit(p.Ref(), picked)
	ranks := make([]int, slots)
	for s := range ranks {
		ranks[s] = -1
	}
	return Assignment{
		Participant: p.Ref(),
		Instructors: picked,
		Ranks:       ranks,
		Method:      MethodRandom,
		Reason:      reason,
	}, true
}

// usablePositions returns the positions in prefs that name a configured
// instructor for the first time.  Everything else can never be committed.
func (r *run) usablePositions(prefs []InstructorID) []int {
	seen := make(map[InstructorID]bool, len(prefs))
	usable := make([]int, 0, min(len(prefs), len(r.cfg.Instructors)))
	for i, id := range prefs {
		if seen[id] || !r.table.Knows(id) {
			continue
		}
		seen[id] = true
		usable = append(usable, i)
	}
	return usable
}

// sortedCandidates returns every ordered tuple of distinct entries of
// positions, one per slot, sorted by score.  Ties keep enumeration order
// (first slot varies slowest).
func (r *run) sortedCandidates(positions []int) []candidate {
	key := fmt.Sprint(positions)
	if cs, ok := r.candidates[key]; ok {
		return cs
	}
	slots := r.table.Slots()
	cs := []candidate{}
	used := make([]bool, len(positions))
	cur := make([]int, 0, slots)
	var walk func()
	walk = func() {
		if len(cur) == slots {
			pos := append([]int(nil), cur...)
			cs = append(cs, candidate{positions: pos, score: r.cfg.Scoring.Score(pos)})
			return
		}
		for i, p := range positions {
			if used[i] {
				continue
			}
			used[i] = true
			cur = append(cur, p)
			walk()
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	walk()
	sort.SliceStable(cs, func(a, b int) bool { return cs[a].score < cs[b].score })
	r.candidates[key] = cs
	return cs
}

// fallback shuffles the instructors separately for each slot and returns the
// first tuple, in nested-loop order over the shuffles, that fits.  It returns
// nil when nothing fits.
func (r *run) fallback() []InstructorID {
	slots := r.table.Slots()
	orders := make([][]InstructorID, slots)
	for s := range orders {
		orders[s] = ick.Shuffle(r.rng, r.cfg.Instructors)
	}

	picked := make([]InstructorID, 0, slots)
	var walk func(slot int) bool
	walk = func(slot int) bool {
		if slot == slots {
			return true
		}
	next:
		for _, id := range orders[slot] {
			for _, prev := range picked {
				if prev == id {
					continue next
				}
			}
			if !r.table.HasRoom(slot, id) {
				continue
			}
			picked = append(picked, id)
			if walk(slot + 1) {
				return true
			}
			picked = picked[:len(picked)-1]
		}
		return false
	}

	if !walk(0) {
		return nil
	}
	return picked
}
