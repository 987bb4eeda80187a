package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hostsel/hostsel/alloc"
)

const (
	MinCapacity = 1
	MaxCapacity = 100

	defaultCapacity = 13
)

// Participant is a roster entry as stored.  Preferences are instructor names,
// most preferred first.
type Participant struct {
	ParticipantID string
	Name          string
	Preferences   []string
	IsSubmitted   bool
	SubmittedAt   *time.Time
}

// HasPreferences reports whether anything was ranked at all.
func (p *Participant) HasPreferences() bool {
	return len(p.Preferences) > 0
}

// ForAllocation converts p to the engine's type.
func (p *Participant) ForAllocation() alloc.Participant {
	prefs := make([]alloc.InstructorID, len(p.Preferences))
	for i, v := range p.Preferences {
		prefs[i] = alloc.InstructorID(v)
	}
	return alloc.Participant{
		ID:          p.ParticipantID,
		Name:        p.Name,
		Preferences: prefs,
	}
}

func (p *Participant) Clone() *Participant {
	cpy := *p
	cpy.Preferences = append([]string(nil), p.Preferences...)
	if p.SubmittedAt != nil {
		at := *p.SubmittedAt
		cpy.SubmittedAt = &at
	}
	return &cpy
}

// Slot is one session.  IDs are 1-based and match the slot numbers in
// allocation results.
type Slot struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Time string `json:"time" yaml:"time"`
}

// Label is how a slot is shown in headers and tables.
func (s Slot) Label() string {
	if s.Time == "" {
		return s.Name
	}
	return fmt.Sprintf("%s(%s)", s.Name, s.Time)
}

// Settings is the allocation configuration an admin can edit.
type Settings struct {
	SystemName            string   `json:"system_name" yaml:"system_name"`
	Description           string   `json:"description" yaml:"description"`
	Instructors           []string `json:"instructors" yaml:"instructors"`
	Slots                 []Slot   `json:"time_slots" yaml:"time_slots"`
	CapacityPerInstructor int      `json:"max_capacity_per_instructor" yaml:"max_capacity_per_instructor"`
	// Scoring is "sum" or "max"; empty means "sum".
	Scoring string `json:"scoring,omitempty" yaml:"scoring,omitempty"`
}

// DefaultSettings are what a fresh database starts with.
func DefaultSettings() *Settings {
	return &Settings{
		SystemName:  "Host Selection",
		Instructors: []string{"Instructor 1", "Instructor 2", "Instructor 3", "Instructor 4"},
		Slots: []Slot{
			{ID: 1, Name: "Slot 1", Time: "15:55-16:45"},
			{ID: 2, Name: "Slot 2", Time: "16:50-17:30"},
		},
		CapacityPerInstructor: defaultCapacity,
	}
}

// Validate returns every problem with s joined into one error, or nil.
func (s *Settings) Validate() error {
	var errs []error

	if len(s.Instructors) == 0 {
		errs = append(errs, errors.New("instructors cannot be empty"))
	}
	seen := map[string]bool{}
	for i, name := range s.Instructors {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("instructors[%d] is blank", i))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Errorf("instructor %q is listed twice", name))
		}
		seen[name] = true
	}

	if len(s.Slots) == 0 {
		errs = append(errs, errors.New("time_slots cannot be empty"))
	}
	ids := map[int]bool{}
	for i, slot := range s.Slots {
		if slot.ID != i+1 {
			errs = append(errs, fmt.Errorf("time_slots[%d] has id %d, want %d", i, slot.ID, i+1))
		}
		if slot.Name == "" || slot.Time == "" {
			errs = append(errs, fmt.Errorf("time_slots[%d] must have id, name, and time", i))
		}
		if ids[slot.ID] {
			errs = append(errs, fmt.Errorf("time_slots id %d is used twice", slot.ID))
		}
		ids[slot.ID] = true
	}

	if s.CapacityPerInstructor < MinCapacity || s.CapacityPerInstructor > MaxCapacity {
		errs = append(errs, fmt.Errorf("max_capacity_per_instructor must be a number between %d and %d", MinCapacity, MaxCapacity))
	}

	if _, err := alloc.ParseScoring(s.Scoring); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// AllocConfig converts validated settings to an engine configuration.
func (s *Settings) AllocConfig() (alloc.Config, error) {
	if err := s.Validate(); err != nil {
		return alloc.Config{}, fmt.Errorf("invalid settings: %w", err)
	}
	scoring, _ := alloc.ParseScoring(s.Scoring)
	instructors := make([]alloc.InstructorID, len(s.Instructors))
	for i, name := range s.Instructors {
		instructors[i] = alloc.InstructorID(name)
	}
	return alloc.Config{
		Instructors:     instructors,
		CapacityPerSlot: s.CapacityPerInstructor,
		Slots:           len(s.Slots),
		Scoring:         scoring,
	}, nil
}

// HasInstructor reports whether name is configured.
func (s *Settings) HasInstructor(name string) bool {
	for _, n := range s.Instructors {
		if n == name {
			return true
		}
	}
	return false
}

// ErrBadPreferences is returned (wrapped) when a ranking isn't an ordering of
// exactly the configured instructors.
var ErrBadPreferences = errors.New("preferences must rank every instructor exactly once")

// CheckPreferences accepts prefs only if it ranks every configured
// instructor once and nothing else.
func (s *Settings) CheckPreferences(prefs []string) error {
	if len(prefs) != len(s.Instructors) {
		return fmt.Errorf("%w: got %d, want %d", ErrBadPreferences, len(prefs), len(s.Instructors))
	}
	seen := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		if !s.HasInstructor(p) {
			return fmt.Errorf("%w: unknown instructor %q", ErrBadPreferences, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: %q ranked twice", ErrBadPreferences, p)
		}
		seen[p] = true
	}
	return nil
}

// TotalCapacity is the number of seats across every instructor and slot.
func (s *Settings) TotalCapacity() int {
	return s.CapacityPerInstructor * len(s.Instructors) * len(s.Slots)
}

func (s *Settings) Clone() *Settings {
	cpy := *s
	cpy.Instructors = append([]string(nil), s.Instructors...)
	cpy.Slots = append([]Slot(nil), s.Slots...)
	return &cpy
}

// Run is one stored allocation.  The slot metadata is captured with it so
// the run still renders after the settings change.
type Run struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Seed        int64         `json:"seed"`
	Scoring     string        `json:"scoring"`
	Slots       []Slot        `json:"time_slots"`
	Result      *alloc.Result `json:"result"`
}

// RunSlug is a lightweight representation of a run for lists.
type RunSlug struct {
	RunID       string
	GeneratedAt time.Time
	Allocated   int
	Unallocated int
}

func (r *Run) Slug() *RunSlug {
	return &RunSlug{
		RunID:       r.RunID,
		GeneratedAt: r.GeneratedAt,
		Allocated:   r.Result.Stats.Allocated,
		Unallocated: r.Result.Stats.Unallocated,
	}
}

// SlotLabel returns the label for 1-based slot n.
func (r *Run) SlotLabel(n int) string {
	for _, s := range r.Slots {
		if s.ID == n {
			return s.Label()
		}
	}
	return fmt.Sprintf("Slot %d", n)
}

// RosterSummary counts the roster the way the admin dashboard shows it.
type RosterSummary struct {
	Total           int
	Submitted       int
	Pending         int
	WithPreferences int
}

func SummarizeRoster(ps []*Participant) RosterSummary {
	rs := RosterSummary{Total: len(ps)}
	for _, p := range ps {
		if p.IsSubmitted {
			rs.Submitted++
		} else {
			rs.Pending++
		}
		if p.HasPreferences() {
			rs.WithPreferences++
		}
	}
	return rs
}
