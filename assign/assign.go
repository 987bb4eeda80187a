// Package assign runs allocations against stored rosters and settings and
// answers questions about the result.
package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/hostsel/hostsel/alloc"
	"github.com/hostsel/hostsel/dep"
	"github.com/hostsel/hostsel/ick"
	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/state"
	"github.com/hostsel/hostsel/varz"
)

var (
	ErrNoParticipants    = errors.New("no participants to allocate")
	ErrUnknownInstructor = errors.New("unknown instructor")
)

var (
	allocationRuns       = varz.NewInt("allocationRuns")
	participantsPlaced   = varz.NewInt("participantsPlaced")
	participantsUnplaced = varz.NewInt("participantsUnplaced")
	randomFallbacks      = varz.NewInt("randomFallbacks")
	lastAllocationRate   = varz.NewFloat("lastAllocationRate")
)

// Nower gets the current time.  *ts.Clock implements this.
type Nower interface {
	Now() time.Time
}

type Manager struct {
	participants state.ParticipantStorage
	settings     state.SettingsStorage
	runs         state.RunStorage
	clock        Nower
	log          log.FieldLogger
	newRunID     func() string
}

func New(participants state.ParticipantStorage, settings state.SettingsStorage, runs state.RunStorage, clock Nower) *Manager {
	return &Manager{
		participants: dep.Required(participants),
		settings:     dep.Required(settings),
		runs:         dep.Required(runs),
		clock:        dep.Required(clock),
		log:          log.StandardLogger(),
		newRunID:     uuid.NewString,
	}
}

// Options change how Generate picks its roster.
type Options struct {
	// OnlySubmitted leaves out participants who never submitted.
	OnlySubmitted bool
	// Seed for the random fallback; 0 picks one from the clock.  The seed
	// used is recorded in the run either way.
	Seed int64
}

// Generate allocates the stored roster under the stored settings and makes
// the result current.  Participants are placed submitted first, then by
// name.
func (m *Manager) Generate(ctx context.Context, opts Options) (*model.Run, error) {
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}
	cfg, err := settings.AllocConfig()
	if err != nil {
		return nil, err
	}

	roster, err := m.participants.FetchParticipants(ctx, opts.OnlySubmitted)
	if err != nil {
		return nil, fmt.Errorf("can't fetch participants: %w", err)
	}
	if len(roster) == 0 {
		return nil, ErrNoParticipants
	}

	rng, seed := ick.NewRand(opts.Seed)
	engine, err := alloc.New(cfg, rng, alloc.WithLogger(m.log))
	if err != nil {
		return nil, err
	}
	ps := make([]alloc.Participant, len(roster))
	for i, p := range roster {
		ps[i] = p.ForAllocation()
	}
	res := engine.Allocate(ps)
	if err := alloc.Validate(res, cfg); err != nil {
		// Nothing is saved; the previous allocation stays current.
		return nil, err
	}

	run := &model.Run{
		RunID:       m.newRunID(),
		GeneratedAt: m.clock.Now(),
		Seed:        seed,
		Scoring:     cfg.Scoring.String(),
		Slots:       settings.Clone().Slots,
		Result:      res,
	}
	if err := m.runs.ReplaceAllocation(ctx, run); err != nil {
		return nil, fmt.Errorf("can't save allocation: %w", err)
	}

	fallbacks := 0
	for _, a := range res.Assignments {
		if a.Method == alloc.MethodRandom {
			fallbacks++
		}
	}
	allocationRuns.Add(1)
	participantsPlaced.Add(int64(res.Stats.Allocated))
	participantsUnplaced.Add(int64(res.Stats.Unallocated))
	randomFallbacks.Add(int64(fallbacks))
	lastAllocationRate.Set(res.Stats.Rate)

	m.log.WithFields(log.Fields{
		"run_id":      run.RunID,
		"seed":        seed,
		"allocated":   res.Stats.Allocated,
		"unallocated": res.Stats.Unallocated,
		"random":      fallbacks,
	}).Infof("allocation generated, %.1f%% placed", res.Stats.Rate)
	return run, nil
}

// Current returns the current run, wrapping state.ErrNotFound if nothing has
// been generated since the last reset or clear.
func (m *Manager) Current(ctx context.Context) (*model.Run, error) {
	return m.runs.FetchCurrentRun(ctx)
}

// Run fetches a past run by id.
func (m *Manager) Run(ctx context.Context, id string) (*model.Run, error) {
	return m.runs.FetchRun(ctx, id)
}

type SlotRoster struct {
	Slot         int
	Label        string
	Current      int
	Max          int
	Participants []alloc.ParticipantRef
}

// InstructorRoster is who one instructor hosts in each slot.
type InstructorRoster struct {
	Instructor string
	RunID      string
	Slots      []SlotRoster
}

// InstructorRoster answers from the current run.  An instructor known to
// the current settings but added after the run gets empty slots.
func (m *Manager) InstructorRoster(ctx context.Context, instructor string) (*InstructorRoster, error) {
	run, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}

	ir := &InstructorRoster{Instructor: instructor, RunID: run.RunID}
	known := settings.HasInstructor(instructor)
	for _, ss := range run.Result.Stats.Slots {
		sr := SlotRoster{
			Slot:         ss.Slot,
			Label:        run.SlotLabel(ss.Slot),
			Max:          settings.CapacityPerInstructor,
			Participants: []alloc.ParticipantRef{},
		}
		if is := ss.Instructor(alloc.InstructorID(instructor)); is != nil {
			known = true
			sr.Current = is.Current
			sr.Max = is.Max
			sr.Participants = append(sr.Participants, is.Participants...)
		}
		ir.Slots = append(ir.Slots, sr)
	}
	if !known {
		return nil, fmt.Errorf("%q: %w", instructor, ErrUnknownInstructor)
	}
	return ir, nil
}

// Summary is the admin dashboard's view.
type Summary struct {
	Roster        model.RosterSummary
	Instructors   int
	Slots         int
	TotalCapacity int
	Runs          int

	// Latest is nil until something has been generated.
	Latest *model.RunSlug
	Rate   float64
}

func (m *Manager) Summary(ctx context.Context) (*Summary, error) {
	roster, err := m.participants.FetchParticipants(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("can't fetch participants: %w", err)
	}
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}
	runs, err := m.runs.CountRuns(ctx)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Roster:        model.SummarizeRoster(roster),
		Instructors:   len(settings.Instructors),
		Slots:         len(settings.Slots),
		TotalCapacity: settings.TotalCapacity(),
		Runs:          runs,
	}
	run, err := m.Current(ctx)
	if errors.Is(err, state.ErrNotFound) {
		return s, nil
	} else if err != nil {
		return nil, err
	}
	s.Latest = run.Slug()
	s.Rate = run.Result.Stats.Rate
	return s, nil
}

// Import saves ps, replacing the whole roster when replace is set.  It
// returns the preferences naming instructors the settings don't know, which
// are legal but probably typos.
func (m *Manager) Import(ctx context.Context, ps []*model.Participant, replace bool) ([]string, error) {
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}
	if replace {
		if err := m.participants.ClearAll(ctx, false); err != nil {
			return nil, err
		}
	}
	if err := m.participants.SaveParticipants(ctx, ps); err != nil {
		return nil, err
	}

	var warnings []string
	for _, p := range ps {
		for _, pref := range p.Preferences {
			if !settings.HasInstructor(pref) {
				warnings = append(warnings, fmt.Sprintf("participant %q ranks unknown instructor %q", p.ParticipantID, pref))
			}
		}
	}
	m.log.WithField("replace", replace).Infof("imported %d participants", len(ps))
	return warnings, nil
}

// SetPreferences replaces one participant's ranking, which must order every
// configured instructor exactly once.  With submit the ranking is also
// locked in.  A submitted participant can't change anything until an admin
// resets them.
func (m *Manager) SetPreferences(ctx context.Context, id string, prefs []string, submit bool) (*model.Participant, error) {
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}
	if err := settings.CheckPreferences(prefs); err != nil {
		return nil, err
	}
	p, err := m.openParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Preferences = append([]string(nil), prefs...)
	if submit {
		m.markSubmitted(p)
	}
	if err := m.participants.SaveParticipants(ctx, []*model.Participant{p}); err != nil {
		return nil, err
	}
	m.log.WithFields(log.Fields{
		"participant": id,
		"submitted":   p.IsSubmitted,
	}).Info("preferences updated")
	return p, nil
}

// Submit locks in the ranking a participant already saved.  It has to be
// complete under the current settings.
func (m *Manager) Submit(ctx context.Context, id string) (*model.Participant, error) {
	settings, err := m.settings.FetchSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't fetch settings: %w", err)
	}
	p, err := m.openParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := settings.CheckPreferences(p.Preferences); err != nil {
		return nil, fmt.Errorf("participant %q: %w", id, err)
	}
	m.markSubmitted(p)
	if err := m.participants.SaveParticipants(ctx, []*model.Participant{p}); err != nil {
		return nil, err
	}
	m.log.WithField("participant", id).Info("preferences submitted")
	return p, nil
}

// openParticipant fetches a participant who may still change preferences.
func (m *Manager) openParticipant(ctx context.Context, id string) (*model.Participant, error) {
	p, err := m.participants.FetchParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsSubmitted {
		return nil, fmt.Errorf("participant %q: %w", id, state.ErrAlreadySubmitted)
	}
	return p, nil
}

func (m *Manager) markSubmitted(p *model.Participant) {
	at := m.clock.Now()
	p.IsSubmitted = true
	p.SubmittedAt = &at
}

// ResetAll clears every participant's preferences and drops the current
// allocation so nobody reads a result built from rankings that are gone.
func (m *Manager) ResetAll(ctx context.Context) (int64, error) {
	n, err := m.participants.ResetAllParticipants(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't reset preferences: %w", err)
	}
	m.log.Infof("reset preferences for %d participants", n)
	return n, nil
}

// Clear removes the whole roster and the current allocation, and with
// history every past run as well.
func (m *Manager) Clear(ctx context.Context, history bool) error {
	if err := m.participants.ClearAll(ctx, history); err != nil {
		return fmt.Errorf("can't clear participants: %w", err)
	}
	m.log.WithField("history", history).Info("roster cleared")
	return nil
}

// ParticipantResult is one participant's view of the current allocation.
type ParticipantResult struct {
	Participant *model.Participant
	// Run is nil when there is no current allocation.
	Run *model.Run
	// At most one of Assignment and Unallocated is set.  Neither is when
	// the participant wasn't on the roster the run allocated.
	Assignment  *alloc.Assignment
	Unallocated *alloc.Unallocated
}

func (m *Manager) ParticipantResult(ctx context.Context, id string) (*ParticipantResult, error) {
	p, err := m.participants.FetchParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	pr := &ParticipantResult{Participant: p}

	run, err := m.Current(ctx)
	if errors.Is(err, state.ErrNotFound) {
		return pr, nil
	} else if err != nil {
		return nil, err
	}
	pr.Run = run
	for i := range run.Result.Assignments {
		if a := &run.Result.Assignments[i]; a.Participant.ID == id {
			pr.Assignment = a
			return pr, nil
		}
	}
	for i := range run.Result.Unallocated {
		if u := &run.Result.Unallocated[i]; u.Participant.ID == id {
			pr.Unallocated = u
			return pr, nil
		}
	}
	return pr, nil
}
