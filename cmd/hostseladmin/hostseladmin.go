package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"maze.io/x/duration"

	"github.com/hostsel/hostsel/assign"
	"github.com/hostsel/hostsel/config"
	"github.com/hostsel/hostsel/dbcache"
	"github.com/hostsel/hostsel/dbnotify"
	"github.com/hostsel/hostsel/dbutil"
	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/ocsv"
	"github.com/hostsel/hostsel/roster"
	"github.com/hostsel/hostsel/state"
	"github.com/hostsel/hostsel/textutil"
	"github.com/hostsel/hostsel/ts"
)

var (
	clock = ts.NewRealClock()

	outputFormat string

	rosterFile    string
	seed          int64
	onlySubmitted bool
	replace       bool
	withSettings  bool
	submitPrefs   bool
	resetAll      bool
	clearHistory  bool

	runID      string
	outputFile string

	historyOffset int
	historyLimit  int
	olderThan     duration.Duration

	settingsFile string
	instructors  string
	capacity     int
	scoring      string
	systemName   string
)

func openStorage(ctx context.Context) (*state.DBStorage, error) {
	db, err := dbutil.Connect(ctx, config.SQLConnector(), config.DBURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return state.NewDBStorage(db), nil
}

type stack struct {
	storage  *state.DBStorage
	settings *dbcache.SettingsStorage
	runs     *dbcache.RunStorage
	m        *assign.Manager
}

// newStack puts the caches in front of storage.  Close the storage, not
// the caches.
func newStack(ctx context.Context) (*stack, error) {
	storage, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	st := &stack{
		storage:  storage,
		settings: dbcache.NewSettingsStorage(storage, clock, config.SettingsTTL()),
		runs:     dbcache.NewRunStorage(config.RunCacheSize(), storage),
	}
	st.m = assign.New(storage, st.settings, st.runs, clock)
	return st, nil
}

func newManager(ctx context.Context) (*assign.Manager, *state.DBStorage, error) {
	st, err := newStack(ctx)
	if err != nil {
		return nil, nil, err
	}
	return st.m, st.storage, nil
}

func migrateDB(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := dbutil.Connect(ctx, config.SQLConnector(), config.DBURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	return state.Migrate(ctx, db)
}

func showSettings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	storage, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	settings, err := storage.FetchSettings(ctx)
	if err != nil {
		return fmt.Errorf("fetching settings: %w", err)
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(settings)
}

// applySettingsFlags overlays whatever flags were given on s.
func applySettingsFlags(cmd *cobra.Command, s *model.Settings) (*model.Settings, error) {
	if settingsFile != "" {
		data, err := os.ReadFile(settingsFile)
		if err != nil {
			return nil, err
		}
		s = &model.Settings{}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", settingsFile, err)
		}
	}
	flags := cmd.Flags()
	if flags.Changed("instructors") {
		s.Instructors = textutil.SplitList(instructors)
	}
	if flags.Changed("capacity") {
		s.CapacityPerInstructor = capacity
	}
	if flags.Changed("scoring") {
		s.Scoring = scoring
	}
	if flags.Changed("name") {
		s.SystemName = systemName
	}
	return s, s.Validate()
}

func setSettings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	storage, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	current, err := storage.FetchSettings(ctx)
	if err != nil {
		return fmt.Errorf("fetching settings: %w", err)
	}
	updated, err := applySettingsFlags(cmd, current)
	if err != nil {
		return err
	}
	if err := storage.SaveSettings(ctx, updated); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Settings saved: %d instructors, %d slots, capacity %d (%d seats).\n",
		len(updated.Instructors), len(updated.Slots), updated.CapacityPerInstructor, updated.TotalCapacity())
	return nil
}

func importParticipants(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f, err := roster.Load(args[0])
	if err != nil {
		return err
	}

	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	if withSettings {
		if f.Settings == nil {
			return fmt.Errorf("%s has no settings section", args[0])
		}
		if err := storage.SaveSettings(ctx, f.Settings); err != nil {
			return fmt.Errorf("saving settings: %w", err)
		}
	}

	warnings, err := m.Import(ctx, f.Participants, replace)
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d participants.\n", len(f.Participants))
	return nil
}

func listParticipants(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asCSV, err := useCSV(outputFormat, os.Stdout)
	if err != nil {
		return err
	}
	storage, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	ps, err := storage.FetchParticipants(ctx, onlySubmitted)
	if err != nil {
		return fmt.Errorf("fetching participants: %w", err)
	}
	return participantTable(ps).write(cmd.OutOrStdout(), asCSV)
}

func setPreferences(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	p, err := m.SetPreferences(ctx, args[0], textutil.SplitList(args[1]), submitPrefs)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s%s\n", p.ParticipantID, p.Name,
		strings.Join(p.Preferences, ", "), submittedNote(p))
	return nil
}

func submitPreferences(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	p, err := m.Submit(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s\n", p.ParticipantID, p.Name, submittedNote(p))
	return nil
}

func submittedNote(p *model.Participant) string {
	if !p.IsSubmitted || p.SubmittedAt == nil {
		return ""
	}
	return fmt.Sprintf(" (submitted %s)", p.SubmittedAt.Format(time.RFC3339))
}

func resetParticipant(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	switch {
	case resetAll && len(args) > 0:
		return errors.New("give a participant id or --all, not both")
	case !resetAll && len(args) != 1:
		return errors.New("give a participant id, or --all to reset everyone")
	}

	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	if resetAll {
		n, err := m.ResetAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset %d participants; the current allocation was dropped.\n", n)
		return nil
	}
	if err := storage.ResetParticipant(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Participant %q can submit again.\n", args[0])
	return nil
}

func clearParticipants(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()
	return m.Clear(ctx, clearHistory)
}

// allocationSeed prefers --seed, then the configured seed.
func allocationSeed(cmd *cobra.Command) int64 {
	if cmd.Flags().Changed("seed") {
		return seed
	}
	return config.Seed()
}

// allocateFromFile runs a roster file through an in-memory store; nothing
// touches the database.
func allocateFromFile(cmd *cobra.Command) (*model.Run, error) {
	ctx := cmd.Context()
	f, err := roster.Load(rosterFile)
	if err != nil {
		return nil, err
	}
	mem := state.NewMemStorage()
	if f.Settings != nil {
		if err := mem.SaveSettings(ctx, f.Settings); err != nil {
			return nil, err
		}
	}
	if err := mem.SaveParticipants(ctx, f.Participants); err != nil {
		return nil, err
	}
	m := assign.New(mem, mem, mem, clock)
	return m.Generate(ctx, assign.Options{OnlySubmitted: onlySubmitted, Seed: allocationSeed(cmd)})
}

func allocate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var run *model.Run
	if rosterFile != "" {
		var err error
		if run, err = allocateFromFile(cmd); err != nil {
			return err
		}
	} else {
		m, storage, err := newManager(ctx)
		if err != nil {
			return err
		}
		defer storage.Close()
		if run, err = m.Generate(ctx, assign.Options{OnlySubmitted: onlySubmitted, Seed: allocationSeed(cmd)}); err != nil {
			return err
		}
	}
	return writeRun(cmd.OutOrStdout(), run)
}

func fetchRun(ctx context.Context, m *assign.Manager) (*model.Run, error) {
	if runID != "" {
		return m.Run(ctx, runID)
	}
	run, err := m.Current(ctx)
	if errors.Is(err, state.ErrNotFound) {
		return nil, errors.New("no allocation has been generated yet")
	}
	return run, err
}

func showAllocation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	run, err := fetchRun(ctx, m)
	if err != nil {
		return err
	}
	return writeRun(cmd.OutOrStdout(), run)
}

func exportAllocation(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	run, err := fetchRun(ctx, m)
	if err != nil {
		return err
	}
	if outputFile == "" {
		return ocsv.WriteAllocation(cmd.OutOrStdout(), run)
	}
	f, err := os.Create(outputFile)
	if err != nil {
		return err
	}
	if err := ocsv.WriteAllocation(f, run); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Infof("wrote %d rows to %s", len(run.Result.Assignments), outputFile)
	return nil
}

// watchAllocations prints each new run as other processes generate it,
// until interrupted.
func watchAllocations(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := newStack(ctx)
	if err != nil {
		return err
	}
	defer st.storage.Close()

	// LISTEN pins a connection, so it gets a handle of its own.
	db, err := dbutil.Connect(ctx, config.SQLConnector(), config.DBURL())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	listener, err := dbnotify.NewDBNotifyListener(db,
		dbnotify.ConsumerFunc{Table: state.SettingsTable, Func: func(ctx context.Context, _ *dbnotify.NotificationEvent) {
			st.settings.Invalidate()
			fmt.Fprintf(out, "%s settings changed\n", clock.Now().Format(time.RFC3339))
		}},
		dbnotify.ConsumerFunc{Table: state.RunsTable, Func: func(ctx context.Context, e *dbnotify.NotificationEvent) {
			if e.Key == "" {
				fmt.Fprintf(out, "%s current allocation dropped\n", clock.Now().Format(time.RFC3339))
				return
			}
			run, err := st.m.Run(ctx, e.Key)
			if err != nil {
				log.Warnf("can't fetch announced run %s: %v", e.Key, err)
				return
			}
			fmt.Fprintf(out, "%s run %s: %d allocated, %d unallocated (%s)\n",
				run.GeneratedAt.Format(time.RFC3339), run.RunID,
				run.Result.Stats.Allocated, run.Result.Stats.Unallocated, textutil.Percent(run.Result.Stats.Rate))
		}},
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Watching for new allocations; interrupt to stop.\n")
	if err := listener.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func showParticipantResult(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	pr, err := m.ParticipantResult(ctx, args[0])
	if err != nil {
		return err
	}
	writeParticipantResult(cmd.OutOrStdout(), pr)
	return nil
}

func showInstructor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	ir, err := m.InstructorRoster(ctx, args[0])
	if err != nil {
		return err
	}
	writeInstructorRoster(cmd.OutOrStdout(), ir)
	return nil
}

func showSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	m, storage, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	s, err := m.Summary(ctx)
	if err != nil {
		return err
	}
	writeSummary(cmd.OutOrStdout(), s)
	return nil
}

func listHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	asCSV, err := useCSV(outputFormat, os.Stdout)
	if err != nil {
		return err
	}
	storage, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	slugs, err := storage.FetchRunSlugs(ctx, historyOffset, historyLimit)
	if err != nil {
		return fmt.Errorf("fetching history: %w", err)
	}
	t := newTable("run", "generated", "allocated", "unallocated")
	for _, s := range slugs {
		t.add(s.RunID, s.GeneratedAt.Format(time.RFC3339), strconv.Itoa(s.Allocated), strconv.Itoa(s.Unallocated))
	}
	return t.write(cmd.OutOrStdout(), asCSV)
}

func pruneHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	storage, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()

	before := clock.Now().Add(-time.Duration(olderThan))
	n, err := storage.PruneRuns(ctx, before)
	if err != nil {
		return fmt.Errorf("pruning history: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs from before %s.\n", n, before.Format(time.RFC3339))
	return nil
}
