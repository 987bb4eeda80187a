package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/hostsel/hostsel/alloc"
	"github.com/hostsel/hostsel/assign"
	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/textutil"
)

const (
	formatAuto  = "auto"
	formatTable = "table"
	formatCSV   = "csv"
)

// useCSV resolves the --format flag.  "auto" means a table for people and
// CSV for pipes.
func useCSV(format string, out *os.File) (bool, error) {
	switch format {
	case formatCSV:
		return true, nil
	case formatTable:
		return false, nil
	case formatAuto, "":
		return !term.IsTerminal(int(out.Fd())), nil
	}
	return false, fmt.Errorf("unknown --format %q (want auto, table or csv)", format)
}

type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer, asCSV bool) error {
	if asCSV {
		cw := csv.NewWriter(w)
		if err := cw.Write(t.header); err != nil {
			return err
		}
		if err := cw.WriteAll(t.rows); err != nil {
			return err
		}
		return cw.Error()
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.header, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func participantTable(ps []*model.Participant) *table {
	t := newTable("id", "name", "submitted", "preferences")
	for _, p := range ps {
		t.add(p.ParticipantID, p.Name, fmt.Sprint(p.IsSubmitted), strings.Join(p.Preferences, ", "))
	}
	return t
}

func describeAssignment(a *alloc.Assignment) string {
	if a.Method == alloc.MethodRandom {
		return fmt.Sprintf("random (%s)", a.Reason)
	}
	labels := make([]string, len(a.Ranks))
	for i, r := range a.Ranks {
		labels[i] = textutil.ChoiceLabel(r)
	}
	return strings.Join(labels, " + ")
}

func assignmentTable(run *model.Run) *table {
	header := []string{"id", "name"}
	slots := len(run.Result.Stats.Slots)
	for n := 1; n <= slots; n++ {
		header = append(header, run.SlotLabel(n))
	}
	t := newTable(append(header, "how")...)
	for i := range run.Result.Assignments {
		a := &run.Result.Assignments[i]
		row := []string{a.Participant.ID, a.Participant.Name}
		for _, id := range a.Instructors {
			row = append(row, string(id))
		}
		t.add(append(row, describeAssignment(a))...)
	}
	return t
}

func capacityTable(run *model.Run) *table {
	t := newTable("slot", "instructor", "count", "utilization")
	for _, ss := range run.Result.Stats.Slots {
		for _, is := range ss.Instructors {
			t.add(run.SlotLabel(ss.Slot), string(is.Instructor), textutil.Ratio(is.Current, is.Max), textutil.Percent(is.Utilization))
		}
	}
	return t
}

// writeRun prints a run the way an admin reads it: who goes where, then how
// full everything is, then who didn't fit.
func writeRun(w io.Writer, run *model.Run) error {
	st := run.Result.Stats
	fmt.Fprintf(w, "Run %s generated %s (seed %d, %s scoring)\n\n",
		run.RunID, run.GeneratedAt.Format(time.RFC3339), run.Seed, run.Scoring)

	if err := assignmentTable(run).write(w, false); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if err := capacityTable(run).write(w, false); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAllocated %d of %d (%s)\n", st.Allocated, st.Total, textutil.Percent(st.Rate))
	for rank, n := range st.Satisfaction.ByRank {
		fmt.Fprintf(w, "  %s: %d\n", textutil.ChoiceLabel(rank), n)
	}
	fmt.Fprintf(w, "  no preference satisfied: %d\n", st.Satisfaction.NoneSatisfied)

	if len(run.Result.Unallocated) > 0 {
		fmt.Fprintf(w, "\nUnallocated:\n")
		for _, u := range run.Result.Unallocated {
			fmt.Fprintf(w, "  %s %s (%s)\n", u.Participant.ID, u.Participant.Name, u.Reason)
		}
	}
	return nil
}

func writeInstructorRoster(w io.Writer, ir *assign.InstructorRoster) {
	fmt.Fprintf(w, "%s (run %s)\n", ir.Instructor, ir.RunID)
	for _, sr := range ir.Slots {
		fmt.Fprintf(w, "\n%s: %s\n", sr.Label, textutil.Ratio(sr.Current, sr.Max))
		for _, p := range sr.Participants {
			fmt.Fprintf(w, "  %s %s\n", p.ID, p.Name)
		}
	}
}

func writeParticipantResult(w io.Writer, pr *assign.ParticipantResult) {
	p := pr.Participant
	fmt.Fprintf(w, "%s %s\n", p.ParticipantID, p.Name)
	if len(p.Preferences) > 0 {
		fmt.Fprintf(w, "Preferences: %s\n", strings.Join(p.Preferences, ", "))
	}
	switch {
	case pr.Run == nil:
		fmt.Fprintf(w, "No allocation yet.\n")
	case pr.Assignment != nil:
		fmt.Fprintf(w, "Run %s: %s\n", pr.Run.RunID, describeAssignment(pr.Assignment))
		for i, id := range pr.Assignment.Instructors {
			fmt.Fprintf(w, "  %s: %s\n", pr.Run.SlotLabel(i+1), id)
		}
	case pr.Unallocated != nil:
		fmt.Fprintf(w, "Run %s: not placed (%s)\n", pr.Run.RunID, pr.Unallocated.Reason)
	default:
		fmt.Fprintf(w, "Run %s: not on the roster it allocated\n", pr.Run.RunID)
	}
}

func writeSummary(w io.Writer, s *assign.Summary) {
	fmt.Fprintf(w, "Participants:   %d (%d submitted, %d pending, %d with preferences)\n",
		s.Roster.Total, s.Roster.Submitted, s.Roster.Pending, s.Roster.WithPreferences)
	fmt.Fprintf(w, "Capacity:       %d seats (%d instructors x %d slots)\n", s.TotalCapacity, s.Instructors, s.Slots)
	fmt.Fprintf(w, "Runs on record: %d\n", s.Runs)
	if s.Latest == nil {
		fmt.Fprintf(w, "No allocation yet.\n")
		return
	}
	fmt.Fprintf(w, "Current run:    %s at %s, %d allocated, %d unallocated (%s)\n",
		s.Latest.RunID, s.Latest.GeneratedAt.Format(time.RFC3339),
		s.Latest.Allocated, s.Latest.Unallocated, textutil.Percent(s.Rate))
}
