/*
Package ocsv reads rosters from and writes allocations to CSV, the format
the registration office already works in.

A roster looks like this:

	participant_id,name,submitted,pref1,pref2,pref3,pref4
	s001,Ada,true,Instructor 2,Instructor 1,,
	s002,Brook,false,,,,

Columns are matched by header name, case-insensitively, so their order
doesn't matter.  Every column whose name starts with "pref" is a preference,
taken in the order the columns appear.  Blank preference cells are skipped.
"submitted" is optional; without it, a participant counts as submitted when
they ranked anybody.

Allocation exports start with a UTF-8 byte order mark so that spreadsheet
programs detect the encoding.
*/
package ocsv

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hostsel/hostsel/model"
)

const bom = "\ufeff"

var (
	idColumns   = []string{"participant_id", "student_id", "id"}
	nameColumns = []string{"name", "student_name"}
)

type layout struct {
	id, name, submitted int
	prefs               []int
}

func findColumn(header []string, names []string) int {
	for _, n := range names {
		for i, h := range header {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func parseHeader(header []string) (*layout, error) {
	norm := make([]string, len(header))
	for i, h := range header {
		norm[i] = strings.ToLower(strings.TrimSpace(h))
	}
	l := &layout{
		id:        findColumn(norm, idColumns),
		name:      findColumn(norm, nameColumns),
		submitted: findColumn(norm, []string{"submitted", "is_submitted"}),
	}
	for i, h := range norm {
		if strings.HasPrefix(h, "pref") {
			l.prefs = append(l.prefs, i)
		}
	}
	if l.id < 0 {
		return nil, errors.New("roster header has no participant_id column")
	}
	if l.name < 0 {
		return nil, errors.New("roster header has no name column")
	}
	return l, nil
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseSubmitted(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n", "":
		return false, nil
	}
	return strconv.ParseBool(s)
}

// ReadRoster parses a roster.  Line numbers in errors count the header as
// line 1.
func ReadRoster(r io.Reader) ([]*model.Participant, error) {
	br := bufio.NewReader(r)
	if lead, err := br.Peek(len(bom)); err == nil && string(lead) == bom {
		if _, err := br.Discard(len(bom)); err != nil {
			return nil, err
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("roster is empty")
	} else if err != nil {
		return nil, err
	}
	l, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	ps := []*model.Participant{}
	seen := map[string]int{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		p := &model.Participant{
			ParticipantID: cell(record, l.id),
			Name:          cell(record, l.name),
		}
		if p.ParticipantID == "" && p.Name == "" {
			continue
		}
		if p.ParticipantID == "" {
			return nil, fmt.Errorf("line %d: participant_id is blank", line)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("line %d: name is blank", line)
		}
		if prev, ok := seen[p.ParticipantID]; ok {
			return nil, fmt.Errorf("line %d: participant %q already appeared on line %d", line, p.ParticipantID, prev)
		}
		seen[p.ParticipantID] = line

		for _, i := range l.prefs {
			if pref := cell(record, i); pref != "" {
				p.Preferences = append(p.Preferences, pref)
			}
		}
		if l.submitted >= 0 {
			if p.IsSubmitted, err = parseSubmitted(cell(record, l.submitted)); err != nil {
				return nil, fmt.Errorf("line %d: bad submitted value: %w", line, err)
			}
		} else {
			p.IsSubmitted = p.HasPreferences()
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// WriteAllocation writes one row per allocated participant, with a column
// per slot holding the instructor.
func WriteAllocation(w io.Writer, run *model.Run) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return err
	}
	cw := csv.NewWriter(w)

	slots := len(run.Slots)
	for _, a := range run.Result.Assignments {
		if len(a.Instructors) > slots {
			slots = len(a.Instructors)
		}
	}
	header := []string{"Participant ID", "Name"}
	for n := 1; n <= slots; n++ {
		header = append(header, run.SlotLabel(n))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, a := range run.Result.Assignments {
		row := []string{a.Participant.ID, a.Participant.Name}
		for n := 0; n < slots; n++ {
			if n < len(a.Instructors) {
				row = append(row, string(a.Instructors[n]))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
