package alloc

import "fmt"

// Validate recounts res from scratch against cfg and returns a
// *ValidationError naming every broken rule, or nil.  Results straight out
// of Allocate always pass; this is for results that have been stored,
// edited, or carried around.
func Validate(res *Result, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	slots := cfg.SlotCount()
	known := make(map[InstructorID]bool, len(cfg.Instructors))
	for _, id := range cfg.Instructors {
		known[id] = true
	}

	var problems []string
	addf := func(f string, args ...any) {
		problems = append(problems, fmt.Sprintf(f, args...))
	}

	counts := make([]map[InstructorID]int, slots)
	for s := range counts {
		counts[s] = map[InstructorID]int{}
	}
	seen := map[string]bool{}

	for _, a := range res.Assignments {
		who := a.Participant.ID
		if seen[who] {
			addf("participant %q appears more than once", who)
		}
		seen[who] = true

		if len(a.Instructors) != slots {
			addf("participant %q has %d instructors, want %d", who, len(a.Instructors), slots)
			continue
		}
		for s, id := range a.Instructors {
			if !known[id] {
				addf("participant %q slot %d: unknown instructor %q", who, s+1, id)
				continue
			}
			for _, prev := range a.Instructors[:s] {
				if prev == id {
					addf("participant %q has instructor %q in more than one slot", who, id)
				}
			}
			counts[s][id]++
		}
	}

	for _, u := range res.Unallocated {
		if seen[u.Participant.ID] {
			addf("participant %q is both allocated and unallocated", u.Participant.ID)
		}
		seen[u.Participant.ID] = true
	}

	for s := range counts {
		for _, id := range cfg.Instructors {
			if n := counts[s][id]; n > cfg.CapacityPerSlot {
				addf("slot %d instructor %q over capacity: %d/%d", s+1, id, n, cfg.CapacityPerSlot)
			}
		}
	}

	st := res.Stats
	if st.Allocated != len(res.Assignments) || st.Unallocated != len(res.Unallocated) {
		addf("stats count %d allocated and %d unallocated, result has %d and %d",
			st.Allocated, st.Unallocated, len(res.Assignments), len(res.Unallocated))
	}
	if st.Allocated+st.Unallocated != st.Total {
		addf("stats total %d != %d allocated + %d unallocated", st.Total, st.Allocated, st.Unallocated)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
