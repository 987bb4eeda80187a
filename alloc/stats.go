package alloc

import "math"

// minHistogramRanks keeps first through fourth choice in the histogram even
// when nobody ranked that many instructors.
const minHistogramRanks = 4

type InstructorStats struct {
	Instructor   InstructorID     `json:"instructor"`
	Current      int              `json:"current_count"`
	Max          int              `json:"max_capacity"`
	Utilization  float64          `json:"utilization_rate"` // percent, one decimal
	Participants []ParticipantRef `json:"participants"`
}

type SlotStats struct {
	Slot        int               `json:"slot"` // 1-based
	Instructors []InstructorStats `json:"instructors"`
}

// Instructor returns the stats for id, or nil.
func (ss *SlotStats) Instructor(id InstructorID) *InstructorStats {
	for i := range ss.Instructors {
		if ss.Instructors[i].Instructor == id {
			return &ss.Instructors[i]
		}
	}
	return nil
}

// Satisfaction counts allocated participants by the best preference rank
// they got.  ByRank[0] is first choice.
type Satisfaction struct {
	ByRank        []int `json:"by_rank"`
	NoneSatisfied int   `json:"no_preference_satisfied"`
}

type Stats struct {
	Total        int          `json:"total_participants"`
	Allocated    int          `json:"allocated_participants"`
	Unallocated  int          `json:"unallocated_participants"`
	Rate         float64      `json:"allocation_rate"` // percent
	Slots        []SlotStats  `json:"slots"`
	Satisfaction Satisfaction `json:"preference_satisfaction"`
}

// Slot returns the stats for 1-based slot n, or nil.
func (s *Stats) Slot(n int) *SlotStats {
	for i := range s.Slots {
		if s.Slots[i].Slot == n {
			return &s.Slots[i]
		}
	}
	return nil
}

// BuildStats summarizes a finished run.  longest is the length of the
// longest preference list on the roster.  The histogram has one bin per rank
// up to the number of instructors, and grows further only when a rank past
// that was actually satisfied.
func BuildStats(t *Table, assignments []Assignment, unallocated []Unallocated, longest int) Stats {
	total := len(assignments) + len(unallocated)
	bins := max(min(longest, len(t.Instructors())), minHistogramRanks)
	for i := range assignments {
		if rank, ok := assignments[i].BestRank(); ok {
			bins = max(bins, rank+1)
		}
	}
	st := Stats{
		Total:       total,
		Allocated:   len(assignments),
		Unallocated: len(unallocated),
		Slots:       make([]SlotStats, t.Slots()),
		Satisfaction: Satisfaction{
			ByRank: make([]int, bins),
		},
	}
	if total > 0 {
		st.Rate = float64(len(assignments)) / float64(total) * 100
	}

	for s := range st.Slots {
		ss := SlotStats{Slot: s + 1, Instructors: make([]InstructorStats, 0, len(t.Instructors()))}
		for _, id := range t.Instructors() {
			c, _ := t.Cell(s, id)
			ss.Instructors = append(ss.Instructors, InstructorStats{
				Instructor:   id,
				Current:      c.Current,
				Max:          c.Max,
				Utilization:  utilization(c.Current, c.Max),
				Participants: c.Participants,
			})
		}
		st.Slots[s] = ss
	}

	for i := range assignments {
		rank, ok := assignments[i].BestRank()
		if !ok {
			st.Satisfaction.NoneSatisfied++
			continue
		}
		st.Satisfaction.ByRank[rank]++
	}
	return st
}

func utilization(current, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return math.Round(float64(current)/float64(capacity)*1000) / 10
}
