package alloc

import "fmt"

// Cell is the bookkeeping for one instructor in one slot.
type Cell struct {
	Current      int
	Max          int
	Participants []ParticipantRef
}

// HasRoom reports whether one more participant fits.
func (c *Cell) HasRoom() bool {
	return c.Current < c.Max
}

// Table tracks capacity per (slot, instructor).  Slots are numbered from 0
// here; anything shown to a human is numbered from 1.
//
// Only commit changes a Table, and nothing ever takes a participant back out.
type Table struct {
	instructors []InstructorID
	slots       []map[InstructorID]*Cell
}

// NewTable builds an empty table with the same capacity everywhere.
func NewTable(instructors []InstructorID, slots, capacity int) *Table {
	t := &Table{
		instructors: append([]InstructorID(nil), instructors...),
		slots:       make([]map[InstructorID]*Cell, slots),
	}
	for s := range t.slots {
		t.slots[s] = make(map[InstructorID]*Cell, len(instructors))
		for _, id := range instructors {
			t.slots[s][id] = &Cell{Max: capacity, Participants: []ParticipantRef{}}
		}
	}
	return t
}

// Slots returns the number of slots.
func (t *Table) Slots() int {
	return len(t.slots)
}

// Instructors returns the instructors in configured order.
func (t *Table) Instructors() []InstructorID {
	return t.instructors
}

// Cell returns a copy of the cell for (slot, id).  Unknown instructors and
// out-of-range slots report false.
func (t *Table) Cell(slot int, id InstructorID) (Cell, bool) {
	if slot < 0 || slot >= len(t.slots) {
		return Cell{}, false
	}
	c, ok := t.slots[slot][id]
	if !ok {
		return Cell{}, false
	}
	cpy := *c
	cpy.Participants = append([]ParticipantRef(nil), c.Participants...)
	return cpy, true
}

// Knows reports whether id is one of the table's instructors.
func (t *Table) Knows(id InstructorID) bool {
	if len(t.slots) == 0 {
		return false
	}
	_, ok := t.slots[0][id]
	return ok
}

// HasRoom reports whether id can take one more participant in slot.  An
// instructor the table has never heard of never has room.
func (t *Table) HasRoom(slot int, id InstructorID) bool {
	if slot < 0 || slot >= len(t.slots) {
		return false
	}
	c, ok := t.slots[slot][id]
	return ok && c.HasRoom()
}

// fits reports whether instructors (one per slot) are pairwise distinct and
// all have room.
func (t *Table) fits(instructors []InstructorID) bool {
	if len(instructors) != len(t.slots) {
		return false
	}
	for s, id := range instructors {
		for _, prev := range instructors[:s] {
			if prev == id {
				return false
			}
		}
		if !t.HasRoom(s, id) {
			return false
		}
	}
	return true
}

// commit records p against one instructor per slot.  Callers check fits
// first; a full cell here is a bug.
func (t *Table) commit(p ParticipantRef, instructors []InstructorID) {
	for s, id := range instructors {
		c := t.slots[s][id]
		if c == nil || !c.HasRoom() {
			panic(fmt.Sprintf("can't happen: commit of %q to full or unknown cell slot=%d instructor=%q", p.ID, s+1, id))
		}
		c.Current++
		c.Participants = append(c.Participants, p)
	}
}
