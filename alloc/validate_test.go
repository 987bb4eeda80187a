package alloc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResult(t *testing.T) (*Result, Config) {
	t.Helper()
	cfg := Config{Instructors: abcd, CapacityPerSlot: 1}
	res := mustEngine(t, cfg, 1).Allocate([]Participant{
		participant("P1", "A", "B", "C", "D"),
		participant("P2", "A", "B", "C", "D"),
	})
	require.NoError(t, Validate(res, cfg))
	return res, cfg
}

func TestValidateCatchesTampering(t *testing.T) {
	tests := []struct {
		name   string
		tamper func(*Result)
		want   string
	}{
		{
			name:   "same instructor twice",
			tamper: func(r *Result) { r.Assignments[0].Instructors = ids("A", "A") },
			want:   `participant "P1" has instructor "A" in more than one slot`,
		},
		{
			name:   "over capacity",
			tamper: func(r *Result) { r.Assignments[1].Instructors = ids("A", "C") },
			want:   `slot 1 instructor "A" over capacity: 2/1`,
		},
		{
			name:   "unknown instructor",
			tamper: func(r *Result) { r.Assignments[0].Instructors = ids("A", "Q") },
			want:   `participant "P1" slot 2: unknown instructor "Q"`,
		},
		{
			name:   "wrong slot count",
			tamper: func(r *Result) { r.Assignments[0].Instructors = ids("A") },
			want:   `participant "P1" has 1 instructors, want 2`,
		},
		{
			name:   "duplicate participant",
			tamper: func(r *Result) { r.Assignments[1].Participant.ID = "P1" },
			want:   `participant "P1" appears more than once`,
		},
		{
			name: "both allocated and unallocated",
			tamper: func(r *Result) {
				r.Unallocated = append(r.Unallocated, Unallocated{Participant: ParticipantRef{ID: "P2"}, Reason: ReasonCapacityExhausted})
				r.Stats.Unallocated++
				r.Stats.Total++
			},
			want: `participant "P2" is both allocated and unallocated`,
		},
		{
			name:   "stats out of step",
			tamper: func(r *Result) { r.Stats.Total = 7 },
			want:   "stats total 7 != 2 allocated + 0 unallocated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, cfg := validResult(t)
			tt.tamper(res)

			err := Validate(res, cfg)
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, ve.Problems, tt.want)
		})
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	res, _ := validResult(t)
	err := Validate(res, Config{Instructors: abcd})
	assert.ErrorIs(t, err, ErrConfiguration)
}
