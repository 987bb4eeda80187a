package ocsv

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostsel/hostsel/alloc"
	"github.com/hostsel/hostsel/model"
)

func TestReadRoster(t *testing.T) {
	input := "\ufeffParticipant_ID,Name,Submitted,Pref1,Pref2,Pref3\n" +
		"s001,Ada,true,Instructor 2,Instructor 1,\n" +
		"s002, Brook ,no,,,\n" +
		",,,,,\n" +
		"s003,Cy,yes,Instructor 3\n"

	ps, err := ReadRoster(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, ps, 3)

	assert.Equal(t, "s001", ps[0].ParticipantID)
	assert.Equal(t, []string{"Instructor 2", "Instructor 1"}, ps[0].Preferences)
	assert.True(t, ps[0].IsSubmitted)

	assert.Equal(t, "Brook", ps[1].Name)
	assert.Empty(t, ps[1].Preferences)
	assert.False(t, ps[1].IsSubmitted)

	assert.Equal(t, []string{"Instructor 3"}, ps[2].Preferences)
	assert.True(t, ps[2].IsSubmitted)
}

func TestReadRosterInfersSubmitted(t *testing.T) {
	ps, err := ReadRoster(strings.NewReader("name,id,preference_a,preference_b\nAda,1,B,A\nBo,2,,\n"))
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.True(t, ps[0].IsSubmitted)
	assert.Equal(t, []string{"B", "A"}, ps[0].Preferences)
	assert.False(t, ps[1].IsSubmitted)
}

func TestReadRosterErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "roster is empty"},
		{"no id column", "name,pref1\nAda,A\n", "no participant_id column"},
		{"no name column", "participant_id,pref1\n1,A\n", "no name column"},
		{"blank id", "participant_id,name\n,Ada\n", "line 2: participant_id is blank"},
		{"blank name", "participant_id,name\n1,\n", "line 2: name is blank"},
		{"duplicate", "participant_id,name\n1,Ada\n2,Bo\n1,Cy\n", `line 4: participant "1" already appeared on line 2`},
		{"bad submitted", "participant_id,name,submitted\n1,Ada,maybe\n", "line 2: bad submitted value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadRoster(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestWriteAllocation(t *testing.T) {
	res, err := alloc.Allocate([]alloc.Participant{
		{ID: "s001", Name: "Ada", Preferences: []alloc.InstructorID{"Instructor 2", "Instructor 1"}},
		{ID: "s002", Name: "Brook, Jr.", Preferences: []alloc.InstructorID{"Instructor 2", "Instructor 1"}},
	}, []alloc.InstructorID{"Instructor 1", "Instructor 2"}, 1, nil)
	require.NoError(t, err)
	run := &model.Run{Slots: model.DefaultSettings().Slots, Result: res}

	var buf bytes.Buffer
	require.NoError(t, WriteAllocation(&buf, run))

	want := "\ufeffParticipant ID,Name,Slot 1(15:55-16:45),Slot 2(16:50-17:30)\n" +
		"s001,Ada,Instructor 2,Instructor 1\n" +
		"s002,\"Brook, Jr.\",Instructor 1,Instructor 2\n"
	assert.Equal(t, want, buf.String())

	// The export reads back as a roster, ids and all.
	back, err := ReadRoster(strings.NewReader(strings.Replace(buf.String(), "Participant ID", "participant_id", 1)))
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, "s001", back[0].ParticipantID)
	assert.Equal(t, "Brook, Jr.", back[1].Name)
}
