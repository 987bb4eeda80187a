package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "roster.yaml", `
settings:
  system_name: Spring Session
  instructors: [A, B, C]
  time_slots:
    - {id: 1, name: Morning, time: "09:00-10:00"}
    - {id: 2, name: Afternoon, time: "13:00-14:00"}
  max_capacity_per_instructor: 2
participants:
  - participant_id: s1
    name: Ada
    preferences: [B, A]
  - participant_id: s2
    name: Bo
    submitted: true
  - participant_id: s3
    name: Cy
`)
	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.Settings)
	assert.Equal(t, []string{"A", "B", "C"}, f.Settings.Instructors)
	assert.Equal(t, "Morning(09:00-10:00)", f.Settings.Slots[0].Label())

	require.Len(t, f.Participants, 3)
	assert.Equal(t, []string{"B", "A"}, f.Participants[0].Preferences)
	assert.True(t, f.Participants[0].IsSubmitted)
	assert.True(t, f.Participants[1].IsSubmitted)
	assert.False(t, f.Participants[2].IsSubmitted)
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "roster.CSV", "participant_id,name,pref1\ns1,Ada,A\n")
	f, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, f.Settings)
	require.Len(t, f.Participants, 1)
	assert.Equal(t, []string{"A"}, f.Participants[0].Preferences)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"extension", "roster.txt", "", `don't know how to read ".txt" files`},
		{"unknown field", "r.yaml", "participants:\n  - participant_id: s1\n    name: Ada\n    colour: red\n", "field colour not found"},
		{"missing name", "r.yml", "participants:\n  - participant_id: s1\n", "participants[0]: participant_id and name are required"},
		{"duplicate", "r.yml", "participants:\n  - {participant_id: s1, name: A}\n  - {participant_id: s1, name: B}\n", `duplicate participant_id "s1"`},
		{"bad settings", "r.yml", "settings:\n  instructors: []\n", "settings: instructors cannot be empty"},
		{"empty", "r.yml", "participants: []\n", "no participants"},
		{"bad csv", "r.csv", "name\nAda\n", "no participant_id column"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
