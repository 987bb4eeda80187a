// Package roster loads participant lists from files for import and for
// allocating without a database.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hostsel/hostsel/model"
	"github.com/hostsel/hostsel/ocsv"
)

// File is a loaded roster.  Settings is nil unless a YAML roster carried
// its own.
type File struct {
	Settings     *model.Settings
	Participants []*model.Participant
}

type yamlParticipant struct {
	ID          string   `yaml:"participant_id"`
	Name        string   `yaml:"name"`
	Submitted   *bool    `yaml:"submitted"`
	Preferences []string `yaml:"preferences"`
}

type yamlRoster struct {
	Settings     *model.Settings   `yaml:"settings"`
	Participants []yamlParticipant `yaml:"participants"`
}

// Load reads a .yaml, .yml or .csv roster.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		f, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return f, nil
	case ".csv":
		ps, err := ocsv.ReadRoster(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &File{Participants: ps}, nil
	default:
		return nil, fmt.Errorf("%s: don't know how to read %q files (want .yaml, .yml or .csv)", path, ext)
	}
}

func parseYAML(data []byte) (*File, error) {
	var doc yamlRoster
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	if doc.Settings != nil {
		if err := doc.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("settings: %w", err)
		}
	}

	f := &File{Settings: doc.Settings, Participants: []*model.Participant{}}
	seen := map[string]bool{}
	for i, yp := range doc.Participants {
		if yp.ID == "" || yp.Name == "" {
			return nil, fmt.Errorf("participants[%d]: participant_id and name are required", i)
		}
		if seen[yp.ID] {
			return nil, fmt.Errorf("participants[%d]: duplicate participant_id %q", i, yp.ID)
		}
		seen[yp.ID] = true

		p := &model.Participant{
			ParticipantID: yp.ID,
			Name:          yp.Name,
			Preferences:   yp.Preferences,
		}
		if yp.Submitted != nil {
			p.IsSubmitted = *yp.Submitted
		} else {
			p.IsSubmitted = p.HasPreferences()
		}
		f.Participants = append(f.Participants, p)
	}
	if len(f.Participants) == 0 && f.Settings == nil {
		return nil, errors.New("no participants")
	}
	return f, nil
}
