package config

import "gopkg.in/yaml.v3"

// DefaultFilename is the rules file looked up when a directory is given.
const DefaultFilename = "builder.yaml"

// Rulesfile represents the structure of the builder.yaml rules file.
type Rulesfile struct {
	Version  string             `yaml:"version"`
	Settings SettingsDTO        `yaml:"settings"`
	Jobs     map[string]JobDTO  `yaml:"jobs"`
	Metas    map[string]MetaDTO `yaml:"metas"`
}

// SettingsDTO holds the scheduler settings of the rules file.
type SettingsDTO struct {
	MaxRetries  *int   `yaml:"max_retries"`
	JobTimeout  string `yaml:"job_timeout"`
	TimeoutPoll string `yaml:"timeout_poll"`
	PollTimeout string `yaml:"poll_timeout"`
	Listen      string `yaml:"listen"`
	StateFile   string `yaml:"state_file"`
}

// JobDTO represents a job definition in the rules file.
type JobDTO struct {
	Command      string                 `yaml:"command"`
	Env          map[string]string      `yaml:"env"`
	Targets      map[string][]TargetDTO `yaml:"targets"`
	Dependencies map[string][]TargetDTO `yaml:"dependencies"`
	CacheTime    string                 `yaml:"cache_time"`
	Curfew       string                 `yaml:"curfew"`
	FileStep     string                 `yaml:"file_step"`
	AlwaysForce  bool                   `yaml:"always_force"`
	Disabled     bool                   `yaml:"disabled"`
	Meta         bool                   `yaml:"meta"`
}

// TargetDTO represents a target or dependency entry. A bare string is
// shorthand for a mapping with only an id.
type TargetDTO struct {
	ID          string `yaml:"id"`
	Step        string `yaml:"step"`
	Past        int    `yaml:"past"`
	Backend     string `yaml:"backend"`
	IgnoreMtime bool   `yaml:"ignore_mtime"`
	Group       string `yaml:"group"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TargetDTO) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		t.ID = value.Value
		return nil
	}
	type plain TargetDTO
	return value.Decode((*plain)(t))
}

// MetaDTO represents a meta target. A bare list is shorthand for its jobs.
type MetaDTO struct {
	Jobs     []string `yaml:"jobs"`
	Disabled bool     `yaml:"disabled"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MetaDTO) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		return value.Decode(&m.Jobs)
	}
	type plain MetaDTO
	return value.Decode((*plain)(m))
}
