// Package config loads the YAML rules file into job definitions.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.trai.ch/builder/internal/core/domain"
	"go.trai.ch/builder/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

var _ ports.ConfigLoader = (*Loader)(nil)

// Load reads the rules file at path. A directory is searched upwards for
// builder.yaml.
func (l *Loader) Load(path string) (*domain.Rules, error) {
	configPath, err := findConfiguration(path)
	if err != nil {
		return nil, err
	}

	var rulesfile Rulesfile
	if err := readAndUnmarshalYAML(configPath, &rulesfile); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	rules, err := l.build(&rulesfile)
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	l.Logger.Debug(fmt.Sprintf("loaded %d jobs and %d metas from %s", len(rules.Jobs), len(rules.Metas), configPath))
	return rules, nil
}

func findConfiguration(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrConfigNotFound.Error()), "path", path)
	}
	if !info.IsDir() {
		return path, nil
	}

	currentDir := path
	for {
		candidate := filepath.Join(currentDir, DefaultFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return "", zerr.With(domain.ErrConfigNotFound, "cwd", path)
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is provided by the user
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}
	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}
	return nil
}

func (l *Loader) build(rulesfile *Rulesfile) (*domain.Rules, error) {
	settings, err := buildSettings(rulesfile.Settings)
	if err != nil {
		return nil, err
	}
	rules := &domain.Rules{Settings: settings}

	for _, name := range sortedKeys(rulesfile.Jobs) {
		if err := validateName(name); err != nil {
			return nil, err
		}
		def, err := buildJob(name, rulesfile.Jobs[name])
		if err != nil {
			return nil, zerr.With(err, "job_id", name)
		}
		if def.Disabled {
			l.Logger.Debug(fmt.Sprintf("job %s is disabled", name))
		}
		rules.Jobs = append(rules.Jobs, def)
	}

	targets := targetIDs(rules.Jobs)
	for _, def := range rules.Jobs {
		if _, clash := targets[def.ID]; clash {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidJobName, "job shadows a target"), "job_id", def.ID)
		}
	}

	for _, name := range sortedKeys(rulesfile.Metas) {
		if err := validateName(name); err != nil {
			return nil, err
		}
		if _, clash := rulesfile.Jobs[name]; clash {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidJobName, "meta shadows a job"), "meta_id", name)
		}
		if _, clash := targets[name]; clash {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidJobName, "meta shadows a target"), "meta_id", name)
		}
		dto := rulesfile.Metas[name]
		for _, ref := range dto.Jobs {
			_, isJob := rulesfile.Jobs[ref]
			_, isMeta := rulesfile.Metas[ref]
			if !isJob && !isMeta {
				return nil, zerr.With(zerr.With(domain.ErrMissingReference, "meta_id", name), "missing_reference", ref)
			}
		}
		if len(dto.Jobs) == 0 {
			l.Logger.Warn(fmt.Sprintf("meta %s has no jobs", name))
		}
		rules.Metas = append(rules.Metas, domain.MetaTarget{
			ID:       name,
			Jobs:     slices.Clone(dto.Jobs),
			Disabled: dto.Disabled,
		})
	}
	return rules, nil
}

func buildSettings(dto SettingsDTO) (domain.SchedulerConfig, error) {
	cfg := domain.DefaultSchedulerConfig()
	if dto.MaxRetries != nil {
		if *dto.MaxRetries < 1 {
			return cfg, zerr.With(zerr.New("max_retries must be at least 1"), "max_retries", *dto.MaxRetries)
		}
		cfg.MaxRetries = *dto.MaxRetries
	}
	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"job_timeout", dto.JobTimeout, &cfg.JobTimeout},
		{"timeout_poll", dto.TimeoutPoll, &cfg.TimeoutPoll},
		{"poll_timeout", dto.PollTimeout, &cfg.PollTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := parseDuration(d.value)
		if err != nil {
			return cfg, zerr.With(err, "setting", d.key)
		}
		*d.dst = parsed
	}
	if dto.Listen != "" {
		cfg.Listen = dto.Listen
	}
	if dto.StateFile != "" {
		cfg.StateFile = dto.StateFile
	}
	return cfg, nil
}

// parseDuration accepts Go durations ("90s") as well as time steps ("5min").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, zerr.With(zerr.New("duration must not be negative"), "value", s)
		}
		return d, nil
	}
	step, err := domain.ParseTimeStep(s)
	if err != nil {
		return 0, err
	}
	return step.Duration(), nil
}

func buildJob(name string, dto JobDTO) (domain.JobDefinition, error) {
	def := domain.JobDefinition{
		ID:          name,
		Command:     strings.TrimSpace(dto.Command),
		Env:         dto.Env,
		AlwaysForce: dto.AlwaysForce,
		Disabled:    dto.Disabled,
		Meta:        dto.Meta,
	}

	steps := []struct {
		key   string
		value string
		dst   *domain.TimeStep
	}{
		{"cache_time", dto.CacheTime, &def.CacheTime},
		{"curfew", dto.Curfew, &def.Curfew},
		{"file_step", dto.FileStep, &def.FileStep},
	}
	for _, s := range steps {
		step, err := domain.ParseTimeStep(s.value)
		if err != nil {
			return def, zerr.With(err, "field", s.key)
		}
		*s.dst = step
	}

	for _, label := range sortedKeys(dto.Targets) {
		kind, err := domain.ParseTargetKind(label)
		if err != nil {
			return def, err
		}
		specs, err := buildSpecs(dto.Targets[label])
		if err != nil {
			return def, zerr.With(err, "kind", label)
		}
		if def.Targets == nil {
			def.Targets = make(map[domain.TargetKind][]domain.TargetSpec)
		}
		def.Targets[kind] = specs
	}

	for _, label := range sortedKeys(dto.Dependencies) {
		kind, err := domain.ParseDependencyKind(label)
		if err != nil {
			return def, err
		}
		specs, err := buildSpecs(dto.Dependencies[label])
		if err != nil {
			return def, zerr.With(err, "kind", label)
		}
		if def.Dependencies == nil {
			def.Dependencies = make(map[domain.DependencyKind][]domain.TargetSpec)
		}
		def.Dependencies[kind] = specs
	}
	return def, nil
}

func buildSpecs(dtos []TargetDTO) ([]domain.TargetSpec, error) {
	specs := make([]domain.TargetSpec, 0, len(dtos))
	for _, dto := range dtos {
		id := strings.TrimSpace(dto.ID)
		if id == "" {
			return nil, zerr.New("target id is required")
		}
		step, err := domain.ParseTimeStep(dto.Step)
		if err != nil {
			return nil, zerr.With(err, "target_id", id)
		}
		if dto.Past < 0 {
			return nil, zerr.With(zerr.With(zerr.New("past must not be negative"), "target_id", id), "past", dto.Past)
		}

		var expander domain.Expander = domain.StandardExpander{ID: id}
		if !step.IsZero() {
			expander = domain.TimestampExpander{ID: id, Step: step, Past: dto.Past}
		}
		specs = append(specs, domain.TargetSpec{
			Expander:    expander,
			Backend:     dto.Backend,
			IgnoreMtime: dto.IgnoreMtime,
			Group:       dto.Group,
		})
	}
	return specs, nil
}

// targetIDs collects the template ids of every target and dependency.
func targetIDs(jobs []domain.JobDefinition) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, def := range jobs {
		for _, specs := range def.Targets {
			for _, spec := range specs {
				ids[spec.ID()] = struct{}{}
			}
		}
		for _, specs := range def.Dependencies {
			for _, spec := range specs {
				ids[spec.ID()] = struct{}{}
			}
		}
	}
	return ids
}

// validateName rejects empty ids and ids that cannot be addressed from the CLI.
func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return zerr.With(domain.ErrInvalidJobName, "job_id", name)
	}
	if strings.ContainsAny(name, " \t\n/") {
		return zerr.With(zerr.With(domain.ErrInvalidJobName, "job_id", name), "invalid_character", name)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
