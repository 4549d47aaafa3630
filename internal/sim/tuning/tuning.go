// Package tuning loads batch configuration from tuning.yaml with
// environment overrides.
package tuning

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

type Tuning struct {
	Era          string `yaml:"era"          json:"era"          env:"SLAYERSIM_ERA"`
	Policy       string `yaml:"policy"       json:"policy"       env:"SLAYERSIM_POLICY"`
	Replications int    `yaml:"replications" json:"replications" env:"SLAYERSIM_REPLICATIONS"`
	Workers      int    `yaml:"workers"      json:"workers"      env:"SLAYERSIM_WORKERS"`
	Seed         uint64 `yaml:"seed"         json:"seed"         env:"SLAYERSIM_SEED"`
	MaxSteps     int    `yaml:"max_steps"    json:"max_steps"    env:"SLAYERSIM_MAX_STEPS"`

	// DataDir replaces the embedded balance tables when set.
	DataDir string `yaml:"data_dir,omitempty" json:"data_dir,omitempty" env:"SLAYERSIM_DATA_DIR"`

	// ProgressEvery is how many finished replications separate progress reports.
	ProgressEvery int `yaml:"progress_every" json:"progress_every"`

	// Start is the era's recorded start point when omitted.
	Start *StartSpec `yaml:"start,omitempty" json:"start,omitempty"`
}

type StartSpec struct {
	Experience      uint32   `yaml:"experience"       json:"experience"`
	Quests          []string `yaml:"quests"           json:"quests"`
	Streak          uint32   `yaml:"streak"           json:"streak"`
	Points          uint32   `yaml:"points"           json:"points"`
	Task            TaskSpec `yaml:"task"             json:"task"`
	StorageUnlocked bool     `yaml:"storage_unlocked" json:"storage_unlocked"`
}

// TaskSpec is a task state. State is "active" or "completed"; Giver and
// Amount only apply to active tasks.
type TaskSpec struct {
	State    string `yaml:"state"            json:"state"`
	Creature string `yaml:"creature"         json:"creature"`
	Giver    string `yaml:"giver,omitempty"  json:"giver,omitempty"`
	Amount   uint32 `yaml:"amount,omitempty" json:"amount,omitempty"`
}

const (
	TaskStateActive    = "active"
	TaskStateCompleted = "completed"
)

// Defaults is the 2026 superiors scenario.
func Defaults() Tuning {
	return Tuning{
		Era:           catalogs.Limp2026.String(),
		Policy:        policy.NameSuperiors,
		Replications:  10_000,
		Seed:          1,
		MaxSteps:      run.DefaultMaxSteps,
		ProgressEvery: 500,
	}
}

// Load reads path over Defaults, then applies SLAYERSIM_* overrides. An
// empty path uses the defaults alone.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("tuning.yaml: %w", err)
		}
	}
	if err := env.Parse(&t); err != nil {
		return t, fmt.Errorf("parse env: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Era = strings.ToUpper(strings.TrimSpace(t.Era))
	t.Policy = strings.ToLower(strings.TrimSpace(t.Policy))
	t.DataDir = strings.TrimSpace(t.DataDir)
	if t.MaxSteps <= 0 {
		t.MaxSteps = run.DefaultMaxSteps
	}
	if t.ProgressEvery <= 0 {
		t.ProgressEvery = 500
	}
	if t.Start != nil {
		t.Start.Task.State = strings.ToLower(strings.TrimSpace(t.Start.Task.State))
		if t.Start.Task.State == "" {
			t.Start.Task.State = TaskStateCompleted
		}
	}
}

func (t Tuning) Validate() error {
	if _, err := catalogs.ParseEra(t.Era); err != nil {
		return err
	}
	if !policy.Valid(t.Policy) {
		return fmt.Errorf("unknown policy %q (want one of %s)", t.Policy, strings.Join(policy.Names(), ", "))
	}
	if t.Replications <= 0 {
		return fmt.Errorf("replications must be positive, got %d", t.Replications)
	}
	if t.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", t.Workers)
	}
	if t.Start != nil {
		if _, err := t.Start.StartPoint(); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	return nil
}

// EraValue returns the parsed era. Call after Validate.
func (t Tuning) EraValue() catalogs.Era {
	e, _ := catalogs.ParseEra(t.Era)
	return e
}

// StartPoint resolves the configured start, falling back to the era default.
func (t Tuning) StartPoint() (run.StartPoint, error) {
	if t.Start == nil {
		return run.DefaultStart(t.EraValue()), nil
	}
	return t.Start.StartPoint()
}

func (s StartSpec) StartPoint() (run.StartPoint, error) {
	var quests catalogs.QuestSet
	for _, name := range s.Quests {
		q, err := catalogs.ParseQuest(name)
		if err != nil {
			return run.StartPoint{}, err
		}
		quests = quests.With(q)
	}
	task, err := s.Task.taskState()
	if err != nil {
		return run.StartPoint{}, err
	}
	return run.StartPoint{
		Experience:      s.Experience,
		Quests:          quests,
		Streak:          s.Streak,
		Points:          s.Points,
		Task:            task,
		StorageUnlocked: s.StorageUnlocked,
	}, nil
}

func (s TaskSpec) taskState() (slayer.TaskState, error) {
	c, err := catalogs.ParseCreature(s.Creature)
	if err != nil {
		return slayer.TaskState{}, fmt.Errorf("task: %w", err)
	}
	switch s.State {
	case TaskStateCompleted:
		return slayer.CompletedTask(c), nil
	case TaskStateActive:
		g, err := catalogs.ParseTaskGiver(s.Giver)
		if err != nil {
			return slayer.TaskState{}, fmt.Errorf("task: %w", err)
		}
		if s.Amount == 0 {
			return slayer.TaskState{}, fmt.Errorf("task: active %s needs a positive amount", c)
		}
		return slayer.ActiveTask(slayer.Task{Creature: c, Giver: g, Amount: s.Amount}), nil
	default:
		return slayer.TaskState{}, fmt.Errorf("task: unknown state %q", s.State)
	}
}
