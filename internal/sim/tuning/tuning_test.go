package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/policy"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/run"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_EmptyPathIsDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Era != "LIMP_2026" || got.Policy != policy.NameSuperiors || got.Replications != 10_000 {
		t.Fatalf("defaults=%+v", got)
	}
	sp, err := got.StartPoint()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if sp != run.DefaultStart(catalogs.Limp2026) {
		t.Fatalf("start=%+v", sp)
	}
}

func TestLoad_FileAndStart(t *testing.T) {
	path := writeFile(t, `
era: limp_2024
policy: MINIMIZE_LOCK
replications: 50
workers: 2
seed: 99
start:
  experience: 168538
  quests: [porcine of interest]
  points: 40
  task:
    state: Active
    creature: hellhounds
    giver: vannaka
    amount: 40
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.EraValue() != catalogs.Limp2024 || got.Policy != policy.NameMinimizeLock || got.Replications != 50 || got.Seed != 99 {
		t.Fatalf("tuning=%+v", got)
	}
	if got.MaxSteps != run.DefaultMaxSteps {
		t.Fatalf("max_steps=%d want default", got.MaxSteps)
	}
	sp, err := got.StartPoint()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	tk, ok := sp.Task.Active()
	if !ok || tk.Creature != catalogs.Hellhounds || tk.Giver != catalogs.Vannaka || tk.Amount != 40 {
		t.Fatalf("task=%s", sp.Task)
	}
	if !sp.Quests.Has(catalogs.PorcineOfInterest) || sp.Quests.Has(catalogs.LostCity) || sp.Points != 40 {
		t.Fatalf("start=%+v", sp)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "replications: 50\nseed: 3\n")
	t.Setenv("SLAYERSIM_REPLICATIONS", "7")
	t.Setenv("SLAYERSIM_POLICY", "minimize_lock")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Replications != 7 || got.Seed != 3 || got.Policy != policy.NameMinimizeLock {
		t.Fatalf("tuning=%+v", got)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"era":          "era: LIMP_1999\n",
		"policy":       "policy: greedy\n",
		"replications": "replications: 0\n",
		"workers":      "workers: -2\n",
		"quest":        "start:\n  quests: [monkey madness]\n  task: {state: completed, creature: cows}\n",
		"creature":     "start:\n  task: {state: completed, creature: dragons}\n",
		"amount":       "start:\n  task: {state: active, creature: cows, giver: turael}\n",
		"giver":        "start:\n  task: {state: active, creature: cows, giver: duradel, amount: 5}\n",
		"state":        "start:\n  task: {state: paused, creature: cows}\n",
		"yaml":         "replications: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Fatalf("load succeeded for %q", body)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file loaded")
	}
}
