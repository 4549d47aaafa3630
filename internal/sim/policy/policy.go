// Package policy holds the decision strategies that drive a run: when to stop,
// and which task action to take next.
package policy

import (
	"fmt"
	"sort"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

type Verdict uint8

const (
	Continue Verdict = iota
	Success
	Failure
)

func (v Verdict) String() string {
	switch v {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "continue"
	}
}

type ActionKind uint8

const (
	Complete ActionKind = iota
	PointSkip
	Assign
	UnlockStorage
	Store
	Unstore
)

var actionNames = [...]string{"COMPLETE", "POINT_SKIP", "ASSIGN", "UNLOCK_STORAGE", "STORE", "UNSTORE"}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("ACTION(%d)", uint8(k))
}

func (k ActionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ActionKind) UnmarshalText(b []byte) error {
	for i, n := range actionNames {
		if n == string(b) {
			*k = ActionKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown action %q", b)
}

// Action is one step for the machine. Giver is only used by Assign.
type Action struct {
	Kind  ActionKind         `json:"kind"`
	Giver catalogs.TaskGiver `json:"giver,omitempty"`
}

func (a Action) String() string {
	if a.Kind == Assign {
		return "ASSIGN " + a.Giver.String()
	}
	return a.Kind.String()
}

func assign(g catalogs.TaskGiver) Action { return Action{Kind: Assign, Giver: g} }

func do(k ActionKind) Action { return Action{Kind: k} }

// Policy decides when a run ends and what to do next. SelectAction is only
// called after ShouldTerminate returned Continue for the same state, and must
// return an action the machine accepts in that state. Implementations may keep
// a small mode, so a Policy value belongs to exactly one run.
type Policy interface {
	Name() string
	ShouldTerminate(s *slayer.State, p *slayer.Progression) Verdict
	SelectAction(s *slayer.State, p *slayer.Progression) Action
}

const (
	NameMinimizeLock = "minimize_lock"
	NameSuperiors    = "superiors"
)

var constructors = map[string]func(cat *catalogs.Catalogs) Policy{
	NameMinimizeLock: func(cat *catalogs.Catalogs) Policy { return &MinimizeLock{cat: cat} },
	NameSuperiors:    func(cat *catalogs.Catalogs) Policy { return &Superiors{cat: cat} },
}

// New returns a fresh policy for one run.
func New(name string, cat *catalogs.Catalogs) (Policy, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown policy %q (want one of %v)", name, Names())
	}
	return c(cat), nil
}

func Names() []string {
	out := make([]string, 0, len(constructors))
	for n := range constructors {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func Valid(name string) bool {
	_, ok := constructors[name]
	return ok
}

// slayerLocked reports a run that can no longer progress: the active task
// cannot be killed, there are not enough points to skip it, the reroll giver
// lists it, and there is no free storage slot to park it in.
func slayerLocked(cat *catalogs.Catalogs, s *slayer.State, p *slayer.Progression) bool {
	t, ok := s.Task.Active()
	if !ok {
		return false
	}
	return !cat.Creature(t.Creature).MeleeKillable &&
		s.Points < slayer.SkipCost &&
		cat.CanAssign(cat.RerollGiver(), t.Creature) &&
		(!p.StorageUnlocked || s.HasStored)
}

func killable(cat *catalogs.Catalogs, c catalogs.Creature) bool {
	return cat.Creature(c).MeleeKillable
}
