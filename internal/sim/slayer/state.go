package slayer

import (
	"fmt"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
)

// Fixed point costs.
const (
	SkipCost          = 30
	UnlockStorageCost = 500
)

// Task is an assignment handed out by a giver.
type Task struct {
	Creature catalogs.Creature  `json:"creature"`
	Giver    catalogs.TaskGiver `json:"giver"`
	Amount   uint32             `json:"amount"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s %s x%d", t.Giver, t.Creature, t.Amount)
}

type TaskKind uint8

const (
	TaskCompleted TaskKind = iota
	TaskActive
)

func (k TaskKind) String() string {
	if k == TaskActive {
		return "active"
	}
	return "completed"
}

// TaskState is either an active task or the creature that was just finished.
// For TaskCompleted only Task.Creature is meaningful.
type TaskState struct {
	Kind TaskKind `json:"kind"`
	Task Task     `json:"task"`
}

func ActiveTask(t Task) TaskState { return TaskState{Kind: TaskActive, Task: t} }

func CompletedTask(c catalogs.Creature) TaskState {
	return TaskState{Kind: TaskCompleted, Task: Task{Creature: c}}
}

func (s TaskState) Active() (Task, bool) {
	if s.Kind != TaskActive {
		return Task{}, false
	}
	return s.Task, true
}

func (s TaskState) IsActive() bool { return s.Kind == TaskActive }

// Creature is the active creature or the last completed one.
func (s TaskState) Creature() catalogs.Creature { return s.Task.Creature }

func (s TaskState) String() string {
	if s.Kind == TaskActive {
		return "active " + s.Task.String()
	}
	return "completed " + s.Task.Creature.String()
}

// Progression holds the player's gating attributes. It only moves upward.
type Progression struct {
	Exp             uint32            `json:"exp"`
	Level           uint8             `json:"level"`
	Quests          catalogs.QuestSet `json:"quests"`
	StorageUnlocked bool              `json:"storage_unlocked"`
}

func NewProgression(exp uint32, quests catalogs.QuestSet, storageUnlocked bool) Progression {
	return Progression{
		Exp:             exp,
		Level:           catalogs.LevelForExp(exp),
		Quests:          quests,
		StorageUnlocked: storageUnlocked,
	}
}

func (p Progression) CanReceive(cat *catalogs.Catalogs, a catalogs.Assignment) bool {
	return cat.Eligible(a, p.Level, p.Quests)
}

func (p *Progression) addExp(exp uint64) {
	total := uint64(p.Exp) + exp
	if total > 1<<32-1 {
		total = 1<<32 - 1
	}
	p.Exp = uint32(total)
	p.Level = catalogs.LevelForExp(p.Exp)
}

// State is everything a policy may observe about the slayer side of a run.
type State struct {
	Points uint32    `json:"points"`
	Streak uint32    `json:"streak"`
	Task   TaskState `json:"task"`

	Stored    Task `json:"stored"`
	HasStored bool `json:"has_stored"`

	Acc Accumulator `json:"acc"`
}

// NewState starts a run. The accumulator's point extremes begin at points.
func NewState(points, streak uint32, task TaskState) State {
	return State{
		Points: points,
		Streak: streak,
		Task:   task,
		Acc:    newAccumulator(points),
	}
}

func (s *State) StoredTask() (Task, bool) { return s.Stored, s.HasStored }
