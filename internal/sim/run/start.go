package run

import (
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

// StartPoint is the caller-supplied state a run begins from.
type StartPoint struct {
	Experience      uint32            `json:"experience"`
	Quests          catalogs.QuestSet `json:"quests"`
	Streak          uint32            `json:"streak"`
	Points          uint32            `json:"points"`
	Task            slayer.TaskState  `json:"task"`
	StorageUnlocked bool              `json:"storage_unlocked"`
}

func (s StartPoint) progression() slayer.Progression {
	return slayer.NewProgression(s.Experience, s.Quests, s.StorageUnlocked)
}

func (s StartPoint) state() slayer.State {
	return slayer.NewState(s.Points, s.Streak, s.Task)
}

// DefaultStart returns the recorded account state at the start of each era.
func DefaultStart(era catalogs.Era) StartPoint {
	switch era {
	case catalogs.Limp2024:
		return StartPoint{
			Experience: 168_538,
			Quests:     catalogs.NewQuestSet(catalogs.PorcineOfInterest),
			Task:       slayer.ActiveTask(slayer.Task{Creature: catalogs.Hellhounds, Giver: catalogs.Vannaka, Amount: 40}),
		}
	case catalogs.Limp2025:
		return StartPoint{
			Experience: 1_308_538,
			Quests:     catalogs.NewQuestSet(catalogs.LostCity, catalogs.PorcineOfInterest),
			Streak:     1,
			Points:     120,
			Task:       slayer.ActiveTask(slayer.Task{Creature: catalogs.Monkeys, Giver: catalogs.Turael, Amount: 20}),
		}
	default:
		s := DefaultStart(catalogs.Limp2025)
		s.Quests = s.Quests.With(catalogs.DragonSlayer)
		return s
	}
}
