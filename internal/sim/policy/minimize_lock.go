package policy

import (
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

// MinimizeLockTarget is the point total at which MinimizeLock is done.
const MinimizeLockTarget = 1000

// MinimizeLock builds points while avoiding tasks that would lock the player.
// It kills what it can, point-skips what the reroll giver would hand out again
// and rerolls everything else. New tasks come from Vannaka when the next streak
// is at least 5 and ends in 0-4, otherwise from Spria.
type MinimizeLock struct {
	cat *catalogs.Catalogs
}

func (m *MinimizeLock) Name() string { return NameMinimizeLock }

func (m *MinimizeLock) ShouldTerminate(s *slayer.State, p *slayer.Progression) Verdict {
	if s.Task.IsActive() {
		if slayerLocked(m.cat, s, p) {
			return Failure
		}
		return Continue
	}
	if s.Points >= MinimizeLockTarget {
		return Success
	}
	return Continue
}

func (m *MinimizeLock) SelectAction(s *slayer.State, p *slayer.Progression) Action {
	if t, ok := s.Task.Active(); ok {
		return m.handleActive(s, p, t)
	}
	next := s.Streak + 1
	if next >= 5 && next%10 <= 4 {
		return assign(catalogs.Vannaka)
	}
	return assign(catalogs.Spria)
}

func (m *MinimizeLock) handleActive(s *slayer.State, p *slayer.Progression, t slayer.Task) Action {
	reroll := m.cat.RerollGiver()
	switch {
	case killable(m.cat, t.Creature):
		return do(Complete)
	case m.cat.CanAssign(reroll, t.Creature):
		if s.Points < slayer.SkipCost && p.StorageUnlocked && !s.HasStored {
			return do(Store)
		}
		return do(PointSkip)
	default:
		return assign(reroll)
	}
}
