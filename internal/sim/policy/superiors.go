package policy

import (
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/slayer"
)

// Thresholds for the superiors policy.
const (
	SuperiorsUnlockAt   = 620  // buy storage once points reach this
	SuperiorsFarmAbove  = 1000 // switch to farming superiors above this
	SuperiorsAccumBelow = 500  // switch back to building points below this

	// Point-skip slow Vannaka tasks only while this many points are banked.
	vannakaSkipReserve = 120
)

type SuperiorsMode uint8

const (
	AccumulatePoints SuperiorsMode = iota
	GetSuperiors
)

func (m SuperiorsMode) String() string {
	if m == GetSuperiors {
		return "get_superiors"
	}
	return "accumulate_points"
}

// Vannaka tasks worth completing while building points.
var vannakaPointTasks = creatureSet(
	catalogs.Ankous,
	catalogs.Crocodiles,
	catalogs.IceGiants,
	catalogs.IceWarriors,
	catalogs.HillGiants,
	catalogs.Hobgoblins,
	catalogs.Kalphite,
	catalogs.MossGiants,
	catalogs.Pyrefiends,
	catalogs.Trolls,
)

// Vannaka tasks worth completing while farming superiors.
var vannakaSuperiorTasks = creatureSet(catalogs.Kalphite, catalogs.Pyrefiends)

// Superiors plays MinimizeLock until storage can be bought, then alternates
// between building points on Turael/Vannaka streaks and farming Vannaka
// superiors, with hysteresis between the two modes. It succeeds once every
// superior unique has dropped.
type Superiors struct {
	cat  *catalogs.Catalogs
	mode SuperiorsMode
}

func (s *Superiors) Name() string { return NameSuperiors }

func (s *Superiors) Mode() SuperiorsMode { return s.mode }

func (s *Superiors) ShouldTerminate(st *slayer.State, p *slayer.Progression) Verdict {
	if st.Acc.Drops.All() {
		return Success
	}
	if slayerLocked(s.cat, st, p) {
		return Failure
	}
	return Continue
}

func (s *Superiors) SelectAction(st *slayer.State, p *slayer.Progression) Action {
	if !p.StorageUnlocked {
		if st.Points >= SuperiorsUnlockAt {
			return do(UnlockStorage)
		}
		fallback := MinimizeLock{cat: s.cat}
		return fallback.SelectAction(st, p)
	}

	switch {
	case s.mode == AccumulatePoints && st.Points > SuperiorsFarmAbove:
		s.mode = GetSuperiors
	case s.mode == GetSuperiors && st.Points < SuperiorsAccumBelow:
		s.mode = AccumulatePoints
	}

	if t, ok := st.Task.Active(); ok {
		if s.mode == GetSuperiors {
			return s.farmActive(st, t)
		}
		return s.accumulateActive(st, t)
	}

	next := catalogs.Vannaka
	if s.mode == AccumulatePoints && (st.Streak+1)%10 != 0 {
		// Vannaka only on every tenth task, where the bonus multiplier applies.
		next = catalogs.Turael
	}
	if s.shouldUnstore(st, next) {
		return do(Unstore)
	}
	return assign(next)
}

func (s *Superiors) accumulateActive(st *slayer.State, t slayer.Task) Action {
	reroll := s.cat.RerollGiver()
	switch {
	case killable(s.cat, t.Creature):
		if t.Giver != catalogs.Vannaka || vannakaPointTasks[t.Creature] {
			return do(Complete)
		}
		if st.Points >= vannakaSkipReserve {
			return do(PointSkip)
		}
		return assign(reroll)
	case s.cat.CanAssign(reroll, t.Creature):
		return s.parkOrSkip(st)
	case st.Points > vannakaSkipReserve:
		return do(PointSkip)
	default:
		return assign(reroll)
	}
}

func (s *Superiors) farmActive(st *slayer.State, t slayer.Task) Action {
	reroll := s.cat.RerollGiver()
	switch {
	case killable(s.cat, t.Creature):
		if t.Giver != catalogs.Vannaka || vannakaSuperiorTasks[t.Creature] {
			return do(Complete)
		}
		return assign(reroll)
	case s.cat.CanAssign(reroll, t.Creature):
		return s.parkOrSkip(st)
	default:
		return assign(reroll)
	}
}

// parkOrSkip handles a task the reroll giver lists but the player cannot kill.
func (s *Superiors) parkOrSkip(st *slayer.State) Action {
	if !st.HasStored {
		return do(Store)
	}
	// Below SkipCost ShouldTerminate has already reported the lock.
	return do(PointSkip)
}

// shouldUnstore swaps a killable last task for a stored unkillable one when
// next could hand out both. The last completed creature cannot be assigned
// again right away, so making the bad stored task "last" keeps it out of the
// draw while the good one stays possible.
func (s *Superiors) shouldUnstore(st *slayer.State, next catalogs.TaskGiver) bool {
	stored, ok := st.StoredTask()
	if !ok {
		return false
	}
	last := st.Task.Creature()
	return killable(s.cat, last) &&
		s.cat.CanAssign(next, last) &&
		!killable(s.cat, stored.Creature) &&
		s.cat.CanAssign(next, stored.Creature)
}

func creatureSet(cs ...catalogs.Creature) map[catalogs.Creature]bool {
	m := make(map[catalogs.Creature]bool, len(cs))
	for _, c := range cs {
		m[c] = true
	}
	return m
}
