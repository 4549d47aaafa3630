package slayer

import (
	"math/rand/v2"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
)

// Machine owns one run's task slot, storage slot and progression, and applies
// the task transitions. A failed operation returns a *ContractError and leaves
// everything untouched. Machine is not safe for concurrent use.
type Machine struct {
	cat  *catalogs.Catalogs
	cost *costs.Model
	rng  *rand.Rand

	st     State
	player Progression

	prefix []prefixEntry
}

type prefixEntry struct {
	sum uint32
	idx int
}

func NewMachine(cat *catalogs.Catalogs, cost *costs.Model, rng *rand.Rand, st State, player Progression) *Machine {
	if st.Acc.TasksStarted == nil {
		st.Acc.TasksStarted = map[GiverCreature]uint64{}
	}
	if st.Acc.TasksDone == nil {
		st.Acc.TasksDone = map[GiverCreature]uint64{}
	}
	if st.Acc.Kills == nil {
		st.Acc.Kills = map[catalogs.Creature]uint64{}
	}
	return &Machine{cat: cat, cost: cost, rng: rng, st: st, player: player}
}

// State and Player expose the live values for reading. Callers must not modify them.
func (m *Machine) State() *State { return &m.st }

func (m *Machine) Player() *Progression { return &m.player }

func (m *Machine) Catalogs() *catalogs.Catalogs { return m.cat }

// Assign draws a new task from g. With an active task this is a reroll: g must
// be the reroll giver, that giver must not be able to hand out the current
// creature to this player, and the streak resets.
func (m *Machine) Assign(g catalogs.TaskGiver) (Task, error) {
	const op = "assign"
	if !g.Valid() {
		return Task{}, violation(op, ErrGiverLocked, "unknown task giver %d", uint8(g))
	}
	if q := m.cat.GiverGate(g); !m.player.Quests.Has(q) {
		return Task{}, violation(op, ErrGiverLocked, "%s requires %s", g, q)
	}

	offers := m.cat.Offerings(g)
	last := m.st.Task.Creature()
	cur, reroll := m.st.Task.Active()
	if reroll {
		if rg := m.cat.RerollGiver(); g != rg {
			return Task{}, violation(op, ErrInvalidSkip, "active %s task can only be rerolled at %s, not %s", cur.Creature, rg, g)
		}
		for _, a := range offers {
			if a.Creature == cur.Creature && m.player.CanReceive(m.cat, a) {
				return Task{}, violation(op, ErrInvalidSkip, "%s can assign %s itself", g, cur.Creature)
			}
		}
	}

	m.prefix = m.prefix[:0]
	var total uint32
	for i, a := range offers {
		if a.Creature == last || !m.player.CanReceive(m.cat, a) {
			continue
		}
		total += a.Weight
		m.prefix = append(m.prefix, prefixEntry{sum: total, idx: i})
	}
	if total == 0 {
		if m.cat.EligibleWeight(g, m.player.Level, m.player.Quests) > 0 {
			return Task{}, violation(op, ErrNoEligibleAssignment, "%s only has %s, the previous task", g, last)
		}
		return Task{}, violation(op, ErrNoEligibleAssignment, "%s has nothing for level %d", g, m.player.Level)
	}

	draw := m.rng.Uint32N(total)
	var pick catalogs.Assignment
	for _, e := range m.prefix {
		if e.sum > draw {
			pick = offers[e.idx]
			break
		}
	}
	amount := pick.Amount.Min + m.rng.Uint32N(pick.Amount.Max-pick.Amount.Min+1)

	if reroll {
		m.st.Streak = 0
		m.st.Acc.Rerolls++
	}
	t := Task{Creature: pick.Creature, Giver: g, Amount: amount}
	m.st.Acc.TasksStarted[GiverCreature{Giver: g, Creature: t.Creature}]++
	_, sup := m.cost.CostOfGiver(g)
	m.st.Acc.Supplies = m.st.Acc.Supplies.Add(sup)
	m.st.Task = ActiveTask(t)
	return t, nil
}

// Complete kills the active task, grants experience and the streak bonus.
func (m *Machine) Complete() error {
	t, ok := m.st.Task.Active()
	if !ok {
		return violation("complete", ErrNoActiveTask, "last task %s is already done", m.st.Task.Creature())
	}
	m.st.Streak++
	acc := &m.st.Acc
	acc.TasksDone[GiverCreature{Giver: t.Giver, Creature: t.Creature}]++
	acc.Supplies = acc.Supplies.Add(m.cost.CreatureSupplies(t.Creature))

	def := m.cat.Creature(t.Creature)
	var kills uint64
	if def.PerKill() {
		kills = m.killEach(t.Amount, def)
	} else {
		kills = uint64(t.Amount)
	}
	acc.Kills[t.Creature] += kills
	m.player.addExp(kills * uint64(def.SlayerExp))

	if award := StreakBonus(m.st.Streak, m.cat.RewardRate(t.Giver)); award > 0 {
		m.st.Points += award
		acc.TotalPoints += uint64(award)
		acc.observePoints(m.st.Points)
	}
	m.st.Task = CompletedTask(t.Creature)
	return nil
}

// Skip abandons the active task for SkipCost points.
func (m *Machine) Skip() error {
	const op = "skip"
	t, ok := m.st.Task.Active()
	if !ok {
		return violation(op, ErrNoActiveTask, "nothing to skip")
	}
	if m.st.Points < SkipCost {
		return violation(op, ErrInsufficientPoints, "have %d, need %d", m.st.Points, SkipCost)
	}
	m.st.Points -= SkipCost
	m.st.Acc.PointSkips++
	m.st.Acc.observePoints(m.st.Points)
	m.st.Task = CompletedTask(t.Creature)
	return nil
}

// Store parks the active task in the storage slot.
func (m *Machine) Store() error {
	const op = "store"
	if !m.player.StorageUnlocked {
		return violation(op, ErrStorageLocked, "storage not unlocked")
	}
	t, ok := m.st.Task.Active()
	if !ok {
		return violation(op, ErrNoActiveTask, "nothing to store")
	}
	if m.st.HasStored {
		return violation(op, ErrStorageOccupied, "already holding %s", m.st.Stored)
	}
	m.st.Stored, m.st.HasStored = t, true
	m.st.Acc.Stored++
	m.st.Task = CompletedTask(t.Creature)
	return nil
}

// Unstore makes the stored task active again.
func (m *Machine) Unstore() error {
	const op = "unstore"
	if !m.st.HasStored {
		return violation(op, ErrStorageEmpty, "nothing stored")
	}
	if t, ok := m.st.Task.Active(); ok {
		return violation(op, ErrTaskActive, "%s is still active", t)
	}
	m.st.Task = ActiveTask(m.st.Stored)
	m.st.Stored, m.st.HasStored = Task{}, false
	m.st.Acc.Unstored++
	return nil
}

// UnlockStorage buys the storage slot for UnlockStorageCost points.
func (m *Machine) UnlockStorage() error {
	const op = "unlock_storage"
	if m.player.StorageUnlocked {
		return violation(op, ErrAlreadyUnlocked, "storage already unlocked")
	}
	if m.st.Points < UnlockStorageCost {
		return violation(op, ErrInsufficientPoints, "have %d, need %d", m.st.Points, UnlockStorageCost)
	}
	m.st.Points -= UnlockStorageCost
	m.player.StorageUnlocked = true
	return nil
}

// StreakMultiplier returns the reward multiplier for a streak, picked by the
// largest of 1000, 250, 100, 50 and 10 that divides it; 1 otherwise.
func StreakMultiplier(streak uint32) uint32 {
	switch {
	case streak%1000 == 0:
		return 50
	case streak%250 == 0:
		return 35
	case streak%100 == 0:
		return 25
	case streak%50 == 0:
		return 15
	case streak%10 == 0:
		return 5
	default:
		return 1
	}
}

// StreakBonus is the points a completion at streak earns at rate. Streaks
// below five earn nothing.
func StreakBonus(streak, rate uint32) uint32 {
	if streak < 5 {
		return 0
	}
	return rate * StreakMultiplier(streak)
}
