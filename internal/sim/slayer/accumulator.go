package slayer

import (
	"fmt"
	"strings"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
	"github.com/MortenLohne/simulate-limpwurt/internal/sim/costs"
)

// GiverCreature keys per-task counters. It encodes as "GIVER/CREATURE".
type GiverCreature struct {
	Giver    catalogs.TaskGiver
	Creature catalogs.Creature
}

func (k GiverCreature) String() string { return k.Giver.String() + "/" + k.Creature.String() }

func (k GiverCreature) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *GiverCreature) UnmarshalText(b []byte) error {
	g, c, ok := strings.Cut(string(b), "/")
	if !ok {
		return fmt.Errorf("bad giver/creature key %q", b)
	}
	giver, err := catalogs.ParseTaskGiver(g)
	if err != nil {
		return err
	}
	creature, err := catalogs.ParseCreature(c)
	if err != nil {
		return err
	}
	k.Giver, k.Creature = giver, creature
	return nil
}

// Drops counts superior unique drops.
type Drops struct {
	DustBattlestaff uint64 `json:"dust_battlestaff"`
	MistBattlestaff uint64 `json:"mist_battlestaff"`
	ImbuedHeart     uint64 `json:"imbued_heart"`
	EternalGem      uint64 `json:"eternal_gem"`
}

func (d Drops) Add(o Drops) Drops {
	return Drops{
		DustBattlestaff: d.DustBattlestaff + o.DustBattlestaff,
		MistBattlestaff: d.MistBattlestaff + o.MistBattlestaff,
		ImbuedHeart:     d.ImbuedHeart + o.ImbuedHeart,
		EternalGem:      d.EternalGem + o.EternalGem,
	}
}

// All reports whether every drop kind has been seen at least once.
func (d Drops) All() bool {
	return d.DustBattlestaff > 0 && d.MistBattlestaff > 0 && d.ImbuedHeart > 0 && d.EternalGem > 0
}

// Accumulator is the append-only statistics record of one run. The machine
// writes it and never reads it back for decisions.
type Accumulator struct {
	TasksStarted map[GiverCreature]uint64     `json:"tasks_started"`
	TasksDone    map[GiverCreature]uint64     `json:"tasks_done"`
	Kills        map[catalogs.Creature]uint64 `json:"kills"`

	TotalPoints uint64 `json:"total_points"`
	MinPoints   uint32 `json:"min_points"`
	MaxPoints   uint32 `json:"max_points"`

	PointSkips uint64 `json:"point_skips"`
	Rerolls    uint64 `json:"rerolls"`
	Stored     uint64 `json:"stored"`
	Unstored   uint64 `json:"unstored"`

	Supplies costs.Supplies `json:"supplies"`
	Drops    Drops          `json:"drops"`
}

func newAccumulator(points uint32) Accumulator {
	return Accumulator{
		TasksStarted: map[GiverCreature]uint64{},
		TasksDone:    map[GiverCreature]uint64{},
		Kills:        map[catalogs.Creature]uint64{},
		MinPoints:    points,
		MaxPoints:    points,
	}
}

func (a *Accumulator) TotalStarted() uint64 { return sumValues(a.TasksStarted) }

func (a *Accumulator) TotalDone() uint64 { return sumValues(a.TasksDone) }

func (a *Accumulator) TotalKills() uint64 {
	var n uint64
	for _, v := range a.Kills {
		n += v
	}
	return n
}

func sumValues(m map[GiverCreature]uint64) uint64 {
	var n uint64
	for _, v := range m {
		n += v
	}
	return n
}

// TimeSpent prices the run's counters with m, including restocking supplies.
func (a *Accumulator) TimeSpent(m *costs.Model) time.Duration {
	var total time.Duration
	for k, n := range a.TasksStarted {
		d, _ := m.CostOfGiver(k.Giver)
		total += d * time.Duration(n)
	}
	for k, n := range a.TasksDone {
		total += m.CreatureTravel(k.Creature) * time.Duration(n)
	}
	for c, n := range a.Kills {
		total += m.TimePerKill(c) * time.Duration(n)
	}
	total += m.StoreTask() * time.Duration(a.Stored)
	total += m.UnstoreTask() * time.Duration(a.Unstored)
	return total + m.GatherTime(a.Supplies)
}

func (a *Accumulator) observePoints(p uint32) {
	if p < a.MinPoints {
		a.MinPoints = p
	}
	if p > a.MaxPoints {
		a.MaxPoints = p
	}
}
