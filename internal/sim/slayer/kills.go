package slayer

import "github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"

const (
	// BraceletProcChance applies to both the slaughter and expeditious bracelet.
	BraceletProcChance  = 0.25
	SuperiorSpawnChance = 1.0 / 200

	// Unique-table split between the staffs and the heart.
	uniqueTableDenom = 2.286
	eternalGemChance = 1.0 / 8
)

// killEach simulates a task one kill at a time and returns the number of
// kills made. Per kill, in order: slaughter roll, expeditious roll, superior
// roll, then the base decrement. All decrements saturate at zero.
func (m *Machine) killEach(amount uint32, def catalogs.CreatureDef) uint64 {
	acc := &m.st.Acc
	left := amount
	var kills uint64
	for left > 0 {
		kills++

		if def.UsesSlaughterBracelet && m.rng.Float64() < BraceletProcChance {
			acc.Supplies.BraceletOfSlaughterCharges++
			left++
		}
		if def.UsesExpeditiousBracelet && m.rng.Float64() < BraceletProcChance {
			acc.Supplies.ExpeditiousBraceletCharges++
			left = satDec(left)
		}
		if def.SuperiorDropRate > 0 && m.rng.Float64() < SuperiorSpawnChance {
			left = satDec(left)
			m.rollSuperiorDrop(def.SuperiorDropRate)
		}
		left = satDec(left)
	}
	return kills
}

// rollSuperiorDrop rolls a superior's unique table. A main roll below rate hits
// the staff/heart table; a roll in [rate, 2*rate) gets a 1/8 shot at the gem.
func (m *Machine) rollSuperiorDrop(rate float64) {
	drops := &m.st.Acc.Drops
	roll := m.rng.Float64()
	switch {
	case roll < rate:
		sub := m.rng.Float64()
		switch {
		case sub < 1/uniqueTableDenom:
			drops.DustBattlestaff++
		case sub < 2/uniqueTableDenom:
			drops.MistBattlestaff++
		default:
			drops.ImbuedHeart++
		}
	case roll < 2*rate:
		if m.rng.Float64() < eternalGemChance {
			drops.EternalGem++
		}
	}
}

func satDec(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return n - 1
}
