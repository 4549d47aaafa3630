// Package costs models the time and consumables spent travelling to task givers,
// travelling to and killing creatures, and gathering the supplies used on the way.
package costs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/MortenLohne/simulate-limpwurt/internal/sim/catalogs"
)

// Supplies counts consumables by kind.
type Supplies struct {
	ExpeditiousBraceletCharges uint64 `json:"expeditious_bracelet_charges,omitempty"`
	BraceletOfSlaughterCharges uint64 `json:"bracelet_of_slaughter_charges,omitempty"`
	GamesNecklaceCharges       uint64 `json:"games_necklace_charges,omitempty"`
	DuelingRingCharges         uint64 `json:"dueling_ring_charges,omitempty"`
	NecklaceOfPassageCharges   uint64 `json:"necklace_of_passage_charges,omitempty"`
	ChronicleCharges           uint64 `json:"chronicle_charges,omitempty"`
	SkullSceptreCharges        uint64 `json:"skull_sceptre_charges,omitempty"`
	GiantsoulAmuletCharges     uint64 `json:"giantsoul_amulet_charges,omitempty"`
	LawRunes                   uint64 `json:"law_runes,omitempty"`
}

const numSupplyKinds = 9

// SupplyNames lists supply kinds in the order used by Counts.
var SupplyNames = [numSupplyKinds]string{
	"expeditious_bracelet_charges",
	"bracelet_of_slaughter_charges",
	"games_necklace_charges",
	"dueling_ring_charges",
	"necklace_of_passage_charges",
	"chronicle_charges",
	"skull_sceptre_charges",
	"giantsoul_amulet_charges",
	"law_runes",
}

func (s *Supplies) counters() [numSupplyKinds]*uint64 {
	return [numSupplyKinds]*uint64{
		&s.ExpeditiousBraceletCharges,
		&s.BraceletOfSlaughterCharges,
		&s.GamesNecklaceCharges,
		&s.DuelingRingCharges,
		&s.NecklaceOfPassageCharges,
		&s.ChronicleCharges,
		&s.SkullSceptreCharges,
		&s.GiantsoulAmuletCharges,
		&s.LawRunes,
	}
}

// Counts returns the counters in SupplyNames order.
func (s Supplies) Counts() [numSupplyKinds]uint64 {
	var out [numSupplyKinds]uint64
	for i, p := range s.counters() {
		out[i] = *p
	}
	return out
}

func (s Supplies) Add(o Supplies) Supplies {
	dst := s.counters()
	for i, v := range o.Counts() {
		*dst[i] += v
	}
	return s
}

func (s Supplies) IsZero() bool { return s == Supplies{} }

type creatureCost struct {
	travelSteps uint32
	perKill     time.Duration
	supplies    Supplies
}

type giverCost struct {
	travel   time.Duration
	supplies Supplies
}

// Model is read-only after Load and safe to share between goroutines.
type Model struct {
	gameTick  time.Duration
	runFactor float64

	creatures [catalogs.NumCreatures]creatureCost
	givers    [catalogs.NumTaskGivers]giverCost

	storeTask   time.Duration
	unstoreTask time.Duration
	gather      [numSupplyKinds]time.Duration

	digest string
}

type costsFile struct {
	GameTickMS      int64          `json:"game_tick_ms"`
	RunFraction     float64        `json:"run_fraction"`
	DefaultCreature creatureJSON   `json:"default_creature"`
	Creatures       []creatureJSON `json:"creatures"`
	TaskGivers      []struct {
		TaskGiver catalogs.TaskGiver `json:"task_giver"`
		TravelMS  int64              `json:"travel_ms"`
		Supplies  Supplies           `json:"supplies"`
	} `json:"task_givers"`
	StoreTaskMS   int64            `json:"store_task_ms"`
	UnstoreTaskMS int64            `json:"unstore_task_ms"`
	GatherMS      map[string]int64 `json:"gather_ms"`
}

type creatureJSON struct {
	Creature       catalogs.Creature `json:"creature"`
	TravelSteps    uint32            `json:"travel_steps"`
	TimePerKillMS  int64             `json:"time_per_kill_ms"`
	TravelSupplies Supplies          `json:"travel_supplies"`
}

func (c creatureJSON) cost() creatureCost {
	return creatureCost{
		travelSteps: c.TravelSteps,
		perKill:     time.Duration(c.TimePerKillMS) * time.Millisecond,
		supplies:    c.TravelSupplies,
	}
}

// Default loads the embedded costs.json.
func Default() (*Model, error) {
	return Load(catalogs.DataFS)
}

func LoadFile(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Load reads costs.json from fsys.
func Load(fsys fs.FS) (*Model, error) {
	raw, err := fs.ReadFile(fsys, "costs.json")
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Model, error) {
	if err := catalogs.ValidateJSON("costs", raw); err != nil {
		return nil, fmt.Errorf("costs.json: %w", err)
	}
	var f costsFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("costs.json: %w", err)
	}

	sum := sha256.Sum256(raw)
	m := &Model{
		gameTick:    time.Duration(f.GameTickMS) * time.Millisecond,
		runFactor:   1 + f.RunFraction,
		storeTask:   time.Duration(f.StoreTaskMS) * time.Millisecond,
		unstoreTask: time.Duration(f.UnstoreTaskMS) * time.Millisecond,
		digest:      hex.EncodeToString(sum[:]),
	}

	def := f.DefaultCreature.cost()
	for i := range m.creatures {
		m.creatures[i] = def
	}
	for _, c := range f.Creatures {
		m.creatures[c.Creature] = c.cost()
	}

	var givers [catalogs.NumTaskGivers]bool
	for _, g := range f.TaskGivers {
		givers[g.TaskGiver] = true
		m.givers[g.TaskGiver] = giverCost{
			travel:   time.Duration(g.TravelMS) * time.Millisecond,
			supplies: g.Supplies,
		}
	}
	for i, ok := range givers {
		if !ok {
			return nil, fmt.Errorf("costs.json: missing task giver %s", catalogs.TaskGiver(i))
		}
	}

	index := make(map[string]int, numSupplyKinds)
	for i, n := range SupplyNames {
		index[n] = i
	}
	keys := make([]string, 0, len(f.GatherMS))
	for k := range f.GatherMS {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		i, ok := index[k]
		if !ok {
			return nil, fmt.Errorf("costs.json: gather_ms: unknown supply %q", k)
		}
		m.gather[i] = time.Duration(f.GatherMS[k]) * time.Millisecond
	}
	return m, nil
}

func (m *Model) Digest() string { return m.digest }

// CreatureTravel is the time to walk and run to the creature's task location.
func (m *Model) CreatureTravel(c catalogs.Creature) time.Duration {
	walk := m.gameTick * time.Duration(m.creatures[c].travelSteps)
	return time.Duration(float64(walk) / m.runFactor)
}

func (m *Model) TimePerKill(c catalogs.Creature) time.Duration { return m.creatures[c].perKill }

// CreatureSupplies is what one trip to the creature consumes.
func (m *Model) CreatureSupplies(c catalogs.Creature) Supplies { return m.creatures[c].supplies }

// CostOfCreature is the full cost of one trip killing amount creatures.
func (m *Model) CostOfCreature(c catalogs.Creature, amount uint32) (time.Duration, Supplies) {
	return m.CreatureTravel(c) + m.TimePerKill(c)*time.Duration(amount), m.CreatureSupplies(c)
}

// CostOfGiver is the cost of one trip to g for a new assignment.
func (m *Model) CostOfGiver(g catalogs.TaskGiver) (time.Duration, Supplies) {
	gc := m.givers[g]
	return gc.travel, gc.supplies
}

func (m *Model) StoreTask() time.Duration   { return m.storeTask }
func (m *Model) UnstoreTask() time.Duration { return m.unstoreTask }

// GatherTime is the time needed to restock s.
func (m *Model) GatherTime(s Supplies) time.Duration {
	var total time.Duration
	for i, n := range s.Counts() {
		total += m.gather[i] * time.Duration(n)
	}
	return total
}
