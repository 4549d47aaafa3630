package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed data/*.json schemas/*.json
var files embed.FS

// DataFS holds the embedded balance tables (creatures.json, task_givers.json, costs.json).
var DataFS = mustSub(files, "data")

type Catalogs struct {
	Era Era

	Creatures [NumCreatures]CreatureDef
	Givers    [NumTaskGivers]TaskGiverDef

	CreaturesDigest string
	GiversDigest    string
}

type CreatureDef struct {
	ID                      Creature `json:"id"`
	MinLevel                uint8    `json:"min_level"`
	SlayerExp               uint32   `json:"slayer_exp"`
	RequiresQuest           Quest    `json:"requires_quest,omitempty"`
	MeleeKillable           bool     `json:"melee_killable,omitempty"`
	SuperiorDropRate        float64  `json:"superior_drop_rate,omitempty"` // 0 = no superior
	UsesSlaughterBracelet   bool     `json:"uses_slaughter_bracelet,omitempty"`
	UsesExpeditiousBracelet bool     `json:"uses_expeditious_bracelet,omitempty"`
}

// PerKill reports whether completing this creature needs the per-kill simulation.
func (d CreatureDef) PerKill() bool {
	return d.SuperiorDropRate > 0 || d.UsesSlaughterBracelet || d.UsesExpeditiousBracelet
}

// Range is an inclusive amount range, encoded as [min, max].
type Range struct {
	Min uint32
	Max uint32
}

func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]uint32{r.Min, r.Max})
}

func (r *Range) UnmarshalJSON(b []byte) error {
	var v [2]uint32
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	r.Min, r.Max = v[0], v[1]
	return nil
}

type Assignment struct {
	Creature      Creature `json:"creature"`
	Amount        Range    `json:"amount"`
	Weight        uint32   `json:"weight"`
	RequiresQuest Quest    `json:"requires_quest,omitempty"`
}

type TaskGiverDef struct {
	ID              TaskGiver      `json:"id"`
	RequiresQuest   Quest          `json:"requires_quest,omitempty"`
	RerollGiver     bool           `json:"reroll_giver,omitempty"`
	RewardRate      uint32         `json:"reward_rate"`
	RewardRateByEra map[Era]uint32 `json:"reward_rate_by_era,omitempty"`
	Assignments     []Assignment   `json:"assignments"`
}

// Default returns the embedded tables for the given era.
func Default(era Era) (*Catalogs, error) {
	c, err := Load(DataFS)
	if err != nil {
		return nil, err
	}
	return c.WithEra(era), nil
}

// Load reads the tables from fsys. The era defaults to the latest one.
func Load(fsys fs.FS) (*Catalogs, error) {
	c := &Catalogs{Era: Limp2026}
	if err := loadCreatures(fsys, c); err != nil {
		return nil, err
	}
	if err := loadGivers(fsys, c); err != nil {
		return nil, err
	}
	return c, nil
}

// WithEra returns a shallow copy bound to era. Definitions are shared and read-only.
func (c *Catalogs) WithEra(era Era) *Catalogs {
	cp := *c
	cp.Era = era
	return &cp
}

// Digest combines both table digests and the era.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.CreaturesDigest + ":" + c.GiversDigest + ":" + c.Era.String()))
}

func (c *Catalogs) Creature(id Creature) CreatureDef { return c.Creatures[id] }

func (c *Catalogs) Giver(g TaskGiver) TaskGiverDef { return c.Givers[g] }

// GateFor returns the level and quest a player needs before id can be assigned.
func (c *Catalogs) GateFor(id Creature) (uint8, Quest) {
	d := c.Creatures[id]
	return d.MinLevel, d.RequiresQuest
}

func (c *Catalogs) Offerings(g TaskGiver) []Assignment { return c.Givers[g].Assignments }

// RewardRate is the per-completion point rate of g in the bound era.
func (c *Catalogs) RewardRate(g TaskGiver) uint32 {
	d := c.Givers[g]
	if r, ok := d.RewardRateByEra[c.Era]; ok {
		return r
	}
	return d.RewardRate
}

func (c *Catalogs) GiverGate(g TaskGiver) Quest { return c.Givers[g].RequiresQuest }

// CanAssign reports whether g lists id at all, ignoring player gates.
func (c *Catalogs) CanAssign(g TaskGiver, id Creature) bool {
	for _, a := range c.Givers[g].Assignments {
		if a.Creature == id {
			return true
		}
	}
	return false
}

// Eligible reports whether a player at level with quests may receive a.
func (c *Catalogs) Eligible(a Assignment, level uint8, quests QuestSet) bool {
	d := c.Creatures[a.Creature]
	return level >= d.MinLevel && quests.Has(d.RequiresQuest) && quests.Has(a.RequiresQuest)
}

// EligibleWeight sums the weights of g's assignments the player may receive.
func (c *Catalogs) EligibleWeight(g TaskGiver, level uint8, quests QuestSet) uint32 {
	var total uint32
	for _, a := range c.Givers[g].Assignments {
		if c.Eligible(a, level, quests) {
			total += a.Weight
		}
	}
	return total
}

// RerollGiver returns the zero-point giver that may replace an active task.
func (c *Catalogs) RerollGiver() TaskGiver {
	for _, d := range c.Givers {
		if d.RerollGiver {
			return d.ID
		}
	}
	return Turael
}

// ValidateJSON checks raw against one of the embedded schemas, e.g. "creatures".
func ValidateJSON(schemaName string, raw []byte) error {
	s, err := compileSchema(schemaName)
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	raw, err := files.ReadFile("schemas/" + name + ".schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	url := "mem://catalogs/" + name + ".schema.json"
	cmp := jsonschema.NewCompiler()
	if err := cmp.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return cmp.Compile(url)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readValidated(fsys fs.FS, name, schema string) ([]byte, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	if err := ValidateJSON(schema, raw); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return raw, nil
}

func loadCreatures(fsys fs.FS, c *Catalogs) error {
	raw, err := readValidated(fsys, "creatures.json", "creatures")
	if err != nil {
		return err
	}
	c.CreaturesDigest = sha256Hex(raw)

	var doc struct {
		Creatures []CreatureDef `json:"creatures"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("creatures.json: %w", err)
	}
	var seen [NumCreatures]bool
	for _, d := range doc.Creatures {
		if seen[d.ID] {
			return fmt.Errorf("creatures.json: duplicate %s", d.ID)
		}
		seen[d.ID] = true
		c.Creatures[d.ID] = d
	}
	var missing []string
	for i, ok := range seen {
		if !ok {
			missing = append(missing, Creature(i).String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("creatures.json: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadGivers(fsys fs.FS, c *Catalogs) error {
	raw, err := readValidated(fsys, "task_givers.json", "task_givers")
	if err != nil {
		return err
	}
	c.GiversDigest = sha256Hex(raw)

	var doc struct {
		TaskGivers []TaskGiverDef `json:"task_givers"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("task_givers.json: %w", err)
	}
	var seen [NumTaskGivers]bool
	rerolls := 0
	for _, d := range doc.TaskGivers {
		if seen[d.ID] {
			return fmt.Errorf("task_givers.json: duplicate %s", d.ID)
		}
		seen[d.ID] = true
		if d.RerollGiver {
			rerolls++
			if d.RewardRate != 0 || len(d.RewardRateByEra) > 0 {
				return fmt.Errorf("task_givers.json: reroll giver %s must not award points", d.ID)
			}
		}
		for _, a := range d.Assignments {
			if a.Amount.Min > a.Amount.Max {
				return fmt.Errorf("task_givers.json: %s %s: amount [%d,%d] is inverted", d.ID, a.Creature, a.Amount.Min, a.Amount.Max)
			}
		}
		c.Givers[d.ID] = d
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("task_givers.json: missing %s", TaskGiver(i))
		}
	}
	if rerolls != 1 {
		return fmt.Errorf("task_givers.json: want exactly one reroll giver, got %d", rerolls)
	}
	return nil
}

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
