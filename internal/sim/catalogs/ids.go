package catalogs

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Creature identifies a slayer task monster. The zero value is AberrantSpectres;
// values are dense so they can index arrays of per-creature data.
type Creature uint8

const (
	AberrantSpectres Creature = iota
	AbyssalDemons
	Ankous
	Aviansie
	Banshees
	Basilisks
	Bats
	Bears
	Birds
	BlackDemons
	Bloodveld
	BlueDragons
	BrineRats
	CaveBugs
	CaveCrawlers
	CaveHorrors
	CaveKraken
	CaveSlimes
	Cockatrice
	Cows
	Crabs
	CrawlingHands
	Crocodiles
	CustodianStalker
	Dagannoth
	Dogs
	DustDevils
	Dwarves
	Elves
	FeverSpiders
	FireGiants
	FossilIslandWyverns
	Gargoyles
	Ghosts
	Ghouls
	Goblins
	GreaterDemons
	HarpieBugSwarms
	Hellhounds
	HillGiants
	Hobgoblins
	Icefiends
	IceGiants
	IceWarriors
	InfernalMages
	Jellies
	JungleHorrors
	Kalphite
	Kurask
	LesserDemons
	LesserNagua
	Lizardmen
	Lizards
	Minotaurs
	Mogres
	Molanisks
	Monkeys
	MossGiants
	MutatedZygomites
	Nechryael
	Ogres
	OtherwordlyBeings
	Pyrefiends
	Rats
	Scorpions
	SeaSnakes
	Shades
	ShadowWarriors
	SkeletalWyverns
	Skeletons
	Sourhogs
	Spiders
	SpiritualCreatures
	TerrorDogs
	Trolls
	Turoth
	TzHaar
	Vampyres
	WarpedCreatures
	Werewolves
	Wolves
	Wyrms
	Zombies

	NumCreatures = int(iota)
)

var creatureNames = [NumCreatures]string{
	"ABERRANT_SPECTRES",
	"ABYSSAL_DEMONS",
	"ANKOUS",
	"AVIANSIE",
	"BANSHEES",
	"BASILISKS",
	"BATS",
	"BEARS",
	"BIRDS",
	"BLACK_DEMONS",
	"BLOODVELD",
	"BLUE_DRAGONS",
	"BRINE_RATS",
	"CAVE_BUGS",
	"CAVE_CRAWLERS",
	"CAVE_HORRORS",
	"CAVE_KRAKEN",
	"CAVE_SLIMES",
	"COCKATRICE",
	"COWS",
	"CRABS",
	"CRAWLING_HANDS",
	"CROCODILES",
	"CUSTODIAN_STALKER",
	"DAGANNOTH",
	"DOGS",
	"DUST_DEVILS",
	"DWARVES",
	"ELVES",
	"FEVER_SPIDERS",
	"FIRE_GIANTS",
	"FOSSIL_ISLAND_WYVERNS",
	"GARGOYLES",
	"GHOSTS",
	"GHOULS",
	"GOBLINS",
	"GREATER_DEMONS",
	"HARPIE_BUG_SWARMS",
	"HELLHOUNDS",
	"HILL_GIANTS",
	"HOBGOBLINS",
	"ICEFIENDS",
	"ICE_GIANTS",
	"ICE_WARRIORS",
	"INFERNAL_MAGES",
	"JELLIES",
	"JUNGLE_HORRORS",
	"KALPHITE",
	"KURASK",
	"LESSER_DEMONS",
	"LESSER_NAGUA",
	"LIZARDMEN",
	"LIZARDS",
	"MINOTAURS",
	"MOGRES",
	"MOLANISKS",
	"MONKEYS",
	"MOSS_GIANTS",
	"MUTATED_ZYGOMITES",
	"NECHRYAEL",
	"OGRES",
	"OTHERWORDLY_BEINGS",
	"PYREFIENDS",
	"RATS",
	"SCORPIONS",
	"SEA_SNAKES",
	"SHADES",
	"SHADOW_WARRIORS",
	"SKELETAL_WYVERNS",
	"SKELETONS",
	"SOURHOGS",
	"SPIDERS",
	"SPIRITUAL_CREATURES",
	"TERROR_DOGS",
	"TROLLS",
	"TUROTH",
	"TZHAAR",
	"VAMPYRES",
	"WARPED_CREATURES",
	"WEREWOLVES",
	"WOLVES",
	"WYRMS",
	"ZOMBIES",
}

// Quest is a prerequisite flag. NoQuest means no prerequisite.
type Quest uint8

const (
	NoQuest Quest = iota
	ActualVampyreSlayer
	CabinFever
	DeathPlateau
	DeathToTheDorgeshuun
	DesertTreasure
	DragonSlayer
	ElementalWorkshop
	HauntedMine
	HorrorFromTheDeep
	HotStuff
	LegendsQuest
	LostCity
	OlafsQuest
	PerilousMoons
	PorcineOfInterest
	PriestInPeril
	Regicide
	ReptileGotRipped
	RoyalTrouble
	RumDeal
	ShadowsOfCustodia
	SkippyAndTheMogres
	WarpedReality
	WatchTheBirdie

	numQuests = int(iota)
)

var questNames = [numQuests]string{
	"",
	"ACTUAL_VAMPYRE_SLAYER",
	"CABIN_FEVER",
	"DEATH_PLATEAU",
	"DEATH_TO_THE_DORGESHUUN",
	"DESERT_TREASURE",
	"DRAGON_SLAYER",
	"ELEMENTAL_WORKSHOP",
	"HAUNTED_MINE",
	"HORROR_FROM_THE_DEEP",
	"HOT_STUFF",
	"LEGENDS_QUEST",
	"LOST_CITY",
	"OLAFS_QUEST",
	"PERILOUS_MOONS",
	"PORCINE_OF_INTEREST",
	"PRIEST_IN_PERIL",
	"REGICIDE",
	"REPTILE_GOT_RIPPED",
	"ROYAL_TROUBLE",
	"RUM_DEAL",
	"SHADOWS_OF_CUSTODIA",
	"SKIPPY_AND_THE_MOGRES",
	"WARPED_REALITY",
	"WATCH_THE_BIRDIE",
}

// TaskGiver is a slayer master handing out assignments.
type TaskGiver uint8

const (
	Turael TaskGiver = iota
	Spria
	Vannaka
	Chaeldar

	NumTaskGivers = int(iota)
)

var taskGiverNames = [NumTaskGivers]string{"TURAEL", "SPRIA", "VANNAKA", "CHAELDAR"}

// Era selects balance rules that changed over time.
type Era uint8

const (
	Limp2024 Era = iota
	Limp2025
	Limp2026

	numEras = int(iota)
)

var eraNames = [numEras]string{"LIMP_2024", "LIMP_2025", "LIMP_2026"}

// AllCreatures returns every creature in id order.
func AllCreatures() []Creature {
	out := make([]Creature, NumCreatures)
	for i := range out {
		out[i] = Creature(i)
	}
	return out
}

// AllTaskGivers returns every task giver in id order.
func AllTaskGivers() []TaskGiver {
	return []TaskGiver{Turael, Spria, Vannaka, Chaeldar}
}

func (c Creature) String() string {
	if int(c) >= NumCreatures {
		return fmt.Sprintf("CREATURE(%d)", uint8(c))
	}
	return creatureNames[c]
}

func (c Creature) Valid() bool { return int(c) < NumCreatures }

func (c Creature) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid creature %d", uint8(c))
	}
	return []byte(creatureNames[c]), nil
}

func (c *Creature) UnmarshalText(b []byte) error {
	v, err := ParseCreature(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func ParseCreature(s string) (Creature, error) {
	if v, ok := creatureIndex[normalizeName(s)]; ok {
		return v, nil
	}
	return 0, fmt.Errorf("unknown creature %q", s)
}

func (q Quest) String() string {
	if int(q) >= numQuests {
		return fmt.Sprintf("QUEST(%d)", uint8(q))
	}
	if q == NoQuest {
		return "NONE"
	}
	return questNames[q]
}

func (q Quest) MarshalText() ([]byte, error) {
	if int(q) >= numQuests {
		return nil, fmt.Errorf("invalid quest %d", uint8(q))
	}
	return []byte(questNames[q]), nil
}

func (q *Quest) UnmarshalText(b []byte) error {
	v, err := ParseQuest(string(b))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// ParseQuest accepts the empty string as NoQuest.
func ParseQuest(s string) (Quest, error) {
	n := normalizeName(s)
	if n == "" || n == "NONE" {
		return NoQuest, nil
	}
	if v, ok := questIndex[n]; ok {
		return v, nil
	}
	return NoQuest, fmt.Errorf("unknown quest %q", s)
}

func (g TaskGiver) String() string {
	if int(g) >= NumTaskGivers {
		return fmt.Sprintf("TASK_GIVER(%d)", uint8(g))
	}
	return taskGiverNames[g]
}

func (g TaskGiver) Valid() bool { return int(g) < NumTaskGivers }

func (g TaskGiver) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("invalid task giver %d", uint8(g))
	}
	return []byte(taskGiverNames[g]), nil
}

func (g *TaskGiver) UnmarshalText(b []byte) error {
	v, err := ParseTaskGiver(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

func ParseTaskGiver(s string) (TaskGiver, error) {
	n := normalizeName(s)
	for i, name := range taskGiverNames {
		if name == n {
			return TaskGiver(i), nil
		}
	}
	return 0, fmt.Errorf("unknown task giver %q", s)
}

func (e Era) String() string {
	if int(e) >= numEras {
		return fmt.Sprintf("ERA(%d)", uint8(e))
	}
	return eraNames[e]
}

func (e Era) MarshalText() ([]byte, error) {
	if int(e) >= numEras {
		return nil, fmt.Errorf("invalid era %d", uint8(e))
	}
	return []byte(eraNames[e]), nil
}

func (e *Era) UnmarshalText(b []byte) error {
	v, err := ParseEra(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

func ParseEra(s string) (Era, error) {
	n := normalizeName(s)
	for i, name := range eraNames {
		if name == n {
			return Era(i), nil
		}
	}
	return 0, fmt.Errorf("unknown era %q", s)
}

// QuestSet is a bitset of completed quests.
type QuestSet uint32

func NewQuestSet(qs ...Quest) QuestSet {
	var s QuestSet
	for _, q := range qs {
		s = s.With(q)
	}
	return s
}

// Has reports whether q is done. NoQuest is always satisfied.
func (s QuestSet) Has(q Quest) bool {
	if q == NoQuest {
		return true
	}
	return s&(1<<q) != 0
}

func (s QuestSet) With(q Quest) QuestSet {
	if q == NoQuest {
		return s
	}
	return s | 1<<q
}

// List returns the quests in id order.
func (s QuestSet) List() []Quest {
	var out []Quest
	for q := Quest(1); int(q) < numQuests; q++ {
		if s.Has(q) {
			out = append(out, q)
		}
	}
	return out
}

// MarshalJSON encodes the set as a sorted list of quest names.
func (s QuestSet) MarshalJSON() ([]byte, error) {
	qs := s.List()
	if qs == nil {
		qs = []Quest{}
	}
	return json.Marshal(qs)
}

func (s *QuestSet) UnmarshalJSON(b []byte) error {
	var qs []Quest
	if err := json.Unmarshal(b, &qs); err != nil {
		return err
	}
	*s = NewQuestSet(qs...)
	return nil
}

var (
	creatureIndex = buildIndex[Creature](creatureNames[:])
	questIndex    = buildIndex[Quest](questNames[:])
)

func buildIndex[T ~uint8](names []string) map[string]T {
	m := make(map[string]T, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		m[n] = T(i)
	}
	return m
}

// normalizeName lets config files say "cave crawlers" or "cave-crawlers".
func normalizeName(s string) string {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}
