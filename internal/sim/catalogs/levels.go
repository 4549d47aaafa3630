package catalogs

import "math"

// MaxLevel is the highest level the experience table reaches.
const MaxLevel = 99

// levelExp[i] is the experience needed for level i+1.
var levelExp = func() [MaxLevel]uint32 {
	var t [MaxLevel]uint32
	points := 0.0
	for lvl := 1; lvl < MaxLevel; lvl++ {
		points += math.Floor(float64(lvl) + 300*math.Pow(2, float64(lvl)/7))
		t[lvl] = uint32(math.Floor(points / 4))
	}
	return t
}()

// LevelForExp maps experience to a level in [1, 99]. It is monotonic.
func LevelForExp(exp uint32) uint8 {
	lvl := 1
	for lvl < MaxLevel && exp >= levelExp[lvl] {
		lvl++
	}
	return uint8(lvl)
}

// ExpForLevel is the inverse lower bound of LevelForExp.
func ExpForLevel(level uint8) uint32 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelExp[level-1]
}
