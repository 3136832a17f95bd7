package progression

import "math"

// MaxAxisLevel caps the per-axis level curve
const MaxAxisLevel = 100

const (
	curveScale    = 1000.0
	curveExponent = 0.45
)

// rawLevel is the uncapped curve floor((xp/1000)^0.45), starting at 0
func rawLevel(xp int64) int {
	if xp <= 0 {
		return 0
	}
	return int(math.Floor(math.Pow(float64(xp)/curveScale, curveExponent)))
}

// LevelFromXP returns the axis level for an XP amount, in [1, 100]
func LevelFromXP(xp int64) int {
	lvl := rawLevel(xp) + 1
	if lvl > MaxAxisLevel {
		return MaxAxisLevel
	}
	return lvl
}

// LevelBaseXP returns the smallest XP that reaches level L on the uncapped curve
func LevelBaseXP(level int) int64 {
	if level <= 1 {
		return 0
	}
	want := level - 1
	xp := int64(math.Ceil(curveScale * math.Pow(float64(want), 1/curveExponent)))

	// settle floating point error against the forward curve
	for xp > 0 && rawLevel(xp-1) >= want {
		xp--
	}
	for rawLevel(xp) < want {
		xp++
	}
	return xp
}

// NextLevelXP returns the XP at which level L+1 starts
func NextLevelXP(level int) int64 {
	return LevelBaseXP(level + 1)
}

// LevelInfo describes where an XP amount sits on the axis curve
type LevelInfo struct {
	XP       int64   `json:"xp"`
	Level    int     `json:"level"`
	BaseXP   int64   `json:"base_xp"`
	NextXP   int64   `json:"next_xp"`
	ToNext   int64   `json:"to_next"`
	Progress float64 `json:"progress"` // fill of the current level, 0..1
}

// Describe returns the level, bounds and progress bar fill for an XP amount
func Describe(xp int64) LevelInfo {
	lvl := LevelFromXP(xp)
	base := LevelBaseXP(lvl)
	next := NextLevelXP(lvl)

	info := LevelInfo{
		XP:     xp,
		Level:  lvl,
		BaseXP: base,
		NextXP: next,
		ToNext: max(0, next-xp),
	}
	if span := next - base; span > 0 {
		info.Progress = math.Min(1, math.Max(0, float64(xp-base)/float64(span)))
	}
	return info
}

// GlobalLevel maps total XP to the global level floor(1 + sqrt(total/100))
func GlobalLevel(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	return int(math.Floor(1 + math.Sqrt(float64(totalXP)/100)))
}

// GainedXP is the global XP earned by one recompute
func GainedXP(activityCount int, axes Axes) int64 {
	return int64(math.Round(float64(activityCount)*10 + 0.2*float64(axes.Sum())))
}
