package safety

// Level is the gating decision for a piece of content. Levels are ordered:
// a higher level always wins during aggregation.
type Level int

const (
	LevelSafe Level = iota
	LevelWarning
	LevelBlocked
)

func (l Level) String() string {
	switch l {
	case LevelSafe:
		return "safe"
	case LevelWarning:
		return "warning"
	case LevelBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Max returns the higher of the two levels.
func (l Level) Max(other Level) Level {
	if other > l {
		return other
	}
	return l
}

// ParseLevel maps a lowercase level name to its Level. Unknown names resolve
// to LevelBlocked so that a malformed rule definition can never weaken a rule.
func ParseLevel(s string) Level {
	switch s {
	case "safe":
		return LevelSafe
	case "warning":
		return LevelWarning
	case "blocked":
		return LevelBlocked
	default:
		return LevelBlocked
	}
}
