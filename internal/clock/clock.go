// Package clock turns wall time into the cosmetic {hour, display, note}
// block the composer prepends to every ambient_recall package.
package clock

import "time"

// Block is the clock section of a composed context package.
type Block struct {
	Timestamp time.Time `json:"timestamp"`
	Display   string    `json:"display"`
	Hour      int       `json:"hour"`
	Note      string    `json:"note"`
}

// Now renders Block for t.
func Now(t time.Time) Block {
	return Block{
		Timestamp: t,
		Display:   t.Format("Monday, January 2, 2006 3:04 PM MST"),
		Hour:      t.Hour(),
		Note:      note(t.Hour()),
	}
}

func note(hour int) string {
	switch {
	case hour >= 5 && hour < 8:
		return "early morning"
	case hour >= 8 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 14:
		return "midday"
	case hour >= 14 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 20:
		return "evening"
	case hour >= 20 && hour < 23:
		return "late evening"
	default:
		return "overnight"
	}
}
