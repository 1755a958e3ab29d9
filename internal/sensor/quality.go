package sensor

// ContactQuality rates the electrode or optical contact of a sensor.
type ContactQuality int

const (
	ContactNotAvailable ContactQuality = iota
	ContactNoSignal
	ContactVeryBad
	ContactPoor
	ContactFair
	ContactGood
)

// Description returns a short human readable label.
func (q ContactQuality) Description() string {
	switch q {
	case ContactNotAvailable:
		return "n/a"
	case ContactVeryBad:
		return "Very Bad"
	case ContactPoor:
		return "Poor"
	case ContactFair:
		return "Fair"
	case ContactGood:
		return "Good"
	default:
		return "No Signal"
	}
}

func (q ContactQuality) String() string { return q.Description() }

// Color returns the display color as a hex RGB string.
func (q ContactQuality) Color() string {
	switch q {
	case ContactNoSignal:
		return "#646463" // grey
	case ContactVeryBad:
		return "#ed002e"
	case ContactPoor:
		return "#eb7205"
	case ContactFair:
		return "#ffab07"
	case ContactGood:
		return "#32ea21"
	default:
		return "#009fe3"
	}
}
