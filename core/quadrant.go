package core

import "fmt"

// Quadrant identifies one leg of a quadruped.
type Quadrant int

const (
	FrontLeft Quadrant = iota
	FrontRight
	HindLeft
	HindRight
)

// NumQuadrants is the number of legs every FootstepNode carries.
const NumQuadrants = 4

// Quadrants lists all quadrants in index order.
var Quadrants = [NumQuadrants]Quadrant{FrontLeft, FrontRight, HindLeft, HindRight}

// String returns the short name of the quadrant.
func (q Quadrant) String() string {
	switch q {
	case FrontLeft:
		return "FL"
	case FrontRight:
		return "FR"
	case HindLeft:
		return "HL"
	case HindRight:
		return "HR"
	default:
		return fmt.Sprintf("Quadrant(%d)", int(q))
	}
}

// ParseQuadrant converts a short or long quadrant name to a Quadrant.
func ParseQuadrant(s string) (Quadrant, error) {
	switch s {
	case "FL", "front_left", "FRONT_LEFT":
		return FrontLeft, nil
	case "FR", "front_right", "FRONT_RIGHT":
		return FrontRight, nil
	case "HL", "hind_left", "HIND_LEFT":
		return HindLeft, nil
	case "HR", "hind_right", "HIND_RIGHT":
		return HindRight, nil
	}
	return 0, fmt.Errorf("unknown quadrant %q", s)
}

// IsFront reports whether the quadrant is a front leg.
func (q Quadrant) IsFront() bool {
	return q == FrontLeft || q == FrontRight
}

// IsLeft reports whether the quadrant is on the left side.
func (q Quadrant) IsLeft() bool {
	return q == FrontLeft || q == HindLeft
}

// ForwardSign is +1 for front legs and -1 for hind legs.
func (q Quadrant) ForwardSign() float64 {
	if q.IsFront() {
		return 1
	}
	return -1
}

// SideSign is +1 for left legs and -1 for right legs.
func (q Quadrant) SideSign() float64 {
	if q.IsLeft() {
		return 1
	}
	return -1
}

// NextRegularGaitSwing returns the quadrant that swings after q in a
// regular crawl: HL -> FL -> HR -> FR -> HL.
func (q Quadrant) NextRegularGaitSwing() Quadrant {
	switch q {
	case HindLeft:
		return FrontLeft
	case FrontLeft:
		return HindRight
	case HindRight:
		return FrontRight
	default:
		return HindLeft
	}
}

// NextReversedRegularGaitSwing returns the quadrant that swings before q.
func (q Quadrant) NextReversedRegularGaitSwing() Quadrant {
	switch q {
	case FrontLeft:
		return HindLeft
	case HindRight:
		return FrontLeft
	case FrontRight:
		return HindRight
	default:
		return FrontRight
	}
}

// MarshalText encodes the quadrant by its short name.
func (q Quadrant) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText accepts any name ParseQuadrant accepts.
func (q *Quadrant) UnmarshalText(text []byte) error {
	parsed, err := ParseQuadrant(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
