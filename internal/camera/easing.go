package camera

import "fmt"

// Easing shapes the blend parameter of a transition.
type Easing uint8

const (
	Linear Easing = iota
	EaseIn
	EaseOut
	EaseBoth
)

// Apply maps t in [0,1] onto [0,1].
func (e Easing) Apply(t float64) float64 {
	switch e {
	case EaseIn:
		return t * t * t
	case EaseOut:
		u := 1 - t
		return 1 - u*u*u
	case EaseBoth:
		if t < 0.5 {
			return 4 * t * t * t
		}
		u := -2*t + 2
		return 1 - u*u*u/2
	default:
		return t
	}
}

func (e Easing) String() string {
	switch e {
	case Linear:
		return "linear"
	case EaseIn:
		return "easeIn"
	case EaseOut:
		return "easeOut"
	case EaseBoth:
		return "easeBoth"
	default:
		return fmt.Sprintf("Easing(%d)", uint8(e))
	}
}

// ParseEasing accepts the names produced by String.
func ParseEasing(s string) (Easing, error) {
	switch s {
	case "linear":
		return Linear, nil
	case "easeIn":
		return EaseIn, nil
	case "easeOut":
		return EaseOut, nil
	case "easeBoth":
		return EaseBoth, nil
	default:
		return Linear, fmt.Errorf("unknown easing %q", s)
	}
}

func (e Easing) MarshalText() ([]byte, error) {
	if e > EaseBoth {
		return nil, fmt.Errorf("unknown easing %d", uint8(e))
	}
	return []byte(e.String()), nil
}

func (e *Easing) UnmarshalText(b []byte) error {
	v, err := ParseEasing(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
