// Package gesture turns hand landmarks into a count of raised fingers.
package gesture

import (
	"github.com/ayusman/mudra/internal/detector"
)

// Digit identifies one finger of a hand.
type Digit int

const (
	Thumb Digit = iota
	Index
	Middle
	Ring
	Pinky
	NumDigits
)

var digitNames = [NumDigits]string{"thumb", "index", "middle", "ring", "pinky"}

// String returns the lower-case name of the digit.
func (d Digit) String() string {
	if d < 0 || d >= NumDigits {
		return "unknown"
	}
	return digitNames[d]
}

// Fingers records which digits of a hand are raised.
type Fingers [NumDigits]bool

// Count returns the number of raised digits.
func (f Fingers) Count() int {
	n := 0
	for _, up := range f {
		if up {
			n++
		}
	}
	return n
}

// tipIDs holds the tip landmark of each digit, thumb first.
var tipIDs = [NumDigits]int{
	detector.ThumbTip,
	detector.IndexTip,
	detector.MiddleTip,
	detector.RingTip,
	detector.PinkyTip,
}

// Extended reports which digits of hand are raised.
//
// The thumb is raised when its tip is above its IP joint. Every other finger
// is raised when its tip is above its PIP joint, two landmarks below the tip.
// Image Y grows downwards, so "above" means a smaller Y.
func Extended(hand *detector.HandLandmarks) Fingers {
	var f Fingers
	if hand == nil {
		return f
	}

	p := &hand.Points
	f[Thumb] = p[tipIDs[Thumb]].Y < p[tipIDs[Thumb]-1].Y
	for d := Index; d < NumDigits; d++ {
		tip := tipIDs[d]
		f[d] = p[tip].Y < p[tip-2].Y
	}
	return f
}

// CountFingers returns how many fingers of hand are raised, 0 to 5.
func CountFingers(hand *detector.HandLandmarks) int {
	return Extended(hand).Count()
}
