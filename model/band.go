package model

import "fmt"

// Band identifies a frequency segment of the simulated spectrum by its low
// and high bin indices. It is a value type and is comparable, so it can be
// used directly as (part of) a map key by the occupancy tracker.
//
// A device typically monitors a small fixed set of bands: the primary 20 MHz
// segment plus the wider aggregated channels that contain it.
type Band struct {
	Low  uint32 `json:"Low"`
	High uint32 `json:"High"`
}

// Width returns the number of spectrum bins the band spans.
func (b Band) Width() uint32 {
	if b.High < b.Low {
		return 0
	}
	return b.High - b.Low
}

// Contains reports whether other lies entirely within b.
func (b Band) Contains(other Band) bool {
	return b.Low <= other.Low && other.High <= b.High
}

// Overlaps reports whether the two bands share at least one bin.
func (b Band) Overlaps(other Band) bool {
	return !(b.High <= other.Low || other.High <= b.Low)
}

func (b Band) String() string {
	return fmt.Sprintf("[%d,%d)", b.Low, b.High)
}
