package model

import "testing"

func TestBandWidth(t *testing.T) {
	if got := (Band{Low: 0, High: 64}).Width(); got != 64 {
		t.Errorf("width = %d, want 64", got)
	}
	if got := (Band{Low: 64, High: 64}).Width(); got != 0 {
		t.Errorf("empty band width = %d, want 0", got)
	}
	if got := (Band{Low: 64, High: 0}).Width(); got != 0 {
		t.Errorf("inverted band width = %d, want 0", got)
	}
}

func TestBandContainment(t *testing.T) {
	primary := Band{Low: 0, High: 64}
	secondary := Band{Low: 64, High: 128}
	wide := Band{Low: 0, High: 128}

	if !wide.Contains(primary) || !wide.Contains(secondary) {
		t.Errorf("wide channel %s must contain both 20 MHz segments", wide)
	}
	if primary.Contains(wide) {
		t.Errorf("%s must not contain %s", primary, wide)
	}
	if !primary.Contains(primary) {
		t.Errorf("a band must contain itself")
	}
}

func TestBandOverlap(t *testing.T) {
	primary := Band{Low: 0, High: 64}
	secondary := Band{Low: 64, High: 128}
	wide := Band{Low: 0, High: 128}

	// Half-open bins: adjacent segments share no bin.
	if primary.Overlaps(secondary) {
		t.Errorf("%s and %s are adjacent, not overlapping", primary, secondary)
	}
	if !wide.Overlaps(primary) || !wide.Overlaps(secondary) {
		t.Errorf("wide channel %s must overlap its segments", wide)
	}
	if !primary.Overlaps(Band{Low: 32, High: 96}) {
		t.Errorf("straddling band must overlap %s", primary)
	}
}
