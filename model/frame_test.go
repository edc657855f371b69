package model

import "testing"

func TestFrameBundleAggregation(t *testing.T) {
	single := &FrameBundle{Frames: []Frame{{SizeBytes: 1500}}}
	ampdu := &FrameBundle{Frames: []Frame{{SizeBytes: 500}, {SizeBytes: 500}, {SizeBytes: 200}}}

	if single.Aggregated() {
		t.Errorf("single-MPDU bundle reported as aggregated")
	}
	if !ampdu.Aggregated() {
		t.Errorf("three-MPDU bundle not reported as aggregated")
	}
	if got := ampdu.SizeBytes(); got != 1200 {
		t.Errorf("aggregate size = %d, want 1200", got)
	}
}

func TestFrameBundleNilSafety(t *testing.T) {
	var fb *FrameBundle
	if fb.Aggregated() {
		t.Errorf("nil bundle reported as aggregated")
	}
	if got := fb.NumFrames(); got != 0 {
		t.Errorf("nil bundle frame count = %d, want 0", got)
	}
	if got := fb.SizeBytes(); got != 0 {
		t.Errorf("nil bundle size = %d, want 0", got)
	}
}
