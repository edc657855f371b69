package model

// Frame is a single MPDU: the smallest unit whose reception can
// individually succeed or fail inside an aggregate.
type Frame struct {
	SizeBytes uint32
	Sequence  uint16
	Retry     bool
}

// FrameBundle is the PSDU handed to and from the PHY: one or more frames
// transmitted as a single physical unit. Non-aggregated traffic is a bundle
// of exactly one frame.
type FrameBundle struct {
	// StaID identifies the destination station for MU transmissions;
	// SU traffic leaves it zero.
	StaID uint16

	Frames []Frame
}

// NumFrames returns the number of MPDUs in the bundle.
func (fb *FrameBundle) NumFrames() int {
	if fb == nil {
		return 0
	}
	return len(fb.Frames)
}

// SizeBytes returns the total payload size across all MPDUs.
func (fb *FrameBundle) SizeBytes() uint32 {
	if fb == nil {
		return 0
	}
	var total uint32
	for _, f := range fb.Frames {
		total += f.SizeBytes
	}
	return total
}

// Aggregated reports whether the bundle carries more than one MPDU.
func (fb *FrameBundle) Aggregated() bool {
	return fb.NumFrames() > 1
}
