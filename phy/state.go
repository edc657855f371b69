package phy

// RadioState is the derived operating state of the radio. It is never stored:
// the tracker recomputes it on every query from the recorded interval
// timestamps, the mode flags and the band occupancy table, so that different
// callers (a full-channel view vs. a single-band view) always get consistent
// answers from the same underlying record.
type RadioState int

const (
	// StateIdle means the radio is free and the queried band senses no energy.
	StateIdle RadioState = iota
	// StateCcaBusy means the queried band carries energy above the queried
	// threshold, making it unsafe to transmit there.
	StateCcaBusy
	// StateTx means a transmission of our own is in progress.
	StateTx
	// StateRx means a reception is in progress.
	StateRx
	// StateSwitching means the radio is retuning to another channel.
	StateSwitching
	// StateSleep means the radio is in low-power sleep mode.
	StateSleep
	// StateOff means the radio is powered off.
	StateOff
)

func (s RadioState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCcaBusy:
		return "CCA_BUSY"
	case StateTx:
		return "TX"
	case StateRx:
		return "RX"
	case StateSwitching:
		return "SWITCHING"
	case StateSleep:
		return "SLEEP"
	case StateOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}
