package model

// SignalInfo describes the quality of a received signal as measured by the
// demodulator. The tracker forwards it verbatim to the reception-ok delivery
// callback and to trace sinks.
type SignalInfo struct {
	SnrDb   float64
	RssiDbm float64
}
