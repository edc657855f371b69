package model

// Mode names the modulation/coding scheme of a transmission. It is a light
// identifier, not a full rate table; the occupancy tracker only carries it
// through to observers.
type Mode string

const (
	ModeDsss1Mbps  Mode = "DSSS-1"
	ModeOfdm6Mbps  Mode = "OFDM-6"
	ModeOfdm24Mbps Mode = "OFDM-24"
	ModeOfdm54Mbps Mode = "OFDM-54"
	ModeHtMcs7     Mode = "HT-MCS7"
	ModeVhtMcs9    Mode = "VHT-MCS9"
	ModeHeMcs11    Mode = "HE-MCS11"
)

// Preamble indicates the PHY preamble format of a transmission.
type Preamble int

const (
	PreambleLong Preamble = iota
	PreambleShort
	PreambleHT
	PreambleVHT
	PreambleHE
)

func (p Preamble) String() string {
	switch p {
	case PreambleLong:
		return "LONG"
	case PreambleShort:
		return "SHORT"
	case PreambleHT:
		return "HT"
	case PreambleVHT:
		return "VHT"
	case PreambleHE:
		return "HE"
	default:
		return "UNKNOWN"
	}
}

// TxVector bundles the transmission parameters a sender used (or will use)
// for a frame bundle. The tracker treats it as opaque payload for listeners,
// delivery callbacks and trace sinks.
type TxVector struct {
	Mode            Mode
	Preamble        Preamble
	PowerLevel      uint8
	ChannelWidthMHz uint16
	Nss             uint8 // spatial streams
	Aggregation     bool
}
