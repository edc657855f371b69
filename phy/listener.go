package phy

import (
	"time"

	"github.com/signalsfoundry/phytrack/model"
)

// Listener observes radio state transitions. Every registered listener is
// invoked synchronously, in registration order, during the transition call
// that triggers the notification. Listeners receive durations rather than
// absolute times for "start" events; the duration is computed at the moment
// of the call.
//
// Listeners are read-only observers: a listener must not call back into the
// tracker's transition operations from inside a notification. The tracker
// holds a non-owning reference; registration and removal are symmetric, and
// removing a listener that was never registered is a silent no-op.
type Listener interface {
	// NotifyTxStart signals the start of a transmission of the given
	// duration at the given nominal power.
	NotifyTxStart(duration time.Duration, txPowerDbm float64)
	// NotifyRxStart signals the start of a reception of the given duration.
	NotifyRxStart(duration time.Duration)
	// NotifyRxEndOk signals that the current reception completed successfully.
	NotifyRxEndOk()
	// NotifyRxEndError signals that the current reception failed.
	NotifyRxEndError()
	// NotifyMaybeCcaBusyStart signals that the primary band was sensed busy
	// for the given remaining duration.
	NotifyMaybeCcaBusyStart(duration time.Duration)
	// NotifySwitchingStart signals the start of a channel switch taking the
	// given duration.
	NotifySwitchingStart(duration time.Duration)
	// NotifySleep signals entry into sleep mode.
	NotifySleep()
	// NotifyWakeup signals exit from sleep mode.
	NotifyWakeup()
	// NotifyOff signals the radio powering off.
	NotifyOff()
	// NotifyOn signals the radio powering back on.
	NotifyOn()
}

// RxOkCallback delivers a successfully decoded frame bundle to the layer
// above the PHY, along with the measured signal quality, the transmission
// parameters the sender used, the destination station ID (MU only) and the
// per-MPDU reception status for aggregates.
type RxOkCallback func(bundle *model.FrameBundle, signal model.SignalInfo, txVector model.TxVector, staID uint16, statusPerMpdu []bool)

// RxErrorCallback delivers a frame bundle that could not be decoded.
type RxErrorCallback func(bundle *model.FrameBundle)

// StateTraceFunc receives one entry per completed or begun state interval:
// its absolute start, its duration and the state held. Trace sinks are
// fire-and-forget; the absence of a subscriber is not an error.
type StateTraceFunc func(start time.Time, duration time.Duration, state RadioState)

// RxOkTraceFunc receives the payload of each successful reception.
type RxOkTraceFunc func(bundle *model.FrameBundle, snrDb float64, mode model.Mode, preamble model.Preamble)

// RxErrorTraceFunc receives the payload of each failed reception.
type RxErrorTraceFunc func(bundle *model.FrameBundle, snrDb float64)

// TxTraceFunc receives the payload of each transmitted frame bundle.
type TxTraceFunc func(bundle *model.FrameBundle, mode model.Mode, preamble model.Preamble, powerLevel uint8)
