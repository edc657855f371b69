package phy

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/model"
	"github.com/signalsfoundry/phytrack/timectrl"
)

// StateTracker is the authoritative record of what the radio is doing at any
// instant and of whether the medium, per frequency band, is sensed busy. It
// is invoked synchronously by the surrounding discrete-event scheduler; there
// is no internal concurrency, and the tracker is the sole mutator of its
// record.
//
// The current state is never stored. It is derived on demand from the mode
// flags, the interval timestamps and the band occupancy table, in strict
// precedence order: Off > Sleep > Switching > Tx > Rx > CcaBusy > Idle.
// Power and sleep override all medium-level detail; an active interval
// reflects the device's own commitment and outranks ambient energy; CCA-busy
// matters only when the device is otherwise free to act.
//
// Transition preconditions are enforced, not recovered: requesting a
// transition from an incompatible state indicates a bug in the caller's
// higher-layer logic and aborts the run with a diagnostic.
type StateTracker struct {
	clock timectrl.SimClock
	log   logging.Logger

	sleeping bool
	off      bool

	startTx        time.Time
	endTx          time.Time
	startRx        time.Time
	endRx          time.Time
	startSwitching time.Time
	endSwitching   time.Time

	// startSleep marks when sleep or power-off began, for interval reporting.
	startSleep time.Time

	// prevStateChange is the timestamp of the last recorded transition. New
	// transitions never start before it.
	prevStateChange time.Time

	ccaBusy bandOccupancyTable

	// rxInProgress tracks whether an open reception has not yet been closed
	// by one of the SwitchFromRx* operations. It exists only to guarantee
	// exactly-once delivery; state derivation never consults it.
	rxInProgress bool
	rxSubframes  int

	listeners []Listener

	rxOkCallback    RxOkCallback
	rxErrorCallback RxErrorCallback

	stateTraces   []StateTraceFunc
	rxOkTraces    []RxOkTraceFunc
	rxErrorTraces []RxErrorTraceFunc
	txTraces      []TxTraceFunc

	// inFanout blocks re-entrant transitions from listeners, trace sinks and
	// delivery callbacks.
	inFanout bool
}

// NewStateTracker constructs a tracker reading simulation time from clock.
// A nil logger disables logging.
func NewStateTracker(clock timectrl.SimClock, log logging.Logger) *StateTracker {
	if clock == nil {
		panic("phy: NewStateTracker requires a clock")
	}
	if log == nil {
		log = logging.Noop()
	}
	return &StateTracker{
		clock:           clock,
		log:             log,
		ccaBusy:         make(bandOccupancyTable),
		prevStateChange: clock.Now(),
	}
}

// ---- Registration ----

// RegisterListener adds a listener to the notification set. The tracker does
// not take ownership.
func (t *StateTracker) RegisterListener(l Listener) {
	if l == nil {
		t.fatalf("RegisterListener: nil listener")
	}
	t.listeners = append(t.listeners, l)
}

// UnregisterListener removes a previously registered listener, matching by
// identity. Removing a listener that is not registered is a no-op.
func (t *StateTracker) UnregisterListener(l Listener) {
	for i, reg := range t.listeners {
		if reg == l {
			t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
			return
		}
	}
}

// SetReceiveOkCallback installs the success delivery callback. Single slot,
// last write wins.
func (t *StateTracker) SetReceiveOkCallback(cb RxOkCallback) { t.rxOkCallback = cb }

// SetReceiveErrorCallback installs the failure delivery callback. Single
// slot, last write wins.
func (t *StateTracker) SetReceiveErrorCallback(cb RxErrorCallback) { t.rxErrorCallback = cb }

// TraceState subscribes a sink to (start, duration, state) entries for every
// state interval.
func (t *StateTracker) TraceState(fn StateTraceFunc) { t.stateTraces = append(t.stateTraces, fn) }

// TraceRxOk subscribes a sink to successful-reception payloads.
func (t *StateTracker) TraceRxOk(fn RxOkTraceFunc) { t.rxOkTraces = append(t.rxOkTraces, fn) }

// TraceRxError subscribes a sink to failed-reception payloads.
func (t *StateTracker) TraceRxError(fn RxErrorTraceFunc) {
	t.rxErrorTraces = append(t.rxErrorTraces, fn)
}

// TraceTx subscribes a sink to transmission payloads.
func (t *StateTracker) TraceTx(fn TxTraceFunc) { t.txTraces = append(t.txTraces, fn) }

// ---- Derivation engine ----

// GetState returns the radio state as seen on the given band at the given
// energy-detection threshold, derived at the current simulation time.
func (t *StateTracker) GetState(band model.Band, thresholdDbm float64) RadioState {
	return t.stateAt(newOccupancyKey(band, thresholdDbm), t.clock.Now())
}

// stateAt derives the state at an explicit instant. It is pure: no side
// effects, no mutation.
func (t *StateTracker) stateAt(key occupancyKey, now time.Time) RadioState {
	switch {
	case t.off:
		return StateOff
	case t.sleeping:
		return StateSleep
	case now.Before(t.endSwitching):
		return StateSwitching
	case now.Before(t.endTx):
		return StateTx
	case now.Before(t.endRx):
		return StateRx
	}
	if end, ok := t.ccaBusy.busyEnd(key); ok && now.Before(end) {
		return StateCcaBusy
	}
	return StateIdle
}

// IsStateIdle reports whether the derived state is Idle.
func (t *StateTracker) IsStateIdle(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateIdle
}

// IsStateCcaBusy reports whether the derived state is CcaBusy.
func (t *StateTracker) IsStateCcaBusy(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateCcaBusy
}

// IsStateTx reports whether the derived state is Tx.
func (t *StateTracker) IsStateTx(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateTx
}

// IsStateRx reports whether the derived state is Rx.
func (t *StateTracker) IsStateRx(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateRx
}

// IsStateSwitching reports whether the derived state is Switching.
func (t *StateTracker) IsStateSwitching(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateSwitching
}

// IsStateSleep reports whether the derived state is Sleep.
func (t *StateTracker) IsStateSleep(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateSleep
}

// IsStateOff reports whether the derived state is Off.
func (t *StateTracker) IsStateOff(band model.Band, thresholdDbm float64) bool {
	return t.GetState(band, thresholdDbm) == StateOff
}

// GetDelayUntilIdle returns how long until the given band becomes idle, zero
// if it already is. Sleep and Off have no defined end; querying in those
// states is a usage error and aborts.
func (t *StateTracker) GetDelayUntilIdle(band model.Band, thresholdDbm float64) time.Duration {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)

	var end time.Time
	switch state := t.stateAt(key, now); state {
	case StateIdle:
		return 0
	case StateSwitching:
		end = t.endSwitching
	case StateTx:
		end = t.endTx
	case StateRx:
		end = t.endRx
	case StateCcaBusy:
		end, _ = t.ccaBusy.busyEnd(key)
	default:
		t.fatalf("GetDelayUntilIdle: undefined while %s", state)
	}
	if d := end.Sub(now); d > 0 {
		return d
	}
	return 0
}

// GetDelaySinceIdle returns how long the given band has been sensed clear:
// the time since its recorded busy interval ended, or since the last state
// change if the band was never sensed busy. Backoff-style algorithms use this
// to know how long the medium has been clear.
func (t *StateTracker) GetDelaySinceIdle(band model.Band, thresholdDbm float64) time.Duration {
	now := t.clock.Now()
	since := t.prevStateChange
	if end, ok := t.ccaBusy.busyEnd(newOccupancyKey(band, thresholdDbm)); ok {
		since = end
	}
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}

// GetLastRxStartTime returns when the most recent reception started. The
// value remains valid after the reception ends; callers use it to compute
// signal-overlap timing for subsequent receptions.
func (t *StateTracker) GetLastRxStartTime() time.Time { return t.startRx }

// ---- Transition operations ----

// SwitchToTx records the start of a transmission lasting duration. Valid
// from Idle and CcaBusy only with respect to Off, Sleep, Rx and Switching:
// a radio committed to any of those cannot begin transmitting.
func (t *StateTracker) SwitchToTx(duration time.Duration, bundles []*model.FrameBundle, txPowerDbm float64, txVector model.TxVector, band model.Band, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if duration < 0 {
		t.fatalf("SwitchToTx: negative duration %s", duration)
	}
	t.ensureAllowed("SwitchToTx", key, now, StateOff, StateSleep, StateRx, StateSwitching)

	t.beginFanout()
	t.traceTrailingIdle(key, now)
	t.traceState(now, duration, StateTx)
	for _, b := range bundles {
		for _, fn := range t.txTraces {
			fn(b, txVector.Mode, txVector.Preamble, txVector.PowerLevel)
		}
	}
	t.notify(func(l Listener) { l.NotifyTxStart(duration, txPowerDbm) })
	t.endFanout()

	t.prevStateChange = now
	t.startTx = now
	t.endTx = now.Add(duration)
	t.log.Debug(context.Background(), "phy: switch to TX",
		logging.Duration("duration", duration),
		logging.Float64("tx_power_dbm", txPowerDbm),
		logging.String("band", band.String()),
	)
}

// SwitchToRx records the start of a reception lasting at most duration; the
// reception may be closed early by SwitchFromRxEndOk/Error/Abort.
func (t *StateTracker) SwitchToRx(duration time.Duration, band model.Band, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if duration < 0 {
		t.fatalf("SwitchToRx: negative duration %s", duration)
	}
	t.ensureAllowed("SwitchToRx", key, now, StateOff, StateSleep, StateTx, StateSwitching)

	t.beginFanout()
	t.traceTrailingIdle(key, now)
	t.notify(func(l Listener) { l.NotifyRxStart(duration) })
	t.endFanout()

	t.prevStateChange = now
	t.startRx = now
	t.endRx = now.Add(duration)
	t.rxInProgress = true
	t.rxSubframes = 0
	t.log.Debug(context.Background(), "phy: switch to RX",
		logging.Duration("duration", duration),
		logging.String("band", band.String()),
	)
}

// SwitchToChannelSwitching records the start of a channel switch taking
// duration. Busy intervals still open are truncated to now: energy sensed on
// the old channel says nothing about the new one.
func (t *StateTracker) SwitchToChannelSwitching(duration time.Duration, band model.Band, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if duration < 0 {
		t.fatalf("SwitchToChannelSwitching: negative duration %s", duration)
	}
	t.ensureAllowed("SwitchToChannelSwitching", key, now, StateOff, StateSleep)

	t.beginFanout()
	t.traceTrailingIdle(key, now)
	t.traceState(now, duration, StateSwitching)
	t.notify(func(l Listener) { l.NotifySwitchingStart(duration) })
	t.endFanout()

	t.ccaBusy.truncateOpen(now)
	t.prevStateChange = now
	t.startSwitching = now
	t.endSwitching = now.Add(duration)
	t.log.Debug(context.Background(), "phy: switch channel",
		logging.Duration("duration", duration),
		logging.String("band", band.String()),
	)
}

// ContinueRxNextMpdu signals that one sub-frame of an aggregate was decoded
// while the enclosing reception continues. It changes no interval and fires
// no notification; only the final SwitchFromRxEndOk/Error/Abort closes the
// reception and triggers delivery.
func (t *StateTracker) ContinueRxNextMpdu(bundle *model.FrameBundle, signal model.SignalInfo, txVector model.TxVector) {
	now := t.clock.Now()
	t.ensureReceiving("ContinueRxNextMpdu", now)
	t.rxSubframes++
	t.log.Debug(context.Background(), "phy: continue RX next MPDU",
		logging.Int("subframe", t.rxSubframes),
		logging.Int("frames", bundle.NumFrames()),
		logging.Float64("snr_db", signal.SnrDb),
		logging.String("mode", string(txVector.Mode)),
	)
}

// SwitchFromRxEndOk closes the current reception as successful and delivers
// the decoded bundle to the success callback, exactly once.
func (t *StateTracker) SwitchFromRxEndOk(bundle *model.FrameBundle, signal model.SignalInfo, txVector model.TxVector, staID uint16, statusPerMpdu []bool) {
	now := t.clock.Now()
	t.ensureReceiving("SwitchFromRxEndOk", now)

	t.beginFanout()
	for _, fn := range t.rxOkTraces {
		fn(bundle, signal.SnrDb, txVector.Mode, txVector.Preamble)
	}
	t.notify(func(l Listener) { l.NotifyRxEndOk() })
	t.endFanout()

	t.doSwitchFromRx(now)

	if t.rxOkCallback != nil {
		t.beginFanout()
		t.rxOkCallback(bundle, signal, txVector, staID, statusPerMpdu)
		t.endFanout()
	}
	t.log.Debug(context.Background(), "phy: RX end ok",
		logging.Float64("snr_db", signal.SnrDb),
		logging.Int("frames", bundle.NumFrames()),
	)
}

// SwitchFromRxEndError closes the current reception as failed and delivers
// the undecodable bundle to the failure callback, exactly once.
func (t *StateTracker) SwitchFromRxEndError(bundle *model.FrameBundle, snrDb float64) {
	now := t.clock.Now()
	t.ensureReceiving("SwitchFromRxEndError", now)

	t.beginFanout()
	for _, fn := range t.rxErrorTraces {
		fn(bundle, snrDb)
	}
	t.notify(func(l Listener) { l.NotifyRxEndError() })
	t.endFanout()

	t.doSwitchFromRx(now)

	if t.rxErrorCallback != nil {
		t.beginFanout()
		t.rxErrorCallback(bundle)
		t.endFanout()
	}
	t.log.Debug(context.Background(), "phy: RX end error", logging.Float64("snr_db", snrDb))
}

// SwitchFromRxAbort closes the current reception without delivering a frame.
// Listeners are told of a failed reception only when failure is true.
func (t *StateTracker) SwitchFromRxAbort(failure bool) {
	now := t.clock.Now()
	t.ensureReceiving("SwitchFromRxAbort", now)

	if failure {
		t.beginFanout()
		t.notify(func(l Listener) { l.NotifyRxEndError() })
		t.endFanout()
	}
	t.doSwitchFromRx(now)
	t.log.Debug(context.Background(), "phy: RX aborted", logging.Any("failure", failure))
}

// SwitchMaybeToCcaBusy records that the given band was sensed busy at the
// given threshold for duration from now. The recorded busy end only ever
// extends, never shrinks: detections for overlapping sub-bands arrive in any
// order and accumulate the maximum observed occupancy. Listeners are told
// only when the primary band thereby leaves Idle. A zero duration is a no-op:
// an interval ending at now never makes the band busy.
func (t *StateTracker) SwitchMaybeToCcaBusy(duration time.Duration, band model.Band, isPrimary bool, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if duration < 0 {
		t.fatalf("SwitchMaybeToCcaBusy: negative duration %s", duration)
	}
	t.ensureAllowed("SwitchMaybeToCcaBusy", key, now, StateOff)
	if duration == 0 {
		return
	}

	wasIdle := t.stateAt(key, now) == StateIdle
	if !t.ccaBusy.extend(key, now, now.Add(duration)) {
		return
	}
	if isPrimary && wasIdle {
		end, _ := t.ccaBusy.busyEnd(key)
		t.beginFanout()
		t.notify(func(l Listener) { l.NotifyMaybeCcaBusyStart(end.Sub(now)) })
		t.endFanout()
	}
	t.log.Debug(context.Background(), "phy: CCA busy",
		logging.Duration("duration", duration),
		logging.String("band", band.String()),
		logging.Any("primary", isPrimary),
	)
}

// SwitchToSleep puts the radio into sleep mode. Valid only from Idle or
// CcaBusy: sleep is mutually exclusive with any in-progress interval.
func (t *StateTracker) SwitchToSleep(band model.Band, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	t.ensureAllowed("SwitchToSleep", key, now, StateOff, StateSleep, StateTx, StateRx, StateSwitching)

	t.beginFanout()
	t.traceTrailingIdle(key, now)
	t.endFanout()

	t.prevStateChange = now
	t.sleeping = true
	t.startSleep = now

	t.beginFanout()
	t.notify(func(l Listener) { l.NotifySleep() })
	t.endFanout()
	t.log.Debug(context.Background(), "phy: switch to sleep", logging.String("band", band.String()))
}

// SwitchFromSleep wakes the radio. If duration is positive, the band is
// seeded as busy for that long, modelling energy present at wake-up.
func (t *StateTracker) SwitchFromSleep(duration time.Duration, band model.Band, isPrimary bool, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if t.inFanout {
		t.fatalf("SwitchFromSleep: re-entrant transition from observer hook")
	}
	if now.Before(t.prevStateChange) {
		t.fatalf("SwitchFromSleep: retroactive transition at %v", now)
	}
	if state := t.stateAt(key, now); state != StateSleep {
		t.fatalf("SwitchFromSleep: invalid while %s", state)
	}

	t.beginFanout()
	t.traceState(t.startSleep, now.Sub(t.startSleep), StateSleep)
	t.endFanout()

	t.prevStateChange = now
	t.sleeping = false

	t.beginFanout()
	t.notify(func(l Listener) { l.NotifyWakeup() })
	t.endFanout()
	t.log.Debug(context.Background(), "phy: wake from sleep",
		logging.Duration("slept", now.Sub(t.startSleep)),
	)

	if duration > 0 {
		t.SwitchMaybeToCcaBusy(duration, band, isPrimary, thresholdDbm)
	}
}

// SwitchToOff powers the radio off. Valid from any state; the precedence
// order masks any interval still recorded, and an open reception is
// forfeited without delivery.
func (t *StateTracker) SwitchToOff(band model.Band, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if t.inFanout {
		t.fatalf("SwitchToOff: re-entrant transition from observer hook")
	}
	if now.Before(t.prevStateChange) {
		t.fatalf("SwitchToOff: retroactive transition at %v", now)
	}

	t.beginFanout()
	if t.sleeping {
		t.traceState(t.startSleep, now.Sub(t.startSleep), StateSleep)
	} else {
		t.traceTrailingIdle(key, now)
	}
	t.endFanout()

	t.prevStateChange = now
	t.sleeping = false
	t.off = true
	t.startSleep = now
	t.rxInProgress = false

	t.beginFanout()
	t.notify(func(l Listener) { l.NotifyOff() })
	t.endFanout()
	t.log.Debug(context.Background(), "phy: switch to off", logging.String("band", band.String()))
}

// SwitchFromOff powers the radio back on. If duration is positive, the band
// is seeded as busy for that long.
func (t *StateTracker) SwitchFromOff(duration time.Duration, band model.Band, isPrimary bool, thresholdDbm float64) {
	now := t.clock.Now()
	key := newOccupancyKey(band, thresholdDbm)
	if t.inFanout {
		t.fatalf("SwitchFromOff: re-entrant transition from observer hook")
	}
	if now.Before(t.prevStateChange) {
		t.fatalf("SwitchFromOff: retroactive transition at %v", now)
	}
	if state := t.stateAt(key, now); state != StateOff {
		t.fatalf("SwitchFromOff: invalid while %s", state)
	}

	t.beginFanout()
	t.traceState(t.startSleep, now.Sub(t.startSleep), StateOff)
	t.endFanout()

	t.prevStateChange = now
	t.off = false

	t.beginFanout()
	t.notify(func(l Listener) { l.NotifyOn() })
	t.endFanout()
	t.log.Debug(context.Background(), "phy: switch from off",
		logging.Duration("off_for", now.Sub(t.startSleep)),
	)

	if duration > 0 {
		t.SwitchMaybeToCcaBusy(duration, band, isPrimary, thresholdDbm)
	}
}

// ---- Internals ----

// doSwitchFromRx closes the reception interval at now and traces it. Rx is
// the one state traced at close rather than at start, because a reception
// may end before its projected duration.
func (t *StateTracker) doSwitchFromRx(now time.Time) {
	t.beginFanout()
	t.traceState(t.startRx, now.Sub(t.startRx), StateRx)
	t.endFanout()
	t.prevStateChange = now
	t.endRx = now
	t.rxInProgress = false
}

// ensureAllowed aborts when called from inside a fan-out or when the derived
// state at now is one of the forbidden states.
func (t *StateTracker) ensureAllowed(op string, key occupancyKey, now time.Time, forbidden ...RadioState) {
	if t.inFanout {
		t.fatalf("%s: re-entrant transition from observer hook", op)
	}
	if now.Before(t.prevStateChange) {
		t.fatalf("%s: retroactive transition at %v, before last state change at %v",
			op, now, t.prevStateChange)
	}
	state := t.stateAt(key, now)
	for _, f := range forbidden {
		if state == f {
			t.fatalf("%s: invalid while %s", op, state)
		}
	}
}

// ensureReceiving aborts unless an open reception spans now.
func (t *StateTracker) ensureReceiving(op string, now time.Time) {
	if t.inFanout {
		t.fatalf("%s: re-entrant transition from observer hook", op)
	}
	if now.Before(t.prevStateChange) {
		t.fatalf("%s: retroactive transition at %v, before last state change at %v",
			op, now, t.prevStateChange)
	}
	if !t.rxInProgress || t.off || t.sleeping || now.After(t.endRx) || now.Before(t.startRx) {
		t.fatalf("%s: no reception in progress at %v (rx interval [%v,%v])",
			op, now, t.startRx, t.endRx)
	}
}

// traceTrailingIdle reports the Idle interval, and any CcaBusy interval
// preceding it, that ends with this transition, so the state trace tiles
// simulated time. Only meaningful when the radio is currently free; callers
// invoke it before overwriting any interval.
func (t *StateTracker) traceTrailingIdle(key occupancyKey, now time.Time) {
	switch t.stateAt(key, now) {
	case StateIdle, StateCcaBusy:
	default:
		return
	}

	idleStart := maxTime(t.prevStateChange, t.endTx, t.endRx, t.endSwitching)
	if busy, ok := t.ccaBusy[key]; ok && busy.end.After(idleStart) {
		ccaStart := maxTime(idleStart, busy.start)
		ccaEnd := busy.end
		if ccaEnd.After(now) {
			ccaEnd = now
		}
		if ccaEnd.After(ccaStart) {
			t.traceState(ccaStart, ccaEnd.Sub(ccaStart), StateCcaBusy)
		}
		idleStart = ccaEnd
	}
	if now.After(idleStart) {
		t.traceState(idleStart, now.Sub(idleStart), StateIdle)
	}
}

func (t *StateTracker) traceState(start time.Time, duration time.Duration, state RadioState) {
	for _, fn := range t.stateTraces {
		fn(start, duration, state)
	}
}

func (t *StateTracker) notify(fn func(Listener)) {
	for _, l := range t.listeners {
		fn(l)
	}
}

func (t *StateTracker) beginFanout() { t.inFanout = true }
func (t *StateTracker) endFanout()   { t.inFanout = false }

func (t *StateTracker) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.log.Error(context.Background(), msg)
	panic("phy: " + msg)
}

func maxTime(first time.Time, rest ...time.Time) time.Time {
	max := first
	for _, ts := range rest {
		if ts.After(max) {
			max = ts
		}
	}
	return max
}
