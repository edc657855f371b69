package phy

import (
	"testing"
	"time"
)

func TestSwitchToRxWhileSleepingIsFatal(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.SwitchToSleep(bandPrimary, thrDefault)

	expectPanic(t, "SwitchToRx while SLEEP", func() {
		tracker.SwitchToRx(time.Second, bandPrimary, thrDefault)
	})
}

func TestSwitchToTxWhileReceivingIsFatal(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.SwitchToRx(10*time.Second, bandPrimary, thrDefault)

	expectPanic(t, "SwitchToTx while RX", func() {
		tracker.SwitchToTx(time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)
	})
}

func TestSwitchToRxWhileTransmittingIsFatal(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.SwitchToTx(10*time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)

	expectPanic(t, "SwitchToRx while TX", func() {
		tracker.SwitchToRx(time.Second, bandPrimary, thrDefault)
	})
}

func TestSwitchMaybeToCcaBusyWhileOffIsFatal(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.SwitchToOff(bandPrimary, thrDefault)

	expectPanic(t, "SwitchMaybeToCcaBusy while OFF", func() {
		tracker.SwitchMaybeToCcaBusy(time.Second, bandPrimary, true, thrDefault)
	})
}

func TestSwitchFromSleepRequiresSleep(t *testing.T) {
	tracker, _ := newTestTracker(t)

	expectPanic(t, "SwitchFromSleep while IDLE", func() {
		tracker.SwitchFromSleep(0, bandPrimary, true, thrDefault)
	})
}

func TestSleepWakeCycle(t *testing.T) {
	tracker, clock := newTestTracker(t)
	listener := newRecordingListener()
	tracker.RegisterListener(listener)

	tracker.SwitchToSleep(bandPrimary, thrDefault)
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateSleep {
		t.Fatalf("state = %v, want SLEEP", got)
	}

	clock.Set(at(5 * time.Second))
	tracker.SwitchFromSleep(2*time.Second, bandPrimary, true, thrDefault)

	// Wake-up seeds the band busy for the requested duration.
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateCcaBusy {
		t.Fatalf("state after wake = %v, want CCA_BUSY", got)
	}
	clock.Set(at(7 * time.Second))
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("state after seeded busy = %v, want IDLE", got)
	}

	for _, event := range []string{"sleep", "wakeup", "cca_busy_start"} {
		if listener.count(event) != 1 {
			t.Fatalf("listener saw %q %d times, want 1 (events %v)",
				event, listener.count(event), listener.events)
		}
	}
}

func TestOffOnCycle(t *testing.T) {
	tracker, clock := newTestTracker(t)
	listener := newRecordingListener()
	tracker.RegisterListener(listener)

	tracker.SwitchToOff(bandPrimary, thrDefault)
	if !tracker.IsStateOff(bandPrimary, thrDefault) {
		t.Fatalf("state after SwitchToOff is not OFF")
	}

	clock.Set(at(time.Minute))
	tracker.SwitchFromOff(time.Second, bandPrimary, true, thrDefault)
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateCcaBusy {
		t.Fatalf("state after power-on = %v, want CCA_BUSY (seeded)", got)
	}

	if listener.count("off") != 1 || listener.count("on") != 1 {
		t.Fatalf("listener events = %v, want one off and one on", listener.events)
	}
}

func TestSwitchToOffClearsSleep(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchToSleep(bandPrimary, thrDefault)
	clock.Set(at(time.Second))
	tracker.SwitchToOff(bandPrimary, thrDefault)

	if got := tracker.GetState(bandPrimary, thrDefault); got != StateOff {
		t.Fatalf("state = %v, want OFF", got)
	}

	clock.Set(at(2 * time.Second))
	tracker.SwitchFromOff(0, bandPrimary, true, thrDefault)
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("state after power-on = %v, want IDLE (sleep flag cleared)", got)
	}
}

func TestChannelSwitchTruncatesBusyIntervals(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchMaybeToCcaBusy(time.Minute, bandPrimary, true, thrDefault)
	tracker.SwitchMaybeToCcaBusy(time.Minute, bandSecondary, false, thrDefault)

	clock.Set(at(time.Second))
	tracker.SwitchToChannelSwitching(2*time.Second, bandPrimary, thrDefault)

	// After the switch completes, energy recorded on the old channel is gone
	// on every band.
	clock.Set(at(3 * time.Second))
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("primary state after switch = %v, want IDLE", got)
	}
	if got := tracker.GetState(bandSecondary, thrDefault); got != StateIdle {
		t.Fatalf("secondary state after switch = %v, want IDLE", got)
	}
}

func TestRetroactiveTransitionIsFatal(t *testing.T) {
	tracker, clock := newTestTracker(t)

	clock.Set(at(10 * time.Second))
	tracker.SwitchToTx(time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)

	// Build a second tracker sharing an older clock view to simulate a
	// caller recording an event in the past.
	rewound := timeTravelClock{now: at(5 * time.Second)}
	tracker.clock = rewound

	expectPanic(t, "retroactive SwitchMaybeToCcaBusy", func() {
		tracker.SwitchMaybeToCcaBusy(time.Second, bandPrimary, true, thrDefault)
	})
}

func TestListenerRegistrationIsSymmetric(t *testing.T) {
	tracker, _ := newTestTracker(t)
	first := newRecordingListener()
	second := newRecordingListener()

	tracker.RegisterListener(first)
	tracker.RegisterListener(second)
	tracker.UnregisterListener(first)

	tracker.SwitchToSleep(bandPrimary, thrDefault)

	if len(first.events) != 0 {
		t.Fatalf("unregistered listener received %v", first.events)
	}
	if second.count("sleep") != 1 {
		t.Fatalf("remaining listener events = %v, want one sleep", second.events)
	}

	// Removing a listener that is not registered is a silent no-op.
	tracker.UnregisterListener(first)
	tracker.UnregisterListener(newRecordingListener())
}

func TestNegativeDurationsAreFatal(t *testing.T) {
	tracker, _ := newTestTracker(t)

	expectPanic(t, "SwitchToTx with negative duration", func() {
		tracker.SwitchToTx(-5*time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)
	})
	expectPanic(t, "SwitchToRx with negative duration", func() {
		tracker.SwitchToRx(-time.Second, bandPrimary, thrDefault)
	})
	expectPanic(t, "SwitchToChannelSwitching with negative duration", func() {
		tracker.SwitchToChannelSwitching(-time.Millisecond, bandPrimary, thrDefault)
	})
	expectPanic(t, "SwitchMaybeToCcaBusy with negative duration", func() {
		tracker.SwitchMaybeToCcaBusy(-3*time.Second, bandPrimary, true, thrDefault)
	})

	// The rejected calls must leave no trace of an inverted interval.
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("state after rejected transitions = %s, want IDLE", got)
	}
	if got := tracker.GetDelayUntilIdle(bandPrimary, thrDefault); got != 0 {
		t.Fatalf("GetDelayUntilIdle = %s, want 0", got)
	}
}
