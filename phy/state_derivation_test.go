package phy

import (
	"testing"
	"time"
)

func TestFreshTrackerIsIdle(t *testing.T) {
	tracker, _ := newTestTracker(t)

	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("GetState = %v, want IDLE", got)
	}
	if !tracker.IsStateIdle(bandPrimary, thrDefault) {
		t.Fatalf("IsStateIdle = false, want true")
	}
	if d := tracker.GetDelayUntilIdle(bandPrimary, thrDefault); d != 0 {
		t.Fatalf("GetDelayUntilIdle = %v, want 0", d)
	}
}

func TestTxIntervalDerivation(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchToTx(10*time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)

	clock.Set(at(5 * time.Second))
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateTx {
		t.Fatalf("state at t=5s = %v, want TX", got)
	}
	if d := tracker.GetDelayUntilIdle(bandPrimary, thrDefault); d != 5*time.Second {
		t.Fatalf("GetDelayUntilIdle at t=5s = %v, want 5s", d)
	}

	// The interval is half-open: at exactly end the radio is Idle again.
	clock.Set(at(10 * time.Second))
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("state at t=10s = %v, want IDLE", got)
	}
}

func TestPrecedenceOffOverridesEverything(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchToTx(10*time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)
	clock.Set(at(2 * time.Second))
	tracker.SwitchToOff(bandPrimary, thrDefault)

	// A powered-off radio cannot be "transmitting", whatever timestamps say.
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateOff {
		t.Fatalf("state = %v, want OFF", got)
	}
	if !tracker.IsStateOff(bandPrimary, thrDefault) {
		t.Fatalf("IsStateOff = false, want true")
	}
}

func TestPrecedenceSleepOverridesCcaBusy(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchMaybeToCcaBusy(30*time.Second, bandPrimary, true, thrDefault)
	clock.Set(at(time.Second))
	tracker.SwitchToSleep(bandPrimary, thrDefault)

	if got := tracker.GetState(bandPrimary, thrDefault); got != StateSleep {
		t.Fatalf("state = %v, want SLEEP", got)
	}
}

func TestPrecedenceSwitchingOverridesTxAndRx(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchToRx(10*time.Second, bandPrimary, thrDefault)
	clock.Set(at(2 * time.Second))
	tracker.SwitchFromRxAbort(false)
	tracker.SwitchToChannelSwitching(4*time.Second, bandPrimary, thrDefault)

	if got := tracker.GetState(bandPrimary, thrDefault); got != StateSwitching {
		t.Fatalf("state = %v, want SWITCHING", got)
	}
	if d := tracker.GetDelayUntilIdle(bandPrimary, thrDefault); d != 4*time.Second {
		t.Fatalf("GetDelayUntilIdle = %v, want 4s", d)
	}
}

func TestCcaBusyIsWeakerThanOwnCommitments(t *testing.T) {
	tracker, clock := newTestTracker(t)

	tracker.SwitchMaybeToCcaBusy(20*time.Second, bandPrimary, true, thrDefault)
	clock.Set(at(time.Second))
	tracker.SwitchToTx(5*time.Second, nil, 16.0, defaultTxVector(), bandPrimary, thrDefault)

	if got := tracker.GetState(bandPrimary, thrDefault); got != StateTx {
		t.Fatalf("state = %v, want TX (own transmission outranks ambient energy)", got)
	}

	// After the transmission the lingering busy interval resurfaces.
	clock.Set(at(7 * time.Second))
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateCcaBusy {
		t.Fatalf("state after TX = %v, want CCA_BUSY", got)
	}
}

func TestPerBandIndependence(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.SwitchMaybeToCcaBusy(10*time.Second, bandSecondary, false, thrDefault)

	if got := tracker.GetState(bandSecondary, thrDefault); got != StateCcaBusy {
		t.Fatalf("secondary band state = %v, want CCA_BUSY", got)
	}
	// Energy on the secondary band does not corrupt the primary view.
	if got := tracker.GetState(bandPrimary, thrDefault); got != StateIdle {
		t.Fatalf("primary band state = %v, want IDLE", got)
	}
}

func TestThresholdQuantization(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.SwitchMaybeToCcaBusy(10*time.Second, bandPrimary, true, -82.0)

	// Thresholds equal after quantization address the same entry.
	if got := tracker.GetState(bandPrimary, -82.0004); got != StateCcaBusy {
		t.Fatalf("state at -82.0004 dBm = %v, want CCA_BUSY (same key)", got)
	}
	// Thresholds that differ by at least the precision do not.
	if got := tracker.GetState(bandPrimary, -82.02); got != StateIdle {
		t.Fatalf("state at -82.02 dBm = %v, want IDLE (distinct key)", got)
	}
}

func TestGetDelaySinceIdle(t *testing.T) {
	tracker, clock := newTestTracker(t)

	// Never busy: measured from the last state change (construction).
	clock.Set(at(4 * time.Second))
	if d := tracker.GetDelaySinceIdle(bandPrimary, thrDefault); d != 4*time.Second {
		t.Fatalf("GetDelaySinceIdle (never busy) = %v, want 4s", d)
	}

	tracker.SwitchMaybeToCcaBusy(2*time.Second, bandPrimary, true, thrDefault)
	clock.Set(at(9 * time.Second))
	if d := tracker.GetDelaySinceIdle(bandPrimary, thrDefault); d != 3*time.Second {
		t.Fatalf("GetDelaySinceIdle = %v, want 3s (busy ended at t=6s)", d)
	}

	// While still busy the delay clamps at zero.
	tracker.SwitchMaybeToCcaBusy(5*time.Second, bandPrimary, true, thrDefault)
	clock.Set(at(10 * time.Second))
	if d := tracker.GetDelaySinceIdle(bandPrimary, thrDefault); d != 0 {
		t.Fatalf("GetDelaySinceIdle while busy = %v, want 0", d)
	}
}

func TestGetDelayUntilIdleFatalWhileSleeping(t *testing.T) {
	tracker, _ := newTestTracker(t)
	tracker.SwitchToSleep(bandPrimary, thrDefault)

	expectPanic(t, "GetDelayUntilIdle while SLEEP", func() {
		tracker.GetDelayUntilIdle(bandPrimary, thrDefault)
	})
}

func TestGetLastRxStartTime(t *testing.T) {
	tracker, clock := newTestTracker(t)

	clock.Set(at(3 * time.Second))
	tracker.SwitchToRx(5*time.Second, bandPrimary, thrDefault)
	clock.Set(at(8 * time.Second))
	tracker.SwitchFromRxEndOk(singleFrameBundle(500), sigInfo(20), defaultTxVector(), 0, []bool{true})

	// Still valid after the interval ended.
	clock.Set(at(20 * time.Second))
	if got := tracker.GetLastRxStartTime(); !got.Equal(at(3 * time.Second)) {
		t.Fatalf("GetLastRxStartTime = %v, want %v", got, at(3*time.Second))
	}
}
