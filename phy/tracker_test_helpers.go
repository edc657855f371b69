package phy

import (
	"testing"
	"time"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/model"
	"github.com/signalsfoundry/phytrack/timectrl"
)

// Bands and thresholds used across the tracker tests: a primary 20 MHz
// segment and the 40 MHz aggregate containing it.
var (
	bandPrimary   = model.Band{Low: 0, High: 64}
	bandSecondary = model.Band{Low: 64, High: 128}
	bandWide      = model.Band{Low: 0, High: 128}
)

const thrDefault = -82.0

var testEpoch = time.Unix(0, 0).UTC()

func newTestTracker(t *testing.T) (*StateTracker, *timectrl.ManualClock) {
	t.Helper()
	clock := timectrl.NewManualClock(testEpoch)
	return NewStateTracker(clock, logging.Noop()), clock
}

func at(d time.Duration) time.Time { return testEpoch.Add(d) }

// recordingListener captures every notification it receives, in order.
type recordingListener struct {
	events    []string
	durations map[string]time.Duration
	powers    []float64
}

func newRecordingListener() *recordingListener {
	return &recordingListener{durations: make(map[string]time.Duration)}
}

func (l *recordingListener) record(event string, d time.Duration) {
	l.events = append(l.events, event)
	l.durations[event] = d
}

func (l *recordingListener) NotifyTxStart(d time.Duration, txPowerDbm float64) {
	l.record("tx_start", d)
	l.powers = append(l.powers, txPowerDbm)
}
func (l *recordingListener) NotifyRxStart(d time.Duration) { l.record("rx_start", d) }
func (l *recordingListener) NotifyRxEndOk()                { l.record("rx_end_ok", 0) }
func (l *recordingListener) NotifyRxEndError()             { l.record("rx_end_error", 0) }

func (l *recordingListener) NotifyMaybeCcaBusyStart(d time.Duration) { l.record("cca_busy_start", d) }
func (l *recordingListener) NotifySwitchingStart(d time.Duration)    { l.record("switching_start", d) }

func (l *recordingListener) NotifySleep()  { l.record("sleep", 0) }
func (l *recordingListener) NotifyWakeup() { l.record("wakeup", 0) }
func (l *recordingListener) NotifyOff()    { l.record("off", 0) }
func (l *recordingListener) NotifyOn()     { l.record("on", 0) }

func (l *recordingListener) count(event string) int {
	n := 0
	for _, e := range l.events {
		if e == event {
			n++
		}
	}
	return n
}

func singleFrameBundle(size uint32) *model.FrameBundle {
	return &model.FrameBundle{Frames: []model.Frame{{SizeBytes: size, Sequence: 1}}}
}

func aggregateBundle(frames int) *model.FrameBundle {
	fb := &model.FrameBundle{}
	for i := 0; i < frames; i++ {
		fb.Frames = append(fb.Frames, model.Frame{SizeBytes: 1500, Sequence: uint16(i)})
	}
	return fb
}

// timeTravelClock reports a fixed instant; used to simulate a caller whose
// notion of "now" lags the tracker's record.
type timeTravelClock struct{ now time.Time }

func (c timeTravelClock) Now() time.Time { return c.now }

func sigInfo(snrDb float64) model.SignalInfo {
	return model.SignalInfo{SnrDb: snrDb, RssiDbm: -60}
}

func defaultTxVector() model.TxVector {
	return model.TxVector{
		Mode:            model.ModeOfdm54Mbps,
		Preamble:        model.PreambleHT,
		PowerLevel:      4,
		ChannelWidthMHz: 20,
		Nss:             1,
	}
}

// expectPanic asserts that fn panics, returning the recovered value.
func expectPanic(t *testing.T, name string, fn func()) (recovered any) {
	t.Helper()
	defer func() {
		recovered = recover()
		if recovered == nil {
			t.Fatalf("%s: expected panic, got none", name)
		}
	}()
	fn()
	return nil
}
