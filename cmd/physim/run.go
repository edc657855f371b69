package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/model"
	"github.com/signalsfoundry/phytrack/phy"
	"github.com/signalsfoundry/phytrack/timectrl"
)

// runOptions carries the optional sinks a run can be wired with. afterEvent,
// when set, runs on the scheduler goroutine after each applied event; it is
// the only place callers may query the tracker while a run is in flight.
type runOptions struct {
	listener   phy.Listener
	stateTrace []phy.StateTraceFunc
	txTrace    []phy.TxTraceFunc
	rxOkTrace  []phy.RxOkTraceFunc
	rxErrTrace []phy.RxErrorTraceFunc
	afterEvent func(*phy.StateTracker)
}

// runSummary aggregates what happened during a scenario run.
type runSummary struct {
	EventsRun    int
	TxBytes      uint64
	Delivered    int
	Failed       int
	StateSeconds map[string]float64
	FinalState   phy.RadioState
}

// runScenario executes every scenario event against a fresh tracker driven
// by the given clock and returns the aggregate summary. The clock's current
// time is the scenario epoch; events run in timestamp order regardless of
// their order in the file.
func runScenario(ctx context.Context, scenario *Scenario, clock *timectrl.ManualClock, log logging.Logger, opts runOptions) (*runSummary, error) {
	epoch := clock.Now()
	scheduler := timectrl.NewEventScheduler(clock)
	tracker := phy.NewStateTracker(clock, log)

	summary := &runSummary{StateSeconds: make(map[string]float64)}

	if opts.listener != nil {
		tracker.RegisterListener(opts.listener)
	}
	tracker.TraceState(func(start time.Time, duration time.Duration, state phy.RadioState) {
		summary.StateSeconds[state.String()] += duration.Seconds()
	})
	tracker.TraceTx(func(bundle *model.FrameBundle, _ model.Mode, _ model.Preamble, _ uint8) {
		summary.TxBytes += uint64(bundle.SizeBytes())
	})
	for _, sink := range opts.stateTrace {
		tracker.TraceState(sink)
	}
	for _, sink := range opts.txTrace {
		tracker.TraceTx(sink)
	}
	for _, sink := range opts.rxOkTrace {
		tracker.TraceRxOk(sink)
	}
	for _, sink := range opts.rxErrTrace {
		tracker.TraceRxError(sink)
	}
	tracker.SetReceiveOkCallback(func(*model.FrameBundle, model.SignalInfo, model.TxVector, uint16, []bool) {
		summary.Delivered++
	})
	tracker.SetReceiveErrorCallback(func(*model.FrameBundle) {
		summary.Failed++
	})

	var pendingRx *model.FrameBundle
	for _, e := range scenario.Events {
		e := e
		band, err := scenario.band(bandNameFor(scenario, e))
		if err != nil {
			return nil, err
		}
		scheduler.ScheduleAt(epoch.Add(e.At.Std()), func() {
			applyEvent(tracker, e, band, &pendingRx)
			if opts.afterEvent != nil {
				opts.afterEvent(tracker)
			}
		})
	}

	log.Debug(ctx, "scenario scheduled",
		logging.String("scenario", scenario.Name),
		logging.Int("pending_events", scheduler.Pending()),
		logging.Time("epoch", epoch),
	)
	summary.EventsRun = scheduler.Run()
	summary.FinalState = tracker.GetState(scenario.primaryBand().Model(), scenario.primaryBand().ThresholdDbm)

	log.Info(ctx, "scenario complete",
		logging.String("scenario", scenario.Name),
		logging.Int("events", summary.EventsRun),
		logging.String("final_state", summary.FinalState.String()),
	)
	return summary, nil
}

// bandNameFor picks the band an event operates on, defaulting bandless
// operations to the primary band so threshold parameters resolve.
func bandNameFor(scenario *Scenario, e EventConfig) string {
	if e.Band != "" {
		return e.Band
	}
	return scenario.primaryBand().Name
}

func (s *Scenario) primaryBand() BandConfig {
	for _, b := range s.Bands {
		if b.Primary {
			return b
		}
	}
	return s.Bands[0]
}

// applyEvent translates one scenario event into the matching tracker call.
func applyEvent(tracker *phy.StateTracker, e EventConfig, band BandConfig, pendingRx **model.FrameBundle) {
	mb := band.Model()
	switch e.Op {
	case opTx:
		bundle := &model.FrameBundle{Frames: []model.Frame{{SizeBytes: e.Bytes}}}
		vector := model.TxVector{Mode: model.ModeOfdm24Mbps, Preamble: model.PreambleHT}
		tracker.SwitchToTx(e.Duration.Std(), []*model.FrameBundle{bundle}, e.PowerDbm, vector, mb, band.ThresholdDbm)
	case opRx:
		*pendingRx = &model.FrameBundle{Frames: []model.Frame{{SizeBytes: e.Bytes}}}
		tracker.SwitchToRx(e.Duration.Std(), mb, band.ThresholdDbm)
	case opRxEndOk:
		bundle := takePendingRx(pendingRx)
		tracker.SwitchFromRxEndOk(bundle,
			model.SignalInfo{SnrDb: e.SnrDb},
			model.TxVector{Mode: model.ModeOfdm24Mbps, Preamble: model.PreambleHT},
			0, []bool{true})
	case opRxEndError:
		tracker.SwitchFromRxEndError(takePendingRx(pendingRx), e.SnrDb)
	case opRxAbort:
		*pendingRx = nil
		tracker.SwitchFromRxAbort(e.Failure)
	case opCcaBusy:
		tracker.SwitchMaybeToCcaBusy(e.Duration.Std(), mb, band.Primary, band.ThresholdDbm)
	case opSwitchChannel:
		tracker.SwitchToChannelSwitching(e.Duration.Std(), mb, band.ThresholdDbm)
	case opSleep:
		tracker.SwitchToSleep(mb, band.ThresholdDbm)
	case opWake:
		tracker.SwitchFromSleep(e.Duration.Std(), mb, band.Primary, band.ThresholdDbm)
	case opOff:
		tracker.SwitchToOff(mb, band.ThresholdDbm)
	case opOn:
		tracker.SwitchFromOff(e.Duration.Std(), mb, band.Primary, band.ThresholdDbm)
	}
}

func takePendingRx(pendingRx **model.FrameBundle) *model.FrameBundle {
	bundle := *pendingRx
	*pendingRx = nil
	if bundle == nil {
		bundle = &model.FrameBundle{Frames: []model.Frame{{}}}
	}
	return bundle
}

// printSummary writes a human-readable account of the run.
func printSummary(w io.Writer, scenario *Scenario, summary *runSummary) {
	fmt.Fprintf(w, "Scenario %q: %s events, %s transmitted, %d delivered, %d failed\n",
		scenario.Name,
		humanize.Comma(int64(summary.EventsRun)),
		humanize.Bytes(summary.TxBytes),
		summary.Delivered,
		summary.Failed,
	)
	total := 0.0
	for _, secs := range summary.StateSeconds {
		total += secs
	}
	for _, state := range []string{"IDLE", "CCA_BUSY", "TX", "RX", "SWITCHING", "SLEEP", "OFF"} {
		secs, ok := summary.StateSeconds[state]
		if !ok {
			continue
		}
		share := 0.0
		if total > 0 {
			share = 100 * secs / total
		}
		value, prefix := humanize.ComputeSI(secs)
		fmt.Fprintf(w, "  %-9s %6.1f %ss (%4.1f%%)\n", state, roundSI(value), prefix, share)
	}
	fmt.Fprintf(w, "Final state: %s\n", summary.FinalState)
}

func roundSI(v float64) float64 { return math.Round(v*10) / 10 }
