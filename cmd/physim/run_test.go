package main

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/internal/observability"
	"github.com/signalsfoundry/phytrack/phy"
	"github.com/signalsfoundry/phytrack/timectrl"
)

func smokeScenario(t *testing.T) *Scenario {
	t.Helper()
	s, err := LoadScenario(writeScenario(t, validScenarioYAML))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	return s
}

func newRunClock() *timectrl.ManualClock {
	return timectrl.NewManualClock(time.Unix(0, 0).UTC())
}

func TestRunScenarioSummary(t *testing.T) {
	scenario := smokeScenario(t)

	summary, err := runScenario(context.Background(), scenario, newRunClock(), logging.Noop(), runOptions{})
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}

	if summary.EventsRun != 3 {
		t.Errorf("events run = %d, want 3", summary.EventsRun)
	}
	if summary.TxBytes != 1500 {
		t.Errorf("tx bytes = %d, want 1500", summary.TxBytes)
	}
	if summary.Delivered != 1 || summary.Failed != 0 {
		t.Errorf("delivered = %d, failed = %d, want 1/0", summary.Delivered, summary.Failed)
	}
	if summary.FinalState.String() != "IDLE" {
		t.Errorf("final state = %s, want IDLE", summary.FinalState)
	}

	// TX from 0 to 2s, trailing idle 2s to 5s, RX 5s to 8s.
	want := map[string]float64{"TX": 2, "IDLE": 3, "RX": 3}
	for state, secs := range want {
		if got := summary.StateSeconds[state]; got != secs {
			t.Errorf("%s seconds = %v, want %v", state, got, secs)
		}
	}
}

func TestRunScenarioOrdersEventsByTimestamp(t *testing.T) {
	scenario := smokeScenario(t)
	// Reverse the declared order; the scheduler must still run them in
	// timestamp order or the tracker would reject rx_end_ok before rx.
	for i, j := 0, len(scenario.Events)-1; i < j; i, j = i+1, j-1 {
		scenario.Events[i], scenario.Events[j] = scenario.Events[j], scenario.Events[i]
	}

	summary, err := runScenario(context.Background(), scenario, newRunClock(), logging.Noop(), runOptions{})
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	if summary.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", summary.Delivered)
	}
}

func TestRunScenarioPowerCycle(t *testing.T) {
	scenario := &Scenario{
		Name:  "power-cycle",
		Bands: []BandConfig{{Name: "p", Low: 0, High: 64, Primary: true, ThresholdDbm: -82}},
		Events: []EventConfig{
			{At: 0, Op: opSleep, Band: "p"},
			{At: Duration(4 * time.Second), Op: opWake, Band: "p"},
			{At: Duration(6 * time.Second), Op: opOff, Band: "p"},
			{At: Duration(9 * time.Second), Op: opOn, Band: "p"},
		},
	}
	if err := scenario.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	summary, err := runScenario(context.Background(), scenario, newRunClock(), logging.Noop(), runOptions{})
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	if got := summary.StateSeconds["SLEEP"]; got != 4 {
		t.Errorf("SLEEP seconds = %v, want 4", got)
	}
	if got := summary.StateSeconds["OFF"]; got != 3 {
		t.Errorf("OFF seconds = %v, want 3", got)
	}
	if summary.FinalState.String() != "IDLE" {
		t.Errorf("final state = %s, want IDLE", summary.FinalState)
	}
}

func TestPrintSummary(t *testing.T) {
	scenario := smokeScenario(t)
	summary, err := runScenario(context.Background(), scenario, newRunClock(), logging.Noop(), runOptions{})
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}

	var sb strings.Builder
	printSummary(&sb, scenario, summary)
	out := sb.String()
	for _, fragment := range []string{"smoke", "TX", "RX", "IDLE", "Final state: IDLE"} {
		if !strings.Contains(out, fragment) {
			t.Errorf("summary output missing %q:\n%s", fragment, out)
		}
	}
}

func TestStateGaugeScrapesSafelyDuringRun(t *testing.T) {
	scenario := smokeScenario(t)

	reg := prometheus.NewRegistry()
	collector, err := observability.NewPhyCollector(reg)
	if err != nil {
		t.Fatalf("NewPhyCollector: %v", err)
	}

	// The gauge reads a snapshot published after each event, never the
	// tracker itself, so scrapes may race with the run.
	var stateCode atomic.Int64
	if err := collector.WatchState(func() phy.RadioState {
		return phy.RadioState(stateCode.Load())
	}); err != nil {
		t.Fatalf("WatchState: %v", err)
	}

	primary := scenario.primaryBand()
	opts := runOptions{
		listener: collector,
		afterEvent: func(tracker *phy.StateTracker) {
			stateCode.Store(int64(tracker.GetState(primary.Model(), primary.ThresholdDbm)))
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := reg.Gather(); err != nil {
				t.Errorf("Gather: %v", err)
				return
			}
		}
	}()

	summary, err := runScenario(context.Background(), scenario, newRunClock(), logging.Noop(), opts)
	if err != nil {
		t.Fatalf("runScenario: %v", err)
	}
	<-done

	if summary.EventsRun != 3 {
		t.Fatalf("events run = %d, want 3", summary.EventsRun)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var got float64 = -1
	for _, fam := range families {
		if fam.GetName() == "phy_current_state" {
			got = fam.GetMetric()[0].GetGauge().GetValue()
		}
	}
	if got != float64(phy.StateIdle) {
		t.Fatalf("phy_current_state = %v, want %v (IDLE)", got, float64(phy.StateIdle))
	}
}
