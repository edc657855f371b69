// physim replays a scripted radio activity scenario through the occupancy
// tracker and reports how the radio spent its time. Traces can be exported
// to Prometheus, OpenTelemetry and SQLite.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/phytrack/internal/logging"
	"github.com/signalsfoundry/phytrack/internal/observability"
	"github.com/signalsfoundry/phytrack/internal/recorder"
	"github.com/signalsfoundry/phytrack/phy"
	"github.com/signalsfoundry/phytrack/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "examples/scenarios/basic.yaml", "Path to a YAML scenario file")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (empty disables the endpoint)")
	dbPath := flag.String("db", "", "SQLite file to record traces into (empty disables recording)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	scenario, err := LoadScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.String("error", err.Error()))
		os.Exit(1)
	}

	collector, err := observability.NewPhyCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	clock := timectrl.NewManualClock(time.Unix(0, 0).UTC())
	opts := runOptions{
		listener: collector,
		stateTrace: []phy.StateTraceFunc{
			collector.StateTrace(),
			observability.NewSpanRecorder().StateTrace(),
		},
		txTrace: []phy.TxTraceFunc{collector.TxTrace()},
	}
	// The gauge is scraped concurrently with the run, so it reads a snapshot
	// published from the scheduler goroutine instead of querying the tracker.
	var stateCode atomic.Int64
	if err := collector.WatchState(func() phy.RadioState {
		return phy.RadioState(stateCode.Load())
	}); err != nil {
		log.Warn(ctx, "failed to register state gauge", logging.String("error", err.Error()))
	}
	primary := scenario.primaryBand()
	opts.afterEvent = func(tracker *phy.StateTracker) {
		stateCode.Store(int64(tracker.GetState(primary.Model(), primary.ThresholdDbm)))
	}

	if *dbPath != "" {
		rec := recorder.NewSqliteRecorder(*dbPath, clock, log)
		defer func() {
			if err := rec.Close(); err != nil {
				log.Error(ctx, "failed to close recorder", logging.String("error", err.Error()))
			}
		}()
		opts.stateTrace = append(opts.stateTrace, rec.StateTrace())
		opts.txTrace = append(opts.txTrace, rec.TxTrace())
		opts.rxOkTrace = append(opts.rxOkTrace, rec.RxOkTrace())
		opts.rxErrTrace = append(opts.rxErrTrace, rec.RxErrorTrace())
		log.Info(ctx, "recording traces", logging.String("db", *dbPath), logging.String("run_id", rec.RunID()))
	}

	summary, err := runScenario(ctx, scenario, clock, log, opts)
	if err != nil {
		log.Error(ctx, "scenario failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	printSummary(os.Stdout, scenario, summary)

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func serveMetrics(addr string, collector *observability.PhyCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()
	log.Info(context.Background(), "serving metrics", logging.String("addr", addr))
	return srv
}
