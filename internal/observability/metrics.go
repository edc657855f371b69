package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/phytrack/model"
	"github.com/signalsfoundry/phytrack/phy"
)

// PhyCollector bundles Prometheus metrics for the radio occupancy tracker.
// It implements phy.Listener, so registering it with a tracker is enough to
// count transitions; the trace-sink adapters additionally accumulate time
// spent per state and bytes transmitted.
type PhyCollector struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	Transitions  *prometheus.CounterVec
	StateSeconds *prometheus.CounterVec
	Receptions   *prometheus.CounterVec
	TxBytes      prometheus.Counter
}

// NewPhyCollector registers the PHY metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewPhyCollector(reg prometheus.Registerer) (*PhyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_transitions_total",
		Help: "Total number of radio state transitions, labeled by event kind.",
	}, []string{"event"})
	transitions, err := registerCounterVec(reg, transitions, "phy_transitions_total")
	if err != nil {
		return nil, err
	}

	stateSeconds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_state_seconds_total",
		Help: "Simulated seconds spent in each radio state.",
	}, []string{"state"})
	stateSeconds, err = registerCounterVec(reg, stateSeconds, "phy_state_seconds_total")
	if err != nil {
		return nil, err
	}

	receptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "phy_receptions_total",
		Help: "Completed reception attempts, labeled by outcome (ok or error).",
	}, []string{"outcome"})
	receptions, err = registerCounterVec(reg, receptions, "phy_receptions_total")
	if err != nil {
		return nil, err
	}

	txBytes, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "phy_tx_bytes_total",
		Help: "Total payload bytes handed to the radio for transmission.",
	}), "phy_tx_bytes_total")
	if err != nil {
		return nil, err
	}

	return &PhyCollector{
		registerer:   reg,
		gatherer:     gatherer,
		Transitions:  transitions,
		StateSeconds: stateSeconds,
		Receptions:   receptions,
		TxBytes:      txBytes,
	}, nil
}

// StateTrace returns a sink that accumulates per-state occupancy seconds.
func (c *PhyCollector) StateTrace() phy.StateTraceFunc {
	return func(_ time.Time, duration time.Duration, state phy.RadioState) {
		if c == nil || c.StateSeconds == nil {
			return
		}
		c.StateSeconds.WithLabelValues(state.String()).Add(duration.Seconds())
	}
}

// TxTrace returns a sink that accumulates transmitted payload bytes.
func (c *PhyCollector) TxTrace() phy.TxTraceFunc {
	return func(bundle *model.FrameBundle, _ model.Mode, _ model.Preamble, _ uint8) {
		if c == nil || c.TxBytes == nil {
			return
		}
		c.TxBytes.Add(float64(bundle.SizeBytes()))
	}
}

// WatchState registers a gauge reporting the current radio state as its
// numeric code (0 IDLE through 6 OFF). The state function is evaluated at
// scrape time.
func (c *PhyCollector) WatchState(state func() phy.RadioState) error {
	gauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "phy_current_state",
		Help: "Current radio state code: 0 IDLE, 1 CCA_BUSY, 2 TX, 3 RX, 4 SWITCHING, 5 SLEEP, 6 OFF.",
	}, func() float64 { return float64(state()) })
	if err := c.registerer.Register(gauge); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PhyCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *PhyCollector) event(name string) {
	if c == nil || c.Transitions == nil {
		return
	}
	c.Transitions.WithLabelValues(name).Inc()
}

// phy.Listener implementation.

func (c *PhyCollector) NotifyTxStart(time.Duration, float64) { c.event("tx_start") }
func (c *PhyCollector) NotifyRxStart(time.Duration)          { c.event("rx_start") }

func (c *PhyCollector) NotifyRxEndOk() {
	c.event("rx_end_ok")
	if c != nil && c.Receptions != nil {
		c.Receptions.WithLabelValues("ok").Inc()
	}
}

func (c *PhyCollector) NotifyRxEndError() {
	c.event("rx_end_error")
	if c != nil && c.Receptions != nil {
		c.Receptions.WithLabelValues("error").Inc()
	}
}

func (c *PhyCollector) NotifyMaybeCcaBusyStart(time.Duration) { c.event("cca_busy_start") }
func (c *PhyCollector) NotifySwitchingStart(time.Duration)    { c.event("switching_start") }
func (c *PhyCollector) NotifySleep()                          { c.event("sleep") }
func (c *PhyCollector) NotifyWakeup()                         { c.event("wakeup") }
func (c *PhyCollector) NotifyOff()                            { c.event("off") }
func (c *PhyCollector) NotifyOn()                             { c.event("on") }

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
