package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/phytrack/model"
)

// Scenario describes a scripted radio activity timeline: the frequency bands
// the radio senses and the timed operations applied to the tracker.
type Scenario struct {
	Name   string        `yaml:"name"`
	Bands  []BandConfig  `yaml:"bands"`
	Events []EventConfig `yaml:"events"`
}

// BandConfig declares one sensed frequency band and the energy threshold it
// is evaluated against.
type BandConfig struct {
	Name         string  `yaml:"name"`
	Low          uint32  `yaml:"low"`
	High         uint32  `yaml:"high"`
	Primary      bool    `yaml:"primary"`
	ThresholdDbm float64 `yaml:"thresholdDbm"`
}

// EventConfig is a single timed operation. At is the offset from the
// scenario epoch; which of the remaining fields apply depends on Op.
type EventConfig struct {
	At       Duration `yaml:"at"`
	Op       string   `yaml:"op"`
	Duration Duration `yaml:"duration"`
	Band     string   `yaml:"band"`
	Bytes    uint32   `yaml:"bytes"`
	PowerDbm float64  `yaml:"powerDbm"`
	SnrDb    float64  `yaml:"snrDb"`
	Failure  bool     `yaml:"failure"`
}

// Duration wraps time.Duration so YAML scalars like "250ms" parse with
// time.ParseDuration semantics.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return d.Std().String() }

const (
	opTx            = "tx"
	opRx            = "rx"
	opRxEndOk       = "rx_end_ok"
	opRxEndError    = "rx_end_error"
	opRxAbort       = "rx_abort"
	opCcaBusy       = "cca_busy"
	opSwitchChannel = "switch_channel"
	opSleep         = "sleep"
	opWake          = "wake"
	opOff           = "off"
	opOn            = "on"
)

var knownOps = map[string]bool{
	opTx:            true,
	opRx:            true,
	opRxEndOk:       true,
	opRxEndError:    true,
	opRxAbort:       true,
	opCcaBusy:       true,
	opSwitchChannel: true,
	opSleep:         true,
	opWake:          true,
	opOff:           true,
	opOn:            true,
}

// bandlessOps take no band reference; their Band field must stay empty.
var bandlessOps = map[string]bool{
	opRxEndOk:    true,
	opRxEndError: true,
	opRxAbort:    true,
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return &s, nil
}

// Validate checks structural consistency: bands are well formed with exactly
// one primary, and every event names a known operation with sane parameters.
func (s *Scenario) Validate() error {
	if len(s.Bands) == 0 {
		return fmt.Errorf("no bands declared")
	}

	primaries := 0
	names := make(map[string]bool, len(s.Bands))
	for i, b := range s.Bands {
		if b.Name == "" {
			return fmt.Errorf("band %d: missing name", i)
		}
		if names[b.Name] {
			return fmt.Errorf("band %q declared twice", b.Name)
		}
		names[b.Name] = true
		if b.High <= b.Low {
			return fmt.Errorf("band %q: high (%d) must exceed low (%d)", b.Name, b.High, b.Low)
		}
		if b.Primary {
			primaries++
		}
	}
	if primaries != 1 {
		return fmt.Errorf("exactly one primary band required, got %d", primaries)
	}

	for i, e := range s.Events {
		if !knownOps[e.Op] {
			return fmt.Errorf("event %d: unknown op %q", i, e.Op)
		}
		if e.At < 0 {
			return fmt.Errorf("event %d (%s): negative offset %s", i, e.Op, e.At)
		}
		if e.Duration < 0 {
			return fmt.Errorf("event %d (%s): negative duration %s", i, e.Op, e.Duration)
		}
		if e.Band != "" && !names[e.Band] {
			return fmt.Errorf("event %d (%s): unknown band %q", i, e.Op, e.Band)
		}
		if e.Band == "" && !bandlessOps[e.Op] {
			return fmt.Errorf("event %d (%s): missing band", i, e.Op)
		}
	}
	return nil
}

// band resolves a band name to its declaration. Callers pass names already
// checked by Validate.
func (s *Scenario) band(name string) (BandConfig, error) {
	for _, b := range s.Bands {
		if b.Name == name {
			return b, nil
		}
	}
	return BandConfig{}, fmt.Errorf("unknown band %q", name)
}

// Model converts a band declaration into the tracker's band type.
func (b BandConfig) Model() model.Band {
	return model.Band{Low: b.Low, High: b.High}
}
