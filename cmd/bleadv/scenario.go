package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/controller/sim"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted sequence of advertising requests run against the
// simulated controller.
//
//	faults:
//	  - {op: set_scan_response, fault: drop}
//	steps:
//	  - start: {id: 1, settings: {mode: low_latency}, advertise: {manufacturer_data: "4c:00:02"}}
//	  - stop: 1
//	  - wait: 20ms
//	  - sync: true
type Scenario struct {
	Faults []FaultSpec `yaml:"faults"`
	Steps  []Step      `yaml:"steps"`
}

// FaultSpec injects a controller misbehavior for the next command of Op.
type FaultSpec struct {
	Op    sim.Op    `yaml:"op"`
	Fault FaultKind `yaml:"fault"`
}

type FaultKind sim.Fault

func (f *FaultKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "nack":
		*f = FaultKind(sim.FaultNack)
	case "drop":
		*f = FaultKind(sim.FaultDrop)
	case "reject":
		*f = FaultKind(sim.FaultReject)
	default:
		return fmt.Errorf("unknown fault %q (must be nack, drop or reject)", text)
	}
	return nil
}

// Step is exactly one action.
type Step struct {
	Start *ClientSpec   `yaml:"start"`
	Stop  *int          `yaml:"stop"`
	Clear bool          `yaml:"clear"`
	Wait  time.Duration `yaml:"wait"`
	// Sync blocks until every start submitted so far has reported.
	Sync bool `yaml:"sync"`
}

type ClientSpec struct {
	ID           int                `yaml:"id"`
	Settings     advertise.Settings `yaml:"settings"`
	Advertise    *DataSpec          `yaml:"advertise"`
	ScanResponse *DataSpec          `yaml:"scan_response"`
}

type DataSpec struct {
	ServiceUUIDs     []uuid.UUID `yaml:"service_uuids"`
	ManufacturerData HexBytes    `yaml:"manufacturer_data"`
	ServiceData      HexBytes    `yaml:"service_data"`
	IncludeTxPower   bool        `yaml:"include_tx_power"`
}

// HexBytes decodes hex strings, optionally separated by ':', '-' or spaces.
type HexBytes []byte

func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := parseHex(string(text))
	if err != nil {
		return err
	}
	*h = b
	return nil
}

func parseHex(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)
	cleaned = strings.TrimPrefix(strings.ToLower(cleaned), "0x")
	b, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// Client builds the advertise client described by c.
func (c *ClientSpec) Client() *advertise.Client {
	return &advertise.Client{
		ID:            c.ID,
		Settings:      c.Settings,
		AdvertiseData: c.Advertise.data(),
		ScanResponse:  c.ScanResponse.data(),
	}
}

func (d *DataSpec) data() *advertise.Data {
	if d == nil {
		return nil
	}
	return &advertise.Data{
		ServiceUUIDs:     d.ServiceUUIDs,
		ManufacturerData: d.ManufacturerData,
		ServiceData:      d.ServiceData,
		IncludeTxPower:   d.IncludeTxPower,
	}
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}

	for _, f := range s.Faults {
		switch f.Op {
		case sim.OpEnable, sim.OpSetData, sim.OpSetScanResponse, sim.OpDisable:
		default:
			return fmt.Errorf("%w: unknown fault op %q", ErrInvalidScenario, f.Op)
		}
	}

	for i, step := range s.Steps {
		actions := 0
		for _, set := range []bool{step.Start != nil, step.Stop != nil, step.Clear, step.Wait > 0, step.Sync} {
			if set {
				actions++
			}
		}
		if actions != 1 {
			return fmt.Errorf("%w: step %d must have exactly one action, has %d", ErrInvalidScenario, i+1, actions)
		}
	}
	return nil
}
