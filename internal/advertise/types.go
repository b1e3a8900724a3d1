package advertise

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Mode is the advertising timing mode.
type Mode int

const (
	ModeLowPower Mode = iota
	ModeBalanced
	ModeLowLatency
)

var modeNames = map[Mode]string{
	ModeLowPower:   "low_power",
	ModeBalanced:   "balanced",
	ModeLowLatency: "low_latency",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode parses a mode name such as "balanced" (case-insensitive; dashes
// and underscores are interchangeable).
func ParseMode(s string) (Mode, error) {
	key := normalizeName(s)
	for m, name := range modeNames {
		if name == key {
			return m, nil
		}
	}
	return 0, fmt.Errorf("invalid advertise mode %q (must be low_power, balanced, or low_latency)", s)
}

// TxPower is the requested transmit power hint.
type TxPower int

const (
	TxPowerUltraLow TxPower = iota
	TxPowerLow
	TxPowerMedium
	TxPowerHigh
)

var txPowerNames = map[TxPower]string{
	TxPowerUltraLow: "ultra_low",
	TxPowerLow:      "low",
	TxPowerMedium:   "medium",
	TxPowerHigh:     "high",
}

func (p TxPower) String() string {
	if s, ok := txPowerNames[p]; ok {
		return s
	}
	return fmt.Sprintf("tx_power(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p TxPower) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TxPower) UnmarshalText(text []byte) error {
	v, err := ParseTxPower(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseTxPower parses a power hint name such as "ultra_low".
func ParseTxPower(s string) (TxPower, error) {
	key := normalizeName(s)
	for p, name := range txPowerNames {
		if name == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("invalid tx power %q (must be ultra_low, low, medium, or high)", s)
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

// Settings are the abstract advertising settings requested by a caller.
type Settings struct {
	Mode           Mode    `yaml:"mode" json:"mode"`
	TxPower        TxPower `yaml:"tx_power" json:"tx_power"`
	Connectable    bool    `yaml:"connectable" json:"connectable"`
	TimeoutSeconds int     `yaml:"timeout" json:"timeout"`
}

// Data is an advertising or scan response payload.
type Data struct {
	ServiceUUIDs     []uuid.UUID
	ManufacturerData []byte
	ServiceData      []byte
	IncludeTxPower   bool
}

// Client is one requested or active advertising session.
type Client struct {
	ID            int
	Settings      Settings
	AdvertiseData *Data
	// ScanResponse is set only when a scan response payload is requested.
	ScanResponse *Data
}

func (c *Client) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("client %d (%s, %s, connectable=%t)", c.ID, c.Settings.Mode, c.Settings.TxPower, c.Settings.Connectable)
}

// Status is the outcome of a start request as reported to the caller.
type Status int

const (
	StatusSuccess Status = iota
	StatusAlreadyStarted
	StatusTooManyAdvertisers
	StatusInternalError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAlreadyStarted:
		return "already_started"
	case StatusTooManyAdvertisers:
		return "too_many_advertisers"
	case StatusInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}
