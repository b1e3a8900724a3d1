package advertise

import (
	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/bleadv/internal/controller"
)

// Advertising intervals per mode, in milliseconds.
const (
	intervalLowPowerMillis   = 1000
	intervalBalancedMillis   = 250
	intervalLowLatencyMillis = 100
)

const (
	// MicrosPerUnit is the controller's timing granularity (0.625ms).
	MicrosPerUnit = 625
	// IntervalDeltaUnits is the slack between the min and max interval
	// handed to the controller for scheduling.
	IntervalDeltaUnits = 10
)

// IntervalMillis returns the advertising interval for m. Unknown modes use
// the low power interval.
func IntervalMillis(m Mode) int {
	switch m {
	case ModeBalanced:
		return intervalBalancedMillis
	case ModeLowLatency:
		return intervalLowLatencyMillis
	default:
		return intervalLowPowerMillis
	}
}

// MillisToUnits converts milliseconds to 0.625ms protocol units.
func MillisToUnits(millis int) int {
	return millis * 1000 / MicrosPerUnit
}

// IntervalUnits returns the min and max advertising interval for m.
func IntervalUnits(m Mode) (minUnits, maxUnits uint16) {
	unit := MillisToUnits(IntervalMillis(m))
	return uint16(unit), uint16(unit + IntervalDeltaUnits)
}

// EventTypeOf picks the advertising event type for c. Directed advertising
// is never produced.
func EventTypeOf(c *Client) controller.EventType {
	if c.Settings.Connectable {
		return controller.EventConnectable
	}
	if c.ScanResponse != nil {
		return controller.EventScannable
	}
	return controller.EventNonConnectable
}

// TxPowerLevelOf maps a power hint to the controller level. Unknown hints
// map to the medium level.
func TxPowerLevelOf(p TxPower) controller.TxPowerLevel {
	switch p {
	case TxPowerUltraLow:
		return controller.TxPowerMin
	case TxPowerLow:
		return controller.TxPowerLow
	case TxPowerHigh:
		return controller.TxPowerUpper
	default:
		return controller.TxPowerMid
	}
}

// EnableParams builds the enable command arguments for c.
func EnableParams(c *Client) controller.EnableParams {
	minUnits, maxUnits := IntervalUnits(c.Settings.Mode)
	return controller.EnableParams{
		MinInterval:    minUnits,
		MaxInterval:    maxUnits,
		EventType:      EventTypeOf(c),
		ChannelMap:     controller.ChannelsAll,
		TxPower:        TxPowerLevelOf(c.Settings.TxPower),
		TimeoutSeconds: c.Settings.TimeoutSeconds,
	}
}

// DataParams builds the set-advertising-data arguments for d.
// The device name is always included and the appearance is always zero.
func DataParams(d *Data, isScanResponse bool) controller.DataParams {
	p := controller.DataParams{
		ScanResponse:     isScanResponse,
		IncludeName:      true,
		Appearance:       0,
		ManufacturerData: []byte{},
		ServiceData:      []byte{},
		ServiceUUIDs:     []byte{},
	}
	if d == nil {
		return p
	}

	p.IncludeTxPower = d.IncludeTxPower
	if d.ManufacturerData != nil {
		p.ManufacturerData = d.ManufacturerData
	}
	if d.ServiceData != nil {
		p.ServiceData = d.ServiceData
	}
	p.ServiceUUIDs = EncodeServiceUUIDs(d.ServiceUUIDs)
	return p
}

// EncodeServiceUUIDs concatenates one 16-byte little-endian record per UUID:
// the least significant 64 bits first, then the most significant 64 bits.
// Repeated UUIDs are encoded once, at their first position.
func EncodeServiceUUIDs(uuids []uuid.UUID) []byte {
	out := make([]byte, 0, len(uuids)*16)
	seen := make(map[uuid.UUID]struct{}, len(uuids))
	for _, u := range uuids {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, ToBLE(u)...)
	}
	return out
}

// ToBLE converts u to the little-endian ble.UUID representation.
func ToBLE(u uuid.UUID) ble.UUID {
	return ble.UUID(ble.Reverse(u[:]))
}
