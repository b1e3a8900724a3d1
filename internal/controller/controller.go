package controller

import (
	"errors"
	"fmt"
)

// EventType is the advertising PDU type requested from the controller.
// Values match the HCI LE Set Advertising Parameters advertising type.
type EventType uint8

const (
	EventConnectable    EventType = 0 // ADV_IND
	EventScannable      EventType = 2 // ADV_SCAN_IND
	EventNonConnectable EventType = 3 // ADV_NONCONN_IND
)

func (e EventType) String() string {
	switch e {
	case EventConnectable:
		return "connectable"
	case EventScannable:
		return "scannable"
	case EventNonConnectable:
		return "non_connectable"
	default:
		return fmt.Sprintf("event_type(%d)", uint8(e))
	}
}

// TxPowerLevel is the controller's discrete transmit power level.
type TxPowerLevel uint8

const (
	TxPowerMin   TxPowerLevel = 0
	TxPowerLow   TxPowerLevel = 1
	TxPowerMid   TxPowerLevel = 2
	TxPowerUpper TxPowerLevel = 3
)

// Primary advertising channels.
const (
	Channel37   uint8 = 1 << 0
	Channel38   uint8 = 1 << 1
	Channel39   uint8 = 1 << 2
	ChannelsAll       = Channel37 | Channel38 | Channel39
)

// EnableParams are the arguments of an enable command.
// Intervals are expressed in 0.625ms units.
type EnableParams struct {
	MinInterval    uint16
	MaxInterval    uint16
	EventType      EventType
	ChannelMap     uint8
	TxPower        TxPowerLevel
	TimeoutSeconds int
}

// DataParams are the arguments of a set-advertising-data command.
// ServiceUUIDs holds concatenated 16-byte little-endian records.
type DataParams struct {
	ScanResponse     bool
	IncludeName      bool
	IncludeTxPower   bool
	Appearance       uint16
	ManufacturerData []byte
	ServiceData      []byte
	ServiceUUIDs     []byte
}

// AckStatus is the outcome a controller reports for the last issued command.
type AckStatus int

const (
	AckSuccess AckStatus = iota
	AckFailure
)

func (s AckStatus) String() string {
	if s == AckSuccess {
		return "success"
	}
	return "failure"
}

// AckHandler receives controller acknowledgments. It is called from
// controller goroutines, never from the goroutine that issued the command.
type AckHandler func(clientID int, status AckStatus)

// Controller is the radio controller as seen by the advertising manager.
// Commands return once issued; their outcome arrives later through the
// AckHandler registered with the implementation.
type Controller interface {
	MaxAdvertisingInstances() int
	Enable(clientID int, p EnableParams) error
	SetAdvertisingData(clientID int, p DataParams) error
	Disable(clientID int) error
}

// Controller errors
var (
	ErrPayloadTooLarge = errors.New("advertising payload too large")
	ErrUnknownInstance = errors.New("unknown advertising instance")
	ErrNoInstances     = errors.New("no free advertising instance")
)
