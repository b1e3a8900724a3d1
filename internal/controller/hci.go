package controller

import (
	"fmt"

	"github.com/go-ble/ble/linux/adv"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// HCI packet indicator for commands (H4 transport).
const hciCommandPacket = 0x01

// EIR data types used when building payloads.
const (
	eirComplete128     = 0x07
	eirTxPower         = 0x0A
	eirServiceData16   = 0x16
	eirManufacturerSpc = 0xFF
)

// Advertising flags set on the primary payload.
const (
	flagGeneralDiscoverable = 0x02
	flagLEOnly              = 0x04
)

// Command is an HCI command able to serialize its parameters.
type Command interface {
	OpCode() int
	Len() int
	Marshal(b []byte) error
}

// Packet frames c as an H4 HCI command packet.
func Packet(c Command) ([]byte, error) {
	op := c.OpCode()
	b := make([]byte, 4+c.Len())
	b[0] = hciCommandPacket
	b[1] = byte(op)
	b[2] = byte(op >> 8)
	b[3] = byte(c.Len())
	if err := c.Marshal(b[4:]); err != nil {
		return nil, fmt.Errorf("marshal opcode 0x%04x: %w", op, err)
	}
	return b, nil
}

// DBm returns the nominal radiated power of the level.
func (l TxPowerLevel) DBm() int8 {
	switch l {
	case TxPowerMin:
		return -21
	case TxPowerLow:
		return -15
	case TxPowerUpper:
		return 1
	default:
		return -7
	}
}

// EncodeEnable renders an enable command as the legacy HCI sequence
// LE Set Advertising Parameters followed by LE Set Advertise Enable.
func EncodeEnable(p EnableParams) []Command {
	return []Command{
		&cmd.LESetAdvertisingParameters{
			AdvertisingIntervalMin: p.MinInterval,
			AdvertisingIntervalMax: p.MaxInterval,
			AdvertisingType:        uint8(p.EventType),
			AdvertisingChannelMap:  p.ChannelMap,
		},
		&cmd.LESetAdvertiseEnable{AdvertisingEnable: 1},
	}
}

// EncodeDisable renders a disable command.
func EncodeDisable() []Command {
	return []Command{&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0}}
}

// EncodeAdvertisingData builds the EIR payload for p and wraps it in the
// matching HCI command. name is used when p.IncludeName is set and txPower
// is the level the instance was enabled with.
func EncodeAdvertisingData(name string, txPower TxPowerLevel, p DataParams) (Command, error) {
	payload, err := BuildPayload(name, txPower, p)
	if err != nil {
		return nil, err
	}

	if p.ScanResponse {
		c := &cmd.LESetScanResponseData{ScanResponseDataLength: uint8(len(payload))}
		copy(c.ScanResponseData[:], payload)
		return c, nil
	}
	c := &cmd.LESetAdvertisingData{AdvertisingDataLength: uint8(len(payload))}
	copy(c.AdvertisingData[:], payload)
	return c, nil
}

// BuildPayload assembles the advertising (or scan response) payload.
// It fails with ErrPayloadTooLarge when the fields do not fit in 31 bytes.
func BuildPayload(name string, txPower TxPowerLevel, p DataParams) ([]byte, error) {
	var fields []adv.Field
	if !p.ScanResponse {
		fields = append(fields, adv.Flags(flagGeneralDiscoverable|flagLEOnly))
	}
	if p.IncludeName && name != "" {
		fields = append(fields, adv.CompleteName(name))
	}
	if p.IncludeTxPower {
		fields = append(fields, field(eirTxPower, []byte{byte(txPower.DBm())}))
	}
	if len(p.ServiceUUIDs) > 0 {
		fields = append(fields, field(eirComplete128, p.ServiceUUIDs))
	}
	if len(p.ServiceData) > 0 {
		fields = append(fields, field(eirServiceData16, p.ServiceData))
	}
	if len(p.ManufacturerData) > 0 {
		fields = append(fields, field(eirManufacturerSpc, p.ManufacturerData))
	}

	pkt, err := adv.NewPacket(fields...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
	}
	return pkt.Bytes(), nil
}

func field(typ byte, b []byte) adv.Field {
	raw := make([]byte, 0, len(b)+2)
	raw = append(raw, byte(len(b)+1), typ)
	return adv.Raw(append(raw, b...))
}
