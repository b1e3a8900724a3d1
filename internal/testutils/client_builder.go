//go:build test

package testutils

import (
	"github.com/google/uuid"
	"github.com/srg/bleadv/internal/advertise"
)

// ClientBuilder builds advertise clients for tests.
//
//	c := testutils.NewClient(1).
//	    WithMode(advertise.ModeLowLatency).
//	    WithServiceUUID("0000180d-0000-1000-8000-00805f9b34fb").
//	    WithScanResponse(nil).
//	    Build()
type ClientBuilder struct {
	client advertise.Client
}

// NewClient starts a connectable balanced/medium client with an empty
// advertising payload.
func NewClient(id int) *ClientBuilder {
	return &ClientBuilder{client: advertise.Client{
		ID: id,
		Settings: advertise.Settings{
			Mode:        advertise.ModeBalanced,
			TxPower:     advertise.TxPowerMedium,
			Connectable: true,
		},
		AdvertiseData: &advertise.Data{},
	}}
}

func (b *ClientBuilder) WithMode(m advertise.Mode) *ClientBuilder {
	b.client.Settings.Mode = m
	return b
}

func (b *ClientBuilder) WithTxPower(p advertise.TxPower) *ClientBuilder {
	b.client.Settings.TxPower = p
	return b
}

func (b *ClientBuilder) WithConnectable(connectable bool) *ClientBuilder {
	b.client.Settings.Connectable = connectable
	return b
}

func (b *ClientBuilder) WithTimeout(seconds int) *ClientBuilder {
	b.client.Settings.TimeoutSeconds = seconds
	return b
}

// WithServiceUUID adds a service UUID to the advertising payload. It panics
// on a malformed UUID.
func (b *ClientBuilder) WithServiceUUID(s string) *ClientBuilder {
	b.data().ServiceUUIDs = append(b.data().ServiceUUIDs, uuid.MustParse(s))
	return b
}

func (b *ClientBuilder) WithManufacturerData(data []byte) *ClientBuilder {
	b.data().ManufacturerData = data
	return b
}

func (b *ClientBuilder) WithIncludeTxPower() *ClientBuilder {
	b.data().IncludeTxPower = true
	return b
}

// WithoutAdvertiseData clears the advertising payload.
func (b *ClientBuilder) WithoutAdvertiseData() *ClientBuilder {
	b.client.AdvertiseData = nil
	return b
}

// WithScanResponse requests a scan response. A nil d yields an empty one.
func (b *ClientBuilder) WithScanResponse(d *advertise.Data) *ClientBuilder {
	if d == nil {
		d = &advertise.Data{}
	}
	b.client.ScanResponse = d
	return b
}

func (b *ClientBuilder) Build() *advertise.Client {
	c := b.client
	return &c
}

func (b *ClientBuilder) data() *advertise.Data {
	if b.client.AdvertiseData == nil {
		b.client.AdvertiseData = &advertise.Data{}
	}
	return b.client.AdvertiseData
}
