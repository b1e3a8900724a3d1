package main

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/controller/sim"
	"github.com/srg/bleadv/internal/manager"
	"github.com/srg/bleadv/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(`
faults:
  - {op: enable, fault: NACK}
  - {op: disable, fault: reject}
steps:
  - start:
      id: 3
      settings: {mode: low-latency, tx_power: high, connectable: true, timeout: 30}
      advertise:
        service_uuids: ["0000180d-0000-1000-8000-00805f9b34fb"]
        manufacturer_data: "0x4C0002"
        service_data: "0d 18 50"
        include_tx_power: true
      scan_response: {}
  - stop: 3
  - clear: true
  - wait: 15ms
  - sync: true
`))
	require.NoError(t, err)

	assert.Equal(t, []FaultSpec{
		{Op: sim.OpEnable, Fault: FaultKind(sim.FaultNack)},
		{Op: sim.OpDisable, Fault: FaultKind(sim.FaultReject)},
	}, sc.Faults)
	require.Len(t, sc.Steps, 5)

	c := sc.Steps[0].Start.Client()
	assert.Equal(t, 3, c.ID)
	assert.Equal(t, advertise.Settings{
		Mode:           advertise.ModeLowLatency,
		TxPower:        advertise.TxPowerHigh,
		Connectable:    true,
		TimeoutSeconds: 30,
	}, c.Settings)
	require.NotNil(t, c.AdvertiseData)
	assert.Equal(t, []uuid.UUID{uuid.MustParse("0000180d-0000-1000-8000-00805f9b34fb")}, c.AdvertiseData.ServiceUUIDs)
	assert.Equal(t, []byte{0x4C, 0x00, 0x02}, c.AdvertiseData.ManufacturerData)
	assert.Equal(t, []byte{0x0D, 0x18, 0x50}, c.AdvertiseData.ServiceData)
	assert.True(t, c.AdvertiseData.IncludeTxPower)
	assert.NotNil(t, c.ScanResponse)

	require.NotNil(t, sc.Steps[1].Stop)
	assert.Equal(t, 3, *sc.Steps[1].Stop)
	assert.True(t, sc.Steps[2].Clear)
	assert.Equal(t, 15*time.Millisecond, sc.Steps[3].Wait)
	assert.True(t, sc.Steps[4].Sync)
}

func TestParseScenario_ClientWithoutPayloads(t *testing.T) {
	sc, err := ParseScenario([]byte("steps:\n  - start: {id: 1}\n"))
	require.NoError(t, err)

	c := sc.Steps[0].Start.Client()
	assert.Nil(t, c.AdvertiseData)
	assert.Nil(t, c.ScanResponse)
	assert.Equal(t, advertise.ModeLowPower, c.Settings.Mode)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "no steps", yaml: "faults: []", wantErr: "no steps"},
		{name: "two actions", yaml: "steps:\n  - {stop: 1, clear: true}\n", wantErr: "step 1 must have exactly one action"},
		{name: "empty step", yaml: "steps:\n  - start: {id: 1}\n  - {}\n", wantErr: "step 2"},
		{name: "unknown fault", yaml: "faults: [{op: enable, fault: explode}]\nsteps: [{clear: true}]", wantErr: "unknown fault"},
		{name: "unknown op", yaml: "faults: [{op: reboot, fault: nack}]\nsteps: [{clear: true}]", wantErr: "unknown fault op"},
		{name: "bad hex", yaml: "steps:\n  - start: {id: 1, advertise: {manufacturer_data: xyz}}\n", wantErr: "invalid hex"},
		{name: "bad uuid", yaml: "steps:\n  - start: {id: 1, advertise: {service_uuids: [nope]}}\n", wantErr: "invalid"},
		{name: "bad mode", yaml: "steps:\n  - start: {id: 1, settings: {mode: turbo}}\n", wantErr: "turbo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidScenario)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "missing file",
			err:  fmt.Errorf("failed to read scenario: %w", &fs.PathError{Op: "open", Path: "x.yaml", Err: fs.ErrNotExist}),
			want: "file not found: failed to read scenario: open x.yaml: file does not exist",
		},
		{
			name: "invalid config",
			err:  fmt.Errorf("cfg.yaml: %w: queue_size must be positive", config.ErrInvalidConfig),
			want: "configuration error: cfg.yaml: queue_size must be positive",
		},
		{
			name: "invalid scenario",
			err:  fmt.Errorf("%w: no steps", ErrInvalidScenario),
			want: "scenario error: no steps",
		},
		{
			name: "permission denied",
			err:  fmt.Errorf("step 1: %w: not allowed", manager.ErrPermissionDenied),
			want: "advertising request denied: step 1: permission denied: not allowed",
		},
		{
			name: "queue full",
			err:  fmt.Errorf("step 9: %w", manager.ErrQueueFull),
			want: "too many pending advertising requests, increase queue_size",
		},
		{name: "other", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
