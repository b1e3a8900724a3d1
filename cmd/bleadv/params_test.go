//go:build test

package main

import (
	"strings"
	"testing"

	"github.com/srg/bleadv/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ParamsTestSuite struct {
	CommandTestSuite
}

func (s *ParamsTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	paramsMode = "low_power"
	paramsTxPower = "medium"
	paramsConnectable = false
	paramsTimeout = 0
	paramsManufacturer = ""
	paramsServiceData = ""
	paramsIncludeTxPower = false
	paramsScanResponse = false
	paramsFormat = ""
}

func (s *ParamsTestSuite) TestJSON() {
	// GOAL: params renders the translated controller parameters and HCI packets in issue order
	//
	// TEST SCENARIO: balanced/high connectable with manufacturer data → JSON → values and packets match the encoding

	out, err := s.ExecuteCommand("params",
		"--mode", "balanced", "--tx-power", "high", "--connectable",
		"--manufacturer", "4c:00:02", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"mode": "balanced",
		"interval_ms": 250,
		"interval_min_units": 400,
		"interval_max_units": 410,
		"event_type": "connectable",
		"channel_map": "0x07",
		"tx_power_level": 3,
		"tx_power_dbm": 1,
		"timeout_s": 0,
		"adv_data": "0201060709626c6561647604ff4c0002",
		"hci": [
			"0106200f90019a010000000000000000000700",
			"010a200101",
			"01082020100201060709626c6561647604ff4c0002000000000000000000000000000000"
		]
	}`)

	// Keys keep issue order.
	s.Less(strings.Index(out, `"mode"`), strings.Index(out, `"interval_ms"`))
	s.Less(strings.Index(out, `"adv_data"`), strings.Index(out, `"hci"`))
}

func (s *ParamsTestSuite) TestScanResponseMakesNonConnectableScannable() {
	out, err := s.ExecuteCommand("params", "--scan-response", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoreExtraKeys(true)).
		Assert(out, `{
			"mode": "low_power",
			"interval_min_units": 1600,
			"interval_max_units": 1610,
			"event_type": "scannable",
			"adv_data": "0201060709626c65616476",
			"scan_response": "0709626c65616476"
		}`)
}

func (s *ParamsTestSuite) TestTable() {
	out, err := s.ExecuteCommand("params", "--mode", "low_latency", "--uuid", "180d")
	s.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().GreaterOrEqual(len(lines), 11)
	s.Equal([]string{"mode", "low_latency"}, strings.Fields(lines[0]))
	s.Equal([]string{"interval_min_units", "160"}, strings.Fields(lines[2]))
	s.Equal([]string{"event_type", "non_connectable"}, strings.Fields(lines[4]))
	// 180d expands on the base UUID, stored little-endian.
	s.Contains(out, "fb349b5f80000080001000000d180000")
	// Continuation packets have no key.
	s.Equal([]string{"010a200101"}, strings.Fields(lines[len(lines)-2]))
}

func (s *ParamsTestSuite) TestInvalidFlags() {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "mode", args: []string{"--mode", "turbo"}, wantErr: "turbo"},
		{name: "tx power", args: []string{"--tx-power", "max"}, wantErr: "max"},
		{name: "uuid", args: []string{"--uuid", "xyz"}, wantErr: "invalid service UUID"},
		{name: "manufacturer hex", args: []string{"--manufacturer", "zz"}, wantErr: "invalid hex"},
		{name: "payload too large", args: []string{"--uuid", "180d", "--uuid", "180f"}, wantErr: "adv_data"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			_, err := s.ExecuteCommand(append([]string{"params"}, tt.args...)...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.wantErr)
		})
	}
}

func TestParamsTestSuite(t *testing.T) {
	suite.Run(t, new(ParamsTestSuite))
}
