//go:build test

package main

import (
	"context"
	"testing"

	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/testutils"
	"github.com/srg/bleadv/pkg/config"
	"github.com/stretchr/testify/suite"
)

type RunTestSuite struct {
	CommandTestSuite
}

func (s *RunTestSuite) SetupTest() {
	s.CommandTestSuite.SetupTest()
	runFormat = ""
	runTrace = false
}

func (s *RunTestSuite) TestCapacityScenarioTable() {
	// GOAL: The capacity scenario reports every start in order and leaves the partial start's instance occupied
	//
	// TEST SCENARIO: run capacity.yaml with default policy → golden table → client 7 cannot get an instance

	expected, err := testutils.LoadFixture("cmd/bleadv/testdata/capacity.golden")
	s.Require().NoError(err)

	out, err := s.ExecuteCommand("run", "testdata/capacity.yaml", "--config", "testdata/fast.yaml")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, expected)
}

func (s *RunTestSuite) TestCapacityScenarioJSONWithCompensation() {
	// GOAL: With disable_on_partial_start the failed client's instance is released
	//
	// TEST SCENARIO: run capacity.yaml as JSON with compensation on → client 7 succeeds → active includes 7

	cfg := s.WriteFile("bleadv.yaml", `
operation_timeout: 50ms
disable_on_partial_start: true
controller:
  ack_latency: 1ms
`)
	out, err := s.ExecuteCommand("run", "testdata/capacity.yaml", "--config", cfg, "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoredFields("at")).
		Assert(out, `{
			"results": [
				{"client_id": 1, "status": "success"},
				{"client_id": 2, "status": "success"},
				{"client_id": 3, "status": "success"},
				{"client_id": 4, "status": "success"},
				{"client_id": 5, "status": "too_many_advertisers"},
				{"client_id": 2, "status": "already_started"},
				{"client_id": 6, "status": "internal_error"},
				{"client_id": 7, "status": "success"}
			],
			"active": [1, 2, 4, 7]
		}`)
}

func (s *RunTestSuite) TestTraceShowsHCIPackets() {
	scenario := s.WriteFile("scenario.yaml", `
steps:
  - start: {id: 1}
  - stop: 1
`)
	out, err := s.ExecuteCommand("run", scenario, "--config", "testdata/fast.yaml", "--trace", "--format", "json")
	s.Require().NoError(err)

	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoredFields("at"), testutils.WithIgnoreExtraKeys(true)).
		Assert(out, `{
			"results": [{"client_id": 1, "status": "success"}],
			"active": [],
			"trace": [
				{"op": "enable", "client_id": 1, "hci": ["0106200f40064a060300000000000000000700", "010a200101"]},
				{"op": "set_data", "client_id": 1},
				{"op": "disable", "client_id": 1, "hci": ["010a200100"]}
			]
		}`)
}

func (s *RunTestSuite) TestInvalidInputs() {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "missing scenario",
			args:    []string{"run", "testdata/nope.yaml"},
			wantErr: "no such file",
		},
		{
			name:    "bad format",
			args:    []string{"run", "testdata/capacity.yaml", "--format", "xml"},
			wantErr: "invalid format 'xml'",
		},
		{
			name:    "bad log level",
			args:    []string{"run", "testdata/capacity.yaml", "--log-level", "loud"},
			wantErr: "invalid log level",
		},
		{
			name:    "no scenario argument",
			args:    []string{"run"},
			wantErr: "accepts 1 arg(s)",
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			_, err := s.ExecuteCommand(tt.args...)
			s.Require().Error(err)
			s.Contains(err.Error(), tt.wantErr)
		})
	}
}

func (s *RunTestSuite) TestRunScenarioSyncOrdersResults() {
	sc, err := ParseScenario([]byte(`
steps:
  - start: {id: 1}
  - sync: true
  - clear: true
  - start: {id: 1}
  - wait: 5ms
`))
	s.Require().NoError(err)

	cfg := config.DefaultConfig()
	cfg.Controller.AckLatency = 0
	report, err := runScenario(context.Background(), cfg, testutils.QuietLogger(), sc)
	s.Require().NoError(err)

	s.Require().Len(report.Results, 2)
	s.Equal(advertise.StatusSuccess, report.Results[0].Status)
	s.Equal(advertise.StatusSuccess, report.Results[1].Status, "clear forgets the client without disabling it")
	s.Equal([]int{1}, report.Active)
	s.Zero(report.Dropped)
}

func TestRunTestSuite(t *testing.T) {
	suite.Run(t, new(RunTestSuite))
}
