//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleadv/internal/controller/sim"
	"github.com/stretchr/testify/suite"
)

// SimControllerSuite provides a fresh simulated controller per test.
//
// Basic usage:
//
//	type ManagerSuite struct {
//	    testutils.SimControllerSuite
//	}
//
// Custom controller profile:
//
//	func (s *ManagerSuite) SetupTest() {
//	    s.WithController().WithMaxInstances(2).WithAckLatency(20 * time.Millisecond)
//	    s.SimControllerSuite.SetupTest() // Call parent last to apply configuration
//	}
type SimControllerSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// WaitTimeout bounds waits on asynchronous results.
	WaitTimeout time.Duration

	Controller        *sim.Controller
	ControllerBuilder *SimControllerBuilder
}

func (s *SimControllerSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.WaitTimeout = 2 * time.Second
}

// SetupTest builds the controller from the configured builder, or from
// defaults when none was configured.
func (s *SimControllerSuite) SetupTest() {
	if s.ControllerBuilder == nil {
		s.ControllerBuilder = NewSimControllerBuilder()
	}
	s.Controller = s.ControllerBuilder.WithLogger(s.Logger).Build()
}

// RebuildController replaces the controller with one built from the current
// builder. Use it to reconfigure the controller inside a test method.
func (s *SimControllerSuite) RebuildController() {
	if s.Controller != nil {
		s.Controller.Close()
	}
	s.Controller = s.WithController().WithLogger(s.Logger).Build()
}

func (s *SimControllerSuite) TearDownTest() {
	if s.Controller != nil {
		s.Controller.Close()
	}
	s.Controller = nil
	s.ControllerBuilder = nil
}

// WithController returns the builder for fluent configuration. It must be
// called before the parent SetupTest.
func (s *SimControllerSuite) WithController() *SimControllerBuilder {
	if s.ControllerBuilder == nil {
		s.ControllerBuilder = NewSimControllerBuilder()
	}
	return s.ControllerBuilder
}

// SimControllerBuilder configures a simulated controller.
type SimControllerBuilder struct {
	opts   sim.Options
	faults []injectedFault
}

type injectedFault struct {
	op    sim.Op
	fault sim.Fault
}

// NewSimControllerBuilder starts from five instances and a 1ms ack latency.
func NewSimControllerBuilder() *SimControllerBuilder {
	return &SimControllerBuilder{opts: sim.Options{
		MaxInstances: 5,
		AckLatency:   time.Millisecond,
		DeviceName:   "bleadv-test",
	}}
}

func (b *SimControllerBuilder) WithMaxInstances(n int) *SimControllerBuilder {
	b.opts.MaxInstances = n
	return b
}

func (b *SimControllerBuilder) WithAckLatency(d time.Duration) *SimControllerBuilder {
	b.opts.AckLatency = d
	return b
}

func (b *SimControllerBuilder) WithDeviceName(name string) *SimControllerBuilder {
	b.opts.DeviceName = name
	return b
}

func (b *SimControllerBuilder) WithLogger(l *logrus.Logger) *SimControllerBuilder {
	b.opts.Logger = l
	return b
}

// WithFault injects f for the next command of kind op.
func (b *SimControllerBuilder) WithFault(op sim.Op, f sim.Fault) *SimControllerBuilder {
	b.faults = append(b.faults, injectedFault{op: op, fault: f})
	return b
}

func (b *SimControllerBuilder) Build() *sim.Controller {
	c := sim.New(b.opts)
	for _, f := range b.faults {
		c.Inject(f.op, f.fault)
	}
	return c
}
