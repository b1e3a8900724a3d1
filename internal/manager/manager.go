// Package manager serializes advertising requests from many callers onto a
// single controller.
//
// Callers enqueue start and stop requests from any goroutine. One worker
// goroutine executes them strictly in arrival order, one at a time, and is
// the only code that touches the client registry or issues controller
// commands. Each start is a transactional sequence of controller round trips
// (enable, advertising data, optional scan response), each bounded by the
// operation timeout; stop is fire-and-forget.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/completion"
	"github.com/srg/bleadv/internal/controller"
	"github.com/srg/bleadv/internal/groutine"
	"github.com/srg/bleadv/internal/registry"
)

// Manager lifecycle states.
const (
	StateNotRunning uint32 = iota
	StateRunning
	StateStopping
)

// Controller sequence steps, as reported in StepError.
const (
	StepEnable          = "enable"
	StepSetData         = "set advertising data"
	StepSetScanResponse = "set scan response"
	StepDisable         = "disable"
)

// Op is the kind of request an Authorizer is asked about.
type Op string

const (
	OpStart Op = "start"
	OpStop  Op = "stop"
)

// Authorizer checks whether the caller may act on client. A non-nil error
// rejects the request before it is queued.
type Authorizer interface {
	Authorize(ctx context.Context, op Op, client *advertise.Client) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, op Op, client *advertise.Client) error

func (f AuthorizerFunc) Authorize(ctx context.Context, op Op, client *advertise.Client) error {
	return f(ctx, op, client)
}

// Options configures a Manager.
type Options struct {
	// OperationTimeout bounds each controller round trip.
	OperationTimeout time.Duration
	// QueueSize bounds the number of queued requests.
	QueueSize uint32
	// ConfirmStop makes stop wait for the disable acknowledgment.
	ConfirmStop bool
	// DisableOnPartialStart disables the instance when a start fails after
	// the controller took the enable command: the enable acknowledgment
	// failed or timed out, or a data step failed.
	DisableOnPartialStart bool
	// OrphanAckWindow is how long a timed out or unawaited command keeps
	// claiming the next acknowledgment of its client. Zero uses
	// orphanWindowFactor times OperationTimeout.
	OrphanAckWindow time.Duration
	Authorizer      Authorizer
	Logger          *logrus.Logger
}

const orphanWindowFactor = 4

// DefaultOptions returns the reference timing and queue depth.
func DefaultOptions() *Options {
	return &Options{
		OperationTimeout: 500 * time.Millisecond,
		QueueSize:        64,
	}
}

type requestKind int

const (
	requestStart requestKind = iota
	requestStop
	requestClear
	requestFlush
)

func (k requestKind) String() string {
	switch k {
	case requestStart:
		return "start"
	case requestStop:
		return "stop"
	case requestClear:
		return "clear"
	default:
		return "flush"
	}
}

type request struct {
	kind   requestKind
	client *advertise.Client
	done   chan struct{}
}

// Manager coordinates advertising sessions against one controller.
type Manager struct {
	ctrl     controller.Controller
	reporter Reporter
	opts     Options
	logger   *logrus.Logger

	bridge   *completion.Bridge
	registry *registry.Registry

	queue  mpmc.RingBuffer[request]
	queued atomic.Int64
	wake   chan struct{}

	lifeMu sync.RWMutex
	state  atomic.Uint32
	stop   chan struct{}
	done   <-chan struct{}
}

// New creates a manager for ctrl reporting start outcomes to reporter.
// Call Open to start processing requests.
func New(ctrl controller.Controller, reporter Reporter, opts *Options) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = DefaultOptions().OperationTimeout
	}
	if o.QueueSize == 0 {
		o.QueueSize = DefaultOptions().QueueSize
	}
	if o.OrphanAckWindow <= 0 {
		o.OrphanAckWindow = orphanWindowFactor * o.OperationTimeout
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if reporter == nil {
		reporter = &LogReporter{Logger: o.Logger}
	}

	return &Manager{
		ctrl:     ctrl,
		reporter: reporter,
		opts:     o,
		logger:   o.Logger,
		bridge:   completion.New(completion.WithOrphanWindow(o.OrphanAckWindow)),
		registry: registry.New(),
		queue:    mpmc.New[request](o.QueueSize),
		wake:     make(chan struct{}, 1),
	}
}

// Open starts the serializer goroutine.
func (m *Manager) Open() error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	switch m.state.Load() {
	case StateRunning:
		return ErrAlreadyRunning
	case StateStopping:
		return fmt.Errorf("advertise manager is stopping, wait for it to finish")
	}

	m.stop = make(chan struct{})
	m.done = groutine.Go(context.Background(), "advertise-serializer", m.run)
	m.state.Store(StateRunning)

	m.logger.WithFields(logrus.Fields{
		"timeout":    m.opts.OperationTimeout,
		"queue_size": m.opts.QueueSize,
	}).Debug("Advertise manager started")
	return nil
}

// Close stops the serializer and waits for it to exit. Start requests still
// queued are reported as internal errors; queued stops are dropped.
func (m *Manager) Close() error {
	m.lifeMu.Lock()
	if m.state.Load() != StateRunning {
		m.lifeMu.Unlock()
		return nil
	}
	m.state.Store(StateStopping)
	close(m.stop)
	done := m.done
	m.lifeMu.Unlock()

	<-done

	m.state.Store(StateNotRunning)
	m.logger.Debug("Advertise manager stopped")
	return nil
}

// State returns the lifecycle state.
func (m *Manager) State() uint32 {
	return m.state.Load()
}

// StartAdvertising queues a start request for client. The outcome is
// delivered later through the Reporter.
func (m *Manager) StartAdvertising(ctx context.Context, client *advertise.Client) error {
	return m.submit(ctx, request{kind: requestStart, client: client})
}

// StopAdvertising queues a stop request for client. Stopping a client that
// is not active is a no-op.
func (m *Manager) StopAdvertising(ctx context.Context, client *advertise.Client) error {
	return m.submit(ctx, request{kind: requestStop, client: client})
}

// Clear queues removal of every active client from the registry. No
// controller commands are issued.
func (m *Manager) Clear(ctx context.Context) error {
	return m.submit(ctx, request{kind: requestClear})
}

// Flush waits until every request queued before it has been processed.
func (m *Manager) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := m.submit(ctx, request{kind: requestFlush, done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnControllerAck routes a controller acknowledgment to the pending command.
// It may be called from any goroutine. Acknowledgments nobody is waiting for,
// including late ones of timed out commands, are dropped.
func (m *Manager) OnControllerAck(clientID int, status controller.AckStatus) {
	if m.bridge.Resolve(clientID, status) {
		return
	}

	entry := m.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"status":    status,
	})
	if status == controller.AckFailure {
		entry.Warn("Dropping stale controller failure")
		return
	}
	entry.Debug("Dropping stale controller acknowledgment")
}

// Active returns the ids of the active clients.
func (m *Manager) Active() []int {
	return m.registry.IDs()
}

// IsActive reports whether clientID is advertising.
func (m *Manager) IsActive(clientID int) bool {
	return m.registry.Contains(clientID)
}

// Pending returns the number of queued requests.
func (m *Manager) Pending() int {
	return int(m.queued.Load())
}

func (m *Manager) submit(ctx context.Context, req request) error {
	if req.kind == requestStart || req.kind == requestStop {
		if req.client == nil {
			return ErrNilClient
		}
		if err := m.authorize(ctx, req); err != nil {
			return err
		}
	}

	m.lifeMu.RLock()
	defer m.lifeMu.RUnlock()

	if m.state.Load() != StateRunning {
		return ErrNotRunning
	}
	if err := m.queue.Enqueue(req); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueFull, err)
	}
	m.queued.Add(1)

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

func (m *Manager) authorize(ctx context.Context, req request) error {
	if m.opts.Authorizer == nil {
		return nil
	}
	op := OpStart
	if req.kind == requestStop {
		op = OpStop
	}
	if err := m.opts.Authorizer.Authorize(ctx, op, req.client); err != nil {
		m.logger.WithFields(logrus.Fields{
			"client_id": req.client.ID,
			"op":        op,
		}).WithError(err).Warn("Advertise request denied")
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context) {
	log := m.logger.WithField("goroutine", groutine.Name(ctx))
	log.Trace("Serializer running")

	for {
		select {
		case <-m.stop:
			log.WithField("queued", m.queued.Load()).Trace("Serializer draining")
			m.drain()
			return
		case <-m.wake:
			for !m.stopping() {
				req, ok := m.dequeue()
				if !ok {
					break
				}
				m.handle(req)
			}
		}
	}
}

func (m *Manager) stopping() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

func (m *Manager) dequeue() (request, bool) {
	req, err := m.queue.Dequeue()
	if err != nil {
		return request{}, false
	}
	m.queued.Add(-1)
	return req, true
}

func (m *Manager) drain() {
	for {
		req, ok := m.dequeue()
		if !ok {
			return
		}
		switch req.kind {
		case requestFlush:
			close(req.done)
			continue
		case requestStop, requestClear:
			m.logger.WithField("op", req.kind).Debug("Dropping queued request on shutdown")
			continue
		}
		m.logger.WithField("client_id", req.client.ID).Warn("Manager closed before start was processed")
		m.reporter.ReportResult(req.client.ID, advertise.StatusInternalError)
	}
}

func (m *Manager) handle(req request) {
	switch req.kind {
	case requestStart:
		m.handleStart(req.client)
	case requestStop:
		m.handleStop(req.client)
	case requestClear:
		m.logger.WithField("count", m.registry.Len()).Debug("Clearing advertise clients")
		m.registry.Clear()
	case requestFlush:
		close(req.done)
	}
}

func (m *Manager) handleStart(c *advertise.Client) {
	log := m.logger.WithField("client_id", c.ID)

	if m.registry.Contains(c.ID) {
		log.Debug("Client already advertising")
		m.reporter.ReportResult(c.ID, advertise.StatusAlreadyStarted)
		return
	}

	capacity := registry.Capacity(m.ctrl.MaxAdvertisingInstances())
	if m.registry.Len() >= capacity {
		log.WithFields(logrus.Fields{
			"active":   m.registry.Len(),
			"capacity": capacity,
		}).Debug("No advertising instance available")
		m.reporter.ReportResult(c.ID, advertise.StatusTooManyAdvertisers)
		return
	}

	start := time.Now()
	if err := m.startSequence(c); err != nil {
		log.WithError(err).WithField("elapsed", time.Since(start)).Warn("Start advertising failed")
		m.reporter.ReportResult(c.ID, advertise.StatusInternalError)
		return
	}

	m.registry.Add(c)
	log.WithField("elapsed", time.Since(start)).Debug("Client advertising")
	m.reporter.ReportResult(c.ID, advertise.StatusSuccess)
}

// startSequence issues enable, advertising data and, when requested, scan
// response data, stopping at the first failure.
func (m *Manager) startSequence(c *advertise.Client) error {
	enable := advertise.EnableParams(c)
	if err := m.roundTrip(c.ID, StepEnable, func() error {
		return m.ctrl.Enable(c.ID, enable)
	}); err != nil {
		// The controller took the command; the instance may be enabled.
		if errors.Is(err, ErrAckTimeout) || errors.Is(err, ErrAckFailure) {
			m.compensate(c.ID)
		}
		return err
	}

	steps := []struct {
		name string
		data controller.DataParams
	}{
		{name: StepSetData, data: advertise.DataParams(c.AdvertiseData, false)},
	}
	if c.ScanResponse != nil {
		steps = append(steps, struct {
			name string
			data controller.DataParams
		}{name: StepSetScanResponse, data: advertise.DataParams(c.ScanResponse, true)})
	}

	for _, step := range steps {
		data := step.data
		if err := m.roundTrip(c.ID, step.name, func() error {
			return m.ctrl.SetAdvertisingData(c.ID, data)
		}); err != nil {
			m.compensate(c.ID)
			return err
		}
	}
	return nil
}

// compensate disables an instance left enabled by a failed start when
// DisableOnPartialStart is set.
func (m *Manager) compensate(clientID int) {
	if !m.opts.DisableOnPartialStart {
		return
	}
	if err := m.disableUnawaited(clientID); err != nil {
		m.logger.WithField("client_id", clientID).WithError(err).Warn("Compensating disable failed")
	}
}

// disableUnawaited issues Disable without waiting for its acknowledgment.
func (m *Manager) disableUnawaited(clientID int) error {
	m.bridge.Abandon(clientID)
	if err := m.ctrl.Disable(clientID); err != nil {
		m.bridge.Reclaim(clientID)
		return err
	}
	return nil
}

func (m *Manager) handleStop(c *advertise.Client) {
	log := m.logger.WithField("client_id", c.ID)

	active, ok := m.registry.Get(c.ID)
	if !ok {
		log.Debug("Stop for inactive client ignored")
		return
	}
	log = log.WithField("mode", active.Settings.Mode)

	if m.opts.ConfirmStop {
		if err := m.roundTrip(c.ID, StepDisable, func() error {
			return m.ctrl.Disable(c.ID)
		}); err != nil {
			log.WithError(err).Warn("Disable not confirmed")
		}
	} else if err := m.disableUnawaited(c.ID); err != nil {
		log.WithError(err).Warn("Disable failed")
	}

	m.registry.Remove(c.ID)
	log.Debug("Client stopped")
}

// roundTrip arms the completion bridge, issues one controller command and
// waits for its acknowledgment.
func (m *Manager) roundTrip(clientID int, step string, issue func() error) error {
	tok := m.bridge.Reset(clientID)

	if err := issue(); err != nil {
		m.bridge.Release(tok)
		return &StepError{Step: step, ClientID: clientID, Err: err}
	}

	status, ok := m.bridge.Await(tok, m.opts.OperationTimeout)
	switch {
	case !ok:
		m.logger.WithFields(logrus.Fields{
			"client_id": clientID,
			"step":      step,
			"token":     tok.Seq(),
			"orphans":   m.bridge.Orphans(clientID),
		}).Debug("Controller acknowledgment timed out")
		return &StepError{Step: step, ClientID: clientID, Err: ErrAckTimeout}
	case status != controller.AckSuccess:
		return &StepError{Step: step, ClientID: clientID, Err: ErrAckFailure}
	}

	m.logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"step":      step,
		"token":     tok.Seq(),
	}).Trace("Controller acknowledged")
	return nil
}
