// Package sim implements a simulated multi-instance advertising controller.
//
// Commands are accepted synchronously and acknowledged asynchronously from a
// dedicated delivery goroutine, in the order they were issued. Each command is
// rendered to its HCI packets and kept in a trace for inspection.
package sim

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleadv/internal/controller"
	"github.com/srg/bleadv/internal/groutine"
)

// Op identifies a controller command kind.
type Op string

const (
	OpEnable          Op = "enable"
	OpSetData         Op = "set_data"
	OpSetScanResponse Op = "set_scan_response"
	OpDisable         Op = "disable"
)

// Fault is an injected misbehavior applied to the next command of an Op.
type Fault int

const (
	// FaultNack acknowledges the command with AckFailure.
	FaultNack Fault = iota
	// FaultDrop never acknowledges the command.
	FaultDrop
	// FaultReject fails the command synchronously.
	FaultReject
)

// ErrRejected is returned by a command carrying FaultReject.
var ErrRejected = errors.New("command rejected")

// Options configures the simulated controller.
type Options struct {
	MaxInstances int
	AckLatency   time.Duration
	DeviceName   string
	Logger       *logrus.Logger
}

// Record is one issued command as seen by the controller.
type Record struct {
	Op       Op
	ClientID int
	Enable   *controller.EnableParams
	Data     *controller.DataParams
	Packets  [][]byte
}

// Instance is a snapshot of one advertising instance.
type Instance struct {
	Params       controller.EnableParams
	AdvData      []byte
	ScanResponse []byte
}

type ack struct {
	clientID int
	status   controller.AckStatus
	due      time.Time
}

// Controller is a simulated controller. It is safe for concurrent use.
type Controller struct {
	opts   Options
	logger *logrus.Logger

	mu        sync.Mutex
	instances map[int]*Instance
	records   []Record
	faults    map[Op][]Fault
	onAck     controller.AckHandler

	acks   chan ack
	cancel context.CancelFunc
	done   <-chan struct{}
	once   sync.Once
}

var _ controller.Controller = (*Controller)(nil)

// New creates a controller and starts its acknowledgment delivery goroutine.
// Close must be called to release it.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = 5
	}
	if opts.DeviceName == "" {
		opts.DeviceName = "bleadv"
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:      opts,
		logger:    opts.Logger,
		instances: make(map[int]*Instance),
		faults:    make(map[Op][]Fault),
		acks:      make(chan ack, 256),
		cancel:    cancel,
	}
	c.done = groutine.Go(ctx, "sim-controller-acks", c.deliver)
	return c
}

// OnAck registers the acknowledgment handler.
func (c *Controller) OnAck(h controller.AckHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAck = h
}

// Inject queues a fault for the next command of kind op.
// Faults for the same op apply in the order they were injected.
func (c *Controller) Inject(op Op, f Fault) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults[op] = append(c.faults[op], f)
}

// MaxAdvertisingInstances reports the instance count, including the one
// reserved for legacy advertising.
func (c *Controller) MaxAdvertisingInstances() int {
	return c.opts.MaxInstances
}

// Enable creates or reconfigures the instance for clientID and enables it.
func (c *Controller) Enable(clientID int, p controller.EnableParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Record{Op: OpEnable, ClientID: clientID, Enable: &p}, controller.EncodeEnable(p)...)
	fault, faulted := c.nextFault(OpEnable)
	if faulted && fault == FaultReject {
		return fmt.Errorf("enable client %d: %w", clientID, ErrRejected)
	}

	status := controller.AckSuccess
	inst, exists := c.instances[clientID]
	switch {
	case exists:
		inst.Params = p
	case len(c.instances) >= c.opts.MaxInstances-1:
		c.logger.WithField("client_id", clientID).Warn("No free advertising instance")
		status = controller.AckFailure
	default:
		c.instances[clientID] = &Instance{Params: p}
	}

	c.queueAck(clientID, status, fault, faulted)
	return nil
}

// SetAdvertisingData stores the advertising or scan response payload.
func (c *Controller) SetAdvertisingData(clientID int, p controller.DataParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := OpSetData
	if p.ScanResponse {
		op = OpSetScanResponse
	}

	inst, exists := c.instances[clientID]
	txPower := controller.TxPowerMid
	if exists {
		txPower = inst.Params.TxPower
	}

	payload, encErr := controller.BuildPayload(c.opts.DeviceName, txPower, p)
	rec := Record{Op: op, ClientID: clientID, Data: &p}
	if command, err := controller.EncodeAdvertisingData(c.opts.DeviceName, txPower, p); err == nil {
		c.record(rec, command)
	} else {
		c.record(rec)
	}

	fault, faulted := c.nextFault(op)
	if faulted && fault == FaultReject {
		return fmt.Errorf("set data client %d: %w", clientID, ErrRejected)
	}

	status := controller.AckSuccess
	switch {
	case !exists:
		c.logger.WithField("client_id", clientID).Warn("Advertising data for unknown instance")
		status = controller.AckFailure
	case encErr != nil:
		c.logger.WithError(encErr).WithField("client_id", clientID).Warn("Advertising data rejected")
		status = controller.AckFailure
	default:
		if p.ScanResponse {
			inst.ScanResponse = payload
		} else {
			inst.AdvData = payload
		}
	}

	c.queueAck(clientID, status, fault, faulted)
	return nil
}

// Disable disables and releases the instance for clientID.
func (c *Controller) Disable(clientID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(Record{Op: OpDisable, ClientID: clientID}, controller.EncodeDisable()...)
	fault, faulted := c.nextFault(OpDisable)
	if faulted && fault == FaultReject {
		return fmt.Errorf("disable client %d: %w", clientID, ErrRejected)
	}

	status := controller.AckSuccess
	if _, exists := c.instances[clientID]; exists {
		delete(c.instances, clientID)
	} else {
		status = controller.AckFailure
	}

	c.queueAck(clientID, status, fault, faulted)
	return nil
}

// Records returns a copy of the command trace.
func (c *Controller) Records() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

// Ops returns the kinds of all issued commands, in order.
func (c *Controller) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]Op, len(c.records))
	for i, r := range c.records {
		ops[i] = r.Op
	}
	return ops
}

// Instance returns a snapshot of the instance for clientID.
func (c *Controller) Instance(clientID int) (Instance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[clientID]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// Close stops acknowledgment delivery. Pending acknowledgments are dropped.
func (c *Controller) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
	})
}

func (c *Controller) record(r Record, cmds ...controller.Command) {
	for _, command := range cmds {
		pkt, err := controller.Packet(command)
		if err != nil {
			c.logger.WithError(err).Error("Failed to encode HCI command")
			continue
		}
		r.Packets = append(r.Packets, pkt)
		c.logger.WithFields(logrus.Fields{
			"op":        r.Op,
			"client_id": r.ClientID,
			"hci":       hex.EncodeToString(pkt),
		}).Debug("HCI command")
	}
	c.records = append(c.records, r)
}

func (c *Controller) nextFault(op Op) (Fault, bool) {
	queue := c.faults[op]
	if len(queue) == 0 {
		return 0, false
	}
	c.faults[op] = queue[1:]
	return queue[0], true
}

// queueAck must be called with c.mu held.
func (c *Controller) queueAck(clientID int, status controller.AckStatus, fault Fault, faulted bool) {
	if faulted {
		switch fault {
		case FaultDrop:
			c.logger.WithField("client_id", clientID).Debug("Dropping acknowledgment")
			return
		case FaultNack:
			status = controller.AckFailure
		}
	}

	select {
	case c.acks <- ack{clientID: clientID, status: status, due: time.Now().Add(c.opts.AckLatency)}:
	default:
		c.logger.WithField("client_id", clientID).Error("Acknowledgment queue full, dropping")
	}
}

func (c *Controller) deliver(ctx context.Context) {
	c.logger.WithField("goroutine", groutine.Name(ctx)).Trace("Acknowledgment delivery running")
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-c.acks:
			if wait := time.Until(a.due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}

			c.mu.Lock()
			handler := c.onAck
			c.mu.Unlock()
			if handler != nil {
				handler(a.clientID, a.status)
			}
		}
	}
}
