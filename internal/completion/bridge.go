// Package completion turns asynchronous controller acknowledgments into a
// bounded synchronous wait for the goroutine issuing commands.
//
// A Bridge holds at most one armed Token. The issuer arms a token right before
// sending a command and awaits it; acknowledgments from any goroutine resolve
// the armed token only if it belongs to the acknowledged client.
//
// Acknowledgments arrive in issue order. A command nobody waits for, because
// its wait timed out or it was issued with Abandon, leaves an orphan entry
// for its client; the next acknowledgment for that client consumes the entry
// and is dropped instead of resolving a later wait. Orphans expire after the
// bridge's orphan window so a lost acknowledgment cannot swallow acks forever.
package completion

import (
	"sync"
	"time"

	"github.com/srg/bleadv/internal/controller"
)

// Token is a one-shot completion for a single issued command.
type Token struct {
	seq      uint64
	clientID int
	done     chan struct{}
	once     sync.Once
	status   controller.AckStatus
}

// Seq returns the token's sequence number, unique per Bridge.
func (t *Token) Seq() uint64 { return t.seq }

// ClientID returns the client the awaited command was issued for.
func (t *Token) ClientID() int { return t.clientID }

func (t *Token) resolve(status controller.AckStatus) bool {
	resolved := false
	t.once.Do(func() {
		t.status = status
		close(t.done)
		resolved = true
	})
	return resolved
}

// Bridge is the single-slot hand-off between the command issuer and the
// acknowledgment callbacks. All methods are safe for concurrent use.
type Bridge struct {
	mu      sync.Mutex
	seq     uint64
	pending *Token

	// orphans holds, per client, the expiry of every unawaited command in
	// issue order. A zero expiry never expires.
	orphans   map[int][]time.Time
	orphanTTL time.Duration
	now       func() time.Time
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithOrphanWindow bounds how long an unawaited command keeps claiming the
// next acknowledgment of its client. Zero keeps orphans until acknowledged.
func WithOrphanWindow(d time.Duration) Option {
	return func(b *Bridge) { b.orphanTTL = d }
}

// New creates an empty bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		orphans: make(map[int][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Reset arms a fresh token for clientID, discarding any armed one.
func (b *Bridge) Reset(clientID int) *Token {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	t := &Token{
		seq:      b.seq,
		clientID: clientID,
		done:     make(chan struct{}),
	}
	b.pending = t
	return t
}

// Await blocks until t is resolved or timeout elapses. ok is false on timeout.
// The slot is disarmed before returning either way. A timed out command
// becomes an orphan of its client.
func (b *Bridge) Await(t *Token, timeout time.Duration) (status controller.AckStatus, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-t.done:
		b.Release(t)
		return t.status, true
	case <-timer.C:
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Resolved between the timer firing and taking the lock.
	select {
	case <-t.done:
		if b.pending == t {
			b.pending = nil
		}
		return t.status, true
	default:
	}

	if b.pending == t {
		b.pending = nil
		b.addOrphanLocked(t.clientID)
	}
	return controller.AckFailure, false
}

// Resolve completes the armed token if it was issued for clientID.
// It returns false, and does nothing else, when the acknowledgment belongs to
// an orphaned command of clientID or no token for clientID is armed.
func (b *Bridge) Resolve(clientID int, status controller.AckStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.takeOrphanLocked(clientID) {
		return false
	}

	t := b.pending
	if t == nil || t.clientID != clientID {
		return false
	}
	return t.resolve(status)
}

// Abandon records a command for clientID about to be issued without a
// waiter. Its acknowledgment will be dropped.
func (b *Bridge) Abandon(clientID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addOrphanLocked(clientID)
}

// Reclaim undoes the latest Abandon for clientID. Used when the command
// failed to issue and will never be acknowledged.
func (b *Bridge) Reclaim(clientID int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.orphans[clientID]
	switch len(queue) {
	case 0:
	case 1:
		delete(b.orphans, clientID)
	default:
		b.orphans[clientID] = queue[:len(queue)-1]
	}
}

// Orphans returns the number of unexpired unawaited commands of clientID.
func (b *Bridge) Orphans(clientID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(clientID)
	return len(b.orphans[clientID])
}

func (b *Bridge) addOrphanLocked(clientID int) {
	var expiry time.Time
	if b.orphanTTL > 0 {
		expiry = b.now().Add(b.orphanTTL)
	}
	b.orphans[clientID] = append(b.orphans[clientID], expiry)
}

func (b *Bridge) takeOrphanLocked(clientID int) bool {
	b.expireLocked(clientID)
	queue := b.orphans[clientID]
	if len(queue) == 0 {
		return false
	}
	if len(queue) == 1 {
		delete(b.orphans, clientID)
	} else {
		b.orphans[clientID] = queue[1:]
	}
	return true
}

// expireLocked drops the leading expired orphans of clientID. Orphans are
// appended in time order, so the expired ones form a prefix.
func (b *Bridge) expireLocked(clientID int) {
	queue := b.orphans[clientID]
	now := b.now()
	i := 0
	for i < len(queue) && !queue[i].IsZero() && now.After(queue[i]) {
		i++
	}
	switch {
	case i == 0:
	case i == len(queue):
		delete(b.orphans, clientID)
	default:
		b.orphans[clientID] = queue[i:]
	}
}

// Armed reports whether a token is currently awaiting resolution.
func (b *Bridge) Armed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending != nil
}

// Release disarms t if it is still the armed token. Used when a command
// fails to issue and will never be acknowledged.
func (b *Bridge) Release(t *Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == t {
		b.pending = nil
	}
}
