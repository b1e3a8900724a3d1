//go:build test

package testutils

import (
	"sync"
	"time"

	"github.com/srg/bleadv/internal/advertise"
)

// ReportedResult is one start outcome captured by a ResultRecorder.
type ReportedResult struct {
	ClientID int
	Status   advertise.Status
}

// ResultRecorder captures reported start outcomes in arrival order.
// It satisfies the manager's Reporter interface.
type ResultRecorder struct {
	mu      sync.Mutex
	results []ReportedResult
	notify  chan struct{}
}

func NewResultRecorder() *ResultRecorder {
	return &ResultRecorder{notify: make(chan struct{}, 1)}
}

func (r *ResultRecorder) ReportResult(clientID int, status advertise.Status) {
	r.mu.Lock()
	r.results = append(r.results, ReportedResult{ClientID: clientID, Status: status})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Results returns a copy of everything recorded so far.
func (r *ResultRecorder) Results() []ReportedResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ReportedResult(nil), r.results...)
}

// For returns the statuses reported for clientID, in order.
func (r *ResultRecorder) For(clientID int) []advertise.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []advertise.Status
	for _, res := range r.results {
		if res.ClientID == clientID {
			out = append(out, res.Status)
		}
	}
	return out
}

// WaitFor blocks until at least n results were recorded or timeout elapses.
// It returns the results seen so far either way.
func (r *ResultRecorder) WaitFor(n int, timeout time.Duration) []ReportedResult {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if got := r.Results(); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Results()
		}
	}
}
