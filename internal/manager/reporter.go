package manager

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/ringchan"
)

// Reporter delivers the outcome of a start request to whoever issued it.
// It is called once per start request from the serializer goroutine and
// must not block for long.
type Reporter interface {
	ReportResult(clientID int, status advertise.Status)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(clientID int, status advertise.Status)

func (f ReporterFunc) ReportResult(clientID int, status advertise.Status) {
	f(clientID, status)
}

// Reporters fans a result out to every non-nil reporter in order.
func Reporters(rs ...Reporter) Reporter {
	return ReporterFunc(func(clientID int, status advertise.Status) {
		for _, r := range rs {
			if r != nil {
				r.ReportResult(clientID, status)
			}
		}
	})
}

// LogReporter logs every result.
type LogReporter struct {
	Logger *logrus.Logger
}

func (r *LogReporter) ReportResult(clientID int, status advertise.Status) {
	entry := r.Logger.WithFields(logrus.Fields{
		"client_id": clientID,
		"status":    status,
	})
	if status == advertise.StatusSuccess {
		entry.Info("Advertising started")
		return
	}
	entry.Warn("Advertising start failed")
}

// Result is one reported start outcome.
type Result struct {
	ClientID int
	Status   advertise.Status
	At       time.Time
}

// Feed is a Reporter that publishes results on a bounded channel. When the
// consumer falls behind, the oldest results are dropped.
type Feed struct {
	ch *ringchan.RingChannel[Result]
}

// NewFeed creates a Feed buffering up to capacity results.
func NewFeed(capacity int) *Feed {
	return &Feed{ch: ringchan.New[Result](capacity)}
}

func (f *Feed) ReportResult(clientID int, status advertise.Status) {
	f.ch.Send(Result{ClientID: clientID, Status: status, At: time.Now()})
}

// C returns the result channel.
func (f *Feed) C() <-chan Result {
	return f.ch.C()
}

// Reported returns how many results were fed, including dropped ones.
func (f *Feed) Reported() int64 {
	return f.ch.Written()
}

// Dropped returns how many results were discarded.
func (f *Feed) Dropped() int64 {
	return f.ch.Dropped()
}

// Next waits for the next result or until ctx is done.
func (f *Feed) Next(ctx context.Context) (Result, error) {
	select {
	case r := <-f.ch.C():
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
