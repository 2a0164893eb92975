package conflict

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/models"
)

// LookaheadWindow bounds how far ahead of now the Poller lists meetings.
const LookaheadWindow = 24 * time.Hour

// AlertFunc receives the alert and the evaluation snapshot that raised it.
type AlertFunc func(alert models.Alert, snap Snapshot)

// Poller runs the Detector on a fixed cadence against the Meeting Store.
// Its Poll method is the job body handed to the scheduler.
type Poller struct {
	detector *Detector
	store    calendar.MeetingStore
	onAlert  AlertFunc
	now      func() time.Time

	// inFlight guards against overlapping polls when a slow store call
	// outlasts the cadence.
	inFlight atomic.Bool
}

// NewPoller creates a Poller. onAlert fires once per newly raised alert and
// may be nil. nowFn defaults to time.Now.
func NewPoller(detector *Detector, store calendar.MeetingStore, onAlert AlertFunc, nowFn func() time.Time) *Poller {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Poller{detector: detector, store: store, onAlert: onAlert, now: nowFn}
}

// Poll performs one evaluation cycle. A cycle already in flight causes the
// call to return immediately.
func (p *Poller) Poll(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Debug("Poller.Poll skipped, previous cycle still in flight")
		return
	}
	defer p.inFlight.Store(false)

	now := p.now()
	meetings, err := p.store.List(ctx, now, now.Add(LookaheadWindow))
	if err != nil {
		slog.Error("Poller.Poll failed to list meetings", "error", err)
		return
	}

	snap, err := p.detector.Evaluate(ctx, meetings, now)
	if err != nil {
		slog.Error("Poller.Poll evaluation failed", "error", err)
		return
	}
	if snap.Raised && p.onAlert != nil {
		p.onAlert(*snap.Alert, snap)
	}
}
