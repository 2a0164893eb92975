// Package conflict implements travel-conflict detection between the meeting
// currently underway and the next meeting on the calendar.
//
// The Detector evaluates a meeting list against the current instant and
// raises at most one Open alert per conflict window. The Poller drives the
// Detector on a fixed cadence from the scheduler.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andee-ai/andee/internal/models"
)

// DefaultBufferMinutes is the safety margin added to travel time when
// deciding whether a conflict exists.
const DefaultBufferMinutes = 5

// TravelEstimator supplies the travel time between two meeting locations.
type TravelEstimator interface {
	// Estimate returns the travel time in minutes from one location to another.
	Estimate(ctx context.Context, from, to string) (int, error)
}

// StaticEstimator returns a fixed travel time regardless of locations.
// It is the default estimator and the one used in tests.
type StaticEstimator struct {
	Minutes int
}

// Estimate implements TravelEstimator.
func (e StaticEstimator) Estimate(ctx context.Context, from, to string) (int, error) {
	return e.Minutes, nil
}

// Snapshot is the result of one Detector evaluation.
type Snapshot struct {
	// Current is the meeting underway at evaluation time, if any.
	Current *models.Meeting
	// Next is the earliest meeting starting after evaluation time, if any.
	Next *models.Meeting
	// Alert is the Open alert, whether raised on this evaluation or earlier.
	Alert *models.Alert
	// Raised reports whether Alert was created by this evaluation.
	Raised bool
}

// Opts holds configuration options for the Detector.
type Opts struct {
	BufferMinutes int
	Estimator     TravelEstimator
}

// Option configures a Detector.
type Option func(*Opts)

// WithBufferMinutes sets the safety margin added to travel time.
func WithBufferMinutes(minutes int) Option {
	return func(o *Opts) { o.BufferMinutes = minutes }
}

// WithEstimator sets the travel-time estimator.
func WithEstimator(e TravelEstimator) Option {
	return func(o *Opts) { o.Estimator = e }
}

// Detector evaluates meeting lists for travel conflicts and owns the Open
// alert singleton. All methods are safe for concurrent use; Evaluate calls
// are serialized so repeated polls cannot race a second alert into existence.
type Detector struct {
	mu        sync.Mutex
	buffer    int
	estimator TravelEstimator
	open      *models.Alert
}

// NewDetector creates a Detector with the given options.
func NewDetector(opts ...Option) *Detector {
	cfg := Opts{
		BufferMinutes: DefaultBufferMinutes,
		Estimator:     StaticEstimator{Minutes: 25},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Detector{buffer: cfg.BufferMinutes, estimator: cfg.Estimator}
}

// Evaluate scans meetings at the given instant and raises an alert when the
// next meeting's start is within travel time plus buffer of now. Evaluation
// is idempotent: while an alert is Open, repeated calls observe but never
// raise a second one.
func (d *Detector) Evaluate(ctx context.Context, meetings []models.Meeting, now time.Time) (Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sorted := make([]models.Meeting, len(meetings))
	copy(sorted, meetings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var snap Snapshot
	for i := range sorted {
		m := &sorted[i]
		if snap.Current == nil && m.InProgressAt(now) {
			// Earliest start wins when several meetings overlap now.
			snap.Current = m
		}
		if snap.Next == nil && m.Start.After(now) {
			snap.Next = m
		}
	}
	snap.Alert = d.open

	if snap.Current == nil || snap.Next == nil {
		return snap, nil
	}
	if d.open != nil && d.open.IsOpen() {
		return snap, nil
	}

	travelMinutes, err := d.estimator.Estimate(ctx, snap.Current.Location, snap.Next.Location)
	if err != nil {
		slog.Error("Detector.Evaluate travel estimate failed", "error", err,
			"from", snap.Current.Location, "to", snap.Next.Location)
		return snap, fmt.Errorf("failed to estimate travel time: %w", err)
	}

	minutesUntilStart := int(snap.Next.Start.Sub(now).Minutes())
	if minutesUntilStart > travelMinutes+d.buffer {
		return snap, nil
	}

	alert := &models.Alert{
		ID:                uuid.NewString(),
		TargetMeetingID:   snap.Next.ID,
		MinutesUntilStart: minutesUntilStart,
		TravelMinutes:     travelMinutes,
		Status:            models.AlertStatusOpen,
		CreatedAt:         now,
	}
	d.open = alert
	snap.Alert = alert
	snap.Raised = true
	slog.Info("Detector.Evaluate raised alert", "alertID", alert.ID,
		"targetMeetingID", alert.TargetMeetingID,
		"minutesUntilStart", minutesUntilStart, "travelMinutes", travelMinutes)
	return snap, nil
}

// OpenAlert returns a copy of the Open alert, if one exists.
func (d *Detector) OpenAlert() (models.Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil || !d.open.IsOpen() {
		return models.Alert{}, false
	}
	return *d.open, true
}

// Resolve marks the Open alert with the given ID as Resolved. Once resolved,
// the Detector may raise a new alert on a later evaluation.
func (d *Detector) Resolve(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil || d.open.ID != id || !d.open.IsOpen() {
		return models.ErrAlertNotOpen
	}
	d.open.Status = models.AlertStatusResolved
	slog.Info("Detector.Resolve alert resolved", "alertID", id)
	return nil
}

// ExpireStale resolves the Open alert when it has been open longer than
// maxAge, returning the expired alert. A stale alert means the user never
// responded, so the conflict window is abandoned rather than held open
// forever.
func (d *Detector) ExpireStale(now time.Time, maxAge time.Duration) (models.Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open == nil || !d.open.IsOpen() {
		return models.Alert{}, false
	}
	if now.Sub(d.open.CreatedAt) < maxAge {
		return models.Alert{}, false
	}
	d.open.Status = models.AlertStatusResolved
	expired := *d.open
	slog.Warn("Detector.ExpireStale abandoned stale alert", "alertID", expired.ID,
		"age", now.Sub(expired.CreatedAt).String())
	return expired, true
}
