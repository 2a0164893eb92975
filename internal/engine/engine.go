// Package engine wires the conflict detector, dialogue controller, and
// action execution into one runtime with all mutation funneled through its
// public operations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andee-ai/andee/internal/actions"
	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/conflict"
	"github.com/andee-ai/andee/internal/dialogue"
	"github.com/andee-ai/andee/internal/genai"
	"github.com/andee-ai/andee/internal/history"
	"github.com/andee-ai/andee/internal/models"
	"github.com/andee-ai/andee/internal/scheduler"
	"github.com/andee-ai/andee/internal/speech"
)

// DefaultAlertTTL is how long an Open alert waits for a resolution before it
// is abandoned.
const DefaultAlertTTL = 5 * time.Minute

// expirySpec runs the stale-alert sweep once a minute.
const expirySpec = "0 * * * * *"

// Opts holds configuration options for the Engine.
type Opts struct {
	Store         calendar.MeetingStore
	Capture       speech.Capture
	Synthesizer   speech.Synthesizer
	Generator     dialogue.Generator
	Notifier      actions.Notifier
	BufferMinutes int
	TravelMinutes int
	Estimator     conflict.TravelEstimator
	AlertTTL      time.Duration
	HistoryWindow int
	RetryCap      int
	Now           func() time.Time
}

// Option configures the Engine.
type Option func(*Opts)

// WithStore sets the Meeting Store.
func WithStore(s calendar.MeetingStore) Option {
	return func(o *Opts) { o.Store = s }
}

// WithCapture sets the speech capture.
func WithCapture(c speech.Capture) Option {
	return func(o *Opts) { o.Capture = c }
}

// WithSynthesizer sets the speech synthesizer.
func WithSynthesizer(s speech.Synthesizer) Option {
	return func(o *Opts) { o.Synthesizer = s }
}

// WithGenerator sets the generation service.
func WithGenerator(g dialogue.Generator) Option {
	return func(o *Opts) { o.Generator = g }
}

// WithNotifier sets the notification service.
func WithNotifier(n actions.Notifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithBufferMinutes sets the travel safety margin.
func WithBufferMinutes(m int) Option {
	return func(o *Opts) { o.BufferMinutes = m }
}

// WithTravelMinutes sets a static travel time estimate.
func WithTravelMinutes(m int) Option {
	return func(o *Opts) { o.TravelMinutes = m }
}

// WithEstimator sets a travel-time estimator, overriding WithTravelMinutes.
func WithEstimator(e conflict.TravelEstimator) Option {
	return func(o *Opts) { o.Estimator = e }
}

// WithAlertTTL sets how long an Open alert may wait before abandonment.
func WithAlertTTL(d time.Duration) Option {
	return func(o *Opts) { o.AlertTTL = d }
}

// WithHistoryWindow sets the transcript context window.
func WithHistoryWindow(n int) Option {
	return func(o *Opts) { o.HistoryWindow = n }
}

// WithRetryCap sets how many consecutive failed exchanges a dialogue session
// tolerates before giving up.
func WithRetryCap(n int) Option {
	return func(o *Opts) { o.RetryCap = n }
}

// WithNow sets the clock. Tests use a fixed clock.
func WithNow(fn func() time.Time) Option {
	return func(o *Opts) { o.Now = fn }
}

// Status is a point-in-time view of the engine for the HTTP layer.
type Status struct {
	DialogueState dialogue.State `json:"dialogue_state"`
	OpenAlert     *models.Alert  `json:"open_alert,omitempty"`
	CurrentTitle  string         `json:"current_meeting,omitempty"`
	NextTitle     string         `json:"next_meeting,omitempty"`
	Notices       []string       `json:"notices,omitempty"`
}

// Engine owns the runtime session state. All mutation goes through its
// public operations; the poll loop and dialogue sessions coordinate through
// the detector's alert singleton.
type Engine struct {
	store      calendar.MeetingStore
	detector   *conflict.Detector
	poller     *conflict.Poller
	sched      *scheduler.Scheduler
	controller *dialogue.Controller
	executor   *actions.Executor
	hist       *history.Manager
	cap        speech.Capture
	synth      speech.Synthesizer
	alertTTL   time.Duration
	now        func() time.Time

	mu       sync.Mutex
	current  *models.Meeting
	next     *models.Meeting
	notices  []string
	stopped  bool
	cancelFn context.CancelFunc
}

// New creates an Engine. A store, capture, synthesizer, and generator are
// required; the notifier is optional.
func New(opts ...Option) (*Engine, error) {
	cfg := Opts{
		BufferMinutes: conflict.DefaultBufferMinutes,
		TravelMinutes: 25,
		AlertTTL:      DefaultAlertTTL,
		HistoryWindow: history.DefaultWindow,
		RetryCap:      dialogue.DefaultRetryCap,
		Now:           time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("meeting store must be provided")
	}
	if cfg.Capture == nil || cfg.Synthesizer == nil {
		return nil, fmt.Errorf("speech capture and synthesizer must be provided")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("generation service must be provided")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = conflict.StaticEstimator{Minutes: cfg.TravelMinutes}
	}

	e := &Engine{
		store:    cfg.Store,
		cap:      cfg.Capture,
		synth:    cfg.Synthesizer,
		alertTTL: cfg.AlertTTL,
		now:      cfg.Now,
	}
	e.detector = conflict.NewDetector(
		conflict.WithBufferMinutes(cfg.BufferMinutes),
		conflict.WithEstimator(cfg.Estimator),
	)
	e.hist = history.NewManager(history.WithWindow(cfg.HistoryWindow))
	e.executor = actions.NewExecutor(cfg.Store, cfg.Notifier, e.detector, cfg.Now)
	e.controller = dialogue.NewController(
		cfg.Capture, cfg.Synthesizer, cfg.Generator, e.executor, e.hist,
		dialogue.WithRetryCap(cfg.RetryCap),
		dialogue.WithContextFn(e.generationContext),
		dialogue.WithAlertFn(e.openAlert),
		dialogue.WithOnNotice(e.recordNotice),
	)
	e.poller = conflict.NewPoller(e.detector, cfg.Store, e.onAlert, cfg.Now)
	return e, nil
}

// Run starts the poll and expiry jobs and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFn = cancel
	e.mu.Unlock()

	e.sched = scheduler.NewScheduler()
	if err := e.sched.AddJob(scheduler.PollSpec, func() { e.poller.Poll(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule conflict poll: %w", err)
	}
	if err := e.sched.AddJob(expirySpec, func() { e.expireStale() }); err != nil {
		return fmt.Errorf("failed to schedule alert expiry: %w", err)
	}
	slog.Info("Engine.Run started", "pollSpec", scheduler.PollSpec, "alertTTL", e.alertTTL.String())

	<-ctx.Done()
	e.Stop()
	return ctx.Err()
}

// Stop halts the scheduler and cancels any utterance in progress.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel := e.cancelFn
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.sched != nil {
		e.sched.Stop()
	}
	e.synth.Cancel()
	slog.Info("Engine.Stop completed")
}

// PollOnce runs one detection cycle immediately. Exposed for the HTTP layer
// and tests; Run schedules the same cycle on a fixed cadence.
func (e *Engine) PollOnce(ctx context.Context) {
	e.poller.Poll(ctx)
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	s := Status{DialogueState: e.controller.State()}
	if alert, ok := e.detector.OpenAlert(); ok {
		s.OpenAlert = &alert
	}
	e.mu.Lock()
	if e.current != nil {
		s.CurrentTitle = e.current.Title
	}
	if e.next != nil {
		s.NextTitle = e.next.Title
	}
	s.Notices = append(s.Notices, e.notices...)
	e.mu.Unlock()
	return s
}

// History returns the recent conversation window.
func (e *Engine) History() []models.ConversationMessage {
	return e.hist.Windowed()
}

// SubmitTranscript feeds a transcript to the active capture session. It
// reports whether a listener consumed it.
func (e *Engine) SubmitTranscript(text string) bool {
	type submitter interface{ Submit(string) bool }
	if c, ok := e.cap.(submitter); ok {
		return c.Submit(text)
	}
	return false
}

// StartSession begins a user-initiated dialogue session with a generic
// opening. It fails if a session is already active.
func (e *Engine) StartSession(ctx context.Context) error {
	return e.controller.Engage(ctx, "Hi Boss, what do you need?")
}

// DismissAlert abandons the Open alert without executing any action.
func (e *Engine) DismissAlert() error {
	alert, ok := e.detector.OpenAlert()
	if !ok {
		return models.ErrAlertNotOpen
	}
	return e.detector.Resolve(alert.ID)
}

// onAlert runs when the detector raises a new alert; it opens a negotiation
// session. While the session runs, polling continues but cannot raise a
// second alert.
func (e *Engine) onAlert(alert models.Alert, snap conflict.Snapshot) {
	e.mu.Lock()
	e.current = snap.Current
	e.next = snap.Next
	e.mu.Unlock()

	prompt := buildAlertPrompt(snap.Current, snap.Next, alert)
	go func() {
		if err := e.controller.Engage(context.Background(), prompt); err != nil {
			slog.Warn("Engine.onAlert session ended with error", "error", err, "alertID", alert.ID)
		}
	}()
}

func (e *Engine) expireStale() {
	if expired, ok := e.detector.ExpireStale(e.now(), e.alertTTL); ok {
		e.recordNotice(fmt.Sprintf("Conflict alert for meeting %s expired without a response.", expired.TargetMeetingID))
	}
}

func (e *Engine) recordNotice(text string) {
	e.mu.Lock()
	e.notices = append(e.notices, text)
	if len(e.notices) > 20 {
		e.notices = e.notices[len(e.notices)-20:]
	}
	e.mu.Unlock()
}

// openAlert hands the dialogue a mutable view of the Open alert.
func (e *Engine) openAlert() *models.Alert {
	alert, ok := e.detector.OpenAlert()
	if !ok {
		return nil
	}
	return &alert
}

// generationContext summarizes the conflict, or the upcoming schedule when
// no conflict is open, for the generation service.
func (e *Engine) generationContext(ctx context.Context) string {
	e.mu.Lock()
	current, next := e.current, e.next
	e.mu.Unlock()

	if alert, ok := e.detector.OpenAlert(); ok {
		return genai.ConflictContext(current, next, &alert)
	}
	now := e.now()
	meetings, err := e.store.List(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		slog.Warn("Engine.generationContext list failed", "error", err)
		return ""
	}
	return genai.ScheduleContext(meetings, now)
}

func buildAlertPrompt(current, next *models.Meeting, alert models.Alert) string {
	if next == nil {
		return "Hi Boss, heads up, you have a scheduling conflict coming up."
	}
	prompt := fmt.Sprintf("Hi Boss, heads up: %q", next.Title)
	if next.ClientName != "" {
		prompt += fmt.Sprintf(" with %s", next.ClientName)
	}
	prompt += fmt.Sprintf(" starts at %s, about %d minutes out, and travel will take around %d minutes.",
		next.Start.Format("3:04 PM"), alert.MinutesUntilStart, alert.TravelMinutes)
	if current != nil {
		prompt += fmt.Sprintf(" You're still in %q until %s.", current.Title, current.End.Format("3:04 PM"))
	}
	prompt += " Can you make it, or should I push it back or cancel?"
	return prompt
}
