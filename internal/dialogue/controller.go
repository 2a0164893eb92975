// Package dialogue runs the spoken negotiation between Andee and the user.
//
// The Controller is a state machine over Idle, Speaking, Listening, and
// Interpreting. One session and one turn are in flight at a time; capture
// failures re-prompt up to a retry cap, and generation failures fall back to
// a fixed apology instead of ending the session.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/andee-ai/andee/internal/actions"
	"github.com/andee-ai/andee/internal/genai"
	"github.com/andee-ai/andee/internal/history"
	"github.com/andee-ai/andee/internal/models"
	"github.com/andee-ai/andee/internal/speech"
)

// State names the dialogue controller's current phase.
type State string

// Controller states.
const (
	StateIdle         State = "idle"
	StateSpeaking     State = "speaking"
	StateListening    State = "listening"
	StateInterpreting State = "interpreting"
)

// DefaultRetryCap bounds capture and generation retries within one session.
const DefaultRetryCap = 3

// Spoken fragments reused across sessions.
const (
	clarifyPrompt   = "Sorry Boss, I didn't catch that. How would you like to handle it?"
	latenessPrompt  = "No worries Boss. How many minutes should I push it back?"
	giveUpNotice    = "I'll leave it with you, Boss. Say the word if you need me."
	actionFailedMsg = "Boss, that didn't take effect. Want to try again or do something else?"
	signOff         = "You got it, Boss."
)

// Closing phrases that end a session without a terminal action.
var closingPhrases = []string{"that's all", "thats all", "goodbye", "never mind", "nevermind", "we're done", "thanks andee"}

// ErrSessionActive is returned when Engage is called while a session runs.
var ErrSessionActive = errors.New("dialogue session already active")

// Generator produces the assistant's reply for the latest user text.
type Generator interface {
	Respond(ctx context.Context, history []models.ConversationMessage, latestUserText, contextSummary string) (string, error)
}

// Executor applies a parsed command. The actions package provides it.
type Executor interface {
	Execute(ctx context.Context, cmd models.ActionCommand, alert *models.Alert) (models.ExecutionResult, error)
}

// Opts holds configuration options for the Controller.
type Opts struct {
	RetryCap int
	// ContextFn supplies the generation context summary for the session.
	ContextFn func(ctx context.Context) string
	// AlertFn supplies the alert the session is negotiating, nil for
	// user-initiated sessions with no conflict.
	AlertFn func() *models.Alert
	// OnNotice receives user-visible notices that were spoken, such as the
	// give-up message after the retry cap.
	OnNotice func(text string)
}

// Option configures a Controller.
type Option func(*Opts)

// WithRetryCap sets the per-session retry cap.
func WithRetryCap(n int) Option {
	return func(o *Opts) { o.RetryCap = n }
}

// WithContextFn sets the generation context supplier.
func WithContextFn(fn func(ctx context.Context) string) Option {
	return func(o *Opts) { o.ContextFn = fn }
}

// WithAlertFn sets the alert supplier.
func WithAlertFn(fn func() *models.Alert) Option {
	return func(o *Opts) { o.AlertFn = fn }
}

// WithOnNotice sets the notice callback.
func WithOnNotice(fn func(text string)) Option {
	return func(o *Opts) { o.OnNotice = fn }
}

// Controller owns the spoken exchange. All turns are strictly sequential.
type Controller struct {
	capture  speech.Capture
	synth    speech.Synthesizer
	gen      Generator
	executor Executor
	history  *history.Manager

	retryCap  int
	contextFn func(ctx context.Context) string
	alertFn   func() *models.Alert
	onNotice  func(text string)

	mu     sync.Mutex
	state  State
	active bool
}

// NewController creates a Controller in the Idle state.
func NewController(capture speech.Capture, synth speech.Synthesizer, gen Generator, executor Executor, hist *history.Manager, opts ...Option) *Controller {
	cfg := Opts{RetryCap: DefaultRetryCap}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ContextFn == nil {
		cfg.ContextFn = func(context.Context) string { return "" }
	}
	if cfg.AlertFn == nil {
		cfg.AlertFn = func() *models.Alert { return nil }
	}
	return &Controller{
		capture:   capture,
		synth:     synth,
		gen:       gen,
		executor:  executor,
		history:   hist,
		retryCap:  cfg.RetryCap,
		contextFn: cfg.ContextFn,
		alertFn:   cfg.AlertFn,
		onNotice:  cfg.OnNotice,
		state:     StateIdle,
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether a session is in flight.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Engage runs one dialogue session, beginning with the opening prompt and
// looping through listen/interpret/speak turns until a terminal action
// executes, a closing phrase arrives, the retry cap is exceeded, or ctx is
// done. Only one session may run at a time.
func (c *Controller) Engage(ctx context.Context, openingPrompt string) error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		slog.Debug("Controller.Engage rejected, session already active")
		return ErrSessionActive
	}
	c.active = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = false
		c.state = StateIdle
		c.mu.Unlock()
	}()

	if err := c.speakAndAppend(ctx, openingPrompt); err != nil {
		return err
	}

	retries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setState(StateListening)
		transcript, err := c.capture.Listen(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			retries++
			slog.Warn("Controller.Engage capture failed", "error", err, "retries", retries)
			if retries > c.retryCap {
				return c.giveUp(ctx)
			}
			if err := c.speak(ctx, clarifyPrompt); err != nil {
				return err
			}
			continue
		}

		if isClosingPhrase(transcript) {
			c.history.Append(models.RoleUser, transcript)
			return c.speakAndAppend(ctx, signOff)
		}

		c.setState(StateInterpreting)
		// Context for interpreting this transcript excludes the transcript
		// itself; snapshot the window before appending.
		window := c.history.Windowed()
		c.history.Append(models.RoleUser, transcript)

		responseText, err := c.gen.Respond(ctx, window, transcript, c.contextFn(ctx))
		if err != nil {
			retries++
			slog.Error("Controller.Engage generation failed", "error", err, "retries", retries)
			if retries > c.retryCap {
				return c.giveUp(ctx)
			}
			if err := c.speakAndAppend(ctx, genai.FallbackReply); err != nil {
				return err
			}
			continue
		}

		display, cmd := actions.Parse(responseText)
		done, err := c.applyTurn(ctx, display, cmd, transcript)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// applyTurn executes the parsed command and speaks the reply. It reports
// whether the session is over.
func (c *Controller) applyTurn(ctx context.Context, display string, cmd models.ActionCommand, transcript string) (bool, error) {
	alert := c.alertFn()
	result, execErr := c.executor.Execute(ctx, cmd, alert)

	reply := display
	switch {
	case execErr != nil:
		// Calendar failure: the alert stays open and the user may retry.
		slog.Error("Controller.applyTurn execution failed", "error", execErr, "type", cmd.Type)
		reply = actionFailedMsg
	case cmd.Type == models.ActionUnrecognized:
		if reply == "" {
			if actions.IsLatenessHint(transcript) {
				reply = latenessPrompt
			} else {
				reply = clarifyPrompt
			}
		}
	case result.Detail != "":
		if reply == "" {
			reply = result.Detail
		} else {
			reply = reply + " " + result.Detail
		}
	case reply == "":
		reply = signOff
	}

	if err := c.speakAndAppend(ctx, reply); err != nil {
		return false, err
	}
	return execErr == nil && cmd.IsTerminal() && result.CalendarOK, nil
}

func (c *Controller) giveUp(ctx context.Context) error {
	if c.onNotice != nil {
		c.onNotice(giveUpNotice)
	}
	if err := c.speak(ctx, giveUpNotice); err != nil {
		return err
	}
	return fmt.Errorf("retry cap exceeded after %d attempts", c.retryCap)
}

func (c *Controller) speak(ctx context.Context, text string) error {
	c.setState(StateSpeaking)
	if err := c.synth.Speak(ctx, text); err != nil {
		slog.Error("Controller.speak synthesis failed", "error", err)
		return fmt.Errorf("failed to speak: %w", err)
	}
	return nil
}

func (c *Controller) speakAndAppend(ctx context.Context, text string) error {
	if err := c.speak(ctx, text); err != nil {
		return err
	}
	c.history.Append(models.RoleAssistant, text)
	return nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func isClosingPhrase(transcript string) bool {
	lower := strings.ToLower(strings.TrimSpace(transcript))
	for _, phrase := range closingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
