// Package speech defines the capture and synthesis boundary of the dialogue.
//
// Capture is exclusive and non-preemptible: a session in progress must finish
// before another may start. Synthesis is exclusive and preemptible: a new
// utterance cancels the one being spoken.
package speech

import (
	"context"
	"errors"
)

// Error variables for capture failure modes.
var (
	// ErrCaptureBusy is returned when a capture session is already active.
	ErrCaptureBusy = errors.New("speech capture already in progress")
	// ErrInaudible is returned when the capture window closed without a
	// usable transcript.
	ErrInaudible = errors.New("no intelligible speech captured")
)

// Capture obtains a single transcript from the user. Single-shot, not
// continuous.
type Capture interface {
	// Listen blocks until a transcript arrives, the capture errors, or ctx
	// is done. Concurrent calls return ErrCaptureBusy.
	Listen(ctx context.Context) (string, error)
}

// Synthesizer speaks text to the user. Starting a new utterance cancels any
// utterance still in progress.
type Synthesizer interface {
	// Speak converts text to audio and plays it, returning once playback
	// completes or is cancelled.
	Speak(ctx context.Context, text string) error
	// Cancel stops the utterance in progress, if any.
	Cancel()
}
