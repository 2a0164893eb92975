package speech

import (
	"context"
	"sync"
)

// ScriptedCapture is a Capture returning queued transcripts in order.
// Used in tests and demo mode.
type ScriptedCapture struct {
	mu        sync.Mutex
	script    []scriptEntry
	listening bool
}

type scriptEntry struct {
	transcript string
	err        error
}

// NewScriptedCapture creates an empty scripted capture.
func NewScriptedCapture() *ScriptedCapture {
	return &ScriptedCapture{}
}

// Queue appends a transcript to the script.
func (c *ScriptedCapture) Queue(transcript string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scriptEntry{transcript: transcript})
}

// QueueError appends a capture failure to the script.
func (c *ScriptedCapture) QueueError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, scriptEntry{err: err})
}

// Listen pops the next scripted entry. An empty script returns ErrInaudible.
func (c *ScriptedCapture) Listen(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return "", ErrCaptureBusy
	}
	c.listening = true
	defer func() {
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
	}()

	if len(c.script) == 0 {
		c.mu.Unlock()
		return "", ErrInaudible
	}
	entry := c.script[0]
	c.script = c.script[1:]
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return entry.transcript, entry.err
}

// RecordingSynthesizer is a Synthesizer that records spoken text.
type RecordingSynthesizer struct {
	mu        sync.Mutex
	Spoken    []string
	Cancelled int
	SpeakErr  error
}

// Speak records the text.
func (s *RecordingSynthesizer) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SpeakErr != nil {
		return s.SpeakErr
	}
	s.Spoken = append(s.Spoken, text)
	return nil
}

// Cancel counts the cancellation.
func (s *RecordingSynthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancelled++
}

// Last returns the most recently spoken text.
func (s *RecordingSynthesizer) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Spoken) == 0 {
		return ""
	}
	return s.Spoken[len(s.Spoken)-1]
}
