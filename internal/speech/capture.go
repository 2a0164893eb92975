package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultListenWindow bounds how long a capture session waits for speech.
const DefaultListenWindow = 30 * time.Second

// ChannelCapture is a Capture fed by transcripts submitted from outside,
// typically the HTTP transcript endpoint fronting a speech-to-text client.
type ChannelCapture struct {
	mu        sync.Mutex
	listening bool
	ch        chan string
	window    time.Duration
}

// NewChannelCapture creates a capture with the given listen window. Zero or
// negative means DefaultListenWindow.
func NewChannelCapture(window time.Duration) *ChannelCapture {
	if window <= 0 {
		window = DefaultListenWindow
	}
	return &ChannelCapture{ch: make(chan string, 1), window: window}
}

// Listen blocks for one submitted transcript. A second concurrent call
// returns ErrCaptureBusy; an empty or expired window returns ErrInaudible.
func (c *ChannelCapture) Listen(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		slog.Debug("ChannelCapture.Listen rejected, session already active")
		return "", ErrCaptureBusy
	}
	c.listening = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
	}()

	timer := time.NewTimer(c.window)
	defer timer.Stop()

	select {
	case transcript := <-c.ch:
		if strings.TrimSpace(transcript) == "" {
			return "", ErrInaudible
		}
		return transcript, nil
	case <-timer.C:
		return "", ErrInaudible
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Submit delivers a transcript to the active listener. It reports whether a
// listener consumed it; transcripts arriving with nobody listening are
// dropped.
func (c *ChannelCapture) Submit(transcript string) bool {
	c.mu.Lock()
	listening := c.listening
	c.mu.Unlock()
	if !listening {
		slog.Debug("ChannelCapture.Submit dropped, no active listener")
		return false
	}
	select {
	case c.ch <- transcript:
		return true
	default:
		return false
	}
}

// Listening reports whether a capture session is active.
func (c *ChannelCapture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}
