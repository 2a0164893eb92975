package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// DefaultPlayerCommand is the audio player invoked for synthesized speech.
// mpg123 reads MP3 from stdin when given "-".
var DefaultPlayerCommand = []string{"mpg123", "-q", "-"}

// CommandSink plays MP3 audio by piping it to an external player process.
type CommandSink struct {
	command []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewCommandSink creates a sink that pipes audio to the given player command.
// An empty command uses DefaultPlayerCommand.
func NewCommandSink(command ...string) *CommandSink {
	if len(command) == 0 {
		command = DefaultPlayerCommand
	}
	return &CommandSink{command: command}
}

// Play runs the player with the MP3 bytes on stdin and blocks until it
// exits or Stop kills it.
func (s *CommandSink) Play(ctx context.Context, mp3 []byte) error {
	cmd := exec.CommandContext(ctx, s.command[0], s.command[1:]...)
	cmd.Stdin = bytes.NewReader(mp3)

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cmd = nil
		s.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio player %s failed: %w", s.command[0], err)
	}
	return nil
}

// Stop kills the player process if one is running.
func (s *CommandSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			slog.Debug("CommandSink.Stop failed to kill player", "error", err)
		}
	}
}
