package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestChannelCaptureDeliversTranscript(t *testing.T) {
	c := NewChannelCapture(time.Second)

	done := make(chan struct{})
	var transcript string
	var err error
	go func() {
		transcript, err = c.Listen(context.Background())
		close(done)
	}()

	// Wait until the listener is active before submitting.
	deadline := time.Now().Add(time.Second)
	for !c.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("listener never became active")
		}
		time.Sleep(time.Millisecond)
	}
	if !c.Submit("push it back 20 minutes") {
		t.Fatal("expected Submit to reach the listener")
	}
	<-done
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if transcript != "push it back 20 minutes" {
		t.Errorf("unexpected transcript %q", transcript)
	}
}

func TestChannelCaptureRejectsConcurrentListen(t *testing.T) {
	c := NewChannelCapture(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		c.Listen(ctx) //nolint:errcheck
	}()
	<-started
	deadline := time.Now().Add(time.Second)
	for !c.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("listener never became active")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := c.Listen(context.Background()); !errors.Is(err, ErrCaptureBusy) {
		t.Errorf("expected ErrCaptureBusy, got %v", err)
	}
}

func TestChannelCaptureWindowExpiry(t *testing.T) {
	c := NewChannelCapture(10 * time.Millisecond)
	if _, err := c.Listen(context.Background()); !errors.Is(err, ErrInaudible) {
		t.Errorf("expected ErrInaudible on window expiry, got %v", err)
	}
}

func TestChannelCaptureEmptyTranscriptInaudible(t *testing.T) {
	c := NewChannelCapture(time.Second)
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = c.Listen(context.Background())
	}()
	deadline := time.Now().Add(time.Second)
	for !c.Listening() {
		if time.Now().After(deadline) {
			t.Fatal("listener never became active")
		}
		time.Sleep(time.Millisecond)
	}
	c.Submit("   ")
	wg.Wait()
	if !errors.Is(err, ErrInaudible) {
		t.Errorf("expected ErrInaudible for blank transcript, got %v", err)
	}
}

func TestChannelCaptureSubmitWithoutListener(t *testing.T) {
	c := NewChannelCapture(time.Second)
	if c.Submit("nobody home") {
		t.Error("expected Submit to report no listener")
	}
}

func TestScriptedCapture(t *testing.T) {
	c := NewScriptedCapture()
	c.Queue("first")
	c.QueueError(ErrInaudible)
	c.Queue("second")

	if got, err := c.Listen(context.Background()); err != nil || got != "first" {
		t.Errorf("expected first, got %q err=%v", got, err)
	}
	if _, err := c.Listen(context.Background()); !errors.Is(err, ErrInaudible) {
		t.Errorf("expected scripted ErrInaudible, got %v", err)
	}
	if got, err := c.Listen(context.Background()); err != nil || got != "second" {
		t.Errorf("expected second, got %q err=%v", got, err)
	}
	if _, err := c.Listen(context.Background()); !errors.Is(err, ErrInaudible) {
		t.Errorf("expected ErrInaudible on drained script, got %v", err)
	}
}

type captureSink struct {
	mu     sync.Mutex
	played [][]byte
}

func (s *captureSink) Play(ctx context.Context, mp3 []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, mp3)
	return nil
}

func (s *captureSink) Stop() {}

func TestGoogleSynthesizerSpeak(t *testing.T) {
	audio := []byte("fake mp3 bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Input.Text != "Hi Boss" {
			t.Errorf("unexpected text %q", req.Input.Text)
		}
		if req.Voice.Name != DefaultVoiceName {
			t.Errorf("unexpected voice %q", req.Voice.Name)
		}
		json.NewEncoder(w).Encode(ttsResponse{ //nolint:errcheck
			AudioContent: base64.StdEncoding.EncodeToString(audio),
		})
	}))
	defer server.Close()

	sink := &captureSink{}
	s, err := NewGoogleSynthesizer(WithTTSAPIKey("test-key"), WithSink(sink))
	if err != nil {
		t.Fatalf("NewGoogleSynthesizer failed: %v", err)
	}
	s.httpClient = server.Client()
	s.endpoint = server.URL

	if err := s.Speak(context.Background(), "Hi Boss"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if len(sink.played) != 1 || string(sink.played[0]) != string(audio) {
		t.Errorf("expected decoded audio at the sink, got %v", sink.played)
	}
}

func TestGoogleSynthesizerRequiresKeyAndSink(t *testing.T) {
	if _, err := NewGoogleSynthesizer(WithSink(&captureSink{})); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := NewGoogleSynthesizer(WithTTSAPIKey("k")); err == nil {
		t.Error("expected error without sink")
	}
}
