package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Google Cloud Text-to-Speech defaults.
const (
	googleTTSEndpoint   = "https://texttospeech.googleapis.com/v1/text:synthesize"
	DefaultVoiceName    = "en-US-Neural2-J"
	DefaultLanguageCode = "en-US"
	defaultTTSTimeout   = 15 * time.Second
	defaultAudioDevice  = "headphone-class-device"
)

// AudioSink plays synthesized audio. Implementations wrap whatever audio
// output the deployment has.
type AudioSink interface {
	// Play blocks until the audio finishes or Stop is called.
	Play(ctx context.Context, mp3 []byte) error
	// Stop interrupts playback.
	Stop()
}

// GoogleOpts holds configuration options for the Google TTS synthesizer.
type GoogleOpts struct {
	APIKey       string
	VoiceName    string
	LanguageCode string
	HTTPClient   *http.Client
	Sink         AudioSink
}

// GoogleOption configures a GoogleSynthesizer.
type GoogleOption func(*GoogleOpts)

// WithTTSAPIKey sets the Google Cloud API key.
func WithTTSAPIKey(key string) GoogleOption {
	return func(o *GoogleOpts) { o.APIKey = key }
}

// WithVoice sets the voice name and language code.
func WithVoice(name, languageCode string) GoogleOption {
	return func(o *GoogleOpts) {
		o.VoiceName = name
		o.LanguageCode = languageCode
	}
}

// WithHTTPClient overrides the HTTP client used for synthesis calls.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(o *GoogleOpts) { o.HTTPClient = c }
}

// WithSink sets the audio output.
func WithSink(s AudioSink) GoogleOption {
	return func(o *GoogleOpts) { o.Sink = s }
}

// GoogleSynthesizer speaks text through the Google Cloud Text-to-Speech REST
// API. Utterances are exclusive; starting a new one cancels the current one.
type GoogleSynthesizer struct {
	apiKey       string
	voiceName    string
	languageCode string
	endpoint     string
	httpClient   *http.Client
	sink         AudioSink

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewGoogleSynthesizer creates a synthesizer. An API key and a sink are
// required.
func NewGoogleSynthesizer(opts ...GoogleOption) (*GoogleSynthesizer, error) {
	cfg := GoogleOpts{
		VoiceName:    DefaultVoiceName,
		LanguageCode: DefaultLanguageCode,
		HTTPClient:   &http.Client{Timeout: defaultTTSTimeout},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google tts api key not set")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("audio sink not set")
	}
	return &GoogleSynthesizer{
		apiKey:       cfg.APIKey,
		voiceName:    cfg.VoiceName,
		languageCode: cfg.LanguageCode,
		endpoint:     googleTTSEndpoint,
		httpClient:   cfg.HTTPClient,
		sink:         cfg.Sink,
	}, nil
}

type ttsRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding    string   `json:"audioEncoding"`
		EffectsProfileID []string `json:"effectsProfileId,omitempty"`
	} `json:"audioConfig"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
}

// Speak synthesizes text and plays it, cancelling any utterance in progress.
func (s *GoogleSynthesizer) Speak(ctx context.Context, text string) error {
	s.Cancel()

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	audio, err := s.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if err := s.sink.Play(ctx, audio); err != nil {
		slog.Error("GoogleSynthesizer.Speak playback failed", "error", err)
		return fmt.Errorf("failed to play utterance: %w", err)
	}
	return nil
}

// Cancel interrupts the utterance in progress, if any.
func (s *GoogleSynthesizer) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.sink.Stop()
}

func (s *GoogleSynthesizer) synthesize(ctx context.Context, text string) ([]byte, error) {
	var reqBody ttsRequest
	reqBody.Input.Text = text
	reqBody.Voice.LanguageCode = s.languageCode
	reqBody.Voice.Name = s.voiceName
	reqBody.AudioConfig.AudioEncoding = "MP3"
	reqBody.AudioConfig.EffectsProfileID = []string{defaultAudioDevice}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tts request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", s.endpoint, s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("GoogleSynthesizer.synthesize request failed", "error", err)
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("GoogleSynthesizer.synthesize unexpected status", "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("tts request returned status %d", resp.StatusCode)
	}

	var out ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode tts response: %w", err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tts audio: %w", err)
	}
	return audio, nil
}
