package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/engine"
	"github.com/andee-ai/andee/internal/models"
	"github.com/andee-ai/andee/internal/speech"
)

type stubGen struct{}

func (stubGen) Respond(ctx context.Context, hist []models.ConversationMessage, latest, summary string) (string, error) {
	return "", errors.New("not used")
}

func newTestServer(t *testing.T) (*Server, *calendar.InMemoryStore) {
	t.Helper()
	store := calendar.NewInMemoryStore()
	eng, err := engine.New(
		engine.WithStore(store),
		engine.WithCapture(speech.NewScriptedCapture()),
		engine.WithSynthesizer(&speech.RecordingSynthesizer{}),
		engine.WithGenerator(stubGen{}),
	)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return NewServer(eng, store), store
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if resp := decodeResponse(t, rec); resp.Status != string(models.APIStatusOK) {
		t.Errorf("expected ok status, got %+v", resp)
	}
}

func TestStatusHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.statusHandler(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	s.statusHandler(rec, httptest.NewRequest(http.MethodPost, "/status", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestMeetingsHandlerCreateAndList(t *testing.T) {
	s, _ := newTestServer(t)

	start := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	body := `{"title":"Site visit","start":"` + start.Format(time.RFC3339) +
		`","end":"` + start.Add(time.Hour).Format(time.RFC3339) +
		`","client_name":"Sarah Johnson","client_phone":"+15550100"}`

	rec := httptest.NewRecorder()
	s.meetingsHandler(rec, httptest.NewRequest(http.MethodPost, "/meetings", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.meetingsHandler(rec, httptest.NewRequest(http.MethodGet, "/meetings", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Site visit") {
		t.Errorf("expected listed meeting, got %s", rec.Body.String())
	}
}

func TestMeetingsHandlerRejectsInvalid(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.meetingsHandler(rec, httptest.NewRequest(http.MethodPost, "/meetings", strings.NewReader("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", rec.Code)
	}

	// Missing title fails store validation.
	start := time.Now().Add(time.Hour).UTC()
	body := `{"start":"` + start.Format(time.RFC3339) + `","end":"` + start.Add(time.Hour).Format(time.RFC3339) + `"}`
	rec = httptest.NewRecorder()
	s.meetingsHandler(rec, httptest.NewRequest(http.MethodPost, "/meetings", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing title, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.meetingsHandler(rec, httptest.NewRequest(http.MethodGet, "/meetings?hours=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative hours, got %d", rec.Code)
	}
}

func TestTranscriptHandlerNoListener(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.transcriptHandler(rec, httptest.NewRequest(http.MethodPost, "/transcript", strings.NewReader(`{"text":"hello"}`)))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 with no listener, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.transcriptHandler(rec, httptest.NewRequest(http.MethodPost, "/transcript", strings.NewReader(`{"text":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty text, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.transcriptHandler(rec, httptest.NewRequest(http.MethodGet, "/transcript", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for history fetch, got %d", rec.Code)
	}
}

func TestDismissHandlerNoAlert(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.dismissHandler(rec, httptest.NewRequest(http.MethodPost, "/alert/dismiss", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 with no open alert, got %d", rec.Code)
	}
}

func TestPollHandler(t *testing.T) {
	s, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	s.pollHandler(rec, httptest.NewRequest(http.MethodPost, "/poll", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	s.pollHandler(rec, httptest.NewRequest(http.MethodGet, "/poll", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}
