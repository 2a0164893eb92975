package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andee-ai/andee/internal/calendar"
	"github.com/andee-ai/andee/internal/engine"
	"github.com/andee-ai/andee/internal/models"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// ShutdownTimeout bounds graceful shutdown of in-flight requests.
const ShutdownTimeout = 10 * time.Second

// Opts holds configuration options for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server exposes engine status, transcript intake, and meeting management.
type Server struct {
	engine *engine.Engine
	store  calendar.MeetingStore
	addr   string
	srv    *http.Server
}

// NewServer creates an API server around the engine and its Meeting Store.
func NewServer(eng *engine.Engine, store calendar.MeetingStore, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{engine: eng, store: store, addr: cfg.Addr}
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/meetings", s.meetingsHandler)
	mux.HandleFunc("/transcript", s.transcriptHandler)
	mux.HandleFunc("/session", s.sessionHandler)
	mux.HandleFunc("/alert/dismiss", s.dismissHandler)
	mux.HandleFunc("/poll", s.pollHandler)

	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	slog.Info("API server running", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"health": "ok"}))
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Status()))
}

// meetingRequest is the create-meeting payload.
type meetingRequest struct {
	Title       string    `json:"title"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientPhone string    `json:"client_phone,omitempty"`
}

func (s *Server) meetingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hours := 24
		if raw := r.URL.Query().Get("hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeJSONResponse(w, http.StatusBadRequest, models.Error("hours must be a positive integer"))
				return
			}
			hours = parsed
		}
		now := time.Now()
		meetings, err := s.store.List(r.Context(), now, now.Add(time.Duration(hours)*time.Hour))
		if err != nil {
			slog.Error("Server.meetingsHandler list failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list meetings"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(meetings))

	case http.MethodPost:
		var req meetingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid request body"))
			return
		}
		created, err := s.store.Create(r.Context(), models.Meeting{
			Title:       req.Title,
			Location:    req.Location,
			Start:       req.Start,
			End:         req.End,
			ClientName:  req.ClientName,
			ClientPhone: req.ClientPhone,
		})
		if err != nil {
			slog.Error("Server.meetingsHandler create failed", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.Success(created))

	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
	}
}

// transcriptRequest is the transcript intake payload.
type transcriptRequest struct {
	Text string `json:"text"`
}

func (s *Server) transcriptHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSONResponse(w, http.StatusOK, models.Success(s.engine.History()))
		return
	case http.MethodPost:
	default:
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	var req transcriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("text must be provided"))
		return
	}
	if !s.engine.SubmitTranscript(req.Text) {
		writeJSONResponse(w, http.StatusConflict, models.Error("no active listening session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("transcript accepted", nil))
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	// Sessions run until a terminal action or the retry cap; start one in the
	// background and report acceptance.
	go func() {
		if err := s.engine.StartSession(context.Background()); err != nil {
			slog.Warn("Server.sessionHandler session ended with error", "error", err)
		}
	}()
	writeJSONResponse(w, http.StatusAccepted, models.SuccessWithMessage("session starting", nil))
}

func (s *Server) dismissHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	if err := s.engine.DismissAlert(); err != nil {
		if errors.Is(err, models.ErrAlertNotOpen) {
			writeJSONResponse(w, http.StatusConflict, models.Error("no open alert"))
			return
		}
		slog.Error("Server.dismissHandler failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to dismiss alert"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("alert dismissed", nil))
}

func (s *Server) pollHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("method not allowed"))
		return
	}
	s.engine.PollOnce(r.Context())
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Status()))
}
