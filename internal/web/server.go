package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/fsrs"
	"github.com/conorfennell/flashdeck/internal/storage"
	"github.com/conorfennell/flashdeck/internal/study"
	"github.com/conorfennell/flashdeck/internal/sync"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks malformed requests.
var errBadRequest = errors.New("bad request")

// errSourceExists is returned when a source path is added twice.
var errSourceExists = errors.New("source already exists")

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	study    *study.Service
	syncer   *sync.Syncer
	log      *slog.Logger
	router   *http.ServeMux
	validate *validator.Validate
	clock    func() time.Time
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, svc *study.Service, syncer *sync.Syncer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:       db,
		study:    svc,
		syncer:   syncer,
		log:      logger,
		router:   http.NewServeMux(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		clock:    func() time.Time { return time.Now().UTC() },
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logRequests(s.router).ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	// Deck and card management
	s.router.HandleFunc("GET /decks", s.handleListDecks())
	s.router.HandleFunc("POST /decks", s.handleCreateDeck())
	s.router.HandleFunc("PUT /decks/{id}", s.handleUpdateDeck())
	s.router.HandleFunc("DELETE /decks/{id}", s.handleDeleteDeck())
	s.router.HandleFunc("GET /decks/{id}/cards", s.handleListCards())
	s.router.HandleFunc("POST /decks/{id}/cards", s.handleCreateCard())
	s.router.HandleFunc("PUT /cards/{id}", s.handleUpdateCard())
	s.router.HandleFunc("DELETE /cards/{id}", s.handleDeleteCard())

	// Study
	s.router.HandleFunc("GET /decks/{id}/stats", s.handleDeckStats())
	s.router.HandleFunc("POST /decks/{id}/sessions", s.handleStartSession())
	s.router.HandleFunc("GET /decks/{id}/sessions", s.handleSessionHistory())
	s.router.HandleFunc("GET /sessions/{id}", s.handleGetSession())
	s.router.HandleFunc("POST /sessions/{id}/complete", s.handleCompleteSession())
	s.router.HandleFunc("GET /sessions/{id}/ratings", s.handleSessionRatings())
	s.router.HandleFunc("POST /cards/{id}/review", s.handleReview())
	s.router.HandleFunc("GET /cards/{id}/preview", s.handlePreview())

	// Source management
	s.router.HandleFunc("GET /sources", s.handleListSources())
	s.router.HandleFunc("POST /sources", s.handleCreateSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs every request, at warn level for client errors and
// error level for server errors.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		switch {
		case rec.status >= 500:
			level = slog.LevelError
		case rec.status >= 400:
			level = slog.LevelWarn
		}
		s.log.LogAttrs(r.Context(), level, "request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, fsrs.ErrInvalidRating),
		errors.Is(err, domain.ErrInvalidDeck),
		errors.Is(err, domain.ErrInvalidCard),
		errors.Is(err, domain.ErrInvalidSession),
		errors.Is(err, domain.ErrCardNotInSession):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCardConflict),
		errors.Is(err, domain.ErrSessionCompleted),
		errors.Is(err, fsrs.ErrReviewBeforeLastReview),
		errors.Is(err, errSourceExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
