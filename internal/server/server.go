// Package server exposes the practice engine, dialogue generation, vocabulary
// store, and speech providers over a JSON HTTP API.
//
// Routing is built on chi. Practice sessions live in an in-memory [Registry];
// everything else is stateless per request and delegates to the injected
// collaborators. Absent collaborators (nil store, nil providers) disable
// their routes with 503 responses rather than failing at startup, so a
// minimal deployment can run with nothing but the practice engine.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/internal/health"
	"github.com/talkdrill/talkdrill/internal/observe"
	"github.com/talkdrill/talkdrill/internal/vocab"
	"github.com/talkdrill/talkdrill/pkg/provider/stt"
	"github.com/talkdrill/talkdrill/pkg/provider/tts"
)

// DialogueGenerator produces a validated dialogue for a scene request.
// Implemented by [dialogue.Generator].
type DialogueGenerator interface {
	Generate(ctx context.Context, req dialogue.Request) ([]dialogue.Line, error)
}

// KeywordAnalyzer breaks a learning goal into its knowledge modules.
// Implemented by [keyword.Analyzer].
type KeywordAnalyzer interface {
	Analyze(ctx context.Context, goal string) (*vocab.Keyword, error)
}

// Config carries the request-independent settings the handlers need.
type Config struct {
	// SpokenThreshold is the default similarity pass bar for spoken sessions.
	// Zero falls back to 70.
	SpokenThreshold float64

	// DefaultVoiceID is the TTS voice used when a synthesis request does not
	// name one.
	DefaultVoiceID string

	// AllowedOrigins configures CORS. Empty disables cross-origin access.
	AllowedOrigins []string
}

// Server holds the handler collaborators and the session registry.
type Server struct {
	cfg       Config
	generator DialogueGenerator
	analyzer  KeywordAnalyzer
	store     vocab.Store
	stt       stt.Provider
	tts       tts.Provider
	sessions  *Registry
	metrics   *observe.Metrics
	health    *health.Handler
	log       *slog.Logger
}

// Option configures a [Server]. All collaborators are optional; routes whose
// collaborator is missing answer 503.
type Option func(*Server)

// WithGenerator sets the dialogue generator.
func WithGenerator(g DialogueGenerator) Option {
	return func(s *Server) { s.generator = g }
}

// WithAnalyzer sets the keyword analyzer.
func WithAnalyzer(a KeywordAnalyzer) Option {
	return func(s *Server) { s.analyzer = a }
}

// WithStore sets the vocabulary store.
func WithStore(st vocab.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithSTT sets the speech-to-text provider.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.stt = p }
}

// WithTTS sets the text-to-speech provider.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.tts = p }
}

// WithHealth sets the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a Server with the given configuration and collaborators.
func New(cfg Config, opts ...Option) *Server {
	if cfg.SpokenThreshold <= 0 {
		cfg.SpokenThreshold = 70
	}
	s := &Server{
		cfg:      cfg,
		sessions: NewRegistry(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Sessions exposes the practice session registry, e.g. for periodic pruning
// of abandoned sessions.
func (s *Server) Sessions() *Registry {
	return s.sessions
}

// Router builds the chi router with all routes and middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/dialogue", s.handleGenerateDialogue)

		r.Route("/vocabulary", func(r chi.Router) {
			r.Get("/", s.handleListWords)
			r.Post("/", s.handleUpsertWords)
			r.Post("/error", s.handleBumpError)
		})
		r.Put("/keyword-scope", s.handleKeywordScope)
		r.Post("/keywords/analyze", s.handleAnalyzeKeyword)

		r.Route("/practice", func(r chi.Router) {
			r.Post("/sessions", s.handleCreateSession)
			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/submit", s.handleSubmit)
				r.Post("/advance", s.handleAdvance)
				r.Post("/reveal", s.handleReveal)
				r.Post("/pass", s.handleForcePass)
				r.Post("/restart", s.handleRestart)
				r.Get("/report", s.handleReport)
			})
			r.Post("/analysis", s.handleSaveAnalysis)
		})

		r.Route("/speech", func(r chi.Router) {
			r.Post("/recognize", s.handleRecognize)
			r.Post("/synthesize", s.handleSynthesize)
		})
	})

	return r
}
