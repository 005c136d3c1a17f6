// Package app wires all TalkDrill subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the provider chains,
// the vocabulary store, the dialogue generator, and the HTTP server from
// config; Run serves until the context is cancelled; Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options (WithLLM,
// WithStore, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/talkdrill/talkdrill/internal/config"
	"github.com/talkdrill/talkdrill/internal/dialogue"
	"github.com/talkdrill/talkdrill/internal/health"
	"github.com/talkdrill/talkdrill/internal/keyword"
	"github.com/talkdrill/talkdrill/internal/observe"
	"github.com/talkdrill/talkdrill/internal/server"
	"github.com/talkdrill/talkdrill/internal/vocab"
	"github.com/talkdrill/talkdrill/pkg/provider/llm"
	"github.com/talkdrill/talkdrill/pkg/provider/stt"
	"github.com/talkdrill/talkdrill/pkg/provider/tts"
)

const (
	// sessionTTL is how long an untouched practice session survives before
	// the reaper drops it.
	sessionTTL = 12 * time.Hour

	// reapInterval is how often the reaper scans the session registry.
	reapInterval = 10 * time.Minute

	// shutdownTimeout bounds the graceful drain of in-flight requests.
	shutdownTimeout = 10 * time.Second
)

// App owns all subsystem lifetimes of the TalkDrill server.
type App struct {
	cfg *config.Config
	log *slog.Logger

	registry *config.Registry
	llm      llm.Provider
	stt      stt.Provider
	tts      tts.Provider
	store    vocab.Store
	pool     *pgxpool.Pool
	srv      *server.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLLM injects an LLM provider instead of creating one from config.
func WithLLM(p llm.Provider) Option {
	return func(a *App) { a.llm = p }
}

// WithSTT injects an STT provider instead of creating one from config.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithTTS injects a TTS provider instead of creating one from config.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithStore injects a vocabulary store instead of connecting to PostgreSQL.
func WithStore(st vocab.Store) Option {
	return func(a *App) { a.store = st }
}

// WithRegistry overrides the provider factory registry.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New creates an App by wiring all subsystems together. Providers and the
// store are only constructed for the config sections that are filled in;
// routes whose collaborator is missing answer 503.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}

	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initServer()

	return a, nil
}

// initProviders builds the provider chains declared in config, skipping
// injected ones and empty config sections.
func (a *App) initProviders() error {
	var err error

	if a.llm == nil && a.cfg.Providers.LLM.Name != "" {
		if a.llm, err = buildLLM(a.registry, a.cfg.Providers.LLM); err != nil {
			return fmt.Errorf("llm %q: %w", a.cfg.Providers.LLM.Name, err)
		}
		a.llm = observe.InstrumentLLM(a.llm, a.cfg.Providers.LLM.Name, nil)
		a.log.Info("llm provider ready",
			"name", a.cfg.Providers.LLM.Name,
			"fallbacks", len(a.cfg.Providers.LLM.Fallbacks))
	}

	if a.stt == nil && a.cfg.Providers.STT.Name != "" {
		if a.stt, err = buildSTT(a.registry, a.cfg.Providers.STT); err != nil {
			return fmt.Errorf("stt %q: %w", a.cfg.Providers.STT.Name, err)
		}
		a.addCloser(a.stt)
		a.log.Info("stt provider ready", "name", a.cfg.Providers.STT.Name)
	}

	if a.tts == nil && a.cfg.Providers.TTS.Name != "" {
		if a.tts, err = buildTTS(a.registry, a.cfg.Providers.TTS); err != nil {
			return fmt.Errorf("tts %q: %w", a.cfg.Providers.TTS.Name, err)
		}
		a.log.Info("tts provider ready", "name", a.cfg.Providers.TTS.Name)
	}

	return nil
}

// addCloser registers v's Close method when it has one. Providers that hold
// native resources (whisper.cpp model memory) need explicit teardown.
func (a *App) addCloser(v any) {
	if c, ok := v.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
}

// initStore connects the PostgreSQL vocabulary store and runs migrations.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	dsn := a.cfg.Database.PostgresDSN
	if dsn == "" {
		a.log.Warn("no database configured, vocabulary routes disabled")
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	store := vocab.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return err
	}

	a.pool = pool
	a.store = store
	a.closers = append(a.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

// initServer assembles the HTTP server from whatever collaborators exist.
func (a *App) initServer() {
	var checkers []health.Checker
	if a.pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: a.pool.Ping,
		})
	}

	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithHealth(health.New(checkers...)),
	}
	if a.llm != nil {
		gen := dialogue.NewGenerator(a.llm, dialogue.WithLogger(a.log))
		opts = append(opts,
			server.WithGenerator(&generatorDefaults{
				inner: gen,
				level: a.cfg.Dialogue.Level,
				ratio: int(a.cfg.Dialogue.NewWordRatio * 100),
			}),
			server.WithAnalyzer(keyword.NewAnalyzer(a.llm, a.store, a.log)),
		)
	}
	if a.store != nil {
		opts = append(opts, server.WithStore(a.store))
	}
	if a.stt != nil {
		opts = append(opts, server.WithSTT(a.stt))
	}
	if a.tts != nil {
		opts = append(opts, server.WithTTS(a.tts))
	}

	a.srv = server.New(server.Config{
		SpokenThreshold: a.cfg.Practice.SpokenThreshold,
		DefaultVoiceID:  a.cfg.Speech.VoiceID,
		AllowedOrigins:  a.cfg.Server.AllowedOrigins,
	}, opts...)
}

// generatorDefaults fills config-level dialogue defaults into requests that
// leave them unset before delegating to the real generator.
type generatorDefaults struct {
	inner server.DialogueGenerator
	level string
	ratio int
}

func (g *generatorDefaults) Generate(ctx context.Context, req dialogue.Request) ([]dialogue.Line, error) {
	if req.Level == "" {
		req.Level = g.level
	}
	if req.NewWordRatio == 0 {
		req.NewWordRatio = g.ratio
	}
	return g.inner.Generate(ctx, req)
}

// Handler returns the assembled HTTP handler, for Run and for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Router()
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests and
// tears the subsystems down. A periodic reaper drops practice sessions that
// were abandoned longer than the TTL ago.
func (a *App) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("server listening",
			"addr", httpSrv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := a.srv.Sessions().PruneOlderThan(time.Now().Add(-sessionTTL)); n > 0 {
					a.log.Info("pruned abandoned practice sessions", "count", n)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(drainCtx)
	})

	err := g.Wait()
	a.Shutdown()
	return err
}

// Shutdown tears down all subsystems in reverse-init order. Safe to call
// more than once; only the first call does anything.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
	})
}
