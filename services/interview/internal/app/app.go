package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mockinterview/internal/platform"
	"mockinterview/pkg/ai"
	"mockinterview/pkg/auth"
	"mockinterview/pkg/interview"
	"mockinterview/pkg/resume"
)

// Config holds runtime configuration for the core application.
type Config struct {
	Platform        platform.Config
	JWTSecret       string
	TokenTTL        time.Duration
	JWTIssuer       string
	JWTAudience     string
	JWTLeeway       time.Duration
	Generator       ai.GeneratorConfig
	QuestionCount   int
	WhisperBaseURL  string
	WhisperAPIKey   string
	WhisperModel    string
	WhisperLanguage string
	CallTimeout     time.Duration
	// Workers > 0 runs analysis and notification delivery in this process.
	Workers int

	QuestionGenerator interview.QuestionGenerator
	Transcriber       interview.Transcriber
	Analyzer          interview.ResponseAnalyzer
	Revoker           auth.TokenRevoker
}

// App is the core application service wiring the interview pipeline to
// accounts and infrastructure.
type App struct {
	platform   *platform.Platform
	tokens     *auth.TokenIssuer
	revoker    auth.TokenRevoker
	lifecycle  *interview.Lifecycle
	dispatcher *interview.Dispatcher
	reporter   *interview.Reporter
	notifier   *interview.Notifier
	workers    int

	signupMu sync.Mutex
	now      func() time.Time
}

// New opens the platform and builds the pipeline components.
func New(cfg Config) (*App, error) {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	plat, err := platform.Open(cfg.Platform)
	if err != nil {
		return nil, err
	}
	a, err := build(cfg, plat)
	if err != nil {
		_ = plat.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg Config, plat *platform.Platform) (*App, error) {
	revoker := cfg.Revoker
	if revoker == nil {
		if addr := strings.TrimSpace(cfg.Platform.RedisAddr); addr != "" {
			revoker = auth.NewRedisTokenRevoker(addr, cfg.Platform.RedisPassword, cfg.TokenTTL+cfg.JWTLeeway)
		} else {
			revoker = auth.NewMemoryTokenRevoker()
		}
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL, revoker, auth.TokenOptions{
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	generator := cfg.QuestionGenerator
	transcriber := cfg.Transcriber
	analyzer := cfg.Analyzer
	if generator == nil || (cfg.Workers > 0 && analyzer == nil) {
		text, err := ai.NewTextGenerator(cfg.Generator)
		if err != nil {
			return nil, fmt.Errorf("init text generator: %w", err)
		}
		if generator == nil {
			generator = ai.NewQuestionGenerator(text, cfg.QuestionCount)
		}
		if analyzer == nil {
			analyzer = ai.NewResponseAnalyzer(text)
		}
	}
	if transcriber == nil && cfg.Workers > 0 {
		transcriber = ai.NewWhisperTranscriber(cfg.WhisperBaseURL, cfg.WhisperAPIKey, cfg.WhisperModel, cfg.WhisperLanguage)
	}

	dispatcher, err := interview.NewDispatcher(interview.DispatcherConfig{
		Store:       plat.Store,
		Objects:     plat.Objects,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Queue:       plat.Queue,
		Bus:         plat.Bus,
		CallTimeout: cfg.CallTimeout,
		Concurrency: cfg.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	lifecycle, err := interview.NewLifecycle(interview.LifecycleConfig{
		Store:       plat.Store,
		Objects:     plat.Objects,
		Parser:      resume.NewParser(slog.Default()),
		Generator:   generator,
		Dispatcher:  dispatcher,
		CallTimeout: cfg.CallTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init lifecycle: %w", err)
	}
	return &App{
		platform:   plat,
		tokens:     tokens,
		revoker:    revoker,
		lifecycle:  lifecycle,
		dispatcher: dispatcher,
		reporter:   interview.NewReporter(plat.Store),
		notifier:   interview.NewNotifier(plat.Store),
		workers:    cfg.Workers,
		now:        time.Now,
	}, nil
}

// Start runs the embedded workers and notification consumer when enabled.
// It returns once they are running; they stop with ctx.
func (a *App) Start(ctx context.Context) error {
	if a.workers <= 0 {
		return nil
	}
	if err := a.platform.Bus.Subscribe(ctx, a.notifier.Handle); err != nil {
		return fmt.Errorf("subscribe notifier: %w", err)
	}
	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	slog.Info("embedded analysis workers started", "workers", a.workers)
	return nil
}

// Lifecycle exposes the session operations.
func (a *App) Lifecycle() *interview.Lifecycle { return a.lifecycle }

func (a *App) Reporter() *interview.Reporter { return a.reporter }

func (a *App) Notifier() *interview.Notifier { return a.notifier }

// Health reports backend failures by name; an empty map means healthy.
func (a *App) Health(ctx context.Context) map[string]string {
	return a.platform.Ping(ctx)
}

// Close releases the platform and the token revoker.
func (a *App) Close() error {
	var errs []error
	if c, ok := a.revoker.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, a.platform.Close())
	return errors.Join(errs...)
}
