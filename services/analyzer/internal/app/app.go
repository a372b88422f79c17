package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mockinterview/internal/platform"
	"mockinterview/pkg/ai"
	"mockinterview/pkg/interview"
	"mockinterview/pkg/queue"
)

// Config holds runtime configuration for the analyzer.
type Config struct {
	Platform        platform.Config
	Generator       ai.GeneratorConfig
	WhisperBaseURL  string
	WhisperAPIKey   string
	WhisperModel    string
	WhisperLanguage string
	CallTimeout     time.Duration
	Concurrency     int

	Transcriber interview.Transcriber
	Analyzer    interview.ResponseAnalyzer
}

// App runs analysis workers off the shared queue and turns pipeline events
// into notifications.
type App struct {
	platform    *platform.Platform
	dispatcher  *interview.Dispatcher
	notifier    *interview.Notifier
	concurrency int
}

// New opens the platform and builds the dispatcher.
func New(cfg Config) (*App, error) {
	transcriber := cfg.Transcriber
	if transcriber == nil {
		transcriber = ai.NewWhisperTranscriber(cfg.WhisperBaseURL, cfg.WhisperAPIKey, cfg.WhisperModel, cfg.WhisperLanguage)
	}
	analyzer := cfg.Analyzer
	if analyzer == nil {
		text, err := ai.NewTextGenerator(cfg.Generator)
		if err != nil {
			return nil, fmt.Errorf("init text generator: %w", err)
		}
		analyzer = ai.NewResponseAnalyzer(text)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}

	plat, err := platform.Open(cfg.Platform)
	if err != nil {
		return nil, err
	}
	dispatcher, err := interview.NewDispatcher(interview.DispatcherConfig{
		Store:       plat.Store,
		Objects:     plat.Objects,
		Transcriber: transcriber,
		Analyzer:    analyzer,
		Queue:       plat.Queue,
		Bus:         plat.Bus,
		CallTimeout: cfg.CallTimeout,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		_ = plat.Close()
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}
	return &App{
		platform:    plat,
		dispatcher:  dispatcher,
		notifier:    interview.NewNotifier(plat.Store),
		concurrency: cfg.Concurrency,
	}, nil
}

// Start subscribes the notifier and launches the workers. Both stop with ctx.
func (a *App) Start(ctx context.Context) error {
	if err := a.platform.Bus.Subscribe(ctx, a.notifier.Handle); err != nil {
		return fmt.Errorf("subscribe notifier: %w", err)
	}
	if err := a.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	slog.Info("analysis workers started", "concurrency", a.concurrency)
	return nil
}

// Job returns an analysis job by id.
func (a *App) Job(ctx context.Context, id string) (queue.Job, bool, error) {
	return a.dispatcher.Job(ctx, id)
}

func (a *App) Health(ctx context.Context) map[string]string {
	return a.platform.Ping(ctx)
}

func (a *App) Close() error {
	return a.platform.Close()
}
