package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"mockinterview/internal/platform"
	"mockinterview/internal/util"
	"mockinterview/pkg/ai"
	"mockinterview/services/analyzer/internal/app"
	"mockinterview/services/analyzer/internal/config"
	"mockinterview/services/analyzer/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		Platform: platform.Config{
			DatabaseURL:     cfg.DatabaseURL,
			RedisAddr:       cfg.RedisAddr,
			RedisPassword:   cfg.RedisPassword,
			QueueStream:     cfg.QueueStream,
			QueueGroup:      cfg.QueueGroup,
			QueueConsumer:   cfg.QueueConsumer,
			QueueMaxRetries: cfg.QueueMaxRetries,
			QueueRetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
			AMQPURL:         cfg.AMQPURL,
			AMQPExchange:    cfg.AMQPExchange,
			AMQPQueue:       cfg.AMQPQueue,
			MinioEndpoint:   cfg.MinioEndpoint,
			MinioAccessKey:  cfg.MinioAccessKey,
			MinioSecretKey:  cfg.MinioSecretKey,
			MinioBucket:     cfg.MinioBucket,
			MinioUseSSL:     cfg.MinioUseSSL,
		},
		Generator: ai.GeneratorConfig{
			Provider:    cfg.LLMProvider,
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		},
		WhisperBaseURL:  cfg.WhisperBaseURL,
		WhisperAPIKey:   cfg.WhisperAPIKey,
		WhisperModel:    cfg.WhisperModel,
		WhisperLanguage: cfg.WhisperLanguage,
		CallTimeout:     time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		Concurrency:     cfg.Concurrency,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := appCore.Start(ctx); err != nil {
		log.Fatalf("failed to start workers: %v", err)
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		InternalToken: cfg.InternalToken,
	})
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("analyzer server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	slog.Info("analyzer stopped")
}
