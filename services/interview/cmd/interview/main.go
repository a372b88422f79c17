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
	"mockinterview/services/interview/internal/app"
	"mockinterview/services/interview/internal/config"
	"mockinterview/services/interview/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseDuration("tokenTTL", cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		Platform: platform.Config{
			DatabaseURL:     cfg.DatabaseURL,
			RedisAddr:       cfg.RedisAddr,
			RedisPassword:   cfg.RedisPassword,
			QueueStream:     cfg.QueueStream,
			QueueGroup:      cfg.QueueGroup,
			QueueMaxRetries: cfg.QueueMaxRetries,
			QueueRetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
			AMQPURL:         cfg.AMQPURL,
			AMQPExchange:    cfg.AMQPExchange,
			AMQPQueue:       "interview.notifications",
			MinioEndpoint:   cfg.MinioEndpoint,
			MinioAccessKey:  cfg.MinioAccessKey,
			MinioSecretKey:  cfg.MinioSecretKey,
			MinioBucket:     cfg.MinioBucket,
			MinioUseSSL:     cfg.MinioUseSSL,
			DataDir:         cfg.DataDir,
		},
		JWTSecret:   cfg.JWTSecret,
		TokenTTL:    tokenTTL,
		JWTIssuer:   cfg.JWTIssuer,
		JWTAudience: cfg.JWTAudience,
		JWTLeeway:   jwtLeeway,
		Generator: ai.GeneratorConfig{
			Provider:    cfg.LLMProvider,
			BaseURL:     cfg.LLMBaseURL,
			APIKey:      cfg.LLMAPIKey,
			Model:       cfg.LLMModel,
			Temperature: cfg.LLMTemperature,
		},
		QuestionCount:   cfg.QuestionCount,
		WhisperBaseURL:  cfg.WhisperBaseURL,
		WhisperAPIKey:   cfg.WhisperAPIKey,
		WhisperModel:    cfg.WhisperModel,
		WhisperLanguage: cfg.WhisperLanguage,
		CallTimeout:     time.Duration(cfg.CallTimeoutSeconds) * time.Second,
		Workers:         cfg.Workers,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer appCore.Close()

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		AllowedOrigins:           cfg.AllowedOrigins,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SignupRateLimitPerMinute: cfg.SignupRateLimitPerMinute,
		LoginRateLimitPerMinute:  cfg.LoginRateLimitPerMinute,
		AnswerRateLimitPerMinute: cfg.AnswerRateLimitPerMinute,
		MaxResumeBytes:           cfg.MaxResumeBytes,
		MaxAudioBytes:            cfg.MaxAudioBytes,
		ResumeExtensions:         cfg.ResumeExtensions,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := appCore.Start(ctx); err != nil {
		log.Fatalf("failed to start app: %v", err)
	}

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
		slog.Info("interview server listening", "addr", addr, "workers", cfg.Workers)
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
	slog.Info("interview server stopped")
}
