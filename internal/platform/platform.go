// Package platform opens the infrastructure shared by the interview and
// analyzer services: metadata store, job queue, event bus and object storage.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"mockinterview/pkg/events"
	"mockinterview/pkg/queue"
	"mockinterview/pkg/storage"
	"mockinterview/pkg/store"
)

// Config selects a backend per concern. An empty address picks the in-process
// implementation, which is only useful when one process runs everything.
type Config struct {
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	QueueStream     string
	QueueGroup      string
	QueueConsumer   string
	QueueMaxRetries int
	QueueRetryDelay time.Duration
	AMQPURL         string
	AMQPExchange    string
	AMQPQueue       string
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
	DataDir         string

	// Prebuilt backends win over the settings above.
	Store   store.Store
	Queue   queue.Queue
	Bus     events.Bus
	Objects storage.ObjectStore
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Platform holds the opened backends.
type Platform struct {
	Store   store.Store
	Queue   queue.Queue
	Bus     events.Bus
	Objects storage.ObjectStore

	pingers map[string]pinger
	closers []io.Closer
}

// Open builds every backend named by cfg. On error anything already opened
// is closed again.
func Open(cfg Config) (*Platform, error) {
	p := &Platform{pingers: make(map[string]pinger)}
	opened := false
	defer func() {
		if !opened {
			_ = p.Close()
		}
	}()

	if err := p.openStore(cfg); err != nil {
		return nil, err
	}
	if err := p.openQueue(cfg); err != nil {
		return nil, err
	}
	if err := p.openBus(cfg); err != nil {
		return nil, err
	}
	if err := p.openObjects(cfg); err != nil {
		return nil, err
	}
	opened = true
	return p, nil
}

func (p *Platform) openStore(cfg Config) error {
	if cfg.Store != nil {
		p.Store = cfg.Store
		return nil
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		slog.Warn("no databaseURL configured, using in-memory store")
		p.Store = store.NewMemoryStore()
		return nil
	}
	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init postgres store: %w", err)
	}
	p.Store = gormStore
	p.track("postgres", gormStore)
	return nil
}

func (p *Platform) openQueue(cfg Config) error {
	if cfg.Queue != nil {
		p.Queue = cfg.Queue
		return nil
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		slog.Warn("no redisAddr configured, using in-memory analysis queue")
		p.Queue = queue.NewMemoryQueue(queue.MemoryQueueConfig{
			MaxRetries:    cfg.QueueMaxRetries,
			RetryDelay:    cfg.QueueRetryDelay,
			MaxRetryDelay: time.Minute,
		})
		return nil
	}
	stream := cfg.QueueStream
	if stream == "" {
		stream = "interview:analysis"
	}
	group := cfg.QueueGroup
	if group == "" {
		group = "analyzers"
	}
	redisQueue, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     stream,
		Group:      group,
		Consumer:   cfg.QueueConsumer,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: cfg.QueueRetryDelay,
	})
	if err != nil {
		return fmt.Errorf("init redis queue: %w", err)
	}
	p.Queue = redisQueue
	p.track("redis", redisQueue)
	return nil
}

func (p *Platform) openBus(cfg Config) error {
	if cfg.Bus != nil {
		p.Bus = cfg.Bus
		return nil
	}
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		slog.Warn("no amqpURL configured, using in-process event bus")
		bus := events.NewMemoryBus()
		p.Bus = bus
		p.closers = append(p.closers, bus)
		return nil
	}
	bus, err := events.NewAMQPBus(events.AMQPConfig{
		URL:      cfg.AMQPURL,
		Exchange: cfg.AMQPExchange,
		Queue:    cfg.AMQPQueue,
	})
	if err != nil {
		return fmt.Errorf("init amqp bus: %w", err)
	}
	p.Bus = bus
	p.closers = append(p.closers, bus)
	return nil
}

func (p *Platform) openObjects(cfg Config) error {
	if cfg.Objects != nil {
		p.Objects = cfg.Objects
		return nil
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return fmt.Errorf("init minio store: %w", err)
		}
		p.Objects = minioStore
		return nil
	}
	dir := cfg.DataDir
	if dir == "" {
		dir = "data"
	}
	fileStore, err := storage.NewFileStore(dir)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}
	p.Objects = fileStore
	return nil
}

func (p *Platform) track(name string, v any) {
	if pg, ok := v.(pinger); ok {
		p.pingers[name] = pg
	}
	if c, ok := v.(io.Closer); ok {
		p.closers = append(p.closers, c)
	}
}

// Ping checks every networked backend that supports it and returns the
// failures by name.
func (p *Platform) Ping(ctx context.Context) map[string]string {
	failures := make(map[string]string)
	for name, pg := range p.pingers {
		if err := pg.Ping(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	return failures
}

// Close releases backends in reverse order of opening.
func (p *Platform) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
