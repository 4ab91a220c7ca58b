// Package config assembles the media pipeline from declarative
// configuration: repository, storage gateway, event bus, intake service,
// worker, and reconciler.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/bus"
	"github.com/tendant/simple-media/pkg/simplemedia/media"
	repomemory "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	repopg "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	"github.com/tendant/simple-media/pkg/simplemedia/storage"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		StorageType:  "memory",
		BusType:      "inprocess",
		PresignTTL:   10 * time.Minute,
	}
}

// ServerConfig represents server configuration for the media pipeline.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Storage configuration. The gateway always spans two namespaces; for
	// the fs and memory backends the namespaces are subtrees of one root.
	StorageType     string // "memory", "fs", "s3"
	OriginalsBucket string
	AssetsBucket    string
	S3Region        string
	S3AccessKeyID   string
	S3SecretKey     string
	S3Endpoint      string
	S3UsePathStyle  bool
	FSBaseDir       string
	FSURLPrefix     string
	PresignTTL      time.Duration

	// Event bus configuration
	BusType      string // "inprocess", "kafka"
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Worker scratch space; empty means the system temp dir.
	ScratchDir string
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}
	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}
	switch c.StorageType {
	case "memory", "fs":
	case "s3":
		if c.OriginalsBucket == "" || c.AssetsBucket == "" {
			return errors.New("both originals and assets buckets are required for s3")
		}
	default:
		return errors.New("storage_type must be 'memory', 'fs' or 's3'")
	}
	switch c.BusType {
	case "inprocess":
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return errors.New("kafka brokers and topic are required when using kafka")
		}
	default:
		return errors.New("bus_type must be 'inprocess' or 'kafka'")
	}
	return nil
}

// BuildRepository creates a Repository based on the configuration.
func (c *ServerConfig) BuildRepository() (simplemedia.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// BuildGateway creates the storage gateway over the originals and assets
// namespaces.
func (c *ServerConfig) BuildGateway() (*storage.Gateway, error) {
	gwCfg := storage.GatewayConfig{PresignTTL: c.PresignTTL}

	switch c.StorageType {
	case "memory":
		return storage.NewGateway(memorystorage.New(), memorystorage.New(), gwCfg), nil

	case "fs":
		base := c.FSBaseDir
		if base == "" {
			base = "./data/storage"
		}
		originals, err := fsstorage.New(fsstorage.Config{BaseDir: base + "/originals"})
		if err != nil {
			return nil, fmt.Errorf("fs originals backend: %w", err)
		}
		assets, err := fsstorage.New(fsstorage.Config{BaseDir: base + "/assets", URLPrefix: c.FSURLPrefix})
		if err != nil {
			return nil, fmt.Errorf("fs assets backend: %w", err)
		}
		return storage.NewGateway(originals, assets, gwCfg), nil

	case "s3":
		originals, err := s3storage.New(c.s3Config(c.OriginalsBucket))
		if err != nil {
			return nil, fmt.Errorf("s3 originals backend: %w", err)
		}
		assets, err := s3storage.New(c.s3Config(c.AssetsBucket))
		if err != nil {
			return nil, fmt.Errorf("s3 assets backend: %w", err)
		}
		return storage.NewGateway(originals, assets, gwCfg), nil

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func (c *ServerConfig) s3Config(bucket string) s3storage.Config {
	return s3storage.Config{
		Region:          c.S3Region,
		Bucket:          bucket,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretKey,
		Endpoint:        c.S3Endpoint,
		UsePathStyle:    c.S3UsePathStyle,
	}
}

// BuildBus creates the processing event bus. The in-process bus is also the
// subscription point for the worker; a kafka deployment runs the consumer
// side separately.
func (c *ServerConfig) BuildBus(logger *slog.Logger) (simplemedia.EventBus, error) {
	switch c.BusType {
	case "inprocess":
		return bus.NewInProcess(logger), nil
	case "kafka":
		return bus.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", c.BusType)
	}
}

// BuildService creates the intake Service plus its collaborators from the
// server configuration.
func (c *ServerConfig) BuildService(logger *slog.Logger) (simplemedia.Service, *Runtime, error) {
	repo, err := c.BuildRepository()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build repository: %w", err)
	}
	gateway, err := c.BuildGateway()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build storage gateway: %w", err)
	}
	eventBus, err := c.BuildBus(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build event bus: %w", err)
	}

	transcoder := media.NewFFmpeg()

	opts := []simplemedia.Option{
		simplemedia.WithRepository(repo),
		simplemedia.WithStorage(gateway),
		simplemedia.WithEventBus(eventBus),
		simplemedia.WithTranscoder(transcoder),
		simplemedia.WithLogger(logger),
	}
	if c.ScratchDir != "" {
		opts = append(opts, simplemedia.WithScratchDir(c.ScratchDir))
	}
	svc, err := simplemedia.NewService(opts...)
	if err != nil {
		return nil, nil, err
	}

	workerCfg := simplemedia.DefaultWorkerConfig()
	if c.ScratchDir != "" {
		workerCfg.ScratchDir = c.ScratchDir
	}
	rt := &Runtime{
		Repository: repo,
		Gateway:    gateway,
		Bus:        eventBus,
		Worker:     simplemedia.NewWorker(repo, gateway, media.NewImagingResizer(), transcoder, workerCfg, logger),
		Reconciler: simplemedia.NewReconciler(repo, gateway, eventBus, simplemedia.DefaultReconcilerConfig(), logger),
	}
	return svc, rt, nil
}

// Runtime bundles the built collaborators that cmd wiring needs alongside
// the service itself.
type Runtime struct {
	Repository simplemedia.Repository
	Gateway    *storage.Gateway
	Bus        simplemedia.EventBus
	Worker     *simplemedia.Worker
	Reconciler *simplemedia.Reconciler
}
