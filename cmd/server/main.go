package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/bus"
	"github.com/tendant/simple-media/pkg/simplemedia/config"
)

// ScheduleConfig holds the reconciliation cadence, read directly from the
// environment.
type ScheduleConfig struct {
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" env-default:"1h"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" env-default:"24h"`
}

func main() {
	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var schedule ScheduleConfig
	if err := cleanenv.ReadEnv(&schedule); err != nil {
		logger.Error("failed to read schedule configuration", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		logger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	svc, rt, err := cfg.BuildService(logger)
	if err != nil {
		logger.Error("failed to build service", "err", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wire the worker to its trigger. The in-process bus calls it directly;
	// a kafka deployment consumes the topic in this same process.
	switch b := rt.Bus.(type) {
	case *bus.InProcess:
		b.Subscribe(rt.Worker.Process)
	case *bus.KafkaPublisher:
		consumer := bus.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, logger)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(rootCtx, rt.Worker.Process); err != nil {
				logger.Error("kafka consumer stopped", "err", err)
			}
		}()
	}

	// Reconciliation schedulers. Single active instance assumed.
	go runEvery(rootCtx, schedule.SweepInterval, func(ctx context.Context) {
		if _, err := rt.Reconciler.SweepStalled(ctx); err != nil {
			logger.Error("stalled sweep failed", "err", err)
		}
	})
	go runEvery(rootCtx, schedule.PurgeInterval, func(ctx context.Context) {
		if _, err := rt.Reconciler.PurgeExpired(ctx); err != nil {
			logger.Error("expiry purge failed", "err", err)
		}
	})

	// Set up router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Mount("/media", api.NewMediaHandler(svc).Routes())
	r.Mount("/albums", api.NewAlbumHandler(svc).Routes())
	r.Mount("/admin", api.NewAdminHandler(rt.Reconciler).Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	// Drain in-flight processing before exit.
	if b, ok := rt.Bus.(*bus.InProcess); ok {
		b.Wait()
	}

	logger.Info("server exiting")
}

// runEvery runs fn on a fixed cadence until ctx is canceled.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
