package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/suteetoe/coopregistry/internal/directory"
	"github.com/suteetoe/coopregistry/internal/handler"
	"github.com/suteetoe/coopregistry/internal/identity"
	"github.com/suteetoe/coopregistry/internal/jobs"
	"github.com/suteetoe/coopregistry/internal/middleware"
	"github.com/suteetoe/coopregistry/internal/notification"
	"github.com/suteetoe/coopregistry/internal/registry"
	"github.com/suteetoe/coopregistry/internal/repository"
	"github.com/suteetoe/coopregistry/internal/storage"
	"github.com/suteetoe/coopregistry/internal/workflow"
	"github.com/suteetoe/coopregistry/pkg/config"
	"github.com/suteetoe/coopregistry/pkg/database"
	"github.com/suteetoe/coopregistry/pkg/jwtutil"
	"github.com/suteetoe/coopregistry/pkg/logger"
	"github.com/suteetoe/coopregistry/pkg/metrics"
	"github.com/suteetoe/coopregistry/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	conf, err := config.Load("coop-registry-service")
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.InitLogger(&logger.LogConfig{
		Level:       conf.Log.Level,
		Environment: conf.Server.Env,
		ServiceName: conf.ServiceName,
	})
	if err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting cooperative registry service...", conf.LogConfig()...)

	// Tracing is optional
	if conf.Tracing.CollectorHost != "" {
		tp, err := tracing.InitTracing(conf.Tracing.CollectorHost, conf.ServiceName)
		if err != nil {
			log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error("Failed to shut down tracer provider", zap.Error(err))
			}
		}()
	}

	// Initialize database
	db, err := database.InitDB(&conf.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if err := database.MigrateModels(db, repository.Models()...); err != nil {
		log.Fatal("Failed to migrate database models", zap.Error(err))
	}
	store := repository.NewGormStore(db)

	// Outbound channels are enabled by configuration
	var mailer notification.Mailer
	if m := notification.NewSMTPMailer(conf.SMTP); m != nil {
		mailer = m
	}
	var publisher notification.Publisher
	if p := notification.NewKafkaPublisher(conf.Kafka); p != nil {
		publisher = p
		defer p.Close()
	}
	dispatcher := notification.NewDispatcher(store, mailer, publisher)

	signer := storage.NewSigner(conf.Storage.Root, conf.Storage.BaseURL, conf.Storage.SigningKey, conf.Storage.URLTTL)
	provider := identity.NewBcryptProvider(store, 0)

	jwt := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{
		SigningKey:      conf.JWT.SigningKey,
		ExpirationHours: conf.JWT.ExpirationHours,
	})

	// Background jobs
	scheduler, err := jobs.NewScheduler(store, conf.Jobs.GaugeRefreshInterval, log)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	scheduler.Start()

	// Initialize HTTP metrics
	httpMetrics := metrics.NewHTTPMetrics(conf.Metrics.Prefix)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(httpMetrics.Middleware())
	e.Use(tracing.Middleware(otel.Tracer(conf.ServiceName)))

	handler.RegisterRoutes(e, &handler.Handlers{
		ServiceName:   conf.ServiceName,
		Directory:     directory.NewService(store, provider),
		Registry:      registry.NewService(store, signer),
		Workflow:      workflow.NewEngine(store, dispatcher),
		Notifications: dispatcher,
		Auth:          provider,
		Documents:     signer,
		JWT:           jwt,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Starting server", zap.String("port", conf.Server.Port))
		if err := e.Start(":" + conf.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(); err != nil {
		log.Error("Failed to stop scheduler", zap.Error(err))
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down server", zap.Error(err))
	}
}
