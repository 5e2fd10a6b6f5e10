package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/webseal/internal/acquisition"
	"github.com/your-org/webseal/internal/capture"
	"github.com/your-org/webseal/internal/evidence"
	"github.com/your-org/webseal/internal/integrity"
	"github.com/your-org/webseal/internal/timestamp"
	"github.com/your-org/webseal/pkg/config"
	"github.com/your-org/webseal/pkg/kafka"
	"github.com/your-org/webseal/pkg/logger"
	"github.com/your-org/webseal/pkg/storage/objectstore"
	"github.com/your-org/webseal/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := evidence.NewStore(cfg.Evidence.Root)
	if err != nil {
		logr.Fatal("init evidence store", zap.Error(err))
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.EvidenceTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
	})

	var replica objectstore.Client
	if cfg.Replica.Endpoint != "" {
		replica, err = objectstore.New(objectstore.Config{
			Provider:  cfg.Replica.Provider,
			Endpoint:  cfg.Replica.Endpoint,
			Region:    cfg.Replica.Region,
			Bucket:    cfg.Replica.Bucket,
			AccessKey: cfg.Replica.AccessKey,
			SecretKey: cfg.Replica.SecretKey,
			UseSSL:    cfg.Replica.UseSSL,
		})
		if err != nil {
			logr.Fatal("init replica store", zap.Error(err))
		}
	}

	fetcher := capture.NewFetcher(capture.FetchConfig{
		MaxRedirects: cfg.Capture.MaxRedirects,
		Timeout:      cfg.Capture.Timeout,
		UserAgent:    cfg.Capture.UserAgent,
	}, logr)

	var renderer capture.Renderer
	if cfg.Render.Endpoint != "" {
		renderer = capture.NewHTTPRenderer(cfg.Render.Endpoint, cfg.Render.Timeout, logr)
	}

	stamper := timestamp.NewStamper(timestamp.Config{
		Enabled:   cfg.Timestamp.Enabled,
		Calendars: cfg.Timestamp.Calendars,
		Timeout:   cfg.Timestamp.Timeout,
	}, logr)

	service := acquisition.NewService(acquisition.Params{
		Store:    store,
		Fetcher:  fetcher,
		Renderer: renderer,
		Hasher:   integrity.NewEngine(logr),
		Stamper:  stamper,
		Producer: producer,
		Replica:  replica,
		Logger:   logr,
		Options: acquisition.Options{
			MaxRedirects:   cfg.Capture.MaxRedirects,
			Timeout:        cfg.Capture.Timeout,
			UserAgent:      cfg.Capture.UserAgent,
			ViewportWidth:  cfg.Render.ViewportWidth,
			ViewportHeight: cfg.Render.ViewportHeight,
			RecordVideo:    cfg.Render.RecordVideo,
		},
	})

	handler := acquisition.NewHTTPHandler(service, logr)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if err := service.Close(shutdownCtx); err != nil {
			logr.Error("service shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("capture service starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func parseResourceAttributes(raw string) map[string]string {
	if raw == "" {
		return map[string]string{}
	}
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" || !strings.Contains(pair, "=") {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		attrs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return attrs
}
