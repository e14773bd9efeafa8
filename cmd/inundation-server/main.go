// Command inundation-server accepts inundation runs over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/flood-inundation/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-inundation/internal/adapter/kafka"
	"github.com/couchcryptid/flood-inundation/internal/adapter/ledger"
	"github.com/couchcryptid/flood-inundation/internal/config"
	"github.com/couchcryptid/flood-inundation/internal/observability"
	"github.com/couchcryptid/flood-inundation/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	var (
		sinks []pipeline.SummarySink
		runs  httpadapter.RunLister
		l     *ledger.Ledger
		pub   *kafkaadapter.Publisher
	)
	if cfg.LedgerPath != "" {
		l, err = ledger.New(cfg.LedgerPath)
		if err != nil {
			logger.Error("failed to open run ledger", "path", cfg.LedgerPath, "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, l)
		runs = l
		logger.Info("run ledger enabled", "path", cfg.LedgerPath)
	}
	if cfg.KafkaEnabled() {
		pub = kafkaadapter.NewPublisher(cfg, logger)
		sinks = append(sinks, pub)
		logger.Info("kafka summaries enabled", "topic", cfg.KafkaSummaryTopic)
	} else {
		logger.Info("kafka summaries disabled")
	}

	p := pipeline.New(pipeline.FileStores(), logger, metrics, sinks...)
	srv := httpadapter.NewServer(cfg, p, runs, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if pub != nil {
		if err := pub.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if l != nil {
		if err := l.Close(); err != nil {
			logger.Error("ledger close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
