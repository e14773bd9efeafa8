// Command inundation computes one flood inundation raster from hydraulic
// model results and a terrain model.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkaadapter "github.com/couchcryptid/flood-inundation/internal/adapter/kafka"
	"github.com/couchcryptid/flood-inundation/internal/adapter/ledger"
	"github.com/couchcryptid/flood-inundation/internal/config"
	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/observability"
	"github.com/couchcryptid/flood-inundation/internal/pipeline"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2
	exitDry     = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitFailed
	}
	logger := observability.NewLogger(cfg)

	job, err := parseArgs(args, cfg, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		return exitInvalid
	}
	req, err := job.Request(cfg)
	if err != nil {
		logger.Error("invalid run request", "error", err)
		return exitInvalid
	}

	metrics := observability.NewMetrics()
	var sinks []pipeline.SummarySink
	if cfg.LedgerPath != "" {
		l, err := ledger.New(cfg.LedgerPath)
		if err != nil {
			logger.Error("failed to open run ledger", "path", cfg.LedgerPath, "error", err)
			return exitFailed
		}
		defer l.Close()
		sinks = append(sinks, l)
	}
	if cfg.KafkaEnabled() {
		pub := kafkaadapter.NewPublisher(cfg, logger)
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(pipeline.FileStores(), logger, metrics, sinks...)
	summary, err := p.Compute(ctx, req)
	pushMetrics(cfg, metrics, logger)

	switch {
	case err == nil:
		fmt.Fprintf(os.Stdout, "%s: %d inundated cells, max depth %.2f m\n",
			summary.OutputPath, summary.InundatedCells, summary.MaxDepth)
		return exitOK
	case pipeline.IsInvalid(err):
		return exitInvalid
	case errors.Is(err, domain.ErrNoInundationComputed):
		return exitDry
	default:
		return exitFailed
	}
}

func pushMetrics(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.PushgatewayURL, "inundation"); err != nil {
		logger.Warn("metrics push failed", "error", err)
	}
}
