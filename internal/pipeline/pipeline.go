// Package pipeline computes flood inundation rasters from hydraulic results
// and a terrain model.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync/atomic"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/observability"
	"github.com/couchcryptid/flood-inundation/internal/raster"
	"github.com/couchcryptid/flood-inundation/internal/series"
	"github.com/couchcryptid/flood-inundation/internal/terrain"
)

// ResultStore is an open hydraulic result file.
type ResultStore interface {
	series.Source
	Nodes1D() ([]domain.NodePoint, error)
	Faces2D() ([]domain.Face, error)
	Branches() ([]domain.Branch, error)
	// EPSG returns the model CRS, 0 when the file carries none.
	EPSG() int
	// Proj4 returns the model CRS definition, "" when the file carries none.
	Proj4() string
	Close() error
}

// Stores bundles the readers and writers a run uses.
type Stores struct {
	OpenResults func(path string) (ResultStore, error)
	LoadTerrain func(path string) (terrain.Terrain, error)
	WriteRaster func(path string, g *raster.Grid, meta raster.Metadata) error
	ReadAreas   func(path string, target *proj.SR) ([]geom.Polygon, error)
	WriteAreas  func(path string, areas []domain.AreaPolygon) error
}

// SummarySink receives the summary of every successful run. Failures are
// logged and never fail the run.
type SummarySink interface {
	Name() string
	Publish(ctx context.Context, s domain.RunSummary) error
}

// DefaultStuckAfter is how long a run may take before readiness fails.
const DefaultStuckAfter = 2 * time.Hour

// Pipeline runs inundation computations one at a time.
type Pipeline struct {
	stores  Stores
	sinks   []SummarySink
	logger  *slog.Logger
	metrics *observability.Metrics

	stuckAfter time.Duration
	runStart   atomic.Int64 // unix nanos of the active run, 0 when idle
}

// New creates a Pipeline with the given stores, observability and sinks.
func New(stores Stores, logger *slog.Logger, metrics *observability.Metrics, sinks ...SummarySink) *Pipeline {
	return &Pipeline{
		stores:     stores,
		sinks:      sinks,
		logger:     logger,
		metrics:    metrics,
		stuckAfter: DefaultStuckAfter,
	}
}

// SetStuckAfter changes the run duration after which CheckReadiness fails.
func (p *Pipeline) SetStuckAfter(d time.Duration) { p.stuckAfter = d }

// CheckReadiness returns an error when the active run has exceeded its
// deadline.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	started := p.runStart.Load()
	if started == 0 {
		return nil
	}
	if elapsed := domain.Now().Sub(time.Unix(0, started)); elapsed > p.stuckAfter {
		return fmt.Errorf("run in progress for %s", elapsed.Round(time.Second))
	}
	return nil
}

// Compute runs one inundation computation and writes the merged depth raster
// to req.OutputPath.
func (p *Pipeline) Compute(ctx context.Context, req domain.RunRequest) (domain.RunSummary, error) {
	summary := domain.NewRunSummary(req)
	logger := p.logger.With("run_id", summary.ID)

	p.runStart.Store(summary.StartedAt.UnixNano())
	p.metrics.RunInProgress.Set(1)
	defer func() {
		p.runStart.Store(0)
		p.metrics.RunInProgress.Set(0)
	}()

	err := p.compute(ctx, req, &summary, logger)
	summary.Complete()
	p.metrics.Runs.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		logger.Error("run failed", "error", err, "duration", summary.Duration)
		return summary, err
	}
	p.metrics.RunDuration.Observe(summary.Duration.Seconds())
	logger.Info("run complete",
		"output", summary.OutputPath,
		"inundated_cells", summary.InundatedCells,
		"max_depth", summary.MaxDepth,
		"duration", summary.Duration,
	)
	p.publish(ctx, summary, logger)
	return summary, nil
}

// outcome labels a run result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNoInundationComputed):
		return "no_inundation"
	case IsInvalid(err):
		return "invalid"
	default:
		return "error"
	}
}

// IsInvalid reports whether err stems from a bad request rather than a
// failure while computing it.
func IsInvalid(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest) ||
		errors.Is(err, domain.ErrInvalidTimeWindow) ||
		errors.Is(err, domain.ErrUnknownQuantity) ||
		errors.Is(err, domain.ErrInvalidDomain)
}

func (p *Pipeline) publish(ctx context.Context, s domain.RunSummary, logger *slog.Logger) {
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, s); err != nil {
			logger.Warn("publish run summary failed", "sink", sink.Name(), "error", err)
		}
	}
}

func (p *Pipeline) compute(ctx context.Context, req domain.RunRequest, summary *domain.RunSummary, logger *slog.Logger) error {
	if err := req.Validate(); err != nil {
		return err
	}

	store, err := p.stores.OpenResults(req.ResultPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close result store", "error", err)
		}
	}()

	r := &run{req: req, store: store, log: logger, summary: summary}

	stages := []struct {
		name string
		fn   func(*run) error
	}{
		{"terrain", p.loadTerrain},
		{"extract", p.extract},
		{"areas", p.buildAreas},
		{"rasterize", p.rasterize},
		{"filter", p.filter},
		{"merge", p.merge},
		{"write", p.write},
	}
	for _, st := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := domain.Now()
		err := st.fn(r)
		p.metrics.StageDuration.WithLabelValues(st.name).Observe(domain.Now().Sub(start).Seconds())
		if err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}
	return nil
}

func (p *Pipeline) loadTerrain(r *run) error {
	dtm, err := p.stores.LoadTerrain(r.req.TerrainPath)
	if err != nil {
		return err
	}
	r.dtm = dtm
	spec := dtm.Grid.Spec
	r.summary.Width, r.summary.Height = spec.Width, spec.Height
	r.summary.CellSize = spec.Transform.CellWidth()

	switch {
	case dtm.Meta.EPSG > 0:
		r.epsg = dtm.Meta.EPSG
	case r.store.EPSG() > 0:
		r.epsg = r.store.EPSG()
	default:
		r.epsg = r.req.DefaultEPSG
		r.summary.FallbackCRS = true
		r.log.Warn("no coordinate reference system in terrain or results, using fallback", "epsg", r.epsg)
	}
	r.summary.EPSG = r.epsg
	r.log.Info("terrain loaded", "width", spec.Width, "height", spec.Height,
		"cell_size", r.summary.CellSize, "invalid_cells", dtm.Invalid, "epsg", r.epsg)
	return nil
}

func (p *Pipeline) merge(r *run) error {
	var oneD, twoD *raster.Grid
	if r.has1D() {
		oneD = r.depth1D
	}
	if r.has2D() {
		twoD = r.depth2D
	}
	final, err := raster.Merge(twoD, oneD)
	if err != nil {
		return err
	}
	r.final = final
	return nil
}

func (p *Pipeline) write(r *run) error {
	meta := raster.Metadata{EPSG: r.epsg, NoData: math.NaN(), HasNoData: true}
	if err := p.stores.WriteRaster(r.req.OutputPath, r.final, meta); err != nil {
		return err
	}
	sum, err := hashFile(r.req.OutputPath)
	if err != nil {
		return err
	}

	stats := raster.Summarize(r.final)
	s := r.summary
	s.OutputSHA256 = sum
	s.InundatedCells = stats.Valid
	s.InundatedArea = stats.Area
	s.MaxDepth = stats.Max
	s.MeanDepth = stats.Mean
	s.OneD.InundatedCells = raster.CountValid(r.depth1D)
	s.TwoD.InundatedCells = raster.CountValid(r.depth2D)

	p.metrics.InundatedCells.WithLabelValues("1d").Set(float64(s.OneD.InundatedCells))
	p.metrics.InundatedCells.WithLabelValues("2d").Set(float64(s.TwoD.InundatedCells))
	p.metrics.InundatedCells.WithLabelValues("merged").Set(float64(stats.Valid))
	p.metrics.MaxDepth.Set(stats.Max)
	r.log.Info("inundation written", "path", r.req.OutputPath, "cells", stats.Valid, "area", stats.Area)
	return nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read back %s: %w", domain.ErrIO, path, err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
