package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/couchcryptid/flood-inundation/internal/connectivity"
	"github.com/couchcryptid/flood-inundation/internal/domain"
	"github.com/couchcryptid/flood-inundation/internal/geometry"
	"github.com/couchcryptid/flood-inundation/internal/raster"
	"github.com/couchcryptid/flood-inundation/internal/series"
	"github.com/couchcryptid/flood-inundation/internal/terrain"
)

// run is the state of one computation. Every grid is owned by the stage that
// produced it and replaced, never modified, by later stages.
type run struct {
	req     domain.RunRequest
	store   ResultStore
	log     *slog.Logger
	summary *domain.RunSummary

	dtm  terrain.Terrain
	epsg int

	max1D, max2D domain.LocationMax
	want1D       bool
	want2D       bool

	faces       []geom.Polygon
	maxFaceArea float64
	areas1D     []domain.AreaPolygon
	areas2D     []domain.AreaPolygon

	depth1D, depth2D *raster.Grid
	final            *raster.Grid
}

func (r *run) has1D() bool { return len(r.areas1D) > 0 }
func (r *run) has2D() bool { return len(r.areas2D) > 0 }

func (r *run) levelMode() bool { return r.req.Quantity == domain.QuantityLevel }

// extract reduces the result series to per-location maxima.
func (p *Pipeline) extract(r *run) error {
	req := r.req
	if !r.levelMode() {
		if !req.Domain.Includes2D() {
			r.log.Warn("depth runs only use 2D results, nothing to compute for the 1D domain")
			return nil
		}
		ex, err := series.Extract(r.store, series.Depth2D, req.Window)
		if err != nil {
			return err
		}
		r.max2D = series.MaskDry(ex.Max, ex.Max)
		r.want2D = ex.Steps > 0
		r.log.Info("series extracted", "domain", "2d", "variable", ex.Variable, "steps", ex.Steps, "locations", len(r.max2D))
		return nil
	}

	if req.Domain.Includes1D() {
		ex, ok, err := r.optional(series.Level1D, "1d")
		if err != nil {
			return err
		}
		if ok {
			r.max1D = ex.Max
			r.want1D = ex.Steps > 0
		}
	}
	if req.Domain.Includes2D() {
		ex, ok, err := r.optional(series.Level2D, "2d")
		if err != nil {
			return err
		}
		if ok {
			r.max2D = ex.Max
			r.want2D = ex.Steps > 0
			depth, err := series.Extract(r.store, series.Depth2D, req.Window)
			switch {
			case errors.Is(err, domain.ErrUnknownQuantity):
				r.log.Debug("no 2D water depth in results, bed levels of dry faces are kept")
			case err != nil:
				return err
			default:
				r.max2D = series.MaskDry(ex.Max, depth.Max)
			}
		}
	}
	return nil
}

// optional extracts a level series. When both domains were requested a
// missing variable leaves that domain empty instead of failing the run.
func (r *run) optional(variants []string, dom string) (series.Extraction, bool, error) {
	ex, err := series.Extract(r.store, variants, r.req.Window)
	if errors.Is(err, domain.ErrUnknownQuantity) && r.req.Domain == domain.DomainBoth {
		r.log.Info("domain absent from results", "domain", dom)
		return series.Extraction{}, false, nil
	}
	if err != nil {
		return series.Extraction{}, false, err
	}
	r.log.Info("series extracted", "domain", dom, "variable", ex.Variable, "steps", ex.Steps, "locations", len(ex.Max))
	return ex, true, nil
}

// buildAreas turns faces and nodes into area polygons carrying their maxima.
func (p *Pipeline) buildAreas(r *run) error {
	if r.want2D {
		if err := p.faceAreas(r); err != nil {
			return err
		}
	}
	if r.want1D {
		if err := p.nodeAreas(r); err != nil {
			return err
		}
	}
	r.summary.OneD.Present, r.summary.OneD.Areas = r.has1D(), len(r.areas1D)
	r.summary.TwoD.Present, r.summary.TwoD.Areas = r.has2D(), len(r.areas2D)

	if r.req.Debug {
		dir := filepath.Dir(r.req.OutputPath)
		prefix := r.req.Quantity.FilePrefix()
		for _, layer := range []struct {
			suffix string
			areas  []domain.AreaPolygon
		}{{"1D.shp", r.areas1D}, {"2D.shp", r.areas2D}} {
			if len(layer.areas) == 0 {
				continue
			}
			if err := p.stores.WriteAreas(filepath.Join(dir, prefix+layer.suffix), layer.areas); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) faceAreas(r *run) error {
	faces, err := r.store.Faces2D()
	if err != nil {
		return err
	}
	for _, f := range faces {
		poly, err := geometry.Repair(geom.Polygon{f.Ring})
		if err != nil {
			return fmt.Errorf("2D face %d: %w", f.Location, err)
		}
		if poly == nil {
			continue
		}
		r.faces = append(r.faces, poly)
		r.maxFaceArea = math.Max(r.maxFaceArea, geometry.Area(poly))
		v, ok := r.max2D.Get(f.Location)
		if !ok {
			v = math.NaN()
		}
		r.areas2D = append(r.areas2D, domain.AreaPolygon{Polygon: poly, Location: f.Location, Max: v})
	}
	r.log.Info("2D areas built", "polygons", len(r.areas2D), "max_face_area", r.maxFaceArea)
	return nil
}

func (p *Pipeline) nodeAreas(r *run) error {
	nodes, err := r.store.Nodes1D()
	if err != nil {
		return err
	}
	sites := make([]geometry.Site, 0, len(nodes))
	pts := make([]geom.Point, 0, len(nodes))
	for _, n := range nodes {
		v, ok := r.max1D.Get(n.Location)
		if !ok {
			v = math.NaN()
		}
		pt := geom.Point{X: n.X, Y: n.Y}
		sites = append(sites, geometry.Site{Location: n.Location, Point: pt, Value: v})
		pts = append(pts, pt)
	}

	if r.req.BoundingAreaPath != "" {
		regions, err := p.stores.ReadAreas(r.req.BoundingAreaPath, r.modelSR())
		if err != nil {
			return err
		}
		r.areas1D = geometry.VoronoiWithin(sites, regions)
	} else {
		region := geometry.DefaultRegion(r.dtm.Grid.Footprint(), pts)
		r.areas1D = geometry.Voronoi(sites, region)
	}
	voronoi := len(r.areas1D)

	// Without the connectivity filter 1D only covers what 2D does not.
	if r.has2D() && !r.req.Filter {
		r.areas1D = geometry.NewFaceIndex(r.faces).Carve(r.areas1D)
	}
	r.log.Info("1D areas built", "nodes", len(nodes), "voronoi_cells", voronoi, "polygons", len(r.areas1D))
	return nil
}

// modelSR returns the model CRS used to reproject bounding areas, or nil
// when the result file does not define one.
func (r *run) modelSR() *proj.SR {
	def := r.store.Proj4()
	if def == "" {
		return nil
	}
	sr, err := proj.Parse(def)
	if err != nil {
		r.log.Warn("ignoring unparseable model projection", "proj4", def, "error", err)
		return nil
	}
	return sr
}

// rasterize burns the areas onto the terrain grid and derives depths.
func (p *Pipeline) rasterize(r *run) error {
	spec := r.dtm.Grid.Spec
	if r.has1D() {
		level, err := raster.Rasterize(spec, Shapes(r.areas1D))
		if err != nil {
			return err
		}
		if r.depth1D, err = raster.Depth(level, r.dtm.Grid); err != nil {
			return err
		}
	}
	if r.has2D() {
		factor := 0.0
		if r.levelMode() && r.req.Extrapolate {
			factor = r.req.ExtrapolationFactor
		}
		grid, err := raster.Rasterize(spec, Extrapolate(r.areas2D, factor))
		if err != nil {
			return err
		}
		if r.levelMode() {
			if r.depth2D, err = raster.Depth(grid, r.dtm.Grid); err != nil {
				return err
			}
		} else {
			r.depth2D = raster.PositiveOnly(grid)
		}
	}
	r.log.Info("depths computed",
		"cells_1d", raster.CountValid(r.depth1D), "cells_2d", raster.CountValid(r.depth2D))
	return p.debugRasters(r, namedGrid{"inun1d.tif", r.depth1D}, namedGrid{"inun2d.tif", r.depth2D})
}

// filter applies the connectivity filter to both domains. It only runs for
// level computations, where inundation is inferred from interpolated levels.
func (p *Pipeline) filter(r *run) error {
	if !r.req.Filter {
		return nil
	}
	if !r.levelMode() {
		r.log.Info("connectivity filter skipped for depth runs")
		return nil
	}
	var filter1D, filter2D *raster.Grid
	if r.has2D() {
		res, err := connectivity.Filter2D(r.depth2D, r.maxFaceArea)
		if err != nil {
			return err
		}
		r.depth2D, filter2D = res.Depth, res.Filter
		p.recordFilter(r, "2d", res, &r.summary.TwoD)
	}
	if r.has1D() {
		branches, err := r.store.Branches()
		if err != nil {
			return err
		}
		lines := make([]geom.LineString, 0, len(branches))
		for _, b := range branches {
			lines = append(lines, b.Line)
		}
		res, err := connectivity.Filter1D(r.depth1D, lines)
		if err != nil {
			return err
		}
		r.depth1D, filter1D = res.Depth, res.Filter
		p.recordFilter(r, "1d", res, &r.summary.OneD)
	}
	return p.debugRasters(r, namedGrid{"filter1d.tif", filter1D}, namedGrid{"filter2d.tif", filter2D})
}

func (p *Pipeline) recordFilter(r *run, dom string, res connectivity.Result, stats *domain.DomainStats) {
	stats.KeptComponents, stats.DroppedComponents = res.Kept, res.Dropped
	p.metrics.FilterComponents.WithLabelValues(dom, "kept").Add(float64(res.Kept))
	p.metrics.FilterComponents.WithLabelValues(dom, "dropped").Add(float64(res.Dropped))
	r.log.Info("connectivity filter applied", "domain", dom, "kept", res.Kept, "dropped", res.Dropped)
}

type namedGrid struct {
	name string
	grid *raster.Grid
}

// debugRasters writes intermediate grids next to the output when debugging.
// Nil grids are skipped.
func (p *Pipeline) debugRasters(r *run, grids ...namedGrid) error {
	if !r.req.Debug {
		return nil
	}
	dir := filepath.Dir(r.req.OutputPath)
	meta := raster.Metadata{EPSG: r.epsg, NoData: math.NaN(), HasNoData: true}
	for _, g := range grids {
		if g.grid == nil {
			continue
		}
		if err := p.stores.WriteRaster(filepath.Join(dir, g.name), g.grid, meta); err != nil {
			return err
		}
	}
	return nil
}
