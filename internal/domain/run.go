package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultExtrapolationFactor scales sqrt(face area) into the buffer radius
// used when extrapolating 2D faces.
const DefaultExtrapolationFactor = 0.5

// RunRequest is one inundation computation.
type RunRequest struct {
	ResultPath  string `json:"result_path" yaml:"results"`
	OutputPath  string `json:"output_path" yaml:"output"`
	TerrainPath string `json:"terrain_path" yaml:"dtm"`

	Quantity Quantity   `json:"-" yaml:"-"`
	Domain   Domain     `json:"-" yaml:"-"`
	Window   TimeWindow `json:"-" yaml:"-"`

	Filter              bool    `json:"filter" yaml:"filter"`
	Extrapolate         bool    `json:"extrapolate" yaml:"extrapolate"`
	ExtrapolationFactor float64 `json:"extrapolation_factor" yaml:"extrapolation_factor"`
	Debug               bool    `json:"debug" yaml:"debug"`

	// BoundingAreaPath optionally points at a polygon shapefile limiting the
	// Voronoi tessellation of the 1D nodes (one tessellation per polygon).
	BoundingAreaPath string `json:"bounding_area_path,omitempty" yaml:"areas"`

	// DefaultEPSG is written when neither the terrain nor the results carry
	// a coordinate reference system.
	DefaultEPSG int `json:"-" yaml:"-"`
}

// Validate checks the request for missing paths and out-of-range options.
func (r RunRequest) Validate() error {
	var missing []string
	if strings.TrimSpace(r.ResultPath) == "" {
		missing = append(missing, "results")
	}
	if strings.TrimSpace(r.OutputPath) == "" {
		missing = append(missing, "output")
	}
	if strings.TrimSpace(r.TerrainPath) == "" {
		missing = append(missing, "dtm")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.ExtrapolationFactor < 0 {
		return fmt.Errorf("%w: extrapolation factor %g is negative", ErrInvalidRequest, r.ExtrapolationFactor)
	}
	return r.Window.Validate()
}

// ID returns a deterministic identifier for the request. Identical requests
// share an ID so downstream consumers can deduplicate replays.
func (r RunRequest) ID() string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%t|%t|%g|%s|%t|%d",
		r.ResultPath, r.TerrainPath, r.OutputPath, r.Quantity, r.Domain,
		formatBound(r.Window.Start), formatBound(r.Window.End),
		r.Filter, r.Extrapolate, r.ExtrapolationFactor,
		r.BoundingAreaPath, r.Debug, r.DefaultEPSG)
	hash := sha256.Sum256([]byte(input))
	return "run-" + hex.EncodeToString(hash[:8])
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// DomainStats describes the contribution of one domain to a run.
type DomainStats struct {
	Present        bool `json:"present"`
	Areas          int  `json:"areas"`
	InundatedCells int  `json:"inundated_cells"`

	// Connected wet regions kept and dropped by the connectivity filter.
	KeptComponents    int `json:"kept_components,omitempty"`
	DroppedComponents int `json:"dropped_components,omitempty"`
}

// RunSummary is emitted after a successful run.
type RunSummary struct {
	ID          string      `json:"id"`
	Quantity    string      `json:"quantity"`
	Domain      string      `json:"domain,omitempty"`
	ResultPath  string      `json:"result_path"`
	OutputPath  string      `json:"output_path"`
	WindowStart *time.Time  `json:"window_start,omitempty"`
	WindowEnd   *time.Time  `json:"window_end,omitempty"`
	Filter      bool        `json:"filter"`
	Extrapolate bool        `json:"extrapolate"`
	EPSG        int         `json:"epsg,omitempty"`
	FallbackCRS bool        `json:"fallback_crs,omitempty"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	CellSize    float64     `json:"cell_size"`
	OneD        DomainStats `json:"one_d"`
	TwoD        DomainStats `json:"two_d"`

	InundatedCells int     `json:"inundated_cells"`
	InundatedArea  float64 `json:"inundated_area"`
	MaxDepth       float64 `json:"max_depth"`
	MeanDepth      float64 `json:"mean_depth"`
	OutputSHA256   string  `json:"output_sha256"`

	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ns"`
}

// NewRunSummary seeds a summary from a request and stamps the start time.
func NewRunSummary(r RunRequest) RunSummary {
	s := RunSummary{
		ID:          r.ID(),
		Quantity:    r.Quantity.String(),
		Domain:      r.Domain.String(),
		ResultPath:  r.ResultPath,
		OutputPath:  r.OutputPath,
		Filter:      r.Filter,
		Extrapolate: r.Extrapolate,
		StartedAt:   Now(),
	}
	if !r.Window.Start.IsZero() {
		t := r.Window.Start
		s.WindowStart = &t
	}
	if !r.Window.End.IsZero() {
		t := r.Window.End
		s.WindowEnd = &t
	}
	return s
}

// Complete stamps the completion time and duration.
func (s *RunSummary) Complete() {
	s.CompletedAt = Now()
	s.Duration = s.CompletedAt.Sub(s.StartedAt)
}
