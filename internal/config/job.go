package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

// Job is a run request as written in a YAML job file.
//
//	results: model/output/FlowFM_map.nc
//	dtm: terrain/dtm_0.5m.tif
//	output: out/inundation.tif
//	quantity: level
//	start: 2021/07/14
//	filter: true
//	extrapolation_factor: 0.5
type Job struct {
	Results             string   `yaml:"results" json:"result_path"`
	Output              string   `yaml:"output" json:"output_path"`
	DTM                 string   `yaml:"dtm" json:"terrain_path"`
	Quantity            string   `yaml:"quantity" json:"quantity"`
	Domain              string   `yaml:"domain" json:"domain"`
	Start               string   `yaml:"start" json:"start"`
	End                 string   `yaml:"end" json:"end"`
	Filter              bool     `yaml:"filter" json:"filter"`
	Extrapolate         *bool    `yaml:"extrapolate" json:"extrapolate"`
	ExtrapolationFactor *float64 `yaml:"extrapolation_factor" json:"extrapolation_factor"`
	Debug               bool     `yaml:"debug" json:"debug"`
	Areas               string   `yaml:"areas" json:"bounding_area_path"`
}

// LoadJob reads a job file.
func LoadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("%w: read job %s: %w", domain.ErrInvalidRequest, path, err)
	}
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("%w: parse job %s: %w", domain.ErrInvalidRequest, path, err)
	}
	return j, nil
}

// Request validates the job and converts it to a run request, filling
// unset options from cfg.
func (j Job) Request(cfg *Config) (domain.RunRequest, error) {
	q, err := domain.ParseQuantity(j.Quantity)
	if err != nil {
		return domain.RunRequest{}, err
	}
	d, err := domain.ParseDomain(j.Domain)
	if err != nil {
		return domain.RunRequest{}, err
	}
	start, err := domain.ParseTime(j.Start)
	if err != nil {
		return domain.RunRequest{}, err
	}
	end, err := domain.ParseTime(j.End)
	if err != nil {
		return domain.RunRequest{}, err
	}
	factor := cfg.ExtrapolationFactor
	if j.ExtrapolationFactor != nil {
		factor = *j.ExtrapolationFactor
	}
	// Extrapolation is on whenever the factor is positive unless the job
	// switches it off.
	extrapolate := factor > 0
	if j.Extrapolate != nil {
		extrapolate = extrapolate && *j.Extrapolate
	}
	req := domain.RunRequest{
		ResultPath:          j.Results,
		OutputPath:          j.Output,
		TerrainPath:         j.DTM,
		Quantity:            q,
		Domain:              d,
		Window:              domain.TimeWindow{Start: start, End: end},
		Filter:              j.Filter,
		Extrapolate:         extrapolate,
		ExtrapolationFactor: factor,
		Debug:               j.Debug,
		BoundingAreaPath:    j.Areas,
		DefaultEPSG:         cfg.DefaultEPSG,
	}
	if err := req.Validate(); err != nil {
		return domain.RunRequest{}, err
	}
	return req, nil
}

// Within resolves the job's paths against dir and rejects any that leave it.
// Relative paths are taken relative to dir; absolute ones must lie below it.
func (j Job) Within(dir string) (Job, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return Job{}, fmt.Errorf("%w: data directory %s: %w", domain.ErrInvalidRequest, dir, err)
	}
	for _, p := range []*string{&j.Results, &j.Output, &j.DTM, &j.Areas} {
		if *p == "" {
			continue
		}
		if *p, err = confine(root, *p); err != nil {
			return Job{}, err
		}
	}
	return j, nil
}

func confine(root, path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the data directory", domain.ErrInvalidRequest, path)
	}
	return abs, nil
}
