package main

import (
	"flag"
	"io"

	"github.com/couchcryptid/flood-inundation/internal/config"
)

// parseArgs builds the job for one run. Values from -job are read first and
// any flag given on the command line replaces the matching job field.
func parseArgs(args []string, cfg *config.Config, stderr io.Writer) (config.Job, error) {
	fs := flag.NewFlagSet("inundation", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		f             config.Job
		extrapolation float64
	)
	jobPath := fs.String("job", "", "YAML job file; flags override its values")
	fs.StringVar(&f.Results, "results", "", "D-Flow FM map file (netCDF)")
	fs.StringVar(&f.Output, "output", "", "output GeoTIFF")
	fs.StringVar(&f.DTM, "dtm", "", "terrain model (GeoTIFF or .asc)")
	fs.StringVar(&f.Quantity, "quantity", "level", `"level" or "depth"`)
	fs.StringVar(&f.Domain, "domain", "", `"1D", "2D" or empty for both`)
	fs.StringVar(&f.Start, "start", "", "window start, e.g. 2021/07/14")
	fs.StringVar(&f.End, "end", "", "window end")
	fs.BoolVar(&f.Filter, "filter", false, "drop wet regions not connected to the model")
	fs.Float64Var(&extrapolation, "extrapolation", cfg.ExtrapolationFactor, "2D extrapolation factor, 0 disables")
	fs.BoolVar(&f.Debug, "debug", false, "write intermediate layers next to the output")
	fs.StringVar(&f.Areas, "areas", "", "polygon shapefile bounding the 1D Voronoi areas")

	if err := fs.Parse(args); err != nil {
		return config.Job{}, err
	}

	var job config.Job
	if *jobPath != "" {
		var err error
		if job, err = config.LoadJob(*jobPath); err != nil {
			return config.Job{}, err
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "results":
			job.Results = f.Results
		case "output":
			job.Output = f.Output
		case "dtm":
			job.DTM = f.DTM
		case "quantity":
			job.Quantity = f.Quantity
		case "domain":
			job.Domain = f.Domain
		case "start":
			job.Start = f.Start
		case "end":
			job.End = f.End
		case "filter":
			job.Filter = f.Filter
		case "extrapolation":
			job.ExtrapolationFactor = &extrapolation
		case "debug":
			job.Debug = f.Debug
		case "areas":
			job.Areas = f.Areas
		}
	})
	return job, nil
}
