// Command validate checks an inundation raster against the terrain model it
// was computed on and, optionally, against the run ledger. It verifies grid
// alignment, depth values, georeferencing and the recorded run statistics.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -output out/inundation.tif \
//	  -dtm terrain/dtm.tif \
//	  -ledger runs.db -id run-0123456789abcdef
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/couchcryptid/flood-inundation/internal/adapter/geotiff"
	"github.com/couchcryptid/flood-inundation/internal/adapter/ledger"
	"github.com/couchcryptid/flood-inundation/internal/raster"
	"github.com/couchcryptid/flood-inundation/internal/terrain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// maxReported caps the per-cell errors listed for one phase.
const maxReported = 20

type options struct {
	output string
	dtm    string
	ledger string
	id     string
}

func main() {
	var o options
	flag.StringVar(&o.output, "output", "", "inundation GeoTIFF to check")
	flag.StringVar(&o.dtm, "dtm", "", "terrain model the run used")
	flag.StringVar(&o.ledger, "ledger", "", "run ledger database (optional)")
	flag.StringVar(&o.id, "id", "", "run ID to compare against the ledger")
	flag.Parse()

	if o.output == "" || o.dtm == "" || (o.ledger == "") != (o.id == "") {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(os.Stdout, o))
}

func run(w io.Writer, o options) int {
	fmt.Fprintln(w, "=== Inundation Output Validation ===")
	fmt.Fprintln(w)

	data, err := os.ReadFile(o.output)
	if err != nil {
		fmt.Fprintf(w, "FATAL: read output: %v\n", err)
		return 1
	}
	out, meta, err := geotiff.Decode(data)
	if err != nil {
		fmt.Fprintf(w, "FATAL: decode output: %v\n", err)
		return 1
	}
	dtm, err := terrain.Load(o.dtm)
	if err != nil {
		fmt.Fprintf(w, "FATAL: load DTM: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateAlignment(out, dtm.Grid),
		validateDepths(out, dtm.Grid),
		validateGeoreference(meta, dtm.Meta),
	}
	if o.ledger != "" {
		phases = append(phases, validateLedger(o, data, out))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}

	stats := raster.Summarize(out)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Cells: %d of %d inundated, max depth %.3f m, mean %.3f m\n",
		stats.Valid, stats.Cells, stats.Max, stats.Mean)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(w, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(w, "\nValidation FAILED.")
	return 1
}

func validateAlignment(out, dtm *raster.Grid) *phase {
	p := &phase{name: "Grid alignment with DTM"}
	if out.Width != dtm.Width || out.Height != dtm.Height {
		p.errorf("size %dx%d, DTM is %dx%d", out.Width, out.Height, dtm.Width, dtm.Height)
	}
	if !raster.Aligned(out.Spec, dtm.Spec) {
		p.errorf("transform %+v, DTM is %+v", out.Transform, dtm.Transform)
	}
	return p
}

// validateDepths checks every inundated cell holds a finite positive depth
// and lies on valid terrain.
func validateDepths(out, dtm *raster.Grid) *phase {
	p := &phase{name: "Depth values"}
	if len(out.Data) != len(dtm.Data) {
		p.errorf("cell count %d, DTM has %d", len(out.Data), len(dtm.Data))
		return p
	}
	bad := 0
	for i, v := range out.Data {
		d := float64(v)
		if math.IsNaN(d) {
			continue
		}
		var msg string
		switch {
		case math.IsInf(d, 0) || d <= 0:
			msg = fmt.Sprintf("cell %d has depth %g", i, d)
		case math.IsNaN(float64(dtm.Data[i])):
			msg = fmt.Sprintf("cell %d is wet on missing terrain", i)
		default:
			continue
		}
		if bad < maxReported {
			p.errorf("%s", msg)
		}
		bad++
	}
	if bad > maxReported {
		p.errorf("... and %d more cells", bad-maxReported)
	}
	return p
}

func validateGeoreference(out, dtm raster.Metadata) *phase {
	p := &phase{name: "Georeference"}
	if out.EPSG <= 0 {
		p.errorf("output has no EPSG code")
	}
	if dtm.EPSG > 0 && out.EPSG != dtm.EPSG {
		p.errorf("output EPSG:%d, DTM EPSG:%d", out.EPSG, dtm.EPSG)
	}
	if !out.HasNoData || !math.IsNaN(out.NoData) {
		p.errorf("nodata is not NaN")
	}
	return p
}

func validateLedger(o options, data []byte, out *raster.Grid) *phase {
	p := &phase{name: "Ledger record"}
	l, err := ledger.New(o.ledger)
	if err != nil {
		p.errorf("open ledger: %v", err)
		return p
	}
	defer l.Close()

	s, ok, err := l.Lookup(context.Background(), o.id)
	switch {
	case err != nil:
		p.errorf("lookup: %v", err)
		return p
	case !ok:
		p.errorf("run %s not recorded", o.id)
		return p
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != s.OutputSHA256 {
		p.errorf("sha256 %s, recorded %s", got, s.OutputSHA256)
	}
	if n := raster.CountValid(out); n != s.InundatedCells {
		p.errorf("%d inundated cells, recorded %d", n, s.InundatedCells)
	}
	if s.Width != out.Width || s.Height != out.Height {
		p.errorf("size %dx%d, recorded %dx%d", out.Width, out.Height, s.Width, s.Height)
	}
	return p
}
