// Package ugridtest writes small D-Flow FM style map files for tests.
package ugridtest

import (
	"os"
	"strconv"
	"testing"

	"github.com/ctessum/cdf"
)

// Fill is the _FillValue written for padded and missing samples.
const Fill = -999.0

// Model describes the content of a map file. Empty parts are omitted.
type Model struct {
	// Times are offsets in seconds from Reference.
	Times     []float64
	Reference string // defaults to "2000-01-01 00:00:00"
	EPSG      int
	Proj4     string

	Nodes1D  [][2]float64
	Level1D  [][]float64 // [time][node]
	Branches [][][2]float64

	Faces   [][][2]float64 // vertices per face, padded with Fill
	Level2D [][]float64    // [time][face]
	Depth2D [][]float64    // [time][face]

	// Capitalised writes Mesh1d_/Mesh2d_ variable names.
	Capitalised bool
}

type variable struct {
	name  string
	dims  []string
	data  []float64
	attrs map[string]any
}

// Write stores m as a netCDF classic file at path.
func Write(t testing.TB, path string, m Model) {
	t.Helper()
	mesh1, mesh2 := "mesh1d", "mesh2d"
	if m.Capitalised {
		mesh1, mesh2 = "Mesh1d", "Mesh2d"
	}
	ref := m.Reference
	if ref == "" {
		ref = "2000-01-01 00:00:00"
	}

	dimLen := map[string]int{"time": len(m.Times)}
	var vars []variable
	vars = append(vars, variable{name: "time", dims: []string{"time"}, data: m.Times,
		attrs: map[string]any{"units": "seconds since " + ref}})

	if len(m.Nodes1D) > 0 {
		dimLen["nNodes1D"] = len(m.Nodes1D)
		var xs, ys []float64
		for _, p := range m.Nodes1D {
			xs, ys = append(xs, p[0]), append(ys, p[1])
		}
		vars = append(vars,
			variable{name: mesh1 + "_node_x", dims: []string{"nNodes1D"}, data: xs},
			variable{name: mesh1 + "_node_y", dims: []string{"nNodes1D"}, data: ys})
		if m.Level1D != nil {
			vars = append(vars, series(mesh1+"_s1", "nNodes1D", m.Level1D))
		}
	}

	if len(m.Branches) > 0 {
		var xs, ys, counts []float64
		for _, b := range m.Branches {
			counts = append(counts, float64(len(b)))
			for _, p := range b {
				xs, ys = append(xs, p[0]), append(ys, p[1])
			}
		}
		dimLen["nBranches"] = len(m.Branches)
		dimLen["nGeometryNodes"] = len(xs)
		vars = append(vars,
			variable{name: "network1d_geom_x", dims: []string{"nGeometryNodes"}, data: xs},
			variable{name: "network1d_geom_y", dims: []string{"nGeometryNodes"}, data: ys},
			variable{name: "network1d_geom_node_count", dims: []string{"nBranches"}, data: counts})
	}

	if len(m.Faces) > 0 {
		nv := 0
		for _, f := range m.Faces {
			nv = max(nv, len(f))
		}
		dimLen["nFaces"] = len(m.Faces)
		dimLen["nMaxFaceNodes"] = nv
		var xs, ys []float64
		for _, f := range m.Faces {
			for i := range nv {
				if i < len(f) {
					xs, ys = append(xs, f[i][0]), append(ys, f[i][1])
				} else {
					xs, ys = append(xs, Fill), append(ys, Fill)
				}
			}
		}
		fill := map[string]any{"_FillValue": []float64{Fill}}
		vars = append(vars,
			variable{name: mesh2 + "_face_x_bnd", dims: []string{"nFaces", "nMaxFaceNodes"}, data: xs, attrs: fill},
			variable{name: mesh2 + "_face_y_bnd", dims: []string{"nFaces", "nMaxFaceNodes"}, data: ys, attrs: fill})
		if m.Level2D != nil {
			vars = append(vars, series(mesh2+"_s1", "nFaces", m.Level2D))
		}
		if m.Depth2D != nil {
			vars = append(vars, series(mesh2+"_waterdepth", "nFaces", m.Depth2D))
		}
	}

	if m.EPSG > 0 {
		dimLen["one"] = 1
		vars = append(vars, variable{name: "projected_coordinate_system", dims: []string{"one"}, data: []float64{0},
			attrs: map[string]any{"epsg": []int32{int32(m.EPSG)}, "EPSG_code": "EPSG:" + strconv.Itoa(m.EPSG)}})
		if m.Proj4 != "" {
			vars[len(vars)-1].attrs["proj4_params"] = m.Proj4
		}
	}

	var dims []string
	var lengths []int
	for _, v := range vars {
		for _, d := range v.dims {
			if !contains(dims, d) {
				dims = append(dims, d)
				lengths = append(lengths, dimLen[d])
			}
		}
	}

	h := cdf.NewHeader(dims, lengths)
	for _, v := range vars {
		h.AddVariable(v.name, v.dims, []float64{0})
		for k, a := range v.attrs {
			h.AddAttribute(v.name, k, a)
		}
	}
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, v := range vars {
		end := nc.Header.Lengths(v.name)
		if len(v.data) == 0 {
			continue
		}
		if _, err := nc.Writer(v.name, make([]int, len(end)), end).Write(v.data); err != nil {
			t.Fatalf("write %s: %v", v.name, err)
		}
	}
}

func series(name, dim string, vals [][]float64) variable {
	var flat []float64
	for _, row := range vals {
		flat = append(flat, row...)
	}
	return variable{name: name, dims: []string{"time", dim}, data: flat,
		attrs: map[string]any{"_FillValue": []float64{Fill}}}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
