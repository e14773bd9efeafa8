package geometry

import (
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/couchcryptid/flood-inundation/internal/domain"
)

type indexedFace struct {
	geom.Polygon
	order int
}

// FaceIndex is an R-tree over 2D face polygons.
type FaceIndex struct {
	tree *rtree.Rtree
	n    int
}

// NewFaceIndex indexes faces. Faces without area are skipped.
func NewFaceIndex(faces []geom.Polygon) *FaceIndex {
	idx := &FaceIndex{tree: rtree.NewTree(25, 50)}
	for i, f := range faces {
		if Area(f) <= 0 {
			continue
		}
		idx.tree.Insert(&indexedFace{Polygon: f, order: i})
		idx.n++
	}
	return idx
}

// Len returns the number of indexed faces.
func (idx *FaceIndex) Len() int { return idx.n }

// Subtract removes every indexed face from p. Faces are applied in their
// original order so the result does not depend on the tree layout.
func (idx *FaceIndex) Subtract(p geom.Polygon) geom.Polygon {
	if idx.n == 0 || len(p) == 0 {
		return p
	}
	hits := idx.tree.SearchIntersect(p.Bounds())
	faces := make([]*indexedFace, 0, len(hits))
	for _, h := range hits {
		faces = append(faces, h.(*indexedFace))
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].order < faces[j].order })
	for _, f := range faces {
		if !p.Bounds().Overlaps(f.Bounds()) {
			continue
		}
		p = polygonOf(p.Difference(f.Polygon))
		if len(p) == 0 {
			return nil
		}
	}
	return p
}

// Carve subtracts the indexed faces from every area and explodes the
// remainders into single-part polygons that keep their location and value.
func (idx *FaceIndex) Carve(areas []domain.AreaPolygon) []domain.AreaPolygon {
	out := make([]domain.AreaPolygon, 0, len(areas))
	for _, a := range areas {
		for _, part := range Explode(idx.Subtract(a.Polygon)) {
			out = append(out, domain.AreaPolygon{Polygon: part, Location: a.Location, Max: a.Max})
		}
	}
	return out
}
