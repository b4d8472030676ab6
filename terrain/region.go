// Package terrain models the walkable environment as a list of convex planar
// regions and snaps lattice cells onto it.
package terrain

import (
	"errors"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Region errors
var (
	ErrDegeneratePolygon = errors.New("planar region polygon needs at least 3 vertices")
	ErrZeroNormal        = errors.New("planar region normal must be non-zero")
)

// minWalkableNormalZ separates surfaces that can carry a height query from
// vertical ones.
const minWalkableNormalZ = 1e-6

// PlanarRegion is a convex polygon, given by its projection onto the XY
// plane, lying on the plane through Origin with unit Normal.
type PlanarRegion struct {
	ID      int
	Origin  r3.Vector
	Normal  r3.Vector
	Polygon []r2.Point
}

// NewPlanarRegion validates and normalizes a region. The normal is flipped to
// point up.
func NewPlanarRegion(id int, origin, normal r3.Vector, polygon []r2.Point) (*PlanarRegion, error) {
	if len(polygon) < 3 {
		return nil, ErrDegeneratePolygon
	}
	if normal.Norm() == 0 {
		return nil, ErrZeroNormal
	}
	normal = normal.Normalize()
	if normal.Z < 0 {
		normal = normal.Mul(-1)
	}
	return &PlanarRegion{ID: id, Origin: origin, Normal: normal, Polygon: polygon}, nil
}

// NewHorizontalRectangle returns a flat region at height z spanning the box
// [minX, maxX] x [minY, maxY].
func NewHorizontalRectangle(id int, minX, minY, maxX, maxY, z float64) *PlanarRegion {
	return &PlanarRegion{
		ID:     id,
		Origin: r3.Vector{X: minX, Y: minY, Z: z},
		Normal: r3.Vector{Z: 1},
		Polygon: []r2.Point{
			{X: minX, Y: minY},
			{X: maxX, Y: minY},
			{X: maxX, Y: maxY},
			{X: minX, Y: maxY},
		},
	}
}

// Contains reports whether p lies inside or on the boundary of the polygon.
// Both vertex orderings are accepted.
func (r *PlanarRegion) Contains(p r2.Point) bool {
	var sign float64
	n := len(r.Polygon)
	for i := range n {
		a, b := r.Polygon[i], r.Polygon[(i+1)%n]
		cross := b.Sub(a).Cross(p.Sub(a))
		if math.Abs(cross) < 1e-12 {
			continue
		}
		if sign == 0 {
			sign = math.Copysign(1, cross)
		} else if math.Copysign(1, cross) != sign {
			return false
		}
	}
	return true
}

// PlaneZ returns the height of the region's plane above (x, y). It is false
// for vertical regions.
func (r *PlanarRegion) PlaneZ(x, y float64) (float64, bool) {
	if r.Normal.Z < minWalkableNormalZ {
		return 0, false
	}
	z := r.Origin.Z - (r.Normal.X*(x-r.Origin.X)+r.Normal.Y*(y-r.Origin.Y))/r.Normal.Z
	return z, true
}

// HeightAt returns the height of the region at (x, y) when the point is
// inside the polygon.
func (r *PlanarRegion) HeightAt(x, y float64) (float64, bool) {
	if !r.Contains(r2.Point{X: x, Y: y}) {
		return 0, false
	}
	return r.PlaneZ(x, y)
}

// PlanarRegionsList is the terrain given to the planner. A nil list is empty.
type PlanarRegionsList struct {
	Regions []*PlanarRegion
}

// NewPlanarRegionsList wraps regions.
func NewPlanarRegionsList(regions ...*PlanarRegion) *PlanarRegionsList {
	return &PlanarRegionsList{Regions: regions}
}

// IsEmpty reports whether there is no terrain data.
func (l *PlanarRegionsList) IsEmpty() bool {
	return l == nil || len(l.Regions) == 0
}

// Len returns the number of regions.
func (l *PlanarRegionsList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Regions)
}

// Add appends a region.
func (l *PlanarRegionsList) Add(r *PlanarRegion) {
	l.Regions = append(l.Regions, r)
}

// Highest returns the highest region supporting (x, y) and its height there.
func (l *PlanarRegionsList) Highest(x, y float64) (*PlanarRegion, float64, bool) {
	if l.IsEmpty() {
		return nil, 0, false
	}
	var (
		best  *PlanarRegion
		bestZ = math.Inf(-1)
	)
	for _, r := range l.Regions {
		z, ok := r.HeightAt(x, y)
		if ok && z > bestZ {
			best, bestZ = r, z
		}
	}
	if best == nil {
		return nil, 0, false
	}
	return best, bestZ, true
}

// HeightAt returns the height of the highest region supporting (x, y).
func (l *PlanarRegionsList) HeightAt(x, y float64) (float64, bool) {
	_, z, ok := l.Highest(x, y)
	return z, ok
}

// bodyCollisionHeight is the height of the vertical band swept by the body
// above the higher of two feet plus the clearance.
const bodyCollisionHeight = 2.0

// BlocksSegment reports whether any region rises into the vertical band that
// starts clearance above the higher of a and b, along the segment between
// them.
func (l *PlanarRegionsList) BlocksSegment(a, b r3.Vector, clearance, resolution float64) bool {
	if l.IsEmpty() {
		return false
	}
	lowerZ := math.Max(a.Z, b.Z) + clearance
	upperZ := lowerZ + bodyCollisionHeight
	d := b.Sub(a)
	length := math.Hypot(d.X, d.Y)
	samples := int(math.Ceil(length/resolution)) + 1
	for i := 0; i <= samples; i++ {
		t := float64(i) / float64(samples)
		x, y := a.X+t*d.X, a.Y+t*d.Y
		for _, r := range l.Regions {
			z, ok := r.HeightAt(x, y)
			if ok && z > lowerZ && z < upperZ {
				return true
			}
		}
	}
	return false
}

// RegionsAware collaborators receive the terrain whenever it changes.
type RegionsAware interface {
	SetPlanarRegions(regions *PlanarRegionsList)
}
