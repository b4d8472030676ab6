package terrain

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan/core"
)

type cellKey struct {
	x, y int
}

// PlanarRegionSnapper projects lattice cells onto the highest supporting
// planar region. Results are cached per cell until the regions change. With
// no regions every cell snaps to the identity, which is flat ground at z = 0.
type PlanarRegionSnapper struct {
	regions *PlanarRegionsList
	cache   map[cellKey]core.SnapData
}

// NewPlanarRegionSnapper returns a snapper over regions, which may be nil.
func NewPlanarRegionSnapper(regions *PlanarRegionsList) *PlanarRegionSnapper {
	return &PlanarRegionSnapper{
		regions: regions,
		cache:   make(map[cellKey]core.SnapData),
	}
}

// SetPlanarRegions replaces the terrain and drops every cached snap.
func (s *PlanarRegionSnapper) SetPlanarRegions(regions *PlanarRegionsList) {
	s.regions = regions
	clear(s.cache)
}

// PlanarRegions returns the current terrain.
func (s *PlanarRegionSnapper) PlanarRegions() *PlanarRegionsList { return s.regions }

// AddSnapData pins the snap of a cell, overriding the terrain.
func (s *PlanarRegionSnapper) AddSnapData(xIndex, yIndex int, data core.SnapData) {
	s.cache[cellKey{xIndex, yIndex}] = data
}

// AddStartNode pins the snaps of the start footholds.
func (s *PlanarRegionSnapper) AddStartNode(start *core.FootstepNode, snaps [core.NumQuadrants]core.SnapData) {
	for _, q := range core.Quadrants {
		s.AddSnapData(start.XIndex(q), start.YIndex(q), snaps[q])
	}
}

// Snap implements core.Snapper.
func (s *PlanarRegionSnapper) Snap(xIndex, yIndex int) core.SnapData {
	key := cellKey{xIndex, yIndex}
	if data, ok := s.cache[key]; ok {
		return data
	}
	data := s.snap(xIndex, yIndex)
	s.cache[key] = data
	return data
}

func (s *PlanarRegionSnapper) snap(xIndex, yIndex int) core.SnapData {
	if s.regions.IsEmpty() {
		return core.SnapData{Transform: core.IdentityTransform()}
	}
	x := float64(xIndex) * core.GridSizeXY
	y := float64(yIndex) * core.GridSizeXY
	region, z, ok := s.regions.Highest(x, y)
	if !ok {
		return core.FailedSnap()
	}
	return core.SnapData{Transform: SnapTransform(x, y, z, region.Normal)}
}

// FlatGroundSnapper snaps every cell onto a horizontal plane.
type FlatGroundSnapper struct {
	Height float64
}

// Snap implements core.Snapper.
func (f FlatGroundSnapper) Snap(int, int) core.SnapData {
	return core.SnapData{Transform: core.TranslationTransform(r3.Vector{Z: f.Height})}
}

// SnapTransform returns the transform that tilts the z axis onto normal about
// the point (x, y, 0) and lifts that point to (x, y, z).
func SnapTransform(x, y, z float64, normal r3.Vector) core.Transform {
	rot := rotationFromZ(normal)
	p := r3.Vector{X: x, Y: y}
	rotated := core.Transform{R: rot}.Apply(p)
	return core.Transform{R: rot, T: r3.Vector{X: x, Y: y, Z: z}.Sub(rotated)}
}

// rotationFromZ returns the smallest rotation taking the z axis onto n.
func rotationFromZ(n r3.Vector) [3][3]float64 {
	n = n.Normalize()
	z := r3.Vector{Z: 1}
	axis := z.Cross(n)
	s := axis.Norm()
	c := z.Dot(n)
	if s < 1e-12 {
		if c > 0 {
			return core.IdentityTransform().R
		}
		return [3][3]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, -1}}
	}
	axis = axis.Mul(1 / s)
	angle := math.Atan2(s, c)
	sin, cos := math.Sincos(angle)
	t := 1 - cos
	ux, uy, uz := axis.X, axis.Y, axis.Z
	return [3][3]float64{
		{cos + ux*ux*t, ux*uy*t - uz*sin, ux*uz*t + uy*sin},
		{uy*ux*t + uz*sin, cos + uy*uy*t, uy*uz*t - ux*sin},
		{uz*ux*t - uy*sin, uz*uy*t + ux*sin, cos + uz*uz*t},
	}
}

// FlatPatch returns a square horizontal region of the given half extent
// centered on (x, y) at height z.
func FlatPatch(id int, x, y, z, halfExtent float64) *PlanarRegion {
	return NewHorizontalRectangle(id, x-halfExtent, y-halfExtent, x+halfExtent, y+halfExtent, z)
}
