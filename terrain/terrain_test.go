package terrain_test

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/terrain"
)

func TestPlanarRegion_Contains(t *testing.T) {
	r := terrain.NewHorizontalRectangle(1, 0, 0, 1, 1, 0)
	assert.True(t, r.Contains(r2.Point{X: 0.5, Y: 0.5}))
	assert.True(t, r.Contains(r2.Point{X: 1, Y: 0.5}), "boundary points are inside")
	assert.False(t, r.Contains(r2.Point{X: 1.1, Y: 0.5}))

	// clockwise ordering
	cw, err := terrain.NewPlanarRegion(2, r3.Vector{}, r3.Vector{Z: 1}, []r2.Point{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}})
	require.NoError(t, err)
	assert.True(t, cw.Contains(r2.Point{X: 0.2, Y: 0.7}))
	assert.False(t, cw.Contains(r2.Point{X: -0.2, Y: 0.7}))
}

func TestNewPlanarRegion_Errors(t *testing.T) {
	_, err := terrain.NewPlanarRegion(1, r3.Vector{}, r3.Vector{Z: 1}, []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}})
	assert.ErrorIs(t, err, terrain.ErrDegeneratePolygon)

	square := []r2.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}}
	_, err = terrain.NewPlanarRegion(1, r3.Vector{}, r3.Vector{}, square)
	assert.ErrorIs(t, err, terrain.ErrZeroNormal)

	r, err := terrain.NewPlanarRegion(1, r3.Vector{}, r3.Vector{Z: -2}, square)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r.Normal.Z, 1e-12, "normal is flipped up and normalized")
}

func TestPlanarRegion_SlopedHeight(t *testing.T) {
	// 45 degree ramp rising along +x.
	normal := r3.Vector{X: -1, Z: 1}
	r, err := terrain.NewPlanarRegion(1, r3.Vector{}, normal, []r2.Point{{X: 0, Y: -1}, {X: 2, Y: -1}, {X: 2, Y: 1}, {X: 0, Y: 1}})
	require.NoError(t, err)

	z, ok := r.HeightAt(1.5, 0)
	require.True(t, ok)
	assert.InDelta(t, 1.5, z, 1e-9)

	_, ok = r.HeightAt(3, 0)
	assert.False(t, ok)
}

func TestPlanarRegionsList_HighestWins(t *testing.T) {
	l := terrain.NewPlanarRegionsList(
		terrain.NewHorizontalRectangle(1, -1, -1, 1, 1, 0),
		terrain.NewHorizontalRectangle(2, 0, -1, 1, 1, 0.2),
	)
	r, z, ok := l.Highest(0.5, 0)
	require.True(t, ok)
	assert.Equal(t, 2, r.ID)
	assert.InDelta(t, 0.2, z, 1e-12)

	z, ok = l.HeightAt(-0.5, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.0, z, 1e-12)

	_, ok = l.HeightAt(5, 5)
	assert.False(t, ok)

	var empty *terrain.PlanarRegionsList
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.Len())
}

func TestPlanarRegionsList_BlocksSegment(t *testing.T) {
	wall := terrain.NewHorizontalRectangle(1, 0.45, -1, 0.55, 1, 0.6)
	l := terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(0, -2, -2, 2, 2, 0), wall)

	a := r3.Vector{X: 0, Y: 0, Z: 0}
	b := r3.Vector{X: 1, Y: 0, Z: 0}
	assert.True(t, l.BlocksSegment(a, b, 0.25, 0.025))
	assert.False(t, l.BlocksSegment(a, r3.Vector{X: 0.4, Y: 0}, 0.25, 0.025))
	assert.False(t, l.BlocksSegment(a, b, 0.7, 0.025), "wall below the clearance band")
}

func TestPlanarRegionSnapper_EmptyTerrainIsIdentity(t *testing.T) {
	s := terrain.NewPlanarRegionSnapper(nil)
	data := s.Snap(10, -4)
	require.False(t, data.Failed())

	p, ok := core.SnapCell(s, 10, -4)
	require.True(t, ok)
	assert.InDelta(t, 0.5, p.X, 1e-12)
	assert.InDelta(t, -0.2, p.Y, 1e-12)
	assert.InDelta(t, 0.0, p.Z, 1e-12)
}

func TestPlanarRegionSnapper_SnapsOntoRegions(t *testing.T) {
	ramp, err := terrain.NewPlanarRegion(1, r3.Vector{}, r3.Vector{X: -0.5, Z: 1}, []r2.Point{{X: 0, Y: -1}, {X: 2, Y: -1}, {X: 2, Y: 1}, {X: 0, Y: 1}})
	require.NoError(t, err)
	s := terrain.NewPlanarRegionSnapper(terrain.NewPlanarRegionsList(ramp))

	p, ok := core.SnapCell(s, 20, 0)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.X, 1e-9)
	assert.InDelta(t, 0.0, p.Y, 1e-9)
	assert.InDelta(t, 0.5, p.Z, 1e-9)

	data := s.Snap(20, 0)
	assert.InDelta(t, 1/math.Sqrt(1.25), data.Transform.SurfaceNormalZ(), 1e-9)

	assert.True(t, s.Snap(-20, 0).Failed(), "cells off the terrain fail to snap")
}

func TestPlanarRegionSnapper_AddSnapDataOverridesAndResets(t *testing.T) {
	s := terrain.NewPlanarRegionSnapper(terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(1, 0, 0, 1, 1, 0)))
	require.True(t, s.Snap(-10, -10).Failed())

	s.AddSnapData(-10, -10, core.SnapData{Transform: core.TranslationTransform(r3.Vector{Z: 0.4})})
	p, ok := core.SnapCell(s, -10, -10)
	require.True(t, ok)
	assert.InDelta(t, 0.4, p.Z, 1e-12)

	s.SetPlanarRegions(terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(1, 0, 0, 1, 1, 0)))
	assert.True(t, s.Snap(-10, -10).Failed(), "SetPlanarRegions drops pinned snaps")
}

func TestFlatGroundSnapper(t *testing.T) {
	p, ok := core.SnapCell(terrain.FlatGroundSnapper{Height: 0.3}, 2, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.3, p.Z, 1e-12)
	assert.InDelta(t, 0.1, p.X, 1e-12)
}

func TestSnapTransform_MapsLatticePointOntoPlane(t *testing.T) {
	n := r3.Vector{X: 0.2, Y: -0.3, Z: 1}.Normalize()
	tr := terrain.SnapTransform(0.7, -0.4, 1.25, n)
	p := tr.Apply(r3.Vector{X: 0.7, Y: -0.4})
	assert.InDelta(t, 0.7, p.X, 1e-9)
	assert.InDelta(t, -0.4, p.Y, 1e-9)
	assert.InDelta(t, 1.25, p.Z, 1e-9)
	assert.InDelta(t, n.Z, tr.SurfaceNormalZ(), 1e-9)
}
