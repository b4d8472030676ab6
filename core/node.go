package core

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Lattice resolution shared by every node.
const (
	GridSizeXY   = 0.05
	YawDivisions = 72
	GridSizeYaw  = 2 * math.Pi / YawDivisions
)

// NodeKey is the comparable lattice identity of a FootstepNode. Two nodes are
// equal iff their keys are equal.
type NodeKey struct {
	X   [NumQuadrants]int
	Y   [NumQuadrants]int
	Yaw int
}

// String returns a compact representation used in events and logs.
func (k NodeKey) String() string {
	return fmt.Sprintf("FL(%d,%d) FR(%d,%d) HL(%d,%d) HR(%d,%d) yaw %d",
		k.X[FrontLeft], k.Y[FrontLeft], k.X[FrontRight], k.Y[FrontRight],
		k.X[HindLeft], k.Y[HindLeft], k.X[HindRight], k.Y[HindRight], k.Yaw)
}

// FootstepNode is one lattice configuration of all four footholds together
// with the quadrant whose step produced it. Nodes are immutable.
type FootstepNode struct {
	key            NodeKey
	movingQuadrant Quadrant
	stanceLength   float64
	stanceWidth    float64
	center         r2.Point
}

// Tolerance bounds the looser geometric comparisons used for goal matching.
type Tolerance struct {
	XY  float64 `json:"xy" yaml:"xy"`
	Yaw float64 `json:"yaw" yaml:"yaw"`
}

// NewFootstepNode quantizes continuous foot positions and a yaw onto the lattice.
func NewFootstepNode(moving Quadrant, feet [NumQuadrants]r2.Point, yaw, stanceLength, stanceWidth float64) *FootstepNode {
	var xs, ys [NumQuadrants]int
	for _, q := range Quadrants {
		xs[q] = SnapToGrid(feet[q].X)
		ys[q] = SnapToGrid(feet[q].Y)
	}
	return NewFootstepNodeFromIndices(moving, xs, ys, YawIndex(yaw), stanceLength, stanceWidth)
}

// NewFootstepNodeFromIndices builds a node directly from lattice indices.
func NewFootstepNodeFromIndices(moving Quadrant, xs, ys [NumQuadrants]int, yawIndex int, stanceLength, stanceWidth float64) *FootstepNode {
	n := &FootstepNode{
		key: NodeKey{
			X:   xs,
			Y:   ys,
			Yaw: wrapYawIndex(yawIndex),
		},
		movingQuadrant: moving,
		stanceLength:   stanceLength,
		stanceWidth:    stanceWidth,
	}
	for _, q := range Quadrants {
		n.center = n.center.Add(n.Position(q))
	}
	n.center = n.center.Mul(1.0 / NumQuadrants)
	return n
}

// WithFoot returns a copy of n in which quadrant q moved to the given cell and
// the node yaw became yawIndex. The returned node records q as moving quadrant.
func (n *FootstepNode) WithFoot(q Quadrant, xIndex, yIndex, yawIndex int) *FootstepNode {
	xs, ys := n.key.X, n.key.Y
	xs[q] = xIndex
	ys[q] = yIndex
	return NewFootstepNodeFromIndices(q, xs, ys, yawIndex, n.stanceLength, n.stanceWidth)
}

// Key returns the lattice identity of the node.
func (n *FootstepNode) Key() NodeKey { return n.key }

// MovingQuadrant returns the quadrant whose step produced this node.
func (n *FootstepNode) MovingQuadrant() Quadrant { return n.movingQuadrant }

func (n *FootstepNode) XIndex(q Quadrant) int { return n.key.X[q] }
func (n *FootstepNode) YIndex(q Quadrant) int { return n.key.Y[q] }
func (n *FootstepNode) YawIndex() int          { return n.key.Yaw }

// X returns the continuous x coordinate of the quadrant's foothold.
func (n *FootstepNode) X(q Quadrant) float64 { return float64(n.key.X[q]) * GridSizeXY }

// Y returns the continuous y coordinate of the quadrant's foothold.
func (n *FootstepNode) Y(q Quadrant) float64 { return float64(n.key.Y[q]) * GridSizeXY }

// Position returns the continuous foothold of the quadrant.
func (n *FootstepNode) Position(q Quadrant) r2.Point {
	return r2.Point{X: n.X(q), Y: n.Y(q)}
}

// Yaw returns the lattice yaw of the node in (-pi, pi].
func (n *FootstepNode) Yaw() float64 {
	return WrapAngle(float64(n.key.Yaw) * GridSizeYaw)
}

// StanceLength is the nominal front-to-hind distance the node was built with.
func (n *FootstepNode) StanceLength() float64 { return n.stanceLength }

// StanceWidth is the nominal left-to-right distance the node was built with.
func (n *FootstepNode) StanceWidth() float64 { return n.stanceWidth }

// GaitCenter returns the mean of the four footholds.
func (n *FootstepNode) GaitCenter() r2.Point { return n.center }

// NominalYaw computes the heading implied by the footholds themselves.
func (n *FootstepNode) NominalYaw() float64 {
	return ComputeNominalYaw(n.Position(FrontLeft), n.Position(FrontRight), n.Position(HindLeft), n.Position(HindRight))
}

// NominalFootPosition returns where quadrant q sits in a regular x-gait
// stance centered on the node's gait center and aligned with its yaw.
func (n *FootstepNode) NominalFootPosition(q Quadrant) r2.Point {
	offset := r2.Point{X: 0.5 * q.ForwardSign() * n.stanceLength, Y: 0.5 * q.SideSign() * n.stanceWidth}
	return n.center.Add(Rotate(offset, n.Yaw()))
}

// Equals reports exact lattice equality.
func (n *FootstepNode) Equals(other *FootstepNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	return n.key == other.key
}

// GeometricallyEquals compares every foothold and the yaw within tolerance.
func (n *FootstepNode) GeometricallyEquals(other *FootstepNode, tol Tolerance) bool {
	if n.Equals(other) {
		return true
	}
	for _, q := range Quadrants {
		if n.Position(q).Sub(other.Position(q)).Norm() > tol.XY {
			return false
		}
	}
	return math.Abs(AngleDifference(n.Yaw(), other.Yaw())) <= tol.Yaw
}

// GaitCenterEquals compares only the stance center and yaw within tolerance.
func (n *FootstepNode) GaitCenterEquals(other *FootstepNode, tol Tolerance) bool {
	if n.center.Sub(other.center).Norm() > tol.XY {
		return false
	}
	return math.Abs(AngleDifference(n.Yaw(), other.Yaw())) <= tol.Yaw
}

// String implements fmt.Stringer.
func (n *FootstepNode) String() string {
	return fmt.Sprintf("node{moving %s, %s}", n.movingQuadrant, n.key)
}

// SnapToGrid returns the lattice index closest to a continuous coordinate.
func SnapToGrid(v float64) int {
	return int(math.Round(v / GridSizeXY))
}

// YawIndex returns the wrapped lattice index closest to a yaw.
func YawIndex(yaw float64) int {
	return wrapYawIndex(int(math.Round(WrapAngle(yaw) / GridSizeYaw)))
}

func wrapYawIndex(i int) int {
	i %= YawDivisions
	if i < 0 {
		i += YawDivisions
	}
	return i
}

// ComputeNominalYaw returns the heading of the hind-to-front direction of a stance.
func ComputeNominalYaw(frontLeft, frontRight, hindLeft, hindRight r2.Point) float64 {
	front := frontLeft.Add(frontRight).Mul(0.5)
	hind := hindLeft.Add(hindRight).Mul(0.5)
	d := front.Sub(hind)
	return math.Atan2(d.Y, d.X)
}

// NominalFootPositions lays out a rectangular x-gait stance around a center.
func NominalFootPositions(center r2.Point, yaw, stanceLength, stanceWidth float64) [NumQuadrants]r2.Point {
	var feet [NumQuadrants]r2.Point
	for _, q := range Quadrants {
		offset := r2.Point{X: 0.5 * q.ForwardSign() * stanceLength, Y: 0.5 * q.SideSign() * stanceWidth}
		feet[q] = center.Add(Rotate(offset, yaw))
	}
	return feet
}

// Rotate rotates p about the origin by yaw.
func Rotate(p r2.Point, yaw float64) r2.Point {
	s, c := math.Sincos(yaw)
	return r2.Point{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y}
}

// WrapAngle maps an angle into (-pi, pi].
func WrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// AngleDifference returns a - b wrapped into (-pi, pi].
func AngleDifference(a, b float64) float64 {
	return WrapAngle(a - b)
}
