package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/terrain"
)

// DefaultTimeout is the planning budget of a scenario that does not set one.
const DefaultTimeout = 5 * time.Second

// Scenario errors
var (
	ErrNoTarget        = errors.New("target needs a pose or footholds")
	ErrAmbiguousTarget = errors.New("target sets both a pose and footholds")
	ErrMissingFoothold = errors.New("target footholds must cover all four quadrants")
	ErrAmbiguousRegion = errors.New("region sets both a polygon and a box")
	ErrEmptyBox        = errors.New("region box min must be below max")
	ErrIncompleteBox   = errors.New("region box needs both min and max")
	ErrNoGoal          = errors.New("scenario needs a goal or a body path")
	ErrInvalidFormat   = errors.New("invalid scenario file")
)

// Scenario is everything needed to run one planning request: tuning, gait,
// terrain, start and goal. Fields not present in the file keep the values
// of NewScenario.
type Scenario struct {
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Parameters    core.Parameters    `json:"parameters"`
	XGait         core.XGaitSettings `json:"xgait"`
	Start         TargetSpec         `json:"start"`
	Goal          TargetSpec         `json:"goal"`
	Regions       []RegionSpec       `json:"regions,omitempty"`
	GroundPlane   *float64           `json:"ground_plane,omitempty"`
	Timeout       Duration           `json:"timeout"`
	HorizonLength float64            `json:"horizon_length,omitempty"`
	BodyPath      []PoseSpec         `json:"body_path,omitempty"`
}

// NewScenario returns a scenario carrying the default parameters, gait
// settings and timeout.
func NewScenario() *Scenario {
	return &Scenario{
		Parameters: core.DefaultParameters(),
		XGait:      core.DefaultXGaitSettings(),
		Timeout:    Duration(DefaultTimeout),
	}
}

// Vector3 is an [x, y, z] triple.
type Vector3 [3]float64

// Vector converts v.
func (v Vector3) Vector() r3.Vector { return r3.Vector{X: v[0], Y: v[1], Z: v[2]} }

// PoseSpec is a body pose. Yaw is in radians.
type PoseSpec struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z,omitempty"`
	Yaw float64 `json:"yaw,omitempty"`
}

// Pose converts p.
func (p PoseSpec) Pose() core.Pose {
	return core.Pose{Position: r3.Vector{X: p.X, Y: p.Y, Z: p.Z}, Yaw: p.Yaw}
}

// TargetSpec is a start or goal given either as a body pose or as explicit
// footholds keyed by quadrant name.
type TargetSpec struct {
	Pose            *PoseSpec                 `json:"pose,omitempty"`
	Footholds       map[core.Quadrant]Vector3 `json:"footholds,omitempty"`
	InitialQuadrant *core.Quadrant            `json:"initial_quadrant,omitempty"`
}

// IsZero reports whether the spec is empty.
func (t TargetSpec) IsZero() bool {
	return t.Pose == nil && len(t.Footholds) == 0 && t.InitialQuadrant == nil
}

// Target converts the spec into a planner target.
func (t TargetSpec) Target() (core.Target, error) {
	var target core.Target
	switch {
	case t.Pose != nil && len(t.Footholds) > 0:
		return core.Target{}, ErrAmbiguousTarget
	case t.Pose != nil:
		p := t.Pose
		target = core.PoseTarget(p.X, p.Y, p.Z, p.Yaw)
	case len(t.Footholds) > 0:
		var footholds [core.NumQuadrants]r3.Vector
		for _, q := range core.Quadrants {
			v, ok := t.Footholds[q]
			if !ok {
				return core.Target{}, fmt.Errorf("%w: %s missing", ErrMissingFoothold, q)
			}
			footholds[q] = v.Vector()
		}
		target = core.FootstepsTarget(footholds)
	default:
		return core.Target{}, ErrNoTarget
	}
	if t.InitialQuadrant != nil {
		target.InitialQuadrant = *t.InitialQuadrant
	}
	return target, nil
}

// RegionSpec is one planar region: either a polygon on the plane through
// origin with the given normal, or the box shorthand min/max/z for a
// horizontal rectangle.
type RegionSpec struct {
	ID      int          `json:"id"`
	Origin  *Vector3     `json:"origin,omitempty"`
	Normal  *Vector3     `json:"normal,omitempty"`
	Polygon [][2]float64 `json:"polygon,omitempty"`

	Min *[2]float64 `json:"min,omitempty"`
	Max *[2]float64 `json:"max,omitempty"`
	Z   float64     `json:"z,omitempty"`
}

// Region converts the spec. A polygon without origin lies on the plane
// through the world origin; without normal it is horizontal.
func (r RegionSpec) Region() (*terrain.PlanarRegion, error) {
	box := r.Min != nil || r.Max != nil
	if box && len(r.Polygon) > 0 {
		return nil, ErrAmbiguousRegion
	}
	if box {
		if r.Min == nil || r.Max == nil {
			return nil, ErrIncompleteBox
		}
		lo, hi := *r.Min, *r.Max
		if lo[0] >= hi[0] || lo[1] >= hi[1] {
			return nil, fmt.Errorf("%w: min %v max %v", ErrEmptyBox, lo, hi)
		}
		return terrain.NewHorizontalRectangle(r.ID, lo[0], lo[1], hi[0], hi[1], r.Z), nil
	}

	origin := r3.Vector{}
	if r.Origin != nil {
		origin = r.Origin.Vector()
	}
	normal := r3.Vector{Z: 1}
	if r.Normal != nil {
		normal = r.Normal.Vector()
	}
	polygon := make([]r2.Point, len(r.Polygon))
	for i, p := range r.Polygon {
		polygon[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return terrain.NewPlanarRegion(r.ID, origin, normal, polygon)
}

// PlanarRegions converts every region. It returns nil when the scenario has
// no regions.
func (s *Scenario) PlanarRegions() (*terrain.PlanarRegionsList, error) {
	if len(s.Regions) == 0 {
		return nil, nil
	}
	list := terrain.NewPlanarRegionsList()
	for i, spec := range s.Regions {
		region, err := spec.Region()
		if err != nil {
			return nil, fmt.Errorf("regions[%d]: %w", i, err)
		}
		list.Add(region)
	}
	return list, nil
}

// BodyPathPoses returns the body path waypoints.
func (s *Scenario) BodyPathPoses() []core.Pose {
	poses := make([]core.Pose, len(s.BodyPath))
	for i, p := range s.BodyPath {
		poses[i] = p.Pose()
	}
	return poses
}

// UsesHorizon reports whether the scenario asks for receding-horizon
// planning.
func (s *Scenario) UsesHorizon() bool {
	return s.HorizonLength > 0 || len(s.BodyPath) > 0
}

// PlanningTimeout returns the search budget. Zero is a zero budget; Unlimited
// maps to runtime.NoTimeout.
func (s *Scenario) PlanningTimeout() time.Duration {
	return time.Duration(s.Timeout)
}

// Configure applies the scenario tuning, gait and timeout to b.
func (s *Scenario) Configure(b *footplan.PlannerBuilder) *footplan.PlannerBuilder {
	return b.WithParameters(s.Parameters).
		WithXGaitSettings(s.XGait).
		WithTimeout(s.PlanningTimeout())
}

// NewPlanner builds the planner the scenario asks for on top of b, which may
// already carry listeners and a logger, and hands it terrain, start and
// goal. A scenario with a horizon length or a body path gets a
// HorizonPlanner.
func (s *Scenario) NewPlanner(b *footplan.PlannerBuilder) (footplan.Planner, error) {
	astar, err := s.Configure(b).Build()
	if err != nil {
		return nil, err
	}
	var planner footplan.Planner = astar
	if s.UsesHorizon() {
		horizon := footplan.NewHorizonPlanner(astar)
		horizon.SetPlanningHorizonLength(s.HorizonLength)
		if len(s.BodyPath) > 0 {
			path, err := footplan.NewBodyPath(s.BodyPathPoses()...)
			if err != nil {
				return nil, err
			}
			horizon.SetBodyPath(path)
		}
		planner = horizon
	}

	regions, err := s.PlanarRegions()
	if err != nil {
		return nil, err
	}
	switch {
	case regions != nil:
		planner.SetPlanarRegionsList(regions)
	case s.GroundPlane != nil:
		planner.SetGroundPlane(*s.GroundPlane)
	}

	start, err := s.Start.Target()
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if err := planner.SetStart(start); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if s.Goal.IsZero() {
		if len(s.BodyPath) == 0 {
			return nil, ErrNoGoal
		}
		return planner, nil
	}
	goal, err := s.Goal.Target()
	if err != nil {
		return nil, fmt.Errorf("goal: %w", err)
	}
	if err := planner.SetGoal(goal); err != nil {
		return nil, fmt.Errorf("goal: %w", err)
	}
	return planner, nil
}

// Duration is a time.Duration read either from a Go duration string such
// as "1.5s", from a number of seconds, or from "unlimited".
type Duration time.Duration

// Unlimited is the timeout of a search without a time budget.
const Unlimited = Duration(runtime.NoTimeout)

const unlimitedText = "unlimited"

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(v * float64(time.Second))
	case string:
		if v == unlimitedText {
			*d = Unlimited
			return nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns the duration in Go notation, or "unlimited".
func (d Duration) String() string {
	if d == Unlimited {
		return unlimitedText
	}
	return time.Duration(d).String()
}
