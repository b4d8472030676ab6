// Package core defines the shared types of the footstep planner: lattice
// nodes, planning targets, results and the policy contracts consulted by the
// search engine.
package core

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
)

// Result classifies the outcome of one planning invocation.
type Result int

const (
	PlannerFailed Result = iota
	NoPathExists
	TimedOutBeforeSolution
	OptimalSolution
	SubOptimalSolution
)

// String returns the canonical upper-case name of the result.
func (r Result) String() string {
	switch r {
	case PlannerFailed:
		return "PLANNER_FAILED"
	case NoPathExists:
		return "NO_PATH_EXISTS"
	case TimedOutBeforeSolution:
		return "TIMED_OUT_BEFORE_SOLUTION"
	case OptimalSolution:
		return "OPTIMAL_SOLUTION"
	case SubOptimalSolution:
		return "SUB_OPTIMAL_SOLUTION"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ValidForExecution reports whether a plan produced with this result may be executed.
func (r Result) ValidForExecution() bool {
	return r == OptimalSolution || r == SubOptimalSolution
}

// RejectionReason explains why a candidate node or transition was discarded.
// ReasonNone means the candidate was accepted.
type RejectionReason uint8

const (
	ReasonNone RejectionReason = iota
	ReasonCouldNotSnap
	ReasonSurfaceNormalTooSteepToSnap
	ReasonStepInPlace
	ReasonStepOnOtherFoot
	ReasonStepYawingTooMuch
	ReasonStepTooHighOrLow
	ReasonStepTooFar
	ReasonStepTooFarForward
	ReasonStepTooFarBackward
	ReasonStepTooFarOutward
	ReasonStepTooFarInward
	ReasonObstacleBlockingStep
	ReasonObstacleBlockingBody
	ReasonAtCliffBottom

	numRejectionReasons
)

var rejectionReasonNames = [numRejectionReasons]string{
	ReasonNone:                        "NONE",
	ReasonCouldNotSnap:                "COULD_NOT_SNAP",
	ReasonSurfaceNormalTooSteepToSnap: "SURFACE_NORMAL_TOO_STEEP_TO_SNAP",
	ReasonStepInPlace:                 "STEP_IN_PLACE",
	ReasonStepOnOtherFoot:             "STEP_ON_OTHER_FOOT",
	ReasonStepYawingTooMuch:           "STEP_YAWING_TOO_MUCH",
	ReasonStepTooHighOrLow:            "STEP_TOO_HIGH_OR_LOW",
	ReasonStepTooFar:                  "STEP_TOO_FAR",
	ReasonStepTooFarForward:           "STEP_TOO_FAR_FORWARD",
	ReasonStepTooFarBackward:          "STEP_TOO_FAR_BACKWARD",
	ReasonStepTooFarOutward:           "STEP_TOO_FAR_OUTWARD",
	ReasonStepTooFarInward:            "STEP_TOO_FAR_INWARD",
	ReasonObstacleBlockingStep:        "OBSTACLE_BLOCKING_STEP",
	ReasonObstacleBlockingBody:        "OBSTACLE_BLOCKING_BODY",
	ReasonAtCliffBottom:               "AT_CLIFF_BOTTOM",
}

// RejectionReasons lists every non-empty rejection reason.
func RejectionReasons() []RejectionReason {
	out := make([]RejectionReason, 0, numRejectionReasons-1)
	for r := ReasonNone + 1; r < numRejectionReasons; r++ {
		out = append(out, r)
	}
	return out
}

func (r RejectionReason) String() string {
	if r < numRejectionReasons {
		return rejectionReasonNames[r]
	}
	return fmt.Sprintf("RejectionReason(%d)", uint8(r))
}

// Rejected reports whether the reason encodes a rejection.
func (r RejectionReason) Rejected() bool { return r != ReasonNone }

// Pose is a planar body pose at a height.
type Pose struct {
	Position r3.Vector `json:"position"`
	Yaw      float64   `json:"yaw"`
}

// TargetType selects how a Target is interpreted.
type TargetType int

const (
	// TargetUnspecified is the zero value and is never a supported target.
	TargetUnspecified TargetType = iota
	// TargetFootsteps gives explicit footholds for all four quadrants.
	TargetFootsteps
	// TargetPoseBetweenFeet gives a body pose; footholds follow the nominal stance.
	TargetPoseBetweenFeet
)

func (t TargetType) String() string {
	switch t {
	case TargetFootsteps:
		return "footsteps"
	case TargetPoseBetweenFeet:
		return "pose_between_feet"
	default:
		return fmt.Sprintf("TargetType(%d)", int(t))
	}
}

// ParseTargetType converts a serialized target type name.
func ParseTargetType(s string) (TargetType, error) {
	switch s {
	case "footsteps", "FOOTSTEPS":
		return TargetFootsteps, nil
	case "pose_between_feet", "POSE_BETWEEN_FEET", "pose":
		return TargetPoseBetweenFeet, nil
	}
	return TargetUnspecified, fmt.Errorf("unknown target type %q", s)
}

// Target describes a start or goal configuration.
type Target struct {
	Type      TargetType
	Footholds [NumQuadrants]r3.Vector
	Pose      Pose

	// InitialQuadrant is the quadrant expected to step first. Only used for starts.
	InitialQuadrant Quadrant
}

// FootstepsTarget builds a target from explicit footholds.
func FootstepsTarget(footholds [NumQuadrants]r3.Vector) Target {
	return Target{Type: TargetFootsteps, Footholds: footholds}
}

// PoseTarget builds a pose-between-feet target.
func PoseTarget(x, y, z, yaw float64) Target {
	return Target{Type: TargetPoseBetweenFeet, Pose: Pose{Position: r3.Vector{X: x, Y: y, Z: z}, Yaw: yaw}}
}

// Transform is a rigid transform applied as R*p + T. A transform containing
// NaN is the failed-snap sentinel.
type Transform struct {
	R [3][3]float64
	T r3.Vector
}

// IdentityTransform returns the transform that leaves points unchanged.
func IdentityTransform() Transform {
	return Transform{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// FailedTransform returns the NaN sentinel.
func FailedTransform() Transform {
	nan := math.NaN()
	return Transform{
		R: [3][3]float64{{nan, nan, nan}, {nan, nan, nan}, {nan, nan, nan}},
		T: r3.Vector{X: nan, Y: nan, Z: nan},
	}
}

// TranslationTransform returns a pure translation.
func TranslationTransform(t r3.Vector) Transform {
	tr := IdentityTransform()
	tr.T = t
	return tr
}

// ContainsNaN reports whether the transform is the failed sentinel.
func (t Transform) ContainsNaN() bool {
	for i := range 3 {
		for j := range 3 {
			if math.IsNaN(t.R[i][j]) {
				return true
			}
		}
	}
	return math.IsNaN(t.T.X) || math.IsNaN(t.T.Y) || math.IsNaN(t.T.Z)
}

// Apply transforms p.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return r3.Vector{
		X: t.R[0][0]*p.X + t.R[0][1]*p.Y + t.R[0][2]*p.Z + t.T.X,
		Y: t.R[1][0]*p.X + t.R[1][1]*p.Y + t.R[1][2]*p.Z + t.T.Y,
		Z: t.R[2][0]*p.X + t.R[2][1]*p.Y + t.R[2][2]*p.Z + t.T.Z,
	}
}

// SurfaceNormalZ is the z component of the rotated z axis, the cosine of the
// incline of the surface the transform snaps onto.
func (t Transform) SurfaceNormalZ() float64 { return t.R[2][2] }

// SnapData is the result of snapping one lattice cell onto terrain.
type SnapData struct {
	Transform Transform
}

// FailedSnap returns snap data carrying the NaN sentinel.
func FailedSnap() SnapData { return SnapData{Transform: FailedTransform()} }

// Failed reports whether the snap did not find supporting terrain.
func (s SnapData) Failed() bool { return s.Transform.ContainsNaN() }

// SnapCell places a lattice cell onto terrain. The boolean is false when the
// snap failed.
func SnapCell(s Snapper, xIndex, yIndex int) (r3.Vector, bool) {
	data := s.Snap(xIndex, yIndex)
	if data.Failed() {
		return r3.Vector{}, false
	}
	p := r3.Vector{X: float64(xIndex) * GridSizeXY, Y: float64(yIndex) * GridSizeXY}
	return data.Transform.Apply(p), true
}

// TimeInterval bounds a step in seconds from the start of the plan.
type TimeInterval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (i TimeInterval) Duration() float64 { return i.End - i.Start }

// TimedStep is one executable footstep.
type TimedStep struct {
	Quadrant        Quadrant     `json:"quadrant"`
	GoalPosition    r3.Vector    `json:"goal_position"`
	TimeInterval    TimeInterval `json:"time_interval"`
	GroundClearance float64      `json:"ground_clearance"`
}

// FootstepPlan is an ordered list of timed steps together with the
// low-level goal the planner actually searched towards. PathCost is the
// step cost of every step, including the final steps that place the feet on
// the goal footholds.
type FootstepPlan struct {
	Steps            []TimedStep `json:"steps"`
	LowLevelPlanGoal Pose        `json:"low_level_plan_goal"`
	PathCost         float64     `json:"path_cost"`
}

// NumSteps returns the number of steps in the plan.
func (p *FootstepPlan) NumSteps() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Statistics summarizes one planning invocation.
type Statistics struct {
	Duration           time.Duration           `json:"duration"`
	Iterations         int                     `json:"iterations"`
	ExpandedNodes      int                     `json:"expanded_nodes"`
	AverageChildren    float64                 `json:"average_children"`
	RejectedPercent    float64                 `json:"rejected_percent"`
	TotalCandidates    int                     `json:"total_candidates"`
	TotalRejections    int                     `json:"total_rejections"`
	RejectionsByReason map[RejectionReason]int `json:"-"`
}

// RejectionCounts returns RejectionsByReason keyed by reason name.
func (s Statistics) RejectionCounts() map[string]int {
	out := make(map[string]int, len(s.RejectionsByReason))
	for r, n := range s.RejectionsByReason {
		out[r.String()] = n
	}
	return out
}
