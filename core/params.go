package core

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
)

// Parameters tunes the default validity, cost, heuristic and expansion
// policies. Lengths are in meters, angles in radians. Step length and width
// bounds are measured from the nominal x-gait position of the moving foot.
type Parameters struct {
	MaximumFrontStepReach  float64 `json:"maximum_front_step_reach"`
	MaximumFrontStepLength float64 `json:"maximum_front_step_length"`
	MinimumFrontStepLength float64 `json:"minimum_front_step_length"`
	MaximumHindStepReach   float64 `json:"maximum_hind_step_reach"`
	MaximumHindStepLength  float64 `json:"maximum_hind_step_length"`
	MinimumHindStepLength  float64 `json:"minimum_hind_step_length"`

	MaximumFrontStepLengthWhenSteppingUp   float64 `json:"maximum_front_step_length_when_stepping_up"`
	MinimumFrontStepLengthWhenSteppingUp   float64 `json:"minimum_front_step_length_when_stepping_up"`
	MaximumHindStepLengthWhenSteppingUp    float64 `json:"maximum_hind_step_length_when_stepping_up"`
	MinimumHindStepLengthWhenSteppingUp    float64 `json:"minimum_hind_step_length_when_stepping_up"`
	MaximumFrontStepLengthWhenSteppingDown float64 `json:"maximum_front_step_length_when_stepping_down"`
	MinimumFrontStepLengthWhenSteppingDown float64 `json:"minimum_front_step_length_when_stepping_down"`
	MaximumHindStepLengthWhenSteppingDown  float64 `json:"maximum_hind_step_length_when_stepping_down"`
	MinimumHindStepLengthWhenSteppingDown  float64 `json:"minimum_hind_step_length_when_stepping_down"`
	StepZForSteppingUp                     float64 `json:"step_z_for_stepping_up"`
	StepZForSteppingDown                   float64 `json:"step_z_for_stepping_down"`

	MaximumStepWidth   float64 `json:"maximum_step_width"`
	MinimumStepWidth   float64 `json:"minimum_step_width"`
	MinimumStepYaw     float64 `json:"minimum_step_yaw"`
	MaximumStepYaw     float64 `json:"maximum_step_yaw"`
	MaximumStepChangeZ float64 `json:"maximum_step_change_z"`

	MinXClearanceFromFoot        float64 `json:"min_x_clearance_from_foot"`
	MinYClearanceFromFoot        float64 `json:"min_y_clearance_from_foot"`
	BodyGroundClearance          float64 `json:"body_ground_clearance"`
	MinimumSurfaceInclineRadians float64 `json:"minimum_surface_incline_radians"`

	// Cliff avoidance is disabled when CliffHeightToAvoid is zero.
	CliffHeightToAvoid                              float64 `json:"cliff_height_to_avoid"`
	MinimumFrontEndForwardDistanceFromCliffBottoms  float64 `json:"minimum_front_end_forward_distance_from_cliff_bottoms"`
	MinimumFrontEndBackwardDistanceFromCliffBottoms float64 `json:"minimum_front_end_backward_distance_from_cliff_bottoms"`
	MinimumHindEndForwardDistanceFromCliffBottoms   float64 `json:"minimum_hind_end_forward_distance_from_cliff_bottoms"`
	MinimumHindEndBackwardDistanceFromCliffBottoms  float64 `json:"minimum_hind_end_backward_distance_from_cliff_bottoms"`
	MinimumLateralDistanceFromCliffBottoms          float64 `json:"minimum_lateral_distance_from_cliff_bottoms"`

	DistanceWeight float64 `json:"distance_weight"`
	YawWeight      float64 `json:"yaw_weight"`
	XGaitWeight    float64 `json:"xgait_weight"`
	CostPerStep    float64 `json:"cost_per_step"`
	StepUpWeight   float64 `json:"step_up_weight"`
	StepDownWeight float64 `json:"step_down_weight"`

	DistanceHeuristicWeight   float64 `json:"distance_heuristic_weight"`
	YawHeuristicWeight        float64 `json:"yaw_heuristic_weight"`
	HeuristicsInflationWeight float64 `json:"heuristics_inflation_weight"`

	GoalTolerance Tolerance `json:"goal_tolerance"`
}

// DefaultParameters returns parameters suited to a medium-sized quadruped on
// the default lattice.
func DefaultParameters() Parameters {
	return Parameters{
		MaximumFrontStepReach:  0.45,
		MaximumFrontStepLength: 0.35,
		MinimumFrontStepLength: -0.15,
		MaximumHindStepReach:   0.45,
		MaximumHindStepLength:  0.35,
		MinimumHindStepLength:  -0.15,

		MaximumFrontStepLengthWhenSteppingUp:   0.3,
		MinimumFrontStepLengthWhenSteppingUp:   -0.1,
		MaximumHindStepLengthWhenSteppingUp:    0.3,
		MinimumHindStepLengthWhenSteppingUp:    -0.1,
		MaximumFrontStepLengthWhenSteppingDown: 0.3,
		MinimumFrontStepLengthWhenSteppingDown: -0.1,
		MaximumHindStepLengthWhenSteppingDown:  0.3,
		MinimumHindStepLengthWhenSteppingDown:  -0.1,
		StepZForSteppingUp:                     0.1,
		StepZForSteppingDown:                   -0.1,

		MaximumStepWidth:   0.1,
		MinimumStepWidth:   -0.1,
		MinimumStepYaw:     -0.3,
		MaximumStepYaw:     0.3,
		MaximumStepChangeZ: 0.3,

		MinXClearanceFromFoot:        0.075,
		MinYClearanceFromFoot:        0.075,
		BodyGroundClearance:          0.25,
		MinimumSurfaceInclineRadians: math.Pi / 4,

		CliffHeightToAvoid:                              0.2,
		MinimumFrontEndForwardDistanceFromCliffBottoms:  0.1,
		MinimumFrontEndBackwardDistanceFromCliffBottoms: 0.1,
		MinimumHindEndForwardDistanceFromCliffBottoms:   0.1,
		MinimumHindEndBackwardDistanceFromCliffBottoms:  0.1,
		MinimumLateralDistanceFromCliffBottoms:          0.1,

		DistanceWeight: 1.0,
		YawWeight:      1.0,
		XGaitWeight:    0.5,
		CostPerStep:    0.1,
		StepUpWeight:   0.5,
		StepDownWeight: 0.5,

		DistanceHeuristicWeight:   1.0,
		YawHeuristicWeight:        1.0,
		HeuristicsInflationWeight: 1.5,

		GoalTolerance: Tolerance{XY: 0.1, Yaw: 0.1},
	}
}

// Parameter validation errors.
var (
	ErrInvalidLengthBounds = errors.New("invalid step length bounds")
	ErrInvalidWidthBounds  = errors.New("invalid step width bounds")
	ErrInvalidYawBounds    = errors.New("invalid step yaw bounds")
	ErrInvalidWeight       = errors.New("invalid weight")
)

// Validate reports inconsistent bounds. Every problem is returned, joined.
func (p Parameters) Validate() error {
	var errs []error
	lengthBounds := []struct {
		name     string
		min, max float64
	}{
		{"front", p.MinimumFrontStepLength, p.MaximumFrontStepLength},
		{"hind", p.MinimumHindStepLength, p.MaximumHindStepLength},
		{"front stepping up", p.MinimumFrontStepLengthWhenSteppingUp, p.MaximumFrontStepLengthWhenSteppingUp},
		{"hind stepping up", p.MinimumHindStepLengthWhenSteppingUp, p.MaximumHindStepLengthWhenSteppingUp},
		{"front stepping down", p.MinimumFrontStepLengthWhenSteppingDown, p.MaximumFrontStepLengthWhenSteppingDown},
		{"hind stepping down", p.MinimumHindStepLengthWhenSteppingDown, p.MaximumHindStepLengthWhenSteppingDown},
	}
	for _, b := range lengthBounds {
		if b.min > 0 || b.max < 0 || b.max < b.min {
			errs = append(errs, fmt.Errorf("%w: %s [%g, %g]", ErrInvalidLengthBounds, b.name, b.min, b.max))
		}
	}
	if p.MinimumStepWidth > 0 || p.MaximumStepWidth < 0 || p.MaximumStepWidth < p.MinimumStepWidth {
		errs = append(errs, fmt.Errorf("%w: [%g, %g]", ErrInvalidWidthBounds, p.MinimumStepWidth, p.MaximumStepWidth))
	}
	if p.MaximumStepYaw < p.MinimumStepYaw {
		errs = append(errs, fmt.Errorf("%w: [%g, %g]", ErrInvalidYawBounds, p.MinimumStepYaw, p.MaximumStepYaw))
	}
	weights := map[string]float64{
		"distance_weight":             p.DistanceWeight,
		"yaw_weight":                  p.YawWeight,
		"xgait_weight":                p.XGaitWeight,
		"cost_per_step":               p.CostPerStep,
		"step_up_weight":              p.StepUpWeight,
		"step_down_weight":            p.StepDownWeight,
		"distance_heuristic_weight":   p.DistanceHeuristicWeight,
		"yaw_heuristic_weight":        p.YawHeuristicWeight,
		"heuristics_inflation_weight": p.HeuristicsInflationWeight,
	}
	for _, name := range slices.Sorted(maps.Keys(weights)) {
		if w := weights[name]; w < 0 || math.IsNaN(w) {
			errs = append(errs, fmt.Errorf("%w: %s = %g", ErrInvalidWeight, name, w))
		}
	}
	return errors.Join(errs...)
}

// StepLengthBounds returns the forward bounds for a step of the given
// quadrant, taking the step height into account.
func (p Parameters) StepLengthBounds(q Quadrant, steppingUp, steppingDown bool) (minLength, maxLength float64) {
	front := q.IsFront()
	switch {
	case steppingUp && front:
		return p.MinimumFrontStepLengthWhenSteppingUp, p.MaximumFrontStepLengthWhenSteppingUp
	case steppingUp:
		return p.MinimumHindStepLengthWhenSteppingUp, p.MaximumHindStepLengthWhenSteppingUp
	case steppingDown && front:
		return p.MinimumFrontStepLengthWhenSteppingDown, p.MaximumFrontStepLengthWhenSteppingDown
	case steppingDown:
		return p.MinimumHindStepLengthWhenSteppingDown, p.MaximumHindStepLengthWhenSteppingDown
	case front:
		return p.MinimumFrontStepLength, p.MaximumFrontStepLength
	default:
		return p.MinimumHindStepLength, p.MaximumHindStepLength
	}
}

// StepWidthBounds returns the lateral bounds for a step of the given quadrant.
// Positive values point away from the body.
func (p Parameters) StepWidthBounds(q Quadrant) (minWidth, maxWidth float64) {
	if q.IsLeft() {
		return p.MinimumStepWidth, p.MaximumStepWidth
	}
	return -p.MaximumStepWidth, -p.MinimumStepWidth
}

// StepReach returns the maximum reach of the quadrant from its nominal position.
func (p Parameters) StepReach(q Quadrant) float64 {
	if q.IsFront() {
		return p.MaximumFrontStepReach
	}
	return p.MaximumHindStepReach
}

// XGaitSettings describes the nominal stance and timing of a crawl gait.
type XGaitSettings struct {
	StanceLength             float64 `json:"stance_length"`
	StanceWidth              float64 `json:"stance_width"`
	StepDuration             float64 `json:"step_duration"`
	EndDoubleSupportDuration float64 `json:"end_double_support_duration"`
	// EndPhaseShift is in degrees; 90 is a crawl, 180 a trot.
	EndPhaseShift       float64 `json:"end_phase_shift"`
	StepGroundClearance float64 `json:"step_ground_clearance"`
}

// DefaultXGaitSettings returns a crawl gait.
func DefaultXGaitSettings() XGaitSettings {
	return XGaitSettings{
		StanceLength:             0.8,
		StanceWidth:              0.4,
		StepDuration:             0.4,
		EndDoubleSupportDuration: 0.1,
		EndPhaseShift:            90,
		StepGroundClearance:      0.1,
	}
}

// TimeDeltaBetweenSteps returns the time between the start of a step of
// previous and the start of the step that follows it in the gait.
func (s XGaitSettings) TimeDeltaBetweenSteps(previous Quadrant) float64 {
	halfPeriod := s.StepDuration + s.EndDoubleSupportDuration
	phase := s.EndPhaseShift
	if previous.IsFront() {
		phase = 180 - phase
	}
	return math.Max(halfPeriod*phase/180, 0)
}
