package loader

import (
	"errors"
	"fmt"

	"github.com/petal-labs/footplan/terrain"
)

// Validate checks a decoded scenario and returns every problem found.
// Errors make the scenario unplannable; warnings flag settings that are
// probably not what the author meant.
func Validate(s *Scenario) []Diagnostic {
	var diags []Diagnostic

	diags = append(diags, validateTarget("start", s.Start, true)...)
	diags = append(diags, validateTarget("goal", s.Goal, len(s.BodyPath) == 0)...)
	if !s.Goal.IsZero() && s.Goal.InitialQuadrant != nil {
		diags = append(diags, warningAt(CodeAmbiguousTarget, "goal.initial_quadrant", "initial quadrant is only used for the start"))
	}

	if err := s.Parameters.Validate(); err != nil {
		for _, e := range unjoin(err) {
			diags = append(diags, errorAt(CodeInvalidParameters, "parameters", "%v", e))
		}
	}
	if s.XGait.StanceLength <= 0 || s.XGait.StanceWidth <= 0 {
		diags = append(diags, errorAt(CodeInvalidXGait, "xgait", "stance must be positive, got %vx%v", s.XGait.StanceLength, s.XGait.StanceWidth))
	}
	if s.XGait.StepDuration < 0 || s.XGait.EndDoubleSupportDuration < 0 {
		diags = append(diags, errorAt(CodeInvalidXGait, "xgait", "durations must not be negative"))
	}

	diags = append(diags, validateTerrain(s)...)

	if s.Timeout < 0 {
		diags = append(diags, errorAt(CodeInvalidTimeout, "timeout", "timeout must not be negative, got %s", s.Timeout))
	} else if s.Timeout == 0 {
		diags = append(diags, warningAt(CodeInvalidTimeout, "timeout", "zero timeout: the search stops after its first iteration"))
	} else if s.Timeout == Unlimited {
		diags = append(diags, warningAt(CodeInvalidTimeout, "timeout", "no timeout: the search runs until the lattice is exhausted"))
	}
	if s.HorizonLength < 0 {
		diags = append(diags, errorAt(CodeInvalidHorizon, "horizon_length", "horizon length must not be negative, got %g", s.HorizonLength))
	} else if s.HorizonLength > 0 && len(s.BodyPath) == 0 {
		diags = append(diags, warningAt(CodeHorizonNoTarget, "horizon_length", "horizon length has no effect without a body path"))
	}
	return diags
}

func validateTarget(name string, t TargetSpec, required bool) []Diagnostic {
	if t.IsZero() {
		if !required {
			return nil
		}
		return []Diagnostic{errorAt(CodeMissingTarget, name, "%s is required", name)}
	}
	_, err := t.Target()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAmbiguousTarget):
		return []Diagnostic{errorAt(CodeAmbiguousTarget, name, "%s: %v", name, err)}
	case errors.Is(err, ErrMissingFoothold):
		return []Diagnostic{errorAt(CodeIncompleteTarget, name+".footholds", "%s: %v", name, err)}
	default:
		return []Diagnostic{errorAt(CodeMissingTarget, name, "%s: %v", name, err)}
	}
}

func validateTerrain(s *Scenario) []Diagnostic {
	if len(s.Regions) == 0 {
		if s.GroundPlane == nil {
			return []Diagnostic{warningAt(CodeNoTerrain, "regions", "no regions and no ground plane: planning on flat ground at z = 0")}
		}
		return nil
	}

	var diags []Diagnostic
	list := terrain.NewPlanarRegionsList()
	seen := make(map[int]int, len(s.Regions))
	for i, spec := range s.Regions {
		path := fmt.Sprintf("regions[%d]", i)
		if first, dup := seen[spec.ID]; dup {
			diags = append(diags, warningAt(CodeDuplicateRegionID, path+".id", "region id %d already used by regions[%d]", spec.ID, first))
		} else {
			seen[spec.ID] = i
		}
		region, err := spec.Region()
		if err != nil {
			diags = append(diags, errorAt(CodeInvalidRegion, path, "%v", err))
			continue
		}
		list.Add(region)
	}
	if s.GroundPlane != nil {
		diags = append(diags, warningAt(CodeNoTerrain, "ground_plane", "ground plane is ignored when regions are given"))
	}

	if s.Start.Pose != nil && !list.IsEmpty() {
		if _, ok := list.HeightAt(s.Start.Pose.X, s.Start.Pose.Y); !ok {
			diags = append(diags, warningAt(CodeStartOffTerrain, "start.pose", "start pose (%g, %g) is not over any region", s.Start.Pose.X, s.Start.Pose.Y))
		}
	}
	return diags
}

func unjoin(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
