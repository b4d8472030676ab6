package checker

import "github.com/petal-labs/footplan/core"

// Defaults returns the node and transition checkers used when none are
// configured explicitly.
func Defaults(params core.Parameters, snapper core.Snapper) (*NodeAllOf, *TransitionAllOf) {
	nodes := AllNodes(
		NewSnapChecker(params, snapper),
		NewCliffAvoider(params, snapper),
	)
	transitions := AllTransitions(NewStepChecker(params, snapper))
	return nodes, transitions
}
