package strategy

import (
	"context"
	"fmt"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

//go:generate mockgen -destination ../../controllers/mock_strategy_test.go -package controllers_test github.com/weaveworks/apptrust-promoter/server/strategy Strategy

// Strategy is the interface that all types need to implement that intend to carry out at least one of the
// transition modes chosen by the progression controller.
type Strategy interface {
	// Handles is called by the StrategyRegistry to determine if the type is eligible to carry out a transition. Expect a subsequent call to
	// Transition when returning true here.
	Handles(v1alpha1.TransitionMode) bool
	// Transition moves the version into the requested stage. It must not retry: a failed call is reported to the caller as is.
	Transition(context.Context, Transition) (*v1alpha1.TransitionResult, error)
}

// Transition is the type encapsulating a single transition decided by the controller.
type Transition struct {
	Mode   v1alpha1.TransitionMode `json:"mode"`
	Target v1alpha1.Stage          `json:"target"`
	// RepositoryKeys lists the repositories included in a release. Ignored for promotions.
	RepositoryKeys []string `json:"repositoryKeys,omitempty"`
}

// StrategyRegistry is a list of all the supported transition strategies.
type StrategyRegistry []Strategy

// Register adds a strategy to the list of supported strategies.
func (r *StrategyRegistry) Register(s Strategy) {
	*r = append(*r, s)
}

// Get returns the first strategy that is able to handle the given mode.
func (r StrategyRegistry) Get(mode v1alpha1.TransitionMode) (Strategy, error) {
	for _, s := range r {
		if s.Handles(mode) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no strategy registered for transition mode %q", mode)
}
