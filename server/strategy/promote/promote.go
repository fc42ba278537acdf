package promote

import (
	"context"
	"fmt"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
)

// Promoter issues synchronous promote calls.
type Promoter interface {
	Promote(ctx context.Context, target v1alpha1.Stage) (*v1alpha1.TransitionResult, error)
}

type Promote struct {
	promoter Promoter
}

var (
	_ strategy.Strategy = Promote{}

	ErrPromoterIsNil = fmt.Errorf("promoter can't be nil")
)

func New(p Promoter) (*Promote, error) {
	if p == nil {
		return nil, ErrPromoterIsNil
	}
	return &Promote{promoter: p}, nil
}

func (p Promote) Handles(mode v1alpha1.TransitionMode) bool {
	return mode == v1alpha1.ModePromote
}

func (p Promote) Transition(ctx context.Context, t strategy.Transition) (*v1alpha1.TransitionResult, error) {
	return p.promoter.Promote(ctx, t.Target)
}
