package release

import (
	"context"
	"fmt"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
)

// Releaser issues synchronous release calls.
type Releaser interface {
	Release(ctx context.Context, final v1alpha1.Stage, repositoryKeys []string) (*v1alpha1.TransitionResult, error)
}

type Release struct {
	releaser Releaser
}

var (
	_ strategy.Strategy = Release{}

	ErrReleaserIsNil    = fmt.Errorf("releaser can't be nil")
	ErrNoRepositoryKeys = fmt.Errorf("release requires at least one repository key")
)

func New(r Releaser) (*Release, error) {
	if r == nil {
		return nil, ErrReleaserIsNil
	}
	return &Release{releaser: r}, nil
}

func (r Release) Handles(mode v1alpha1.TransitionMode) bool {
	return mode == v1alpha1.ModeRelease
}

func (r Release) Transition(ctx context.Context, t strategy.Transition) (*v1alpha1.TransitionResult, error) {
	if len(t.RepositoryKeys) == 0 {
		return nil, ErrNoRepositoryKeys
	}
	return r.releaser.Release(ctx, t.Target, t.RepositoryKeys)
}
