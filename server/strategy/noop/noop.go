package noop

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
)

// RequestBuilder renders the request a transition would send.
type RequestBuilder interface {
	NewPromoteRequest(target v1alpha1.Stage) (v1alpha1.TransitionRequest, error)
	NewReleaseRequest(final v1alpha1.Stage, repositoryKeys []string) (v1alpha1.TransitionRequest, error)
}

// Noop handles every mode without calling the promotion service. It's used for dry runs.
type Noop struct {
	builder RequestBuilder
	log     logr.Logger
}

var (
	_ strategy.Strategy = Noop{}
)

func NewNoop(builder RequestBuilder, log logr.Logger) (*Noop, error) {
	return &Noop{builder: builder, log: log}, nil
}

func (n Noop) Handles(_ v1alpha1.TransitionMode) bool {
	return true
}

func (n Noop) Transition(_ context.Context, t strategy.Transition) (*v1alpha1.TransitionResult, error) {
	var (
		req v1alpha1.TransitionRequest
		err error
	)
	switch t.Mode {
	case v1alpha1.ModeRelease:
		req, err = n.builder.NewReleaseRequest(t.Target, t.RepositoryKeys)
	default:
		req, err = n.builder.NewPromoteRequest(t.Target)
	}
	if err != nil {
		return nil, err
	}

	n.log.Info("dry run, not calling the promotion service", "mode", req.Mode, "apiStage", req.APIStage, "payload", string(req.Payload))

	return &v1alpha1.TransitionResult{
		Request: req,
		DryRun:  true,
	}, nil
}
