package main

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/pkg/evidence"
	"github.com/weaveworks/apptrust-promoter/pkg/stages"
	"github.com/weaveworks/apptrust-promoter/server"
)

// evidenceAdvancer emits evidence for every stage a version has been moved into. Evidence failures are logged,
// they don't undo or fail the transition.
type evidenceAdvancer struct {
	log      logr.Logger
	advancer server.Advancer
	registry *evidence.Registry
	codec    stages.Codec
}

func (a *evidenceAdvancer) AdvanceOneStep(ctx context.Context) (*controllers.AdvanceResult, error) {
	res, err := a.advancer.AdvanceOneStep(ctx)
	if err != nil {
		return nil, err
	}
	if res.Action != controllers.ActionPromoted && res.Action != controllers.ActionReleased {
		return res, nil
	}

	subject := evidence.Subject{
		Application: res.Application,
		Version:     res.Version,
		Stage:       res.To,
		APIStage:    a.codec.API(res.To),
		Released:    res.Action == controllers.ActionReleased,
	}
	dispatched, err := a.registry.Dispatch(ctx, subject)
	switch {
	case err != nil:
		a.log.Error(err, "evidence emission failed", "stage", res.To)
	case dispatched:
		a.log.Info("evidence emitted", "stage", res.To)
	}
	return res, nil
}
