package evidence

import (
	"context"
	"fmt"
	"sync"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

// Subject identifies the transition evidence is emitted for.
type Subject struct {
	Application string
	Version     string
	Stage       v1alpha1.Stage
	APIStage    v1alpha1.APIStage
	Released    bool
}

// Emitter attaches evidence of a completed transition. What the evidence contains is up to the emitter.
type Emitter interface {
	Emit(ctx context.Context, s Subject) error
}

type EmitterFunc func(ctx context.Context, s Subject) error

func (f EmitterFunc) Emit(ctx context.Context, s Subject) error {
	return f(ctx, s)
}

// Registry maps stages to the emitter invoked once a version has reached them.
type Registry struct {
	mu       sync.RWMutex
	emitters map[v1alpha1.Stage]Emitter
	fallback Emitter
}

// Register sets the emitter for stage, replacing any previous one.
func (r *Registry) Register(stage v1alpha1.Stage, e Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emitters == nil {
		r.emitters = map[v1alpha1.Stage]Emitter{}
	}
	r.emitters[stage] = e
}

// Fallback sets the emitter used for stages without one of their own.
func (r *Registry) Fallback(e Emitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = e
}

// Get returns the emitter responsible for stage.
func (r *Registry) Get(stage v1alpha1.Stage) (Emitter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.emitters[stage]; ok {
		return e, true
	}
	return r.fallback, r.fallback != nil
}

// Dispatch emits evidence for s. It returns false if no emitter is responsible for the stage.
func (r *Registry) Dispatch(ctx context.Context, s Subject) (bool, error) {
	e, ok := r.Get(s.Stage)
	if !ok {
		return false, nil
	}
	if err := e.Emit(ctx, s); err != nil {
		return true, fmt.Errorf("failed emitting evidence for %s@%s in %s: %w", s.Application, s.Version, s.Stage, err)
	}
	return true, nil
}
