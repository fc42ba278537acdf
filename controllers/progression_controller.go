package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/pkg/repositories"
	"github.com/weaveworks/apptrust-promoter/pkg/retry"
	"github.com/weaveworks/apptrust-promoter/pkg/stages"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
)

//go:generate mockgen -destination mock_fetcher_test.go -package controllers_test github.com/weaveworks/apptrust-promoter/controllers SummaryFetcher

// SummaryFetcher reads the remote state of the version being advanced.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context) (v1alpha1.VersionSummary, error)
}

// Action describes what AdvanceOneStep did.
type Action string

const (
	ActionNoOp     Action = "NoOp"
	ActionPromoted Action = "Promoted"
	ActionReleased Action = "Released"
	ActionDryRun   Action = "DryRun"
)

var (
	ErrFetcherCantBeNil     = fmt.Errorf("summary fetcher can't be nil")
	ErrTransitionInProgress = errors.New("a transition of this version is already in progress")
)

// AdvanceResult exposes what a step resolved. The evidence collaborator uses the stage and version identifiers.
type AdvanceResult struct {
	Application string                     `json:"application"`
	Version     string                     `json:"version"`
	Action      Action                     `json:"action"`
	From        v1alpha1.Stage             `json:"from"`
	To          v1alpha1.Stage             `json:"to,omitempty"`
	Mode        v1alpha1.TransitionMode    `json:"mode,omitempty"`
	Summary     v1alpha1.VersionSummary    `json:"summary"`
	Confirmed   bool                       `json:"confirmed"`
	Transition  *v1alpha1.TransitionResult `json:"transition,omitempty"`
}

// ProgressionController advances an application version by exactly one stage per call. Decisions are always
// derived from a freshly fetched summary, never from the run state it writes.
type ProgressionController struct {
	log      logr.Logger
	fetcher  SummaryFetcher
	stratReg strategy.StrategyRegistry
	state    *RunState
	codec    stages.Codec

	application    string
	version        string
	project        string
	service        string
	stages         v1alpha1.StageList
	finalStage     v1alpha1.Stage
	allowRelease   bool
	repositoryKeys []string
	confirmRetries int
	confirmDelay   time.Duration

	mu       sync.Mutex
	inFlight bool
}

type Opt func(r *ProgressionController) error

func NewProgressionController(fetcher SummaryFetcher, stratReg strategy.StrategyRegistry, state *RunState, opts ...Opt) (*ProgressionController, error) {
	if fetcher == nil {
		return nil, ErrFetcherCantBeNil
	}

	r := &ProgressionController{
		fetcher:        fetcher,
		stratReg:       stratReg,
		state:          state,
		confirmRetries: 3,
		confirmDelay:   2 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	if err := setDefaults(r); err != nil {
		return nil, err
	}

	return r, nil
}

func setDefaults(r *ProgressionController) error {
	if r.log.GetSink() == nil {
		r.log = stdr.New(log.New(os.Stdout, "", log.Lshortfile))
	}
	if r.state == nil {
		r.state = NewRunState(nil)
	}
	r.codec = stages.NewCodec(r.project)
	r.stages = r.codec.NormalizeList(r.stages)
	r.finalStage = r.codec.Normalize(r.finalStage)

	if err := r.stages.Validate(); err != nil {
		return fmt.Errorf("invalid stage list: %w", err)
	}
	if r.finalStage == "" {
		r.finalStage = r.stages.Final()
	}
	if !r.stages.Contains(r.finalStage) {
		return fmt.Errorf("final stage %s is not part of stage list %s", r.finalStage, r.stages)
	}
	if r.service == "" {
		r.service = repositories.ServiceFromApplication(r.application, r.project)
	}
	return nil
}

// State returns the run state written by the controller.
func (r *ProgressionController) State() *RunState {
	return r.state
}

// AdvanceOneStep moves the version into the stage following its current one. It returns an ActionNoOp result if
// there's nothing left to do. A failed transition is returned as is and never retried.
func (r *ProgressionController) AdvanceOneStep(ctx context.Context) (*AdvanceResult, error) {
	if !r.acquire() {
		return nil, ErrTransitionInProgress
	}
	defer r.release()

	log := r.log.WithValues("application", r.application, "version", r.version)

	summary, err := r.fetcher.FetchSummary(ctx)
	if err != nil {
		log.Info("version summary unavailable, assuming the version is unassigned", "error", err.Error())
		summary = v1alpha1.VersionSummary{}
	}

	current := r.codec.Display(summary.CurrentStage)
	res := &AdvanceResult{
		Application: r.application,
		Version:     r.version,
		From:        current,
		Summary:     summary,
	}

	next, ok := r.stages.Next(current)
	if !ok {
		log.Info("no stage to advance to", "current", current, "stages", r.stages.String())
		res.Action = ActionNoOp
		return res, nil
	}

	t := strategy.Transition{
		Mode:   r.modeFor(next),
		Target: next,
	}
	if t.Mode == v1alpha1.ModeRelease {
		t.RepositoryKeys = r.releaseRepositories()
	}
	res.To = next
	res.Mode = t.Mode

	strat, err := r.stratReg.Get(t.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed getting strategy: %w", err)
	}

	log.Info("advancing version", "from", current, "to", next, "mode", t.Mode)
	tr, err := strat.Transition(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("failed advancing %s@%s from %s to %s: %w", r.application, r.version, current, next, err)
	}
	res.Transition = tr

	if tr.DryRun {
		res.Action = ActionDryRun
		return res, nil
	}

	res.Summary, res.Confirmed = r.confirm(ctx, tr, next)
	res.Action = ActionPromoted
	if tr.Released {
		res.Action = ActionReleased
	}

	r.record(res, tr.Released)
	if err := r.state.Persist(); err != nil {
		return res, fmt.Errorf("transition succeeded but run state could not be persisted: %w", err)
	}

	log.Info("version advanced", "stage", next, "confirmed", res.Confirmed, "promotedStages", r.state.Get(v1alpha1.PromotedStagesKey))
	return res, nil
}

func (r *ProgressionController) modeFor(next v1alpha1.Stage) v1alpha1.TransitionMode {
	if r.allowRelease && next == r.finalStage {
		return v1alpha1.ModeRelease
	}
	return v1alpha1.ModePromote
}

func (r *ProgressionController) releaseRepositories() []string {
	if len(r.repositoryKeys) > 0 {
		return r.repositoryKeys
	}
	return repositories.Select(r.service, r.project)
}

// confirm waits until the remote summary shows the target stage. Only reads are repeated.
func (r *ProgressionController) confirm(ctx context.Context, tr *v1alpha1.TransitionResult, target v1alpha1.Stage) (v1alpha1.VersionSummary, bool) {
	summary := tr.Summary
	if tr.Synced && r.codec.Display(summary.CurrentStage) == target {
		return summary, true
	}
	if r.confirmRetries <= 0 {
		return summary, false
	}

	err := retry.Exponential(ctx,
		retry.WithRetries(r.confirmRetries),
		retry.WithDelayBase(r.confirmDelay),
		retry.WithFn(func(ctx context.Context) error {
			s, err := r.fetcher.FetchSummary(ctx)
			if err != nil {
				return err
			}
			summary = s
			if stage := r.codec.Display(s.CurrentStage); stage != target {
				return fmt.Errorf("version is in stage %s, expected %s", stage, target)
			}
			return nil
		}),
	)
	if err != nil {
		r.log.Info("could not confirm transition", "target", target, "error", err.Error())
		return summary, false
	}
	return summary, true
}

func (r *ProgressionController) record(res *AdvanceResult, released bool) {
	stage := res.To
	if res.Confirmed {
		stage = r.codec.Display(res.Summary.CurrentStage)
	}

	r.state.AppendPromoted(res.To)
	r.state.Set(v1alpha1.CurrentStageKey, string(stage))
	r.state.Set(v1alpha1.ReleaseStatusKey, res.Summary.ReleaseStatus)
	r.state.Set(v1alpha1.ApplicationKeyKey, r.application)
	r.state.Set(v1alpha1.AppVersionKey, r.version)
	if released {
		r.state.Set(v1alpha1.DidReleaseKey, strconv.FormatBool(true))
	} else if r.state.Get(v1alpha1.DidReleaseKey) == "" {
		r.state.Set(v1alpha1.DidReleaseKey, strconv.FormatBool(false))
	}
}

func (r *ProgressionController) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight {
		return false
	}
	r.inFlight = true
	return true
}

func (r *ProgressionController) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = false
}
