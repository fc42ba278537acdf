package v1alpha1

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// DefaultTimeout bounds every call made against the promotion service.
	DefaultTimeout = 300 * time.Second
	// PromotionTypeMove is the only promotion type issued by this controller.
	PromotionTypeMove = "move"
)

// Stage is the display form of a lifecycle stage. It is project-agnostic, e.g. "QA". The namespaced form used
// by the remote service is APIStage and the two are only ever converted through stages.Codec.
type Stage string

const (
	// Unassigned is the sentinel for a version that has not entered any stage yet.
	Unassigned Stage = "UNASSIGNED"
	Dev        Stage = "DEV"
	QA         Stage = "QA"
	Staging    Stage = "STAGING"
	Prod       Stage = "PROD"
)

// IsUnassigned returns true for the sentinel and for the empty stage.
func (s Stage) IsUnassigned() bool {
	return s == "" || s == Unassigned
}

func (s Stage) String() string {
	return string(s)
}

// APIStage is the stage name as the remote promotion service knows it, e.g. "bookverse-QA" or "PROD".
type APIStage string

func (s APIStage) String() string {
	return string(s)
}

// StageList is the ordered pipeline topology of one application. The last element is the final stage.
type StageList []Stage

var (
	ErrStageListEmpty = fmt.Errorf("stage list is empty")
)

// ParseStageList splits a comma or whitespace separated list of stages. Names are kept as written, they may
// still carry the project prefix and are brought into display form by stages.Codec.
func ParseStageList(raw string) StageList {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	list := make(StageList, 0, len(fields))
	for _, f := range fields {
		list = append(list, Stage(strings.TrimSpace(f)))
	}
	return list
}

// Validate makes sure the list is non-empty, has no duplicates and doesn't contain the unassigned sentinel.
func (l StageList) Validate() error {
	if len(l) == 0 {
		return ErrStageListEmpty
	}
	seen := sets.NewString()
	for _, s := range l {
		if s.IsUnassigned() {
			return fmt.Errorf("stage list %s must not contain %q", l, Unassigned)
		}
		if seen.Has(string(s)) {
			return fmt.Errorf("stage list %s contains %s more than once", l, s)
		}
		seen.Insert(string(s))
	}
	return nil
}

// Final returns the last stage of the list or the empty stage for an empty list.
func (l StageList) Final() Stage {
	if len(l) == 0 {
		return ""
	}
	return l[len(l)-1]
}

// Next returns the stage following current. An unassigned current stage yields the first element. The second
// return value is false when current is the final stage or isn't part of the list.
func (l StageList) Next(current Stage) (Stage, bool) {
	if len(l) == 0 {
		return "", false
	}
	if current.IsUnassigned() {
		return l[0], true
	}
	for idx, s := range l {
		if s == current {
			if idx == len(l)-1 {
				return "", false
			}
			return l[idx+1], true
		}
	}
	return "", false
}

func (l StageList) Contains(s Stage) bool {
	for _, e := range l {
		if e == s {
			return true
		}
	}
	return false
}

func (l StageList) String() string {
	names := make([]string, len(l))
	for i, s := range l {
		names[i] = string(s)
	}
	return "[" + strings.Join(names, ",") + "]"
}

// VersionSummary is the remotely observed state of an application version. Both fields are optional.
type VersionSummary struct {
	CurrentStage  APIStage `json:"current_stage,omitempty"`
	ReleaseStatus string   `json:"release_status,omitempty"`
}

// TransitionMode selects the remote operation used to move a version into its next stage.
type TransitionMode string

const (
	// ModePromote moves a version into an intermediate stage.
	ModePromote TransitionMode = "Promote"
	// ModeRelease moves a version into the final stage and releases it.
	ModeRelease TransitionMode = "Release"
)

// TransitionRequest is built once per transition attempt and not modified afterwards.
type TransitionRequest struct {
	Mode     TransitionMode  `json:"mode"`
	Target   Stage           `json:"targetStage"`
	APIStage APIStage        `json:"apiStage"`
	Payload  json.RawMessage `json:"payload"`
}

// PromotePayload is the body of a promote call.
type PromotePayload struct {
	TargetStage   APIStage `json:"target_stage"`
	PromotionType string   `json:"promotion_type"`
}

// ReleasePayload is the body of a release call.
type ReleasePayload struct {
	PromotionType          string   `json:"promotion_type"`
	IncludedRepositoryKeys []string `json:"included_repository_keys"`
}

// NewPromoteRequest builds the request moving a version into target, whose namespaced name is apiStage.
func NewPromoteRequest(target Stage, apiStage APIStage) (TransitionRequest, error) {
	payload, err := json.Marshal(PromotePayload{
		TargetStage:   apiStage,
		PromotionType: PromotionTypeMove,
	})
	if err != nil {
		return TransitionRequest{}, fmt.Errorf("failed encoding promote payload: %w", err)
	}
	return TransitionRequest{
		Mode:     ModePromote,
		Target:   target,
		APIStage: apiStage,
		Payload:  payload,
	}, nil
}

// NewReleaseRequest builds the request releasing a version into the final stage.
func NewReleaseRequest(final Stage, apiStage APIStage, repositoryKeys []string) (TransitionRequest, error) {
	keys := make([]string, len(repositoryKeys))
	copy(keys, repositoryKeys)
	payload, err := json.Marshal(ReleasePayload{
		PromotionType:          PromotionTypeMove,
		IncludedRepositoryKeys: keys,
	})
	if err != nil {
		return TransitionRequest{}, fmt.Errorf("failed encoding release payload: %w", err)
	}
	return TransitionRequest{
		Mode:     ModeRelease,
		Target:   final,
		APIStage: apiStage,
		Payload:  payload,
	}, nil
}

// TransitionResult is returned after a transition has been accepted by the remote service.
type TransitionResult struct {
	Request TransitionRequest `json:"request"`
	// Summary is the re-synchronized state of the version. Only meaningful if Synced is true.
	Summary VersionSummary `json:"summary"`
	Synced  bool           `json:"synced"`
	// Released is set after a successful release call.
	Released bool `json:"released"`
	// DryRun is set if no remote call was made.
	DryRun bool `json:"dryRun,omitempty"`
}
