package rollback

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
	"github.com/weaveworks/apptrust-promoter/pkg/stages"
)

const (
	QuarantineTag = "quarantine"
	LatestTag     = "latest"

	BackupBeforeLatest     = "original_tag_before_latest"
	BackupBeforeQuarantine = "original_tag_before_quarantine"

	listLimit = 1000
)

var (
	ErrClientIsNil       = fmt.Errorf("client can't be nil")
	ErrTargetNotReleased = errors.New("target version is not a released version")
)

// Client is the part of the promotion service a rollback needs.
type Client interface {
	Application() string
	ListVersions(ctx context.Context, limit int) ([]apptrust.VersionRecord, error)
	GetVersion(ctx context.Context, version string) (v1alpha1.VersionSummary, error)
	RollbackVersion(ctx context.Context, version string, fromStage v1alpha1.APIStage) error
	PatchVersion(ctx context.Context, version string, patch apptrust.VersionPatch) error
}

// Result describes a finished rollback.
type Result struct {
	Version     string            `json:"version"`
	StageBefore v1alpha1.APIStage `json:"stageBefore"`
	StageAfter  v1alpha1.APIStage `json:"stageAfter"`
	// NewLatest is the version that took over the latest tag, if any.
	NewLatest string `json:"newLatest,omitempty"`
	DryRun    bool   `json:"dryRun"`
}

// Rollbacker takes a released version out of production. The version is tagged as quarantined and, if it was
// the latest one, the latest tag moves on to the newest remaining release.
type Rollbacker struct {
	client Client
	log    logr.Logger
	dryRun bool
	codec  stages.Codec
	stages v1alpha1.StageList
}

type Opt func(r *Rollbacker) error

func Logger(l logr.Logger) Opt {
	return func(r *Rollbacker) error {
		r.log = l
		return nil
	}
}

// DryRun makes the rollbacker log every change instead of performing it. Reads still happen.
func DryRun(dryRun bool) Opt {
	return func(r *Rollbacker) error {
		r.dryRun = dryRun
		return nil
	}
}

// Lifecycle sets the stages used to guess where a version ends up when its state can't be read after the
// rollback.
func Lifecycle(codec stages.Codec, list v1alpha1.StageList) Opt {
	return func(r *Rollbacker) error {
		r.codec = codec
		r.stages = list
		return nil
	}
}

func New(client Client, opts ...Opt) (*Rollbacker, error) {
	if client == nil {
		return nil, ErrClientIsNil
	}
	r := &Rollbacker{client: client}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.log.GetSink() == nil {
		r.log = stdr.New(log.New(os.Stdout, "", log.Lshortfile))
	}
	return r, nil
}

// Rollback takes target out of the final stage.
func (r *Rollbacker) Rollback(ctx context.Context, target string) (*Result, error) {
	log := r.log.WithValues("application", r.client.Application(), "version", target, "dryRun", r.dryRun)

	records, err := r.client.ListVersions(ctx, listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed listing versions: %w", err)
	}
	released := ReleasedVersions(records)

	var current *apptrust.VersionRecord
	for i := range released {
		if released[i].Version == target {
			current = &released[i]
			break
		}
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotReleased, target)
	}

	res := &Result{Version: target, DryRun: r.dryRun}
	res.StageBefore = v1alpha1.APIStage(v1alpha1.Prod)
	if s, err := r.client.GetVersion(ctx, target); err == nil {
		res.StageBefore = s.CurrentStage
	}

	fromStage := v1alpha1.APIStage(v1alpha1.Prod)
	if r.dryRun {
		log.Info("dry run, not rolling back", "fromStage", fromStage)
	} else {
		if err := r.client.RollbackVersion(ctx, target, fromStage); err != nil {
			return nil, fmt.Errorf("failed rolling back %s: %w", target, err)
		}
		log.Info("rolled back version", "fromStage", fromStage)
	}

	res.StageAfter = r.stageBeforeFinal()
	if s, err := r.client.GetVersion(ctx, target); err == nil {
		res.StageAfter = s.CurrentStage
	}

	if err := r.retag(ctx, target, current.Tag, QuarantineTag, BackupBeforeQuarantine); err != nil {
		return res, err
	}

	if current.Tag != LatestTag {
		log.Info("rolled back version wasn't the latest one, latest tag unchanged")
		return res, nil
	}

	next := PickNextLatest(released, target)
	if next == nil {
		log.Info("no version left to take over the latest tag")
		return res, nil
	}
	if err := r.retag(ctx, next.Version, next.Tag, LatestTag, BackupBeforeLatest); err != nil {
		return res, err
	}
	res.NewLatest = next.Version
	log.Info("moved latest tag", "to", next.Version)

	return res, nil
}

// retag sets tag on version and keeps the tag it had in the backup property.
func (r *Rollbacker) retag(ctx context.Context, version, currentTag, tag, backupProperty string) error {
	patch := apptrust.VersionPatch{
		Tag:        &tag,
		Properties: map[string][]string{backupProperty: {currentTag}},
	}
	if r.dryRun {
		r.log.Info("dry run, not tagging version", "version", version, "tag", tag, "properties", patch.Properties)
		return nil
	}
	if err := r.client.PatchVersion(ctx, version, patch); err != nil {
		return fmt.Errorf("failed tagging %s as %s: %w", version, tag, err)
	}
	return nil
}

func (r *Rollbacker) stageBeforeFinal() v1alpha1.APIStage {
	idx := -1
	for i, s := range r.stages {
		if s == v1alpha1.Prod {
			idx = i
		}
	}
	if idx <= 0 {
		return ""
	}
	return r.codec.API(r.stages[idx-1])
}

// ReleasedVersions returns the released versions of records, newest first. Versions that aren't valid semantic
// versions are dropped.
func ReleasedVersions(records []apptrust.VersionRecord) []apptrust.VersionRecord {
	type parsed struct {
		record  apptrust.VersionRecord
		version *semver.Version
	}

	var out []parsed
	for _, rec := range records {
		rec.ReleaseStatus = strings.ToUpper(rec.ReleaseStatus)
		if !v1alpha1.IsReleased(rec.ReleaseStatus) {
			continue
		}
		v, err := ParseVersion(rec.Version)
		if err != nil {
			continue
		}
		out = append(out, parsed{record: rec, version: v})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[j].version.LessThan(out[i].version)
	})

	records = make([]apptrust.VersionRecord, len(out))
	for i, p := range out {
		records[i] = p.record
	}
	return records
}

// ParseVersion parses a full semantic version, optionally prefixed with "v".
func ParseVersion(s string) (*semver.Version, error) {
	return semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(s), "v"))
}

// PickNextLatest returns the newest version of sorted other than exclude that isn't quarantined. A trusted
// release is preferred over a plain one of the same version.
func PickNextLatest(sorted []apptrust.VersionRecord, exclude string) *apptrust.VersionRecord {
	var (
		version    string
		candidates []apptrust.VersionRecord
	)
	for _, rec := range sorted {
		if rec.Version == exclude || rec.Tag == QuarantineTag {
			continue
		}
		if version == "" {
			version = rec.Version
		}
		if rec.Version == version {
			candidates = append(candidates, rec)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	for i := range candidates {
		if candidates[i].ReleaseStatus == v1alpha1.ReleaseStatusTrustedRelease {
			return &candidates[i]
		}
	}
	return &candidates[0]
}

// NormalizeAppKey collapses an application key carrying the project prefix twice.
func NormalizeAppKey(appKey, project string) string {
	if project == "" {
		return appKey
	}
	doubled := project + "-" + project + "-"
	if strings.HasPrefix(appKey, doubled) {
		return project + "-" + strings.TrimPrefix(appKey, doubled)
	}
	return appKey
}
