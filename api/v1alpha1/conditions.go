package v1alpha1

// Release statuses reported by the remote service.
const (
	ReleaseStatusPreRelease     = "PRE_RELEASE"
	ReleaseStatusReleased       = "RELEASED"
	ReleaseStatusTrustedRelease = "TRUSTED_RELEASE"
)

// Keys of the flat run state handed to later pipeline steps.
const (
	CurrentStageKey   = "CURRENT_STAGE"
	ReleaseStatusKey  = "RELEASE_STATUS"
	PromotedStagesKey = "PROMOTED_STAGES"
	DidReleaseKey     = "DID_RELEASE"
	ApplicationKeyKey = "APPLICATION_KEY"
	AppVersionKey     = "APP_VERSION"

	StageBeforeRollbackKey = "WORKFLOW_STAGE_BEFORE"
	StageAfterRollbackKey  = "WORKFLOW_STAGE_AFTER"
)

// IsReleased returns true if the release status denotes a released version.
func IsReleased(status string) bool {
	return status == ReleaseStatusReleased || status == ReleaseStatusTrustedRelease
}
