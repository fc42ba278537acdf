package controllers

import (
	"time"

	"github.com/go-logr/logr"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

func Logger(l logr.Logger) Opt {
	return func(r *ProgressionController) error {
		r.log = l
		return nil
	}
}

// Identity sets the application and version being advanced.
func Identity(application, version string) Opt {
	return func(r *ProgressionController) error {
		r.application = application
		r.version = version
		return nil
	}
}

// ProjectKey sets the project namespacing stage and repository names.
func ProjectKey(key string) Opt {
	return func(r *ProgressionController) error {
		r.project = key
		return nil
	}
}

// Stages sets the ordered stage list. The final stage defaults to its last element.
func Stages(list v1alpha1.StageList) Opt {
	return func(r *ProgressionController) error {
		r.stages = list
		return nil
	}
}

func FinalStage(s v1alpha1.Stage) Opt {
	return func(r *ProgressionController) error {
		r.finalStage = s
		return nil
	}
}

// AllowRelease enables releasing the version when it's advanced into the final stage.
func AllowRelease(allow bool) Opt {
	return func(r *ProgressionController) error {
		r.allowRelease = allow
		return nil
	}
}

// Service sets the service identifier used to select release repositories. Defaults to the application key
// without the project prefix.
func Service(service string) Opt {
	return func(r *ProgressionController) error {
		r.service = service
		return nil
	}
}

// RepositoryKeys overrides the release repositories derived from the service.
func RepositoryKeys(keys []string) Opt {
	return func(r *ProgressionController) error {
		r.repositoryKeys = keys
		return nil
	}
}

// Confirmation configures how often the summary is re-read until it shows a completed transition.
func Confirmation(retries int, delay time.Duration) Opt {
	return func(r *ProgressionController) error {
		r.confirmRetries = retries
		r.confirmDelay = delay
		return nil
	}
}
