package repositories

import (
	"fmt"
	"strings"
)

// Repository kinds as used in the release repository keys.
const (
	KindDocker  = "docker"
	KindNpm     = "npm"
	KindPython  = "python"
	KindPypi    = "pypi"
	KindHelm    = "helm"
	KindGeneric = "generic"
)

// releaseKinds lists the repository kinds released for a service. The primary artifact repository comes first.
var releaseKinds = map[string][]string{
	"web":             {KindNpm, KindDocker, KindGeneric},
	"helm":            {KindHelm, KindGeneric},
	"infra":           {KindPypi, KindGeneric},
	"inventory":       {KindDocker, KindPython, KindGeneric},
	"recommendations": {KindDocker, KindPython, KindGeneric},
	"checkout":        {KindDocker, KindPython, KindGeneric},
}

var defaultKinds = []string{KindDocker, KindPython, KindGeneric}

// Select returns the ordered release repository keys for a service of the given project. Unknown services get
// the default docker, python and generic set.
func Select(service, project string) []string {
	kinds, ok := releaseKinds[service]
	if !ok {
		kinds = defaultKinds
	}

	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = repositoryKey(project, service, kind)
	}
	return keys
}

func repositoryKey(project, service, kind string) string {
	return fmt.Sprintf("%s-%s-internal-%s-release-local", project, service, kind)
}

// ServiceFromApplication derives the service identifier from an application key, e.g. "bookverse-web" yields
// "web" for project "bookverse".
func ServiceFromApplication(app, project string) string {
	if project == "" {
		return app
	}
	return strings.TrimPrefix(app, project+"-")
}
