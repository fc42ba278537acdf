package stages

import (
	"strings"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
)

// Codec translates between display stages and the project-namespaced stage names of the promotion service.
// PROD is the only stage that's never prefixed. Malformed names are passed through unchanged, the remote
// service decides what's valid.
type Codec struct {
	ProjectKey string
}

func NewCodec(projectKey string) Codec {
	return Codec{ProjectKey: projectKey}
}

func (c Codec) prefix() string {
	return c.ProjectKey + "-"
}

// API returns the namespaced form of display. Applying it to a name that already carries the project prefix
// returns that name unchanged.
func (c Codec) API(display v1alpha1.Stage) v1alpha1.APIStage {
	if display.IsUnassigned() {
		return ""
	}
	if display == v1alpha1.Prod || c.ProjectKey == "" {
		return v1alpha1.APIStage(display)
	}
	if strings.HasPrefix(string(display), c.prefix()) {
		return v1alpha1.APIStage(display)
	}
	return v1alpha1.APIStage(c.prefix() + string(display))
}

// Normalize returns the display form of a configured stage name. Configured names may carry the project
// prefix and are matched case-insensitively, e.g. "bookverse-dev" and "DEV" both yield DEV.
func (c Codec) Normalize(s v1alpha1.Stage) v1alpha1.Stage {
	name := strings.TrimSpace(string(s))
	if name == "" {
		return ""
	}
	if p := c.prefix(); c.ProjectKey != "" && len(name) > len(p) && strings.EqualFold(name[:len(p)], p) {
		name = name[len(p):]
	}
	return v1alpha1.Stage(strings.ToUpper(name))
}

// NormalizeList returns a copy of list with every stage in display form.
func (c Codec) NormalizeList(list v1alpha1.StageList) v1alpha1.StageList {
	if list == nil {
		return nil
	}
	out := make(v1alpha1.StageList, len(list))
	for i, s := range list {
		out[i] = c.Normalize(s)
	}
	return out
}

// Display returns the project-agnostic form of api. The empty name denotes an unassigned version.
func (c Codec) Display(api v1alpha1.APIStage) v1alpha1.Stage {
	if api == "" {
		return v1alpha1.Unassigned
	}
	if api == v1alpha1.APIStage(v1alpha1.Prod) {
		return v1alpha1.Prod
	}
	if c.ProjectKey == "" {
		return v1alpha1.Stage(api)
	}
	if api == v1alpha1.APIStage(c.prefix()+string(v1alpha1.Prod)) {
		return v1alpha1.Prod
	}
	return v1alpha1.Stage(strings.TrimPrefix(string(api), c.prefix()))
}
