package access

import (
	"github.com/bz888/llamagate/internal/models"
)

// Decision is the outcome of authorizing one generation call.
type Decision int

const (
	Allowed Decision = iota
	Unauthorized
	ForbiddenInactive
	ForbiddenModelNotAssigned
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Unauthorized:
		return "unauthorized"
	case ForbiddenInactive:
		return "forbidden-inactive"
	case ForbiddenModelNotAssigned:
		return "forbidden-model-not-assigned"
	default:
		return "unknown"
	}
}

// ProjectSource resolves an API key to its project, with model assignments
// loaded. A nil project (and nil error) means the key is unknown.
type ProjectSource interface {
	ProjectByAPIKey(key string) (*models.Project, error)
}

// Authorize applies the access-control table for a generation call: the key
// must belong to an active project and the requested model must be assigned
// to it. Runs before any upstream dispatch; the error return is reserved for
// lookup failures.
func Authorize(src ProjectSource, apiKey, model string) (Decision, *models.Project, error) {
	if apiKey == "" {
		return Unauthorized, nil, nil
	}

	project, err := src.ProjectByAPIKey(apiKey)
	if err != nil {
		return Unauthorized, nil, err
	}
	if project == nil {
		return Unauthorized, nil, nil
	}
	if !project.IsActive {
		return ForbiddenInactive, project, nil
	}
	if !project.HasModel(model) {
		return ForbiddenModelNotAssigned, project, nil
	}
	return Allowed, project, nil
}
