package engine

import (
	"errors"
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
)

// Reason is a machine-readable failure code callers can branch on.
type Reason string

const (
	ReasonQuestNotFound       Reason = "quest_not_found"
	ReasonAlreadyActive       Reason = "already_active"
	ReasonNoActiveQuest       Reason = "no_active_quest"
	ReasonSceneNotFound       Reason = "scene_not_found"
	ReasonChoiceNotFound      Reason = "choice_not_found"
	ReasonRecipeNotFound      Reason = "recipe_not_found"
	ReasonInsufficient        Reason = "insufficient_materials"
	ReasonMissingPrerequisite Reason = "missing_quest_prerequisite"
	ReasonInvalidRequest      Reason = "invalid_request"
	ReasonStorage             Reason = "storage_error"
)

// Failure is an expected, caller-facing failure of an engine operation.
type Failure struct {
	Reason      Reason                        `json:"reason"`
	Message     string                        `json:"error"`
	Suggestions []string                      `json:"suggestions,omitempty"`
	Missing     []crafting.ItemStatus         `json:"missing,omitempty"`
	Unmet       []crafting.PrerequisiteStatus `json:"unmet_prerequisites,omitempty"`
	Cause       error                         `json:"-"`
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Reason, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func failf(reason Reason, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// AsFailure extracts a *Failure from err. Errors that are not failures are
// reported as storage errors.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Reason: ReasonStorage, Message: "progress could not be read or saved", Cause: err}
}

// ReasonOf returns the failure reason carried by err, or "" for nil.
func ReasonOf(err error) Reason {
	if f := AsFailure(err); f != nil {
		return f.Reason
	}
	return ""
}
