package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/pkg/command"
	"github.com/jwebster45206/quest-engine/pkg/engine"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// AckResponse is the body of operations that return nothing but success.
type AckResponse struct {
	Kind   command.Kind `json:"kind"`
	Status string       `json:"status"`
}

// StatusFor maps a failure reason onto an HTTP status code.
func StatusFor(reason engine.Reason) int {
	switch {
	case strings.HasSuffix(string(reason), "_not_found"):
		return http.StatusNotFound
	case reason == engine.ReasonAlreadyActive, reason == engine.ReasonNoActiveQuest:
		return http.StatusConflict
	case reason == engine.ReasonInsufficient, reason == engine.ReasonMissingPrerequisite:
		return http.StatusUnprocessableEntity
	case reason == engine.ReasonInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// body picks the payload for a response kind. List kinds are wrapped so an
// empty list is still written as [].
func body(resp command.Response) any {
	switch resp.Kind {
	case command.KindScene:
		return resp.Scene
	case command.KindCompletion:
		return resp.Completion
	case command.KindQuests:
		return map[string]any{"kind": resp.Kind, "quests": resp.Quests}
	case command.KindActive:
		return map[string]any{"kind": resp.Kind, "active_quests": resp.Active}
	case command.KindInventory:
		return map[string]any{"kind": resp.Kind, "inventory": resp.Inventory}
	case command.KindRecipes:
		return map[string]any{"kind": resp.Kind, "recipes": resp.Recipes}
	case command.KindFeasibility:
		return resp.Feasibility
	case command.KindCrafted:
		return resp.Crafted
	case command.KindRelationship:
		return resp.Relationship
	case command.KindAbandoned:
		return resp.Abandoned
	case command.KindFailure:
		return resp.Failure
	default:
		return AckResponse{Kind: resp.Kind, Status: "ok"}
	}
}

// writeResponse writes a dispatched response with the status its kind calls
// for. A scene reached by starting a quest is reported as 201.
func writeResponse(w http.ResponseWriter, log *slog.Logger, resp command.Response, created bool) {
	status := http.StatusOK
	switch {
	case resp.Failed():
		status = StatusFor(resp.Failure.Reason)
		if status == http.StatusInternalServerError {
			logger.WithError(log, resp.Failure).Error("Request failed", "reason", resp.Failure.Reason)
		}
	case created:
		status = http.StatusCreated
	}
	writeJSON(w, log, status, body(resp))
}

func writeError(w http.ResponseWriter, log *slog.Logger, status int, message string) {
	writeJSON(w, log, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(log, err).Error("Failed to encode response")
	}
}
