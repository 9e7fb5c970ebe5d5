package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jwebster45206/quest-engine/internal/logger"
	"github.com/jwebster45206/quest-engine/pkg/command"
	"github.com/jwebster45206/quest-engine/pkg/engine"
)

// maxBodyBytes bounds the JSON bodies accepted by player routes.
const maxBodyBytes = 16 << 10

type ChoiceRequest struct {
	ChoiceID string `json:"choice_id"`
}

type DiscoveryRequest struct {
	Category string `json:"category"`
	Item     string `json:"item"`
}

// PlayerHandler turns player routes into command requests and dispatches
// them to the engine.
type PlayerHandler struct {
	svc    command.Service
	logger *slog.Logger
}

func NewPlayerHandler(svc command.Service, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{svc: svc, logger: logger}
}

func (h *PlayerHandler) dispatch(w http.ResponseWriter, r *http.Request, req command.Request) {
	h.respond(w, r, req, false)
}

func (h *PlayerHandler) respond(w http.ResponseWriter, r *http.Request, req command.Request, created bool) {
	resp := command.Dispatch(r.Context(), h.svc, req)
	writeResponse(w, requestLogger(r, h.logger), resp, created)
}

func (h *PlayerHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.ListAvailable{PlayerID: param(r, "player")})
}

func (h *PlayerHandler) ListQuests(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.ListQuests{PlayerID: param(r, "player")})
}

func (h *PlayerHandler) ActiveQuests(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.ActiveQuests{PlayerID: param(r, "player")})
}

func (h *PlayerHandler) StartQuest(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, command.StartQuest{PlayerID: param(r, "player"), Quest: param(r, "quest")}, true)
}

func (h *PlayerHandler) CurrentScene(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.CurrentScene{PlayerID: param(r, "player"), Quest: param(r, "quest")})
}

func (h *PlayerHandler) ApplyChoice(w http.ResponseWriter, r *http.Request) {
	var req ChoiceRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, command.ApplyChoice{
		PlayerID: param(r, "player"),
		Quest:    param(r, "quest"),
		ChoiceID: req.ChoiceID,
	})
}

func (h *PlayerHandler) AbandonQuest(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.AbandonQuest{PlayerID: param(r, "player"), Quest: param(r, "quest")})
}

func (h *PlayerHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Inventory{PlayerID: param(r, "player")})
}

func (h *PlayerHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.ListRecipes{PlayerID: param(r, "player")})
}

func (h *PlayerHandler) CheckRecipe(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.CheckRecipe{PlayerID: param(r, "player"), Item: param(r, "item")})
}

func (h *PlayerHandler) Craft(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Craft{PlayerID: param(r, "player"), Item: param(r, "item")})
}

func (h *PlayerHandler) Interact(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, command.Interact{PlayerID: param(r, "player"), Character: param(r, "character")})
}

func (h *PlayerHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoveryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.dispatch(w, r, command.Discover{
		PlayerID: param(r, "player"),
		Category: req.Category,
		Item:     req.Item,
	})
}

// decode reads a JSON body into v. A malformed body is answered with an
// invalid_request failure and decode reports false.
func (h *PlayerHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		log := requestLogger(r, h.logger)
		logger.WithError(log, err).Warn("Invalid request body", "path", r.URL.Path)
		writeJSON(w, log, http.StatusBadRequest, &engine.Failure{
			Reason:  engine.ReasonInvalidRequest,
			Message: "request body must be valid JSON",
		})
		return false
	}
	return true
}

// param returns a decoded path parameter. Names such as "The Ember's
// Awakening" arrive percent-encoded.
func param(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(v); err == nil {
		return decoded
	}
	return v
}
