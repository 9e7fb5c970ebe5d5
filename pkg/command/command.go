// Package command is the caller-facing surface of the engine: a closed set of
// request types, a parser for console text, and Dispatch, which runs a
// request and returns a tagged Response.
package command

import (
	"context"

	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
)

// Service is the set of engine operations requests are dispatched to.
type Service interface {
	ListAvailable(ctx context.Context, playerID string) ([]engine.QuestSummary, error)
	ListQuests(ctx context.Context, playerID string) ([]engine.QuestSummary, error)
	ActiveQuests(ctx context.Context, playerID string) ([]engine.ActiveQuest, error)
	Start(ctx context.Context, playerID, questName string) (*quest.View, error)
	CurrentScene(ctx context.Context, playerID, questName string) (*quest.View, error)
	ApplyChoice(ctx context.Context, playerID, questName, choiceID string) (*engine.Step, error)
	Abandon(ctx context.Context, playerID, questName string) (*engine.Abandonment, error)
	Inventory(ctx context.Context, playerID string) ([]engine.InventoryItem, error)
	ListRecipes(ctx context.Context, playerID string) ([]engine.Feasibility, error)
	CanCraft(ctx context.Context, playerID, item string) (*engine.Feasibility, error)
	Craft(ctx context.Context, playerID, item string) (*engine.Crafted, error)
	Interact(ctx context.Context, playerID, character string) (*state.Relationship, error)
	Discover(ctx context.Context, playerID, category, item string) error
}

var _ Service = (*engine.Engine)(nil)

// Request is one engine operation. The set of implementations is closed.
type Request interface {
	Player() string
	request()
}

type (
	ListAvailable struct{ PlayerID string }
	ListQuests    struct{ PlayerID string }
	ActiveQuests  struct{ PlayerID string }
	StartQuest    struct{ PlayerID, Quest string }
	CurrentScene  struct{ PlayerID, Quest string }
	ApplyChoice   struct{ PlayerID, Quest, ChoiceID string }
	AbandonQuest  struct{ PlayerID, Quest string }
	Inventory     struct{ PlayerID string }
	ListRecipes   struct{ PlayerID string }
	CheckRecipe   struct{ PlayerID, Item string }
	Craft         struct{ PlayerID, Item string }
	Interact      struct{ PlayerID, Character string }
	Discover      struct{ PlayerID, Category, Item string }
)

func (r ListAvailable) Player() string { return r.PlayerID }
func (r ListQuests) Player() string    { return r.PlayerID }
func (r ActiveQuests) Player() string  { return r.PlayerID }
func (r StartQuest) Player() string    { return r.PlayerID }
func (r CurrentScene) Player() string  { return r.PlayerID }
func (r ApplyChoice) Player() string   { return r.PlayerID }
func (r AbandonQuest) Player() string  { return r.PlayerID }
func (r Inventory) Player() string     { return r.PlayerID }
func (r ListRecipes) Player() string   { return r.PlayerID }
func (r CheckRecipe) Player() string   { return r.PlayerID }
func (r Craft) Player() string         { return r.PlayerID }
func (r Interact) Player() string      { return r.PlayerID }
func (r Discover) Player() string      { return r.PlayerID }

func (ListAvailable) request() {}
func (ListQuests) request()    {}
func (ActiveQuests) request()  {}
func (StartQuest) request()    {}
func (CurrentScene) request()  {}
func (ApplyChoice) request()   {}
func (AbandonQuest) request()  {}
func (Inventory) request()     {}
func (ListRecipes) request()   {}
func (CheckRecipe) request()   {}
func (Craft) request()         {}
func (Interact) request()      {}
func (Discover) request()      {}

// Kind tags a Response.
type Kind string

const (
	KindScene        Kind = "scene"
	KindCompletion   Kind = "completion"
	KindQuests       Kind = "quests"
	KindActive       Kind = "active_quests"
	KindInventory    Kind = "inventory"
	KindRecipes      Kind = "recipes"
	KindFeasibility  Kind = "feasibility"
	KindCrafted      Kind = "crafted"
	KindRelationship Kind = "relationship"
	KindAbandoned    Kind = "abandoned"
	KindAck          Kind = "ack"
	KindFailure      Kind = "failure"
)

// Response is the tagged result of a request. Only the field matching Kind
// is set.
type Response struct {
	Kind         Kind                   `json:"kind"`
	Scene        *quest.View            `json:"scene,omitempty"`
	Completion   *engine.Completion     `json:"completion,omitempty"`
	Quests       []engine.QuestSummary  `json:"quests,omitempty"`
	Active       []engine.ActiveQuest   `json:"active_quests,omitempty"`
	Inventory    []engine.InventoryItem `json:"inventory,omitempty"`
	Recipes      []engine.Feasibility   `json:"recipes,omitempty"`
	Feasibility  *engine.Feasibility    `json:"feasibility,omitempty"`
	Crafted      *engine.Crafted        `json:"crafted,omitempty"`
	Relationship *state.Relationship    `json:"relationship,omitempty"`
	Abandoned    *engine.Abandonment    `json:"abandoned,omitempty"`
	Failure      *engine.Failure        `json:"failure,omitempty"`
}

// Failed reports whether the response is a failure.
func (r Response) Failed() bool {
	return r.Kind == KindFailure
}

func failure(err error) Response {
	return Response{Kind: KindFailure, Failure: engine.AsFailure(err)}
}

// Dispatch runs req against svc. Engine errors become failure responses;
// Dispatch itself never returns an error.
func Dispatch(ctx context.Context, svc Service, req Request) Response {
	switch r := req.(type) {
	case ListAvailable:
		quests, err := svc.ListAvailable(ctx, r.PlayerID)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindQuests, Quests: nonNil(quests)}
	case ListQuests:
		quests, err := svc.ListQuests(ctx, r.PlayerID)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindQuests, Quests: nonNil(quests)}
	case ActiveQuests:
		active, err := svc.ActiveQuests(ctx, r.PlayerID)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindActive, Active: nonNil(active)}
	case StartQuest:
		view, err := svc.Start(ctx, r.PlayerID, r.Quest)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindScene, Scene: view}
	case CurrentScene:
		view, err := svc.CurrentScene(ctx, r.PlayerID, r.Quest)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindScene, Scene: view}
	case ApplyChoice:
		step, err := svc.ApplyChoice(ctx, r.PlayerID, r.Quest, r.ChoiceID)
		if err != nil {
			return failure(err)
		}
		if step.Completion != nil {
			return Response{Kind: KindCompletion, Completion: step.Completion}
		}
		return Response{Kind: KindScene, Scene: step.Scene}
	case AbandonQuest:
		ab, err := svc.Abandon(ctx, r.PlayerID, r.Quest)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindAbandoned, Abandoned: ab}
	case Inventory:
		items, err := svc.Inventory(ctx, r.PlayerID)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindInventory, Inventory: nonNil(items)}
	case ListRecipes:
		recipes, err := svc.ListRecipes(ctx, r.PlayerID)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindRecipes, Recipes: nonNil(recipes)}
	case CheckRecipe:
		fe, err := svc.CanCraft(ctx, r.PlayerID, r.Item)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindFeasibility, Feasibility: fe}
	case Craft:
		crafted, err := svc.Craft(ctx, r.PlayerID, r.Item)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindCrafted, Crafted: crafted}
	case Interact:
		rel, err := svc.Interact(ctx, r.PlayerID, r.Character)
		if err != nil {
			return failure(err)
		}
		return Response{Kind: KindRelationship, Relationship: rel}
	case Discover:
		if err := svc.Discover(ctx, r.PlayerID, r.Category, r.Item); err != nil {
			return failure(err)
		}
		return Response{Kind: KindAck}
	default:
		return Response{Kind: KindFailure, Failure: &engine.Failure{
			Reason:  engine.ReasonInvalidRequest,
			Message: "unsupported request",
		}}
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
