package storage

import (
	"context"
	"errors"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
)

var (
	// ErrPlayerScope is returned when a transaction opened for one player
	// tries to touch another player's records.
	ErrPlayerScope = errors.New("operation outside transaction player scope")
	// ErrInvalidRecord is returned for records that cannot be stored as given.
	ErrInvalidRecord = errors.New("invalid record")
)

// ContentStore is the read-only source of quest, recipe and catalogue
// definitions. Implementations must be safe for concurrent use.
type ContentStore interface {
	GetQuest(name string) (*quest.Definition, bool)
	ListQuestNames() []string
	GetRecipe(resultItem string) (*crafting.Recipe, bool)
	ListRecipes() []crafting.Recipe
	GetItem(name string) (quest.Item, bool)
	SuggestQuests(query string, limit int) []string
	SuggestRecipes(query string, limit int) []string
}

// ProgressReader reads one player's durable progress.
// Lookups that find nothing return a nil record and a nil error.
type ProgressReader interface {
	GetActiveQuestState(ctx context.Context, playerID, questName string) (*state.PlayerQuestState, error)
	ListActiveQuestStates(ctx context.Context, playerID string) ([]state.PlayerQuestState, error)
	ListQuestHistory(ctx context.Context, playerID string) ([]state.PlayerQuestState, error)
	HasDecision(ctx context.Context, playerID, questName string, scene int, choiceID string) (bool, error)
	ListDecisions(ctx context.Context, playerID string) ([]state.DecisionLogEntry, error)
	GetInventory(ctx context.Context, playerID string) ([]state.InventoryEntry, error)
	HasDiscovered(ctx context.Context, playerID, category, item string) (bool, error)
	ListDiscoveries(ctx context.Context, playerID string) ([]state.Discovery, error)
	HasCompletedQuest(ctx context.Context, playerID, questName string) (bool, error)
	GetRelationship(ctx context.Context, playerID, character string) (*state.Relationship, error)
	GetExperience(ctx context.Context, playerID string) (int, error)
}

// ProgressTx reads and writes one player's progress inside a transaction.
// Reads observe the transaction's own pending writes.
type ProgressTx interface {
	ProgressReader

	// SaveQuestState upserts an active run. Saving a run with a terminal
	// status archives it: the active record is removed, the run is appended
	// to the quest history and, when completed, the quest is marked done.
	SaveQuestState(ctx context.Context, st *state.PlayerQuestState) error
	AppendDecision(ctx context.Context, entry state.DecisionLogEntry) error
	// AdjustInventory adds delta to an item's quantity. A row is created
	// with rarityIfNew when absent and removed when it reaches zero or
	// below; a stored quantity is never negative.
	AdjustInventory(ctx context.Context, playerID, item string, delta int, rarityIfNew string) error
	// RecordDiscovery is idempotent: the first discovery timestamp is kept.
	RecordDiscovery(ctx context.Context, d state.Discovery) error
	SaveRelationship(ctx context.Context, rel state.Relationship) error
	AddExperience(ctx context.Context, playerID string, amount int) error
}

// ProgressStore is the durable store of player progress.
type ProgressStore interface {
	Ping(ctx context.Context) error
	Close() error

	// View runs fn against a consistent snapshot of the player's progress.
	View(ctx context.Context, playerID string, fn func(ProgressReader) error) error
	// Update runs fn in a transaction scoped to one player. If fn returns an
	// error, none of its writes are applied and that error is returned.
	Update(ctx context.Context, playerID string, fn func(ProgressTx) error) error
}

// CheckScope returns ErrPlayerScope when a record's player differs from the
// transaction's player.
func CheckScope(txPlayer, recordPlayer string) error {
	if txPlayer != recordPlayer {
		return ErrPlayerScope
	}
	return nil
}

// InventoryQuantities flattens inventory rows into item to quantity.
func InventoryQuantities(rows []state.InventoryEntry) map[string]int {
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Item] = r.Quantity
	}
	return out
}
