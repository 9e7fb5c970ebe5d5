package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

const (
	emberQuest    = "The Ember's Awakening"
	relicsQuest   = "The Shattered Relics of Fate"
	infernoFang   = "Inferno Fang"
	enhancedFang  = "Enhanced Inferno Fang"
	emberdustVial = "Emberdust Vial"
	relicShard    = "Relic Shard"
)

// testContent is an in-memory ContentStore for engine tests.
type testContent struct {
	quests  map[string]*quest.Definition
	recipes map[string]*crafting.Recipe
	items   map[string]quest.Item
}

var _ storage.ContentStore = (*testContent)(nil)

func (c *testContent) GetQuest(name string) (*quest.Definition, bool) {
	q, ok := c.quests[name]
	return q, ok
}

func (c *testContent) ListQuestNames() []string {
	names := make([]string, 0, len(c.quests))
	for n := range c.quests {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *testContent) GetRecipe(item string) (*crafting.Recipe, bool) {
	r, ok := c.recipes[item]
	return r, ok
}

func (c *testContent) ListRecipes() []crafting.Recipe {
	names := make([]string, 0, len(c.recipes))
	for n := range c.recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]crafting.Recipe, 0, len(names))
	for _, n := range names {
		out = append(out, *c.recipes[n])
	}
	return out
}

func (c *testContent) GetItem(name string) (quest.Item, bool) {
	it, ok := c.items[name]
	return it, ok
}

func (c *testContent) SuggestQuests(query string, limit int) []string {
	return suggest(c.ListQuestNames(), query, limit)
}

func (c *testContent) SuggestRecipes(query string, limit int) []string {
	names := make([]string, 0, len(c.recipes))
	for n := range c.recipes {
		names = append(names, n)
	}
	sort.Strings(names)
	return suggest(names, query, limit)
}

func suggest(names []string, query string, limit int) []string {
	var out []string
	q := strings.ToLower(query)
	for _, n := range names {
		if q != "" && strings.Contains(strings.ToLower(n), q) && len(out) < limit {
			out = append(out, n)
		}
	}
	return out
}

func newTestContent() *testContent {
	ember := &quest.Definition{
		Name:        emberQuest,
		Description: "Rekindle the old forge.",
		Difficulty:  "easy",
		Scenes: []quest.Scene{
			{
				Number:    1,
				Title:     "The Cold Forge",
				Narrative: "You are rank {rank}. You hold {mystery}.",
				Choices: []quest.Choice{
					{
						ID:   "3A",
						Text: "Take the vial",
						Outcome: quest.Outcome{
							ItemsGained: quest.ItemStack{{Name: emberdustVial, Quantity: 1}},
							Next:        quest.NextScene{Number: 2},
						},
					},
					{
						ID:   "1B",
						Text: "Greet the elder",
						Outcome: quest.Outcome{
							StateChanges: quest.VarMap{"met_elder": "true", "rank": "3", "affinity.Elder Maren": "+2"},
						},
					},
				},
			},
			{
				Number:    2,
				Title:     "The Elder",
				Narrative: "The elder watches you, rank {rank}.",
				Choices: []quest.Choice{
					{
						ID:         "2A",
						Text:       "Ask about relics",
						Conditions: quest.VarMap{"met_elder": "true"},
						Outcome: quest.Outcome{
							ItemsGained: quest.ItemStack{{Name: relicShard, Quantity: 1, Rarity: "rare"}},
							ItemsLost:   quest.ItemStack{{Name: emberdustVial, Quantity: 1}},
						},
					},
					{ID: "2B", Text: "Move on", Outcome: quest.Outcome{Next: quest.NextScene{Number: 3}}},
					{ID: "2X", Text: "Step through the rift", Outcome: quest.Outcome{Next: quest.NextScene{Number: 9}}},
				},
			},
			{Number: 3, Title: "Embers", Narrative: "The ember wakes."},
		},
		Rewards: quest.Rewards{
			XP:    50,
			Items: quest.ItemStack{{Name: relicShard, Quantity: 1}},
			Lore:  quest.LoreRefs{{Category: "locations", Name: "Ember Forge"}},
		},
	}
	relics := &quest.Definition{
		Name:          relicsQuest,
		Scenes:        []quest.Scene{{Number: 1, Narrative: "Shards glitter.", Choices: []quest.Choice{{ID: "1A", Text: "Gather", Outcome: quest.Outcome{Next: quest.NextScene{Complete: true}}}}}},
		Prerequisites: quest.Prerequisites{Quests: []string{emberQuest}},
	}
	return &testContent{
		quests: map[string]*quest.Definition{ember.Name: ember, relics.Name: relics},
		recipes: map[string]*crafting.Recipe{
			infernoFang: {
				Result:            infernoFang,
				Rarity:            "Rare",
				Ingredients:       quest.ItemStack{{Name: emberdustVial, Quantity: 1}, {Name: relicShard, Quantity: 1}},
				QuestRequirements: crafting.QuestRequirements{{Quest: emberQuest}},
			},
			enhancedFang: {
				Result:            enhancedFang,
				Rarity:            "Rare",
				Ingredients:       quest.ItemStack{{Name: relicShard, Quantity: 1}},
				QuestRequirements: crafting.QuestRequirements{{Quest: emberQuest, Scene: 2, Choice: "2A"}},
			},
		},
		items: map[string]quest.Item{
			relicShard:    {Name: relicShard, Rarity: "Rare", Description: "A sliver of an ancient relic."},
			emberdustVial: {Name: emberdustVial, Description: "Warm to the touch."},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *faultStore) {
	t.Helper()
	fs := &faultStore{ProgressStore: storage.NewMemoryStore()}
	return New(newTestContent(), fs, testLogger()), fs
}

var errInjected = errors.New("injected fault")

// faultStore wraps a ProgressStore so tests can make chosen operations fail
// part-way through a transaction.
type faultStore struct {
	storage.ProgressStore
	mu sync.Mutex
	// failAdjust fails AdjustInventory calls it returns true for.
	failAdjust func(item string, delta int) bool
	// failCompleted fails HasCompletedQuest lookups for the named quest.
	failCompleted string
}

func (f *faultStore) set(fn func(fs *faultStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultStore) View(ctx context.Context, playerID string, fn func(storage.ProgressReader) error) error {
	return f.ProgressStore.View(ctx, playerID, func(r storage.ProgressReader) error {
		return fn(&faultReader{ProgressReader: r, store: f})
	})
}

func (f *faultStore) Update(ctx context.Context, playerID string, fn func(storage.ProgressTx) error) error {
	return f.ProgressStore.Update(ctx, playerID, func(tx storage.ProgressTx) error {
		return fn(&faultTx{ProgressTx: tx, store: f})
	})
}

type faultReader struct {
	storage.ProgressReader
	store *faultStore
}

func (r *faultReader) HasCompletedQuest(ctx context.Context, playerID, questName string) (bool, error) {
	r.store.mu.Lock()
	fail := r.store.failCompleted == questName
	r.store.mu.Unlock()
	if fail {
		return false, errInjected
	}
	return r.ProgressReader.HasCompletedQuest(ctx, playerID, questName)
}

type faultTx struct {
	storage.ProgressTx
	store *faultStore
}

func (t *faultTx) AdjustInventory(ctx context.Context, playerID, item string, delta int, rarityIfNew string) error {
	t.store.mu.Lock()
	fail := t.store.failAdjust != nil && t.store.failAdjust(item, delta)
	t.store.mu.Unlock()
	if fail {
		return errInjected
	}
	return t.ProgressTx.AdjustInventory(ctx, playerID, item, delta, rarityIfNew)
}

// inventoryOf reads the player's inventory straight from the store.
func inventoryOf(t *testing.T, s storage.ProgressStore, playerID string) map[string]state.InventoryEntry {
	t.Helper()
	out := make(map[string]state.InventoryEntry)
	err := s.View(context.Background(), playerID, func(r storage.ProgressReader) error {
		rows, err := r.GetInventory(context.Background(), playerID)
		for _, row := range rows {
			out[row.Item] = row
		}
		return err
	})
	if err != nil {
		t.Fatalf("read inventory: %v", err)
	}
	return out
}

func decisionsOf(t *testing.T, s storage.ProgressStore, playerID string) []state.DecisionLogEntry {
	t.Helper()
	var out []state.DecisionLogEntry
	err := s.View(context.Background(), playerID, func(r storage.ProgressReader) error {
		var err error
		out, err = r.ListDecisions(context.Background(), playerID)
		return err
	})
	if err != nil {
		t.Fatalf("read decisions: %v", err)
	}
	return out
}
