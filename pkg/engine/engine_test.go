package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// playEmber completes the Ember quest along the 3A, 2B, continue path.
func playEmber(t *testing.T, e *Engine, player string) *Completion {
	t.Helper()
	ctx := context.Background()
	_, err := e.Start(ctx, player, emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, player, emberQuest, "3A")
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, player, emberQuest, "2B")
	require.NoError(t, err)
	step, err := e.ApplyChoice(ctx, player, emberQuest, quest.ContinueChoiceID)
	require.NoError(t, err)
	require.NotNil(t, step.Completion)
	return step.Completion
}

func TestStartReturnsFirstScene(t *testing.T) {
	e, _ := newTestEngine(t)

	view, err := e.Start(context.Background(), "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Number)
	assert.Equal(t, "You are rank {rank}. You hold {mystery}.", view.Narrative)
	assert.Len(t, view.Choices, 2)
}

func TestStartFailures(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", "Ember")
	assert.Equal(t, ReasonQuestNotFound, ReasonOf(err))
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Contains(t, f.Suggestions, emberQuest)

	_, err = e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.Start(ctx, "P", emberQuest)
	assert.Equal(t, ReasonAlreadyActive, ReasonOf(err))

	// a different quest may run at the same time
	_, err = e.Start(ctx, "P", relicsQuest)
	require.NoError(t, err)

	var active []state.PlayerQuestState
	require.NoError(t, fs.View(ctx, "P", func(r storage.ProgressReader) error {
		active, err = r.ListActiveQuestStates(ctx, "P")
		return err
	}))
	assert.Len(t, active, 2, "a second start never creates a second run")

	_, err = e.Start(ctx, "  ", emberQuest)
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
}

// End-to-end: choosing 3A grants the vial, moves to scene 2 and logs one decision.
func TestApplyChoiceGrantsItemAndAdvances(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	step, err := e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)
	require.NotNil(t, step.Scene)
	assert.Nil(t, step.Completion)
	assert.Equal(t, 2, step.Scene.Number)

	inv := inventoryOf(t, fs, "P")
	require.Contains(t, inv, emberdustVial)
	assert.Equal(t, 1, inv[emberdustVial].Quantity)
	assert.Equal(t, state.DefaultRarity, inv[emberdustVial].Rarity)

	view, err := e.CurrentScene(ctx, "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Number)

	decisions := decisionsOf(t, fs, "P")
	require.Len(t, decisions, 1)
	assert.Equal(t, emberQuest, decisions[0].Quest)
	assert.Equal(t, 1, decisions[0].Scene)
	assert.Equal(t, "3A", decisions[0].Choice)
	assert.Equal(t, "P", decisions[0].PlayerID)
}

func TestApplyChoiceFailureKinds(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.ApplyChoice(ctx, "P", emberQuest, "3A")
	assert.Equal(t, ReasonNoActiveQuest, ReasonOf(err))

	_, err = e.CurrentScene(ctx, "P", emberQuest)
	assert.Equal(t, ReasonNoActiveQuest, ReasonOf(err))

	_, err = e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "9Z")
	assert.Equal(t, ReasonChoiceNotFound, ReasonOf(err))

	_, err = e.ApplyChoice(ctx, "P", "No Such Quest", "3A")
	assert.Equal(t, ReasonQuestNotFound, ReasonOf(err))

	assert.Empty(t, decisionsOf(t, fs, "P"), "rejected choices are not logged")
}

func TestApplyChoiceUnknownJumpTarget(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)

	_, err = e.ApplyChoice(ctx, "P", emberQuest, "2X")
	assert.Equal(t, ReasonSceneNotFound, ReasonOf(err))
	assert.Len(t, decisionsOf(t, fs, "P"), 1)

	view, err := e.CurrentScene(ctx, "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Number)
}

func TestConditionalChoiceAndSubstitution(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)

	view, err := e.CurrentScene(ctx, "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, "The elder watches you, rank {rank}.", view.Narrative)
	for _, ch := range view.Choices {
		assert.NotEqual(t, "2A", ch.ID, "2A requires met_elder")
	}
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "2A")
	assert.Equal(t, ReasonChoiceNotFound, ReasonOf(err), "hidden choices cannot be selected")

	_, err = e.Abandon(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	step, err := e.ApplyChoice(ctx, "P", emberQuest, "1B")
	require.NoError(t, err)
	require.NotNil(t, step.Scene)
	assert.Equal(t, 2, step.Scene.Number, "implied next scene")
	assert.Equal(t, "The elder watches you, rank 3.", step.Scene.Narrative)

	ids := make([]string, 0, len(step.Scene.Choices))
	for _, ch := range step.Scene.Choices {
		ids = append(ids, ch.ID)
	}
	assert.Contains(t, ids, "2A")

	step, err = e.ApplyChoice(ctx, "P", emberQuest, "2A")
	require.NoError(t, err)
	require.NotNil(t, step.Scene)
	assert.Equal(t, 3, step.Scene.Number)

	inv := inventoryOf(t, fs, "P")
	assert.NotContains(t, inv, emberdustVial, "vial from the abandoned run was lost in 2A")
	assert.Equal(t, "Rare", inv[relicShard].Rarity)
}

func TestAffinityThroughOutcome(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "1B")
	require.NoError(t, err)

	require.NoError(t, fs.View(ctx, "P", func(r storage.ProgressReader) error {
		rel, err := r.GetRelationship(ctx, "P", "Elder Maren")
		require.NoError(t, err)
		require.NotNil(t, rel)
		assert.Equal(t, 2, rel.Affinity)

		met, err := r.HasDiscovered(ctx, "P", state.CategoryCharacters, "Elder Maren")
		require.NoError(t, err)
		assert.True(t, met)

		st, err := r.GetActiveQuestState(ctx, "P", emberQuest)
		require.NoError(t, err)
		assert.NotContains(t, st.Vars, "affinity.Elder Maren")
		assert.Equal(t, "true", st.Vars["met_elder"])
		return nil
	}))

	rel, err := e.Interact(ctx, "P", "Elder Maren")
	require.NoError(t, err)
	assert.Equal(t, 2, rel.Affinity, "interaction never changes affinity")
	assert.True(t, rel.LastInteraction.After(rel.FirstMet))
}

func TestInteractFirstContact(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rel, err := e.Interact(ctx, "P", "Smith Orrin")
	require.NoError(t, err)
	assert.Equal(t, 0, rel.Affinity)
	assert.True(t, rel.FirstMet.Equal(rel.LastInteraction))

	again, err := e.Interact(ctx, "P", "Smith Orrin")
	require.NoError(t, err)
	assert.True(t, again.FirstMet.Equal(rel.FirstMet))
	assert.True(t, again.LastInteraction.After(rel.LastInteraction))

	_, err = e.Interact(ctx, "P", " ")
	assert.Equal(t, ReasonInvalidRequest, ReasonOf(err))
}

func TestCompletionRewardsInOrder(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	c := playEmber(t, e, "P")
	assert.Equal(t, emberQuest, c.Quest)
	require.Len(t, c.Rewards, 3)
	assert.Equal(t, Reward{Kind: RewardItem, Item: relicShard, Quantity: 1, Rarity: "Rare"}, c.Rewards[0])
	assert.Equal(t, Reward{Kind: RewardExperience, Amount: 50}, c.Rewards[1])
	assert.Equal(t, Reward{Kind: RewardLore, Category: "locations", Name: "Ember Forge"}, c.Rewards[2])
	assert.Equal(t, 50, c.Experience)

	require.NoError(t, fs.View(ctx, "P", func(r storage.ProgressReader) error {
		done, err := r.HasCompletedQuest(ctx, "P", emberQuest)
		require.NoError(t, err)
		assert.True(t, done)

		found, err := r.HasDiscovered(ctx, "P", state.CategoryQuests, emberQuest)
		require.NoError(t, err)
		assert.True(t, found)

		found, err = r.HasDiscovered(ctx, "P", "locations", "Ember Forge")
		require.NoError(t, err)
		assert.True(t, found)

		st, err := r.GetActiveQuestState(ctx, "P", emberQuest)
		require.NoError(t, err)
		assert.Nil(t, st, "completed run is archived")
		return nil
	}))

	_, err := e.CurrentScene(ctx, "P", emberQuest)
	assert.Equal(t, ReasonNoActiveQuest, ReasonOf(err))
}

func TestAbandonKeepsEffects(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Abandon(ctx, "P", emberQuest)
	assert.Equal(t, ReasonNoActiveQuest, ReasonOf(err))

	_, err = e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)

	ab, err := e.Abandon(ctx, "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, 2, ab.Scene)

	assert.Equal(t, 1, inventoryOf(t, fs, "P")[emberdustVial].Quantity)
	active, err := e.ActiveQuests(ctx, "P")
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, fs.View(ctx, "P", func(r storage.ProgressReader) error {
		history, err := r.ListQuestHistory(ctx, "P")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, state.StatusAbandoned, history[0].Status)
		assert.Equal(t, 1, history[0].ItemDeltas[emberdustVial])
		return nil
	}))
}

func TestDecisionLogDistinctTimestamps(t *testing.T) {
	e, fs := newTestEngine(t)
	frozen := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	e.WithClock(func() time.Time { return frozen })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.Start(ctx, "P", emberQuest)
		require.NoError(t, err)
		_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
		require.NoError(t, err)
		_, err = e.Abandon(ctx, "P", emberQuest)
		require.NoError(t, err)
	}

	decisions := decisionsOf(t, fs, "P")
	require.Len(t, decisions, 2)
	assert.Equal(t, decisions[0].Choice, decisions[1].Choice)
	assert.True(t, decisions[1].Timestamp.After(decisions[0].Timestamp))
	assert.NotEqual(t, decisions[0].ID, decisions[1].ID)
}

func TestListAvailableAndCatalogue(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	avail, err := e.ListAvailable(ctx, "P")
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, emberQuest, avail[0].Name)

	playEmber(t, e, "P")

	avail, err = e.ListAvailable(ctx, "P")
	require.NoError(t, err)
	require.Len(t, avail, 1)
	assert.Equal(t, relicsQuest, avail[0].Name)

	all, err := e.ListQuests(ctx, "P")
	require.NoError(t, err)
	require.Len(t, all, 2)
	statuses := map[string]QuestStatus{}
	for _, q := range all {
		statuses[q.Name] = q.Status
	}
	assert.Equal(t, QuestCompleted, statuses[emberQuest])
	assert.Equal(t, QuestAvailable, statuses[relicsQuest])

	// a quest whose checks cannot be read is left out, not an error
	fs.set(func(f *faultStore) { f.failCompleted = relicsQuest })
	avail, err = e.ListAvailable(ctx, "P")
	require.NoError(t, err)
	assert.Empty(t, avail)

	_, err = e.ListQuests(ctx, "P")
	assert.Equal(t, ReasonStorage, ReasonOf(err))
}

func TestActiveQuests(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)

	active, err := e.ActiveQuests(ctx, "P")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, emberQuest, active[0].Quest)
	assert.Equal(t, 2, active[0].Scene)
	assert.Equal(t, "The Elder", active[0].SceneTitle)
}

// End-to-end: with only the vial, Inferno Fang is infeasible and the detail
// names the shard as 0/1 and the vial as 1/1.
func TestCanCraftDetail(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	require.NoError(t, err)

	fe, err := e.CanCraft(ctx, "P", infernoFang)
	require.NoError(t, err)
	assert.False(t, fe.Feasible)
	assert.Equal(t, ReasonInsufficient, fe.Reason)
	require.Len(t, fe.Items, 2)
	assert.Equal(t, emberdustVial, fe.Items[0].Item)
	assert.Equal(t, 1, fe.Items[0].Required)
	assert.Equal(t, 1, fe.Items[0].Available)
	assert.True(t, fe.Items[0].Sufficient)
	assert.Equal(t, relicShard, fe.Items[1].Item)
	assert.Equal(t, 1, fe.Items[1].Required)
	assert.Equal(t, 0, fe.Items[1].Available)
	assert.False(t, fe.Items[1].Sufficient)

	_, err = e.Craft(ctx, "P", infernoFang)
	require.Error(t, err)
	f := AsFailure(err)
	assert.Equal(t, ReasonInsufficient, f.Reason)
	assert.Equal(t, fe.Message, f.Message, "craft fails with the can_craft message")
	require.Len(t, f.Missing, 1)
	assert.Equal(t, relicShard, f.Missing[0].Item)
}

func TestCanCraftFailures(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CanCraft(ctx, "P", "Inferno")
	assert.Equal(t, ReasonRecipeNotFound, ReasonOf(err))
	assert.Contains(t, AsFailure(err).Suggestions, infernoFang)

	require.NoError(t, fs.Update(ctx, "P", func(tx storage.ProgressTx) error {
		if err := tx.AdjustInventory(ctx, "P", emberdustVial, 1, ""); err != nil {
			return err
		}
		return tx.AdjustInventory(ctx, "P", relicShard, 1, "Rare")
	}))

	fe, err := e.CanCraft(ctx, "P", infernoFang)
	require.NoError(t, err)
	assert.False(t, fe.Feasible)
	assert.Equal(t, ReasonMissingPrerequisite, fe.Reason)

	_, err = e.Craft(ctx, "P", infernoFang)
	assert.Equal(t, ReasonMissingPrerequisite, ReasonOf(err))
	assert.Equal(t, 1, inventoryOf(t, fs, "P")[relicShard].Quantity)
}

func TestCraftConsumesAndProduces(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	playEmber(t, e, "P")
	inv := inventoryOf(t, fs, "P")
	require.Equal(t, 1, inv[emberdustVial].Quantity)
	require.Equal(t, 1, inv[relicShard].Quantity)

	crafted, err := e.Craft(ctx, "P", infernoFang)
	require.NoError(t, err)
	assert.Equal(t, infernoFang, crafted.Item)
	assert.Equal(t, "Rare", crafted.Rarity)
	assert.Equal(t, 1, crafted.Quantity)
	assert.Equal(t, "Successfully crafted Inferno Fang (Rare)!", crafted.Message)

	inv = inventoryOf(t, fs, "P")
	assert.NotContains(t, inv, emberdustVial)
	assert.NotContains(t, inv, relicShard)
	assert.Equal(t, 1, inv[infernoFang].Quantity)
	assert.Equal(t, "Rare", inv[infernoFang].Rarity)
}

func TestCraftRepeatedIngredientCountsTotal(t *testing.T) {
	content := newTestContent()
	content.recipes["Twin Blade"] = &crafting.Recipe{
		Result:      "Twin Blade",
		Ingredients: quest.ItemStack{{Name: relicShard, Quantity: 1}, {Name: relicShard, Quantity: 1}},
	}
	fs := &faultStore{ProgressStore: storage.NewMemoryStore()}
	e := New(content, fs, testLogger())
	ctx := context.Background()

	grantShard := func() {
		require.NoError(t, fs.Update(ctx, "P", func(tx storage.ProgressTx) error {
			return tx.AdjustInventory(ctx, "P", relicShard, 1, "Rare")
		}))
	}
	grantShard()

	fe, err := e.CanCraft(ctx, "P", "Twin Blade")
	require.NoError(t, err)
	assert.False(t, fe.Feasible)
	assert.Equal(t, ReasonInsufficient, fe.Reason)
	require.Len(t, fe.Items, 1)
	assert.Equal(t, 2, fe.Items[0].Required)
	assert.Equal(t, 1, fe.Items[0].Available)

	_, err = e.Craft(ctx, "P", "Twin Blade")
	assert.Equal(t, ReasonInsufficient, ReasonOf(err))
	assert.Equal(t, 1, inventoryOf(t, fs, "P")[relicShard].Quantity)

	grantShard()
	crafted, err := e.Craft(ctx, "P", "Twin Blade")
	require.NoError(t, err)
	assert.Equal(t, quest.ItemStack{{Name: relicShard, Quantity: 2}}, crafted.Consumed)

	inv := inventoryOf(t, fs, "P")
	assert.NotContains(t, inv, relicShard)
	assert.Equal(t, 1, inv["Twin Blade"].Quantity)
}

func TestCraftDecisionScopedPrerequisite(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	playEmber(t, e, "P") // took 2B, not 2A

	fe, err := e.CanCraft(ctx, "P", enhancedFang)
	require.NoError(t, err)
	assert.True(t, fe.MaterialsSufficient())
	assert.Equal(t, ReasonMissingPrerequisite, fe.Reason)

	recipes, err := e.ListRecipes(ctx, "P")
	require.NoError(t, err)
	require.Len(t, recipes, 1, "recipes with unmet quest requirements are hidden")
	assert.Equal(t, infernoFang, recipes[0].Recipe)
	assert.True(t, recipes[0].Feasible)
}

// A fault between consumption and production leaves the inventory exactly as
// it was before the craft.
func TestCraftAtomicity(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()
	playEmber(t, e, "P")
	before := inventoryOf(t, fs, "P")

	fs.set(func(f *faultStore) {
		f.failAdjust = func(item string, delta int) bool { return item == infernoFang && delta > 0 }
	})
	_, err := e.Craft(ctx, "P", infernoFang)
	require.Error(t, err)
	assert.Equal(t, ReasonStorage, ReasonOf(err))
	assert.ErrorIs(t, err, errInjected)

	assert.Equal(t, before, inventoryOf(t, fs, "P"))
	fe, err := e.CanCraft(ctx, "P", infernoFang)
	require.NoError(t, err)
	assert.True(t, fe.Feasible)

	fs.set(func(f *faultStore) { f.failAdjust = nil })
	_, err = e.Craft(ctx, "P", infernoFang)
	require.NoError(t, err)
	after := inventoryOf(t, fs, "P")
	assert.Len(t, after, 1)
	assert.Equal(t, 1, after[infernoFang].Quantity)
}

// A fault while applying a choice's items rolls back the decision log too.
func TestApplyChoiceAtomicity(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)

	fs.set(func(f *faultStore) {
		f.failAdjust = func(item string, delta int) bool { return item == emberdustVial }
	})
	_, err = e.ApplyChoice(ctx, "P", emberQuest, "3A")
	assert.Equal(t, ReasonStorage, ReasonOf(err))

	assert.Empty(t, decisionsOf(t, fs, "P"))
	assert.Empty(t, inventoryOf(t, fs, "P"))
	view, err := e.CurrentScene(ctx, "P", emberQuest)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Number)
}

func TestInventoryView(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	playEmber(t, e, "P")

	items, err := e.Inventory(ctx, "P")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, InventoryItem{Item: emberdustVial, Rarity: state.DefaultRarity, Quantity: 1, Description: "Warm to the touch."}, items[0])
	assert.Equal(t, InventoryItem{Item: relicShard, Rarity: "Rare", Quantity: 1, Description: "A sliver of an ancient relic."}, items[1])
}

func TestDiscoverIsIdempotent(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, e.Discover(ctx, "P", "locations", "Ember Forge"))
	}
	require.NoError(t, fs.View(ctx, "P", func(r storage.ProgressReader) error {
		all, err := r.ListDiscoveries(ctx, "P")
		require.NoError(t, err)
		assert.Len(t, all, 1)
		return nil
	}))

	assert.Equal(t, ReasonInvalidRequest, ReasonOf(e.Discover(ctx, "P", "", "x")))
}

func TestSerializedPerPlayer(t *testing.T) {
	e, fs := newTestEngine(t)
	ctx := context.Background()
	_, err := e.Start(ctx, "P", emberQuest)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.ApplyChoice(ctx, "P", emberQuest, "3A")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, ReasonChoiceNotFound, ReasonOf(err))
		}
	}
	assert.Equal(t, 1, succeeded, "later requests observe the first one")
	assert.Equal(t, 1, inventoryOf(t, fs, "P")[emberdustVial].Quantity)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _ := newTestEngine(t)
	e.WithMetrics(NewMetrics(reg))
	ctx := context.Background()

	playEmber(t, e, "P")
	_, err := e.Start(ctx, "P", "Nope")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.questsStarted.WithLabelValues(emberQuest)))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.metrics.choicesApplied.WithLabelValues(emberQuest)))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.questsFinished.WithLabelValues(emberQuest, "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.failures.WithLabelValues("start", string(ReasonQuestNotFound))))
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC)
	c := newClock(func() time.Time { return fixed })
	a, b := c.Now(), c.Now()
	assert.True(t, b.After(a))
	assert.Equal(t, time.Microsecond, b.Sub(a))
	assert.Zero(t, a.Nanosecond()%1000)
}
