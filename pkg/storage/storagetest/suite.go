// Package storagetest holds behaviour tests shared by every ProgressStore
// implementation.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

// Factory returns a fresh, empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) storage.ProgressStore

var errAbort = errors.New("abort transaction")

// Run exercises the ProgressStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Ping(context.Background()))
	})
	t.Run("EmptyPlayer", func(t *testing.T) { testEmptyPlayer(t, newStore(t)) })
	t.Run("QuestStateLifecycle", func(t *testing.T) { testQuestStateLifecycle(t, newStore(t)) })
	t.Run("DecisionLogAppendOnly", func(t *testing.T) { testDecisionLog(t, newStore(t)) })
	t.Run("InventoryNeverNegative", func(t *testing.T) { testInventory(t, newStore(t)) })
	t.Run("DiscoveryIdempotent", func(t *testing.T) { testDiscovery(t, newStore(t)) })
	t.Run("RelationshipAndExperience", func(t *testing.T) { testRelationship(t, newStore(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, newStore(t)) })
	t.Run("PlayerScope", func(t *testing.T) { testPlayerScope(t, newStore(t)) })
	t.Run("PlayersIndependent", func(t *testing.T) { testPlayersIndependent(t, newStore(t)) })
}

func ts(sec int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, sec, 0, time.UTC)
}

func testEmptyPlayer(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	err := s.View(ctx, "nobody", func(r storage.ProgressReader) error {
		st, err := r.GetActiveQuestState(ctx, "nobody", "q")
		require.NoError(t, err)
		assert.Nil(t, st)

		active, err := r.ListActiveQuestStates(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, active)

		inv, err := r.GetInventory(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, inv)

		rel, err := r.GetRelationship(ctx, "nobody", "Maren")
		require.NoError(t, err)
		assert.Nil(t, rel)

		xp, err := r.GetExperience(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, xp)

		done, err := r.HasCompletedQuest(ctx, "nobody", "q")
		require.NoError(t, err)
		assert.False(t, done)
		return nil
	})
	require.NoError(t, err)
}

func testQuestStateLifecycle(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	st := state.NewPlayerQuestState("p1", "The Ember's Awakening", ts(0))
	st.Vars["rank"] = "3"

	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.SaveQuestState(ctx, st)
	}))

	other := state.NewPlayerQuestState("p1", "Paper Trail", ts(5))
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.SaveQuestState(ctx, other)
	}))

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		got, err := r.GetActiveQuestState(ctx, "p1", "The Ember's Awakening")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, st.RunID, got.RunID)
		assert.Equal(t, 1, got.CurrentScene)
		assert.Equal(t, "3", got.Vars["rank"])
		assert.True(t, got.StartedAt.Equal(ts(0)))

		active, err := r.ListActiveQuestStates(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "The Ember's Awakening", active[0].Quest)
		assert.Equal(t, "Paper Trail", active[1].Quest)
		return nil
	}))

	st.CurrentScene = 2
	st.Finish(state.StatusCompleted, ts(10))
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.SaveQuestState(ctx, st)
	}))
	other.Finish(state.StatusAbandoned, ts(11))
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.SaveQuestState(ctx, other)
	}))

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		got, err := r.GetActiveQuestState(ctx, "p1", "The Ember's Awakening")
		require.NoError(t, err)
		assert.Nil(t, got, "completed run is no longer active")

		done, err := r.HasCompletedQuest(ctx, "p1", "The Ember's Awakening")
		require.NoError(t, err)
		assert.True(t, done)

		done, err = r.HasCompletedQuest(ctx, "p1", "Paper Trail")
		require.NoError(t, err)
		assert.False(t, done, "abandoned is not completed")

		history, err := r.ListQuestHistory(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, state.StatusCompleted, history[0].Status)
		assert.Equal(t, state.StatusAbandoned, history[1].Status)
		require.NotNil(t, history[0].EndedAt)
		assert.True(t, history[0].EndedAt.Equal(ts(10)))
		return nil
	}))
}

func testDecisionLog(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		entry := state.DecisionLogEntry{
			ID:        uuid.New(),
			PlayerID:  "p1",
			Quest:     "q",
			Scene:     1,
			Choice:    "3A",
			Timestamp: ts(i),
		}
		require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
			return tx.AppendDecision(ctx, entry)
		}))
	}

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		entries, err := r.ListDecisions(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.NotEqual(t, entries[0].ID, entries[1].ID)
		assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))

		ok, err := r.HasDecision(ctx, "p1", "q", 1, "3A")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.HasDecision(ctx, "p1", "q", 2, "3A")
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func testInventory(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	steps := []struct {
		item   string
		delta  int
		rarity string
	}{
		{"Emberdust Vial", 2, "rare"},
		{"Emberdust Vial", 1, "legendary"}, // rarity only applies to new rows
		{"Relic Shard", -1, "Rare"},        // absent row stays absent
		{"Paper Fragment", 1, ""},
		{"Paper Fragment", -5, ""},
	}
	for _, step := range steps {
		require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
			return tx.AdjustInventory(ctx, "p1", step.item, step.delta, step.rarity)
		}))
	}

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		inv, err := r.GetInventory(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, inv, 1)
		assert.Equal(t, "Emberdust Vial", inv[0].Item)
		assert.Equal(t, 3, inv[0].Quantity)
		assert.Equal(t, "Rare", inv[0].Rarity)
		for _, row := range inv {
			assert.Positive(t, row.Quantity)
		}
		return nil
	}))

	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.AdjustInventory(ctx, "p1", "Emberdust Vial", -3, "")
	}))
	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		inv, err := r.GetInventory(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, inv)
		return nil
	}))

	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.AdjustInventory(ctx, "p1", "Ape Tooth", 1, "")
	}))
	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		inv, err := r.GetInventory(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, inv, 1)
		assert.Equal(t, state.DefaultRarity, inv[0].Rarity)
		return nil
	}))
}

func testDiscovery(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		d := state.Discovery{PlayerID: "p1", Category: "locations", Item: "Ember Forge", DiscoveredAt: ts(i)}
		require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
			return tx.RecordDiscovery(ctx, d)
		}))
	}

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		ok, err := r.HasDiscovered(ctx, "p1", "locations", "Ember Forge")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = r.HasDiscovered(ctx, "p1", "characters", "Ember Forge")
		require.NoError(t, err)
		assert.False(t, ok)

		all, err := r.ListDiscoveries(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.True(t, all[0].DiscoveredAt.Equal(ts(0)), "first discovery time is kept")
		return nil
	}))
}

func testRelationship(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	rel := state.Relationship{PlayerID: "p1", Character: "Elder Maren", Affinity: 2, FirstMet: ts(0), LastInteraction: ts(1)}
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		if err := tx.SaveRelationship(ctx, rel); err != nil {
			return err
		}
		if err := tx.AddExperience(ctx, "p1", 40); err != nil {
			return err
		}
		return tx.AddExperience(ctx, "p1", 10)
	}))

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		got, err := r.GetRelationship(ctx, "p1", "Elder Maren")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.Affinity)
		assert.True(t, got.FirstMet.Equal(ts(0)))
		assert.True(t, got.LastInteraction.Equal(ts(1)))

		xp, err := r.GetExperience(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 50, xp)
		return nil
	}))
}

func testRollback(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.AdjustInventory(ctx, "p1", "Relic Shard", 1, "Rare")
	}))

	err := s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		if err := tx.AdjustInventory(ctx, "p1", "Relic Shard", -1, ""); err != nil {
			return err
		}
		if err := tx.AppendDecision(ctx, state.DecisionLogEntry{ID: uuid.New(), PlayerID: "p1", Quest: "q", Scene: 1, Choice: "1A", Timestamp: ts(1)}); err != nil {
			return err
		}
		if err := tx.AddExperience(ctx, "p1", 100); err != nil {
			return err
		}
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	require.NoError(t, s.View(ctx, "p1", func(r storage.ProgressReader) error {
		inv, err := r.GetInventory(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, inv, 1)
		assert.Equal(t, 1, inv[0].Quantity)

		entries, err := r.ListDecisions(ctx, "p1")
		require.NoError(t, err)
		assert.Empty(t, entries)

		xp, err := r.GetExperience(ctx, "p1")
		require.NoError(t, err)
		assert.Zero(t, xp)
		return nil
	}))
}

func testReadYourWrites(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		require.NoError(t, tx.AdjustInventory(ctx, "p1", "Relic Shard", 2, "Rare"))
		require.NoError(t, tx.AdjustInventory(ctx, "p1", "Relic Shard", -1, ""))
		inv, err := tx.GetInventory(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, inv, 1)
		assert.Equal(t, 1, inv[0].Quantity)

		st := state.NewPlayerQuestState("p1", "q", ts(0))
		require.NoError(t, tx.SaveQuestState(ctx, st))
		got, err := tx.GetActiveQuestState(ctx, "p1", "q")
		require.NoError(t, err)
		require.NotNil(t, got)

		require.NoError(t, tx.AppendDecision(ctx, state.DecisionLogEntry{ID: uuid.New(), PlayerID: "p1", Quest: "q", Scene: 1, Choice: "1A", Timestamp: ts(1)}))
		ok, err := tx.HasDecision(ctx, "p1", "q", 1, "1A")
		require.NoError(t, err)
		assert.True(t, ok)

		st.Finish(state.StatusCompleted, ts(2))
		require.NoError(t, tx.SaveQuestState(ctx, st))
		done, err := tx.HasCompletedQuest(ctx, "p1", "q")
		require.NoError(t, err)
		assert.True(t, done)
		got, err = tx.GetActiveQuestState(ctx, "p1", "q")
		require.NoError(t, err)
		assert.Nil(t, got)
		return nil
	}))
}

func testPlayerScope(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	err := s.Update(ctx, "p1", func(tx storage.ProgressTx) error {
		return tx.AdjustInventory(ctx, "p2", "Relic Shard", 1, "")
	})
	assert.ErrorIs(t, err, storage.ErrPlayerScope)

	require.NoError(t, s.View(ctx, "p2", func(r storage.ProgressReader) error {
		inv, err := r.GetInventory(ctx, "p2")
		require.NoError(t, err)
		assert.Empty(t, inv)
		return nil
	}))
}

func testPlayersIndependent(t *testing.T, s storage.ProgressStore) {
	ctx := context.Background()
	players := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	for _, p := range players {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				err := s.Update(ctx, p, func(tx storage.ProgressTx) error {
					return tx.AdjustInventory(ctx, p, "Coin", 1, "")
				})
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	for _, p := range players {
		require.NoError(t, s.View(ctx, p, func(r storage.ProgressReader) error {
			inv, err := r.GetInventory(ctx, p)
			require.NoError(t, err)
			require.Len(t, inv, 1)
			assert.Equal(t, 5, inv[0].Quantity)
			return nil
		}))
	}
}
