package engine

import (
	"context"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

// Interact records contact between a player and a character. The first
// contact creates the relationship at affinity 0 and marks the character as
// discovered; later contacts only refresh the last-interaction time.
// Affinity itself only changes through quest outcomes.
func (e *Engine) Interact(ctx context.Context, playerID, character string) (*state.Relationship, error) {
	var out *state.Relationship
	err := e.run(ctx, "interact", playerID, func() error {
		name, ok := textfilter.Clean(character)
		if !ok {
			return failf(ReasonInvalidRequest, "character name is required")
		}
		return e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			now := e.clock.Now()
			rel, err := e.touchRelationship(ctx, tx, playerID, name, now)
			if err != nil {
				return err
			}
			if err := tx.SaveRelationship(ctx, *rel); err != nil {
				return err
			}
			out = rel
			return nil
		})
	})
	return out, err
}

// touchRelationship loads or creates a relationship and stamps the contact.
func (e *Engine) touchRelationship(ctx context.Context, tx storage.ProgressTx, playerID, character string, now time.Time) (*state.Relationship, error) {
	rel, err := tx.GetRelationship(ctx, playerID, character)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		rel = &state.Relationship{PlayerID: playerID, Character: character, FirstMet: now}
		if err := tx.RecordDiscovery(ctx, state.Discovery{
			PlayerID:     playerID,
			Category:     state.CategoryCharacters,
			Item:         character,
			DiscoveredAt: now,
		}); err != nil {
			return nil, err
		}
	}
	rel.LastInteraction = now
	return rel, nil
}

// adjustAffinity applies a quest-outcome affinity delta.
func (e *Engine) adjustAffinity(ctx context.Context, tx storage.ProgressTx, playerID, character string, delta int, now time.Time) error {
	rel, err := e.touchRelationship(ctx, tx, playerID, character, now)
	if err != nil {
		return err
	}
	rel.Affinity += delta
	return tx.SaveRelationship(ctx, *rel)
}

// Discover records that the player encountered a lore entry. Recording the
// same entry again is a no-op.
func (e *Engine) Discover(ctx context.Context, playerID, category, item string) error {
	return e.run(ctx, "discover", playerID, func() error {
		cat, ok := textfilter.Clean(category)
		if !ok {
			return failf(ReasonInvalidRequest, "discovery category is required")
		}
		name, ok := textfilter.Clean(item)
		if !ok {
			return failf(ReasonInvalidRequest, "discovery item is required")
		}
		return e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			return tx.RecordDiscovery(ctx, state.Discovery{
				PlayerID:     playerID,
				Category:     cat,
				Item:         name,
				DiscoveredAt: e.clock.Now(),
			})
		})
	})
}
