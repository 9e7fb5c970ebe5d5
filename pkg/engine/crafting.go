package engine

import (
	"context"
	"fmt"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

func (e *Engine) lookupRecipe(item string) (*crafting.Recipe, error) {
	r, ok := e.content.GetRecipe(item)
	if !ok {
		f := failf(ReasonRecipeNotFound, "No recipe found for %s.", item)
		f.Suggestions = e.content.SuggestRecipes(item, suggestionLimit)
		return nil, f
	}
	return r, nil
}

// facts reads the progress a recipe depends on.
func facts(ctx context.Context, r storage.ProgressReader, playerID string, recipe *crafting.Recipe) (crafting.Facts, error) {
	inv, err := r.GetInventory(ctx, playerID)
	if err != nil {
		return crafting.Facts{}, err
	}
	f := crafting.Facts{
		Inventory: storage.InventoryQuantities(inv),
		Completed: make(map[string]bool),
		Decisions: make(map[crafting.DecisionKey]bool),
	}
	for _, req := range recipe.QuestRequirements {
		if _, seen := f.Completed[req.Quest]; !seen {
			done, err := r.HasCompletedQuest(ctx, playerID, req.Quest)
			if err != nil {
				return crafting.Facts{}, err
			}
			f.Completed[req.Quest] = done
		}
		if req.ScopedToDecision() {
			chose, err := r.HasDecision(ctx, playerID, req.Quest, req.Scene, req.Choice)
			if err != nil {
				return crafting.Facts{}, err
			}
			f.Decisions[req.Key()] = chose
		}
	}
	return f, nil
}

// feasibility converts an assessment into a can_craft answer. Missing
// materials take precedence over missing quest prerequisites.
func feasibility(a crafting.Assessment) *Feasibility {
	out := &Feasibility{Assessment: a, Message: a.Summary()}
	switch {
	case !a.MaterialsSufficient():
		out.Reason = ReasonInsufficient
	case !a.PrerequisitesMet():
		out.Reason = ReasonMissingPrerequisite
	}
	return out
}

func (f *Feasibility) failure() *Failure {
	return &Failure{
		Reason:  f.Reason,
		Message: f.Message,
		Missing: f.Missing(),
		Unmet:   f.Unmet(),
	}
}

// CanCraft reports whether the player can craft item now. The answer lists
// every ingredient with required, available and sufficient, even when only
// one ingredient is short.
func (e *Engine) CanCraft(ctx context.Context, playerID, item string) (*Feasibility, error) {
	var out *Feasibility
	err := e.run(ctx, "can_craft", playerID, func() error {
		recipe, err := e.lookupRecipe(item)
		if err != nil {
			return err
		}
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			f, err := facts(ctx, r, playerID, recipe)
			if err != nil {
				return err
			}
			out = feasibility(crafting.Assess(*recipe, f))
			out.Rarity = e.rarityFor(recipe.Result, recipe.Rarity)
			return nil
		})
	})
	return out, err
}

// Craft consumes a recipe's ingredients and adds one unit of its result.
// Feasibility is checked again inside the transaction, and consumption and
// production commit together.
func (e *Engine) Craft(ctx context.Context, playerID, item string) (*Crafted, error) {
	var out *Crafted
	err := e.run(ctx, "craft", playerID, func() error {
		recipe, err := e.lookupRecipe(item)
		if err != nil {
			return err
		}
		rarity := e.rarityFor(recipe.Result, recipe.Rarity)

		err = e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			out = nil
			f, err := facts(ctx, tx, playerID, recipe)
			if err != nil {
				return err
			}
			fe := feasibility(crafting.Assess(*recipe, f))
			if !fe.Feasible {
				return fe.failure()
			}

			consumed := recipe.Ingredients.Merged()
			for _, in := range consumed {
				if err := tx.AdjustInventory(ctx, playerID, in.Name, -in.Quantity, ""); err != nil {
					return fmt.Errorf("consume %q: %w", in.Name, err)
				}
			}
			if err := tx.AdjustInventory(ctx, playerID, recipe.Result, 1, rarity); err != nil {
				return fmt.Errorf("produce %q: %w", recipe.Result, err)
			}

			inv, err := tx.GetInventory(ctx, playerID)
			if err != nil {
				return err
			}
			crafted := &Crafted{Item: recipe.Result, Rarity: rarity, Consumed: consumed}
			for _, row := range inv {
				if row.Item == recipe.Result {
					crafted.Quantity = row.Quantity
					crafted.Rarity = textfilter.RarityOr(row.Rarity, rarity)
				}
			}
			crafted.Message = fmt.Sprintf("Successfully crafted %s (%s)!", crafted.Item, crafted.Rarity)
			out = crafted
			return nil
		})
		if err != nil {
			out = nil
			return err
		}
		e.metrics.crafted(recipe.Result)
		e.logger.Info("Item crafted", "player_id", playerID, "item", recipe.Result, "quantity", out.Quantity)
		return nil
	})
	return out, err
}

// ListRecipes returns every recipe whose quest prerequisites the player
// meets, with the status of its materials.
func (e *Engine) ListRecipes(ctx context.Context, playerID string) ([]Feasibility, error) {
	var out []Feasibility
	err := e.run(ctx, "list_recipes", playerID, func() error {
		out = nil
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			for _, recipe := range e.content.ListRecipes() {
				f, err := facts(ctx, r, playerID, &recipe)
				if err != nil {
					return err
				}
				a := crafting.Assess(recipe, f)
				if !a.PrerequisitesMet() {
					continue
				}
				fe := feasibility(a)
				fe.Rarity = e.rarityFor(recipe.Result, recipe.Rarity)
				out = append(out, *fe)
			}
			return nil
		})
	})
	return out, err
}

// Inventory lists the player's items with their catalogue descriptions.
func (e *Engine) Inventory(ctx context.Context, playerID string) ([]InventoryItem, error) {
	var out []InventoryItem
	err := e.run(ctx, "inventory", playerID, func() error {
		out = nil
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			rows, err := r.GetInventory(ctx, playerID)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if row.Quantity <= 0 {
					continue
				}
				item := InventoryItem{Item: row.Item, Rarity: row.Rarity, Quantity: row.Quantity}
				if info, ok := e.content.GetItem(row.Item); ok {
					item.Description = info.Description
				}
				out = append(out, item)
			}
			return nil
		})
	})
	return out, err
}
