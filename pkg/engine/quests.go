package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

func (e *Engine) lookupQuest(name string) (*quest.Definition, error) {
	def, ok := e.content.GetQuest(name)
	if !ok {
		f := failf(ReasonQuestNotFound, "Quest %q not found.", name)
		f.Suggestions = e.content.SuggestQuests(name, suggestionLimit)
		return nil, f
	}
	return def, nil
}

// ListAvailable returns the quests the player may start now: not active, not
// completed, and every prerequisite met. A quest whose checks cannot be read
// is left out rather than failing the whole list.
func (e *Engine) ListAvailable(ctx context.Context, playerID string) ([]QuestSummary, error) {
	var out []QuestSummary
	err := e.run(ctx, "list_available", playerID, func() error {
		out = nil
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			for _, name := range e.content.ListQuestNames() {
				def, ok := e.content.GetQuest(name)
				if !ok {
					continue
				}
				status, err := e.questStatus(ctx, r, playerID, def)
				if err != nil {
					e.logger.Warn("Skipping quest after lookup error", "player_id", playerID, "quest", name, "error", err)
					continue
				}
				if status == QuestAvailable {
					out = append(out, summarize(def, status))
				}
			}
			return nil
		})
	})
	return out, err
}

// ListQuests returns every quest with its status for the player.
func (e *Engine) ListQuests(ctx context.Context, playerID string) ([]QuestSummary, error) {
	var out []QuestSummary
	err := e.run(ctx, "list_quests", playerID, func() error {
		out = nil
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			for _, name := range e.content.ListQuestNames() {
				def, ok := e.content.GetQuest(name)
				if !ok {
					continue
				}
				status, err := e.questStatus(ctx, r, playerID, def)
				if err != nil {
					return err
				}
				out = append(out, summarize(def, status))
			}
			return nil
		})
	})
	return out, err
}

func summarize(def *quest.Definition, status QuestStatus) QuestSummary {
	return QuestSummary{
		Name:        def.Name,
		Description: def.Description,
		Difficulty:  def.Difficulty,
		Status:      status,
	}
}

func (e *Engine) questStatus(ctx context.Context, r storage.ProgressReader, playerID string, def *quest.Definition) (QuestStatus, error) {
	active, err := r.GetActiveQuestState(ctx, playerID, def.Name)
	if err != nil {
		return "", err
	}
	if active != nil {
		return QuestActive, nil
	}
	done, err := r.HasCompletedQuest(ctx, playerID, def.Name)
	if err != nil {
		return "", err
	}
	if done {
		return QuestCompleted, nil
	}
	ok, err := prerequisitesMet(ctx, r, playerID, def.Prerequisites)
	if err != nil {
		return "", err
	}
	if !ok {
		return QuestLocked, nil
	}
	return QuestAvailable, nil
}

func prerequisitesMet(ctx context.Context, r storage.ProgressReader, playerID string, p quest.Prerequisites) (bool, error) {
	if p.IsEmpty() {
		return true, nil
	}
	if len(p.Items) > 0 {
		inv, err := r.GetInventory(ctx, playerID)
		if err != nil {
			return false, err
		}
		have := storage.InventoryQuantities(inv)
		for name, need := range p.Items.Quantities() {
			if have[name] < need {
				return false, nil
			}
		}
	}
	for _, q := range p.Quests {
		done, err := r.HasCompletedQuest(ctx, playerID, q)
		if err != nil || !done {
			return false, err
		}
	}
	for _, l := range p.Lore {
		found, err := r.HasDiscovered(ctx, playerID, l.Category, l.Name)
		if err != nil || !found {
			return false, err
		}
	}
	return true, nil
}

// ActiveQuests lists the player's runs in progress, oldest first.
func (e *Engine) ActiveQuests(ctx context.Context, playerID string) ([]ActiveQuest, error) {
	var out []ActiveQuest
	err := e.run(ctx, "active_quests", playerID, func() error {
		out = nil
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			states, err := r.ListActiveQuestStates(ctx, playerID)
			if err != nil {
				return err
			}
			for _, st := range states {
				aq := ActiveQuest{Quest: st.Quest, Scene: st.CurrentScene, StartedAt: st.StartedAt}
				if def, ok := e.content.GetQuest(st.Quest); ok {
					if scene, ok := def.Scene(st.CurrentScene); ok {
						aq.SceneTitle = quest.Substitute(scene.Title, st.Vars)
					}
				}
				out = append(out, aq)
			}
			return nil
		})
	})
	return out, err
}

// Start begins a new run of a quest and returns its first scene.
// A player may run different quests at the same time but never two runs of
// the same quest.
func (e *Engine) Start(ctx context.Context, playerID, questName string) (*quest.View, error) {
	var view *quest.View
	err := e.run(ctx, "start", playerID, func() error {
		def, err := e.lookupQuest(questName)
		if err != nil {
			return err
		}
		first, ok := def.Scene(1)
		if !ok {
			return failf(ReasonSceneNotFound, "Quest %q has no opening scene.", def.Name)
		}

		now := e.clock.Now()
		st := state.NewPlayerQuestState(playerID, def.Name, now)
		err = e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			existing, err := tx.GetActiveQuestState(ctx, playerID, def.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				return failf(ReasonAlreadyActive, "Quest %q is already active (scene %d).", def.Name, existing.CurrentScene)
			}
			return tx.SaveQuestState(ctx, st)
		})
		if err != nil {
			return err
		}

		v := quest.Render(def.Name, first, st.Vars)
		view = &v
		e.metrics.questStarted(def.Name)
		e.logger.Info("Quest started", "player_id", playerID, "quest", def.Name, "run_id", st.RunID)
		return nil
	})
	return view, err
}

// CurrentScene renders the scene the player is on in an active quest.
func (e *Engine) CurrentScene(ctx context.Context, playerID, questName string) (*quest.View, error) {
	var view *quest.View
	err := e.run(ctx, "current_scene", playerID, func() error {
		def, err := e.lookupQuest(questName)
		if err != nil {
			return err
		}
		return e.progress.View(ctx, playerID, func(r storage.ProgressReader) error {
			st, err := activeRun(ctx, r, playerID, def.Name)
			if err != nil {
				return err
			}
			scene, err := sceneOf(def, st.CurrentScene)
			if err != nil {
				return err
			}
			v := quest.Render(def.Name, scene, st.Vars)
			view = &v
			return nil
		})
	})
	return view, err
}

func activeRun(ctx context.Context, r storage.ProgressReader, playerID, questName string) (*state.PlayerQuestState, error) {
	st, err := r.GetActiveQuestState(ctx, playerID, questName)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, failf(ReasonNoActiveQuest, "You have no active run of %q.", questName)
	}
	return st, nil
}

func sceneOf(def *quest.Definition, number int) (quest.Scene, error) {
	scene, ok := def.Scene(number)
	if !ok {
		return quest.Scene{}, failf(ReasonSceneNotFound, "Scene %d not found in quest %q.", number, def.Name)
	}
	return scene, nil
}

// ApplyChoice applies a choice in the player's current scene of a quest.
//
// The decision is logged before any state changes, and the log entry, the
// state-variable and inventory changes and the move to the next scene (or
// quest completion) are committed together or not at all. Choices hidden by
// their conditions cannot be selected. A jump to a scene that does not exist
// is rejected before anything is logged.
func (e *Engine) ApplyChoice(ctx context.Context, playerID, questName, choiceID string) (*Step, error) {
	var step *Step
	err := e.run(ctx, "apply_choice", playerID, func() error {
		def, err := e.lookupQuest(questName)
		if err != nil {
			return err
		}
		var completed *state.PlayerQuestState
		err = e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			step, completed = nil, nil

			st, err := activeRun(ctx, tx, playerID, def.Name)
			if err != nil {
				return err
			}
			scene, err := sceneOf(def, st.CurrentScene)
			if err != nil {
				return err
			}
			choice, ok := scene.FindChoice(choiceID, st.Vars)
			if !ok {
				return failf(ReasonChoiceNotFound, "Choice %q is not available in scene %d of %q.", choiceID, scene.Number, def.Name)
			}
			target, complete, err := def.ResolveNext(scene.Number, choice.Outcome.Next)
			if err != nil {
				return &Failure{Reason: ReasonSceneNotFound, Message: err.Error()}
			}

			now := e.clock.Now()
			if err := tx.AppendDecision(ctx, state.DecisionLogEntry{
				ID:        uuid.New(),
				PlayerID:  playerID,
				Quest:     def.Name,
				Scene:     scene.Number,
				Choice:    choice.ID,
				Timestamp: now,
			}); err != nil {
				return err
			}
			if err := e.applyOutcome(ctx, tx, st, choice.Outcome, now); err != nil {
				return err
			}

			if complete {
				c, err := e.complete(ctx, tx, def, st)
				if err != nil {
					return err
				}
				step = &Step{Completion: c}
				completed = st
				return nil
			}

			st.CurrentScene = target
			st.UpdatedAt = now
			if err := tx.SaveQuestState(ctx, st); err != nil {
				return err
			}
			next, err := sceneOf(def, target)
			if err != nil {
				return err
			}
			v := quest.Render(def.Name, next, st.Vars)
			step = &Step{Scene: &v}
			return nil
		})
		if err != nil {
			step = nil
			return err
		}

		e.metrics.choiceApplied(def.Name)
		e.logger.Debug("Choice applied", "player_id", playerID, "quest", def.Name, "choice", choiceID)
		if completed != nil {
			e.metrics.questFinished(def.Name, string(state.StatusCompleted))
			e.logger.Info("Quest completed", "player_id", playerID, "quest", def.Name, "run_id", completed.RunID)
		}
		return nil
	})
	return step, err
}

// applyOutcome writes a choice's state changes and item deltas.
func (e *Engine) applyOutcome(ctx context.Context, tx storage.ProgressTx, st *state.PlayerQuestState, out quest.Outcome, now time.Time) error {
	keys := make([]string, 0, len(out.StateChanges))
	for k := range out.StateChanges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if st.Vars == nil {
		st.Vars = make(map[string]string)
	}
	for _, k := range keys {
		v := out.StateChanges[k]
		if character, ok := quest.AffinityTarget(k); ok {
			delta, err := strconv.Atoi(v)
			if err != nil {
				e.logger.Warn("Ignoring non-integer affinity change", "player_id", st.PlayerID, "quest", st.Quest, "key", k, "value", v)
				continue
			}
			if err := e.adjustAffinity(ctx, tx, st.PlayerID, character, delta, now); err != nil {
				return err
			}
			continue
		}
		st.Vars[k] = v
	}

	if st.ItemDeltas == nil {
		st.ItemDeltas = make(map[string]int)
	}
	for _, g := range out.ItemsGained {
		if err := tx.AdjustInventory(ctx, st.PlayerID, g.Name, g.Quantity, e.rarityFor(g.Name, g.Rarity)); err != nil {
			return fmt.Errorf("grant %q: %w", g.Name, err)
		}
		st.ItemDeltas[g.Name] += g.Quantity
	}
	for _, g := range out.ItemsLost {
		if err := tx.AdjustInventory(ctx, st.PlayerID, g.Name, -g.Quantity, ""); err != nil {
			return fmt.Errorf("remove %q: %w", g.Name, err)
		}
		st.ItemDeltas[g.Name] -= g.Quantity
	}
	for name, d := range st.ItemDeltas {
		if d == 0 {
			delete(st.ItemDeltas, name)
		}
	}
	return nil
}

// complete archives a finished run and applies the quest's rewards.
func (e *Engine) complete(ctx context.Context, tx storage.ProgressTx, def *quest.Definition, st *state.PlayerQuestState) (*Completion, error) {
	now := e.clock.Now()
	st.Finish(state.StatusCompleted, now)
	if err := tx.SaveQuestState(ctx, st); err != nil {
		return nil, err
	}
	if err := tx.RecordDiscovery(ctx, state.Discovery{
		PlayerID:     st.PlayerID,
		Category:     state.CategoryQuests,
		Item:         def.Name,
		DiscoveredAt: now,
	}); err != nil {
		return nil, err
	}

	c := &Completion{Quest: def.Name, CompletedAt: now, Rewards: []Reward{}}
	for _, g := range def.Rewards.Items {
		rarity := e.rarityFor(g.Name, g.Rarity)
		if err := tx.AdjustInventory(ctx, st.PlayerID, g.Name, g.Quantity, rarity); err != nil {
			return nil, fmt.Errorf("reward %q: %w", g.Name, err)
		}
		c.Rewards = append(c.Rewards, Reward{Kind: RewardItem, Item: g.Name, Quantity: g.Quantity, Rarity: rarity})
	}
	if def.Rewards.XP > 0 {
		if err := tx.AddExperience(ctx, st.PlayerID, def.Rewards.XP); err != nil {
			return nil, err
		}
		c.Rewards = append(c.Rewards, Reward{Kind: RewardExperience, Amount: def.Rewards.XP})
	}
	for _, l := range def.Rewards.Lore {
		if err := tx.RecordDiscovery(ctx, state.Discovery{
			PlayerID:     st.PlayerID,
			Category:     l.Category,
			Item:         l.Name,
			DiscoveredAt: now,
		}); err != nil {
			return nil, err
		}
		c.Rewards = append(c.Rewards, Reward{Kind: RewardLore, Category: l.Category, Name: l.Name})
	}

	xp, err := tx.GetExperience(ctx, st.PlayerID)
	if err != nil {
		return nil, err
	}
	c.Experience = xp
	return c, nil
}

// Abandon ends an active run without reverting anything it already changed.
func (e *Engine) Abandon(ctx context.Context, playerID, questName string) (*Abandonment, error) {
	var out *Abandonment
	err := e.run(ctx, "abandon", playerID, func() error {
		def, err := e.lookupQuest(questName)
		if err != nil {
			return err
		}
		err = e.progress.Update(ctx, playerID, func(tx storage.ProgressTx) error {
			st, err := activeRun(ctx, tx, playerID, def.Name)
			if err != nil {
				return err
			}
			now := e.clock.Now()
			st.Finish(state.StatusAbandoned, now)
			if err := tx.SaveQuestState(ctx, st); err != nil {
				return err
			}
			out = &Abandonment{Quest: def.Name, Scene: st.CurrentScene, AbandonedAt: now}
			return nil
		})
		if err != nil {
			out = nil
			return err
		}
		e.metrics.questFinished(def.Name, string(state.StatusAbandoned))
		e.logger.Info("Quest abandoned", "player_id", playerID, "quest", def.Name, "scene", out.Scene)
		return nil
	})
	return out, err
}
