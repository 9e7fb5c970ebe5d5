package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

// rowScanner is a single result row.
type rowScanner interface {
	Scan(dest ...any) error
}

// dbtx is the slice of a SQL transaction that sqlTx needs. Queries use ?
// placeholders; drivers that number their parameters rebind them.
type dbtx interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) rowScanner
	Query(ctx context.Context, query string, each func(rowScanner) error, args ...any) error
	IsNoRows(err error) bool
}

// sqlTx implements ProgressTx over the relational schema shared by the
// SQLite and PostgreSQL stores.
type sqlTx struct {
	db       dbtx
	playerID string
	writable bool
	now      func() time.Time
}

var _ storage.ProgressTx = (*sqlTx)(nil)

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func (t *sqlTx) check(playerID string) error {
	return storage.CheckScope(t.playerID, playerID)
}

func (t *sqlTx) write(playerID string) error {
	if !t.writable {
		return fmt.Errorf("write in read-only view: %w", storage.ErrInvalidRecord)
	}
	return t.check(playerID)
}

const questRunColumns = `run_id, player_id, quest, status, current_scene, vars, item_deltas, started_at, updated_at, ended_at`

func scanQuestRun(row rowScanner) (*state.PlayerQuestState, error) {
	var (
		st               state.PlayerQuestState
		runID, status    string
		vars, deltas     string
		started, updated int64
		ended            *int64
	)
	if err := row.Scan(&runID, &st.PlayerID, &st.Quest, &status, &st.CurrentScene, &vars, &deltas, &started, &updated, &ended); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(runID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	st.RunID = id
	st.Status = state.Status(status)
	st.Vars = make(map[string]string)
	st.ItemDeltas = make(map[string]int)
	if err := json.Unmarshal([]byte(vars), &st.Vars); err != nil {
		return nil, fmt.Errorf("invalid vars for run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(deltas), &st.ItemDeltas); err != nil {
		return nil, fmt.Errorf("invalid item deltas for run %s: %w", runID, err)
	}
	st.StartedAt = fromMicros(started)
	st.UpdatedAt = fromMicros(updated)
	if ended != nil {
		e := fromMicros(*ended)
		st.EndedAt = &e
	}
	return &st, nil
}

func (t *sqlTx) listRuns(ctx context.Context, query string, args ...any) ([]state.PlayerQuestState, error) {
	out := []state.PlayerQuestState{}
	err := t.db.Query(ctx, query, func(row rowScanner) error {
		st, err := scanQuestRun(row)
		if err != nil {
			return err
		}
		out = append(out, *st)
		return nil
	}, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quest runs: %w", err)
	}
	return out, nil
}

func (t *sqlTx) GetActiveQuestState(ctx context.Context, playerID, questName string) (*state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	row := t.db.QueryRow(ctx,
		`SELECT `+questRunColumns+` FROM quest_runs WHERE player_id = ? AND quest = ? AND status = ?`,
		playerID, questName, string(state.StatusActive))
	st, err := scanQuestRun(row)
	if err != nil {
		if t.db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load quest state: %w", err)
	}
	return st, nil
}

func (t *sqlTx) ListActiveQuestStates(ctx context.Context, playerID string) ([]state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	return t.listRuns(ctx,
		`SELECT `+questRunColumns+` FROM quest_runs WHERE player_id = ? AND status = ? ORDER BY started_at, quest`,
		playerID, string(state.StatusActive))
}

func (t *sqlTx) ListQuestHistory(ctx context.Context, playerID string) ([]state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	return t.listRuns(ctx,
		`SELECT `+questRunColumns+` FROM quest_runs WHERE player_id = ? AND status <> ? ORDER BY ended_at, run_id`,
		playerID, string(state.StatusActive))
}

func (t *sqlTx) HasDecision(ctx context.Context, playerID, questName string, scene int, choiceID string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	return t.exists(ctx,
		`SELECT 1 FROM decisions WHERE player_id = ? AND quest = ? AND scene = ? AND choice = ? LIMIT 1`,
		playerID, questName, scene, choiceID)
}

func (t *sqlTx) ListDecisions(ctx context.Context, playerID string) ([]state.DecisionLogEntry, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := []state.DecisionLogEntry{}
	err := t.db.Query(ctx,
		`SELECT id, player_id, quest, scene, choice, ts FROM decisions WHERE player_id = ? ORDER BY seq`,
		func(row rowScanner) error {
			var (
				e  state.DecisionLogEntry
				id string
				ts int64
			)
			if err := row.Scan(&id, &e.PlayerID, &e.Quest, &e.Scene, &e.Choice, &ts); err != nil {
				return err
			}
			parsed, err := uuid.Parse(id)
			if err != nil {
				return fmt.Errorf("invalid decision id %q: %w", id, err)
			}
			e.ID = parsed
			e.Timestamp = fromMicros(ts)
			out = append(out, e)
			return nil
		}, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return out, nil
}

func (t *sqlTx) GetInventory(ctx context.Context, playerID string) ([]state.InventoryEntry, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := []state.InventoryEntry{}
	err := t.db.Query(ctx,
		`SELECT item, rarity, quantity, acquired_at FROM inventory WHERE player_id = ? AND quantity > 0 ORDER BY item`,
		func(row rowScanner) error {
			e := state.InventoryEntry{PlayerID: playerID}
			var acquired int64
			if err := row.Scan(&e.Item, &e.Rarity, &e.Quantity, &acquired); err != nil {
				return err
			}
			e.AcquiredAt = fromMicros(acquired)
			out = append(out, e)
			return nil
		}, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	return out, nil
}

func (t *sqlTx) HasDiscovered(ctx context.Context, playerID, category, item string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	return t.exists(ctx,
		`SELECT 1 FROM discoveries WHERE player_id = ? AND category = ? AND item = ?`,
		playerID, category, item)
}

func (t *sqlTx) ListDiscoveries(ctx context.Context, playerID string) ([]state.Discovery, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := []state.Discovery{}
	err := t.db.Query(ctx,
		`SELECT category, item, discovered_at FROM discoveries WHERE player_id = ? ORDER BY discovered_at, category, item`,
		func(row rowScanner) error {
			d := state.Discovery{PlayerID: playerID}
			var at int64
			if err := row.Scan(&d.Category, &d.Item, &at); err != nil {
				return err
			}
			d.DiscoveredAt = fromMicros(at)
			out = append(out, d)
			return nil
		}, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list discoveries: %w", err)
	}
	return out, nil
}

func (t *sqlTx) HasCompletedQuest(ctx context.Context, playerID, questName string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	return t.exists(ctx,
		`SELECT 1 FROM completed_quests WHERE player_id = ? AND quest = ?`,
		playerID, questName)
}

func (t *sqlTx) GetRelationship(ctx context.Context, playerID, character string) (*state.Relationship, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	rel := state.Relationship{PlayerID: playerID, Character: character}
	var first, last int64
	err := t.db.QueryRow(ctx,
		`SELECT affinity, first_met, last_interaction FROM relationships WHERE player_id = ? AND character_name = ?`,
		playerID, character).Scan(&rel.Affinity, &first, &last)
	if err != nil {
		if t.db.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load relationship: %w", err)
	}
	rel.FirstMet = fromMicros(first)
	rel.LastInteraction = fromMicros(last)
	return &rel, nil
}

func (t *sqlTx) GetExperience(ctx context.Context, playerID string) (int, error) {
	if err := t.check(playerID); err != nil {
		return 0, err
	}
	var xp int
	err := t.db.QueryRow(ctx, `SELECT xp FROM experience WHERE player_id = ?`, playerID).Scan(&xp)
	if err != nil {
		if t.db.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load experience: %w", err)
	}
	return xp, nil
}

func (t *sqlTx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := t.db.QueryRow(ctx, query, args...).Scan(&one)
	if err != nil {
		if t.db.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Writes

func (t *sqlTx) SaveQuestState(ctx context.Context, st *state.PlayerQuestState) error {
	if st == nil {
		return fmt.Errorf("%w: nil quest state", storage.ErrInvalidRecord)
	}
	if err := t.write(st.PlayerID); err != nil {
		return err
	}
	vars, err := json.Marshal(nonNilMap(st.Vars))
	if err != nil {
		return fmt.Errorf("failed to marshal vars: %w", err)
	}
	deltas, err := json.Marshal(nonNilMap(st.ItemDeltas))
	if err != nil {
		return fmt.Errorf("failed to marshal item deltas: %w", err)
	}
	var ended *int64
	if st.EndedAt != nil {
		v := toMicros(*st.EndedAt)
		ended = &v
	}

	err = t.db.Exec(ctx,
		`INSERT INTO quest_runs (`+questRunColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id) DO UPDATE SET
		   status = excluded.status,
		   current_scene = excluded.current_scene,
		   vars = excluded.vars,
		   item_deltas = excluded.item_deltas,
		   updated_at = excluded.updated_at,
		   ended_at = excluded.ended_at`,
		st.RunID.String(), st.PlayerID, st.Quest, string(st.Status), st.CurrentScene,
		string(vars), string(deltas), toMicros(st.StartedAt), toMicros(st.UpdatedAt), ended)
	if err != nil {
		return fmt.Errorf("failed to save quest state: %w", err)
	}

	if st.Status == state.StatusCompleted {
		completedAt := st.UpdatedAt
		if st.EndedAt != nil {
			completedAt = *st.EndedAt
		}
		err = t.db.Exec(ctx,
			`INSERT INTO completed_quests (player_id, quest, completed_at) VALUES (?, ?, ?)
			 ON CONFLICT (player_id, quest) DO NOTHING`,
			st.PlayerID, st.Quest, toMicros(completedAt))
		if err != nil {
			return fmt.Errorf("failed to mark quest completed: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) AppendDecision(ctx context.Context, entry state.DecisionLogEntry) error {
	if err := t.write(entry.PlayerID); err != nil {
		return err
	}
	err := t.db.Exec(ctx,
		`INSERT INTO decisions (id, player_id, quest, scene, choice, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.PlayerID, entry.Quest, entry.Scene, entry.Choice, toMicros(entry.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}
	return nil
}

func (t *sqlTx) AdjustInventory(ctx context.Context, playerID, item string, delta int, rarityIfNew string) error {
	if err := t.write(playerID); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}

	var current int
	err := t.db.QueryRow(ctx,
		`SELECT quantity FROM inventory WHERE player_id = ? AND item = ?`,
		playerID, item).Scan(&current)
	found := err == nil
	if err != nil && !t.db.IsNoRows(err) {
		return fmt.Errorf("failed to load inventory row: %w", err)
	}

	next := current + delta
	switch {
	case !found && delta < 0:
		return nil
	case next <= 0:
		err = t.db.Exec(ctx, `DELETE FROM inventory WHERE player_id = ? AND item = ?`, playerID, item)
	case found:
		err = t.db.Exec(ctx, `UPDATE inventory SET quantity = ? WHERE player_id = ? AND item = ?`, next, playerID, item)
	default:
		err = t.db.Exec(ctx,
			`INSERT INTO inventory (player_id, item, rarity, quantity, acquired_at) VALUES (?, ?, ?, ?, ?)`,
			playerID, item, textfilter.RarityOr(rarityIfNew, state.DefaultRarity), next, toMicros(t.now()))
	}
	if err != nil {
		return fmt.Errorf("failed to adjust inventory: %w", err)
	}
	return nil
}

func (t *sqlTx) RecordDiscovery(ctx context.Context, d state.Discovery) error {
	if err := t.write(d.PlayerID); err != nil {
		return err
	}
	if d.DiscoveredAt.IsZero() {
		d.DiscoveredAt = t.now()
	}
	err := t.db.Exec(ctx,
		`INSERT INTO discoveries (player_id, category, item, discovered_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (player_id, category, item) DO NOTHING`,
		d.PlayerID, d.Category, d.Item, toMicros(d.DiscoveredAt))
	if err != nil {
		return fmt.Errorf("failed to record discovery: %w", err)
	}
	return nil
}

func (t *sqlTx) SaveRelationship(ctx context.Context, rel state.Relationship) error {
	if err := t.write(rel.PlayerID); err != nil {
		return err
	}
	err := t.db.Exec(ctx,
		`INSERT INTO relationships (player_id, character_name, affinity, first_met, last_interaction)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (player_id, character_name) DO UPDATE SET
		   affinity = excluded.affinity,
		   first_met = excluded.first_met,
		   last_interaction = excluded.last_interaction`,
		rel.PlayerID, rel.Character, rel.Affinity, toMicros(rel.FirstMet), toMicros(rel.LastInteraction))
	if err != nil {
		return fmt.Errorf("failed to save relationship: %w", err)
	}
	return nil
}

func (t *sqlTx) AddExperience(ctx context.Context, playerID string, amount int) error {
	if err := t.write(playerID); err != nil {
		return err
	}
	err := t.db.Exec(ctx,
		`INSERT INTO experience (player_id, xp) VALUES (?, ?)
		 ON CONFLICT (player_id) DO UPDATE SET xp = experience.xp + excluded.xp`,
		playerID, amount)
	if err != nil {
		return fmt.Errorf("failed to add experience: %w", err)
	}
	return nil
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}
