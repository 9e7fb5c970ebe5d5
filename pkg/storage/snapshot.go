package storage

import (
	"sort"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/state"
)

// Snapshot is the serialized form of one player's progress. Stores that keep
// a player's progress as a single document (such as Redis) persist it and
// run transactions through SnapshotView and SnapshotUpdate.
type Snapshot struct {
	Active        []state.PlayerQuestState `json:"active,omitempty"`
	History       []state.PlayerQuestState `json:"history,omitempty"`
	Completed     []string                 `json:"completed,omitempty"`
	Decisions     []state.DecisionLogEntry `json:"decisions,omitempty"`
	Inventory     []state.InventoryEntry   `json:"inventory,omitempty"`
	Discoveries   []state.Discovery        `json:"discoveries,omitempty"`
	Relationships []state.Relationship     `json:"relationships,omitempty"`
	XP            int                      `json:"xp,omitempty"`
}

// SnapshotView returns a read-only view over snap. A nil snap is an empty
// player.
func SnapshotView(playerID string, snap *Snapshot) ProgressReader {
	return &memTx{playerID: playerID, rec: recordFromSnapshot(snap)}
}

// SnapshotUpdate runs fn against a copy of snap and returns the resulting
// snapshot. When fn fails the error is returned unchanged and snap is
// untouched.
func SnapshotUpdate(playerID string, snap *Snapshot, now func() time.Time, fn func(ProgressTx) error) (*Snapshot, error) {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	tx := &memTx{playerID: playerID, rec: recordFromSnapshot(snap), now: now, writable: true}
	if err := fn(tx); err != nil {
		return nil, err
	}
	return tx.rec.snapshot(), nil
}

func recordFromSnapshot(snap *Snapshot) *playerRecord {
	rec := newPlayerRecord()
	if snap == nil {
		return rec
	}
	for i := range snap.Active {
		rec.active[snap.Active[i].Quest] = snap.Active[i].Clone()
	}
	for i := range snap.History {
		rec.history = append(rec.history, snap.History[i].Clone())
	}
	for _, q := range snap.Completed {
		rec.completed[q] = true
	}
	for _, d := range snap.Decisions {
		rec.decisions = append(rec.decisions, d)
		rec.decisionIndex[decisionKey{d.Quest, d.Scene, d.Choice}] = true
	}
	for _, e := range snap.Inventory {
		if e.Quantity > 0 {
			rec.inventory[e.Item] = e
		}
	}
	for _, d := range snap.Discoveries {
		rec.discoveries[discoveryKey{d.Category, d.Item}] = d
	}
	for _, r := range snap.Relationships {
		rec.relationships[r.Character] = r
	}
	rec.xp = snap.XP
	return rec
}

func (r *playerRecord) snapshot() *Snapshot {
	s := &Snapshot{XP: r.xp}
	for _, st := range r.active {
		s.Active = append(s.Active, *st.Clone())
	}
	sort.Slice(s.Active, func(i, j int) bool { return s.Active[i].Quest < s.Active[j].Quest })
	for _, st := range r.history {
		s.History = append(s.History, *st.Clone())
	}
	for q := range r.completed {
		s.Completed = append(s.Completed, q)
	}
	sort.Strings(s.Completed)
	s.Decisions = append(s.Decisions, r.decisions...)
	for _, e := range r.inventory {
		s.Inventory = append(s.Inventory, e)
	}
	sort.Slice(s.Inventory, func(i, j int) bool { return s.Inventory[i].Item < s.Inventory[j].Item })
	for _, d := range r.discoveries {
		s.Discoveries = append(s.Discoveries, d)
	}
	SortDiscoveries(s.Discoveries)
	for _, rel := range r.relationships {
		s.Relationships = append(s.Relationships, rel)
	}
	sort.Slice(s.Relationships, func(i, j int) bool { return s.Relationships[i].Character < s.Relationships[j].Character })
	return s
}
