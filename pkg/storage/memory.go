package storage

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/lock"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

// MemoryStore is an in-process ProgressStore. Each player's progress is an
// immutable record; transactions work on a private copy that replaces the
// record only when the transaction function succeeds.
type MemoryStore struct {
	mu        sync.RWMutex
	players   map[string]*playerRecord
	writers   *lock.KeyedMutex
	pingError error
	now       func() time.Time
}

// Ensure MemoryStore implements ProgressStore
var _ ProgressStore = (*MemoryStore)(nil)

type decisionKey struct {
	quest  string
	scene  int
	choice string
}

type discoveryKey struct {
	category string
	item     string
}

type playerRecord struct {
	active        map[string]*state.PlayerQuestState
	history       []*state.PlayerQuestState
	completed     map[string]bool
	decisions     []state.DecisionLogEntry
	decisionIndex map[decisionKey]bool
	inventory     map[string]state.InventoryEntry
	discoveries   map[discoveryKey]state.Discovery
	relationships map[string]state.Relationship
	xp            int
}

func newPlayerRecord() *playerRecord {
	return &playerRecord{
		active:        make(map[string]*state.PlayerQuestState),
		completed:     make(map[string]bool),
		decisionIndex: make(map[decisionKey]bool),
		inventory:     make(map[string]state.InventoryEntry),
		discoveries:   make(map[discoveryKey]state.Discovery),
		relationships: make(map[string]state.Relationship),
	}
}

func (r *playerRecord) clone() *playerRecord {
	c := &playerRecord{
		active:        make(map[string]*state.PlayerQuestState, len(r.active)),
		history:       make([]*state.PlayerQuestState, 0, len(r.history)),
		completed:     maps.Clone(r.completed),
		decisions:     slices.Clone(r.decisions),
		decisionIndex: maps.Clone(r.decisionIndex),
		inventory:     maps.Clone(r.inventory),
		discoveries:   maps.Clone(r.discoveries),
		relationships: maps.Clone(r.relationships),
		xp:            r.xp,
	}
	for k, v := range r.active {
		c.active[k] = v.Clone()
	}
	for _, h := range r.history {
		c.history = append(c.history, h.Clone())
	}
	return c
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players: make(map[string]*playerRecord),
		writers: lock.NewKeyedMutex(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetPingError configures Ping to fail with err; nil restores success.
func (m *MemoryStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping reports the configured ping error, if any.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) record(playerID string) *playerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.players[playerID]; ok {
		return rec
	}
	return newPlayerRecord()
}

// View runs fn against the player's last committed record.
func (m *MemoryStore) View(ctx context.Context, playerID string, fn func(ProgressReader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{playerID: playerID, rec: m.record(playerID), now: m.now})
}

// Update runs fn on a copy of the player's record and publishes the copy
// only if fn succeeds.
func (m *MemoryStore) Update(ctx context.Context, playerID string, fn func(ProgressTx) error) error {
	unlock, err := m.writers.Lock(ctx, playerID)
	if err != nil {
		return err
	}
	defer unlock()

	tx := &memTx{playerID: playerID, rec: m.record(playerID).clone(), now: m.now, writable: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.players[playerID] = tx.rec
	m.mu.Unlock()
	return nil
}

// memTx is both the read view and the write transaction of MemoryStore.
type memTx struct {
	playerID string
	rec      *playerRecord
	now      func() time.Time
	writable bool
}

var errReadOnly = errors.New("memory store: write in read-only view")

func (t *memTx) check(playerID string) error {
	return CheckScope(t.playerID, playerID)
}

func (t *memTx) write(playerID string) error {
	if !t.writable {
		return errReadOnly
	}
	return t.check(playerID)
}

func (t *memTx) GetActiveQuestState(ctx context.Context, playerID, questName string) (*state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	return t.rec.active[questName].Clone(), nil
}

func (t *memTx) ListActiveQuestStates(ctx context.Context, playerID string) ([]state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := make([]state.PlayerQuestState, 0, len(t.rec.active))
	for _, st := range t.rec.active {
		out = append(out, *st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Quest < out[j].Quest
	})
	return out, nil
}

func (t *memTx) ListQuestHistory(ctx context.Context, playerID string) ([]state.PlayerQuestState, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := make([]state.PlayerQuestState, 0, len(t.rec.history))
	for _, st := range t.rec.history {
		out = append(out, *st.Clone())
	}
	return out, nil
}

func (t *memTx) HasDecision(ctx context.Context, playerID, questName string, scene int, choiceID string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	return t.rec.decisionIndex[decisionKey{questName, scene, choiceID}], nil
}

func (t *memTx) ListDecisions(ctx context.Context, playerID string) ([]state.DecisionLogEntry, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	return slices.Clone(t.rec.decisions), nil
}

func (t *memTx) GetInventory(ctx context.Context, playerID string) ([]state.InventoryEntry, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := make([]state.InventoryEntry, 0, len(t.rec.inventory))
	for _, e := range t.rec.inventory {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out, nil
}

func (t *memTx) HasDiscovered(ctx context.Context, playerID, category, item string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	_, ok := t.rec.discoveries[discoveryKey{category, item}]
	return ok, nil
}

func (t *memTx) ListDiscoveries(ctx context.Context, playerID string) ([]state.Discovery, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	out := make([]state.Discovery, 0, len(t.rec.discoveries))
	for _, d := range t.rec.discoveries {
		out = append(out, d)
	}
	SortDiscoveries(out)
	return out, nil
}

func (t *memTx) HasCompletedQuest(ctx context.Context, playerID, questName string) (bool, error) {
	if err := t.check(playerID); err != nil {
		return false, err
	}
	return t.rec.completed[questName], nil
}

func (t *memTx) GetRelationship(ctx context.Context, playerID, character string) (*state.Relationship, error) {
	if err := t.check(playerID); err != nil {
		return nil, err
	}
	rel, ok := t.rec.relationships[character]
	if !ok {
		return nil, nil
	}
	return &rel, nil
}

func (t *memTx) GetExperience(ctx context.Context, playerID string) (int, error) {
	if err := t.check(playerID); err != nil {
		return 0, err
	}
	return t.rec.xp, nil
}

func (t *memTx) SaveQuestState(ctx context.Context, st *state.PlayerQuestState) error {
	if st == nil {
		return fmt.Errorf("%w: nil quest state", ErrInvalidRecord)
	}
	if err := t.write(st.PlayerID); err != nil {
		return err
	}
	if st.IsActive() {
		t.rec.active[st.Quest] = st.Clone()
		return nil
	}
	delete(t.rec.active, st.Quest)
	t.rec.history = append(t.rec.history, st.Clone())
	if st.Status == state.StatusCompleted {
		t.rec.completed[st.Quest] = true
	}
	return nil
}

func (t *memTx) AppendDecision(ctx context.Context, entry state.DecisionLogEntry) error {
	if err := t.write(entry.PlayerID); err != nil {
		return err
	}
	t.rec.decisions = append(t.rec.decisions, entry)
	t.rec.decisionIndex[decisionKey{entry.Quest, entry.Scene, entry.Choice}] = true
	return nil
}

func (t *memTx) AdjustInventory(ctx context.Context, playerID, item string, delta int, rarityIfNew string) error {
	if err := t.write(playerID); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}
	e, ok := t.rec.inventory[item]
	if !ok {
		if delta < 0 {
			return nil
		}
		e = state.InventoryEntry{
			PlayerID:   playerID,
			Item:       item,
			Rarity:     textfilter.RarityOr(rarityIfNew, state.DefaultRarity),
			AcquiredAt: t.now(),
		}
	}
	e.Quantity += delta
	if e.Quantity <= 0 {
		delete(t.rec.inventory, item)
		return nil
	}
	t.rec.inventory[item] = e
	return nil
}

func (t *memTx) RecordDiscovery(ctx context.Context, d state.Discovery) error {
	if err := t.write(d.PlayerID); err != nil {
		return err
	}
	key := discoveryKey{d.Category, d.Item}
	if _, ok := t.rec.discoveries[key]; ok {
		return nil
	}
	if d.DiscoveredAt.IsZero() {
		d.DiscoveredAt = t.now()
	}
	t.rec.discoveries[key] = d
	return nil
}

func (t *memTx) SaveRelationship(ctx context.Context, rel state.Relationship) error {
	if err := t.write(rel.PlayerID); err != nil {
		return err
	}
	t.rec.relationships[rel.Character] = rel
	return nil
}

func (t *memTx) AddExperience(ctx context.Context, playerID string, amount int) error {
	if err := t.write(playerID); err != nil {
		return err
	}
	t.rec.xp += amount
	return nil
}

// SortDiscoveries orders discoveries by time, then category and item.
func SortDiscoveries(ds []state.Discovery) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].DiscoveredAt.Equal(ds[j].DiscoveredAt) {
			return ds[i].DiscoveredAt.Before(ds[j].DiscoveredAt)
		}
		if ds[i].Category != ds[j].Category {
			return ds[i].Category < ds[j].Category
		}
		return ds[i].Item < ds[j].Item
	})
}
