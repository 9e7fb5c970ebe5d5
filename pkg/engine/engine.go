// Package engine runs quests and crafting for players. Every operation is
// scoped to one player, serialized per player through a lock.Locker, and
// commits its writes through a single storage transaction.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/lock"
	"github.com/jwebster45206/quest-engine/pkg/state"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

// suggestionLimit caps "did you mean" suggestions on not-found failures.
const suggestionLimit = 3

// Engine is the quest engine and crafting resolver.
type Engine struct {
	content  storage.ContentStore
	progress storage.ProgressStore
	locker   lock.Locker
	logger   *slog.Logger
	metrics  *Metrics
	clock    *clock
}

// New creates an engine with an in-process player lock. Use WithLocker when
// several processes share one progress store.
func New(content storage.ContentStore, progress storage.ProgressStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		content:  content,
		progress: progress,
		locker:   lock.NewKeyedMutex(),
		logger:   logger,
		clock:    newClock(func() time.Time { return time.Now().UTC() }),
	}
}

// WithLocker sets the per-player lock.
// Returns the Engine for method chaining
func (e *Engine) WithLocker(l lock.Locker) *Engine {
	e.locker = l
	return e
}

// WithMetrics sets the prometheus counters.
// Returns the Engine for method chaining
func (e *Engine) WithMetrics(m *Metrics) *Engine {
	e.metrics = m
	return e
}

// WithClock replaces the time source.
// Returns the Engine for method chaining
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.clock = newClock(now)
	return e
}

// Ping checks the progress store.
func (e *Engine) Ping(ctx context.Context) error {
	return e.progress.Ping(ctx)
}

// run validates the player id, takes the player's lock and reports the
// outcome of fn to logs and metrics.
func (e *Engine) run(ctx context.Context, op, playerID string, fn func() error) error {
	if _, ok := textfilter.Clean(playerID); !ok {
		f := failf(ReasonInvalidRequest, "player id is required")
		e.metrics.failed(op, f.Reason)
		return f
	}

	unlock, err := e.locker.Lock(ctx, lock.PlayerKey(playerID))
	if err != nil {
		return e.report(op, playerID, err)
	}
	defer unlock()

	return e.report(op, playerID, fn())
}

func (e *Engine) report(op, playerID string, err error) error {
	if err == nil {
		return nil
	}
	f := AsFailure(err)
	e.metrics.failed(op, f.Reason)
	if f.Reason == ReasonStorage {
		e.logger.Error("Operation failed", "operation", op, "player_id", playerID, "error", err)
	} else {
		e.logger.Warn("Operation rejected", "operation", op, "player_id", playerID, "reason", f.Reason, "message", f.Message)
	}
	return f
}

// clock hands out strictly increasing timestamps at microsecond precision,
// the finest precision every progress store keeps.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newClock(now func() time.Time) *clock {
	return &clock{now: now}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// rarityFor picks the rarity of a newly created inventory row.
func (e *Engine) rarityFor(item, declared string) string {
	catalogue := ""
	if info, ok := e.content.GetItem(item); ok {
		catalogue = info.Rarity
	}
	return textfilter.RarityOr(declared, catalogue, state.DefaultRarity)
}
