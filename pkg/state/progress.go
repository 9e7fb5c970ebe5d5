package state

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a quest run.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Discovery categories written by the engine itself.
const (
	CategoryQuests     = "quests"
	CategoryCharacters = "characters"
)

// DefaultRarity labels inventory rows created without any declared rarity.
const DefaultRarity = "Common"

// PlayerQuestState is one player's run through one quest. It is the durable
// authority for the run; nothing about an active run is held only in memory.
type PlayerQuestState struct {
	RunID        uuid.UUID         `json:"run_id"`
	PlayerID     string            `json:"player_id"`
	Quest        string            `json:"quest"`
	Status       Status            `json:"status"`
	CurrentScene int               `json:"current_scene"`
	Vars         map[string]string `json:"vars,omitempty"`
	// Net item changes made by choices during this run. They are already
	// applied to the inventory; this is a per-run tally for display.
	ItemDeltas map[string]int `json:"item_deltas,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	EndedAt    *time.Time     `json:"ended_at,omitempty"`
}

// NewPlayerQuestState creates an active run positioned at scene 1.
func NewPlayerQuestState(playerID, questName string, now time.Time) *PlayerQuestState {
	return &PlayerQuestState{
		RunID:        uuid.New(),
		PlayerID:     playerID,
		Quest:        questName,
		Status:       StatusActive,
		CurrentScene: 1,
		Vars:         make(map[string]string),
		ItemDeltas:   make(map[string]int),
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

// IsActive reports whether the run is still in progress.
func (s *PlayerQuestState) IsActive() bool {
	return s.Status == StatusActive
}

// Finish moves the run to a terminal status.
func (s *PlayerQuestState) Finish(status Status, now time.Time) {
	s.Status = status
	s.UpdatedAt = now
	s.EndedAt = &now
}

// Clone returns a deep copy.
func (s *PlayerQuestState) Clone() *PlayerQuestState {
	if s == nil {
		return nil
	}
	c := *s
	c.Vars = maps.Clone(s.Vars)
	c.ItemDeltas = maps.Clone(s.ItemDeltas)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// InventoryEntry is a stack of one item held by a player. A stored entry
// always has a positive quantity.
type InventoryEntry struct {
	PlayerID   string    `json:"player_id"`
	Item       string    `json:"item"`
	Rarity     string    `json:"rarity"`
	Quantity   int       `json:"quantity"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// DecisionLogEntry records a choice a player made. Entries are append-only.
type DecisionLogEntry struct {
	ID        uuid.UUID `json:"id"`
	PlayerID  string    `json:"player_id"`
	Quest     string    `json:"quest"`
	Scene     int       `json:"scene"`
	Choice    string    `json:"choice"`
	Timestamp time.Time `json:"timestamp"`
}

// Discovery marks a lore entry, quest or character as encountered.
type Discovery struct {
	PlayerID     string    `json:"player_id"`
	Category     string    `json:"category"`
	Item         string    `json:"item"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Relationship tracks how a character feels about a player.
type Relationship struct {
	PlayerID        string    `json:"player_id"`
	Character       string    `json:"character"`
	Affinity        int       `json:"affinity"`
	FirstMet        time.Time `json:"first_met"`
	LastInteraction time.Time `json:"last_interaction"`
}
