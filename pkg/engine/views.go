package engine

import (
	"time"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// QuestStatus describes a quest from one player's point of view.
type QuestStatus string

const (
	QuestAvailable QuestStatus = "available"
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestLocked    QuestStatus = "locked"
)

// QuestSummary is a catalogue entry for a quest.
type QuestSummary struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Difficulty  string      `json:"difficulty,omitempty"`
	Status      QuestStatus `json:"status"`
}

// ActiveQuest is a quest run in progress.
type ActiveQuest struct {
	Quest      string    `json:"quest"`
	Scene      int       `json:"scene"`
	SceneTitle string    `json:"scene_title,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Step is the result of applying a choice: exactly one of Scene and
// Completion is set.
type Step struct {
	Scene      *quest.View `json:"scene,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// RewardKind distinguishes reward entries.
type RewardKind string

const (
	RewardItem       RewardKind = "item"
	RewardExperience RewardKind = "experience"
	RewardLore       RewardKind = "lore"
)

// Reward is one applied completion reward.
type Reward struct {
	Kind     RewardKind `json:"kind"`
	Item     string     `json:"item,omitempty"`
	Quantity int        `json:"quantity,omitempty"`
	Rarity   string     `json:"rarity,omitempty"`
	Amount   int        `json:"amount,omitempty"`
	Category string     `json:"category,omitempty"`
	Name     string     `json:"name,omitempty"`
}

// Completion summarises a finished quest. Rewards are listed items first,
// then experience, then lore.
type Completion struct {
	Quest       string    `json:"quest"`
	CompletedAt time.Time `json:"completed_at"`
	Rewards     []Reward  `json:"rewards"`
	Experience  int       `json:"total_experience"`
}

// Abandonment confirms an abandoned quest run.
type Abandonment struct {
	Quest       string    `json:"quest"`
	Scene       int       `json:"scene"`
	AbandonedAt time.Time `json:"abandoned_at"`
}

// InventoryItem is an inventory row joined with its catalogue entry.
type InventoryItem struct {
	Item        string `json:"item"`
	Rarity      string `json:"rarity"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description,omitempty"`
}

// Feasibility is the answer to can_craft. Reason is empty when the recipe
// can be crafted.
type Feasibility struct {
	crafting.Assessment
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Crafted confirms a successful craft.
type Crafted struct {
	Item     string          `json:"item"`
	Rarity   string          `json:"rarity"`
	Quantity int             `json:"quantity"`
	Consumed quest.ItemStack `json:"consumed"`
	Message  string          `json:"message"`
}
