package quest

import (
	"fmt"
)

// Definition is the immutable template for a quest. Definitions are loaded
// once from the content store and shared read-only across all players.
type Definition struct {
	Name          string        `json:"name" yaml:"name"`                                       // Unique quest name
	Description   string        `json:"description,omitempty" yaml:"description,omitempty"`     // Short summary shown in quest lists
	Difficulty    string        `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`       // e.g. "easy", "hard"
	Scenes        []Scene       `json:"scenes" yaml:"scenes"`                                   // Ordered scenes, numbered from 1
	Rewards       Rewards       `json:"rewards,omitempty" yaml:"rewards,omitempty"`             // Granted on completion
	Prerequisites Prerequisites `json:"prerequisites,omitempty" yaml:"prerequisites,omitempty"` // Required before the quest is offered
}

// Scene is one node of a quest's branching narrative.
type Scene struct {
	Number    int            `json:"number,omitempty" yaml:"number,omitempty"`       // 1-based sequence number
	Title     string         `json:"title,omitempty" yaml:"title,omitempty"`         // Scene heading
	Narrative string         `json:"narrative" yaml:"narrative"`                     // May contain {variable} placeholders
	Dialogue  []DialogueLine `json:"dialogue,omitempty" yaml:"dialogue,omitempty"`   // NPC lines spoken in this scene
	Choices   []Choice       `json:"choices,omitempty" yaml:"choices,omitempty"`     // Empty means a single "continue" choice
}

// DialogueLine is a single line spoken by an NPC.
type DialogueLine struct {
	Speaker string `json:"speaker" yaml:"speaker"`
	Line    string `json:"line" yaml:"line"`
}

// Choice is a player-selectable option within a scene.
type Choice struct {
	ID         string  `json:"id" yaml:"id"`                                       // Unique within the scene
	Text       string  `json:"text" yaml:"text"`                                   // Display text
	PlayerLine string  `json:"player_line,omitempty" yaml:"player_line,omitempty"` // What the player says
	Outcome    Outcome `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`       // Effects of choosing
	Conditions VarMap  `json:"conditions,omitempty" yaml:"conditions,omitempty"`   // All must equal the current state
}

// Outcome describes the effects of a choice.
type Outcome struct {
	StateChanges VarMap    `json:"state_changes,omitempty" yaml:"state_changes,omitempty"`
	ItemsGained  ItemStack `json:"items_gained,omitempty" yaml:"items_gained,omitempty"`
	ItemsLost    ItemStack `json:"items_lost,omitempty" yaml:"items_lost,omitempty"`
	Next         NextScene `json:"next_scene,omitempty" yaml:"next_scene,omitempty"`
}

// Rewards are applied when a quest completes.
type Rewards struct {
	XP    int       `json:"xp,omitempty" yaml:"xp,omitempty"`
	Items ItemStack `json:"items,omitempty" yaml:"items,omitempty"`
	Lore  LoreRefs  `json:"discoveries,omitempty" yaml:"discoveries,omitempty"`
}

// Prerequisites gate whether a quest is offered to a player.
type Prerequisites struct {
	Items  ItemStack `json:"items,omitempty" yaml:"items,omitempty"`
	Quests []string  `json:"quests,omitempty" yaml:"quests,omitempty"`
	Lore   LoreRefs  `json:"lore,omitempty" yaml:"lore,omitempty"`
}

// IsEmpty reports whether no prerequisite is declared.
func (p Prerequisites) IsEmpty() bool {
	return len(p.Items) == 0 && len(p.Quests) == 0 && len(p.Lore) == 0
}

// Item is an entry in the item catalogue.
type Item struct {
	Name        string `json:"name" yaml:"name"`
	Rarity      string `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Character is an entry in the character catalogue.
type Character struct {
	Name        string `json:"name" yaml:"name"`
	Role        string `json:"role,omitempty" yaml:"role,omitempty"`
	Personality string `json:"personality,omitempty" yaml:"personality,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Normalize assigns sequence numbers to scenes that were declared without one.
func (d *Definition) Normalize() {
	for i := range d.Scenes {
		if d.Scenes[i].Number == 0 {
			d.Scenes[i].Number = i + 1
		}
	}
}

// Scene returns the scene with the given sequence number.
func (d *Definition) Scene(number int) (Scene, bool) {
	if number < 1 || number > len(d.Scenes) {
		return Scene{}, false
	}
	s := d.Scenes[number-1]
	if s.Number != number {
		return Scene{}, false
	}
	return s, true
}

// ResolveNext works out where a choice taken in scene current leads.
// It returns complete=true when the quest ends. An explicit jump to a scene
// that does not exist is an error; an implied step past the last scene
// completes the quest.
func (d *Definition) ResolveNext(current int, next NextScene) (target int, complete bool, err error) {
	switch {
	case next.Complete:
		return 0, true, nil
	case next.Number > 0:
		if _, ok := d.Scene(next.Number); !ok {
			return 0, false, fmt.Errorf("scene %d not found in quest %q", next.Number, d.Name)
		}
		return next.Number, false, nil
	default:
		implied := current + 1
		if implied > len(d.Scenes) {
			return 0, true, nil
		}
		return implied, false, nil
	}
}
