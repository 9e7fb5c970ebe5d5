package crafting

import (
	"fmt"
	"strings"
)

// ItemStatus compares what a recipe needs of one item with what the player
// holds.
type ItemStatus struct {
	Item       string `json:"item"`
	Required   int    `json:"required"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
}

// Shortfall is how many more units the player needs.
func (s ItemStatus) Shortfall() int {
	if s.Sufficient {
		return 0
	}
	return s.Required - s.Available
}

// PrerequisiteStatus reports whether one quest requirement holds.
type PrerequisiteStatus struct {
	QuestRequirement
	Met bool `json:"met"`
}

// Facts is the slice of a player's progress a recipe is judged against.
type Facts struct {
	Inventory map[string]int
	Completed map[string]bool
	Decisions map[DecisionKey]bool
}

// DecisionKey identifies a decision-log predicate.
type DecisionKey struct {
	Quest  string
	Scene  int
	Choice string
}

// Key returns the decision predicate of a scoped requirement.
func (q QuestRequirement) Key() DecisionKey {
	return DecisionKey{Quest: q.Quest, Scene: q.Scene, Choice: q.Choice}
}

// Assessment is the full feasibility picture for one recipe. Items always
// lists every ingredient, including the sufficient ones.
type Assessment struct {
	Recipe        string               `json:"recipe"`
	Rarity        string               `json:"rarity"`
	Items         []ItemStatus         `json:"items"`
	Prerequisites []PrerequisiteStatus `json:"prerequisites,omitempty"`
	Feasible      bool                 `json:"can_craft"`
}

// MaterialsSufficient reports whether every ingredient is covered.
func (a Assessment) MaterialsSufficient() bool {
	for _, s := range a.Items {
		if !s.Sufficient {
			return false
		}
	}
	return true
}

// PrerequisitesMet reports whether every quest requirement holds.
func (a Assessment) PrerequisitesMet() bool {
	for _, p := range a.Prerequisites {
		if !p.Met {
			return false
		}
	}
	return true
}

// Missing returns the ingredients the player is short of.
func (a Assessment) Missing() []ItemStatus {
	var out []ItemStatus
	for _, s := range a.Items {
		if !s.Sufficient {
			out = append(out, s)
		}
	}
	return out
}

// Unmet returns the quest requirements that do not hold.
func (a Assessment) Unmet() []PrerequisiteStatus {
	var out []PrerequisiteStatus
	for _, p := range a.Prerequisites {
		if !p.Met {
			out = append(out, p)
		}
	}
	return out
}

// Assess judges a recipe against a snapshot of player progress. An item
// listed more than once is judged on its total.
func Assess(r Recipe, f Facts) Assessment {
	a := Assessment{Recipe: r.Result, Rarity: r.Rarity}
	for _, need := range r.Ingredients.Merged() {
		have := f.Inventory[need.Name]
		a.Items = append(a.Items, ItemStatus{
			Item:       need.Name,
			Required:   need.Quantity,
			Available:  have,
			Sufficient: have >= need.Quantity,
		})
	}
	for _, req := range r.QuestRequirements {
		met := f.Completed[req.Quest]
		if met && req.ScopedToDecision() {
			met = f.Decisions[req.Key()]
		}
		a.Prerequisites = append(a.Prerequisites, PrerequisiteStatus{QuestRequirement: req, Met: met})
	}
	a.Feasible = a.MaterialsSufficient() && a.PrerequisitesMet()
	return a
}

// Summary describes why a recipe cannot be crafted, or confirms that it can.
func (a Assessment) Summary() string {
	if a.Feasible {
		return fmt.Sprintf("You have everything needed to craft %s.", a.Recipe)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are missing the following requirements to craft %s:", a.Recipe)
	for _, s := range a.Missing() {
		fmt.Fprintf(&b, "\n- %s: %d/%d", s.Item, s.Available, s.Required)
	}
	for _, p := range a.Unmet() {
		fmt.Fprintf(&b, "\n- %s", p.QuestRequirement)
	}
	return b.String()
}
