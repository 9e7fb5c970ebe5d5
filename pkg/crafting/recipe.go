package crafting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jwebster45206/quest-engine/pkg/quest"
)

// Recipe turns a set of inventory items into one unit of Result.
type Recipe struct {
	Result            string            `json:"result_item" yaml:"result_item"`
	Rarity            string            `json:"result_rarity,omitempty" yaml:"result_rarity,omitempty"`
	Description       string            `json:"description,omitempty" yaml:"description,omitempty"`
	Ingredients       quest.ItemStack   `json:"requirements,omitempty" yaml:"requirements,omitempty"`
	QuestRequirements QuestRequirements `json:"quest_requirements,omitempty" yaml:"quest_requirements,omitempty"`
}

// QuestRequirement demands that a quest is completed. When Scene and Choice
// are set it also demands that the player picked Choice in that scene.
type QuestRequirement struct {
	Quest  string `json:"quest" yaml:"quest"`
	Scene  int    `json:"scene,omitempty" yaml:"scene,omitempty"`
	Choice string `json:"choice,omitempty" yaml:"choice,omitempty"`
}

// ScopedToDecision reports whether the requirement also names a decision.
func (q QuestRequirement) ScopedToDecision() bool {
	return q.Scene > 0 && q.Choice != ""
}

func (q QuestRequirement) String() string {
	if q.ScopedToDecision() {
		return fmt.Sprintf("complete %q choosing %s in scene %d", q.Quest, q.Choice, q.Scene)
	}
	return fmt.Sprintf("complete %q", q.Quest)
}

// QuestRequirements accepts either a list of requirements or the map form
// {"Quest": {"scene3": "3A"}}, where an empty inner object means completion
// alone is required.
type QuestRequirements []QuestRequirement

// UnmarshalJSON implements both the list and the map form.
func (r *QuestRequirements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]map[string]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("quest requirements must map quest names to scene choices: %w", err)
		}
		out, err := requirementsFromMap(m)
		if err != nil {
			return err
		}
		*r = out
		return nil
	}
	var list []QuestRequirement
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*r = list
	return nil
}

// UnmarshalYAML implements both the sequence and the mapping form.
func (r *QuestRequirements) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string]map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		out, err := requirementsFromMap(m)
		if err != nil {
			return err
		}
		*r = out
		return nil
	case yaml.SequenceNode:
		var list []QuestRequirement
		if err := node.Decode(&list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		return fmt.Errorf("quest requirements must be a mapping or a list (line %d)", node.Line)
	}
}

func requirementsFromMap(m map[string]map[string]string) (QuestRequirements, error) {
	quests := make([]string, 0, len(m))
	for q := range m {
		quests = append(quests, q)
	}
	sort.Strings(quests)

	var out QuestRequirements
	for _, q := range quests {
		scenes := m[q]
		if len(scenes) == 0 {
			out = append(out, QuestRequirement{Quest: q})
			continue
		}
		refs := make([]string, 0, len(scenes))
		for ref := range scenes {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			n, err := quest.ParseSceneRef(ref)
			if err != nil {
				return nil, fmt.Errorf("quest requirement %q: %w", q, err)
			}
			out = append(out, QuestRequirement{Quest: q, Scene: n, Choice: strings.TrimSpace(scenes[ref])})
		}
	}
	return out, nil
}

// Validate checks a recipe for structural problems. knownQuest, when not nil,
// reports whether a quest named by a requirement exists.
func (r *Recipe) Validate(knownQuest func(string) bool) []string {
	var errs []string
	if strings.TrimSpace(r.Result) == "" {
		errs = append(errs, "recipe result_item is required")
	}
	seen := make(map[string]bool, len(r.Ingredients))
	for _, in := range r.Ingredients {
		if strings.TrimSpace(in.Name) == "" {
			errs = append(errs, fmt.Sprintf("recipe %q: ingredient without a name", r.Result))
			continue
		}
		if seen[in.Name] {
			errs = append(errs, fmt.Sprintf("recipe %q: ingredient %q listed twice", r.Result, in.Name))
		}
		seen[in.Name] = true
		if in.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("recipe %q: ingredient %q quantity must be positive, got %d", r.Result, in.Name, in.Quantity))
		}
	}
	for _, q := range r.QuestRequirements {
		if q.Quest == "" {
			errs = append(errs, fmt.Sprintf("recipe %q: quest requirement without a quest", r.Result))
			continue
		}
		if knownQuest != nil && !knownQuest(q.Quest) {
			errs = append(errs, fmt.Sprintf("recipe %q: requires unknown quest %q", r.Result, q.Quest))
		}
		if (q.Scene > 0) != (q.Choice != "") {
			errs = append(errs, fmt.Sprintf("recipe %q: quest requirement %q must name both scene and choice or neither", r.Result, q.Quest))
		}
	}
	return errs
}
