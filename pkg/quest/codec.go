package quest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CompleteSentinel is the next-scene value that ends a quest.
const CompleteSentinel = "complete"

// VarMap holds state-variable names and values. Content may declare values as
// strings, booleans or numbers; they are all stored in their string form so
// that `true` in a condition matches `true` set by an outcome.
type VarMap map[string]string

// UnmarshalJSON accepts any JSON scalar as a value.
func (v *VarMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("vars must be an object: %w", err)
	}
	out := make(VarMap, len(raw))
	for k, msg := range raw {
		s, err := scalarString(msg)
		if err != nil {
			return fmt.Errorf("var %q: %w", k, err)
		}
		out[k] = s
	}
	*v = out
	return nil
}

// UnmarshalYAML accepts any YAML scalar as a value.
func (v *VarMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("vars must be a mapping (line %d)", node.Line)
	}
	out := make(VarMap, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		if val.Kind != yaml.ScalarNode {
			return fmt.Errorf("var %q must be a scalar (line %d)", key.Value, val.Line)
		}
		value := val.Value
		switch val.ShortTag() {
		case "!!bool":
			var b bool
			if err := val.Decode(&b); err != nil {
				return fmt.Errorf("var %q: %w", key.Value, err)
			}
			value = strconv.FormatBool(b)
		case "!!null":
			value = ""
		}
		out[key.Value] = value
	}
	*v = out
	return nil
}

func scalarString(msg json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("value must be a string, number or boolean")
	default:
		// true, false and numbers keep their literal spelling
		return string(trimmed), nil
	}
}

// ItemGrant is a quantity of a named item, optionally with the rarity to use
// when the item is new to the player.
type ItemGrant struct {
	Name     string `json:"name" yaml:"name"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Rarity   string `json:"rarity,omitempty" yaml:"rarity,omitempty"`
}

// ItemStack is an ordered list of item quantities. Content may write it as an
// object of name to quantity (applied in name order) or as a list of grants.
type ItemStack []ItemGrant

// UnmarshalJSON implements both the object and the list form.
func (s *ItemStack) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string]int
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("item quantities must be integers: %w", err)
		}
		*s = stackFromMap(m)
		return nil
	}
	var list []ItemGrant
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// UnmarshalYAML implements both the mapping and the sequence form.
func (s *ItemStack) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string]int
		if err := node.Decode(&m); err != nil {
			return err
		}
		*s = stackFromMap(m)
		return nil
	case yaml.SequenceNode:
		var list []ItemGrant
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("items must be a mapping or a list (line %d)", node.Line)
	}
}

// Merged adds up grants that repeat a name. Each name keeps the position and
// rarity of its first grant.
func (s ItemStack) Merged() ItemStack {
	out := make(ItemStack, 0, len(s))
	index := make(map[string]int, len(s))
	for _, g := range s {
		if i, ok := index[g.Name]; ok {
			out[i].Quantity += g.Quantity
			continue
		}
		index[g.Name] = len(out)
		out = append(out, g)
	}
	return out
}

func stackFromMap(m map[string]int) ItemStack {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(ItemStack, 0, len(names))
	for _, name := range names {
		out = append(out, ItemGrant{Name: name, Quantity: m[name]})
	}
	return out
}

// Quantities returns the stack as a name to total quantity map.
func (s ItemStack) Quantities() map[string]int {
	out := make(map[string]int, len(s))
	for _, g := range s {
		out[g.Name] += g.Quantity
	}
	return out
}

// NextScene points at the scene reached after a choice. The zero value means
// "the next scene in sequence".
type NextScene struct {
	Number   int
	Complete bool
}

// IsZero reports whether the pointer is implied.
func (n NextScene) IsZero() bool {
	return n.Number == 0 && !n.Complete
}

func (n NextScene) String() string {
	switch {
	case n.Complete:
		return CompleteSentinel
	case n.Number > 0:
		return strconv.Itoa(n.Number)
	default:
		return ""
	}
}

// MarshalJSON writes a number, "complete", or null.
func (n NextScene) MarshalJSON() ([]byte, error) {
	switch {
	case n.Complete:
		return json.Marshal(CompleteSentinel)
	case n.Number > 0:
		return json.Marshal(n.Number)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts 2, "2", "scene_2", "complete" or null.
func (n *NextScene) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if string(trimmed) == "null" {
		*n = NextScene{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		return n.parse(s)
	}
	var num int
	if err := json.Unmarshal(trimmed, &num); err != nil {
		return fmt.Errorf("next_scene must be a scene number or %q", CompleteSentinel)
	}
	return n.parse(strconv.Itoa(num))
}

// UnmarshalYAML accepts the same spellings as UnmarshalJSON.
func (n *NextScene) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("next_scene must be a scalar (line %d)", node.Line)
	}
	if node.Tag == "!!null" {
		*n = NextScene{}
		return nil
	}
	return n.parse(node.Value)
}

func (n *NextScene) parse(s string) error {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		*n = NextScene{}
		return nil
	}
	if s == CompleteSentinel {
		*n = NextScene{Complete: true}
		return nil
	}
	num, err := ParseSceneRef(s)
	if err != nil {
		return err
	}
	*n = NextScene{Number: num}
	return nil
}

// ParseSceneRef reads a scene reference written as "3", "scene3" or "scene_3".
func ParseSceneRef(s string) (int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "scene")
	s = strings.TrimPrefix(s, "_")
	num, err := strconv.Atoi(s)
	if err != nil || num < 1 {
		return 0, fmt.Errorf("invalid scene reference %q", s)
	}
	return num, nil
}

// LoreRef names a lore entry within a category.
type LoreRef struct {
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name" yaml:"name"`
}

// LoreRefs is an ordered list of lore entries. Content may write it as an
// object of category to names (categories applied in name order).
type LoreRefs []LoreRef

// UnmarshalJSON implements both the object and the list form.
func (l *LoreRefs) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var m map[string][]string
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return fmt.Errorf("lore must map categories to names: %w", err)
		}
		*l = loreFromMap(m)
		return nil
	}
	var list []LoreRef
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return err
	}
	*l = list
	return nil
}

// UnmarshalYAML implements both the mapping and the sequence form.
func (l *LoreRefs) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string][]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		*l = loreFromMap(m)
		return nil
	case yaml.SequenceNode:
		var list []LoreRef
		if err := node.Decode(&list); err != nil {
			return err
		}
		*l = list
		return nil
	default:
		return fmt.Errorf("lore must be a mapping or a list (line %d)", node.Line)
	}
}

func loreFromMap(m map[string][]string) LoreRefs {
	categories := make([]string, 0, len(m))
	for c := range m {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	var out LoreRefs
	for _, c := range categories {
		for _, name := range m[c] {
			out = append(out, LoreRef{Category: c, Name: name})
		}
	}
	return out
}
