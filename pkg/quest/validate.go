package quest

import (
	"fmt"
	"strconv"
	"strings"
)

// AffinityPrefix marks state changes that adjust a character relationship
// instead of a state variable, e.g. "affinity.Elder Maren": "+2".
const AffinityPrefix = "affinity."

// AffinityTarget returns the character named by a reserved affinity key.
func AffinityTarget(key string) (string, bool) {
	if !strings.HasPrefix(key, AffinityPrefix) {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(key, AffinityPrefix))
	return name, name != ""
}

// Validate checks a definition for structural problems and returns one
// message per problem. A nil result means the definition is usable.
func (d *Definition) Validate() []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(d.Name) == "" {
		add("quest name is required")
	}
	if len(d.Scenes) == 0 {
		add("quest %q has no scenes", d.Name)
	}
	for i, s := range d.Scenes {
		if s.Number != i+1 {
			add("scene at position %d is numbered %d; scenes must be numbered 1..n without gaps", i+1, s.Number)
		}
		seen := make(map[string]bool, len(s.Choices))
		for _, ch := range s.Choices {
			where := fmt.Sprintf("scene %d choice %q", i+1, ch.ID)
			if ch.ID == "" {
				add("scene %d has a choice without an id", i+1)
			} else if seen[ch.ID] {
				add("%s: duplicate choice id", where)
			}
			seen[ch.ID] = true
			if ch.ID == ContinueChoiceID {
				add("%s: id is reserved for scenes without choices", where)
			}
			if n := ch.Outcome.Next.Number; n > 0 && n > len(d.Scenes) {
				add("%s: next_scene %d is out of range (1..%d)", where, n, len(d.Scenes))
			}
			errs = append(errs, validateStack(where+" items_gained", ch.Outcome.ItemsGained)...)
			errs = append(errs, validateStack(where+" items_lost", ch.Outcome.ItemsLost)...)
			for key, val := range ch.Outcome.StateChanges {
				if _, ok := AffinityTarget(key); ok {
					if _, err := strconv.Atoi(val); err != nil {
						add("%s: affinity change %q must be an integer, got %q", where, key, val)
					}
				} else if strings.HasPrefix(key, AffinityPrefix) {
					add("%s: affinity change %q names no character", where, key)
				}
			}
		}
	}
	if d.Rewards.XP < 0 {
		add("rewards.xp must not be negative")
	}
	errs = append(errs, validateStack("rewards.items", d.Rewards.Items)...)
	errs = append(errs, validateStack("prerequisites.items", d.Prerequisites.Items)...)
	return errs
}

func validateStack(where string, stack ItemStack) []string {
	var errs []string
	for _, g := range stack {
		if strings.TrimSpace(g.Name) == "" {
			errs = append(errs, fmt.Sprintf("%s: item without a name", where))
		}
		if g.Quantity <= 0 {
			errs = append(errs, fmt.Sprintf("%s: %q quantity must be positive, got %d", where, g.Name, g.Quantity))
		}
	}
	return errs
}
