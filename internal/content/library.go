// Package content serves quest, recipe, item and character definitions
// loaded from the data directory.
package content

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
	"github.com/jwebster45206/quest-engine/pkg/textfilter"
)

// Library is an immutable, in-memory ContentStore. Names are matched
// case-insensitively through textfilter.Fold.
type Library struct {
	quests     map[string]*quest.Definition
	questNames []string
	recipes    map[string]*crafting.Recipe
	recipeList []crafting.Recipe
	items      map[string]quest.Item
	characters map[string]quest.Character

	// problems found while indexing, such as two quests whose names fold
	// to the same key. Reported by Validate.
	problems []string
}

var _ storage.ContentStore = (*Library)(nil)

// NewLibrary indexes the given definitions. Quests are normalized; on a
// duplicate name the first definition wins.
func NewLibrary(quests []quest.Definition, recipes []crafting.Recipe, items []quest.Item, characters []quest.Character) *Library {
	l := &Library{
		quests:     make(map[string]*quest.Definition, len(quests)),
		recipes:    make(map[string]*crafting.Recipe, len(recipes)),
		items:      make(map[string]quest.Item, len(items)),
		characters: make(map[string]quest.Character, len(characters)),
	}

	for i := range quests {
		q := quests[i]
		q.Normalize()
		key := textfilter.Fold(q.Name)
		if _, dup := l.quests[key]; dup {
			l.problems = append(l.problems, fmt.Sprintf("quest %q is defined more than once", q.Name))
			continue
		}
		l.quests[key] = &q
		l.questNames = append(l.questNames, q.Name)
	}
	sort.Strings(l.questNames)

	// Progress is recorded under a quest's own spelling, so references to a
	// quest are rewritten to it.
	for _, q := range l.quests {
		pre := make([]string, len(q.Prerequisites.Quests))
		for j, name := range q.Prerequisites.Quests {
			pre[j] = l.canonicalQuest(name)
		}
		if len(pre) > 0 {
			q.Prerequisites.Quests = pre
		}
	}

	for i := range recipes {
		r := recipes[i]
		r.Rarity = textfilter.Rarity(r.Rarity)
		if len(r.QuestRequirements) > 0 {
			reqs := make(crafting.QuestRequirements, len(r.QuestRequirements))
			for j, req := range r.QuestRequirements {
				req.Quest = l.canonicalQuest(req.Quest)
				reqs[j] = req
			}
			r.QuestRequirements = reqs
		}
		key := textfilter.Fold(r.Result)
		if _, dup := l.recipes[key]; dup {
			l.problems = append(l.problems, fmt.Sprintf("recipe %q is defined more than once", r.Result))
			continue
		}
		l.recipes[key] = &r
		l.recipeList = append(l.recipeList, r)
	}
	sort.Slice(l.recipeList, func(i, j int) bool { return l.recipeList[i].Result < l.recipeList[j].Result })

	for _, it := range items {
		it.Rarity = textfilter.Rarity(it.Rarity)
		key := textfilter.Fold(it.Name)
		if _, dup := l.items[key]; dup {
			l.problems = append(l.problems, fmt.Sprintf("item %q is defined more than once", it.Name))
			continue
		}
		l.items[key] = it
	}
	for _, c := range characters {
		l.characters[textfilter.Fold(c.Name)] = c
	}
	return l
}

// canonicalQuest returns the defined spelling of a quest name, or name
// itself when no such quest exists.
func (l *Library) canonicalQuest(name string) string {
	if q, ok := l.quests[textfilter.Fold(name)]; ok {
		return q.Name
	}
	return name
}

func (l *Library) GetQuest(name string) (*quest.Definition, bool) {
	q, ok := l.quests[textfilter.Fold(name)]
	return q, ok
}

// ListQuestNames returns every quest name in alphabetical order.
func (l *Library) ListQuestNames() []string {
	return append([]string(nil), l.questNames...)
}

func (l *Library) GetRecipe(resultItem string) (*crafting.Recipe, bool) {
	r, ok := l.recipes[textfilter.Fold(resultItem)]
	return r, ok
}

// ListRecipes returns every recipe ordered by result item.
func (l *Library) ListRecipes() []crafting.Recipe {
	return append([]crafting.Recipe(nil), l.recipeList...)
}

func (l *Library) GetItem(name string) (quest.Item, bool) {
	it, ok := l.items[textfilter.Fold(name)]
	return it, ok
}

func (l *Library) GetCharacter(name string) (quest.Character, bool) {
	c, ok := l.characters[textfilter.Fold(name)]
	return c, ok
}

// SuggestQuests returns up to limit quest names that fuzzily match query,
// best match first.
func (l *Library) SuggestQuests(query string, limit int) []string {
	return suggest(query, l.questNames, limit)
}

// SuggestRecipes returns up to limit recipe result items that fuzzily match
// query, best match first.
func (l *Library) SuggestRecipes(query string, limit int) []string {
	names := make([]string, len(l.recipeList))
	for i, r := range l.recipeList {
		names[i] = r.Result
	}
	return suggest(query, names, limit)
}

// Counts reports how many quests, recipes, items and characters are loaded.
func (l *Library) Counts() (quests, recipes, items, characters int) {
	return len(l.quests), len(l.recipes), len(l.items), len(l.characters)
}

func suggest(query string, names []string, limit int) []string {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil
	}
	var out []string
	for _, m := range fuzzy.Find(query, names) {
		out = append(out, m.Str)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Validate checks every definition and cross reference. It returns one
// message per problem; an empty result means the content is usable.
func (l *Library) Validate() []string {
	errs := append([]string(nil), l.problems...)

	for _, name := range l.questNames {
		q := l.quests[textfilter.Fold(name)]
		errs = append(errs, q.Validate()...)
		for _, pre := range q.Prerequisites.Quests {
			if _, ok := l.GetQuest(pre); !ok {
				errs = append(errs, fmt.Sprintf("quest %q: prerequisite quest %q does not exist", q.Name, pre))
			}
			if textfilter.Fold(pre) == textfilter.Fold(q.Name) {
				errs = append(errs, fmt.Sprintf("quest %q: requires itself", q.Name))
			}
		}
	}

	known := func(name string) bool {
		_, ok := l.GetQuest(name)
		return ok
	}
	for i := range l.recipeList {
		r := &l.recipeList[i]
		errs = append(errs, r.Validate(known)...)
		for _, req := range r.QuestRequirements {
			if !req.ScopedToDecision() {
				continue
			}
			q, ok := l.GetQuest(req.Quest)
			if !ok {
				continue
			}
			if !hasChoice(q, req.Scene, req.Choice) {
				errs = append(errs, fmt.Sprintf("recipe %q: quest %q has no choice %q in scene %d", r.Result, req.Quest, req.Choice, req.Scene))
			}
		}
	}
	return errs
}

func hasChoice(q *quest.Definition, scene int, choiceID string) bool {
	s, ok := q.Scene(scene)
	if !ok {
		return false
	}
	for _, c := range s.Choices {
		if c.ID == choiceID {
			return true
		}
	}
	return false
}
