package command

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmpty is returned for blank input.
	ErrEmpty = errors.New("empty command")
	// ErrNoFocus is returned when a command needs a quest and none is given
	// or in focus.
	ErrNoFocus = errors.New("no quest given and no quest in focus")
)

// Usage lists the commands Parse understands.
const Usage = `quests                     quests you can start now
catalog                    every quest and its status
active                     your quests in progress
start <quest>              start a quest and focus on it
scene [quest]              show the current scene
choose <id> [in <quest>]   pick a choice in the current scene
abandon [quest]            give up a quest
inventory                  list your items
recipes                    recipes you have unlocked
check <item>               can you craft it?
craft <item>               craft an item
talk <character>           speak with a character
discover <category> <name> record a lore discovery`

// Parse turns a console line into a request for playerID. focus is the quest
// used when a quest command names none.
func Parse(playerID, focus, line string) (Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmpty
	}
	verb := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.Join(fields[1:], " "))

	questOrFocus := func() (string, error) {
		if rest != "" {
			return rest, nil
		}
		if focus != "" {
			return focus, nil
		}
		return "", ErrNoFocus
	}
	required := func(what string) (string, error) {
		if rest == "" {
			return "", fmt.Errorf("%s needs a %s", verb, what)
		}
		return rest, nil
	}

	switch verb {
	case "quests", "available":
		return ListAvailable{PlayerID: playerID}, nil
	case "catalog", "catalogue":
		return ListQuests{PlayerID: playerID}, nil
	case "active":
		return ActiveQuests{PlayerID: playerID}, nil
	case "start":
		q, err := required("quest name")
		if err != nil {
			return nil, err
		}
		return StartQuest{PlayerID: playerID, Quest: q}, nil
	case "scene", "look":
		q, err := questOrFocus()
		if err != nil {
			return nil, err
		}
		return CurrentScene{PlayerID: playerID, Quest: q}, nil
	case "choose", "pick":
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s needs a choice id", verb)
		}
		choice := fields[1]
		q := focus
		if len(fields) > 3 && strings.EqualFold(fields[2], "in") {
			q = strings.Join(fields[3:], " ")
		} else if len(fields) > 2 {
			return nil, fmt.Errorf("usage: choose <id> [in <quest>]")
		}
		if q == "" {
			return nil, ErrNoFocus
		}
		return ApplyChoice{PlayerID: playerID, Quest: q, ChoiceID: choice}, nil
	case "abandon":
		q, err := questOrFocus()
		if err != nil {
			return nil, err
		}
		return AbandonQuest{PlayerID: playerID, Quest: q}, nil
	case "inventory", "inv":
		return Inventory{PlayerID: playerID}, nil
	case "recipes":
		return ListRecipes{PlayerID: playerID}, nil
	case "check":
		item, err := required("item name")
		if err != nil {
			return nil, err
		}
		return CheckRecipe{PlayerID: playerID, Item: item}, nil
	case "craft":
		item, err := required("item name")
		if err != nil {
			return nil, err
		}
		return Craft{PlayerID: playerID, Item: item}, nil
	case "talk", "interact":
		c, err := required("character name")
		if err != nil {
			return nil, err
		}
		return Interact{PlayerID: playerID, Character: c}, nil
	case "discover":
		if len(fields) < 3 {
			return nil, fmt.Errorf("usage: discover <category> <name>")
		}
		return Discover{PlayerID: playerID, Category: fields[1], Item: strings.Join(fields[2:], " ")}, nil
	default:
		return nil, fmt.Errorf("unknown command %q", fields[0])
	}
}
