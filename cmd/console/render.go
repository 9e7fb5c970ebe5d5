package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/quest-engine/pkg/command"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/quest"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")). // yellow
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

// renderResponse formats a dispatched response for a transcript column of
// the given width.
func renderResponse(resp command.Response, width int) string {
	if width < 20 {
		width = 20
	}
	switch resp.Kind {
	case command.KindScene:
		return renderScene(resp.Scene, width)
	case command.KindCompletion:
		return renderCompletion(resp.Completion, width)
	case command.KindQuests:
		return renderQuests(resp.Quests, width)
	case command.KindActive:
		return renderActive(resp.Active)
	case command.KindInventory:
		return renderInventory(resp.Inventory, width)
	case command.KindRecipes:
		return renderRecipes(resp.Recipes, width)
	case command.KindFeasibility:
		return renderFeasibility(resp.Feasibility, width)
	case command.KindCrafted:
		return narratorStyle.Render(wordwrap.String(resp.Crafted.Message, width))
	case command.KindRelationship:
		r := resp.Relationship
		return fmt.Sprintf("%s affinity %+d (first met %s)",
			speakerStyle.Render(r.Character), r.Affinity, r.FirstMet.Format("2006-01-02 15:04"))
	case command.KindAbandoned:
		a := resp.Abandoned
		return promptStyle.Render(fmt.Sprintf("Abandoned %s at scene %d.", a.Quest, a.Scene))
	case command.KindAck:
		return promptStyle.Render("Noted.")
	case command.KindFailure:
		return renderFailure(resp.Failure, width)
	default:
		return ""
	}
}

func renderScene(v *quest.View, width int) string {
	var b strings.Builder
	header := fmt.Sprintf("%s · Scene %d", v.Quest, v.Number)
	if v.Title != "" {
		header += ": " + v.Title
	}
	b.WriteString(titleStyle.Render(header) + "\n\n")
	b.WriteString(narratorStyle.Render(wordwrap.String(v.Narrative, width)) + "\n")

	for _, d := range v.Dialogue {
		prefix := d.Speaker + ": "
		b.WriteString("\n" + speakerStyle.Render(d.Speaker+":") + " " + wordwrap.String(d.Line, width-len(prefix)))
	}
	if len(v.Dialogue) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, c := range v.Choices {
		b.WriteString(choiceStyle.Render("["+c.ID+"]") + " " + wordwrap.String(c.Text, width-len(c.ID)-3) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCompletion(c *engine.Completion, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quest complete: "+c.Quest) + "\n")
	for _, r := range c.Rewards {
		switch r.Kind {
		case engine.RewardItem:
			b.WriteString(fmt.Sprintf("• %d× %s (%s)\n", r.Quantity, r.Item, r.Rarity))
		case engine.RewardExperience:
			b.WriteString(fmt.Sprintf("• %d XP\n", r.Amount))
		case engine.RewardLore:
			b.WriteString(wordwrap.String(fmt.Sprintf("• discovered %s: %s", r.Category, r.Name), width) + "\n")
		}
	}
	b.WriteString(promptStyle.Render(fmt.Sprintf("Total experience: %d", c.Experience)))
	return b.String()
}

func renderQuests(quests []engine.QuestSummary, width int) string {
	if len(quests) == 0 {
		return promptStyle.Render("No quests to show.")
	}
	var b strings.Builder
	for _, q := range quests {
		line := fmt.Sprintf("• %s [%s]", q.Name, q.Status)
		if q.Difficulty != "" {
			line += " (" + q.Difficulty + ")"
		}
		b.WriteString(line + "\n")
		if q.Description != "" {
			b.WriteString(promptStyle.Render(wordwrap.String("  "+q.Description, width)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderActive(active []engine.ActiveQuest) string {
	if len(active) == 0 {
		return promptStyle.Render("No quests in progress.")
	}
	var b strings.Builder
	for _, a := range active {
		line := fmt.Sprintf("• %s, scene %d", a.Quest, a.Scene)
		if a.SceneTitle != "" {
			line += " (" + a.SceneTitle + ")"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderInventory(items []engine.InventoryItem, width int) string {
	if len(items) == 0 {
		return promptStyle.Render("Your pack is empty.")
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString(fmt.Sprintf("• %d× %s (%s)\n", it.Quantity, it.Item, it.Rarity))
		if it.Description != "" {
			b.WriteString(promptStyle.Render(wordwrap.String("  "+it.Description, width)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderRecipes(recipes []engine.Feasibility, width int) string {
	if len(recipes) == 0 {
		return promptStyle.Render("No recipes unlocked yet.")
	}
	var b strings.Builder
	for i := range recipes {
		b.WriteString(renderFeasibility(&recipes[i], width) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderFeasibility(f *engine.Feasibility, width int) string {
	var b strings.Builder
	mark := errorStyle.Render("✗")
	if f.Feasible {
		mark = narratorStyle.Render("✓")
	}
	b.WriteString(fmt.Sprintf("%s %s (%s)\n", mark, f.Recipe, f.Rarity))
	for _, s := range f.Items {
		line := fmt.Sprintf("    %s %d/%d", s.Item, s.Available, s.Required)
		if !s.Sufficient {
			line = errorStyle.Render(line + fmt.Sprintf(" (need %d more)", s.Shortfall()))
		}
		b.WriteString(line + "\n")
	}
	for _, p := range f.Prerequisites {
		if p.Met {
			continue
		}
		req := "complete " + p.Quest
		if p.ScopedToDecision() {
			req = fmt.Sprintf("choose %s in scene %d of %s", p.Choice, p.Scene, p.Quest)
		}
		b.WriteString(errorStyle.Render("    "+req) + "\n")
	}
	if f.Message != "" && !f.Feasible {
		b.WriteString(promptStyle.Render(wordwrap.String("  "+f.Message, width)) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderFailure(f *engine.Failure, width int) string {
	var b strings.Builder
	b.WriteString(errorStyle.Render(wordwrap.String(f.Message, width)))
	if len(f.Suggestions) > 0 {
		b.WriteString("\n" + promptStyle.Render("Did you mean: "+strings.Join(f.Suggestions, ", ")+"?"))
	}
	for _, s := range f.Missing {
		b.WriteString("\n" + promptStyle.Render(fmt.Sprintf("  missing %d× %s", s.Shortfall(), s.Item)))
	}
	return b.String()
}

func renderInput(line string, width int) string {
	return userStyle.Render("You: ") + wordwrap.String(line, width-5)
}

// nextFocus returns the quest in focus after resp answered req. Starting or
// playing a quest focuses it; finishing or abandoning the focused quest
// clears the focus.
func nextFocus(focus string, resp command.Response) string {
	switch resp.Kind {
	case command.KindScene:
		return resp.Scene.Quest
	case command.KindCompletion:
		if resp.Completion.Quest == focus {
			return ""
		}
	case command.KindAbandoned:
		if resp.Abandoned.Quest == focus {
			return ""
		}
	}
	return focus
}
