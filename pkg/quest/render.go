package quest

import (
	"regexp"
)

// ContinueChoiceID identifies the synthetic choice offered by scenes that
// declare no choices of their own.
const ContinueChoiceID = "continue"

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// View is a scene prepared for one player: placeholders substituted and
// hidden choices removed.
type View struct {
	Quest     string         `json:"quest"`
	Number    int            `json:"scene"`
	Title     string         `json:"title,omitempty"`
	Narrative string         `json:"narrative"`
	Dialogue  []DialogueLine `json:"dialogue,omitempty"`
	Choices   []ChoiceView   `json:"choices"`
}

// ChoiceView is a selectable choice as shown to the player.
type ChoiceView struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	PlayerLine string `json:"player_line,omitempty"`
}

// Substitute replaces every {name} placeholder that has a value in vars.
// Placeholders without a matching variable are left as written.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// SatisfiedBy reports whether every condition equals the value in vars.
// An empty condition set is always satisfied.
func (c VarMap) SatisfiedBy(vars map[string]string) bool {
	for key, want := range c {
		got, ok := vars[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// VisibleChoices returns the choices a player may currently select.
// A scene without declared choices offers one "continue" choice that
// advances to the next scene in sequence.
func (s Scene) VisibleChoices(vars map[string]string) []Choice {
	if len(s.Choices) == 0 {
		return []Choice{{ID: ContinueChoiceID, Text: "Continue"}}
	}
	visible := make([]Choice, 0, len(s.Choices))
	for _, ch := range s.Choices {
		if ch.Conditions.SatisfiedBy(vars) {
			visible = append(visible, ch)
		}
	}
	return visible
}

// FindChoice looks up a visible choice by id. Choices hidden by their
// conditions are not selectable.
func (s Scene) FindChoice(id string, vars map[string]string) (Choice, bool) {
	for _, ch := range s.VisibleChoices(vars) {
		if ch.ID == id {
			return ch, true
		}
	}
	return Choice{}, false
}

// Render builds the player-facing view of a scene.
func Render(questName string, s Scene, vars map[string]string) View {
	v := View{
		Quest:     questName,
		Number:    s.Number,
		Title:     Substitute(s.Title, vars),
		Narrative: Substitute(s.Narrative, vars),
	}
	for _, line := range s.Dialogue {
		v.Dialogue = append(v.Dialogue, DialogueLine{
			Speaker: line.Speaker,
			Line:    Substitute(line.Line, vars),
		})
	}
	choices := s.VisibleChoices(vars)
	v.Choices = make([]ChoiceView, 0, len(choices))
	for _, ch := range choices {
		v.Choices = append(v.Choices, ChoiceView{
			ID:         ch.ID,
			Text:       Substitute(ch.Text, vars),
			PlayerLine: Substitute(ch.PlayerLine, vars),
		})
	}
	return v
}
