package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/quest-engine/internal/content"
	"github.com/jwebster45206/quest-engine/pkg/command"
	"github.com/jwebster45206/quest-engine/pkg/crafting"
	"github.com/jwebster45206/quest-engine/pkg/engine"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

func newTestUI(t *testing.T) ConsoleUI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib, err := content.Load("../../data", logger)
	require.NoError(t, err)
	eng := engine.New(lib, storage.NewMemoryStore(), logger)

	m := NewConsoleUI(eng, "tester")
	model, _ := m.Update(tea.WindowSizeMsg{Width: 160, Height: 48})
	return model.(ConsoleUI)
}

// run submits a line and feeds the dispatched response back into the model.
func run(t *testing.T, m ConsoleUI, line string) ConsoleUI {
	t.Helper()
	model, cmd := m.submit(line)
	m = model.(ConsoleUI)
	if cmd == nil {
		return m
	}
	msg := cmd()
	model, _ = m.Update(msg)
	return model.(ConsoleUI)
}

func TestConsolePicker(t *testing.T) {
	m := newTestUI(t)
	require.True(t, m.showPicker)

	model, _ := m.Update(m.loadQuests()())
	m = model.(ConsoleUI)
	require.False(t, m.loadingQuests)
	require.Len(t, m.quests, 1)
	assert.Contains(t, m.View(), "The Ember's Awakening")

	model, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = model.(ConsoleUI)
	assert.False(t, m.showPicker)
}

func TestConsoleFocusFollowsPlay(t *testing.T) {
	m := newTestUI(t)
	m.showPicker = false

	m = run(t, m, "start The Ember's Awakening")
	assert.Equal(t, "The Ember's Awakening", m.focus)

	for _, choice := range []string{"1A", "2A"} {
		m = run(t, m, "choose "+choice)
	}
	assert.Equal(t, "The Ember's Awakening", m.focus)

	m = run(t, m, "choose 3A")
	assert.Empty(t, m.focus, "completing the focused quest clears focus")

	last := m.transcript[len(m.transcript)-1]
	require.NotNil(t, last.resp)
	assert.Equal(t, command.KindCompletion, last.resp.Kind)

	m = run(t, m, "scene")
	last = m.transcript[len(m.transcript)-1]
	assert.True(t, last.isErr)
	assert.Contains(t, last.note, command.ErrNoFocus.Error())
}

func TestConsoleLocalCommands(t *testing.T) {
	m := newTestUI(t)
	m.showPicker = false

	m = run(t, m, "focus Some Quest")
	assert.Equal(t, "Some Quest", m.focus)

	m = run(t, m, "help")
	assert.Contains(t, m.transcript[len(m.transcript)-1].note, "craft <item>")

	m = run(t, m, "dance")
	assert.True(t, m.transcript[len(m.transcript)-1].isErr)

	m = run(t, m, "quit")
	assert.True(t, m.showQuitModal)
}

func TestRenderScene(t *testing.T) {
	out := renderResponse(command.Response{Kind: command.KindScene, Scene: &quest.View{
		Quest:     "The Ember's Awakening",
		Number:    2,
		Title:     "The Sealed Door",
		Narrative: "The forge door is sealed.",
		Dialogue:  []quest.DialogueLine{{Speaker: "Elder Maren", Line: "Hurry."}},
		Choices:   []quest.ChoiceView{{ID: "2A", Text: "Pour the vial."}, {ID: "2B", Text: "Pry it open."}},
	}}, 200)

	assert.Contains(t, out, "Scene 2: The Sealed Door")
	assert.Contains(t, out, "The forge door is sealed.")
	assert.Contains(t, out, "Hurry.")
	assert.Contains(t, out, "[2A]")
	assert.Contains(t, out, "Pry it open.")
}

func TestRenderFailureAndFeasibility(t *testing.T) {
	out := renderResponse(command.Response{Kind: command.KindFailure, Failure: &engine.Failure{
		Reason:      engine.ReasonQuestNotFound,
		Message:     `Quest "Ember" not found.`,
		Suggestions: []string{"The Ember's Awakening"},
	}}, 200)
	assert.Contains(t, out, "not found.")
	assert.Contains(t, out, "Did you mean: The Ember's Awakening?")

	fe := &engine.Feasibility{
		Assessment: crafting.Assessment{
			Recipe: "Inferno Fang",
			Rarity: "Rare",
			Items: []crafting.ItemStatus{
				{Item: "Relic Shard", Required: 2, Available: 1},
			},
			Prerequisites: []crafting.PrerequisiteStatus{
				{QuestRequirement: crafting.QuestRequirement{Quest: "The Ember's Awakening", Scene: 3, Choice: "3A"}},
			},
		},
		Reason:  engine.ReasonInsufficient,
		Message: "Missing materials.",
	}
	out = renderResponse(command.Response{Kind: command.KindFeasibility, Feasibility: fe}, 200)
	assert.Contains(t, out, "Inferno Fang (Rare)")
	assert.Contains(t, out, "Relic Shard 1/2 (need 1 more)")
	assert.Contains(t, out, "choose 3A in scene 3 of The Ember's Awakening")
}

func TestRenderEmptyLists(t *testing.T) {
	assert.Contains(t, renderResponse(command.Response{Kind: command.KindInventory}, 80), "empty")
	assert.Contains(t, renderResponse(command.Response{Kind: command.KindActive}, 80), "No quests in progress")
	assert.True(t, strings.HasSuffix(renderResponse(command.Response{Kind: command.KindAck}, 80), "Noted."))
}

func TestNextFocus(t *testing.T) {
	scene := command.Response{Kind: command.KindScene, Scene: &quest.View{Quest: "B"}}
	assert.Equal(t, "B", nextFocus("A", scene))

	done := command.Response{Kind: command.KindCompletion, Completion: &engine.Completion{Quest: "A"}}
	assert.Empty(t, nextFocus("A", done))
	assert.Equal(t, "C", nextFocus("C", done))

	gone := command.Response{Kind: command.KindAbandoned, Abandoned: &engine.Abandonment{Quest: "A"}}
	assert.Empty(t, nextFocus("A", gone))

	failed := command.Response{Kind: command.KindFailure, Failure: &engine.Failure{}}
	assert.Equal(t, "A", nextFocus("A", failed))
}
