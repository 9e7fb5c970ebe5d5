package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jwebster45206/quest-engine/pkg/command"
	"github.com/jwebster45206/quest-engine/pkg/engine"
)

const (
	PlaceHolderText = "Type a command (help for a list)..."
	requestTimeout  = 10 * time.Second
)

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	svc    command.Service
	player string
	focus  string

	transcript []entry
	active     []engine.ActiveQuest
	inventory  []engine.InventoryItem

	logViewport  viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	loading      bool

	// Quest picker state
	showPicker    bool
	loadingQuests bool
	quests        []engine.QuestSummary
	selected      int
	err           error

	showQuitModal bool
}

// entry is one transcript line: either what the player typed, a dispatched
// response, or a local note.
type entry struct {
	input string
	resp  *command.Response
	note  string
	isErr bool
}

type dispatchedMsg struct {
	resp command.Response
}

type questsLoadedMsg struct {
	quests []engine.QuestSummary
	err    error
}

type sidebarMsg struct {
	active    []engine.ActiveQuest
	inventory []engine.InventoryItem
}

var (
	logPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)
)

func NewConsoleUI(svc command.Service, player string) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 300
	ta.SetWidth(50)
	ta.SetHeight(1)
	ta.ShowLineNumbers = false

	logVp := viewport.New(50, 20)
	logVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		svc:           svc,
		player:        player,
		textarea:      ta,
		logViewport:   logVp,
		metaViewport:  metaVp,
		showPicker:    true,
		loadingQuests: true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.loadQuests(), m.refreshSidebar())
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showPicker {
		return m.updatePicker(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			m.textarea.Reset()
			if input == "" {
				return m, nil
			}
			return m.submit(input)
		}

	case dispatchedMsg:
		m.loading = false
		resp := msg.resp
		m.focus = nextFocus(m.focus, resp)
		m.transcript = append(m.transcript, entry{resp: &resp})
		m.writeLog()
		return m, m.refreshSidebar()

	case sidebarMsg:
		m.active = msg.active
		m.inventory = msg.inventory
		m.metaViewport.SetContent(m.writeMetadata())
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.logViewport, vpCmd = m.logViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

// submit handles one typed line: console-only commands are answered locally,
// everything else is parsed and dispatched to the engine.
func (m ConsoleUI) submit(input string) (tea.Model, tea.Cmd) {
	m.transcript = append(m.transcript, entry{input: input})

	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "help", "/help":
		m.transcript = append(m.transcript, entry{note: command.Usage + "\nfocus <quest>              switch the quest in focus\ncopy                       copy the last response as JSON\nquit                       leave the console"})
		m.writeLog()
		return m, nil
	case "quit", "exit", "/quit":
		m.showQuitModal = true
		return m, nil
	case "copy":
		m.transcript = append(m.transcript, m.copyLast())
		m.writeLog()
		return m, nil
	case "focus":
		m.focus = strings.Join(fields[1:], " ")
		m.transcript = append(m.transcript, entry{note: "Focus: " + orNone(m.focus)})
		m.writeLog()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil
	}

	req, err := command.Parse(m.player, m.focus, input)
	if err != nil {
		m.transcript = append(m.transcript, entry{note: err.Error(), isErr: true})
		m.writeLog()
		return m, nil
	}

	m.loading = true
	m.writeLog()
	return m, m.dispatch(req)
}

// copyLast puts the most recent engine response on the system clipboard.
func (m ConsoleUI) copyLast() entry {
	for i := len(m.transcript) - 1; i >= 0; i-- {
		resp := m.transcript[i].resp
		if resp == nil {
			continue
		}
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return entry{note: err.Error(), isErr: true}
		}
		if err := clipboard.WriteAll(string(data)); err != nil {
			return entry{note: "Could not copy: " + err.Error(), isErr: true}
		}
		return entry{note: "Copied the last response."}
	}
	return entry{note: "Nothing to copy yet.", isErr: true}
}

func (m ConsoleUI) dispatch(req command.Request) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return dispatchedMsg{resp: command.Dispatch(ctx, m.svc, req)}
	}
}

func (m ConsoleUI) loadQuests() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		quests, err := m.svc.ListAvailable(ctx, m.player)
		return questsLoadedMsg{quests: quests, err: err}
	}
}

func (m ConsoleUI) refreshSidebar() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		// The sidebar is best effort; errors show up when the player asks.
		active, _ := m.svc.ActiveQuests(ctx, m.player)
		inventory, _ := m.svc.Inventory(ctx, m.player)
		return sidebarMsg{active: active, inventory: inventory}
	}
}

func (m *ConsoleUI) resize(width, height int) {
	m.width = width
	m.height = height

	logWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - logWidth - 6

	m.logViewport.Width = logWidth - 2
	m.logViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(logWidth - 4)

	m.ready = true
	m.writeLog()
	m.metaViewport.SetContent(m.writeMetadata())
}

// writeLog rebuilds the transcript for the current viewport width.
func (m *ConsoleUI) writeLog() {
	width := m.logViewport.Width - 6

	var content strings.Builder
	content.WriteString(titleStyle.Render("QUEST ENGINE") + "\n\n")
	content.WriteString("Type help to list commands.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", max(width, 10))) + "\n\n")

	for _, e := range m.transcript {
		switch {
		case e.input != "":
			content.WriteString(renderInput(e.input, width))
		case e.resp != nil:
			content.WriteString(renderResponse(*e.resp, width))
		case e.isErr:
			content.WriteString(errorStyle.Render(e.note))
		default:
			content.WriteString(promptStyle.Render(e.note))
		}
		content.WriteString("\n\n")
	}
	if m.loading {
		content.WriteString(loadingStyle.Render("…"))
	}

	m.logViewport.SetContent(content.String())
	m.logViewport.GotoBottom()
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("PLAYER") + "\n\n")
	content.WriteString(m.player + "\n\n")

	content.WriteString("Focus:\n")
	content.WriteString(orNone(m.focus) + "\n\n")

	content.WriteString("Active quests:\n")
	if len(m.active) == 0 {
		content.WriteString("None\n")
	}
	for _, a := range m.active {
		content.WriteString(fmt.Sprintf("• %s (%d)\n", a.Quest, a.Scene))
	}

	content.WriteString("\nInventory:\n")
	if len(m.inventory) == 0 {
		content.WriteString("Empty\n")
	}
	for _, it := range m.inventory {
		content.WriteString(fmt.Sprintf("• %d× %s\n", it.Quantity, it.Item))
	}

	content.WriteString("\n")
	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• help: Help\n")

	return content.String()
}

func (m ConsoleUI) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case questsLoadedMsg:
		m.loadingQuests = false
		m.quests = msg.quests
		m.err = msg.err
		if m.err == nil && len(m.quests) == 0 {
			m.showPicker = false
			return m, textarea.Blink
		}

	case sidebarMsg:
		m.active = msg.active
		m.inventory = msg.inventory
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.showPicker = false
			return m, textarea.Blink
		case tea.KeyUp:
			if m.selected > 0 {
				m.selected--
			}
		case tea.KeyDown:
			if m.selected < len(m.quests)-1 {
				m.selected++
			}
		case tea.KeyEnter:
			if m.loadingQuests || m.err != nil || len(m.quests) == 0 {
				return m, nil
			}
			m.showPicker = false
			name := m.quests[m.selected].Name
			m.transcript = append(m.transcript, entry{input: "start " + name})
			m.loading = true
			m.writeLog()
			return m, tea.Batch(textarea.Blink, m.dispatch(command.StartQuest{PlayerID: m.player, Quest: name}))
		}
	}
	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case dispatchedMsg:
		m.loading = false
		resp := msg.resp
		m.focus = nextFocus(m.focus, resp)
		m.transcript = append(m.transcript, entry{resp: &resp})
		m.writeLog()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress is saved as you play.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderPicker() string {
	var content strings.Builder

	switch {
	case m.loadingQuests:
		content.WriteString(modalTitleStyle.Render("Loading Quests..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Checking which quests you can start..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(fmt.Sprintf("Failed to load quests: %v", m.err)))
		content.WriteString("\n\n")
		content.WriteString("Press Esc to continue or Ctrl+C to exit")
	default:
		content.WriteString(modalTitleStyle.Render("Start a Quest"))
		content.WriteString("\n\n")
		for i, q := range m.quests {
			label := q.Name
			if q.Difficulty != "" {
				label += " (" + q.Difficulty + ")"
			}
			if i == m.selected {
				content.WriteString(modalSelectedItemStyle.Render("▶ " + label))
			} else {
				content.WriteString(modalItemStyle.Render("  " + label))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to start, Esc to skip"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showPicker {
		return m.renderPicker()
	}

	logWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - logWidth - 6

	logPanel := logPanelStyle.Width(logWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.logViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", max(logWidth-4, 1))),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, logPanel, metaPanel)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
