package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aretw0/marl"
	"github.com/aretw0/marl/pkg/query"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	selectedStyle = lipgloss.NewStyle().Background(lipgloss.Color("#7C3AED")).Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
)

// searchKeyMap defines key bindings for the live search view
type searchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

var searchKeys = searchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "ctrl+p"),
		key.WithHelp("↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "ctrl+n"),
		key.WithHelp("↓", "down"),
	),
	Select: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "open"),
	),
	Quit: key.NewBinding(
		key.WithKeys("esc", "ctrl+c"),
		key.WithHelp("esc", "quit"),
	),
}

type searchResultsMsg struct {
	results []query.Result
}

// searchModel is the model for the live search view
type searchModel struct {
	app     *marl.App
	session *query.Session
	input   textinput.Model
	ch      chan []query.Result

	results []query.Result
	cursor  int
	last    string
	chosen  string
	height  int
}

func newSearchModel(app *marl.App) *searchModel {
	input := textinput.New()
	input.Placeholder = "Search..."
	input.Focus()

	return &searchModel{
		app:     app,
		session: app.Session(150 * time.Millisecond),
		input:   input,
		ch:      make(chan []query.Result, 8),
	}
}

// Init initializes the live search view
func (m *searchModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForResults())
}

// waitForResults relays session deliveries into the update loop.
func (m *searchModel) waitForResults() tea.Cmd {
	return func() tea.Msg {
		return searchResultsMsg{results: <-m.ch}
	}
}

// Update handles messages for the live search view
func (m *searchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case searchResultsMsg:
		m.results = msg.results
		if m.cursor >= len(m.results) {
			m.cursor = 0
		}
		return m, m.waitForResults()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, searchKeys.Quit):
			return m, tea.Quit

		case key.Matches(msg, searchKeys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case key.Matches(msg, searchKeys.Down):
			if m.cursor < len(m.results)-1 {
				m.cursor++
			}
			return m, nil

		case key.Matches(msg, searchKeys.Select):
			if m.cursor >= 0 && m.cursor < len(m.results) {
				m.chosen = m.artifactPath(m.results[m.cursor].ID)
			}
			return m, tea.Quit
		}
	}

	// Update input, resubmit when the text changed
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)

	if raw := m.input.Value(); raw != m.last {
		m.last = raw
		m.session.Submit(context.Background(), raw, searchBody, func(rs []query.Result) {
			m.ch <- rs
		})
	}

	return m, cmd
}

// artifactPath resolves a result to the absolute path of its file.
func (m *searchModel) artifactPath(noteID string) string {
	mapping, ok := m.app.Store.Mapping(noteID)
	if !ok {
		return ""
	}
	return m.app.Dir.Abs(mapping.Path)
}

// View renders the live search view
func (m *searchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("marl search"))
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	if len(m.results) == 0 {
		if m.input.Value() == "" {
			b.WriteString(mutedStyle.Render("Type to search your notes"))
		} else {
			b.WriteString(mutedStyle.Render("No matches"))
		}
	} else {
		max := len(m.results)
		if max > 10 {
			max = 10
		}
		for i := 0; i < max; i++ {
			r := m.results[i]
			line := fmt.Sprintf("%s  %s", r.Title, mutedStyle.Render(r.MatchedIn))
			if i == m.cursor {
				line = selectedStyle.Render("> " + r.Title)
			} else {
				line = "  " + line
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if len(m.results) > 10 {
			b.WriteString(mutedStyle.Render(fmt.Sprintf("... and %d more", len(m.results)-10)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s",
		helpKeyStyle.Render("↑/↓"),
		mutedStyle.Render("navigate"),
		helpKeyStyle.Render("enter"),
		mutedStyle.Render("print path"),
		helpKeyStyle.Render("esc"),
		mutedStyle.Render("quit"),
	))
	b.WriteString("\n")

	return b.String()
}

func runInteractiveSearch(app *marl.App) {
	p := tea.NewProgram(newSearchModel(app), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		fatal("Search UI failed", err)
	}
	if m, ok := final.(*searchModel); ok && m.chosen != "" {
		fmt.Println(m.chosen)
	}
}
