package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rpp/cmd"
	"rpp/plugin"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxLogLines = 50

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().Padding(0, 2)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true).
			Padding(0, 1)
)

// activityMsg carries a presence's new activity
type activityMsg struct {
	presence string
	activity plugin.Activity
}

// logMsg appends a line to the log pane
type logMsg struct {
	source string
	text   string
}

type logLine struct {
	source string
	text   string
}

type model struct {
	ctx        context.Context
	router     *cmd.Router
	activities map[string]plugin.Activity
	log        []logLine
	input      string
	width      int
	height     int
}

func newModel(ctx context.Context, router *cmd.Router) *model {
	return &model{
		ctx:        ctx,
		router:     router,
		activities: make(map[string]plugin.Activity),
		log:        []logLine{{source: "system", text: "Type /help for commands."}},
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if strings.TrimSpace(m.input) == "" {
				return m, nil
			}
			input := m.input
			m.input = ""
			m.appendLog("you", input)
			return m, m.runCommand(input)

		case tea.KeyBackspace, tea.KeyDelete:
			if len(m.input) > 0 {
				r := []rune(m.input)
				m.input = string(r[:len(r)-1])
			}

		case tea.KeySpace:
			m.input += " "

		case tea.KeyRunes:
			m.input += string(msg.Runes)
		}

	case activityMsg:
		m.activities[msg.presence] = msg.activity

	case logMsg:
		m.appendLog(msg.source, msg.text)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// runCommand routes input off the update loop and reports back as a logMsg
func (m *model) runCommand(input string) tea.Cmd {
	ctx, router := m.ctx, m.router
	return func() tea.Msg {
		result, err := router.Route(ctx, input)
		if err != nil {
			return logMsg{source: "error", text: err.Error()}
		}
		if result == nil || result.Output == "" {
			return nil
		}
		return logMsg{source: "system", text: strings.TrimRight(result.Output, "\n")}
	}
}

func (m *model) appendLog(source, text string) {
	m.log = append(m.log, logLine{source: source, text: text})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Rich Presence"))
	s.WriteString("\n\n")

	names := make([]string, 0, len(m.activities))
	for name := range m.activities {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		s.WriteString(rowStyle.Render(dimStyle.Render("no activity yet")))
		s.WriteString("\n")
	}
	for _, name := range names {
		s.WriteString(rowStyle.Render(nameStyle.Render(name) + "  " + describe(m.activities[name])))
		s.WriteString("\n")
	}

	s.WriteString("\n")

	avail := m.height - len(names) - 8
	if avail < 1 {
		avail = 10
	}
	start := 0
	if len(m.log) > avail {
		start = len(m.log) - avail
	}
	for _, line := range m.log[start:] {
		var prefix string
		style := dimStyle
		switch line.source {
		case "you":
			prefix = "> "
			style = nameStyle
		case "error":
			prefix = "error: "
			style = errorStyle
		case "system":
		default:
			prefix = fmt.Sprintf("[%s] ", line.source)
		}
		s.WriteString(rowStyle.Render(style.Render(prefix) + line.text))
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(inputStyle.Render("> " + m.input))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("Ctrl+C or Esc to quit"))

	return s.String()
}

func describe(a plugin.Activity) string {
	parts := make([]string, 0, 3)
	if a.Details != "" {
		parts = append(parts, a.Details)
	}
	if a.State != "" {
		parts = append(parts, a.State)
	}
	if !a.StartedAt.IsZero() {
		parts = append(parts, "since "+a.StartedAt.Format(time.Kitchen))
	}
	return strings.Join(parts, " · ")
}

func payloadText(payload interface{}) string {
	if str, ok := payload.(string); ok {
		return str
	}
	return fmt.Sprintf("%v", payload)
}
