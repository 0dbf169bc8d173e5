package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/camelhole/internal/camel"
	"github.com/epalmerini/camelhole/internal/config"
)

type browserView int

const (
	viewIntegrations browserView = iota
	viewManualEntry
)

type browserModel struct {
	config        config.Config
	width, height int

	view         browserView
	integrations []camel.Integration
	selectedIdx  int
	scrollOff    int

	nameInput textinput.Model

	err     error
	loading bool
}

// Messages
type integrationsLoadedMsg struct {
	integrations []camel.Integration
}

type errorMsg struct {
	err error
}

type startTracingMsg struct {
	integration string
}

type openSessionsMsg struct{}

func newBrowserModel(cfg config.Config) browserModel {
	nameInput := textinput.New()
	nameInput.Placeholder = "integration name or pid"
	nameInput.CharLimit = 100
	nameInput.Width = 40

	return browserModel{
		config:    cfg,
		view:      viewIntegrations,
		nameInput: nameInput,
		loading:   true,
	}
}

func (m browserModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.loadIntegrations(),
	)
}

func (m browserModel) camelConfig() camel.Config {
	return camel.Config{
		Bin:  m.config.CamelBin,
		Args: m.config.CamelArgs,
	}
}

func (m browserModel) loadIntegrations() tea.Cmd {
	cfg := m.camelConfig()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		integrations, err := camel.ListIntegrations(ctx, cfg)
		if err != nil {
			return errorMsg{err: fmt.Errorf("failed to list integrations: %w", err)}
		}
		return integrationsLoadedMsg{integrations: integrations}
	}
}

func (m browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.view == viewManualEntry {
			switch msg.String() {
			case "esc":
				m.view = viewIntegrations
				m.nameInput.Blur()
				return m, nil
			case "enter":
				name := strings.TrimSpace(m.nameInput.Value())
				if name == "" {
					return m, nil
				}
				return m, func() tea.Msg {
					return startTracingMsg{integration: name}
				}
			}
			var cmd tea.Cmd
			m.nameInput, cmd = m.nameInput.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.selectedIdx > 0 {
				m.selectedIdx--
				if m.selectedIdx < m.scrollOff {
					m.scrollOff = m.selectedIdx
				}
			}
		case "down", "j":
			if m.selectedIdx < len(m.integrations)-1 {
				m.selectedIdx++
				visibleItems := m.height - 10
				if m.selectedIdx >= m.scrollOff+visibleItems {
					m.scrollOff++
				}
			}
		case "enter":
			if m.selectedIdx < len(m.integrations) {
				name := m.integrations[m.selectedIdx].Name
				return m, func() tea.Msg {
					return startTracingMsg{integration: name}
				}
			}
		case "i":
			m.view = viewManualEntry
			m.nameInput.Focus()
			return m, textinput.Blink
		case "v":
			return m, func() tea.Msg { return openSessionsMsg{} }
		case "r":
			m.loading = true
			m.err = nil
			return m, m.loadIntegrations()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case integrationsLoadedMsg:
		m.loading = false
		m.integrations = msg.integrations
		if m.selectedIdx >= len(m.integrations) {
			m.selectedIdx = 0
			m.scrollOff = 0
		}

	case errorMsg:
		m.loading = false
		m.err = msg.err

	case startTracingMsg:
		// Handled by the parent to switch to the trace view
		return m, nil
	}

	return m, nil
}

func (m browserModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Width(m.width - 2).Render(
		"🐫 camelhole - Integration Browser",
	)

	var content string
	switch m.view {
	case viewIntegrations:
		content = m.renderIntegrations()
	case viewManualEntry:
		content = m.renderManualEntry()
	}

	help := m.renderHelp()

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		help,
	)
}

func (m browserModel) renderIntegrations() string {
	var sb strings.Builder

	sb.WriteString(fieldNameStyle.Render("Select an integration to trace:"))
	sb.WriteString("\n\n")

	if m.loading {
		sb.WriteString(mutedStyle.Render("  Loading..."))
		return eventListStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	if m.err != nil {
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
		sb.WriteString("\n\n")
		sb.WriteString(mutedStyle.Render("  Press r to retry or i to enter a name manually"))
		return eventListStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	if len(m.integrations) == 0 {
		sb.WriteString(mutedStyle.Render("  No running integrations found"))
		sb.WriteString("\n\n")
		sb.WriteString(mutedStyle.Render("  Press r to refresh or i to enter a name manually"))
		return eventListStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
	}

	visibleItems := m.height - 12
	if visibleItems < 1 {
		visibleItems = 1
	}
	endIdx := m.scrollOff + visibleItems
	if endIdx > len(m.integrations) {
		endIdx = len(m.integrations)
	}
	if m.scrollOff < 0 {
		m.scrollOff = 0
	}

	for i := m.scrollOff; i < endIdx; i++ {
		integ := m.integrations[i]
		stateStr := mutedStyle.Render(fmt.Sprintf("[%s]", integ.State))
		if strings.EqualFold(integ.State, "Running") {
			stateStr = statusDoneStyle.Render(fmt.Sprintf("[%s]", integ.State))
		}
		uptimeStr := ""
		if integ.Uptime != "" {
			uptimeStr = mutedStyle.Render(" up " + integ.Uptime)
		}

		line := fmt.Sprintf("%s %s pid %d%s", integ.Name, stateStr, integ.Pid, uptimeStr)

		if i == m.selectedIdx {
			sb.WriteString(selectedEventStyle.Width(m.width - 8).Render("▶ " + line))
		} else {
			sb.WriteString("  " + line)
		}
		sb.WriteString("\n")
	}

	return eventListStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
}

func (m browserModel) renderManualEntry() string {
	var sb strings.Builder

	sb.WriteString(fieldNameStyle.Render("Trace an integration by name or pid"))
	sb.WriteString("\n\n")

	sb.WriteString(selectedEventStyle.Render("▶ Integration: "))
	sb.WriteString(m.nameInput.View())
	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("    (as shown by the CLI's integration listing)"))
	sb.WriteString("\n\n")

	sb.WriteString(helpStyle.Render("Press Enter to start tracing, Esc to cancel"))

	return detailPanelStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())
}

func (m browserModel) renderHelp() string {
	var keys []struct{ key, desc string }

	switch m.view {
	case viewIntegrations:
		keys = []struct{ key, desc string }{
			{"↑/k", "up"},
			{"↓/j", "down"},
			{"enter", "trace"},
			{"i", "manual"},
			{"v", "sessions"},
			{"r", "refresh"},
			{"q", "quit"},
		}
	case viewManualEntry:
		keys = []struct{ key, desc string }{
			{"enter", "trace"},
			{"esc", "cancel"},
		}
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", helpKeyStyle.Render(k.key), k.desc))
	}

	return helpStyle.Render(strings.Join(parts, "  │  "))
}
