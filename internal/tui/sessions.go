package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/camelhole/internal/config"
	"github.com/epalmerini/camelhole/internal/db"
)

const sessionListLimit = 100

type sessionsModel struct {
	config        config.Config
	store         db.Store
	width, height int

	sessions    []db.Session
	selectedIdx int
	scrollOff   int

	// Full-text search over captured events
	ftsMode   bool
	ftsGlobal bool
	ftsInput  textinput.Model

	err     error
	loading bool
}

type sessionsLoadedMsg struct {
	sessions []db.Session
}

type sessionsErrorMsg struct {
	err error
}

func newSessionsModel(cfg config.Config, store db.Store) sessionsModel {
	fi := textinput.New()
	fi.Placeholder = "full-text query"
	fi.CharLimit = 100
	fi.Width = 40

	return sessionsModel{
		config:   cfg,
		store:    store,
		ftsInput: fi,
		loading:  true,
	}
}

func (m sessionsModel) Init() tea.Cmd {
	return m.loadSessions()
}

func (m sessionsModel) loadSessions() tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sessions, err := store.ListSessions(ctx, sessionListLimit)
		if err != nil {
			return sessionsErrorMsg{err: err}
		}
		return sessionsLoadedMsg{sessions: sessions}
	}
}

func (m sessionsModel) replaySession(sess db.Session) tea.Cmd {
	store := m.store
	limit := int64(m.config.EventLimit())
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		events, err := store.ListEventsBySession(ctx, sess.ID, limit, 0)
		if err != nil {
			return sessionsErrorMsg{err: err}
		}
		return replaySessionMsg{session: sess, events: events}
	}
}

func (m sessionsModel) searchEvents(query string, sess db.Session, global bool) tea.Cmd {
	store := m.store
	limit := int64(m.config.EventLimit())
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var events []db.Event
		var err error
		if global {
			events, err = store.SearchEvents(ctx, query, limit, 0)
		} else {
			events, err = store.SearchEventsInSession(ctx, query, sess.ID, limit, 0)
		}
		if err != nil {
			return sessionsErrorMsg{err: err}
		}
		return replaySessionMsg{session: sess, events: events}
	}
}

func (m sessionsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.ftsMode {
			switch msg.String() {
			case "esc":
				m.ftsMode = false
				m.ftsInput.Blur()
				return m, nil
			case "enter":
				query := strings.TrimSpace(m.ftsInput.Value())
				m.ftsMode = false
				m.ftsInput.Blur()
				if query == "" || len(m.sessions) == 0 {
					return m, nil
				}
				return m, m.searchEvents(query, m.sessions[m.selectedIdx], m.ftsGlobal)
			}
			var cmd tea.Cmd
			m.ftsInput, cmd = m.ftsInput.Update(msg)
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
			if m.selectedIdx < len(m.sessions)-1 {
				m.selectedIdx++
				visibleItems := m.height - 10
				if m.selectedIdx >= m.scrollOff+visibleItems {
					m.scrollOff++
				}
			}
		case "enter":
			if m.selectedIdx < len(m.sessions) {
				return m, m.replaySession(m.sessions[m.selectedIdx])
			}
		case "/":
			if len(m.sessions) > 0 {
				m.ftsMode = true
				m.ftsGlobal = false
				m.ftsInput.SetValue("")
				m.ftsInput.Focus()
				return m, textinput.Blink
			}
		case "s":
			if len(m.sessions) > 0 {
				m.ftsMode = true
				m.ftsGlobal = true
				m.ftsInput.SetValue("")
				m.ftsInput.Focus()
				return m, textinput.Blink
			}
		case "r":
			m.loading = true
			m.err = nil
			return m, m.loadSessions()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case sessionsLoadedMsg:
		m.loading = false
		m.sessions = msg.sessions
		if m.selectedIdx >= len(m.sessions) {
			m.selectedIdx = 0
			m.scrollOff = 0
		}

	case sessionsErrorMsg:
		m.loading = false
		m.err = msg.err
	}

	return m, nil
}

func (m sessionsModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := headerStyle.Width(m.width - 2).Render("🐫 camelhole - Sessions")

	var sb strings.Builder
	sb.WriteString(fieldNameStyle.Render("Captured trace sessions (this run only):"))
	sb.WriteString("\n\n")

	switch {
	case m.loading:
		sb.WriteString(mutedStyle.Render("  Loading..."))
	case m.err != nil:
		sb.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	case len(m.sessions) == 0:
		sb.WriteString(mutedStyle.Render("  No sessions captured yet"))
	default:
		visibleItems := m.height - 12
		if visibleItems < 1 {
			visibleItems = 1
		}
		endIdx := m.scrollOff + visibleItems
		if endIdx > len(m.sessions) {
			endIdx = len(m.sessions)
		}

		for i := m.scrollOff; i < endIdx; i++ {
			sess := m.sessions[i]
			state := tracingStyle.Render("live")
			if sess.EndedAt.Valid {
				state = mutedStyle.Render("ended")
			}
			line := fmt.Sprintf("#%d %s %s %s %s",
				sess.ID,
				sess.Integration,
				state,
				mutedStyle.Render(sess.StartedAt.Format("15:04:05")),
				mutedStyle.Render(fmt.Sprintf("%d events", sess.EventCount)),
			)

			if i == m.selectedIdx {
				sb.WriteString(selectedEventStyle.Width(m.width - 8).Render("▶ " + line))
			} else {
				sb.WriteString("  " + line)
			}
			sb.WriteString("\n")
		}
	}

	content := eventListStyle.Width(m.width - 4).Height(m.height - 8).Render(sb.String())

	var bottomBar string
	if m.ftsMode {
		scope := "session"
		if m.ftsGlobal {
			scope = "all sessions"
		}
		bottomBar = helpStyle.Render(fmt.Sprintf("Search %s: ", scope)) + m.ftsInput.View() +
			helpStyle.Render("  (Enter to search, Esc to cancel)")
	} else {
		keys := []struct{ key, desc string }{
			{"↑/k", "up"},
			{"↓/j", "down"},
			{"enter", "replay"},
			{"/", "search session"},
			{"s", "search all"},
			{"r", "refresh"},
			{"b", "back"},
			{"q", "quit"},
		}
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s %s", helpKeyStyle.Render(k.key), k.desc))
		}
		bottomBar = helpStyle.Render(strings.Join(parts, "  │  "))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, content, bottomBar)
}
