package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/epalmerini/camelhole/internal/camel"
	"github.com/epalmerini/camelhole/internal/config"
	"github.com/epalmerini/camelhole/internal/db"
	"github.com/epalmerini/camelhole/internal/trace"
)

type tracingState int

const (
	stateStarting tracingState = iota
	stateTracing
	stateStopped
	stateFailed
)

type model struct {
	config      config.Config
	profileName string
	events      []Event
	selectedIdx int
	eventCount  int
	state       tracingState
	traceErr    error
	// CLI-side tracing enabled; toggled with the trace stop/start command
	traceEnabled  bool
	replayMode    bool
	width, height int
	showRaw       bool
	paused        bool
	evtChan       <-chan trace.ExchangeEvent

	// Tracer lifecycle
	tracer *camel.Tracer

	// Persistence (injected store + per-session state)
	store       db.Store
	asyncWriter *db.AsyncWriter
	sessionID   int64

	// Vim command state
	vimKeys VimKeyState

	// Search
	searchMode      bool
	searchQuery     string
	searchInput     textinput.Model
	searchResults   []int
	searchResultIdx int

	// Filter (hides non-matching events from the list)
	filterMode  bool
	filterExpr  string
	filterInput textinput.Model
	filtered    []int

	// Bookmarks
	bookmarks map[int]bool

	// UI state
	splitRatio   float64
	compactMode  bool
	showHelp     bool
	timestampRel bool

	// Throughput
	stats stats

	// New events indicator (when paused)
	newEvtCount int

	// Components
	spinner        spinner.Model
	detailViewport viewport.Model

	// Status messages (brief confirmations)
	statusMsg     string
	statusMsgTime time.Time
}

// Tea messages
type evtReceived struct {
	ev trace.ExchangeEvent
}

type tracerStartedMsg struct {
	tracer      *camel.Tracer
	evtChan     <-chan trace.ExchangeEvent
	asyncWriter *db.AsyncWriter
	sessionID   int64
}

type tracerErrorMsg struct {
	err error
}

type streamClosedMsg struct{}

type traceActionDoneMsg struct {
	action string
	err    error
}

type clearStatusMsg struct{}

type replaySessionMsg struct {
	session db.Session
	events  []db.Event
}

func initialModel(cfg config.Config, store db.Store, profileName string) model {
	si := textinput.New()
	si.Placeholder = "Search..."
	si.CharLimit = 100
	si.Width = 30

	fi := textinput.New()
	fi.Placeholder = "Filter (step:, status:, id:, hdr:, body:, ep:, re:)"
	fi.CharLimit = 100
	fi.Width = 40

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	splitRatio := cfg.DefaultSplitRatio
	if splitRatio == 0 {
		splitRatio = 0.5
	}

	return model{
		config:         cfg,
		profileName:    profileName,
		store:          store,
		events:         make([]Event, 0, cfg.EventLimit()),
		state:          stateStarting,
		traceEnabled:   true,
		detailViewport: viewport.New(80, 20),
		vimKeys:        NewVimKeyState(),
		bookmarks:      make(map[int]bool),
		splitRatio:     splitRatio,
		compactMode:    cfg.CompactMode,
		searchInput:    si,
		filterInput:    fi,
		spinner:        sp,
	}
}

// initialReplayModel shows a stored session's events instead of a live stream.
func initialReplayModel(cfg config.Config, store db.Store, sess db.Session, stored []db.Event) model {
	m := initialModel(cfg, store, sess.Profile)
	m.config.Integration = sess.Integration
	m.state = stateStopped
	m.replayMode = true
	m.sessionID = sess.ID

	m.events = make([]Event, 0, len(stored))
	for i, ev := range stored {
		m.events = append(m.events, Event{
			ID:         i + 1,
			Historical: true,
			ReceivedAt: ev.CapturedAt,
			ExchangeEvent: trace.ExchangeEvent{
				Timestamp:  ev.Timestamp,
				Step:       ev.Step,
				Status:     ev.Status,
				Headers:    ev.Headers,
				Body:       ev.Body,
				ExchangeID: ev.ExchangeID,
			},
		})
	}
	m.eventCount = len(m.events)
	return m
}

func (m model) Init() tea.Cmd {
	if m.replayMode {
		return tea.EnterAltScreen
	}
	return tea.Batch(
		tea.EnterAltScreen,
		m.startTracerCmd(),
		m.spinner.Tick,
	)
}

func (m model) startTracerCmd() tea.Cmd {
	cfg := m.config
	store := m.store
	profile := m.profileName
	return func() tea.Msg {
		var opts []trace.Option
		if cfg.EarlyEmitDelay > 0 {
			opts = append(opts, trace.WithEarlyEmitDelay(cfg.EarlyEmitDelay))
		}
		if cfg.BodyIdleDelay > 0 {
			opts = append(opts, trace.WithBodyIdleDelay(cfg.BodyIdleDelay))
		}

		tracer := camel.NewTracer(camel.Config{
			Bin:         cfg.CamelBin,
			Args:        cfg.CamelArgs,
			Integration: cfg.Integration,
		}, opts...)

		events, err := tracer.Start(context.Background())
		if err != nil {
			return tracerErrorMsg{err: err}
		}

		var writer *db.AsyncWriter
		var sessionID int64
		if store != nil {
			sessionID, err = store.CreateSession(context.Background(), cfg.Integration, profile)
			if err == nil {
				writer = db.NewAsyncWriter(store, sessionID)
			}
		}

		return tracerStartedMsg{
			tracer:      tracer,
			evtChan:     events,
			asyncWriter: writer,
			sessionID:   sessionID,
		}
	}
}

func (m model) waitForEvent() tea.Cmd {
	ch := m.evtChan
	return func() tea.Msg {
		if ch == nil {
			return nil
		}
		ev, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return evtReceived{ev: ev}
	}
}

// cleanup releases the tracer process and persistence resources. Safe to
// call on a zero model.
func (m *model) cleanup() {
	if m.tracer != nil {
		_ = m.tracer.Close()
		m.tracer = nil
	}
	if m.asyncWriter != nil {
		m.asyncWriter.Close()
		m.asyncWriter = nil
	}
	if m.store != nil && m.sessionID != 0 && !m.replayMode {
		_ = m.store.EndSession(context.Background(), m.sessionID)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle search mode input
		if m.searchMode {
			switch msg.String() {
			case "esc":
				m.searchMode = false
				m.searchQuery = ""
				m.searchResults = nil
				m.searchInput.Blur()
				return m, nil
			case "enter":
				m.searchMode = false
				m.searchQuery = m.searchInput.Value()
				m.searchInput.Blur()
				m.performSearch()
				return m, nil
			default:
				var cmd tea.Cmd
				m.searchInput, cmd = m.searchInput.Update(msg)
				return m, cmd
			}
		}

		// Handle filter mode input
		if m.filterMode {
			switch msg.String() {
			case "esc":
				m.filterMode = false
				m.filterInput.Blur()
				return m, nil
			case "enter":
				m.filterMode = false
				m.filterExpr = m.filterInput.Value()
				m.filterInput.Blur()
				m.recomputeFilter()
				return m, nil
			default:
				var cmd tea.Cmd
				m.filterInput, cmd = m.filterInput.Update(msg)
				return m, cmd
			}
		}

		// Handle help overlay
		if m.showHelp {
			if msg.String() == "?" || msg.String() == "esc" || msg.String() == "q" {
				m.showHelp = false
				return m, nil
			}
			return m, nil
		}

		// Handle special keys that bypass vim handler
		switch msg.String() {
		case "ctrl+c":
			m.cleanup()
			return m, tea.Quit
		case "ctrl+u":
			m.moveBy(-m.visibleItems() / 2)
			return m, nil
		case "ctrl+d":
			m.moveBy(m.visibleItems() / 2)
			return m, nil
		case "ctrl+f":
			m.moveBy(m.visibleItems())
			return m, nil
		case "ctrl+b":
			m.moveBy(-m.visibleItems())
			return m, nil
		case "ctrl+j":
			m.detailViewport.YOffset++
			return m, nil
		case "ctrl+k":
			if m.detailViewport.YOffset > 0 {
				m.detailViewport.YOffset--
			}
			return m, nil
		case "up":
			m.moveBy(-1)
			return m, nil
		case "down":
			m.moveBy(1)
			return m, nil
		}

		// Process through vim key handler
		result := m.vimKeys.ProcessKey(msg.String())
		if result.Action == "pending" {
			return m, nil
		}

		switch result.Action {
		case "move_down":
			m.moveBy(result.Count)
		case "move_up":
			m.moveBy(-result.Count)
		case "go_top":
			m.goTop()
		case "go_bottom":
			m.goBottom()
		case "search_start":
			m.searchMode = true
			m.searchInput.SetValue("")
			m.searchInput.Focus()
			return m, textinput.Blink
		case "search_next":
			m.nextSearchResult()
		case "search_prev":
			m.prevSearchResult()
		case "filter_start":
			m.filterMode = true
			m.filterInput.SetValue(m.filterExpr)
			m.filterInput.Focus()
			return m, textinput.Blink
		case "filter_clear":
			m.filterExpr = ""
			m.filtered = nil
		case "yank":
			return m, m.yankEvent()
		case "export":
			return m, m.exportEvents()
		case "bookmark_toggle":
			m.toggleBookmark()
		case "bookmark_next":
			m.nextBookmark()
		case "toggle_compact":
			m.compactMode = !m.compactMode
		case "toggle_timestamp":
			m.timestampRel = !m.timestampRel
		case "toggle_raw":
			m.showRaw = !m.showRaw
		case "toggle_help":
			m.showHelp = !m.showHelp
		case "resize_left":
			if m.splitRatio > 0.2 {
				m.splitRatio -= 0.05
				return m, m.saveSplitRatio()
			}
		case "resize_right":
			if m.splitRatio < 0.8 {
				m.splitRatio += 0.05
				return m, m.saveSplitRatio()
			}
		case "trace_toggle":
			return m, m.toggleTrace()
		case "trace_clear":
			return m, m.clearTrace()
		case "pause_toggle":
			m.paused = !m.paused
			if !m.paused {
				m.newEvtCount = 0
			}
		case "clear":
			m.clearLocal()
		case "back":
			// Handled by parent app model
		case "quit":
			m.cleanup()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		contentHeight := m.height - 5 // header(3) + status(1) + help(1)
		if contentHeight < 3 {
			contentHeight = 3
		}
		listWidth := int(float64(m.width) * m.splitRatio)
		if listWidth < 20 {
			listWidth = 20
		}
		detailWidth := m.width - listWidth - 1
		if detailWidth < 20 {
			detailWidth = 20
		}

		m.detailViewport.Width = detailWidth - 4
		m.detailViewport.Height = contentHeight - 2

	case tracerStartedMsg:
		m.state = stateTracing
		m.tracer = msg.tracer
		m.evtChan = msg.evtChan
		m.asyncWriter = msg.asyncWriter
		m.sessionID = msg.sessionID
		cmds = append(cmds, m.waitForEvent())

	case tracerErrorMsg:
		m.state = stateFailed
		m.traceErr = msg.err

	case streamClosedMsg:
		m.state = stateStopped

	case evtReceived:
		if m.asyncWriter != nil {
			m.asyncWriter.Save(&db.EventRecord{
				Timestamp:  msg.ev.Timestamp,
				Step:       msg.ev.Step,
				Status:     msg.ev.Status,
				ExchangeID: msg.ev.ExchangeID,
				Headers:    msg.ev.Headers,
				Body:       msg.ev.Body,
			})
		}
		if m.paused {
			m.newEvtCount++
		} else {
			m.appendEvent(msg.ev)
		}
		cmds = append(cmds, m.waitForEvent())

	case traceActionDoneMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setStatusMsg(fmt.Sprintf("trace %s failed: %v", msg.action, msg.err)))
		} else {
			switch msg.action {
			case "stop":
				m.traceEnabled = false
				cmds = append(cmds, m.setStatusMsg("Tracing stopped"))
			case "start":
				m.traceEnabled = true
				cmds = append(cmds, m.setStatusMsg("Tracing started"))
			case "clear":
				m.clearLocal()
				cmds = append(cmds, m.setStatusMsg("Trace cleared"))
			}
		}

	case spinner.TickMsg:
		if m.state == stateStarting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case clearStatusMsg:
		m.statusMsg = ""
	}

	return m, tea.Batch(cmds...)
}

func (m *model) appendEvent(ev trace.ExchangeEvent) {
	m.eventCount++
	m.stats.record(time.Now(), len(ev.Body))
	m.events = append(m.events, Event{
		ID:            m.eventCount,
		ReceivedAt:    time.Now(),
		ExchangeEvent: ev,
	})

	limit := m.config.EventLimit()
	if len(m.events) > limit {
		// Drop the oldest; bookmarks are keyed by ID so they survive the trim
		dropped := m.events[0]
		delete(m.bookmarks, dropped.ID)
		m.events = m.events[1:]
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
	}

	// Auto-scroll to latest if at bottom
	if m.selectedIdx == len(m.events)-2 {
		m.selectedIdx = len(m.events) - 1
	}

	if m.filterExpr != "" {
		m.recomputeFilter()
	}
}

func (m *model) clearLocal() {
	m.events = m.events[:0]
	m.selectedIdx = 0
	m.eventCount = 0
	m.bookmarks = make(map[int]bool)
	m.newEvtCount = 0
	m.filtered = nil
	m.searchResults = nil
	if m.filterExpr != "" {
		m.recomputeFilter()
	}
}

func (m *model) recomputeFilter() {
	m.filtered = computeFilteredIndices(m.events, m.filterExpr)
	if m.filtered != nil && !isVisible(m.filtered, m.selectedIdx) {
		m.selectedIdx = nextVisible(m.filtered, m.selectedIdx)
	}
}

func (m model) toggleTrace() tea.Cmd {
	tracer := m.tracer
	if tracer == nil {
		return nil
	}
	action := "stop"
	if !m.traceEnabled {
		action = "start"
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		if action == "stop" {
			err = tracer.StopTrace(ctx)
		} else {
			err = tracer.StartTrace(ctx)
		}
		return traceActionDoneMsg{action: action, err: err}
	}
}

func (m model) clearTrace() tea.Cmd {
	tracer := m.tracer
	if tracer == nil {
		return nil
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return traceActionDoneMsg{action: "clear", err: tracer.ClearTrace(ctx)}
	}
}

func (m model) saveSplitRatio() tea.Cmd {
	dir := m.config.ConfigDir
	ratio := m.splitRatio
	return func() tea.Msg {
		_ = config.SaveSplitRatio(dir, ratio)
		return nil
	}
}

func (m *model) moveBy(delta int) {
	if len(m.events) == 0 {
		return
	}

	newIdx := m.selectedIdx
	if m.filtered != nil {
		steps := delta
		if steps < 0 {
			steps = -steps
		}
		for i := 0; i < steps; i++ {
			if delta > 0 {
				newIdx = nextVisible(m.filtered, newIdx)
			} else {
				newIdx = prevVisible(m.filtered, newIdx)
			}
		}
	} else {
		newIdx += delta
		if newIdx < 0 {
			newIdx = 0
		}
		if newIdx >= len(m.events) {
			newIdx = len(m.events) - 1
		}
	}

	// Reset detail scroll when selection changes
	if newIdx != m.selectedIdx {
		m.detailViewport.YOffset = 0
	}
	m.selectedIdx = newIdx
}

func (m *model) goTop() {
	if m.filtered != nil {
		if len(m.filtered) > 0 {
			m.selectedIdx = m.filtered[0]
		}
	} else {
		m.selectedIdx = 0
	}
	m.detailViewport.YOffset = 0
}

func (m *model) goBottom() {
	if m.filtered != nil {
		if len(m.filtered) > 0 {
			m.selectedIdx = m.filtered[len(m.filtered)-1]
		}
	} else if len(m.events) > 0 {
		m.selectedIdx = len(m.events) - 1
	}
	m.detailViewport.YOffset = 0
}

func (m model) visibleItems() int {
	items := m.height - 6
	if items < 1 {
		return 1
	}
	return items
}

func (m *model) performSearch() {
	m.searchResults = nil
	m.searchResultIdx = 0
	if m.searchQuery == "" {
		return
	}

	m.searchResults = computeFilteredIndices(m.events, m.searchQuery)

	// Jump to first result
	if len(m.searchResults) > 0 {
		m.selectedIdx = m.searchResults[0]
		m.detailViewport.YOffset = 0
	}
}

func (m *model) nextSearchResult() {
	if len(m.searchResults) == 0 {
		return
	}
	m.searchResultIdx = (m.searchResultIdx + 1) % len(m.searchResults)
	m.selectedIdx = m.searchResults[m.searchResultIdx]
	m.detailViewport.YOffset = 0
}

func (m *model) prevSearchResult() {
	if len(m.searchResults) == 0 {
		return
	}
	m.searchResultIdx--
	if m.searchResultIdx < 0 {
		m.searchResultIdx = len(m.searchResults) - 1
	}
	m.selectedIdx = m.searchResults[m.searchResultIdx]
	m.detailViewport.YOffset = 0
}

func (m *model) toggleBookmark() {
	if len(m.events) == 0 {
		return
	}
	evtID := m.events[m.selectedIdx].ID
	if m.bookmarks[evtID] {
		delete(m.bookmarks, evtID)
	} else {
		m.bookmarks[evtID] = true
	}
}

func (m *model) nextBookmark() {
	if len(m.bookmarks) == 0 {
		return
	}

	// Find next bookmarked event after current position
	for i := m.selectedIdx + 1; i < len(m.events); i++ {
		if m.bookmarks[m.events[i].ID] {
			m.selectedIdx = i
			m.detailViewport.YOffset = 0
			return
		}
	}
	// Wrap around
	for i := 0; i <= m.selectedIdx && i < len(m.events); i++ {
		if m.bookmarks[m.events[i].ID] {
			m.selectedIdx = i
			m.detailViewport.YOffset = 0
			return
		}
	}
}

// exportEvent is the JSON shape used by yank and export.
type exportEvent struct {
	ID         int               `json:"id"`
	Timestamp  string            `json:"timestamp"`
	Step       string            `json:"step"`
	Status     string            `json:"status,omitempty"`
	ExchangeID string            `json:"exchange_id,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

func exportPayload(events []Event) []exportEvent {
	exports := make([]exportEvent, len(events))
	for i, evt := range events {
		exports[i] = exportEvent{
			ID:         evt.ID,
			Timestamp:  evt.Timestamp,
			Step:       evt.Step,
			Status:     evt.Status,
			ExchangeID: evt.ExchangeID,
			Headers:    evt.Headers,
			Body:       evt.Body,
		}
	}
	return exports
}

func (m *model) yankEvent() tea.Cmd {
	if len(m.events) == 0 || m.selectedIdx >= len(m.events) {
		return nil
	}

	payload := exportPayload(m.events[m.selectedIdx : m.selectedIdx+1])
	content, _ := json.MarshalIndent(payload[0], "", "  ")

	if err := clipboard.WriteAll(string(content)); err != nil {
		return m.setStatusMsg("Copy failed: " + err.Error())
	}
	return m.setStatusMsg("Copied to clipboard")
}

func (m *model) exportEvents() tea.Cmd {
	if len(m.events) == 0 {
		return m.setStatusMsg("No events to export")
	}

	filename := fmt.Sprintf("camelhole-export-%s.json", time.Now().Format("20060102-150405"))
	data, _ := json.MarshalIndent(exportPayload(m.events), "", "  ")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return m.setStatusMsg("Export failed: " + err.Error())
	}
	return m.setStatusMsg(fmt.Sprintf("Exported to %s", filename))
}

func (m *model) setStatusMsg(msg string) tea.Cmd {
	m.statusMsg = msg
	m.statusMsgTime = time.Now()
	return tea.Tick(3*time.Second, func(_ time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (m model) View() string {
	if m.width == 0 {
		return m.spinner.View() + " Loading..."
	}

	if m.showHelp {
		return m.renderHelpOverlay()
	}

	contentHeight := m.height - 5
	if contentHeight < 3 {
		contentHeight = 3
	}

	listWidth := int(float64(m.width) * m.splitRatio)
	if listWidth < 20 {
		listWidth = 20
	}
	detailWidth := m.width - listWidth - 1
	if detailWidth < 20 {
		detailWidth = 20
	}

	header := headerStyle.Width(m.width - 2).Render("camelhole")
	status := m.renderStatusBar()

	eventList := m.renderEventList(listWidth, contentHeight)
	detailPanel := m.renderDetailPanel(detailWidth, contentHeight)

	content := lipgloss.JoinHorizontal(lipgloss.Top, eventList, detailPanel)

	var bottomBar string
	switch {
	case m.searchMode:
		bottomBar = helpStyle.Render("Search: ") + m.searchInput.View() + helpStyle.Render("  (Enter to search, Esc to cancel)")
	case m.filterMode:
		bottomBar = helpStyle.Render("Filter: ") + m.filterInput.View() + helpStyle.Render("  (Enter to apply, Esc to cancel)")
	default:
		bottomBar = m.renderHelpBar()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, status, content, bottomBar)
}

func (m model) renderStatusBar() string {
	var traceStatus string
	switch m.state {
	case stateTracing:
		if m.traceEnabled {
			traceStatus = tracingStyle.Render("● Tracing")
		} else {
			traceStatus = stoppedStyle.Render("◌ Trace disabled")
		}
	case stateStarting:
		traceStatus = statusBarStyle.Render(m.spinner.View() + " Starting...")
	case stateFailed:
		errMsg := ""
		if m.traceErr != nil {
			errMsg = fmt.Sprintf(" (%s)", m.traceErr.Error())
		}
		traceStatus = stoppedStyle.Render("○ Failed" + errMsg)
	default:
		if m.replayMode {
			traceStatus = statusBarStyle.Render(fmt.Sprintf("▶ Replay session %d", m.sessionID))
		} else {
			traceStatus = stoppedStyle.Render("○ Stopped")
		}
	}

	integration := statusBarStyle.Render(fmt.Sprintf("Integration: %s", m.config.Integration))

	var evtCount string
	if m.filtered != nil {
		evtCount = statusBarStyle.Render(fmt.Sprintf("Events: %d/%d", len(m.filtered), len(m.events)))
	} else {
		evtCount = statusBarStyle.Render(fmt.Sprintf("Events: %d", len(m.events)))
	}

	rate := statusBarStyle.Render(formatRate(m.stats.evtPerSec(time.Now())) + " avg " + formatBytes(m.stats.avgSize()))

	pausedStatus := ""
	if m.paused {
		pausedStatus = stoppedStyle.Render(" [PAUSED]")
		if m.newEvtCount > 0 {
			pausedStatus += " " + newEventStyle.Render(fmt.Sprintf("+%d new", m.newEvtCount))
		}
	}

	searchStatus := ""
	if m.searchQuery != "" {
		if len(m.searchResults) > 0 {
			searchStatus = statusBarStyle.Render(fmt.Sprintf(" [%d/%d]", m.searchResultIdx+1, len(m.searchResults)))
		} else {
			searchStatus = mutedStyle.Render(" (no matches)")
		}
	}

	filterStatus := ""
	if m.filterExpr != "" {
		filterStatus = mutedStyle.Render(fmt.Sprintf(" f:%s", m.filterExpr))
	}

	statusMsgDisplay := ""
	if m.statusMsg != "" && time.Since(m.statusMsgTime) < 3*time.Second {
		statusMsgDisplay = "  " + confirmationStyle.Render(m.statusMsg)
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Left,
		traceStatus,
		pausedStatus,
		searchStatus,
		filterStatus,
		statusMsgDisplay,
		"  │  ",
		integration,
		"  │  ",
		evtCount,
		"  │  ",
		rate,
	)
}

func (m model) renderEventList(width, height int) string {
	innerHeight := height - 2
	if innerHeight < 1 {
		innerHeight = 1
	}

	if len(m.events) == 0 {
		emptyContent := strings.Join([]string{
			"",
			emptyStateStyle.Render("No exchanges yet"),
			"",
			mutedStyle.Render(fmt.Sprintf("Tracing: %s", m.config.Integration)),
			"",
			mutedStyle.Render("Press ? for help"),
		}, "\n")
		return eventListStyle.Width(width).Height(height).Render(emptyContent)
	}

	// Rows to draw: either all events or the filtered subset
	rows := m.filtered
	if rows == nil {
		rows = make([]int, len(m.events))
		for i := range m.events {
			rows[i] = i
		}
	}

	selectedPos := 0
	for p, idx := range rows {
		if idx == m.selectedIdx {
			selectedPos = p
			break
		}
	}

	startPos := 0
	if selectedPos >= innerHeight {
		startPos = selectedPos - innerHeight + 1
	}
	endPos := startPos + innerHeight
	if endPos > len(rows) {
		endPos = len(rows)
	}

	items := make([]string, 0, innerHeight)
	innerWidth := width - 4

	for p := startPos; p < endPos; p++ {
		i := rows[p]
		evt := m.events[i]

		// Source indicator: H=historical (replayed), L=live
		sourceIndicator := "L"
		if evt.Historical {
			sourceIndicator = "H"
		}

		prefix := sourceIndicator + " "
		if m.bookmarks[evt.ID] {
			prefix = sourceIndicator + "*"
		}
		if i == m.selectedIdx {
			prefix = sourceIndicator + ">"
		}

		var line string
		if m.compactMode {
			step := truncate(evt.Step, innerWidth-3)
			line = prefix + step
		} else {
			ts := m.formatEventTime(evt)
			step := truncate(evt.Step, innerWidth-len(ts)-4)
			line = fmt.Sprintf("%s%s %s", prefix, ts, step)
		}

		if i == m.selectedIdx {
			line = selectedEventStyle.Render(line)
		} else if m.bookmarks[evt.ID] {
			line = bookmarkStyle.Render(line)
		} else if evt.Historical {
			line = mutedStyle.Render(line)
		} else if strings.HasPrefix(evt.Status, "Failed") {
			line = statusFailedStyle.Render(line)
		}

		items = append(items, line)
	}

	content := strings.Join(items, "\n")
	return eventListStyle.Width(width).Height(height).Render(content)
}

// formatEventTime prefers the time-of-day portion of the trace timestamp
// ("2006-01-02 15:04:05.000"); relative mode uses the arrival time instead.
func (m model) formatEventTime(evt Event) string {
	if m.timestampRel && !evt.ReceivedAt.IsZero() {
		return formatRelativeTime(evt.ReceivedAt)
	}
	if len(evt.Timestamp) >= 23 {
		return evt.Timestamp[11:23]
	}
	return evt.Timestamp
}

func (m model) renderDetailPanel(width, height int) string {
	innerHeight := height - 2
	if innerHeight < 1 {
		innerHeight = 1
	}

	if len(m.events) == 0 || m.selectedIdx >= len(m.events) {
		return detailPanelStyle.Width(width).Height(height).Render(
			mutedStyle.Render("Select an exchange to view details"),
		)
	}

	evt := m.events[m.selectedIdx]
	innerWidth := width - 4
	var lines []string

	if m.showRaw {
		payload := exportPayload([]Event{evt})
		data, _ := json.MarshalIndent(payload[0], "", "  ")
		lines = strings.Split(string(data), "\n")
	} else {
		// METADATA section
		lines = append(lines, fieldNameStyle.Render("METADATA"))
		lines = append(lines, dividerStyle.Render(strings.Repeat("─", innerWidth)))
		lines = append(lines, fieldNameStyle.Render("Timestamp: ")+evt.Timestamp)
		lines = append(lines, fieldNameStyle.Render("Step: ")+evt.Step)
		if evt.Status != "" {
			statusLine := evt.Status
			if hasDoneStatus(evt.Status) {
				statusLine = statusDoneStyle.Render(statusLine)
			} else if strings.HasPrefix(evt.Status, "Failed") {
				statusLine = statusFailedStyle.Render(statusLine)
			}
			lines = append(lines, fieldNameStyle.Render("Status: ")+statusLine)
		}
		if evt.ExchangeID != "" {
			lines = append(lines, fieldNameStyle.Render("Exchange ID: ")+evt.ExchangeID)
		}
		lines = append(lines, fieldNameStyle.Render("Body size: ")+formatBytes(int64(len(evt.Body))))
		lines = append(lines, "")

		// HEADERS section
		if len(evt.Headers) > 0 {
			lines = append(lines, fieldNameStyle.Render("HEADERS"))
			lines = append(lines, dividerStyle.Render(strings.Repeat("─", innerWidth)))
			headerKeys := make([]string, 0, len(evt.Headers))
			for k := range evt.Headers {
				headerKeys = append(headerKeys, k)
			}
			sort.Strings(headerKeys)
			for _, k := range headerKeys {
				lines = append(lines, fmt.Sprintf("%s: %s", fieldNameStyle.Render(k), evt.Headers[k]))
			}
			lines = append(lines, "")
		}

		// BODY section
		lines = append(lines, fieldNameStyle.Render("BODY"))
		lines = append(lines, dividerStyle.Render(strings.Repeat("─", innerWidth)))
		if evt.Body == "" {
			lines = append(lines, mutedStyle.Render("(empty)"))
		} else {
			body := trace.StripANSI(evt.Body)
			lines = append(lines, strings.Split(body, "\n")...)
		}
	}

	// Apply scroll offset from viewport
	scrollOffset := m.detailViewport.YOffset
	if scrollOffset < 0 {
		scrollOffset = 0
	}
	if scrollOffset > len(lines)-innerHeight {
		scrollOffset = len(lines) - innerHeight
		if scrollOffset < 0 {
			scrollOffset = 0
		}
	}

	endIdx := scrollOffset + innerHeight
	if endIdx > len(lines) {
		endIdx = len(lines)
	}

	visibleLines := lines[scrollOffset:endIdx]
	for len(visibleLines) < innerHeight {
		visibleLines = append(visibleLines, "")
	}

	content := strings.Join(visibleLines, "\n")
	return detailPanelStyle.Width(width).Height(height).Render(content)
}

func hasDoneStatus(status string) bool {
	return strings.HasPrefix(status, "Completed") || strings.HasPrefix(status, "Processed")
}

func (m model) renderHelpBar() string {
	keys := []struct{ key, desc string }{
		{"j/k", "nav"},
		{"gg/G", "top/end"},
		{"/", "search"},
		{"f", "filter"},
		{"y", "copy"},
		{"m", "mark"},
		{"s", "trace"},
		{"p", "pause"},
		{"?", "help"},
		{"b", "back"},
		{"q", "quit"},
	}

	var parts []string
	for _, k := range keys {
		parts = append(parts, helpKeyStyle.Render(k.key)+" "+k.desc)
	}

	return helpStyle.Render(strings.Join(parts, " │ "))
}

func (m model) renderHelpOverlay() string {
	var lines []string

	lines = append(lines, fieldNameStyle.Render("Keybindings"))
	lines = append(lines, "")

	sections := []struct {
		name string
		keys []struct{ key, desc string }
	}{
		{
			name: "Navigation",
			keys: []struct{ key, desc string }{
				{"j / k", "Move down / up"},
				{"5j / 10k", "Move 5 down / 10 up"},
				{"gg", "Go to top"},
				{"G", "Go to bottom"},
				{"Ctrl+U / Ctrl+D", "Half page up / down"},
				{"Ctrl+F / Ctrl+B", "Full page up / down"},
				{"Ctrl+J / Ctrl+K", "Scroll detail panel"},
			},
		},
		{
			name: "Search & Filter",
			keys: []struct{ key, desc string }{
				{"/", "Search (step:, status:, id:, hdr:, body:, ep:, re:)"},
				{"n / N", "Next / previous result"},
				{"f", "Filter event list"},
				{"F", "Clear filter"},
			},
		},
		{
			name: "Actions",
			keys: []struct{ key, desc string }{
				{"y", "Copy exchange to clipboard"},
				{"e", "Export all events to JSON"},
				{"m", "Toggle bookmark"},
				{"'", "Jump to next bookmark"},
				{"c", "Clear event list"},
			},
		},
		{
			name: "Trace control",
			keys: []struct{ key, desc string }{
				{"s", "Stop / start tracing in the CLI"},
				{"C", "Clear the CLI trace and the list"},
			},
		},
		{
			name: "View",
			keys: []struct{ key, desc string }{
				{"r", "Toggle raw JSON view"},
				{"t", "Toggle compact mode"},
				{"T", "Toggle timestamp format"},
				{"H / L", "Resize panes left / right"},
				{"?", "Toggle this help"},
			},
		},
		{
			name: "Control",
			keys: []struct{ key, desc string }{
				{"p / Space", "Pause / resume"},
				{"b", "Back to browser"},
				{"q / Ctrl+C", "Quit"},
			},
		},
	}

	for _, section := range sections {
		lines = append(lines, helpCategoryStyle.Render(section.name))
		for _, k := range section.keys {
			lines = append(lines, fmt.Sprintf("  %-18s %s", helpKeyStyle.Render(k.key), k.desc))
		}
		lines = append(lines, "")
	}

	lines = append(lines, mutedStyle.Render("Press ? or Esc to close"))

	content := strings.Join(lines, "\n")

	overlayWidth := 56
	overlayHeight := len(lines) + 4
	if overlayHeight > m.height-4 {
		overlayHeight = m.height - 4
	}

	overlay := helpOverlayStyle.Width(overlayWidth).Render(content)

	hPad := (m.width - overlayWidth) / 2
	vPad := (m.height - overlayHeight) / 2
	if hPad < 0 {
		hPad = 0
	}
	if vPad < 0 {
		vPad = 0
	}

	return lipgloss.NewStyle().
		PaddingLeft(hPad).
		PaddingTop(vPad).
		Render(overlay)
}

func truncate(s string, max int) string {
	if max <= 3 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func formatRelativeTime(t time.Time) string {
	d := time.Since(t)
	if d < time.Second {
		return "now"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
