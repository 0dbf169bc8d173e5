package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/epalmerini/camelhole/internal/config"
	"github.com/epalmerini/camelhole/internal/db"
)

type appView int

const (
	appViewPicker appView = iota
	appViewBrowser
	appViewTracer
	appViewSessions
)

type appModel struct {
	fileCfg     *config.FileConfig
	configDir   string
	config      config.Config
	profileName string
	store       db.Store
	view        appView

	picker   profilePickerModel
	browser  browserModel
	tracer   model
	sessions sessionsModel
}

func newAppModel(fileCfg *config.FileConfig, cfg config.Config, configDir, profileName string, store db.Store) appModel {
	m := appModel{
		fileCfg:     fileCfg,
		configDir:   configDir,
		config:      cfg,
		profileName: profileName,
		store:       store,
		picker:      newProfilePickerModel(fileCfg.Profiles),
		browser:     newBrowserModel(cfg),
	}

	switch {
	case cfg.Integration != "":
		m.view = appViewTracer
		m.tracer = initialModel(cfg, store, profileName)
	case profileName == "" && len(fileCfg.Profiles) > 0:
		m.view = appViewPicker
	default:
		m.view = appViewBrowser
	}

	return m
}

func (m appModel) Init() tea.Cmd {
	switch m.view {
	case appViewPicker:
		return tea.EnterAltScreen
	case appViewTracer:
		return m.tracer.Init()
	default:
		return m.browser.Init()
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case profileSelectedMsg:
		m.profileName = msg.name
		m.config = m.fileCfg.Resolve(msg.name, m.configDir)
		if m.config.Integration != "" {
			m.tracer.cleanup()
			m.view = appViewTracer
			m.tracer = initialModel(m.config, m.store, m.profileName)
			m.tracer.width = m.picker.width
			m.tracer.height = m.picker.height
			return m, m.tracer.Init()
		}
		m.view = appViewBrowser
		m.browser = newBrowserModel(m.config)
		m.browser.width = m.picker.width
		m.browser.height = m.picker.height
		return m, m.browser.Init()

	case startTracingMsg:
		// Clean up any previous tracing session before starting a new one
		m.tracer.cleanup()

		m.view = appViewTracer
		tracerCfg := m.config
		tracerCfg.Integration = msg.integration
		m.tracer = initialModel(tracerCfg, m.store, m.profileName)
		m.tracer.width = m.browser.width
		m.tracer.height = m.browser.height
		return m, m.tracer.Init()

	case openSessionsMsg:
		if m.store == nil {
			return m, nil
		}
		m.view = appViewSessions
		m.sessions = newSessionsModel(m.config, m.store)
		m.sessions.width = m.browser.width
		m.sessions.height = m.browser.height
		return m, m.sessions.Init()

	case replaySessionMsg:
		m.tracer.cleanup()

		m.view = appViewTracer
		m.tracer = initialReplayModel(m.config, m.store, msg.session, msg.events)
		m.tracer.width = m.sessions.width
		m.tracer.height = m.sessions.height
		return m, m.tracer.Init()

	case tea.KeyMsg:
		// Global escape to go back to the browser from the trace view
		if m.view == appViewTracer && msg.String() == "b" &&
			!m.tracer.searchMode && !m.tracer.filterMode {
			m.tracer.cleanup()

			// Replayed sessions go back to the session list
			if m.tracer.replayMode {
				m.view = appViewSessions
				m.sessions.width = m.tracer.width
				m.sessions.height = m.tracer.height
				return m, m.sessions.loadSessions()
			}

			m.view = appViewBrowser
			m.browser.width = m.tracer.width
			m.browser.height = m.tracer.height
			m.browser.loading = true
			return m, m.browser.loadIntegrations()
		}

		// Back to the integration browser from the session list
		if m.view == appViewSessions && msg.String() == "b" && !m.sessions.ftsMode {
			m.view = appViewBrowser
			m.browser.width = m.sessions.width
			m.browser.height = m.sessions.height
			m.browser.loading = true
			return m, m.browser.loadIntegrations()
		}
	}

	switch m.view {
	case appViewPicker:
		newPicker, cmd := m.picker.Update(msg)
		m.picker = newPicker.(profilePickerModel)
		return m, cmd

	case appViewBrowser:
		newBrowser, cmd := m.browser.Update(msg)
		m.browser = newBrowser.(browserModel)
		return m, cmd

	case appViewTracer:
		newTracer, cmd := m.tracer.Update(msg)
		m.tracer = newTracer.(model)
		return m, cmd

	case appViewSessions:
		newSessions, cmd := m.sessions.Update(msg)
		m.sessions = newSessions.(sessionsModel)
		return m, cmd
	}

	return m, nil
}

func (m appModel) View() string {
	switch m.view {
	case appViewPicker:
		return m.picker.View()
	case appViewBrowser:
		return m.browser.View()
	case appViewTracer:
		return m.tracer.View()
	case appViewSessions:
		return m.sessions.View()
	}
	return ""
}
