package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/epalmerini/camelhole/internal/config"
	"github.com/epalmerini/camelhole/internal/db"
)

// Run starts the TUI. An integration passed on the command line skips the
// browser and goes straight to tracing.
func Run(fileCfg *config.FileConfig, configDir, profileName, integration string) error {
	cfg := fileCfg.Resolve(profileName, configDir)
	if integration != "" {
		cfg.Integration = integration
	}

	// The store powers session replay and full-text search; without it the
	// TUI still traces, just without those views.
	var store db.Store
	if s, err := db.NewStore(); err == nil {
		store = s
		defer func() { _ = s.Close() }()
	}

	m := newAppModel(fileCfg, cfg, configDir, profileName, store)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}

	return nil
}
