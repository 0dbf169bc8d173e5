package camel

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
)

// Integration is one running integration as reported by the Camel CLI
// process listing.
type Integration struct {
	Pid    int64  `json:"pid"`
	Name   string `json:"name"`
	State  string `json:"state"`
	Ready  string `json:"ready"`
	Uptime string `json:"age"`
}

// ListIntegrations asks the CLI for the running integrations, sorted by
// name. Feeds the TUI browser.
func ListIntegrations(ctx context.Context, cfg Config) ([]Integration, error) {
	args := append(append([]string{}, cfg.Args...), "get", "integration", "--json")
	out, err := exec.CommandContext(ctx, cfg.bin(), args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s get integration: %w", cfg.bin(), err)
	}
	return parseIntegrations(out)
}

func parseIntegrations(data []byte) ([]Integration, error) {
	var integrations []Integration
	if err := json.Unmarshal(data, &integrations); err != nil {
		return nil, fmt.Errorf("failed to decode integration listing: %w", err)
	}
	sort.Slice(integrations, func(i, j int) bool {
		return integrations[i].Name < integrations[j].Name
	})
	return integrations, nil
}
