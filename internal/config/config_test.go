package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileConfig_ValidTOML(t *testing.T) {
	dir := t.TempDir()
	toml := `
camel_bin = "/opt/camel/bin/camel"
max_events = 2000
early_emit_ms = 30
body_idle_ms = 60

[ui]
split_ratio = 0.7
compact_mode = true

[profiles.local]
integration = "orders"

[profiles.k8s]
bin = "kubectl-camel"
args = ["--namespace", "integrations"]
integration = "billing"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFileConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.CamelBin != "/opt/camel/bin/camel" {
		t.Errorf("CamelBin = %q", cfg.CamelBin)
	}
	if cfg.MaxEvents != 2000 {
		t.Errorf("MaxEvents = %d, want 2000", cfg.MaxEvents)
	}
	if cfg.EarlyEmitMs != 30 || cfg.BodyIdleMs != 60 {
		t.Errorf("timer tuning = (%d, %d), want (30, 60)", cfg.EarlyEmitMs, cfg.BodyIdleMs)
	}
	if cfg.UI.SplitRatio != 0.7 {
		t.Errorf("UI.SplitRatio = %f, want 0.7", cfg.UI.SplitRatio)
	}
	if !cfg.UI.CompactMode {
		t.Error("UI.CompactMode = false, want true")
	}
	if len(cfg.Profiles) != 2 {
		t.Fatalf("len(Profiles) = %d, want 2", len(cfg.Profiles))
	}
	if cfg.Profiles["k8s"].Bin != "kubectl-camel" {
		t.Errorf("k8s Bin = %q", cfg.Profiles["k8s"].Bin)
	}
	if len(cfg.Profiles["k8s"].Args) != 2 {
		t.Errorf("k8s Args = %v", cfg.Profiles["k8s"].Args)
	}
}

func TestLoadFileConfig_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFileConfig(dir)
	if err != nil {
		t.Fatalf("unexpected error for missing file: %v", err)
	}
	if cfg.CamelBin != "" {
		t.Errorf("expected empty CamelBin, got %q", cfg.CamelBin)
	}
	if len(cfg.Profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(cfg.Profiles))
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not valid [[[ toml"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFileConfig(dir)
	if err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestResolve_WithProfile(t *testing.T) {
	fc := FileConfig{
		CamelBin:    "/global/camel",
		MaxEvents:   500,
		EarlyEmitMs: 25,
		UI:          UIConfig{SplitRatio: 0.6},
		Profiles: map[string]Profile{
			"k8s": {
				Bin:         "kubectl-camel",
				Args:        []string{"--namespace", "integrations"},
				Integration: "billing",
			},
		},
	}

	cfg := fc.Resolve("k8s", "/tmp/config")

	if cfg.CamelBin != "kubectl-camel" {
		t.Errorf("CamelBin = %q, want profile override", cfg.CamelBin)
	}
	if cfg.Integration != "billing" {
		t.Errorf("Integration = %q", cfg.Integration)
	}
	if len(cfg.CamelArgs) != 2 {
		t.Errorf("CamelArgs = %v", cfg.CamelArgs)
	}
	if cfg.EarlyEmitDelay != 25*time.Millisecond {
		t.Errorf("EarlyEmitDelay = %v", cfg.EarlyEmitDelay)
	}
	if cfg.MaxEvents != 500 {
		t.Errorf("MaxEvents = %d", cfg.MaxEvents)
	}
	if cfg.ConfigDir != "/tmp/config" {
		t.Errorf("ConfigDir = %q", cfg.ConfigDir)
	}
}

func TestResolve_UnknownProfileUsesGlobals(t *testing.T) {
	fc := FileConfig{CamelBin: "/global/camel"}
	cfg := fc.Resolve("nope", "/tmp/config")
	if cfg.CamelBin != "/global/camel" {
		t.Errorf("CamelBin = %q", cfg.CamelBin)
	}
	if cfg.MaxEvents != defaultMaxEvents {
		t.Errorf("MaxEvents = %d, want default %d", cfg.MaxEvents, defaultMaxEvents)
	}
	if cfg.DefaultSplitRatio != defaultSplitRatio {
		t.Errorf("DefaultSplitRatio = %f", cfg.DefaultSplitRatio)
	}
}

func TestResolve_EnvFallback(t *testing.T) {
	t.Setenv("CAMEL_BIN", "/env/camel")
	cfg := FileConfig{}.Resolve("", "/tmp/config")
	if cfg.CamelBin != "/env/camel" {
		t.Errorf("CamelBin = %q, want env fallback", cfg.CamelBin)
	}
}

func TestEventLimit(t *testing.T) {
	if got := (Config{}).EventLimit(); got != defaultMaxEvents {
		t.Errorf("EventLimit() = %d, want default", got)
	}
	if got := (Config{MaxEvents: 42}).EventLimit(); got != 42 {
		t.Errorf("EventLimit() = %d, want 42", got)
	}
}

func TestSaveSplitRatio(t *testing.T) {
	dir := t.TempDir()
	toml := `
camel_bin = "/opt/camel/bin/camel"

[profiles.local]
integration = "orders"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SaveSplitRatio(dir, 0.65); err != nil {
		t.Fatalf("SaveSplitRatio error: %v", err)
	}

	cfg, err := LoadFileConfig(dir)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if cfg.UI.SplitRatio != 0.65 {
		t.Errorf("SplitRatio = %f, want 0.65", cfg.UI.SplitRatio)
	}
	// Other fields preserved
	if cfg.CamelBin != "/opt/camel/bin/camel" {
		t.Errorf("CamelBin lost on save: %q", cfg.CamelBin)
	}
	if cfg.Profiles["local"].Integration != "orders" {
		t.Errorf("profile lost on save: %+v", cfg.Profiles)
	}
}

func TestProfileNames(t *testing.T) {
	fc := FileConfig{Profiles: map[string]Profile{
		"zeta": {}, "alpha": {}, "mid": {},
	}}
	names := fc.ProfileNames()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
