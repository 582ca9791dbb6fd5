package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebPort != DefaultConfig().WebPort {
		t.Fatalf("WebPort = %d, want %d", cfg.WebPort, DefaultConfig().WebPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"web_port": 9000, "log_level": "debug"}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebPort != 9000 {
		t.Fatalf("WebPort = %d, want %d", cfg.WebPort, 9000)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	// Untouched keys keep defaults
	if cfg.ExportDir != "~/.claude" {
		t.Fatalf("ExportDir = %q, want default", cfg.ExportDir)
	}
}

func TestLoad_JSONCommentsAndTrailingCommas(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{
		// quieter logs
		"log_level": "warn",
		"disabled_tools": ["item_delete",],
	}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "item_delete" {
		t.Errorf("DisabledTools = %v, want [item_delete]", cfg.DisabledTools)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_DisabledToolsEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 0 {
		t.Fatalf("DisabledTools = %v, want nil or empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"web_port": 8000, "disabled_tools": ["item_delete"]}`)
	writeConfig(t, filepath.Join(repoRoot, RepoDirName), `{"web_port": 7000, "disabled_tools": ["history_restore"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.WebPort != 7000 {
		t.Errorf("WebPort = %d, want 7000 (repo override)", cfg.WebPort)
	}

	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.WebPort != 8484 {
		t.Errorf("WebPort = %d, want 8484", cfg.WebPort)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, filepath.Join(tmpDir, RepoDirName), `{"disabled_types": ["history"]}`)

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if len(cfg.DisabledTypes) != 1 || cfg.DisabledTypes[0] != "history" {
		t.Errorf("DisabledTypes = %v, want [history]", cfg.DisabledTypes)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
	if found := FindRepoConfig(""); found != "" {
		t.Errorf("FindRepoConfig(\"\") = %q, want empty string", found)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{WebPort: 8000, DBMaxOpenConns: 5, LogLevel: "info"}
	overlay := &Config{WebPort: 9000, LogLevel: "  "}

	result := Merge(base, overlay)

	if result.WebPort != 9000 {
		t.Errorf("WebPort = %d, want 9000 (overlay)", result.WebPort)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info (blank overlay ignored)", result.LogLevel)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{LogPretty: true}, &Config{})
	if !result.LogPretty {
		t.Error("LogPretty should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"item_delete", "history_restore"}}
	overlay := &Config{DisabledTools: []string{" history_restore ", "item_update"}}

	result := Merge(base, overlay)

	want := []string{"item_delete", "history_restore", "item_update"}
	if strings.Join(result.DisabledTools, ",") != strings.Join(want, ",") {
		t.Errorf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
}

func TestDataDir_EnvOverrides(t *testing.T) {
	t.Setenv("GRIMOIRE_HOME", "/tmp/grimoire-home")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir() error = %v", err)
	}
	if dir != "/tmp/grimoire-home" {
		t.Errorf("DataDir() = %q, want GRIMOIRE_HOME", dir)
	}

	t.Setenv("GRIMOIRE_HOME", "")
	dir, err = DataDir()
	if err != nil {
		t.Fatalf("DataDir() error = %v", err)
	}
	if dir != filepath.Join("/tmp/xdg", "grimoire") {
		t.Errorf("DataDir() = %q, want XDG_DATA_HOME/grimoire", dir)
	}
}

func TestResolvedExportDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	cfg := &Config{ExportDir: "~/.claude"}
	got, err := cfg.ResolvedExportDir()
	if err != nil {
		t.Fatalf("ResolvedExportDir() error = %v", err)
	}
	if got != filepath.Join(home, ".claude") {
		t.Errorf("ResolvedExportDir() = %q", got)
	}

	cfg = &Config{ExportDir: "/abs/path"}
	got, _ = cfg.ResolvedExportDir()
	if got != "/abs/path" {
		t.Errorf("ResolvedExportDir() = %q, want /abs/path", got)
	}
}
