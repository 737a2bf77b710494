package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_AppliesDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
state_dir: /var/lib/my-fleet
local_source_type: git
git_repo_url: https://github.com/example/fleet-config.git
git_config_path: agents.yaml
agent_type_registry_path: /etc/agent-control/registry.yaml
sub_agent_builder: hostprocess
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StateDir != "/var/lib/my-fleet" {
		t.Errorf("expected overridden state_dir, got %q", cfg.StateDir)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level, got %q", cfg.LogLevel)
	}
	if cfg.GitBranch != "main" {
		t.Errorf("expected default git_branch, got %q", cfg.GitBranch)
	}
	if cfg.ShutdownTimeout.Seconds() != 30 {
		t.Errorf("expected default 30s shutdown timeout, got %v", cfg.ShutdownTimeout)
	}
}

func TestLoad_RejectsMissingGitRepoURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "local_source_type: git\nsub_agent_builder: hostprocess\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a git source with no repo URL")
	}
}

func TestLoad_RejectsUnknownSubAgentBuilder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "local_source_type: file\nfile_config_path: /tmp/agents.yaml\nsub_agent_builder: made-up\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown sub_agent_builder")
	}
}
