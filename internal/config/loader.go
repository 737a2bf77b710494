package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns sensible defaults for the control plane configuration.
func Default() AgentControlConfig {
	return AgentControlConfig{
		StateDir:              "/var/lib/agent-control",
		LogLevel:              "info",
		LocalSourceType:       "file",
		FileConfigPath:        "/etc/agent-control/agents.yaml",
		AgentTypeRegistryPath: "/etc/agent-control/registry.yaml",
		SubAgentBuilder:       "hostprocess",
		GitBranch:             "main",
		ShutdownTimeout:       30 * time.Second,
	}
}

// Load reads the control plane configuration from a YAML file and applies
// defaults for any unset fields.
func Load(path string) (AgentControlConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	switch cfg.LocalSourceType {
	case "git":
		if cfg.GitRepoURL == "" {
			return cfg, fmt.Errorf("git_repo_url is required for local_source_type \"git\"")
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return cfg, fmt.Errorf("s3_bucket is required for local_source_type \"s3\"")
		}
	case "file":
		if cfg.FileConfigPath == "" {
			return cfg, fmt.Errorf("file_config_path is required for local_source_type \"file\"")
		}
	default:
		return cfg, fmt.Errorf("unsupported local_source_type: %q (expected \"git\", \"s3\" or \"file\")", cfg.LocalSourceType)
	}

	switch cfg.SubAgentBuilder {
	case "hostprocess":
	case "k8scr":
		if cfg.K8sResource == "" {
			return cfg, fmt.Errorf("k8s_resource is required for sub_agent_builder \"k8scr\"")
		}
	default:
		return cfg, fmt.Errorf("unsupported sub_agent_builder: %q (expected \"hostprocess\" or \"k8scr\")", cfg.SubAgentBuilder)
	}

	return cfg, nil
}
