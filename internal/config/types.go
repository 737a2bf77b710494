package config

import "time"

// AgentControlConfig holds the control plane's own operational
// configuration: identity, Dynamic Config Store wiring, Sub-Agent builder
// selection, management client connection, and the status API listen
// address.
type AgentControlConfig struct {
	// StateDir is where the control plane keeps durable local state: the
	// Hash Store's SQLite file, the remote config overlay's SQLite file,
	// the persisted OpAMP instance ID, and (for the git source) the local
	// clone of the GitOps repo.
	StateDir string `yaml:"state_dir"`
	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// APIListenAddr is the address for the status/health HTTP API (e.g.
	// ":8080"). If empty, the API server is not started.
	APIListenAddr string `yaml:"api_listen_addr,omitempty"`

	// LocalSourceType selects the Dynamic Config Store's local baseline
	// source: "git", "s3", or "file".
	LocalSourceType string `yaml:"local_source_type"`
	// GitRepoURL, GitBranch, GitConfigPath configure the git local source.
	GitRepoURL    string `yaml:"git_repo_url,omitempty"`
	GitBranch     string `yaml:"git_branch,omitempty"`
	GitConfigPath string `yaml:"git_config_path,omitempty"`
	// S3Bucket, S3Key, S3Region, S3EndpointURL configure the s3 local
	// source. S3EndpointURL overrides the endpoint (LocalStack/MinIO).
	S3Bucket      string `yaml:"s3_bucket,omitempty"`
	S3Key         string `yaml:"s3_key,omitempty"`
	S3Region      string `yaml:"s3_region,omitempty"`
	S3EndpointURL string `yaml:"s3_endpoint_url,omitempty"`
	// FileConfigPath configures the file local source: a plain path to a
	// Dynamic Config document on local disk, for bare-metal/dev setups
	// with no GitOps or S3 backend.
	FileConfigPath string `yaml:"file_config_path,omitempty"`

	// AgentTypeRegistryPath is the path to the agent-type registry
	// document (the set of known AgentTypeFQNs and their required
	// fields).
	AgentTypeRegistryPath string `yaml:"agent_type_registry_path"`

	// SubAgentBuilder selects the Sub-Agent builder: "hostprocess" or
	// "k8scr".
	SubAgentBuilder string `yaml:"sub_agent_builder"`
	// K8sNamespace and K8sResource configure the k8scr builder: the
	// namespace custom resources are created in, and the group/version/
	// resource they belong to ("group/version/resource").
	K8sNamespace string `yaml:"k8s_namespace,omitempty"`
	K8sResource  string `yaml:"k8s_resource,omitempty"`

	// ManagementServerURL is the OpAMP server URL. If empty, the control
	// plane runs without a management connection, serving only its local
	// baseline.
	ManagementServerURL string `yaml:"management_server_url,omitempty"`

	// ShutdownTimeout bounds how long the status API server is given to
	// shut down. Sub-agent stops are not bounded by it; each handle applies
	// its own stop timeout.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}
