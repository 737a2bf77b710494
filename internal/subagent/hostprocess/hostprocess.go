// Package hostprocess implements subagent.Builder by running each
// sub-agent as a local OS process, adapted from the teacher's Firecracker
// microVM supervisor (internal/vm/manager.go): spawn, own process group,
// SIGTERM with a SIGKILL fallback, and a monitor goroutine that turns
// process exit into SubAgentEvents instead of an in-memory state field.
package hostprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

var _ subagent.Builder = (*Builder)(nil)

// Config fields expected in subagentconfig.Config.Values for this builder:
//
//	command: string    — executable to run
//	args: []string      — optional arguments
//	env: map[string]string — optional extra environment variables
const (
	fieldCommand = "command"
	fieldArgs    = "args"
	fieldEnv     = "env"
)

// Builder implements subagent.Builder by spawning sub-agents as local
// processes rooted under stateDir.
type Builder struct {
	stateDir string
	logger   *slog.Logger
}

// NewBuilder creates a Builder. stateDir holds one subdirectory per
// sub-agent for its log file and working directory.
func NewBuilder(stateDir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{stateDir: stateDir, logger: logger}
}

// Build implements subagent.Builder.
func (b *Builder) Build(id agentid.ID, cfg subagentconfig.Config, events chan<- eventbus.SubAgentEvent) (subagent.NotStarted, error) {
	command, ok := cfg.Values[fieldCommand].(string)
	if !ok || command == "" {
		return nil, fmt.Errorf("hostprocess: agent %s: missing required %q field", id, fieldCommand)
	}

	var args []string
	if raw, ok := cfg.Values[fieldArgs]; ok {
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("hostprocess: agent %s: %q must be a list", id, fieldArgs)
		}
		for _, a := range list {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("hostprocess: agent %s: %q entries must be strings", id, fieldArgs)
			}
			args = append(args, s)
		}
	}

	env := map[string]string{}
	if raw, ok := cfg.Values[fieldEnv]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("hostprocess: agent %s: %q must be a mapping", id, fieldEnv)
		}
		for k, v := range m {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("hostprocess: agent %s: env value for %q must be a string", id, k)
			}
			env[k] = s
		}
	}

	return &notStarted{
		builder: b,
		id:      id,
		cfg:     cfg,
		command: command,
		args:    args,
		env:     env,
		events:  events,
	}, nil
}

type notStarted struct {
	builder *Builder
	id      agentid.ID
	cfg     subagentconfig.Config
	command string
	args    []string
	env     map[string]string
	events  chan<- eventbus.SubAgentEvent
}

// Start implements subagent.NotStarted.
func (n *notStarted) Start(ctx context.Context) (subagent.Started, error) {
	agentDir := filepath.Join(n.builder.stateDir, "agents", string(n.id))
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return nil, fmt.Errorf("hostprocess: creating agent dir: %w", err)
	}

	cmd := exec.Command(n.command, n.args...)
	cmd.Dir = agentDir
	cmd.Env = os.Environ()
	for k, v := range n.env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	logFile, err := os.Create(filepath.Join(agentDir, "agent.log"))
	if err != nil {
		return nil, fmt.Errorf("hostprocess: creating log file: %w", err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	// Run the sub-agent in its own process group so it survives a control
	// plane restart. Stop signals only this process, not the rest of its
	// group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("hostprocess: starting %s: %w", n.command, err)
	}

	startTime := time.Now()
	s := &started{
		builder:   n.builder,
		id:        n.id,
		hash:      n.cfg.Hash(),
		agentType: n.cfg.AgentType,
		cmd:       cmd,
		events:    n.events,
		startTime: startTime,
		done:      make(chan struct{}),
	}

	n.builder.logger.Info("sub-agent process started", "agent_id", n.id, "pid", cmd.Process.Pid)
	go s.monitor(logFile)

	n.events <- eventbus.SubAgentEvent{
		Kind:      eventbus.SubAgentBecameHealthy,
		AgentID:   n.id,
		Healthy:   health.Healthy{StatusText: "process started"},
		StartTime: startTime,
	}

	return s, nil
}

type started struct {
	builder   *Builder
	id        agentid.ID
	hash      string
	agentType agenttype.FQN
	cmd       *exec.Cmd
	events    chan<- eventbus.SubAgentEvent
	startTime time.Time

	done chan struct{}
}

// ConfigHash implements subagent.Started.
func (s *started) ConfigHash() string { return s.hash }

// AgentType implements subagent.Started.
func (s *started) AgentType() agenttype.FQN { return s.agentType }

// Stop implements subagent.Started: SIGTERM, waiting up to 5s for exit,
// then SIGKILL.
func (s *started) Stop(ctx context.Context) error {
	proc := s.cmd.Process
	s.builder.logger.Info("stopping sub-agent process", "agent_id", s.id, "pid", proc.Pid)

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		s.builder.logger.Warn("SIGTERM failed, sending SIGKILL", "agent_id", s.id, "error", err)
		_ = proc.Signal(syscall.SIGKILL)
	}

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		s.builder.logger.Warn("sub-agent did not exit after SIGTERM, sending SIGKILL", "agent_id", s.id, "pid", proc.Pid)
		_ = proc.Signal(syscall.SIGKILL)
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
		}
	case <-ctx.Done():
		_ = proc.Signal(syscall.SIGKILL)
		return ctx.Err()
	}

	s.builder.logger.Info("sub-agent process stopped", "agent_id", s.id)
	return nil
}

// monitor waits for the process to exit and reports the outcome as a
// SubAgentEvent rather than mutating shared state directly.
func (s *started) monitor(logFile *os.File) {
	defer logFile.Close()
	defer close(s.done)

	err := s.cmd.Wait()
	if err != nil {
		s.builder.logger.Error("sub-agent process exited with error", "agent_id", s.id, "error", err)
		s.events <- eventbus.SubAgentEvent{
			Kind:    eventbus.SubAgentBecameUnhealthy,
			AgentID: s.id,
			Unhealthy: health.Unhealthy{
				StatusText:       "process exited",
				LastErrorMessage: err.Error(),
			},
			StartTime: s.startTime,
		}
		return
	}
	s.builder.logger.Info("sub-agent process exited cleanly", "agent_id", s.id)
}
