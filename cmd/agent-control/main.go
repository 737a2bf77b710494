package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-telemetry/opamp-go/protobufs"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/api"
	"github.com/fleetcontrol/agentcontrol/internal/collection"
	"github.com/fleetcontrol/agentcontrol/internal/config"
	"github.com/fleetcontrol/agentcontrol/internal/dynamicconfig"
	"github.com/fleetcontrol/agentcontrol/internal/dynamicconfig/gitsource"
	"github.com/fleetcontrol/agentcontrol/internal/dynamicconfig/s3source"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/hashstore"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient"
	"github.com/fleetcontrol/agentcontrol/internal/mgmtclient/opampclient"
	"github.com/fleetcontrol/agentcontrol/internal/processor"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/subagent/hostprocess"
	"github.com/fleetcontrol/agentcontrol/internal/subagent/k8scr"
	"github.com/fleetcontrol/agentcontrol/internal/version"
)

func main() {
	configPath := flag.String("config", "/etc/agent-control/config.yaml", "path to control plane config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("agent-control", version.String())
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := eventbus.New[eventbus.ApplicationEvent]()
	subAgentBus := eventbus.New[eventbus.SubAgentEvent]()
	controlPlaneBus := eventbus.New[eventbus.ControlPlaneEvent]()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		if err := app.Publish(eventbus.ApplicationEvent{StopRequested: true}); err != nil {
			logger.Warn("publishing stop event failed, cancelling context directly", "error", err)
			cancel()
		}
	}()

	registry, err := agenttype.LoadStaticRegistry(cfg.AgentTypeRegistryPath)
	if err != nil {
		return fmt.Errorf("loading agent type registry: %w", err)
	}

	hashes, err := hashstore.NewSQLiteStore(cfg.StateDir+"/hashes.db", logger)
	if err != nil {
		return fmt.Errorf("opening hash store: %w", err)
	}

	configStore, closeStore, err := buildConfigStore(ctx, cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	builder, err := buildSubAgentBuilder(cfg, logger)
	if err != nil {
		return err
	}

	running := collection.New()

	var mgmt mgmtclient.Client
	if cfg.ManagementServerURL != "" {
		instanceStore := agentid.NewInstanceStore(cfg.StateDir)
		instanceID, err := instanceStore.LoadOrCreate()
		if err != nil {
			return fmt.Errorf("loading instance id: %w", err)
		}
		mgmt, err = opampclient.Connect(ctx, opampclient.Config{
			ServerURL:   cfg.ManagementServerURL,
			InstanceUID: [16]byte(instanceID),
			Capabilities: protobufs.AgentCapabilities_AgentCapabilities_ReportsHealth |
				protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig |
				protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig,
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to management server: %w", err)
		}
	}

	p := processor.New(processor.Deps{
		ConfigStore:  configStore,
		Registry:     registry,
		Hashes:       hashes,
		Running:      running,
		Builder:      builder,
		Mgmt:         mgmt,
		App:          app,
		SubAgent:     subAgentBus,
		ControlPlane: controlPlaneBus,
		Logger:       logger,
	})

	var apiServer *api.Server
	if cfg.APIListenAddr != "" {
		apiServer = api.NewServer(cfg.APIListenAddr, logger,
			&api.ProcessorStatus{Running: running, Hashes: hashes},
			&api.ProcessorHealth{Reporter: p.Reporter(), Running: running},
			nil,
		)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("starting status API: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer shutdownCancel()
			_ = apiServer.Stop(shutdownCtx)
		}()
	}

	return p.Run(ctx)
}

// buildConfigStore wires the Dynamic Config Store's local baseline source
// (file, git or s3) together with its SQLite-backed remote overlay.
// closeFn is non-nil when the chosen source holds resources that must be
// released on shutdown (in practice, the git source's local clone
// directory, which it removes).
func buildConfigStore(ctx context.Context, cfg config.AgentControlConfig) (*dynamicconfig.Store, func(), error) {
	overlay, err := dynamicconfig.NewSQLiteOverlay(cfg.StateDir + "/overlay.db")
	if err != nil {
		return nil, nil, fmt.Errorf("opening remote config overlay: %w", err)
	}

	var local dynamicconfig.LocalSource
	var closeFn func()

	switch cfg.LocalSourceType {
	case "git":
		src := gitsource.New(cfg.GitRepoURL, cfg.GitBranch, cfg.StateDir+"/gitops", cfg.GitConfigPath)
		local = src
		closeFn = func() { _ = src.Close() }
	case "s3":
		src, err := s3source.New(ctx, s3source.Config{
			Bucket:      cfg.S3Bucket,
			Key:         cfg.S3Key,
			Region:      cfg.S3Region,
			EndpointURL: cfg.S3EndpointURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating s3 local source: %w", err)
		}
		local = src
	default:
		local = dynamicconfig.NewFileSource(cfg.FileConfigPath)
	}

	return dynamicconfig.New(local, overlay), closeFn, nil
}

// buildSubAgentBuilder wires the concrete Sub-Agent builder cfg selects.
func buildSubAgentBuilder(cfg config.AgentControlConfig, logger *slog.Logger) (subagent.Builder, error) {
	switch cfg.SubAgentBuilder {
	case "k8scr":
		restCfg, err := loadKubeConfig()
		if err != nil {
			return nil, fmt.Errorf("loading kubernetes config: %w", err)
		}
		client, err := dynamic.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("creating kubernetes dynamic client: %w", err)
		}
		gvr, err := k8scr.ParseGVR(cfg.K8sResource)
		if err != nil {
			return nil, fmt.Errorf("parsing k8s_resource: %w", err)
		}
		return k8scr.NewBuilder(client, gvr, cfg.K8sNamespace, logger), nil
	default:
		return hostprocess.NewBuilder(cfg.StateDir+"/subagents", logger), nil
	}
}

// loadKubeConfig returns the in-cluster config when running inside a pod,
// falling back to the local kubeconfig otherwise — the same fallback the
// pack's rancher-fleet agent uses to run both in-cluster and from an
// operator's workstation.
func loadKubeConfig() (*rest.Config, error) {
	if restCfg, err := rest.InClusterConfig(); err == nil {
		return restCfg, nil
	}
	kubeconfig := os.Getenv("KUBECONFIG")
	if kubeconfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving default kubeconfig path: %w", err)
		}
		kubeconfig = home + "/.kube/config"
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
