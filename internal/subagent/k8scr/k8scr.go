// Package k8scr implements subagent.Builder by representing each sub-agent
// as a Kubernetes custom resource, built and torn down through a dynamic
// client (github.com/fleetcontrol/agentcontrol's pack grounds this on
// rancher-fleet's and gke-mcp's use of k8s.io/client-go's dynamic.Interface
// plus k8s.io/apimachinery's unstructured.Unstructured). It never runs the
// sub-agent's actual workload itself — that is left to whatever in-cluster
// controller reconciles the custom resource kind; this package's job is
// solely to make the resource's presence track the control plane's desired
// state and to surface health drawn from the resource's status subresource.
package k8scr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
	"github.com/fleetcontrol/agentcontrol/internal/agenttype"
	"github.com/fleetcontrol/agentcontrol/internal/eventbus"
	"github.com/fleetcontrol/agentcontrol/internal/health"
	"github.com/fleetcontrol/agentcontrol/internal/subagent"
	"github.com/fleetcontrol/agentcontrol/internal/subagentconfig"
)

var _ subagent.Builder = (*Builder)(nil)

// GVR identifies the custom resource kind used to represent sub-agents,
// e.g. {Group: "newrelic.com", Version: "v1alpha1", Resource: "subagents"}.
type GVR = schema.GroupVersionResource

// Builder creates one custom resource per sub-agent in a fixed namespace.
type Builder struct {
	client    dynamic.Interface
	gvr       GVR
	namespace string
	logger    *slog.Logger
}

// NewBuilder creates a Builder backed by client, managing resources of
// kind gvr in namespace.
func NewBuilder(client dynamic.Interface, gvr GVR, namespace string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{client: client, gvr: gvr, namespace: namespace, logger: logger}
}

// Build implements subagent.Builder.
func (b *Builder) Build(id agentid.ID, cfg subagentconfig.Config, events chan<- eventbus.SubAgentEvent) (subagent.NotStarted, error) {
	return &notStarted{builder: b, id: id, cfg: cfg, events: events}, nil
}

type notStarted struct {
	builder *Builder
	id      agentid.ID
	cfg     subagentconfig.Config
	events  chan<- eventbus.SubAgentEvent
}

// Start implements subagent.NotStarted: it creates (or replaces) the
// custom resource and begins watching it for status changes.
func (n *notStarted) Start(ctx context.Context) (subagent.Started, error) {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion(n.builder.gvr.GroupVersion().String())
	obj.SetKind(kindFromResource(n.builder.gvr.Resource))
	obj.SetName(resourceName(n.id))
	obj.SetNamespace(n.builder.namespace)
	if err := unstructured.SetNestedField(obj.Object, n.cfg.AgentType.String(), "spec", "agentType"); err != nil {
		return nil, fmt.Errorf("k8scr: setting spec.agentType: %w", err)
	}
	if err := unstructured.SetNestedMap(obj.Object, toUnstructuredValues(n.cfg.Values), "spec", "values"); err != nil {
		return nil, fmt.Errorf("k8scr: setting spec.values: %w", err)
	}

	resClient := n.builder.client.Resource(n.builder.gvr).Namespace(n.builder.namespace)

	_, err := resClient.Create(ctx, obj, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		existing, getErr := resClient.Get(ctx, obj.GetName(), metav1.GetOptions{})
		if getErr != nil {
			return nil, fmt.Errorf("k8scr: fetching existing resource for %s: %w", n.id, getErr)
		}
		obj.SetResourceVersion(existing.GetResourceVersion())
		_, err = resClient.Update(ctx, obj, metav1.UpdateOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("k8scr: creating resource for %s: %w", n.id, err)
	}

	startTime := time.Now()
	s := &started{
		builder:   n.builder,
		id:        n.id,
		hash:      n.cfg.Hash(),
		agentType: n.cfg.AgentType,
		events:    n.events,
		startTime: startTime,
		stop:      make(chan struct{}),
	}

	n.builder.logger.Info("sub-agent custom resource created", "agent_id", n.id, "resource", obj.GetName())
	go s.watch(ctx)

	n.events <- eventbus.SubAgentEvent{
		Kind:      eventbus.SubAgentBecameHealthy,
		AgentID:   n.id,
		Healthy:   health.Healthy{StatusText: "custom resource created"},
		StartTime: startTime,
	}

	return s, nil
}

type started struct {
	builder   *Builder
	id        agentid.ID
	hash      string
	agentType agenttype.FQN
	events    chan<- eventbus.SubAgentEvent
	startTime time.Time

	stop chan struct{}
}

// ConfigHash implements subagent.Started.
func (s *started) ConfigHash() string { return s.hash }

// AgentType implements subagent.Started.
func (s *started) AgentType() agenttype.FQN { return s.agentType }

// Stop implements subagent.Started: deletes the custom resource and stops
// the status watch.
func (s *started) Stop(ctx context.Context) error {
	close(s.stop)

	resClient := s.builder.client.Resource(s.builder.gvr).Namespace(s.builder.namespace)
	err := resClient.Delete(ctx, resourceName(s.id), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("k8scr: deleting resource for %s: %w", s.id, err)
	}
	s.builder.logger.Info("sub-agent custom resource deleted", "agent_id", s.id)
	return nil
}

// watch follows the custom resource's status subresource and translates
// Ready conditions into SubAgentEvents, in the style of rancher-fleet's
// dynamic-client watch loop (internal/cmd/agent/trigger/watcher.go).
// resourceVersion is not carried across reconnects: every new watch starts
// without one, so changes made while disconnected are seen only through
// the state the new watch begins from, not as individual events.
func (s *started) watch(ctx context.Context) {
	resClient := s.builder.client.Resource(s.builder.gvr).Namespace(s.builder.namespace)
	resourceVersion := ""

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		w, err := resClient.Watch(ctx, metav1.ListOptions{
			FieldSelector:   "metadata.name=" + resourceName(s.id),
			ResourceVersion: resourceVersion,
		})
		if err != nil {
			s.builder.logger.Warn("k8scr: watch failed, retrying", "agent_id", s.id, "error", err)
			resourceVersion = ""
			select {
			case <-time.After(2 * time.Second):
				continue
			case <-s.stop:
				return
			}
		}

		s.drain(w)
	}
}

func (s *started) drain(w watch.Interface) {
	defer w.Stop()
	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-w.ResultChan():
			if !ok {
				return
			}
			u, ok := event.Object.(*unstructured.Unstructured)
			if !ok {
				continue
			}
			s.reportStatus(u)
		}
	}
}

func (s *started) reportStatus(u *unstructured.Unstructured) {
	ready, found, _ := unstructured.NestedBool(u.Object, "status", "ready")
	if !found {
		return
	}
	if ready {
		s.events <- eventbus.SubAgentEvent{
			Kind:      eventbus.SubAgentBecameHealthy,
			AgentID:   s.id,
			Healthy:   health.Healthy{StatusText: "custom resource ready"},
			StartTime: s.startTime,
		}
		return
	}
	msg, _, _ := unstructured.NestedString(u.Object, "status", "message")
	s.events <- eventbus.SubAgentEvent{
		Kind:    eventbus.SubAgentBecameUnhealthy,
		AgentID: s.id,
		Unhealthy: health.Unhealthy{
			StatusText:       "custom resource not ready",
			LastErrorMessage: msg,
		},
		StartTime: s.startTime,
	}
}

func resourceName(id agentid.ID) string {
	return string(id)
}

func kindFromResource(resource string) string {
	if len(resource) == 0 {
		return resource
	}
	// Naive plural-to-singular + capitalize, adequate for the "subagents"
	// resource name this package expects to be configured with.
	singular := resource
	if len(resource) > 1 && resource[len(resource)-1] == 's' {
		singular = resource[:len(resource)-1]
	}
	return string(singular[0]-32) + singular[1:]
}

func toUnstructuredValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
