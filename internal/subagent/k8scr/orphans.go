package k8scr

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/fleetcontrol/agentcontrol/internal/agentid"
)

// CollectOrphans deletes any custom resource of this Builder's kind in its
// namespace whose name is not in want. This supplements the core
// reconcile loop (which only ever acts on AgentIDs it currently knows
// about) with the original implementation's garbage-collection pass for
// custom resources left behind when the control plane went down after an
// agent dropped out of the desired config but before its resource was
// deleted. Resources are matched by name only; no label or owner check is
// made.
func (b *Builder) CollectOrphans(ctx context.Context, want map[agentid.ID]struct{}) error {
	resClient := b.client.Resource(b.gvr).Namespace(b.namespace)

	list, err := resClient.List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("k8scr: listing resources: %w", err)
	}

	for _, item := range list.Items {
		id := agentid.ID(item.GetName())
		if _, ok := want[id]; ok {
			continue
		}
		if err := resClient.Delete(ctx, item.GetName(), metav1.DeleteOptions{}); err != nil {
			return fmt.Errorf("k8scr: deleting orphaned resource %s: %w", item.GetName(), err)
		}
		b.logger.Info("deleted orphaned sub-agent custom resource", "name", item.GetName())
	}
	return nil
}
