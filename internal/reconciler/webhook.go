package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/zapgate/zapgate/internal/model"
	"github.com/zapgate/zapgate/internal/store"
)

// Billing event types acted on. Everything else is acknowledged and
// ignored.
const (
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventSubscriptionUpdated = "customer.subscription.updated"
)

// WebhookEvent is the billing provider's payload shape: an event type and
// the nested subscription object.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Customer string `json:"customer"`
		} `json:"object"`
	} `json:"data"`
}

// HandleWebhook processes one billing event. A deletion, or an update into
// an inactive status, mirrors the status locally and enqueues
// deauthorization for the owning tenant. Unknown customers and irrelevant
// events are no-ops.
func (r *Reconciler) HandleWebhook(ctx context.Context, event WebhookEvent) error {
	var lostEntitlement bool
	switch event.Type {
	case EventSubscriptionDeleted:
		lostEntitlement = true
	case EventSubscriptionUpdated:
		lostEntitlement = model.InactiveSubStatus(event.Data.Object.Status)
	default:
		return nil
	}

	tenant, err := r.store.GetTenantByBillingRef(ctx, event.Data.Object.Customer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("billing event for unknown customer",
				"event_type", event.Type, "customer", event.Data.Object.Customer)
			return nil
		}
		return fmt.Errorf("resolve billing customer: %w", err)
	}

	status := event.Data.Object.Status
	if event.Type == EventSubscriptionDeleted && status == "" {
		status = model.SubCanceled
	}
	if err := r.store.UpdateTenantSubscription(ctx, tenant.ID, status); err != nil {
		return fmt.Errorf("mirror subscription status: %w", err)
	}

	if !lostEntitlement {
		return nil
	}

	r.logger.Info("subscription lost entitlement, scheduling deauthorization",
		"tenant_id", tenant.ID, "event_type", event.Type, "status", status)
	r.Enqueue(tenant.ID)
	return nil
}
