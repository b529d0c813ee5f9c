package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/repository"
)

// ReconcileBillingEvent applies a verified provider event to local state.
// Events for unknown customers and unhandled types are acknowledged and ignored.
func (s *entitlementService) ReconcileBillingEvent(ctx context.Context, event *billing.Event) error {
	if event == nil {
		return invalidArgument("event is required")
	}

	var err error
	switch {
	case event.Subscription != nil:
		err = s.reconcileSubscription(ctx, event)
	case event.Invoice != nil:
		err = s.reconcileInvoice(ctx, event)
	default:
		s.logger.Debug("📭 [EntitlementService] Ignoring billing event", "event_id", event.ID, "type", event.Type)
		s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ignored").Inc()
		return nil
	}

	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
		return err
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(event.Type), "ok").Inc()
	return nil
}

// findByExternalRefs resolves the local row from a subscription ref, then a customer ref
func (s *entitlementService) findByExternalRefs(ctx context.Context, subscriptionRef, customerRef string) (*models.Subscription, error) {
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()

	if subscriptionRef != "" {
		sub, err := s.subRepo.FindBySubscriptionRef(storeCtx, subscriptionRef)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, storeError("find subscription by ref", err)
		}
	}
	if customerRef != "" {
		sub, err := s.subRepo.FindByCustomerRef(storeCtx, customerRef)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, storeError("find subscription by customer", err)
		}
	}
	return nil, fmt.Errorf("%w: no subscription for customer %q", ErrNotFound, customerRef)
}

func (s *entitlementService) reconcileSubscription(ctx context.Context, event *billing.Event) error {
	state := event.Subscription

	found, err := s.findByExternalRefs(ctx, state.Ref, state.CustomerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("⚠️ [EntitlementService] Billing event for unknown customer, ignoring",
				"event_id", event.ID,
				"type", event.Type,
				"customer", state.CustomerRef,
			)
			return nil
		}
		return err
	}

	plan, knownPrice := s.catalog.PlanForPriceRef(state.PriceRef)
	now := s.now()

	_, err = s.mutateSubscription(ctx, found.UserID, func(sub *models.Subscription, _ bool) (bool, error) {
		if olderThanApplied(sub, event) {
			s.logger.Warn("⚠️ [EntitlementService] Out-of-order subscription event, ignoring",
				"event_id", event.ID,
				"type", event.Type,
				"user_id", sub.UserID,
				"event_created", event.Created,
				"last_applied", sub.ProviderEventAt,
			)
			return false, nil
		}
		sameRef := sub.SubscriptionRef() == state.Ref

		if event.Type == billing.EventSubscriptionDeleted {
			if !sameRef {
				// Deletion of a subscription the user already replaced
				return false, nil
			}
			markApplied(sub, event)
			sub.ExternalSubscriptionRef = nil
			sub.CancelAtPeriodEnd = false
			sub.Plan = config.PlanFree
			if err := sub.TransitionTo(models.StatusCancelled, now); err != nil {
				s.logger.Warn("⚠️ [EntitlementService] Ignoring cancellation from provider",
					"user_id", sub.UserID,
					"status", sub.Status,
				)
			}
			return true, nil
		}

		fresh := !sameRef
		if fresh && hasLiveExternalSubscription(sub) {
			s.logger.Warn("⚠️ [EntitlementService] Event for a subscription other than the live one, ignoring",
				"user_id", sub.UserID,
				"event_ref", state.Ref,
				"live_ref", sub.SubscriptionRef(),
			)
			return false, nil
		}

		if knownPrice {
			sub.Plan = plan
		} else if state.PriceRef != "" {
			s.logger.Warn("⚠️ [EntitlementService] Unknown price in billing event, keeping plan",
				"user_id", sub.UserID,
				"price", state.PriceRef,
			)
		}
		markApplied(sub, event)
		if !applyProviderState(sub, state, fresh, now) {
			s.logger.Warn("⚠️ [EntitlementService] Provider status not reachable from local status, keeping local",
				"user_id", sub.UserID,
				"local_status", sub.Status,
				"provider_status", state.Status,
			)
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("🔔 [EntitlementService] Reconciled subscription event",
		"event_id", event.ID,
		"type", event.Type,
		"user_id", found.UserID,
		"provider_status", state.Status,
	)
	return nil
}

// olderThanApplied reports whether event was created before the last provider event applied to sub.
// Events without a creation time are always applied.
func olderThanApplied(sub *models.Subscription, event *billing.Event) bool {
	if event.Created.IsZero() || sub.ProviderEventAt == nil {
		return false
	}
	return event.Created.Before(*sub.ProviderEventAt)
}

func markApplied(sub *models.Subscription, event *billing.Event) {
	if event.Created.IsZero() {
		return
	}
	created := event.Created.UTC()
	sub.ProviderEventAt = &created
}

func (s *entitlementService) reconcileInvoice(ctx context.Context, event *billing.Event) error {
	inv := event.Invoice

	found, err := s.findByExternalRefs(ctx, inv.SubscriptionRef, inv.CustomerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Warn("⚠️ [EntitlementService] Invoice for unknown customer, ignoring",
				"event_id", event.ID,
				"invoice", inv.Ref,
				"customer", inv.CustomerRef,
			)
			return nil
		}
		return err
	}

	paid := event.Type == billing.EventInvoicePaid
	txn := &models.BillingTransaction{
		UserID:      found.UserID,
		Plan:        found.Plan,
		AmountCents: inv.AmountCents,
		Currency:    inv.Currency,
		Status:      models.TransactionFailed,
		Description: inv.Description,
		CreatedAt:   inv.Created,
	}
	if paid {
		txn.Status = models.TransactionPaid
	}
	if plan, ok := s.catalog.PlanForPriceRef(inv.PriceRef); ok {
		txn.Plan = plan
	}
	if txn.Currency == "" {
		txn.Currency = "usd"
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = s.now().UTC()
	}
	if inv.Ref != "" {
		ref := inv.Ref
		txn.ExternalInvoiceRef = &ref
	}
	if inv.SubscriptionRef != "" {
		ref := inv.SubscriptionRef
		txn.ExternalSubscriptionRef = &ref
	}

	now := s.now()
	_, err = s.mutateSubscription(ctx, found.UserID, func(sub *models.Subscription, _ bool) (bool, error) {
		if inv.SubscriptionRef != "" && sub.SubscriptionRef() != inv.SubscriptionRef {
			return false, nil
		}
		switch {
		case paid && (sub.Status == models.StatusPastDue || sub.Status == models.StatusPending):
			return true, sub.TransitionTo(models.StatusActive, now)
		case !paid && sub.Status == models.StatusActive:
			return true, sub.TransitionTo(models.StatusPastDue, now)
		}
		return false, nil
	})
	if err != nil {
		return err
	}

	storeCtx, cancel := s.storeContext(ctx)
	created, err := s.txnRepo.Create(storeCtx, txn)
	cancel()
	if err != nil {
		s.metrics.StoreErrorsTotal.WithLabelValues("billing_transaction_create").Inc()
		return storeError("record billing transaction", err)
	}
	if !created {
		s.logger.Info("🔁 [EntitlementService] Invoice already recorded", "invoice", inv.Ref)
		return nil
	}

	s.logger.Info("🧾 [EntitlementService] Recorded invoice",
		"event_id", event.ID,
		"invoice", inv.Ref,
		"user_id", found.UserID,
		"status", txn.Status,
		"amount_cents", txn.AmountCents,
	)
	return nil
}
