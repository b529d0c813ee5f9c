package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/billing"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

// ==================== Plan Changes ====================

// ChangePlan moves a user to target. Paid plans are billed first and the local
// row is only written after the provider accepted the change.
func (s *entitlementService) ChangePlan(ctx context.Context, userID uuid.UUID, target config.PlanID, handle BillingHandle) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, invalidArgument("user id is required")
	}
	def, err := s.catalog.Plan(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	view, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := view.Subscription

	if current.Plan == target && current.IsValid() && !current.CancelAtPeriodEnd {
		return current, nil
	}

	s.logger.Info("🔄 [EntitlementService] Changing plan",
		"user_id", userID,
		"from", current.Plan,
		"to", target,
		"status", current.Status,
	)

	var sub *models.Subscription
	if def.IsBillable() {
		sub, err = s.changeToPaidPlan(ctx, current, def, handle)
	} else {
		sub, err = s.changeToFreePlan(ctx, current)
	}
	if err != nil {
		s.metrics.PlanChangesTotal.WithLabelValues(string(target), "error").Inc()
		return nil, err
	}

	s.metrics.PlanChangesTotal.WithLabelValues(string(target), "ok").Inc()
	s.logger.Info("✅ [EntitlementService] Plan changed",
		"user_id", userID,
		"plan", sub.Plan,
		"status", sub.Status,
	)
	return sub, nil
}

func (s *entitlementService) changeToFreePlan(ctx context.Context, current *models.Subscription) (*models.Subscription, error) {
	if hasLiveExternalSubscription(current) {
		ref := current.SubscriptionRef()
		err := s.callBilling(ctx, "cancel_subscription", func(ctx context.Context) error {
			_, err := s.provider.CancelSubscription(ctx, ref, true)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	return s.mutateSubscription(ctx, current.UserID, func(sub *models.Subscription, _ bool) (bool, error) {
		sub.Plan = config.PlanFree
		sub.ExternalSubscriptionRef = nil
		sub.CurrentPeriodStart = nil
		sub.CurrentPeriodEnd = nil
		sub.CancelAtPeriodEnd = false
		if err := sub.TransitionTo(models.StatusActive, now); err != nil {
			return false, err
		}
		sub.CancelledAt = nil
		return true, nil
	})
}

func (s *entitlementService) changeToPaidPlan(ctx context.Context, current *models.Subscription, def config.PlanDefinition, handle BillingHandle) (*models.Subscription, error) {
	if def.BillingPriceRef == "" {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotBillable, def.ID)
	}

	customerRef, err := s.ensureCustomer(ctx, current, handle)
	if err != nil {
		return nil, err
	}

	var state *billing.SubscriptionState
	reuse := hasLiveExternalSubscription(current)
	if reuse {
		ref := current.SubscriptionRef()
		err = s.callBilling(ctx, "change_subscription_price", func(ctx context.Context) error {
			state, err = s.provider.ChangeSubscriptionPrice(ctx, ref, def.BillingPriceRef)
			return err
		})
	} else {
		err = s.callBilling(ctx, "create_subscription", func(ctx context.Context) error {
			state, err = s.provider.CreateSubscription(ctx, customerRef, def.BillingPriceRef)
			return err
		})
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	sub, err := s.mutateSubscription(ctx, current.UserID, func(sub *models.Subscription, _ bool) (bool, error) {
		sub.Plan = def.ID
		ref := customerRef
		sub.ExternalCustomerRef = &ref
		if !applyProviderState(sub, state, !reuse, now) {
			s.logger.Warn("⚠️ [EntitlementService] Provider status not reachable from local status, keeping local",
				"user_id", sub.UserID,
				"local_status", sub.Status,
				"provider_status", state.Status,
			)
		}
		return true, nil
	})
	if err != nil {
		// The provider already changed; webhook reconciliation converges the row later
		s.logger.Error("❌ [EntitlementService] Billing succeeded but local update failed",
			"user_id", current.UserID,
			"plan", def.ID,
			"subscription_ref", state.Ref,
			"error", err,
		)
		return nil, err
	}
	return sub, nil
}

// ensureCustomer returns the user's external customer, creating and storing it when missing
func (s *entitlementService) ensureCustomer(ctx context.Context, current *models.Subscription, handle BillingHandle) (string, error) {
	if ref := current.CustomerRef(); ref != "" {
		return ref, nil
	}

	var customerRef string
	err := s.callBilling(ctx, "create_customer", func(ctx context.Context) error {
		var err error
		customerRef, err = s.provider.CreateCustomer(ctx, current.UserID, handle.Email)
		return err
	})
	if err != nil {
		return "", err
	}

	sub, err := s.mutateSubscription(ctx, current.UserID, func(sub *models.Subscription, _ bool) (bool, error) {
		if sub.CustomerRef() != "" {
			return false, nil
		}
		ref := customerRef
		sub.ExternalCustomerRef = &ref
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return sub.CustomerRef(), nil
}

// ==================== Cancellation ====================

func (s *entitlementService) CancelSubscription(ctx context.Context, userID uuid.UUID, immediate bool) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, invalidArgument("user id is required")
	}

	view, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := view.Subscription

	if current.Plan == config.PlanFree && !current.HasExternalSubscription() {
		return nil, invalidArgument("free plan has no subscription to cancel")
	}
	if immediate && current.Status == models.StatusCancelled {
		return current, nil
	}
	if !immediate && current.CancelAtPeriodEnd {
		return current, nil
	}
	if err := checkCancellable(current, immediate); err != nil {
		return nil, err
	}

	var state *billing.SubscriptionState
	if hasLiveExternalSubscription(current) {
		ref := current.SubscriptionRef()
		err := s.callBilling(ctx, "cancel_subscription", func(ctx context.Context) error {
			var err error
			state, err = s.provider.CancelSubscription(ctx, ref, immediate)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	sub, err := s.mutateSubscription(ctx, userID, func(sub *models.Subscription, _ bool) (bool, error) {
		if err := checkCancellable(sub, immediate); err != nil {
			return false, err
		}
		if immediate {
			sub.CancelAtPeriodEnd = false
			return true, sub.TransitionTo(models.StatusCancelled, now)
		}
		sub.CancelAtPeriodEnd = true
		if state != nil && state.CurrentPeriodEnd != nil {
			sub.CurrentPeriodEnd = state.CurrentPeriodEnd
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("🛑 [EntitlementService] Subscription cancelled",
		"user_id", userID,
		"immediate", immediate,
		"status", sub.Status,
		"period_end", sub.CurrentPeriodEnd,
	)
	return sub, nil
}

func checkCancellable(sub *models.Subscription, immediate bool) error {
	if immediate {
		if !sub.Status.CanTransitionTo(models.StatusCancelled) {
			return fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, sub.Status, models.StatusCancelled)
		}
		return nil
	}
	if !sub.Status.GrantsAccess() {
		return fmt.Errorf("%w: cannot schedule cancellation while %s", ErrInvalidTransition, sub.Status)
	}
	return nil
}

// ==================== Reactivation ====================

func (s *entitlementService) ReactivateSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	if userID == uuid.Nil {
		return nil, invalidArgument("user id is required")
	}

	view, err := s.loadSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := view.Subscription

	if err := s.checkReactivatable(current); err != nil {
		return nil, err
	}

	if current.HasExternalSubscription() {
		ref := current.SubscriptionRef()
		err := s.callBilling(ctx, "reactivate_subscription", func(ctx context.Context) error {
			_, err := s.provider.ReactivateSubscription(ctx, ref)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	now := s.now()
	sub, err := s.mutateSubscription(ctx, userID, func(sub *models.Subscription, _ bool) (bool, error) {
		if err := s.checkReactivatable(sub); err != nil {
			return false, err
		}
		sub.CancelAtPeriodEnd = false
		if sub.Status == models.StatusCancelled {
			if err := sub.TransitionTo(models.StatusActive, now); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("♻️ [EntitlementService] Subscription reactivated",
		"user_id", userID,
		"status", sub.Status,
	)
	return sub, nil
}

// checkReactivatable only admits soft cancellations whose period has not ended
func (s *entitlementService) checkReactivatable(sub *models.Subscription) error {
	if !sub.CancelAtPeriodEnd {
		return fmt.Errorf("%w: no scheduled cancellation", ErrReactivationNotAllowed)
	}
	if sub.PeriodElapsed(s.now()) {
		return fmt.Errorf("%w: billing period already ended", ErrReactivationNotAllowed)
	}
	switch sub.Status {
	case models.StatusActive, models.StatusTrialing, models.StatusCancelled:
		return nil
	}
	return fmt.Errorf("%w: subscription is %s", ErrReactivationNotAllowed, sub.Status)
}

// ==================== Billing Helpers ====================

func (s *entitlementService) callBilling(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if d := s.cfg.BillingTimeoutDuration(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveBillingCall(op, start, err)
	if err != nil {
		s.logger.Error("❌ [EntitlementService] Billing provider call failed",
			"operation", op,
			"error", err,
		)
		return billingError(op, err)
	}
	return nil
}

// hasLiveExternalSubscription is true when the provider still bills the attached subscription
func hasLiveExternalSubscription(sub *models.Subscription) bool {
	if !sub.HasExternalSubscription() {
		return false
	}
	return sub.Status != models.StatusCancelled && sub.Status != models.StatusExpired
}

// applyProviderState copies the provider's view onto the row. A fresh external
// subscription starts a new lifecycle and takes the provider status as is; an
// existing one must follow the transition table. Returns false when the status
// was left unchanged because the transition is not allowed.
func applyProviderState(sub *models.Subscription, state *billing.SubscriptionState, fresh bool, now time.Time) bool {
	ref := state.Ref
	sub.ExternalSubscriptionRef = &ref
	if state.CustomerRef != "" {
		customerRef := state.CustomerRef
		sub.ExternalCustomerRef = &customerRef
	}
	sub.CurrentPeriodStart = state.CurrentPeriodStart
	sub.CurrentPeriodEnd = state.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = state.CancelAtPeriodEnd

	if fresh {
		sub.Status = state.Status
		sub.CancelledAt = nil
		if state.Status == models.StatusCancelled {
			sub.CancelledAt = &now
		}
		return true
	}
	return sub.TransitionTo(state.Status, now) == nil
}
