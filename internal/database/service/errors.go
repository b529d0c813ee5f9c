package service

import (
	"errors"
	"fmt"

	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/config"
	"github.com/EgehanKilicarslan/pdfsaas/backend-go/internal/database/models"
)

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrNotFound               = errors.New("not found")
	ErrStoreUnavailable       = errors.New("store unavailable")
	ErrBillingFailure         = errors.New("billing provider failure")
	ErrPlanNotBillable        = errors.New("plan has no billing price configured")
	ErrQuotaExceeded          = errors.New("quota exceeded")
	ErrReactivationNotAllowed = errors.New("subscription cannot be reactivated")

	ErrUnknownPlan       = config.ErrUnknownPlan
	ErrInvalidTransition = models.ErrInvalidTransition
)

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// storeError marks a durable store failure as retryable for the caller
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

func billingError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBillingFailure, err)
}

func quotaExceeded(kind config.LimitKind, limit, current, amount int64) error {
	qerr := config.NewQuotaError(string(kind), limit, current,
		fmt.Sprintf("%s limit of %d reached (current %d, requested %d)", kind, limit, current, amount),
	)
	return fmt.Errorf("%w: %w", ErrQuotaExceeded, qerr)
}
