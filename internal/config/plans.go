package config

import (
	"errors"
	"fmt"
	"strings"
)

// PlanID identifies a subscription plan in the catalog
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanPro     PlanID = "pro"
	PlanPremium PlanID = "premium"
)

// Unlimited marks a limit with no ceiling
const Unlimited int64 = -1

// ErrUnknownPlan is returned when a plan id is not part of the catalog
var ErrUnknownPlan = errors.New("unknown plan")

// ParsePlanID normalizes and validates a user supplied plan id
func ParsePlanID(s string) (PlanID, error) {
	id := PlanID(strings.ToLower(strings.TrimSpace(s)))
	switch id {
	case PlanFree, PlanPro, PlanPremium:
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlan, s)
}

// ==================== Limit Kinds ====================

// LimitKind names a plan limit that can be checked against usage
type LimitKind string

const (
	LimitFilesPerMonth LimitKind = "files_per_month"
	LimitStorage       LimitKind = "storage_limit"
	LimitAIOperations  LimitKind = "ai_operations"
	LimitAPICalls      LimitKind = "api_calls"
)

// LimitKinds lists every recognized limit kind in display order
var LimitKinds = []LimitKind{LimitFilesPerMonth, LimitStorage, LimitAIOperations, LimitAPICalls}

// ParseLimitKind maps a wire value onto a LimitKind. The camelCase names used by
// the web client are accepted as aliases.
func ParseLimitKind(s string) (LimitKind, bool) {
	switch strings.TrimSpace(s) {
	case string(LimitFilesPerMonth), "filesPerMonth":
		return LimitFilesPerMonth, true
	case string(LimitStorage), "storageLimit":
		return LimitStorage, true
	case string(LimitAIOperations), "aiOperations":
		return LimitAIOperations, true
	case string(LimitAPICalls), "apiCalls":
		return LimitAPICalls, true
	}
	return "", false
}

// ==================== Features ====================

// Feature is a capability flag granted by a plan
type Feature string

const (
	FeaturePDFMerge        Feature = "pdf_merge"
	FeaturePDFSplit        Feature = "pdf_split"
	FeaturePDFCompress     Feature = "pdf_compress"
	FeaturePDFConvert      Feature = "pdf_convert"
	FeatureOCR             Feature = "ocr"
	FeatureAISummary       Feature = "ai_summary"
	FeatureAIChat          Feature = "ai_chat"
	FeatureBatchProcessing Feature = "batch_processing"
	FeaturePrioritySupport Feature = "priority_support"
	FeatureAPIAccess       Feature = "api_access"
	FeatureNoAds           Feature = "no_ads"
)

// ==================== Plan Definitions ====================

// PlanLimits defines the per-period resource limits of a plan.
// Unlimited (-1) means no limit.
type PlanLimits struct {
	FilesPerMonth     int64 // Files processed per calendar month
	MaxFileSizeBytes  int64 // Per-upload file size limit
	StorageBytes      int64 // Stored bytes
	AIOperations      int64 // AI operations per calendar month
	APICalls          int64 // API calls per calendar month
	RequestsPerMinute int64 // HTTP burst throttle
}

// For returns the limit value that matches a limit kind
func (l PlanLimits) For(kind LimitKind) (int64, bool) {
	switch kind {
	case LimitFilesPerMonth:
		return l.FilesPerMonth, true
	case LimitStorage:
		return l.StorageBytes, true
	case LimitAIOperations:
		return l.AIOperations, true
	case LimitAPICalls:
		return l.APICalls, true
	}
	return 0, false
}

// PlanDefinition is an immutable catalog entry
type PlanDefinition struct {
	ID              PlanID
	Name            string
	Limits          PlanLimits
	Features        []Feature
	PriceCents      int64
	Currency        string
	BillingPriceRef string // external price id, empty when the plan cannot be purchased
}

// HasFeature reports whether the plan grants a feature
func (p PlanDefinition) HasFeature(f Feature) bool {
	for _, feature := range p.Features {
		if feature == f {
			return true
		}
	}
	return false
}

// IsBillable reports whether the plan needs an external subscription
func (p PlanDefinition) IsBillable() bool {
	return p.PriceCents > 0
}

var defaultPlans = []PlanDefinition{
	{
		ID:   PlanFree,
		Name: "Free",
		Limits: PlanLimits{
			FilesPerMonth:     10,
			MaxFileSizeBytes:  10 * 1024 * 1024,  // 10 MB
			StorageBytes:      100 * 1024 * 1024, // 100 MB
			AIOperations:      5,
			APICalls:          0,
			RequestsPerMinute: 30,
		},
		Features: []Feature{
			FeaturePDFMerge,
			FeaturePDFSplit,
			FeaturePDFCompress,
		},
		Currency: "usd",
	},
	{
		ID:   PlanPro,
		Name: "Pro",
		Limits: PlanLimits{
			FilesPerMonth:     500,
			MaxFileSizeBytes:  100 * 1024 * 1024,       // 100 MB
			StorageBytes:      10 * 1024 * 1024 * 1024, // 10 GB
			AIOperations:      200,
			APICalls:          1000,
			RequestsPerMinute: 120,
		},
		Features: []Feature{
			FeaturePDFMerge,
			FeaturePDFSplit,
			FeaturePDFCompress,
			FeaturePDFConvert,
			FeatureOCR,
			FeatureAISummary,
			FeatureBatchProcessing,
			FeatureNoAds,
		},
		PriceCents: 999,
		Currency:   "usd",
	},
	{
		ID:   PlanPremium,
		Name: "Premium",
		Limits: PlanLimits{
			FilesPerMonth:     Unlimited,
			MaxFileSizeBytes:  500 * 1024 * 1024,        // 500 MB
			StorageBytes:      100 * 1024 * 1024 * 1024, // 100 GB
			AIOperations:      Unlimited,
			APICalls:          Unlimited,
			RequestsPerMinute: 600,
		},
		Features: []Feature{
			FeaturePDFMerge,
			FeaturePDFSplit,
			FeaturePDFCompress,
			FeaturePDFConvert,
			FeatureOCR,
			FeatureAISummary,
			FeatureAIChat,
			FeatureBatchProcessing,
			FeaturePrioritySupport,
			FeatureAPIAccess,
			FeatureNoAds,
		},
		PriceCents: 2999,
		Currency:   "usd",
	},
}

// Catalog is the read-only set of plans known to the process
type Catalog struct {
	plans map[PlanID]PlanDefinition
	order []PlanID
}

// NewCatalog binds external price references onto the built-in plans.
// priceRefs is keyed by plan id; missing entries leave the plan unbillable.
func NewCatalog(priceRefs map[PlanID]string) *Catalog {
	c := &Catalog{plans: make(map[PlanID]PlanDefinition, len(defaultPlans))}
	for _, p := range defaultPlans {
		p.Features = append([]Feature(nil), p.Features...)
		if ref, ok := priceRefs[p.ID]; ok {
			p.BillingPriceRef = ref
		}
		c.plans[p.ID] = p
		c.order = append(c.order, p.ID)
	}
	return c
}

// DefaultCatalog returns the catalog without any billing price references
func DefaultCatalog() *Catalog {
	return NewCatalog(nil)
}

// Plan returns the definition of a plan
func (c *Catalog) Plan(id PlanID) (PlanDefinition, error) {
	p, ok := c.plans[id]
	if !ok {
		return PlanDefinition{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
	}
	return p, nil
}

// Limits returns the limits of a plan
func (c *Catalog) Limits(id PlanID) (PlanLimits, error) {
	p, err := c.Plan(id)
	if err != nil {
		return PlanLimits{}, err
	}
	return p.Limits, nil
}

// Plans returns every plan in display order
func (c *Catalog) Plans() []PlanDefinition {
	out := make([]PlanDefinition, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.plans[id])
	}
	return out
}

// PlanForPriceRef finds the plan bound to an external price id
func (c *Catalog) PlanForPriceRef(ref string) (PlanID, bool) {
	if ref == "" {
		return "", false
	}
	for _, id := range c.order {
		if c.plans[id].BillingPriceRef == ref {
			return id, true
		}
	}
	return "", false
}

// QuotaError represents a quota limit exceeded error
type QuotaError struct {
	Resource string
	Limit    int64
	Current  int64
	Message  string
}

func (e *QuotaError) Error() string {
	return e.Message
}

// NewQuotaError creates a new quota error
func NewQuotaError(resource string, limit, current int64, message string) *QuotaError {
	return &QuotaError{
		Resource: resource,
		Limit:    limit,
		Current:  current,
		Message:  message,
	}
}
