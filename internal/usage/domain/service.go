package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RecordRequest struct {
	OrgID     snowflake.ID   `json:"org_id"`
	Dimension string         `json:"dimension"`
	Quantity  int64          `json:"quantity"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`

	// IdempotencyKey, when non-empty, makes the call safe to retry any
	// number of times without double-counting.
	IdempotencyKey string `json:"idempotency_key"`
}

type RecordResult struct {
	RecordID     snowflake.ID `json:"record_id"`
	WasDuplicate bool         `json:"was_duplicate"`
}

// BatchItemResult reports the outcome of one item of a batch insert. A
// failed item never drops or duplicates its siblings.
type BatchItemResult struct {
	RecordID     snowflake.ID `json:"record_id,omitempty"`
	WasDuplicate bool         `json:"was_duplicate"`
	Error        string       `json:"error,omitempty"`
}

type SummarizeRequest struct {
	OrgID     snowflake.ID `json:"org_id"`
	Dimension string       `json:"dimension"`

	// Half-open interval [Start, End).
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type Summary struct {
	Total   int64         `json:"total"`
	Count   int64         `json:"count"`
	Records []UsageRecord `json:"records"`
}

type Service interface {
	// Record appends one usage record, deduplicating on the idempotency key.
	Record(ctx context.Context, req RecordRequest) (*RecordResult, error)

	// RecordBatch applies the same per-item duplicate check to each item and
	// reports per-item outcomes.
	RecordBatch(ctx context.Context, reqs []RecordRequest) ([]BatchItemResult, error)

	// Summarize sums quantity over records whose timestamp falls in the
	// half-open interval, records ordered by timestamp ascending.
	Summarize(ctx context.Context, req SummarizeRequest) (*Summary, error)

	// CurrentPeriodUsage summarizes the calendar month containing the
	// ledger clock's now.
	CurrentPeriodUsage(ctx context.Context, orgID snowflake.ID, dimension string) (*Summary, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidDimension    = errors.New("invalid_dimension")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrInvalidInterval     = errors.New("invalid_interval")
)
