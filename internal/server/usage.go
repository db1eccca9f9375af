package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tenantly/tenantly/internal/ratelimit"
	usagedomain "github.com/tenantly/tenantly/internal/usage/domain"
	"go.uber.org/zap"
)

type recordUsageRequest struct {
	Dimension      string         `json:"dimension"`
	Quantity       int64          `json:"quantity"`
	Timestamp      *time.Time     `json:"timestamp"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`

	// EmitToProvider also reports the quantity against the subscription's
	// metered item. The ledger write and the provider report are two
	// independent writes; retries rely on the idempotency key for the
	// ledger side only.
	EmitToProvider bool `json:"emit_to_provider"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	orgID := orgIDFromContext(c)

	if s.usageLimiter.Enabled() {
		res, err := s.usageLimiter.AllowOrg(c.Request.Context(), orgID)
		if err != nil {
			// The limiter is a guard rail, not a gate; redis being down
			// must not stop ingestion.
			s.log.Warn("usage rate limiter unavailable", zap.Error(err))
		} else if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(res.RetryAfter)))
			AbortWithError(c, ErrRateLimited)
			return
		}
	}

	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	record := usagedomain.RecordRequest{
		OrgID:          orgID,
		Dimension:      strings.TrimSpace(req.Dimension),
		Quantity:       req.Quantity,
		Metadata:       req.Metadata,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	}
	if req.Timestamp != nil {
		record.Timestamp = *req.Timestamp
	}

	result, err := s.usageSvc.Record(c.Request.Context(), record)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if req.EmitToProvider && !result.WasDuplicate {
		subscriptionID, err := s.subscriptionIDForOrg(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if _, err := s.billingSvc.EmitMeteredUsage(c.Request.Context(), subscriptionID, record.Quantity, record.Timestamp); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	status := http.StatusCreated
	if result.WasDuplicate {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

func (s *Server) UsageSummary(c *gin.Context) {
	orgID := orgIDFromContext(c)
	dimension := strings.TrimSpace(c.Query("dimension"))

	start, err := parseTimeQuery(c, "start")
	if err != nil {
		AbortWithError(c, newValidationError("start", "invalid_interval", "invalid start time"))
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		AbortWithError(c, newValidationError("end", "invalid_interval", "invalid end time"))
		return
	}

	var summary *usagedomain.Summary
	if start.IsZero() && end.IsZero() {
		summary, err = s.usageSvc.CurrentPeriodUsage(c.Request.Context(), orgID, dimension)
	} else {
		summary, err = s.usageSvc.Summarize(c.Request.Context(), usagedomain.SummarizeRequest{
			OrgID:     orgID,
			Dimension: dimension,
			Start:     start,
			End:       end,
		})
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func parseTimeQuery(c *gin.Context, key string) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
