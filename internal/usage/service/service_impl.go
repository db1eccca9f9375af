package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tenantly/tenantly/internal/clock"
	"github.com/tenantly/tenantly/internal/observability/metrics"
	usagedomain "github.com/tenantly/tenantly/internal/usage/domain"
	"github.com/tenantly/tenantly/pkg/db"
	"github.com/tenantly/tenantly/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("usage.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req usagedomain.RecordRequest) (*usagedomain.RecordResult, error) {
	if err := validateRecordRequest(req); err != nil {
		return nil, err
	}

	dimension := strings.TrimSpace(req.Dimension)
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)

	recordedAt := req.Timestamp
	if recordedAt.IsZero() {
		recordedAt = s.clock.Now(ctx)
	}

	record := &usagedomain.UsageRecord{
		ID:         s.genID.Generate(),
		OrgID:      req.OrgID,
		Dimension:  dimension,
		Quantity:   req.Quantity,
		RecordedAt: recordedAt.UTC(),
		CreatedAt:  s.clock.Now(ctx),
	}
	if idempotencyKey != "" {
		record.IdempotencyKey = &idempotencyKey
	}
	if req.Metadata != nil {
		record.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted, err := s.insert(ctx, record, idempotencyKey)
	if err != nil {
		s.countRecord("error")
		return nil, err
	}
	if inserted {
		s.countRecord("accepted")
		return &usagedomain.RecordResult{RecordID: record.ID}, nil
	}

	// Conflict on the idempotency key: the logical event already exists.
	existing, err := s.findByIdempotencyKey(ctx, req.OrgID, dimension, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.countRecord("deduplicated")
	return &usagedomain.RecordResult{RecordID: existing.ID, WasDuplicate: true}, nil
}

func (s *Service) RecordBatch(ctx context.Context, reqs []usagedomain.RecordRequest) ([]usagedomain.BatchItemResult, error) {
	results := make([]usagedomain.BatchItemResult, 0, len(reqs))
	for _, req := range reqs {
		res, err := s.Record(ctx, req)
		if err != nil {
			results = append(results, usagedomain.BatchItemResult{Error: err.Error()})
			continue
		}
		results = append(results, usagedomain.BatchItemResult{
			RecordID:     res.RecordID,
			WasDuplicate: res.WasDuplicate,
		})
	}
	return results, nil
}

func (s *Service) Summarize(ctx context.Context, req usagedomain.SummarizeRequest) (*usagedomain.Summary, error) {
	if req.OrgID == 0 {
		return nil, usagedomain.ErrInvalidOrganization
	}
	dimension := strings.TrimSpace(req.Dimension)
	if dimension == "" {
		return nil, usagedomain.ErrInvalidDimension
	}
	if req.Start.IsZero() || req.End.IsZero() || !req.End.After(req.Start) {
		return nil, usagedomain.ErrInvalidInterval
	}

	var records []usagedomain.UsageRecord
	find := func(tx *gorm.DB) error {
		return tx.
			Where("org_id = ? AND dimension = ?", req.OrgID, dimension).
			Where("recorded_at >= ? AND recorded_at < ?", req.Start.UTC(), req.End.UTC()).
			Order("recorded_at ASC").
			Find(&records).Error
	}

	var err error
	if s.db.Dialector.Name() == "postgres" {
		// Reads run on the restricted tier: row visibility is clamped to
		// the tenant even if a later predicate change leaks.
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := rls.WithTenant(tx, int64(req.OrgID)); err != nil {
				return err
			}
			return find(tx)
		})
	} else {
		err = find(s.db.WithContext(ctx))
	}
	if err != nil {
		return nil, err
	}

	summary := &usagedomain.Summary{Records: records, Count: int64(len(records))}
	for _, record := range records {
		summary.Total += record.Quantity
	}
	return summary, nil
}

func (s *Service) CurrentPeriodUsage(ctx context.Context, orgID snowflake.ID, dimension string) (*usagedomain.Summary, error) {
	now := s.clock.Now(ctx)
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	return s.Summarize(ctx, usagedomain.SummarizeRequest{
		OrgID:     orgID,
		Dimension: dimension,
		Start:     start,
		End:       end,
	})
}

// insert writes the record, treating the existence check and the write as a
// single operation: the unique index on (org_id, dimension, idempotency_key)
// plus ON CONFLICT DO NOTHING means two concurrent calls with the same key
// cannot both insert. Returns false when the key already existed.
func (s *Service) insert(ctx context.Context, record *usagedomain.UsageRecord, idempotencyKey string) (bool, error) {
	tx := s.db.WithContext(ctx)
	if idempotencyKey != "" {
		tx = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "org_id"},
				{Name: "dimension"},
				{Name: "idempotency_key"},
			},
			DoNothing: true,
		})
	}
	result := tx.Create(record)
	if result.Error != nil {
		if idempotencyKey != "" && db.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) findByIdempotencyKey(ctx context.Context, orgID snowflake.ID, dimension, key string) (*usagedomain.UsageRecord, error) {
	var record usagedomain.UsageRecord
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND dimension = ? AND idempotency_key = ?", orgID, dimension, key).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Conflict reported but no row found: a concurrent writer's
			// transaction has not landed yet. Surface as transient.
			return nil, errors.New("usage_record_conflict_unresolved")
		}
		return nil, err
	}
	return &record, nil
}

func (s *Service) countRecord(outcome string) {
	if s.metrics != nil {
		s.metrics.UsageRecords.WithLabelValues(outcome).Inc()
	}
}

func validateRecordRequest(req usagedomain.RecordRequest) error {
	if req.OrgID == 0 {
		return usagedomain.ErrInvalidOrganization
	}
	if strings.TrimSpace(req.Dimension) == "" {
		return usagedomain.ErrInvalidDimension
	}
	// Negative quantities are rejected, never clamped.
	if req.Quantity < 0 {
		return usagedomain.ErrInvalidQuantity
	}
	return nil
}
