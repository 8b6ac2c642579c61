package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

type UsageSummary struct {
  MessageCount        int64       `json:"message_count"`
  TotalInputTokens    int64       `json:"total_input_tokens"`
  TotalOutputTokens   int64       `json:"total_output_tokens"`
  TotalCost           float64     `json:"total_cost"`
}

type SystemUsageSummary struct {
  ActiveUsers         int64       `json:"active_users"`
  TotalMessages       int64       `json:"total_messages"`
  TotalInputTokens    int64       `json:"total_input_tokens"`
  TotalOutputTokens   int64       `json:"total_output_tokens"`
  TotalCost           float64     `json:"total_cost"`
  AvgCostPerMessage   float64     `json:"avg_cost_per_message"`
}

type TopUserUsage struct {
  UserID          uuid.UUID   `json:"user_id"`
  Email           string      `json:"email"`
  MessageCount    int64       `json:"message_count"`
  TotalCost       float64     `json:"total_cost"`
}

type UsageRecordRepo interface {
  Create(ctx context.Context, tx *gorm.DB, records []*types.UsageRecord) ([]*types.UsageRecord, error)
  SummaryByUserRange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) (*UsageSummary, error)
  SystemSummaryRange(ctx context.Context, tx *gorm.DB, start, end *time.Time) (*SystemUsageSummary, error)
  TopUsersRange(ctx context.Context, tx *gorm.DB, limit int, start, end time.Time) ([]*TopUserUsage, error)
}

type usageRecordRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewUsageRecordRepo(db *gorm.DB, baseLog *logger.Logger) UsageRecordRepo {
  repoLog := baseLog.With("repo", "UsageRecordRepo")
  return &usageRecordRepo{db: db, log: repoLog}
}

func (urr *usageRecordRepo) Create(ctx context.Context, tx *gorm.DB, records []*types.UsageRecord) ([]*types.UsageRecord, error) {
  transaction := tx
  if transaction == nil {
    transaction = urr.db
  }

  if len(records) == 0 {
    return []*types.UsageRecord{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&records).Error; err != nil {
    return nil, err
  }

  return records, nil
}

// SummaryByUserRange aggregates over [start, end). Time-window comparison
// instead of a dialect-specific month formatter keeps sqlite tests honest.
func (urr *usageRecordRepo) SummaryByUserRange(ctx context.Context, tx *gorm.DB, userID uuid.UUID, start, end time.Time) (*UsageSummary, error) {
  transaction := tx
  if transaction == nil {
    transaction = urr.db
  }

  var summary UsageSummary
  if err := transaction.WithContext(ctx).
    Model(&types.UsageRecord{}).
    Select(`
      COUNT(*) AS message_count,
      COALESCE(SUM(input_tokens), 0) AS total_input_tokens,
      COALESCE(SUM(output_tokens), 0) AS total_output_tokens,
      COALESCE(SUM(cost_usd), 0) AS total_cost`).
    Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, start, end).
    Scan(&summary).Error; err != nil {
    return nil, err
  }
  return &summary, nil
}

func (urr *usageRecordRepo) SystemSummaryRange(ctx context.Context, tx *gorm.DB, start, end *time.Time) (*SystemUsageSummary, error) {
  transaction := tx
  if transaction == nil {
    transaction = urr.db
  }

  query := transaction.WithContext(ctx).
    Model(&types.UsageRecord{}).
    Select(`
      COUNT(DISTINCT user_id) AS active_users,
      COUNT(*) AS total_messages,
      COALESCE(SUM(input_tokens), 0) AS total_input_tokens,
      COALESCE(SUM(output_tokens), 0) AS total_output_tokens,
      COALESCE(SUM(cost_usd), 0) AS total_cost,
      COALESCE(AVG(cost_usd), 0) AS avg_cost_per_message`)
  if start != nil {
    query = query.Where("created_at >= ?", *start)
  }
  if end != nil {
    query = query.Where("created_at < ?", *end)
  }

  var summary SystemUsageSummary
  if err := query.Scan(&summary).Error; err != nil {
    return nil, err
  }
  return &summary, nil
}

func (urr *usageRecordRepo) TopUsersRange(ctx context.Context, tx *gorm.DB, limit int, start, end time.Time) ([]*TopUserUsage, error) {
  transaction := tx
  if transaction == nil {
    transaction = urr.db
  }

  if limit <= 0 {
    limit = 10
  }

  var results []*TopUserUsage
  if err := transaction.WithContext(ctx).
    Table("usage_record AS ur").
    Select(`ur.user_id, u.email, COUNT(*) AS message_count, COALESCE(SUM(ur.cost_usd), 0) AS total_cost`).
    Joins(`JOIN "user" u ON ur.user_id = u.id`).
    Where("ur.created_at >= ? AND ur.created_at < ?", start, end).
    Group("ur.user_id, u.email").
    Order("total_cost DESC").
    Limit(limit).
    Scan(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
