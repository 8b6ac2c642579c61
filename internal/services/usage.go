package services

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

const (
  UsagePeriodDaily   = "daily"
  UsagePeriodMonthly = "monthly"
  UsagePeriodTotal   = "total"

  // Rough estimate only, roughly 4 chars per token for English text.
  // Billing-grade accuracy would need a real tokenizer.
  charsPerToken = 4
)

type UsageService interface {
  EstimateTokens(text string) int
  RecordUsage(ctx context.Context, userID uuid.UUID, threadID, messageID *uuid.UUID, inputTokens, outputTokens int, model string) error
  MonthlyUsage(ctx context.Context, userID uuid.UUID, month string) (*repos.UsageSummary, error)
  AdmissionCheck(ctx context.Context, userID uuid.UUID) (bool, error)
  MonthlyLimitUSD() float64
  SystemUsage(ctx context.Context, period string) (*repos.SystemUsageSummary, error)
  TopUsers(ctx context.Context, limit int, month string) ([]*repos.TopUserUsage, error)
}

type usageService struct {
  db              *gorm.DB
  log             *logger.Logger
  usageRepo       repos.UsageRecordRepo
  pricing         PricingTable
  monthlyLimitUSD float64
}

func NewUsageService(db *gorm.DB, log *logger.Logger, usageRepo repos.UsageRecordRepo, pricing PricingTable, monthlyLimitUSD float64) UsageService {
  serviceLog := log.With("service", "UsageService")
  return &usageService{
    db:              db,
    log:             serviceLog,
    usageRepo:       usageRepo,
    pricing:         pricing,
    monthlyLimitUSD: monthlyLimitUSD,
  }
}

func (us *usageService) EstimateTokens(text string) int {
  if len(text) == 0 {
    return 0
  }
  return (len(text) + charsPerToken - 1) / charsPerToken
}

// RecordUsage persists one billing record. Callers treat failure as
// best-effort; the error is also logged here so it lands on the
// observability channel regardless.
func (us *usageService) RecordUsage(ctx context.Context, userID uuid.UUID, threadID, messageID *uuid.UUID, inputTokens, outputTokens int, model string) error {
  if model == "" {
    model = us.pricing.DefaultModel
  }
  record := types.UsageRecord{
    ID:           uuid.New(),
    UserID:       userID,
    ThreadID:     threadID,
    MessageID:    messageID,
    InputTokens:  inputTokens,
    OutputTokens: outputTokens,
    Model:        model,
    CostUSD:      us.pricing.Cost(inputTokens, outputTokens, model),
  }
  if _, err := us.usageRepo.Create(ctx, nil, []*types.UsageRecord{&record}); err != nil {
    us.log.Error("Failed to persist usage record",
      "user_id", userID,
      "model", model,
      "input_tokens", inputTokens,
      "output_tokens", outputTokens,
      "error", err,
    )
    return err
  }
  return nil
}

func (us *usageService) MonthlyUsage(ctx context.Context, userID uuid.UUID, month string) (*repos.UsageSummary, error) {
  start, end, err := monthRange(month)
  if err != nil {
    return nil, err
  }
  return us.usageRepo.SummaryByUserRange(ctx, nil, userID, start, end)
}

// AdmissionCheck reports true when the user must be denied: current-month
// cost at or above the monthly limit. Equality denies.
func (us *usageService) AdmissionCheck(ctx context.Context, userID uuid.UUID) (bool, error) {
  summary, err := us.MonthlyUsage(ctx, userID, "")
  if err != nil {
    return false, err
  }
  return summary.TotalCost >= us.monthlyLimitUSD, nil
}

func (us *usageService) MonthlyLimitUSD() float64 {
  return us.monthlyLimitUSD
}

func (us *usageService) SystemUsage(ctx context.Context, period string) (*repos.SystemUsageSummary, error) {
  now := time.Now().UTC()
  switch period {
  case UsagePeriodDaily:
    start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
    end := start.AddDate(0, 0, 1)
    return us.usageRepo.SystemSummaryRange(ctx, nil, &start, &end)
  case UsagePeriodMonthly, "":
    start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
    end := start.AddDate(0, 1, 0)
    return us.usageRepo.SystemSummaryRange(ctx, nil, &start, &end)
  case UsagePeriodTotal:
    return us.usageRepo.SystemSummaryRange(ctx, nil, nil, nil)
  default:
    return nil, apierr.Validation("unknown usage period %q", period)
  }
}

func (us *usageService) TopUsers(ctx context.Context, limit int, month string) ([]*repos.TopUserUsage, error) {
  start, end, err := monthRange(month)
  if err != nil {
    return nil, err
  }
  return us.usageRepo.TopUsersRange(ctx, nil, limit, start, end)
}

// monthRange turns "YYYY-MM" (or "" for the current month) into the
// half-open UTC interval [start, nextMonth).
func monthRange(month string) (time.Time, time.Time, error) {
  var start time.Time
  if month == "" {
    now := time.Now().UTC()
    start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
  } else {
    parsed, err := time.Parse("2006-01", month)
    if err != nil {
      return time.Time{}, time.Time{}, apierr.Validation("invalid month %q, want YYYY-MM", month)
    }
    start = time.Date(parsed.Year(), parsed.Month(), 1, 0, 0, 0, 0, time.UTC)
  }
  return start, start.AddDate(0, 1, 0), nil
}
