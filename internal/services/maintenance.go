package services

import (
  "context"
  "fmt"
  "sync/atomic"
  "time"

  "github.com/google/uuid"
  "golang.org/x/sync/errgroup"
  "gorm.io/gorm"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/normalization"
  "github.com/yungbote/chatdesk-backend/internal/repos"
)

type BulkKind string

const (
  BulkKindArchive    BulkKind = "archive"
  BulkKindDelete     BulkKind = "delete"
  BulkKindCategorize BulkKind = "categorize"
)

// BulkOperation names one of a closed set of per-thread actions. Anything
// outside the three kinds is rejected up front, never dispatched by string.
type BulkOperation struct {
  Kind      BulkKind    `json:"kind"`
  ThreadIDs []uuid.UUID `json:"thread_ids"`
  Category  string      `json:"category,omitempty"`
}

type BulkResult struct {
  Requested int `json:"requested"`
  Succeeded int `json:"succeeded"`
  Failed    int `json:"failed"`
}

type MaintenanceReport struct {
  Stats             *repos.ThreadStats     `json:"stats"`
  Categories        []*repos.CategoryCount `json:"categories"`
  ArchiveCandidates int64                  `json:"archive_candidates"`
  EstimatedStorageKB float64               `json:"estimated_storage_kb"`
}

type MaintenanceService interface {
  AutoArchiveInactive(ctx context.Context, days int) (int64, error)
  RunBulk(ctx context.Context, userID uuid.UUID, op BulkOperation) (*BulkResult, error)
  Report(ctx context.Context, userID uuid.UUID) (*MaintenanceReport, error)
  RunLoop(ctx context.Context, interval time.Duration, days int)
}

const (
  archiveCandidateDays = 30
  bytesPerMessage      = 200
  bulkWorkers          = 4
)

type maintenanceService struct {
  db         *gorm.DB
  log        *logger.Logger
  threads    ThreadService
  threadRepo repos.ThreadRepo
}

func NewMaintenanceService(db *gorm.DB, log *logger.Logger, threads ThreadService, threadRepo repos.ThreadRepo) MaintenanceService {
  return &maintenanceService{
    db:         db,
    log:        log.With("service", "MaintenanceService"),
    threads:    threads,
    threadRepo: threadRepo,
  }
}

func (s *maintenanceService) AutoArchiveInactive(ctx context.Context, days int) (int64, error) {
  if days <= 0 {
    return 0, apierr.Validation("days must be positive, got %d", days)
  }
  before := time.Now().UTC().AddDate(0, 0, -days)
  archived, err := s.threadRepo.ArchiveInactive(ctx, nil, before)
  if err != nil {
    return 0, apierr.Internal(err)
  }
  if archived > 0 {
    s.log.Info("Auto-archived inactive threads", "count", archived, "inactive_days", days)
  }
  return archived, nil
}

// RunBulk applies one action to each listed thread independently: a failure
// on one id never rolls back or skips the others.
func (s *maintenanceService) RunBulk(ctx context.Context, userID uuid.UUID, op BulkOperation) (*BulkResult, error) {
  if len(op.ThreadIDs) == 0 {
    return nil, apierr.Validation("thread_ids cannot be empty")
  }

  var apply func(ctx context.Context, threadID uuid.UUID) error
  switch op.Kind {
  case BulkKindArchive:
    apply = func(ctx context.Context, threadID uuid.UUID) error {
      return s.threads.ArchiveThread(ctx, threadID, userID)
    }
  case BulkKindDelete:
    apply = func(ctx context.Context, threadID uuid.UUID) error {
      return s.threads.DeleteThread(ctx, threadID, userID)
    }
  case BulkKindCategorize:
    category := normalization.TrimInputString(op.Category)
    if category == "" {
      return nil, apierr.Validation("category is required for categorize")
    }
    apply = func(ctx context.Context, threadID uuid.UUID) error {
      _, err := s.threads.UpdateThread(ctx, threadID, userID, ThreadUpdate{Category: &category})
      return err
    }
  default:
    return nil, apierr.Validation("unknown bulk operation %q", op.Kind)
  }

  var succeeded atomic.Int64
  group, groupCtx := errgroup.WithContext(ctx)
  group.SetLimit(bulkWorkers)
  for _, threadID := range op.ThreadIDs {
    id := threadID
    group.Go(func() error {
      if err := apply(groupCtx, id); err != nil {
        s.log.Warn("Bulk action failed for thread", "kind", op.Kind, "thread_id", id, "error", err.Error())
        return nil
      }
      succeeded.Add(1)
      return nil
    })
  }
  _ = group.Wait()

  result := &BulkResult{
    Requested: len(op.ThreadIDs),
    Succeeded: int(succeeded.Load()),
  }
  result.Failed = result.Requested - result.Succeeded
  s.log.Info("Bulk action finished", "kind", op.Kind, "requested", result.Requested, "succeeded", result.Succeeded)
  return result, nil
}

func (s *maintenanceService) Report(ctx context.Context, userID uuid.UUID) (*MaintenanceReport, error) {
  stats, err := s.threadRepo.StatsByUser(ctx, nil, userID)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  categories, err := s.threadRepo.CategoriesByUser(ctx, nil, userID)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  before := time.Now().UTC().AddDate(0, 0, -archiveCandidateDays)
  candidates, err := s.threadRepo.CountArchiveCandidates(ctx, nil, userID, before)
  if err != nil {
    return nil, apierr.Internal(err)
  }

  return &MaintenanceReport{
    Stats:             stats,
    Categories:        categories,
    ArchiveCandidates: candidates,
    EstimatedStorageKB: float64(stats.TotalMessages*bytesPerMessage) / 1024.0,
  }, nil
}

// RunLoop runs auto-archive on a ticker until ctx is cancelled. Meant to be
// launched in its own goroutine from main.
func (s *maintenanceService) RunLoop(ctx context.Context, interval time.Duration, days int) {
  if interval <= 0 {
    interval = 24 * time.Hour
  }
  s.log.Info("Maintenance loop started", "interval", interval.String(), "inactive_days", days)
  ticker := time.NewTicker(interval)
  defer ticker.Stop()

  for {
    select {
    case <-ctx.Done():
      s.log.Info("Maintenance loop stopped")
      return
    case <-ticker.C:
      if _, err := s.AutoArchiveInactive(ctx, days); err != nil {
        s.log.Error("Auto-archive pass failed", "error", fmt.Sprintf("%v", err))
      }
    }
  }
}
