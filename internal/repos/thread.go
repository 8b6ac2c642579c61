package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

type ThreadStats struct {
  TotalThreads      int64       `json:"total_threads"`
  ActiveThreads     int64       `json:"active_threads"`
  ArchivedThreads   int64       `json:"archived_threads"`
  TotalMessages     int64       `json:"total_messages"`
  CategoriesUsed    int64       `json:"categories_used"`
  LastActivity      *time.Time  `json:"last_activity,omitempty"`
}

type CategoryCount struct {
  Category      string      `json:"category"`
  ThreadCount   int64       `json:"thread_count"`
}

type ThreadRepo interface {
  Create(ctx context.Context, tx *gorm.DB, threads []*types.ChatThread) ([]*types.ChatThread, error)
  GetByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.ChatThread, error)
  GetByIDForUser(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID) (*types.ChatThread, error)
  ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, status, category string) ([]*types.ChatThread, error)
  CountActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
  UpdateFields(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID, updates map[string]any) (int64, error)
  BindExternalRef(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, ref string) (bool, error)
  TouchActivity(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, at time.Time) error
  FullDeleteByIDForUser(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID) (int64, error)
  ArchiveInactive(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error)
  CountArchiveCandidates(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time) (int64, error)
  StatsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*ThreadStats, error)
  CategoriesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*CategoryCount, error)
}

type threadRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewThreadRepo(db *gorm.DB, baseLog *logger.Logger) ThreadRepo {
  repoLog := baseLog.With("repo", "ThreadRepo")
  return &threadRepo{db: db, log: repoLog}
}

func (tr *threadRepo) Create(ctx context.Context, tx *gorm.DB, threads []*types.ChatThread) ([]*types.ChatThread, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  if len(threads) == 0 {
    return []*types.ChatThread{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&threads).Error; err != nil {
    return nil, err
  }

  return threads, nil
}

func (tr *threadRepo) GetByID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (*types.ChatThread, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var result types.ChatThread
  err := transaction.WithContext(ctx).
    Where("id = ?", threadID).
    First(&result).Error
  if err == gorm.ErrRecordNotFound {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &result, nil
}

func (tr *threadRepo) GetByIDForUser(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID) (*types.ChatThread, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var result types.ChatThread
  err := transaction.WithContext(ctx).
    Where("id = ? AND user_id = ?", threadID, userID).
    First(&result).Error
  if err == gorm.ErrRecordNotFound {
    return nil, nil
  }
  if err != nil {
    return nil, err
  }
  return &result, nil
}

func (tr *threadRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, status, category string) ([]*types.ChatThread, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  query := transaction.WithContext(ctx).
    Where("user_id = ?", userID)
  if status != "" && status != "all" {
    query = query.Where("status = ?", status)
  }
  if category != "" {
    query = query.Where("category = ?", category)
  }

  var results []*types.ChatThread
  // Boolean sort key keeps NULL last_message_at rows last on both
  // postgres and sqlite.
  if err := query.
    Order("(last_message_at IS NULL), last_message_at DESC, updated_at DESC").
    Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (tr *threadRepo) CountActiveByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("user_id = ? AND status = ?", userID, types.ThreadStatusActive).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (tr *threadRepo) UpdateFields(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID, updates map[string]any) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  if len(updates) == 0 {
    return 0, nil
  }

  result := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("id = ? AND user_id = ?", threadID, userID).
    Updates(updates)
  if result.Error != nil {
    return 0, result.Error
  }
  return result.RowsAffected, nil
}

// BindExternalRef binds the assistant-side thread reference exactly once.
// Returns false when the thread is already bound or missing.
func (tr *threadRepo) BindExternalRef(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, ref string) (bool, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  result := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("id = ? AND external_ref IS NULL", threadID).
    Update("external_ref", ref)
  if result.Error != nil {
    return false, result.Error
  }
  return result.RowsAffected == 1, nil
}

func (tr *threadRepo) TouchActivity(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, at time.Time) error {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  return transaction.WithContext(ctx).Exec(`
    UPDATE chat_thread
    SET last_message_at = ?,
        updated_at = ?,
        message_count = (SELECT COUNT(*) FROM chat_message WHERE thread_id = ? AND deleted_at IS NULL)
    WHERE id = ?`,
    at, at, threadID, threadID,
  ).Error
}

func (tr *threadRepo) FullDeleteByIDForUser(ctx context.Context, tx *gorm.DB, threadID, userID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  result := transaction.WithContext(ctx).
    Unscoped().
    Where("id = ? AND user_id = ?", threadID, userID).
    Delete(&types.ChatThread{})
  if result.Error != nil {
    return 0, result.Error
  }
  return result.RowsAffected, nil
}

func (tr *threadRepo) ArchiveInactive(ctx context.Context, tx *gorm.DB, before time.Time) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  // Threads already archived are excluded by the predicate, which is what
  // makes a second run a no-op.
  result := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("status = ?", types.ThreadStatusActive).
    Where("(last_message_at IS NOT NULL AND last_message_at < ?) OR (last_message_at IS NULL AND created_at < ?)", before, before).
    Update("status", types.ThreadStatusArchived)
  if result.Error != nil {
    return 0, result.Error
  }
  return result.RowsAffected, nil
}

func (tr *threadRepo) CountArchiveCandidates(ctx context.Context, tx *gorm.DB, userID uuid.UUID, before time.Time) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("user_id = ?", userID).
    Where("status = ?", types.ThreadStatusActive).
    Where("(last_message_at IS NOT NULL AND last_message_at < ?) OR (last_message_at IS NULL AND created_at < ?)", before, before).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (tr *threadRepo) StatsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*ThreadStats, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var stats ThreadStats
  if err := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Select(`
      COUNT(*) AS total_threads,
      COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) AS active_threads,
      COALESCE(SUM(CASE WHEN status = 'archived' THEN 1 ELSE 0 END), 0) AS archived_threads,
      COALESCE(SUM(message_count), 0) AS total_messages,
      COUNT(DISTINCT category) AS categories_used`).
    Where("user_id = ?", userID).
    Scan(&stats).Error; err != nil {
    return nil, err
  }

  // MAX() strips the column's declared type on some drivers, so the most
  // recent activity timestamp is read off the raw column instead.
  var lastActive []time.Time
  if err := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Where("user_id = ? AND last_message_at IS NOT NULL", userID).
    Order("last_message_at DESC").
    Limit(1).
    Pluck("last_message_at", &lastActive).Error; err != nil {
    return nil, err
  }
  if len(lastActive) > 0 {
    stats.LastActivity = &lastActive[0]
  }
  return &stats, nil
}

func (tr *threadRepo) CategoriesByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*CategoryCount, error) {
  transaction := tx
  if transaction == nil {
    transaction = tr.db
  }

  var results []*CategoryCount
  if err := transaction.WithContext(ctx).
    Model(&types.ChatThread{}).
    Select("category, COUNT(*) AS thread_count").
    Where("user_id = ? AND status = ?", userID, types.ThreadStatusActive).
    Group("category").
    Order("thread_count DESC, category ASC").
    Scan(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
