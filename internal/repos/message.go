package repos

import (
  "context"
  "time"
  "github.com/google/uuid"
  "gorm.io/gorm"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

type MessageSearchHit struct {
  ID            uuid.UUID   `json:"id"`
  Content       string      `json:"content"`
  Role          string      `json:"role"`
  CreatedAt     time.Time   `json:"created_at"`
  ThreadID      uuid.UUID   `json:"thread_id"`
  ThreadTitle   string      `json:"thread_title"`
  Category      string      `json:"category"`
}

type MessageRepo interface {
  Create(ctx context.Context, tx *gorm.DB, messages []*types.ChatMessage) ([]*types.ChatMessage, error)
  ListByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error)
  CountByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (int64, error)
  FullDeleteByThreadIDs(ctx context.Context, tx *gorm.DB, threadIDs []uuid.UUID) error
  SearchByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, term string, limit int) ([]*MessageSearchHit, error)
}

type messageRepo struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
  repoLog := baseLog.With("repo", "MessageRepo")
  return &messageRepo{db: db, log: repoLog}
}

func (mr *messageRepo) Create(ctx context.Context, tx *gorm.DB, messages []*types.ChatMessage) ([]*types.ChatMessage, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }

  if len(messages) == 0 {
    return []*types.ChatMessage{}, nil
  }

  if err := transaction.WithContext(ctx).Create(&messages).Error; err != nil {
    return nil, err
  }

  return messages, nil
}

func (mr *messageRepo) ListByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID, limit, offset int) ([]*types.ChatMessage, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }

  query := transaction.WithContext(ctx).
    Where("thread_id = ?", threadID).
    Order("created_at ASC")
  if limit > 0 {
    query = query.Limit(limit)
  }
  if offset > 0 {
    query = query.Offset(offset)
  }

  var results []*types.ChatMessage
  if err := query.Find(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}

func (mr *messageRepo) CountByThreadID(ctx context.Context, tx *gorm.DB, threadID uuid.UUID) (int64, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }

  var count int64
  if err := transaction.WithContext(ctx).
    Model(&types.ChatMessage{}).
    Where("thread_id = ?", threadID).
    Count(&count).Error; err != nil {
    return 0, err
  }
  return count, nil
}

func (mr *messageRepo) FullDeleteByThreadIDs(ctx context.Context, tx *gorm.DB, threadIDs []uuid.UUID) error {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }

  if len(threadIDs) == 0 {
    return nil
  }

  if err := transaction.WithContext(ctx).
    Unscoped().
    Where("thread_id IN (?)", threadIDs).
    Delete(&types.ChatMessage{}).Error; err != nil {
    return err
  }

  return nil
}

func (mr *messageRepo) SearchByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, term string, limit int) ([]*MessageSearchHit, error) {
  transaction := tx
  if transaction == nil {
    transaction = mr.db
  }

  if limit <= 0 {
    limit = 20
  }

  var results []*MessageSearchHit
  if err := transaction.WithContext(ctx).
    Table("chat_message AS m").
    Select(`m.id, m.content, m.role, m.created_at,
      t.id AS thread_id, t.title AS thread_title, t.category`).
    Joins("JOIN chat_thread t ON m.thread_id = t.id").
    Where("t.user_id = ? AND m.content LIKE ?", userID, "%"+term+"%").
    Where("m.deleted_at IS NULL AND t.deleted_at IS NULL").
    Order("m.created_at DESC").
    Limit(limit).
    Scan(&results).Error; err != nil {
    return nil, err
  }
  return results, nil
}
