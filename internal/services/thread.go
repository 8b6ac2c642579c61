package services

import (
  "context"
  "sync"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/normalization"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

// ThreadUpdate carries the caller-editable thread fields. Nil means leave
// the field untouched.
type ThreadUpdate struct {
  Title    *string
  Category *string
}

type ThreadService interface {
  CreateThread(ctx context.Context, userID uuid.UUID, title, category string) (*types.ChatThread, error)
  ListThreads(ctx context.Context, userID uuid.UUID, status, category string) ([]*types.ChatThread, error)
  GetThread(ctx context.Context, threadID, userID uuid.UUID) (*types.ChatThread, error)
  UpdateThread(ctx context.Context, threadID, userID uuid.UUID, update ThreadUpdate) (*types.ChatThread, error)
  ArchiveThread(ctx context.Context, threadID, userID uuid.UUID) error
  RestoreThread(ctx context.Context, threadID, userID uuid.UUID) error
  DeleteThread(ctx context.Context, threadID, userID uuid.UUID) error
  BindExternalRef(ctx context.Context, threadID uuid.UUID, ref string) error
  TouchActivity(ctx context.Context, threadID uuid.UUID, at time.Time) error
  GetStats(ctx context.Context, userID uuid.UUID) (*repos.ThreadStats, error)
  GetCategories(ctx context.Context, userID uuid.UUID) ([]*repos.CategoryCount, error)
}

type threadService struct {
  db          *gorm.DB
  log         *logger.Logger
  threadRepo  repos.ThreadRepo
  messageRepo repos.MessageRepo

  // createLocks serializes thread creation per user so the active-count
  // check and the insert act as one unit even across goroutines.
  createLocks sync.Map
}

func NewThreadService(db *gorm.DB, log *logger.Logger, threadRepo repos.ThreadRepo, messageRepo repos.MessageRepo) ThreadService {
  return &threadService{
    db:          db,
    log:         log.With("service", "ThreadService"),
    threadRepo:  threadRepo,
    messageRepo: messageRepo,
  }
}

func (s *threadService) userLock(userID uuid.UUID) *sync.Mutex {
  v, _ := s.createLocks.LoadOrStore(userID, &sync.Mutex{})
  return v.(*sync.Mutex)
}

func (s *threadService) CreateThread(ctx context.Context, userID uuid.UUID, title, category string) (*types.ChatThread, error) {
  title = normalization.TrimInputString(title)
  if title == "" {
    title = "New Conversation"
  }
  category = normalization.TrimInputString(category)
  if category == "" {
    category = "general"
  }

  lock := s.userLock(userID)
  lock.Lock()
  defer lock.Unlock()

  var created *types.ChatThread
  err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    count, err := s.threadRepo.CountActiveByUser(ctx, tx, userID)
    if err != nil {
      return apierr.Internal(err)
    }
    if count >= types.MaxActiveThreads {
      return apierr.AdmissionDenied("active thread limit of %d reached, archive or delete a conversation first", types.MaxActiveThreads)
    }
    thread := &types.ChatThread{
      ID:       uuid.New(),
      UserID:   userID,
      Title:    title,
      Category: category,
      Status:   types.ThreadStatusActive,
    }
    threads, err := s.threadRepo.Create(ctx, tx, []*types.ChatThread{thread})
    if err != nil {
      return apierr.Internal(err)
    }
    created = threads[0]
    return nil
  })
  if err != nil {
    return nil, err
  }

  s.log.Info("Thread created", "thread_id", created.ID, "user_id", userID, "category", created.Category)
  return created, nil
}

func (s *threadService) ListThreads(ctx context.Context, userID uuid.UUID, status, category string) ([]*types.ChatThread, error) {
  status = normalization.ParseInputString(status)
  if status != "" && status != types.ThreadStatusActive && status != types.ThreadStatusArchived {
    return nil, apierr.Validation("unknown status %q", status)
  }
  threads, err := s.threadRepo.ListByUser(ctx, nil, userID, status, normalization.TrimInputString(category))
  if err != nil {
    return nil, apierr.Internal(err)
  }
  return threads, nil
}

func (s *threadService) GetThread(ctx context.Context, threadID, userID uuid.UUID) (*types.ChatThread, error) {
  thread, err := s.threadRepo.GetByIDForUser(ctx, nil, threadID, userID)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  if thread == nil {
    return nil, apierr.NotFound("thread %s not found", threadID)
  }
  return thread, nil
}

func (s *threadService) UpdateThread(ctx context.Context, threadID, userID uuid.UUID, update ThreadUpdate) (*types.ChatThread, error) {
  updates := map[string]any{}
  if update.Title != nil {
    title := normalization.TrimInputString(*update.Title)
    if title == "" {
      return nil, apierr.Validation("title cannot be empty")
    }
    updates["title"] = title
  }
  if update.Category != nil {
    category := normalization.TrimInputString(*update.Category)
    if category == "" {
      return nil, apierr.Validation("category cannot be empty")
    }
    updates["category"] = category
  }
  if len(updates) == 0 {
    return nil, apierr.Validation("nothing to update")
  }

  affected, err := s.threadRepo.UpdateFields(ctx, nil, threadID, userID, updates)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  if affected == 0 {
    return nil, apierr.NotFound("thread %s not found", threadID)
  }
  return s.GetThread(ctx, threadID, userID)
}

func (s *threadService) setStatus(ctx context.Context, threadID, userID uuid.UUID, status string) error {
  affected, err := s.threadRepo.UpdateFields(ctx, nil, threadID, userID, map[string]any{"status": status})
  if err != nil {
    return apierr.Internal(err)
  }
  if affected == 0 {
    return apierr.NotFound("thread %s not found", threadID)
  }
  return nil
}

// ArchiveThread is idempotent. Archiving an archived thread is a no-op
// success, which is what makes the bulk and auto-archive paths safe to rerun.
func (s *threadService) ArchiveThread(ctx context.Context, threadID, userID uuid.UUID) error {
  return s.setStatus(ctx, threadID, userID, types.ThreadStatusArchived)
}

func (s *threadService) RestoreThread(ctx context.Context, threadID, userID uuid.UUID) error {
  thread, err := s.GetThread(ctx, threadID, userID)
  if err != nil {
    return err
  }
  if thread.Status == types.ThreadStatusActive {
    return nil
  }

  // Restoring re-enters the active set, so it competes for the same cap
  // as creation.
  lock := s.userLock(userID)
  lock.Lock()
  defer lock.Unlock()

  return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    count, err := s.threadRepo.CountActiveByUser(ctx, tx, userID)
    if err != nil {
      return apierr.Internal(err)
    }
    if count >= types.MaxActiveThreads {
      return apierr.AdmissionDenied("active thread limit of %d reached", types.MaxActiveThreads)
    }
    affected, err := s.threadRepo.UpdateFields(ctx, tx, threadID, userID, map[string]any{"status": types.ThreadStatusActive})
    if err != nil {
      return apierr.Internal(err)
    }
    if affected == 0 {
      return apierr.NotFound("thread %s not found", threadID)
    }
    return nil
  })
}

func (s *threadService) DeleteThread(ctx context.Context, threadID, userID uuid.UUID) error {
  return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
    thread, err := s.threadRepo.GetByIDForUser(ctx, tx, threadID, userID)
    if err != nil {
      return apierr.Internal(err)
    }
    if thread == nil {
      return apierr.NotFound("thread %s not found", threadID)
    }
    if err := s.messageRepo.FullDeleteByThreadIDs(ctx, tx, []uuid.UUID{threadID}); err != nil {
      return apierr.Internal(err)
    }
    if _, err := s.threadRepo.FullDeleteByIDForUser(ctx, tx, threadID, userID); err != nil {
      return apierr.Internal(err)
    }
    return nil
  })
}

// BindExternalRef writes the external conversation ref exactly once. A
// second bind attempt with any ref is a conflict, never an overwrite.
func (s *threadService) BindExternalRef(ctx context.Context, threadID uuid.UUID, ref string) error {
  if ref == "" {
    return apierr.Validation("external ref cannot be empty")
  }
  bound, err := s.threadRepo.BindExternalRef(ctx, nil, threadID, ref)
  if err != nil {
    return apierr.Internal(err)
  }
  if !bound {
    return apierr.Conflict("thread %s already bound to an external conversation", threadID)
  }
  return nil
}

func (s *threadService) TouchActivity(ctx context.Context, threadID uuid.UUID, at time.Time) error {
  if err := s.threadRepo.TouchActivity(ctx, nil, threadID, at); err != nil {
    return apierr.Internal(err)
  }
  return nil
}

func (s *threadService) GetStats(ctx context.Context, userID uuid.UUID) (*repos.ThreadStats, error) {
  stats, err := s.threadRepo.StatsByUser(ctx, nil, userID)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  return stats, nil
}

func (s *threadService) GetCategories(ctx context.Context, userID uuid.UUID) ([]*repos.CategoryCount, error) {
  categories, err := s.threadRepo.CategoriesByUser(ctx, nil, userID)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  return categories, nil
}
