package services

import (
  "context"
  "fmt"
  "sync/atomic"
  "testing"

  "github.com/google/uuid"
  "gorm.io/driver/sqlite"
  "gorm.io/gorm"
  gormlogger "gorm.io/gorm/logger"

  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
  t.Helper()
  dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
  gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
    Logger: gormlogger.Default.LogMode(gormlogger.Silent),
  })
  if err != nil {
    t.Fatalf("open sqlite: %v", err)
  }
  // One connection keeps concurrent transactions queued instead of
  // tripping sqlite shared-cache table locks.
  if sqlDB, err := gdb.DB(); err == nil {
    sqlDB.SetMaxOpenConns(1)
  }
  if err := gdb.AutoMigrate(
    &types.User{},
    &types.UserToken{},
    &types.ChatThread{},
    &types.ChatMessage{},
    &types.UsageRecord{},
  ); err != nil {
    t.Fatalf("migrate: %v", err)
  }
  t.Cleanup(func() {
    if sqlDB, err := gdb.DB(); err == nil {
      sqlDB.Close()
    }
  })
  return gdb
}

func newTestUser(t *testing.T, gdb *gorm.DB) *types.User {
  t.Helper()
  user := &types.User{
    ID:        uuid.New(),
    Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
    Password:  "hashed",
    FirstName: "Test",
    LastName:  "User",
  }
  if err := gdb.Create(user).Error; err != nil {
    t.Fatalf("create user: %v", err)
  }
  return user
}

func newTestThreadService(t *testing.T, gdb *gorm.DB) ThreadService {
  t.Helper()
  log := logger.NewNop()
  return NewThreadService(gdb, log, repos.NewThreadRepo(gdb, log), repos.NewMessageRepo(gdb, log))
}

// fakeAssistantClient scripts run-status sequences and counts every call,
// so tests can assert how many upstream requests an exchange made.
type fakeAssistantClient struct {
  configured bool
  statuses   []RunStatus
  reply      string

  createErr error
  addErr    error
  startErr  error

  calls        atomic.Int64
  statusCursor int
}

func (f *fakeAssistantClient) Configured() bool { return f.configured }

func (f *fakeAssistantClient) CreateThread(ctx context.Context) (string, error) {
  f.calls.Add(1)
  if f.createErr != nil {
    return "", f.createErr
  }
  return "thread_" + uuid.NewString()[:8], nil
}

func (f *fakeAssistantClient) AddMessage(ctx context.Context, threadRef, role, text string) error {
  f.calls.Add(1)
  return f.addErr
}

func (f *fakeAssistantClient) StartRun(ctx context.Context, threadRef string) (string, error) {
  f.calls.Add(1)
  if f.startErr != nil {
    return "", f.startErr
  }
  return "run_" + uuid.NewString()[:8], nil
}

func (f *fakeAssistantClient) GetRunStatus(ctx context.Context, threadRef, runID string) (RunStatus, error) {
  f.calls.Add(1)
  if len(f.statuses) == 0 {
    return RunStatusCompleted, nil
  }
  status := f.statuses[f.statusCursor]
  if f.statusCursor < len(f.statuses)-1 {
    f.statusCursor++
  }
  return status, nil
}

func (f *fakeAssistantClient) LatestAssistantMessage(ctx context.Context, threadRef string) (string, error) {
  f.calls.Add(1)
  if f.reply == "" {
    return "fake reply", nil
  }
  return f.reply, nil
}
