package services

import (
  "context"
  "fmt"
  "testing"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

func newTestMaintenanceService(t *testing.T) (MaintenanceService, ThreadService, *gorm.DB) {
  t.Helper()
  gdb := newTestDB(t)
  log := logger.NewNop()
  threadRepo := repos.NewThreadRepo(gdb, log)
  messageRepo := repos.NewMessageRepo(gdb, log)
  threads := NewThreadService(gdb, log, threadRepo, messageRepo)
  maintenance := NewMaintenanceService(gdb, log, threads, threadRepo)
  return maintenance, threads, gdb
}

func backdateThread(t *testing.T, gdb *gorm.DB, threadID uuid.UUID, at time.Time) {
  t.Helper()
  if err := gdb.Exec("UPDATE chat_thread SET last_message_at = ?, created_at = ? WHERE id = ?", at, at, threadID).Error; err != nil {
    t.Fatalf("backdate: %v", err)
  }
}

func TestAutoArchiveInactive(t *testing.T) {
  ctx := context.Background()
  maintenance, threads, gdb := newTestMaintenanceService(t)
  user := newTestUser(t, gdb)

  stale, err := threads.CreateThread(ctx, user.ID, "stale", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  fresh, err := threads.CreateThread(ctx, user.ID, "fresh", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  backdateThread(t, gdb, stale.ID, time.Now().UTC().AddDate(0, 0, -45))

  archived, err := maintenance.AutoArchiveInactive(ctx, 30)
  if err != nil {
    t.Fatalf("AutoArchiveInactive: %v", err)
  }
  if archived != 1 {
    t.Errorf("archived = %d, want 1", archived)
  }

  gotStale, _ := threads.GetThread(ctx, stale.ID, user.ID)
  gotFresh, _ := threads.GetThread(ctx, fresh.ID, user.ID)
  if gotStale.Status != types.ThreadStatusArchived {
    t.Errorf("stale status = %q, want archived", gotStale.Status)
  }
  if gotFresh.Status != types.ThreadStatusActive {
    t.Errorf("fresh status = %q, want active", gotFresh.Status)
  }

  // Second pass touches nothing.
  archived, err = maintenance.AutoArchiveInactive(ctx, 30)
  if err != nil {
    t.Fatalf("second pass: %v", err)
  }
  if archived != 0 {
    t.Errorf("second pass archived = %d, want 0", archived)
  }
}

func TestAutoArchiveUsesCreatedAtWhenNeverActive(t *testing.T) {
  ctx := context.Background()
  maintenance, threads, gdb := newTestMaintenanceService(t)
  user := newTestUser(t, gdb)

  silent, err := threads.CreateThread(ctx, user.ID, "never messaged", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  // No last_message_at; staleness falls back to created_at.
  old := time.Now().UTC().AddDate(0, 0, -60)
  if err := gdb.Exec("UPDATE chat_thread SET created_at = ? WHERE id = ?", old, silent.ID).Error; err != nil {
    t.Fatalf("backdate: %v", err)
  }

  archived, err := maintenance.AutoArchiveInactive(ctx, 30)
  if err != nil {
    t.Fatalf("AutoArchiveInactive: %v", err)
  }
  if archived != 1 {
    t.Errorf("archived = %d, want 1", archived)
  }
}

func TestAutoArchiveRejectsBadDays(t *testing.T) {
  maintenance, _, _ := newTestMaintenanceService(t)
  if _, err := maintenance.AutoArchiveInactive(context.Background(), 0); !apierr.IsCode(err, apierr.CodeValidation) {
    t.Fatalf("got %v, want validation", err)
  }
}

func TestRunBulkPartialSuccess(t *testing.T) {
  ctx := context.Background()
  maintenance, threads, gdb := newTestMaintenanceService(t)
  alice := newTestUser(t, gdb)
  bob := newTestUser(t, gdb)

  mine1, err := threads.CreateThread(ctx, alice.ID, "mine 1", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  mine2, err := threads.CreateThread(ctx, alice.ID, "mine 2", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  theirs, err := threads.CreateThread(ctx, bob.ID, "not mine", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }

  result, err := maintenance.RunBulk(ctx, alice.ID, BulkOperation{
    Kind:      BulkKindDelete,
    ThreadIDs: []uuid.UUID{mine1.ID, mine2.ID, theirs.ID},
  })
  if err != nil {
    t.Fatalf("RunBulk: %v", err)
  }
  if result.Succeeded != 2 || result.Failed != 1 {
    t.Errorf("result = %+v, want 2 succeeded 1 failed", result)
  }

  // Bob's thread is untouched.
  got, err := threads.GetThread(ctx, theirs.ID, bob.ID)
  if err != nil {
    t.Fatalf("bob's thread gone: %v", err)
  }
  if got.Status != types.ThreadStatusActive {
    t.Errorf("bob's thread status = %q", got.Status)
  }
}

func TestRunBulkCategorize(t *testing.T) {
  ctx := context.Background()
  maintenance, threads, gdb := newTestMaintenanceService(t)
  user := newTestUser(t, gdb)

  ids := make([]uuid.UUID, 0, 3)
  for i := 0; i < 3; i++ {
    thread, err := threads.CreateThread(ctx, user.ID, fmt.Sprintf("t%d", i), "general")
    if err != nil {
      t.Fatalf("create: %v", err)
    }
    ids = append(ids, thread.ID)
  }

  result, err := maintenance.RunBulk(ctx, user.ID, BulkOperation{
    Kind:      BulkKindCategorize,
    ThreadIDs: ids,
    Category:  "projects",
  })
  if err != nil {
    t.Fatalf("RunBulk: %v", err)
  }
  if result.Succeeded != 3 {
    t.Errorf("succeeded = %d, want 3", result.Succeeded)
  }

  categories, err := threads.GetCategories(ctx, user.ID)
  if err != nil {
    t.Fatalf("categories: %v", err)
  }
  if len(categories) != 1 || categories[0].Category != "projects" {
    t.Errorf("categories = %+v", categories)
  }
}

func TestRunBulkValidation(t *testing.T) {
  maintenance, _, gdb := newTestMaintenanceService(t)
  user := newTestUser(t, gdb)
  ctx := context.Background()

  if _, err := maintenance.RunBulk(ctx, user.ID, BulkOperation{Kind: BulkKindArchive}); !apierr.IsCode(err, apierr.CodeValidation) {
    t.Errorf("empty ids: got %v, want validation", err)
  }
  if _, err := maintenance.RunBulk(ctx, user.ID, BulkOperation{Kind: "explode", ThreadIDs: []uuid.UUID{uuid.New()}}); !apierr.IsCode(err, apierr.CodeValidation) {
    t.Errorf("unknown kind: got %v, want validation", err)
  }
  if _, err := maintenance.RunBulk(ctx, user.ID, BulkOperation{Kind: BulkKindCategorize, ThreadIDs: []uuid.UUID{uuid.New()}}); !apierr.IsCode(err, apierr.CodeValidation) {
    t.Errorf("categorize without category: got %v, want validation", err)
  }
}

func TestMaintenanceReport(t *testing.T) {
  ctx := context.Background()
  maintenance, threads, gdb := newTestMaintenanceService(t)
  user := newTestUser(t, gdb)

  stale, err := threads.CreateThread(ctx, user.ID, "stale", "work")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if _, err := threads.CreateThread(ctx, user.ID, "fresh", "work"); err != nil {
    t.Fatalf("create: %v", err)
  }
  backdateThread(t, gdb, stale.ID, time.Now().UTC().AddDate(0, 0, -45))

  // Seed message counts via TouchActivity after inserting rows directly.
  for i := 0; i < 5; i++ {
    msg := &types.ChatMessage{ID: uuid.New(), ThreadID: stale.ID, Role: types.MessageRoleUser, Content: "x"}
    if err := gdb.Create(msg).Error; err != nil {
      t.Fatalf("seed message: %v", err)
    }
  }
  if err := threads.TouchActivity(ctx, stale.ID, time.Now().UTC().AddDate(0, 0, -45)); err != nil {
    t.Fatalf("touch: %v", err)
  }

  report, err := maintenance.Report(ctx, user.ID)
  if err != nil {
    t.Fatalf("Report: %v", err)
  }
  if report.Stats.TotalThreads != 2 {
    t.Errorf("total threads = %d, want 2", report.Stats.TotalThreads)
  }
  if report.Stats.TotalMessages != 5 {
    t.Errorf("total messages = %d, want 5", report.Stats.TotalMessages)
  }
  if report.ArchiveCandidates != 1 {
    t.Errorf("archive candidates = %d, want 1", report.ArchiveCandidates)
  }
  wantKB := float64(5*bytesPerMessage) / 1024.0
  if !almostEqual(report.EstimatedStorageKB, wantKB) {
    t.Errorf("storage = %v KB, want %v", report.EstimatedStorageKB, wantKB)
  }
}
