package services

import (
  "context"
  "fmt"
  "sync"
  "testing"
  "time"

  "github.com/google/uuid"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

func TestCreateThreadCap(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  for i := 0; i < types.MaxActiveThreads; i++ {
    if _, err := svc.CreateThread(ctx, user.ID, fmt.Sprintf("thread %d", i), "general"); err != nil {
      t.Fatalf("create %d: %v", i, err)
    }
  }

  _, err := svc.CreateThread(ctx, user.ID, "one too many", "general")
  if !apierr.IsCode(err, apierr.CodeAdmissionDenied) {
    t.Fatalf("11th create: got %v, want admission_denied", err)
  }

  // Archiving one frees a slot.
  threads, err := svc.ListThreads(ctx, user.ID, "active", "")
  if err != nil {
    t.Fatalf("list: %v", err)
  }
  if err := svc.ArchiveThread(ctx, threads[0].ID, user.ID); err != nil {
    t.Fatalf("archive: %v", err)
  }
  if _, err := svc.CreateThread(ctx, user.ID, "fits now", "general"); err != nil {
    t.Fatalf("create after archive: %v", err)
  }
}

func TestCreateThreadCapConcurrent(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  const attempts = 20
  var wg sync.WaitGroup
  errs := make([]error, attempts)
  for i := 0; i < attempts; i++ {
    wg.Add(1)
    go func(i int) {
      defer wg.Done()
      _, errs[i] = svc.CreateThread(ctx, user.ID, fmt.Sprintf("t%d", i), "general")
    }(i)
  }
  wg.Wait()

  created := 0
  denied := 0
  for _, err := range errs {
    switch {
    case err == nil:
      created++
    case apierr.IsCode(err, apierr.CodeAdmissionDenied):
      denied++
    default:
      t.Fatalf("unexpected error: %v", err)
    }
  }
  if created != types.MaxActiveThreads {
    t.Errorf("created = %d, want %d", created, types.MaxActiveThreads)
  }
  if denied != attempts-types.MaxActiveThreads {
    t.Errorf("denied = %d, want %d", denied, attempts-types.MaxActiveThreads)
  }
}

func TestCapIsPerUser(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  alice := newTestUser(t, gdb)
  bob := newTestUser(t, gdb)

  for i := 0; i < types.MaxActiveThreads; i++ {
    if _, err := svc.CreateThread(ctx, alice.ID, fmt.Sprintf("a%d", i), "general"); err != nil {
      t.Fatalf("alice create %d: %v", i, err)
    }
  }
  if _, err := svc.CreateThread(ctx, bob.ID, "bob first", "general"); err != nil {
    t.Fatalf("bob should not be capped by alice: %v", err)
  }
}

func TestListThreadsOrdering(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  older, err := svc.CreateThread(ctx, user.ID, "older activity", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  newer, err := svc.CreateThread(ctx, user.ID, "newer activity", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  silent, err := svc.CreateThread(ctx, user.ID, "never touched", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }

  now := time.Now().UTC()
  if err := svc.TouchActivity(ctx, older.ID, now.Add(-2*time.Hour)); err != nil {
    t.Fatalf("touch: %v", err)
  }
  if err := svc.TouchActivity(ctx, newer.ID, now); err != nil {
    t.Fatalf("touch: %v", err)
  }

  threads, err := svc.ListThreads(ctx, user.ID, "", "")
  if err != nil {
    t.Fatalf("list: %v", err)
  }
  if len(threads) != 3 {
    t.Fatalf("len = %d, want 3", len(threads))
  }
  if threads[0].ID != newer.ID || threads[1].ID != older.ID || threads[2].ID != silent.ID {
    t.Errorf("order = [%s %s %s], want [newer older silent]", threads[0].Title, threads[1].Title, threads[2].Title)
  }
}

func TestListThreadsFilters(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  work, err := svc.CreateThread(ctx, user.ID, "work stuff", "work")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if _, err := svc.CreateThread(ctx, user.ID, "personal stuff", "personal"); err != nil {
    t.Fatalf("create: %v", err)
  }
  if err := svc.ArchiveThread(ctx, work.ID, user.ID); err != nil {
    t.Fatalf("archive: %v", err)
  }

  archived, err := svc.ListThreads(ctx, user.ID, "archived", "")
  if err != nil {
    t.Fatalf("list archived: %v", err)
  }
  if len(archived) != 1 || archived[0].ID != work.ID {
    t.Errorf("archived filter returned %d threads", len(archived))
  }

  personal, err := svc.ListThreads(ctx, user.ID, "", "personal")
  if err != nil {
    t.Fatalf("list personal: %v", err)
  }
  if len(personal) != 1 || personal[0].Category != "personal" {
    t.Errorf("category filter returned %d threads", len(personal))
  }

  if _, err := svc.ListThreads(ctx, user.ID, "bogus", ""); !apierr.IsCode(err, apierr.CodeValidation) {
    t.Errorf("bogus status: got %v, want validation error", err)
  }
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  thread, err := svc.CreateThread(ctx, user.ID, "flip me", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }

  if err := svc.ArchiveThread(ctx, thread.ID, user.ID); err != nil {
    t.Fatalf("archive: %v", err)
  }
  // Archiving twice stays a success.
  if err := svc.ArchiveThread(ctx, thread.ID, user.ID); err != nil {
    t.Fatalf("second archive: %v", err)
  }

  if err := svc.RestoreThread(ctx, thread.ID, user.ID); err != nil {
    t.Fatalf("restore: %v", err)
  }
  got, err := svc.GetThread(ctx, thread.ID, user.ID)
  if err != nil {
    t.Fatalf("get: %v", err)
  }
  if got.Status != types.ThreadStatusActive {
    t.Errorf("status = %q, want active", got.Status)
  }
}

func TestRestoreRespectsCap(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  parked, err := svc.CreateThread(ctx, user.ID, "parked", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if err := svc.ArchiveThread(ctx, parked.ID, user.ID); err != nil {
    t.Fatalf("archive: %v", err)
  }
  for i := 0; i < types.MaxActiveThreads; i++ {
    if _, err := svc.CreateThread(ctx, user.ID, fmt.Sprintf("t%d", i), "general"); err != nil {
      t.Fatalf("create %d: %v", i, err)
    }
  }

  if err := svc.RestoreThread(ctx, parked.ID, user.ID); !apierr.IsCode(err, apierr.CodeAdmissionDenied) {
    t.Fatalf("restore at cap: got %v, want admission_denied", err)
  }
}

func TestDeleteThreadCascades(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  thread, err := svc.CreateThread(ctx, user.ID, "doomed", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  for i := 0; i < 3; i++ {
    msg := &types.ChatMessage{ID: uuid.New(), ThreadID: thread.ID, Role: types.MessageRoleUser, Content: fmt.Sprintf("m%d", i)}
    if err := gdb.Create(msg).Error; err != nil {
      t.Fatalf("seed message: %v", err)
    }
  }

  if err := svc.DeleteThread(ctx, thread.ID, user.ID); err != nil {
    t.Fatalf("delete: %v", err)
  }

  var threadCount, msgCount int64
  gdb.Unscoped().Model(&types.ChatThread{}).Where("id = ?", thread.ID).Count(&threadCount)
  gdb.Unscoped().Model(&types.ChatMessage{}).Where("thread_id = ?", thread.ID).Count(&msgCount)
  if threadCount != 0 {
    t.Errorf("thread rows = %d, want 0", threadCount)
  }
  if msgCount != 0 {
    t.Errorf("message rows = %d, want 0", msgCount)
  }
}

func TestDeleteThreadOwnerScoped(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  alice := newTestUser(t, gdb)
  bob := newTestUser(t, gdb)

  thread, err := svc.CreateThread(ctx, alice.ID, "alice's", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if err := svc.DeleteThread(ctx, thread.ID, bob.ID); !apierr.IsCode(err, apierr.CodeNotFound) {
    t.Fatalf("cross-user delete: got %v, want not_found", err)
  }
}

func TestBindExternalRefWriteOnce(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  thread, err := svc.CreateThread(ctx, user.ID, "bind me", "general")
  if err != nil {
    t.Fatalf("create: %v", err)
  }

  if err := svc.BindExternalRef(ctx, thread.ID, "thread_abc"); err != nil {
    t.Fatalf("first bind: %v", err)
  }
  if err := svc.BindExternalRef(ctx, thread.ID, "thread_xyz"); !apierr.IsCode(err, apierr.CodeConflict) {
    t.Fatalf("rebind: got %v, want conflict", err)
  }
  // Same value again is still a conflict: binding is write-once, not
  // idempotent-by-value.
  if err := svc.BindExternalRef(ctx, thread.ID, "thread_abc"); !apierr.IsCode(err, apierr.CodeConflict) {
    t.Fatalf("rebind same value: got %v, want conflict", err)
  }

  got, err := svc.GetThread(ctx, thread.ID, user.ID)
  if err != nil {
    t.Fatalf("get: %v", err)
  }
  if got.ExternalRef == nil || *got.ExternalRef != "thread_abc" {
    t.Errorf("external ref = %v, want thread_abc", got.ExternalRef)
  }
}

func TestStatsAndCategories(t *testing.T) {
  ctx := context.Background()
  gdb := newTestDB(t)
  svc := newTestThreadService(t, gdb)
  user := newTestUser(t, gdb)

  for i := 0; i < 3; i++ {
    if _, err := svc.CreateThread(ctx, user.ID, fmt.Sprintf("w%d", i), "work"); err != nil {
      t.Fatalf("create: %v", err)
    }
  }
  personal, err := svc.CreateThread(ctx, user.ID, "p", "personal")
  if err != nil {
    t.Fatalf("create: %v", err)
  }
  if err := svc.ArchiveThread(ctx, personal.ID, user.ID); err != nil {
    t.Fatalf("archive: %v", err)
  }

  stats, err := svc.GetStats(ctx, user.ID)
  if err != nil {
    t.Fatalf("stats: %v", err)
  }
  if stats.TotalThreads != 4 || stats.ActiveThreads != 3 || stats.ArchivedThreads != 1 {
    t.Errorf("stats = %+v", stats)
  }
  if stats.CategoriesUsed != 2 {
    t.Errorf("CategoriesUsed = %d, want 2", stats.CategoriesUsed)
  }
  if stats.LastActivity != nil {
    t.Errorf("LastActivity = %v, want nil before any message", stats.LastActivity)
  }

  // The aggregate must come back as a real timestamp once a thread sees
  // activity, not a driver-dependent string.
  if err := svc.TouchActivity(ctx, personal.ID, time.Now().UTC()); err != nil {
    t.Fatalf("touch: %v", err)
  }
  stats, err = svc.GetStats(ctx, user.ID)
  if err != nil {
    t.Fatalf("stats after touch: %v", err)
  }
  if stats.LastActivity == nil || stats.LastActivity.IsZero() {
    t.Errorf("LastActivity = %v, want the touch timestamp", stats.LastActivity)
  }

  categories, err := svc.GetCategories(ctx, user.ID)
  if err != nil {
    t.Fatalf("categories: %v", err)
  }
  // Archived personal thread is excluded from the active breakdown.
  if len(categories) != 1 || categories[0].Category != "work" || categories[0].ThreadCount != 3 {
    t.Errorf("categories = %+v", categories)
  }
}
