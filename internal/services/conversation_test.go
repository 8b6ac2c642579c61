package services

import (
  "context"
  "strings"
  "testing"
  "time"
  "unicode/utf8"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
)

func newTestConversationService(client AssistantClient, pollInterval, runCeiling time.Duration) ConversationService {
  return &conversationService{
    log:          logger.NewNop(),
    client:       client,
    pollInterval: pollInterval,
    runCeiling:   runCeiling,
  }
}

func TestExchangeDegraded(t *testing.T) {
  client := &fakeAssistantClient{configured: false}
  svc := newTestConversationService(client, time.Millisecond, time.Second)

  result, err := svc.Exchange(context.Background(), "", "hello there")
  if err != nil {
    t.Fatalf("Exchange: %v", err)
  }
  if !result.Degraded {
    t.Error("expected degraded result")
  }
  if !strings.Contains(result.Reply, "hello there") {
    t.Errorf("degraded reply should echo the input, got %q", result.Reply)
  }
  if result.NewlyBound {
    t.Error("degraded exchange must not bind a ref")
  }
  if got := client.calls.Load(); got != 0 {
    t.Errorf("upstream calls = %d, want 0", got)
  }
}

func TestDegradedReplyTruncatesOnRuneBoundary(t *testing.T) {
  long := strings.Repeat("日", 100)
  reply := degradedReply(long)
  if !utf8.ValidString(reply) {
    t.Fatalf("reply contains a split rune: %q", reply)
  }
  if want := strings.Repeat("日", 80) + "..."; !strings.Contains(reply, want) {
    t.Errorf("preview not truncated at 80 runes, got %q", reply)
  }
}

func TestExchangeCompletes(t *testing.T) {
  client := &fakeAssistantClient{
    configured: true,
    statuses:   []RunStatus{RunStatusQueued, RunStatusInProgress, RunStatusCompleted},
    reply:      "the answer",
  }
  svc := newTestConversationService(client, time.Millisecond, time.Second)

  result, err := svc.Exchange(context.Background(), "", "a question")
  if err != nil {
    t.Fatalf("Exchange: %v", err)
  }
  if result.Reply != "the answer" {
    t.Errorf("reply = %q", result.Reply)
  }
  if !result.NewlyBound || result.ExternalRef == "" {
    t.Error("first exchange should create and report an external ref")
  }
  if result.RunID == "" {
    t.Error("run id missing")
  }
  if result.Degraded {
    t.Error("configured exchange must not be degraded")
  }
}

func TestExchangeReusesExistingRef(t *testing.T) {
  client := &fakeAssistantClient{configured: true, statuses: []RunStatus{RunStatusCompleted}}
  svc := newTestConversationService(client, time.Millisecond, time.Second)

  result, err := svc.Exchange(context.Background(), "thread_existing", "more")
  if err != nil {
    t.Fatalf("Exchange: %v", err)
  }
  if result.NewlyBound {
    t.Error("existing ref must not be rebound")
  }
  if result.ExternalRef != "thread_existing" {
    t.Errorf("external ref = %q, want thread_existing", result.ExternalRef)
  }
}

func TestExchangeTimeout(t *testing.T) {
  client := &fakeAssistantClient{
    configured: true,
    statuses:   []RunStatus{RunStatusInProgress},
  }
  svc := newTestConversationService(client, time.Millisecond, 20*time.Millisecond)

  _, err := svc.Exchange(context.Background(), "thread_x", "slow one")
  if !apierr.IsCode(err, apierr.CodeUpstreamTimeout) {
    t.Fatalf("got %v, want upstream_timeout", err)
  }
}

func TestExchangeRunFailure(t *testing.T) {
  for _, terminal := range []RunStatus{RunStatusFailed, RunStatusCancelled, RunStatusExpired} {
    t.Run(string(terminal), func(t *testing.T) {
      client := &fakeAssistantClient{
        configured: true,
        statuses:   []RunStatus{RunStatusInProgress, terminal},
      }
      svc := newTestConversationService(client, time.Millisecond, time.Second)

      _, err := svc.Exchange(context.Background(), "thread_x", "doomed")
      if !apierr.IsCode(err, apierr.CodeUpstreamFailure) {
        t.Fatalf("got %v, want upstream_failure", err)
      }
    })
  }
}

func TestExchangeCancelledContext(t *testing.T) {
  client := &fakeAssistantClient{
    configured: true,
    statuses:   []RunStatus{RunStatusInProgress},
  }
  svc := newTestConversationService(client, 10*time.Millisecond, time.Minute)

  ctx, cancel := context.WithCancel(context.Background())
  go func() {
    time.Sleep(30 * time.Millisecond)
    cancel()
  }()

  _, err := svc.Exchange(ctx, "thread_x", "never ends")
  if err == nil {
    t.Fatal("expected error after cancellation")
  }
}
