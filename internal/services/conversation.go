package services

import (
  "context"
  "fmt"
  "time"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
)

const (
  defaultPollInterval = 1 * time.Second
  defaultRunCeiling   = 30 * time.Second
)

// ExchangeResult is the outcome of one user-message exchange against the
// assistant service.
type ExchangeResult struct {
  Reply       string
  ExternalRef string
  RunID       string
  NewlyBound  bool
  Degraded    bool
}

// ConversationService drives a single exchange: ensure the thread has an
// external conversation context, append the user message, start a run and
// poll it to a terminal state. It never touches the database; binding the
// external ref back onto the thread record is the caller's job.
type ConversationService interface {
  Exchange(ctx context.Context, externalRef, userMessage string) (*ExchangeResult, error)
}

type conversationService struct {
  log    *logger.Logger
  client AssistantClient

  pollInterval time.Duration
  runCeiling   time.Duration
}

func NewConversationService(log *logger.Logger, client AssistantClient) ConversationService {
  return &conversationService{
    log:          log.With("service", "ConversationService"),
    client:       client,
    pollInterval: defaultPollInterval,
    runCeiling:   defaultRunCeiling,
  }
}

// degradedReply is returned when no assistant backend is configured, so the
// rest of the pipeline (persistence, usage metering) stays exercisable.
func degradedReply(userMessage string) string {
  preview := userMessage
  // Truncate on a rune boundary so multi-byte input is never cut mid-sequence.
  if runes := []rune(preview); len(runes) > 80 {
    preview = string(runes[:80]) + "..."
  }
  return fmt.Sprintf("This is a demo response. The assistant service is not configured yet. You said: %q", preview)
}

func (s *conversationService) Exchange(ctx context.Context, externalRef, userMessage string) (*ExchangeResult, error) {
  // Degraded mode is decided before any remote call.
  if !s.client.Configured() {
    return &ExchangeResult{
      Reply:       degradedReply(userMessage),
      ExternalRef: externalRef,
      Degraded:    true,
    }, nil
  }

  result := &ExchangeResult{ExternalRef: externalRef}

  if result.ExternalRef == "" {
    ref, err := s.client.CreateThread(ctx)
    if err != nil {
      return nil, apierr.UpstreamFailure("creating assistant thread: %v", err)
    }
    result.ExternalRef = ref
    result.NewlyBound = true
  }

  if err := s.client.AddMessage(ctx, result.ExternalRef, "user", userMessage); err != nil {
    return nil, apierr.UpstreamFailure("appending message: %v", err)
  }

  runID, err := s.client.StartRun(ctx, result.ExternalRef)
  if err != nil {
    return nil, apierr.UpstreamFailure("starting run: %v", err)
  }
  result.RunID = runID

  status, err := s.pollRun(ctx, result.ExternalRef, runID)
  if err != nil {
    return nil, err
  }
  if status != RunStatusCompleted {
    return nil, apierr.UpstreamFailure("run %s ended %s", runID, status)
  }

  reply, err := s.client.LatestAssistantMessage(ctx, result.ExternalRef)
  if err != nil {
    return nil, apierr.UpstreamFailure("reading assistant reply: %v", err)
  }
  result.Reply = reply
  return result, nil
}

// pollRun polls at a fixed interval until the run reaches a terminal state
// or the wall-clock ceiling passes. The ceiling counts from the first poll,
// not from run creation, so a slow StartRun does not eat into it.
func (s *conversationService) pollRun(ctx context.Context, externalRef, runID string) (RunStatus, error) {
  deadline := time.Now().Add(s.runCeiling)
  timer := time.NewTimer(s.pollInterval)
  defer timer.Stop()

  for {
    select {
    case <-ctx.Done():
      return "", ctx.Err()
    case <-timer.C:
    }

    status, err := s.client.GetRunStatus(ctx, externalRef, runID)
    if err != nil {
      return "", apierr.UpstreamFailure("polling run %s: %v", runID, err)
    }
    if status.Terminal() {
      return status, nil
    }

    if time.Now().After(deadline) {
      s.log.Warn("Assistant run exceeded ceiling", "run_id", runID, "ceiling", s.runCeiling.String())
      return "", apierr.UpstreamTimeout("run %s still %s after %s", runID, status, s.runCeiling)
    }
    timer.Reset(s.pollInterval)
  }
}
