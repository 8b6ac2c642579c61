package services

import (
  "context"
  "time"

  "github.com/google/uuid"
  "gorm.io/gorm"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/normalization"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/types"
)

// SendMessageResult is the payload returned for one completed exchange.
type SendMessageResult struct {
  ThreadID         uuid.UUID          `json:"thread_id"`
  UserMessage      *types.ChatMessage `json:"user_message"`
  AssistantMessage *types.ChatMessage `json:"assistant_message"`
  Degraded         bool               `json:"degraded"`
}

// ChatService ties the pieces of one exchange together: budget admission,
// thread ownership, message persistence, the assistant round-trip, and
// usage metering.
type ChatService interface {
  SendMessage(ctx context.Context, userID, threadID uuid.UUID, content string) (*SendMessageResult, error)
  ListMessages(ctx context.Context, userID, threadID uuid.UUID, limit, offset int) ([]*types.ChatMessage, int64, error)
  SearchMessages(ctx context.Context, userID uuid.UUID, term string, limit int) ([]*repos.MessageSearchHit, error)
}

type chatService struct {
  db           *gorm.DB
  log          *logger.Logger
  threads      ThreadService
  conversation ConversationService
  usage        UsageService
  messageRepo  repos.MessageRepo
  model        string
}

func NewChatService(
  db *gorm.DB,
  log *logger.Logger,
  threads ThreadService,
  conversation ConversationService,
  usage UsageService,
  messageRepo repos.MessageRepo,
  model string,
) ChatService {
  return &chatService{
    db:           db,
    log:          log.With("service", "ChatService"),
    threads:      threads,
    conversation: conversation,
    usage:        usage,
    messageRepo:  messageRepo,
    model:        model,
  }
}

func (s *chatService) SendMessage(ctx context.Context, userID, threadID uuid.UUID, content string) (*SendMessageResult, error) {
  content = normalization.TrimInputString(content)
  if content == "" {
    return nil, apierr.Validation("message cannot be empty")
  }

  // Budget admission runs before anything leaves the process.
  denied, err := s.usage.AdmissionCheck(ctx, userID)
  if err != nil {
    return nil, err
  }
  if denied {
    return nil, apierr.AdmissionDenied("monthly usage limit of $%.2f reached", s.usage.MonthlyLimitUSD())
  }

  thread, err := s.threads.GetThread(ctx, threadID, userID)
  if err != nil {
    return nil, err
  }

  now := time.Now().UTC()
  userMsg := &types.ChatMessage{
    ID:       uuid.New(),
    ThreadID: thread.ID,
    Role:     types.MessageRoleUser,
    Content:  content,
  }
  if _, err := s.messageRepo.Create(ctx, nil, []*types.ChatMessage{userMsg}); err != nil {
    return nil, apierr.Internal(err)
  }
  if err := s.threads.TouchActivity(ctx, thread.ID, now); err != nil {
    return nil, err
  }

  externalRef := ""
  if thread.ExternalRef != nil {
    externalRef = *thread.ExternalRef
  }

  exchange, err := s.conversation.Exchange(ctx, externalRef, content)
  if err != nil {
    return nil, err
  }

  if exchange.NewlyBound {
    if err := s.threads.BindExternalRef(ctx, thread.ID, exchange.ExternalRef); err != nil {
      return nil, err
    }
  }

  assistantMsg := &types.ChatMessage{
    ID:       uuid.New(),
    ThreadID: thread.ID,
    Role:     types.MessageRoleAssistant,
    Content:  exchange.Reply,
  }
  if _, err := s.messageRepo.Create(ctx, nil, []*types.ChatMessage{assistantMsg}); err != nil {
    return nil, apierr.Internal(err)
  }
  if err := s.threads.TouchActivity(ctx, thread.ID, time.Now().UTC()); err != nil {
    return nil, err
  }

  // Metering is best-effort: a failed usage write never fails the exchange.
  inputTokens := s.usage.EstimateTokens(content)
  outputTokens := s.usage.EstimateTokens(exchange.Reply)
  if err := s.usage.RecordUsage(ctx, userID, &thread.ID, &assistantMsg.ID, inputTokens, outputTokens, s.model); err != nil {
    s.log.Error("Recording usage failed", "thread_id", thread.ID, "error", err.Error())
  }

  return &SendMessageResult{
    ThreadID:         thread.ID,
    UserMessage:      userMsg,
    AssistantMessage: assistantMsg,
    Degraded:         exchange.Degraded,
  }, nil
}

func (s *chatService) ListMessages(ctx context.Context, userID, threadID uuid.UUID, limit, offset int) ([]*types.ChatMessage, int64, error) {
  if _, err := s.threads.GetThread(ctx, threadID, userID); err != nil {
    return nil, 0, err
  }
  messages, err := s.messageRepo.ListByThreadID(ctx, nil, threadID, limit, offset)
  if err != nil {
    return nil, 0, apierr.Internal(err)
  }
  total, err := s.messageRepo.CountByThreadID(ctx, nil, threadID)
  if err != nil {
    return nil, 0, apierr.Internal(err)
  }
  return messages, total, nil
}

func (s *chatService) SearchMessages(ctx context.Context, userID uuid.UUID, term string, limit int) ([]*repos.MessageSearchHit, error) {
  term = normalization.TrimInputString(term)
  if term == "" {
    return nil, apierr.Validation("search term cannot be empty")
  }
  if limit <= 0 || limit > 100 {
    limit = 50
  }
  hits, err := s.messageRepo.SearchByUser(ctx, nil, userID, term, limit)
  if err != nil {
    return nil, apierr.Internal(err)
  }
  return hits, nil
}
