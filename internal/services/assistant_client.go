package services

import (
  "bytes"
  "context"
  "encoding/json"
  "errors"
  "fmt"
  "io"
  "math/rand"
  "net"
  "net/http"
  "strconv"
  "strings"
  "time"

  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/utils"
)

type RunStatus string

const (
  RunStatusQueued     RunStatus = "queued"
  RunStatusInProgress RunStatus = "in_progress"
  RunStatusCompleted  RunStatus = "completed"
  RunStatusFailed     RunStatus = "failed"
  RunStatusCancelled  RunStatus = "cancelled"
  RunStatusExpired    RunStatus = "expired"
)

// Terminal reports whether the run has stopped, successfully or not.
func (s RunStatus) Terminal() bool {
  switch s {
  case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
    return true
  }
  return false
}

// AssistantClient is the boundary to the external assistant service. An
// unconfigured client constructs fine but reports Configured() == false;
// the gateway checks that before any call.
type AssistantClient interface {
  Configured() bool
  CreateThread(ctx context.Context) (string, error)
  AddMessage(ctx context.Context, threadRef, role, text string) error
  StartRun(ctx context.Context, threadRef string) (string, error)
  GetRunStatus(ctx context.Context, threadRef, runID string) (RunStatus, error)
  LatestAssistantMessage(ctx context.Context, threadRef string) (string, error)
}

type openAIAssistantClient struct {
  log         *logger.Logger
  baseURL     string
  apiKey      string
  assistantID string
  httpClient  *http.Client

  maxRetries int
}

func NewOpenAIAssistantClient(log *logger.Logger) AssistantClient {
  apiKey := utils.GetEnv("OPENAI_API_KEY", "", nil)
  assistantID := utils.GetEnv("OPENAI_ASSISTANT_ID", "", nil)
  baseURL := utils.GetEnv("OPENAI_BASE_URL", "https://api.openai.com", nil)
  timeoutSec := utils.GetEnvAsInt("OPENAI_TIMEOUT_SECONDS", 60, nil)
  maxRetries := utils.GetEnvAsInt("OPENAI_MAX_RETRIES", 3, nil)

  clientLog := log.With("service", "OpenAIAssistantClient")
  if apiKey == "" || assistantID == "" {
    clientLog.Warn("OpenAI assistant not configured, chat exchanges will run degraded")
  }

  return &openAIAssistantClient{
    log:         clientLog,
    baseURL:     baseURL,
    apiKey:      apiKey,
    assistantID: assistantID,
    httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
    maxRetries:  maxRetries,
  }
}

func (c *openAIAssistantClient) Configured() bool {
  return c.apiKey != "" && c.assistantID != ""
}

type assistantHTTPError struct {
  StatusCode int
  Body       string
}

func (e *assistantHTTPError) Error() string {
  return fmt.Sprintf("assistant http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
  if code == 408 || code == 429 {
    return true
  }
  if code >= 500 && code <= 599 {
    return true
  }
  return false
}

func isRetryableErr(err error) bool {
  if err == nil {
    return false
  }
  if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
    return false
  }
  var netErr net.Error
  if errors.As(err, &netErr) {
    if netErr.Timeout() {
      return true
    }
  }
  var httpErr *assistantHTTPError
  if errors.As(err, &httpErr) {
    return isRetryableHTTP(httpErr.StatusCode)
  }
  return false
}

func jitterSleep(base time.Duration) time.Duration {
  // +/- 20%
  if base <= 0 {
    return 0
  }
  j := 0.2
  delta := base.Seconds() * j
  low := base.Seconds() - delta
  high := base.Seconds() + delta
  if low < 0 {
    low = 0
  }
  v := low + rand.Float64()*(high-low)
  return time.Duration(v * float64(time.Second))
}

func (c *openAIAssistantClient) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
  var buf bytes.Buffer
  if body != nil {
    if err := json.NewEncoder(&buf).Encode(body); err != nil {
      return nil, nil, err
    }
  }

  req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
  if err != nil {
    return nil, nil, err
  }
  req.Header.Set("Authorization", "Bearer "+c.apiKey)
  req.Header.Set("Content-Type", "application/json")
  req.Header.Set("OpenAI-Beta", "assistants=v2")

  resp, err := c.httpClient.Do(req)
  if err != nil {
    return nil, nil, err
  }

  raw, readErr := io.ReadAll(resp.Body)
  _ = resp.Body.Close()
  if readErr != nil {
    return resp, nil, readErr
  }

  if resp.StatusCode < 200 || resp.StatusCode >= 300 {
    return resp, raw, &assistantHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
  }
  return resp, raw, nil
}

func (c *openAIAssistantClient) do(ctx context.Context, method, path string, body any, out any) error {
  // exponential backoff: 1s, 2s, 4s (cap ~10s)
  backoff := 1 * time.Second

  for attempt := 0; attempt <= c.maxRetries; attempt++ {
    if ctx.Err() != nil {
      return ctx.Err()
    }

    resp, raw, err := c.doOnce(ctx, method, path, body)
    if err == nil {
      if out == nil {
        return nil
      }
      if uErr := json.Unmarshal(raw, out); uErr != nil {
        return fmt.Errorf("assistant decode error: %w; raw=%s", uErr, string(raw))
      }
      return nil
    }

    if !isRetryableErr(err) {
      return err
    }
    if attempt == c.maxRetries {
      return err
    }

    // Respect Retry-After when present
    sleepFor := backoff
    if resp != nil {
      ra := strings.TrimSpace(resp.Header.Get("Retry-After"))
      if ra != "" {
        if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
          sleepFor = time.Duration(secs) * time.Second
        }
      }
    }
    if sleepFor > 10*time.Second {
      sleepFor = 10 * time.Second
    }
    sleepFor = jitterSleep(sleepFor)

    c.log.Warn("Assistant request retrying",
      "path", path,
      "attempt", attempt+1,
      "max_retries", c.maxRetries,
      "sleep", sleepFor.String(),
      "error", err.Error(),
    )

    timer := time.NewTimer(sleepFor)
    select {
    case <-ctx.Done():
      timer.Stop()
      return ctx.Err()
    case <-timer.C:
    }
    backoff *= 2
  }

  return fmt.Errorf("unreachable retry loop")
}

// ---- Assistants v2 wire types ----

type assistantThreadResponse struct {
  ID string `json:"id"`
}

type assistantMessageRequest struct {
  Role    string `json:"role"`
  Content string `json:"content"`
}

type assistantRunRequest struct {
  AssistantID string `json:"assistant_id"`
}

type assistantRunResponse struct {
  ID     string `json:"id"`
  Status string `json:"status"`
}

type assistantMessageListResponse struct {
  Data []struct {
    ID      string `json:"id"`
    Role    string `json:"role"`
    Content []struct {
      Type string `json:"type"`
      Text struct {
        Value string `json:"value"`
      } `json:"text"`
    } `json:"content"`
  } `json:"data"`
}

func (c *openAIAssistantClient) CreateThread(ctx context.Context) (string, error) {
  var resp assistantThreadResponse
  if err := c.do(ctx, "POST", "/v1/threads", map[string]any{}, &resp); err != nil {
    return "", err
  }
  if resp.ID == "" {
    return "", fmt.Errorf("assistant thread create returned no id")
  }
  return resp.ID, nil
}

func (c *openAIAssistantClient) AddMessage(ctx context.Context, threadRef, role, text string) error {
  req := assistantMessageRequest{Role: role, Content: text}
  return c.do(ctx, "POST", "/v1/threads/"+threadRef+"/messages", req, nil)
}

func (c *openAIAssistantClient) StartRun(ctx context.Context, threadRef string) (string, error) {
  req := assistantRunRequest{AssistantID: c.assistantID}
  var resp assistantRunResponse
  if err := c.do(ctx, "POST", "/v1/threads/"+threadRef+"/runs", req, &resp); err != nil {
    return "", err
  }
  if resp.ID == "" {
    return "", fmt.Errorf("assistant run create returned no id")
  }
  return resp.ID, nil
}

func (c *openAIAssistantClient) GetRunStatus(ctx context.Context, threadRef, runID string) (RunStatus, error) {
  var resp assistantRunResponse
  if err := c.do(ctx, "GET", "/v1/threads/"+threadRef+"/runs/"+runID, nil, &resp); err != nil {
    return "", err
  }
  return RunStatus(resp.Status), nil
}

func (c *openAIAssistantClient) LatestAssistantMessage(ctx context.Context, threadRef string) (string, error) {
  var resp assistantMessageListResponse
  if err := c.do(ctx, "GET", "/v1/threads/"+threadRef+"/messages?order=desc&limit=20", nil, &resp); err != nil {
    return "", err
  }
  for _, msg := range resp.Data {
    if msg.Role != "assistant" {
      continue
    }
    var text string
    for _, part := range msg.Content {
      if part.Type == "text" && part.Text.Value != "" {
        text += part.Text.Value
      }
    }
    if text != "" {
      return text, nil
    }
  }
  return "", fmt.Errorf("no assistant message found in thread %s", threadRef)
}
