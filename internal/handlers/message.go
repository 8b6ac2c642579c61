package handlers

import (
  "net/http"
  "strconv"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/services"
)

type MessageHandler struct {
  chatService services.ChatService
}

func NewMessageHandler(chatService services.ChatService) *MessageHandler {
  return &MessageHandler{chatService: chatService}
}

func (mh *MessageHandler) Send(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  var req struct {
    ThreadID string `json:"thread_id"`
    Message  string `json:"message"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  threadID, err := uuid.Parse(req.ThreadID)
  if err != nil {
    RespondAPIError(c, apierr.Validation("invalid thread id"))
    return
  }

  result, err := mh.chatService.SendMessage(c.Request.Context(), userID, threadID, req.Message)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "result": result})
}

func (mh *MessageHandler) List(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  threadID, ok := threadIDParam(c)
  if !ok {
    return
  }

  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
  offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
  if limit <= 0 || limit > 200 {
    limit = 50
  }
  if offset < 0 {
    offset = 0
  }

  messages, total, err := mh.chatService.ListMessages(c.Request.Context(), userID, threadID, limit, offset)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "messages": messages, "count": len(messages), "total": total})
}

func (mh *MessageHandler) Search(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
  hits, err := mh.chatService.SearchMessages(c.Request.Context(), userID, c.Query("q"), limit)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "results": hits, "count": len(hits)})
}
