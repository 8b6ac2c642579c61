package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/requestdata"
  "github.com/yungbote/chatdesk-backend/internal/services"
)

type ThreadHandler struct {
  threadService services.ThreadService
}

func NewThreadHandler(threadService services.ThreadService) *ThreadHandler {
  return &ThreadHandler{threadService: threadService}
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil || rd.UserID == uuid.Nil {
    RespondAPIError(c, apierr.Unauthorized("not authenticated"))
    return uuid.Nil, false
  }
  return rd.UserID, true
}

func threadIDParam(c *gin.Context) (uuid.UUID, bool) {
  id, err := uuid.Parse(c.Param("id"))
  if err != nil {
    RespondAPIError(c, apierr.Validation("invalid thread id"))
    return uuid.Nil, false
  }
  return id, true
}

func (th *ThreadHandler) Create(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  var req struct {
    Title    string `json:"title"`
    Category string `json:"category"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }
  thread, err := th.threadService.CreateThread(c.Request.Context(), userID, req.Title, req.Category)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  c.JSON(http.StatusCreated, gin.H{"success": true, "thread": thread})
}

func (th *ThreadHandler) List(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  threads, err := th.threadService.ListThreads(c.Request.Context(), userID, c.Query("status"), c.Query("category"))
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "threads": threads, "count": len(threads)})
}

func (th *ThreadHandler) Get(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  threadID, ok := threadIDParam(c)
  if !ok {
    return
  }
  thread, err := th.threadService.GetThread(c.Request.Context(), threadID, userID)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "thread": thread})
}

// Update handles title/category edits plus status flips. A status of
// "archived" archives, "active" restores; restores compete for the
// active-thread cap.
func (th *ThreadHandler) Update(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  threadID, ok := threadIDParam(c)
  if !ok {
    return
  }
  var req struct {
    Title    *string `json:"title"`
    Category *string `json:"category"`
    Status   *string `json:"status"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }

  ctx := c.Request.Context()
  if req.Status != nil {
    switch *req.Status {
    case "archived":
      if err := th.threadService.ArchiveThread(ctx, threadID, userID); err != nil {
        RespondAPIError(c, err)
        return
      }
    case "active":
      if err := th.threadService.RestoreThread(ctx, threadID, userID); err != nil {
        RespondAPIError(c, err)
        return
      }
    default:
      RespondAPIError(c, apierr.Validation("unknown status %q", *req.Status))
      return
    }
  }

  if req.Title != nil || req.Category != nil {
    if _, err := th.threadService.UpdateThread(ctx, threadID, userID, services.ThreadUpdate{Title: req.Title, Category: req.Category}); err != nil {
      RespondAPIError(c, err)
      return
    }
  }

  thread, err := th.threadService.GetThread(ctx, threadID, userID)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "thread": thread})
}

func (th *ThreadHandler) Delete(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  threadID, ok := threadIDParam(c)
  if !ok {
    return
  }
  if err := th.threadService.DeleteThread(c.Request.Context(), threadID, userID); err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true})
}

func (th *ThreadHandler) Stats(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  stats, err := th.threadService.GetStats(c.Request.Context(), userID)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "stats": stats})
}

func (th *ThreadHandler) Categories(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  categories, err := th.threadService.GetCategories(c.Request.Context(), userID)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "categories": categories})
}
