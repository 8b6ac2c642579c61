package handlers

import (
  "net/http"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/services"
)

type MaintenanceHandler struct {
  maintenanceService services.MaintenanceService
}

func NewMaintenanceHandler(maintenanceService services.MaintenanceService) *MaintenanceHandler {
  return &MaintenanceHandler{maintenanceService: maintenanceService}
}

func (mh *MaintenanceHandler) Run(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  var req struct {
    Action    string   `json:"action"`
    ThreadIDs []string `json:"thread_ids"`
    Category  string   `json:"category"`
    Days      int      `json:"days"`
  }
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
    return
  }

  var kind services.BulkKind
  ctx := c.Request.Context()
  switch req.Action {
  case "archive_inactive":
    days := req.Days
    if days <= 0 {
      days = 30
    }
    archived, err := mh.maintenanceService.AutoArchiveInactive(ctx, days)
    if err != nil {
      RespondAPIError(c, err)
      return
    }
    RespondOK(c, gin.H{"success": true, "archived": archived})
    return
  case "bulk_archive":
    kind = services.BulkKindArchive
  case "bulk_delete":
    kind = services.BulkKindDelete
  case "bulk_categorize":
    kind = services.BulkKindCategorize
  default:
    RespondAPIError(c, apierr.Validation("unknown action %q", req.Action))
    return
  }

  threadIDs := make([]uuid.UUID, 0, len(req.ThreadIDs))
  for _, raw := range req.ThreadIDs {
    id, err := uuid.Parse(raw)
    if err != nil {
      RespondAPIError(c, apierr.Validation("invalid thread id %q", raw))
      return
    }
    threadIDs = append(threadIDs, id)
  }
  result, err := mh.maintenanceService.RunBulk(ctx, userID, services.BulkOperation{
    Kind:      kind,
    ThreadIDs: threadIDs,
    Category:  req.Category,
  })
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "result": result})
}

func (mh *MaintenanceHandler) Report(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  report, err := mh.maintenanceService.Report(c.Request.Context(), userID)
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{"success": true, "report": report})
}
