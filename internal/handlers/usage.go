package handlers

import (
  "strconv"

  "github.com/gin-gonic/gin"

  "github.com/yungbote/chatdesk-backend/internal/services"
)

type UsageHandler struct {
  usageService services.UsageService
}

func NewUsageHandler(usageService services.UsageService) *UsageHandler {
  return &UsageHandler{usageService: usageService}
}

// Get serves both views: type=user (default) is the caller's month with the
// remaining budget, type=system is the aggregate with top users.
func (uh *UsageHandler) Get(c *gin.Context) {
  switch c.DefaultQuery("type", "user") {
  case "system":
    uh.systemUsage(c)
  default:
    uh.userUsage(c)
  }
}

func (uh *UsageHandler) userUsage(c *gin.Context) {
  userID, ok := currentUserID(c)
  if !ok {
    return
  }
  month := c.Query("month")
  summary, err := uh.usageService.MonthlyUsage(c.Request.Context(), userID, month)
  if err != nil {
    RespondAPIError(c, err)
    return
  }

  limit := uh.usageService.MonthlyLimitUSD()
  remaining := limit - summary.TotalCost
  if remaining < 0 {
    remaining = 0
  }
  RespondOK(c, gin.H{
    "success": true,
    "usage":   summary,
    "limits": gin.H{
      "monthly_limit_usd": limit,
      "remaining_usd":     remaining,
      "limit_reached":     summary.TotalCost >= limit,
    },
  })
}

func (uh *UsageHandler) systemUsage(c *gin.Context) {
  if _, ok := currentUserID(c); !ok {
    return
  }
  period := c.DefaultQuery("period", services.UsagePeriodMonthly)
  summary, err := uh.usageService.SystemUsage(c.Request.Context(), period)
  if err != nil {
    RespondAPIError(c, err)
    return
  }

  topLimit, _ := strconv.Atoi(c.DefaultQuery("top", "10"))
  topUsers, err := uh.usageService.TopUsers(c.Request.Context(), topLimit, c.Query("month"))
  if err != nil {
    RespondAPIError(c, err)
    return
  }
  RespondOK(c, gin.H{
    "success":   true,
    "period":    period,
    "usage":     summary,
    "top_users": topUsers,
  })
}
