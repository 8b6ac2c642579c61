package handlers

import (
  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/yungbote/chatdesk-backend/internal/apierr"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/requestdata"
)

type UserHandler struct {
  userRepo repos.UserRepo
}

func NewUserHandler(userRepo repos.UserRepo) *UserHandler {
  return &UserHandler{userRepo: userRepo}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
  rd := requestdata.GetRequestData(c.Request.Context())
  if rd == nil {
    RespondAPIError(c, apierr.Unauthorized("not authenticated"))
    return
  }
  users, err := uh.userRepo.GetByIDs(c.Request.Context(), nil, []uuid.UUID{rd.UserID})
  if err != nil {
    RespondAPIError(c, apierr.Internal(err))
    return
  }
  if len(users) == 0 {
    RespondAPIError(c, apierr.NotFound("user not found"))
    return
  }
  RespondOK(c, gin.H{"user": users[0]})
}
