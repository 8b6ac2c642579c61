package handlers

import (
  "github.com/gin-gonic/gin"
)

// AssistantStatus reports whether the upstream assistant client has
// credentials; handlers never need the rest of the client surface.
type AssistantStatus interface {
  Configured() bool
}

type AssistantHandler struct {
  assistant AssistantStatus
}

func NewAssistantHandler(assistant AssistantStatus) *AssistantHandler {
  return &AssistantHandler{assistant: assistant}
}

// Info lets clients detect degraded mode before sending a message.
func (ah *AssistantHandler) Info(c *gin.Context) {
  RespondOK(c, gin.H{"configured": ah.assistant.Configured()})
}
