package types

import (
  "time"
  "gorm.io/datatypes"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

const (
  MessageRoleUser      = "user"
  MessageRoleAssistant = "assistant"
  MessageRoleSystem    = "system"
)

// ChatMessage rows are append-only; nothing updates them after creation.
type ChatMessage struct {
  ID            uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
  ThreadID      uuid.UUID         `gorm:"type:uuid;index;not null;column:thread_id" json:"thread_id"`
  Thread        *ChatThread       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ThreadID;references:ID" json:"-"`
  Role          string            `gorm:"not null;column:role" json:"role"`
  Content       string            `gorm:"not null;column:content" json:"content"`
  Metadata      datatypes.JSON    `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
  CreatedAt     time.Time         `gorm:"not null;index" json:"created_at"`
  UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
  DeletedAt     gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (ChatMessage) TableName() string {
  return "chat_message"
}
