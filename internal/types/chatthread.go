package types

import (
  "time"
  "gorm.io/gorm"
  "github.com/google/uuid"
)

const (
  ThreadStatusActive   = "active"
  ThreadStatusArchived = "archived"

  // MaxActiveThreads is the hard cap on concurrently active threads per user.
  MaxActiveThreads = 10
)

type ChatThread struct {
  ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
  UserID          uuid.UUID       `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  User            *User           `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
  Title           string          `gorm:"not null;column:title" json:"title"`
  Category        string          `gorm:"not null;column:category" json:"category"`
  Status          string          `gorm:"not null;index;column:status" json:"status"`
  ExternalRef     *string         `gorm:"column:external_ref" json:"external_ref,omitempty"`
  MessageCount    int             `gorm:"not null;default:0;column:message_count" json:"message_count"`
  LastMessageAt   *time.Time      `gorm:"column:last_message_at" json:"last_message_at,omitempty"`
  CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
  UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
  DeletedAt       gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (ChatThread) TableName() string {
  return "chat_thread"
}
