package types

import (
  "time"
  "github.com/google/uuid"
)

// UsageRecord is an append-only billing audit log. Thread and message are
// referenced by id only so records survive thread deletion.
type UsageRecord struct {
  ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
  UserID          uuid.UUID       `gorm:"type:uuid;index;not null;column:user_id" json:"user_id"`
  ThreadID        *uuid.UUID      `gorm:"type:uuid;index;column:thread_id" json:"thread_id,omitempty"`
  MessageID       *uuid.UUID      `gorm:"type:uuid;column:message_id" json:"message_id,omitempty"`
  InputTokens     int             `gorm:"not null;default:0;column:input_tokens" json:"input_tokens"`
  OutputTokens    int             `gorm:"not null;default:0;column:output_tokens" json:"output_tokens"`
  Model           string          `gorm:"not null;column:model" json:"model"`
  CostUSD         float64         `gorm:"type:decimal(10,6);not null;default:0;column:cost_usd" json:"cost_usd"`
  CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
  UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
}

func (UsageRecord) TableName() string {
  return "usage_record"
}
