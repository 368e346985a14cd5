package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageLog records one inbound message and the response sent for it.
// Rows are append-only.
type MessageLog struct {
	ID             uuid.UUID `json:"id"`
	BotID          uuid.UUID `json:"bot_id"`
	Platform       string    `json:"platform"`
	MessageID      *string   `json:"message_id"`
	SenderID       *string   `json:"sender_id"`
	MessageText    *string   `json:"message_text"`
	ResponseText   *string   `json:"response_text"`
	ResponseTimeMs *int      `json:"response_time"` // milliseconds
	IsAutoResponse bool      `json:"is_auto_response"`
	CreatedAt      time.Time `json:"created_at"`
}

// UsageStats aggregates message activity across a user's bots.
type UsageStats struct {
	TotalMessages   int64 `json:"total_messages"`
	ActiveBots      int64 `json:"active_bots"`
	AvgResponseTime int64 `json:"avg_response_time"` // milliseconds, truncated
}

// RecentActivityLimit caps the activity feed.
const RecentActivityLimit = 20
