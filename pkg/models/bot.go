package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Platform constants for supported messaging platforms.
const (
	PlatformTelegram  = "telegram"
	PlatformWhatsApp  = "whatsapp"
	PlatformInstagram = "instagram"
)

// ValidPlatforms contains all valid platform values.
var ValidPlatforms = []string{PlatformTelegram, PlatformWhatsApp, PlatformInstagram}

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(platform string) bool {
	for _, p := range ValidPlatforms {
		if p == platform {
			return true
		}
	}
	return false
}

// Bot is a messaging-platform integration owned by a single user.
// Token holds the platform credential in plaintext; it is encrypted
// by the service layer before it reaches the database.
type Bot struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Platform   string          `json:"platform"`
	Name       string          `json:"name"`
	Token      *string         `json:"token"`
	WebhookURL *string         `json:"webhook_url"`
	IsActive   bool            `json:"is_active"`
	Config     json.RawMessage `json:"config"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BotUpdate is the allow-listed set of fields an owner may change on a bot.
// A nil field is left untouched. Identity, ownership and platform are not updatable.
type BotUpdate struct {
	Name       *string         `json:"name,omitempty"`
	Token      *string         `json:"token,omitempty"`
	WebhookURL *string         `json:"webhook_url,omitempty"`
	IsActive   *bool           `json:"is_active,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// IsEmpty reports whether the update names no fields.
func (u *BotUpdate) IsEmpty() bool {
	return u.Name == nil && u.Token == nil && u.WebhookURL == nil && u.IsActive == nil && u.Config == nil
}

// IsJSONObject reports whether raw is a JSON object literal.
func IsJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	return obj != nil
}
