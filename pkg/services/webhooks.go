package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/jsonutil"
	"github.com/ekaya-inc/botdesk/pkg/logging"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
)

// AutoResponseText is recorded as the response to every ingested message.
const AutoResponseText = "Auto-response placeholder"

// placeholderLatencyMs is the response time recorded per platform until
// real message processing exists.
var placeholderLatencyMs = map[string]int{
	models.PlatformTelegram:  100,
	models.PlatformWhatsApp:  150,
	models.PlatformInstagram: 200,
}

// inboundMessage is the platform-neutral part of a webhook payload.
type inboundMessage struct {
	MessageID *string
	SenderID  *string
	Text      *string
}

// WebhookResult is acknowledged back to the platform.
type WebhookResult struct {
	Success   bool       `json:"success"`
	LogID     *uuid.UUID `json:"log_id,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`
}

// Deduper reports whether a platform message is seen for the first time.
type Deduper interface {
	FirstSeen(ctx context.Context, botID uuid.UUID, messageID string) (bool, error)
	// Forget drops a pair recorded by FirstSeen so a retry is processed again.
	Forget(ctx context.Context, botID uuid.UUID, messageID string) error
}

// WebhookService ingests inbound platform events.
type WebhookService interface {
	Ingest(ctx context.Context, platform string, botID uuid.UUID, payload []byte) (*WebhookResult, error)
}

type webhookService struct {
	bots    repositories.BotRepository
	logs    repositories.MessageLogRepository
	deduper Deduper
	logger  *zap.Logger
}

// NewWebhookService creates a new webhook service. deduper may be nil, in
// which case every event is logged.
func NewWebhookService(
	bots repositories.BotRepository,
	logs repositories.MessageLogRepository,
	deduper Deduper,
	logger *zap.Logger,
) WebhookService {
	return &webhookService{
		bots:    bots,
		logs:    logs,
		deduper: deduper,
		logger:  logger.Named("webhooks"),
	}
}

// Ingest maps the payload for platform, checks that botID exists on that
// platform, and appends a message log.
func (s *webhookService) Ingest(ctx context.Context, platform string, botID uuid.UUID, payload []byte) (*WebhookResult, error) {
	latency, ok := placeholderLatencyMs[platform]
	if !ok {
		return nil, fmt.Errorf("%w: unknown platform %q", apperrors.ErrNotFound, platform)
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: webhook body must be a JSON object", apperrors.ErrInvalidInput)
	}

	bot, err := s.bots.GetByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.Platform != platform {
		return nil, fmt.Errorf("%w: bot is not registered for %s", apperrors.ErrNotFound, platform)
	}

	msg, err := extractMessage(platform, trimmed)
	if err != nil {
		return nil, err
	}

	marked := false
	if s.deduper != nil && msg.MessageID != nil {
		first, err := s.deduper.FirstSeen(ctx, bot.ID, *msg.MessageID)
		if err != nil {
			s.logger.Warn("Webhook dedupe check failed; logging event anyway",
				zap.String("bot_id", bot.ID.String()),
				zap.Error(err))
		} else if !first {
			s.logger.Debug("Duplicate webhook event ignored",
				zap.String("bot_id", bot.ID.String()),
				zap.String("message_id", *msg.MessageID))
			return &WebhookResult{Success: true, Duplicate: true}, nil
		}
		marked = first
	}

	responseText := AutoResponseText
	entry := &models.MessageLog{
		BotID:          bot.ID,
		Platform:       platform,
		MessageID:      msg.MessageID,
		SenderID:       msg.SenderID,
		MessageText:    msg.Text,
		ResponseText:   &responseText,
		ResponseTimeMs: &latency,
		IsAutoResponse: true,
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		if marked {
			s.forget(ctx, bot.ID, *msg.MessageID)
		}
		return nil, err
	}

	if msg.Text != nil {
		s.logger.Debug("Webhook message logged",
			zap.String("bot_id", bot.ID.String()),
			zap.String("platform", platform),
			zap.String("text", logging.TruncateString(*msg.Text, logging.MaxMessageLogLength)))
	}

	return &WebhookResult{Success: true, LogID: &entry.ID}, nil
}

// forget releases a dedupe mark after a failed append. It runs detached from
// request cancellation so a dropped connection cannot leave the mark behind.
func (s *webhookService) forget(ctx context.Context, botID uuid.UUID, messageID string) {
	if err := s.deduper.Forget(context.WithoutCancel(ctx), botID, messageID); err != nil {
		s.logger.Warn("Failed to release webhook dedupe mark",
			zap.String("bot_id", botID.String()),
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}

func extractMessage(platform string, payload json.RawMessage) (*inboundMessage, error) {
	switch platform {
	case models.PlatformTelegram:
		return extractTelegram(payload)
	case models.PlatformWhatsApp:
		return &inboundMessage{
			MessageID: jsonutil.OptionalStringAt(payload, "id"),
			SenderID:  jsonutil.OptionalStringAt(payload, "from"),
			Text:      jsonutil.OptionalStringAt(payload, "text", "body"),
		}, nil
	case models.PlatformInstagram:
		return &inboundMessage{
			MessageID: jsonutil.OptionalStringAt(payload, "id"),
			SenderID:  jsonutil.OptionalStringAt(payload, "sender", "id"),
			Text:      jsonutil.OptionalStringAt(payload, "message", "text"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown platform %q", apperrors.ErrNotFound, platform)
	}
}

// extractTelegram decodes a Bot API update. Updates without a message
// (edits, callbacks) are logged with empty fields.
func extractTelegram(payload json.RawMessage) (*inboundMessage, error) {
	var update tgbotapi.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return nil, fmt.Errorf("%w: malformed telegram update: %v", apperrors.ErrInvalidInput, err)
	}

	msg := &inboundMessage{}
	if update.Message == nil {
		return msg, nil
	}

	messageID := strconv.Itoa(update.Message.MessageID)
	msg.MessageID = &messageID
	if update.Message.From != nil {
		senderID := strconv.FormatInt(update.Message.From.ID, 10)
		msg.SenderID = &senderID
	}
	if update.Message.Text != "" {
		text := update.Message.Text
		msg.Text = &text
	}
	return msg, nil
}

var _ WebhookService = (*webhookService)(nil)
