package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/crypto"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
)

// MaxBotNameLength bounds bot display names.
const MaxBotNameLength = 255

// CreateBotRequest is the input for creating a bot.
type CreateBotRequest struct {
	Platform   string          `json:"platform"`
	Name       string          `json:"name"`
	Token      *string         `json:"token"`
	WebhookURL *string         `json:"webhook_url"`
	IsActive   bool            `json:"is_active"`
	Config     json.RawMessage `json:"config"`
}

// BotService defines the interface for owner-scoped bot management.
// Bots returned by the service carry the platform token in plaintext.
type BotService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error)
	Create(ctx context.Context, ownerID uuid.UUID, req *CreateBotRequest) (*models.Bot, error)
	Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error)
	Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error)
	Delete(ctx context.Context, ownerID, botID uuid.UUID) error
}

type botService struct {
	repo   repositories.BotRepository
	sealer crypto.CredentialSealer
	logger *zap.Logger
}

// NewBotService creates a new bot service. Platform tokens are sealed with
// sealer before they reach the repository.
func NewBotService(repo repositories.BotRepository, sealer crypto.CredentialSealer, logger *zap.Logger) BotService {
	return &botService{
		repo:   repo,
		sealer: sealer,
		logger: logger.Named("bots"),
	}
}

func (s *botService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error) {
	bots, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, bot := range bots {
		s.reveal(bot)
	}
	return bots, nil
}

func (s *botService) Create(ctx context.Context, ownerID uuid.UUID, req *CreateBotRequest) (*models.Bot, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request body is required", apperrors.ErrInvalidInput)
	}
	if !models.IsValidPlatform(req.Platform) {
		return nil, fmt.Errorf("%w: platform must be one of %s",
			apperrors.ErrInvalidInput, strings.Join(models.ValidPlatforms, ", "))
	}
	name, err := validateBotName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.WebhookURL != nil {
		if err := validateWebhookURL(*req.WebhookURL); err != nil {
			return nil, err
		}
	}

	config := req.Config
	if len(config) == 0 || string(config) == "null" {
		config = json.RawMessage(`{}`)
	} else if !models.IsJSONObject(config) {
		return nil, fmt.Errorf("%w: config must be a JSON object", apperrors.ErrInvalidInput)
	}

	bot := &models.Bot{
		ID:         uuid.New(),
		UserID:     ownerID,
		Platform:   req.Platform,
		Name:       name,
		WebhookURL: emptyToNil(req.WebhookURL),
		IsActive:   req.IsActive,
		Config:     config,
	}

	bot.Token, err = crypto.SealOptional(s.sealer, req.Token, bot.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to seal bot token: %w", err)
	}

	if err := s.repo.Create(ctx, bot); err != nil {
		return nil, err
	}

	s.logger.Info("Bot created",
		zap.String("bot_id", bot.ID.String()),
		zap.String("platform", bot.Platform))

	bot.Token = emptyToNil(req.Token)
	return bot, nil
}

func (s *botService) Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error) {
	bot, err := s.repo.Get(ctx, ownerID, botID)
	if err != nil {
		return nil, err
	}
	s.reveal(bot)
	return bot, nil
}

func (s *botService) Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error) {
	if update == nil || update.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrInvalidInput)
	}

	changes := *update
	if changes.Name != nil {
		name, err := validateBotName(*changes.Name)
		if err != nil {
			return nil, err
		}
		changes.Name = &name
	}
	if changes.WebhookURL != nil {
		if err := validateWebhookURL(*changes.WebhookURL); err != nil {
			return nil, err
		}
	}
	if changes.Config != nil && !models.IsJSONObject(changes.Config) {
		return nil, fmt.Errorf("%w: config must be a JSON object", apperrors.ErrInvalidInput)
	}
	if changes.Token != nil && *changes.Token != "" {
		sealed, err := s.sealer.Seal(*changes.Token, botID.String())
		if err != nil {
			return nil, fmt.Errorf("failed to seal bot token: %w", err)
		}
		changes.Token = &sealed
	}

	bot, err := s.repo.Update(ctx, ownerID, botID, &changes)
	if err != nil {
		return nil, err
	}
	s.reveal(bot)
	return bot, nil
}

func (s *botService) Delete(ctx context.Context, ownerID, botID uuid.UUID) error {
	if err := s.repo.Delete(ctx, ownerID, botID); err != nil {
		return err
	}
	s.logger.Info("Bot deleted", zap.String("bot_id", botID.String()))
	return nil
}

// reveal replaces the sealed token with its plaintext. A token that cannot
// be opened (for example after a key change) is dropped from the response.
func (s *botService) reveal(bot *models.Bot) {
	plaintext, err := crypto.OpenOptional(s.sealer, bot.Token, bot.ID.String())
	if err != nil {
		s.logger.Warn("Failed to open bot token",
			zap.String("bot_id", bot.ID.String()),
			zap.Error(err))
		bot.Token = nil
		return
	}
	bot.Token = plaintext
}

func validateBotName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", apperrors.ErrInvalidInput)
	}
	if len(name) > MaxBotNameLength {
		return "", fmt.Errorf("%w: name must be at most %d characters", apperrors.ErrInvalidInput, MaxBotNameLength)
	}
	return name, nil
}

// validateWebhookURL accepts "" (clear) or an absolute http(s) URL.
func validateWebhookURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: webhook_url must be an absolute http or https URL", apperrors.ErrInvalidInput)
	}
	return nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

var _ BotService = (*botService)(nil)
