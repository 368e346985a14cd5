package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/crypto"
	"github.com/ekaya-inc/botdesk/pkg/models"
)

func newBotFixture(t *testing.T) (BotService, *mockBotRepository) {
	t.Helper()
	sealer, err := crypto.NewCredentialEncryptor("bot-service-test-key")
	require.NoError(t, err)
	repo := newMockBotRepository()
	return NewBotService(repo, sealer, zap.NewNop()), repo
}

func strPtr(s string) *string { return &s }

func TestBotService_Create_SealsToken(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()

	bot, err := svc.Create(context.Background(), owner, &CreateBotRequest{
		Platform: models.PlatformTelegram,
		Name:     "  Support  ",
		Token:    strPtr("123456:ABC-secret"),
		IsActive: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Support", bot.Name)
	assert.Equal(t, owner, bot.UserID)
	require.NotNil(t, bot.Token)
	assert.Equal(t, "123456:ABC-secret", *bot.Token, "caller sees plaintext")
	assert.JSONEq(t, `{}`, string(bot.Config))

	stored := repo.bots[bot.ID]
	require.NotNil(t, stored.Token)
	assert.NotContains(t, *stored.Token, "ABC-secret", "token must be sealed at rest")

	got, err := svc.Get(context.Background(), owner, bot.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Token)
	assert.Equal(t, "123456:ABC-secret", *got.Token)
}

func TestBotService_Create_SealedTokenBoundToBot(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	a, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "a", Token: strPtr("secret-a")})
	require.NoError(t, err)
	b, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "b"})
	require.NoError(t, err)

	// Copy a's ciphertext onto b.
	repo.bots[b.ID].Token = repo.bots[a.ID].Token

	got, err := svc.Get(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Token, "a token sealed for another bot must not open")
}

func TestBotService_Create_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  *CreateBotRequest
	}{
		{"nil request", nil},
		{"unknown platform", &CreateBotRequest{Platform: "discord", Name: "x"}},
		{"blank name", &CreateBotRequest{Platform: models.PlatformWhatsApp, Name: "   "}},
		{"config array", &CreateBotRequest{Platform: models.PlatformWhatsApp, Name: "x", Config: json.RawMessage(`[1,2]`)}},
		{"relative webhook", &CreateBotRequest{Platform: models.PlatformWhatsApp, Name: "x", WebhookURL: strPtr("/hook")}},
		{"ftp webhook", &CreateBotRequest{Platform: models.PlatformWhatsApp, Name: "x", WebhookURL: strPtr("ftp://example.com")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newBotFixture(t)
			_, err := svc.Create(context.Background(), uuid.New(), tt.req)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Empty(t, repo.bots)
		})
	}
}

func TestBotService_Get_OtherOwner(t *testing.T) {
	svc, _ := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, uuid.New(), &CreateBotRequest{Platform: models.PlatformInstagram, Name: "mine"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, uuid.New(), bot.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBotService_Update_SealsNewToken(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "bot"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, owner, bot.ID, &models.BotUpdate{Token: strPtr("rotated")})
	require.NoError(t, err)
	require.NotNil(t, updated.Token)
	assert.Equal(t, "rotated", *updated.Token)

	require.NotNil(t, repo.capturedUpdate.Token)
	assert.NotEqual(t, "rotated", *repo.capturedUpdate.Token, "repository must receive the sealed token")
}

func TestBotService_Update_EmptyTokenClears(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "bot", Token: strPtr("t")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, owner, bot.ID, &models.BotUpdate{Token: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.Token)
	assert.Equal(t, "", *repo.capturedUpdate.Token)
}

func TestBotService_Update_Validation(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "bot"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		update *models.BotUpdate
	}{
		{"empty", &models.BotUpdate{}},
		{"nil", nil},
		{"blank name", &models.BotUpdate{Name: strPtr(" ")}},
		{"config string", &models.BotUpdate{Config: json.RawMessage(`"x"`)}},
		{"config null", &models.BotUpdate{Config: json.RawMessage(`null`)}},
		{"bad webhook", &models.BotUpdate{WebhookURL: strPtr("not a url")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.capturedUpdate = nil
			_, err := svc.Update(ctx, owner, bot.ID, tt.update)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Nil(t, repo.capturedUpdate, "repository must not be called")
		})
	}
}

func TestBotService_Update_DoesNotMutateInput(t *testing.T) {
	svc, _ := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "bot"})
	require.NoError(t, err)

	update := &models.BotUpdate{Token: strPtr("plain")}
	_, err = svc.Update(ctx, owner, bot.ID, update)
	require.NoError(t, err)
	assert.Equal(t, "plain", *update.Token)
}

func TestBotService_Delete(t *testing.T) {
	svc, repo := newBotFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	bot, err := svc.Create(ctx, owner, &CreateBotRequest{Platform: models.PlatformTelegram, Name: "bot"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), bot.ID), apperrors.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, owner, bot.ID))
	assert.Empty(t, repo.bots)
}
