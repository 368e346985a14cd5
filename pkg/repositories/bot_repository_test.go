//go:build integration

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/testhelpers"
)

// botTestContext holds test dependencies for bot repository tests.
type botTestContext struct {
	t      *testing.T
	testDB *testhelpers.TestDB
	repo   BotRepository
	owner  uuid.UUID
}

// setupBotTest initializes the test context with a fresh owner.
func setupBotTest(t *testing.T) *botTestContext {
	testDB := testhelpers.GetTestDB(t)
	return &botTestContext{
		t:      t,
		testDB: testDB,
		repo:   NewBotRepository(),
		owner:  testDB.CreateUser(t, "bot-owner"),
	}
}

// ownerContext returns a context scoped to the test owner.
func (tc *botTestContext) ownerContext() (context.Context, func()) {
	tc.t.Helper()
	return tc.testDB.TenantContext(tc.t, tc.owner)
}

// createTestBot adds a bot for the test owner.
func (tc *botTestContext) createTestBot(ctx context.Context, name string, active bool) *models.Bot {
	tc.t.Helper()
	bot := &models.Bot{
		UserID:   tc.owner,
		Platform: models.PlatformTelegram,
		Name:     name,
		IsActive: active,
	}
	if err := tc.repo.Create(ctx, bot); err != nil {
		tc.t.Fatalf("failed to create test bot: %v", err)
	}
	return bot
}

func TestBotRepository_Create_Defaults(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bot := tc.createTestBot(ctx, "Support", true)

	if bot.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if bot.CreatedAt.IsZero() || bot.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}

	retrieved, err := tc.repo.Get(ctx, tc.owner, bot.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Config) != "{}" {
		t.Errorf("expected empty config object, got %s", retrieved.Config)
	}
	if retrieved.Token != nil || retrieved.WebhookURL != nil {
		t.Error("expected token and webhook_url to be NULL")
	}
}

func TestBotRepository_Create_KeepsPresetID(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	id := uuid.New()
	token := "sealed"
	bot := &models.Bot{ID: id, UserID: tc.owner, Platform: models.PlatformWhatsApp, Name: "Preset", Token: &token}
	if err := tc.repo.Create(ctx, bot); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if bot.ID != id {
		t.Errorf("expected ID %v to be kept, got %v", id, bot.ID)
	}

	retrieved, err := tc.repo.Get(ctx, tc.owner, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.Token == nil || *retrieved.Token != token {
		t.Errorf("expected token %q, got %v", token, retrieved.Token)
	}
}

func TestBotRepository_List_CreationOrder(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	first := tc.createTestBot(ctx, "first", true)
	second := tc.createTestBot(ctx, "second", false)

	bots, err := tc.repo.List(ctx, tc.owner)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bots) != 2 {
		t.Fatalf("expected 2 bots, got %d", len(bots))
	}
	if bots[0].ID != first.ID || bots[1].ID != second.ID {
		t.Errorf("expected creation order [%v %v], got [%v %v]", first.ID, second.ID, bots[0].ID, bots[1].ID)
	}
}

func TestBotRepository_List_Empty(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bots, err := tc.repo.List(ctx, tc.owner)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if bots == nil || len(bots) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", bots)
	}
}

func TestBotRepository_OtherOwnerIsNotFound(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	bot := tc.createTestBot(ctx, "private", true)
	cleanup()

	intruder := tc.testDB.CreateUser(t, "intruder")
	ictx, icleanup := tc.testDB.TenantContext(t, intruder)
	defer icleanup()

	if _, err := tc.repo.Get(ictx, intruder, bot.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get: expected ErrNotFound, got %v", err)
	}

	name := "hijacked"
	if _, err := tc.repo.Update(ictx, intruder, bot.ID, &models.BotUpdate{Name: &name}); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := tc.repo.Delete(ictx, intruder, bot.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}

	// Passing the victim's ID as owner does not help: row-level security still filters.
	if _, err := tc.repo.Get(ictx, tc.owner, bot.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get with forged owner: expected ErrNotFound, got %v", err)
	}

	list, err := tc.repo.List(ictx, intruder)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected intruder to see no bots, got %d", len(list))
	}
}

func TestBotRepository_Update_PartialFields(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bot := tc.createTestBot(ctx, "before", true)

	name := "after"
	active := false
	cfg := json.RawMessage(`{"greeting":"hi"}`)
	updated, err := tc.repo.Update(ctx, tc.owner, bot.ID, &models.BotUpdate{
		Name:     &name,
		IsActive: &active,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Name != name {
		t.Errorf("expected name %q, got %q", name, updated.Name)
	}
	if updated.IsActive {
		t.Error("expected bot to be inactive")
	}
	var got map[string]string
	if err := json.Unmarshal(updated.Config, &got); err != nil {
		t.Fatalf("failed to decode config: %v", err)
	}
	if got["greeting"] != "hi" {
		t.Errorf("expected greeting config, got %v", got)
	}
	if updated.Platform != bot.Platform || updated.UserID != bot.UserID {
		t.Error("expected platform and owner to be unchanged")
	}
	if updated.UpdatedAt.Before(bot.UpdatedAt) {
		t.Error("expected UpdatedAt to advance")
	}
}

func TestBotRepository_Update_EmptyStringClears(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bot := tc.createTestBot(ctx, "hooks", true)
	hook := "https://example.com/hook"
	if _, err := tc.repo.Update(ctx, tc.owner, bot.ID, &models.BotUpdate{WebhookURL: &hook}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	empty := ""
	updated, err := tc.repo.Update(ctx, tc.owner, bot.ID, &models.BotUpdate{WebhookURL: &empty})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.WebhookURL != nil {
		t.Errorf("expected webhook_url to be cleared, got %q", *updated.WebhookURL)
	}
}

func TestBotRepository_Update_Empty(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bot := tc.createTestBot(ctx, "unchanged", true)
	_, err := tc.repo.Update(ctx, tc.owner, bot.ID, &models.BotUpdate{})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBotRepository_Delete_CascadesLogs(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	defer cleanup()

	bot := tc.createTestBot(ctx, "doomed", true)
	logs := NewMessageLogRepository()
	if err := logs.Append(ctx, &models.MessageLog{BotID: bot.ID, Platform: bot.Platform, IsAutoResponse: true}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := tc.repo.Delete(ctx, tc.owner, bot.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := tc.repo.Get(ctx, tc.owner, bot.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := tc.repo.Delete(ctx, tc.owner, bot.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected second delete to be ErrNotFound, got %v", err)
	}

	var remaining int
	err := tc.testDB.Admin.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM message_logs WHERE bot_id = $1`, bot.ID).Scan(&remaining)
	if err != nil {
		t.Fatalf("failed to count logs: %v", err)
	}
	if remaining != 0 {
		t.Errorf("expected logs to be deleted with the bot, got %d", remaining)
	}
}

func TestBotRepository_GetByID_SystemScope(t *testing.T) {
	tc := setupBotTest(t)
	ctx, cleanup := tc.ownerContext()
	bot := tc.createTestBot(ctx, "webhook target", true)
	cleanup()

	sctx, scleanup := tc.testDB.SystemContext(t)
	defer scleanup()

	retrieved, err := tc.repo.GetByID(sctx, bot.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retrieved.UserID != tc.owner {
		t.Errorf("expected owner %v, got %v", tc.owner, retrieved.UserID)
	}

	if _, err := tc.repo.GetByID(sctx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
