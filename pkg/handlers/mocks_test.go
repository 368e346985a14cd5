package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

// testToken is the only bearer token stubAuthService accepts.
const testToken = "good-token"

// stubAuthService resolves testToken to principal and rejects everything else.
type stubAuthService struct {
	principal uuid.UUID
}

func (s *stubAuthService) ValidateRequest(r *http.Request) (uuid.UUID, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return uuid.Nil, auth.ErrMissingAuthorization
	}
	if header != "Bearer "+testToken {
		return uuid.Nil, auth.ErrInvalidToken
	}
	return s.principal, nil
}

// newTestAuthMiddleware returns middleware that authenticates testToken as principal.
func newTestAuthMiddleware(principal uuid.UUID) *auth.Middleware {
	return auth.NewMiddleware(&stubAuthService{principal: principal}, nil, zap.NewNop())
}

// passthroughTenant stands in for database.WithTenantContext.
func passthroughTenant(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// newAuthedRequest builds a request carrying testToken.
func newAuthedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	return req
}

// withPrincipal attaches an authenticated user to req without going through the middleware.
func withPrincipal(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), userID))
}

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

// mockAccountService implements services.AccountService.
type mockAccountService struct {
	result      *services.AuthResult
	user        *models.User
	err         error
	lastIP      string
	lastRequest *services.RegisterRequest
	lastLogin   *services.LoginRequest
}

func (m *mockAccountService) Register(ctx context.Context, req *services.RegisterRequest, clientIP string) (*services.AuthResult, error) {
	m.lastRequest = req
	m.lastIP = clientIP
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockAccountService) Login(ctx context.Context, req *services.LoginRequest, clientIP string) (*services.AuthResult, error) {
	m.lastLogin = req
	m.lastIP = clientIP
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockAccountService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.user != nil && m.user.ID == userID {
		return m.user, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockAccountService) EnsureDevUser(ctx context.Context) error {
	return m.err
}

// mockBotService implements services.BotService over an in-memory map keyed
// by bot ID; bots owned by another user are not found.
type mockBotService struct {
	bots          map[uuid.UUID]*models.Bot
	err           error
	createRequest *services.CreateBotRequest
	update        *models.BotUpdate
}

func newMockBotService(bots ...*models.Bot) *mockBotService {
	m := &mockBotService{bots: make(map[uuid.UUID]*models.Bot)}
	for _, b := range bots {
		m.bots[b.ID] = b
	}
	return m
}

func (m *mockBotService) owned(ownerID, botID uuid.UUID) (*models.Bot, error) {
	bot, ok := m.bots[botID]
	if !ok || bot.UserID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return bot, nil
}

func (m *mockBotService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error) {
	if m.err != nil {
		return nil, m.err
	}
	bots := make([]*models.Bot, 0)
	for _, b := range m.bots {
		if b.UserID == ownerID {
			bots = append(bots, b)
		}
	}
	return bots, nil
}

func (m *mockBotService) Create(ctx context.Context, ownerID uuid.UUID, req *services.CreateBotRequest) (*models.Bot, error) {
	m.createRequest = req
	if m.err != nil {
		return nil, m.err
	}
	bot := &models.Bot{
		ID:         uuid.New(),
		UserID:     ownerID,
		Platform:   req.Platform,
		Name:       req.Name,
		Token:      req.Token,
		WebhookURL: req.WebhookURL,
		IsActive:   req.IsActive,
		Config:     []byte(`{}`),
	}
	m.bots[bot.ID] = bot
	return bot, nil
}

func (m *mockBotService) Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.owned(ownerID, botID)
}

func (m *mockBotService) Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error) {
	m.update = update
	if m.err != nil {
		return nil, m.err
	}
	bot, err := m.owned(ownerID, botID)
	if err != nil {
		return nil, err
	}
	if update.Name != nil {
		bot.Name = *update.Name
	}
	if update.IsActive != nil {
		bot.IsActive = *update.IsActive
	}
	return bot, nil
}

func (m *mockBotService) Delete(ctx context.Context, ownerID, botID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if _, err := m.owned(ownerID, botID); err != nil {
		return err
	}
	delete(m.bots, botID)
	return nil
}

// mockKnowledgeFileService implements services.KnowledgeFileService.
type mockKnowledgeFileService struct {
	files    map[uuid.UUID]*models.KnowledgeFile
	content  map[uuid.UUID][]byte
	err      error
	uploaded *services.UploadRequest
	body     []byte
}

func newMockKnowledgeFileService() *mockKnowledgeFileService {
	return &mockKnowledgeFileService{
		files:   make(map[uuid.UUID]*models.KnowledgeFile),
		content: make(map[uuid.UUID][]byte),
	}
}

func (m *mockKnowledgeFileService) add(file *models.KnowledgeFile, content []byte) {
	m.files[file.ID] = file
	m.content[file.ID] = content
}

func (m *mockKnowledgeFileService) owned(ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	file, ok := m.files[fileID]
	if !ok || file.UserID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return file, nil
}

func (m *mockKnowledgeFileService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error) {
	if m.err != nil {
		return nil, m.err
	}
	files := make([]*models.KnowledgeFile, 0)
	for _, f := range m.files {
		if f.UserID == ownerID {
			files = append(files, f)
		}
	}
	return files, nil
}

func (m *mockKnowledgeFileService) Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.owned(ownerID, fileID)
}

func (m *mockKnowledgeFileService) Upload(ctx context.Context, ownerID uuid.UUID, req *services.UploadRequest) (*models.KnowledgeFile, error) {
	m.uploaded = req
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	m.body = body
	if m.err != nil {
		return nil, m.err
	}
	file := &models.KnowledgeFile{
		ID:           uuid.New(),
		UserID:       ownerID,
		FileName:     "stored.txt",
		OriginalName: req.OriginalName,
		FileSize:     req.Size,
		MimeType:     models.MimeTypePlainText,
	}
	m.add(file, body)
	return file, nil
}

func (m *mockKnowledgeFileService) Open(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, io.ReadCloser, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	file, err := m.owned(ownerID, fileID)
	if err != nil {
		return nil, nil, err
	}
	return file, io.NopCloser(bytes.NewReader(m.content[fileID])), nil
}

func (m *mockKnowledgeFileService) Delete(ctx context.Context, ownerID, fileID uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if _, err := m.owned(ownerID, fileID); err != nil {
		return err
	}
	delete(m.files, fileID)
	delete(m.content, fileID)
	return nil
}

// mockStatsService implements services.StatsService.
type mockStatsService struct {
	stats     *models.UsageStats
	logs      []*models.MessageLog
	err       error
	lastOwner uuid.UUID
}

func (m *mockStatsService) Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error) {
	m.lastOwner = ownerID
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

func (m *mockStatsService) RecentActivity(ctx context.Context, ownerID uuid.UUID) ([]*models.MessageLog, error) {
	m.lastOwner = ownerID
	if m.err != nil {
		return nil, m.err
	}
	return m.logs, nil
}

// mockWebhookService implements services.WebhookService.
type mockWebhookService struct {
	result       *services.WebhookResult
	err          error
	called       bool
	lastPlatform string
	lastBotID    uuid.UUID
	lastPayload  []byte
}

func (m *mockWebhookService) Ingest(ctx context.Context, platform string, botID uuid.UUID, payload []byte) (*services.WebhookResult, error) {
	m.called = true
	m.lastPlatform = platform
	m.lastBotID = botID
	m.lastPayload = payload
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

var (
	_ services.AccountService       = (*mockAccountService)(nil)
	_ services.BotService           = (*mockBotService)(nil)
	_ services.KnowledgeFileService = (*mockKnowledgeFileService)(nil)
	_ services.StatsService         = (*mockStatsService)(nil)
	_ services.WebhookService       = (*mockWebhookService)(nil)
	_ auth.AuthService              = (*stubAuthService)(nil)
)
