package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/storage"
)

// mockUserRepository is an in-memory UserRepository keyed by ID and email.
type mockUserRepository struct {
	byID    map[uuid.UUID]*models.User
	byEmail map[string]*models.User

	createErr error
	getErr    error
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		byID:    make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byEmail[user.Email]; ok {
		return apperrors.ErrConflict
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	m.byID[user.ID] = &stored
	m.byEmail[user.Email] = &stored
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.byID[userID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	user, ok := m.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepository) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	_, ok := m.byID[userID]
	return ok, nil
}

func (m *mockUserRepository) Ensure(ctx context.Context, user *models.User) error {
	if _, ok := m.byID[user.ID]; ok {
		return nil
	}
	return m.Create(ctx, user)
}

// mockBotRepository is an in-memory BotRepository. It stores what it is
// given, so tests can inspect the persisted (sealed) token.
type mockBotRepository struct {
	bots map[uuid.UUID]*models.Bot

	createErr error
	updateErr error

	capturedUpdate *models.BotUpdate
}

func newMockBotRepository() *mockBotRepository {
	return &mockBotRepository{bots: make(map[uuid.UUID]*models.Bot)}
}

func (m *mockBotRepository) Create(ctx context.Context, bot *models.Bot) error {
	if m.createErr != nil {
		return m.createErr
	}
	stored := *bot
	m.bots[bot.ID] = &stored
	return nil
}

func (m *mockBotRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error) {
	result := make([]*models.Bot, 0)
	for _, bot := range m.bots {
		if bot.UserID == ownerID {
			copied := *bot
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockBotRepository) Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error) {
	bot, ok := m.bots[botID]
	if !ok || bot.UserID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	copied := *bot
	return &copied, nil
}

func (m *mockBotRepository) GetByID(ctx context.Context, botID uuid.UUID) (*models.Bot, error) {
	bot, ok := m.bots[botID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *bot
	return &copied, nil
}

func (m *mockBotRepository) Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error) {
	m.capturedUpdate = update
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	bot, ok := m.bots[botID]
	if !ok || bot.UserID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	if update.Name != nil {
		bot.Name = *update.Name
	}
	if update.Token != nil {
		if *update.Token == "" {
			bot.Token = nil
		} else {
			token := *update.Token
			bot.Token = &token
		}
	}
	if update.WebhookURL != nil {
		if *update.WebhookURL == "" {
			bot.WebhookURL = nil
		} else {
			hook := *update.WebhookURL
			bot.WebhookURL = &hook
		}
	}
	if update.IsActive != nil {
		bot.IsActive = *update.IsActive
	}
	if update.Config != nil {
		bot.Config = update.Config
	}
	copied := *bot
	return &copied, nil
}

func (m *mockBotRepository) Delete(ctx context.Context, ownerID, botID uuid.UUID) error {
	bot, ok := m.bots[botID]
	if !ok || bot.UserID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.bots, botID)
	return nil
}

// mockKnowledgeFileRepository is an in-memory KnowledgeFileRepository.
type mockKnowledgeFileRepository struct {
	files map[uuid.UUID]*models.KnowledgeFile

	createErr error
	deleteErr error
	locked    []uuid.UUID
}

func newMockKnowledgeFileRepository() *mockKnowledgeFileRepository {
	return &mockKnowledgeFileRepository{files: make(map[uuid.UUID]*models.KnowledgeFile)}
}

func (m *mockKnowledgeFileRepository) Create(ctx context.Context, file *models.KnowledgeFile) error {
	if m.createErr != nil {
		return m.createErr
	}
	stored := *file
	m.files[file.ID] = &stored
	return nil
}

func (m *mockKnowledgeFileRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error) {
	result := make([]*models.KnowledgeFile, 0)
	for _, f := range m.files {
		if f.UserID == ownerID {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *mockKnowledgeFileRepository) Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	f, ok := m.files[fileID]
	if !ok || f.UserID != ownerID {
		return nil, apperrors.ErrNotFound
	}
	return f, nil
}

func (m *mockKnowledgeFileRepository) GetForUpdate(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	m.locked = append(m.locked, fileID)
	return m.Get(ctx, ownerID, fileID)
}

func (m *mockKnowledgeFileRepository) Delete(ctx context.Context, ownerID, fileID uuid.UUID) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	f, ok := m.files[fileID]
	if !ok || f.UserID != ownerID {
		return apperrors.ErrNotFound
	}
	delete(m.files, fileID)
	return nil
}

// mockMessageLogRepository records appended logs.
type mockMessageLogRepository struct {
	mu       sync.Mutex
	appended []*models.MessageLog
	stats    *models.UsageStats

	appendErr     error
	capturedLimit int
}

func (m *mockMessageLogRepository) Append(ctx context.Context, log *models.MessageLog) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	m.appended = append(m.appended, log)
	return nil
}

func (m *mockMessageLogRepository) Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error) {
	if m.stats == nil {
		return &models.UsageStats{}, nil
	}
	return m.stats, nil
}

func (m *mockMessageLogRepository) Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.MessageLog, error) {
	m.capturedLimit = limit
	return m.appended, nil
}

// mockBlobStore is an in-memory BlobStore with injectable failures.
type mockBlobStore struct {
	blobs map[string][]byte

	putErr    error
	deleteErr error
	deleted   []string
}

func newMockBlobStore() *mockBlobStore {
	return &mockBlobStore{blobs: make(map[string][]byte)}
}

func (m *mockBlobStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	m.blobs[key] = data
	return nil
}

func (m *mockBlobStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.blobs, key)
	return nil
}

// mockAccountAuditor records audit calls.
type mockAccountAuditor struct {
	loginFailures []string
	registrations []uuid.UUID
}

func (m *mockAccountAuditor) LogLoginFailure(ctx context.Context, email, clientIP string) {
	m.loginFailures = append(m.loginFailures, email)
}

func (m *mockAccountAuditor) LogRegistration(ctx context.Context, userID uuid.UUID, clientIP string) {
	m.registrations = append(m.registrations, userID)
}

// mockDeduper answers from a set of seen keys.
type mockDeduper struct {
	seen      map[string]bool
	err       error
	forgotten []string
}

func (m *mockDeduper) FirstSeen(ctx context.Context, botID uuid.UUID, messageID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	key := botID.String() + "/" + messageID
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockDeduper) Forget(ctx context.Context, botID uuid.UUID, messageID string) error {
	m.forgotten = append(m.forgotten, messageID)
	delete(m.seen, botID.String()+"/"+messageID)
	return nil
}

// inlineTx runs fn directly and reports its error, standing in for database.WithinTx.
func inlineTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
