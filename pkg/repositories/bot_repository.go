package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/models"
)

// BotRepository defines the interface for bot data access.
// Every method except GetByID is scoped to an owner; rows belonging to
// anyone else are reported as apperrors.ErrNotFound.
type BotRepository interface {
	Create(ctx context.Context, bot *models.Bot) error
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error)
	Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error)
	Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error)
	Delete(ctx context.Context, ownerID, botID uuid.UUID) error
	// GetByID looks a bot up without an owner, for webhook ingest.
	GetByID(ctx context.Context, botID uuid.UUID) (*models.Bot, error)
}

// botRepository implements BotRepository using PostgreSQL.
type botRepository struct{}

// NewBotRepository creates a new bot repository.
func NewBotRepository() BotRepository {
	return &botRepository{}
}

const botColumns = `id, user_id, platform, name, token, webhook_url, is_active, config, created_at, updated_at`

// Create inserts a bot. bot.ID is kept if set, so callers can bind
// encrypted fields to it before the insert.
func (r *botRepository) Create(ctx context.Context, bot *models.Bot) error {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return err
	}

	if bot.ID == uuid.Nil {
		bot.ID = uuid.New()
	}
	if len(bot.Config) == 0 {
		bot.Config = []byte(`{}`)
	}

	query := `
		INSERT INTO bots (id, user_id, platform, name, token, webhook_url, is_active, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err = q.QueryRow(ctx, query,
		bot.ID,
		bot.UserID,
		bot.Platform,
		bot.Name,
		bot.Token,
		bot.WebhookURL,
		bot.IsActive,
		string(bot.Config),
	).Scan(&bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	return nil
}

// List returns the owner's bots in creation order.
func (r *botRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Bot, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + botColumns + ` FROM bots WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	defer rows.Close()

	bots := make([]*models.Bot, 0)
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot: %w", err)
		}
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bots: %w", err)
	}

	return bots, nil
}

// Get retrieves one of the owner's bots.
func (r *botRepository) Get(ctx context.Context, ownerID, botID uuid.UUID) (*models.Bot, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1 AND user_id = $2`
	bot, err := scanBot(q.QueryRow(ctx, query, botID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return bot, nil
}

// GetByID retrieves a bot regardless of owner.
func (r *botRepository) GetByID(ctx context.Context, botID uuid.UUID) (*models.Bot, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1`
	bot, err := scanBot(q.QueryRow(ctx, query, botID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}
	return bot, nil
}

// Update applies the non-nil fields of update. An empty string for token
// or webhook_url clears the column.
func (r *botRepository) Update(ctx context.Context, ownerID, botID uuid.UUID, update *models.BotUpdate) (*models.Bot, error) {
	if update == nil || update.IsEmpty() {
		return nil, fmt.Errorf("%w: no fields to update", apperrors.ErrInvalidInput)
	}

	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Token != nil {
		set("token", nullIfEmpty(*update.Token))
	}
	if update.WebhookURL != nil {
		set("webhook_url", nullIfEmpty(*update.WebhookURL))
	}
	if update.IsActive != nil {
		set("is_active", *update.IsActive)
	}
	if update.Config != nil {
		set("config", string(update.Config))
	}
	sets = append(sets, "updated_at = now()")

	args = append(args, botID, ownerID)
	query := fmt.Sprintf(`UPDATE bots SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args)-1, len(args), botColumns)

	bot, err := scanBot(q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update bot: %w", err)
	}
	return bot, nil
}

// Delete removes one of the owner's bots. Its message logs go with it.
func (r *botRepository) Delete(ctx context.Context, ownerID, botID uuid.UUID) error {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM bots WHERE id = $1 AND user_id = $2`, botID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanBot(row pgx.Row) (*models.Bot, error) {
	var bot models.Bot
	var config []byte
	err := row.Scan(
		&bot.ID,
		&bot.UserID,
		&bot.Platform,
		&bot.Name,
		&bot.Token,
		&bot.WebhookURL,
		&bot.IsActive,
		&config,
		&bot.CreatedAt,
		&bot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	bot.Config = config
	return &bot, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure botRepository implements BotRepository at compile time.
var _ BotRepository = (*botRepository)(nil)
