package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ekaya-inc/botdesk/pkg/models"
)

// MessageLogRepository defines the interface for message log data access.
// Logs are append-only; there is no update method.
type MessageLogRepository interface {
	Append(ctx context.Context, log *models.MessageLog) error
	// Stats aggregates over every log of every bot the owner has.
	Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error)
	// Recent returns up to limit of the owner's logs, newest first.
	Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.MessageLog, error)
}

// messageLogRepository implements MessageLogRepository using PostgreSQL.
type messageLogRepository struct{}

// NewMessageLogRepository creates a new message log repository.
func NewMessageLogRepository() MessageLogRepository {
	return &messageLogRepository{}
}

// Append inserts a log row.
func (r *messageLogRepository) Append(ctx context.Context, log *models.MessageLog) error {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return err
	}

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	query := `
		INSERT INTO message_logs (id, bot_id, platform, message_id, sender_id, message_text,
		                          response_text, response_time_ms, is_auto_response)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err = q.QueryRow(ctx, query,
		log.ID,
		log.BotID,
		log.Platform,
		log.MessageID,
		log.SenderID,
		log.MessageText,
		log.ResponseText,
		log.ResponseTimeMs,
		log.IsAutoResponse,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message log: %w", err)
	}

	return nil
}

// Stats computes totals for the owner's bots. The average ignores logs
// without a response time and is 0 when there are none.
func (r *messageLogRepository) Stats(ctx context.Context, ownerID uuid.UUID) (*models.UsageStats, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT
			(SELECT COUNT(*)
			   FROM message_logs ml JOIN bots b ON b.id = ml.bot_id
			  WHERE b.user_id = $1),
			(SELECT COUNT(*) FROM bots WHERE user_id = $1 AND is_active),
			(SELECT COALESCE(TRUNC(AVG(ml.response_time_ms)), 0)::bigint
			   FROM message_logs ml JOIN bots b ON b.id = ml.bot_id
			  WHERE b.user_id = $1)`

	var stats models.UsageStats
	err = q.QueryRow(ctx, query, ownerID).Scan(
		&stats.TotalMessages,
		&stats.ActiveBots,
		&stats.AvgResponseTime,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute usage stats: %w", err)
	}

	return &stats, nil
}

// Recent returns the owner's newest logs.
func (r *messageLogRepository) Recent(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.MessageLog, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > models.RecentActivityLimit {
		limit = models.RecentActivityLimit
	}

	query := `
		SELECT ml.id, ml.bot_id, ml.platform, ml.message_id, ml.sender_id, ml.message_text,
		       ml.response_text, ml.response_time_ms, ml.is_auto_response, ml.created_at
		  FROM message_logs ml
		  JOIN bots b ON b.id = ml.bot_id
		 WHERE b.user_id = $1
		 ORDER BY ml.created_at DESC, ml.id DESC
		 LIMIT $2`

	rows, err := q.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent activity: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.MessageLog, 0)
	for rows.Next() {
		var log models.MessageLog
		if err := rows.Scan(
			&log.ID,
			&log.BotID,
			&log.Platform,
			&log.MessageID,
			&log.SenderID,
			&log.MessageText,
			&log.ResponseText,
			&log.ResponseTimeMs,
			&log.IsAutoResponse,
			&log.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message log: %w", err)
		}
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate message logs: %w", err)
	}

	return logs, nil
}

// Ensure messageLogRepository implements MessageLogRepository at compile time.
var _ MessageLogRepository = (*messageLogRepository)(nil)
