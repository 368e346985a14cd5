package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/models"
)

// KnowledgeFileRepository defines the interface for knowledge file metadata.
type KnowledgeFileRepository interface {
	Create(ctx context.Context, file *models.KnowledgeFile) error
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error)
	Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error)
	// GetForUpdate is Get with a row lock. Must be called inside database.WithinTx.
	GetForUpdate(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error)
	Delete(ctx context.Context, ownerID, fileID uuid.UUID) error
}

// knowledgeFileRepository implements KnowledgeFileRepository using PostgreSQL.
type knowledgeFileRepository struct{}

// NewKnowledgeFileRepository creates a new knowledge file repository.
func NewKnowledgeFileRepository() KnowledgeFileRepository {
	return &knowledgeFileRepository{}
}

const knowledgeFileColumns = `id, user_id, file_name, original_name, file_path, file_size, mime_type, is_processed, created_at`

// Create inserts file metadata. A duplicate storage name is apperrors.ErrConflict.
func (r *knowledgeFileRepository) Create(ctx context.Context, file *models.KnowledgeFile) error {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return err
	}

	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}

	query := `
		INSERT INTO knowledge_files (id, user_id, file_name, original_name, file_path, file_size, mime_type, is_processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err = q.QueryRow(ctx, query,
		file.ID,
		file.UserID,
		file.FileName,
		file.OriginalName,
		file.FilePath,
		file.FileSize,
		file.MimeType,
		file.IsProcessed,
	).Scan(&file.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: storage name %s already in use", apperrors.ErrConflict, file.FileName)
		}
		return fmt.Errorf("failed to create knowledge file: %w", err)
	}

	return nil
}

// List returns the owner's files in upload order.
func (r *knowledgeFileRepository) List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + knowledgeFileColumns + ` FROM knowledge_files WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge files: %w", err)
	}
	defer rows.Close()

	files := make([]*models.KnowledgeFile, 0)
	for rows.Next() {
		file, err := scanKnowledgeFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan knowledge file: %w", err)
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate knowledge files: %w", err)
	}

	return files, nil
}

// Get retrieves one of the owner's files.
func (r *knowledgeFileRepository) Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	return r.get(ctx, `SELECT `+knowledgeFileColumns+` FROM knowledge_files WHERE id = $1 AND user_id = $2`, ownerID, fileID)
}

// GetForUpdate retrieves and locks one of the owner's files.
func (r *knowledgeFileRepository) GetForUpdate(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	return r.get(ctx, `SELECT `+knowledgeFileColumns+` FROM knowledge_files WHERE id = $1 AND user_id = $2 FOR UPDATE`, ownerID, fileID)
}

func (r *knowledgeFileRepository) get(ctx context.Context, query string, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return nil, err
	}

	file, err := scanKnowledgeFile(q.QueryRow(ctx, query, fileID, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get knowledge file: %w", err)
	}
	return file, nil
}

// Delete removes one of the owner's file rows.
func (r *knowledgeFileRepository) Delete(ctx context.Context, ownerID, fileID uuid.UUID) error {
	q, err := tenantQuerier(ctx)
	if err != nil {
		return err
	}

	result, err := q.Exec(ctx, `DELETE FROM knowledge_files WHERE id = $1 AND user_id = $2`, fileID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanKnowledgeFile(row pgx.Row) (*models.KnowledgeFile, error) {
	var file models.KnowledgeFile
	err := row.Scan(
		&file.ID,
		&file.UserID,
		&file.FileName,
		&file.OriginalName,
		&file.FilePath,
		&file.FileSize,
		&file.MimeType,
		&file.IsProcessed,
		&file.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// Ensure knowledgeFileRepository implements KnowledgeFileRepository at compile time.
var _ KnowledgeFileRepository = (*knowledgeFileRepository)(nil)
