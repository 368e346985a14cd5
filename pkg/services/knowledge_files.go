package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/database"
	"github.com/ekaya-inc/botdesk/pkg/models"
	"github.com/ekaya-inc/botdesk/pkg/repositories"
	"github.com/ekaya-inc/botdesk/pkg/storage"
)

// maxOriginalNameLength bounds the stored client filename.
const maxOriginalNameLength = 255

// storageExtensions maps accepted MIME types to the extension of the storage name.
var storageExtensions = map[string]string{
	models.MimeTypePDF:       ".pdf",
	models.MimeTypeDOCX:      ".docx",
	models.MimeTypePlainText: ".txt",
}

// UploadRequest describes one uploaded file.
type UploadRequest struct {
	OriginalName string
	// ContentType is the client-declared type; it may be empty or carry parameters.
	ContentType string
	Size        int64
	Body        io.Reader
}

// KnowledgeFileService defines the interface for owner-scoped knowledge files.
type KnowledgeFileService interface {
	List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error)
	Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error)
	Upload(ctx context.Context, ownerID uuid.UUID, req *UploadRequest) (*models.KnowledgeFile, error)
	// Open returns the file metadata and a reader over its content. The caller closes the reader.
	Open(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, io.ReadCloser, error)
	Delete(ctx context.Context, ownerID, fileID uuid.UUID) error
}

type knowledgeFileService struct {
	repo      repositories.KnowledgeFileRepository
	blobs     storage.BlobStore
	maxUpload int64
	withinTx  func(ctx context.Context, fn func(ctx context.Context) error) error
	logger    *zap.Logger
}

// NewKnowledgeFileService creates a new knowledge file service.
func NewKnowledgeFileService(
	repo repositories.KnowledgeFileRepository,
	blobs storage.BlobStore,
	maxUpload int64,
	logger *zap.Logger,
) KnowledgeFileService {
	return &knowledgeFileService{
		repo:      repo,
		blobs:     blobs,
		maxUpload: maxUpload,
		withinTx:  database.WithinTx,
		logger:    logger.Named("knowledge_files"),
	}
}

func (s *knowledgeFileService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.KnowledgeFile, error) {
	return s.repo.List(ctx, ownerID)
}

func (s *knowledgeFileService) Get(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, error) {
	return s.repo.Get(ctx, ownerID, fileID)
}

// Upload validates size and type, writes the blob, then records the row.
// If the row cannot be written the blob is removed again.
func (s *knowledgeFileService) Upload(ctx context.Context, ownerID uuid.UUID, req *UploadRequest) (*models.KnowledgeFile, error) {
	if req == nil || req.Body == nil {
		return nil, fmt.Errorf("%w: file is required", apperrors.ErrInvalidInput)
	}
	if req.Size > s.maxUpload {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperrors.ErrPayloadTooLarge, s.maxUpload)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrInvalidInput)
	}

	body := bufio.NewReaderSize(req.Body, 512)
	head, err := body.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	mimeType := resolveMimeType(req.ContentType, req.OriginalName, head)
	if !models.IsAllowedKnowledgeMimeType(mimeType) {
		return nil, fmt.Errorf("%w: %s is not an accepted file type", apperrors.ErrUnsupportedMediaType, mimeType)
	}

	storageName := uuid.NewString() + storageExtensions[mimeType]
	file := &models.KnowledgeFile{
		ID:           uuid.New(),
		UserID:       ownerID,
		FileName:     storageName,
		OriginalName: cleanOriginalName(req.OriginalName, storageExtensions[mimeType]),
		FilePath:     storageName,
		FileSize:     req.Size,
		MimeType:     mimeType,
	}

	if err := s.blobs.Put(ctx, storageName, body, req.Size, mimeType); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	if err := s.repo.Create(ctx, file); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), storageName); delErr != nil {
			s.logger.Error("Failed to remove orphaned blob",
				zap.String("key", storageName),
				zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("Knowledge file uploaded",
		zap.String("file_id", file.ID.String()),
		zap.String("mime_type", mimeType),
		zap.Int64("size", file.FileSize))

	return file, nil
}

func (s *knowledgeFileService) Open(ctx context.Context, ownerID, fileID uuid.UUID) (*models.KnowledgeFile, io.ReadCloser, error) {
	file, err := s.repo.Get(ctx, ownerID, fileID)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.blobs.Open(ctx, file.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("Knowledge file content missing",
				zap.String("file_id", file.ID.String()),
				zap.String("key", file.FilePath))
			return nil, nil, fmt.Errorf("%w: file content is missing", apperrors.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to open file content: %w", err)
	}
	return file, content, nil
}

// Delete locks the row, removes the blob, then removes the row, in one
// transaction. A blob failure rolls the transaction back.
func (s *knowledgeFileService) Delete(ctx context.Context, ownerID, fileID uuid.UUID) error {
	err := s.withinTx(ctx, func(txCtx context.Context) error {
		file, err := s.repo.GetForUpdate(txCtx, ownerID, fileID)
		if err != nil {
			return err
		}
		if err := s.blobs.Delete(txCtx, file.FilePath); err != nil {
			return fmt.Errorf("failed to delete file content: %w", err)
		}
		return s.repo.Delete(txCtx, ownerID, fileID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Knowledge file deleted", zap.String("file_id", fileID.String()))
	return nil
}

// resolveMimeType prefers the declared type, then the filename extension,
// then content sniffing. Parameters are stripped.
func resolveMimeType(declared, originalName string, head []byte) string {
	if mediaType := bareMediaType(declared); mediaType != "" && mediaType != "application/octet-stream" {
		return mediaType
	}
	ext := strings.ToLower(filepath.Ext(originalName))
	for mimeType, known := range storageExtensions {
		if ext == known {
			return mimeType
		}
	}
	return bareMediaType(http.DetectContentType(head))
}

func bareMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	return mediaType
}

// cleanOriginalName keeps the base name only and bounds its length.
func cleanOriginalName(name, fallbackExt string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "upload" + fallbackExt
	}
	if len(name) > maxOriginalNameLength {
		name = name[:maxOriginalNameLength]
		for !utf8.ValidString(name) {
			name = name[:len(name)-1]
		}
	}
	return name
}

var _ KnowledgeFileService = (*knowledgeFileService)(nil)
