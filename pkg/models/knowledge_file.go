package models

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeFile is an uploaded document owned by a user.
// FileName is the generated storage name; FilePath is the blob store key.
type KnowledgeFile struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name"`
	FilePath     string    `json:"-"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `json:"mime_type"`
	IsProcessed  bool      `json:"is_processed"`
	CreatedAt    time.Time `json:"created_at"`
}

// Accepted knowledge file MIME types.
const (
	MimeTypePDF       = "application/pdf"
	MimeTypeDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeTypePlainText = "text/plain"
)

// AllowedKnowledgeMimeTypes lists the MIME types accepted for upload.
var AllowedKnowledgeMimeTypes = []string{MimeTypePDF, MimeTypeDOCX, MimeTypePlainText}

// IsAllowedKnowledgeMimeType checks a bare media type (no parameters).
func IsAllowedKnowledgeMimeType(mimeType string) bool {
	for _, m := range AllowedKnowledgeMimeTypes {
		if m == mimeType {
			return true
		}
	}
	return false
}
