package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/botdesk/pkg/apperrors"
	"github.com/ekaya-inc/botdesk/pkg/auth"
	"github.com/ekaya-inc/botdesk/pkg/services"
)

const (
	// uploadFieldName is the multipart field carrying the file.
	uploadFieldName = "file"
	// multipartOverhead allows for boundaries and part headers on top of the file itself.
	multipartOverhead = 1 << 20
	// multipartMemory is held in memory before parts spill to temporary files.
	multipartMemory = 1 << 20
)

// KnowledgeFilesHandler handles knowledge file uploads and downloads.
type KnowledgeFilesHandler struct {
	fileService services.KnowledgeFileService
	maxUpload   int64
	logger      *zap.Logger
}

// NewKnowledgeFilesHandler creates a new knowledge files handler. maxUpload
// bounds the request body; the service enforces the exact file limit.
func NewKnowledgeFilesHandler(fileService services.KnowledgeFileService, maxUpload int64, logger *zap.Logger) *KnowledgeFilesHandler {
	return &KnowledgeFilesHandler{
		fileService: fileService,
		maxUpload:   maxUpload,
		logger:      logger,
	}
}

// RegisterRoutes registers the knowledge files handler's routes on the given mux.
func (h *KnowledgeFilesHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware, tenantMiddleware TenantMiddleware) {
	base := "/knowledge-files"

	mux.HandleFunc("GET "+base, authMiddleware.RequireAuth(tenantMiddleware(h.List)))
	mux.HandleFunc("POST "+base, authMiddleware.RequireAuth(tenantMiddleware(h.Upload)))
	mux.HandleFunc("GET "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Get)))
	mux.HandleFunc("GET "+base+"/{id}/content", authMiddleware.RequireAuth(tenantMiddleware(h.Content)))
	mux.HandleFunc("DELETE "+base+"/{id}", authMiddleware.RequireAuth(tenantMiddleware(h.Delete)))
}

// List handles GET /knowledge-files
func (h *KnowledgeFilesHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	files, err := h.fileService.List(r.Context(), ownerID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "list knowledge files")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, files)
}

// Upload handles POST /knowledge-files (multipart/form-data, field "file").
func (h *KnowledgeFilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}

	tooLarge := fmt.Errorf("%w: file exceeds %d bytes", apperrors.ErrPayloadTooLarge, h.maxUpload)
	if r.ContentLength > h.maxUpload+multipartOverhead {
		WriteServiceError(w, h.logger, tooLarge, "upload knowledge file")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteServiceError(w, h.logger, tooLarge, "upload knowledge file")
			return
		}
		WriteServiceError(w, h.logger,
			fmt.Errorf("%w: expected multipart/form-data body", apperrors.ErrInvalidInput), "upload knowledge file")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", zap.Error(err))
		}
	}()

	file, header, err := r.FormFile(uploadFieldName)
	if err != nil {
		WriteServiceError(w, h.logger,
			fmt.Errorf("%w: missing %q file field", apperrors.ErrInvalidInput, uploadFieldName), "upload knowledge file")
		return
	}
	defer file.Close()

	stored, err := h.fileService.Upload(r.Context(), ownerID, &services.UploadRequest{
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		WriteServiceError(w, h.logger, err, "upload knowledge file")
		return
	}

	writeResponse(w, h.logger, http.StatusCreated, stored)
}

// Get handles GET /knowledge-files/{id}
func (h *KnowledgeFilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	file, err := h.fileService.Get(r.Context(), ownerID, fileID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "get knowledge file")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, file)
}

// Content handles GET /knowledge-files/{id}/content and streams the stored bytes.
func (h *KnowledgeFilesHandler) Content(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	file, body, err := h.fileService.Open(r.Context(), ownerID, fileID)
	if err != nil {
		WriteServiceError(w, h.logger, err, "open knowledge file")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.FileSize, 10))
	if disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.OriginalName}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("Failed to stream knowledge file",
			zap.String("file_id", fileID.String()),
			zap.Error(err))
	}
}

// Delete handles DELETE /knowledge-files/{id}
func (h *KnowledgeFilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requirePrincipal(w, r, h.logger)
	if !ok {
		return
	}
	fileID, ok := ParseFileID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.fileService.Delete(r.Context(), ownerID, fileID); err != nil {
		WriteServiceError(w, h.logger, err, "delete knowledge file")
		return
	}

	writeResponse(w, h.logger, http.StatusOK, SuccessResponse{Success: true})
}
