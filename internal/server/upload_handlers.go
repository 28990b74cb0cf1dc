package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parteiportal/backend/internal/storage"
)

const uploadFormField = "files"

type uploadedFilePayload struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PublicURL   string `json:"public_url"`
}

// handleUpload accepts a multipart form with one or more files and uploads
// them as a batch. Form limits and content-type checks happen before any
// vendor call; a partial batch failure rolls the fresh uploads back.
func (h *httpHandler) handleUpload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.respondBindError(c, err)
		return
	}
	files := form.File[uploadFormField]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_files", "message": "Es wurden keine Dateien übermittelt."})
		return
	}

	inputs := make([]storage.FileInput, 0, len(files))
	for _, header := range files {
		if header.Size > h.uploads.MaxBytes() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_too_large", "message": "Die Datei ist zu groß."})
			return
		}
		opened, err := header.Open()
		if err != nil {
			h.logger.Warn("upload part unreadable", zap.String("file_name", header.Filename), zap.Error(err))
			h.respondBindError(c, err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(opened, h.uploads.MaxBytes()+1))
		closeErr := opened.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			h.logger.Warn("upload part unreadable", zap.String("file_name", header.Filename), zap.Error(err))
			h.respondBindError(c, err)
			return
		}
		inputs = append(inputs, storage.FileInput{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	uploaded, err := h.uploads.UploadBatch(c.Request.Context(), inputs)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]uploadedFilePayload, 0, len(uploaded))
	for _, file := range uploaded {
		payload = append(payload, uploadedFilePayload{
			ID:          file.ID,
			FileName:    file.FileName,
			ContentType: file.ContentType,
			SizeBytes:   file.SizeBytes,
			PublicURL:   file.PublicURL,
		})
	}
	c.JSON(http.StatusCreated, gin.H{"files": payload})
}
