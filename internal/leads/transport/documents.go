package transport

import (
	"time"

	"github.com/google/uuid"
)

// PresignedUploadRequest asks for a presigned upload URL for a lead document.
type PresignedUploadRequest struct {
	FileName    string `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required,min=1,max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

// PresignedUploadResponse carries the URL the client uploads the bytes to.
type PresignedUploadResponse struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"storageKey"`
	ExpiresAt  int64  `json:"expiresAt"` // Unix timestamp
}

// CreateDocumentRequest records document metadata after a successful upload.
type CreateDocumentRequest struct {
	StorageKey  string `json:"storageKey" validate:"required,min=1,max=500"`
	FileName    string `json:"fileName" validate:"required,min=1,max=255"`
	ContentType string `json:"contentType" validate:"required,min=1,max=100"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,min=1"`
}

type DocumentResponse struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      uuid.UUID  `json:"leadId"`
	FileName    string     `json:"fileName"`
	ContentType string     `json:"contentType"`
	SizeBytes   int64      `json:"sizeBytes"`
	StorageKey  string     `json:"storageKey"`
	UploadedBy  *uuid.UUID `json:"uploadedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	DownloadURL *string    `json:"downloadUrl,omitempty"` // Presigned download URL when requested
}

type DocumentListResponse struct {
	Items []DocumentResponse `json:"items"`
}
