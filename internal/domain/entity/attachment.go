package entity

import "time"

// Attachment represents attachment metadata; the content lives in the blob store under StorageRef
type Attachment struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"request_id"`
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name"`
	MimeType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	StorageRef   string    `json:"storage_ref"`
	UploaderID   string    `json:"uploader_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttachmentFile represents uploaded file content
type AttachmentFile struct {
	Content  []byte
	FileName string
	MimeType string
	Size     int64
}
