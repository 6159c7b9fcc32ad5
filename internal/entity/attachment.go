package entity

import (
	"time"

	"github.com/google/uuid"
)

// Attachment is an inbound image owned by exactly one order. Immutable once
// stored; position preserves receipt order.
type Attachment struct {
	ID         uuid.UUID `json:"id"`
	OrderID    uuid.UUID `json:"order_id"`
	Position   int       `json:"position"`
	Filename   string    `json:"filename"`
	StorageRef string    `json:"storage_ref"`
	ByteSize   int64     `json:"byte_size"`
	MimeType   string    `json:"mime_type"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	UploadedAt time.Time `json:"uploaded_at"`
}
