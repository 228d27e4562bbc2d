package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment описывает файл, загруженный в blob-хранилище.
type Attachment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	EntityType  *string    `db:"entity_type" json:"entity_type,omitempty"`
	EntityID    *uuid.UUID `db:"entity_id" json:"entity_id,omitempty"`
	ObjectKey   string     `db:"object_key" json:"object_key"`
	FileName    string     `db:"file_name" json:"file_name"`
	ContentType string     `db:"content_type" json:"content_type"`
	Size        int64      `db:"size" json:"size"`
	URL         string     `db:"-" json:"url"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
