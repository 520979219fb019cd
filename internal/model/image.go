package model

import (
	"time"

	"github.com/google/uuid"
)

// UploadedImage is a training input. TrainingID is set once, when the image
// is attached to a submitted training; the row is otherwise immutable.
type UploadedImage struct {
	ID            uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID        uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	TrainingID    *uuid.UUID `json:"training_id,omitempty" gorm:"type:uuid;index"`
	UploadBatchID string     `json:"upload_batch_id" gorm:"column:upload_batch_id;index"`
	StorageKey    string     `json:"storage_key" gorm:"not null"`
	ContentType   string     `json:"content_type"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TableName returns the database table name.
func (UploadedImage) TableName() string {
	return "uploaded_images"
}

// IsAttached reports whether the image already feeds a training.
func (i *UploadedImage) IsAttached() bool {
	return i.TrainingID != nil
}

// GeneratedImage is an inference output. Rows are append-only.
// ModelVersion is nil for base-model generations.
type GeneratedImage struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID       uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	TrainingID   *uuid.UUID `json:"training_id,omitempty" gorm:"type:uuid;index"`
	ModelVersion *string    `json:"model_version,omitempty"`
	Prompt       string     `json:"prompt" gorm:"type:text;not null"`
	ImageURL     string     `json:"image_url" gorm:"column:image_url;not null"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name.
func (GeneratedImage) TableName() string {
	return "generated_images"
}

// AllModels lists the entities owned by this service, in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&Plan{},
		&Subscription{},
		&TrainingRecord{},
		&UploadedImage{},
		&GeneratedImage{},
	}
}
