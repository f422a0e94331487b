package models

import (
	"time"

	"github.com/google/uuid"
)

// Enums
type GenerationStatus string

const (
	GenerationStatusQueued       GenerationStatus = "queued"
	GenerationStatusExtracting   GenerationStatus = "extracting"
	GenerationStatusNormalizing  GenerationStatus = "normalizing"
	GenerationStatusSynthesizing GenerationStatus = "synthesizing"
	GenerationStatusCompleted    GenerationStatus = "completed"
	GenerationStatusFailed       GenerationStatus = "failed"
)

// Terminal reports whether no worker will touch the generation again.
func (s GenerationStatus) Terminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// Models

// Generation is one PDF-to-audio conversion.
type Generation struct {
	ID       uuid.UUID        `json:"id"`
	PDFPath  string           `json:"pdf_path"`
	Language string           `json:"language"` // BCP-47, e.g. "es-ES"
	Speaker  string           `json:"speaker"`
	Status   GenerationStatus `json:"status"`
	Progress int              `json:"progress"` // synthesis progress, 0-100

	PageCount    *int    `json:"page_count,omitempty"`
	TextPath     *string `json:"text_path,omitempty"`
	AudioPath    *string `json:"audio_path,omitempty"`
	DurationMs   *int    `json:"duration_ms,omitempty"`
	ErrorCode    *string `json:"error_code,omitempty"` // synthesis outcome label or pipeline stage
	ErrorMessage *string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
