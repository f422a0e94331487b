package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/narrator/internal/models"
	"github.com/google/uuid"
)

const generationColumns = `
	id, pdf_path, language, speaker, status, progress,
	page_count, text_path, audio_path, duration_ms, error_code, error_message,
	created_at, updated_at
`

func (db *DB) CreateGeneration(ctx context.Context, g *models.Generation) error {
	query := `
		INSERT INTO generations (id, pdf_path, language, speaker, status, progress)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		g.ID, g.PDFPath, g.Language, g.Speaker, g.Status, g.Progress,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
}

func (db *DB) GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	query := `SELECT ` + generationColumns + ` FROM generations WHERE id = $1`

	g := &models.Generation{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&g.ID, &g.PDFPath, &g.Language, &g.Speaker, &g.Status, &g.Progress,
		&g.PageCount, &g.TextPath, &g.AudioPath, &g.DurationMs, &g.ErrorCode, &g.ErrorMessage,
		&g.CreatedAt, &g.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	return g, nil
}

func (db *DB) UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus) error {
	query := `UPDATE generations SET status = $2, updated_at = NOW() WHERE id = $1`
	return db.execOne(ctx, id, query, id, status)
}

// UpdateGenerationProgress never moves progress backwards.
func (db *DB) UpdateGenerationProgress(ctx context.Context, id uuid.UUID, progress int) error {
	query := `
		UPDATE generations
		SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.ExecContext(ctx, query, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// SetGenerationText records the normalised transcript and moves the
// generation into synthesis.
func (db *DB) SetGenerationText(ctx context.Context, id uuid.UUID, textPath string, pageCount int) error {
	query := `
		UPDATE generations
		SET text_path = $2, page_count = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`
	return db.execOne(ctx, id, query, id, textPath, pageCount, models.GenerationStatusSynthesizing)
}

func (db *DB) CompleteGeneration(ctx context.Context, id uuid.UUID, audioPath string, durationMs *int) error {
	query := `
		UPDATE generations
		SET status = $2, progress = 100, audio_path = $3, duration_ms = $4,
		    error_code = NULL, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return db.execOne(ctx, id, query, id, models.GenerationStatusCompleted, audioPath, durationMs)
}

func (db *DB) FailGeneration(ctx context.Context, id uuid.UUID, code, message string) error {
	query := `
		UPDATE generations
		SET status = $2, error_code = $3, error_message = $4, updated_at = NOW()
		WHERE id = $1
	`
	return db.execOne(ctx, id, query, id, models.GenerationStatusFailed, code, message)
}

func (db *DB) execOne(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("generation %s: %w", id, ErrNotFound)
	}
	return nil
}
