package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bobarin/narrator/internal/config"
	"github.com/bobarin/narrator/internal/db"
	"github.com/bobarin/narrator/internal/models"
	"github.com/bobarin/narrator/internal/queue"
	"github.com/bobarin/narrator/internal/tts"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Register a PDF for narration and queue it",
		RunE:  runEnqueue,
	}
	cmd.Flags().String("pdf", "", "Path to the PDF document")
	cmd.MarkFlagRequired("pdf")
	cmd.Flags().StringP("language", "l", string(tts.LanguageSpanishES), "Voice language code (e.g. es-ES)")
	cmd.Flags().StringP("speaker", "s", string(tts.SpeakerAchernar), "Chirp 3 HD speaker name")
	cmd.Flags().BoolP("follow", "f", false, "Print progress until the generation finishes")
	return cmd
}

func runEnqueue(cmd *cobra.Command, _ []string) error {
	pdfPath, _ := cmd.Flags().GetString("pdf")
	languageFlag, _ := cmd.Flags().GetString("language")
	speakerFlag, _ := cmd.Flags().GetString("speaker")
	follow, _ := cmd.Flags().GetBool("follow")

	language, err := tts.ParseLanguage(languageFlag)
	if err != nil {
		return err
	}
	speaker, err := tts.ParseSpeaker(speakerFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, "enqueue")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := cmd.Context()

	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer q.Close()

	gen := &models.Generation{
		ID:       uuid.New(),
		Language: string(language),
		Speaker:  string(speaker),
		Status:   models.GenerationStatusQueued,
	}

	// Subscribe before enqueueing so no event is missed.
	var events <-chan queue.ProgressEvent
	if follow {
		events, err = q.SubscribeProgress(ctx, gen.ID)
		if err != nil {
			return err
		}
	}

	if err := registerGeneration(ctx, database, q, pdfPath, cfg.PDFsPath, gen); err != nil {
		return err
	}

	logger.Info("generation queued",
		zap.Stringer("generation_id", gen.ID),
		zap.String("language", gen.Language),
		zap.String("speaker", gen.Speaker))
	fmt.Fprintln(cmd.OutOrStdout(), gen.ID)

	if !follow {
		return nil
	}
	return followProgress(ctx, cmd.OutOrStdout(), events)
}

type generationRecorder interface {
	CreateGeneration(ctx context.Context, g *models.Generation) error
	FailGeneration(ctx context.Context, id uuid.UUID, code, message string) error
}

type generationQueue interface {
	EnqueueGenerateAudio(ctx context.Context, generationID uuid.UUID) error
}

// registerGeneration copies the PDF under pdfsDir, records gen and queues it.
// A failure after the copy removes it again.
func registerGeneration(ctx context.Context, store generationRecorder, q generationQueue, pdfPath, pdfsDir string, gen *models.Generation) error {
	// OCR rewrites the file in place, so work on a copy.
	gen.PDFPath = filepath.Join(pdfsDir, gen.ID.String()+".pdf")
	if err := copyFile(pdfPath, gen.PDFPath); err != nil {
		return err
	}

	if err := store.CreateGeneration(ctx, gen); err != nil {
		os.Remove(gen.PDFPath)
		return fmt.Errorf("failed to create generation: %w", err)
	}

	if err := q.EnqueueGenerateAudio(ctx, gen.ID); err != nil {
		os.Remove(gen.PDFPath)
		if ferr := store.FailGeneration(context.WithoutCancel(ctx), gen.ID, "enqueue_failed", err.Error()); ferr != nil {
			return fmt.Errorf("failed to enqueue generation: %w (and failed to mark it: %v)", err, ferr)
		}
		return fmt.Errorf("failed to enqueue generation: %w", err)
	}
	return nil
}

func followProgress(ctx context.Context, out io.Writer, events <-chan queue.ProgressEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			switch event.Status {
			case string(models.GenerationStatusCompleted):
				fmt.Fprintln(out, "completed")
				return nil
			case string(models.GenerationStatusFailed):
				return fmt.Errorf("generation failed: %s", event.Error)
			case string(models.GenerationStatusSynthesizing):
				fmt.Fprintf(out, "synthesizing %d%%\n", event.Progress)
			default:
				fmt.Fprintln(out, event.Status)
			}
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
