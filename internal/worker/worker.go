package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/narrator/internal/metrics"
	"github.com/bobarin/narrator/internal/models"
	"github.com/bobarin/narrator/internal/pdf"
	"github.com/bobarin/narrator/internal/queue"
	"github.com/bobarin/narrator/internal/services"
	"github.com/bobarin/narrator/internal/tts"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Error codes stored on failed generations for stages before synthesis.
// Synthesis failures use tts.Outcome labels.
const (
	codeInvalidRequest      = "invalid_request"
	codeExtractionFailed    = "extraction_failed"
	codeNormalizationFailed = "normalization_failed"
	codeEmptyDocument       = "empty_document"
	codeStorageFailed       = "storage_failed"
)

// errInterrupted marks a generation abandoned because the worker is stopping.
var errInterrupted = errors.New("generation interrupted by shutdown")

type Store interface {
	GetGeneration(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	UpdateGenerationStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus) error
	UpdateGenerationProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetGenerationText(ctx context.Context, id uuid.UUID, textPath string, pageCount int) error
	CompleteGeneration(ctx context.Context, id uuid.UUID, audioPath string, durationMs *int) error
	FailGeneration(ctx context.Context, id uuid.UUID, code, message string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, queueName string, job *queue.Job) error
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
	PublishProgress(ctx context.Context, event queue.ProgressEvent) error
}

type PageExtractor interface {
	Extract(ctx context.Context, pdfPath, language string) ([]string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (string, error)
}

type DurationProbe interface {
	AudioDuration(ctx context.Context, audioPath string) (time.Duration, error)
}

type Config struct {
	TXTsPath             string
	NormalizeConcurrency int
	LLMProvider          string // metrics label
}

type Worker struct {
	cfg        Config
	store      Store
	queue      JobQueue
	extractor  PageExtractor
	normalizer services.Normalizer
	tts        Synthesizer
	probe      DurationProbe // Optional: nil skips duration lookup
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

func New(
	cfg Config,
	store Store,
	q JobQueue,
	extractor PageExtractor,
	normalizer services.Normalizer,
	synth Synthesizer,
	probe DurationProbe,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Worker {
	if cfg.NormalizeConcurrency < 1 {
		cfg.NormalizeConcurrency = 1
	}
	return &Worker{
		cfg:        cfg,
		store:      store,
		queue:      q,
		extractor:  extractor,
		normalizer: normalizer,
		tts:        synth,
		probe:      probe,
		metrics:    m,
		logger:     logger,
	}
}

// Start consumes the generation queue with concurrency loops and returns
// once ctx is cancelled and every in-flight job has finished.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	w.logger.Info("worker started", zap.Int("concurrency", concurrency))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processQueue(ctx, queue.QueueGenerateAudio, w.handleGenerateAudio)
		}()
	}

	<-ctx.Done()
	w.logger.Info("worker shutting down, waiting for in-flight jobs")
	wg.Wait()
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to dequeue", zap.String("queue", queueName), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if job == nil {
			continue // No job available, retry
		}

		log := w.logger.With(zap.Stringer("job_id", job.ID), zap.Stringer("generation_id", job.GenerationID))
		log.Info("processing job", zap.String("type", job.Type))

		if err := handler(ctx, job); err != nil {
			log.Error("job failed", zap.Error(err))
		} else {
			log.Info("job completed")
		}
	}
}

// handleGenerateAudio runs one generation end to end: extract pages, normalise
// them, write the transcript, synthesize it and record the result.
func (w *Worker) handleGenerateAudio(ctx context.Context, job *queue.Job) error {
	gen, err := w.store.GetGeneration(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to get generation: %w", err)
	}
	if gen.Status.Terminal() {
		w.logger.Warn("skipping finished generation",
			zap.Stringer("generation_id", gen.ID),
			zap.String("status", string(gen.Status)))
		return nil
	}

	finished := w.metrics.GenerationStarted()
	audioPath, err := w.run(ctx, gen)
	if errors.Is(err, errInterrupted) {
		finished(string(models.GenerationStatusQueued))
		return w.requeue(ctx, job)
	}
	if err != nil {
		finished(string(models.GenerationStatusFailed))
		return err
	}
	finished(string(models.GenerationStatusCompleted))

	w.logger.Info("generation completed",
		zap.Stringer("generation_id", gen.ID),
		zap.String("audio_path", audioPath))
	return nil
}

func (w *Worker) run(ctx context.Context, gen *models.Generation) (string, error) {
	language, err := tts.ParseLanguage(gen.Language)
	if err != nil {
		return "", w.fail(ctx, gen.ID, codeInvalidRequest, err)
	}
	speaker, err := tts.ParseSpeaker(gen.Speaker)
	if err != nil {
		return "", w.fail(ctx, gen.ID, codeInvalidRequest, err)
	}
	ocrLanguage, err := pdf.TesseractLanguage(string(language))
	if err != nil {
		return "", w.fail(ctx, gen.ID, codeInvalidRequest, err)
	}

	// Extract
	w.setStatus(ctx, gen.ID, models.GenerationStatusExtracting, 0)
	pages, err := w.extractor.Extract(ctx, gen.PDFPath, ocrLanguage)
	if err != nil {
		return "", w.fail(ctx, gen.ID, codeExtractionFailed, err)
	}
	w.metrics.RecordPages(len(pages))

	// Normalize
	w.setStatus(ctx, gen.ID, models.GenerationStatusNormalizing, 0)
	normalized, err := w.normalizePages(ctx, pages)
	if err != nil {
		return "", w.fail(ctx, gen.ID, codeNormalizationFailed, err)
	}

	text := joinPages(normalized)
	if text == "" {
		return "", w.fail(ctx, gen.ID, codeEmptyDocument, errors.New("document has no readable text"))
	}

	textPath := filepath.Join(w.cfg.TXTsPath, gen.ID.String()+".txt")
	if err := writeText(textPath, text); err != nil {
		return "", w.fail(ctx, gen.ID, codeStorageFailed, err)
	}
	if err := w.store.SetGenerationText(ctx, gen.ID, textPath, len(pages)); err != nil {
		return "", fmt.Errorf("failed to save transcript: %w", err)
	}
	w.publish(ctx, queue.ProgressEvent{GenerationID: gen.ID, Status: string(models.GenerationStatusSynthesizing)})

	// Synthesize
	audioPath, err := w.synthesize(ctx, gen.ID, text, language, speaker)
	if err != nil {
		return "", w.fail(ctx, gen.ID, tts.Outcome(err), err)
	}

	var durationMs *int
	if w.probe != nil {
		if d, err := w.probe.AudioDuration(ctx, audioPath); err != nil {
			w.logger.Warn("could not read audio duration", zap.String("path", audioPath), zap.Error(err))
		} else {
			ms := int(d.Milliseconds())
			durationMs = &ms
		}
	}

	if err := w.store.CompleteGeneration(context.WithoutCancel(ctx), gen.ID, audioPath, durationMs); err != nil {
		return "", fmt.Errorf("failed to complete generation: %w", err)
	}
	w.publish(ctx, queue.ProgressEvent{
		GenerationID: gen.ID,
		Status:       string(models.GenerationStatusCompleted),
		Progress:     100,
	})

	return audioPath, nil
}

// normalizePages cleans every non-blank page through the LLM, bounded by
// NormalizeConcurrency. Output order matches input order.
func (w *Worker) normalizePages(ctx context.Context, pages []string) ([]string, error) {
	out := make([]string, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.NormalizeConcurrency)

	for i, page := range pages {
		if strings.TrimSpace(page) == "" {
			continue
		}
		g.Go(func() error {
			cleaned, err := w.normalizer.Normalize(gctx, page)
			w.metrics.RecordNormalization(w.cfg.LLMProvider, err)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			out[i] = cleaned
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// synthesize runs the orchestrator and mirrors its progress to the store and
// the progress channel. Progress writes never block polling.
func (w *Worker) synthesize(ctx context.Context, id uuid.UUID, text string, language tts.Language, speaker tts.Speaker) (string, error) {
	stream := tts.NewProgressStream()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for progress := range stream.Updates() {
			if err := w.store.UpdateGenerationProgress(ctx, id, progress); err != nil {
				w.logger.Warn("failed to store progress", zap.Stringer("generation_id", id), zap.Error(err))
			}
			w.publish(ctx, queue.ProgressEvent{
				GenerationID: id,
				Status:       string(models.GenerationStatusSynthesizing),
				Progress:     progress,
			})
		}
	}()

	polls := 0
	start := time.Now()
	path, err := w.tts.Synthesize(ctx, tts.Request{
		Text:     text,
		Language: language,
		Speaker:  speaker,
		JobID:    id.String(),
		OnProgress: func(percent int) {
			polls++
			stream.Report(percent)
		},
	})
	stream.Close()
	<-forwarded

	w.metrics.RecordSynthesis(tts.Outcome(err), time.Since(start), polls)
	return path, err
}

func (w *Worker) setStatus(ctx context.Context, id uuid.UUID, status models.GenerationStatus, progress int) {
	if err := w.store.UpdateGenerationStatus(ctx, id, status); err != nil {
		w.logger.Warn("failed to update status",
			zap.Stringer("generation_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	w.publish(ctx, queue.ProgressEvent{GenerationID: id, Status: string(status), Progress: progress})
}

// requeue puts an interrupted job back on the queue so the next worker starts
// it over.
func (w *Worker) requeue(ctx context.Context, job *queue.Job) error {
	ctx = context.WithoutCancel(ctx)

	if err := w.store.UpdateGenerationStatus(ctx, job.GenerationID, models.GenerationStatusQueued); err != nil {
		return fmt.Errorf("failed to reset interrupted generation: %w", err)
	}
	if err := w.queue.Enqueue(ctx, queue.QueueGenerateAudio, job); err != nil {
		return fmt.Errorf("failed to requeue interrupted generation: %w", err)
	}
	w.publish(ctx, queue.ProgressEvent{GenerationID: job.GenerationID, Status: string(models.GenerationStatusQueued)})

	w.logger.Info("requeued interrupted generation", zap.Stringer("generation_id", job.GenerationID))
	return nil
}

// fail records the failure even when ctx is already cancelled and returns
// cause wrapped with the error code. Once the worker is stopping nothing is
// recorded and errInterrupted is returned instead.
func (w *Worker) fail(ctx context.Context, id uuid.UUID, code string, cause error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %v", errInterrupted, cause)
	}
	ctx = context.WithoutCancel(ctx)

	if err := w.store.FailGeneration(ctx, id, code, cause.Error()); err != nil {
		w.logger.Error("failed to record generation failure", zap.Stringer("generation_id", id), zap.Error(err))
	}
	w.publish(ctx, queue.ProgressEvent{
		GenerationID: id,
		Status:       string(models.GenerationStatusFailed),
		Error:        code,
	})

	return fmt.Errorf("%s: %w", code, cause)
}

func (w *Worker) publish(ctx context.Context, event queue.ProgressEvent) {
	if err := w.queue.PublishProgress(ctx, event); err != nil {
		w.logger.Debug("failed to publish progress", zap.Stringer("generation_id", event.GenerationID), zap.Error(err))
	}
}

func joinPages(pages []string) string {
	var parts []string
	for _, p := range pages {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

func writeText(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create text directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}
