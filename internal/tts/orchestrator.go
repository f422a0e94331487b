package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Long-audio synthesis orchestrator
// Submits a Chirp 3 HD synthesis job that writes a WAV file to object storage,
// polls the provider's status endpoint until it reports 100% or max wait
// elapses, then downloads the artifact to the local audios directory.
// ---------------------------------------------------------------------------

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxWait      = 2 * time.Hour
	audioEncoding       = "LINEAR16"
	speakingRate        = 1.0
	maxResponseBytes    = 1 << 20
	remoteDeleteTimeout = 30 * time.Second
)

// CredentialProvider yields a bearer token for the TTS provider. An empty
// token with a nil error is treated as an authentication failure.
type CredentialProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// ObjectStore is the slice of object storage the orchestrator needs.
type ObjectStore interface {
	URI(objectName string) string
	Download(ctx context.Context, objectName, localPath string) error
	Delete(ctx context.Context, objectName string) error
}

// Config is read-only, process-wide orchestrator configuration.
type Config struct {
	SubmitURL string
	StatusURL string
	ProjectID string // sent as x-goog-user-project
	AudiosDir string

	PollInterval time.Duration
	MaxWait      time.Duration

	// DeleteAfterDownload removes the remote object once it is on disk.
	// Failures are logged and never affect the result.
	DeleteAfterDownload bool
}

// Request describes one synthesis. JobID names the output object and file.
type Request struct {
	Text       string
	Language   Language
	Speaker    Speaker
	JobID      string
	OnProgress ProgressFunc
}

type Option func(*Orchestrator)

func WithHTTPClient(client *http.Client) Option {
	return func(o *Orchestrator) {
		o.client = client
	}
}

func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator holds no per-call state; concurrent Synthesize calls are safe.
type Orchestrator struct {
	cfg         Config
	credentials CredentialProvider
	store       ObjectStore
	client      *http.Client
	clock       Clock
	logger      *zap.Logger

	cleanup sync.WaitGroup
}

func New(cfg Config, credentials CredentialProvider, store ObjectStore, opts ...Option) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}

	o := &Orchestrator{
		cfg:         cfg,
		credentials: credentials,
		store:       store,
		client:      &http.Client{Timeout: 60 * time.Second},
		clock:       SystemClock(),
		logger:      zap.NewNop(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type synthesizeRequest struct {
	Input        synthesisInput `json:"input"`
	Voice        voiceSelection `json:"voice"`
	AudioConfig  audioConfig    `json:"audioConfig"`
	OutputGcsURI string         `json:"outputGcsUri"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode Language `json:"languageCode"`
	Name         string   `json:"name"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audio_encoding"`
	SpeakingRate  float64 `json:"speaking_rate"`
}

// operation is the provider's long-running operation envelope. The submit
// endpoint returns it without metadata; the status endpoint fills metadata.
type operation struct {
	Name     string             `json:"name,omitempty"`
	Metadata *operationMetadata `json:"metadata,omitempty"`
	Error    *ProviderError     `json:"error,omitempty"`
}

type operationMetadata struct {
	ProgressPercentage float64 `json:"progressPercentage"`
}

func (op *operation) progress() int {
	if op.Metadata == nil {
		return 0
	}
	return int(math.Floor(op.Metadata.ProgressPercentage))
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

type State int

const (
	StateIdle State = iota
	StateAuthenticating
	StateSubmitting
	StateSubmitted
	StatePolling
	StateSucceeded
	StateDownloading
	StateDone

	StateAuthFailed
	StateInitFailed
	StateProcessingFailed
	StateTimedOut
	StateCancelled
	StateDownloadFailed
)

var stateNames = map[State]string{
	StateIdle:             "idle",
	StateAuthenticating:   "authenticating",
	StateSubmitting:       "submitting",
	StateSubmitted:        "submitted",
	StatePolling:          "polling",
	StateSucceeded:        "succeeded",
	StateDownloading:      "downloading",
	StateDone:             "done",
	StateAuthFailed:       "auth_failed",
	StateInitFailed:       "init_failed",
	StateProcessingFailed: "processing_failed",
	StateTimedOut:         "timed_out",
	StateCancelled:        "cancelled",
	StateDownloadFailed:   "download_failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition exists.
func (s State) Terminal() bool {
	return s >= StateDone
}

// run is the per-invocation state. It never escapes Synthesize.
type run struct {
	req        Request
	state      State
	token      string
	objectName string
	localPath  string

	submittedAt time.Time
	progress    int
	polls       int
	err         error
}

// Synthesize renders req.Text to audio and returns the local WAV path.
//
// Failures are one of *AuthenticationError, *InitializationError,
// *ProcessingError, *TimeoutError or *RetrievalError; a cancelled ctx
// surfaces as a wrapped ctx.Err(). Nothing is retried.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (string, error) {
	if req.JobID == "" {
		return "", errors.New("tts: job id is required")
	}

	r := &run{
		req:        req,
		state:      StateIdle,
		objectName: req.JobID + ".wav",
	}

	for !r.state.Terminal() {
		next := o.advance(ctx, r)
		o.logger.Debug("state transition",
			zap.String("job_id", req.JobID),
			zap.Stringer("from", r.state),
			zap.Stringer("to", next))
		r.state = next
	}

	if r.state != StateDone {
		o.logger.Warn("synthesis failed",
			zap.String("job_id", req.JobID),
			zap.Stringer("state", r.state),
			zap.Int("polls", r.polls),
			zap.Error(r.err))
		return "", r.err
	}

	o.logger.Info("synthesis complete",
		zap.String("job_id", req.JobID),
		zap.String("path", r.localPath),
		zap.Int("polls", r.polls),
		zap.Duration("elapsed", o.clock.Now().Sub(r.submittedAt)))

	return r.localPath, nil
}

func (o *Orchestrator) advance(ctx context.Context, r *run) State {
	switch r.state {
	case StateIdle:
		return StateAuthenticating
	case StateAuthenticating:
		return o.authenticate(ctx, r)
	case StateSubmitting:
		return o.submit(ctx, r)
	case StateSubmitted:
		return StatePolling
	case StatePolling:
		return o.poll(ctx, r)
	case StateSucceeded:
		return StateDownloading
	case StateDownloading:
		return o.download(ctx, r)
	}
	panic(fmt.Sprintf("tts: no transition from %s", r.state))
}

func (o *Orchestrator) authenticate(ctx context.Context, r *run) State {
	token, err := o.credentials.AccessToken(ctx)
	if err != nil || token == "" {
		r.err = &AuthenticationError{Err: err}
		return StateAuthFailed
	}
	r.token = token
	return StateSubmitting
}

func (o *Orchestrator) submit(ctx context.Context, r *run) State {
	body := synthesizeRequest{
		Input: synthesisInput{Text: r.req.Text},
		Voice: voiceSelection{
			LanguageCode: r.req.Language,
			Name:         VoiceName(r.req.Language, r.req.Speaker),
		},
		AudioConfig: audioConfig{
			AudioEncoding: audioEncoding,
			SpeakingRate:  speakingRate,
		},
		OutputGcsURI: o.store.URI(r.objectName),
	}

	o.logger.Info("submitting synthesis job",
		zap.String("job_id", r.req.JobID),
		zap.String("voice", body.Voice.Name),
		zap.String("output", body.OutputGcsURI),
		zap.Int("text_len", len(r.req.Text)))

	op, err := o.call(ctx, http.MethodPost, o.cfg.SubmitURL, r.token, body)
	if err != nil {
		r.err = &InitializationError{Cause: err}
		return StateInitFailed
	}
	if op.Error != nil {
		r.err = &InitializationError{Cause: op.Error}
		return StateInitFailed
	}

	// Deadline is measured from here, not from the start of the call.
	r.submittedAt = o.clock.Now()
	return StateSubmitted
}

func (o *Orchestrator) poll(ctx context.Context, r *run) State {
	r.polls++

	op, err := o.call(ctx, http.MethodGet, o.cfg.StatusURL, r.token, nil)
	if err != nil {
		r.err = &ProcessingError{Cause: err, Polls: r.polls}
		return StateProcessingFailed
	}
	if op.Error != nil {
		r.err = &ProcessingError{Cause: op.Error, Polls: r.polls}
		return StateProcessingFailed
	}

	r.progress = op.progress()
	o.logger.Debug("synthesis progress",
		zap.String("job_id", r.req.JobID),
		zap.Int("poll", r.polls),
		zap.Int("progress", r.progress))

	if r.req.OnProgress != nil {
		r.req.OnProgress(r.progress)
	}

	if r.progress >= 100 {
		return StateSucceeded
	}

	if err := o.clock.Sleep(ctx, o.cfg.PollInterval); err != nil {
		r.err = fmt.Errorf("tts polling stopped after %d polls at %d%%: %w", r.polls, r.progress, err)
		return StateCancelled
	}

	if elapsed := o.clock.Now().Sub(r.submittedAt); elapsed >= o.cfg.MaxWait {
		r.err = &TimeoutError{Elapsed: elapsed, Progress: r.progress}
		return StateTimedOut
	}

	return StatePolling
}

func (o *Orchestrator) download(ctx context.Context, r *run) State {
	r.localPath = filepath.Join(o.cfg.AudiosDir, r.objectName)

	if err := o.store.Download(ctx, r.objectName, r.localPath); err != nil {
		r.err = &RetrievalError{Object: r.objectName, Err: err}
		return StateDownloadFailed
	}

	if o.cfg.DeleteAfterDownload {
		o.deleteRemote(r.objectName)
	}

	return StateDone
}

// deleteRemote removes the object in the background. The result is only logged.
func (o *Orchestrator) deleteRemote(objectName string) {
	o.cleanup.Add(1)
	go func() {
		defer o.cleanup.Done()

		ctx, cancel := context.WithTimeout(context.Background(), remoteDeleteTimeout)
		defer cancel()

		if err := o.store.Delete(ctx, objectName); err != nil {
			o.logger.Warn("failed to delete remote audio",
				zap.String("object", objectName),
				zap.Error(err))
			return
		}
		o.logger.Debug("deleted remote audio", zap.String("object", objectName))
	}()
}

// Wait blocks until background remote deletions have finished.
func (o *Orchestrator) Wait() {
	o.cleanup.Wait()
}

// call performs one authenticated request and decodes the operation envelope.
// A non-2xx status without an error payload is turned into a ProviderError.
func (o *Orchestrator) call(ctx context.Context, method, url, token string, body any) (*operation, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-goog-user-project", o.cfg.ProjectID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var op operation
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &op); err != nil {
			if ok {
				return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, truncate(string(data), 200))
			}
			op = operation{}
		}
	}

	if !ok && op.Error == nil {
		op.Error = &ProviderError{
			Code:    resp.StatusCode,
			Message: truncate(string(data), 200),
			Status:  http.StatusText(resp.StatusCode),
		}
	}

	return &op, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
