package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type staticCredentials struct {
	token string
	err   error
	calls int32

	// onToken runs before the token is returned.
	onToken func()
}

func (c *staticCredentials) AccessToken(context.Context) (string, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.onToken != nil {
		c.onToken()
	}
	return c.token, c.err
}

type fakeStore struct {
	mu          sync.Mutex
	downloadErr error
	deleteErr   error
	downloaded  []string
	deleted     []string
}

func (s *fakeStore) URI(objectName string) string {
	return "gs://narrator-test/" + objectName
}

func (s *fakeStore) Download(_ context.Context, objectName, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return s.downloadErr
	}
	s.downloaded = append(s.downloaded, objectName)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte("RIFF"), 0o644)
}

func (s *fakeStore) Delete(_ context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, objectName)
	return s.deleteErr
}

// provider fakes the submit and status endpoints.
type provider struct {
	t *testing.T

	submitStatus int
	submitBody   string
	// statuses is served in order; the last entry repeats.
	statuses []string

	mu       sync.Mutex
	submits  []synthesizeRequest
	headers  []http.Header
	gets     int
	requests []string
}

func (p *provider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		defer p.mu.Unlock()

		p.headers = append(p.headers, r.Header.Clone())
		p.requests = append(p.requests, r.Method+" "+r.URL.Path)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/submit":
			body, err := io.ReadAll(r.Body)
			require.NoError(p.t, err)
			var req synthesizeRequest
			require.NoError(p.t, json.Unmarshal(body, &req))
			p.submits = append(p.submits, req)

			status := p.submitStatus
			if status == 0 {
				status = http.StatusOK
			}
			w.WriteHeader(status)
			if p.submitBody != "" {
				_, _ = w.Write([]byte(p.submitBody))
			} else {
				_, _ = w.Write([]byte(`{"name":"operations/123"}`))
			}
		case r.Method == http.MethodGet && r.URL.Path == "/status":
			idx := p.gets
			if idx >= len(p.statuses) {
				idx = len(p.statuses) - 1
			}
			p.gets++
			_, _ = w.Write([]byte(p.statuses[idx]))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (p *provider) getCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gets
}

type harness struct {
	orch     *Orchestrator
	provider *provider
	creds    *staticCredentials
	store    *fakeStore
	clock    *fakeClock
	dir      string
}

func newHarness(t *testing.T, p *provider, mutate func(*Config)) *harness {
	t.Helper()

	p.t = t
	srv := httptest.NewServer(p.handler())
	t.Cleanup(srv.Close)

	h := &harness{
		provider: p,
		creds:    &staticCredentials{token: "test-token"},
		store:    &fakeStore{},
		clock:    newFakeClock(),
		dir:      t.TempDir(),
	}

	cfg := Config{
		SubmitURL:    srv.URL + "/submit",
		StatusURL:    srv.URL + "/status",
		ProjectID:    "narrator-project",
		AudiosDir:    h.dir,
		PollInterval: 5 * time.Second,
		MaxWait:      30 * time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.orch = New(cfg, h.creds, h.store, WithHTTPClient(srv.Client()), WithClock(h.clock))
	return h
}

func progressBody(p float64) string {
	b, _ := json.Marshal(operation{Metadata: &operationMetadata{ProgressPercentage: p}})
	return string(b)
}

func TestSynthesizeSuccess(t *testing.T) {
	p := &provider{statuses: []string{progressBody(50), progressBody(100)}}
	h := newHarness(t, p, nil)

	var seen []int
	path, err := h.orch.Synthesize(context.Background(), Request{
		Text:       "Hola mundo.",
		Language:   LanguageEnglishUS,
		Speaker:    Speaker("ACHERNAR"),
		JobID:      "job-1",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(h.dir, "job-1.wav"), path)
	assert.FileExists(t, path)
	assert.Equal(t, []int{50, 100}, seen)
	assert.Equal(t, 2, p.getCount())
	assert.Equal(t, []string{"job-1.wav"}, h.store.downloaded)

	require.Len(t, p.submits, 1)
	sub := p.submits[0]
	assert.Equal(t, "Hola mundo.", sub.Input.Text)
	assert.Equal(t, LanguageEnglishUS, sub.Voice.LanguageCode)
	assert.Equal(t, "en-US-Chirp3-HD-ACHERNAR", sub.Voice.Name)
	assert.Equal(t, "LINEAR16", sub.AudioConfig.AudioEncoding)
	assert.InDelta(t, 1.0, sub.AudioConfig.SpeakingRate, 0)
	assert.Equal(t, "gs://narrator-test/job-1.wav", sub.OutputGcsURI)

	for _, hdr := range p.headers {
		assert.Equal(t, "Bearer test-token", hdr.Get("Authorization"))
		assert.Equal(t, "narrator-project", hdr.Get("x-goog-user-project"))
	}
}

func TestSynthesizeFloorsFractionalProgress(t *testing.T) {
	p := &provider{statuses: []string{progressBody(12.9), progressBody(99.99), progressBody(100)}}
	h := newHarness(t, p, nil)

	var seen []int
	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageSpanishES, Speaker: SpeakerKore, JobID: "frac",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{12, 99, 100}, seen)
}

func TestSynthesizeMissingMetadataCountsAsZero(t *testing.T) {
	p := &provider{statuses: []string{`{}`, progressBody(100)}}
	h := newHarness(t, p, nil)

	var seen []int
	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "meta",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 100}, seen)
}

func TestSynthesizeAuthenticationFailure(t *testing.T) {
	tests := []struct {
		name  string
		token string
		err   error
	}{
		{name: "empty token", token: ""},
		{name: "provider error", err: errors.New("metadata server unreachable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &provider{statuses: []string{progressBody(100)}}
			h := newHarness(t, p, nil)
			h.creds.token = tt.token
			h.creds.err = tt.err

			path, err := h.orch.Synthesize(context.Background(), Request{
				Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "auth",
			})
			assert.Empty(t, path)

			var authErr *AuthenticationError
			require.ErrorAs(t, err, &authErr)
			assert.ErrorIs(t, err, ErrAuthentication)
			assert.Equal(t, "auth_failed", Outcome(err))
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}

			assert.Empty(t, p.requests, "no provider call may happen without a token")
		})
	}
}

func TestSynthesizeInitializationFailure(t *testing.T) {
	const badRequest = `{"@type":"type.googleapis.com/google.rpc.BadRequest","fieldViolations":[{"field":"voice.name"}]}`
	p := &provider{
		submitStatus: http.StatusBadRequest,
		submitBody:   `{"error":{"code":400,"message":"invalid voice","status":"INVALID_ARGUMENT","details":[` + badRequest + `]}}`,
		statuses:     []string{progressBody(100)},
	}
	h := newHarness(t, p, nil)

	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "init",
	})

	var initErr *InitializationError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, ErrInitialization)

	var payload *ProviderError
	require.ErrorAs(t, err, &payload)
	assert.Equal(t, 400, payload.Code)
	assert.Equal(t, "invalid voice", payload.Message)
	assert.Equal(t, "INVALID_ARGUMENT", payload.Status)
	require.Len(t, payload.Details, 1)
	assert.JSONEq(t, badRequest, string(payload.Details[0]))

	assert.Equal(t, 0, p.getCount())
	assert.Empty(t, h.store.downloaded)
}

func TestSynthesizeInitializationFailureWithoutPayload(t *testing.T) {
	p := &provider{
		submitStatus: http.StatusServiceUnavailable,
		submitBody:   "upstream overloaded",
		statuses:     []string{progressBody(100)},
	}
	h := newHarness(t, p, nil)

	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "init-503",
	})

	var payload *ProviderError
	require.ErrorAs(t, err, &payload)
	assert.Equal(t, http.StatusServiceUnavailable, payload.Code)
	assert.Contains(t, payload.Message, "upstream overloaded")
	assert.Equal(t, "init_failed", Outcome(err))
	assert.Equal(t, 0, p.getCount())
}

func TestSynthesizeProcessingFailure(t *testing.T) {
	p := &provider{statuses: []string{`{"error":{"code":13,"message":"internal"}}`}}
	h := newHarness(t, p, nil)

	var seen []int
	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "proc",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})

	var procErr *ProcessingError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, 1, procErr.Polls)
	assert.ErrorIs(t, err, ErrProcessing)
	assert.Equal(t, "processing_failed", Outcome(err))

	assert.Equal(t, 1, p.getCount())
	assert.Empty(t, seen)
	assert.Empty(t, h.store.downloaded)
}

func TestSynthesizeTimeout(t *testing.T) {
	p := &provider{statuses: []string{progressBody(40)}}
	h := newHarness(t, p, nil)

	var seen []int
	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "slow",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.GreaterOrEqual(t, timeoutErr.Elapsed, 30*time.Second)
	assert.Equal(t, 40, timeoutErr.Progress)
	assert.Contains(t, err.Error(), "30 seconds")
	assert.Equal(t, "timed_out", Outcome(err))

	// 30s max wait at a 5s interval.
	assert.Equal(t, 6, p.getCount())
	assert.Len(t, seen, 6)
	assert.Empty(t, h.store.downloaded)
}

func TestSynthesizeDeadlineStartsAtSubmission(t *testing.T) {
	p := &provider{statuses: []string{progressBody(40), progressBody(100)}}
	h := newHarness(t, p, nil)
	// Token lookup takes far longer than the 30s max wait.
	h.creds.onToken = func() { h.clock.advance(time.Hour) }

	var seen []int
	path, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "slow-auth",
		OnProgress: func(percent int) { seen = append(seen, percent) },
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "slow-auth.wav"), path)
	assert.Equal(t, []int{40, 100}, seen)
	assert.Equal(t, 2, p.getCount())
}

func TestSynthesizeTimeoutExcludesTimeBeforeSubmission(t *testing.T) {
	p := &provider{statuses: []string{progressBody(40)}}
	h := newHarness(t, p, nil)
	h.creds.onToken = func() { h.clock.advance(time.Hour) }

	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "slow-auth-timeout",
	})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 30*time.Second, timeoutErr.Elapsed)
	assert.Equal(t, 6, p.getCount())
}

func TestSynthesizeCancelled(t *testing.T) {
	p := &provider{statuses: []string{progressBody(10)}}
	h := newHarness(t, p, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := h.orch.Synthesize(ctx, Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "cancel",
		OnProgress: func(int) { cancel() },
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "cancelled", Outcome(err))
	assert.Equal(t, 1, p.getCount())
}

func TestSynthesizeDownloadFailure(t *testing.T) {
	p := &provider{statuses: []string{progressBody(100)}}
	h := newHarness(t, p, nil)
	h.store.downloadErr = errors.New("object not found")

	_, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "missing",
	})

	var retrievalErr *RetrievalError
	require.ErrorAs(t, err, &retrievalErr)
	assert.Equal(t, "missing.wav", retrievalErr.Object)
	assert.Equal(t, "retrieval_failed", Outcome(err))
}

func TestSynthesizeDeleteFailureIsIgnored(t *testing.T) {
	p := &provider{statuses: []string{progressBody(100)}}
	h := newHarness(t, p, func(cfg *Config) { cfg.DeleteAfterDownload = true })
	h.store.deleteErr = errors.New("permission denied")

	path, err := h.orch.Synthesize(context.Background(), Request{
		Text: "text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: "keep",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.dir, "keep.wav"), path)

	h.orch.Wait()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	assert.Equal(t, []string{"keep.wav"}, h.store.deleted)
}

func TestSynthesizeIndependentCalls(t *testing.T) {
	p := &provider{statuses: []string{progressBody(100)}}
	h := newHarness(t, p, nil)

	for _, id := range []string{"a", "b"} {
		path, err := h.orch.Synthesize(context.Background(), Request{
			Text: "same text", Language: LanguageEnglishUS, Speaker: SpeakerPuck, JobID: id,
		})
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(h.dir, id+".wav"), path)
	}

	require.Len(t, p.submits, 2)
	assert.Equal(t, "gs://narrator-test/a.wav", p.submits[0].OutputGcsURI)
	assert.Equal(t, "gs://narrator-test/b.wav", p.submits[1].OutputGcsURI)
	assert.EqualValues(t, 2, atomic.LoadInt32(&h.creds.calls))
}

func TestSynthesizeRequiresJobID(t *testing.T) {
	p := &provider{statuses: []string{progressBody(100)}}
	h := newHarness(t, p, nil)

	_, err := h.orch.Synthesize(context.Background(), Request{Text: "text"})
	require.Error(t, err)
	assert.Empty(t, p.requests)
}

func TestNewAppliesDefaults(t *testing.T) {
	o := New(Config{}, &staticCredentials{}, &fakeStore{})
	assert.Equal(t, 5*time.Second, o.cfg.PollInterval)
	assert.Equal(t, 2*time.Hour, o.cfg.MaxWait)
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateAuthenticating, StateSubmitting, StateSubmitted, StatePolling, StateSucceeded, StateDownloading} {
		assert.False(t, s.Terminal(), s.String())
	}
	for _, s := range []State{StateDone, StateAuthFailed, StateInitFailed, StateProcessingFailed, StateTimedOut, StateCancelled, StateDownloadFailed} {
		assert.True(t, s.Terminal(), s.String())
	}
	assert.Equal(t, "state(99)", State(99).String())
}
