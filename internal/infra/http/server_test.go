//go:build !integration

package http_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-transform-service/internal/domain"
	"ai-transform-service/internal/domain/model"
	"ai-transform-service/internal/infra/adapters/blob"
	"ai-transform-service/internal/infra/events"
	apihttp "ai-transform-service/internal/infra/http"
	"ai-transform-service/internal/infra/memory"
)

const testKey = "test-key"

type fakeGeneration struct {
	mu      sync.Mutex
	results map[string]*model.SubmitResult
	err     error
	calls   int
}

func (f *fakeGeneration) Submit(ctx context.Context, sessionID string) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[sessionID]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeGeneration) Status(ctx context.Context, sessionID string) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.results[sessionID]; ok {
		return r, nil
	}
	return nil, domain.ErrNotFound
}

type fakeQueue struct {
	err    error
	queued []string
}

func (q *fakeQueue) Enqueue(sessionID string) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	q.queued = append(q.queued, sessionID)
	return true, nil
}

type denyAfter struct {
	n, limit int
}

func (d *denyAfter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	d.n++
	return d.n <= d.limit, nil
}

type fixture struct {
	gen      *fakeGeneration
	queue    *fakeQueue
	sessions *memory.SessionRepo
	store    *blob.FSStore
	broker   *events.Broker
	limiter  *denyAfter
	srv      *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := zerolog.Nop()
	signer, err := blob.NewSigner("secret")
	require.NoError(t, err)
	f := &fixture{
		gen: &fakeGeneration{results: map[string]*model.SubmitResult{
			"done": {SessionID: "done", Status: model.SubmitCompleted, CompletedSteps: []string{"m1"}},
			"busy": {SessionID: "busy", Status: model.SubmitBusy},
		}},
		queue:    &fakeQueue{},
		sessions: memory.NewSessionRepo(),
		broker:   events.NewBroker(8, &l),
		limiter:  &denyAfter{limit: 100},
	}
	f.srv = httptest.NewUnstartedServer(nil)
	f.store, err = blob.NewFSStore(t.TempDir(), "http://"+f.srv.Listener.Addr().String(), signer)
	require.NoError(t, err)

	s := apihttp.NewServer(apihttp.Deps{
		Generation: f.gen,
		Queue:      f.queue,
		Sessions:   f.sessions,
		Blobs:      f.store,
		Verifier:   f.store,
		Events:     f.broker,
		Limiter:    f.limiter,
		Log:        &l,
	}, apihttp.Options{APIKey: testKey, SubmitLimit: 5, SubmitWindow: time.Minute, Heartbeat: time.Hour})
	f.srv.Config.Handler = s.Routes()
	f.srv.Start()
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, key string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", "").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", "").StatusCode)
}

func TestAuth(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/v1/sessions/done/job", "").StatusCode)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/sessions/done/job", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/sessions/done/job", testKey).StatusCode)
}

func TestGenerate(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/done/generate", testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res model.SubmitResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, model.SubmitCompleted, res.Status)
	assert.Equal(t, []string{"m1"}, res.CompletedSteps)

	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/v1/sessions/busy/generate", testKey).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/sessions/missing/generate", testKey).StatusCode)

	f.gen.err = errors.New("database down")
	assert.Equal(t, http.StatusInternalServerError, f.do(t, http.MethodPost, "/api/v1/sessions/done/generate", testKey).StatusCode)
}

func TestGenerate_Async(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/sessions/done/generate?async=true", testKey)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{"done"}, f.queue.queued)
	assert.Equal(t, 0, f.gen.calls, "async submit must not run inline")

	f.queue.err = domain.ErrQueueFull
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodPost, "/api/v1/sessions/done/generate?async=true", testKey).StatusCode)
}

func TestGenerate_RateLimited(t *testing.T) {
	f := newFixture(t)
	f.limiter.limit = 1
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/sessions/done/generate", testKey).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, f.do(t, http.MethodPost, "/api/v1/sessions/done/generate", testKey).StatusCode)
}

func TestJobStatus(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/sessions/missing/job", testKey).StatusCode)
}

func TestArtifactsAndSignedBlobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sessions.Put(&model.Session{ID: "done"})

	path, err := f.store.Put(ctx, "sessions/done/m1/a1.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	require.NoError(t, f.sessions.WriteArtifacts(ctx, "done", []*model.Artifact{{
		ID: "a1", SessionID: "done", StepID: "m1", Ordinal: 1, ContentType: "image/png",
		Path: path, QualityStatus: model.QualityAccepted, Attempts: 1, CreatedAt: time.Now(),
	}}))

	resp := f.do(t, http.MethodGet, "/api/v1/sessions/done/artifacts", testKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var arts []struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&arts))
	require.Len(t, arts, 1)
	assert.Equal(t, "a1", arts[0].ID)

	u, err := url.Parse(arts[0].URL)
	require.NoError(t, err)
	blobResp := f.do(t, http.MethodGet, u.RequestURI(), "")
	require.Equal(t, http.StatusOK, blobResp.StatusCode)
	assert.Equal(t, "image/png", blobResp.Header.Get("Content-Type"))

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/blobs/"+path+"?token=bogus", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/sessions/unknown/artifacts", testKey).StatusCode)
}

func TestEvents_StreamUntilTerminal(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/sessions/busy/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return f.broker.Subscribers("busy") == 1 }, time.Second, 5*time.Millisecond)
	f.broker.Publish(model.ProgressEvent{SessionID: "busy", Type: model.EventStepCompleted, StepID: "m1"})
	f.broker.Publish(model.ProgressEvent{SessionID: "busy", Type: model.EventJobCompleted})

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	assert.Equal(t, []string{"status", "step_completed", "job_completed"}, names)
}

func TestEvents_TerminalJobClosesAfterStatus(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/sessions/done/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testKey)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := f.srv.Client().Do(req.WithContext(ctx))
	require.NoError(t, err)
	defer resp.Body.Close()

	var names []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			names = append(names, name)
		}
	}
	require.NoError(t, ctx.Err(), "stream must end without waiting for a terminal event")
	assert.Equal(t, []string{"status"}, names)
}
