//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanskarpan/Latexy/internal/config"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/infra/adapters/latex"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/infra/realtime"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

const (
	testSecret = "test-jwt-secret-please-change"
	resume     = "\\documentclass{article}\\begin{document}Hi\\end{document}"
)

type fakeQueue struct {
	mu        sync.Mutex
	tasks     []model.TaskDescriptor
	cancelled []string
}

func (q *fakeQueue) Enqueue(ctx context.Context, t model.TaskDescriptor) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return t.TaskID, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, lane model.Lane, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

type fixture struct {
	srv   *Server
	h     http.Handler
	store *red.JobStore
	queue *fakeQueue
	hub   *realtime.Hub
	auth  *AuthManager
	mr    *miniredis.Miniredis
}

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newQueryFixture(t, nil, opts...)
}

func newQueryFixture(t *testing.T, qopts []usecase.QueryOption, opts ...Option) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	c := red.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1}))
	t.Cleanup(func() { _ = c.Close() })

	store := red.NewJobStore(c, time.Hour, "job_updates", newLogger())
	q := &fakeQueue{}
	hub := realtime.NewHub(newLogger())
	t.Cleanup(hub.Close)
	auth := NewAuthManager(testSecret, time.Minute)

	srv := NewServer(
		usecase.NewJobSubmitter(q, store, newLogger()),
		usecase.NewJobQuery(store, q, newLogger(), qopts...),
		hub, auth,
		config.HTTPConfig{RequestTimeout: 5 * time.Second},
		newLogger(),
		opts...,
	)
	return &fixture{srv: srv, h: srv.Routes(), store: store, queue: q, hub: hub, auth: auth, mr: mr}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestSubmitCompileThenStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{
		"job_type":      JobTypeCompile,
		"latex_content": resume,
		"metadata":      map[string]any{"source": "editor"},
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Job submitted successfully: latex_compilation", body["message"])
	jobID, _ := body["job_id"].(string)
	assert.True(t, strings.HasPrefix(jobID, "latex_"))
	assert.Greater(t, body["estimated_time"], float64(0))
	require.Len(t, f.queue.tasks, 1)

	rec = f.do(t, http.MethodGet, "/jobs/"+jobID+"/status", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody(t, rec)
	assert.Equal(t, "pending", st["status"])
	meta, _ := st["metadata"].(map[string]any)
	assert.Equal(t, "api", meta["submitted_via"])
	assert.Equal(t, "editor", meta["source"])
	assert.NotEmpty(t, rec.Header().Get(traceHeader))
}

func TestSubmitRejections(t *testing.T) {
	t.Run("unknown job type", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{"job_type": "telepathy"}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Unsupported job type: telepathy", decodeBody(t, rec)["error"])
	})

	t.Run("missing content", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{"job_type": JobTypeCompile}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, false, body["success"])
		assert.Contains(t, body["error"], "latex_content is required")
		assert.Empty(t, f.queue.tasks)
	})

	t.Run("optimize without job description", func(t *testing.T) {
		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{
			"job_type": JobTypeOptimize, "latex_content": resume,
		}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body over limit", func(t *testing.T) {
		f := newFixture(t, WithBodyLimit(64))
		rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{
			"job_type": JobTypeCompile, "latex_content": strings.Repeat("x", 256),
		}, "")
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		f := newFixture(t)
		req := httptest.NewRequest(http.MethodPost, "/jobs/submit", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		f.h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPlanComesFromToken(t *testing.T) {
	f := newFixture(t)
	tok, err := f.auth.Mint("user-7", model.PlanPro, "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/jobs/submit", map[string]any{
		"job_type": JobTypeCompile, "latex_content": resume, "user_plan": "free",
	}, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, model.PriorityHigh, f.queue.tasks[0].Priority)

	// anonymous callers cannot claim a paid plan
	rec = f.do(t, http.MethodPost, "/jobs/submit", map[string]any{
		"job_type": JobTypeCompile, "latex_content": resume, "user_plan": "pro",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.queue.tasks, 2)
	assert.Equal(t, model.PriorityForPlan(model.PlanFree), f.queue.tasks[1].Priority)
}

func TestInvalidTokenRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/jobs/latex_x/status", nil, "bad.jwt.token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other := NewAuthManager("some-other-secret", time.Minute)
	tok, err := other.Mint("u", model.PlanPro, RoleAdmin)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/jobs/latex_x/status", nil, tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusAndResultNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/jobs/latex_missing/status", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job not found", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodGet, "/jobs/latex_missing/result", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Job result not found", decodeBody(t, rec)["error"])
}

func TestResultOfCompletedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := model.NewResult(true)
	res["pdf_size"] = 2048
	require.NoError(t, f.store.SetResult(ctx, "latex_done", res))

	rec := f.do(t, http.MethodGet, "/jobs/latex_done/result", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	inner, _ := body["result"].(map[string]any)
	assert.EqualValues(t, 2048, inner["pdf_size"])
	errField, present := body["error"]
	assert.True(t, present, "error is sent as null")
	assert.Nil(t, errField)
}

type cannedUsage []model.UsageSummary

func (cannedUsage) RecordJob(ctx context.Context, ev *model.UsageEvent) error { return nil }

func (c cannedUsage) SummaryByFamily(ctx context.Context, since time.Time) ([]model.UsageSummary, error) {
	return c, nil
}

func (f *fixture) finished(t *testing.T, id string, meta map[string]any) {
	t.Helper()
	ctx := context.Background()
	fam, _ := model.FamilyOf(id)
	require.NoError(t, f.store.Create(ctx, id, fam, meta))
	_, err := f.store.SetStatus(ctx, id, model.JobStatusProcessing, model.StatusUpdate{})
	require.NoError(t, err)
	_, err = f.store.SetStatus(ctx, id, model.JobStatusCompleted, model.StatusUpdate{})
	require.NoError(t, err)
}

func TestDownloadAndLogs(t *testing.T) {
	root := t.TempDir()
	f := newQueryFixture(t, []usecase.QueryOption{usecase.WithArtifacts(latex.NewWorkspace(root))})
	jobID := "latex_0123456789ab"
	f.finished(t, jobID, map[string]any{"user_id": "u1"})
	dir := filepath.Join(root, jobID)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resume.pdf"), []byte("%PDF-1.5 body"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "resume.log"), []byte("This is pdfTeX"), 0o644))

	owner, err := f.auth.Mint("u1", model.PlanFree, "")
	require.NoError(t, err)
	stranger, err := f.auth.Mint("u2", model.PlanFree, "")
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/jobs/"+jobID+"/download", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "resume_01234567.pdf")
	assert.Equal(t, "%PDF-1.5 body", rec.Body.String())

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/jobs/"+jobID+"/download", nil, stranger).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/jobs/"+jobID+"/download", nil, "").Code)

	rec = f.do(t, http.MethodGet, "/jobs/"+jobID+"/logs", nil, owner)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "This is pdfTeX", decodeBody(t, rec)["logs"])

	require.NoError(t, os.RemoveAll(dir))
	rec = f.do(t, http.MethodGet, "/jobs/"+jobID+"/download", nil, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNoPDF, decodeBody(t, rec)["error"])
	rec = f.do(t, http.MethodGet, "/jobs/"+jobID+"/logs", nil, owner)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, msgNoLog, decodeBody(t, rec)["error"])
}

func TestUsageRoute(t *testing.T) {
	usage := cannedUsage{{Family: model.FamilyCompile, Total: 3, Completed: 2, Failed: 1}}
	f := newQueryFixture(t, []usecase.QueryOption{usecase.WithUsageReports(usage)})
	admin, err := f.auth.Mint("ops", model.PlanPro, RoleAdmin)
	require.NoError(t, err)
	user, err := f.auth.Mint("u1", model.PlanPro, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/jobs/system/usage", nil, user).Code)

	rec := f.do(t, http.MethodGet, "/jobs/system/usage?days=30", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 30, body["days"])
	fams, _ := body["families"].([]any)
	require.Len(t, fams, 1)
	first, _ := fams[0].(map[string]any)
	assert.Equal(t, "latex", first["family"])
	assert.EqualValues(t, 3, first["total"])

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/jobs/system/usage?days=0", nil, admin).Code)

	rec = newFixture(t).do(t, http.MethodGet, "/jobs/system/usage", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Usage analytics disabled", decodeBody(t, rec)["error"])
}

func TestCancelPushesToSubscribers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	jobID := model.JobID(model.FamilyCompile, "abc")
	require.NoError(t, f.store.Create(ctx, jobID, model.FamilyCompile, nil))

	ts := httptest.NewServer(f.h)
	t.Cleanup(ts.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/jobs/ws/tab-1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, ws.WriteJSON(realtime.Message{Type: realtime.TypeSubscribe, JobID: jobID}))
	var ack realtime.Message
	require.NoError(t, ws.ReadJSON(&ack))
	require.Equal(t, realtime.TypeSubscribed, ack.Type)

	rec := f.do(t, http.MethodDelete, "/jobs/"+jobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["cancelled"])
	assert.Equal(t, []string{"abc"}, f.queue.cancelled)

	var push struct {
		Type  string         `json:"type"`
		JobID string         `json:"job_id"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&push))
	assert.Equal(t, realtime.TypeJobUpdate, push.Type)
	assert.Equal(t, jobID, push.JobID)
	assert.Equal(t, "cancelled", push.Data["status"])
	assert.Equal(t, usecase.CancelMessage, push.Data["message"])

	st, err := f.store.GetStatus(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, st.Status)
}

func TestAnnounceReachesEveryConnection(t *testing.T) {
	f := newFixture(t)
	admin, err := f.auth.Mint("ops", model.PlanPro, RoleAdmin)
	require.NoError(t, err)

	ts := httptest.NewServer(f.h)
	t.Cleanup(ts.Close)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/jobs/ws/tab-9", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, ws.WriteJSON(realtime.Message{Type: realtime.TypePing}))
	var pong realtime.Message
	require.NoError(t, ws.ReadJSON(&pong))
	require.Equal(t, realtime.TypePong, pong.Type)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/jobs/system/announce", map[string]any{"message": "hi"}, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/jobs/system/announce", map[string]any{"message": " "}, admin).Code)

	rec := f.do(t, http.MethodPost, "/jobs/system/announce", map[string]any{"message": "maintenance at 02:00"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeBody(t, rec)["delivered"])

	var got realtime.Message
	require.NoError(t, ws.ReadJSON(&got))
	assert.Equal(t, realtime.TypeAnnouncement, got.Type)
	assert.Equal(t, "maintenance at 02:00", got.Data)
}

func TestCancelUnknownJobStillOK(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodDelete, "/jobs/latex_ghost", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["cancelled"])
}

func TestListJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, "latex_1", model.FamilyCompile, nil))
	require.NoError(t, f.store.Create(ctx, "latex_2", model.FamilyCompile, nil))
	_, err := f.store.SetStatus(ctx, "latex_2", model.JobStatusFailed, model.StatusUpdate{Error: "x"})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/jobs?limit=10", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 2, body["total_count"])
	assert.EqualValues(t, 1, body["active_count"])
	assert.EqualValues(t, 1, body["failed_count"])

	rec = f.do(t, http.MethodGet, "/jobs?status=failed", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	jobs, _ := decodeBody(t, rec)["jobs"].([]any)
	assert.Len(t, jobs, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/jobs?limit=ten", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/jobs?status=lost", nil, "").Code)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	user, err := f.auth.Mint("u1", model.PlanPro, "")
	require.NoError(t, err)
	admin, err := f.auth.Mint("ops", model.PlanPro, RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/jobs/system/cleanup", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/jobs/system/cleanup", nil, user).Code)

	rec := f.do(t, http.MethodPost, "/jobs/system/cleanup?cleanup_type=expired_jobs&max_age_hours=6", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "Cleanup task submitted: expired_jobs", body["message"])
	assert.True(t, strings.HasPrefix(body["job_id"].(string), "cleanup_"))

	rec = f.do(t, http.MethodPost, "/jobs/system/cleanup?cleanup_type=everything", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unsupported cleanup type: everything", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/jobs/notify", map[string]any{
		"recipient": "42", "subject": "Hello", "body": "Your resume is ready",
	}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decodeBody(t, rec)["job_id"].(string), "email_"))

	rec = f.do(t, http.MethodPost, "/jobs/notify", map[string]any{"recipient": "42"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemHealth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Create(context.Background(), "llm_1", model.FamilyOptimize, nil))

	rec := f.do(t, http.MethodGet, "/jobs/system/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["active_jobs_count"])
	assert.EqualValues(t, 0, body["websocket_connections"])

	f.mr.Close()
	rec = f.do(t, http.MethodGet, "/jobs/system/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}

func TestStoreOutageMapsTo503(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()
	rec := f.do(t, http.MethodGet, "/jobs/latex_1/status", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["success"])
}

func TestOpsEndpoints(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverReturnsJSON(t *testing.T) {
	h := Recover(newLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInternal)
}
