package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/SirClappington/wheelsched/internal/clock"
	"github.com/SirClappington/wheelsched/internal/domain"
	"github.com/SirClappington/wheelsched/internal/scheduler"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type instantExecutor struct{}

func (instantExecutor) Execute(_ context.Context, l scheduler.Launch, report func(scheduler.Result)) {
	report(scheduler.Result{JobID: l.JobID, ExecutionID: l.ExecutionID})
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *scheduler.Scheduler, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	sched := scheduler.New(scheduler.DefaultConfig(), zaptest.NewLogger(t),
		scheduler.WithClock(clk),
		scheduler.WithExecutor(instantExecutor{}),
		scheduler.WithSeed(7),
	)
	return New(sched, zaptest.NewLogger(t), opts...), sched, clk
}

func do(t *testing.T, srv http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body, "uptime")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodOptions, "/api/jobs", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestSubmitJob(t *testing.T) {
	srv, _, _ := newTestServer(t)
	runAt := t0.Add(time.Second).UnixMilli()

	w := do(t, srv, http.MethodPost, "/api/jobs",
		`{"tenantId":"tenant-1","name":"report","runAt":`+jsonInt(runAt)+`,"payload":{"a":1},"maxAttempts":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	job := decode[domain.Job](t, w)
	assert.Equal(t, "tenant-1", job.TenantID)
	assert.Equal(t, domain.Scheduled, job.Status)
	assert.Equal(t, 2, job.MaxAttempts)
	assert.Equal(t, runAt, job.RunAt.UnixMilli())
	assert.JSONEq(t, `{"a":1}`, string(job.Payload))

	w = do(t, srv, http.MethodGet, "/api/jobs/"+job.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, job.ID, decode[domain.Job](t, w).ID)
}

func TestSubmitJob_MissingFields(t *testing.T) {
	srv, sched, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/jobs", `{"tenantId":"tenant-1"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[map[string]any](t, w)
	assert.Contains(t, body["error"], "validation failed")
	assert.Len(t, body["details"], 2)
	assert.Empty(t, sched.ListJobs(0))

	w = do(t, srv, http.MethodPost, "/api/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitJob_RateLimited(t *testing.T) {
	srv, _, _ := newTestServer(t, WithSubmitRate(0.001, 1))
	body := `{"tenantId":"tenant-1","name":"x","runAt":` + jsonInt(t0.UnixMilli()) + `}`

	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/jobs", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodPost, "/api/jobs", body).Code)

	other := `{"tenantId":"tenant-2","name":"x","runAt":` + jsonInt(t0.UnixMilli()) + `}`
	assert.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/jobs", other).Code)
}

func TestGetJob_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "job not found", decode[map[string]string](t, w)["error"])
}

func TestHeartbeatAndNodes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/nodes/heartbeat", `{"nodeId":"b"}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, srv, http.MethodPost, "/api/nodes/heartbeat", `{"nodeId":"a"}`)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "a", body["leaderId"])

	w = do(t, srv, http.MethodPost, "/api/nodes/heartbeat", "")
	body = decode[map[string]any](t, w)
	assert.Regexp(t, `^node-`, body["nodeId"])

	view := decode[scheduler.NodesView](t, do(t, srv, http.MethodGet, "/api/nodes", ""))
	assert.Equal(t, scheduler.OptionalID("a"), view.LeaderID)
	assert.Len(t, view.Nodes, 3)
}

func TestQueuesReportsNullLeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/queues", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"leaderId":null`)
	assert.Contains(t, w.Body.String(), `"paused":false`)
}

func TestPauseResume(t *testing.T) {
	srv, sched, _ := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/controls/pause", "")
	assert.Equal(t, true, decode[map[string]any](t, w)["paused"])
	assert.True(t, sched.Paused())

	w = do(t, srv, http.MethodPost, "/api/controls/resume", "")
	assert.Equal(t, false, decode[map[string]any](t, w)["paused"])
}

func TestSeedShardsAndLists(t *testing.T) {
	srv, sched, clk := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/seed", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 12, decode[map[string]any](t, w)["jobs"])

	shards := decode[struct {
		Shards []scheduler.ShardLoad `json:"shards"`
	}](t, do(t, srv, http.MethodGet, "/api/shards", ""))
	require.Len(t, shards.Shards, 3)
	assert.Equal(t, "Shard-A", shards.Shards[0].Name)
	assert.Equal(t, 4, shards.Shards[0].JobCount)

	jobs := decode[[]domain.Job](t, do(t, srv, http.MethodGet, "/api/jobs?limit=5", ""))
	assert.Len(t, jobs, 5)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/jobs?limit=abc", "").Code)

	// run the herd to completion
	sched.Heartbeat("a")
	for i := 0; i < 80; i++ {
		clk.Advance(200 * time.Millisecond)
		require.NoError(t, sched.Tick(context.Background()))
		sched.Heartbeat("a")
	}
	execs := decode[[]domain.Execution](t, do(t, srv, http.MethodGet, "/api/executions?limit=3", ""))
	assert.Len(t, execs, 3)

	events := decode[[]domain.Event](t, do(t, srv, http.MethodGet, "/api/events?limit=10", ""))
	assert.Len(t, events, 10)
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
