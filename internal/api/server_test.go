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

	"github.com/imamik/clusterous/internal/cluster"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
)

type stubBackend struct {
	status    *cluster.Status
	statusErr error
	task      *cluster.Task
	startErr  error

	provisioned *provisioning.Request
	terminated  *destroy.Options
}

func (b *stubBackend) Status(context.Context) (*cluster.Status, error) {
	return b.status, b.statusErr
}

func (b *stubBackend) StartProvision(_ context.Context, req *provisioning.Request) (*cluster.Task, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	b.provisioned = req
	b.task = &cluster.Task{ID: "t1", Name: cluster.TaskProvision, Cluster: req.ClusterName, State: cluster.TaskRunning, StartedAt: time.Now()}
	return b.task, nil
}

func (b *stubBackend) StartTerminate(_ context.Context, opts destroy.Options) (*cluster.Task, error) {
	if b.startErr != nil {
		return nil, b.startErr
	}
	b.terminated = &opts
	b.task = &cluster.Task{ID: "t2", Name: cluster.TaskTerminate, Cluster: "demo", State: cluster.TaskRunning, StartedAt: time.Now()}
	return b.task, nil
}

func (b *stubBackend) Task() *cluster.Task {
	return b.task
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const createBody = `{"cluster_name":"demo","node_groups":[{"role":"worker","instance_type":"t2.micro","count":2}],"central_logging_level":1}`

func TestCreateCluster(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	s := NewServer(b, nil)

	rec := do(t, s, http.MethodPost, "/v1/cluster", createBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	task := decode[cluster.Task](t, rec)
	assert.Equal(t, cluster.TaskProvision, task.Name)
	assert.Equal(t, "demo", task.Cluster)
	require.NotNil(t, b.provisioned)
	assert.Equal(t, []provisioning.NodeGroup{{Role: "worker", InstanceType: "t2.micro", Count: 2}}, b.provisioned.NodeGroups)
	assert.Equal(t, 1, b.provisioned.LoggingLevel)
}

func TestCreateCluster_Conflict(t *testing.T) {
	t.Parallel()
	s := NewServer(&stubBackend{startErr: errdefs.Conflictf("task %s is still running", "provision")}, nil)

	rec := do(t, s, http.MethodPost, "/v1/cluster", createBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "still running")
	assert.NotEmpty(t, resp.Remediation)
}

func TestCreateCluster_BadRequest(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	s := NewServer(b, nil)

	for _, body := range []string{
		`{"cluster_name":`,
		`{"cluster_name":"demo","unknown":1}`,
		`{"cluster_name":"bad name"}`,
		`{"cluster_name":"demo","node_groups":[{"role":"controller","instance_type":"t2.micro","count":1}]}`,
	} {
		rec := do(t, s, http.MethodPost, "/v1/cluster", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Nil(t, b.provisioned)
}

func TestDeleteCluster(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	s := NewServer(b, nil)

	rec := do(t, s, http.MethodDelete, "/v1/cluster?leave_volume=true", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, &destroy.Options{LeaveVolume: true}, b.terminated)

	rec = do(t, s, http.MethodDelete, "/v1/cluster?force_delete_volume=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCluster_NoActiveCluster(t *testing.T) {
	t.Parallel()
	s := NewServer(&stubBackend{startErr: errdefs.ErrNoActiveCluster}, nil)

	rec := do(t, s, http.MethodDelete, "/v1/cluster", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCluster(t *testing.T) {
	t.Parallel()
	s := NewServer(&stubBackend{status: &cluster.Status{
		Name:  "demo",
		State: cluster.StateRunning,
		Nodes: map[string]cluster.NodePool{"worker": {Type: "t2.micro", Count: 2}},
	}}, nil)

	rec := do(t, s, http.MethodGet, "/v1/cluster", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[cluster.Status](t, rec)
	assert.Equal(t, "demo", st.Name)
	assert.Equal(t, 2, st.Nodes["worker"].Count)
}

func TestGetCluster_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		code int
	}{
		{errdefs.ErrNoActiveCluster, http.StatusNotFound},
		{errdefs.Provider("describe instances", assert.AnError), http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := do(t, NewServer(&stubBackend{statusErr: tt.err}, nil), http.MethodGet, "/v1/cluster", "")
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
	}
}

func TestGetTask(t *testing.T) {
	t.Parallel()
	b := &stubBackend{}
	s := NewServer(b, nil)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/task", "").Code)

	do(t, s, http.MethodPost, "/v1/cluster", createBody)
	rec := do(t, s, http.MethodGet, "/v1/task", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", decode[cluster.Task](t, rec).ID)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	m.ComponentsLaunched(metrics.ResultLaunched, 3)
	s := NewServer(&stubBackend{}, m)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `clusterous_components_launched_total{result="launched"} 3`)

	assert.Equal(t, http.StatusNotFound, do(t, NewServer(&stubBackend{}, nil), http.MethodGet, "/metrics", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	t.Parallel()
	rec := do(t, NewServer(&stubBackend{}, nil), http.MethodPut, "/v1/cluster", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()
	m := metrics.New()
	s := NewServer(&stubBackend{status: &cluster.Status{Name: "demo"}}, m, WithToken("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/cluster", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/cluster", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/cluster", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/metrics", "").Code, "metrics stay open for scrapers")
}

func TestCORS(t *testing.T) {
	t.Parallel()
	s := NewServer(&stubBackend{status: &cluster.Status{Name: "demo"}}, nil, WithCORS("https://dash.example.com"))

	req := httptest.NewRequest(http.MethodOptions, "/v1/cluster", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/cluster", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&stubBackend{}, nil).ListenAndServe(ctx, "127.0.0.1:0")
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
