package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type stubDispatcher struct {
	limit int
	calls int
	err   error
}

func (d *stubDispatcher) EnqueueSLAScan(_ context.Context, limit int) (*asynq.TaskInfo, error) {
	d.calls++
	d.limit = limit
	if d.err != nil {
		return nil, d.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func jobsRouter(dispatcher ScanDispatcher) http.Handler {
	h := NewHandler(nil, dispatcher, nil)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestTriggerSLAScanEnqueues(t *testing.T) {
	dispatcher := &stubDispatcher{}
	router := jobsRouter(dispatcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sla_scan?limit=50", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 1, dispatcher.calls)
	require.Equal(t, 50, dispatcher.limit)
	require.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rec.Body.String())
}

func TestTriggerSLAScanRejectsBadLimit(t *testing.T) {
	dispatcher := &stubDispatcher{}
	router := jobsRouter(dispatcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sla_scan?limit=many", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Zero(t, dispatcher.calls)
}

func TestTriggerSLAScanEnqueueFailure(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("redis down")}
	router := jobsRouter(dispatcher)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sla_scan", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerSLAScanWithoutDispatcher(t *testing.T) {
	router := jobsRouter(nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sla_scan", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
