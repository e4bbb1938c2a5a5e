package service_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/gin-gonic/gin"

	"treadmill/internal/judge/config"
	"treadmill/internal/judge/service"
	"treadmill/pkg/errors"
)

func debugGET(t *testing.T, srv *service.DebugServer, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestDebugQueueDepths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := config.Default(config.ProfileTest)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	broker := newFakeBroker(3)
	broker.pushRaw(cfg.Queue.Normal, []byte(`{}`))
	broker.pushRaw(cfg.Queue.Normal, []byte(`{}`))
	broker.pushRaw(cfg.Queue.Retry, []byte(`{}`))

	rec := debugGET(t, service.NewDebugServer(cfg, broker), "/debug/queues")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Code errors.ErrorCode `json:"code"`
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := map[string]int64{cfg.Queue.Normal: 2, cfg.Queue.Rejudge: 0, cfg.Queue.Retry: 1}
	if body.Code != errors.Success {
		t.Errorf("code = %d, want %d", body.Code, errors.Success)
	}
	if !reflect.DeepEqual(body.Data, want) {
		t.Errorf("depths = %v, want %v", body.Data, want)
	}
}

func TestDebugHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := config.Default(config.ProfileTest)
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	broker := newFakeBroker(3)
	srv := service.NewDebugServer(cfg, broker)

	if rec := debugGET(t, srv, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	broker.pingErr = errors.Newf(errors.QueueError, "redis gone")
	rec := debugGET(t, srv, "/healthz")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("unhealthy status = %d, want 500", rec.Code)
	}
	var body struct {
		Code errors.ErrorCode `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != errors.QueueError {
		t.Errorf("code = %d, want %d", body.Code, errors.QueueError)
	}
}
