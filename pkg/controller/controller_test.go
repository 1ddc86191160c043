package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cuemby/ridgeline/pkg/controller"
	"github.com/cuemby/ridgeline/pkg/rpcwire"
)

// fakeScheduler is a minimal ControllerServiceServer that records every
// ScheduleInstance call it receives, standing in for the real scheduler.
type fakeScheduler struct {
	rpcwire.ControllerServiceServer
	received   []*rpcwire.WorkloadMessage
	controller *controller.Controller
}

func (f *fakeScheduler) ScheduleInstance(_ context.Context, in *rpcwire.WorkloadMessage) (*rpcwire.Empty, error) {
	f.received = append(f.received, in)
	return &rpcwire.Empty{}, nil
}

func (f *fakeScheduler) GetStatusUpdates(*rpcwire.SubscribeRequest, rpcwire.ControllerService_GetStatusUpdatesServer) error {
	select {}
}

func startFakeScheduler(t *testing.T) *fakeScheduler {
	t.Helper()
	fake := &fakeScheduler{}
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	rpcwire.RegisterControllerServiceServer(srv, fake)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }

	c, err := controller.New(controller.Config{
		SQLitePath:        filepath.Join(t.TempDir(), "controller.db"),
		SchedulerEndpoint: "passthrough:///bufnet",
	}, grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	fake.controller = c
	return fake
}

func (f *fakeScheduler) server() http.Handler { return f.controller.Handler() }

func TestCreateAndGetWorkload(t *testing.T) {
	fake := startFakeScheduler(t)
	handler := fake.server()

	body := `{"api_version":"v1","kind":"Workload","name":"web","replicas":2,"spec":{"containers":[{"name":"web","image":"nginx:latest"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/workloads", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	workloadID := created["workload_id"].(string)
	require.NotEmpty(t, workloadID)
	require.Len(t, fake.received, 1)

	getReq := httptest.NewRequest(http.MethodGet, "/workloads/"+workloadID, nil)
	getRR := httptest.NewRecorder()
	handler.ServeHTTP(getRR, getReq)
	require.Equal(t, http.StatusOK, getRR.Code)
}

func TestGetUnknownWorkloadReturns404(t *testing.T) {
	fake := startFakeScheduler(t)
	req := httptest.NewRequest(http.MethodGet, "/workloads/does-not-exist", nil)
	rr := httptest.NewRecorder()
	fake.server().ServeHTTP(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteWorkloadMarksDestroying(t *testing.T) {
	fake := startFakeScheduler(t)
	handler := fake.server()

	body := `{"api_version":"v1","kind":"Workload","name":"web","spec":{"containers":[{"name":"web","image":"nginx:latest"}]}}`
	createReq := httptest.NewRequest(http.MethodPost, "/workloads", bytes.NewBufferString(body))
	createReq.Header.Set("Content-Type", "application/json")
	createRR := httptest.NewRecorder()
	handler.ServeHTTP(createRR, createReq)
	require.Equal(t, http.StatusCreated, createRR.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(createRR.Body.Bytes(), &created))
	workloadID := created["workload_id"].(string)

	delReq := httptest.NewRequest(http.MethodDelete, "/workloads/"+workloadID, nil)
	delRR := httptest.NewRecorder()
	handler.ServeHTTP(delRR, delReq)
	require.Equal(t, http.StatusAccepted, delRR.Code)
	require.Len(t, fake.received, 2)
	require.Equal(t, rpcwire.ScheduleKindDestroy, fake.received[1].Request)

	getReq := httptest.NewRequest(http.MethodGet, "/workloads/"+workloadID, nil)
	getRR := httptest.NewRecorder()
	handler.ServeHTTP(getRR, getReq)
	require.Equal(t, http.StatusOK, getRR.Code)
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(getRR.Body.Bytes(), &rec))
	require.Equal(t, "Destroying", rec["status"])
}
