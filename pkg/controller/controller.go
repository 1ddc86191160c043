// Package controller implements ridgeline's control-plane HTTP API: it
// accepts workload definitions from operators, persists them, and
// forwards desired-state changes to the scheduler over gRPC (spec.md
// §4.2 "Controller"). It is the only component clients talk to.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/metrics"
	"github.com/cuemby/ridgeline/pkg/rpcwire"
	"github.com/cuemby/ridgeline/pkg/types"
)

// Config holds controller configuration.
type Config struct {
	HTTPAddr          string
	SQLitePath        string
	SchedulerEndpoint string
}

// Controller serves the operator-facing HTTP API and relays accepted
// workloads to the scheduler.
type Controller struct {
	store *Store
	mux   *http.ServeMux
	sched rpcwire.ControllerServiceClient
	conn  *grpc.ClientConn
}

// New creates a Controller backed by a SQLite store at cfg.SQLitePath
// and a gRPC connection to cfg.SchedulerEndpoint. Extra dialOpts are
// appended after the defaults, letting tests substitute a bufconn dialer.
func New(cfg Config, dialOpts ...grpc.DialOption) (*Controller, error) {
	store, err := OpenStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.JSONCodecName)),
	}, dialOpts...)

	conn, err := grpc.NewClient(cfg.SchedulerEndpoint, opts...)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("controller: failed to dial scheduler at %s: %w", cfg.SchedulerEndpoint, err)
	}

	c := &Controller{
		store: store,
		sched: rpcwire.NewControllerServiceClient(conn),
		conn:  conn,
	}
	c.mux = http.NewServeMux()
	c.mux.HandleFunc("/workloads", instrument(c.handleWorkloads))
	c.mux.HandleFunc("/workloads/", instrument(c.handleWorkload))

	return c, nil
}

// statusRecorder lets instrument observe the status code a handler wrote,
// since http.ResponseWriter doesn't expose it otherwise.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func instrument(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		timer.ObserveDurationVec(metrics.ControllerRequestDuration, r.Method)
		metrics.ControllerRequestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%d", rec.status)).Inc()
	}
}

// Close releases the controller's store and scheduler connection.
func (c *Controller) Close() error {
	c.conn.Close()
	return c.store.Close()
}

// Handler returns the HTTP handler for embedding in an http.Server.
func (c *Controller) Handler() http.Handler {
	return c.mux
}

// Serve starts an HTTP server on addr using Handler, blocking until it
// exits or ctx is cancelled.
func (c *Controller) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      c.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (c *Controller) handleWorkloads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		c.createWorkload(w, r)
	case http.MethodGet:
		c.listWorkloads(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (c *Controller) handleWorkload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/workloads/")
	if id == "" {
		http.Error(w, "missing workload id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c.getWorkload(w, id)
	case http.MethodDelete:
		c.deleteWorkload(w, r.Context(), id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// decodeDefinition reads a WorkloadDefinition body, supporting JSON or
// YAML by Content-Type so operators can submit whichever is convenient
// (the scheduler and worker only ever see the canonical JSON form).
func decodeDefinition(r *http.Request) (types.WorkloadDefinition, []byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return types.WorkloadDefinition{}, nil, fmt.Errorf("controller: failed to read request body: %w", err)
	}

	var def types.WorkloadDefinition
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "yaml") {
		if err := yaml.Unmarshal(body, &def); err != nil {
			return types.WorkloadDefinition{}, nil, fmt.Errorf("controller: invalid yaml body: %w", err)
		}
		canonical, err := json.Marshal(def)
		if err != nil {
			return types.WorkloadDefinition{}, nil, fmt.Errorf("controller: failed to canonicalize definition: %w", err)
		}
		return def, canonical, nil
	}

	if err := json.Unmarshal(body, &def); err != nil {
		return types.WorkloadDefinition{}, nil, fmt.Errorf("controller: invalid json body: %w", err)
	}
	return def, body, nil
}

func (c *Controller) createWorkload(w http.ResponseWriter, r *http.Request) {
	def, raw, err := decodeDefinition(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if def.Name == "" {
		http.Error(w, "workload name is required", http.StatusBadRequest)
		return
	}

	workloadID := uuid.NewString()
	now := time.Now()
	rec := record{
		WorkloadID: workloadID,
		Name:       def.Name,
		Namespace:  r.URL.Query().Get("namespace"),
		Definition: json.RawMessage(raw),
		Status:     types.WorkloadPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := c.store.Put(rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	msg := &rpcwire.WorkloadMessage{
		WorkloadID: workloadID,
		Definition: string(raw),
		Request:    rpcwire.ScheduleKindCreate,
	}
	if _, err := c.sched.ScheduleInstance(r.Context(), msg); err != nil {
		log.WithComponent("controller").Error().Err(err).Str("workload_id", workloadID).Msg("failed to schedule workload")
		http.Error(w, fmt.Sprintf("controller: failed to schedule workload: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (c *Controller) listWorkloads(w http.ResponseWriter, r *http.Request) {
	recs, err := c.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(recs)
}

func (c *Controller) getWorkload(w http.ResponseWriter, id string) {
	rec, ok, err := c.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "workload not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rec)
}

// deleteWorkload does not remove the row: it submits a Destroy
// ScheduleRequest so the scheduler can drain the workload's instances,
// and marks the record Destroying. The controller does not consume
// GetStatusUpdates, so the row stays with status Destroying after the
// workload has drained.
func (c *Controller) deleteWorkload(w http.ResponseWriter, ctx context.Context, id string) {
	rec, ok, err := c.store.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "workload not found", http.StatusNotFound)
		return
	}

	msg := &rpcwire.WorkloadMessage{
		WorkloadID: id,
		Definition: string(rec.Definition),
		Request:    rpcwire.ScheduleKindDestroy,
	}
	if _, err := c.sched.ScheduleInstance(ctx, msg); err != nil {
		http.Error(w, fmt.Sprintf("controller: failed to destroy workload: %v", err), http.StatusBadGateway)
		return
	}

	rec.Status = types.WorkloadDestroying
	rec.UpdatedAt = time.Now()
	if err := c.store.Put(rec); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
