// Package api serves the cluster lifecycle over HTTP. Provisioning and
// termination run as background tasks, one at a time; clients poll
// /v1/task for progress.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imamik/clusterous/internal/cluster"
	"github.com/imamik/clusterous/internal/errdefs"
	"github.com/imamik/clusterous/internal/metrics"
	"github.com/imamik/clusterous/internal/provisioning"
	"github.com/imamik/clusterous/internal/provisioning/destroy"
)

const shutdownTimeout = 5 * time.Second

// Backend is the part of cluster.Controller the server uses.
type Backend interface {
	Status(ctx context.Context) (*cluster.Status, error)
	StartProvision(ctx context.Context, req *provisioning.Request) (*cluster.Task, error)
	StartTerminate(ctx context.Context, opts destroy.Options) (*cluster.Task, error)
	Task() *cluster.Task
}

// NodeGroup is one node group of a provisioning request.
type NodeGroup struct {
	Role         string `json:"role"`
	InstanceType string `json:"instance_type"`
	Count        int    `json:"count"`
}

// ProvisionRequest is the body of POST /v1/cluster.
type ProvisionRequest struct {
	ClusterName            string      `json:"cluster_name"`
	NodeGroups             []NodeGroup `json:"node_groups"`
	CentralLoggingLevel    int         `json:"central_logging_level"`
	ControllerInstanceType string      `json:"controller_instance_type,omitempty"`
	VolumeID               string      `json:"volume_id,omitempty"`
	VolumeSizeGB           int         `json:"volume_size_gb,omitempty"`
}

func (r ProvisionRequest) toRequest() *provisioning.Request {
	req := &provisioning.Request{
		ClusterName:            r.ClusterName,
		LoggingLevel:           r.CentralLoggingLevel,
		ControllerInstanceType: r.ControllerInstanceType,
		VolumeID:               r.VolumeID,
		VolumeSizeGB:           r.VolumeSizeGB,
	}
	for _, g := range r.NodeGroups {
		req.NodeGroups = append(req.NodeGroups, provisioning.NodeGroup{Role: g.Role, InstanceType: g.InstanceType, Count: g.Count})
	}
	return req
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Remediation string `json:"remediation,omitempty"`
}

// Server is the HTTP front-end.
type Server struct {
	backend Backend
	metrics *metrics.Metrics
	token   string
	origins []string
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires "Authorization: Bearer <token>" on every /v1 request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithCORS allows browser clients from origins.
func WithCORS(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

func NewServer(backend Backend, m *metrics.Metrics, opts ...Option) *Server {
	s := &Server{backend: backend, metrics: m}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}))
	}

	r.Route("/v1", func(r chi.Router) {
		if s.token != "" {
			r.Use(bearerAuth(s.token))
		}
		r.Get("/cluster", s.getCluster)
		r.Post("/cluster", s.createCluster)
		r.Delete("/cluster", s.deleteCluster)
		r.Get("/task", s.getTask)
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. Running tasks are not interrupted.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[API] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getCluster(w http.ResponseWriter, r *http.Request) {
	status, err := s.backend.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) createCluster(w http.ResponseWriter, r *http.Request) {
	var body ProvisionRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, errdefs.Configf("invalid request body: %v", err))
		return
	}
	if err := provisioning.CheckRequest(provisioning.NewConsoleObserver(), body.toRequest()); err != nil {
		writeError(w, err)
		return
	}

	task, err := s.backend.StartProvision(r.Context(), body.toRequest())
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("[API] Started %s of %s (task %s)", task.Name, task.Cluster, task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) deleteCluster(w http.ResponseWriter, r *http.Request) {
	opts := destroy.Options{}
	for name, dst := range map[string]*bool{
		"leave_volume":        &opts.LeaveVolume,
		"force_delete_volume": &opts.ForceDeleteVolume,
	} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, errdefs.Configf("invalid value for %s: %q", name, v))
			return
		}
		*dst = b
	}

	task, err := s.backend.StartTerminate(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Printf("[API] Started %s of %s (task %s)", task.Name, task.Cluster, task.ID)
	writeJSON(w, http.StatusAccepted, task)
}

func (s *Server) getTask(w http.ResponseWriter, _ *http.Request) {
	task := s.backend.Task()
	if task == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no task has been started"})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errdefs.IsNoActiveCluster(err):
		return http.StatusNotFound
	case errdefs.IsConfig(err):
		return http.StatusBadRequest
	case errdefs.IsConflict(err):
		return http.StatusConflict
	case errdefs.IsProvider(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), ErrorResponse{Error: err.Error(), Remediation: errdefs.Remediation(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Warning: failed to write response: %v", err)
	}
}
