package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"panofuse/internal/config"
	"panofuse/internal/pipeline"
	"panofuse/internal/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

const defaultRunLimit = 100

// Server exposes run history, job submission and live run output over HTTP,
// plus a gRPC health service.
type Server struct {
	addr     string
	grpcAddr string
	store    *storage.Store
	pipeline *pipeline.Pipeline
	log      *slog.Logger
	hub      *hub
	health   *health.Server
	server   *http.Server
}

// New creates a server for the given pipeline. store may be nil, in which
// case the history endpoints fail with 503.
func New(cfg config.Server, store *storage.Store, pipe *pipeline.Pipeline, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:     cfg.Addr,
		grpcAddr: cfg.GRPCAddr,
		store:    store,
		pipeline: pipe,
		log:      log,
		hub:      newHub(log),
		health:   health.NewServer(),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)
	go s.pumpFrames(ctx)

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var gs *grpc.Server
	if s.grpcAddr != "" {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", s.grpcAddr, err)
		}
		gs = grpc.NewServer()
		healthgrpc.RegisterHealthServer(gs, s.health)
		go func() {
			s.log.Info("gRPC health service starting", "addr", s.grpcAddr)
			if err := gs.Serve(lis); err != nil {
				s.log.Error("gRPC server stopped", "error", err)
			}
		}()
	}
	s.updateHealth()
	go s.watchHealth(ctx)

	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")
		s.health.Shutdown()
		if gs != nil {
			gs.GracefulStop()
		}

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/runs", s.handleSubmit).Methods("POST")
	r.HandleFunc("/runs/{id}/frames", s.handleRunFrames).Methods("GET")
	r.HandleFunc("/stream", s.handleRunStream).Methods("GET")
	r.HandleFunc("/preview.jpg", s.handlePreview).Methods("GET")
	r.HandleFunc("/ws", s.handleWebSocket).Methods("GET")
}

// updateHealth mirrors the pipeline state into the gRPC health service.
func (s *Server) updateHealth() {
	status := healthgrpc.HealthCheckResponse_NOT_SERVING
	if s.pipeline != nil && s.pipeline.Running() {
		status = healthgrpc.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

func (s *Server) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateHealth()
		}
	}
}

func (s *Server) pumpFrames(ctx context.Context) {
	if s.pipeline == nil {
		return
	}
	events, unsubscribe := s.pipeline.SubscribeFrames()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.publish(ev)
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.updateHealth()
	if s.pipeline == nil || !s.pipeline.Running() {
		http.Error(w, "pipeline stopped", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run history unavailable", http.StatusServiceUnavailable)
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	recs, err := s.store.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleRunFrames(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run history unavailable", http.StatusServiceUnavailable)
		return
	}
	recs, err := s.store.RunFrames(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []storage.FrameRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var job pipeline.Job
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&job); err != nil {
		http.Error(w, "invalid job: "+err.Error(), http.StatusBadRequest)
		return
	}
	switch job.Type {
	case pipeline.JobSequential, pipeline.JobDual, pipeline.JobWatch:
	default:
		http.Error(w, fmt.Sprintf("unknown job type %q", job.Type), http.StatusBadRequest)
		return
	}
	if job.InputPath == "" {
		http.Error(w, "input is required", http.StatusBadRequest)
		return
	}
	if job.ID == "" {
		job.ID = string(job.Type) + "-" + uuid.NewString()
	}
	if s.pipeline == nil {
		http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.pipeline.Submit(job); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

// resultPayload is the wire form of a pipeline.Result.
type resultPayload struct {
	Job   pipeline.Job   `json:"job"`
	Error string         `json:"error,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

func newResultPayload(res pipeline.Result) resultPayload {
	p := resultPayload{Job: res.Job, Meta: res.Meta}
	if res.Error != nil {
		p.Error = res.Error.Error()
	}
	return p
}

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if s.pipeline == nil {
		http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resCh, unsubscribe := s.pipeline.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-r.Context().Done():
			return
		case res, ok := <-resCh:
			if !ok {
				return
			}
			payload, _ := json.Marshal(newResultPayload(res))
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
	}
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		return
	}
	data, meta := s.pipeline.Preview().Latest()
	if len(data) == 0 {
		http.Error(w, "no preview yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Run-ID", meta.RunID)
	w.Header().Set("X-Frame-Index", strconv.Itoa(meta.FrameIndex))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
