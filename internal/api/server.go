// Package api exposes the engine over HTTP and WebSocket. Runs execute
// asynchronously as jobs; progress events stream to WebSocket
// subscribers and finished results are fetched by job ID.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/atlas-desktop/strategy-sim/internal/obs"
	"github.com/atlas-desktop/strategy-sim/internal/series"
	"github.com/atlas-desktop/strategy-sim/internal/sim"
	"github.com/atlas-desktop/strategy-sim/internal/validate"
	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// JobStatus is the lifecycle state of an asynchronous run.
type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job tracks one asynchronous run and its eventual result.
type Job struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Status     JobStatus   `json:"status"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Error      string      `json:"error,omitempty"`
	Result     interface{} `json:"result,omitempty"`
}

// Server serves the engine API over one loaded series.
type Server struct {
	logger    *zap.Logger
	cfg       types.ServerConfig
	router    *mux.Router
	upgrader  websocket.Upgrader
	runner    *sim.Runner
	sweeper   *validate.Sweeper
	validator *validate.Validator
	ser       *series.Series
	baseCfg   types.SimConfig
	httpSrv   *http.Server

	mu   sync.RWMutex
	jobs map[string]*Job

	subMu sync.Mutex
	subs  map[*websocket.Conn]bool
}

// NewServer wires routes over the given series and base simulation
// config.
func NewServer(logger *zap.Logger, cfg types.ServerConfig, ser *series.Series, baseCfg types.SimConfig) *Server {
	s := &Server{
		logger:    logger,
		cfg:       cfg,
		router:    mux.NewRouter(),
		runner:    sim.New(logger),
		sweeper:   validate.NewSweeper(logger),
		validator: validate.NewValidator(logger),
		ser:       ser,
		baseCfg:   baseCfg,
		jobs:      make(map[string]*Job),
		subs:      make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	v1.HandleFunc("/backtest", s.handleBacktest).Methods(http.MethodPost)
	v1.HandleFunc("/sweep", s.handleSweep).Methods(http.MethodPost)
	v1.HandleFunc("/walkforward", s.handleWalkForward).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", s.handleGetJob).Methods(http.MethodGet)

	s.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	wsPath := s.cfg.WebSocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	s.router.HandleFunc(wsPath, s.handleWebSocket)
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", zap.String("addr", s.httpSrv.Addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Router exposes the configured routes, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"bars":   s.ser.Len(),
		"symbol": s.baseCfg.Symbol,
	})
}

type backtestRequest struct {
	Params types.ParameterSet `json:"params"`
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := s.baseCfg.WithParams(req.Params)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	job := s.newJob("backtest")
	go func() {
		res, err := s.runner.Run(context.Background(), s.ser, cfg)
		s.finishJob(job.ID, res, err)
	}()
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req types.SweepConfig
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Grid) == 0 {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("grid is required"))
		return
	}

	job := s.newJob("sweep")
	go func() {
		report, err := s.sweeper.Run(context.Background(), s.ser, s.baseCfg, req,
			func(done, total int) {
				s.broadcast(map[string]interface{}{
					"type": "sweep_progress", "jobId": job.ID,
					"done": done, "total": total,
				})
			})
		s.finishJob(job.ID, report, err)
	}()
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleWalkForward(w http.ResponseWriter, r *http.Request) {
	var req types.WalkForwardConfig
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	job := s.newJob("walkforward")
	go func() {
		report, err := s.validator.Run(context.Background(), s.ser, s.baseCfg, req)
		s.finishJob(job.ID, report, err)
	}()
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	// Snapshots, not pointers: jobs mutate when their run finishes.
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	s.mu.RUnlock()
	s.writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.mu.RLock()
	job, ok := s.jobs[id]
	var snapshot Job
	if ok {
		snapshot = *job
	}
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("no job %s", id))
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.subMu.Lock()
	s.subs[conn] = true
	s.subMu.Unlock()
	s.logger.Debug("websocket subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	go func() {
		defer func() {
			s.subMu.Lock()
			delete(s.subs, conn)
			s.subMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) broadcast(msg interface{}) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for conn := range s.subs {
		if err := conn.WriteJSON(msg); err != nil {
			delete(s.subs, conn)
			conn.Close()
		}
	}
}

// newJob registers a running job and returns a snapshot safe to encode
// while the run mutates the stored copy.
func (s *Server) newJob(kind string) Job {
	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    JobRunning,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

func (s *Server) finishJob(id string, result interface{}, err error) {
	now := time.Now().UTC()
	var status JobStatus
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		job.FinishedAt = &now
		if err != nil {
			job.Status = JobFailed
			job.Error = err.Error()
		} else {
			job.Status = JobDone
			job.Result = result
		}
		status = job.Status
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.broadcast(map[string]interface{}{
		"type": "job_finished", "jobId": id, "status": status,
	})
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
