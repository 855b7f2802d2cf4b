// Package api exposes the agent's HTTP surface: manual punch triggers,
// batch corrections with pollable tasks, the daily plan snapshot, the audit
// log, and the monthly export.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"kintai/internal/config"
	"kintai/internal/domain"
	"kintai/internal/export"
	"kintai/internal/metrics"
	"kintai/internal/models"
	"kintai/internal/pipeline"
	"kintai/internal/scheduler"
	"kintai/internal/tasks"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

type Server struct {
	cfg       config.APIConfig
	sched     *scheduler.Scheduler
	pipe      *pipeline.WritePipeline
	taskStore *tasks.Store
	store     domain.Store
	exporter  *export.Exporter
	clock     domain.Clock
	logger    zerolog.Logger
	server    *http.Server
	limiters  sync.Map // api key -> *rate.Limiter
}

func NewServer(cfg config.APIConfig, sched *scheduler.Scheduler, pipe *pipeline.WritePipeline,
	taskStore *tasks.Store, store domain.Store, exporter *export.Exporter,
	clk domain.Clock, logger *zerolog.Logger) *Server {

	s := &Server{
		cfg:       cfg,
		sched:     sched,
		pipe:      pipe,
		taskStore: taskStore,
		store:     store,
		exporter:  exporter,
		clock:     clk,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", cfg.Auth.HeaderAPIKey},
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/plan", s.handlePlan)
		r.Post("/punch/{action}", s.handlePunch)
		r.Post("/corrections/batch", s.handleBatch)
		r.Post("/leave", s.handleLeave)
		r.Post("/requests/{kind}/{id}/withdraw", s.handleWithdraw)
		r.Get("/tasks/{id}", s.handleTask)
		r.Get("/logs", s.handleLogs)
		r.Post("/strategy/detect", s.handleDetect)
		r.Get("/export/monthly", s.handleExport)
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("plan")
	analysis := s.sched.Analysis()
	if analysis == nil {
		writeError(w, http.StatusNotFound, "no plan computed yet")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handlePunch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("punch")
	action := models.ActionType(chi.URLParam(r, "action"))
	if !action.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", action))
		return
	}

	if err := s.sched.RunManual(r.Context(), action); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"action": string(action), "status": "executed"})
}

type batchRequest struct {
	Entries []correctionDTO `json:"entries"`
}

type correctionDTO struct {
	Date       string `json:"date"`
	ClockInAt  string `json:"clock_in_at,omitempty"`
	ClockOutAt string `json:"clock_out_at,omitempty"`
	Breaks     []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"breaks,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("batch")

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries is required")
		return
	}

	entries := make([]*models.CorrectionEntry, 0, len(req.Entries))
	for i, dto := range req.Entries {
		entry, err := s.parseCorrection(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("entry %d: %v", i, err))
			return
		}
		entries = append(entries, entry)
	}

	task := s.taskStore.Create()

	// Fire and forget: a browser batch can run for minutes; the caller
	// polls the task instead of holding the connection.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		results := s.pipe.RunBatch(ctx, entries, models.OpCorrection)
		s.taskStore.Complete(task.ID, results)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": task.ID})
}

func (s *Server) parseCorrection(dto correctionDTO) (*models.CorrectionEntry, error) {
	loc := s.clock.Location()
	date, err := time.ParseInLocation("2006-01-02", dto.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", dto.Date)
	}

	entry := &models.CorrectionEntry{Date: date, IsEditable: true, Reason: dto.Reason}

	parse := func(value string) (*time.Time, error) {
		if value == "" {
			return nil, nil
		}
		t, err := time.ParseInLocation("15:04", value, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid time %q (want HH:MM)", value)
		}
		at := time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, loc)
		return &at, nil
	}

	if entry.ClockInAt, err = parse(dto.ClockInAt); err != nil {
		return nil, err
	}
	if entry.ClockOutAt, err = parse(dto.ClockOutAt); err != nil {
		return nil, err
	}
	for _, br := range dto.Breaks {
		start, err := parse(br.Start)
		if err != nil {
			return nil, err
		}
		end, err := parse(br.End)
		if err != nil {
			return nil, err
		}
		if start == nil || end == nil {
			return nil, fmt.Errorf("break needs both start and end")
		}
		entry.BreakRecords = append(entry.BreakRecords, models.BreakRecord{ClockInAt: *start, ClockOutAt: *end})
	}
	return entry, nil
}

type leaveDTO struct {
	Date      string `json:"date"`
	LeaveType string `json:"leave_type"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("leave")

	var req leaveDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if req.LeaveType == "" {
		writeError(w, http.StatusBadRequest, "leave_type is required")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", req.Date, s.clock.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", req.Date))
		return
	}

	result := s.pipe.SubmitLeave(r.Context(), &models.LeaveEntry{
		Date:      date,
		LeaveType: req.LeaveType,
		Reason:    req.Reason,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("withdraw")

	kind := chi.URLParam(r, "kind")
	if kind != "work_time" && kind != "leave" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown request kind %q", kind))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request id")
		return
	}

	if err := s.pipe.WithdrawRequest(r.Context(), kind, id); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("task")
	task := s.taskStore.Get(chi.URLParam(r, "id"))
	if task == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("logs")
	now := s.clock.Now()
	from := now.AddDate(0, 0, -7)
	to := now.Add(24 * time.Hour)

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, s.clock.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := time.ParseInLocation("2006-01-02", raw, s.clock.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
		to = t.Add(24 * time.Hour)
	}

	entries, err := s.store.ListExecutionLog(r.Context(), from, to, 500)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("detect")

	var req correctionDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	sample, err := s.parseCorrection(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := s.pipe.DetectStrategy(r.Context(), sample, models.OpCorrection)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	month := r.URL.Query().Get("month")
	if month == "" {
		month = models.MonthKey(s.clock.Now())
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		writeError(w, http.StatusBadRequest, "invalid month (want YYYY-MM)")
		return
	}

	path, err := s.exporter.MonthlyReport(r.Context(), month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%s.xlsx"`, month))
	http.ServeContent(w, r, path, s.clock.Now(), f)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
