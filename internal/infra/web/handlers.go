package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sanskarpan/Latexy/internal/domain"
	"github.com/sanskarpan/Latexy/internal/domain/model"
	"github.com/sanskarpan/Latexy/internal/domain/ports/adapter"
	"github.com/sanskarpan/Latexy/internal/infra/realtime"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

const (
	msgNoPDF    = "PDF not found. Job may have failed or files may have been cleaned up."
	msgNoLog    = "Log file not found"
	maxLogBytes = 1 << 20
)

const (
	JobTypeCompile  = "latex_compilation"
	JobTypeOptimize = "llm_optimization"
	JobTypeCombined = "combined"
	JobTypeScore    = "ats_scoring"
	JobTypeAnalyze  = "jd_analysis"
)

type submitRequest struct {
	JobType           string         `json:"job_type"`
	LatexContent      string         `json:"latex_content"`
	JobDescription    string         `json:"job_description"`
	OptimizationLevel string         `json:"optimization_level"`
	DeviceFingerprint string         `json:"device_fingerprint"`
	Metadata          map[string]any `json:"metadata"`
	Model             string         `json:"model"`
	APIKey            string         `json:"api_key"`
	Industry          string         `json:"industry"`
}

type submitResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"job_id"`
	Message       string `json:"message"`
	EstimatedTime int    `json:"estimated_time"`
}

type notifyRequest struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Kind      string `json:"kind"`
}

type announceRequest struct {
	Message string `json:"message"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, s.bodyLimit)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("%w: request body exceeds %d bytes", domain.ErrPayloadTooLarge, s.bodyLimit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrValidation)
		}
		return fmt.Errorf("%w: invalid request body", domain.ErrValidation)
	}
	return nil
}

// caller derives identity from the token, never from the body, so a client
// cannot promote itself to a paid plan by setting user_plan.
func caller(r *http.Request, req submitRequest) usecase.Caller {
	p := principalFrom(r.Context())
	meta := make(map[string]any, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["submitted_via"] = "api"
	if ip := clientIP(r); ip != "" {
		meta["ip_address"] = ip
	}
	return usecase.Caller{
		UserID:   p.UserID,
		Plan:     p.Plan,
		DeviceID: req.DeviceFingerprint,
		Metadata: meta,
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	ctx := r.Context()
	c := caller(r, req)
	opt := usecase.OptimizeRequest{
		Caller:            c,
		Source:            req.LatexContent,
		JobDescription:    req.JobDescription,
		OptimizationLevel: req.OptimizationLevel,
		Model:             req.Model,
		APIKey:            req.APIKey,
	}

	var (
		rec *usecase.SubmitReceipt
		err error
	)
	switch req.JobType {
	case JobTypeCompile:
		rec, err = s.submit.SubmitCompile(ctx, usecase.CompileRequest{Caller: c, Source: req.LatexContent})
	case JobTypeOptimize:
		rec, err = s.submit.SubmitOptimize(ctx, opt)
	case JobTypeCombined:
		rec, err = s.submit.SubmitCombined(ctx, opt)
	case JobTypeScore:
		rec, err = s.submit.SubmitScore(ctx, usecase.ScoreRequest{
			Caller:         c,
			Source:         req.LatexContent,
			JobDescription: req.JobDescription,
			Industry:       req.Industry,
		})
	case JobTypeAnalyze:
		rec, err = s.submit.SubmitJobDescriptionAnalysis(ctx, usecase.AnalyzeRequest{Caller: c, JobDescription: req.JobDescription})
	default:
		writeError(w, http.StatusBadRequest, "Unsupported job type: "+req.JobType)
		return
	}
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:       true,
		JobID:         rec.JobID,
		Message:       "Job submitted successfully: " + req.JobType,
		EstimatedTime: rec.EstimatedSeconds,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	v, err := s.query.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	v, err := s.query.Result(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err, "Job result not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) viewer(r *http.Request) usecase.Viewer {
	p := principalFrom(r.Context())
	return usecase.Viewer{UserID: p.UserID, Admin: p.admin()}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	a, err := s.query.Artifact(r.Context(), jobID, adapter.ArtifactPDF, s.viewer(r))
	if err != nil {
		s.fail(w, r, err, msgNoPDF)
		return
	}
	defer a.Close()

	name := "resume.pdf"
	if _, taskID, ok := model.TaskIDOf(jobID); ok && len(taskID) >= 8 {
		name = "resume_" + taskID[:8] + ".pdf"
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, a.Name, a.ModTime, a)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	a, err := s.query.Artifact(r.Context(), jobID, adapter.ArtifactLog, s.viewer(r))
	if err != nil {
		s.fail(w, r, err, msgNoLog)
		return
	}
	defer a.Close()
	b, err := io.ReadAll(io.LimitReader(a, maxLogBytes))
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job_id":  jobID,
		"logs":    strings.ToValidUTF8(string(b), ""),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	out, err := s.query.Cancel(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	if out.Cancelled && s.hub != nil {
		s.hub.PushUpdate(r.Context(), jobID, map[string]any{
			"status":  string(model.JobStatusCancelled),
			"message": usecase.CancelMessage,
		})
	}
	msg := "Job cancelled successfully"
	if !out.Cancelled {
		msg = "Job is not active; nothing to cancel"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"job_id":    jobID,
		"cancelled": out.Cancelled,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usecase.ListFilter{Status: model.JobStatus(q.Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status: "+string(f.Status))
		return
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	list, err := s.query.List(r.Context(), f)
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "connection_id")
	if err := s.hub.Serve(r.Context(), s.up, w, r, id); err != nil {
		s.logger(r).Debug().Err(err).Str("connection_id", id).Msg("websocket session rejected")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.query.Health(r.Context())
	status := "healthy"
	if !h.Healthy {
		status = "degraded"
	}
	body := map[string]any{
		"status":            status,
		"redis_health":      map[string]any{"healthy": h.Healthy, "error": h.Error},
		"active_jobs_count": h.ActiveJobs,
		"timestamp":         time.Now().UTC().Unix(),
	}
	if s.hub != nil {
		st := s.hub.Stats()
		body["websocket_connections"] = st.Connections
		body["job_subscriptions"] = st.Subscriptions
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r.URL.Query().Get("days"), 7)
	if err != nil || days <= 0 {
		writeError(w, http.StatusBadRequest, "days must be a positive integer")
		return
	}
	since := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	rep, err := s.query.Usage(r.Context(), since)
	if err != nil {
		s.fail(w, r, err, "Usage analytics disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"days":     days,
		"since":    rep.Since,
		"families": rep.Families,
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("cleanup_type")
	if kind == "" {
		kind = string(model.CleanupTempFiles)
	}
	hours, err := intParam(q.Get("max_age_hours"), 24)
	if err != nil || hours < 0 {
		writeError(w, http.StatusBadRequest, "max_age_hours must be a non-negative integer")
		return
	}
	rec, err := s.submit.SubmitCleanup(r.Context(), usecase.CleanupRequest{
		Kind:   model.CleanupKind(kind),
		MaxAge: time.Duration(hours) * time.Hour,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			writeError(w, http.StatusBadRequest, "Unsupported cleanup type: "+kind)
			return
		}
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Cleanup task submitted: " + kind,
		"job_id":  rec.JobID,
	})
}

func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	p := principalFrom(r.Context())
	rec, err := s.submit.SubmitNotify(r.Context(), usecase.NotifyRequest{
		Caller:    usecase.Caller{UserID: p.UserID, Plan: p.Plan},
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Body:      req.Body,
		Kind:      req.Kind,
	})
	if err != nil {
		s.fail(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		Success:       true,
		JobID:         rec.JobID,
		Message:       "Notification queued",
		EstimatedTime: rec.EstimatedSeconds,
	})
}

func (s *Server) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err, "")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	delivered := 0
	if s.hub != nil {
		delivered = s.hub.Broadcast(r.Context(), realtime.Message{Type: realtime.TypeAnnouncement, Data: req.Message})
	}
	s.logger(r).Info().Int("delivered", delivered).Msg("announcement broadcast")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"delivered": delivered,
	})
}
