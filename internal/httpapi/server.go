package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/trackfetch/api-go/internal/blob"
	"github.com/example/trackfetch/api-go/internal/jobs"
	"github.com/example/trackfetch/api-go/internal/model"
	"github.com/example/trackfetch/api-go/internal/store"
)

type Server struct {
	Jobs        *jobs.Manager
	Blobs       blob.LocalFS
	BaseURL     string // optional, for generating absolute file URLs
	CORSOrigins []string
	Logger      *slog.Logger
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(s.cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/file", s.fileHandler(http.StatusConflict))
	})

	// routes used by the mobile client
	r.Post("/download", s.handleDownload)
	r.Get("/status/{id}", s.handleGetJob)
	r.Get("/file/{id}", s.fileHandler(http.StatusBadRequest))

	return r
}

func (s Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) originAllowed(origin string) bool {
	for _, allowed := range s.CORSOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s Server) submit(w http.ResponseWriter, r *http.Request) (model.Job, bool) {
	var req submitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return model.Job{}, false
	}
	job, err := s.Jobs.Submit(r.Context(), req.URL)
	if err != nil {
		code := statusFor(err, http.StatusBadRequest)
		if code == http.StatusInternalServerError {
			s.serverError(w, r, err)
		} else {
			writeErr(w, code, err)
		}
		return model.Job{}, false
	}
	return job, true
}

func (s Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.submit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"jobId": job.ID, "status": job.Status})
}

func (s Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.submit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": job.ID, "status": job.Status})
}

func (s Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.Jobs.Status(r.Context(), id)
	if err != nil {
		writeErr(w, statusFor(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job, s.BaseURL))
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var opts store.ListOptions
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed := model.JobStatus(raw)
		if !parsed.Valid() {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", raw))
			return
		}
		opts.Status = &parsed
	}

	opts.Limit = 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		if value > 100 {
			value = 100
		}
		opts.Limit = value
	}

	list, err := s.Jobs.List(r.Context(), opts)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := make([]map[string]any, 0, len(list))
	for _, job := range list {
		resp = append(resp, jobResponse(job, s.BaseURL))
	}
	writeJSON(w, http.StatusOK, resp)
}

// fileHandler streams a finished job's artifact. notReady is the status
// code used while the job is still pending or running.
func (s Server) fileHandler(notReady int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := s.Jobs.Artifact(r.Context(), id)
		if err != nil {
			writeErr(w, statusFor(err, notReady), err)
			return
		}

		f, err := s.Blobs.Open(job.ResultPath)
		if err != nil {
			writeErr(w, statusFor(fmt.Errorf("%w: %v", model.ErrFileMissing, err), notReady), err)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			s.serverError(w, r, err)
			return
		}

		name := filepath.Base(job.ResultPath)
		w.Header().Set("Content-Type", contentTypeFor(name))
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
		w.Header().Set("Cache-Control", "no-store")
		http.ServeContent(w, r, name, info.ModTime(), f)
	}
}

var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".opus": "audio/opus",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// statusFor maps job errors to HTTP status codes.
func statusFor(err error, notReady int) int {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrFileMissing):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotReady):
		return notReady
	default:
		return http.StatusInternalServerError
	}
}

func jobResponse(job model.Job, baseURL string) map[string]any {
	resp := map[string]any{
		"id":        job.ID,
		"url":       job.SourceURL,
		"status":    job.Status,
		"createdAt": job.CreatedAt,
	}
	if job.StartedAt != nil {
		resp["startedAt"] = *job.StartedAt
	}
	if job.FinishedAt != nil {
		resp["finishedAt"] = *job.FinishedAt
	}
	if job.Status == model.JobDone {
		base := strings.TrimRight(baseURL, "/")
		resp["resultPath"] = job.ResultPath
		resp["filename"] = filepath.Base(job.ResultPath)
		resp["fileUrl"] = fmt.Sprintf("%s/v1/jobs/%s/file", base, job.ID)
	}
	if job.Status == model.JobError {
		resp["error"] = job.Error
		resp["errorKind"] = job.ErrorKind
	}
	return resp
}

func (s Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	if s.Logger != nil {
		s.Logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	writeErr(w, http.StatusInternalServerError, err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
