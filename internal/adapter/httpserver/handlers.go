// Package httpserver implements the reference HTTP admission layer: the
// narrow ingress contract the pipeline expects from its upstream.
//
// It accepts job descriptions and resume uploads, stores resume binaries in
// the object store, publishes the corresponding job.* events on the bus, and
// exposes the session coordinator's read-only progress snapshot. Everything
// past admission happens asynchronously in the workers.
package httpserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// SessionQuery is the read-only view of the session coordinator's state
// exposed to the admission layer. The full SessionRepository write surface
// stays private to C7.
type SessionQuery interface {
	Get(ctx context.Context, jobID string) (domain.Session, error)
}

// Server aggregates the admission layer's dependencies.
type Server struct {
	Cfg      config.Config
	Bus      domain.Bus
	Store    domain.ObjectStore
	Sessions SessionQuery

	DBCheck  func(ctx context.Context) error
	BusCheck func(ctx context.Context) error

	validate *validator.Validate
}

// NewServer constructs the admission server. bus and store may be nil in
// degraded local-dev mode (BUS_OPTIONAL); handlers then reject submissions
// with 503 instead of panicking.
func NewServer(cfg config.Config, b domain.Bus, store domain.ObjectStore, sessions SessionQuery, dbCheck, busCheck func(ctx context.Context) error) *Server {
	return &Server{
		Cfg:      cfg,
		Bus:      b,
		Store:    store,
		Sessions: sessions,
		DBCheck:  dbCheck,
		BusCheck: busCheck,
		validate: validator.New(),
	}
}

// allowedResumeMIME maps the sniffed content type to acceptance. Detection
// is by magic bytes: the filename and Content-Type header are never
// trusted.
func allowedResumeMIME(m *mimetype.MIME) bool {
	switch {
	case m.Is("application/pdf"),
		m.Is("application/msword"),
		m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		m.Is("text/plain"):
		return true
	}
	return false
}

type submitJobRequest struct {
	JobID          string `json:"jobId" validate:"omitempty,max=100"`
	OrganizationID string `json:"organizationId" validate:"required,max=100"`
	Text           string `json:"text" validate:"required,min=20"`
}

// SubmitJobHandler handles POST /jobs: it admits a job description and
// publishes job.jd.submitted. The jobId may be supplied by the caller
// (externally unique) or is assigned here.
func (s *Server) SubmitJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Bus == nil {
			writeError(w, r, fmt.Errorf("%w: bus disabled", domain.ErrUpstreamTimeout), nil)
			return
		}
		var req submitJobRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: decode body: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		req.Text = strings.TrimSpace(req.Text)
		if err := s.validate.Struct(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		jobID := req.JobID
		if jobID == "" {
			jobID = uuid.NewString()
		} else if res := ValidateJobID(jobID); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid jobId", domain.ErrInvalidArgument), res.Errors)
			return
		}

		payload := domain.JobSubmittedPayload{
			JobID:          jobID,
			OrganizationID: req.OrganizationID,
			Text:           req.Text,
			SubmittedAt:    time.Now().UTC(),
		}
		if err := s.publish(r.Context(), domain.SubjectJobJDSubmitted, jobID, req.OrganizationID, payload); err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("job admitted", "job_id", jobID, "org_id", req.OrganizationID)
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
	}
}

// UploadResumeHandler handles POST /jobs/{jobId}/resumes: it stores the
// uploaded binary in the object store and publishes job.resume.submitted
// carrying the {fileId, checksum} reference. The blob itself never rides
// the bus.
func (s *Server) UploadResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Bus == nil || s.Store == nil {
			writeError(w, r, fmt.Errorf("%w: bus or object store disabled", domain.ErrUpstreamTimeout), nil)
			return
		}
		jobID := chi.URLParam(r, "jobId")
		if res := ValidateJobID(jobID); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid jobId", domain.ErrInvalidArgument), res.Errors)
			return
		}

		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+4096)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_ = json.NewEncoder(w).Encode(errorEnvelope{Error: apiError{Code: "PAYLOAD_TOO_LARGE", Message: fmt.Sprintf("request exceeds %d MiB", s.Cfg.MaxUploadMB)}})
			return
		}
		file, header, err := r.FormFile("resume")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: resume file required", domain.ErrInvalidArgument), map[string]string{"field": "resume"})
			return
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: resume read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if int64(len(data)) > maxBytes {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_ = json.NewEncoder(w).Encode(errorEnvelope{Error: apiError{Code: "PAYLOAD_TOO_LARGE", Message: fmt.Sprintf("resume exceeds %d MiB", s.Cfg.MaxUploadMB)}})
			return
		}

		mt := mimetype.Detect(data)
		if !allowedResumeMIME(mt) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusUnsupportedMediaType)
			_ = json.NewEncoder(w).Encode(errorEnvelope{Error: apiError{
				Code:    "INVALID_ARGUMENT",
				Message: "unsupported media type for resume (content)",
				Details: map[string]string{"mime": mt.String(), "filename": header.Filename},
			}})
			return
		}

		ref, err := s.Store.Put(r.Context(), readCloser{strings.NewReader(string(data))}, mt.String())
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: object store put: %v", domain.ErrInternal, err), nil)
			return
		}

		resumeID := uuid.NewString()
		payload := domain.ResumeSubmittedPayload{
			JobID:       jobID,
			ResumeID:    resumeID,
			RawFileRef:  ref,
			ContentType: mt.String(),
			SubmittedAt: time.Now().UTC(),
		}
		if err := s.publish(r.Context(), domain.SubjectJobResumeSubmitted, jobID, "", payload); err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("resume admitted",
			"job_id", jobID, "resume_id", resumeID,
			"file_id", ref.FileID, "mime", mt.String(), "bytes", len(data))
		writeJSON(w, http.StatusAccepted, map[string]string{
			"jobId":    jobID,
			"resumeId": resumeID,
			"fileId":   ref.FileID,
		})
	}
}

// SessionHandler handles GET /jobs/{jobId}: the session coordinator's
// read-only snapshot, with ETag support for cheap polling.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobId")
		if res := ValidateJobID(jobID); !res.Valid {
			writeError(w, r, fmt.Errorf("%w: invalid jobId", domain.ErrInvalidArgument), res.Errors)
			return
		}
		sess, err := s.Sessions.Get(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		etag := sessionETag(sess)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		writeJSON(w, http.StatusOK, sess)
	}
}

// sessionETag derives a strong ETag from the fields that change as the
// state machine advances.
func sessionETag(s domain.Session) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%d|%d|%d|%s",
		s.JobID, s.Stage, s.Submitted, s.Parsed, s.Scored, s.Reported, s.Failed,
		s.UpdatedAt.UTC().Format(time.RFC3339Nano))
	return `"` + hex.EncodeToString(h.Sum(nil)[:16]) + `"`
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler reports dependency readiness: session store and bus.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Err  string `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		checks := []check{}
		ready := true
		run := func(name string, fn func(ctx context.Context) error) {
			c := check{Name: name, OK: true}
			if fn == nil {
				c.OK = false
				c.Err = "not configured"
			} else if err := fn(ctx); err != nil {
				c.OK = false
				c.Err = err.Error()
			}
			if !c.OK {
				ready = false
			}
			checks = append(checks, c)
		}
		run("db", s.DBCheck)
		run("bus", s.BusCheck)
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
	}
}

// publish wraps payload into an Envelope and produces it with the
// configured publish timeout.
func (s *Server) publish(ctx context.Context, subject, jobID, tenantID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal payload: %v", domain.ErrInternal, err)
	}
	env := domain.Envelope{
		MessageID:     uuid.NewString(),
		CorrelationID: jobID,
		OccurredAt:    time.Now().UTC(),
		Attempt:       1,
		Subject:       subject,
		TenantID:      tenantID,
		SchemaVersion: domain.SchemaVersion,
		Payload:       body,
	}
	pubCtx, cancel := context.WithTimeout(ctx, s.Cfg.PublishTimeout)
	defer cancel()
	if err := s.Bus.Publish(pubCtx, subject, env); err != nil {
		if errors.Is(err, domain.ErrPublishRejected) {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		return fmt.Errorf("%w: publish %s: %v", domain.ErrUpstreamTimeout, subject, err)
	}
	return nil
}

// readCloser adapts a strings.Reader to domain.ReadSeekCloser.
type readCloser struct{ *strings.Reader }

func (readCloser) Close() error { return nil }
