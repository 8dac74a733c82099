package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

type fakeSessions struct {
	sessions map[string]domain.Session
}

func (f *fakeSessions) Get(_ context.Context, jobID string) (domain.Session, error) {
	s, ok := f.sessions[jobID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return s, nil
}

func sessionRequest(jobID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("jobId", jobID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func Test_GetSession_Snapshot(t *testing.T) {
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	fs := &fakeSessions{sessions: map[string]domain.Session{
		"job-1": {
			JobID:     "job-1",
			Stage:     domain.StageScored,
			Submitted: 2, Parsed: 2, Scored: 2,
			Resumes: map[string]domain.ResumeState{
				"r1": {ResumeID: "r1", Stage: domain.ResumeScored},
				"r2": {ResumeID: "r2", Stage: domain.ResumeScored},
			},
			CreatedAt: now, UpdatedAt: now,
		},
	}}
	srv := NewServer(testConfig(), nil, nil, fs, nil, nil)

	rw := httptest.NewRecorder()
	srv.SessionHandler()(rw, sessionRequest("job-1"))

	if rw.Code != http.StatusOK {
		t.Fatalf("status: got %d", rw.Code)
	}
	if rw.Header().Get("ETag") == "" {
		t.Fatalf("missing ETag")
	}
	var got domain.Session
	if err := json.NewDecoder(rw.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Stage != domain.StageScored || got.Scored != 2 {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
}

func Test_GetSession_ConditionalRead(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeSessions{sessions: map[string]domain.Session{
		"job-1": {JobID: "job-1", Stage: domain.StageSubmitted, CreatedAt: now, UpdatedAt: now},
	}}
	srv := NewServer(testConfig(), nil, nil, fs, nil, nil)

	first := httptest.NewRecorder()
	srv.SessionHandler()(first, sessionRequest("job-1"))
	etag := first.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag on first read")
	}

	req := sessionRequest("job-1")
	req.Header.Set("If-None-Match", etag)
	second := httptest.NewRecorder()
	srv.SessionHandler()(second, req)
	if second.Code != http.StatusNotModified {
		t.Fatalf("status: got %d want 304", second.Code)
	}
}

func Test_GetSession_UnknownJobIs404(t *testing.T) {
	srv := NewServer(testConfig(), nil, nil, &fakeSessions{sessions: map[string]domain.Session{}}, nil, nil)
	rw := httptest.NewRecorder()
	srv.SessionHandler()(rw, sessionRequest("missing"))
	if rw.Code != http.StatusNotFound {
		t.Fatalf("status: got %d want 404", rw.Code)
	}
}

func Test_GetSession_FailedStageCarriesLastError(t *testing.T) {
	now := time.Now().UTC()
	fs := &fakeSessions{sessions: map[string]domain.Session{
		"job-1": {
			JobID: "job-1", Stage: domain.StageFailed,
			LastError: "jd extraction dead-lettered: schema invalid",
			CreatedAt: now, UpdatedAt: now, TerminalAt: &now,
		},
	}}
	srv := NewServer(testConfig(), nil, nil, fs, nil, nil)

	rw := httptest.NewRecorder()
	srv.SessionHandler()(rw, sessionRequest("job-1"))

	var got domain.Session
	_ = json.NewDecoder(rw.Body).Decode(&got)
	if got.Stage != domain.StageFailed || got.LastError == "" || got.TerminalAt == nil {
		t.Fatalf("failed session snapshot incomplete: %+v", got)
	}
}
