package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/recruiter-pipeline/internal/config"
	"github.com/fairyhunter13/recruiter-pipeline/internal/domain"
)

// fakeBus records every publish; Subscribe is never used by the admission
// layer.
type fakeBus struct {
	mu        sync.Mutex
	published []domain.Envelope
	failWith  error
}

func (f *fakeBus) Publish(_ context.Context, _ string, env domain.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, env)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string, string, domain.HandlerFunc) error { return nil }
func (f *fakeBus) Close() error                                                        { return nil }

func (f *fakeBus) envelopes() []domain.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Envelope, len(f.published))
	copy(out, f.published)
	return out
}

func testConfig() config.Config {
	return config.Config{
		MaxUploadMB:    1,
		PublishTimeout: 2 * time.Second,
	}
}

func Test_SubmitJob_PublishesEnvelope(t *testing.T) {
	fb := &fakeBus{}
	srv := NewServer(testConfig(), fb, nil, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{
		"jobId":          "job-123",
		"organizationId": "org-1",
		"text":           "Senior SRE. Requires Go and Kafka, 3-8 years experience.",
	})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body))
	rw := httptest.NewRecorder()
	srv.SubmitJobHandler()(rw, req)

	if rw.Code != http.StatusAccepted {
		t.Fatalf("status: got %d want 202 (%s)", rw.Code, rw.Body.String())
	}
	envs := fb.envelopes()
	if len(envs) != 1 {
		t.Fatalf("publishes: got %d want 1", len(envs))
	}
	env := envs[0]
	if env.Subject != domain.SubjectJobJDSubmitted {
		t.Fatalf("subject: got %s", env.Subject)
	}
	if env.CorrelationID != "job-123" {
		t.Fatalf("correlation: got %s", env.CorrelationID)
	}
	if env.MessageID == "" || env.Attempt != 1 {
		t.Fatalf("envelope identity fields missing: %+v", env)
	}
	var payload domain.JobSubmittedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.JobID != "job-123" || payload.OrganizationID != "org-1" {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func Test_SubmitJob_GeneratesJobIDWhenAbsent(t *testing.T) {
	fb := &fakeBus{}
	srv := NewServer(testConfig(), fb, nil, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{
		"organizationId": "org-1",
		"text":           "Backend engineer position with Postgres experience required.",
	})
	rw := httptest.NewRecorder()
	srv.SubmitJobHandler()(rw, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body)))

	if rw.Code != http.StatusAccepted {
		t.Fatalf("status: got %d (%s)", rw.Code, rw.Body.String())
	}
	var resp map[string]string
	_ = json.NewDecoder(rw.Body).Decode(&resp)
	if resp["jobId"] == "" {
		t.Fatalf("jobId not assigned")
	}
}

func Test_SubmitJob_RejectsMissingText(t *testing.T) {
	fb := &fakeBus{}
	srv := NewServer(testConfig(), fb, nil, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"organizationId": "org-1"})
	rw := httptest.NewRecorder()
	srv.SubmitJobHandler()(rw, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body)))

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rw.Code)
	}
	if len(fb.envelopes()) != 0 {
		t.Fatalf("nothing should be published on validation failure")
	}
}

func Test_SubmitJob_RejectsBadJobID(t *testing.T) {
	fb := &fakeBus{}
	srv := NewServer(testConfig(), fb, nil, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{
		"jobId":          "not ok/id",
		"organizationId": "org-1",
		"text":           "A long enough job description for validation purposes.",
	})
	rw := httptest.NewRecorder()
	srv.SubmitJobHandler()(rw, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body)))

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want 400", rw.Code)
	}
}

func Test_SubmitJob_BusUnreachableIs503(t *testing.T) {
	fb := &fakeBus{failWith: context.DeadlineExceeded}
	srv := NewServer(testConfig(), fb, nil, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{
		"organizationId": "org-1",
		"text":           "A long enough job description for validation purposes.",
	})
	rw := httptest.NewRecorder()
	srv.SubmitJobHandler()(rw, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(body)))

	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d want 503", rw.Code)
	}
}
