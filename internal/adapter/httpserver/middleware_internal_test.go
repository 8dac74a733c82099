package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func Test_Recoverer_PanicBecomes500(t *testing.T) {
	h := Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d want 500", rw.Code)
	}
}

func Test_RequestID_GeneratedAndEchoed(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Fatalf("request id not injected")
	}
	if got := rw.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response header mismatch: got %q want %q", got, seen)
	}
}

func Test_RequestID_PreservesCallerValue(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-Id")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-supplied")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "caller-supplied" {
		t.Fatalf("caller request id dropped: got %q", seen)
	}
}

func Test_SecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rw.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header missing, got %q", got)
	}
	if got := rw.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("frame options header missing, got %q", got)
	}
}
