//go:build e2e

package e2e_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_Admission_RejectsUnsupportedMedia sends PNG bytes under a .txt
// name; magic-byte sniffing must reject it before anything reaches the bus.
func TestE2E_Admission_RejectsUnsupportedMedia(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	jobID := submitJob(t, client, "", "org-e2e", sreJobText)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("resume", "resume.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0})
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := client.Post(baseURL+"/jobs/"+jobID+"/resumes", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

// TestE2E_Admission_RejectsShortJD verifies request validation on POST /jobs.
func TestE2E_Admission_RejectsShortJD(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	body, _ := json.Marshal(map[string]string{"organizationId": "org-e2e", "text": "too short"})
	resp, err := client.Post(baseURL+"/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestE2E_UnknownJobIs404 checks the snapshot read path for a job that was
// never submitted.
func TestE2E_UnknownJobIs404(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	resp, err := client.Get(baseURL + "/jobs/never-submitted-job")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
