//go:build e2e

package e2e_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_HappyPath_SingleResume drives one JD and one resume through the
// whole pipeline and expects the session to terminate at "reported".
func TestE2E_HappyPath_SingleResume(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	jobID := submitJob(t, client, "", "org-e2e", sreJobText)
	resumeID := uploadResume(t, client, jobID, strongResumeText)

	final := waitForStage(t, client, jobID, "reported", 90*time.Second)
	require.Equal(t, "reported", final["stage"], "session should terminate reported, got %#v", final)

	assert.EqualValues(t, 1, final["submitted"])
	assert.EqualValues(t, 1, final["parsed"])
	assert.EqualValues(t, 1, final["scored"])
	assert.EqualValues(t, 1, final["reported"])
	assert.EqualValues(t, 0, final["failed"])

	resumes, ok := final["resumes"].(map[string]any)
	require.True(t, ok, "session should carry the per-resume sub-map")
	sub, ok := resumes[resumeID].(map[string]any)
	require.True(t, ok, "session should track resume %s", resumeID)
	assert.Equal(t, "reported", sub["stage"])
}

// TestE2E_SessionSnapshot_ETag verifies conditional reads against the
// session snapshot.
func TestE2E_SessionSnapshot_ETag(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	jobID := submitJob(t, client, "", "org-e2e", sreJobText)
	waitForStage(t, client, jobID, "jdExtracted", 60*time.Second)

	resp, err := client.Get(baseURL + "/jobs/" + jobID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	req, err := http.NewRequest(http.MethodGet, baseURL+"/jobs/"+jobID, nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	resp2, err := client.Do(req)
	require.NoError(t, err)
	_ = resp2.Body.Close()
	assert.Equal(t, http.StatusNotModified, resp2.StatusCode)
}
