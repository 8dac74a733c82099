//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_MultiResume_AllReported fans three resumes into one job and waits
// for every one of them to reach a report.
func TestE2E_MultiResume_AllReported(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	jobID := submitJob(t, client, "", "org-e2e", sreJobText)

	const n = 3
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		resume := fmt.Sprintf("Candidate %d\ncand%d@example.com\nSkills: Go, Kafka, Linux\nExperience:\nAcme - Engineer (2019-01 to present)\n", i, i)
		ids = append(ids, uploadResume(t, client, jobID, resume))
	}

	final := waitForStage(t, client, jobID, "reported", 120*time.Second)
	require.Equal(t, "reported", final["stage"])
	assert.EqualValues(t, n, final["submitted"])
	assert.EqualValues(t, n, final["reported"])

	resumes, ok := final["resumes"].(map[string]any)
	require.True(t, ok)
	for _, id := range ids {
		sub, ok := resumes[id].(map[string]any)
		require.True(t, ok, "missing sub-state for %s", id)
		assert.Equal(t, "reported", sub["stage"], "resume %s", id)
	}
}

// TestE2E_ResumeBeforeJD uploads the resume before the JD for the same
// jobId; pairing must still produce exactly one report.
func TestE2E_ResumeBeforeJD(t *testing.T) {
	t.Parallel()
	if testing.Short() {
		t.Skip("skipping e2e in short mode")
	}
	client := &http.Client{Timeout: 5 * time.Second}
	requireAppUp(t, client)

	jobID := fmt.Sprintf("e2e-race-%d", time.Now().UnixNano())
	uploadResume(t, client, jobID, strongResumeText)
	time.Sleep(500 * time.Millisecond)
	submitJob(t, client, jobID, "org-e2e", sreJobText)

	final := waitForStage(t, client, jobID, "reported", 120*time.Second)
	require.Equal(t, "reported", final["stage"])
	assert.EqualValues(t, 1, final["scored"], "exactly one score for the buffered resume")
	assert.EqualValues(t, 1, final["reported"])
}
