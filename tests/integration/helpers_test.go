//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"costlens/internal/ledger"
)

// API endpoints
const (
	economicsPath     = "/v1/reports/economics"
	summaryPath       = "/v1/reports/summary"
	ledgerSummaryPath = "/v1/ledger/summary"
	eventsPath        = "/v1/events"
	healthPath        = "/health"
)

// postEvents sends a batch of savings events to the ingest endpoint.
func postEvents(t *testing.T, serverURL string, events []ledger.Event) *http.Response {
	t.Helper()
	return sendJSONRequest(t, serverURL+eventsPath, events, nil)
}

// getJSON fetches url and decodes the JSON response body into out.
func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err, "failed to send request")
	defer closeBody(resp)

	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "failed to decode response")
	}
	return resp
}

// sendJSONRequest sends a JSON POST request and returns the response.
func sendJSONRequest(t *testing.T, url string, payload interface{}, headers map[string]string) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err, "failed to marshal request payload")

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err, "failed to create request")

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	require.NoError(t, err, "failed to send request")

	return resp
}

// closeBody is a helper to close response body in defer statements.
func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

// newSavingsEvent creates a basic savings event for testing. IDs and
// timestamps are left for the ingest endpoint to assign.
func newSavingsEvent(command string, rawBytes, filteredBytes int64) ledger.Event {
	return ledger.Event{
		Command:       command,
		Subcommand:    "build",
		RawBytes:      rawBytes,
		FilteredBytes: filteredBytes,
	}
}
