package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dealsense/internal/extraction"
	"github.com/fyrsmithlabs/dealsense/internal/httpapi"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

func TestPrintResult(t *testing.T) {
	t.Run("renders transaction table", func(t *testing.T) {
		result := &extraction.Result{
			Success: true,
			Method:  extraction.MethodHybrid,
			AnalyzedMessages: []extraction.AnalyzedMessage{
				{IsRealEstateRelated: true},
				{IsRealEstateRelated: false},
			},
			DetectedTransactions: []extraction.DetectedTransaction{
				{
					PropertyAddress:  "123 Oak Street",
					TransactionType:  "purchase",
					Stage:            "escrow",
					Confidence:       0.92,
					Method:           extraction.MethodHybrid,
					CommunicationIDs: []string{"m1", "m2"},
				},
			},
		}

		var buf bytes.Buffer
		printResult(&buf, result)

		out := buf.String()
		assert.Contains(t, out, "Analyzed 2 message(s), 1 real-estate related, method hybrid")
		assert.Contains(t, out, "123 Oak Street")
		assert.Contains(t, out, "escrow")
		assert.Contains(t, out, "0.92")
	})

	t.Run("reports empty result", func(t *testing.T) {
		var buf bytes.Buffer
		printResult(&buf, &extraction.Result{Success: true, Method: extraction.MethodPattern})
		assert.Contains(t, buf.String(), "No transactions detected.")
	})
}

func TestRunExtract(t *testing.T) {
	canned := extraction.Result{
		Success: true,
		Method:  extraction.MethodPattern,
		AnalyzedMessages: []extraction.AnalyzedMessage{
			{IsRealEstateRelated: true},
		},
	}

	var received httpapi.ExtractRequest
	stub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/extract", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(canned))
	}))
	defer stub.Close()

	prevURL := serverURL
	serverURL = stub.URL
	defer func() { serverURL = prevURL }()

	dir := t.TempDir()
	path := filepath.Join(dir, "messages.json")
	messages := []patterns.Message{{ID: "m1", Body: "escrow is open"}}
	payload, err := json.Marshal(messages)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	extractNoLLM = true
	defer func() { extractNoLLM = false }()

	err = runExtract(extractCmd, []string{path})
	require.NoError(t, err)

	require.Len(t, received.Messages, 1)
	assert.Equal(t, "m1", received.Messages[0].ID)
	require.NotNil(t, received.Options)
	assert.False(t, received.Options.UseLLM)
	assert.True(t, received.Options.UsePatternMatching)
}

func TestRunExtract_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	err := runExtract(extractCmd, []string{path})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to parse messages"))
}
