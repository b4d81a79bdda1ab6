package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dealsense/internal/extraction"
	"github.com/fyrsmithlabs/dealsense/internal/httpapi"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

var (
	extractUserID      string
	extractNoLLM       bool
	extractNoPatterns  bool
	extractJSONOutput  bool
	extractHTTPTimeout = 120 * time.Second
)

// extractCmd runs hybrid extraction over a batch of messages
var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Run hybrid extraction over a message batch",
	Long: `Run hybrid transaction extraction over a JSON message batch.

The input is a JSON array of messages:

  [{"id": "m1", "from": "agent@example.com", "subject": "Offer",
    "body": "...", "sent_at": "2026-03-01T09:00:00Z"}]

Examples:
  # Extract from a file
  dealsense extract messages.json

  # Extract from stdin, pattern matching only
  cat messages.json | dealsense extract --no-llm -

  # Raw JSON output for scripting
  dealsense extract --json messages.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractUserID, "user", "", "user id for strategy resolution")
	extractCmd.Flags().BoolVar(&extractNoLLM, "no-llm", false, "disable the LLM path")
	extractCmd.Flags().BoolVar(&extractNoPatterns, "no-patterns", false, "disable the pattern-matching path")
	extractCmd.Flags().BoolVar(&extractJSONOutput, "json", false, "print the raw JSON result")
}

// runExtract handles the extract command
func runExtract(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	var messages []patterns.Message
	if err := json.Unmarshal(content, &messages); err != nil {
		return fmt.Errorf("failed to parse messages: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages to extract")
	}

	opts := extraction.DefaultOptions()
	opts.UseLLM = !extractNoLLM
	opts.UsePatternMatching = !extractNoPatterns
	opts.UserID = extractUserID

	reqJSON, err := json.Marshal(httpapi.ExtractRequest{
		Messages: messages,
		Options:  &opts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/extract", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: extractHTTPTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var result extraction.Result
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if extractJSONOutput {
		fmt.Println(string(body))
		if !result.Success {
			return fmt.Errorf("extraction failed: %s", result.Error)
		}
		return nil
	}

	if !result.Success {
		return fmt.Errorf("extraction failed: %s", result.Error)
	}

	printResult(os.Stdout, &result)
	return nil
}

// printResult renders a human-readable extraction summary.
func printResult(out io.Writer, result *extraction.Result) {
	related := 0
	for _, am := range result.AnalyzedMessages {
		if am.IsRealEstateRelated {
			related++
		}
	}

	fmt.Fprintf(out, "Analyzed %d message(s), %d real-estate related, method %s\n",
		len(result.AnalyzedMessages), related, result.Method)
	if result.LLMUsed && result.TokensUsed != nil {
		fmt.Fprintf(out, "LLM tokens used: %d\n", result.TokensUsed.Total)
	}
	if result.LLMError != "" {
		fmt.Fprintf(out, "LLM degradation: %s\n", result.LLMError)
	}

	if len(result.DetectedTransactions) == 0 {
		fmt.Fprintln(out, "No transactions detected.")
		return
	}

	fmt.Fprintf(out, "\nDetected %d transaction(s):\n", len(result.DetectedTransactions))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROPERTY\tTYPE\tSTAGE\tCONFIDENCE\tMESSAGES\tMETHOD")
	for _, tx := range result.DetectedTransactions {
		address := tx.PropertyAddress
		if address == "" {
			address = "(unknown)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			address, orDash(tx.TransactionType), orDash(tx.Stage),
			tx.Confidence, len(tx.CommunicationIDs), tx.Method)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
