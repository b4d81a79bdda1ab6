package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/dealsense/internal/extraction"
	"github.com/fyrsmithlabs/dealsense/internal/httpapi"
)

var (
	strategyUserID       string
	strategyMessageCount int
)

// strategyCmd resolves the extraction strategy for a user
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Show the extraction strategy for a user",
	Long: `Resolve which extraction method would run for a user and batch size,
without running the pipeline.

Examples:
  # Strategy for a 20-message batch
  dealsense strategy --user user-1 --messages 20`,
	RunE: runStrategy,
}

func init() {
	strategyCmd.Flags().StringVar(&strategyUserID, "user", "", "user id (required)")
	strategyCmd.Flags().IntVar(&strategyMessageCount, "messages", 0, "number of messages in the batch")
	_ = strategyCmd.MarkFlagRequired("user")
}

// runStrategy handles the strategy command
func runStrategy(cmd *cobra.Command, args []string) error {
	reqJSON, err := json.Marshal(httpapi.StrategyRequest{
		UserID:       strategyUserID,
		MessageCount: strategyMessageCount,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/strategy", serverURL)
	httpReq, err := http.NewRequest("POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var strategy extraction.Strategy
	if err := json.NewDecoder(resp.Body).Decode(&strategy); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Method:   %s\n", strategy.Method)
	if strategy.Provider != "" {
		fmt.Printf("Provider: %s\n", strategy.Provider)
	}
	fmt.Printf("Reason:   %s\n", strategy.Reason)
	if strategy.EstimatedTokenCost != nil {
		fmt.Printf("Estimated cost: %d tokens\n", *strategy.EstimatedTokenCost)
	}
	if strategy.BudgetRemaining != nil {
		fmt.Printf("Budget remaining: %d tokens\n", *strategy.BudgetRemaining)
	}

	return nil
}
