package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "ragctl",
		Short: "Operator CLI for the news-rag query service",
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9020", "base URL of the news-rag server")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	root.AddCommand(newAskCmd())
	root.AddCommand(newEvalCmd())
	root.AddCommand(newTracesCmd())
	root.AddCommand(newFeedbackCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newAskCmd() *cobra.Command {
	var fast bool
	var conversationID string

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Ask one question against the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/rag/ask"
			if fast {
				path = "/v1/rag/ask-fast"
			}
			payload := map[string]interface{}{"query": args[0]}
			if conversationID != "" {
				payload["conversationId"] = conversationID
			}
			return postJSON(path, payload)
		},
	}
	cmd.Flags().BoolVar(&fast, "fast", false, "use the speed-biased profile")
	cmd.Flags().StringVar(&conversationID, "conversation", "", "conversation id for follow-up questions")
	return cmd
}

func newEvalCmd() *cobra.Command {
	var threshold float64
	var concurrency int

	cmd := &cobra.Command{
		Use:   "eval [scenarios.json]",
		Short: "Run a golden-question suite from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read scenario file: %w", err)
			}
			var scenarios []map[string]interface{}
			if err := json.Unmarshal(data, &scenarios); err != nil {
				return fmt.Errorf("scenario file is not a JSON array: %w", err)
			}
			payload := map[string]interface{}{
				"scenarios":     scenarios,
				"passThreshold": threshold,
				"concurrency":   concurrency,
			}
			return postJSON("/v1/rag/eval", payload)
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "minimum pass ratio per criterion")
	cmd.Flags().IntVar(&concurrency, "concurrency", 3, "parallel scenario runs")
	return cmd
}

func newTracesCmd() *cobra.Command {
	var stats bool

	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Show recent query traces or aggregated stage stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/v1/rag/traces"
			if stats {
				path = "/v1/rag/traces/stats"
			}
			return getJSON(path)
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "aggregate stage timings instead of listing traces")
	return cmd
}

func newFeedbackCmd() *cobra.Command {
	var export bool
	var includeNegatives bool
	var limit int

	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Show feedback analytics and active quality alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if export {
				path := fmt.Sprintf("/v1/rag/feedback/export?includeNegatives=%t", includeNegatives)
				if limit > 0 {
					path += fmt.Sprintf("&limit=%d", limit)
				}
				return getJSON(path)
			}
			if err := getJSON("/v1/rag/feedback/analytics"); err != nil {
				return err
			}
			return getJSON("/v1/rag/feedback/alerts")
		},
	}
	cmd.Flags().BoolVar(&export, "export", false, "dump stored feedback as training examples")
	cmd.Flags().BoolVar(&includeNegatives, "include-negatives", false, "include unhelpful verdicts in the export")
	cmd.Flags().IntVar(&limit, "limit", 0, "cap exported examples, newest first")
	return cmd
}

func postJSON(path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func getJSON(path string) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}
