package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbudde/tampercheck/internal/server"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Query server sessions",
	Long: `Queries a running server for session information.
If no session-id is provided, lists all sessions.
If session-id is provided, shows the details of that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	w := cmd.OutOrStdout()

	if len(args) == 0 {
		var sessions []server.Session
		if err := getJSON(client, serverURL+"/api/v1/sessions", &sessions); err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(w, "No sessions found")
			return nil
		}
		fmt.Fprintf(w, "Found %d session(s):\n\n", len(sessions))
		for _, s := range sessions {
			printSession(w, s)
			fmt.Fprintln(w)
		}
		return nil
	}

	var s server.Session
	if err := getJSON(client, fmt.Sprintf("%s/api/v1/sessions/%s", serverURL, args[0]), &s); err != nil {
		return err
	}
	printSession(w, s)
	return nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("not found: %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printSession(w io.Writer, s server.Session) {
	fmt.Fprintf(w, "Session: %s\n", s.ID)
	fmt.Fprintf(w, "  Control: %s\n", imageLabel(s.Control))
	fmt.Fprintf(w, "  Test: %s\n", imageLabel(s.Test))
	fmt.Fprintf(w, "  Transform: scale %.2f, offset (%.1f, %.1f)\n", s.Transform.Scale, s.Transform.OffsetX, s.Transform.OffsetY)
	fmt.Fprintf(w, "  Opacity: %.2f\n", s.Opacity)
	if s.Selection != nil {
		fmt.Fprintf(w, "  Selection: %s\n", s.Selection)
	}
	if s.Aligning {
		fmt.Fprintln(w, "  Alignment: running")
	} else if s.Suggestion != nil {
		fmt.Fprintf(w, "  Suggested transform: scale %.3f, offset (%.1f, %.1f)\n", s.Suggestion.Scale, s.Suggestion.OffsetX, s.Suggestion.OffsetY)
	}
	if s.LastResult != nil {
		fmt.Fprintf(w, "  Last result: %s (average difference %.2f)\n", s.LastResult.Result, s.LastResult.AvgDiff)
	}
	fmt.Fprintf(w, "  Updated: %s\n", s.UpdatedAt.Format(time.RFC3339))
}

func imageLabel(info *server.ImageInfo) string {
	if info == nil {
		return "not loaded"
	}
	if info.Name != "" {
		return fmt.Sprintf("%s (%dx%d)", info.Name, info.Width, info.Height)
	}
	return fmt.Sprintf("%dx%d", info.Width, info.Height)
}
