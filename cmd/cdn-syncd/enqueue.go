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

func enqueueCmd() *cobra.Command {
	var (
		addr        string
		contentType string
		payloadJSON string
	)

	cmd := &cobra.Command{
		Use:   "enqueue SESSION_ID KIND",
		Short: "Submit one operation to a running agent",
		Long: `Submit one mutation operation to a running agent.

KIND is one of move, caption, reorder. The payload is given as JSON
via --payload, or "-" to read it from stdin.

Examples:
  cdn-syncd enqueue S1 move --content-type STORIES \
    --payload '{"fileName":"a.png","sourcePath":"/x","destinationPath":"/y"}'

  cat reorder.json | cdn-syncd enqueue S1 reorder --payload -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, kind := args[0], args[1]

			raw := []byte(payloadJSON)
			if payloadJSON == "-" {
				var err error
				raw, err = io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("reading payload from stdin: %w", err)
				}
			}

			var payload map[string]any
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &payload); err != nil {
					return fmt.Errorf("invalid payload JSON: %w", err)
				}
			}

			body, err := json.Marshal(map[string]any{
				"kind":        kind,
				"contentType": contentType,
				"payload":     payload,
			})
			if err != nil {
				return err
			}

			url := fmt.Sprintf("%s/v1/sessions/%s/operations", agentURL(addr), sessionID)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if cfg.Server.AuthToken != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Server.AuthToken)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("posting to agent: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusAccepted {
				msg, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("agent rejected operation: %d %s", resp.StatusCode, string(msg))
			}

			fmt.Printf("queued %s operation for session %s\n", kind, sessionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "agent address (default: local agent from config)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type tag (e.g. STORIES)")
	cmd.Flags().StringVar(&payloadJSON, "payload", "{}", "operation payload as JSON, or - for stdin")

	return cmd
}

func agentURL(addr string) string {
	if addr != "" {
		return addr
	}
	return "http://localhost:" + cfg.Server.Port
}
