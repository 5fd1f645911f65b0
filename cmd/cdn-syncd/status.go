package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/apexmedia/cdn-sync-agent/internal/engine"
)

func statusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a running agent's queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			url := agentURL(addr) + "/v1/queue/status"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			if cfg.Server.AuthToken != "" {
				req.Header.Set("Authorization", "Bearer "+cfg.Server.AuthToken)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("querying agent: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				msg, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("agent returned %d: %s", resp.StatusCode, string(msg))
			}

			var st engine.Status
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}

			if st.Draining {
				fmt.Println("state: draining")
			} else {
				fmt.Println("state: idle")
			}

			if len(st.Sessions) == 0 {
				fmt.Println("queue: empty")
				return nil
			}

			for _, s := range st.Sessions {
				fmt.Printf("  %s: %d pending\n", s.SessionID, s.Pending)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "agent address (default: local agent from config)")

	return cmd
}
