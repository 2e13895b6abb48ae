package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// NewHealthCommand builds `funnel health`: query the server's health probe.
func NewHealthCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, baseURL()+"/v1/healthz", nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

			var pretty map[string]any
			if json.Unmarshal(body, &pretty) == nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				_ = enc.Encode(pretty)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("not serving (status %d)", resp.StatusCode)
			}
			return nil
		},
	}
}
