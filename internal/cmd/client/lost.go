package client

import (
	"encoding/json"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/funnel/internal/config"
	"github.com/rzbill/funnel/internal/journal"
	logpkg "github.com/rzbill/funnel/pkg/log"
)

// NewLostCommand builds `funnel lost`: list events the server reported lost
// at shutdown, read straight from the on-disk journal. Run it against a
// stopped server's data directory.
func NewLostCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lost",
		Short: "List journaled lost events from a data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = cfgpkg.DefaultDataDir()
			}
			quiet := logpkg.NewLogger(logpkg.WithLevel(logpkg.ErrorLevel), logpkg.WithOutput(logpkg.NullOutput{}))
			j, err := journal.Open(dataDir, quiet)
			if err != nil {
				return err
			}
			defer j.Close()

			records, err := j.LostEvents(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, rec := range records {
				entry := map[string]any{
					"batch_id":    rec.BatchID,
					"event_id":    rec.EventID,
					"reason":      rec.Reason,
					"received_at": rec.ReceivedAt,
					"reported_at": rec.ReportedAt,
				}
				for k, v := range decodedPayload(rec.Payload) {
					entry[k] = v
				}
				if err := enc.Encode(entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().String("data-dir", "", "Data directory of the server (defaults to the OS-specific location)")
	return cmd
}
