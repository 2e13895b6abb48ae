package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

type sendBody struct {
	Payload []byte            `json:"payload"`
	Headers map[string]string `json:"headers,omitempty"`
}

type receiptBody struct {
	EventID    string `json:"event_id"`
	ReceivedAt string `json:"received_at"`
	Error      string `json:"error"`
}

// NewSendCommand builds `funnel send`: post one event (from the argument,
// --file, or stdin) or a stream of line-delimited events with --bulk.
func NewSendCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [payload]",
		Short: "Send events to a running funnel server",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			bulk, _ := cmd.Flags().GetBool("bulk")
			headerPairs, _ := cmd.Flags().GetStringArray("header")
			headers, err := parseHeaders(headerPairs)
			if err != nil {
				return err
			}

			if bulk {
				return sendBulk(cmd, baseURL(), headers)
			}

			var payload []byte
			switch {
			case len(args) > 0:
				payload = []byte(args[0])
			case file != "":
				payload, err = os.ReadFile(file)
				if err != nil {
					return err
				}
			default:
				payload, err = bufio.NewReader(cmd.InOrStdin()).ReadBytes(0)
				if len(payload) == 0 && err != nil {
					return fmt.Errorf("no payload: pass an argument, --file, or stdin")
				}
			}

			var receipt receiptBody
			status, err := postJSON(cmd.Context(), baseURL(), "/v1/events",
				sendBody{Payload: payload, Headers: headers}, &receipt)
			if err != nil {
				return err
			}
			if status != http.StatusAccepted {
				return fmt.Errorf("rejected (%d): %s", status, receipt.Error)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(map[string]string{
				"event_id":    receipt.EventID,
				"received_at": receipt.ReceivedAt,
			})
		},
	}
	cmd.Flags().String("file", "", "Read the payload from a file")
	cmd.Flags().Bool("bulk", false, "Read line-delimited payloads from stdin and post them as one bulk request")
	cmd.Flags().StringArray("header", nil, "Event header as key=value (repeatable)")
	return cmd
}

func sendBulk(cmd *cobra.Command, base string, headers map[string]string) error {
	var events []sendBody
	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		events = append(events, sendBody{
			Payload: append([]byte(nil), line...),
			Headers: headers,
		})
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if len(events) == 0 {
		return fmt.Errorf("no events on stdin")
	}

	var resp struct {
		Accepted []*receiptBody `json:"accepted"`
		Errors   []string       `json:"errors"`
	}
	status, err := postJSON(cmd.Context(), base, "/v1/events/bulk",
		map[string]any{"events": events}, &resp)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted && status != http.StatusMultiStatus {
		return fmt.Errorf("bulk send failed with status %d", status)
	}

	accepted := 0
	for i, r := range resp.Accepted {
		if r != nil {
			accepted++
			continue
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "event %d rejected: %s\n", i, resp.Errors[i])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "accepted %d of %d\n", accepted, len(events))
	if accepted < len(events) {
		return fmt.Errorf("%d events rejected", len(events)-accepted)
	}
	return nil
}
