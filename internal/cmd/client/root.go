package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the Funnel client.
// It registers the send, health, and lost command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "funnel",
		Short: "Funnel client commands",
	}
	root.AddCommand(NewSendCommand(baseURL))
	root.AddCommand(NewHealthCommand(baseURL))
	root.AddCommand(NewLostCommand())
	return root
}
