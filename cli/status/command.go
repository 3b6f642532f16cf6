package status

import "github.com/spf13/cobra"

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each node exposes a status API on its admin port, which can be used to
answer questions such as:
* What channels is the node syncing?
* What is each channel's current root and document count?
* Is a channel in parity with the rest of the mesh?
* What peers is the node connected to?

Examples:
  # Inspect the open sync channels.
  cidmesh status channels

  # Inspect the channels of node 10.26.104.56:7811.
  cidmesh status channels --server.url http://10.26.104.56:7811
`,
	}

	cmd.AddCommand(newChannelsCommand())
	cmd.AddCommand(newGossipCommand())

	return cmd
}
