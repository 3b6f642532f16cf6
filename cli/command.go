package cli

import (
	"github.com/spf13/cobra"

	"github.com/cidmesh/cidmesh/cli/status"
	"github.com/cidmesh/cidmesh/cli/sync"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cidmesh [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `cidmesh converges a set of document CIDs across a mesh of nodes.

Each node joins one or more named sync channels. Nodes announce the
documents they store, exchange compact set summaries while idle, and
reconcile whenever their sets diverge, so every node on a channel ends
up holding the same CID set.

Start a node with:

  $ cidmesh sync --sync.channels docs

You can also inspect the status of a running node using:

  $ cidmesh status channels
`,
	}

	cmd.AddCommand(sync.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
