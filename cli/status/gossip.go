package status

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"

	"github.com/cidmesh/cidmesh/gossip"
	"github.com/cidmesh/cidmesh/status/client"
)

func newGossipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gossip",
		Short: "inspect the gossip mesh",
	}

	cmd.AddCommand(newGossipNodeCommand())
	cmd.AddCommand(newGossipPeersCommand())

	return cmd
}

func newGossipNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "inspect the local node identity",
		Long: `Inspect the local node identity.

Queries the node for its peer ID, run ID and listen addresses.

Examples:
  cidmesh status gossip node
`,
	}

	var serverURL string
	cmd.Flags().StringVar(
		&serverURL,
		"server.url",
		"http://localhost:7811",
		`
Node admin server URL.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		u, err := url.Parse(serverURL)
		if err != nil {
			fmt.Printf("invalid server url: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipNode(u)
	}

	return cmd
}

func newGossipPeersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect connected peers",
		Long: `Inspect connected peers.

Queries the node for the peers it is currently connected to.

Examples:
  cidmesh status gossip peers
`,
	}

	var serverURL string
	cmd.Flags().StringVar(
		&serverURL,
		"server.url",
		"http://localhost:7811",
		`
Node admin server URL.`,
	)

	cmd.Run = func(cmd *cobra.Command, args []string) {
		u, err := url.Parse(serverURL)
		if err != nil {
			fmt.Printf("invalid server url: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipPeers(u)
	}

	return cmd
}

func showGossipNode(url *url.URL) {
	c := client.NewClient(url)
	defer c.Close()

	node, err := c.GossipNode()
	if err != nil {
		fmt.Printf("failed to get node: %s\n", err.Error())
		os.Exit(1)
	}

	b, err := yaml.Marshal(node)
	if err != nil {
		fmt.Printf("failed to encode output: %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(b))
}

type peersOutput struct {
	Peers []gossip.PeerInfo `json:"peers"`
}

func showGossipPeers(url *url.URL) {
	c := client.NewClient(url)
	defer c.Close()

	peers, err := c.GossipPeers()
	if err != nil {
		fmt.Printf("failed to get peers: %s\n", err.Error())
		os.Exit(1)
	}

	out := peersOutput{
		Peers: peers,
	}
	b, err := yaml.Marshal(out)
	if err != nil {
		fmt.Printf("failed to encode output: %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Print(string(b))
}
