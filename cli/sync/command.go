package sync

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/admin"
	"github.com/cidmesh/cidmesh/gossip"
	"github.com/cidmesh/cidmesh/pkg/config"
	"github.com/cidmesh/cidmesh/pkg/log"
	"github.com/cidmesh/cidmesh/sync"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "start a sync node",
		Long: `Start a sync node.

The node joins the mesh, opens the configured sync channels and
converges each channel's CID set with the other nodes on the mesh.

Examples:
  # Start a node syncing the 'docs' channel.
  cidmesh sync --sync.channels docs

  # Start a node with a config file.
  cidmesh sync --config.path ./cidmesh.yaml

  # Start a node and connect to a known peer.
  cidmesh sync --sync.channels docs \
      --gossip.bootstrap /ip4/10.26.104.14/tcp/7810/p2p/12D3Koo...
`,
	}

	var conf Config
	conf.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(configPath, &conf, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := run(&conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *Config, logger log.Logger) error {
	logger.Info("starting cidmesh node", zap.Strings("channels", conf.Sync.Channels))

	registry := prometheus.NewRegistry()

	transport, err := gossip.NewTransport(conf.Gossip, logger)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer transport.Close()

	syncer := sync.NewSyncer(transport, transport, conf.Sync, logger)
	syncer.Metrics().Register(registry)

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		return fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}
	adminServer := admin.NewServer(registry, logger)
	adminServer.AddStatus("/sync", sync.NewStatus(syncer))
	adminServer.AddStatus("/gossip", gossip.NewStatus(transport))

	for _, channel := range conf.Sync.Channels {
		if err := syncer.Open(channel); err != nil {
			return fmt.Errorf("open channel: %s: %w", channel, err)
		}
	}

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Syncer.
	syncerCtx, syncerCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		<-syncerCtx.Done()
		return nil
	}, func(error) {
		// Stop the channel timers and receive loops before the
		// transport goes away.
		if err := syncer.Close(); err != nil {
			logger.Warn("failed to close syncer", zap.Error(err))
		}
		syncerCancel()

		logger.Info("syncer shut down")
	})

	// Admin server.
	group.Add(func() error {
		if err := adminServer.Serve(adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			time.Duration(conf.GracefulShutdownTimeout)*time.Second,
		)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		logger.Info("admin server shut down")
	})

	if err := group.Run(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}
