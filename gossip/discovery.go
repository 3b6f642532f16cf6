package gossip

import (
	"context"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/pkg/log"
)

const (
	mdnsTag = "cidmesh"

	connectTimeout = time.Second * 10

	backoffMin = time.Second
	backoffMax = time.Second * 30
)

type mdnsNotifee struct {
	host   host.Host
	logger log.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := n.host.Connect(ctx, info); err != nil {
		n.logger.Debug(
			"mdns peer dial failed",
			zap.String("peer-id", info.ID.String()),
			zap.Error(err),
		)
		return
	}
	n.logger.Debug(
		"discovered mdns peer",
		zap.String("peer-id", info.ID.String()),
	)
}

func (t *Transport) startMDNS() error {
	service := mdns.NewMdnsService(t.host, mdnsTag, &mdnsNotifee{
		host:   t.host,
		logger: t.logger,
	})
	return service.Start()
}
