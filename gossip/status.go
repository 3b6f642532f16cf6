package gossip

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NodeInfo is the inspectable state of the local node.
type NodeInfo struct {
	PeerID string `json:"peer_id"`
	// RunID uniquely identifies this run of the node.
	RunID       string   `json:"run_id"`
	ListenAddrs []string `json:"listen_addrs"`
}

// PeerInfo is the inspectable state of a connected peer.
type PeerInfo struct {
	PeerID string   `json:"peer_id"`
	Addrs  []string `json:"addrs"`
}

type Status struct {
	transport *Transport
	runID     string
}

func NewStatus(transport *Transport) *Status {
	return &Status{
		transport: transport,
		runID:     uuid.New().String(),
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/node", s.nodeRoute)
	group.GET("/peers", s.listPeersRoute)
}

func (s *Status) nodeRoute(c *gin.Context) {
	h := s.transport.host

	var addrs []string
	for _, addr := range h.Addrs() {
		addrs = append(addrs, addr.String())
	}

	c.JSON(http.StatusOK, NodeInfo{
		PeerID:      h.ID().String(),
		RunID:       s.runID,
		ListenAddrs: addrs,
	})
}

func (s *Status) listPeersRoute(c *gin.Context) {
	h := s.transport.host

	var peers []PeerInfo
	for _, id := range h.Network().Peers() {
		var addrs []string
		for _, addr := range h.Peerstore().Addrs(id) {
			addrs = append(addrs, addr.String())
		}
		peers = append(peers, PeerInfo{
			PeerID: id.String(),
			Addrs:  addrs,
		})
	}
	c.JSON(http.StatusOK, peers)
}
