package sync

import (
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ChannelStatus is the inspectable state of an open channel.
type ChannelStatus struct {
	Name   string `json:"name"`
	ID     uint32 `json:"id"`
	Root   string `json:"root"`
	Count  uint64 `json:"count"`
	Parity string `json:"parity"`
	// ParitySince is when the channel entered its current parity state.
	ParitySince time.Time `json:"parity_since"`
}

type Status struct {
	syncer *Syncer
}

func NewStatus(syncer *Syncer) *Status {
	return &Status{
		syncer: syncer,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/channels", s.listChannelsRoute)
}

func (s *Status) listChannelsRoute(c *gin.Context) {
	var channels []ChannelStatus
	for _, ch := range s.syncer.Channels() {
		root, count := ch.Summary()
		state, since := ch.parity.State()
		channels = append(channels, ChannelStatus{
			Name:        ch.Name(),
			ID:          ch.ID(),
			Root:        hex.EncodeToString(root[:]),
			Count:       count,
			Parity:      state.String(),
			ParitySince: since,
		})
	}
	c.JSON(http.StatusOK, channels)
}
