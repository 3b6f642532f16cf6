package sync

import (
	"bytes"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/sync/wire"
)

// route dispatches a received frame by trying each payload decoder in
// order; exactly one is expected to match. Frames that cannot be
// decoded or validated are dropped with a warning; a bad frame from one
// peer must never affect the channel state built from the others.
func (s *Syncer) route(msg Message) {
	onNew := strings.HasSuffix(msg.Topic, wire.TopicNew)

	if announce, err := wire.DecodeAnnounce(msg.Data, onNew); err == nil {
		s.handleAnnounce(msg, announce, onNew)
		return
	}
	if syn, err := wire.DecodeSyn(msg.Data); err == nil {
		s.handleSyn(msg, syn)
		return
	}

	s.logger.Warn(
		"unroutable frame",
		zap.String("topic", msg.Topic),
		zap.String("from", msg.From),
	)
	s.metrics.FramesDropped.WithLabelValues("decode").Inc()
}

// handleAnnounce processes an announcement frame. A frame carrying
// documents is ingested into the channel set. A keepalive frame carries
// only the sender's summary, which is compared against the local set to
// decide whether to reconcile.
func (s *Syncer) handleAnnounce(msg Message, announce *wire.Announce, onNew bool) {
	var channel string
	switch {
	case onNew:
		channel = strings.TrimSuffix(msg.Topic, wire.TopicNew)
	case strings.HasSuffix(msg.Topic, wire.TopicDif):
		channel = strings.TrimSuffix(msg.Topic, wire.TopicDif)
	default:
		s.logger.Warn(
			"announce on unexpected topic",
			zap.String("topic", msg.Topic),
			zap.String("from", msg.From),
		)
		s.metrics.FramesDropped.WithLabelValues("topic").Inc()
		return
	}

	ch, ok := s.channels.Lookup(channel)
	if !ok {
		s.logger.Warn(
			"announce for unknown channel",
			zap.String("channel", channel),
			zap.String("from", msg.From),
		)
		s.metrics.FramesDropped.WithLabelValues("channel").Inc()
		return
	}

	s.metrics.AnnouncesInbound.Inc()

	if announce.Manifest != nil {
		s.logger.Error(
			"manifest announcements not supported",
			zap.String("channel", channel),
			zap.String("from", msg.From),
		)
		s.metrics.FramesDropped.WithLabelValues("manifest").Inc()
		return
	}

	if onNew {
		// Any frame observed on '.new', including a peer keepalive,
		// shows the channel is active, so push the next local
		// keepalive back.
		if quiet := ch.quietTimer(); quiet != nil {
			quiet.Reset()
		}
	}

	if !announce.Keepalive() {
		s.ingest(ch, announce)
		return
	}

	// Only keepalives on '.new' feed the divergence decision. A
	// keepalive on '.dif' is not a meaningful response.
	if !onNew {
		s.logger.Warn(
			"keepalive on response topic",
			zap.String("channel", channel),
			zap.String("from", msg.From),
		)
		s.metrics.FramesDropped.WithLabelValues("topic").Inc()
		return
	}

	rec, err := ch.Decide(announce.Root, announce.Count)
	if err != nil {
		s.logger.Warn(
			"drop keepalive",
			zap.String("channel", channel),
			zap.String("from", msg.From),
			zap.Error(err),
		)
		s.metrics.FramesDropped.WithLabelValues("decide").Inc()
		return
	}

	ch.parity.Observe(rec == nil)

	if rec == nil {
		s.logger.Debug(
			"converged with peer",
			zap.String("channel", channel),
			zap.String("from", msg.From),
		)
		return
	}

	from := msg.From
	go func() {
		if err := s.startReconciliation(s.ctx, ch, rec, from); err != nil {
			s.logger.Warn(
				"reconciliation failed",
				zap.String("channel", channel),
				zap.Error(err),
			)
		}
	}()
}

// ingest adds announced documents to the channel set.
func (s *Syncer) ingest(ch *Channel, announce *wire.Announce) {
	var added int
	for _, cid := range announce.Docs {
		ok, err := ch.Insert(cid)
		if err != nil {
			s.logger.Warn(
				"insert announced cid",
				zap.String("channel", ch.Name()),
				zap.Error(err),
			)
			continue
		}
		if ok {
			added++
			if s.ingestFn != nil {
				s.ingestFn(ch.Name(), cid)
			}
		}
	}

	s.metrics.CIDsIngested.Add(float64(added))

	root, _ := ch.Summary()
	ch.parity.Observe(bytes.Equal(root[:], announce.Root))

	s.logger.Debug(
		"ingested announce",
		zap.String("channel", ch.Name()),
		zap.Int("docs", len(announce.Docs)),
		zap.Int("added", added),
	)
}

// handleSyn processes a reconciliation request. Answering with a diff
// is not yet implemented, so requests are validated and logged.
func (s *Syncer) handleSyn(msg Message, syn *wire.Syn) {
	s.logger.Info(
		"received syn request",
		zap.String("topic", msg.Topic),
		zap.String("from", msg.From),
		zap.String("root", hex.EncodeToString(syn.Root)),
		zap.Uint64("count", syn.Count),
		zap.Int("prefixes", len(syn.Prefixes)),
	)
}
