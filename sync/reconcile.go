package sync

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cidmesh/cidmesh/sync/wire"
)

// startReconciliation requests the documents needed to converge with a
// diverged peer.
//
// The '.dif' topic is subscribed before the request is published so a
// prompt response cannot be missed. The request itself is delayed by a
// random backoff; when several nodes observe the same divergence the
// first request serves them all, since every diverged node is already
// listening on '.dif'.
//
// At most one reconciliation attempt runs per channel. Overlapping
// attempts within the backoff window are dropped.
func (s *Syncer) startReconciliation(
	ctx context.Context,
	ch *Channel,
	rec *Reconciliation,
	from string,
) error {
	if !ch.reconciling.CompareAndSwap(false, true) {
		s.logger.Debug(
			"reconciliation already in flight",
			zap.String("channel", ch.Name()),
		)
		return nil
	}
	defer ch.reconciling.Store(false)

	difTopic := ch.Name() + wire.TopicDif
	difOpened := false
	if ch.difOpen.CompareAndSwap(false, true) {
		if err := s.subscribe(difTopic); err != nil {
			ch.difOpen.Store(false)
			return fmt.Errorf("subscribe dif: %w", err)
		}
		difOpened = true
	}

	syn := &wire.Syn{
		Root:      rec.LocalRoot[:],
		Count:     rec.LocalCount,
		Prefixes:  rec.Prefixes,
		PeerRoot:  rec.PeerRoot[:],
		PeerCount: rec.PeerCount,
	}
	if from != "" {
		publicKey, err := s.identity.PublicKey(from)
		if err != nil {
			s.logger.Warn(
				"resolve peer identity; sending syn without 'to'",
				zap.String("channel", ch.Name()),
				zap.String("from", from),
				zap.Error(err),
			)
		} else {
			syn.To = publicKey
		}
	}

	fail := func(err error) error {
		if difOpened {
			s.unsubscribe(difTopic)
			ch.difOpen.Store(false)
		}
		return err
	}

	if err := waitJitter(
		ctx, s.clock,
		s.conf.Timers.SynBackoffMin, s.conf.Timers.SynBackoffMax,
	); err != nil {
		return fail(err)
	}

	b, err := syn.Encode()
	if err != nil {
		return fail(fmt.Errorf("encode syn: %w", err))
	}
	if err := s.transport.Publish(ctx, ch.Name()+wire.TopicSyn, b); err != nil {
		return fail(fmt.Errorf("publish syn: %w", err))
	}

	ch.parity.MarkReconciling()
	s.metrics.Reconciliations.Inc()

	s.logger.Info(
		"requested reconciliation",
		zap.String("channel", ch.Name()),
		zap.Uint64("local-count", rec.LocalCount),
		zap.Uint64("peer-count", rec.PeerCount),
		zap.Int("prefixes", len(rec.Prefixes)),
		zap.Bool("addressed", syn.To != nil),
	)
	return nil
}
