package sync

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	// KeepalivesOutbound is the total number of keepalive announcements
	// published.
	KeepalivesOutbound prometheus.Counter

	// AnnouncesOutbound is the total number of document announcements
	// published.
	AnnouncesOutbound prometheus.Counter

	// AnnouncesInbound is the total number of announcements received.
	AnnouncesInbound prometheus.Counter

	// CIDsIngested is the total number of new CIDs added from peer
	// announcements.
	CIDsIngested prometheus.Counter

	// Reconciliations is the total number of reconciliation requests
	// published.
	Reconciliations prometheus.Counter

	// FramesDropped is the number of received frames dropped, labelled
	// by reason.
	FramesDropped *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		KeepalivesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "keepalives_outbound_total",
				Help:      "Total number of keepalive announcements published",
			},
		),
		AnnouncesOutbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "announces_outbound_total",
				Help:      "Total number of document announcements published",
			},
		),
		AnnouncesInbound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "announces_inbound_total",
				Help:      "Total number of announcements received",
			},
		),
		CIDsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "cids_ingested_total",
				Help:      "Total number of new CIDs added from peer announcements",
			},
		),
		Reconciliations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "reconciliations_total",
				Help:      "Total number of reconciliation requests published",
			},
		),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cidmesh",
				Subsystem: "sync",
				Name:      "frames_dropped_total",
				Help:      "Number of received frames dropped",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.KeepalivesOutbound,
		m.AnnouncesOutbound,
		m.AnnouncesInbound,
		m.CIDsIngested,
		m.Reconciliations,
		m.FramesDropped,
	)
}
