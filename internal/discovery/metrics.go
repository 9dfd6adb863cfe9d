package discovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "messages_total",
		Help:      "Decoded messages received, per message type (LSD/LHT)",
	}, []string{"type"})
	metricDecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "decode_errors_total",
		Help:      "Datagrams dropped because they could not be decoded, per error kind",
	}, []string{"kind"})
	metricSelfMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "self_messages_total",
		Help:      "Messages dropped because they carried our own cookie",
	})
	metricReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "replies_total",
		Help:      "LHT queries answered, per result (sent/unknown/failed/ignored)",
	}, []string{"result"})
	metricAnnounces = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "announces_total",
		Help:      "LSD announces sent by the announcer, per result (sent/failed)",
	}, []string{"result"})
	metricTablePeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "table_peers",
		Help:      "Current number of (infohash, peer) pairs in the table",
	})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lht",
		Subsystem: "discovery",
		Name:      "evictions_total",
		Help:      "Pairs removed after their TTL elapsed without a refresh",
	})
)
