// Package chat registers the Prometheus collectors that track room and
// session activity.
package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtchat",
		Name:      "rooms_active",
		Help:      "Rooms currently registered with the manager.",
	})
	roomsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtchat",
		Name:      "rooms_created_total",
		Help:      "Rooms created since start.",
	})
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtchat",
		Name:      "sessions_active",
		Help:      "Sessions that joined a room and have not left yet.",
	})
	joinsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtchat",
		Name:      "join_rejected_total",
		Help:      "Joins refused because the room had already closed.",
	})
	eventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtchat",
		Name:      "events_broadcast_total",
		Help:      "Room events fanned out, by action.",
	}, []string{"action"})
)
