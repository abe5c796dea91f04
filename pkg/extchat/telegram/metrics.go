// Copyright 2024-2026 Aiku AI

package telegram

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	Requests            *prometheus.CounterVec
	AuthorizationStates *prometheus.CounterVec
	InboundMessages     *prometheus.CounterVec
	OutboundMessages    *prometheus.CounterVec
	ContactsPublished   prometheus.Gauge
	TransportsCreated   prometheus.Counter
	TransportsLost      prometheus.Counter
	StaleUpdates        prometheus.Counter
}

// newMetrics registers the adapter metrics with reg. A nil reg leaves them
// unregistered.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extchat_telegram_requests_total",
				Help: "Total number of requests sent to the external network",
			},
			[]string{"type", "success"},
		),
		AuthorizationStates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extchat_telegram_authorization_states_total",
				Help: "Total number of authorization state updates observed",
			},
			[]string{"state"},
		),
		InboundMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extchat_telegram_inbound_messages_total",
				Help: "Total number of inbound messages by outcome",
			},
			[]string{"outcome"},
		),
		OutboundMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extchat_telegram_outbound_messages_total",
				Help: "Total number of outbound messages by outcome",
			},
			[]string{"outcome"},
		),
		ContactsPublished: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extchat_telegram_contacts",
				Help: "Number of contacts in the last published contact list",
			},
		),
		TransportsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extchat_telegram_transports_created_total",
				Help: "Total number of transport instances created",
			},
		),
		TransportsLost: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extchat_telegram_transports_lost_total",
				Help: "Total number of transports that closed without being asked to",
			},
		),
		StaleUpdates: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extchat_telegram_stale_updates_total",
				Help: "Total number of updates dropped because their transport was discarded",
			},
		),
	}
}

const (
	outcomePosted     = "posted"
	outcomeOutgoing   = "outgoing"
	outcomeUnresolved = "unresolved"
	outcomeUnlinked   = "unlinked"
	outcomeFailed     = "failed"
	outcomeSent       = "sent"
)

func successLabel(err error) string {
	if err != nil {
		return "false"
	}
	return "true"
}
