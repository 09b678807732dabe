// Package metrics exposes prometheus counters for the activity lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transitions counts successful status transitions by transition name.
var Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moim_lifecycle_transitions_total",
	Help: "Successful activity lifecycle transitions.",
}, []string{"transition"})

// JoinDenials counts rejected join attempts by denial reason.
var JoinDenials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "moim_join_denials_total",
	Help: "Join attempts rejected by a membership guard.",
}, []string{"reason"})
