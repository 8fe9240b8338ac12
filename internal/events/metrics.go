package events

import "github.com/prometheus/client_golang/prometheus"

var eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "fitness_sync",
	Subsystem: "events",
	Name:      "dropped_total",
	Help:      "State-changed events dropped because a subscriber was not keeping up.",
})

func init() {
	prometheus.MustRegister(eventsDropped)
}
