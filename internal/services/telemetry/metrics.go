package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autowater",
		Subsystem: "telemetry",
		Name:      "events_ingested_total",
		Help:      "Events consumed off the bus, by type.",
	}, []string{"event_type"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autowater",
		Subsystem: "telemetry",
		Name:      "events_dropped_total",
		Help:      "Events discarded before write (bad payload, unknown topic).",
	}, []string{"reason"})

	influxWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autowater",
		Subsystem: "telemetry",
		Name:      "influx_write_errors_total",
		Help:      "Asynchronous InfluxDB write errors.",
	})
)
