package telemetry

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// EventToPoint normalizes a CommonEvent into an Influx point under the
// single "system_event" measurement.
func EventToPoint(evt CommonEvent) *write.Point {
	tags := map[string]string{
		"event_type":     evt.EventType,
		"source_service": evt.SourceService,
		"severity":       evt.Severity,
	}
	if evt.PumpID != "" {
		tags["pump_id"] = evt.PumpID
	}
	if evt.PlantID != "" {
		tags["plant_id"] = evt.PlantID
	}
	if evt.UnitID != 0 {
		tags["unit_id"] = strconv.Itoa(evt.UnitID)
	}

	fields := map[string]interface{}{}
	for k, v := range evt.Fields {
		fields[k] = v
	}
	// guarantee at least one field so the point is writable
	if _, ok := fields["count"]; !ok {
		fields["count"] = int64(1)
	}

	return influxdb2.NewPoint("system_event", tags, fields, evt.Timestamp)
}
