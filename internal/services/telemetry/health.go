package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// writeErrorGrace is how long Influx writes must stay error-free before the
// pipeline reads as healthy again.
const writeErrorGrace = time.Minute

// BrokerStatus is the slice of the MQTT client the health surface reads.
type BrokerStatus interface {
	IsConnectionOpen() bool
}

// StorePinger is the slice of the Influx client the health surface reads.
type StorePinger interface {
	Ping(ctx context.Context) (bool, error)
}

type healthResponse struct {
	Status           string         `json:"status"` // ok | degraded | down
	BrokerConnected  bool           `json:"broker_connected"`
	StoreReachable   bool           `json:"store_reachable"`
	WriteErrorAgeSec float64        `json:"last_write_error_age_sec"`
	Ingest           IngestSnapshot `json:"ingest"`
}

type healthHandler struct {
	broker BrokerStatus
	store  StorePinger
	writer *Writer
	ingest *MQTTHandler
}

// NewHealthHandler reports the state of the event pipeline: broker link,
// store reachability, write errors and what has been ingested so far.
func NewHealthHandler(broker BrokerStatus, store StorePinger, w *Writer, h *MQTTHandler) http.Handler {
	return &healthHandler{broker: broker, store: store, writer: w, ingest: h}
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		BrokerConnected:  h.broker != nil && h.broker.IsConnectionOpen(),
		StoreReachable:   pingStore(ctx, h.store),
		WriteErrorAgeSec: h.writer.LastErrorAge().Seconds(),
	}
	if h.ingest != nil {
		resp.Ingest = h.ingest.Ingest()
	}

	writesClean := h.writer.LastErrorAge() > writeErrorGrace
	switch {
	case !resp.BrokerConnected && !resp.StoreReachable:
		resp.Status = "down"
	case resp.BrokerConnected && resp.StoreReachable && writesClean:
		resp.Status = "ok"
	default:
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// readyHandler answers 200 only when every pipeline dependency is usable;
// the orchestrator holds traffic otherwise.
type readyHandler struct {
	broker BrokerStatus
	store  StorePinger
	writer *Writer
	grace  time.Duration
}

func NewReadyHandler(broker BrokerStatus, store StorePinger, w *Writer, grace time.Duration) http.Handler {
	return &readyHandler{broker: broker, store: store, writer: w, grace: grace}
}

func (h *readyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := h.broker != nil && h.broker.IsConnectionOpen() &&
		pingStore(ctx, h.store) &&
		h.writer.LastErrorAge() > h.grace

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Ready bool `json:"ready"`
	}{Ready: ready})
}

func pingStore(ctx context.Context, s StorePinger) bool {
	if s == nil {
		return false
	}
	ok, err := s.Ping(ctx)
	return ok && err == nil
}
