package dosing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/plantio/autowater/internal/model/messages"
)

// HTTPPredictor talks to the external ML prediction service. All calls run
// through a circuit breaker so a flapping predictor degrades to formula-only
// dosing instead of adding latency to every request.
type HTTPPredictor struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker

	// mu guards the last-prediction metadata; predictions run concurrently
	// from every request goroutine.
	mu               sync.RWMutex
	lastModelVersion string
	lastFeatures     []string
}

func NewHTTPPredictor(baseURL string, timeout time.Duration) *HTTPPredictor {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "ml-predictor",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	})
	return &HTTPPredictor{
		base:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
	}
}

type predictRequest struct {
	PlantID     string             `json:"plant_id"`
	Environment map[string]float64 `json:"environment,omitempty"`
}

type predictResponse struct {
	PredictedVolumeML *float64 `json:"predicted_volume_ml"`
	ModelVersion      string   `json:"model_version"`
	FeaturesUsed      []string `json:"features_used"`
}

// PredictWaterVolume requests a direct volume prediction. A nil volume with
// nil error means the model declined to predict for this plant.
func (p *HTTPPredictor) PredictWaterVolume(ctx context.Context, plantID string, env map[string]float64) (*float64, error) {
	res, err := p.breaker.Execute(func() (any, error) {
		var out predictResponse
		if err := p.postJSON(ctx, "/predict", predictRequest{PlantID: plantID, Environment: env}, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	out := res.(predictResponse)
	p.mu.Lock()
	if out.ModelVersion != "" {
		p.lastModelVersion = out.ModelVersion
	}
	p.lastFeatures = out.FeaturesUsed
	p.mu.Unlock()
	return out.PredictedVolumeML, nil
}

type adjustmentRequest struct {
	PlantID  string `json:"plant_id"`
	Feedback []struct {
		Feedback  string    `json:"feedback"`
		VolumeML  float64   `json:"volume_ml,omitempty"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"feedback"`
}

type adjustmentResponse struct {
	AdjustmentFactor float64 `json:"adjustment_factor"`
}

// GetAdjustmentFactor asks the model how to scale the formula volume given
// past feedback. Failures fall back to the neutral factor 1.0.
func (p *HTTPPredictor) GetAdjustmentFactor(ctx context.Context, plantID string, history []messages.FeedbackEntry) float64 {
	req := adjustmentRequest{PlantID: plantID}
	for _, h := range history {
		req.Feedback = append(req.Feedback, struct {
			Feedback  string    `json:"feedback"`
			VolumeML  float64   `json:"volume_ml,omitempty"`
			Timestamp time.Time `json:"timestamp"`
		}{Feedback: h.Feedback, VolumeML: h.VolumeML, Timestamp: h.Timestamp})
	}

	res, err := p.breaker.Execute(func() (any, error) {
		var out adjustmentResponse
		if err := p.postJSON(ctx, "/adjustment", req, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		logrus.Warnf("ml predictor: adjustment factor for plant %s: %v", plantID, err)
		return 1.0
	}
	f := res.(adjustmentResponse).AdjustmentFactor
	if f <= 0 {
		return 1.0
	}
	return f
}

// ModelVersion reports the version tag of the last successful prediction.
func (p *HTTPPredictor) ModelVersion() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastModelVersion
}

// FeaturesUsed reports the feature names the model consulted for the last
// successful prediction.
func (p *HTTPPredictor) FeaturesUsed() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.lastFeatures) == 0 {
		return nil
	}
	out := make([]string, len(p.lastFeatures))
	copy(out, p.lastFeatures)
	return out
}

type trainingRequest struct {
	PlantID   string    `json:"plant_id"`
	Feedback  string    `json:"feedback"`
	VolumeML  float64   `json:"volume_ml,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RecordFeedback ships one irrigation outcome to the model's training
// endpoint. It bypasses the circuit breaker on purpose: training capture is
// best-effort telemetry and must not open the breaker for predictions.
func (p *HTTPPredictor) RecordFeedback(ctx context.Context, plantID, feedback string, volumeML float64) error {
	return p.postJSON(ctx, "/train", trainingRequest{
		PlantID:   plantID,
		Feedback:  feedback,
		VolumeML:  volumeML,
		Timestamp: time.Now().UTC(),
	}, nil)
}

func (p *HTTPPredictor) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return pkgerrors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.Errorf("predictor status %d on %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return pkgerrors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}
