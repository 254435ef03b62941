package dosing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/plantio/autowater/internal/model/messages"
)

func newPredictorServer(t *testing.T, predictStatus int, predictBody any) (*httptest.Server, *[]trainingRequest) {
	t.Helper()
	var mu sync.Mutex
	trained := &[]trainingRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/predict":
			if predictStatus != http.StatusOK {
				w.WriteHeader(predictStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(predictBody)
		case "/adjustment":
			_ = json.NewEncoder(w).Encode(map[string]float64{"adjustment_factor": 1.1})
		case "/train":
			var req trainingRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			*trained = append(*trained, req)
			mu.Unlock()
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, trained
}

func TestPredictWaterVolume(t *testing.T) {
	srv, _ := newPredictorServer(t, http.StatusOK, map[string]any{
		"predicted_volume_ml": 320.0,
		"model_version":       "soil-v4",
		"features_used":       []string{"temp", "humidity"},
	})
	p := NewHTTPPredictor(srv.URL, time.Second)

	vol, err := p.PredictWaterVolume(context.Background(), "basil-1", map[string]float64{"temp": 24})
	if err != nil {
		t.Fatalf("PredictWaterVolume: %v", err)
	}
	if vol == nil || !almostEqual(*vol, 320) {
		t.Errorf("volume = %v, want 320", vol)
	}
	if got := p.ModelVersion(); got != "soil-v4" {
		t.Errorf("model version = %q", got)
	}
	if got := p.FeaturesUsed(); len(got) != 2 || got[0] != "temp" {
		t.Errorf("features = %v", got)
	}
}

func TestPredictWaterVolumeServerError(t *testing.T) {
	srv, _ := newPredictorServer(t, http.StatusInternalServerError, nil)
	p := NewHTTPPredictor(srv.URL, time.Second)

	if _, err := p.PredictWaterVolume(context.Background(), "basil-1", nil); err == nil {
		t.Fatal("expected an error on 500")
	}
	if p.ModelVersion() != "" || p.FeaturesUsed() != nil {
		t.Error("failed prediction must not record model metadata")
	}
}

func TestGetAdjustmentFactor(t *testing.T) {
	srv, _ := newPredictorServer(t, http.StatusOK, nil)
	p := NewHTTPPredictor(srv.URL, time.Second)

	history := []messages.FeedbackEntry{{PlantID: "basil-1", Feedback: messages.FeedbackTooLittle}}
	if got := p.GetAdjustmentFactor(context.Background(), "basil-1", history); !almostEqual(got, 1.1) {
		t.Errorf("factor = %v, want 1.1", got)
	}
}

func TestGetAdjustmentFactorFallsBackToNeutral(t *testing.T) {
	// Point at a closed server so the call fails.
	srv, _ := newPredictorServer(t, http.StatusOK, nil)
	url := srv.URL
	srv.Close()
	p := NewHTTPPredictor(url, 200*time.Millisecond)

	if got := p.GetAdjustmentFactor(context.Background(), "basil-1", nil); !almostEqual(got, 1.0) {
		t.Errorf("factor = %v, want neutral 1.0 on failure", got)
	}
}

func TestRecordFeedbackPostsTrainingSample(t *testing.T) {
	srv, trained := newPredictorServer(t, http.StatusOK, nil)
	p := NewHTTPPredictor(srv.URL, time.Second)

	if err := p.RecordFeedback(context.Background(), "basil-1", messages.FeedbackTooMuch, 450); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if len(*trained) != 1 {
		t.Fatalf("training samples = %d, want 1", len(*trained))
	}
	got := (*trained)[0]
	if got.PlantID != "basil-1" || got.Feedback != messages.FeedbackTooMuch || !almostEqual(got.VolumeML, 450) {
		t.Errorf("training sample = %+v", got)
	}
}

func TestModelMetadataConcurrentAccess(t *testing.T) {
	srv, _ := newPredictorServer(t, http.StatusOK, map[string]any{
		"predicted_volume_ml": 300.0,
		"model_version":       "soil-v4",
		"features_used":       []string{"temp"},
	})
	p := NewHTTPPredictor(srv.URL, time.Second)

	// Predictions and metadata reads run on every request goroutine; this
	// is a race-detector regression.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.PredictWaterVolume(context.Background(), "basil-1", nil)
			_ = p.ModelVersion()
			_ = p.FeaturesUsed()
		}()
	}
	wg.Wait()

	if p.ModelVersion() != "soil-v4" {
		t.Errorf("model version = %q", p.ModelVersion())
	}
}
