package dosing

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
	"github.com/plantio/autowater/internal/store"
	"github.com/plantio/autowater/pkg/mqttbus"
)

// Service glues the calculator and blender to the HTTP surface and the
// event bus. The dosing core itself stays protocol-free.
type Service struct {
	calc    *Calculator
	blender *Blender
	plants  store.PlantStore
	pumps   store.PumpStore

	publisher         mqttbus.IPublisher // optional
	decisionTopicTmpl string
}

func NewService(calc *Calculator, blender *Blender, plants store.PlantStore, pumps store.PumpStore) *Service {
	return &Service{
		calc:              calc,
		blender:           blender,
		plants:            plants,
		pumps:             pumps,
		decisionTopicTmpl: "event/irrigationDecision/{unit}/{plant}",
	}
}

// SetDecisionPublisher enables best-effort decision event publishing.
func (s *Service) SetDecisionPublisher(p mqttbus.IPublisher, topicTmpl string) {
	s.publisher = p
	if topicTmpl != "" {
		s.decisionTopicTmpl = topicTmpl
	}
}

// flowRateFor resolves the calibrated flow rate of the plant's pump.
// Returns nil when the plant has no pump or the pump is uncalibrated, so
// the calculator can degrade confidence instead of trusting a made-up rate.
func (s *Service) flowRateFor(plant entities.Plant) *float64 {
	if plant.PumpID == "" {
		return nil
	}
	pump, ok := s.pumps.GetPump(plant.PumpID)
	if !ok || pump.Calibration == nil {
		return nil
	}
	rate := pump.Calibration.FlowRateMlPerSecond
	return &rate
}

// Dose computes the recommendation for one plant, blending with ML when
// configured, and publishes the decision event.
func (s *Service) Dose(r *http.Request, plantID string, env map[string]float64) entities.IrrigationCalculation {
	var flowRate *float64
	var unitID int
	var pumpID string
	if plant, ok := s.plants.GetPlant(plantID); ok {
		flowRate = s.flowRateFor(plant)
		unitID = plant.UnitID
		pumpID = plant.PumpID
	}

	result := s.blender.CalculateWithML(r.Context(), plantID, flowRate, env)
	s.publishDecision(result, pumpID, unitID)
	return result
}

func (s *Service) publishDecision(calc entities.IrrigationCalculation, pumpID string, unitID int) {
	if s.publisher == nil {
		return
	}
	evt := messages.IrrigationDecisionEvent{
		PlantID:             calc.PlantID,
		PumpID:              pumpID,
		UnitID:              unitID,
		WaterVolumeML:       calc.WaterVolumeML,
		DurationSeconds:     calc.DurationSeconds,
		FlowRateMlPerSecond: calc.FlowRateMlPerSecond,
		Confidence:          calc.Confidence,
		MLAdjusted:          calc.MLAdjusted,
		Timestamp:           time.Now().UTC(),
	}
	b, err := json.Marshal(evt)
	if err != nil {
		logrus.Errorf("dosing: marshal decision for %s: %v", calc.PlantID, err)
		return
	}
	topic := decisionTopic(s.decisionTopicTmpl, unitID, calc.PlantID)
	if err := s.publisher.PublishQos(topic, 1, false, string(b)); err != nil {
		logrus.Warnf("dosing: publish decision for %s: %v", calc.PlantID, err)
	}
}

// NewHTTPMux exposes dosing over a small JSON API.
func NewHTTPMux(s *Service) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })

	// GET /dose?plant_id=...  environment readings ride as optional query
	// params: temp, humidity, light.
	mux.HandleFunc("/dose", func(w http.ResponseWriter, r *http.Request) {
		plantID := r.URL.Query().Get("plant_id")
		if plantID == "" {
			http.Error(w, "plant_id required", http.StatusBadRequest)
			return
		}
		env := map[string]float64{}
		for _, k := range []string{"temp", "humidity", "light"} {
			if v := r.URL.Query().Get(k); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					env[k] = f
				}
			}
		}
		result := s.Dose(r, plantID, env)

		type doseResponse struct {
			entities.IrrigationCalculation
			EstimatedMoistureIncreasePct float64 `json:"estimated_moisture_increase_pct"`
		}
		potSize := result.PotSizeLiters
		if potSize <= 0 {
			potSize = ReferencePotSizeLiters
		}
		writeJSON(w, doseResponse{
			IrrigationCalculation:        result,
			EstimatedMoistureIncreasePct: s.calc.EstimateMoistureIncrease(result.WaterVolumeML, potSize, result.GrowingMedium),
		})
	})

	// GET /recommendation?plant_id=...&moisture=42[&target=55]
	mux.HandleFunc("/recommendation", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		plantID := q.Get("plant_id")
		if plantID == "" {
			http.Error(w, "plant_id required", http.StatusBadRequest)
			return
		}
		moisture, err := strconv.ParseFloat(q.Get("moisture"), 64)
		if err != nil {
			http.Error(w, "moisture required", http.StatusBadRequest)
			return
		}
		var target *float64
		if v := q.Get("target"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				target = &f
			}
		}
		writeJSON(w, s.calc.GetRecommendations(plantID, moisture, target))
	})

	// POST /feedback {"plant_id": "...", "feedback": "too_much", "volume_ml": 450}
	// forwards to the ML training-data recorder.
	mux.HandleFunc("/feedback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			PlantID  string  `json:"plant_id"`
			Feedback string  `json:"feedback"`
			VolumeML float64 `json:"volume_ml"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlantID == "" {
			http.Error(w, "plant_id required", http.StatusBadRequest)
			return
		}
		s.blender.RecordFeedback(req.PlantID, req.Feedback, req.VolumeML)
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decisionTopic(tmpl string, unitID int, plantID string) string {
	return strings.NewReplacer(
		"{unit}", strconv.Itoa(unitID),
		"{plant}", plantID,
	).Replace(tmpl)
}
