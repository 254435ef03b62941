package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model"
	"github.com/plantio/autowater/internal/services/dosing"
	"github.com/plantio/autowater/internal/store"
	"github.com/plantio/autowater/pkg/mqttbus"
)

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	_ = godotenv.Load()

	cfg := struct {
		MQTT mqttbus.Config

		PumpsPath         string
		PlantsPath        string
		PredictorURL      string
		PredictorTimeout  time.Duration
		FeedbackTopic     string
		DecisionTopicTmpl string
		HTTPPort          int
	}{
		MQTT: mqttbus.Config{
			Host:     envStr("MQTT_HOST", "localhost"),
			Port:     envInt("MQTT_PORT", 1883),
			User:     envStr("MQTT_USER", "guest"),
			Password: envStr("MQTT_PASSWORD", "guest"),
			ClientID: envStr("HOSTNAME", "dosing-service"),
		},
		PumpsPath:         envStr("PUMPS_PATH", "/etc/autowater/pumps.json"),
		PlantsPath:        envStr("PLANTS_PATH", "/etc/autowater/plants.json"),
		PredictorURL:      envStr("ML_PREDICTOR_URL", ""), // empty = not configured
		PredictorTimeout:  time.Duration(envInt("ML_PREDICTOR_TIMEOUT_MS", 2000)) * time.Millisecond,
		FeedbackTopic:     envStr("FEEDBACK_TOPIC", "internal/feedbackAccepted"),
		DecisionTopicTmpl: envStr("DECISION_TOPIC", "event/irrigationDecision/{unit}/{plant}"),
		HTTPPort:          envInt("HTTP_PORT", 8081),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumps, err := store.NewFilePumpStore(cfg.PumpsPath)
	if err != nil {
		logrus.Fatalf("dosing-svc: pump store: %v", err)
	}
	plants, err := store.NewFilePlantStore(cfg.PlantsPath)
	if err != nil {
		logrus.Fatalf("dosing-svc: plant store: %v", err)
	}

	mqttClient, err := mqttbus.NewConn(&cfg.MQTT, ctx)
	if err != nil {
		logrus.Fatalf("dosing-svc: mqtt connection: %v", err)
	}
	defer mqttbus.CloseConn(mqttClient)

	publisher := mqttbus.NewPublisher(mqttClient)

	var predictor dosing.Predictor
	var httpPredictor *dosing.HTTPPredictor
	if cfg.PredictorURL != "" {
		httpPredictor = dosing.NewHTTPPredictor(cfg.PredictorURL, cfg.PredictorTimeout)
		predictor = httpPredictor
		logrus.Infof("dosing-svc: ML predictor at %s", cfg.PredictorURL)
	} else {
		logrus.Info("dosing-svc: no ML predictor configured, formula-only dosing")
	}

	feedbackLog := dosing.NewFeedbackLog()
	calc := dosing.NewCalculator(plants)
	blender := dosing.NewBlender(calc, predictor, feedbackLog)

	// Feedback posted to this service's API feeds the per-plant window and,
	// when a predictor is configured, its training endpoint.
	blender.SetFeedbackRecorder(func(plantID, feedbackType string, volumeML float64) error {
		feedbackLog.Add(plantID, feedbackType, volumeML, time.Now().UTC())
		if httpPredictor == nil {
			return nil
		}
		trainCtx, trainCancel := context.WithTimeout(ctx, cfg.PredictorTimeout)
		defer trainCancel()
		return httpPredictor.RecordFeedback(trainCtx, plantID, feedbackType, volumeML)
	})

	svc := dosing.NewService(calc, blender, plants, pumps)
	svc.SetDecisionPublisher(publisher, cfg.DecisionTopicTmpl)

	// The calibration service validates raw feedback off the bus and
	// republishes accepted entries here; they feed the per-plant window.
	consumer := mqttbus.NewConsumer(mqttClient, []string{cfg.FeedbackTopic}, func(_ string, m mqtt.Message) error {
		var evt model.IrrigationFeedbackEvent
		if err := json.Unmarshal(m.Payload(), &evt); err != nil {
			logrus.Warnf("dosing-svc: bad feedback payload: %v", err)
			return nil
		}
		ts := evt.Timestamp
		if ts.IsZero() {
			ts = time.Now().UTC()
		}
		feedbackLog.Add(evt.PlantID, evt.Feedback, evt.DeliveredML, ts)
		return nil
	})
	go consumer.Consume(ctx)

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           dosing.NewHTTPMux(svc),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.Infof("dosing-svc: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("dosing-svc: http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logrus.Info("dosing-svc: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
