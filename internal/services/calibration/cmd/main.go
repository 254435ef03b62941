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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/plantio/autowater/internal/model"
	"github.com/plantio/autowater/internal/services/calibration"
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

		PumpsPath     string
		FeedbackTopic string
		CmdTopicTmpl  string
		EvtTopicTmpl  string
		HTTPPort      int
	}{
		MQTT: mqttbus.Config{
			Host:     envStr("MQTT_HOST", "localhost"),
			Port:     envInt("MQTT_PORT", 1883),
			User:     envStr("MQTT_USER", "guest"),
			Password: envStr("MQTT_PASSWORD", "guest"),
			ClientID: envStr("HOSTNAME", "calibration-service"),
		},
		PumpsPath:     envStr("PUMPS_PATH", "/etc/autowater/pumps.json"),
		FeedbackTopic: envStr("FEEDBACK_TOPIC", "event/irrigationFeedback/#"),
		CmdTopicTmpl:  envStr("PUMP_CMD_TOPIC", "cmd/pump/{unit}/{pump}"),
		EvtTopicTmpl:  envStr("CALIBRATION_EVENT_TOPIC", "event/calibration/{unit}/{pump}"),
		HTTPPort:      envInt("HTTP_PORT", 8080),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumps, err := store.NewFilePumpStore(cfg.PumpsPath)
	if err != nil {
		logrus.Fatalf("calibration-svc: pump store: %v", err)
	}

	mqttClient, err := mqttbus.NewConn(&cfg.MQTT, ctx)
	if err != nil {
		logrus.Fatalf("calibration-svc: mqtt connection: %v", err)
	}
	defer mqttbus.CloseConn(mqttClient)

	publisher := mqttbus.NewPublisher(mqttClient)

	driver := calibration.NewMQTTPumpDriver(publisher, cfg.CmdTopicTmpl, func(pumpID string) int {
		if p, ok := pumps.GetPump(pumpID); ok {
			return p.UnitID
		}
		return 0
	})

	calibrator := calibration.NewCalibrator(driver, pumps, calibration.NewSessionTable())
	calibrator.SetEventPublisher(publisher, cfg.EvtTopicTmpl)

	adjuster := calibration.NewFeedbackAdjuster(pumps)
	adjuster.SetEventPublisher(publisher, cfg.EvtTopicTmpl)

	consumer := mqttbus.NewConsumer(mqttClient, []string{cfg.FeedbackTopic}, nil)
	listener := calibration.NewFeedbackListener(consumer, adjuster)
	listener.SetFeedbackRecorder(func(evt model.IrrigationFeedbackEvent) error {
		// Re-published for the dosing service's training-data capture.
		b, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		return publisher.Publish("internal/feedbackAccepted", string(b))
	})
	go listener.Start(ctx)

	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           calibration.NewHTTPMux(calibrator, adjuster, pumps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logrus.Infof("calibration-svc: HTTP listening on :%d", cfg.HTTPPort)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("calibration-svc: http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logrus.Info("calibration-svc: shutting down...")

	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = hs.Shutdown(shCtx)
}
