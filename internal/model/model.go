package model

import (
	"github.com/plantio/autowater/internal/model/entities"
	"github.com/plantio/autowater/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	Pump                    = entities.Pump
	Plant                   = entities.Plant
	PumpCalibrationData     = entities.PumpCalibrationData
	CalibrationHistoryEntry = entities.CalibrationHistoryEntry
	CalibrationSession      = entities.CalibrationSession
	CalibrationResult       = entities.CalibrationResult
	TrendAnalysis           = entities.TrendAnalysis
	IrrigationCalculation   = entities.IrrigationCalculation
	MLPrediction            = entities.MLPrediction
	Recommendation          = entities.Recommendation

	CalibrationEvent        = messages.CalibrationEvent
	IrrigationDecisionEvent = messages.IrrigationDecisionEvent
	IrrigationFeedbackEvent = messages.IrrigationFeedbackEvent
	PumpCommandEvent        = messages.PumpCommandEvent
	FeedbackEntry           = messages.FeedbackEntry
)

const (
	FeedbackTooLittle = messages.FeedbackTooLittle
	FeedbackJustRight = messages.FeedbackJustRight
	FeedbackTooMuch   = messages.FeedbackTooMuch
)
