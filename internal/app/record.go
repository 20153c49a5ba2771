package app

import (
	"encoding/json"

	"github.com/relabs-tech/hip_feedback/internal/feedback"
)

// AngleRecord is the per-cycle output of the hip app, published to MQTT,
// streamed to websocket clients and shown on the display.
type AngleRecord struct {
	Time                  float64        `json:"time"` // seconds since start, iteration / sample rate
	MinThreshold          float64        `json:"min_threshold"`
	MaxThreshold          float64        `json:"max_threshold"`
	MinFeedbackState      feedback.State `json:"min_feedback_state"`
	MaxFeedbackState      feedback.State `json:"max_feedback_state"`
	HipExt                float64        `json:"hip_ext"`
	CalibrationGeneration uint64         `json:"calibration_generation"`
}

// RecordSink receives every record produced by the loop. Sinks must not
// block for long; the loop runs at the sensor data rate.
type RecordSink interface {
	HandleRecord(AngleRecord)
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(AngleRecord)

func (f RecordSinkFunc) HandleRecord(r AngleRecord) { f(r) }

// DecodeRecord parses a record published by the hip app.
func DecodeRecord(payload []byte) (AngleRecord, error) {
	var r AngleRecord
	err := json.Unmarshal(payload, &r)
	return r, err
}
