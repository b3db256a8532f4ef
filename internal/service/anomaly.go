package service

import (
	"fmt"
	"math"

	"github.com/trimtrack/vitals-backend/pkg/model"
)

// Delta thresholds between consecutive same-type readings. A jump beyond
// these flags the reading as anomalous regardless of absolute range.
var anomalyDeltaThresholds = map[model.VitalType]float64{
	model.VitalTypeBloodPressure:    30.0, // systolic mmHg
	model.VitalTypeTemperature:      3.0,  // °F
	model.VitalTypeHeartRate:        30.0, // bpm
	model.VitalTypeOxygenSaturation: 5.0,  // percentage points
	model.VitalTypeBloodSugar:       80.0, // mg/dL
	model.VitalTypeWeight:           10.0, // lbs
}

// AnomalyDetector flags clinically unusual deltas between a new reading and
// the subject's recent history of the same type. Flags augment guidance
// text; they never block submission on their own.
type AnomalyDetector struct{}

// NewAnomalyDetector creates an AnomalyDetector
func NewAnomalyDetector() *AnomalyDetector {
	return &AnomalyDetector{}
}

// DetectAnomalies compares current against recent same-type readings for the
// same subject. History is expected most-recent-first; only the most recent
// prior reading is compared, matching consecutive-measurement semantics.
func (d *AnomalyDetector) DetectAnomalies(current model.VitalReading, history []model.VitalReading) []model.AnomalyFlag {
	threshold, ok := anomalyDeltaThresholds[current.Type]
	if !ok {
		return nil
	}

	var previous *model.VitalReading
	for i := range history {
		if history[i].Type == current.Type {
			previous = &history[i]
			break
		}
	}
	if previous == nil {
		return nil
	}

	delta := math.Abs(comparableValue(current) - comparableValue(*previous))
	flag := model.AnomalyFlag{
		Type:      current.Type,
		Detected:  delta > threshold,
		Delta:     delta,
		Threshold: threshold,
	}
	if flag.Detected {
		flag.Message = fmt.Sprintf(
			"This reading differs from the previous %s by %.0f %s, more than the expected %.0f. Double-check the measurement before saving.",
			current.Type, delta, current.Type.Unit(), threshold,
		)
	}

	return []model.AnomalyFlag{flag}
}

// comparableValue picks the scalar compared across readings of one type.
// Blood pressure compares systolic; oxygen compares SpO2.
func comparableValue(r model.VitalReading) float64 {
	switch r.Type {
	case model.VitalTypeBloodPressure:
		return float64(r.Systolic)
	case model.VitalTypeOxygenSaturation:
		return r.SpO2
	default:
		return r.Value
	}
}
