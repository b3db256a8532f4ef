package service

import (
	"errors"
	"fmt"

	"github.com/trimtrack/vitals-backend/internal/config"
	"github.com/trimtrack/vitals-backend/pkg/model"
)

var (
	// ErrLikelySwappedPair reports a blood-pressure pair where systolic is not
	// strictly above diastolic. Surfaced as its own condition so the caller
	// can tell the caregiver the values look swapped rather than out of range.
	ErrLikelySwappedPair = errors.New("systolic must be strictly greater than diastolic: values are likely swapped")

	// ErrImplausibleValue reports a value outside the physically plausible
	// bounds for its vital type. These never reach the draft.
	ErrImplausibleValue = errors.New("value outside plausible range")

	// ErrIncompletePair reports a structured reading missing one half of its pair
	ErrIncompletePair = errors.New("both values of the pair are required")
)

// Plausibility bounds per vital type. Values outside these are treated as
// input format errors, not clinical classifications.
const (
	plausibleSystolicMin  = 40
	plausibleSystolicMax  = 300
	plausibleDiastolicMin = 20
	plausibleDiastolicMax = 200
	plausibleTempMinF     = 80.0
	plausibleTempMaxF     = 115.0
	plausibleHeartRateMin = 20
	plausibleHeartRateMax = 300
	plausibleSpO2Min      = 50.0
	plausibleSpO2Max      = 100.0
	plausiblePulseMin     = 20
	plausiblePulseMax     = 300
	plausibleSugarMin     = 10.0
	plausibleSugarMax     = 1000.0
	plausibleWeightMin    = 1.0
	plausibleWeightMax    = 1500.0
)

// Pediatric subjects get a shifted resting heart-rate band.
const pediatricAgeLimit = 13

// Subjects with this known condition get a widened blood-sugar target band.
const conditionDiabetes = "diabetes"

// Validator classifies vital-sign readings against configurable clinical
// thresholds. Validate is a pure function: identical (reading, context)
// input always yields the identical result, and nothing is mutated.
type Validator struct {
	thresholds config.ClinicalThresholds
}

// NewValidator creates a Validator with the given thresholds
func NewValidator(thresholds config.ClinicalThresholds) *Validator {
	return &Validator{thresholds: thresholds}
}

// Validate classifies one reading. Structural problems (swapped or
// incomplete blood-pressure pair, implausible magnitude) are returned as
// errors and must not be treated as clinical classifications.
func (v *Validator) Validate(reading model.VitalReading) (model.ValidationResult, error) {
	switch reading.Type {
	case model.VitalTypeBloodPressure:
		return v.validateBloodPressure(reading)
	case model.VitalTypeTemperature:
		return v.validateTemperature(reading)
	case model.VitalTypeHeartRate:
		return v.validateHeartRate(reading)
	case model.VitalTypeOxygenSaturation:
		return v.validateOxygen(reading)
	case model.VitalTypeBloodSugar:
		return v.validateBloodSugar(reading)
	case model.VitalTypeWeight:
		return v.validateWeight(reading)
	default:
		return model.ValidationResult{}, fmt.Errorf("unsupported vital type: %s", reading.Type)
	}
}

func (v *Validator) validateBloodPressure(reading model.VitalReading) (model.ValidationResult, error) {
	sys, dia := reading.Systolic, reading.Diastolic
	if sys == 0 || dia == 0 {
		return model.ValidationResult{}, ErrIncompletePair
	}
	if sys < plausibleSystolicMin || sys > plausibleSystolicMax ||
		dia < plausibleDiastolicMin || dia > plausibleDiastolicMax {
		return model.ValidationResult{}, fmt.Errorf("%w: %d/%d mmHg", ErrImplausibleValue, sys, dia)
	}
	if sys <= dia {
		return model.ValidationResult{}, ErrLikelySwappedPair
	}

	t := v.thresholds.BloodPressure
	switch {
	case sys >= t.CriticalSystolic || dia >= t.CriticalDiastolic:
		return result(model.SeverityCritical, "Hypertensive crisis range",
			"Blood pressure is critically elevated. Have the patient rest, re-measure in 5 minutes, and contact their care team if it remains this high.",
			"Re-measure after 5 minutes of rest"), nil
	case sys >= t.WarningSystolic || dia >= t.WarningDiastolic:
		return result(model.SeverityWarning, "Elevated blood pressure",
			"Blood pressure is above the target range. Note any symptoms such as headache or dizziness and mention this reading at the next appointment.",
			"Record symptoms alongside the reading"), nil
	case sys < t.LowSystolic || dia < t.LowDiastolic:
		return result(model.SeverityWarning, "Low blood pressure",
			"Blood pressure is below the typical range. Watch for lightheadedness, especially when the patient stands up.",
			"Have the patient stand up slowly"), nil
	default:
		return result(model.SeverityNormal, "Blood pressure in normal range",
			"Blood pressure looks good for this patient.", ""), nil
	}
}

func (v *Validator) validateTemperature(reading model.VitalReading) (model.ValidationResult, error) {
	temp := reading.Value
	if temp < plausibleTempMinF || temp > plausibleTempMaxF {
		return model.ValidationResult{}, fmt.Errorf("%w: %.1f °F", ErrImplausibleValue, temp)
	}

	t := v.thresholds.Temperature
	switch {
	case temp >= t.HighFever:
		return result(model.SeverityCritical, "High fever",
			"Temperature indicates a high fever. Contact the care team promptly and keep the patient hydrated.",
			"Contact the care team"), nil
	case temp > t.Fever:
		return result(model.SeverityWarning, "Fever",
			"Temperature indicates a fever. Monitor for other symptoms and re-check in a few hours.",
			"Re-check temperature in 2-4 hours"), nil
	case temp < t.Hypothermia:
		return result(model.SeverityCritical, "Dangerously low temperature",
			"Temperature is dangerously low. Warm the patient and call emergency services if it does not recover.",
			"Warm the patient immediately"), nil
	case temp < t.Low:
		return result(model.SeverityWarning, "Low temperature",
			"Temperature is below the typical range. Keep the patient warm and re-check shortly.",
			"Re-check after warming up"), nil
	default:
		return result(model.SeverityNormal, "Temperature in normal range",
			"Temperature looks normal.", ""), nil
	}
}

func (v *Validator) validateHeartRate(reading model.VitalReading) (model.ValidationResult, error) {
	hr := int(reading.Value)
	if hr < plausibleHeartRateMin || hr > plausibleHeartRateMax {
		return model.ValidationResult{}, fmt.Errorf("%w: %d bpm", ErrImplausibleValue, hr)
	}

	t := v.thresholds.HeartRate
	restingLow, restingHigh := t.RestingLow, t.RestingHigh
	criticalLow, criticalHigh := t.CriticalLow, t.CriticalHigh
	// Children run faster resting rates; shift the whole band up.
	if reading.Subject.Age > 0 && reading.Subject.Age < pediatricAgeLimit {
		restingLow, restingHigh = 70, 120
		criticalLow, criticalHigh = 50, 160
	}

	switch {
	case hr <= criticalLow:
		return result(model.SeverityCritical, "Severe bradycardia",
			"Heart rate is critically low. If the patient is dizzy, faint, or short of breath, call emergency services.",
			"Check for dizziness or fainting"), nil
	case hr >= criticalHigh:
		return result(model.SeverityCritical, "Severe tachycardia",
			"Heart rate is critically high at rest. If the patient has chest pain or trouble breathing, call emergency services.",
			"Check for chest pain or breathing trouble"), nil
	case hr < restingLow:
		return result(model.SeverityWarning, "Low resting heart rate",
			"Heart rate is below the typical resting range. Note whether the patient feels tired or lightheaded.",
			""), nil
	case hr > restingHigh:
		return result(model.SeverityWarning, "Elevated resting heart rate",
			"Heart rate is above the typical resting range. Have the patient rest for a few minutes and re-measure.",
			"Re-measure after 5 minutes of rest"), nil
	default:
		return result(model.SeverityNormal, "Heart rate in normal range",
			"Resting heart rate looks normal.", ""), nil
	}
}

func (v *Validator) validateOxygen(reading model.VitalReading) (model.ValidationResult, error) {
	spo2 := reading.SpO2
	if spo2 == 0 {
		return model.ValidationResult{}, ErrIncompletePair
	}
	if spo2 < plausibleSpO2Min || spo2 > plausibleSpO2Max {
		return model.ValidationResult{}, fmt.Errorf("%w: %.0f%%", ErrImplausibleValue, spo2)
	}
	if reading.PulseRate != 0 && (reading.PulseRate < plausiblePulseMin || reading.PulseRate > plausiblePulseMax) {
		return model.ValidationResult{}, fmt.Errorf("%w: pulse %d bpm", ErrImplausibleValue, reading.PulseRate)
	}

	t := v.thresholds.Oxygen
	switch {
	case spo2 < t.SevereCritical:
		return result(model.SeverityCritical, "Severe hypoxia",
			"Oxygen saturation is dangerously low. Call emergency services now and keep the patient sitting upright while you wait.",
			"Call emergency services"), nil
	case spo2 < t.Critical:
		return result(model.SeverityCritical, "Hypoxia",
			"Oxygen saturation is critically low. Sit the patient upright, encourage slow deep breaths, and contact the care team immediately.",
			"Contact the care team immediately"), nil
	case spo2 < t.Warning:
		return result(model.SeverityWarning, "Borderline oxygen saturation",
			"Oxygen saturation is slightly below the normal range. Re-measure on a warm finger and watch for shortness of breath.",
			"Re-measure on a different finger"), nil
	default:
		return result(model.SeverityNormal, "Oxygen saturation in normal range",
			"Oxygen saturation looks good.", ""), nil
	}
}

func (v *Validator) validateBloodSugar(reading model.VitalReading) (model.ValidationResult, error) {
	sugar := reading.Value
	if sugar < plausibleSugarMin || sugar > plausibleSugarMax {
		return model.ValidationResult{}, fmt.Errorf("%w: %.0f mg/dL", ErrImplausibleValue, sugar)
	}

	t := v.thresholds.BloodSugar
	targetLow, targetHigh := t.TargetLow, t.TargetHigh
	// Diabetic subjects commonly carry a wider agreed target band.
	if reading.Subject.HasCondition(conditionDiabetes) {
		targetHigh = 180.0
	}

	switch {
	case sugar < t.CriticalLow:
		return result(model.SeverityCritical, "Hypoglycemia",
			"Blood sugar is critically low. Give fast-acting sugar (juice or glucose tablets) right away and re-check in 15 minutes.",
			"Give fast-acting sugar now"), nil
	case sugar > t.CriticalHigh:
		return result(model.SeverityCritical, "Severe hyperglycemia",
			"Blood sugar is critically high. Contact the care team urgently; if the patient is confused or breathing fast, call emergency services.",
			"Contact the care team urgently"), nil
	case sugar < targetLow || sugar > targetHigh:
		return result(model.SeverityWarning, "Blood sugar outside target band",
			"Blood sugar is outside the target range. Note what and when the patient last ate alongside this reading.",
			"Note the last meal time"), nil
	default:
		return result(model.SeverityNormal, "Blood sugar in target range",
			"Blood sugar is within the target band.", ""), nil
	}
}

func (v *Validator) validateWeight(reading model.VitalReading) (model.ValidationResult, error) {
	if reading.Value < plausibleWeightMin || reading.Value > plausibleWeightMax {
		return model.ValidationResult{}, fmt.Errorf("%w: %.1f lbs", ErrImplausibleValue, reading.Value)
	}
	return result(model.SeverityNormal, "Weight recorded",
		"Weight recorded. Trends matter more than any single weigh-in.", ""), nil
}

func result(severity model.Severity, message, guidance, action string) model.ValidationResult {
	return model.ValidationResult{
		Severity:             severity,
		Message:              message,
		Guidance:             guidance,
		RequiresConfirmation: severity != model.SeverityNormal,
		SuggestedAction:      action,
	}
}
