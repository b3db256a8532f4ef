package model

import "time"

// VitalType identifies a kind of vital-sign measurement
type VitalType string

const (
	VitalTypeBloodPressure    VitalType = "blood_pressure"
	VitalTypeTemperature      VitalType = "temperature"
	VitalTypeHeartRate        VitalType = "heart_rate"
	VitalTypeOxygenSaturation VitalType = "oxygen_saturation"
	VitalTypeBloodSugar       VitalType = "blood_sugar"
	VitalTypeWeight           VitalType = "weight"
)

// Unit returns the measurement unit for a vital type
func (t VitalType) Unit() string {
	switch t {
	case VitalTypeBloodPressure:
		return "mmHg"
	case VitalTypeTemperature:
		return "°F"
	case VitalTypeHeartRate:
		return "bpm"
	case VitalTypeOxygenSaturation:
		return "%"
	case VitalTypeBloodSugar:
		return "mg/dL"
	case VitalTypeWeight:
		return "lbs"
	default:
		return ""
	}
}

// SubjectContext carries the subject attributes that shift clinical ranges
type SubjectContext struct {
	SubjectID  string   `json:"subject_id"`
	Age        int      `json:"age"`
	Conditions []string `json:"conditions,omitempty"`
}

// HasCondition reports whether the subject has a known condition
func (s SubjectContext) HasCondition(name string) bool {
	for _, c := range s.Conditions {
		if c == name {
			return true
		}
	}
	return false
}

// VitalReading represents one measurement in progress. Single-valued types
// use Value; blood pressure uses Systolic/Diastolic; oxygen uses SpO2/PulseRate.
type VitalReading struct {
	Type       VitalType      `json:"type"`
	Value      float64        `json:"value,omitempty"`
	Systolic   int            `json:"systolic,omitempty"`
	Diastolic  int            `json:"diastolic,omitempty"`
	SpO2       float64        `json:"spo2,omitempty"`
	PulseRate  int            `json:"pulse_rate,omitempty"`
	Unit       string         `json:"unit"`
	MeasuredAt time.Time      `json:"measured_at"`
	Subject    SubjectContext `json:"subject"`
}

// Severity classifies the clinical urgency of a single reading
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidationResult is the outcome of validating one VitalReading
type ValidationResult struct {
	Severity             Severity `json:"severity"`
	Message              string   `json:"message"`
	Guidance             string   `json:"guidance"`
	RequiresConfirmation bool     `json:"requires_confirmation"`
	SuggestedAction      string   `json:"suggested_action,omitempty"`
}

// Mood represents the caregiver-reported mood of the subject
type Mood string

const (
	MoodGreat Mood = "great"
	MoodGood  Mood = "good"
	MoodOkay  Mood = "okay"
	MoodLow   Mood = "low"
	MoodPoor  Mood = "poor"
)

// ValidMood reports whether m is one of the supported mood values
func ValidMood(m Mood) bool {
	switch m {
	case MoodGreat, MoodGood, MoodOkay, MoodLow, MoodPoor:
		return true
	}
	return false
}

// BloodPressureEntry is a validated systolic/diastolic pair in the draft
type BloodPressureEntry struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// OxygenEntry is a validated SpO2/pulse pair in the draft
type OxygenEntry struct {
	SpO2      float64 `json:"spo2"`
	PulseRate int     `json:"pulse_rate"`
}

// VitalSubmissionDraft is the accumulating in-progress record for one wizard
// session. A slot is present only if the corresponding step was completed
// (not skipped) and passed field-level validation.
type VitalSubmissionDraft struct {
	SubjectID           string               `json:"subject_id"`
	StartedAt           time.Time            `json:"started_at"`
	BloodPressure       *BloodPressureEntry  `json:"blood_pressure,omitempty"`
	Temperature         *float64             `json:"temperature,omitempty"`
	HeartRate           *int                 `json:"heart_rate,omitempty"`
	Oxygen              *OxygenEntry         `json:"oxygen,omitempty"`
	BloodSugar          *float64             `json:"blood_sugar,omitempty"`
	Mood                *Mood                `json:"mood,omitempty"`
	MoodNotes           string               `json:"mood_notes,omitempty"`
	Notes               string               `json:"notes,omitempty"`
	SchedulePreferences *SchedulePreferences `json:"schedule_preferences,omitempty"`
}

// LoggedTypes returns the vital types actually present in the draft, in step order
func (d VitalSubmissionDraft) LoggedTypes() []VitalType {
	var types []VitalType
	if d.BloodPressure != nil {
		types = append(types, VitalTypeBloodPressure)
	}
	if d.Temperature != nil {
		types = append(types, VitalTypeTemperature)
	}
	if d.HeartRate != nil {
		types = append(types, VitalTypeHeartRate)
	}
	if d.Oxygen != nil {
		types = append(types, VitalTypeOxygenSaturation)
	}
	if d.BloodSugar != nil {
		types = append(types, VitalTypeBloodSugar)
	}
	return types
}

// Empty reports whether the draft carries no vital slot and no mood entry
func (d VitalSubmissionDraft) Empty() bool {
	return len(d.LoggedTypes()) == 0 && d.Mood == nil
}

// ReminderFrequency encodes how many vitals reminders fire per day
type ReminderFrequency string

const (
	Frequency1x ReminderFrequency = "1x"
	Frequency2x ReminderFrequency = "2x"
	Frequency3x ReminderFrequency = "3x"
	Frequency4x ReminderFrequency = "4x"
	Frequency6x ReminderFrequency = "6x"
)

// TimesPerDay returns the numeric multiplier encoded by the frequency,
// or 0 for an unknown frequency
func (f ReminderFrequency) TimesPerDay() int {
	switch f {
	case Frequency1x:
		return 1
	case Frequency2x:
		return 2
	case Frequency3x:
		return 3
	case Frequency4x:
		return 4
	case Frequency6x:
		return 6
	default:
		return 0
	}
}

// NotificationChannels holds independent delivery-channel toggles
type NotificationChannels struct {
	App   bool `json:"app"`
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
}

// SchedulePreferences is a recurring reminder configuration.
// Invariant: len(Times) == Frequency.TimesPerDay() whenever Enabled is true.
type SchedulePreferences struct {
	Enabled              bool                 `json:"enabled"`
	VitalTypes           []VitalType          `json:"vital_types,omitempty"`
	Frequency            ReminderFrequency    `json:"frequency,omitempty"`
	Times                []string             `json:"times,omitempty"`
	NotificationChannels NotificationChannels `json:"notification_channels"`
}

// CheckSeverity classifies a quality-assurance finding
type CheckSeverity string

const (
	CheckSeverityError   CheckSeverity = "error"
	CheckSeverityWarning CheckSeverity = "warning"
)

// QualityCheckResult is one named quality-assurance check outcome. Step names
// the wizard step the caller should route the user back to on failure.
type QualityCheckResult struct {
	Name     string        `json:"name"`
	Passed   bool          `json:"passed"`
	Severity CheckSeverity `json:"severity"`
	Message  string        `json:"message,omitempty"`
	Step     WizardStep    `json:"step,omitempty"`
}

// WizardStep is the discrete state of the vitals wizard state machine
type WizardStep string

const (
	StepIntro         WizardStep = "intro"
	StepBloodPressure WizardStep = "blood_pressure"
	StepTemperature   WizardStep = "temperature"
	StepHeartRate     WizardStep = "heart_rate"
	StepOxygen        WizardStep = "oxygen"
	StepBloodSugar    WizardStep = "blood_sugar"
	StepReview        WizardStep = "review"
	StepMood          WizardStep = "mood"
	StepSchedule      WizardStep = "schedule"
	StepConfirmation  WizardStep = "confirmation"
)

// WizardStepOrder is the linear step sequence; intro is the sole initial
// state and confirmation the sole terminal state.
var WizardStepOrder = []WizardStep{
	StepIntro,
	StepBloodPressure,
	StepTemperature,
	StepHeartRate,
	StepOxygen,
	StepBloodSugar,
	StepReview,
	StepMood,
	StepSchedule,
	StepConfirmation,
}

// VitalStepType maps a vital-entry step to the vital type it records,
// returning false for non-entry steps
func VitalStepType(step WizardStep) (VitalType, bool) {
	switch step {
	case StepBloodPressure:
		return VitalTypeBloodPressure, true
	case StepTemperature:
		return VitalTypeTemperature, true
	case StepHeartRate:
		return VitalTypeHeartRate, true
	case StepOxygen:
		return VitalTypeOxygenSaturation, true
	case StepBloodSugar:
		return VitalTypeBloodSugar, true
	}
	return "", false
}

// SavedVitals is the canonical persisted representation of a submitted bundle
type SavedVitals struct {
	ID                  string               `json:"id"`
	SubjectID           string               `json:"subject_id"`
	BloodPressure       *BloodPressureEntry  `json:"blood_pressure,omitempty"`
	Temperature         *float64             `json:"temperature,omitempty"`
	HeartRate           *int                 `json:"heart_rate,omitempty"`
	Oxygen              *OxygenEntry         `json:"oxygen,omitempty"`
	BloodSugar          *float64             `json:"blood_sugar,omitempty"`
	Mood                *Mood                `json:"mood,omitempty"`
	MoodNotes           *string              `json:"mood_notes,omitempty"`
	Notes               *string              `json:"notes,omitempty"`
	SchedulePreferences *SchedulePreferences `json:"schedule_preferences,omitempty"`
	SubmittedAt         time.Time            `json:"submitted_at"`
	CreatedAt           time.Time            `json:"created_at"`
}

// DraftSnapshot is the durable scratch representation of an interrupted
// session: the saved step plus the draft and its validation results, keyed
// per subject so concurrent family-member sessions never collide.
type DraftSnapshot struct {
	SessionID string                         `json:"session_id"`
	SubjectID string                         `json:"subject_id"`
	Step      WizardStep                     `json:"step"`
	Draft     VitalSubmissionDraft           `json:"draft"`
	Results   map[VitalType]ValidationResult `json:"results,omitempty"`
	SavedAt   time.Time                      `json:"saved_at"`
}

// AnomalyFlag reports an unusual delta between a new reading and recent history
type AnomalyFlag struct {
	Type      VitalType `json:"type"`
	Detected  bool      `json:"detected"`
	Delta     float64   `json:"delta"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message,omitempty"`
}

// CriticalAlert is the escalation payload dispatched to caregivers/guardians
type CriticalAlert struct {
	ID                        string            `json:"id"`
	SubjectID                 string            `json:"subject_id"`
	Sender                    string            `json:"sender"`
	TriggeringType            VitalType         `json:"triggering_type"`
	TriggeringValue           string            `json:"triggering_value"`
	Guidance                  string            `json:"guidance"`
	RequiresEmergencyServices bool              `json:"requires_emergency_services"`
	Readings                  map[string]string `json:"readings,omitempty"`
	CreatedAt                 time.Time         `json:"created_at"`
}

// AlertDispatchResult reports per-channel delivery counts for one alert
type AlertDispatchResult struct {
	AlertID           string         `json:"alert_id"`
	Success           bool           `json:"success"`
	NotificationsSent int            `json:"notifications_sent"`
	PerChannel        map[string]int `json:"per_channel,omitempty"`
}
