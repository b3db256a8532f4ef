// Package api defines the request and response shapes of the vitals wizard
// HTTP API. Handlers translate between these DTOs and the service layer.
package api

import (
	"time"

	"github.com/trimtrack/vitals-backend/pkg/model"
)

// ErrorResponse is the uniform error body for all endpoints
type ErrorResponse struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Details *string `json:"details,omitempty"`
}

// StartSessionRequest opens the wizard for a subject
type StartSessionRequest struct {
	SubjectID  string   `json:"subject_id" binding:"required"`
	Age        int      `json:"age"`
	Conditions []string `json:"conditions,omitempty"`
}

// SessionState is the wire view of a live wizard session
type SessionState struct {
	SessionID string                                     `json:"session_id"`
	SubjectID string                                     `json:"subject_id"`
	Step      model.WizardStep                           `json:"step"`
	Draft     model.VitalSubmissionDraft                 `json:"draft"`
	Results   map[model.VitalType]model.ValidationResult `json:"results,omitempty"`
	Anomalies map[model.VitalType][]model.AnomalyFlag    `json:"anomalies,omitempty"`
	Submitted bool                                       `json:"submitted"`
	StartedAt time.Time                                  `json:"started_at"`
	UpdatedAt time.Time                                  `json:"updated_at"`
}

// StartSessionResponse carries the fresh session plus, when one exists, the
// saved draft offered for resume
type StartSessionResponse struct {
	Session      SessionState         `json:"session"`
	PendingDraft *model.DraftSnapshot `json:"pending_draft,omitempty"`
}

// ReadingRequest submits one vital reading for the current step. Value carries
// single-valued vitals; blood pressure uses Systolic/Diastolic and oxygen uses
// SpO2/PulseRate.
type ReadingRequest struct {
	Type      model.VitalType `json:"type" binding:"required"`
	Value     *float64        `json:"value,omitempty"`
	Systolic  *int            `json:"systolic,omitempty"`
	Diastolic *int            `json:"diastolic,omitempty"`
	SpO2      *float64        `json:"spo2,omitempty"`
	PulseRate *int            `json:"pulse_rate,omitempty"`
}

// ReadingResponse returns the clinical classification of a recorded reading
// along with any change-over-time anomaly hints
type ReadingResponse struct {
	Result    model.ValidationResult `json:"result"`
	Anomalies []model.AnomalyFlag    `json:"anomalies,omitempty"`
	Step      model.WizardStep       `json:"step"`
}

// ReviewNotesRequest stores explanatory notes on the review step
type ReviewNotesRequest struct {
	Notes string `json:"notes" binding:"required"`
}

// SubmitRequest records the mood entry and triggers submission
type SubmitRequest struct {
	Mood      model.Mood `json:"mood" binding:"required"`
	MoodNotes string     `json:"mood_notes,omitempty"`
}

// SubmitResponse reports the quality-check outcomes and, on success, the
// saved bundle. When checks block, Step names the step the wizard routed
// back to.
type SubmitResponse struct {
	Checks []model.QualityCheckResult `json:"checks"`
	Saved  *model.SavedVitals         `json:"saved,omitempty"`
	Step   model.WizardStep           `json:"step"`
}

// ScheduleRequest configures reminders on the schedule step
type ScheduleRequest struct {
	VitalTypes []model.VitalType          `json:"vital_types" binding:"required"`
	Frequency  model.ReminderFrequency    `json:"frequency" binding:"required"`
	Times      []string                   `json:"times,omitempty"`
	Channels   model.NotificationChannels `json:"channels"`
}

// ScheduleResponse returns the persisted reminder preferences
type ScheduleResponse struct {
	Preferences model.SchedulePreferences `json:"preferences"`
	Step        model.WizardStep          `json:"step"`
}

// EscalateRequest dispatches a critical alert on explicit user action
type EscalateRequest struct {
	Sender string `json:"sender,omitempty"`
}

// EscalateResponse reports the alert dispatch outcome
type EscalateResponse struct {
	Result model.AlertDispatchResult `json:"result"`
}

// TranscriptionResponse returns the dictated text and, when archival
// succeeded, the stored recording's blob name
type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
	AudioPath     string `json:"audio_path,omitempty"`
}

// SpeakGuidanceRequest synthesizes guidance text to audio
type SpeakGuidanceRequest struct {
	Text string `json:"text" binding:"required"`
}

// HealthResponse reports service and dependency health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
