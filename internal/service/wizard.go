package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trimtrack/vitals-backend/pkg/model"
)

var (
	// ErrInvalidTransition reports an operation not allowed from the current step
	ErrInvalidTransition = errors.New("operation not allowed from the current step")

	// ErrStepNotFilled reports an attempt to advance past a vital-entry step
	// whose slot was never populated. Skip is the only way past an unfilled step.
	ErrStepNotFilled = errors.New("no valid reading recorded for this step; use skip to advance without one")

	// ErrNotesRequired reports an attempt to leave review with abnormal
	// readings but no explanatory notes
	ErrNotesRequired = errors.New("explanatory notes are required before advancing: one or more readings were abnormal")

	// ErrAlreadySubmitted reports a mutation attempted after successful submission
	ErrAlreadySubmitted = errors.New("session has already been submitted")
)

// WizardSession is the explicit session object owned by the caller. The
// wizard mutates it through the operations below; no other component touches
// the draft. Single active step at a time; no concurrent mutation.
type WizardSession struct {
	ID        string                                     `json:"id"`
	Subject   model.SubjectContext                       `json:"subject"`
	Step      model.WizardStep                           `json:"step"`
	Draft     model.VitalSubmissionDraft                 `json:"draft"`
	Results   map[model.VitalType]model.ValidationResult `json:"results"`
	Anomalies map[model.VitalType][]model.AnomalyFlag    `json:"anomalies,omitempty"`
	StartedAt time.Time                                  `json:"started_at"`
	UpdatedAt time.Time                                  `json:"updated_at"`
	Submitted bool                                       `json:"submitted"`

	// submitting guards against double submission while the external
	// persistence call is in flight.
	submitting bool
}

// NewWizardSession creates a fresh session at the intro step
func NewWizardSession(subject model.SubjectContext) *WizardSession {
	now := time.Now()
	return &WizardSession{
		ID:      uuid.New().String(),
		Subject: subject,
		Step:    model.StepIntro,
		Draft: model.VitalSubmissionDraft{
			SubjectID: subject.SubjectID,
			StartedAt: now,
		},
		Results:   make(map[model.VitalType]model.ValidationResult),
		Anomalies: make(map[model.VitalType][]model.AnomalyFlag),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Wizard drives the supervised vitals collection flow: an ordered step
// sequence with skip/back deviations, per-step clinical validation, a review
// gate, and the submission handoff. All methods are free of I/O; durable
// persistence and collaborator calls live in WizardService.
type Wizard struct {
	validator *Validator
	detector  *AnomalyDetector
	qa        *QualityChecker
	schedule  *ScheduleBuilder
}

// NewWizard creates a Wizard with its pure sub-engines
func NewWizard(validator *Validator) *Wizard {
	return &Wizard{
		validator: validator,
		detector:  NewAnomalyDetector(),
		qa:        NewQualityChecker(),
		schedule:  NewScheduleBuilder(),
	}
}

func stepIndex(step model.WizardStep) int {
	for i, s := range model.WizardStepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// Next advances exactly one step along the linear order. Vital-entry steps
// require their slot to be filled; review enforces the notes requirement.
// Mood, schedule, and confirmation have dedicated operations and reject Next.
func (w *Wizard) Next(sess *WizardSession) error {
	if sess.Submitted {
		return ErrAlreadySubmitted
	}

	switch sess.Step {
	case model.StepIntro:
		return w.advance(sess)
	case model.StepReview:
		if w.NotesRequired(sess) && strings.TrimSpace(sess.Draft.Notes) == "" {
			return ErrNotesRequired
		}
		return w.advance(sess)
	case model.StepMood, model.StepSchedule, model.StepConfirmation:
		return fmt.Errorf("%w: %s has dedicated navigation", ErrInvalidTransition, sess.Step)
	}

	vitalType, ok := model.VitalStepType(sess.Step)
	if !ok {
		return fmt.Errorf("%w: cannot advance from %s", ErrInvalidTransition, sess.Step)
	}
	if !slotFilled(sess.Draft, vitalType) {
		return ErrStepNotFilled
	}
	return w.advance(sess)
}

func (w *Wizard) advance(sess *WizardSession) error {
	idx := stepIndex(sess.Step)
	if idx < 0 || idx+1 >= len(model.WizardStepOrder) {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, sess.Step)
	}
	sess.Step = model.WizardStepOrder[idx+1]
	sess.UpdatedAt = time.Now()
	return nil
}

// Skip clears the current step's slot and any recorded validation result,
// then advances exactly one step. Available on vital-entry steps only.
func (w *Wizard) Skip(sess *WizardSession) error {
	if sess.Submitted {
		return ErrAlreadySubmitted
	}
	vitalType, ok := model.VitalStepType(sess.Step)
	if !ok {
		return fmt.Errorf("%w: skip is only available on vital-entry steps", ErrInvalidTransition)
	}
	clearSlot(&sess.Draft, vitalType)
	delete(sess.Results, vitalType)
	delete(sess.Anomalies, vitalType)
	return w.advance(sess)
}

// Back moves exactly one step back without discarding entered data. Not
// available on intro, mood, schedule, or confirmation.
func (w *Wizard) Back(sess *WizardSession) error {
	if sess.Submitted {
		return ErrAlreadySubmitted
	}
	switch sess.Step {
	case model.StepIntro:
		return fmt.Errorf("%w: already at the first step", ErrInvalidTransition)
	case model.StepMood, model.StepSchedule, model.StepConfirmation:
		return fmt.Errorf("%w: %s has dedicated navigation", ErrInvalidTransition, sess.Step)
	}
	idx := stepIndex(sess.Step)
	sess.Step = model.WizardStepOrder[idx-1]
	sess.UpdatedAt = time.Now()
	return nil
}

// RecordReading validates a raw reading for the current vital-entry step and,
// if well formed, merges it into the draft and stores the classification
// keyed by vital type. Structural failures (incomplete or inverted pair,
// implausible magnitude) leave the slot untouched. The step does not advance.
func (w *Wizard) RecordReading(sess *WizardSession, reading model.VitalReading, history []model.VitalReading) (model.ValidationResult, error) {
	if sess.Submitted {
		return model.ValidationResult{}, ErrAlreadySubmitted
	}
	stepType, ok := model.VitalStepType(sess.Step)
	if !ok {
		return model.ValidationResult{}, fmt.Errorf("%w: %s does not accept readings", ErrInvalidTransition, sess.Step)
	}
	if reading.Type != stepType {
		return model.ValidationResult{}, fmt.Errorf("%w: step %s expects a %s reading, got %s", ErrInvalidTransition, sess.Step, stepType, reading.Type)
	}

	reading.Unit = reading.Type.Unit()
	reading.Subject = sess.Subject
	if reading.MeasuredAt.IsZero() {
		reading.MeasuredAt = time.Now()
	}

	result, err := w.validator.Validate(reading)
	if err != nil {
		return model.ValidationResult{}, err
	}

	fillSlot(&sess.Draft, reading)
	sess.Results[reading.Type] = result
	if flags := w.detector.DetectAnomalies(reading, history); len(flags) > 0 {
		sess.Anomalies[reading.Type] = flags
	} else {
		delete(sess.Anomalies, reading.Type)
	}
	sess.UpdatedAt = time.Now()

	return result, nil
}

// NotesRequired reports whether any recorded result is warning or critical.
// Critical results make the requirement mandatory at the review gate.
func (w *Wizard) NotesRequired(sess *WizardSession) bool {
	for _, res := range sess.Results {
		if res.Severity != model.SeverityNormal {
			return true
		}
	}
	return false
}

// HasCritical reports whether any recorded result is critical
func (w *Wizard) HasCritical(sess *WizardSession) bool {
	for _, res := range sess.Results {
		if res.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

// SetReviewNotes stores the caregiver's explanatory notes on the review step
func (w *Wizard) SetReviewNotes(sess *WizardSession, notes string) error {
	if sess.Submitted {
		return ErrAlreadySubmitted
	}
	if sess.Step != model.StepReview {
		return fmt.Errorf("%w: notes are entered on the review step", ErrInvalidTransition)
	}
	sess.Draft.Notes = notes
	sess.UpdatedAt = time.Now()
	return nil
}

// RecordMood stores the mood entry on the mood step. Submission is triggered
// separately by WizardService once the mood step's "next" fires.
func (w *Wizard) RecordMood(sess *WizardSession, mood model.Mood, notes string) error {
	if sess.Submitted {
		return ErrAlreadySubmitted
	}
	if sess.Step != model.StepMood {
		return fmt.Errorf("%w: mood is entered on the mood step", ErrInvalidTransition)
	}
	if !model.ValidMood(mood) {
		return fmt.Errorf("invalid mood value: %s", mood)
	}
	sess.Draft.Mood = &mood
	sess.Draft.MoodNotes = notes
	sess.UpdatedAt = time.Now()
	return nil
}

// GateSubmission recomputes the structural blood-pressure invariant and runs
// the full quality-assurance battery. Returns the per-check results; the
// caller blocks submission when any error-severity check failed.
func (w *Wizard) GateSubmission(sess *WizardSession) []model.QualityCheckResult {
	return w.qa.RunChecks(sess.Draft, sess.Results)
}

// FinishSubmission transitions a successfully submitted session to the
// schedule step. Called only after the external persistence collaborator
// accepted the bundle.
func (w *Wizard) FinishSubmission(sess *WizardSession) {
	sess.Submitted = true
	sess.submitting = false
	sess.Step = model.StepSchedule
	sess.UpdatedAt = time.Now()
}

// ApplySchedule builds SchedulePreferences from the schedule-step selections,
// attaches them to the draft, and advances to confirmation
func (w *Wizard) ApplySchedule(sess *WizardSession, sel ScheduleSelections) (model.SchedulePreferences, error) {
	if sess.Step != model.StepSchedule {
		return model.SchedulePreferences{}, fmt.Errorf("%w: scheduling happens on the schedule step", ErrInvalidTransition)
	}
	prefs, err := w.schedule.Build(sess.Draft, sel)
	if err != nil {
		return model.SchedulePreferences{}, err
	}
	sess.Draft.SchedulePreferences = &prefs
	sess.Step = model.StepConfirmation
	sess.UpdatedAt = time.Now()
	return prefs, nil
}

// SkipSchedule declines reminders and advances to confirmation with
// schedule preferences disabled
func (w *Wizard) SkipSchedule(sess *WizardSession) error {
	if sess.Step != model.StepSchedule {
		return fmt.Errorf("%w: scheduling happens on the schedule step", ErrInvalidTransition)
	}
	sess.Draft.SchedulePreferences = &model.SchedulePreferences{Enabled: false}
	sess.Step = model.StepConfirmation
	sess.UpdatedAt = time.Now()
	return nil
}

func slotFilled(draft model.VitalSubmissionDraft, t model.VitalType) bool {
	switch t {
	case model.VitalTypeBloodPressure:
		return draft.BloodPressure != nil
	case model.VitalTypeTemperature:
		return draft.Temperature != nil
	case model.VitalTypeHeartRate:
		return draft.HeartRate != nil
	case model.VitalTypeOxygenSaturation:
		return draft.Oxygen != nil
	case model.VitalTypeBloodSugar:
		return draft.BloodSugar != nil
	}
	return false
}

func fillSlot(draft *model.VitalSubmissionDraft, reading model.VitalReading) {
	switch reading.Type {
	case model.VitalTypeBloodPressure:
		draft.BloodPressure = &model.BloodPressureEntry{
			Systolic:  reading.Systolic,
			Diastolic: reading.Diastolic,
		}
	case model.VitalTypeTemperature:
		v := reading.Value
		draft.Temperature = &v
	case model.VitalTypeHeartRate:
		v := int(reading.Value)
		draft.HeartRate = &v
	case model.VitalTypeOxygenSaturation:
		draft.Oxygen = &model.OxygenEntry{
			SpO2:      reading.SpO2,
			PulseRate: reading.PulseRate,
		}
	case model.VitalTypeBloodSugar:
		v := reading.Value
		draft.BloodSugar = &v
	}
}

func clearSlot(draft *model.VitalSubmissionDraft, t model.VitalType) {
	switch t {
	case model.VitalTypeBloodPressure:
		draft.BloodPressure = nil
	case model.VitalTypeTemperature:
		draft.Temperature = nil
	case model.VitalTypeHeartRate:
		draft.HeartRate = nil
	case model.VitalTypeOxygenSaturation:
		draft.Oxygen = nil
	case model.VitalTypeBloodSugar:
		draft.BloodSugar = nil
	}
}
