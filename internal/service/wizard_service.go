package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/trimtrack/vitals-backend/internal/audit"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

var (
	// ErrNoActiveSession reports that no wizard session exists for the subject
	ErrNoActiveSession = errors.New("no active wizard session for this subject")

	// ErrDraftNotFound reports that no persisted draft exists to resume
	ErrDraftNotFound = errors.New("no saved draft exists for this subject")

	// ErrSubmissionBlocked reports that the quality-assurance gate rejected
	// the bundle; the failing checks carry the step to route back to
	ErrSubmissionBlocked = errors.New("submission blocked by quality checks")

	// ErrSubmissionInFlight guards against duplicate submission while the
	// external persistence call has not returned
	ErrSubmissionInFlight = errors.New("submission already in progress")

	// ErrNoCriticalReading reports an escalation attempt without any
	// critical classification in the session
	ErrNoCriticalReading = errors.New("no critical reading recorded in this session")
)

// DraftStore is the durable scratch storage for interrupted sessions,
// keyed per subject
type DraftStore interface {
	Save(ctx context.Context, subjectID string, snap model.DraftSnapshot) error
	Load(ctx context.Context, subjectID string) (*model.DraftSnapshot, error)
	Clear(ctx context.Context, subjectID string) error
}

// Submitter is the external persistence collaborator for finished bundles
type Submitter interface {
	Submit(ctx context.Context, draft model.VitalSubmissionDraft) (*model.SavedVitals, error)
	SaveSchedulePreferences(ctx context.Context, subjectID string, prefs model.SchedulePreferences) error
}

// HistoryProvider supplies recent prior readings for the anomaly detector
type HistoryProvider interface {
	RecentReadings(ctx context.Context, subjectID string, vitalType model.VitalType, limit int) ([]model.VitalReading, error)
}

// recentHistoryLimit bounds the history window handed to the anomaly detector
const recentHistoryLimit = 5

// StartResult is the outcome of opening the wizard for a subject. When a
// persisted draft exists PendingDraft carries it so the UI can offer to
// resume; the fresh session is never silently replaced by the saved one.
type StartResult struct {
	Session      *WizardSession
	PendingDraft *model.DraftSnapshot
}

// WizardService owns the live wizard sessions and wires the pure state
// machine to its collaborators: draft scratch storage, the persistence
// collaborator, history, escalation, audit, and optional note extraction.
type WizardService struct {
	wizard      *Wizard
	drafts      DraftStore
	submitter   Submitter
	history     HistoryProvider
	escalation  *EscalationService
	extractor   *NoteExtractor
	auditor     *audit.Logger
	logger      *zap.Logger
	saveTimeout time.Duration
	onComplete  func(model.SavedVitals)

	mu       sync.Mutex
	sessions map[string]*WizardSession // keyed by subject ID

	draftMu sync.Mutex
	writers map[string]*draftWriter // per-subject scratch-write ordering
}

// draftWriter serializes scratch-storage writes for one subject. Sequence
// numbers are issued at call time, so a snapshot from an earlier transition
// can never land over a later one or resurrect a cleared draft.
type draftWriter struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
}

// NewWizardService creates a WizardService. extractor and auditor may be nil;
// onComplete may be nil when no downstream display needs the saved bundle.
func NewWizardService(
	wizard *Wizard,
	drafts DraftStore,
	submitter Submitter,
	history HistoryProvider,
	escalation *EscalationService,
	extractor *NoteExtractor,
	auditor *audit.Logger,
	logger *zap.Logger,
	saveTimeout time.Duration,
	onComplete func(model.SavedVitals),
) *WizardService {
	return &WizardService{
		wizard:      wizard,
		drafts:      drafts,
		submitter:   submitter,
		history:     history,
		escalation:  escalation,
		extractor:   extractor,
		auditor:     auditor,
		logger:      logger,
		saveTimeout: saveTimeout,
		onComplete:  onComplete,
		sessions:    make(map[string]*WizardSession),
		writers:     make(map[string]*draftWriter),
	}
}

// StartSession opens the wizard for a subject. A fresh session starts at
// intro; if a persisted draft exists it is returned for a resume offer
// (detect-and-offer, never silent auto-resume).
func (s *WizardService) StartSession(ctx context.Context, subject model.SubjectContext) (*StartResult, error) {
	sess := NewWizardSession(subject)

	s.mu.Lock()
	s.sessions[subject.SubjectID] = sess
	s.mu.Unlock()

	result := &StartResult{Session: sess}

	pending, err := s.drafts.Load(ctx, subject.SubjectID)
	if err != nil {
		// Detection is best effort; a scratch-storage hiccup must not keep
		// the caregiver from starting fresh.
		s.logger.Warn("failed to check for saved draft",
			zap.Error(err),
			zap.String("subject_id", subject.SubjectID),
		)
	} else if pending != nil {
		result.PendingDraft = pending
		s.logger.Info("saved draft detected, offering resume",
			zap.String("subject_id", subject.SubjectID),
			zap.String("saved_step", string(pending.Step)),
			zap.Time("saved_at", pending.SavedAt),
		)
	}

	s.logger.Info("wizard session started",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", subject.SubjectID),
	)

	return result, nil
}

// ResumeSession restores the persisted draft for the subject: exactly the
// saved step, field values, and validation results.
func (s *WizardService) ResumeSession(ctx context.Context, subjectID string) (*WizardSession, error) {
	snap, err := s.drafts.Load(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved draft: %w", err)
	}
	if snap == nil {
		return nil, ErrDraftNotFound
	}

	sess, err := s.session(subjectID)
	if err != nil {
		return nil, err
	}

	sess.ID = snap.SessionID
	sess.Step = snap.Step
	sess.Draft = snap.Draft
	sess.Results = snap.Results
	if sess.Results == nil {
		sess.Results = make(map[model.VitalType]model.ValidationResult)
	}
	sess.UpdatedAt = time.Now()

	s.logger.Info("wizard session resumed",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", subjectID),
		zap.String("step", string(sess.Step)),
	)

	return sess, nil
}

// DiscardDraft declines a resume offer: the persisted draft is cleared and
// the fresh session continues from intro.
func (s *WizardService) DiscardDraft(ctx context.Context, subjectID string) error {
	if err := s.clearDraft(ctx, subjectID); err != nil {
		return fmt.Errorf("failed to discard saved draft: %w", err)
	}
	s.logger.Info("saved draft discarded", zap.String("subject_id", subjectID))
	return nil
}

// Session returns the live session for a subject
func (s *WizardService) Session(subjectID string) (*WizardSession, error) {
	return s.session(subjectID)
}

func (s *WizardService) session(subjectID string) (*WizardSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[subjectID]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

// RecordReading validates and records a reading for the subject's current
// step, consulting recent history for anomaly hints, then mirrors the draft.
func (s *WizardService) RecordReading(ctx context.Context, subjectID string, reading model.VitalReading) (model.ValidationResult, []model.AnomalyFlag, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return model.ValidationResult{}, nil, err
	}

	var history []model.VitalReading
	if s.history != nil {
		history, err = s.history.RecentReadings(ctx, subjectID, reading.Type, recentHistoryLimit)
		if err != nil {
			// Anomaly hints are augmentation only; never fail the entry.
			s.logger.Warn("failed to load recent readings for anomaly check",
				zap.Error(err),
				zap.String("subject_id", subjectID),
				zap.String("vital_type", string(reading.Type)),
			)
			history = nil
		}
	}

	result, err := s.wizard.RecordReading(sess, reading, history)
	if err != nil {
		return model.ValidationResult{}, nil, err
	}

	s.persistDraft(sess)

	s.logger.Info("reading recorded",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", subjectID),
		zap.String("vital_type", string(reading.Type)),
		zap.String("severity", string(result.Severity)),
	)

	return result, sess.Anomalies[reading.Type], nil
}

// Next advances the session one step
func (s *WizardService) Next(ctx context.Context, subjectID string) (*WizardSession, error) {
	return s.transition(subjectID, s.wizard.Next)
}

// Skip clears the current step's data and advances one step
func (s *WizardService) Skip(ctx context.Context, subjectID string) (*WizardSession, error) {
	return s.transition(subjectID, s.wizard.Skip)
}

// Back moves the session one step back
func (s *WizardService) Back(ctx context.Context, subjectID string) (*WizardSession, error) {
	return s.transition(subjectID, s.wizard.Back)
}

func (s *WizardService) transition(subjectID string, op func(*WizardSession) error) (*WizardSession, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return nil, err
	}
	if err := op(sess); err != nil {
		return nil, err
	}
	s.persistDraft(sess)
	return sess, nil
}

// SetReviewNotes stores explanatory notes on the review step
func (s *WizardService) SetReviewNotes(ctx context.Context, subjectID, notes string) error {
	sess, err := s.session(subjectID)
	if err != nil {
		return err
	}
	if err := s.wizard.SetReviewNotes(sess, notes); err != nil {
		return err
	}
	s.persistDraft(sess)
	return nil
}

// SubmitSession records the mood entry and performs the submission handoff:
// quality gate, external persistence, draft cleanup, transition to schedule.
// The mood step's "next" action is the submission trigger.
func (s *WizardService) SubmitSession(ctx context.Context, subjectID string, mood model.Mood, moodNotes string) ([]model.QualityCheckResult, *model.SavedVitals, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	if sess.submitting {
		s.mu.Unlock()
		return nil, nil, ErrSubmissionInFlight
	}
	sess.submitting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		sess.submitting = false
		s.mu.Unlock()
	}()

	if err := s.wizard.RecordMood(sess, mood, moodNotes); err != nil {
		return nil, nil, err
	}
	s.persistDraft(sess)

	checks := s.wizard.GateSubmission(sess)
	if Blocked(checks) {
		if step, ok := FirstFailingStep(checks); ok {
			sess.Step = step
			s.persistDraft(sess)
		}
		s.logger.Warn("submission blocked by quality checks",
			zap.String("session_id", sess.ID),
			zap.String("subject_id", subjectID),
			zap.String("routed_to", string(sess.Step)),
		)
		return checks, nil, ErrSubmissionBlocked
	}

	saved, err := s.submitter.Submit(ctx, sess.Draft)
	if err != nil {
		// The draft and step are preserved untouched so nothing is lost;
		// the caller surfaces the reason and the user may retry.
		s.logger.Error("vitals submission failed",
			zap.Error(err),
			zap.String("session_id", sess.ID),
			zap.String("subject_id", subjectID),
		)
		return checks, nil, fmt.Errorf("failed to submit vitals: %w", err)
	}

	if err := s.clearDraft(ctx, subjectID); err != nil {
		s.logger.Error("failed to clear saved draft after submission",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
	}

	s.wizard.FinishSubmission(sess)

	s.auditSubmission(ctx, sess, saved)
	s.extractInsights(sess)

	if s.onComplete != nil {
		s.onComplete(*saved)
	}

	s.logger.Info("vitals submitted",
		zap.String("session_id", sess.ID),
		zap.String("subject_id", subjectID),
		zap.String("saved_id", saved.ID),
		zap.Int("vitals_logged", len(sess.Draft.LoggedTypes())),
	)

	return checks, saved, nil
}

// ApplySchedule builds and persists reminder preferences from the schedule step
func (s *WizardService) ApplySchedule(ctx context.Context, subjectID string, sel ScheduleSelections) (model.SchedulePreferences, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return model.SchedulePreferences{}, err
	}

	prefs, err := s.wizard.ApplySchedule(sess, sel)
	if err != nil {
		return model.SchedulePreferences{}, err
	}

	if err := s.submitter.SaveSchedulePreferences(ctx, subjectID, prefs); err != nil {
		s.logger.Error("failed to persist schedule preferences",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		return model.SchedulePreferences{}, fmt.Errorf("failed to save schedule preferences: %w", err)
	}

	s.logger.Info("reminder schedule configured",
		zap.String("subject_id", subjectID),
		zap.String("frequency", string(prefs.Frequency)),
		zap.Int("vital_types", len(prefs.VitalTypes)),
	)

	return prefs, nil
}

// SkipSchedule declines reminders and moves to confirmation
func (s *WizardService) SkipSchedule(ctx context.Context, subjectID string) (*WizardSession, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return nil, err
	}
	if err := s.wizard.SkipSchedule(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Escalate dispatches a critical alert for the session's triggering reading.
// Only valid when a critical classification was recorded; invoked on
// explicit user action, never automatically.
func (s *WizardService) Escalate(ctx context.Context, subjectID, sender string) (model.AlertDispatchResult, error) {
	sess, err := s.session(subjectID)
	if err != nil {
		return model.AlertDispatchResult{}, err
	}

	triggeringType, triggeringValue, guidance, found := criticalTrigger(sess)
	if !found {
		return model.AlertDispatchResult{}, ErrNoCriticalReading
	}

	result, err := s.escalation.SendCriticalAlert(
		ctx,
		subjectID,
		draftReadings(sess.Draft),
		triggeringType,
		triggeringValue,
		guidance,
		sender,
	)

	if err == nil && s.auditor != nil {
		if auditErr := s.auditor.Log(ctx, audit.Entry{
			SubjectID:     subjectID,
			OperationType: audit.OperationEscalate,
			ResourceType:  audit.ResourceCriticalAlert,
			ResourceID:    sess.ID,
		}); auditErr != nil {
			s.logger.Warn("failed to write escalation audit entry", zap.Error(auditErr))
		}
	}

	return result, err
}

func (s *WizardService) auditSubmission(ctx context.Context, sess *WizardSession, saved *model.SavedVitals) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, audit.Entry{
		SubjectID:     sess.Subject.SubjectID,
		OperationType: audit.OperationCreate,
		ResourceType:  audit.ResourceVitalSubmission,
		ResourceID:    saved.ID,
		AdditionalData: map[string]interface{}{
			"vital_types": sess.Draft.LoggedTypes(),
			"session_id":  sess.ID,
		},
	}); err != nil {
		s.logger.Warn("failed to write submission audit entry", zap.Error(err))
	}
}

// extractInsights runs optional AI enrichment over the session notes.
// Asynchronous and best effort: the submission is already durable.
func (s *WizardService) extractInsights(sess *WizardSession) {
	if s.extractor == nil {
		return
	}
	notes := sess.Draft.MoodNotes
	if sess.Draft.Notes != "" {
		notes = sess.Draft.Notes + "\n" + notes
	}
	if notes == "" {
		return
	}

	sessionID := sess.ID
	subjectID := sess.Subject.SubjectID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		insights, err := s.extractor.Extract(ctx, notes)
		if err != nil {
			s.logger.Warn("note insight extraction failed",
				zap.Error(err),
				zap.String("session_id", sessionID),
			)
			return
		}
		s.logger.Info("note insights extracted",
			zap.String("session_id", sessionID),
			zap.String("subject_id", subjectID),
			zap.String("mood_hint", insights.MoodHint),
			zap.Strings("symptoms", insights.Symptoms),
		)
	}()
}

// persistDraft mirrors the in-memory session to scratch storage. Fire and
// forget: the write must never block a step transition. Writes for a subject
// run one at a time in issue order, so a stale snapshot is dropped instead
// of overwriting a newer one.
func (s *WizardService) persistDraft(sess *WizardSession) {
	snap := model.DraftSnapshot{
		SessionID: sess.ID,
		SubjectID: sess.Subject.SubjectID,
		Step:      sess.Step,
		Draft:     sess.Draft,
		Results:   cloneResults(sess.Results),
		SavedAt:   time.Now(),
	}

	w, seq := s.issueDraftSeq(snap.SubjectID)
	go func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if seq <= w.applied {
			// A newer snapshot or the post-submission cleanup already landed.
			return
		}
		w.applied = seq

		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		defer cancel()

		if err := s.drafts.Save(ctx, snap.SubjectID, snap); err != nil {
			s.logger.Error("failed to mirror draft to scratch storage",
				zap.Error(err),
				zap.String("subject_id", snap.SubjectID),
				zap.String("step", string(snap.Step)),
			)
		}
	}()
}

// clearDraft removes the persisted draft, waiting out any in-flight mirror
// write and marking earlier pending writes stale so the draft cannot
// reappear after it has been cleared.
func (s *WizardService) clearDraft(ctx context.Context, subjectID string) error {
	w, seq := s.issueDraftSeq(subjectID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if seq > w.applied {
		w.applied = seq
	}
	return s.drafts.Clear(ctx, subjectID)
}

// issueDraftSeq hands out the next write sequence number for a subject
func (s *WizardService) issueDraftSeq(subjectID string) (*draftWriter, uint64) {
	s.draftMu.Lock()
	defer s.draftMu.Unlock()
	w, ok := s.writers[subjectID]
	if !ok {
		w = &draftWriter{}
		s.writers[subjectID] = w
	}
	w.issued++
	return w, w.issued
}

func cloneResults(in map[model.VitalType]model.ValidationResult) map[model.VitalType]model.ValidationResult {
	out := make(map[model.VitalType]model.ValidationResult, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// criticalTrigger picks the critical classification that triggers an
// escalation, preferring the step-order earliest critical result
func criticalTrigger(sess *WizardSession) (model.VitalType, string, string, bool) {
	for _, step := range model.WizardStepOrder {
		vitalType, ok := model.VitalStepType(step)
		if !ok {
			continue
		}
		res, ok := sess.Results[vitalType]
		if !ok || res.Severity != model.SeverityCritical {
			continue
		}
		return vitalType, readingValue(sess.Draft, vitalType), res.Guidance, true
	}
	return "", "", "", false
}

// draftReadings renders the draft's filled slots as display strings for the
// alert payload
func draftReadings(draft model.VitalSubmissionDraft) map[string]string {
	readings := make(map[string]string)
	for _, t := range draft.LoggedTypes() {
		readings[string(t)] = readingValue(draft, t)
	}
	return readings
}

func readingValue(draft model.VitalSubmissionDraft, t model.VitalType) string {
	switch t {
	case model.VitalTypeBloodPressure:
		if draft.BloodPressure != nil {
			return fmt.Sprintf("%d/%d %s", draft.BloodPressure.Systolic, draft.BloodPressure.Diastolic, t.Unit())
		}
	case model.VitalTypeTemperature:
		if draft.Temperature != nil {
			return fmt.Sprintf("%.1f %s", *draft.Temperature, t.Unit())
		}
	case model.VitalTypeHeartRate:
		if draft.HeartRate != nil {
			return strconv.Itoa(*draft.HeartRate) + " " + t.Unit()
		}
	case model.VitalTypeOxygenSaturation:
		if draft.Oxygen != nil {
			return fmt.Sprintf("%.0f%%, pulse %d bpm", draft.Oxygen.SpO2, draft.Oxygen.PulseRate)
		}
	case model.VitalTypeBloodSugar:
		if draft.BloodSugar != nil {
			return fmt.Sprintf("%.0f %s", *draft.BloodSugar, t.Unit())
		}
	}
	return ""
}
