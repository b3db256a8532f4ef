package integration_tests

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trimtrack/vitals-backend/internal/config"
	"github.com/trimtrack/vitals-backend/internal/handler"
	"github.com/trimtrack/vitals-backend/internal/repository"
	"github.com/trimtrack/vitals-backend/internal/service"
	"github.com/trimtrack/vitals-backend/pkg/api"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

// In-memory collaborators standing in for the postgres-backed repositories
// and the notification dispatcher.

type memorySubmitter struct {
	mu          sync.Mutex
	submissions []model.VitalSubmissionDraft
	prefs       map[string]model.SchedulePreferences
}

func newMemorySubmitter() *memorySubmitter {
	return &memorySubmitter{prefs: make(map[string]model.SchedulePreferences)}
}

func (m *memorySubmitter) Submit(ctx context.Context, draft model.VitalSubmissionDraft) (*model.SavedVitals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, draft)
	return &model.SavedVitals{
		ID:            uuid.New().String(),
		SubjectID:     draft.SubjectID,
		BloodPressure: draft.BloodPressure,
		Temperature:   draft.Temperature,
		HeartRate:     draft.HeartRate,
		Oxygen:        draft.Oxygen,
		BloodSugar:    draft.BloodSugar,
		Mood:          draft.Mood,
		SubmittedAt:   time.Now(),
	}, nil
}

func (m *memorySubmitter) SaveSchedulePreferences(ctx context.Context, subjectID string, prefs model.SchedulePreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[subjectID] = prefs
	return nil
}

type memoryHistory struct {
	readings map[model.VitalType][]model.VitalReading
}

func (m *memoryHistory) RecentReadings(ctx context.Context, subjectID string, vitalType model.VitalType, limit int) ([]model.VitalReading, error) {
	return m.readings[vitalType], nil
}

type memoryNotifier struct {
	mu          sync.Mutex
	alerts      []model.CriticalAlert
	recipients  int
	dispatchErr error
}

func (m *memoryNotifier) Dispatch(ctx context.Context, alert model.CriticalAlert) (model.AlertDispatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatchErr != nil {
		return model.AlertDispatchResult{}, m.dispatchErr
	}
	m.alerts = append(m.alerts, alert)
	return model.AlertDispatchResult{
		AlertID:           alert.ID,
		NotificationsSent: m.recipients,
		PerChannel:        map[string]int{"push": m.recipients},
	}, nil
}

type fixedTranscriber struct {
	text string
}

func (f *fixedTranscriber) StreamAudioToText(ctx context.Context, audio io.Reader) (string, error) {
	io.Copy(io.Discard, audio)
	return f.text, nil
}

type fixedSpeaker struct{}

func (f *fixedSpeaker) SpeakGuidance(ctx context.Context, text string) ([]byte, error) {
	return []byte("mpeg-audio"), nil
}

type wizardAPI struct {
	router    *gin.Engine
	drafts    *repository.DraftRepository
	submitter *memorySubmitter
	history   *memoryHistory
	notifier  *memoryNotifier
}

func setupWizardAPI(t *testing.T) *wizardAPI {
	t.Helper()
	logger := zap.NewNop()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	drafts := repository.NewDraftRepository(redisClient, nil, time.Hour, logger)

	submitter := newMemorySubmitter()
	history := &memoryHistory{readings: make(map[model.VitalType][]model.VitalReading)}
	notifier := &memoryNotifier{recipients: 2}

	wizard := service.NewWizard(service.NewValidator(config.DefaultThresholds()))
	svc := service.NewWizardService(
		wizard,
		drafts,
		submitter,
		history,
		service.NewEscalationService(notifier, logger),
		nil,
		nil,
		logger,
		time.Second,
		nil,
	)
	dictation := service.NewDictationService(&fixedTranscriber{text: "felt dizzy after lunch"}, nil, 0, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	wizardHandler := handler.NewWizardHandler(svc, dictation, &fixedSpeaker{}, logger)
	healthHandler := handler.NewHealthHandler(nil, nil, logger)
	handler.RegisterRoutes(router, wizardHandler, healthHandler)

	return &wizardAPI{
		router:    router,
		drafts:    drafts,
		submitter: submitter,
		history:   history,
		notifier:  notifier,
	}
}

func (a *wizardAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func subjectPath(subjectID, op string) string {
	return fmt.Sprintf("/api/v1/wizard/%s/%s", subjectID, op)
}

func TestWizardFlow_CompleteSession(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-1"

	// Start
	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{
		SubjectID: subjectID,
		Age:       72,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var started api.StartSessionResponse
	decodeJSON(t, w, &started)
	assert.Equal(t, model.StepIntro, started.Session.Step)
	assert.Nil(t, started.PendingDraft)

	// Intro -> blood pressure
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Advancing without a reading is rejected
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	sys, dia := 118, 76
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeBloodPressure, Systolic: &sys, Diastolic: &dia,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reading api.ReadingResponse
	decodeJSON(t, w, &reading)
	assert.Equal(t, model.SeverityNormal, reading.Result.Severity)

	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Temperature is skipped, heart rate recorded, the rest skipped
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	hr := 68.0
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeHeartRate, Value: &hr,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var state api.SessionState
	decodeJSON(t, w, &state)
	require.Equal(t, model.StepReview, state.Step)

	// All readings normal: review passes without notes
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &state)
	require.Equal(t, model.StepMood, state.Step)

	// Mood entry triggers submission
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "submit"), api.SubmitRequest{
		Mood: model.MoodGood, MoodNotes: "cheerful after the walk",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var submitted api.SubmitResponse
	decodeJSON(t, w, &submitted)
	require.NotNil(t, submitted.Saved)
	assert.Equal(t, model.StepSchedule, submitted.Step)

	require.Len(t, a.submitter.submissions, 1)
	bundle := a.submitter.submissions[0]
	require.NotNil(t, bundle.BloodPressure)
	assert.Equal(t, 118, bundle.BloodPressure.Systolic)
	assert.Nil(t, bundle.Temperature, "skipped vitals stay absent")
	require.NotNil(t, bundle.Mood)
	assert.Equal(t, model.MoodGood, *bundle.Mood)

	// Reminder schedule
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "schedule"), api.ScheduleRequest{
		VitalTypes: []model.VitalType{model.VitalTypeBloodPressure},
		Frequency:  model.Frequency2x,
		Channels:   model.NotificationChannels{App: true},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var scheduled api.ScheduleResponse
	decodeJSON(t, w, &scheduled)
	assert.Equal(t, []string{"08:00", "20:00"}, scheduled.Preferences.Times)
	assert.Equal(t, model.StepConfirmation, scheduled.Step)

	prefs, ok := a.submitter.prefs[subjectID]
	require.True(t, ok)
	assert.Equal(t, model.Frequency2x, prefs.Frequency)

	// Mutations after submission are rejected
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeHeartRate, Value: &hr,
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestWizardFlow_RejectedReadings(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-2"

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Swapped pair
	sys, dia := 80, 120
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeBloodPressure, Systolic: &sys, Diastolic: &dia,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var errResp api.ErrorResponse
	decodeJSON(t, w, &errResp)
	assert.Equal(t, "IMPLAUSIBLE_READING", errResp.Code)

	// Implausible magnitude
	sys, dia = 320, 80
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeBloodPressure, Systolic: &sys, Diastolic: &dia,
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// A rejected reading leaves the slot empty: next is still refused
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	// Unknown subject
	w = a.do(t, http.MethodPost, subjectPath("nobody", "next"), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWizardFlow_ReviewNotesGate(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-3"

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Warning-range blood pressure
	sys, dia := 150, 95
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeBloodPressure, Systolic: &sys, Diastolic: &dia,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var reading api.ReadingResponse
	decodeJSON(t, w, &reading)
	assert.Equal(t, model.SeverityWarning, reading.Result.Severity)
	assert.True(t, reading.Result.RequiresConfirmation)

	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	for i := 0; i < 4; i++ {
		w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	var state api.SessionState
	decodeJSON(t, w, &state)
	require.Equal(t, model.StepReview, state.Step)

	// Leaving review without notes is blocked
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = a.do(t, http.MethodPut, subjectPath(subjectID, "review/notes"), api.ReviewNotesRequest{
		Notes: "Skipped morning medication; will re-measure tonight.",
	})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &state)
	assert.Equal(t, model.StepMood, state.Step)
}

func TestWizardFlow_DraftResume(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-4"
	ctx := context.Background()

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	sys, dia := 118, 76
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeBloodPressure, Systolic: &sys, Diastolic: &dia,
	})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Draft mirroring is asynchronous
	require.Eventually(t, func() bool {
		snap, err := a.drafts.Load(ctx, subjectID)
		return err == nil && snap != nil && snap.Step == model.StepTemperature
	}, 2*time.Second, 10*time.Millisecond)

	// A new start (e.g. after an app restart) offers the saved draft
	w = a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)

	var started api.StartSessionResponse
	decodeJSON(t, w, &started)
	require.NotNil(t, started.PendingDraft)
	assert.Equal(t, model.StepTemperature, started.PendingDraft.Step)
	assert.Equal(t, model.StepIntro, started.Session.Step)

	// Accept the offer
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "resume"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var state api.SessionState
	decodeJSON(t, w, &state)
	assert.Equal(t, model.StepTemperature, state.Step)
	require.NotNil(t, state.Draft.BloodPressure)
	assert.Equal(t, 118, state.Draft.BloodPressure.Systolic)
}

func TestWizardFlow_DiscardDraft(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-5"
	ctx := context.Background()

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		snap, err := a.drafts.Load(ctx, subjectID)
		return err == nil && snap != nil
	}, 2*time.Second, 10*time.Millisecond)

	w = a.do(t, http.MethodDelete, subjectPath(subjectID, "draft"), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	snap, err := a.drafts.Load(ctx, subjectID)
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestWizardFlow_Escalation(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-6"

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 72})
	require.Equal(t, http.StatusOK, w.Code)

	// Escalation without a critical reading is refused
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "escalate"), api.EscalateRequest{Sender: "caregiver-app"})
	require.Equal(t, http.StatusConflict, w.Code)

	// Walk to the oxygen step and record a critical SpO2
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	for i := 0; i < 3; i++ {
		w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	spo2 := 83.0
	pulse := 110
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeOxygenSaturation, SpO2: &spo2, PulseRate: &pulse,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reading api.ReadingResponse
	decodeJSON(t, w, &reading)
	require.Equal(t, model.SeverityCritical, reading.Result.Severity)

	w = a.do(t, http.MethodPost, subjectPath(subjectID, "escalate"), api.EscalateRequest{Sender: "caregiver-app"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var escalated api.EscalateResponse
	decodeJSON(t, w, &escalated)
	assert.True(t, escalated.Result.Success)
	assert.Equal(t, 2, escalated.Result.NotificationsSent)

	require.Len(t, a.notifier.alerts, 1)
	alert := a.notifier.alerts[0]
	assert.Equal(t, model.VitalTypeOxygenSaturation, alert.TriggeringType)
	assert.True(t, alert.RequiresEmergencyServices)
	assert.Equal(t, "caregiver-app", alert.Sender)
}

func TestWizardFlow_EscalationFailuresAreDistinct(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-8"

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 72})
	require.Equal(t, http.StatusOK, w.Code)

	// Walk to the oxygen step and record a critical SpO2
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "next"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	for i := 0; i < 3; i++ {
		w = a.do(t, http.MethodPost, subjectPath(subjectID, "skip"), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	spo2 := 83.0
	pulse := 110
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "reading"), api.ReadingRequest{
		Type: model.VitalTypeOxygenSaturation, SpO2: &spo2, PulseRate: &pulse,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// No configured recipients: the caller must be told to fall back to
	// contacting someone manually, not that delivery failed
	a.notifier.recipients = 0
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "escalate"), api.EscalateRequest{Sender: "caregiver-app"})
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	var errResp api.ErrorResponse
	decodeJSON(t, w, &errResp)
	assert.Equal(t, "NO_RECIPIENTS", errResp.Code)

	// A dispatcher outage is a delivery failure, not an internal error
	a.notifier.recipients = 2
	a.notifier.dispatchErr = errors.New("push gateway timeout")
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "escalate"), api.EscalateRequest{Sender: "caregiver-app"})
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	errResp = api.ErrorResponse{}
	decodeJSON(t, w, &errResp)
	assert.Equal(t, "DISPATCH_FAILED", errResp.Code)

	// Once delivery recovers the same session escalates cleanly
	a.notifier.dispatchErr = nil
	w = a.do(t, http.MethodPost, subjectPath(subjectID, "escalate"), api.EscalateRequest{Sender: "caregiver-app"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWizardFlow_Dictation(t *testing.T) {
	a := setupWizardAPI(t)
	subjectID := "family-member-7"

	w := a.do(t, http.MethodPost, "/api/v1/wizard/start", api.StartSessionRequest{SubjectID: subjectID, Age: 45})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodPost, subjectPath(subjectID, "dictation"), bytes.NewReader(make([]byte, 4096)))
	req.Header.Set("Content-Type", "audio/wav")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var transcription api.TranscriptionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &transcription))
	assert.Equal(t, "felt dizzy after lunch", transcription.Transcription)
}

func TestWizardFlow_GuidancePlayback(t *testing.T) {
	a := setupWizardAPI(t)

	w := a.do(t, http.MethodPost, "/api/v1/wizard/guidance/speak", api.SpeakGuidanceRequest{
		Text: "Wrap the cuff snugly around the upper arm.",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "mpeg-audio", w.Body.String())
}
