package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/trimtrack/vitals-backend/internal/service"
	"github.com/trimtrack/vitals-backend/pkg/api"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

// GuidanceSpeaker synthesizes guidance text to audio for playback
type GuidanceSpeaker interface {
	SpeakGuidance(ctx context.Context, text string) ([]byte, error)
}

// WizardHandler implements the vitals wizard API endpoints
type WizardHandler struct {
	service   *service.WizardService
	dictation *service.DictationService
	speaker   GuidanceSpeaker
	logger    *zap.Logger

	mu    sync.Mutex
	tasks map[string]*service.DictationTask // active dictation per subject
}

// NewWizardHandler creates a new WizardHandler. dictation and speaker may be
// nil when voice features are not configured.
func NewWizardHandler(svc *service.WizardService, dictation *service.DictationService, speaker GuidanceSpeaker, logger *zap.Logger) *WizardHandler {
	return &WizardHandler{
		service:   svc,
		dictation: dictation,
		speaker:   speaker,
		logger:    logger,
		tasks:     make(map[string]*service.DictationTask),
	}
}

// PostWizardStart opens the wizard for a subject
func (h *WizardHandler) PostWizardStart(c *gin.Context) {
	var req api.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	subject := model.SubjectContext{
		SubjectID:  req.SubjectID,
		Age:        req.Age,
		Conditions: req.Conditions,
	}

	result, err := h.service.StartSession(c.Request.Context(), subject)
	if err != nil {
		h.logger.Error("failed to start wizard session",
			zap.Error(err),
			zap.String("subject_id", req.SubjectID),
		)
		respondError(c, err, "Failed to start wizard session")
		return
	}

	c.JSON(http.StatusOK, api.StartSessionResponse{
		Session:      sessionState(result.Session),
		PendingDraft: result.PendingDraft,
	})
}

// PostWizardResume restores the saved draft for a subject
func (h *WizardHandler) PostWizardResume(c *gin.Context) {
	subjectID := c.Param("subjectId")

	sess, err := h.service.ResumeSession(c.Request.Context(), subjectID)
	if err != nil {
		h.logger.Error("failed to resume wizard session",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		respondError(c, err, "Failed to resume wizard session")
		return
	}

	c.JSON(http.StatusOK, sessionState(sess))
}

// DeleteWizardDraft declines a resume offer and clears the saved draft
func (h *WizardHandler) DeleteWizardDraft(c *gin.Context) {
	subjectID := c.Param("subjectId")

	if err := h.service.DiscardDraft(c.Request.Context(), subjectID); err != nil {
		respondError(c, err, "Failed to discard saved draft")
		return
	}

	c.Status(http.StatusNoContent)
}

// GetWizardSession returns the current session state
func (h *WizardHandler) GetWizardSession(c *gin.Context) {
	subjectID := c.Param("subjectId")

	sess, err := h.service.Session(subjectID)
	if err != nil {
		respondError(c, err, "No active wizard session")
		return
	}

	c.JSON(http.StatusOK, sessionState(sess))
}

// PostWizardReading validates and records a reading for the current step
func (h *WizardHandler) PostWizardReading(c *gin.Context) {
	subjectID := c.Param("subjectId")

	var req api.ReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	reading := model.VitalReading{Type: req.Type}
	if req.Value != nil {
		reading.Value = *req.Value
	}
	if req.Systolic != nil {
		reading.Systolic = *req.Systolic
	}
	if req.Diastolic != nil {
		reading.Diastolic = *req.Diastolic
	}
	if req.SpO2 != nil {
		reading.SpO2 = *req.SpO2
	}
	if req.PulseRate != nil {
		reading.PulseRate = *req.PulseRate
	}

	result, anomalies, err := h.service.RecordReading(c.Request.Context(), subjectID, reading)
	if err != nil {
		h.logger.Warn("reading rejected",
			zap.Error(err),
			zap.String("subject_id", subjectID),
			zap.String("vital_type", string(req.Type)),
		)
		respondError(c, err, "Reading rejected")
		return
	}

	sess, err := h.service.Session(subjectID)
	if err != nil {
		respondError(c, err, "No active wizard session")
		return
	}

	c.JSON(http.StatusOK, api.ReadingResponse{
		Result:    result,
		Anomalies: anomalies,
		Step:      sess.Step,
	})
}

// PostWizardNext advances the session one step
func (h *WizardHandler) PostWizardNext(c *gin.Context) {
	h.transition(c, h.service.Next, "Failed to advance")
}

// PostWizardSkip clears the current step's data and advances
func (h *WizardHandler) PostWizardSkip(c *gin.Context) {
	h.transition(c, h.service.Skip, "Failed to skip step")
}

// PostWizardBack moves the session one step back
func (h *WizardHandler) PostWizardBack(c *gin.Context) {
	h.transition(c, h.service.Back, "Failed to go back")
}

func (h *WizardHandler) transition(c *gin.Context, op func(context.Context, string) (*service.WizardSession, error), message string) {
	subjectID := c.Param("subjectId")

	sess, err := op(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err, message)
		return
	}

	c.JSON(http.StatusOK, sessionState(sess))
}

// PutWizardReviewNotes stores explanatory notes on the review step
func (h *WizardHandler) PutWizardReviewNotes(c *gin.Context) {
	subjectID := c.Param("subjectId")

	var req api.ReviewNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.service.SetReviewNotes(c.Request.Context(), subjectID, req.Notes); err != nil {
		respondError(c, err, "Failed to store review notes")
		return
	}

	c.Status(http.StatusNoContent)
}

// PostWizardSubmit records the mood entry and triggers submission
func (h *WizardHandler) PostWizardSubmit(c *gin.Context) {
	subjectID := c.Param("subjectId")

	var req api.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	checks, saved, err := h.service.SubmitSession(c.Request.Context(), subjectID, req.Mood, req.MoodNotes)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionBlocked) {
			sess, sessErr := h.service.Session(subjectID)
			step := model.StepReview
			if sessErr == nil {
				step = sess.Step
			}
			c.JSON(http.StatusUnprocessableEntity, api.SubmitResponse{
				Checks: checks,
				Step:   step,
			})
			return
		}
		respondError(c, err, "Failed to submit vitals")
		return
	}

	sess, err := h.service.Session(subjectID)
	if err != nil {
		respondError(c, err, "No active wizard session")
		return
	}

	c.JSON(http.StatusOK, api.SubmitResponse{
		Checks: checks,
		Saved:  saved,
		Step:   sess.Step,
	})
}

// PostWizardSchedule configures reminders on the schedule step
func (h *WizardHandler) PostWizardSchedule(c *gin.Context) {
	subjectID := c.Param("subjectId")

	var req api.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	sel := service.ScheduleSelections{
		Enabled:    true,
		VitalTypes: req.VitalTypes,
		Frequency:  req.Frequency,
		Times:      req.Times,
		Channels:   req.Channels,
	}

	prefs, err := h.service.ApplySchedule(c.Request.Context(), subjectID, sel)
	if err != nil {
		respondError(c, err, "Failed to configure reminder schedule")
		return
	}

	sess, err := h.service.Session(subjectID)
	if err != nil {
		respondError(c, err, "No active wizard session")
		return
	}

	c.JSON(http.StatusOK, api.ScheduleResponse{
		Preferences: prefs,
		Step:        sess.Step,
	})
}

// PostWizardScheduleSkip declines reminders and moves to confirmation
func (h *WizardHandler) PostWizardScheduleSkip(c *gin.Context) {
	subjectID := c.Param("subjectId")

	sess, err := h.service.SkipSchedule(c.Request.Context(), subjectID)
	if err != nil {
		respondError(c, err, "Failed to skip reminder schedule")
		return
	}

	c.JSON(http.StatusOK, sessionState(sess))
}

// PostWizardEscalate dispatches a critical alert on explicit user action
func (h *WizardHandler) PostWizardEscalate(c *gin.Context) {
	subjectID := c.Param("subjectId")

	var req api.EscalateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	result, err := h.service.Escalate(c.Request.Context(), subjectID, req.Sender)
	if err != nil {
		h.logger.Error("escalation failed",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		respondError(c, err, "Failed to dispatch critical alert")
		return
	}

	c.JSON(http.StatusOK, api.EscalateResponse{Result: result})
}

// requestAudioSource adapts the request body to the dictation permission
// model: the body is the granted audio stream.
type requestAudioSource struct {
	body io.ReadCloser
}

func (s requestAudioSource) Acquire(ctx context.Context) (io.ReadCloser, error) {
	return s.body, nil
}

// PostWizardDictation transcribes dictated audio for the notes field. The
// request body carries WAV audio; the response carries the transcript once
// the stream ends or the task is canceled.
func (h *WizardHandler) PostWizardDictation(c *gin.Context) {
	subjectID := c.Param("subjectId")

	if h.dictation == nil {
		c.JSON(http.StatusNotImplemented, api.ErrorResponse{
			Code:    "NOT_CONFIGURED",
			Message: "Voice dictation is not configured",
		})
		return
	}

	sess, err := h.service.Session(subjectID)
	if err != nil {
		respondError(c, err, "No active wizard session")
		return
	}

	task, err := h.dictation.Start(c.Request.Context(), sess.ID, requestAudioSource{body: c.Request.Body})
	if err != nil {
		h.logger.Error("failed to start dictation",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "DICTATION_FAILED",
			Message: "Failed to start dictation",
			Details: stringPtr(err.Error()),
		})
		return
	}

	h.mu.Lock()
	h.tasks[subjectID] = task
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.tasks, subjectID)
		h.mu.Unlock()
	}()

	// Drain events until the task finishes; countdown and partial
	// transcripts are logged rather than streamed.
	for ev := range task.Events() {
		h.logger.Debug("dictation event",
			zap.String("subject_id", subjectID),
			zap.String("type", string(ev.Type)),
		)
	}
	task.Wait()

	if err := task.Err(); err != nil && !errors.Is(err, service.ErrDictationCanceled) {
		h.logger.Error("dictation failed",
			zap.Error(err),
			zap.String("subject_id", subjectID),
		)
		c.JSON(http.StatusBadGateway, api.ErrorResponse{
			Code:    "DICTATION_FAILED",
			Message: "Failed to transcribe audio",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, api.TranscriptionResponse{
		Transcription: task.Transcript(),
		AudioPath:     task.AudioPath(),
	})
}

// PostWizardDictationCancel cancels the subject's active dictation. Partial
// transcript captured so far is kept and returned by the dictation request.
func (h *WizardHandler) PostWizardDictationCancel(c *gin.Context) {
	subjectID := c.Param("subjectId")

	h.mu.Lock()
	task, ok := h.tasks[subjectID]
	h.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "No active dictation for this subject",
		})
		return
	}

	task.Cancel()
	c.Status(http.StatusNoContent)
}

// PostWizardGuidanceSpeak synthesizes guidance text to audio
func (h *WizardHandler) PostWizardGuidanceSpeak(c *gin.Context) {
	if h.speaker == nil {
		c.JSON(http.StatusNotImplemented, api.ErrorResponse{
			Code:    "NOT_CONFIGURED",
			Message: "Guidance playback is not configured",
		})
		return
	}

	var req api.SpeakGuidanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	audio, err := h.speaker.SpeakGuidance(c.Request.Context(), req.Text)
	if err != nil {
		h.logger.Error("guidance synthesis failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, api.ErrorResponse{
			Code:    "SYNTHESIS_FAILED",
			Message: "Failed to synthesize guidance audio",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Data(http.StatusOK, "audio/mpeg", audio)
}
