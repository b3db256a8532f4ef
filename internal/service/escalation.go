package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trimtrack/vitals-backend/pkg/model"
	"go.uber.org/zap"
)

var (
	// ErrNoRecipients reports that no caregiver or guardian is configured to
	// receive alerts for the subject. Reported distinctly from delivery
	// failure so the UI can direct the user to a manual contact method.
	ErrNoRecipients = errors.New("no alert recipients are configured for this subject")

	// ErrDispatchFailed reports that the notification collaborator rejected
	// or failed to deliver the alert
	ErrDispatchFailed = errors.New("critical alert could not be delivered")
)

// Guidance phrases that mark a classification as needing emergency services
var emergencyPhrases = []string{
	"emergency services",
	"call 911",
	"emergency room",
}

// Notifier delivers a composed critical alert and reports per-channel counts.
// Implemented by the surrounding application's push/email/SMS dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, alert model.CriticalAlert) (model.AlertDispatchResult, error)
}

// EscalationService composes and dispatches critical-value alerts to
// caregivers/guardians. Invoked only on explicit user action after a
// critical classification.
type EscalationService struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewEscalationService creates an EscalationService
func NewEscalationService(notifier Notifier, logger *zap.Logger) *EscalationService {
	return &EscalationService{
		notifier: notifier,
		logger:   logger,
	}
}

// RequiresEmergencyServices derives the emergency flag from the guidance
// text attached to the triggering classification
func RequiresEmergencyServices(guidance string) bool {
	lower := strings.ToLower(guidance)
	for _, phrase := range emergencyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// SendCriticalAlert builds the alert payload and hands it to the notifier.
// Delivery failure and zero configured recipients are distinct errors.
func (s *EscalationService) SendCriticalAlert(
	ctx context.Context,
	subjectID string,
	readings map[string]string,
	triggeringType model.VitalType,
	triggeringValue string,
	guidance string,
	sender string,
) (model.AlertDispatchResult, error) {
	alert := model.CriticalAlert{
		ID:                        uuid.New().String(),
		SubjectID:                 subjectID,
		Sender:                    sender,
		TriggeringType:            triggeringType,
		TriggeringValue:           triggeringValue,
		Guidance:                  guidance,
		RequiresEmergencyServices: RequiresEmergencyServices(guidance),
		Readings:                  readings,
		CreatedAt:                 time.Now(),
	}

	s.logger.Info("dispatching critical alert",
		zap.String("alert_id", alert.ID),
		zap.String("subject_id", subjectID),
		zap.String("triggering_type", string(triggeringType)),
		zap.String("triggering_value", triggeringValue),
		zap.Bool("requires_emergency_services", alert.RequiresEmergencyServices),
	)

	result, err := s.notifier.Dispatch(ctx, alert)
	if err != nil {
		s.logger.Error("critical alert dispatch failed",
			zap.Error(err),
			zap.String("alert_id", alert.ID),
			zap.String("subject_id", subjectID),
		)
		return model.AlertDispatchResult{}, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	if result.NotificationsSent == 0 {
		s.logger.Warn("critical alert had no recipients",
			zap.String("alert_id", alert.ID),
			zap.String("subject_id", subjectID),
		)
		return result, ErrNoRecipients
	}

	result.Success = true
	s.logger.Info("critical alert dispatched",
		zap.String("alert_id", alert.ID),
		zap.String("subject_id", subjectID),
		zap.Int("notifications_sent", result.NotificationsSent),
	)

	return result, nil
}
