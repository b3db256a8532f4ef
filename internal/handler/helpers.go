package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/trimtrack/vitals-backend/internal/service"
	"github.com/trimtrack/vitals-backend/pkg/api"
)

// stringPtr creates a pointer to a string
func stringPtr(s string) *string {
	return &s
}

// sessionState converts a live session to its wire representation
func sessionState(sess *service.WizardSession) api.SessionState {
	return api.SessionState{
		SessionID: sess.ID,
		SubjectID: sess.Subject.SubjectID,
		Step:      sess.Step,
		Draft:     sess.Draft,
		Results:   sess.Results,
		Anomalies: sess.Anomalies,
		Submitted: sess.Submitted,
		StartedAt: sess.StartedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}

// errorStatus maps service-layer sentinel errors to HTTP status and error code.
// Unknown errors fall through to 500.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoActiveSession),
		errors.Is(err, service.ErrDraftNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrStepNotFilled),
		errors.Is(err, service.ErrNotesRequired),
		errors.Is(err, service.ErrNoCriticalReading):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, service.ErrAlreadySubmitted),
		errors.Is(err, service.ErrSubmissionInFlight):
		return http.StatusConflict, "ALREADY_SUBMITTED"
	case errors.Is(err, service.ErrImplausibleValue),
		errors.Is(err, service.ErrLikelySwappedPair),
		errors.Is(err, service.ErrIncompletePair):
		return http.StatusUnprocessableEntity, "IMPLAUSIBLE_READING"
	case errors.Is(err, service.ErrNoRecipients):
		// Distinct from a delivery failure: the caller should fall back to
		// contacting someone manually.
		return http.StatusBadGateway, "NO_RECIPIENTS"
	case errors.Is(err, service.ErrDispatchFailed):
		return http.StatusBadGateway, "DISPATCH_FAILED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// respondError writes the uniform error body for a service-layer error
func respondError(c *gin.Context, err error, message string) {
	status, code := errorStatus(err)
	c.JSON(status, api.ErrorResponse{
		Code:    code,
		Message: message,
		Details: stringPtr(err.Error()),
	})
}
