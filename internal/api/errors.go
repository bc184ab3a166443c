package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/forecast"
	"github.com/orion-triage-server/internal/middleware"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code              string    `json:"code"`
	Message           string    `json:"message"`
	Details           string    `json:"details,omitempty"`
	Field             string    `json:"field,omitempty"`
	AvailableSymptoms []string  `json:"available_symptoms,omitempty"`
	CorrelationID     string    `json:"correlation_id,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// respondError maps pipeline errors to status codes. Internal failures are
// logged and reported without their cause.
func (s *Server) respondError(c *gin.Context, err error) {
	resp := ErrorResponse{
		CorrelationID: c.GetString(middleware.CorrelationKey),
		Timestamp:     s.now().UTC(),
	}

	var status int
	var vErr *domain.ValidationError
	var tErr *domain.TriageError

	switch {
	case errors.As(err, &vErr):
		status = http.StatusBadRequest
		resp.Code = domain.ErrCodeInvalidInput
		resp.Message = vErr.Message
		resp.Field = vErr.Field
	case errors.Is(err, forecast.ErrNoTrainingData), errors.Is(err, forecast.ErrInvalidTrainingData):
		status = http.StatusBadRequest
		resp.Code = domain.ErrCodeInvalidInput
		resp.Message = err.Error()
	case errors.Is(err, domain.ErrUnknownSymptom):
		status = http.StatusBadRequest
		resp.Code = domain.ErrCodeUnknownSymptom
		resp.AvailableSymptoms = s.services.Orchestrator.Classifier().Symptoms()
	case errors.Is(err, domain.ErrNoSymptomDetected):
		status = http.StatusUnprocessableEntity
		resp.Code = domain.ErrCodeNoSymptomDetected
	case errors.Is(err, domain.ErrEligibilityDenied):
		status = http.StatusForbidden
		resp.Code = domain.ErrCodeEligibilityDenied
	default:
		s.logger.WithError(err).WithField("correlation_id", resp.CorrelationID).Error("Request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Code:          domain.ErrCodeInternalServer,
			Message:       "internal server error",
			CorrelationID: resp.CorrelationID,
			Timestamp:     resp.Timestamp,
		})
		return
	}

	if errors.As(err, &tErr) {
		resp.Message = tErr.Message
		resp.Details = tErr.Details
	}

	c.AbortWithStatusJSON(status, resp)
}

func invalidInput(field, message string, value interface{}) error {
	return domain.NewValidationError(field, message, value)
}
