package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxTrainingSize = 32 << 20
)

// PredictRequest asks for a forecast. A missing target time means now.
type PredictRequest struct {
	TargetTime *time.Time `json:"target_time"`
	domain.EnvironmentalFactors
}

// ActualRequest feeds an observed patient count back to the forecaster.
type ActualRequest struct {
	Timestamp *time.Time `json:"timestamp"`
	Count     *int       `json:"count"`
}

func (s *Server) handleHealth(c *gin.Context) {
	count, err := s.services.Decisions.Count(c.Request.Context())
	status := "healthy"
	if err != nil {
		status = "degraded"
		s.logger.WithError(err).Warn("Decision log unavailable during health check")
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"timestamp": s.now().UTC(),
		"version":   Version,
		"symptoms":  len(s.services.Orchestrator.Classifier().Symptoms()),
		"decisions": count,
	})
}

func (s *Server) handleListSymptoms(c *gin.Context) {
	symptoms := s.services.Orchestrator.Classifier().Symptoms()
	c.JSON(http.StatusOK, gin.H{
		"symptoms": symptoms,
		"count":    len(symptoms),
	})
}

func (s *Server) handleSymptomQuestions(c *gin.Context) {
	classifier := s.services.Orchestrator.Classifier()
	symptom := c.Param("symptom")

	protocol, err := classifier.Protocol(symptom)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symptom":         protocol.Symptom,
		"questions":       protocol.Questions,
		"recommendations": protocol.Recommendations,
	})
}

func (s *Server) handleTriage(c *gin.Context) {
	var input domain.PatientInput
	if err := c.ShouldBindJSON(&input); err != nil {
		s.respondError(c, invalidInput("body", "request body must be a JSON patient input", err.Error()))
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		s.respondError(c, invalidInput("text", "text is required", input.Text))
		return
	}

	record, err := s.services.Orchestrator.Process(c.Request.Context(), input)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListDecisions(c *gin.Context) {
	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil {
		s.respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	ctx := c.Request.Context()
	records, err := s.services.Decisions.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, err)
		return
	}
	total, err := s.services.Decisions.Count(ctx)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"decisions": records,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

func (s *Server) handleExportDecisions(c *gin.Context) {
	filename := fmt.Sprintf("decisions_%s.json", s.now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Status(http.StatusOK)

	if err := s.services.Decisions.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Decision export failed")
	}
}

func (s *Server) handleMonthlyReport(c *gin.Context) {
	month := s.now().UTC()
	if period := c.Query("month"); period != "" {
		parsed, err := decisionlog.ParsePeriod(period)
		if err != nil {
			s.respondError(c, err)
			return
		}
		month = parsed
	}

	records, err := s.services.Decisions.Snapshot(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	report := decisionlog.BuildMonthlyReport(decisionlog.FilterMonth(records, month))
	report.Period = month.Format("2006-01")
	c.JSON(http.StatusOK, report)
}

// handleTrain accepts the CSV either as a multipart "file" field or as the raw body.
func (s *Server) handleTrain(c *gin.Context) {
	var body io.Reader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			s.respondError(c, invalidInput("file", "a CSV file field named \"file\" is required", ""))
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.respondError(c, fmt.Errorf("opening upload: %w", err))
			return
		}
		defer f.Close()
		body = f
	} else {
		body = http.MaxBytesReader(c.Writer, c.Request.Body, maxTrainingSize)
	}

	result, err := s.services.Forecaster.Train(c.Request.Context(), body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handlePredict(c *gin.Context) {
	var req PredictRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, invalidInput("body", "request body must be a JSON prediction request", err.Error()))
			return
		}
	}

	target := s.now()
	if req.TargetTime != nil {
		target = *req.TargetTime
	}

	c.JSON(http.StatusOK, s.services.Forecaster.Predict(target, req.EnvironmentalFactors))
}

func (s *Server) handleRecordActual(c *gin.Context) {
	var req ActualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, invalidInput("body", "request body must be a JSON observation", err.Error()))
		return
	}
	if req.Count == nil || *req.Count < 0 {
		s.respondError(c, invalidInput("count", "count must be a non-negative integer", req.Count))
		return
	}

	at := s.now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	obs := s.services.Forecaster.RecordActual(c.Request.Context(), at, *req.Count)
	c.JSON(http.StatusOK, gin.H{
		"status":       "recorded",
		"observation":  obs,
		"drift_report": s.services.Forecaster.DriftReport(),
	})
}

func (s *Server) handleDrift(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Forecaster.DriftReport())
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.services.Forecaster.Performance())
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, invalidInput(name, name+" must be a non-negative integer", raw)
	}
	return v, nil
}
