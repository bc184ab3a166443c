package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
)

// AnswerParam is one answered question. Order is preserved because rule
// conditions are evaluated against the first matching answer.
type AnswerParam struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// TriageParams defines parameters for the triage tool
type TriageParams struct {
	Text       string             `json:"text"`
	Answers    []AnswerParam      `json:"answers,omitempty"`
	PatientID  string             `json:"patient_id,omitempty"`
	Biometrics *domain.Biometrics `json:"biometrics,omitempty"`
}

// ListSymptomsParams takes no arguments
type ListSymptomsParams struct{}

// SymptomQuestionsParams defines parameters for the symptom_questions tool
type SymptomQuestionsParams struct {
	Symptom string `json:"symptom"`
}

// ForecastPredictParams defines parameters for the forecast_predict tool.
// An empty target time means now.
type ForecastPredictParams struct {
	TargetTime string `json:"target_time,omitempty"`
	Weather    string `json:"weather,omitempty"`
	Traffic    string `json:"traffic,omitempty"`
	Event      string `json:"event,omitempty"`
}

// DriftReportParams takes no arguments
type DriftReportParams struct{}

// MonthlyReportParams defines parameters for the monthly_report tool.
// An empty month means the current UTC month.
type MonthlyReportParams struct {
	Month string `json:"month,omitempty"`
}

func (s *Server) handleTriage(ctx context.Context, req *mcp.CallToolRequest, params TriageParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolTriage).Info("Tool invoked")

	if strings.TrimSpace(params.Text) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("text is required")), nil, nil
	}

	answers := make(domain.Answers, 0, len(params.Answers))
	for _, a := range params.Answers {
		answers = append(answers, domain.Answer{Key: a.Question, Value: a.Answer})
	}

	record, err := s.services.Orchestrator.Process(ctx, domain.PatientInput{
		Text:       params.Text,
		Answers:    answers,
		Biometrics: params.Biometrics,
		PatientID:  params.PatientID,
	})
	if err != nil {
		return s.createErrorResult("Triage failed", err), nil, nil
	}

	return s.createJSONResult(
		fmt.Sprintf("Triage completed for %q: %s (%s)", record.Symptom, record.FinalCode, record.Disposition),
		record,
	)
}

func (s *Server) handleListSymptoms(ctx context.Context, req *mcp.CallToolRequest, params ListSymptomsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListSymptoms).Info("Tool invoked")

	symptoms := s.services.Orchestrator.Classifier().Symptoms()
	return s.createJSONResult(fmt.Sprintf("%d symptoms available", len(symptoms)), map[string]any{
		"symptoms": symptoms,
		"count":    len(symptoms),
	})
}

func (s *Server) handleSymptomQuestions(ctx context.Context, req *mcp.CallToolRequest, params SymptomQuestionsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolSymptomQuestions).Info("Tool invoked")

	if strings.TrimSpace(params.Symptom) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("symptom is required")), nil, nil
	}

	protocol, err := s.services.Orchestrator.Classifier().Protocol(params.Symptom)
	if err != nil {
		return s.createErrorResult("Unknown symptom", err), nil, nil
	}

	return s.createJSONResult(fmt.Sprintf("%d mandatory questions for %q", len(protocol.Questions), protocol.Symptom), map[string]any{
		"symptom":         protocol.Symptom,
		"questions":       protocol.Questions,
		"recommendations": protocol.Recommendations,
	})
}

func (s *Server) handleForecastPredict(ctx context.Context, req *mcp.CallToolRequest, params ForecastPredictParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolForecastPredict).Info("Tool invoked")

	target := s.now()
	if params.TargetTime != "" {
		parsed, err := time.Parse(time.RFC3339, params.TargetTime)
		if err != nil {
			return s.createErrorResult("Invalid target_time", fmt.Errorf("target_time must be RFC 3339: %w", err)), nil, nil
		}
		target = parsed
	}

	prediction := s.services.Forecaster.Predict(target, domain.EnvironmentalFactors{
		Weather: params.Weather,
		Traffic: params.Traffic,
		Event:   params.Event,
	})

	return s.createJSONResult(
		fmt.Sprintf("Predicted %.1f patients/hour: %d doctors, %d nurses, %d beds",
			prediction.PredictedPatientsPerHour, prediction.RequiredDoctors, prediction.RequiredNurses, prediction.RequiredBeds),
		prediction,
	)
}

func (s *Server) handleDriftReport(ctx context.Context, req *mcp.CallToolRequest, params DriftReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolDriftReport).Info("Tool invoked")

	report := s.services.Forecaster.DriftReport()
	summary := "No usage observations recorded"
	if report.Status == domain.DriftStatusActive {
		summary = fmt.Sprintf("Drift %.1f%% (alert: %t)", report.DriftPercentage, report.Alert)
	}
	return s.createJSONResult(summary, report)
}

func (s *Server) handleMonthlyReport(ctx context.Context, req *mcp.CallToolRequest, params MonthlyReportParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolMonthlyReport).Info("Tool invoked")

	month := s.now().UTC()
	if params.Month != "" {
		parsed, err := decisionlog.ParsePeriod(params.Month)
		if err != nil {
			return s.createErrorResult("Invalid month", err), nil, nil
		}
		month = parsed
	}

	records, err := s.services.Decisions.Snapshot(ctx)
	if err != nil {
		return s.createErrorResult("Failed to read decision log", err), nil, nil
	}

	report := decisionlog.BuildMonthlyReport(decisionlog.FilterMonth(records, month))
	report.Period = month.Format("2006-01")

	return s.createJSONResult(
		fmt.Sprintf("%s: %d decisions, total resource cost %.4f", report.Period, report.TotalDecisions, report.TotalResourceCost),
		report,
	)
}

// createJSONResult returns a one-line summary followed by the JSON payload.
func (s *Server) createJSONResult(summary string, payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}, nil, nil
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	s.logger.WithError(err).Warn(message)

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
