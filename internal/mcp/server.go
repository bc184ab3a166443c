// Package mcp exposes the triage pipeline, the symptom catalogue and the
// demand forecaster as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/forecast"
	"github.com/orion-triage-server/internal/service"
)

// Tool names registered on the server.
const (
	ToolTriage           = "triage"
	ToolListSymptoms     = "list_symptoms"
	ToolSymptomQuestions = "symptom_questions"
	ToolForecastPredict  = "forecast_predict"
	ToolDriftReport      = "drift_report"
	ToolMonthlyReport    = "monthly_report"
)

// Services are the components the tools delegate to.
type Services struct {
	Orchestrator *service.Orchestrator
	Forecaster   *forecast.Forecaster
	Decisions    decisionlog.Store
}

// Server represents the triage MCP server
type Server struct {
	mcpServer *mcp.Server
	services  Services
	tools     []string
	logger    *logrus.Logger

	now func() time.Time
}

// NewServer creates a new MCP server instance and registers every tool
func NewServer(cfg domain.MCPConfig, services Services, logger *logrus.Logger) (*Server, error) {
	if services.Orchestrator == nil || services.Forecaster == nil || services.Decisions == nil {
		return nil, fmt.Errorf("mcp server requires orchestrator, forecaster and decision log")
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "orion-triage"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "1.0.0"
	}

	server := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.ServerName,
			Version: cfg.ServerVersion,
		}, nil),
		services: services,
		logger:   logger,
		now:      time.Now,
	}

	server.registerTools()
	return server, nil
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Start serves MCP over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("tools", len(s.tools)).Info("Starting triage MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolTriage,
		Description: "Classify a patient's complaint into an urgency code (D1, D2, D7, D3) and record the decision",
	}, s.handleTriage)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListSymptoms,
		Description: "List the root symptoms known to the triage protocol",
	}, s.handleListSymptoms)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolSymptomQuestions,
		Description: "Return the mandatory questions and general recommendations of a symptom",
	}, s.handleSymptomQuestions)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolForecastPredict,
		Description: "Predict hourly patient demand and staffing for a target time and environmental factors",
	}, s.handleForecastPredict)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolDriftReport,
		Description: "Compare the latest observed patient count against the forecast baseline",
	}, s.handleDriftReport)
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolMonthlyReport,
		Description: "Summarize decisions, dispositions and resource cost for a calendar month",
	}, s.handleMonthlyReport)

	s.tools = []string{
		ToolTriage, ToolListSymptoms, ToolSymptomQuestions,
		ToolForecastPredict, ToolDriftReport, ToolMonthlyReport,
	}
	s.logger.WithField("tools", s.tools).Debug("Registered MCP tools")
}
