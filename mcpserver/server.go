package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/SaiNageswarS/medicode-agent/handlers"
	"github.com/SaiNageswarS/medicode-agent/services"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"
)

const ToolAssignMedicalCodes = "assign_medical_codes"

// NewServer exposes the coding service as an MCP tool.
func NewServer(service handlers.CodingService, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"medicode-agent",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	assignTool := mcp.NewTool(
		ToolAssignMedicalCodes,
		mcp.WithDescription("Assign ICD-10-CM, HCPCS and CPT-4 codes to a clinical note. "+
			"Provide the note as text or the path of a PDF readable by the server. "+
			"Returns JSON with the extracted entities, the codes per coding system and an audit verdict."),
		mcp.WithString("text",
			mcp.Description("Clinical note text"),
		),
		mcp.WithString("pdf_path",
			mcp.Description("Path of a PDF clinical note on the server"),
		),
	)

	s.AddTool(assignTool, NewAssignMedicalCodesHandler(service).Handle)
	return s
}

// Serve runs the MCP server over stdio until ctx is done or stdin closes.
func Serve(ctx context.Context, service handlers.CodingService, version string) error {
	return server.NewStdioServer(NewServer(service, version)).Listen(ctx, os.Stdin, os.Stdout)
}

type AssignMedicalCodesHandler struct {
	service handlers.CodingService
}

func NewAssignMedicalCodesHandler(service handlers.CodingService) *AssignMedicalCodesHandler {
	return &AssignMedicalCodesHandler{service: service}
}

func (h *AssignMedicalCodesHandler) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pdfPath := strings.TrimSpace(req.GetString("pdf_path", ""))
	text := req.GetString("text", "")

	var (
		report *services.CodingReport
		err    error
	)
	switch {
	case pdfPath != "":
		report, err = h.service.CodePDF(ctx, pdfPath)
	case strings.TrimSpace(text) != "":
		report, err = h.service.Code(ctx, text)
	default:
		return mcp.NewToolResultError("text or pdf_path is required"), nil
	}
	if err != nil {
		logger.Error("Medical coding failed", zap.Error(err))
		return mcp.NewToolResultError(status.Convert(err).Message()), nil
	}

	body, err := json.Marshal(report)
	if err != nil {
		return mcp.NewToolResultError("Failed to marshal coding report: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}
