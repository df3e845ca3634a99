// Package mcp exposes the browser workflows as tools over the Model
// Context Protocol so an external orchestrator can invoke them.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"github.com/xkilldash9x/prefpilot/internal/config"
	"github.com/xkilldash9x/prefpilot/internal/intent"
	"go.uber.org/zap"
)

// WorkflowRunner is the engine surface the gateway dispatches into.
type WorkflowRunner interface {
	ExecuteToggleWorkflow(ctx context.Context, input schemas.WorkflowInput, baseURL string) schemas.WorkflowResult
	ExecuteSwaggerWorkflow(ctx context.Context, baseURL string, createRecord bool) schemas.WorkflowResult
	ExecuteCombinedWorkflow(ctx context.Context, input schemas.WorkflowInput, uiBaseURL, apiBaseURL string) schemas.CombinedResult
	TakeScreenshot(ctx context.Context, url, waitFor string) schemas.WorkflowResult
}

// IntentClassifier turns free text into a workflow request.
type IntentClassifier interface {
	Classify(ctx context.Context, command string) (schemas.ClassifiedIntent, error)
}

// Server is the MCP tool gateway.
type Server struct {
	mcp        *server.MCPServer
	engine     WorkflowRunner
	classifier IntentClassifier
	targets    config.TargetConfig
	log        *zap.Logger
}

// NewServer registers the four workflow tools on a fresh MCP server.
func NewServer(engine WorkflowRunner, classifier IntentClassifier, targets config.TargetConfig, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine:     engine,
		classifier: classifier,
		targets:    targets,
		log:        logger.Named("mcp"),
	}

	m := server.NewMCPServer(
		"prefpilot",
		version,
		server.WithToolCapabilities(true),
	)

	aiTool := mcp.NewTool("ai_browser_automation",
		mcp.WithDescription("Execute a browser automation workflow described in natural language. The command is classified by an LLM and dispatched to the matching fixed workflow (MHMD preference toggle, Swagger API verification, or both)."),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Natural-language description of what to do, e.g. 'opt Jane out of health data sharing and verify through the API docs'"),
		),
		mcp.WithString("base_url",
			mcp.Description("Base URL of the target web UI (default http://localhost:3000)"),
		),
	)
	m.AddTool(aiTool, s.recovered("ai_browser_automation", s.handleAIBrowserAutomation))

	toggleTool := mcp.NewTool("mhmd_toggle_workflow",
		mcp.WithDescription("Toggle the persisted MHMD consent preference through the preferences form, save it and verify persistence."),
		mcp.WithString("name",
			mcp.Description("Name to enter in the form (default 'Test User')"),
		),
		mcp.WithString("email",
			mcp.Description("Email to enter in the form; omit or pass 'random' to synthesize a test address"),
		),
		mcp.WithString("preference",
			mcp.Description("Explicit target preference; omit to flip the current value"),
			mcp.Enum("OPT_IN", "OPT_OUT"),
		),
		mcp.WithString("base_url",
			mcp.Description("Base URL of the target web UI (default http://localhost:3000)"),
		),
	)
	m.AddTool(toggleTool, s.recovered("mhmd_toggle_workflow", s.handleToggle))

	screenshotTool := mcp.NewTool("take_screenshot",
		mcp.WithDescription("Navigate to a URL and capture a full-page screenshot."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL to capture"),
		),
		mcp.WithString("wait_for",
			mcp.Description("Optional CSS selector to wait for before capturing"),
		),
	)
	m.AddTool(screenshotTool, s.recovered("take_screenshot", s.handleScreenshot))

	swaggerTool := mcp.NewTool("swagger_api_test_workflow",
		mcp.WithDescription("Create a test user record through the API, then verify GET /api/user through the interactive Swagger UI."),
		mcp.WithString("base_url",
			mcp.Description("Base URL of the API server (default http://localhost:8000)"),
		),
	)
	m.AddTool(swaggerTool, s.recovered("swagger_api_test_workflow", s.handleSwagger))

	s.mcp = m
	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout until
// ctx is canceled or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info("MCP gateway serving on stdio.")
	return s.serve(ctx, os.Stdin, os.Stdout)
}

func (s *Server) serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

type toolHandler = server.ToolHandlerFunc

// recovered converts a handler panic into a uniform tool error so one
// bad invocation cannot take the gateway down.
func (s *Server) recovered(name string, h toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Tool handler panicked.",
					zap.String("tool", name), zap.Any("panic", r))
				result = mcp.NewToolResultError(fmt.Sprintf("internal error in %s: %v", name, r))
				err = nil
			}
		}()
		return h(ctx, request)
	}
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	if args, ok := request.Params.Arguments.(map[string]any); ok {
		return args
	}
	return make(map[string]any)
}

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func (s *Server) handleAIBrowserAutomation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	command := stringArg(args, "command", "")
	if command == "" {
		return mcp.NewToolResultError("the 'command' argument is required"), nil
	}
	uiBase := stringArg(args, "base_url", s.targets.UIBaseURL)

	classified, err := s.classifier.Classify(ctx, command)
	if err != nil {
		var cerr *intent.ClassificationError
		if errors.As(err, &cerr) && cerr.RawReply != "" {
			return mcp.NewToolResultError(fmt.Sprintf(
				"could not classify the command. Raw model reply:\n%s", cerr.RawReply)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("could not classify the command: %v", err)), nil
	}

	input := schemas.WorkflowInput{
		Name:       classified.Name,
		Email:      classified.Email,
		Preference: classified.Preference,
	}

	s.log.Info("Dispatching classified command.",
		zap.String("workflow_type", string(classified.WorkflowType)))

	switch classified.WorkflowType {
	case schemas.WorkflowSwaggerOnly:
		res := s.engine.ExecuteSwaggerWorkflow(ctx, s.targets.APIBaseURL, true)
		return renderToolResult(RenderWorkflowResult("Swagger API verification", res), res.Success), nil
	case schemas.WorkflowCombined:
		res := s.engine.ExecuteCombinedWorkflow(ctx, input, uiBase, s.targets.APIBaseURL)
		return renderToolResult(RenderCombinedResult(res), res.Success), nil
	default:
		res := s.engine.ExecuteToggleWorkflow(ctx, input, uiBase)
		return renderToolResult(RenderWorkflowResult("MHMD preference workflow", res), res.Success), nil
	}
}

func (s *Server) handleToggle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)

	var input schemas.WorkflowInput
	if v := stringArg(args, "name", ""); v != "" {
		input.Name = &v
	}
	if v := stringArg(args, "email", ""); v != "" {
		input.Email = &v
	}
	if v := stringArg(args, "preference", ""); v != "" {
		pref := schemas.Preference(v)
		if !pref.IsValid() {
			return mcp.NewToolResultError(fmt.Sprintf("preference must be OPT_IN or OPT_OUT, got %q", v)), nil
		}
		input.Preference = &pref
	}

	baseURL := stringArg(args, "base_url", s.targets.UIBaseURL)
	res := s.engine.ExecuteToggleWorkflow(ctx, input, baseURL)
	return renderToolResult(RenderWorkflowResult("MHMD preference workflow", res), res.Success), nil
}

func (s *Server) handleScreenshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	url := stringArg(args, "url", "")
	if url == "" {
		return mcp.NewToolResultError("the 'url' argument is required"), nil
	}

	res := s.engine.TakeScreenshot(ctx, url, stringArg(args, "wait_for", ""))
	return renderToolResult(RenderWorkflowResult("Screenshot", res), res.Success), nil
}

func (s *Server) handleSwagger(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	baseURL := stringArg(args, "base_url", s.targets.APIBaseURL)

	res := s.engine.ExecuteSwaggerWorkflow(ctx, baseURL, true)
	return renderToolResult(RenderWorkflowResult("Swagger API verification", res), res.Success), nil
}

// renderToolResult maps a rendered report onto the MCP result kinds:
// failures use the error result so orchestrators can branch on them.
func renderToolResult(report string, success bool) *mcp.CallToolResult {
	if success {
		return mcp.NewToolResultText(report)
	}
	return mcp.NewToolResultError(report)
}
