package mcp

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"github.com/xkilldash9x/prefpilot/internal/config"
	"github.com/xkilldash9x/prefpilot/internal/intent"
	"go.uber.org/zap"
)

// -- Fakes --

type fakeEngine struct {
	toggleRes   schemas.WorkflowResult
	swaggerRes  schemas.WorkflowResult
	combinedRes schemas.CombinedResult
	shotRes     schemas.WorkflowResult

	gotToggleInput   schemas.WorkflowInput
	gotToggleBase    string
	gotSwaggerBase   string
	gotSwaggerCreate bool
	gotShotURL       string
	gotShotWait      string
	calls            []string

	panicOn string
}

func (f *fakeEngine) maybePanic(name string) {
	f.calls = append(f.calls, name)
	if f.panicOn == name {
		panic("synthetic failure in " + name)
	}
}

func (f *fakeEngine) ExecuteToggleWorkflow(_ context.Context, input schemas.WorkflowInput, baseURL string) schemas.WorkflowResult {
	f.maybePanic("toggle")
	f.gotToggleInput = input
	f.gotToggleBase = baseURL
	return f.toggleRes
}

func (f *fakeEngine) ExecuteSwaggerWorkflow(_ context.Context, baseURL string, createRecord bool) schemas.WorkflowResult {
	f.maybePanic("swagger")
	f.gotSwaggerBase = baseURL
	f.gotSwaggerCreate = createRecord
	return f.swaggerRes
}

func (f *fakeEngine) ExecuteCombinedWorkflow(_ context.Context, _ schemas.WorkflowInput, _, _ string) schemas.CombinedResult {
	f.maybePanic("combined")
	return f.combinedRes
}

func (f *fakeEngine) TakeScreenshot(_ context.Context, url, waitFor string) schemas.WorkflowResult {
	f.maybePanic("screenshot")
	f.gotShotURL = url
	f.gotShotWait = waitFor
	return f.shotRes
}

type fakeClassifier struct {
	intent schemas.ClassifiedIntent
	err    error
}

func (f *fakeClassifier) Classify(context.Context, string) (schemas.ClassifiedIntent, error) {
	return f.intent, f.err
}

func testTargets() config.TargetConfig {
	return config.TargetConfig{
		UIBaseURL:  "http://localhost:3000",
		APIBaseURL: "http://localhost:8000",
	}
}

func callRequest(args map[string]any) mcpgo.CallToolRequest {
	var req mcpgo.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := mcpgo.AsTextContent(res.Content[0])
	require.True(t, ok, "expected text content")
	return tc.Text
}

func okResult(msg string) schemas.WorkflowResult {
	return schemas.WorkflowResult{
		Success:       true,
		Message:       msg,
		WorkflowSteps: []string{"step one", "step two"},
	}
}

// -- Handlers --

func TestHandleToggle(t *testing.T) {
	t.Run("passes arguments through to the engine", func(t *testing.T) {
		eng := &fakeEngine{toggleRes: okResult("done")}
		s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

		res, err := s.handleToggle(context.Background(), callRequest(map[string]any{
			"name":       "Jane",
			"email":      "jane@example.com",
			"preference": "OPT_IN",
			"base_url":   "http://staging:3000",
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		require.NotNil(t, eng.gotToggleInput.Name)
		assert.Equal(t, "Jane", *eng.gotToggleInput.Name)
		require.NotNil(t, eng.gotToggleInput.Preference)
		assert.Equal(t, schemas.PreferenceOptIn, *eng.gotToggleInput.Preference)
		assert.Equal(t, "http://staging:3000", eng.gotToggleBase)
	})

	t.Run("defaults the base URL from config", func(t *testing.T) {
		eng := &fakeEngine{toggleRes: okResult("done")}
		s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

		_, err := s.handleToggle(context.Background(), callRequest(map[string]any{}))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:3000", eng.gotToggleBase)
		assert.Nil(t, eng.gotToggleInput.Name)
	})

	t.Run("rejects an invalid preference before touching the engine", func(t *testing.T) {
		eng := &fakeEngine{}
		s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

		res, err := s.handleToggle(context.Background(), callRequest(map[string]any{
			"preference": "MAYBE",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Empty(t, eng.calls)
	})

	t.Run("a failed workflow renders as a tool error", func(t *testing.T) {
		eng := &fakeEngine{toggleRes: schemas.WorkflowResult{
			Success:       false,
			Message:       "Workflow failed: no save button",
			WorkflowSteps: []string{"Navigated to x", "ERROR: no save button"},
			Error:         "no save button",
		}}
		s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

		res, err := s.handleToggle(context.Background(), callRequest(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		body := textOf(t, res)
		assert.Contains(t, body, "Status: FAILED")
		assert.Contains(t, body, "ERROR: no save button")
	})
}

func TestHandleAIBrowserAutomation(t *testing.T) {
	t.Run("dispatches mhmd_only with the extracted fields", func(t *testing.T) {
		name := "Jane"
		pref := schemas.PreferenceOptOut
		eng := &fakeEngine{toggleRes: okResult("done")}
		cls := &fakeClassifier{intent: schemas.ClassifiedIntent{
			WorkflowType: schemas.WorkflowMHMDOnly,
			Name:         &name,
			Preference:   &pref,
		}}
		s := NewServer(eng, cls, testTargets(), "test", zap.NewNop())

		res, err := s.handleAIBrowserAutomation(context.Background(), callRequest(map[string]any{
			"command": "opt Jane out",
		}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, []string{"toggle"}, eng.calls)
		require.NotNil(t, eng.gotToggleInput.Preference)
		assert.Equal(t, schemas.PreferenceOptOut, *eng.gotToggleInput.Preference)
	})

	t.Run("dispatches swagger_only with record creation", func(t *testing.T) {
		eng := &fakeEngine{swaggerRes: okResult("verified")}
		cls := &fakeClassifier{intent: schemas.ClassifiedIntent{WorkflowType: schemas.WorkflowSwaggerOnly}}
		s := NewServer(eng, cls, testTargets(), "test", zap.NewNop())

		res, err := s.handleAIBrowserAutomation(context.Background(), callRequest(map[string]any{
			"command": "test the API",
		}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, []string{"swagger"}, eng.calls)
		assert.True(t, eng.gotSwaggerCreate)
		assert.Equal(t, "http://localhost:8000", eng.gotSwaggerBase)
	})

	t.Run("dispatches combined", func(t *testing.T) {
		eng := &fakeEngine{combinedRes: schemas.CombinedResult{
			Success: true,
			Message: "all good",
			MHMD:    &schemas.WorkflowResult{Success: true, Message: "m"},
			Swagger: &schemas.WorkflowResult{Success: true, Message: "s"},
		}}
		cls := &fakeClassifier{intent: schemas.ClassifiedIntent{WorkflowType: schemas.WorkflowCombined}}
		s := NewServer(eng, cls, testTargets(), "test", zap.NewNop())

		res, err := s.handleAIBrowserAutomation(context.Background(), callRequest(map[string]any{
			"command": "do both",
		}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Equal(t, []string{"combined"}, eng.calls)
	})

	t.Run("missing command is a tool error", func(t *testing.T) {
		s := NewServer(&fakeEngine{}, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

		res, err := s.handleAIBrowserAutomation(context.Background(), callRequest(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("classification failure surfaces the raw reply", func(t *testing.T) {
		cls := &fakeClassifier{err: &intent.ClassificationError{
			RawReply: "I have no idea, sorry!",
			Err:      fmt.Errorf("unmarshal failed"),
		}}
		s := NewServer(&fakeEngine{}, cls, testTargets(), "test", zap.NewNop())

		res, err := s.handleAIBrowserAutomation(context.Background(), callRequest(map[string]any{
			"command": "???",
		}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, textOf(t, res), "I have no idea, sorry!")
	})
}

func TestHandleScreenshot(t *testing.T) {
	eng := &fakeEngine{shotRes: schemas.WorkflowResult{
		Success:    true,
		Message:    "captured",
		Screenshot: strings.Repeat("A", 64),
	}}
	s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

	res, err := s.handleScreenshot(context.Background(), callRequest(map[string]any{
		"url":      "http://localhost:3000",
		"wait_for": ".app",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "http://localhost:3000", eng.gotShotURL)
	assert.Equal(t, ".app", eng.gotShotWait)
	assert.Contains(t, textOf(t, res), "Screenshot: captured (64 base64 chars)")
}

func TestRecoveredWrapper(t *testing.T) {
	eng := &fakeEngine{panicOn: "swagger"}
	s := NewServer(eng, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

	h := s.recovered("swagger_api_test_workflow", s.handleSwagger)
	res, err := h(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err, "panics must not escape as Go errors")
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "internal error in swagger_api_test_workflow")
}

// -- Rendering --

func TestRenderWorkflowResult(t *testing.T) {
	t.Run("renders every populated field", func(t *testing.T) {
		res := schemas.WorkflowResult{
			Success:              true,
			Message:              "all done",
			WorkflowSteps:        []string{"first", "second", "third"},
			Screenshot:           strings.Repeat("x", 100),
			ScreenshotFilePath:   "/artifacts/screenshots/mhmd_only.png",
			FinalPreference: "OPT_IN",
			DatabaseVerification: &schemas.DatabaseVerification{
				Verified: true,
				Message:  "Persisted MHMD preference is OPT_IN",
				Record: &schemas.UserRecord{
					Name: "Test User", Email: "t@example.com", MHMDPreference: schemas.PreferenceOptIn,
				},
			},
			VerificationFilePath: "/artifacts/verifications/mhmd_only.json",
		}

		out := RenderWorkflowResult("MHMD preference workflow", res)

		assert.Contains(t, out, "Status: SUCCESS")
		assert.Contains(t, out, "Message: all done")
		assert.Contains(t, out, "  1. first")
		assert.Contains(t, out, "  3. third")
		assert.Contains(t, out, "Final preference: OPT_IN")
		assert.Contains(t, out, "Database verification: Persisted MHMD preference is OPT_IN")
		assert.Contains(t, out, `Record: name="Test User" email="t@example.com" mhmd_preference=OPT_IN`)
		assert.Contains(t, out, "Verification file: /artifacts/verifications/mhmd_only.json")
		assert.Contains(t, out, "Screenshot: captured (100 base64 chars)")
		assert.Contains(t, out, "Screenshot file: /artifacts/screenshots/mhmd_only.png")
		assert.NotContains(t, out, strings.Repeat("x", 100), "raw base64 must not be inlined")
	})

	t.Run("omits empty sections", func(t *testing.T) {
		out := RenderWorkflowResult("Screenshot", schemas.WorkflowResult{
			Success: false,
			Message: "failed",
			Error:   "bad url",
		})
		assert.Contains(t, out, "Status: FAILED")
		assert.Contains(t, out, "Error: bad url")
		assert.NotContains(t, out, "Final preference:")
		assert.NotContains(t, out, "Database verification:")
	})
}

func TestRenderCombinedResult(t *testing.T) {
	t.Run("shows both phases", func(t *testing.T) {
		out := RenderCombinedResult(schemas.CombinedResult{
			Success: true,
			Message: "done",
			MHMD:    &schemas.WorkflowResult{Success: true, Message: "m ok"},
			Swagger: &schemas.WorkflowResult{Success: true, Message: "s ok", APIResponseStatus: "200"},
		})
		assert.Contains(t, out, "--- MHMD phase ---")
		assert.Contains(t, out, "--- Swagger phase ---")
		assert.Contains(t, out, "API response status: 200")
	})

	t.Run("marks a never-started swagger phase", func(t *testing.T) {
		out := RenderCombinedResult(schemas.CombinedResult{
			Success: false,
			Message: "mhmd failed",
			MHMD:    &schemas.WorkflowResult{Success: false, Message: "m bad", Error: "boom"},
		})
		assert.Contains(t, out, "Not started: the MHMD phase failed first.")
	})
}

// -- Serving --

func TestServeReturnsOnContextCancel(t *testing.T) {
	s := NewServer(&fakeEngine{}, &fakeClassifier{}, testTargets(), "test", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		_ = s.serve(ctx, strings.NewReader(""), io.Discard)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return after context cancellation")
	}
}
