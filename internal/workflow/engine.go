// Package workflow implements the fixed browser workflows: toggling the
// MHMD consent preference through the UI, verifying the record through
// the Swagger UI, and the combined run of both.
package workflow

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultName = "Test User"

	nameFieldSelector  = `input[name="name"]`
	emailFieldSelector = `input[name="email"]`

	// emailSentinel in the input means "make one up", same as absent.
	emailSentinel = "random"
)

// Engine runs the workflows. All collaborators are injected; the engine
// holds no global state and is safe for concurrent invocations, though
// concurrent runs race on the single persisted record.
type Engine struct {
	pages      PageFactory
	store      RecordStore
	sink       ArtifactSink
	httpClient *http.Client
	log        *zap.Logger
}

// NewEngine wires an Engine. httpClient may be nil, in which case a
// client with a 10 second timeout is used for the side API calls.
func NewEngine(pages PageFactory, store RecordStore, sink ArtifactSink, httpClient *http.Client, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Engine{
		pages:      pages,
		store:      store,
		sink:       sink,
		httpClient: httpClient,
		log:        logger.Named("engine"),
	}
}

// ExecuteToggleWorkflow drives the preferences form end to end: open
// the form, flip the MHMD preference, save, confirm the banner and
// verify the persisted record.
func (e *Engine) ExecuteToggleWorkflow(ctx context.Context, input schemas.WorkflowInput, baseURL string) schemas.WorkflowResult {
	return e.toggle(ctx, input, baseURL, string(schemas.WorkflowMHMDOnly))
}

// ExecuteSwaggerWorkflow verifies the user record through the Swagger
// UI at {baseURL}/docs. When createRecord is set, a test record is
// first created through the HTTP API so the GET has something to find.
func (e *Engine) ExecuteSwaggerWorkflow(ctx context.Context, baseURL string, createRecord bool) schemas.WorkflowResult {
	return e.swagger(ctx, baseURL, createRecord, string(schemas.WorkflowSwaggerOnly))
}

// ExecuteCombinedWorkflow runs the toggle workflow and, only if it
// succeeded, the Swagger verification. The Swagger half reuses the
// record the first half just saved and never creates its own.
func (e *Engine) ExecuteCombinedWorkflow(ctx context.Context, input schemas.WorkflowInput, uiBaseURL, apiBaseURL string) schemas.CombinedResult {
	mhmd := e.toggle(ctx, input, uiBaseURL, "combined_mhmd")
	if !mhmd.Success {
		return schemas.CombinedResult{
			Success: false,
			Message: "Combined workflow failed during the MHMD phase; Swagger verification was not started.",
			MHMD:    &mhmd,
		}
	}

	sw := e.swagger(ctx, apiBaseURL, false, "combined_swagger")
	res := schemas.CombinedResult{
		Success: sw.Success,
		MHMD:    &mhmd,
		Swagger: &sw,
	}
	if sw.Success {
		res.Message = "Combined workflow completed: preference saved and verified through the API docs."
	} else {
		res.Message = "MHMD preference was saved, but the Swagger verification phase failed."
	}
	return res
}

// TakeScreenshot navigates to the URL, optionally waits for a selector,
// and captures the page. No artifact file is written on failure.
func (e *Engine) TakeScreenshot(ctx context.Context, url, waitFor string) schemas.WorkflowResult {
	var res schemas.WorkflowResult
	log := e.log.With(zap.String("workflow", "take_screenshot"), zap.String("invocation_id", uuid.NewString()))

	pg, err := e.newPage(ctx, &res, log)
	if err != nil {
		return res
	}
	defer pg.Close()

	if r := pg.Navigate(ctx, url); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Navigated to %s", url))

	if waitFor != "" {
		if r := pg.WaitVisible(ctx, waitFor, 10*time.Second); !r.Success {
			return e.abort(&res, log, r.Message)
		}
		res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Waited for %q to appear", waitFor))
	}

	shot, r := pg.Screenshot(ctx)
	if !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.Screenshot = shot
	res.WorkflowSteps = append(res.WorkflowSteps, "Captured screenshot")

	if e.sink != nil {
		if path, err := e.sink.SaveScreenshot(shot, "screenshot"); err == nil {
			res.ScreenshotFilePath = path
			res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Saved screenshot to %s", path))
		} else {
			res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Note: could not save screenshot file: %v", err))
		}
	}

	res.Success = true
	res.Message = fmt.Sprintf("Captured screenshot of %s", url)
	return res
}

// toggle is the shared implementation behind the mhmd_only workflow and
// the first half of combined. tag names the artifact files.
func (e *Engine) toggle(ctx context.Context, input schemas.WorkflowInput, baseURL, tag string) (res schemas.WorkflowResult) {
	log := e.log.With(zap.String("workflow", tag), zap.String("invocation_id", uuid.NewString()))
	log.Info("Starting MHMD toggle workflow.", zap.String("base_url", baseURL))

	pg, err := e.newPage(ctx, &res, log)
	if err != nil {
		return res
	}
	defer pg.Close()
	defer e.captureFailure(ctx, pg, tag, &res, log)

	if r := pg.Navigate(ctx, baseURL); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Navigated to %s", baseURL))

	if r := pg.FindAndClick(ctx, "", "Preferences"); !r.Success {
		return e.abort(&res, log, "Could not open the Preferences form: "+r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Opened the Preferences form")

	current, _ := e.store.CurrentPreference()
	target := resolveTargetPreference(input.Preference, current)
	res.WorkflowSteps = append(res.WorkflowSteps,
		fmt.Sprintf("Resolved target preference %s (currently %s)", target, current))

	if r := pg.ToggleRadio(ctx, string(target)); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Selected the %s option", target))

	// Name and email are cosmetic for the toggle; a fill failure is
	// noted but does not abort the run.
	name := defaultName
	if input.Name != nil && *input.Name != "" {
		name = *input.Name
	}
	if r := pg.FillField(ctx, nameFieldSelector, name); r.Success {
		res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Filled name %q", name))
	} else {
		res.WorkflowSteps = append(res.WorkflowSteps, "Note: could not fill the name field: "+r.Message)
	}

	email := resolveEmail(input.Email)
	if r := pg.FillField(ctx, emailFieldSelector, email); r.Success {
		res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Filled email %q", email))
	} else {
		res.WorkflowSteps = append(res.WorkflowSteps, "Note: could not fill the email field: "+r.Message)
	}

	if r := pg.ClickSave(ctx); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Clicked the save button")

	if r := pg.WaitForSuccess(ctx); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Success confirmation appeared")

	e.captureEvidence(ctx, pg, tag, &res)

	saved, exists := e.store.CurrentPreference()
	if !exists {
		return e.abort(&res, log, "Database verification failed: no user record was persisted")
	}
	res.FinalPreference = string(saved)
	dv := &schemas.DatabaseVerification{
		Verified: saved == target,
		Message:  fmt.Sprintf("Persisted MHMD preference is %s", saved),
	}
	if rec, err := e.store.Get(); err == nil {
		dv.Record = rec
	}
	res.DatabaseVerification = dv
	if !dv.Verified {
		res.WorkflowSteps = append(res.WorkflowSteps, dv.Message)
		return e.abort(&res, log,
			fmt.Sprintf("Database verification failed: expected %s, found %s", target, saved))
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Database verification passed: "+dv.Message)

	e.saveVerification(tag, &res, map[string]any{
		"success":               true,
		"final_preference":      res.FinalPreference,
		"database_verification": res.DatabaseVerification,
	})

	res.Success = true
	res.Message = fmt.Sprintf("MHMD preference workflow completed; preference is now %s.", saved)
	log.Info("MHMD toggle workflow finished.", zap.String("final_preference", res.FinalPreference))
	return res
}

// swagger is the shared implementation behind swagger_only and the
// second half of combined.
func (e *Engine) swagger(ctx context.Context, baseURL string, createRecord bool, tag string) (res schemas.WorkflowResult) {
	log := e.log.With(zap.String("workflow", tag), zap.String("invocation_id", uuid.NewString()))
	log.Info("Starting Swagger verification workflow.", zap.String("base_url", baseURL))

	if createRecord {
		if err := e.createTestRecord(ctx, baseURL); err != nil {
			res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Note: could not create a test record through the API: %v", err))
			log.Warn("Test record creation failed; continuing.", zap.Error(err))
		} else {
			res.WorkflowSteps = append(res.WorkflowSteps, "Created a test user record through the API")
		}
	}

	pg, err := e.newPage(ctx, &res, log)
	if err != nil {
		return res
	}
	defer pg.Close()
	defer e.captureFailure(ctx, pg, tag, &res, log)

	docsURL := strings.TrimRight(baseURL, "/") + "/docs"
	if r := pg.Navigate(ctx, docsURL); !r.Success {
		return e.abort(&res, log, r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Navigated to %s", docsURL))

	if r := pg.WaitVisible(ctx, ".swagger-ui .opblock", 10*time.Second); !r.Success {
		return e.abort(&res, log, "Swagger UI did not load: "+r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Swagger UI loaded")

	if r := pg.FindAndClick(ctx, ".opblock.opblock-get .opblock-summary", ""); !r.Success {
		return e.abort(&res, log, "Could not expand the GET /api/user endpoint: "+r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Expanded the GET /api/user endpoint")

	if r := pg.FindAndClick(ctx, ".btn.try-out__btn", ""); !r.Success {
		return e.abort(&res, log, `Could not click "Try it out": `+r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, `Clicked "Try it out"`)

	if r := pg.FindAndClick(ctx, ".btn.execute", ""); !r.Success {
		return e.abort(&res, log, `Could not click "Execute": `+r.Message)
	}
	res.WorkflowSteps = append(res.WorkflowSteps, `Clicked "Execute"`)

	if r := pg.WaitVisible(ctx, ".live-responses-table", 10*time.Second); !r.Success {
		return e.abort(&res, log, "The live response never appeared: "+r.Message)
	}

	status, r := pg.Text(ctx, ".live-responses-table .response-col_status")
	if !r.Success {
		return e.abort(&res, log, "Could not read the response status: "+r.Message)
	}
	res.APIResponseStatus = status
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("API responded with status %s", status))

	if !strings.HasPrefix(status, "200") {
		return e.abort(&res, log, fmt.Sprintf("API returned status %s, expected 200", status))
	}

	e.captureEvidence(ctx, pg, tag, &res)

	if rec, err := e.store.Get(); err == nil && rec != nil {
		res.FinalPreference = string(rec.MHMDPreference)
		res.DatabaseVerification = &schemas.DatabaseVerification{
			Verified: true,
			Message:  fmt.Sprintf("Record for %s has MHMD preference %s", rec.Name, rec.MHMDPreference),
			Record:   rec,
		}
	} else {
		res.DatabaseVerification = &schemas.DatabaseVerification{
			Verified: false,
			Message:  "No user record is persisted",
		}
	}
	res.WorkflowSteps = append(res.WorkflowSteps, "Database verification: "+res.DatabaseVerification.Message)

	e.saveVerification(tag, &res, map[string]any{
		"success":               true,
		"api_response_status":   res.APIResponseStatus,
		"database_verification": res.DatabaseVerification,
	})

	res.Success = true
	res.Message = "Swagger verification completed: GET /api/user returned 200."
	log.Info("Swagger verification workflow finished.")
	return res
}

// newPage opens the invocation's tab, folding infrastructure failures
// into the result envelope before any step runs.
func (e *Engine) newPage(ctx context.Context, res *schemas.WorkflowResult, log *zap.Logger) (Page, error) {
	if e.pages == nil {
		err := fmt.Errorf("no browser available")
		e.abort(res, log, "Failed to open a browser page: "+err.Error())
		return nil, err
	}
	pg, err := e.pages.NewPage(ctx)
	if err != nil {
		e.abort(res, log, fmt.Sprintf("Failed to open a browser page: %v", err))
		return nil, err
	}
	return pg, nil
}

// abort marks the run failed, recording the reason in the step log,
// the message and the error field.
func (e *Engine) abort(res *schemas.WorkflowResult, log *zap.Logger, reason string) schemas.WorkflowResult {
	res.Success = false
	res.Error = reason
	res.Message = "Workflow failed: " + reason
	res.WorkflowSteps = append(res.WorkflowSteps, "ERROR: "+reason)
	log.Error("Workflow aborted.", zap.String("reason", reason))
	return *res
}

// captureEvidence takes the success screenshot and persists it. A
// capture failure here is a soft note; the workflow already succeeded
// on the page.
func (e *Engine) captureEvidence(ctx context.Context, pg Page, tag string, res *schemas.WorkflowResult) {
	shot, r := pg.Screenshot(ctx)
	if !r.Success {
		res.WorkflowSteps = append(res.WorkflowSteps, "Note: could not capture screenshot: "+r.Message)
		return
	}
	res.Screenshot = shot
	res.WorkflowSteps = append(res.WorkflowSteps, "Captured screenshot")

	if e.sink == nil {
		return
	}
	path, err := e.sink.SaveScreenshot(shot, tag)
	if err != nil {
		res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Note: could not save screenshot file: %v", err))
		return
	}
	res.ScreenshotFilePath = path
	res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Saved screenshot to %s", path))
}

// captureFailure runs deferred on every workflow exit. On failure with
// a live page it best-effort captures a screenshot and an
// error-verification snapshot; its own failures become soft notes and
// never replace the original error.
func (e *Engine) captureFailure(ctx context.Context, pg Page, tag string, res *schemas.WorkflowResult, log *zap.Logger) {
	if res.Success || pg == nil {
		return
	}

	if pg.Alive() && res.Screenshot == "" {
		shot, r := pg.Screenshot(ctx)
		if r.Success {
			res.Screenshot = shot
			if e.sink != nil {
				if path, err := e.sink.SaveScreenshot(shot, tag+"_error"); err == nil {
					res.ScreenshotFilePath = path
				} else {
					res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Note: could not save failure screenshot: %v", err))
				}
			}
		} else {
			res.WorkflowSteps = append(res.WorkflowSteps, "Note: could not capture failure screenshot: "+r.Message)
		}
	}

	e.saveVerification(tag+"_error", res, map[string]any{
		"success":        false,
		"error":          res.Error,
		"workflow_steps": append([]string(nil), res.WorkflowSteps...),
	})

	log.Warn("Workflow failure evidence captured.",
		zap.String("screenshot_file", res.ScreenshotFilePath),
		zap.String("verification_file", res.VerificationFilePath))
}

// saveVerification persists a verification snapshot, downgrading sink
// errors to step-log notes.
func (e *Engine) saveVerification(tag string, res *schemas.WorkflowResult, payload map[string]any) {
	if e.sink == nil {
		return
	}
	path, err := e.sink.SaveVerification(payload, tag)
	if err != nil {
		res.WorkflowSteps = append(res.WorkflowSteps, fmt.Sprintf("Note: could not save verification file: %v", err))
		return
	}
	res.VerificationFilePath = path
}

// createTestRecord seeds the store through the HTTP API so the Swagger
// GET has a record to return.
func (e *Engine) createTestRecord(ctx context.Context, baseURL string) error {
	rec := schemas.UserRecord{
		Name:           defaultName,
		Email:          randomEmail(),
		MHMDPreference: schemas.PreferenceOptOut,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling test record: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/user"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	return nil
}

// resolveTargetPreference applies the toggle law: an explicit valid
// preference wins; otherwise the persisted value flips, with anything
// unknown landing on OPT_OUT.
func resolveTargetPreference(explicit *schemas.Preference, current schemas.Preference) schemas.Preference {
	if explicit != nil && explicit.IsValid() {
		return *explicit
	}
	if current == schemas.PreferenceOptOut {
		return schemas.PreferenceOptIn
	}
	return schemas.PreferenceOptOut
}

// resolveEmail returns the supplied email, synthesizing a throwaway
// address when it is absent or the "random" sentinel.
func resolveEmail(email *string) string {
	if email != nil {
		trimmed := strings.TrimSpace(*email)
		if trimmed != "" && !strings.EqualFold(trimmed, emailSentinel) {
			return trimmed
		}
	}
	return randomEmail()
}

const emailCharset = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomEmail builds testuser_<6 random lowercase alphanumerics>@example.com.
func randomEmail() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; fall back to
		// a fixed suffix rather than propagate an error nobody can act on.
		return "testuser_fallbk@example.com"
	}
	for i, b := range buf {
		buf[i] = emailCharset[int(b)%len(emailCharset)]
	}
	return fmt.Sprintf("testuser_%s@example.com", buf)
}
