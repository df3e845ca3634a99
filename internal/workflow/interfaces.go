package workflow

import (
	"context"
	"time"

	"github.com/xkilldash9x/prefpilot/api/schemas"
)

// Page is the set of browser primitives the engine composes workflows
// from. The chromedp-backed implementation lives in internal/browser;
// tests substitute fakes.
type Page interface {
	Navigate(ctx context.Context, url string) schemas.ActionResult
	FindAndClick(ctx context.Context, selector, text string) schemas.ActionResult
	ToggleRadio(ctx context.Context, value string) schemas.ActionResult
	FillField(ctx context.Context, selector, value string) schemas.ActionResult
	ClickSave(ctx context.Context) schemas.ActionResult
	WaitForSuccess(ctx context.Context) schemas.ActionResult
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) schemas.ActionResult
	Text(ctx context.Context, selector string) (string, schemas.ActionResult)
	Screenshot(ctx context.Context) (string, schemas.ActionResult)
	Alive() bool
	Close()
}

// PageFactory opens a fresh tab for one workflow invocation.
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
}

// RecordStore is the engine's read view of the persisted user record,
// used for database verification after a save.
type RecordStore interface {
	Get() (*schemas.UserRecord, error)
	CurrentPreference() (schemas.Preference, bool)
}

// ArtifactSink persists workflow evidence.
type ArtifactSink interface {
	SaveScreenshot(b64 string, tag string) (string, error)
	SaveVerification(payload map[string]any, tag string) (string, error)
}
