package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/prefpilot/api/schemas"
	"github.com/xkilldash9x/prefpilot/internal/config"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Page is a single browser tab. All primitives fold page-level faults
// (missing elements, timeouts, dead frames) into the returned
// ActionResult; a primitive never panics and never returns a Go error.
type Page struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	log    *zap.Logger

	closeOnce sync.Once
}

// saveCandidate describes one selector probed by ClickSave, in order.
type saveCandidate struct {
	byText bool
	expr   string
	label  string
}

// saveCandidates is the fixed probe order for the save control. Text
// candidates first, generic submit controls last.
var saveCandidates = []saveCandidate{
	{byText: true, expr: "Save Preferences", label: `button with text "Save Preferences"`},
	{byText: true, expr: "Save", label: `button with text "Save"`},
	{byText: false, expr: `input[type="submit"]`, label: `input[type="submit"]`},
	{byText: false, expr: `button[type="submit"]`, label: `button[type="submit"]`},
}

const perCandidateTimeout = 2 * time.Second

// Close releases the tab. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.log.Debug("Page closed.")
	})
}

// Alive reports whether the tab context is still usable. The workflow
// engine consults this before attempting recovery captures.
func (p *Page) Alive() bool {
	return p.ctx.Err() == nil
}

// run executes chromedp actions against the tab under a per-operation
// timeout, honoring the caller's cancellation as well.
func (p *Page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(opCtx, actions...)
}

// snapshot fetches the current URL and title, best effort.
func (p *Page) snapshot(ctx context.Context) (string, string) {
	var url, title string
	_ = p.run(ctx, 2*time.Second,
		chromedp.Location(&url),
		chromedp.Title(&title),
	)
	return url, title
}

// fail builds a failed ActionResult annotated with the page position.
func (p *Page) fail(ctx context.Context, format string, args ...any) schemas.ActionResult {
	msg := fmt.Sprintf(format, args...)
	url, title := p.snapshot(ctx)
	p.log.Debug("Primitive failed.", zap.String("message", msg), zap.String("url", url))
	return schemas.ActionResult{Success: false, Message: msg, CurrentURL: url, Title: title}
}

// ok builds a successful ActionResult annotated with the page position.
func (p *Page) ok(ctx context.Context, format string, args ...any) schemas.ActionResult {
	msg := fmt.Sprintf(format, args...)
	url, title := p.snapshot(ctx)
	return schemas.ActionResult{Success: true, Message: msg, CurrentURL: url, Title: title}
}

// Navigate loads the URL and waits for the document to become ready.
func (p *Page) Navigate(ctx context.Context, url string) schemas.ActionResult {
	err := p.run(ctx, p.cfg.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return p.fail(ctx, "Failed to navigate to %s: %s", url, describeErr(err))
	}
	return p.ok(ctx, "Navigated to %s", url)
}

// FindAndClick clicks the first element matching the CSS selector, or,
// when text is given, the first button or link containing that text.
// Text takes precedence over the selector.
func (p *Page) FindAndClick(ctx context.Context, selector, text string) schemas.ActionResult {
	switch {
	case text != "":
		xpath := fmt.Sprintf(`//*[self::button or self::a or self::summary][contains(normalize-space(.), %s)]`, xpathLiteral(text))
		err := p.run(ctx, p.cfg.ActionTimeout,
			chromedp.WaitVisible(xpath, chromedp.BySearch),
			chromedp.Click(xpath, chromedp.BySearch),
		)
		if err != nil {
			return p.fail(ctx, "Failed to click element with text %q: %s", text, describeErr(err))
		}
		return p.ok(ctx, "Clicked element with text %q", text)

	case selector != "":
		err := p.run(ctx, p.cfg.ActionTimeout,
			chromedp.WaitVisible(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery),
		)
		if err != nil {
			return p.fail(ctx, "Failed to click %q: %s", selector, describeErr(err))
		}
		return p.ok(ctx, "Clicked %q", selector)

	default:
		return schemas.ActionResult{Success: false, Message: "FindAndClick requires a selector or text"}
	}
}

// ToggleRadio selects the radio input carrying the given value.
func (p *Page) ToggleRadio(ctx context.Context, value string) schemas.ActionResult {
	selector := fmt.Sprintf(`input[type="radio"][value=%q]`, value)
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return p.fail(ctx, "Failed to select radio value %q: %s", value, describeErr(err))
	}
	return p.ok(ctx, "Selected radio value %q", value)
}

// FillField sets an input's value and fires input/change events so
// framework-bound forms observe the edit.
func (p *Page) FillField(ctx context.Context, selector, value string) schemas.ActionResult {
	selJSON, _ := json.Marshal(selector)
	valJSON, _ := json.Marshal(value)
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		el.value = %s;
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, selJSON, valJSON)

	var found bool
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(script, &found),
	)
	if err != nil {
		return p.fail(ctx, "Failed to fill %q: %s", selector, describeErr(err))
	}
	if !found {
		return p.fail(ctx, "Failed to fill %q: element not found", selector)
	}
	return p.ok(ctx, "Filled %q", selector)
}

// ClickSave probes the fixed list of save-button candidates in order,
// giving each a short window, and clicks the first one present. Any
// fault while probing one candidate advances to the next.
func (p *Page) ClickSave(ctx context.Context) schemas.ActionResult {
	for _, cand := range saveCandidates {
		var err error
		if cand.byText {
			xpath := fmt.Sprintf(`//button[contains(normalize-space(.), %s)]`, xpathLiteral(cand.expr))
			err = p.run(ctx, perCandidateTimeout,
				chromedp.WaitVisible(xpath, chromedp.BySearch),
				chromedp.Click(xpath, chromedp.BySearch),
			)
		} else {
			err = p.run(ctx, perCandidateTimeout,
				chromedp.WaitVisible(cand.expr, chromedp.ByQuery),
				chromedp.Click(cand.expr, chromedp.ByQuery),
			)
		}
		if err == nil {
			return p.ok(ctx, "Clicked save button (%s)", cand.label)
		}
		p.log.Debug("Save candidate not usable.",
			zap.String("candidate", cand.label), zap.Error(err))
	}
	return p.fail(ctx, "Failed to find a save button after trying %d candidates", len(saveCandidates))
}

// WaitForSuccess waits for the green confirmation banner and scrapes its
// message text.
func (p *Page) WaitForSuccess(ctx context.Context) schemas.ActionResult {
	var msg string
	err := p.run(ctx, 5*time.Second,
		chromedp.WaitVisible(".bg-green-50", chromedp.ByQuery),
		chromedp.Text(".bg-green-50 .text-green-800", &msg, chromedp.ByQuery),
	)
	if err != nil {
		return p.fail(ctx, "Success message did not appear: %s", describeErr(err))
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Success banner appeared"
	}
	return p.ok(ctx, "%s", msg)
}

// WaitVisible waits for the selector to become visible within timeout.
func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) schemas.ActionResult {
	if timeout <= 0 {
		timeout = p.cfg.ActionTimeout
	}
	err := p.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
	)
	if err != nil {
		return p.fail(ctx, "Element %q did not become visible: %s", selector, describeErr(err))
	}
	return p.ok(ctx, "Element %q is visible", selector)
}

// Text scrapes the text content of the first element matching selector.
func (p *Page) Text(ctx context.Context, selector string) (string, schemas.ActionResult) {
	var text string
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return "", p.fail(ctx, "Failed to read text of %q: %s", selector, describeErr(err))
	}
	return strings.TrimSpace(text), p.ok(ctx, "Read text of %q", selector)
}

// Screenshot captures the full page as base64-encoded PNG. A capture
// either completes fully or reports failure; there are no partial
// screenshots.
func (p *Page) Screenshot(ctx context.Context) (string, schemas.ActionResult) {
	var buf []byte
	err := p.run(ctx, p.cfg.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", p.fail(ctx, "Failed to capture screenshot: %s", describeErr(err))
	}
	return base64.StdEncoding.EncodeToString(buf), p.ok(ctx, "Captured screenshot (%d bytes)", len(buf))
}

// describeErr keeps primitive messages short for the step log.
func describeErr(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return err.Error()
}

// xpathLiteral quotes s as an XPath string literal. XPath 1.0 has no
// escape sequences, so strings containing both quote kinds need concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	var b strings.Builder
	b.WriteString("concat(")
	for i, part := range strings.Split(s, `"`) {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + part + `"`)
	}
	b.WriteString(")")
	return b.String()
}
