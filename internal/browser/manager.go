// Package browser owns the headless Chrome instance and exposes the
// page-level action primitives the workflows are built from. One
// allocator and one browser process live for the whole service; each
// workflow invocation gets its own tab.
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/xkilldash9x/prefpilot/internal/config"
	"go.uber.org/zap"
)

// Manager holds the process-lifetime allocator and browser contexts.
type Manager struct {
	cfg config.BrowserConfig
	log *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
}

// NewManager starts the browser process. The parent context bounds the
// browser's lifetime; Shutdown must be called before the process exits.
func NewManager(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("browser")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	if cfg.DisableCache {
		opts = append(opts, chromedp.Flag("disk-cache-size", "0"))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	browserCtx, _ := chromedp.NewContext(allocCtx)

	// Materialize the browser process now so startup failures surface
	// here instead of on the first workflow.
	if err := chromedp.Run(browserCtx); err != nil {
		allocCancel()
		return nil, fmt.Errorf("starting headless browser: %w", err)
	}

	log.Info("Headless browser started.",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight))

	return &Manager{
		cfg:         cfg,
		log:         log,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
	}, nil
}

// NewPage opens a fresh tab with the configured viewport. The caller
// owns the page and must Close it.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	if err := m.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser is shut down: %w", err)
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)
	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(m.cfg.ViewportWidth), int64(m.cfg.ViewportHeight)),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("opening page: %w", err)
	}

	id := uuid.NewString()
	log := m.log.With(zap.String("page_id", id))
	log.Debug("Page opened.")

	return &Page{
		id:     id,
		ctx:    tabCtx,
		cancel: tabCancel,
		cfg:    m.cfg,
		log:    log,
	}, nil
}

// Shutdown closes the browser process gracefully, falling back to a hard
// cancel when the context expires first.
func (m *Manager) Shutdown(ctx context.Context) error {
	defer m.allocCancel()

	done := make(chan error, 1)
	go func() {
		done <- chromedp.Cancel(m.browserCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("closing browser: %w", err)
		}
		m.log.Info("Headless browser stopped.")
		return nil
	case <-ctx.Done():
		m.log.Warn("Graceful browser shutdown timed out; forcing cancel.")
		return ctx.Err()
	}
}
