package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/prefpilot/internal/artifacts"
	"github.com/xkilldash9x/prefpilot/internal/browser"
	"github.com/xkilldash9x/prefpilot/internal/httpapi"
	"github.com/xkilldash9x/prefpilot/internal/intent"
	"github.com/xkilldash9x/prefpilot/internal/llmclient"
	"github.com/xkilldash9x/prefpilot/internal/mcp"
	"github.com/xkilldash9x/prefpilot/internal/observability"
	"github.com/xkilldash9x/prefpilot/internal/store"
	"github.com/xkilldash9x/prefpilot/internal/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool gateway and the user-record HTTP API.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// pageFactory adapts the browser manager to the engine's factory
// contract.
type pageFactory struct {
	mgr *browser.Manager
}

func (f pageFactory) NewPage(ctx context.Context) (workflow.Page, error) {
	p, err := f.mgr.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	log := observability.GetLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := store.New(cfg.Store.Path, log)
	sink := artifacts.NewSink(cfg.Artifacts.Dir, log)

	// The browser outlives any single request; its parent is the process,
	// not the signal context, so shutdown stays ordered.
	mgr, err := browser.NewManager(context.Background(), cfg.Browser, log)
	if err != nil {
		return err
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutCtx); err != nil {
			log.Warn("Browser shutdown did not complete cleanly.", zap.Error(err))
		}
	}()

	llm, err := llmclient.NewGeminiClient(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}

	engine := workflow.NewEngine(pageFactory{mgr: mgr}, st, sink, nil, log)
	classifier := intent.NewClassifier(llm, log)
	gateway := mcp.NewServer(engine, classifier, cfg.Target, Version, log)
	api := httpapi.NewServer(cfg.Server.Addr, st, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return api.ListenAndServe()
	})

	g.Go(func() error {
		return gateway.ServeStdio(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down.")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return api.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
