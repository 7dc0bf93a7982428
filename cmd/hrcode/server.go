package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/hrcode/internal/api"
	"github.com/kalambet/hrcode/internal/config"
	"github.com/kalambet/hrcode/internal/gitrepo"
	"github.com/kalambet/hrcode/internal/ingest"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and archive worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		withWatch, _ := cmd.Flags().GetBool("watch")
		return runServer(cmd.Context(), withMCP, withWatch)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the downloads directory and archive new solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context())
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP(cmd.Context())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show hrcode system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
	serveCmd.Flags().Bool("watch", false, "also watch the downloads directory")
}

// startWorker runs the archive worker until ctx is cancelled.
func startWorker(ctx context.Context, a *app) {
	worker := ingest.NewWorker(a.store, a.archiver(a.archiveOptions()), 500*time.Millisecond)
	worker.SetSpoolDir(a.spoolDir())
	go worker.Run(ctx)
}

func startWatcher(ctx context.Context, a *app) (*ingest.Watcher, error) {
	w, err := ingest.NewWatcher(a.cfg.Downloads.Dir, a.store, 0)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return nil, fmt.Errorf("watching %s: %w", a.cfg.Downloads.Dir, err)
	}
	return w, nil
}

func startMCP(ctx context.Context, a *app) {
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:  a.store,
		Loader: a.loader,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")
}

func runServer(parent context.Context, withMCP, withWatch bool) error {
	fmt.Fprintf(os.Stderr, "hrcode version %s\n", version)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireRepo(parent); err != nil {
		return err
	}

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		printWarning("hrcode is already running on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}

	token := a.cfg.Server.APIToken
	if token == "" {
		token = uuid.New().String()
		printWarning("HRCODE_API_TOKEN is not set; using a one-off token for this run: %s", token)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startWorker(ctx, a)

	if withWatch {
		w, err := startWatcher(ctx, a)
		if err != nil {
			return err
		}
		defer w.Stop()
	}
	if withMCP {
		startMCP(ctx, a)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Store:    a.store,
		Loader:   a.loader,
		SpoolDir: a.spoolDir(),
		Token:    token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "hrcode listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runWatch(parent context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireRepo(parent); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startWorker(ctx, a)
	w, err := startWatcher(ctx, a)
	if err != nil {
		return err
	}
	defer w.Stop()

	printStep("Watching %s, press Ctrl-C to stop", a.cfg.Downloads.Dir)
	<-ctx.Done()
	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}

func runMCP(parent context.Context) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.requireRepo(parent); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startWorker(ctx, a)

	stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{
		Store:  a.store,
		Loader: a.loader,
	}))
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if gitrepo.Open(cfg.Repo.Root).IsRepo(ctx) {
		printStatus("Repository", "%s", cfg.Repo.Root)
	} else {
		printStatus("Repository", "%s (not a git repository)", cfg.Repo.Root)
	}
	printStatus("Downloads", "%s", cfg.Downloads.Dir)

	if running && cfg.Server.APIToken != "" {
		ac := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}
		if resp, err := ac.get(ctx, "/archives?limit=100"); err == nil {
			var archives []json.RawMessage
			if decodeJSON(resp, &archives) == nil {
				printStatus("Archives", "%s", countLabel(len(archives), 100))
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
