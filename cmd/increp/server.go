package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/increp/internal/api"
	"github.com/kalambet/increp/internal/config"
	"github.com/kalambet/increp/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the report worker and the sheet poller (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runServer(ctx, a, listen)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runMCP(ctx, a)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running increp server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default 127.0.0.1:<server.port>)")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "increp.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func appHandler(a *app, w *worker.Worker) http.Handler {
	deps := api.AppDeps{
		Token:       a.cfg.Server.APIToken,
		Sidebar:     a.panel,
		Queue:       a.queue,
		Jobs:        a.store,
		Results:     w,
		Trigger:     a.trigger,
		Submissions: worker.NewDispatcher(a.trigger, a.queue),
		Rows:        a.sheet,
	}
	if a.isLocal() {
		deps.Files = a.drive
	}
	return api.NewAppHandler(deps)
}

func runServer(ctx context.Context, a *app, listen string) error {
	fmt.Fprintf(os.Stderr, "increp version %s\n", version)

	if a.cfg.Server.APIToken == "" {
		printWarning("INCREP_API_TOKEN is not set; authenticated routes will reject every request")
	}

	if listen == "" {
		listen = fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	}

	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	if pid, err := readPIDFile(pidPath); err == nil && processAlive(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	if _, err := a.headers.EnsureInitialized(ctx); err != nil {
		slog.Warn("could not prepare the header row", "error", err)
	}
	mode := a.trigger.ActivateCurrentTrigger(ctx)
	slog.Info("trigger mode", "mode", mode)

	interval, err := a.cfg.PollInterval()
	if err != nil {
		return err
	}

	w := worker.NewWorker(a.store, a.generator, 0).WithSettings(a.settings)
	srv := &http.Server{
		Addr:              listen,
		Handler:           appHandler(a, w),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "increp listening on %s\n", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	if interval > 0 {
		poller := worker.NewPoller(a.sheet, worker.NewDispatcher(a.trigger, a.queue), interval)
		g.Go(func() error {
			poller.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runMCP(ctx context.Context, a *app) error {
	a.trigger.ActivateCurrentTrigger(ctx)

	w := worker.NewWorker(a.store, a.generator, 0).WithSettings(a.settings)
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Queue:    a.queue,
		Jobs:     a.store,
		Results:  w,
		Trigger:  a.trigger,
		Sidebar:  a.panel,
		Settings: a.settings,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// stdin closing ends the session.
		defer cancel()
		err := server.NewStdioServer(mcpSrv).Listen(gctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	})
	slog.Info("MCP server started (stdio transport)")
	return g.Wait()
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("increp is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop increp (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to increp (PID %d)", pid)
	return nil
}
