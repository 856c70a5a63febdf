package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tagger/internal/api"
	"github.com/joescharf/tagger/internal/daemon"
	"github.com/joescharf/tagger/internal/logger"
)

const (
	shutdownTimeout = 5 * time.Second
	stopTimeout     = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server exposing the tag API under /api/v1.
By default it listens on port 8080. Use --port to change it.

'tagger serve start' runs the server in the background; 'stop' and
'status' manage it through a PID file in the config directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the API server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

func configDir() string {
	dir, err := configDirFunc()
	if err != nil {
		return "."
	}
	return dir
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(configDir(), "tagger-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(configDir(), "tagger-serve.log")
}

func serveRun(ctx context.Context) error {
	svc, err := getService()
	if err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(os.Getpid()); err != nil {
		return errors.WithHint(err, "stop it with 'tagger serve stop'")
	}
	defer func() { _ = pf.Release(os.Getpid()) }()

	srv := api.NewServer(svc, newLLMClient(), api.Options{
		RateLimit: viper.GetFloat64("api.rate_limit"),
		Burst:     viper.GetInt("api.burst"),
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	log := logger.ComponentLogger("serve")
	log.Infow("listening", "addr", httpServer.Addr, logger.FieldDialect, viper.GetString("dialect"))
	ui.Info("Serving API at http://localhost%s/api/v1", httpServer.Addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	log.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return errors.WithHint(
			errors.Newf("server already running (pid %d)", pid),
			"stop it with 'tagger serve stop'",
		)
	}

	exe, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "locate executable")
	}
	args := []string{"serve", "--port", fmt.Sprint(viper.GetInt("port"))}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v in the background", exe, args)
		return nil
	}

	if err := os.MkdirAll(configDir(), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open server log")
	}
	defer func() { _ = logFile.Close() }()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)
	if err := child.Start(); err != nil {
		return errors.Wrap(err, "start server")
	}
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return errors.Wrap(err, "write PID file")
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Release(pid)
		return errors.New("server is not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return errors.Wrapf(err, "signal pid %d", pid)
	}
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, running := pf.IsRunning(); !running {
			_ = pf.Release(pid)
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not stop within %s, killing it", stopTimeout)
	if err := pf.Signal(sigKILL()); err != nil {
		return errors.Wrapf(err, "kill pid %d", pid)
	}
	_ = pf.Release(pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server is not running")
		return nil
	}
	ui.Success("Server is running (pid %d) on port %d", pid, viper.GetInt("port"))
	return nil
}
