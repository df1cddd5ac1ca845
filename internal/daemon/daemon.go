// Package daemon runs the autopilot service as a managed process: singleton
// lock, pid/addr files, foreground or background start, stop, status, and the
// periodic evaluation sweep alongside the HTTP server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/salesloop/autopilot/internal/httpapi"
	"github.com/salesloop/autopilot/internal/otel"
	"github.com/salesloop/autopilot/internal/store"
)

func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = 8745
	}

	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return err
	}

	// Singleton lock, released on exit.
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(opts.PprofAddr)

	// Ensure DB schema exists before serving (SQLite only; Postgres migrates on connect).
	if opts.DBDriver != "postgres" {
		if err := store.EnsureSchema(opts.Home); err != nil {
			return err
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	_ = os.WriteFile(addrPath(opts.Home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	// Early port check for clearer error.
	if err := checkPortAvailable(opts.Port); err != nil {
		return err
	}

	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("AUTOPILOT_API_KEY")
	}
	srvOpts := httpapi.ServerOptions{
		Home:     opts.Home,
		Addr:     addr,
		APIKey:   opts.APIKey,
		DBDriver: opts.DBDriver,
		DBURL:    opts.DBURL,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "autopilot")
		if err != nil {
			slog.Warn("otel init failed, serving without instrument metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
			if err := otel.InitMetrics(ctx); err != nil {
				slog.Warn("otel instrument init failed", "err", err)
			}
		}
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}
	app.Start(ctx)

	slog.Info("autopilot starting", "addr", addr, "home", opts.Home)
	errCh := make(chan error, 1)
	go func() {
		// Sweep runs alongside the HTTP server so demotions do not depend on
		// every caller remembering to request an evaluation after a reversal.
		go runSweep(ctx, opts, app)
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("autopilot already running (pid %d)", st.PID)
	}

	logFile := filepath.Join(protectedDir(opts.Home), "autopilot.log")
	stderr, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Port),
		"--interval", fmt.Sprintf("%g", opts.IntervalSec),
		"--db-driver", opts.DBDriver,
	}
	if opts.DBURL != "" {
		args = append(args, "--db-url", opts.DBURL)
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if !opts.EnableOtel {
		args = append(args, "--otel=false")
	}

	cmd := exec.Command(exe, args...)
	// The API key travels through the environment, not argv, so it never
	// shows up in the process table.
	cmd.Env = childEnv(os.Environ(), opts.APIKey)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for the pid file to appear or the process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Fallback to started pid even if status isn't ready yet.
	return cmd.Process.Pid, nil
}

// childEnv returns the environment for the daemon child, appending the API
// key when one was given on the command line.
func childEnv(base []string, apiKey string) []string {
	if apiKey == "" {
		return base
	}
	env := make([]string, 0, len(base)+1)
	env = append(env, base...)
	return append(env, "AUTOPILOT_API_KEY="+apiKey)
}

func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return false, err
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pb)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}

func startPprof(addr string) {
	if addr == "" {
		return
	}
	go func() {
		// Uses DefaultServeMux, which has pprof handlers registered via blank import.
		if err := http.ListenAndServe(addr, nil); err != nil {
			slog.Info("pprof server stopped", "addr", addr, "err", err)
		}
	}()
}
