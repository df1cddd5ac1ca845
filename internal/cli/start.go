package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/salesloop/autopilot/internal/config"
	"github.com/salesloop/autopilot/internal/daemon"
)

func newStartCmd() *cobra.Command {
	var (
		port        int
		foreground  bool
		intervalSec float64
		pprofAddr   string
		apiKey      string
		envFile     string
		dbDriver    string
		dbURL       string
		enableOtel  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start Autopilot (HTTP API + evaluation sweep)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			home := config.MustHomeFrom(cmd.Context())

			opts := daemon.StartOptions{
				Home:        home,
				Port:        port,
				IntervalSec: intervalSec,
				PprofAddr:   pprofAddr,
				APIKey:      apiKey,
				DBDriver:    dbDriver,
				DBURL:       dbURL,
				EnableOtel:  enableOtel,
			}

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting Autopilot in foreground on port %d\n", port)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Autopilot started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "API: http://localhost:%d\n", port)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8745, "Port for the HTTP API")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().Float64Var(&intervalSec, "interval", 300, "Evaluation sweep interval (seconds; 0 disables)")
	cmd.Flags().StringVar(&pprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require X-API-Key on the API (or set AUTOPILOT_API_KEY)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")
	cmd.Flags().StringVar(&dbDriver, "db-driver", "sqlite", "Store driver: sqlite or postgres")
	cmd.Flags().StringVar(&dbURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter, HTTP instrumentation)")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}
