package daemon

// StartOptions configures the autopilot process (home, port, sweep interval, DB, metrics).
type StartOptions struct {
	Home        string
	Port        int
	IntervalSec float64 // evaluation sweep interval (seconds); <= 0 disables the sweep
	PprofAddr   string  // if set, serve pprof on this address
	APIKey      string  // if set, require X-API-Key on the HTTP API
	DBDriver    string  // "sqlite" (default) or "postgres"
	DBURL       string  // for postgres: connection string (or DATABASE_URL env)
	EnableOtel  bool    // enable OpenTelemetry metrics (Prometheus exporter + HTTP instrumentation)
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
