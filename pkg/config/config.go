package config

// this holds the resolved configuration values from CLI
//
//nolint:lll // readablity
var (
	LogLevel          string // sets the log level (zap log level values)
	LogFormat         string // text vs json
	LogFilter         string // zapfilter rules applied on top of the log level
	EnableTelemetry   bool   // enable telemetry
	TelemetryEndpoint string // endpoint for telemetry (host:port or "stdout")
	WaitForServices   string // duration to wait for other services to be ready

	// serve command
	ServerAddr      string // listen addr for the fixture API
	DataDir         string // directory holding the session fixture files
	CacheExpiration string // duration after which a loaded session is reloaded

	// replay command
	APIURL       string  // base URL of the telemetry API
	APITimeout   string  // http client timeout, 0 means none
	SessionID    string  // session to replay
	Lap          int     // lap to select
	Channel      string  // channel shown in the chart
	LatChannel   string  // channel holding the latitude samples
	LngChannel   string  // channel holding the longitude samples
	SpeedChannel string  // channel used to color the track
	Rate         float64 // playback rate of the simulated player
	PollInterval string  // interval of the playback position polling
	ChartPNG     string  // file receiving a chart snapshot at lap end
	PairByIndex  bool    // pair lat/lng samples by position instead of time
)
