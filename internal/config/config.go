// Package config parses and validates the engine's flag-driven
// configuration, kept separate from the bootstrap wiring in cmd/server
// because the knob surface (shard count, queue capacities, tick size,
// log level, optional listen addresses) needs validation of its own.
package config

import (
	"flag"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds every knob the server's bootstrap needs. Only Port is
// positional ("server <port>"); everything else is a flag. Every flag
// except queue-capacity and report-capacity also has an
// environment-variable fallback.
type Config struct {
	// Port is the UDP port to bind (1..65535), the sole positional CLI
	// argument.
	Port int

	// Shards is the shard count N, at least 2, defaulting to half of
	// detected hardware concurrency.
	Shards int

	// QueueCapacity is each shard's ring buffer size; must be a power
	// of two.
	QueueCapacity uint64

	// ReportSinkCapacity is the report sink's bounded queue size; must
	// be a power of two.
	ReportSinkCapacity uint64

	// TickSize is the decimal tick size used both to derive the price
	// grid for decoding and to render report prices (0.01 by default).
	TickSize string

	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string

	// MetricsAddr, if non-empty, serves Prometheus metrics on this
	// address (e.g. ":9090").
	MetricsAddr string

	// WebsocketAddr, if non-empty, serves the market-data fan-out feed
	// on this address (e.g. ":9091").
	WebsocketAddr string

	// Symbols is the instrument universe: one book per symbol is created
	// at startup, and events for any other symbol are dropped at the
	// shard with a warning.
	Symbols []string
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultShardCount() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	return n
}

// Parse parses args (typically os.Args[1:]) into a Config and validates
// it. The single positional argument is the port; every other setting
// is an optional flag, falling back to an environment variable (none
// for the two queue capacities), falling back to a default.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("exchange-engine", flag.ContinueOnError)

	shards := fs.Int("shards", atoiOr(envOr("EXCHANGE_SHARDS", ""), defaultShardCount()), "number of shard workers (>= 2)")
	queueCapacity := fs.Uint64("queue-capacity", 1024, "per-shard event queue capacity (power of two)")
	reportCapacity := fs.Uint64("report-capacity", 4096, "report sink queue capacity (power of two)")
	tickSize := fs.String("tick-size", envOr("EXCHANGE_TICK_SIZE", "0.01"), "default decimal tick size for price rendering")
	logLevel := fs.String("log-level", envOr("EXCHANGE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	metricsAddr := fs.String("metrics-addr", envOr("EXCHANGE_METRICS_ADDR", ""), "address to serve Prometheus metrics on, empty disables")
	wsAddr := fs.String("ws-addr", envOr("EXCHANGE_WS_ADDR", ""), "address to serve the market-data websocket feed on, empty disables")
	symbols := fs.String("symbols", envOr("EXCHANGE_SYMBOLS", "AAPL,GOOGL,MSFT,AMZN,TSLA"), "comma-separated instrument universe")

	fs.Usage = func() {
		os.Stderr.WriteString("usage: exchange-engine [flags] <port>\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if fs.NArg() != 1 {
		return Config{}, errors.New("exactly one positional argument required: <port>")
	}

	port, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return Config{}, errors.Wrap(err, "invalid port")
	}

	cfg := Config{
		Port:               port,
		Shards:             *shards,
		QueueCapacity:      *queueCapacity,
		ReportSinkCapacity: *reportCapacity,
		TickSize:           *tickSize,
		LogLevel:           *logLevel,
		MetricsAddr:        *metricsAddr,
		WebsocketAddr:      *wsAddr,
		Symbols:            splitSymbols(*symbols),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field for sanity, returning a wrapped error
// naming the first problem found.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("port %d out of range 1..65535", c.Port)
	}
	if c.Shards < 2 {
		return errors.Errorf("shards %d must be >= 2", c.Shards)
	}
	if !isPowerOfTwo(c.QueueCapacity) {
		return errors.Errorf("queue-capacity %d must be a power of two", c.QueueCapacity)
	}
	if !isPowerOfTwo(c.ReportSinkCapacity) {
		return errors.Errorf("report-capacity %d must be a power of two", c.ReportSinkCapacity)
	}
	if tick, err := decimal.NewFromString(c.TickSize); err != nil || tick.Sign() <= 0 {
		return errors.Errorf("tick-size %q must be a positive decimal", c.TickSize)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log-level %q must be one of debug, info, warn, error", c.LogLevel)
	}
	if len(c.Symbols) == 0 {
		return errors.New("at least one symbol required")
	}
	for _, s := range c.Symbols {
		if len(s) == 0 || len(s) > 8 {
			return errors.Errorf("symbol %q must be 1..8 bytes", s)
		}
	}
	return nil
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isPowerOfTwo(n uint64) bool {
	return n != 0 && n&(n-1) == 0
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
