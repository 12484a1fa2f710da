// Command server runs the matching engine: a UDP/CSV ingress feeding a
// sharded dispatcher of per-symbol order books, with execution, cancel,
// and top-of-book reports serialized to stdout by an async report sink.
//
//	┌──────────┐    ┌──────────┐    ┌───────────────┐    ┌───────────┐
//	│   UDP    │───▶│ Exchange │───▶│   Manager     │───▶│ OrderBook │
//	│ listener │    │ (decode, │    │ (N shards,    │    │ (1/symbol)│
//	└──────────┘    │  gate)   │    │  SPSC queues) │    └─────┬─────┘
//	                └──────────┘    └───────────────┘          │
//	                                                           ▼
//	                ┌──────────┐    ┌──────────────┐    ┌────────────┐
//	                │ websocket│◀───│  ReportSink  │◀───│  reports   │
//	                │   feed   │    │ (1 reporter) │    └────────────┘
//	                └──────────┘    └──────┬───────┘
//	                                       ▼
//	                                     stdout
package main

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rishav/exchange-engine/internal/config"
	"github.com/rishav/exchange-engine/internal/dispatcher"
	"github.com/rishav/exchange-engine/internal/exchange"
	"github.com/rishav/exchange-engine/internal/ingress"
	"github.com/rishav/exchange-engine/internal/metrics"
	"github.com/rishav/exchange-engine/internal/reports"
	"github.com/rishav/exchange-engine/internal/reportsink"
	"github.com/rishav/exchange-engine/internal/riskgate"
	"github.com/rishav/exchange-engine/internal/types"
)

// udpIngress adapts the UDP listener to the exchange's Ingress surface.
type udpIngress struct {
	l *ingress.Listener
}

func (u udpIngress) Subscribe(handle func(line string)) exchange.Handle {
	return u.l.Subscribe(handle)
}

// countingSink wraps the report sink so overflow drops are visible on
// the Prometheus counter as well as the sink's own internal count.
type countingSink struct {
	sink *reportsink.Sink
	m    *metrics.Metrics
}

func (c countingSink) Submit(r reports.Report) bool {
	ok := c.sink.Submit(r)
	if !ok {
		c.m.ReportSinkDropped.Inc()
	}
	return ok
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	// Reports own stdout; logs go to stderr so the two streams never
	// interleave.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Stderr.WriteString("usage: server [flags] <port>\n")
		os.Exit(1)
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	tick := decimal.RequireFromString(cfg.TickSize)
	types.SetRenderTickSize(tick)
	priceSpec, err := types.SpecForTick(tick)
	if err != nil {
		log.Error("startup: bad tick size", zap.Error(err))
		os.Exit(1)
	}

	symbols := make([]types.Symbol, len(cfg.Symbols))
	for i, s := range cfg.Symbols {
		symbols[i] = types.NewSymbol(s)
	}

	m := metrics.New()

	sink := reportsink.New(os.Stdout, cfg.ReportSinkCapacity, log)
	gate := riskgate.New(riskgate.DefaultConfig())

	var feed *reportsink.Feed
	if cfg.WebsocketAddr != "" {
		feed = reportsink.NewFeed(log)
	}
	sink.SetTap(func(r reports.Report) {
		gate.UpdateFromReport(r)
		if feed != nil {
			feed.Publish(r)
		}
	})

	manager := dispatcher.NewManager(symbols, cfg.Shards, cfg.QueueCapacity, countingSink{sink: sink, m: m}, log)

	listener, err := ingress.Listen(cfg.Port, log)
	if err != nil {
		log.Error("startup: udp bind failed", zap.Int("port", cfg.Port), zap.Error(err))
		os.Exit(1)
	}

	exch := exchange.New(udpIngress{l: listener}, manager, sink, gate, priceSpec, m, log)

	// Interrupt/termination send the loopback "QUIT" datagram so
	// shutdown flows through the same path as a wire Quit event.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("signal received, sending quit")
		if err := ingress.SendQuit(cfg.Port); err != nil {
			log.Warn("loopback quit failed, stopping directly", zap.Error(err))
			exch.Stop()
		}
	}()

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Warn("metrics server exited", zap.Error(err))
			}
		}()
	}
	if feed != nil {
		mux := http.NewServeMux()
		mux.Handle("/feed", feed)
		go func() {
			if err := http.ListenAndServe(cfg.WebsocketAddr, mux); err != nil {
				log.Warn("websocket server exited", zap.Error(err))
			}
		}()
	}

	// Sample shard queue depths onto the gauge until shutdown.
	depthDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-depthDone:
				return
			case <-ticker.C:
				for i := 0; i < manager.ShardCount(); i++ {
					m.ShardQueueDepth.WithLabelValues(strconv.Itoa(i)).Set(float64(manager.QueueDepth(i)))
				}
			}
		}
	}()

	log.Info("engine started",
		zap.Int("port", cfg.Port),
		zap.Int("shards", cfg.Shards),
		zap.Strings("symbols", cfg.Symbols),
		zap.String("tick_size", cfg.TickSize))

	sink.Start()
	manager.Start()
	exch.Start() // blocks until Quit or signal

	close(depthDone)
	listener.Close()
	log.Info("engine stopped", zap.Int64("reports_dropped", sink.Dropped()))
}
