// Command busdemo runs a self-contained hookbus pipeline: a publisher feeds
// order events through the engine into Go handlers, a retried handler, an
// optional JavaScript handler, and a timer-driven stats reporter.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/nicholasjackson/env"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/hookbus/config"
	"github.com/coachpo/hookbus/lib/telemetry"
	"github.com/coachpo/hookbus/observability"
	"github.com/coachpo/hookbus/pkg/bus"
	"github.com/coachpo/hookbus/pkg/script"
)

const (
	topicOrders = bus.Topic("orders.created")

	publishInterval          = 100 * time.Millisecond
	statsInterval            = time.Second
	retryAttempts            = 3
	retryMaxInterval         = 50 * time.Millisecond
	telemetryShutdownTimeout = 5 * time.Second
)

var (
	logLevel = env.String("LOG_LEVEL", false,
		"info", "Log output level [trace, debug, info, warn, error]")
	scriptPath = env.String("DEMO_SCRIPT", false,
		"", "Optional JavaScript handler registered on orders.created")
)

// orderEvent is the demo payload. Prices stay decimal end to end.
type orderEvent struct {
	ID     string          `json:"id"`
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Qty    decimal.Decimal `json:"qty"`
}

type stats struct {
	Published int64  `json:"published"`
	Handled   int64  `json:"handled"`
	Faults    int    `json:"faults"`
	Depth     int    `json:"depth"`
	Notional  string `json:"notional"`
}

func main() {
	cfgPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()
	env.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "busdemo",
		Level: hclog.LevelFromString(*logLevel),
	})
	observability.SetLogger(observability.NewHCLogger(logger.Named("bus")))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := loadSettings(logger, *cfgPath)

	_, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("initialize telemetry", "error", err)
		os.Exit(1)
	}

	engine, err := bus.NewFromConfig(cfg.Engine)
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}

	var handled atomic.Int64
	var notional atomic.Pointer[decimal.Decimal]
	zero := decimal.Zero
	notional.Store(&zero)

	if err := engine.Register(topicOrders, bus.WithTopicData(func(topic bus.Topic, data any) error {
		order, ok := data.(orderEvent)
		if !ok {
			return errors.New("unexpected payload type")
		}
		handled.Add(1)
		next := notional.Load().Add(order.Price.Mul(order.Qty))
		notional.Store(&next)
		logger.Debug("order handled", "topic", string(topic), "id", order.ID, "symbol", order.Symbol)
		return nil
	})); err != nil {
		logger.Error("register order handler", "error", err)
		os.Exit(1)
	}

	// Every seventh order fails on first touch; the retry wrapper absorbs it.
	var flakyCalls atomic.Int64
	flaky := bus.Retry(bus.WithData(func(any) error {
		if flakyCalls.Add(1)%7 == 0 {
			return errors.New("transient downstream refusal")
		}
		return nil
	}), retryAttempts, retryMaxInterval)
	if err := engine.Register(topicOrders, flaky); err != nil {
		logger.Error("register flaky handler", "error", err)
		os.Exit(1)
	}

	if *scriptPath != "" {
		if err := registerScript(logger, engine, *scriptPath); err != nil {
			logger.Error("register script handler", "script", *scriptPath, "error", err)
			os.Exit(1)
		}
	}

	var published atomic.Int64
	statsTopic, err := engine.Timer(statsInterval)
	if err != nil {
		logger.Error("register stats timer", "error", err)
		os.Exit(1)
	}
	if err := engine.Register(statsTopic, bus.WithData(func(any) error {
		snapshot := stats{
			Published: published.Load(),
			Handled:   handled.Load(),
			Faults:    engine.Faults().Len(),
			Depth:     engine.Depth(),
			Notional:  notional.Load().StringFixed(2),
		}
		line, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		logger.Info("stats", "snapshot", string(line))
		return nil
	})); err != nil {
		logger.Error("register stats handler", "error", err)
		os.Exit(1)
	}

	engine.Start()

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		publishOrders(ctx, logger, engine, &published)
	})

	logger.Info("busdemo started", "engine", engine.ID(), "capacity", engine.QueueCapacity())
	<-ctx.Done()
	logger.Info("shutdown signal received")

	lifecycle.Wait()
	engine.Stop()
	reportFaults(logger, engine)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", "error", err)
	}
	logger.Info("busdemo stopped", "published", published.Load(), "handled", handled.Load())
}

func loadSettings(logger hclog.Logger, path string) config.Settings {
	cfg, err := config.Load(path)
	if err == nil {
		logger.Info("configuration loaded", "path", path)
		return cfg
	}
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("configuration file not found, using defaults with env overrides")
		return config.FromEnv()
	}
	logger.Error("load config", "error", err)
	os.Exit(1)
	return config.Settings{}
}

func registerScript(logger hclog.Logger, engine *bus.Engine, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	handler, err := script.Compile(path, string(source))
	if err != nil {
		return err
	}
	if err := handler.Bind("log", func(msg string) {
		logger.Info("script", "handler", handler.Name(), "msg", msg)
	}); err != nil {
		return err
	}
	logger.Info("script handler registered", "handler", handler.Name())
	return engine.Register(topicOrders, handler.Callback())
}

func publishOrders(ctx context.Context, logger hclog.Logger, engine *bus.Engine, published *atomic.Int64) {
	symbols := []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}
	basePrice := decimal.RequireFromString("100.00")
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		order := orderEvent{
			ID:     uuid.NewString(),
			Symbol: symbols[i%len(symbols)],
			Price:  basePrice.Add(decimal.NewFromInt(int64(i % 17))),
			Qty:    decimal.NewFromInt(int64(1 + i%5)),
		}
		if err := engine.Publish(ctx, topicOrders, order); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("publish failed", "error", err)
			continue
		}
		published.Add(1)
	}
}

func reportFaults(logger hclog.Logger, engine *bus.Engine) {
	records := engine.Faults().Drain()
	if len(records) == 0 {
		return
	}
	payload, err := json.Marshal(records)
	if err != nil {
		logger.Error("encode fault journal", "error", err)
		return
	}
	logger.Warn("handler faults during run", "count", len(records), "journal", string(payload))
}
