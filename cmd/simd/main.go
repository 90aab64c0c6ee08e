// Command simd runs the strategy simulation engine: single backtests,
// parameter sweeps, walk-forward validation, Monte Carlo resampling, or
// the HTTP API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/strategy-sim/internal/api"
	"github.com/atlas-desktop/strategy-sim/internal/config"
	"github.com/atlas-desktop/strategy-sim/internal/data"
	"github.com/atlas-desktop/strategy-sim/internal/sim"
	"github.com/atlas-desktop/strategy-sim/internal/validate"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataFile := flag.String("data", "", "CSV bar file (overrides config)")
	mode := flag.String("mode", "backtest", "backtest | sweep | walkforward | montecarlo | serve")
	logLevel := flag.String("log-level", "", "override configured log level")
	tradesOut := flag.String("trades-out", "", "write the trade log CSV here after a backtest")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dataFile != "" {
		cfg.DataFile = *dataFile
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		level = *logLevel
	}
	logger := setupLogger(level)
	defer logger.Sync()

	if cfg.DataFile == "" {
		logger.Fatal("no data file given, use -data or data_file in the config")
	}
	ser, err := data.LoadCSV(cfg.DataFile)
	if err != nil {
		logger.Fatal("loading bars failed", zap.String("file", cfg.DataFile), zap.Error(err))
	}
	logger.Info("loaded series",
		zap.String("file", cfg.DataFile),
		zap.Int("bars", ser.Len()),
		zap.Time("first", ser.First().Timestamp),
		zap.Time("last", ser.Last().Timestamp),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "backtest":
		res, err := sim.New(logger).Run(ctx, ser, cfg.Sim)
		if err != nil {
			logger.Fatal("backtest failed", zap.Error(err))
		}
		if *tradesOut != "" {
			if err := data.ExportTradeLog(*tradesOut, res.Trades); err != nil {
				logger.Fatal("trade log export failed", zap.Error(err))
			}
			logger.Info("trade log written", zap.String("file", *tradesOut))
		}
		printJSON(logger, res)

	case "sweep":
		report, err := validate.NewSweeper(logger).Run(ctx, ser, cfg.Sim, cfg.Sweep,
			func(done, total int) {
				logger.Info("sweep progress", zap.Int("done", done), zap.Int("total", total))
			})
		if err != nil {
			logger.Fatal("sweep failed", zap.Error(err))
		}
		printJSON(logger, report)

	case "walkforward":
		report, err := validate.NewValidator(logger).Run(ctx, ser, cfg.Sim, cfg.WalkForward)
		if err != nil {
			logger.Fatal("walk-forward failed", zap.Error(err))
		}
		printJSON(logger, report)

	case "montecarlo":
		res, err := sim.New(logger).Run(ctx, ser, cfg.Sim)
		if err != nil {
			logger.Fatal("backtest failed", zap.Error(err))
		}
		mc, err := validate.MonteCarlo(logger, res.Trades, cfg.Sim.InitialCapital, cfg.MonteCarlo)
		if err != nil {
			logger.Fatal("monte carlo failed", zap.Error(err))
		}
		printJSON(logger, mc)

	case "serve":
		srv := api.NewServer(logger, cfg.Server, ser, cfg.Sim)
		if err := srv.Start(ctx); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}

	default:
		logger.Fatal("unknown mode", zap.String("mode", *mode))
	}
}

func setupLogger(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core)
}

func printJSON(logger *zap.Logger, v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Error("encoding output failed", zap.Error(err))
	}
}
