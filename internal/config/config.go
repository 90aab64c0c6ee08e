// Package config loads engine configuration from an optional file plus
// environment overrides, with defaults that produce a runnable setup.
package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/strategy-sim/pkg/types"
)

// Config is the full application configuration.
type Config struct {
	LogLevel    string
	DataFile    string
	Server      types.ServerConfig
	Sim         types.SimConfig
	Sweep       types.SweepConfig
	WalkForward types.WalkForwardConfig
	MonteCarlo  types.MonteCarloConfig
}

// Load reads configuration from the given file when path is non-empty,
// applies STRATEGY_SIM_* environment overrides, and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix("STRATEGY_SIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Sim.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("data_file", "")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ws")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("sim.symbol", "BTC-USD")
	v.SetDefault("sim.initial_capital", 10000.0)
	v.SetDefault("sim.bars_per_year", 8760)
	v.SetDefault("sim.cash_policy", string(types.CashPolicyScaleDown))
	v.SetDefault("sim.strategy.fast_period", 12)
	v.SetDefault("sim.strategy.slow_period", 26)
	v.SetDefault("sim.strategy.signal_period", 9)
	v.SetDefault("sim.strategy.norm_window", 100)
	v.SetDefault("sim.strategy.enter_threshold", 0.5)
	v.SetDefault("sim.strategy.risk_per_trade", 0.01)
	v.SetDefault("sim.strategy.stop_loss_pct", 0.02)
	v.SetDefault("sim.strategy.max_leverage", 1.0)
	v.SetDefault("sim.fees.bps", 10.0)
	v.SetDefault("sim.fees.fixed", 0.0)
	v.SetDefault("sim.slippage.model", string(types.SlippageFixedBps))
	v.SetDefault("sim.slippage.bps", 1.0)
	v.SetDefault("sim.slippage.amount", 0.0)
	v.SetDefault("sim.slippage.impact_factor", 0.1)

	v.SetDefault("sweep.objective", "sharpe")
	v.SetDefault("sweep.workers", 0)

	v.SetDefault("walkforward.train_bars", 2000)
	v.SetDefault("walkforward.test_bars", 500)
	v.SetDefault("walkforward.step_bars", 500)
	v.SetDefault("walkforward.objective", "sharpe")
	v.SetDefault("walkforward.workers", 0)

	v.SetDefault("montecarlo.iterations", 1000)
	v.SetDefault("montecarlo.seed", 1)
	v.SetDefault("montecarlo.ruin_fraction", 0.5)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		LogLevel: v.GetString("log_level"),
		DataFile: v.GetString("data_file"),
		Server: types.ServerConfig{
			Host:          v.GetString("server.host"),
			Port:          v.GetInt("server.port"),
			WebSocketPath: v.GetString("server.websocket_path"),
			ReadTimeout:   v.GetDuration("server.read_timeout"),
			WriteTimeout:  v.GetDuration("server.write_timeout"),
		},
		Sim: types.SimConfig{
			Symbol:         v.GetString("sim.symbol"),
			InitialCapital: decimal.NewFromFloat(v.GetFloat64("sim.initial_capital")),
			BarsPerYear:    v.GetInt("sim.bars_per_year"),
			CashPolicy:     types.CashPolicy(v.GetString("sim.cash_policy")),
			Strategy: types.StrategyConfig{
				FastPeriod:     v.GetInt("sim.strategy.fast_period"),
				SlowPeriod:     v.GetInt("sim.strategy.slow_period"),
				SignalPeriod:   v.GetInt("sim.strategy.signal_period"),
				NormWindow:     v.GetInt("sim.strategy.norm_window"),
				EnterThreshold: decimal.NewFromFloat(v.GetFloat64("sim.strategy.enter_threshold")),
				RiskPerTrade:   decimal.NewFromFloat(v.GetFloat64("sim.strategy.risk_per_trade")),
				StopLossPct:    decimal.NewFromFloat(v.GetFloat64("sim.strategy.stop_loss_pct")),
				MaxLeverage:    decimal.NewFromFloat(v.GetFloat64("sim.strategy.max_leverage")),
			},
			Fees: types.FeeConfig{
				Bps:   decimal.NewFromFloat(v.GetFloat64("sim.fees.bps")),
				Fixed: decimal.NewFromFloat(v.GetFloat64("sim.fees.fixed")),
			},
			Slippage: types.SlippageConfig{
				Model:        types.SlippageModelKind(v.GetString("sim.slippage.model")),
				Bps:          decimal.NewFromFloat(v.GetFloat64("sim.slippage.bps")),
				Amount:       decimal.NewFromFloat(v.GetFloat64("sim.slippage.amount")),
				ImpactFactor: decimal.NewFromFloat(v.GetFloat64("sim.slippage.impact_factor")),
			},
		},
		Sweep: types.SweepConfig{
			Grid:      gridFromViper(v.Get("sweep.grid")),
			Objective: v.GetString("sweep.objective"),
			Workers:   v.GetInt("sweep.workers"),
		},
		WalkForward: types.WalkForwardConfig{
			TrainBars: v.GetInt("walkforward.train_bars"),
			TestBars:  v.GetInt("walkforward.test_bars"),
			StepBars:  v.GetInt("walkforward.step_bars"),
			Grid:      gridFromViper(v.Get("walkforward.grid")),
			Objective: v.GetString("walkforward.objective"),
			Workers:   v.GetInt("walkforward.workers"),
		},
		MonteCarlo: types.MonteCarloConfig{
			Iterations:   v.GetInt("montecarlo.iterations"),
			Seed:         v.GetInt64("montecarlo.seed"),
			RuinFraction: decimal.NewFromFloat(v.GetFloat64("montecarlo.ruin_fraction")),
		},
	}
}

// gridFromViper converts the loosely-typed map a config file yields
// into a parameter grid. Non-numeric values are dropped.
func gridFromViper(raw interface{}) map[string][]float64 {
	m, ok := raw.(map[string]interface{})
	if !ok || len(m) == 0 {
		return nil
	}
	grid := make(map[string][]float64, len(m))
	for key, val := range m {
		items, ok := val.([]interface{})
		if !ok {
			continue
		}
		var vals []float64
		for _, item := range items {
			switch x := item.(type) {
			case float64:
				vals = append(vals, x)
			case int:
				vals = append(vals, float64(x))
			case int64:
				vals = append(vals, float64(x))
			}
		}
		if len(vals) > 0 {
			grid[key] = vals
		}
	}
	if len(grid) == 0 {
		return nil
	}
	return grid
}
