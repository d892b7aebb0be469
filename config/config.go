// Package config loads, validates and saves the backtest configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete backtest configuration
type Config struct {
	Account AccountConfig `json:"account" yaml:"account"`
	Costs   CostsConfig   `json:"costs" yaml:"costs"`
	Risk    RiskConfig    `json:"risk" yaml:"risk"`
	Replay  ReplayConfig  `json:"replay" yaml:"replay"`
	Regime  RegimeConfig  `json:"regime" yaml:"regime"`
	Output  OutputConfig  `json:"output" yaml:"output"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

type AccountConfig struct {
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital" validate:"gt=0"`
}

// CostsConfig holds fractional slippage and commission rates.
type CostsConfig struct {
	Slippage         float64 `json:"slippage" yaml:"slippage" validate:"gte=0,lt=1"`
	CryptoCommission float64 `json:"crypto_commission" yaml:"crypto_commission" validate:"gte=0,lt=1"`
	EquityCommission float64 `json:"equity_commission" yaml:"equity_commission" validate:"gte=0,lt=1"`
}

type RiskConfig struct {
	DailyLossPct   float64 `json:"daily_loss_pct" yaml:"daily_loss_pct" validate:"gt=0,lt=1"`
	WeeklyLossPct  float64 `json:"weekly_loss_pct" yaml:"weekly_loss_pct" validate:"gt=0,lt=1"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct" validate:"gt=0,lt=1"`
	HalfSizeDays   int     `json:"half_size_days" yaml:"half_size_days" validate:"gte=0"`
	HalfSizeFactor float64 `json:"half_size_factor" yaml:"half_size_factor" validate:"gt=0,lte=1"`
	MaxPositionPct float64 `json:"max_position_pct" yaml:"max_position_pct" validate:"gte=0,lte=1"`
	MaxCryptoPct   float64 `json:"max_crypto_pct" yaml:"max_crypto_pct" validate:"gte=0,lte=1"`
	CashReservePct float64 `json:"cash_reserve_pct" yaml:"cash_reserve_pct" validate:"gte=0,lt=1"`
	MaxPositions   int     `json:"max_positions" yaml:"max_positions" validate:"gt=0"`
}

// ReplayConfig selects where historical bars come from.
type ReplayConfig struct {
	Source          string `json:"source" yaml:"source" validate:"oneof=csv sqlite"`
	DataDir         string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
	DBPath          string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	WarmupDays      int    `json:"warmup_days" yaml:"warmup_days" validate:"gte=0"`
	FetchTimeout    string `json:"fetch_timeout" yaml:"fetch_timeout"` // e.g. "30s"
	IndicatorWindow int    `json:"indicator_window" yaml:"indicator_window" validate:"gte=0"`
	Location        string `json:"location" yaml:"location"` // day and week boundaries
	Seed            int64  `json:"seed" yaml:"seed"`
}

type RegimeConfig struct {
	Symbol    string  `json:"symbol" yaml:"symbol"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0"`
	RiskOff   float64 `json:"risk_off" yaml:"risk_off" validate:"gte=0.25,lte=1"`
}

type OutputConfig struct {
	Dir       string `json:"dir" yaml:"dir" validate:"required"`
	JournalDB string `json:"journal_db,omitempty" yaml:"journal_db,omitempty"`
	CloseEnd  bool   `json:"close_end" yaml:"close_end"`
}

type LoggingConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
}

// Default returns a configuration with the stock thresholds and costs
func Default() *Config {
	l := risk.DefaultLimits()
	return &Config{
		Account: AccountConfig{InitialCapital: 100000},
		Costs: CostsConfig{
			Slippage:         sim.DefaultSlippage,
			CryptoCommission: sim.DefaultCryptoCommission,
			EquityCommission: sim.DefaultEquityCommission,
		},
		Risk: RiskConfig{
			DailyLossPct:   l.DailyLossPct,
			WeeklyLossPct:  l.WeeklyLossPct,
			MaxDrawdownPct: l.MaxDrawdownPct,
			HalfSizeDays:   l.HalfSizeDays,
			HalfSizeFactor: l.HalfSizeFactor,
			MaxPositionPct: l.MaxPositionPct,
			MaxCryptoPct:   l.MaxCryptoPct,
			CashReservePct: l.CashReservePct,
			MaxPositions:   sim.DefaultMaxPositions,
		},
		Replay: ReplayConfig{
			Source:       "csv",
			DataDir:      "./data",
			WarmupDays:   5,
			FetchTimeout: "30s",
			Location:     "UTC",
		},
		Regime:  RegimeConfig{Symbol: "UVXY", Threshold: 0.05, RiskOff: risk.MinRegimeMultiplier},
		Output:  OutputConfig{Dir: "./results"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadFromFile loads configuration from a file, YAML first with a JSON
// fallback. Missing keys keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("%w: parse config (tried YAML and JSON): %v", ErrInvalid, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML, or JSON for a .json path
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and the rules that span fields. Every
// failure wraps ErrInvalid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			if fe.Param() != "" {
				return fmt.Errorf("%w: %s must satisfy %s=%s", ErrInvalid, field, fe.Tag(), fe.Param())
			}
			return fmt.Errorf("%w: %s is %s", ErrInvalid, field, fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch c.Replay.Source {
	case "csv":
		if c.Replay.DataDir == "" {
			return fmt.Errorf("%w: replay.data_dir is required for csv source", ErrInvalid)
		}
	case "sqlite":
		if c.Replay.DBPath == "" {
			return fmt.Errorf("%w: replay.db_path is required for sqlite source", ErrInvalid)
		}
	}
	if _, err := c.FetchTimeout(); err != nil {
		return fmt.Errorf("%w: replay.fetch_timeout: %v", ErrInvalid, err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: replay.location: %v", ErrInvalid, err)
	}
	if c.Regime.Symbol != "" && c.Regime.Threshold <= 0 {
		return fmt.Errorf("%w: regime.threshold must be positive when regime.symbol is set", ErrInvalid)
	}
	return nil
}

func (c *Config) FetchTimeout() (time.Duration, error) {
	if c.Replay.FetchTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Replay.FetchTimeout)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", d)
	}
	return d, nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Replay.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Replay.Location)
}

// BacktestOptions turns the configuration into runner options for the
// range [start, end]. The config must already be valid.
func (c *Config) BacktestOptions(start, end time.Time) (backtest.Options, error) {
	if !end.After(start) {
		return backtest.Options{}, fmt.Errorf("%w: end %s must be after start %s", ErrInvalid,
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	timeout, err := c.FetchTimeout()
	if err != nil {
		return backtest.Options{}, fmt.Errorf("%w: replay.fetch_timeout: %v", ErrInvalid, err)
	}
	loc, err := c.Location()
	if err != nil {
		return backtest.Options{}, fmt.Errorf("%w: replay.location: %v", ErrInvalid, err)
	}

	return backtest.Options{
		Start:          start,
		End:            end,
		InitialCapital: c.Account.InitialCapital,
		Costs: sim.Costs{
			Slippage:         c.Costs.Slippage,
			CryptoCommission: c.Costs.CryptoCommission,
			EquityCommission: c.Costs.EquityCommission,
		},
		MaxPositions: c.Risk.MaxPositions,
		Limits: risk.Limits{
			DailyLossPct:   c.Risk.DailyLossPct,
			WeeklyLossPct:  c.Risk.WeeklyLossPct,
			MaxDrawdownPct: c.Risk.MaxDrawdownPct,
			HalfSizeDays:   c.Risk.HalfSizeDays,
			HalfSizeFactor: c.Risk.HalfSizeFactor,
			MaxPositionPct: c.Risk.MaxPositionPct,
			MaxCryptoPct:   c.Risk.MaxCryptoPct,
			CashReservePct: c.Risk.CashReservePct,
		},
		Regime: backtest.RegimeOptions{
			Symbol:    c.Regime.Symbol,
			Threshold: c.Regime.Threshold,
			RiskOff:   c.Regime.RiskOff,
		},
		Warmup:          time.Duration(c.Replay.WarmupDays) * 24 * time.Hour,
		FetchTimeout:    timeout,
		IndicatorWindow: c.Replay.IndicatorWindow,
		Location:        loc,
		StaleBars:       backtest.DefaultStaleBars,
		Seed:            c.Replay.Seed,
		CloseEnd:        c.Output.CloseEnd,
		CloseReason:     backtest.DefaultCloseReason,
	}, nil
}
