package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/journal"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
	"github.com/peter-kozarec/xtrade/pkg/xapi"
)

const EnvPrefix = "XTRADE"

type Config struct {
	Log      Log      `mapstructure:"log"`
	Xapi     Xapi     `mapstructure:"xapi"`
	Strategy Strategy `mapstructure:"strategy"`
	Backtest Backtest `mapstructure:"backtest"`
	Journal  Journal  `mapstructure:"journal"`
	Notify   Notify   `mapstructure:"notify"`
	Monitor  []string `mapstructure:"monitor"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Production bool   `mapstructure:"production"`
}

type Xapi struct {
	Mode            string        `mapstructure:"mode"`
	Transport       string        `mapstructure:"transport"`
	UserId          string        `mapstructure:"user_id"`
	Password        string        `mapstructure:"password"`
	AppName         string        `mapstructure:"app_name"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	CommandInterval time.Duration `mapstructure:"command_interval"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	Servers         []xapi.Server `mapstructure:"servers"`
}

// ServerList returns the configured servers, or the preset for Mode.
func (x Xapi) ServerList() []xapi.Server {
	if len(x.Servers) > 0 {
		return x.Servers
	}
	if x.Mode == "real" {
		return xapi.RealServers()
	}
	return xapi.DemoServers()
}

func (x Xapi) Credentials() xapi.Credentials {
	return xapi.Credentials{UserId: x.UserId, Password: x.Password, AppName: x.AppName}
}

type Strategy struct {
	Id        string   `mapstructure:"id"`
	Symbols   []string `mapstructure:"symbols"`
	Window    uint     `mapstructure:"window"`
	Threshold float64  `mapstructure:"threshold"`
	Volume    float64  `mapstructure:"volume"`
	Stop      float64  `mapstructure:"stop"`
}

type Backtest struct {
	Source       string    `mapstructure:"source"`
	Path         string    `mapstructure:"path"`
	Symbol       Symbol    `mapstructure:"symbol"`
	Timeframe    string    `mapstructure:"timeframe"`
	From         time.Time `mapstructure:"from"`
	To           time.Time `mapstructure:"to"`
	StartBalance float64   `mapstructure:"start_balance"`
	MinSpread    float64   `mapstructure:"min_spread"`
	MaxSpread    float64   `mapstructure:"max_spread"`
	Seed         int64     `mapstructure:"seed"`
	PageSize     int       `mapstructure:"page_size"`
	ResultsPath  string    `mapstructure:"results_path"`
}

// Symbol describes the replayed instrument, the simulator cannot look it up.
type Symbol struct {
	Name         string  `mapstructure:"name"`
	Category     string  `mapstructure:"category"`
	Precision    int     `mapstructure:"precision"`
	TickSize     float64 `mapstructure:"tick_size"`
	ContractSize float64 `mapstructure:"contract_size"`
}

// Parameters converts the section into run parameters.
func (b Backtest) Parameters() (common.BacktestParameters, error) {
	tf, err := common.ParseTimeframe(b.Timeframe)
	if err != nil {
		return common.BacktestParameters{}, err
	}
	return common.BacktestParameters{
		Symbol:       b.Symbol.Name,
		Timeframe:    tf,
		StartBalance: fixed.FromFloat64(b.StartBalance),
		MinSpread:    fixed.FromFloat64(b.MinSpread),
		MaxSpread:    fixed.FromFloat64(b.MaxSpread),
		Seed:         b.Seed,
		From:         b.From,
		To:           b.To,
	}, nil
}

func (s Symbol) Info() common.SymbolInfo {
	return common.SymbolInfo{
		Symbol:       s.Name,
		Category:     s.Category,
		Precision:    s.Precision,
		TickSize:     fixed.FromFloat64(s.TickSize),
		ContractSize: fixed.FromFloat64(s.ContractSize),
	}
}

type Journal struct {
	Driver   string                 `mapstructure:"driver"`
	Path     string                 `mapstructure:"path"`
	Postgres journal.PostgresConfig `mapstructure:"postgres"`
}

type Notify struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatId int64  `mapstructure:"telegram_chat_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.production", false)

	v.SetDefault("xapi.mode", "demo")
	v.SetDefault("xapi.transport", "tls")
	v.SetDefault("xapi.user_id", "")
	v.SetDefault("xapi.password", "")
	v.SetDefault("xapi.app_name", "xtrade")
	v.SetDefault("xapi.connect_timeout", 5*time.Second)
	v.SetDefault("xapi.command_interval", 200*time.Millisecond)
	v.SetDefault("xapi.ping_interval", 5*time.Minute)

	v.SetDefault("strategy.id", "mean-reversion")
	v.SetDefault("strategy.symbols", []string{"EURUSD"})
	v.SetDefault("strategy.window", 20)
	v.SetDefault("strategy.threshold", 2.0)
	v.SetDefault("strategy.volume", 0.1)
	v.SetDefault("strategy.stop", 0.005)

	v.SetDefault("backtest.source", "csv")
	v.SetDefault("backtest.path", "")
	v.SetDefault("backtest.symbol.name", "EURUSD")
	v.SetDefault("backtest.symbol.category", string(common.CategoryForex))
	v.SetDefault("backtest.symbol.precision", 5)
	v.SetDefault("backtest.symbol.tick_size", 0.00001)
	v.SetDefault("backtest.symbol.contract_size", 100000)
	v.SetDefault("backtest.timeframe", string(common.TimeframeH1))
	v.SetDefault("backtest.from", "")
	v.SetDefault("backtest.to", "")
	v.SetDefault("backtest.start_balance", 10000)
	v.SetDefault("backtest.min_spread", 5)
	v.SetDefault("backtest.max_spread", 20)
	v.SetDefault("backtest.seed", 1)
	v.SetDefault("backtest.page_size", 2000)
	v.SetDefault("backtest.results_path", "")

	v.SetDefault("journal.driver", "none")
	v.SetDefault("journal.path", "journal.db")
	v.SetDefault("journal.postgres.host", "localhost")
	v.SetDefault("journal.postgres.port", 5432)
	v.SetDefault("journal.postgres.user", "")
	v.SetDefault("journal.postgres.password", "")
	v.SetDefault("journal.postgres.database", "xtrade")
	v.SetDefault("journal.postgres.ssl_mode", "disable")

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", 0)

	v.SetDefault("monitor", []string{"positions_opened", "positions_closed", "positions_rejected", "disconnects"})
}

// Load reads the optional YAML file at path, then applies XTRADE_* environment
// overrides. A .env file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	switch c.Xapi.Mode {
	case "demo", "real":
	default:
		errs = append(errs, fmt.Errorf("xapi.mode: must be demo or real, got %q", c.Xapi.Mode))
	}
	switch c.Xapi.Transport {
	case "tls", "websocket":
	default:
		errs = append(errs, fmt.Errorf("xapi.transport: must be tls or websocket, got %q", c.Xapi.Transport))
	}

	if c.Strategy.Id == "" {
		errs = append(errs, errors.New("strategy.id: must not be empty"))
	}
	if c.Strategy.Window < 2 {
		errs = append(errs, errors.New("strategy.window: must be at least 2"))
	}

	if _, err := common.ParseTimeframe(c.Backtest.Timeframe); err != nil {
		errs = append(errs, fmt.Errorf("backtest.timeframe: %w", err))
	}
	switch c.Backtest.Source {
	case "broker", "csv", "duckdb", "mmap", "synthetic":
	default:
		errs = append(errs, fmt.Errorf("backtest.source: unknown source %q", c.Backtest.Source))
	}
	if !c.Backtest.From.IsZero() && !c.Backtest.To.IsZero() && !c.Backtest.From.Before(c.Backtest.To) {
		errs = append(errs, errors.New("backtest.from: must be before backtest.to"))
	}
	if c.Backtest.MinSpread < 0 || c.Backtest.MaxSpread < c.Backtest.MinSpread {
		errs = append(errs, errors.New("backtest.min_spread: spreads must satisfy 0 <= min <= max"))
	}
	if c.Backtest.PageSize <= 0 {
		errs = append(errs, errors.New("backtest.page_size: must be positive"))
	}

	switch c.Journal.Driver {
	case "none", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver))
	}

	return errors.Join(errs...)
}
