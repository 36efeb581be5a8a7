package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jtorres-1/mirror-trade/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Logging struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logging"`
	Trading  TradingConfig  `yaml:"trading"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Clock    ClockConfig    `yaml:"clock"`
	Backfill BackfillConfig `yaml:"backfill"`
	Executor ExecutorConfig `yaml:"executor"`
	Sources  SourcesConfig  `yaml:"sources"`
	Sinks    SinksConfig    `yaml:"sinks"`
	State    StateConfig    `yaml:"state"`
}

// TradingConfig sizes and times the execution chain.
type TradingConfig struct {
	BaseStake             float64       `yaml:"base_stake" default:"1" validate:"gt=0"`
	MartingaleMultiplier  float64       `yaml:"martingale_multiplier" default:"2.2" validate:"gte=1"`
	MaxStake              float64       `yaml:"max_stake" default:"10.65" validate:"gtefield=BaseStake"`
	MaxReEntryDepth       int           `yaml:"max_reentry_depth" default:"2" validate:"gte=0"`
	DailyStopLoss         float64       `yaml:"daily_stop_loss" validate:"gte=0"`
	ExchangeOffsetMinutes int           `yaml:"exchange_offset_minutes" default:"180" validate:"gte=-1440,lte=1440"`
	ForceOTC              bool          `yaml:"force_otc" default:"true"`
	SettlementBuffer      time.Duration `yaml:"settlement_buffer" default:"8s" validate:"gte=0"`
	SubmitSlack           time.Duration `yaml:"submit_slack" default:"60s" validate:"gt=0"`
}

// DedupConfig holds admission windows.
type DedupConfig struct {
	StaleMessage    time.Duration `yaml:"stale_message" default:"120s" validate:"gt=0"`
	DuplicateWindow time.Duration `yaml:"duplicate_window" default:"60s" validate:"gt=0"`
}

// ClockConfig holds the relevance window and the re-entry grace.
type ClockConfig struct {
	RelevancePast   time.Duration `yaml:"relevance_past" default:"5m" validate:"gt=0"`
	RelevanceFuture time.Duration `yaml:"relevance_future" default:"10m" validate:"gt=0"`
	Grace           time.Duration `yaml:"grace" default:"5m" validate:"gt=0"`
	// LocalTimezone is an IANA name; empty uses the host zone.
	LocalTimezone string `yaml:"local_timezone"`
}

// BackfillConfig controls the startup replay of recent messages.
type BackfillConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
	Limit   int  `yaml:"limit" default:"20" validate:"gt=0"`
}

// ExecutorConfig selects and configures the trade executor.
type ExecutorConfig struct {
	Type   string `yaml:"type" default:"paper" validate:"oneof=paper bridge"`
	Bridge struct {
		URL     string        `yaml:"url" default:"http://127.0.0.1:8787"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"bridge"`
	Paper struct {
		WinRate float64 `yaml:"win_rate" default:"0.55" validate:"gte=0,lte=1"`
		Payout  float64 `yaml:"payout" default:"0.85" validate:"gt=0"`
		Fast    bool    `yaml:"fast"`
		Seed    uint64  `yaml:"seed"`
	} `yaml:"paper"`
}

// KafkaConfig is shared by the alert source and the leg sink.
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	Compression string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
}

// SourcesConfig lists the message sources.
type SourcesConfig struct {
	Webhook struct {
		Enabled bool    `yaml:"enabled" default:"true"`
		Burst   float64 `yaml:"burst" default:"10" validate:"gt=0"`
		PerSec  float64 `yaml:"per_sec" default:"1" validate:"gt=0"`
	} `yaml:"webhook"`
	Kafka struct {
		KafkaConfig `yaml:",inline"`
		GroupID     string        `yaml:"group_id" default:"mirrortrade"`
		StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
		RetryMax    int           `yaml:"retry_max" default:"3" validate:"gte=0"`
		BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic    string        `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	Relay struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url"`
		Channel        string        `yaml:"channel"`
		Token          string        `yaml:"token"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"relay"`
}

// SinksConfig lists the trade log sinks.
type SinksConfig struct {
	CSV struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"trade_log.csv"`
	} `yaml:"csv"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"mirrortrade"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		Table        string        `yaml:"table" default:"trade_legs"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// StateConfig selects where the ledger snapshot and seen ids live.
type StateConfig struct {
	Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	Redis   struct {
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"mirrortrade"`
	} `yaml:"redis"`
	SeenTTL time.Duration `yaml:"seen_ttl" default:"72h"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Missing keys take their
// defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (when present), the YAML file, then applies
// environment overrides. The result is validated after the overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ApplyEnv overrides fields from the legacy environment variable names.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("TRADE_AMOUNT"); v != "" {
		c.Trading.BaseStake = util.ParseFloatDefault(v, c.Trading.BaseStake)
	}
	if v := getenv("MARTINGALE_MULT"); v != "" {
		c.Trading.MartingaleMultiplier = util.ParseFloatDefault(v, c.Trading.MartingaleMultiplier)
	}
	if v := getenv("MAX_STAKE"); v != "" {
		c.Trading.MaxStake = util.ParseFloatDefault(v, c.Trading.MaxStake)
	}
	if v := getenv("DAILY_STOP_LOSS"); v != "" {
		c.Trading.DailyStopLoss = util.ParseFloatDefault(v, c.Trading.DailyStopLoss)
	}
	// TZ_OFFSET_MIN was always read as a magnitude; EXCHANGE_OFFSET_MIN is signed.
	if v := getenv("TZ_OFFSET_MIN"); v != "" {
		n := util.ParseIntDefault(v, c.Trading.ExchangeOffsetMinutes)
		if n < 0 {
			n = -n
		}
		c.Trading.ExchangeOffsetMinutes = n
	}
	if v := getenv("EXCHANGE_OFFSET_MIN"); v != "" {
		c.Trading.ExchangeOffsetMinutes = util.ParseIntDefault(v, c.Trading.ExchangeOffsetMinutes)
	}
	if v := getenv("FORCE_OTC"); v != "" {
		c.Trading.ForceOTC = util.ParseBoolDefault(v, c.Trading.ForceOTC)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		brokers := util.SplitCSV(v)
		c.Sources.Kafka.Brokers = brokers
		c.Sinks.Kafka.Brokers = brokers
	}
	if v := getenv("EXECUTOR_URL"); v != "" {
		c.Executor.Bridge.URL = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Sources.Kafka.Enabled {
		if len(c.Sources.Kafka.Brokers) == 0 || c.Sources.Kafka.Topic == "" {
			return fmt.Errorf("sources.kafka requires brokers and topic")
		}
	}
	if c.Sources.Relay.Enabled && c.Sources.Relay.URL == "" {
		return fmt.Errorf("sources.relay.url is required")
	}
	if c.Sinks.ClickHouse.Enabled && c.Sinks.ClickHouse.Host == "" {
		return fmt.Errorf("sinks.clickhouse.host is required")
	}
	if c.Sinks.Kafka.Enabled {
		if len(c.Sinks.Kafka.Brokers) == 0 || c.Sinks.Kafka.Topic == "" {
			return fmt.Errorf("sinks.kafka requires brokers and topic")
		}
	}
	if c.Sinks.CSV.Enabled && c.Sinks.CSV.Path == "" {
		return fmt.Errorf("sinks.csv.path is required")
	}
	if c.Executor.Type == "bridge" && c.Executor.Bridge.URL == "" {
		return fmt.Errorf("executor.bridge.url is required")
	}
	return nil
}
