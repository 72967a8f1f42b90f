package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Cache     Cache     `mapstructure:"cache"`
	Data      Data      `mapstructure:"data"`
	Backtest  Backtest  `mapstructure:"backtest"`
	Mining    Mining    `mapstructure:"mining"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Scheduler struct {
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	TimeoutDuration time.Duration `mapstructure:"timeout_duration"`
	WarmupSpec      string        `mapstructure:"warmup_spec"`
	CleanupSpec     string        `mapstructure:"cleanup_spec"`
	Symbols         []string      `mapstructure:"symbols"`
	WarmupDays      int           `mapstructure:"warmup_days"`
	RetentionDays   int           `mapstructure:"retention_days"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type Data struct {
	ResultCacheDir      string        `mapstructure:"result_cache_dir"`
	BaseURL             string        `mapstructure:"base_url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRequestPerMinute int           `mapstructure:"max_request_per_minute"`
}

type Backtest struct {
	InitCapital  float64 `mapstructure:"init_capital"`
	FeePerc      float64 `mapstructure:"fee_perc"`
	MinFee       float64 `mapstructure:"min_fee"`
	MaxDays      int     `mapstructure:"max_days"`
	Sizer        string  `mapstructure:"sizer"`
	SizerOrder   string  `mapstructure:"sizer_order"`
	SizerPerc    float64 `mapstructure:"sizer_perc"`
	Risk         float64 `mapstructure:"risk"`
	RiskPerTrade float64 `mapstructure:"risk_per_trade"`
	FallbackSL   float64 `mapstructure:"fallback_sl"`
	AutoStopLoss bool    `mapstructure:"auto_stop_loss"`
	StopLossPerc float64 `mapstructure:"stop_loss_perc"`
}

type Mining struct {
	Samples int   `mapstructure:"samples"`
	Seed    int64 `mapstructure:"seed"`
	Workers int   `mapstructure:"workers"`
}

func Load() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
