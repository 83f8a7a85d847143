package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type APIConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8080"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	DBMaxConns        int32         `envconfig:"DB_POOL_MAX_CONNS" default:"8"`
	DBMinConns        int32         `envconfig:"DB_POOL_MIN_CONNS" default:"0"`
	DBMaxConnLifetime time.Duration `envconfig:"DB_POOL_MAX_CONN_LIFETIME" default:"30m"`

	// dispatch tuning
	BatchSize    int           `envconfig:"DISPATCH_BATCH_SIZE" default:"10"`
	Stagger      time.Duration `envconfig:"DISPATCH_STAGGER" default:"200ms"`
	GatewayRPS   float64       `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst int           `envconfig:"GATEWAY_BURST" default:"10"`

	// channel gateway
	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayAPIKey  string        `envconfig:"GATEWAY_API_KEY" required:"true"`
	GatewaySender  string        `envconfig:"GATEWAY_SENDER_ID"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"6s"`

	// generative enhancement (optional; empty key disables it)
	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	EnhanceMinLen  int           `envconfig:"ENHANCE_MIN_TEMPLATE_LEN" default:"50"`
	EnhanceTimeout time.Duration `envconfig:"ENHANCE_TIMEOUT" default:"8s"`
}

type SchedulerConfig struct {
	DBDSN     string `envconfig:"DB_DSN" required:"true"`
	Port      string `envconfig:"PORT" default:"8081"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	CronSpec  string        `envconfig:"SCHEDULER_CRON" default:"* * * * *"`
	MinRunGap time.Duration `envconfig:"SCHEDULER_MIN_RUN_GAP" default:"30s"`

	BatchSize    int           `envconfig:"DISPATCH_BATCH_SIZE" default:"10"`
	Stagger      time.Duration `envconfig:"DISPATCH_STAGGER" default:"200ms"`
	GatewayRPS   float64       `envconfig:"GATEWAY_RPS" default:"5"`
	GatewayBurst int           `envconfig:"GATEWAY_BURST" default:"10"`

	GatewayBaseURL string        `envconfig:"GATEWAY_BASE_URL" required:"true"`
	GatewayAPIKey  string        `envconfig:"GATEWAY_API_KEY" required:"true"`
	GatewaySender  string        `envconfig:"GATEWAY_SENDER_ID"`
	GatewayTimeout time.Duration `envconfig:"GATEWAY_TIMEOUT" default:"6s"`

	GeminiAPIKey   string        `envconfig:"GEMINI_API_KEY"`
	GeminiModel    string        `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	EnhanceMinLen  int           `envconfig:"ENHANCE_MIN_TEMPLATE_LEN" default:"50"`
	EnhanceTimeout time.Duration `envconfig:"ENHANCE_TIMEOUT" default:"8s"`
}

func LoadAPI() APIConfig {
	var cfg APIConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}

func LoadScheduler() SchedulerConfig {
	var cfg SchedulerConfig
	if err := envconfig.Process("", &cfg); err != nil {
		panic(err)
	}
	return cfg
}
