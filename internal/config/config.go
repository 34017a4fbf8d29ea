package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	Facade    FacadeConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"5000"`
	Addr string
}

// AssistantConfig 描述 Google Assistant 会话与通道配置。
type AssistantConfig struct {
	Endpoint      string        `env:"ASSISTANT_ENDPOINT" envDefault:"embeddedassistant.googleapis.com:443"`
	LanguageCode  string        `env:"ASSISTANT_LANGUAGE_CODE" envDefault:"en-US"`
	DeviceModelID string        `env:"ASSISTANT_DEVICE_MODEL_ID" envDefault:"HA_GA"`
	DeviceID      string        `env:"ASSISTANT_DEVICE_ID" envDefault:"HA_GA_TEXT_SERVER"`
	Deadline      time.Duration `env:"ASSISTANT_DEADLINE" envDefault:"185s"`
	DialTimeout   time.Duration `env:"ASSISTANT_DIAL_TIMEOUT" envDefault:"10s"`
}

// FacadeConfig 控制 HTTP 端点的行为。
type FacadeConfig struct {
	// ReportExchangeErrors 为 false 时，消息端点无论上游结果如何都返回 {"status":"OK"}。
	ReportExchangeErrors bool `env:"REPORT_EXCHANGE_ERRORS" envDefault:"false"`
	JournalLimit         int  `env:"JOURNAL_LIMIT" envDefault:"50"`
}

// LogConfig 描述 zerolog 输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// TelemetryConfig 描述 OpenTelemetry 导出配置。Endpoint 为空时不启用追踪。
type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ga-webserver"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Assistant.validate(); err != nil {
		return nil, err
	}

	if cfg.Facade.JournalLimit < 1 {
		cfg.Facade.JournalLimit = 1
	}

	return &cfg, nil
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "5000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":5000" 或 "127.0.0.1:5000"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return "0.0.0.0:" + port, nil
}

func (c AssistantConfig) validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("ASSISTANT_ENDPOINT must not be empty")
	}
	if c.Deadline <= 0 {
		return fmt.Errorf("invalid ASSISTANT_DEADLINE value %s: must be positive", c.Deadline)
	}
	return nil
}
