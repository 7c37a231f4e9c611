package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 SHOPFRONT_API_BASE_URL
const EnvPrefix = "SHOPFRONT"

// Load 读取配置：默认值 < 配置文件 < 环境变量。path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.App.DefaultRole {
	case "admin", "customer":
	default:
		return fmt.Errorf("app.default_role must be admin or customer, got %q", c.App.DefaultRole)
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.Chat.ReconnectDelay <= 0 {
		return errors.New("chat.reconnect_delay must be positive")
	}
	return nil
}

// 每个 key 都要注册默认值，否则 AutomaticEnv 在 Unmarshal 时不会生效
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout", d.API.Timeout)
	v.SetDefault("app.default_role", d.App.DefaultRole)
	v.SetDefault("session.path", d.Session.Path)
	v.SetDefault("chat.url", d.Chat.URL)
	v.SetDefault("chat.reconnect_delay", d.Chat.ReconnectDelay)
	v.SetDefault("chat.support_id", d.Chat.SupportID)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("mysql.dsn", d.MySQL.DSN)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("rabbitmq.url", d.RabbitMQ.URL)
	v.SetDefault("rabbitmq.exchange", d.RabbitMQ.Exchange)
	v.SetDefault("auth.nodes", d.Auth.Nodes)
	v.SetDefault("auth.hash_replicas", d.Auth.HashReplicas)
	v.SetDefault("auth.token_cache_ttl_seconds", d.Auth.TokenCacheTTLSeconds)
	v.SetDefault("jwt.secret", d.JWT.Secret)
	v.SetDefault("jwt.ttl", d.JWT.TTL)
	v.SetDefault("ratelimit.capacity", d.RateLimit.Capacity)
	v.SetDefault("ratelimit.refill_rate", d.RateLimit.RefillRate)
}
