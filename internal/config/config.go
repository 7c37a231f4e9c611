package config

import (
	"fmt"
	"time"
)

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	if s.Host == "" {
		s.Host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// APIConfig 前端访问后端接口的配置（对应请求网关）
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AppConfig 前端应用级配置
type AppConfig struct {
	// DefaultRole 无登录身份时首屏跳转使用的角色（admin / customer）
	DefaultRole string `mapstructure:"default_role"`
}

// SessionConfig 本地会话持久化配置
type SessionConfig struct {
	// Path 本地会话库文件路径，为空表示只保存在内存
	Path string `mapstructure:"path"`
}

// ChatConfig 在线客服聊天通道配置
type ChatConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	// SupportID 顾客发送消息时的默认接收方（客服账号 ID）
	SupportID string `mapstructure:"support_id"`
}

// MySQLConfig 数据库配置，DSN 为空时后端使用内存仓储
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis 配置，Addr 为空时关闭 token 缓存
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

// RabbitMQConfig MQ 配置，URL 为空时不投递聊天事件
type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// AuthConfig 鉴权/一致性哈希配置
type AuthConfig struct {
	// Nodes 为参与一致性哈希环的节点标识（可用节点名/IP:port）
	Nodes []string `mapstructure:"nodes"`
	// HashReplicas 虚拟节点倍数，用于平衡分布
	HashReplicas int `mapstructure:"hash_replicas"`
	// TokenCacheTTLSeconds JWT 解析结果缓存时间（秒）
	TokenCacheTTLSeconds int `mapstructure:"token_cache_ttl_seconds"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig 登录接口限流配置
type RateLimitConfig struct {
	Capacity   int64 `mapstructure:"capacity"`
	RefillRate int64 `mapstructure:"refill_rate"`
}

// Config 应用总配置，前端 CLI 与参考后端共用
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	App       AppConfig       `mapstructure:"app"`
	Session   SessionConfig   `mapstructure:"session"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Server    ServerConfig    `mapstructure:"server"`
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Auth      AuthConfig      `mapstructure:"auth"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

// DefaultConfig 默认配置，方便快速跑起来
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8080",
			Timeout: 10 * time.Second,
		},
		App: AppConfig{
			DefaultRole: "customer",
		},
		Session: SessionConfig{
			Path: "shopfront-session.db",
		},
		Chat: ChatConfig{
			URL:            "ws://127.0.0.1:8080/ws",
			ReconnectDelay: 5 * time.Second,
			SupportID:      "1",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "chat.messages",
		},
		Auth: AuthConfig{
			Nodes:                []string{"auth-node-1", "auth-node-2", "auth-node-3"},
			HashReplicas:         50,
			TokenCacheTTLSeconds: 600,
		},
		JWT: JWTConfig{
			Secret: "shopfront-secret",
			TTL:    2 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Capacity:   10,
			RefillRate: 5,
		},
	}
}
