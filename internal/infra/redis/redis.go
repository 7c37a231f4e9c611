package redis

import (
	"fmt"

	radix "github.com/mediocregopher/radix/v3"

	"github.com/example/shopfront/internal/config"
)

const poolSize = 10

// Open 创建 Redis 连接池。未配置地址时返回 nil，调用方按“无缓存”处理。
func Open(cfg *config.RedisConfig) (radix.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	pool, err := radix.NewPool("tcp", cfg.Addr, poolSize)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}
	return pool, nil
}
