// shopfront-backend 参考后端：登录注册、购物车、聊天历史接口，以及 /ws 上的 STOMP 聊天代理
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kataras/iris/v12"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/auth"
	"github.com/example/shopfront/internal/broker"
	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/datamodels/cart"
	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/datamodels/user"
	"github.com/example/shopfront/internal/infra/mq"
	"github.com/example/shopfront/internal/infra/redis"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/middleware"
	"github.com/example/shopfront/internal/repository/memory"
	"github.com/example/shopfront/internal/repository/mysql"
	"github.com/example/shopfront/internal/server"
	"github.com/example/shopfront/internal/service"
)

var (
	configPath string
	logLevel   string
	devLog     bool
)

var rootCmd = &cobra.Command{
	Use:           "shopfront-backend",
	Short:         "Reference backend for the shopfront client",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(logLevel, devLog)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return run(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (yaml/json/toml)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().BoolVar(&devLog, "dev", false, "human readable console logs")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type repositories struct {
	users user.Repository
	chats chat.Repository
	carts cart.Repository
}

// openRepositories 配了 DSN 用 MySQL，否则用内存仓储
func openRepositories(cfg *config.Config, logger *zap.Logger) (*repositories, error) {
	if cfg.MySQL.DSN == "" {
		logger.Warn("mysql.dsn not set, using in-memory repositories")
		return &repositories{
			users: memory.NewUserRepository(),
			chats: memory.NewChatRepository(),
			carts: memory.NewCartRepository(),
		}, nil
	}
	db, err := mysql.Open(&cfg.MySQL, logger)
	if err != nil {
		return nil, err
	}
	return &repositories{
		users: mysql.NewUserRepository(db),
		chats: mysql.NewChatRepository(db),
		carts: mysql.NewCartRepository(db),
	}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repos, err := openRepositories(cfg, logger)
	if err != nil {
		return err
	}

	redisClient, err := redis.Open(&cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	ring := auth.NewConsistentHashRing(cfg.Auth.Nodes, cfg.Auth.HashReplicas)
	cache := auth.NewTokenCache(redisClient, ring, time.Duration(cfg.Auth.TokenCacheTTLSeconds)*time.Second)

	publisher, err := mq.Dial(&cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	monitor := service.NewMonitor()
	verifier := auth.NewVerifier(&cfg.JWT, cache, logger)
	verifier.OnCacheError(func(error) { monitor.RecordRedisError() })

	users := service.NewUserService(repos.users, verifier, monitor, logger)
	chats := service.NewChatService(repos.chats, publisher, monitor, cfg.Chat.SupportID, logger)
	carts := service.NewCartService(repos.carts, monitor)
	var unread *service.UnreadTracker
	if redisClient != nil {
		unread = service.NewUnreadTracker(redisClient, monitor, logger)
	}

	b, err := broker.New(broker.Options{
		Verifier: verifier,
		Chat:     chats,
		Monitor:  monitor,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := b.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	app := iris.New()
	app.Logger().SetLevel("warn")
	server.RegisterRoutes(app, server.Deps{
		Users:    users,
		Chat:     chats,
		Carts:    carts,
		Verifier: verifier,
		Monitor:  monitor,
		Unread:   unread,
		Limiter:  middleware.NewKeyedLimiter(cfg.RateLimit.Capacity, cfg.RateLimit.RefillRate),
		ChatWS:   b.Handler(),
		Logger:   logger,
	})

	iris.RegisterOnInterrupt(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("shutting down")
		_ = b.Close()
		_ = app.Shutdown(shutdownCtx)
	})

	addr := cfg.Server.Addr()
	logger.Info("web server listening", zap.String("addr", addr),
		zap.Bool("mysql", cfg.MySQL.DSN != ""),
		zap.Bool("token_cache", cache.Enabled()),
		zap.Bool("rabbitmq", publisher != nil))
	if err := app.Listen(addr, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
		return fmt.Errorf("run web server: %w", err)
	}
	return nil
}
