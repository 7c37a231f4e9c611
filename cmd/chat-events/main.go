// chat-events 消费 MQ 上的聊天事件，维护客服未读计数
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/infra/mq"
	"github.com/example/shopfront/internal/infra/redis"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/service"
)

const (
	unreadQueue = "chat_unread_queue"
	bindingKey  = "chat.#"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "chat-events",
	Short:         "Consume chat events and keep unread counters in Redis",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logger, err := logging.New(logLevel, false)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		return run(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	redisClient, err := redis.Open(&cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient == nil {
		return errors.New("redis.addr is required")
	}
	defer redisClient.Close()

	consumer, err := mq.DialConsumer(&cfg.RabbitMQ, unreadQueue, bindingKey, logger)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	tracker := service.NewUnreadTracker(redisClient, nil, logger)
	logger.Info("chat events worker started, waiting for messages...", zap.String("queue", unreadQueue))
	return consumer.Run(ctx, tracker.Handle)
}
