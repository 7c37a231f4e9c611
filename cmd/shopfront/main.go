// shopfront 商城前端的命令行外壳：登录态、购物车和在线客服聊天
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/authsession"
	"github.com/example/shopfront/internal/config"
	"github.com/example/shopfront/internal/datamodels/identity"
	"github.com/example/shopfront/internal/gateway"
	"github.com/example/shopfront/internal/logging"
	"github.com/example/shopfront/internal/session"
	"github.com/example/shopfront/internal/shopapi"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "shopfront",
	Short:         "Shop frontend client",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		level := "warn"
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level, true)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd, cartCmd, chatCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// client 一次命令运行期间的前端组件
type client struct {
	store   session.Store
	gw      *gateway.Gateway
	auth    *shopapi.AuthAPI
	carts   *shopapi.CartAPI
	chats   *shopapi.ChatAPI
	session *authsession.Manager
	closers []func() error
}

func newClient() (*client, error) {
	c := &client{}
	if cfg.Session.Path == "" {
		c.store = session.NewMemoryStore()
	} else {
		s, err := session.NewSQLiteStore(cfg.Session.Path, logger)
		if err != nil {
			return nil, err
		}
		c.store = s
		c.closers = append(c.closers, s.Close)
	}

	c.gw = gateway.New(c.store, gateway.Options{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Logger:  logger,
	})
	c.gw.OnUnauthorized(func(ev gateway.UnauthorizedEvent) {
		fmt.Fprintf(os.Stderr, "session expired, please sign in again (%s)\n", ev.LoginRoute)
	})

	c.auth = shopapi.NewAuthAPI(c.gw)
	c.carts = shopapi.NewCartAPI(c.gw)
	c.chats = shopapi.NewChatAPI(c.gw)

	role, _ := identity.ParseRole(cfg.App.DefaultRole)
	c.session = authsession.New(c.store, c.auth, role, logger)
	unbind := c.session.BindGateway(c.gw)
	c.closers = append(c.closers, func() error { unbind(); return nil })
	c.session.Init()
	return c, nil
}

func (c *client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}
}

// requireCustomer 购物车和聊天只对顾客开放
func (c *client) requireCustomer() (*identity.Identity, error) {
	id := c.session.Current()
	if !id.IsCustomer() {
		return nil, fmt.Errorf("sign in as a customer first (see %s)", c.session.EntryRoute())
	}
	return id, nil
}

func withClient(fn func(cmd *cobra.Command, c *client, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return fn(cmd, c, args)
	}
}
