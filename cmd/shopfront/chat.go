package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/shopfront/internal/datamodels/chat"
	"github.com/example/shopfront/internal/livechat"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the live support chat",
	Long: `Opens the support chat for the signed-in customer.

Type a line and press enter to send it. /quit leaves the chat.`,
	Args: cobra.NoArgs,
	RunE: withClient(runChat),
}

func runChat(cmd *cobra.Command, c *client, _ []string) error {
	if _, err := c.requireCustomer(); err != nil {
		return err
	}
	ctx := cmd.Context()

	transport := &livechat.StompTransport{
		URL: cfg.Chat.URL,
		// 每次重连都取最新凭据，登出后以匿名连接会被服务端拒绝
		Credentials: func() (string, string, bool) {
			id := c.session.Current()
			if id == nil {
				return "", "", false
			}
			return id.ID, id.Token, true
		},
		Logger: logger,
	}
	channel := livechat.NewChannel(transport, cfg.Chat.ReconnectDelay, logger)
	detach := c.session.Attach(channel)
	defer detach()

	widget := livechat.NewWidget(c.chats, c.session, channel, cfg.Chat.SupportID, logger)
	widget.Conversation().OnChange(func(ev livechat.Event) {
		printEvent(ev, widget.Messages)
	})
	widget.Mount(ctx)
	defer widget.Unmount()

	if err := widget.Show(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "history unavailable:", err)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			widget.SetDraft(line)
			if _, err := widget.Submit(line); err != nil {
				switch {
				case errors.Is(err, livechat.ErrEmptyMessage):
				case errors.Is(err, livechat.ErrNotConnected):
					fmt.Fprintln(os.Stderr, "not connected yet, try again in a moment")
				case errors.Is(err, livechat.ErrNotSignedIn):
					return err
				default:
					logger.Warn("send failed", zap.Error(err))
				}
			}
		}
	}
}

// printEvent Reset 时整体重绘历史
func printEvent(ev livechat.Event, all func() []chat.Message) {
	switch ev.Kind {
	case livechat.Appended:
		printMessage(ev.Message)
	case livechat.Replaced:
		logger.Debug("message confirmed", zap.String("id", ev.Message.ID))
	case livechat.Reset:
		fmt.Println("---")
		for _, m := range all() {
			printMessage(m)
		}
	}
}

func printMessage(m chat.Message) {
	mark := ""
	if m.IsLocal() {
		mark = " (sending)"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Local().Format("15:04"), m.SenderName, m.Content, mark)
}
