package commands

// Command to reset the admin and user channels
// Discord: deletes the channel history first; Telegram bots cannot list history, so only posts

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/chat/discord"
	"airdrop-bot/internal/chat/handlers"
	logging "airdrop-bot/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Clear the admin and user channels and post the entry menus",
	RunE:  runMenu,
}

var menuNoPurge bool

func init() {
	menuCmd.Flags().BoolVar(&menuNoPurge, "no-purge", false, "Post the menus without deleting existing messages")
}

func runMenu(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireChat(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := dialPlatform(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	admin, user := handlers.Menus()
	return resetChannels(ctx, p.poster, !menuNoPurge, []channelMenu{
		{channelID: cfg.Chat.AdminChannelID, msg: admin},
		{channelID: cfg.Chat.UserChannelID, msg: user},
	})
}

type channelMenu struct {
	channelID string
	msg       chat.Message
}

type purger interface {
	Purge(ctx context.Context, channelID string) (int, error)
}

func resetChannels(ctx context.Context, poster chat.Poster, purge bool, menus []channelMenu) error {
	for _, m := range menus {
		if pr, ok := poster.(purger); ok && purge {
			n, err := pr.Purge(ctx, m.channelID)
			if err != nil {
				return err
			}
			logging.LogInfo("Channel cleared", zap.String("channel", m.channelID), zap.Int("deleted", n))
		}
		if _, err := poster.Post(ctx, m.channelID, m.msg); err != nil {
			return err
		}
		logging.LogSuccess("Menu posted", zap.String("channel", m.channelID))
	}
	return nil
}

var _ purger = (*discord.Poster)(nil)
