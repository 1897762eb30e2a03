package commands

// Command to run the full bot
// Wires chains, aggregator, registry, quota, notices and the chat platform
// Implements graceful shutdown for proper termination

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chat/discord"
	"airdrop-bot/internal/chat/handlers"
	"airdrop-bot/internal/chat/telegram"
	"airdrop-bot/internal/clients_api/okx"
	"airdrop-bot/internal/features/notices"
	"airdrop-bot/internal/features/orchestrator"
	"airdrop-bot/internal/features/quota"
	"airdrop-bot/internal/features/registry"
	"airdrop-bot/internal/features/settlement"
	"airdrop-bot/internal/features/swap"
	"airdrop-bot/internal/infra/config"
	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/metrics"
	"airdrop-bot/internal/infra/retry"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the bot (notice poller + chat commands + settlement)",
	Long:  `Run the complete bot: poll airdrop notices, answer chat commands, buy and settle registered tokens and distribute them.`,
	RunE:  runBot,
}

var (
	botGuildID  string
	botNoPoller bool
)

func init() {
	botCmd.Flags().StringVar(&botGuildID, "guild", "", "Discord guild to register slash commands in, empty registers them globally")
	botCmd.Flags().BoolVar(&botNoPoller, "no-poller", false, "Do not poll the notice feed")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireChat(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup

	m := metrics.New()
	var metricsServer *metrics.Server
	if cfg.App.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.App.MetricsAddr, m)
		metricsServer.Start()
	}

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	legs, err := swapLegs(cfg)
	if err != nil {
		return err
	}

	reg, err := registry.Open(dataPath(cfg, fs.RegistryFileName))
	if err != nil {
		return err
	}
	m.RegisteredSize.Set(float64(reg.Len()))

	index, err := notices.OpenIndex(dataPath(cfg, fs.AnnouncementsFileName))
	if err != nil {
		return err
	}

	tracker, err := buildTracker(ctx, cfg)
	if err != nil {
		return err
	}

	p, err := dialPlatform(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	noticeChannel := cfg.Chat.NoticeChannelID
	if noticeChannel == "" {
		noticeChannel = cfg.Chat.AdminChannelID
	}
	publisher := notices.NewPublisher(p.poster, index, noticeChannel, cfg.Chat.ReviewerMention, m)

	aggregator := okx.NewClient(cfg.OKX.BaseURL, okx.Credentials{
		APIKey:     cfg.OKX.APIKey,
		SecretKey:  cfg.OKX.SecretKey,
		Passphrase: cfg.OKX.Passphrase,
		ProjectID:  cfg.OKX.ProjectID,
	}, okx.WithRateLimit(cfg.OKX.RatePerSec))
	executor := swap.NewExecutor(adapters, aggregator, legs, m)

	watcher := settlement.NewWatcher(adapters, reg, publisher, settlement.Options{
		Recipients: cfg.Distribution.Recipients,
		Retry: retry.Options{
			MaxRetries: cfg.Settlement.Retries,
			BaseDelay:  cfg.Settlement.BaseDelay(),
			MaxDelay:   cfg.Settlement.MaxDelay(),
		},
	}, m)

	orc := orchestrator.New(adapters, executor, watcher, reg, tracker, index, m, orchestrator.Config{
		Waits: map[chain.Chain]time.Duration{
			chain.EVM: cfg.EVM.Wait(),
			chain.SOL: cfg.Solana.Wait(),
		},
		SessionTTL: cfg.Chat.SessionTTL(),
	})
	handler := handlers.New(orc, cfg.Chat.IsAdmin, p.poster, cfg.Chat.AdminChannelID)

	switch {
	case p.discord != nil:
		if _, err := discord.Attach(ctx, p.discord, handler, botGuildID); err != nil {
			return fmt.Errorf("failed to start discord bot: %w", err)
		}
	case p.telegram != nil:
		bot := telegram.NewBot(p.telegram, handler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				logging.LogError("Telegram bot stopped", zap.Error(err))
			}
		}()
	}

	if !botNoPoller {
		if err := startPoller(ctx, &wg, cfg, publisher); err != nil {
			return err
		}
	}

	logging.LogSuccess("Bot is running",
		zap.String("platform", cfg.Chat.Platform),
		zap.Int("tokens", reg.Len()),
		zap.Int("announcements", index.Len()))

	<-ctx.Done()
	logging.LogInfo("Shutdown signal received, gracefully stopping...")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		watcher.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.LogSuccess("All workers stopped gracefully")
	case <-time.After(10 * time.Second):
		logging.LogWarn("Timeout waiting for workers to stop, forcing shutdown")
	}

	if metricsServer != nil {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		metricsServer.Stop(stopCtx)
	}
	return nil
}

// buildTracker uses Redis when distribution.redis_addr is set so several instances share one quota.
func buildTracker(ctx context.Context, cfg *config.Config) (quota.Tracker, error) {
	if cfg.Distribution.RedisAddr == "" {
		return quota.NewMemoryTracker(cfg.Distribution.DailyQuota), nil
	}
	client, err := quota.DialRedis(ctx, cfg.Distribution.RedisAddr)
	if err != nil {
		return nil, err
	}
	logging.LogInfo("Using redis quota store", zap.String("addr", cfg.Distribution.RedisAddr))
	return quota.NewRedisTracker(client, cfg.Distribution.DailyQuota), nil
}

func startPoller(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, publisher *notices.Publisher) error {
	loc, err := time.LoadLocation(cfg.Notices.Timezone)
	if err != nil {
		return fmt.Errorf("invalid notices.timezone %q: %w", cfg.Notices.Timezone, err)
	}
	if cfg.Notices.Schedule != "" {
		if err := notices.ValidateSchedule(cfg.Notices.Schedule); err != nil {
			return err
		}
	}

	poller := notices.NewPoller(noticeSource(cfg), publisher, notices.PollerOptions{
		EventsPath: dataPath(cfg, fs.AirdropEventsFileName),
		PageSize:   cfg.Notices.PageSize,
		Schedule:   cfg.Notices.Schedule,
		Interval:   time.Duration(cfg.Notices.IntervalSeconds) * time.Second,
		Location:   loc,
	})

	logging.LogInfo("Notice poller configured",
		zap.String("schedule", cfg.Notices.Schedule),
		zap.Int("intervalSeconds", cfg.Notices.IntervalSeconds),
		zap.String("timezone", cfg.Notices.Timezone))

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
			logging.LogError("Notice poller stopped", zap.Error(err))
		}
	}()
	return nil
}
