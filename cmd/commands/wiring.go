package commands

// Shared construction of chain adapters, chat posters and the notice source

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chain/evm"
	"airdrop-bot/internal/chain/solana"
	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/chat/discord"
	"airdrop-bot/internal/chat/telegram"
	"airdrop-bot/internal/clients_api/bithumb"
	"airdrop-bot/internal/features/swap"
	"airdrop-bot/internal/infra/config"
	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(cmd.Flags())
	if err != nil {
		logging.LogError("Failed to load config", zap.Error(err))
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func dataPath(cfg *config.Config, name string) string {
	dir := cfg.App.DataDir
	if dir == "" {
		dir = fs.DefaultDataDir
	}
	return filepath.Join(dir, name)
}

// buildAdapters connects every chain that has a private key configured.
func buildAdapters(ctx context.Context, cfg *config.Config) (chain.Adapters, error) {
	adapters := chain.Adapters{}

	if cfg.EVM.PrivateKey != "" {
		a, err := evm.Dial(ctx, cfg.EVM.RPCURL, cfg.EVM.PrivateKey, cfg.EVM.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize evm adapter: %w", err)
		}
		adapters[chain.EVM] = chain.WithDecimalsCache(a, 256)
		logging.LogSuccess("EVM wallet loaded", zap.String("address", a.WalletAddress()))
	} else {
		logging.LogWarn("ETH_PRIVATE_KEY not provided, eth chain disabled")
	}

	if cfg.Solana.PrivateKey != "" {
		a, err := solana.New(solana.NewRPCClient(cfg.Solana.RPCURL, cfg.Solana.RPCRatePerSec), cfg.Solana.PrivateKey, cfg.Solana.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize solana adapter: %w", err)
		}
		adapters[chain.SOL] = chain.WithDecimalsCache(a, 256)
		logging.LogSuccess("Solana wallet loaded", zap.String("address", a.WalletAddress()))
	} else {
		logging.LogWarn("SOL_PRIVATE_KEY not provided, sol chain disabled")
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no chain configured: set ETH_PRIVATE_KEY and/or SOL_PRIVATE_KEY")
	}
	return adapters, nil
}

// swapLegs is the fixed buy size and slippage per chain.
func swapLegs(cfg *config.Config) (map[chain.Chain]swap.Leg, error) {
	wei, ok := new(big.Int).SetString(cfg.EVM.SwapAmountWei, 10)
	if !ok || wei.Sign() <= 0 {
		return nil, fmt.Errorf("evm.swap_amount_wei must be a positive integer, got %q", cfg.EVM.SwapAmountWei)
	}
	if cfg.Solana.SwapAmountLamport == 0 {
		return nil, fmt.Errorf("solana.swap_amount_lamports must be positive")
	}
	return map[chain.Chain]swap.Leg{
		chain.EVM: {NativeAmount: wei, SlippagePercent: cfg.OKX.SlippageEVM},
		chain.SOL: {NativeAmount: new(big.Int).SetUint64(cfg.Solana.SwapAmountLamport), SlippagePercent: cfg.OKX.SlippageSOL},
	}, nil
}

func noticeSource(cfg *config.Config) *bithumb.Client {
	opts := []bithumb.Option{}
	if cfg.Notices.RequestTimeout > 0 {
		opts = append(opts, bithumb.WithTimeout(time.Duration(cfg.Notices.RequestTimeout)*time.Second))
	}
	return bithumb.NewClient(cfg.Notices.ListURL, cfg.Notices.FeedBaseURL, opts...)
}

// platform holds the chat connection of the configured platform; exactly one field is set.
type platform struct {
	discord  *discordgo.Session
	telegram *tgbotapi.BotAPI
	poster   chat.Poster
}

func dialPlatform(cfg *config.Config) (*platform, error) {
	switch cfg.Chat.Platform {
	case "telegram":
		api, err := telegram.Dial(cfg.Chat.TelegramToken)
		if err != nil {
			return nil, err
		}
		logging.LogSuccess("Telegram bot authorized", zap.String("username", api.Self.UserName))
		return &platform{telegram: api, poster: telegram.NewPoster(api)}, nil
	default:
		s, err := discord.Dial(cfg.Chat.DiscordToken)
		if err != nil {
			return nil, err
		}
		return &platform{discord: s, poster: discord.NewPoster(s)}, nil
	}
}

func (p *platform) Close() {
	if p.discord != nil {
		p.discord.Close()
	}
}
