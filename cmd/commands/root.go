package commands

// Root command for Cobra CLI
// Registers all subcommands (bot, scan, menu, decimals, settle)

import (
	"airdrop-bot/internal/infra/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "airdrop-bot",
	Short: "Airdrop bot - announces exchange airdrops, buys the token and distributes it to users",
	Long: `Airdrop bot watches the Bithumb notice feed for airdrop events, posts them to Discord or Telegram,
buys announced tokens through the OKX DEX aggregator on Ethereum or Solana and lets users claim
a share of the bought amount a few times per day.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(menuCmd)
	rootCmd.AddCommand(decimalsCmd)
	rootCmd.AddCommand(settleCmd)
}
