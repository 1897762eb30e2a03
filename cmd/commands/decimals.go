package commands

import (
	"context"
	"fmt"
	"time"

	"airdrop-bot/internal/chain"

	"github.com/spf13/cobra"
)

var decimalsCmd = &cobra.Command{
	Use:   "decimals <chain> <contract>",
	Short: "Look up a token's decimals",
	Args:  cobra.ExactArgs(2),
	RunE:  runDecimals,
}

func runDecimals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c, err := chain.ParseChain(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	adapter, err := adapters.Get(c)
	if err != nil {
		return err
	}
	d, err := adapter.GetDecimals(ctx, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s decimals: %d\n", c, args[1], d)
	return nil
}
