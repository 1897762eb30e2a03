package commands

// Command to inspect a swap transaction
// Prints what the wallet received and the share each recipient would get

import (
	"context"
	"fmt"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/features/notices"
	"airdrop-bot/internal/features/settlement"

	"github.com/spf13/cobra"
)

var settleCmd = &cobra.Command{
	Use:   "settle <chain> <tx> <contract>",
	Short: "Show the amount credited by a transaction and the per-recipient share",
	Args:  cobra.ExactArgs(3),
	RunE:  runSettle,
}

func runSettle(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	c, err := chain.ParseChain(args[0])
	if err != nil {
		return err
	}
	txID, contract := args[1], args[2]

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	adapters, err := buildAdapters(ctx, cfg)
	if err != nil {
		return err
	}
	adapter, err := adapters.Get(c)
	if err != nil {
		return err
	}
	decimals, err := adapter.GetDecimals(ctx, contract)
	if err != nil {
		return err
	}
	realized, err := adapter.InspectSettlement(ctx, txID, contract, decimals)
	if err != nil {
		return err
	}

	per := settlement.PerRecipient(realized, cfg.Distribution.Recipients)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "tx:            %s\n", chain.ExplorerTxURL(c, txID))
	fmt.Fprintf(out, "decimals:      %d\n", decimals)
	fmt.Fprintf(out, "received:      %s\n", notices.FormatAmount(realized, decimals))
	fmt.Fprintf(out, "per recipient: %s (%d recipients)\n", notices.FormatAmount(per, decimals), cfg.Distribution.Recipients)
	return nil
}
