package commands

// Command to scrape the notice feed once
// Writes the airdrop events file without posting anything

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scrape airdrop notices once and write the events file",
	RunE:  runScan,
}

var (
	scanSize int
	scanOut  string
)

func init() {
	scanCmd.Flags().IntVar(&scanSize, "size", 0, "Number of recent notices to read, 0 uses notices.page_size")
	scanCmd.Flags().StringVar(&scanOut, "out", "", "Output file, empty writes airdrop_events.json in the data directory")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	size := scanSize
	if size <= 0 {
		size = cfg.Notices.PageSize
	}
	out := scanOut
	if out == "" {
		out = dataPath(cfg, fs.AirdropEventsFileName)
	}

	events, err := noticeSource(cfg).ScanAirdrops(ctx, size)
	if err != nil {
		return err
	}
	if err := fs.SaveAirdropEvents(out, events); err != nil {
		return err
	}

	for _, e := range events {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n  %s\n", e.EventTitle, e.EventURL)
		for _, c := range e.Coins {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s %s %s\n", c.Chain, c.Coin, c.Contract)
		}
	}
	logging.LogSuccess("Notice scan finished", zap.Int("events", len(events)), zap.String("file", out))
	return nil
}
