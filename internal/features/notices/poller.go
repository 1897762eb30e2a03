package notices

import (
	"context"
	"fmt"
	"time"

	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Source is the airdrop notice scraper, *bithumb.Client in production.
type Source interface {
	ScanAirdrops(ctx context.Context, size int) ([]fs.AirdropEvent, error)
}

type PollerOptions struct {
	EventsPath string
	PageSize   int
	// Schedule is a cron spec evaluated in Location; empty falls back to Interval.
	Schedule string
	Interval time.Duration
	Location *time.Location
}

type Poller struct {
	source    Source
	publisher *Publisher
	opts      PollerOptions
}

func NewPoller(source Source, publisher *Publisher, opts PollerOptions) *Poller {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Poller{source: source, publisher: publisher, opts: opts}
}

// PollOnce scrapes, stores the events file and publishes new symbols.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	events, err := p.source.ScanAirdrops(ctx, p.opts.PageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to scan notices: %w", err)
	}
	if p.opts.EventsPath != "" {
		if err := fs.SaveAirdropEvents(p.opts.EventsPath, events); err != nil {
			logging.LogWarn("Failed to store airdrop events", zap.Error(err))
		}
	}
	if p.publisher == nil {
		return 0, nil
	}

	total := 0
	for _, event := range events {
		n, err := p.publisher.PublishNew(ctx, event)
		total += n
		if err != nil {
			logging.LogError("Failed to publish airdrop event", zap.String("title", event.EventTitle), zap.Error(err))
		}
	}
	logging.LogInfo("Notice poll finished", zap.Int("events", len(events)), zap.Int("posted", total))
	return total, nil
}

// Run polls once immediately, then on the schedule until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	poll := func() {
		if _, err := p.PollOnce(ctx); err != nil {
			logging.LogError("Notice poll failed", zap.Error(err))
		}
	}

	poll()

	if p.opts.Schedule != "" {
		c := cron.New(cron.WithLocation(p.opts.Location))
		if _, err := c.AddFunc(p.opts.Schedule, poll); err != nil {
			return fmt.Errorf("invalid notice schedule %q: %w", p.opts.Schedule, err)
		}
		c.Start()
		logging.LogInfo("Notice poller scheduled",
			zap.String("schedule", p.opts.Schedule),
			zap.String("timezone", p.opts.Location.String()))

		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	}

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	logging.LogInfo("Notice poller started", zap.Duration("interval", p.opts.Interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// ValidateSchedule parses a cron spec without scheduling it.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
