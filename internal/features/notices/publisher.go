package notices

// Notification Publisher
// publish_new: one pending message per newly seen symbol, with a register button
// finalize: one edit to settled, reviewer flagged on zero or dust amounts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"
	"airdrop-bot/internal/infra/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Publisher struct {
	// serializes check-then-post so a symbol is never posted twice
	mu        sync.Mutex
	poster    chat.Poster
	index     *Index
	channelID string
	reviewer  string
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPublisher(poster chat.Poster, index *Index, channelID, reviewer string, m *metrics.Metrics) *Publisher {
	return &Publisher{
		poster:    poster,
		index:     index,
		channelID: channelID,
		reviewer:  reviewer,
		metrics:   m,
		now:       time.Now,
	}
}

func (p *Publisher) Index() *Index { return p.index }

// PublishNew posts every coin of event not yet announced and returns how many were posted.
// Coins on networks the bot cannot trade are skipped.
func (p *Publisher) PublishNew(ctx context.Context, event fs.AirdropEvent) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	posted := 0
	for _, coin := range event.Coins {
		if p.index.Has(coin.Coin) {
			logging.LogDebug("Announcement already indexed", zap.String("symbol", coin.Coin))
			continue
		}
		c, ok := chain.ParseExplorerChain(coin.Chain)
		if !ok {
			logging.LogWarn("Skipping coin on unsupported chain",
				zap.String("symbol", coin.Coin),
				zap.String("chain", coin.Chain))
			continue
		}

		a := Announcement{
			Symbol:   coin.Coin,
			Chain:    c,
			Contract: coin.Contract,
			Title:    event.EventTitle,
			URL:      event.EventURL,
			Status:   StatusPending,
			PostedAt: p.now().UTC(),
		}
		ref, err := p.poster.Post(ctx, p.channelID, pendingMessage(a))
		if err != nil {
			return posted, fmt.Errorf("failed to post announcement for %s: %w", coin.Coin, err)
		}
		a.ChannelID = ref.ChannelID
		a.MessageID = ref.MessageID

		if err := p.index.Put(a); err != nil {
			// an unindexed message would be posted again on the next poll
			if derr := p.poster.Delete(ctx, ref); derr != nil {
				logging.LogError("Failed to remove unindexed announcement",
					zap.String("symbol", coin.Coin),
					zap.String("message_id", ref.MessageID),
					zap.Error(derr))
			}
			return posted, fmt.Errorf("failed to index announcement for %s: %w", coin.Coin, err)
		}
		posted++
		if p.metrics != nil {
			p.metrics.NoticesPosted.Inc()
		}
		logging.LogSuccess("Announcement posted",
			zap.String("symbol", coin.Coin),
			zap.String("chain", c.String()),
			zap.String("message_id", ref.MessageID))
	}
	return posted, nil
}

// Finalize edits the announcement of symbol to settled. Unknown or already settled
// symbols are left alone.
func (p *Publisher) Finalize(ctx context.Context, symbol string, perRecipient decimal.Decimal, decimals uint8) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.index.Get(symbol)
	if !ok {
		logging.LogDebug("No announcement to finalize", zap.String("symbol", symbol))
		return nil
	}
	if a.Status == StatusSettled {
		return nil
	}

	amount := FormatAmount(perRecipient, decimals)
	review := NeedsReview(amount)

	ref := chat.MessageRef{ChannelID: a.ChannelID, MessageID: a.MessageID}
	if err := p.poster.Edit(ctx, ref, settledMessage(a, amount, review, p.reviewer)); err != nil {
		return fmt.Errorf("failed to edit announcement for %s: %w", symbol, err)
	}

	a.Status = StatusSettled
	if err := p.index.Put(a); err != nil {
		return err
	}

	if review {
		logging.LogWarn("Settled amount flagged for review", zap.String("symbol", symbol), zap.String("amount", amount))
	} else {
		logging.LogInfo("Announcement settled", zap.String("symbol", symbol), zap.String("amount", amount))
	}
	return nil
}

func header(a Announcement, state string) string {
	return fmt.Sprintf("%s | %s (%s)", state, strings.ToUpper(a.Symbol), a.Chain)
}

func pendingMessage(a Announcement) chat.Message {
	var b strings.Builder
	b.WriteString(header(a, "🟡 PENDING"))
	b.WriteString("\n" + a.Title)
	b.WriteString("\nContract: " + a.Contract)
	if a.URL != "" {
		b.WriteString("\n" + a.URL)
	}
	return chat.Message{
		Text: b.String(),
		Buttons: [][]chat.Button{{
			{Label: "Register " + strings.ToUpper(a.Symbol), Action: chat.RegisterAction(a.Symbol)},
		}},
	}
}

func settledMessage(a Announcement, amount string, review bool, reviewer string) chat.Message {
	var b strings.Builder
	b.WriteString(header(a, "🟢 SETTLED"))
	b.WriteString("\n" + a.Title)
	b.WriteString("\nContract: " + a.Contract)
	b.WriteString("\nPer recipient: " + amount)
	if review {
		b.WriteString(fmt.Sprintf("\n⚠️ %s please review: settled amount is %s", reviewer, amount))
	}
	return chat.Message{Text: b.String()}
}
