package fs

import (
	"fmt"

	logging "airdrop-bot/internal/infra/log"

	"go.uber.org/zap"
)

// AirdropCoin is one coin listed by an airdrop notice.
// Chain is the explorer label: ETH, SOL, BASE, BSC or UNKNOWN.
type AirdropCoin struct {
	Chain    string `json:"chain"`
	Coin     string `json:"coin"`
	Contract string `json:"contract"`
}

// AirdropEvent is one scraped airdrop announcement.
type AirdropEvent struct {
	EventTitle string        `json:"event_title"`
	EventURL   string        `json:"event_url"`
	Coins      []AirdropCoin `json:"coins"`
}

// LoadAirdropEvents returns an empty list when the file does not exist.
func LoadAirdropEvents(path string) ([]AirdropEvent, error) {
	var events []AirdropEvent
	found, err := ReadJSON(path, &events)
	if err != nil {
		return nil, fmt.Errorf("failed to load airdrop events: %w", err)
	}
	if !found || events == nil {
		logging.LogDebug("Airdrop events file missing or empty", zap.String("file", path))
		return []AirdropEvent{}, nil
	}
	return events, nil
}

func SaveAirdropEvents(path string, events []AirdropEvent) error {
	if events == nil {
		events = []AirdropEvent{}
	}
	if err := WriteJSONAtomic(path, events); err != nil {
		return fmt.Errorf("failed to save airdrop events: %w", err)
	}
	logging.LogInfo("Saved airdrop events to file",
		zap.String("file", path),
		zap.Int("count", len(events)))
	return nil
}
