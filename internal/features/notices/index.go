package notices

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/infra/fs"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
)

// Announcement links a symbol to its posted chat message.
type Announcement struct {
	Symbol    string      `json:"symbol"`
	Chain     chain.Chain `json:"chain"`
	Contract  string      `json:"contract"`
	Title     string      `json:"title"`
	URL       string      `json:"url"`
	ChannelID string      `json:"channel_id"`
	MessageID string      `json:"message_id"`
	Status    Status      `json:"status"`
	PostedAt  time.Time   `json:"posted_at"`
}

// Index is the symbol -> announcement file, keyed by lower-cased symbol.
type Index struct {
	mu    sync.RWMutex
	path  string
	items map[string]Announcement
}

// OpenIndex - empty path keeps the index in memory.
func OpenIndex(path string) (*Index, error) {
	idx := &Index{path: path, items: map[string]Announcement{}}
	if path == "" {
		return idx, nil
	}
	if _, err := fs.ReadJSON(path, &idx.items); err != nil {
		return nil, fmt.Errorf("failed to load announcement index: %w", err)
	}
	if idx.items == nil {
		idx.items = map[string]Announcement{}
	}
	return idx, nil
}

func indexKey(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (i *Index) Get(symbol string) (Announcement, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	a, ok := i.items[indexKey(symbol)]
	return a, ok
}

func (i *Index) Has(symbol string) bool {
	_, ok := i.Get(symbol)
	return ok
}

func (i *Index) Put(a Announcement) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := indexKey(a.Symbol)
	prev, existed := i.items[key]
	i.items[key] = a
	if err := i.saveLocked(); err != nil {
		if existed {
			i.items[key] = prev
		} else {
			delete(i.items, key)
		}
		return err
	}
	return nil
}

// Pending returns unsettled announcements, oldest first.
func (i *Index) Pending() []Announcement {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Announcement, 0)
	for _, a := range i.items {
		if a.Status == StatusPending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(x, y int) bool { return out[x].PostedAt.Before(out[y].PostedAt) })
	return out
}

func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.items)
}

func (i *Index) saveLocked() error {
	if i.path == "" {
		return nil
	}
	return fs.WriteJSONAtomic(i.path, i.items)
}
