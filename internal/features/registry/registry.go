package registry

// Token registry: lower-cased symbol -> record, newest entry first
// Persisted as one ordered JSON object; every write rewrites the file atomically

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/infra/fs"
	logging "airdrop-bot/internal/infra/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("token not registered")

// Record - Amount is the per-recipient share in whole token units
type Record struct {
	Chain    chain.Chain
	Address  string
	Decimals uint8
	Amount   decimal.Decimal
}

// recordJSON writes amount as a JSON number
type recordJSON struct {
	Chain    chain.Chain `json:"chain"`
	Address  string      `json:"address"`
	Decimals uint8       `json:"decimals"`
	Amount   json.Number `json:"amount"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Chain:    r.Chain,
		Address:  r.Address,
		Decimals: r.Decimals,
		Amount:   json.Number(r.Amount.String()),
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw struct {
		Chain    string          `json:"chain"`
		Address  string          `json:"address"`
		Decimals uint8           `json:"decimals"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c, err := chain.ParseChain(raw.Chain)
	if err != nil {
		return err
	}
	*r = Record{Chain: c, Address: raw.Address, Decimals: raw.Decimals, Amount: raw.Amount}
	return nil
}

type Entry struct {
	Symbol string
	Record Record
}

type Registry struct {
	mu      sync.RWMutex
	path    string
	order   []string
	records map[string]Record
}

// Open loads path, a missing file starts an empty registry.
// An empty path keeps the registry in memory only.
func Open(path string) (*Registry, error) {
	r := &Registry{path: path, records: map[string]Record{}}
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return r, nil
	}

	entries, err := decodeOrdered(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry %s: %w", path, err)
	}
	for _, e := range entries {
		key := Key(e.Symbol)
		if _, dup := r.records[key]; dup {
			continue
		}
		r.order = append(r.order, key)
		r.records[key] = e.Record
	}

	logging.LogDebug("Loaded token registry", zap.String("file", path), zap.Int("count", len(r.order)))
	return r, nil
}

// Key normalizes a symbol.
func Key(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// Register inserts or overwrites symbol and moves it to the front.
func (r *Registry) Register(symbol string, rec Record) error {
	key := Key(symbol)
	if key == "" {
		return fmt.Errorf("empty symbol")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]string, 0, len(r.order)+1)
	order = append(order, key)
	for _, k := range r.order {
		if k != key {
			order = append(order, k)
		}
	}
	prevOrder := r.order
	prev, existed := r.records[key]

	r.order = order
	r.records[key] = rec

	if err := r.saveLocked(); err != nil {
		// keep memory and file consistent
		r.order = prevOrder
		if existed {
			r.records[key] = prev
		} else {
			delete(r.records, key)
		}
		return err
	}

	logging.LogInfo("Token registered",
		zap.String("symbol", key),
		zap.String("chain", rec.Chain.String()),
		zap.String("address", rec.Address),
		zap.String("amount", rec.Amount.String()))
	return nil
}

func (r *Registry) Lookup(symbol string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[Key(symbol)]
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", Key(symbol), ErrNotFound)
	}
	return rec, nil
}

// List returns a snapshot, newest first.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Entry{Symbol: k, Record: r.records[k]})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) saveLocked() error {
	if r.path == "" {
		return nil
	}
	entries := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		entries = append(entries, Entry{Symbol: k, Record: r.records[k]})
	}
	data, err := encodeOrdered(entries)
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := fs.WriteFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("failed to save registry: %w", err)
	}
	return nil
}

func encodeOrdered(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, e := range entries {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		key, err := json.Marshal(e.Symbol)
		if err != nil {
			return nil, err
		}
		val, err := json.MarshalIndent(e.Record, "  ", "  ")
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	if len(entries) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func decodeOrdered(data []byte) ([]Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("registry must be a JSON object")
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		symbol, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key %v", tok)
		}
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("record %s: %w", symbol, err)
		}
		entries = append(entries, Entry{Symbol: symbol, Record: rec})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}
