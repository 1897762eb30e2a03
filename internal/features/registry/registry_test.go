package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"airdrop-bot/internal/chain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(addr, amount string) Record {
	return Record{Chain: chain.SOL, Address: addr, Decimals: 6, Amount: decimal.RequireFromString(amount)}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	r, err := Open("")
	require.NoError(t, err)

	require.NoError(t, r.Register("XYZ", rec("Mint1", "12.5")))

	for _, s := range []string{"xyz", "XYZ", "Xyz", " xyz "} {
		got, err := r.Lookup(s)
		require.NoError(t, err, s)
		assert.Equal(t, "Mint1", got.Address)
	}
	assert.Equal(t, "xyz", r.List()[0].Symbol)
}

func TestLookupMissing(t *testing.T) {
	r, _ := Open("")
	_, err := r.Lookup("nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListNewestFirst(t *testing.T) {
	r, _ := Open("")
	require.NoError(t, r.Register("a", rec("A", "1")))
	require.NoError(t, r.Register("b", rec("B", "2")))
	require.NoError(t, r.Register("c", rec("C", "3")))

	symbols := func() []string {
		var out []string
		for _, e := range r.List() {
			out = append(out, e.Symbol)
		}
		return out
	}
	assert.Equal(t, []string{"c", "b", "a"}, symbols())

	// re-registration overwrites and moves to the front
	require.NoError(t, r.Register("A", rec("A2", "9")))
	assert.Equal(t, []string{"a", "c", "b"}, symbols())
	assert.Equal(t, 3, r.Len())
	got, _ := r.Lookup("a")
	assert.Equal(t, "A2", got.Address)
}

func TestPersistedOrderSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token_registry.json")

	r, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, r.Register("old", rec("O", "0.5")))
	require.NoError(t, r.Register("new", Record{Chain: chain.EVM, Address: "0xabc", Decimals: 18, Amount: decimal.RequireFromString("0.000001")}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount": 0.000001`)
	assert.Less(t, strings.Index(string(data), `"new"`), strings.Index(string(data), `"old"`))

	reloaded, err := Open(path)
	require.NoError(t, err)
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].Symbol)
	assert.Equal(t, chain.EVM, list[0].Record.Chain)
	assert.Equal(t, uint8(18), list[0].Record.Decimals)
	assert.True(t, decimal.RequireFromString("0.000001").Equal(list[0].Record.Amount))
	assert.Equal(t, "old", list[1].Symbol)
}

func TestOpenRejectsNonObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`[1,2]`), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	r, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentRegisterSameSymbol(t *testing.T) {
	r, _ := Open(filepath.Join(t.TempDir(), "reg.json"))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Register("Dup", rec("M", "1"))
			_, _ = r.Lookup("dup")
			_ = r.List()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, r.Len())
}

func TestRegisterEmptySymbol(t *testing.T) {
	r, _ := Open("")
	assert.Error(t, r.Register("  ", rec("M", "1")))
}
