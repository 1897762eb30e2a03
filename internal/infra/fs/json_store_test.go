package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJSON_MissingAndBlank(t *testing.T) {
	dir := t.TempDir()

	var v map[string]int
	found, err := ReadJSON(filepath.Join(dir, "nope.json"), &v)
	require.NoError(t, err)
	assert.False(t, found)

	blank := filepath.Join(dir, "blank.json")
	require.NoError(t, os.WriteFile(blank, []byte("  \n"), 0644))
	found, err = ReadJSON(blank, &v)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWriteJSONAtomic_RoundTripAndNoTempLeft(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "x.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}))

	var v map[string]int
	found, err := ReadJSON(path, &v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, v["a"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReadJSON_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))
	var v map[string]int
	_, err := ReadJSON(path, &v)
	assert.Error(t, err)
}

func TestAirdropEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), AirdropEventsFileName)

	events, err := LoadAirdropEvents(path)
	require.NoError(t, err)
	assert.Empty(t, events)

	in := []AirdropEvent{{
		EventTitle: "XYZ(XYZ) 에어드랍 이벤트",
		EventURL:   "https://feed.bithumb.com/notice/1",
		Coins:      []AirdropCoin{{Chain: "SOL", Coin: "XYZ", Contract: "Mint111"}},
	}}
	require.NoError(t, SaveAirdropEvents(path, in))

	out, err := LoadAirdropEvents(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
