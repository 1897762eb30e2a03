package notices

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/chat/chattest"
	"airdrop-bot/internal/infra/fs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var xyzEvent = fs.AirdropEvent{
	EventTitle: "XYZ(XYZ) airdrop",
	EventURL:   "https://feed.example/notice/1",
	Coins: []fs.AirdropCoin{
		{Chain: "SOL", Coin: "XYZ", Contract: "Mint111"},
		{Chain: "BASE", Coin: "BBB", Contract: "0xdef"},
		{Chain: "ETH", Coin: "EEE", Contract: "0xabc"},
	},
}

func newPublisher(t *testing.T, path string) (*Publisher, *chattest.Poster) {
	t.Helper()
	idx, err := OpenIndex(path)
	require.NoError(t, err)
	poster := &chattest.Poster{}
	return NewPublisher(poster, idx, "notice-ch", "@reviewer", nil), poster
}

func TestPublishNew_Idempotent(t *testing.T) {
	p, poster := newPublisher(t, "")

	n, err := p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, poster.PostCount())

	a, ok := p.Index().Get("xyz")
	require.True(t, ok)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, chain.SOL, a.Chain)
	assert.Equal(t, "notice-ch", a.ChannelID)
	assert.Equal(t, "m1", a.MessageID)

	first := poster.Posts[0].Message
	assert.Contains(t, first.Text, "PENDING")
	require.Len(t, first.Buttons, 1)
	assert.Equal(t, "reg:XYZ", first.Buttons[0][0].Action)

	assert.False(t, p.Index().Has("BBB"))
}

func TestPublishNew_SkipsChangedDataForKnownSymbol(t *testing.T) {
	p, poster := newPublisher(t, "")
	_, err := p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)

	changed := fs.AirdropEvent{EventTitle: "again", Coins: []fs.AirdropCoin{{Chain: "SOL", Coin: "xyz", Contract: "OtherMint"}}}
	n, err := p.PublishNew(context.Background(), changed)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, poster.PostCount())
	a, _ := p.Index().Get("XYZ")
	assert.Equal(t, "Mint111", a.Contract)
}

func TestPublishNew_PostFailureNotIndexed(t *testing.T) {
	p, poster := newPublisher(t, "")
	poster.PostErr = errors.New("forbidden")

	_, err := p.PublishNew(context.Background(), xyzEvent)
	assert.ErrorContains(t, err, "forbidden")
	assert.Equal(t, 0, p.Index().Len())
}

func TestPublishNew_IndexFailureRemovesMessage(t *testing.T) {
	dir := t.TempDir()
	p, poster := newPublisher(t, filepath.Join(dir, "state", "notices.json"))
	// a file where the state directory should be makes every save fail
	blocker := filepath.Join(dir, "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := p.PublishNew(context.Background(), xyzEvent)
	assert.ErrorContains(t, err, "failed to index announcement for XYZ")
	assert.Equal(t, []chat.MessageRef{{ChannelID: "notice-ch", MessageID: "m1"}}, poster.Deletes)
	assert.False(t, p.Index().Has("XYZ"))

	require.NoError(t, os.Remove(blocker))
	n, err := p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	a, ok := p.Index().Get("XYZ")
	require.True(t, ok)
	assert.Equal(t, "m2", a.MessageID)
	assert.Len(t, poster.Deletes, 1)
}

func TestFinalize_EditsOnce(t *testing.T) {
	p, poster := newPublisher(t, "")
	_, err := p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)

	require.NoError(t, p.Finalize(context.Background(), "XYZ", decimal.RequireFromString("50.000000"), 6))
	require.NoError(t, p.Finalize(context.Background(), "xyz", decimal.RequireFromString("50"), 6))

	edits := poster.EditsSnapshot()
	require.Len(t, edits, 1)
	assert.Equal(t, chat.MessageRef{ChannelID: "notice-ch", MessageID: "m1"}, edits[0].Ref)
	assert.Contains(t, edits[0].Message.Text, "SETTLED")
	assert.Contains(t, edits[0].Message.Text, "Per recipient: 50")
	assert.NotContains(t, edits[0].Message.Text, "@reviewer")
	assert.Empty(t, edits[0].Message.Buttons)

	a, _ := p.Index().Get("xyz")
	assert.Equal(t, StatusSettled, a.Status)
}

func TestFinalize_FlagsReviewer(t *testing.T) {
	for name, amount := range map[string]string{"zero": "0", "dust": "0.0004"} {
		t.Run(name, func(t *testing.T) {
			p, poster := newPublisher(t, "")
			_, err := p.PublishNew(context.Background(), xyzEvent)
			require.NoError(t, err)

			require.NoError(t, p.Finalize(context.Background(), "XYZ", decimal.RequireFromString(amount), 6))
			edits := poster.EditsSnapshot()
			require.Len(t, edits, 1)
			assert.Contains(t, edits[0].Message.Text, "@reviewer")
		})
	}
}

func TestFinalize_UnknownSymbol(t *testing.T) {
	p, poster := newPublisher(t, "")
	require.NoError(t, p.Finalize(context.Background(), "manual", decimal.NewFromInt(1), 0))
	assert.Empty(t, poster.EditsSnapshot())
}

func TestIndexPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), fs.AnnouncementsFileName)
	p, _ := newPublisher(t, path)
	_, err := p.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)

	// a restarted process does not repost
	p2, poster2 := newPublisher(t, path)
	n, err := p2.PublishNew(context.Background(), xyzEvent)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, poster2.PostCount())
	assert.Len(t, p2.Index().Pending(), 2)
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"50", 6, "50"},
		{"1.2300", 6, "1.23"},
		{"0.0000001", 6, "0"},
		{"0", 9, "0"},
		{"0.05", 6, "0.05"},
		{"120", 0, "120"},
		{"2.4", 0, "2"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatAmount(decimal.RequireFromString(c.in), c.decimals), c.in)
	}

	assert.True(t, NeedsReview("0"))
	assert.True(t, NeedsReview("0.05"))
	assert.False(t, NeedsReview("0.5"))
	assert.False(t, NeedsReview("10"))
}

type fakeSource struct {
	events []fs.AirdropEvent
	calls  int
}

func (f *fakeSource) ScanAirdrops(ctx context.Context, size int) ([]fs.AirdropEvent, error) {
	f.calls++
	return f.events, nil
}

func TestPollOnce(t *testing.T) {
	dir := t.TempDir()
	p, poster := newPublisher(t, "")
	src := &fakeSource{events: []fs.AirdropEvent{xyzEvent}}
	poller := NewPoller(src, p, PollerOptions{EventsPath: filepath.Join(dir, fs.AirdropEventsFileName)})

	n, err := poller.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = poller.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, poster.PostCount())

	stored, err := fs.LoadAirdropEvents(filepath.Join(dir, fs.AirdropEventsFileName))
	require.NoError(t, err)
	assert.Equal(t, []fs.AirdropEvent{xyzEvent}, stored)
}

func TestRunStopsOnCancel(t *testing.T) {
	p, _ := newPublisher(t, "")
	src := &fakeSource{}
	poller := NewPoller(src, p, PollerOptions{Schedule: "0 10 * * *", Location: time.UTC})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}
	assert.GreaterOrEqual(t, src.calls, 1)
}

func TestRunRejectsBadSchedule(t *testing.T) {
	p, _ := newPublisher(t, "")
	poller := NewPoller(&fakeSource{}, p, PollerOptions{Schedule: "not a cron"})
	assert.Error(t, poller.Run(context.Background()))
	assert.Error(t, ValidateSchedule("bad"))
	assert.NoError(t, ValidateSchedule("0 10 * * *"))
}
