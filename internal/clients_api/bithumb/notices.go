package bithumb

// Scraper for Bithumb airdrop announcements
// Flow: notice list (JSON) -> airdrop event page -> linked listing notices -> coin symbols + explorer links

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"airdrop-bot/internal/infra/fs"
	"airdrop-bot/internal/infra/log"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	DefaultListURL  = "https://api.bithumb.com/v1/notices"
	DefaultFeedBase = "https://feed.bithumb.com"

	airdropKeyword  = "에어드랍"
	explorerKeyword = "블록 익스플로러"

	contentSelector = "div[class^='NoticeDetailContent_detail-content']"
	titleSelector   = "h2, h3, [class^='NoticeDetailHeader_title__']"
)

var (
	symbolPattern = regexp.MustCompile(`\(([A-Za-z0-9]+)\)`)
	noticePattern = regexp.MustCompile(`/notice/\d+`)
)

// Notice is one entry of the notice list API.
type Notice struct {
	Title string `json:"title"`
	URL   string `json:"pc_url"`
}

type Link struct {
	Text string
	URL  string
}

type Client struct {
	http     *resty.Client
	listURL  string
	feedBase string
	// pageDelay spaces out page fetches; the feed sits behind bot protection.
	pageDelay time.Duration
}

type Option func(*Client)

func WithPageDelay(d time.Duration) Option { return func(c *Client) { c.pageDelay = d } }

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.http.SetTimeout(d) } }

func NewClient(listURL, feedBase string, opts ...Option) *Client {
	if listURL == "" {
		listURL = DefaultListURL
	}
	if feedBase == "" {
		feedBase = DefaultFeedBase
	}

	httpClient := resty.New().
		SetTimeout(30*time.Second).
		SetHeaders(map[string]string{
			"accept":     "application/json, text/html",
			"user-agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		}).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == 429 || code >= 500
		})

	c := &Client{
		http:      httpClient,
		listURL:   listURL,
		feedBase:  strings.TrimRight(feedBase, "/"),
		pageDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchRecentNotices(ctx context.Context, size int) ([]Notice, error) {
	if size <= 0 {
		size = 20
	}
	requestID := log.GenerateRequestID()
	start := time.Now()
	log.LogRequest(requestID, "GET", c.listURL, zap.Int("count", size))

	var notices []Notice
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"page":  "1",
			"count": strconv.Itoa(size),
		}).
		SetHeader("accept", "application/json").
		SetResult(&notices).
		Get(c.listURL)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(start).Milliseconds(), zap.String("endpoint", c.listURL), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch notices: %w", err)
	}
	log.LogResponse(requestID, resp.StatusCode(), time.Since(start).Milliseconds(), zap.String("endpoint", c.listURL))
	if resp.IsError() {
		return nil, fmt.Errorf("notice list error (%d): %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return notices, nil
}

// ScanAirdrops returns the airdrop events among the newest size notices.
// Events without a listing link or without matched coins are dropped.
func (c *Client) ScanAirdrops(ctx context.Context, size int) ([]fs.AirdropEvent, error) {
	notices, err := c.FetchRecentNotices(ctx, size)
	if err != nil {
		return nil, err
	}

	events := make([]fs.AirdropEvent, 0)
	for _, n := range notices {
		if !strings.Contains(n.Title, airdropKeyword) {
			continue
		}
		log.LogInfo("Airdrop notice found", zap.String("title", n.Title), zap.String("url", n.URL))

		links, err := c.FetchNoticeLinks(ctx, n.URL)
		if err != nil {
			log.LogWarn("Failed to load airdrop notice", zap.String("url", n.URL), zap.Error(err))
			continue
		}
		if len(links) == 0 {
			log.LogDebug("Airdrop notice has no listing links", zap.String("url", n.URL))
			continue
		}

		eventCoins := Symbols(n.Title)
		record := fs.AirdropEvent{EventTitle: n.Title, EventURL: n.URL, Coins: []fs.AirdropCoin{}}
		for _, link := range links {
			coins, err := c.FetchCoinsAndExplorers(ctx, link.URL)
			if err != nil {
				log.LogWarn("Failed to load listing notice", zap.String("url", link.URL), zap.Error(err))
				continue
			}
			for _, coin := range coins {
				if containsString(eventCoins, coin.Coin) {
					record.Coins = append(record.Coins, coin)
				}
			}
		}

		if len(record.Coins) > 0 {
			events = append(events, record)
		}
	}
	return events, nil
}

// FetchNoticeLinks extracts the "trading support" notice links of an event page.
func (c *Client) FetchNoticeLinks(ctx context.Context, pageURL string) ([]Link, error) {
	doc, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return c.noticeLinks(doc), nil
}

func (c *Client) noticeLinks(doc *goquery.Document) []Link {
	links := []Link{}
	content := doc.Find(contentSelector).First()
	content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.TrimSpace(a.Text())
		if !noticePattern.MatchString(href) {
			return
		}
		if !strings.Contains(text, "거래지원") && !strings.Contains(text, "거래 지원") {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = c.feedBase + href
		}
		links = append(links, Link{Text: text, URL: href})
	})
	return links
}

// FetchCoinsAndExplorers pairs title symbols with explorer links in page order.
func (c *Client) FetchCoinsAndExplorers(ctx context.Context, pageURL string) ([]fs.AirdropCoin, error) {
	doc, err := c.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return coinsAndExplorers(doc), nil
}

func coinsAndExplorers(doc *goquery.Document) []fs.AirdropCoin {
	var coins []string
	if title := doc.Find(titleSelector).First(); title.Length() > 0 {
		coins = Symbols(title.Text())
	}

	var explorers []string
	doc.Find(contentSelector).First().Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if strings.Contains(strings.TrimSpace(a.Text()), explorerKeyword) {
			href, _ := a.Attr("href")
			explorers = append(explorers, href)
		}
	})

	n := len(coins)
	if len(explorers) < n {
		n = len(explorers)
	}
	matched := make([]fs.AirdropCoin, 0, n)
	for i := 0; i < n; i++ {
		matched = append(matched, fs.AirdropCoin{
			Chain:    DetectChain(explorers[i]),
			Coin:     coins[i],
			Contract: ContractFromURL(explorers[i]),
		})
	}
	return matched
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if c.pageDelay > 0 {
		t := time.NewTimer(c.pageDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	requestID := log.GenerateRequestID()
	start := time.Now()
	log.LogRequest(requestID, "GET", pageURL)

	resp, err := c.http.R().SetContext(ctx).SetHeader("accept", "text/html").Get(pageURL)
	if err != nil {
		log.LogResponse(requestID, 0, time.Since(start).Milliseconds(), zap.String("endpoint", pageURL), zap.Error(err))
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	log.LogResponse(requestID, resp.StatusCode(), time.Since(start).Milliseconds(), zap.String("endpoint", pageURL))
	if resp.IsError() {
		return nil, fmt.Errorf("page %s returned %d", pageURL, resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// Symbols returns every "(SYMBOL)" in s, in order.
func Symbols(s string) []string {
	matches := symbolPattern.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// DetectChain maps an explorer link to its network label.
func DetectChain(link string) string {
	switch {
	case strings.Contains(link, "etherscan.io"):
		return "ETH"
	case strings.Contains(link, "basescan.org"):
		return "BASE"
	case strings.Contains(link, "bscscan.com"):
		return "BSC"
	case strings.Contains(link, "solscan.io"):
		return "SOL"
	}
	return "UNKNOWN"
}

// ContractFromURL is the last path segment of an explorer link, query stripped.
func ContractFromURL(link string) string {
	if u, err := url.Parse(link); err == nil && u.Path != "" {
		parts := strings.Split(strings.TrimRight(u.Path, "/"), "/")
		return parts[len(parts)-1]
	}
	parts := strings.Split(link, "/")
	return parts[len(parts)-1]
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
