package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"airdrop-bot/internal/chain"
)

const (
	SwapPath            = "/api/v6/dex/aggregator/swap"
	SwapInstructionPath = "/api/v6/dex/aggregator/swap-instruction"
	QuotePath           = "/api/v6/dex/aggregator/quote"
)

// ChainIndex is the aggregator's network id.
func ChainIndex(c chain.Chain) string {
	switch c {
	case chain.EVM:
		return "1"
	case chain.SOL:
		return "501"
	}
	return ""
}

// SwapRequest - Amount is in native base units (wei or lamports)
type SwapRequest struct {
	Chain           chain.Chain
	FromToken       string
	ToToken         string
	Amount          string
	SlippagePercent float64
	Wallet          string
}

func (r SwapRequest) params() url.Values {
	p := url.Values{}
	p.Set("chainIndex", ChainIndex(r.Chain))
	p.Set("fromTokenAddress", r.FromToken)
	p.Set("toTokenAddress", r.ToToken)
	p.Set("amount", r.Amount)
	p.Set("slippagePercent", strconv.FormatFloat(r.SlippagePercent, 'f', -1, 64))
	p.Set("userWalletAddress", r.Wallet)
	return p
}

// APIError - the aggregator answered with code != "0" or no route
type APIError struct {
	Path string
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	if e.Code == "" || e.Code == "0" {
		return fmt.Sprintf("okx %s: no executable route", e.Path)
	}
	return fmt.Sprintf("okx %s error %s: %s", e.Path, e.Code, e.Msg)
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(path string, body []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s response: %w", path, err)
	}
	if env.Code != "0" {
		return nil, &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}
	switch string(env.Data) {
	case "", "null", "[]", "{}":
		return nil, &APIError{Path: path, Code: env.Code, Msg: env.Msg}
	}
	return env.Data, nil
}

type SwapTx struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
}

type swapData struct {
	Tx SwapTx `json:"tx"`
}

// Swap returns a ready-to-sign EVM call for the route.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*chain.SwapPayload, error) {
	body, err := c.Get(ctx, SwapPath, req.params())
	if err != nil {
		return nil, fmt.Errorf("failed to request swap: %w", err)
	}
	raw, err := decodeEnvelope(SwapPath, body)
	if err != nil {
		return nil, err
	}

	var data []swapData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal swap data: %w", err)
	}
	if len(data) == 0 || data[0].Tx.To == "" {
		return nil, &APIError{Path: SwapPath, Code: "0"}
	}

	tx := data[0].Tx
	return &chain.SwapPayload{
		From:     tx.From,
		To:       tx.To,
		Data:     tx.Data,
		Value:    tx.Value,
		Gas:      tx.Gas,
		GasPrice: tx.GasPrice,
	}, nil
}

type swapInstructionData struct {
	InstructionLists []chain.Instruction `json:"instructionLists"`
}

// SwapInstructions returns the Solana instruction list for the route.
func (c *Client) SwapInstructions(ctx context.Context, req SwapRequest) (*chain.SwapPayload, error) {
	body, err := c.Get(ctx, SwapInstructionPath, req.params())
	if err != nil {
		return nil, fmt.Errorf("failed to request swap instructions: %w", err)
	}
	raw, err := decodeEnvelope(SwapInstructionPath, body)
	if err != nil {
		return nil, err
	}

	var data swapInstructionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal swap instructions: %w", err)
	}
	if len(data.InstructionLists) == 0 {
		return nil, &APIError{Path: SwapInstructionPath, Code: "0"}
	}
	return &chain.SwapPayload{Instructions: data.InstructionLists}, nil
}

type quoteToken struct {
	TokenSymbol    string `json:"tokenSymbol"`
	TokenUnitPrice string `json:"tokenUnitPrice"`
	Decimal        string `json:"decimal"`
}

type QuoteResult struct {
	FromToken  quoteToken `json:"fromToken"`
	ToToken    quoteToken `json:"toToken"`
	ToAmount   string     `json:"toTokenAmount"`
	FromAmount string     `json:"fromTokenAmount"`
}

// Quote prices a route without building a transaction.
func (c *Client) Quote(ctx context.Context, req SwapRequest) (*QuoteResult, error) {
	body, err := c.Get(ctx, QuotePath, req.params())
	if err != nil {
		return nil, fmt.Errorf("failed to request quote: %w", err)
	}
	raw, err := decodeEnvelope(QuotePath, body)
	if err != nil {
		return nil, err
	}

	var data []QuoteResult
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
	}
	if len(data) == 0 {
		return nil, &APIError{Path: QuotePath, Code: "0"}
	}
	return &data[0], nil
}

// FromTokenUnitPrice is the USD price of the spent asset.
func (q *QuoteResult) FromTokenUnitPrice() (float64, error) {
	return strconv.ParseFloat(q.FromToken.TokenUnitPrice, 64)
}
