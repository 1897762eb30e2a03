// Package handlers turns chat intents into orchestrator calls and platform-neutral replies.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"airdrop-bot/internal/chain"
	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/features/notices"
	"airdrop-bot/internal/features/orchestrator"
	"airdrop-bot/internal/features/registry"
	logging "airdrop-bot/internal/infra/log"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is implemented by *orchestrator.Orchestrator.
type Service interface {
	Register(ctx context.Context, c chain.Chain, symbol, contract string) (*orchestrator.Registration, error)
	RegisterAnnounced(ctx context.Context, symbol string) (*orchestrator.Registration, error)
	RegisterManual(ctx context.Context, c chain.Chain, symbol, contract string, amount decimal.Decimal) (registry.Record, error)
	RequestSend(ctx context.Context, userID string) ([]registry.Entry, error)
	Pick(userID, symbol string) (registry.Record, error)
	PickedSymbol(userID string) (string, bool)
	SubmitWallet(ctx context.Context, userID, symbol, address string) (*orchestrator.Distribution, error)
	Registry() *registry.Registry
}

// Reply - AskWallet is set when the platform should prompt for a wallet address
type Reply struct {
	chat.Message
	AskWallet string
	// Private replies are only shown to the requester where the platform allows it.
	Private bool
}

func text(format string, args ...interface{}) Reply {
	return Reply{Message: chat.Message{Text: fmt.Sprintf(format, args...)}}
}

func failure(err error) Reply {
	return text("❌ %s", err.Error())
}

type Handler struct {
	svc          Service
	isAdmin      func(userID string) bool
	poster       chat.Poster
	adminChannel string
}

// New - poster and adminChannel receive settlement follow-ups, either may be empty.
func New(svc Service, isAdmin func(userID string) bool, poster chat.Poster, adminChannel string) *Handler {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Handler{svc: svc, isAdmin: isAdmin, poster: poster, adminChannel: adminChannel}
}

func (h *Handler) IsAdmin(userID string) bool { return h.isAdmin(userID) }

// Register handles "/register <chain> <symbol> <contract>".
func (h *Handler) Register(ctx context.Context, userID string, args []string) Reply {
	if !h.isAdmin(userID) {
		return text("❌ Admins only")
	}
	if len(args) != 3 {
		return text("Usage: /register {chain} {symbol} {contract}\n\nExample: /register sol XYZ Mint111")
	}
	c, err := chain.ParseChain(args[0])
	if err != nil {
		return failure(err)
	}
	reg, err := h.svc.Register(ctx, c, args[1], args[2])
	if err != nil {
		return failure(err)
	}
	h.followUp(reg)
	return registrationReply(reg)
}

// RegisterAnnounced handles the register button of a pending announcement.
func (h *Handler) RegisterAnnounced(ctx context.Context, userID, symbol string) Reply {
	if !h.isAdmin(userID) {
		return Reply{Message: chat.Message{Text: "❌ Admins only"}, Private: true}
	}
	reg, err := h.svc.RegisterAnnounced(ctx, symbol)
	if err != nil {
		return failure(err)
	}
	h.followUp(reg)
	return registrationReply(reg)
}

// RegisterToken handles "/registertoken <chain> <symbol> <contract> <amount>".
func (h *Handler) RegisterToken(ctx context.Context, userID string, args []string) Reply {
	if !h.isAdmin(userID) {
		return text("❌ Admins only")
	}
	if len(args) != 4 {
		return text("Usage: /registertoken {chain} {symbol} {contract} {amount}\n\nExample: /registertoken eth ABC 0xabc 12.5")
	}
	c, err := chain.ParseChain(args[0])
	if err != nil {
		return failure(err)
	}
	amount, err := decimal.NewFromString(args[3])
	if err != nil {
		return failure(fmt.Errorf("invalid amount %q", args[3]))
	}
	rec, err := h.svc.RegisterManual(ctx, c, args[1], args[2], amount)
	if err != nil {
		return failure(err)
	}
	return text("✅ Token registered\nChain: %s\nSymbol: %s\nAddress: %s\nDecimals: %d\nAmount: %s",
		rec.Chain, registry.Key(args[1]), rec.Address, rec.Decimals, notices.FormatAmount(rec.Amount, rec.Decimals))
}

// Send opens a send session and lists the registered tokens as pick buttons, newest first.
func (h *Handler) Send(ctx context.Context, userID string) Reply {
	tokens, err := h.svc.RequestSend(ctx, userID)
	switch {
	case errors.Is(err, orchestrator.ErrQuotaExceeded):
		return Reply{Message: chat.Message{Text: "❌ You have used all of today's sends"}, Private: true}
	case errors.Is(err, orchestrator.ErrNoTokens):
		return text("❌ No tokens registered yet. Run /registertoken first.")
	case err != nil:
		return failure(err)
	}

	rows := make([][]chat.Button, 0, len(tokens))
	for _, t := range tokens {
		rows = append(rows, []chat.Button{{
			Label:  fmt.Sprintf("%s · %s each", strings.ToUpper(t.Symbol), notices.FormatAmount(t.Record.Amount, t.Record.Decimals)),
			Action: chat.PickAction(t.Symbol),
		}})
	}
	return Reply{Message: chat.Message{Text: "📌 Choose the token to receive:", Buttons: rows}, Private: true}
}

// Pick records the chosen token and asks for the wallet.
func (h *Handler) Pick(userID, symbol string) Reply {
	rec, err := h.svc.Pick(userID, symbol)
	if err != nil {
		r := failure(err)
		r.Private = true
		return r
	}
	return Reply{
		Message: chat.Message{Text: fmt.Sprintf("Reply with your %s wallet address to receive %s %s",
			rec.Chain, notices.FormatAmount(rec.Amount, rec.Decimals), strings.ToUpper(symbol))},
		AskWallet: registry.Key(symbol),
		Private:   true,
	}
}

// Wallet completes the session. An empty symbol uses the picked one.
func (h *Handler) Wallet(ctx context.Context, userID, symbol, address string) Reply {
	if strings.TrimSpace(address) == "" {
		return text("❌ Wallet address is empty")
	}
	d, err := h.svc.SubmitWallet(ctx, userID, symbol, address)
	if err != nil {
		return failure(err)
	}
	return text("✅ Sent %s %s\n%s", notices.FormatAmount(d.Amount, d.Decimals), strings.ToUpper(d.Symbol), d.Explorer)
}

// AwaitingWallet reports whether userID picked a token and owes a wallet address.
func (h *Handler) AwaitingWallet(userID string) bool {
	_, ok := h.svc.PickedSymbol(userID)
	return ok
}

// Action dispatches a button press.
func (h *Handler) Action(ctx context.Context, userID, data string) Reply {
	a, err := chat.ParseAction(data)
	if err != nil {
		logging.LogWarn("Unknown button action", zap.String("data", data), zap.String("user", userID))
		return text("❌ Unknown action")
	}
	switch a.Kind {
	case chat.ActionRegister:
		return h.RegisterAnnounced(ctx, userID, a.Symbol)
	case chat.ActionPick:
		return h.Pick(userID, a.Symbol)
	default:
		return h.Send(ctx, userID)
	}
}

func registrationReply(reg *orchestrator.Registration) Reply {
	return text("⏳ Swap submitted for %s on %s (decimals %d)\n%s\nAmount will be registered after settlement.",
		strings.ToUpper(reg.Symbol), reg.Chain, reg.Decimals, reg.Explorer)
}

// followUp reports the settlement result to the admin channel.
func (h *Handler) followUp(reg *orchestrator.Registration) {
	if reg == nil || reg.Result == nil {
		return
	}
	go func() {
		res, ok := <-reg.Result
		if !ok || h.poster == nil || h.adminChannel == "" {
			return
		}
		msg := SettlementMessage(res.Task.Symbol, res.PerRecipient, res.Task.Decimals, res.Ambiguous, res.Err)
		if _, err := h.poster.Post(context.Background(), h.adminChannel, msg); err != nil {
			logging.LogWarn("Failed to post settlement result", zap.String("symbol", res.Task.Symbol), zap.Error(err))
		}
	}()
}

func SettlementMessage(symbol string, perRecipient decimal.Decimal, decimals uint8, ambiguous bool, err error) chat.Message {
	sym := strings.ToUpper(symbol)
	switch {
	case err != nil:
		return chat.Message{Text: fmt.Sprintf("❌ Settlement of %s failed: %s", sym, err.Error())}
	case ambiguous:
		return chat.Message{Text: fmt.Sprintf("⚠️ %s registered with %s per recipient, nothing was credited. Check the transaction.",
			sym, notices.FormatAmount(perRecipient, decimals))}
	}
	return chat.Message{Text: fmt.Sprintf("✅ %s registered: %s per recipient", sym, notices.FormatAmount(perRecipient, decimals))}
}

func Help(admin bool) Reply {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("• /send - receive a registered token (3 per day)\n")
	b.WriteString("• /tokens - list registered tokens\n")
	if admin {
		b.WriteString("• /register {chain} {symbol} {contract} - buy and register a token\n")
		b.WriteString("• /registertoken {chain} {symbol} {contract} {amount} - register a fixed amount\n")
	}
	return Reply{Message: chat.Message{Text: b.String()}}
}

// Tokens lists the registry without touching the quota.
func (h *Handler) Tokens() Reply {
	entries := h.svc.Registry().List()
	if len(entries) == 0 {
		return text("No tokens registered yet")
	}
	var b strings.Builder
	b.WriteString("Registered tokens:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• %s (%s) %s each\n", strings.ToUpper(e.Symbol), e.Record.Chain, notices.FormatAmount(e.Record.Amount, e.Record.Decimals))
	}
	return text("%s", strings.TrimRight(b.String(), "\n"))
}

// Menus are the entry messages of the admin and user channels.
func Menus() (admin, user chat.Message) {
	admin = chat.Message{
		Text:    "⚙️ Admin token menu\nUse /register or the buttons on pending announcements.",
		Buttons: [][]chat.Button{{{Label: "📤 Send", Action: chat.SendAction()}}},
	}
	user = chat.Message{
		Text:    "📤 Click to receive a token:",
		Buttons: [][]chat.Button{{{Label: "📤 Send", Action: chat.SendAction()}}},
	}
	return admin, user
}
