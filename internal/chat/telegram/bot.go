package telegram

// Telegram update loop
// commands: /register /registertoken /send /tokens /help
// callbacks: reg:<symbol> send pick:<symbol>; a picked token is followed by a force-reply wallet prompt

import (
	"context"
	"strconv"
	"strings"

	"airdrop-bot/internal/chat/handlers"
	log "airdrop-bot/internal/infra/log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Bot struct {
	api     API
	handler *handlers.Handler
}

func NewBot(api API, handler *handlers.Handler) *Bot {
	return &Bot{api: api, handler: handler}
}

// Run consumes updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	log.LogInfo("Telegram update loop started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.LogInfo("Telegram update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError("Telegram update handler panicked", zap.Any("panic", r))
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	userID := strconv.FormatInt(message.From.ID, 10)

	if !message.IsCommand() {
		if b.handler.AwaitingWallet(userID) {
			b.reply(message.Chat.ID, message.MessageID, b.handler.Wallet(ctx, userID, "", message.Text))
		}
		return
	}

	command := message.Command()
	args := strings.Fields(message.CommandArguments())
	log.LogDebug("Received command",
		zap.String("command", command),
		zap.Strings("args", args),
		zap.Int64("chatID", message.Chat.ID),
		zap.String("username", message.From.UserName))

	var r handlers.Reply
	switch command {
	case "register":
		r = b.handler.Register(ctx, userID, args)
	case "registertoken":
		r = b.handler.RegisterToken(ctx, userID, args)
	case "send":
		r = b.handler.Send(ctx, userID)
	case "tokens":
		r = b.handler.Tokens()
	case "help", "start":
		r = handlers.Help(b.handler.IsAdmin(userID))
	default:
		return
	}
	b.reply(message.Chat.ID, message.MessageID, r)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil {
		return
	}
	userID := strconv.FormatInt(cq.From.ID, 10)
	r := b.handler.Action(ctx, userID, cq.Data)

	// short private notices fit into the callback alert
	if r.Private && len(r.Buttons) == 0 && r.AskWallet == "" {
		if _, err := b.api.Request(tgbotapi.NewCallbackWithAlert(cq.ID, r.Text)); err != nil {
			log.LogWarn("Failed to answer callback", zap.Error(err))
		}
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		log.LogWarn("Failed to answer callback", zap.Error(err))
	}
	if cq.Message != nil && cq.Message.Chat != nil {
		b.reply(cq.Message.Chat.ID, 0, r)
	}
}

func (b *Bot) reply(chatID int64, replyTo int, r handlers.Reply) {
	msg := tgbotapi.NewMessage(chatID, r.Text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	switch {
	case r.AskWallet != "":
		msg.ReplyMarkup = tgbotapi.ForceReply{
			ForceReply:            true,
			Selective:             true,
			InputFieldPlaceholder: "wallet address",
		}
	case len(r.Buttons) > 0:
		msg.ReplyMarkup = *Keyboard(r.Buttons)
	}
	if _, err := b.api.Send(msg); err != nil {
		log.LogError("Failed to send telegram reply", zap.Int64("chatID", chatID), zap.Error(err))
	}
}
