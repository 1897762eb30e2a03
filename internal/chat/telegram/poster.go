package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"airdrop-bot/internal/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the subset of *tgbotapi.BotAPI the adapter uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

func Dial(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return api, nil
}

type Poster struct {
	api API
}

func NewPoster(api API) *Poster {
	return &Poster{api: api}
}

func (p *Poster) Post(ctx context.Context, channelID string, msg chat.Message) (chat.MessageRef, error) {
	chatID, err := ParseChatID(channelID)
	if err != nil {
		return chat.MessageRef{}, err
	}
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	cfg.DisableWebPagePreview = true
	if kb := Keyboard(msg.Buttons); kb != nil {
		cfg.ReplyMarkup = *kb
	}
	sent, err := p.api.Send(cfg)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("failed to send telegram message: %w", err)
	}
	return chat.MessageRef{ChannelID: channelID, MessageID: strconv.Itoa(sent.MessageID)}, nil
}

// Edit replaces text and keyboard; no buttons removes the keyboard.
func (p *Poster) Edit(ctx context.Context, ref chat.MessageRef, msg chat.Message) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	edit.DisableWebPagePreview = true
	edit.ReplyMarkup = Keyboard(msg.Buttons)
	if _, err := p.api.Request(edit); err != nil {
		return fmt.Errorf("failed to edit telegram message %s: %w", ref.MessageID, err)
	}
	return nil
}

func (p *Poster) Delete(ctx context.Context, ref chat.MessageRef) error {
	chatID, messageID, err := parseRef(ref)
	if err != nil {
		return err
	}
	if _, err := p.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("failed to delete telegram message %s: %w", ref.MessageID, err)
	}
	return nil
}

// Keyboard converts button rows to an inline keyboard, nil when there are none.
func Keyboard(rows [][]chat.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &kb
}

// ParseChatID accepts numeric ids, including -100 supergroup ids.
func ParseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q", s)
	}
	return id, nil
}

func parseRef(ref chat.MessageRef) (int64, int, error) {
	chatID, err := ParseChatID(ref.ChannelID)
	if err != nil {
		return 0, 0, err
	}
	messageID, err := strconv.Atoi(ref.MessageID)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid telegram message id %q", ref.MessageID)
	}
	return chatID, messageID, nil
}
