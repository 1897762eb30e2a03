package discord

// Discord interactions
// slash commands -> handler; buttons and the token select -> handler.Action;
// a picked token opens the wallet modal, its submit completes the send

import (
	"context"
	"strings"

	"airdrop-bot/internal/chat"
	"airdrop-bot/internal/chat/handlers"
	log "airdrop-bot/internal/infra/log"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	walletModalPrefix = "wallet:"
	walletInputID     = "wallet"
)

func stringOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: description,
		Required:    true,
	}
}

// Commands are the slash commands registered on start.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "register",
		Description: "Buy and register a token (admin)",
		Options: []*discordgo.ApplicationCommandOption{
			stringOption("chain", "sol or eth"),
			stringOption("symbol", "Token symbol"),
			stringOption("contract", "Mint or contract address"),
		},
	},
	{
		Name:        "registertoken",
		Description: "Register a token with a fixed amount (admin)",
		Options: []*discordgo.ApplicationCommandOption{
			stringOption("chain", "sol or eth"),
			stringOption("symbol", "Token symbol"),
			stringOption("contract", "Mint or contract address"),
			stringOption("amount", "Amount sent per request"),
		},
	},
	{Name: "send", Description: "Receive a registered token"},
	{Name: "tokens", Description: "List registered tokens"},
	{Name: "help", Description: "Show commands"},
}

type Bot struct {
	s       Session
	handler *handlers.Handler
}

func NewBot(s Session, handler *handlers.Handler) *Bot {
	return &Bot{s: s, handler: handler}
}

// Attach registers the interaction handler and the slash commands, then opens the gateway.
// ctx is handed to every interaction and to the settlement tasks they start.
func Attach(ctx context.Context, s *discordgo.Session, handler *handlers.Handler, guildID string) (*Bot, error) {
	b := NewBot(s, handler)
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.HandleInteraction(ctx, i.Interaction)
	})
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.LogInfo("Discord session ready", zap.String("user", r.User.Username))
	})
	if err := s.Open(); err != nil {
		return nil, err
	}
	if _, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands); err != nil {
		s.Close()
		return nil, err
	}
	log.LogInfo("Discord slash commands synced", zap.Int("count", len(Commands)))
	return b, nil
}

func interactionUser(i *discordgo.Interaction) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	defer func() {
		if r := recover(); r != nil {
			log.LogError("Discord interaction handler panicked", zap.Any("panic", r))
		}
	}()

	userID := interactionUser(i)
	if userID == "" {
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i, userID)
	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		action := data.CustomID
		if data.CustomID == pickMenuID && len(data.Values) > 0 {
			action = data.Values[0]
		}
		if strings.HasPrefix(action, string(chat.ActionRegister)+":") {
			b.deferred(i, func() handlers.Reply { return b.handler.Action(ctx, userID, action) })
			return
		}
		b.respond(i, b.handler.Action(ctx, userID, action))
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		if !strings.HasPrefix(data.CustomID, walletModalPrefix) {
			return
		}
		symbol := strings.TrimPrefix(data.CustomID, walletModalPrefix)
		address := ModalValue(data.Components, walletInputID)
		b.deferred(i, func() handlers.Reply { return b.handler.Wallet(ctx, userID, symbol, address) })
	}
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.Interaction, userID string) {
	data := i.ApplicationCommandData()
	log.LogDebug("Received slash command", zap.String("command", data.Name), zap.String("user", userID))

	switch data.Name {
	case "register":
		args := OptionValues(data.Options, "chain", "symbol", "contract")
		b.deferred(i, func() handlers.Reply { return b.handler.Register(ctx, userID, args) })
	case "registertoken":
		args := OptionValues(data.Options, "chain", "symbol", "contract", "amount")
		b.deferred(i, func() handlers.Reply { return b.handler.RegisterToken(ctx, userID, args) })
	case "send":
		b.respond(i, b.handler.Send(ctx, userID))
	case "tokens":
		b.respond(i, b.handler.Tokens())
	case "help":
		r := handlers.Help(b.handler.IsAdmin(userID))
		r.Private = true
		b.respond(i, r)
	}
}

// respond answers within the interaction deadline; a wallet prompt becomes a modal.
func (b *Bot) respond(i *discordgo.Interaction, r handlers.Reply) {
	var resp *discordgo.InteractionResponse
	if r.AskWallet != "" {
		resp = WalletModal(r.AskWallet, r.Text)
	} else {
		data := &discordgo.InteractionResponseData{
			Content:    r.Text,
			Components: Components(r.Buttons),
		}
		if r.Private {
			data.Flags = discordgo.MessageFlagsEphemeral
		}
		resp = &discordgo.InteractionResponse{Type: discordgo.InteractionResponseChannelMessageWithSource, Data: data}
	}
	if err := b.s.InteractionRespond(i, resp); err != nil {
		log.LogError("Failed to respond to interaction", zap.Error(err))
	}
}

// deferred acknowledges first, for handlers that wait on RPC or the aggregator.
func (b *Bot) deferred(i *discordgo.Interaction, run func() handlers.Reply) {
	if err := b.s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		log.LogError("Failed to defer interaction", zap.Error(err))
		return
	}
	r := run()
	params := &discordgo.WebhookParams{Content: r.Text, Components: Components(r.Buttons)}
	if r.Private {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := b.s.FollowupMessageCreate(i, false, params); err != nil {
		log.LogError("Failed to send interaction follow-up", zap.Error(err))
	}
}

// WalletModal asks for the recipient address of symbol.
func WalletModal(symbol, prompt string) *discordgo.InteractionResponse {
	label := prompt
	if len(label) > 45 {
		label = "Recipient wallet address"
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: walletModalPrefix + symbol,
			Title:    "Wallet address",
			Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID: walletInputID,
					Label:    label,
					Style:    discordgo.TextInputShort,
					Required: true,
				},
			}}},
		},
	}
}

// OptionValues returns the string options in the given order, missing ones empty.
func OptionValues(options []*discordgo.ApplicationCommandInteractionDataOption, names ...string) []string {
	byName := make(map[string]string, len(options))
	for _, o := range options {
		if o.Type == discordgo.ApplicationCommandOptionString {
			byName[o.Name] = o.StringValue()
		}
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, strings.TrimSpace(byName[n]))
	}
	return out
}

// ModalValue finds the text input with customID.
func ModalValue(components []discordgo.MessageComponent, customID string) string {
	for _, c := range components {
		var row []discordgo.MessageComponent
		switch r := c.(type) {
		case *discordgo.ActionsRow:
			row = r.Components
		case discordgo.ActionsRow:
			row = r.Components
		}
		for _, inner := range row {
			switch in := inner.(type) {
			case *discordgo.TextInput:
				if in.CustomID == customID {
					return strings.TrimSpace(in.Value)
				}
			case discordgo.TextInput:
				if in.CustomID == customID {
					return strings.TrimSpace(in.Value)
				}
			}
		}
	}
	return ""
}
