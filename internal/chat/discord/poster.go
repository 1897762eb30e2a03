package discord

import (
	"context"
	"fmt"
	"strings"

	"airdrop-bot/internal/chat"

	"github.com/bwmarrin/discordgo"
)

// Session is the subset of *discordgo.Session the adapter uses.
type Session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func Dial(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages
	return s, nil
}

type Poster struct {
	s Session
}

func NewPoster(s Session) *Poster {
	return &Poster{s: s}
}

func (p *Poster) Post(ctx context.Context, channelID string, msg chat.Message) (chat.MessageRef, error) {
	sent, err := p.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    msg.Text,
		Components: Components(msg.Buttons),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("failed to send discord message: %w", err)
	}
	return chat.MessageRef{ChannelID: channelID, MessageID: sent.ID}, nil
}

// Edit replaces content and components; no buttons clears the components.
func (p *Poster) Edit(ctx context.Context, ref chat.MessageRef, msg chat.Message) error {
	edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetContent(msg.Text)
	components := Components(msg.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	edit.Components = &components
	if _, err := p.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to edit discord message %s: %w", ref.MessageID, err)
	}
	return nil
}

func (p *Poster) Delete(ctx context.Context, ref chat.MessageRef) error {
	if err := p.s.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to delete discord message %s: %w", ref.MessageID, err)
	}
	return nil
}

// Purge deletes every message of channelID, 100 per page, and returns the count.
func (p *Poster) Purge(ctx context.Context, channelID string) (int, error) {
	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		msgs, err := p.s.ChannelMessages(channelID, 100, "", "", "", discordgo.WithContext(ctx))
		if err != nil {
			return deleted, fmt.Errorf("failed to list discord messages: %w", err)
		}
		if len(msgs) == 0 {
			return deleted, nil
		}
		for _, m := range msgs {
			if err := p.Delete(ctx, chat.MessageRef{ChannelID: channelID, MessageID: m.ID}); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
}

const pickMenuID = "pick"

// Components renders button rows. Rows made only of pick actions become one select menu.
func Components(rows [][]chat.Button) []discordgo.MessageComponent {
	if len(rows) == 0 {
		return nil
	}
	if allPicks(rows) {
		options := make([]discordgo.SelectMenuOption, 0, len(rows))
		for _, row := range rows {
			for _, b := range row {
				options = append(options, discordgo.SelectMenuOption{Label: b.Label, Value: b.Action})
			}
		}
		// discord caps a select menu at 25 options
		if len(options) > 25 {
			options = options[:25]
		}
		return []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    pickMenuID,
				Placeholder: "Choose a token",
				Options:     options,
			},
		}}}
	}

	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.Action,
			})
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

func allPicks(rows [][]chat.Button) bool {
	for _, row := range rows {
		for _, b := range row {
			if !strings.HasPrefix(b.Action, string(chat.ActionPick)+":") {
				return false
			}
		}
	}
	return true
}
