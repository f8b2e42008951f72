package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"personabot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000
)

// Discord implements domain.Channel for Discord direct messages.
type Discord struct {
	token   string
	agentID string
	dryRun  bool
	session *discordgo.Session
	send    func(channelID, content string) error
	logger  *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token   string
	AgentID string
	DryRun  bool // process messages without posting replies
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := &Discord{
		token:   cfg.Token,
		agentID: cfg.AgentID,
		dryRun:  cfg.DryRun,
		logger:  cfg.Logger,
	}
	d.send = d.sessionSend
	return d
}

func (d *Discord) Name() string { return "discord" }

// Start connects to Discord using a bot token and begins listening.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	if d.token == "" {
		return errors.New("discord: token is required")
	}

	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	d.session = session

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil {
			return
		}
		d.handleMessage(bus, discordMessage{
			AuthorID:  m.Author.ID,
			AuthorBot: m.Author.Bot,
			GuildID:   m.GuildID,
			ChannelID: m.ChannelID,
			Content:   m.Content,
		})
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	d.logger.Info("discord bot connected", "user", session.State.User.Username, "dry_run", d.dryRun)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// discordMessage is the subset of a MessageCreate event the channel uses.
type discordMessage struct {
	AuthorID  string
	AuthorBot bool
	GuildID   string
	ChannelID string
	Content   string
}

// handleMessage turns a direct message from a human into an input.
// Guild messages and bot authors are ignored.
func (d *Discord) handleMessage(bus domain.MessageBus, m discordMessage) {
	if m.AuthorBot || m.GuildID != "" {
		return
	}

	d.logger.Info("discord message received",
		"author", m.AuthorID,
		"channel_id", m.ChannelID,
		"content_len", len(m.Content),
	)

	bus.Publish(domain.Envelope{
		Input: domain.InputObject{
			Source:     domain.SourceDiscord,
			AgentID:    d.agentID,
			UserID:     domain.RoomID("discord_user", m.AuthorID),
			RoomID:     domain.RoomID("discord_dm", m.AuthorID),
			Type:       domain.TypeText,
			Text:       m.Content,
			ReceivedAt: time.Now(),
		},
		Responder: &discordResponder{d: d, channelID: m.ChannelID},
	})
}

func (d *Discord) sessionSend(channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content)
	return err
}

type discordResponder struct {
	d         *Discord
	channelID string
}

func (r *discordResponder) Send(ctx context.Context, content string) error {
	if r.d.dryRun {
		r.d.logger.Info("discord dry run reply", "channel_id", r.channelID, "content", content)
		return nil
	}
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		if err := r.d.send(r.channelID, chunk); err != nil {
			r.d.logger.Error("discord send failed", "channel", r.channelID, "err", err)
			return fmt.Errorf("discord send: %w", err)
		}
	}
	return nil
}

func (r *discordResponder) Error(ctx context.Context, err error) error {
	r.d.logger.Error("discord message failed", "channel", r.channelID, "err", err)
	if r.d.dryRun {
		return nil
	}
	if sendErr := r.d.send(r.channelID, errorNotice); sendErr != nil {
		return fmt.Errorf("discord send: %w", sendErr)
	}
	return nil
}
