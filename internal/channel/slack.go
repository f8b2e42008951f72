package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"personabot/internal/domain"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const slackMaxMsgLen = 4000

// Slack implements domain.Channel for Slack using Socket Mode.
type Slack struct {
	botToken string
	appToken string
	agentID  string
	client   *slack.Client
	logger   *slog.Logger
	botUID   string // the bot's own user ID, to avoid replying to self
}

// SlackConfig configures the Slack channel.
type SlackConfig struct {
	BotToken string
	AppToken string
	AgentID  string
	Logger   *slog.Logger
}

// NewSlack creates a new Slack channel handler.
func NewSlack(cfg SlackConfig) *Slack {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Slack{
		botToken: cfg.BotToken,
		appToken: cfg.AppToken,
		agentID:  cfg.AgentID,
		logger:   cfg.Logger,
	}
}

func (s *Slack) Name() string { return "slack" }

// Start connects to Slack via Socket Mode and begins listening for events.
func (s *Slack) Start(ctx context.Context, bus domain.MessageBus) error {
	if s.botToken == "" || s.appToken == "" {
		return errors.New("slack: bot and app tokens are required")
	}

	api := slack.New(
		s.botToken,
		slack.OptionAppLevelToken(s.appToken),
	)
	s.client = api

	authResp, err := api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	s.botUID = authResp.UserID
	s.logger.Info("slack bot connected", "user", authResp.User, "user_id", authResp.UserID)

	socketClient := socketmode.New(api)

	go func() {
		for evt := range socketClient.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				socketClient.Ack(*evt.Request)
				s.handleEventsAPI(bus, eventsAPIEvent)

			default:
				// Unacknowledged requests make Socket Mode disconnect.
				if evt.Request != nil {
					socketClient.Ack(*evt.Request)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- socketClient.RunContext(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("slack bot disconnecting")
		return nil
	case err := <-errCh:
		return fmt.Errorf("slack socket mode: %w", err)
	}
}

func (s *Slack) handleEventsAPI(bus domain.MessageBus, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		// Skip our own messages and edits.
		if ev.User == s.botUID || ev.User == "" || ev.SubType != "" {
			return
		}
		s.publish(bus, ev.User, ev.Channel, ev.Text)

	case *slackevents.AppMentionEvent:
		content := ev.Text
		if idx := strings.Index(content, ">"); idx >= 0 {
			content = strings.TrimSpace(content[idx+1:])
		}
		s.publish(bus, ev.User, ev.Channel, content)
	}
}

func (s *Slack) publish(bus domain.MessageBus, user, channelID, text string) {
	s.logger.Info("slack message received",
		"user", user,
		"channel", channelID,
		"content_len", len(text),
	)
	bus.Publish(domain.Envelope{
		Input:     slackInput(s.agentID, user, channelID, text),
		Responder: &slackResponder{s: s, channelID: channelID},
	})
}

func slackInput(agentID, user, channelID, text string) domain.InputObject {
	return domain.InputObject{
		Source:     domain.SourceSlack,
		AgentID:    agentID,
		UserID:     domain.RoomID("slack_user", user),
		RoomID:     domain.RoomID("slack_"+channelID, user),
		Type:       domain.TypeText,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

func (s *Slack) sendMessage(ctx context.Context, channelID, content string) error {
	for _, chunk := range splitMessage(content, slackMaxMsgLen) {
		_, _, err := s.client.PostMessageContext(ctx,
			channelID,
			slack.MsgOptionText(chunk, false),
		)
		if err != nil {
			s.logger.Error("slack send failed", "channel", channelID, "err", err)
			return fmt.Errorf("slack send: %w", err)
		}
	}
	return nil
}

type slackResponder struct {
	s         *Slack
	channelID string
}

func (r *slackResponder) Send(ctx context.Context, content string) error {
	return r.s.sendMessage(ctx, r.channelID, content)
}

func (r *slackResponder) Error(ctx context.Context, err error) error {
	r.s.logger.Error("slack message failed", "channel", r.channelID, "err", err)
	return r.s.sendMessage(ctx, r.channelID, errorNotice)
}
