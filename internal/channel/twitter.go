package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"personabot/internal/domain"

	"golang.org/x/time/rate"
)

const (
	twitterMaxRetries  = 3
	twitterMaxTweetLen = 280
)

// Twitter implements domain.Channel by polling the X/Twitter API v2 for
// mentions and direct messages addressed to the configured account.
type Twitter struct {
	apiBase     string
	bearerToken string
	userID      string
	agentID     string
	interval    time.Duration
	dryRun      bool

	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// The first poll of each feed only primes its cursor, so a restart
	// never answers backlog twice.
	mu             sync.Mutex
	mentionSince   string
	mentionsPrimed bool
	dmSince        string
	dmsPrimed      bool
}

// TwitterConfig configures the Twitter channel.
type TwitterConfig struct {
	APIBase            string
	BearerToken        string
	UserID             string // the bot account's user id
	AgentID            string
	PollInterval       time.Duration
	DryRun             bool
	RateLimitPerMinute int
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

func NewTwitter(cfg TwitterConfig) *Twitter {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.twitter.com/2"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RateLimitPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimitPerMinute))
	}
	return &Twitter{
		apiBase:     strings.TrimRight(cfg.APIBase, "/"),
		bearerToken: cfg.BearerToken,
		userID:      cfg.UserID,
		agentID:     cfg.AgentID,
		interval:    cfg.PollInterval,
		dryRun:      cfg.DryRun,
		client:      cfg.HTTPClient,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      cfg.Logger,
	}
}

func (t *Twitter) Name() string { return "twitter" }

// Start polls immediately and then every interval until ctx ends.
func (t *Twitter) Start(ctx context.Context, bus domain.MessageBus) error {
	if t.bearerToken == "" || t.userID == "" {
		return errors.New("twitter: bearer token and user id are required")
	}

	t.logger.Info("twitter polling started", "interval", t.interval, "dry_run", t.dryRun)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		t.Poll(ctx, bus)
		select {
		case <-ctx.Done():
			t.logger.Info("twitter channel stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches new mentions and DMs once and publishes them. Throttling and
// transport errors are logged; the next poll retries from the same cursor.
func (t *Twitter) Poll(ctx context.Context, bus domain.MessageBus) {
	if err := t.pollMentions(ctx, bus); err != nil && ctx.Err() == nil {
		t.logPollError("mentions", err)
	}
	if err := t.pollDMs(ctx, bus); err != nil && ctx.Err() == nil {
		t.logPollError("dms", err)
	}
}

func (t *Twitter) logPollError(kind string, err error) {
	if errors.Is(err, ErrThrottled) {
		t.logger.Warn("twitter poll throttled", "kind", kind)
		return
	}
	t.logger.Error("twitter poll failed", "kind", kind, "err", err)
}

type tweet struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	AuthorID string `json:"author_id"`
}

type mentionsResponse struct {
	Data []tweet `json:"data"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
}

func (t *Twitter) pollMentions(ctx context.Context, bus domain.MessageBus) error {
	q := url.Values{"tweet.fields": {"author_id"}, "max_results": {"20"}}
	t.mu.Lock()
	if t.mentionSince != "" {
		q.Set("since_id", t.mentionSince)
	}
	primed := t.mentionsPrimed
	t.mu.Unlock()

	var resp mentionsResponse
	if err := t.do(ctx, http.MethodGet, "/users/"+t.userID+"/mentions?"+q.Encode(), nil, &resp); err != nil {
		return err
	}

	// The API returns newest first; publish oldest first.
	for i := len(resp.Data) - 1; i >= 0; i-- {
		tw := resp.Data[i]
		if !primed || tw.AuthorID == t.userID {
			continue
		}
		text := stripMentions(tw.Text)
		if text == "" {
			continue
		}
		t.logger.Info("twitter mention received", "tweet_id", tw.ID, "author", tw.AuthorID)
		bus.Publish(domain.Envelope{
			Input:     t.input(tw.AuthorID, text),
			Responder: &twitterResponder{t: t, replyTo: tw.ID},
		})
	}

	t.mu.Lock()
	if resp.Meta.NewestID != "" {
		t.mentionSince = resp.Meta.NewestID
	}
	t.mentionsPrimed = true
	t.mu.Unlock()
	return nil
}

type dmEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Text      string `json:"text"`
	SenderID  string `json:"sender_id"`
}

type dmResponse struct {
	Data []dmEvent `json:"data"`
}

func (t *Twitter) pollDMs(ctx context.Context, bus domain.MessageBus) error {
	q := url.Values{"event_types": {"MessageCreate"}, "dm_event.fields": {"sender_id,text"}}
	var resp dmResponse
	if err := t.do(ctx, http.MethodGet, "/dm_events?"+q.Encode(), nil, &resp); err != nil {
		return err
	}

	t.mu.Lock()
	since, primed := t.dmSince, t.dmsPrimed
	t.mu.Unlock()

	newest := since
	for i := len(resp.Data) - 1; i >= 0; i-- {
		ev := resp.Data[i]
		if !newerID(ev.ID, since) {
			continue
		}
		if newerID(ev.ID, newest) {
			newest = ev.ID
		}
		if !primed || ev.SenderID == t.userID || strings.TrimSpace(ev.Text) == "" {
			continue
		}
		t.logger.Info("twitter dm received", "event_id", ev.ID, "sender", ev.SenderID)
		bus.Publish(domain.Envelope{
			Input:     t.input(ev.SenderID, strings.TrimSpace(ev.Text)),
			Responder: &twitterResponder{t: t, dmTo: ev.SenderID},
		})
	}

	t.mu.Lock()
	t.dmSince = newest
	t.dmsPrimed = true
	t.mu.Unlock()
	return nil
}

func (t *Twitter) input(authorID, text string) domain.InputObject {
	return domain.InputObject{
		Source:     domain.SourceTwitter,
		AgentID:    t.agentID,
		UserID:     domain.RoomID("twitter_user", authorID),
		RoomID:     domain.RoomID("twitter_room", authorID),
		Type:       domain.TypeText,
		Text:       text,
		ReceivedAt: time.Now(),
	}
}

// newerID compares snowflake ids, which sort by length then lexically.
func newerID(id, than string) bool {
	if len(id) != len(than) {
		return len(id) > len(than)
	}
	return id > than
}

// stripMentions drops the leading @handles of a reply.
func stripMentions(text string) string {
	fields := strings.Fields(text)
	i := 0
	for i < len(fields) && strings.HasPrefix(fields[i], "@") {
		i++
	}
	return strings.Join(fields[i:], " ")
}

func (t *Twitter) postTweet(ctx context.Context, text, replyTo string) error {
	body := map[string]any{"text": text}
	if replyTo != "" {
		body["reply"] = map[string]string{"in_reply_to_tweet_id": replyTo}
	}
	return t.do(ctx, http.MethodPost, "/tweets", body, nil)
}

func (t *Twitter) sendDM(ctx context.Context, participantID, text string) error {
	return t.do(ctx, http.MethodPost, "/dm_conversations/with/"+participantID+"/messages", map[string]string{"text": text}, nil)
}

// do performs one API call with rate limiting and retry on network
// failures and 5xx responses. A 429 is returned as ErrThrottled.
func (t *Twitter) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= twitterMaxRetries; attempt++ {
		if attempt > 0 {
			base := time.Duration(attempt*attempt) * time.Second
			backoff := base + time.Duration(rand.Int64N(int64(base/2+1)))
			t.logger.Warn("retrying twitter request", "path", path, "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, t.apiBase+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+t.bearerToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%s %s: %w", method, path, ErrThrottled)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, data)
			continue
		case resp.StatusCode >= 300:
			return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, data)
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s %s failed after %d retries: %w", method, path, twitterMaxRetries, lastErr)
}

// twitterResponder replies to a mention or a DM sender.
type twitterResponder struct {
	t       *Twitter
	replyTo string
	dmTo    string
}

func (r *twitterResponder) Send(ctx context.Context, content string) error {
	if r.t.dryRun {
		r.t.logger.Info("twitter dry run reply", "reply_to", r.replyTo, "dm_to", r.dmTo, "content", content)
		return nil
	}
	var err error
	if r.dmTo != "" {
		err = r.t.sendDM(ctx, r.dmTo, content)
	} else {
		for _, chunk := range splitMessage(content, twitterMaxTweetLen) {
			if err = r.t.postTweet(ctx, chunk, r.replyTo); err != nil {
				break
			}
		}
	}
	if err != nil {
		r.t.logger.Error("twitter send failed", "reply_to", r.replyTo, "dm_to", r.dmTo, "err", err)
		return fmt.Errorf("twitter send: %w", err)
	}
	return nil
}

// Error logs the failure; public mentions never get the error notice.
func (r *twitterResponder) Error(ctx context.Context, err error) error {
	r.t.logger.Error("twitter message failed", "reply_to", r.replyTo, "dm_to", r.dmTo, "err", err)
	if r.t.dryRun || r.dmTo == "" {
		return nil
	}
	if sendErr := r.t.sendDM(ctx, r.dmTo, errorNotice); sendErr != nil {
		return fmt.Errorf("twitter send: %w", sendErr)
	}
	return nil
}
