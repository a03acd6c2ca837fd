// Package discord wraps a discordgo session as the notification destination:
// it connects, waits for the gateway Ready event and posts messages to a channel.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/live-notifier/notify"
)

var (
	// ErrNotReady is returned by Open when the gateway does not report Ready in time.
	ErrNotReady = errors.New("discord session not ready")
	// ErrChannelNotFound is returned by Resolve for unknown or inaccessible channels.
	// It wraps notify.ErrDestinationNotFound.
	ErrChannelNotFound = fmt.Errorf("discord channel not found: %w", notify.ErrDestinationNotFound)
)

// session is the subset of *discordgo.Session the client uses.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// channelCache is the gateway state cache (*discordgo.State).
type channelCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
}

// Client is a connected bot session. It implements notify.Destinations.
type Client struct {
	sess   session
	state  channelCache
	logger *slog.Logger

	connected atomic.Bool
	readyOnce sync.Once
	ready     chan struct{}
}

// New creates a bot session for token. Call Open to connect.
func New(token string, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds
	return newClient(dg, dg.State, logger), nil
}

func newClient(sess session, state channelCache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default().With(slog.String("component", "discord"))
	}
	c := &Client{sess: sess, state: state, logger: logger, ready: make(chan struct{})}
	sess.AddHandler(c.onReady)
	sess.AddHandler(c.onConnect)
	sess.AddHandler(c.onDisconnect)
	return c
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	c.connected.Store(true)
	user := ""
	if r != nil && r.User != nil {
		user = r.User.Username
	}
	c.logger.Info("discord ready", slog.String("user", user))
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Client) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	c.connected.Store(true)
}

func (c *Client) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	c.connected.Store(false)
	c.logger.Warn("discord gateway disconnected")
}

// Open connects the gateway and blocks until Ready, ctx is done or timeout elapses.
func (c *Client) Open(ctx context.Context, timeout time.Duration) error {
	if err := c.sess.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		_ = c.sess.Close()
		return ctx.Err()
	case <-timer.C:
		_ = c.sess.Close()
		return fmt.Errorf("%w after %s", ErrNotReady, timeout)
	}
}

// Connected reports whether the gateway connection is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// Close disconnects the gateway.
func (c *Client) Close() error {
	c.connected.Store(false)
	return c.sess.Close()
}

// Resolve looks the channel up in the state cache, falling back to the REST API.
func (c *Client) Resolve(ctx context.Context, id string) (notify.Destination, error) {
	if c.state != nil {
		if ch, err := c.state.Channel(id); err == nil && ch != nil {
			return &channel{sess: c.sess, id: ch.ID}, nil
		}
	}
	ch, err := c.sess.Channel(id, discordgo.WithContext(ctx))
	if err != nil {
		var rerr *discordgo.RESTError
		if errors.As(err, &rerr) && rerr.Response != nil {
			switch rerr.Response.StatusCode {
			case http.StatusNotFound, http.StatusForbidden:
				return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
			}
		}
		return nil, fmt.Errorf("resolve discord channel %s: %w", id, err)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return &channel{sess: c.sess, id: ch.ID}, nil
}

type channel struct {
	sess session
	id   string
}

// Send posts content to the channel and returns the message id.
func (ch *channel) Send(ctx context.Context, content string) (string, error) {
	msg, err := ch.sess.ChannelMessageSend(ch.id, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send to discord channel %s: %w", ch.id, err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.ID, nil
}
