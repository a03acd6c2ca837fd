package discord

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/live-notifier/notify"
)

type fakeSession struct {
	mu       sync.Mutex
	handlers []interface{}
	openErr  error
	closed   int
	onOpen   func()

	channels   map[string]*discordgo.Channel
	channelErr error
	restLookup int

	sent    []string
	sendErr error
}

func (f *fakeSession) Open() error {
	if f.openErr != nil {
		return f.openErr
	}
	if f.onOpen != nil {
		go f.onOpen()
	}
	return nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSession) AddHandler(h interface{}) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	return func() {}
}

func (f *fakeSession) emit(event interface{}) {
	f.mu.Lock()
	hs := append([]interface{}(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.Ready):
			if e, ok := event.(*discordgo.Ready); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.Connect):
			if e, ok := event.(*discordgo.Connect); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.Disconnect):
			if e, ok := event.(*discordgo.Disconnect); ok {
				fn(nil, e)
			}
		}
	}
}

func (f *fakeSession) Channel(id string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restLookup++
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	return f.channels[id], nil
}

func (f *fakeSession) ChannelMessageSend(id, content string, opts ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(opts) == 0 {
		return nil, errors.New("request not bound to a context")
	}
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, id+":"+content)
	return &discordgo.Message{ID: "m1", ChannelID: id, Content: content}, nil
}

type fakeState map[string]*discordgo.Channel

func (s fakeState) Channel(id string) (*discordgo.Channel, error) {
	if ch, ok := s[id]; ok {
		return ch, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func TestOpen_WaitsForReady(t *testing.T) {
	sess := &fakeSession{}
	c := newClient(sess, fakeState{}, nil)
	sess.onOpen = func() { sess.emit(&discordgo.Ready{User: &discordgo.User{Username: "notifier"}}) }

	require.NoError(t, c.Open(context.Background(), 5*time.Second))
	assert.True(t, c.Connected())
}

func TestOpen_TimesOutWithoutReady(t *testing.T) {
	sess := &fakeSession{}
	c := newClient(sess, fakeState{}, nil)

	err := c.Open(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrNotReady)
	assert.False(t, c.Connected())
	assert.Equal(t, 1, sess.closed)
}

func TestOpen_ContextCancelled(t *testing.T) {
	sess := &fakeSession{}
	c := newClient(sess, fakeState{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Open(ctx, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpen_SessionError(t *testing.T) {
	sess := &fakeSession{openErr: errors.New("invalid token")}
	c := newClient(sess, fakeState{}, nil)

	err := c.Open(context.Background(), time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token")
}

func TestConnectedTracksGateway(t *testing.T) {
	sess := &fakeSession{}
	c := newClient(sess, fakeState{}, nil)

	sess.emit(&discordgo.Connect{})
	assert.True(t, c.Connected())
	sess.emit(&discordgo.Disconnect{})
	assert.False(t, c.Connected())
}

func TestResolve_UsesStateCache(t *testing.T) {
	sess := &fakeSession{}
	c := newClient(sess, fakeState{"42": {ID: "42", Name: "live"}}, nil)

	dest, err := c.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, dest)
	assert.Zero(t, sess.restLookup)

	id, err := dest.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, []string{"42:hello"}, sess.sent)
}

func TestResolve_FallsBackToREST(t *testing.T) {
	sess := &fakeSession{channels: map[string]*discordgo.Channel{"7": {ID: "7"}}}
	c := newClient(sess, fakeState{}, nil)

	dest, err := c.Resolve(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.restLookup)

	_, err = dest.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"7:hi"}, sess.sent)
}

func TestResolve_NotFound(t *testing.T) {
	sess := &fakeSession{channelErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}}
	c := newClient(sess, fakeState{}, nil)

	_, err := c.Resolve(context.Background(), "404")
	require.ErrorIs(t, err, ErrChannelNotFound)
	assert.ErrorIs(t, err, notify.ErrDestinationNotFound, "loop treats it as fatal")
}

func TestResolve_MissingChannel(t *testing.T) {
	sess := &fakeSession{channels: map[string]*discordgo.Channel{}}
	c := newClient(sess, fakeState{}, nil)

	_, err := c.Resolve(context.Background(), "1")
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestResolve_TransportError(t *testing.T) {
	sess := &fakeSession{channelErr: errors.New("connection reset")}
	c := newClient(sess, fakeState{}, nil)

	_, err := c.Resolve(context.Background(), "1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrChannelNotFound)
	assert.NotErrorIs(t, err, notify.ErrDestinationNotFound)
}

func TestSend_Error(t *testing.T) {
	sess := &fakeSession{sendErr: errors.New("missing permissions")}
	c := newClient(sess, fakeState{"42": {ID: "42"}}, nil)

	dest, err := c.Resolve(context.Background(), "42")
	require.NoError(t, err)
	_, err = dest.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing permissions")
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New("", nil)
	require.Error(t, err)

	c, err := New("abc", nil)
	require.NoError(t, err)
	assert.False(t, c.Connected())
}
