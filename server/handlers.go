package server

import (
	"context"

	"github.com/onnwee/live-notifier/notify"
)

// recentLimit caps the notifications listed by /status.
const recentLimit = 20

// LoopStatus reports the notification loop state.
type LoopStatus interface {
	Status() notify.Status
}

// ChatConnection reports whether the chat gateway is connected.
type ChatConnection interface {
	Connected() bool
}

// NotificationHistory is the optional notification log.
type NotificationHistory interface {
	Recent(ctx context.Context, limit int) ([]notify.Notification, error)
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	loop    LoopStatus
	chat    ChatConnection
	history NotificationHistory
}

// NewHandlers creates a new Handlers instance. history may be nil when no database is configured.
func NewHandlers(loop LoopStatus, chat ChatConnection, history NotificationHistory) *Handlers {
	return &Handlers{loop: loop, chat: chat, history: history}
}
