package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/live-notifier/notify"
)

// NotificationLog is the append-only audit of delivered notifications.
// The loop only writes to it; it is never used to rebuild the notified set.
type NotificationLog struct {
	db *sql.DB
}

// NewNotificationLog returns a log backed by db. RunMigrations must have been applied.
func NewNotificationLog(db *sql.DB) *NotificationLog {
	return &NotificationLog{db: db}
}

// RecordNotification implements notify.Recorder.
func (l *NotificationLog) RecordNotification(ctx context.Context, n notify.Notification) error {
	var started sql.NullTime
	if !n.StartedAt.IsZero() {
		started = sql.NullTime{Time: n.StartedAt.UTC(), Valid: true}
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO notifications (login, display_name, title, stream_started_at, message_id, sent_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		n.Login, n.DisplayName, n.Title, started, n.MessageID, n.SentAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (l *NotificationLog) Recent(ctx context.Context, limit int) ([]notify.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT login, display_name, title, stream_started_at, message_id, sent_at FROM notifications ORDER BY sent_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]notify.Notification, 0, limit)
	for rows.Next() {
		var n notify.Notification
		var started sql.NullTime
		if err := rows.Scan(&n.Login, &n.DisplayName, &n.Title, &started, &n.MessageID, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if started.Valid {
			n.StartedAt = started.Time
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (l *NotificationLog) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
