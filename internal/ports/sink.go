package ports

import (
	"context"

	"github.com/vtruhin/StockFlux/internal/domain"
)

// RenderSink consumes every accepted viewport change. It must not retain or
// modify view.Visible beyond the call.
type RenderSink interface {
	Render(ctx context.Context, view domain.View)
}

// NotificationLevel classifies user-facing notifications.
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a message for the user, e.g. a failed historic load.
type Notification struct {
	Level   NotificationLevel
	Message string
	Err     error // Underlying cause, if any
}

// Notifier surfaces feed-level problems to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}
