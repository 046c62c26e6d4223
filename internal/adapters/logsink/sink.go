// Package logsink renders chart views and notifications as structured log entries.
package logsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

// Sink implements ports.RenderSink and ports.Notifier.
type Sink struct {
	logger ports.Logger

	mu       sync.Mutex
	renders  int
	lastView domain.View
}

// New creates a sink writing to logger.
func New(logger ports.Logger) (*Sink, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for log sink")
	}
	return &Sink{logger: logger}, nil
}

// Render implements ports.RenderSink.
func (s *Sink) Render(ctx context.Context, view domain.View) {
	s.mu.Lock()
	s.renders++
	s.lastView = domain.View{Domain: view.Domain, TrackingLatest: view.TrackingLatest}
	s.mu.Unlock()

	fields := map[string]interface{}{
		"start":          view.Domain.Start.Format(time.RFC3339),
		"end":            view.Domain.End.Format(time.RFC3339),
		"visible":        len(view.Visible),
		"trackingLatest": view.TrackingLatest,
	}
	if n := len(view.Visible); n > 0 {
		last := view.Visible[n-1]
		fields["lastDate"] = last.Date.Format(time.RFC3339)
		fields["lastClose"] = last.Close
	}
	for _, series := range view.Indicators {
		if n := len(series.Points); n > 0 {
			fields[series.Name] = series.Points[n-1].Values
		}
	}
	s.logger.Debug(ctx, "View rendered", fields)
}

// Notify implements ports.Notifier.
func (s *Sink) Notify(ctx context.Context, n ports.Notification) {
	fields := map[string]interface{}{"notification": string(n.Level)}
	switch n.Level {
	case ports.NotificationError:
		s.logger.Error(ctx, n.Err, n.Message, fields)
	case ports.NotificationWarning:
		s.logger.Warn(ctx, n.Message, fields)
	default:
		s.logger.Info(ctx, n.Message, fields)
	}
}

// Stats returns how many views were rendered and the domain of the latest one.
func (s *Sink) Stats() (renders int, last domain.View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders, s.lastView
}
