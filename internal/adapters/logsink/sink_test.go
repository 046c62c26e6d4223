package logsink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

type entry struct {
	level  string
	msg    string
	err    error
	fields map[string]interface{}
}

// mockLogger records entries for assertions
type mockLogger struct {
	entries []entry
}

func (m *mockLogger) add(level, msg string, err error, fields []map[string]interface{}) {
	e := entry{level: level, msg: msg, err: err}
	if len(fields) > 0 {
		e.fields = fields[0]
	}
	m.entries = append(m.entries, e)
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.add("debug", msg, nil, fields)
}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.add("info", msg, nil, fields)
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.add("warn", msg, nil, fields)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.add("error", msg, err, fields)
}

func TestSink_Render(t *testing.T) {
	logger := &mockLogger{}
	s, err := New(logger)
	require.NoError(t, err)

	start := time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)
	view := domain.View{
		Domain:         domain.TimeDomain{Start: start, End: start.Add(time.Hour)},
		Visible:        []domain.Candle{{Date: start, Close: 1}, {Date: start.Add(time.Hour), Close: 2}},
		TrackingLatest: true,
		Indicators:     []domain.Series{
			{Name: "SMA", Fields: []string{"movingAverage"}, Points: []domain.SeriesPoint{{Date: start, Values: []float64{1.5}}}},
			{Name: "RSI", Fields: []string{"rsi"}},
		},
	}
	s.Render(context.Background(), view)

	require.Len(t, logger.entries, 1)
	e := logger.entries[0]
	assert.Equal(t, "debug", e.level)
	assert.Equal(t, 2, e.fields["visible"])
	assert.Equal(t, 2.0, e.fields["lastClose"])
	assert.Equal(t, true, e.fields["trackingLatest"])
	assert.Equal(t, []float64{1.5}, e.fields["SMA"])
	assert.NotContains(t, e.fields, "RSI")

	renders, last := s.Stats()
	assert.Equal(t, 1, renders)
	assert.True(t, view.Domain.Equal(last.Domain))
	assert.Nil(t, last.Visible)
}

func TestSink_Notify(t *testing.T) {
	logger := &mockLogger{}
	s, err := New(logger)
	require.NoError(t, err)
	ctx := context.Background()
	cause := errors.New("503")

	s.Notify(ctx, ports.Notification{Level: ports.NotificationError, Message: "Error getting historic data: Service Unavailable", Err: cause})
	s.Notify(ctx, ports.Notification{Level: ports.NotificationWarning, Message: "Disconnected from live stream: 1013 maintenance"})
	s.Notify(ctx, ports.Notification{Message: "hello"})

	require.Len(t, logger.entries, 3)
	assert.Equal(t, "error", logger.entries[0].level)
	assert.Equal(t, cause, logger.entries[0].err)
	assert.Equal(t, "warn", logger.entries[1].level)
	assert.Equal(t, "info", logger.entries[2].level)
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
