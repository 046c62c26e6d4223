package coinbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func newRESTClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		RESTURL:           srv.URL,
		RequestsPerSecond: 1000,
		MaxRetryElapsed:   10 * time.Second,
		Logger:            &mockLogger{},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestClient_ValidateGranularity(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)

	for _, g := range Granularities {
		assert.NoError(t, c.ValidateGranularity(g))
	}
	assert.ErrorIs(t, c.ValidateGranularity(120), ports.ErrUnsupportedGranularity)
	assert.ErrorIs(t, c.ValidateGranularity(604800), ports.ErrUnsupportedGranularity)
}

func TestClient_Fetch(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	c := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		// newest first, as Coinbase returns them
		fmt.Fprint(w, `[[1735689660,99.5,103,101,102.25,"5.5"],[1735689600,99,102,100,101,3]]`)
	})

	end := time.Date(2025, time.January, 1, 0, 2, 0, 0, time.UTC)
	candles, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTC-USD", GranularitySeconds: 60, Candles: 200, End: end})
	require.NoError(t, err)

	assert.Equal(t, "/products/BTC-USD/candles", gotPath)
	assert.Equal(t, "60", gotQuery["granularity"][0])
	assert.Equal(t, "2025-01-01T00:02:00Z", gotQuery["end"][0])
	assert.Equal(t, "2024-12-31T20:42:00Z", gotQuery["start"][0])

	require.Len(t, candles, 2)
	assert.Equal(t, domain.Candle{Date: time.Unix(1735689600, 0).UTC(), Open: 100, High: 102, Low: 99, Close: 101, Volume: 3}, candles[0])
	assert.Equal(t, domain.Candle{Date: time.Unix(1735689660, 0).UTC(), Open: 101, High: 103, Low: 99.5, Close: 102.25, Volume: 5.5}, candles[1])
}

func TestClient_FetchErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    error
		wantReason string
	}{
		{
			name:       "bad request keeps the upstream message",
			status:     http.StatusBadRequest,
			body:       `{"message":"granularity too small for the requested time range"}`,
			wantErr:    ports.ErrInvalidRequest,
			wantReason: "Bad Request. granularity too small for the requested time range",
		},
		{
			name:       "unknown product",
			status:     http.StatusNotFound,
			body:       `{"message":"NotFound"}`,
			wantErr:    ports.ErrUnsupportedProduct,
			wantReason: "Not Found. NotFound",
		},
		{
			name:       "body without message",
			status:     http.StatusForbidden,
			body:       `<html></html>`,
			wantErr:    ports.ErrInvalidRequest,
			wantReason: "Forbidden",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTC-USD", GranularitySeconds: 60, Candles: 10})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var feedErr *ports.FeedError
			require.True(t, errors.As(err, &feedErr))
			assert.Equal(t, tt.wantReason, feedErr.Reason())
			assert.EqualValues(t, 1, calls.Load(), "client errors are not retried")
		})
	}
}

func TestClient_FetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[[1735689600,99,102,100,101,3]]`)
	})

	candles, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTC-USD", GranularitySeconds: 60, Candles: 1})
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_FetchMalformed(t *testing.T) {
	c := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1735689600,99,102]]`)
	})
	_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTC-USD", GranularitySeconds: 60, Candles: 1})
	assert.ErrorIs(t, err, ports.ErrMalformedMessage)
}

func TestClient_FetchUnsupportedGranularity(t *testing.T) {
	c := newRESTClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTC-USD", GranularitySeconds: 7})
	assert.ErrorIs(t, err, ports.ErrUnsupportedGranularity)
}

// wsServer upgrades every request and hands the connection to serve.
func wsServer(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newStreamClient(t *testing.T, wsURL string) *Client {
	t.Helper()
	c, err := New(Config{WSURL: wsURL, Logger: &mockLogger{}})
	require.NoError(t, err)
	return c
}

func TestStream_Matches(t *testing.T) {
	subscribed := make(chan subscribeMessage, 1)
	release := make(chan struct{})
	url := wsServer(t, func(conn *websocket.Conn) {
		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscriptions","channels":[{"name":"matches"}]}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"match","product_id":"BTC-USD","time":"2025-01-01T10:00:05.123Z","price":"42000.50","size":"0.015"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"Failed to subscribe","reason":"bad product"}`))
		<-release
	})
	defer close(release)

	trades := make(chan domain.Trade, 1)
	errs := make(chan error, 1)
	s := newStreamClient(t, url).NewStream()
	require.NoError(t, s.Open(context.Background(), "BTC-USD", ports.StreamHandlers{
		OnTrade: func(tr domain.Trade) { trades <- tr },
		OnError: func(err error) { errs <- err },
	}))

	sub := <-subscribed
	assert.Equal(t, subscribeMessage{Type: "subscribe", ProductIDs: []string{"BTC-USD"}, Channels: []string{"matches"}}, sub)

	select {
	case tr := <-trades:
		assert.Equal(t, domain.Trade{
			Time:    time.Date(2025, time.January, 1, 10, 0, 5, 123000000, time.UTC),
			Price:   42000.5,
			Size:    0.015,
			Product: "BTC-USD",
		}, tr)
	case <-time.After(2 * time.Second):
		t.Fatal("match not delivered")
	}

	select {
	case err := <-errs:
		var feedErr *ports.FeedError
		require.True(t, errors.As(err, &feedErr))
		assert.Equal(t, "Failed to subscribe: bad product", feedErr.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("error not delivered")
	}

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestStream_ServerClose(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		var sub subscribeMessage
		_ = conn.ReadJSON(&sub)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "maintenance"),
			time.Now().Add(time.Second))
	})

	closed := make(chan domain.CloseInfo, 1)
	s := newStreamClient(t, url).NewStream()
	require.NoError(t, s.Open(context.Background(), "BTC-USD", ports.StreamHandlers{
		OnClose: func(info domain.CloseInfo) { closed <- info },
	}))

	select {
	case info := <-closed:
		assert.Equal(t, websocket.CloseTryAgainLater, info.Code)
		assert.Equal(t, "maintenance", info.Reason)
		assert.False(t, info.Clean)
	case <-time.After(2 * time.Second):
		t.Fatal("close not reported")
	}
	require.NoError(t, s.Close())
}

func TestStream_ClientCloseIsNotReported(t *testing.T) {
	url := wsServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	closed := make(chan domain.CloseInfo, 1)
	s := newStreamClient(t, url).NewStream()
	require.NoError(t, s.Open(context.Background(), "BTC-USD", ports.StreamHandlers{
		OnClose: func(info domain.CloseInfo) { closed <- info },
	}))
	require.NoError(t, s.Close())
	assert.Empty(t, closed)

	assert.Error(t, s.Open(context.Background(), "BTC-USD", ports.StreamHandlers{}))
}

func TestStream_DialFailure(t *testing.T) {
	s := newStreamClient(t, "ws://127.0.0.1:1").NewStream()
	err := s.Open(context.Background(), "BTC-USD", ports.StreamHandlers{})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
	assert.NoError(t, s.Close())
}
