package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
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

func klineRow(openMs int64, open, high, low, cls, vol string) string {
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","%s",%d,"0",1,"0","0","0"]`, openMs, open, high, low, cls, vol, openMs+59999)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, Logger: &mockLogger{}, ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 2})
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

	for _, g := range Granularities() {
		assert.NoError(t, c.ValidateGranularity(g))
	}
	err = c.ValidateGranularity(45)
	assert.ErrorIs(t, err, ports.ErrUnsupportedGranularity)

	iv, ok := Interval(3600)
	assert.True(t, ok)
	assert.Equal(t, "1h", iv)
}

func TestClient_Fetch(t *testing.T) {
	var query string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		query = r.URL.RawQuery
		rows := []string{
			klineRow(1735689660000, "101", "103", "100", "102", "5"),
			klineRow(1735689600000, "100", "102", "99", "101", "3.5"),
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	})

	end := time.UnixMilli(1735689720000)
	candles, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTCUSDT", GranularitySeconds: 60, Candles: 200, End: end})
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Contains(t, query, "symbol=BTCUSDT")
	assert.Contains(t, query, "interval=1m")
	assert.Contains(t, query, "limit=200")
	assert.Contains(t, query, "endTime=1735689720000")

	assert.Equal(t, domain.Candle{Date: time.UnixMilli(1735689600000).UTC(), Open: 100, High: 102, Low: 99, Close: 101, Volume: 3.5}, candles[0])
	assert.Equal(t, 102.0, candles[1].Close)
	assert.Equal(t, time.UTC, candles[0].Date.Location())
}

func TestClient_FetchErrors(t *testing.T) {
	t.Run("unsupported granularity", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTCUSDT", GranularitySeconds: 7})
		assert.ErrorIs(t, err, ports.ErrUnsupportedGranularity)
	})

	t.Run("api error is mapped", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
		})
		_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "NOPE", GranularitySeconds: 60})
		assert.ErrorIs(t, err, ports.ErrUnsupportedProduct)
	})

	t.Run("rate limited", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests."}`)
		})
		_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTCUSDT", GranularitySeconds: 60})
		assert.ErrorIs(t, err, ports.ErrRateLimited)
	})

	t.Run("malformed price", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "[%s]", klineRow(1735689600000, "abc", "1", "1", "1", "1"))
		})
		_, err := c.Fetch(context.Background(), ports.FetchParams{Product: "BTCUSDT", GranularitySeconds: 60})
		assert.ErrorIs(t, err, ports.ErrUnknown)
	})
}

func TestClient_FetchRange(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, "[%s,%s]",
			klineRow(1735689600000, "1", "2", "0.5", "1.5", "1"),
			klineRow(1735689660000, "1.5", "2", "1", "1.8", "2"))
	})

	candles, err := c.FetchRange(context.Background(), "BTCUSDT", 60, time.UnixMilli(1735689600000), time.UnixMilli(1735689720000))
	require.NoError(t, err)
	assert.Len(t, candles, 2)
	assert.Equal(t, 1, calls, "a short page ends the range")
}

// fakeServer stands in for futures.WsAggTradeServe.
type fakeServer struct {
	mu       sync.Mutex
	calls    int
	failFrom int // calls numbered >= failFrom fail; 0 never fails
	handler  futures.WsAggTradeHandler
	done     chan struct{}
	stop     chan struct{}
}

func (f *fakeServer) serve(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFrom > 0 && f.calls >= f.failFrom {
		return nil, nil, errors.New("dial tcp: connection refused")
	}
	f.handler = handler
	f.done = make(chan struct{})
	f.stop = make(chan struct{}, 1)
	return f.done, f.stop, nil
}

func (f *fakeServer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeServer) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.done)
}

func (f *fakeServer) emit(e *futures.WsAggTradeEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(e)
}

func TestStream_DeliversTrades(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond})
	require.NoError(t, err)
	fake := &fakeServer{}
	c.serve = fake.serve

	trades := make(chan domain.Trade, 1)
	closed := make(chan domain.CloseInfo, 1)
	s := c.NewStream()
	require.NoError(t, s.Open(context.Background(), "BTCUSDT", ports.StreamHandlers{
		OnTrade: func(tr domain.Trade) { trades <- tr },
		OnClose: func(info domain.CloseInfo) { closed <- info },
	}))

	fake.emit(&futures.WsAggTradeEvent{Symbol: "BTCUSDT", Price: "42000.5", Quantity: "0.25", TradeTime: 1735689605000})
	select {
	case tr := <-trades:
		assert.Equal(t, domain.Trade{Time: time.UnixMilli(1735689605000).UTC(), Price: 42000.5, Size: 0.25, Product: "BTCUSDT"}, tr)
	case <-time.After(time.Second):
		t.Fatal("trade not delivered")
	}

	// malformed events are dropped
	fake.emit(&futures.WsAggTradeEvent{Price: "x", Quantity: "1"})
	assert.Empty(t, trades)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Empty(t, closed, "a requested close is not reported")

	assert.Error(t, s.Open(context.Background(), "BTCUSDT", ports.StreamHandlers{}))
}

func TestStream_Reconnects(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond})
	require.NoError(t, err)
	fake := &fakeServer{}
	c.serve = fake.serve

	s := c.NewStream()
	require.NoError(t, s.Open(context.Background(), "BTCUSDT", ports.StreamHandlers{}))
	fake.drop()

	require.Eventually(t, func() bool { return fake.callCount() == 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Close())
}

func TestStream_GivesUp(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}, ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 2})
	require.NoError(t, err)
	fake := &fakeServer{failFrom: 2}
	c.serve = fake.serve

	closed := make(chan domain.CloseInfo, 1)
	s := c.NewStream()
	require.NoError(t, s.Open(context.Background(), "BTCUSDT", ports.StreamHandlers{
		OnClose: func(info domain.CloseInfo) { closed <- info },
	}))
	fake.drop()

	select {
	case info := <-closed:
		assert.False(t, info.Clean)
		assert.Contains(t, info.Reason, "stream connection closed")
	case <-time.After(time.Second):
		t.Fatal("close not reported")
	}
	assert.Equal(t, 3, fake.callCount())
	require.NoError(t, s.Close())
}

func TestStream_OpenFails(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	c.serve = (&fakeServer{failFrom: 1}).serve

	err = c.NewStream().Open(context.Background(), "BTCUSDT", ports.StreamHandlers{})
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}
