package binanceclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

type serveFunc func(symbol string, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) (doneC, stopC chan struct{}, err error)

// Stream implements ports.StreamingFeed over the aggregated trade WebSocket,
// reconnecting with exponential backoff until closed.
type Stream struct {
	client *Client

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	opened  bool
	closing bool
}

// NewStream creates an unopened trade stream.
func (c *Client) NewStream() *Stream {
	return &Stream{client: c}
}

// Open implements ports.StreamingFeed. The first connection attempt happens
// synchronously so that an unreachable endpoint is reported to the caller.
func (s *Stream) Open(ctx context.Context, product string, h ports.StreamHandlers) error {
	op := "StreamTrades"
	c := s.client

	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return fmt.Errorf("%s failed: %w: stream already opened", op, ports.ErrInvalidRequest)
	}
	s.opened = true
	s.mu.Unlock()

	wsCtx, cancelWs := context.WithCancel(ctx)

	// Wrapper for the domain handler to perform translation
	binanceHandler := func(event *futures.WsAggTradeEvent) {
		trade, err := translateAggTrade(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket trade event")
			return
		}
		if h.OnTrade != nil {
			h.OnTrade(trade)
		}
	}

	// Wrapper for the error handler to perform translation and logging
	binanceErrHandler := func(err error) {
		if s.isClosing() {
			return
		}
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if h.OnError != nil {
			h.OnError(translatedErr)
		}
	}

	innerDoneCh, innerStopCh, err := c.serve(product, binanceHandler, binanceErrHandler)
	if err != nil {
		cancelWs()
		return c.handleError(ctx, err, op+" connection attempt")
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		select {
		case innerStopCh <- struct{}{}:
		case <-innerDoneCh:
		}
		cancelWs()
		return fmt.Errorf("%s failed: %w: closed while connecting", op, ports.ErrStreamClosed)
	}
	s.cancel = cancelWs
	s.done = done
	s.mu.Unlock()
	c.logger.Info(wsCtx, op+": WebSocket connection established.", map[string]interface{}{"symbol": product})

	go func() {
		defer close(done)
		defer cancelWs()
		info := s.run(wsCtx, product, innerDoneCh, innerStopCh, binanceHandler, binanceErrHandler)
		if info.Clean || s.isClosing() {
			return
		}
		if h.OnClose != nil {
			h.OnClose(info)
		}
	}()

	return nil
}

// run is the reconnection loop. It returns when the context ends or reconnecting gives up.
func (s *Stream) run(ctx context.Context, symbol string, innerDoneCh, innerStopCh chan struct{}, handler futures.WsAggTradeHandler, errHandler futures.ErrHandler) domain.CloseInfo {
	op := "StreamTrades"
	c := s.client
	fields := map[string]interface{}{"symbol": symbol}

	for {
		// Wait for the inner connection to close or the context to be cancelled
		select {
		case <-ctx.Done():
			c.logger.Info(ctx, op+": Context cancelled, stopping WebSocket.", fields)
			select {
			case innerStopCh <- struct{}{}:
				c.logger.Debug(ctx, op+": Stop signal sent to inner WebSocket.", fields)
			default:
				c.logger.Debug(ctx, op+": Inner WebSocket already stopped.", fields)
			}
			return domain.CloseInfo{Reason: "closed by client", Clean: true}
		case <-innerDoneCh:
			c.logger.Warn(ctx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
		}

		attempt := 0
		for {
			attempt++
			if attempt > c.maxReconnectAttempts {
				err := fmt.Errorf("%w: gave up after %d reconnection attempts", ports.ErrStreamClosed, c.maxReconnectAttempts)
				c.logger.Error(ctx, err, op+": Max reconnection attempts exceeded, giving up.", fields)
				return domain.CloseInfo{Reason: err.Error()}
			}

			// Exponential backoff
			delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				c.logger.Info(ctx, op+": Context cancelled during backoff.", fields)
				return domain.CloseInfo{Reason: "closed by client", Clean: true}
			}

			var err error
			innerDoneCh, innerStopCh, err = c.serve(symbol, handler, errHandler)
			if err != nil {
				_ = c.handleError(ctx, err, op+" reconnection attempt")
				continue
			}
			c.logger.Info(ctx, op+": WebSocket connection re-established.", map[string]interface{}{"symbol": symbol, "attempt": attempt})
			break
		}
	}
}

func (s *Stream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Close implements ports.StreamingFeed. It waits for the reconnection loop to exit.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
