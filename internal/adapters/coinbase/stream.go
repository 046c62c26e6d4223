package coinbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/vtruhin/StockFlux/internal/domain"
	"github.com/vtruhin/StockFlux/internal/ports"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 5 * time.Second
)

type subscribeMessage struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type feedMessage struct {
	Type      string          `json:"type"`
	ProductID string          `json:"product_id"`
	Time      time.Time       `json:"time"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Message   string          `json:"message"`
	Reason    string          `json:"reason"`
}

// Stream implements ports.StreamingFeed over the matches channel.
// It does not reconnect; a dropped connection is reported through OnClose.
type Stream struct {
	url    string
	logger ports.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	opened  bool
	closing bool
}

// NewStream creates an unopened match stream.
func (c *Client) NewStream() *Stream {
	return &Stream{url: c.wsURL, logger: c.logger}
}

// Open implements ports.StreamingFeed.
func (s *Stream) Open(ctx context.Context, product string, h ports.StreamHandlers) error {
	op := "StreamMatches"

	s.mu.Lock()
	if s.opened {
		s.mu.Unlock()
		return fmt.Errorf("%s failed: %w: stream already opened", op, ports.ErrInvalidRequest)
	}
	s.opened = true
	s.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		err = fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
		s.logger.Error(ctx, err, op+": dial failed", map[string]interface{}{"url": s.url})
		return err
	}

	sub := subscribeMessage{Type: "subscribe", ProductIDs: []string{product}, Channels: []string{"matches"}}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		err = fmt.Errorf("%s failed: %w: subscribe: %w", op, ports.ErrConnectionFailed, err)
		s.logger.Error(ctx, err, op+": subscribe failed", map[string]interface{}{"product": product})
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%s failed: %w: closed while connecting", op, ports.ErrStreamClosed)
	}
	s.conn = conn
	s.done = done
	s.mu.Unlock()
	s.logger.Info(ctx, op+": WebSocket connection established.", map[string]interface{}{"product": product})

	go func() {
		defer close(done)
		info := s.readLoop(ctx, conn, h)
		if s.isClosing() {
			return
		}
		s.logger.Warn(ctx, op+": WebSocket connection closed", map[string]interface{}{"product": product, "code": info.Code, "reason": info.Reason})
		if h.OnClose != nil {
			h.OnClose(info)
		}
	}()

	return nil
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn, h ports.StreamHandlers) domain.CloseInfo {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return domain.CloseInfo{
					Code:   closeErr.Code,
					Reason: closeErr.Text,
					Clean:  closeErr.Code == websocket.CloseNormalClosure,
				}
			}
			return domain.CloseInfo{Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
		}

		var msg feedMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Debug(ctx, "StreamMatches: skipping undecodable message", map[string]interface{}{"error": err.Error()})
			continue
		}

		switch msg.Type {
		case "match", "last_match":
			if h.OnTrade != nil {
				h.OnTrade(domain.Trade{
					Time:    msg.Time.UTC(),
					Price:   msg.Price.InexactFloat64(),
					Size:    msg.Size.InexactFloat64(),
					Product: msg.ProductID,
				})
			}
		case "error":
			if h.OnError != nil {
				message := msg.Message
				if msg.Reason != "" {
					message += ": " + msg.Reason
				}
				h.OnError(&ports.FeedError{Message: message, Err: ports.ErrInvalidRequest})
			}
		}
	}
}

func (s *Stream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// Close implements ports.StreamingFeed.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn, done := s.conn, s.done
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout))
	err := conn.Close()
	<-done
	if err != nil {
		return fmt.Errorf("StreamMatches close failed: %w: %w", ports.ErrConnectionFailed, err)
	}
	return nil
}
