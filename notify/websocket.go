package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("not connected")

// Config configures a WebSocket publisher.
type Config struct {
	ServerURL    string        // WebSocket URL (e.g., wss://example.com/ws/progress)
	APIKey       string        // sent as the apiKey query parameter when set
	PingInterval time.Duration // default: 30s
	WriteTimeout time.Duration // default: 10s
	Logger       *slog.Logger
}

// WebSocket publishes events as JSON text frames over one connection.
type WebSocket struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Publisher = (*WebSocket)(nil)

// Dial connects to the server and starts the ping and read loops.
func Dial(ctx context.Context, config Config) (*WebSocket, error) {
	if config.PingInterval == 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if config.APIKey != "" {
		q := u.Query()
		q.Set("apiKey", config.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	logger.Info("Progress feed connected", slog.String("url", config.ServerURL))

	pumpCtx, cancel := context.WithCancel(context.Background())
	w := &WebSocket{
		config: config,
		logger: logger,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.readPump()
	go w.pingPump(pumpCtx)
	return w, nil
}

// Publish writes ev as one text frame.
func (w *WebSocket) Publish(ctx context.Context, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event failed: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(w.config.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close sends a close frame and drops the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	w.cancel()

	_ = w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := w.conn.Close()
	w.conn = nil
	return err
}

// readPump drains incoming frames so control messages are processed.
func (w *WebSocket) readPump() {
	defer close(w.done)

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("Progress feed closed", slog.Any("error", err))
			}
			return
		}
	}
}

func (w *WebSocket) pingPump(ctx context.Context) {
	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.conn != nil {
				_ = w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.config.WriteTimeout))
			}
			w.mu.Unlock()
		}
	}
}
