package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"solana-safety-engine/internal/cache"
	"solana-safety-engine/internal/observability"
)

// Config configures the launch listener.
type Config struct {
	// Endpoint is the websocket RPC endpoint.
	Endpoint string
	// Programs are the program IDs whose logs are subscribed to.
	Programs []string

	// ReconnectDelay is the initial delay before a reconnect attempt;
	// backoff doubles it up to MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for keepalive ping frames.
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// DedupeWindow suppresses repeat events for the same mint.
	DedupeWindow time.Duration
	// Buffer is the event channel capacity.
	Buffer int
}

// DefaultConfig returns the reference listener configuration.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:          endpoint,
		Programs:          []string{PumpFunProgram, RaydiumAMMV4Program},
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		DedupeWindow:      10 * time.Minute,
		Buffer:            1024,
	}
}

// TokenEvent is one freshly observed token launch.
type TokenEvent struct {
	Token     string
	Signature string
	Slot      int64
	SeenAt    time.Time
}

// Listener maintains one websocket connection with log subscriptions for
// every configured program and emits deduplicated launch events. It
// reconnects with exponential backoff and resubscribes on its own.
type Listener struct {
	cfg    Config
	logger *log.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	events chan TokenEvent
	seen   *cache.TTL[struct{}]

	done chan struct{}
	wg   sync.WaitGroup
}

// NewListener creates a listener. Call Start to connect.
func NewListener(cfg Config, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default()
	}
	return &Listener{
		cfg:    cfg,
		logger: logger,
		events: make(chan TokenEvent, cfg.Buffer),
		seen:   cache.NewTTL[struct{}](cfg.DedupeWindow),
		done:   make(chan struct{}),
	}
}

// Events returns the launch event channel. It is closed by Close.
func (l *Listener) Events() <-chan TokenEvent {
	return l.events
}

// Start connects, subscribes and begins streaming events.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.connect(ctx); err != nil {
		return err
	}
	if err := l.subscribeAll(); err != nil {
		l.closeConn()
		return err
	}

	l.wg.Add(2)
	go l.readLoop()
	go l.pingLoop()
	return nil
}

// Close shuts the listener down and closes the event channel.
func (l *Listener) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	close(l.done)
	l.closeConn()
	l.wg.Wait()
	close(l.events)
	return nil
}

func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.cfg.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()
	return nil
}

func (l *Listener) closeConn() {
	l.connMu.Lock()
	if l.conn != nil {
		l.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		l.conn.Close()
		l.conn = nil
	}
	l.connMu.Unlock()
}

// subscribeAll issues one logsSubscribe per configured program.
// Confirmation responses are read and discarded by the read loop; the
// notifications themselves carry the subscription state we need.
func (l *Listener) subscribeAll() error {
	for _, program := range l.cfg.Programs {
		req := wsRequest{
			JSONRPC: "2.0",
			ID:      l.requestID.Add(1),
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string]interface{}{"mentions": []string{program}},
				map[string]string{"commitment": "confirmed"},
			},
		}

		l.connMu.Lock()
		conn := l.conn
		if conn == nil {
			l.connMu.Unlock()
			return fmt.Errorf("not connected")
		}
		conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
		err := conn.WriteJSON(req)
		l.connMu.Unlock()

		if err != nil {
			return fmt.Errorf("write subscribe for %s: %w", program, err)
		}
	}
	return nil
}

// readLoop reads messages and reconnects on failure with exponential
// backoff.
func (l *Listener) readLoop() {
	defer l.wg.Done()

	delay := l.cfg.ReconnectDelay

	for !l.closed.Load() {
		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			if !l.reconnect(delay) {
				return
			}
			delay *= 2
			if delay > l.cfg.MaxReconnectDelay {
				delay = l.cfg.MaxReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.logger.Printf("[feed] read error: %v", err)
			l.closeConn()
			continue
		}

		delay = l.cfg.ReconnectDelay
		l.handleMessage(message)
	}
}

// reconnect waits, redials and resubscribes. Returns false on shutdown.
func (l *Listener) reconnect(delay time.Duration) bool {
	select {
	case <-l.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := l.connect(ctx); err != nil {
		l.logger.Printf("[feed] reconnect failed: %v", err)
		return true
	}
	if err := l.subscribeAll(); err != nil {
		l.logger.Printf("[feed] resubscribe failed: %v", err)
		l.closeConn()
		return true
	}

	observability.RecordFeedReconnect()
	l.logger.Printf("[feed] reconnected to %s", l.cfg.Endpoint)
	return true
}

func (l *Listener) handleMessage(message []byte) {
	var notif wsNotification
	if err := json.Unmarshal(message, &notif); err != nil || notif.Method != "logsNotification" {
		return
	}
	if notif.Params == nil || notif.Params.Result.Value.Err != nil {
		// Failed transactions never launch anything.
		return
	}

	value := notif.Params.Result.Value
	mint := ExtractLaunchMint(value.Logs)
	if mint == "" {
		return
	}

	if _, dup := l.seen.Get(mint); dup {
		return
	}
	l.seen.Set(mint, struct{}{})

	event := TokenEvent{
		Token:     mint,
		Signature: value.Signature,
		SeenAt:    time.Now().UTC(),
	}
	if notif.Params.Result.Context != nil {
		event.Slot = notif.Params.Result.Context.Slot
	}

	observability.RecordFeedToken()
	select {
	case l.events <- event:
	case <-l.done:
	}
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (l *Listener) pingLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.connMu.Lock()
			if l.conn != nil {
				l.conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
				// Errors surface in the read loop, which owns reconnects.
				l.conn.WriteMessage(websocket.PingMessage, nil)
			}
			l.connMu.Unlock()
		}
	}
}

// Websocket message types.

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsNotification struct {
	JSONRPC string                `json:"jsonrpc"`
	Method  string                `json:"method"`
	Params  *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64                `json:"subscription"`
	Result       wsNotificationResult `json:"result"`
}

type wsNotificationResult struct {
	Context *wsContext  `json:"context"`
	Value   wsLogsValue `json:"value"`
}

type wsContext struct {
	Slot int64 `json:"slot"`
}

type wsLogsValue struct {
	Signature string      `json:"signature"`
	Logs      []string    `json:"logs"`
	Err       interface{} `json:"err"`
}
