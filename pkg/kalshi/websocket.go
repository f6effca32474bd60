package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ProdWSURL is the exchange's websocket endpoint.
const ProdWSURL = "wss://trading-api.kalshi.com/trade-api/ws/v2"

// wsSignPath is the path the exchange verifies the connect signature over.
const wsSignPath = "/trade-api/ws/v2"

// MarketWatcher streams market updates over the exchange websocket. The
// driver uses it to watch traded tickers until settlement; it is telemetry
// only and its failures never affect the scan loop.
type MarketWatcher struct {
	url       string
	accessKey string
	signer    Signer
	logger    *logrus.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	nextID    int
	handlers  map[string]MessageHandler
}

// MessageHandler consumes the msg payload of one websocket message type.
type MessageHandler func(msg json.RawMessage) error

// WSMessage is the exchange's websocket envelope.
type WSMessage struct {
	Type string          `json:"type"`
	ID   int             `json:"id,omitempty"`
	Msg  json.RawMessage `json:"msg,omitempty"`
}

type wsCommand struct {
	ID     int      `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

func NewMarketWatcher(url, accessKey string, signer Signer, logger *logrus.Logger) *MarketWatcher {
	return &MarketWatcher{
		url:       url,
		accessKey: accessKey,
		signer:    signer,
		logger:    logger,
		nextID:    1,
		handlers:  make(map[string]MessageHandler),
	}
}

// Connect dials the websocket with the same signed headers as REST calls.
func (w *MarketWatcher) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.connected {
		return nil
	}

	timestamp := strconv.FormatInt(time.Now().UTC().UnixMilli(), 10)
	signature, err := w.signer.Sign(http.MethodGet, wsSignPath, timestamp)
	if err != nil {
		return fmt.Errorf("sign websocket connect: %w", err)
	}

	header := http.Header{}
	header.Set("KALSHI-ACCESS-KEY", w.accessKey)
	header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, header)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	w.conn = conn
	w.connected = true

	go w.readLoop(ctx)
	go w.keepAlive(ctx)

	return nil
}

// Subscribe requests updates for the given channels and market tickers.
func (w *MarketWatcher) Subscribe(channels, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.connected {
		return fmt.Errorf("websocket not connected")
	}

	cmd := wsCommand{
		ID:  w.nextID,
		Cmd: "subscribe",
		Params: wsParams{
			Channels:      channels,
			MarketTickers: tickers,
		},
	}
	w.nextID++

	return w.conn.WriteJSON(cmd)
}

// RegisterHandler installs a handler for one message type.
func (w *MarketWatcher) RegisterHandler(messageType string, handler MessageHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[messageType] = handler
}

func (w *MarketWatcher) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg WSMessage
			if err := w.conn.ReadJSON(&msg); err != nil {
				w.logger.WithError(err).Warn("Websocket read failed")
				w.handleDisconnect()
				return
			}

			w.mu.Lock()
			handler, ok := w.handlers[msg.Type]
			w.mu.Unlock()
			if ok {
				if err := handler(msg.Msg); err != nil {
					w.logger.WithError(err).WithField("type", msg.Type).Warn("Websocket handler error")
				}
			}
		}
	}
}

func (w *MarketWatcher) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.connected {
				if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					w.logger.WithError(err).Warn("Websocket ping failed")
					w.mu.Unlock()
					w.handleDisconnect()
					return
				}
			}
			w.mu.Unlock()
		}
	}
}

func (w *MarketWatcher) handleDisconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.connected = false
	if w.conn != nil {
		w.conn.Close()
	}
}

// Close tears down the connection.
func (w *MarketWatcher) Close() {
	w.handleDisconnect()
}
