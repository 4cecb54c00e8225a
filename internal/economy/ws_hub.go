package economy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentsim/economy-engine/internal/metrics"
	"github.com/agentsim/economy-engine/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// WSMessage is the JSON event pushed to observers whenever money moves
// through the ledger.
type WSMessage struct {
	Type       string `json:"type"`
	TxID       string `json:"tx_id"`
	TxType     string `json:"tx_type"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Month      int    `json:"month"`
}

// wsClient is one observer connection. party, when set, restricts the feed
// to transactions where that agent is sender or receiver.
type wsClient struct {
	conn  *websocket.Conn
	send  chan []byte
	party string
}

// WSHub fans completed transactions out to observer connections. Each client
// gets a buffered send queue; a client that cannot keep up is dropped rather
// than allowed to stall settlement.
type WSHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWSHub creates an empty hub.
func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*wsClient]struct{})}
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.WebSocketClients.Inc()
	slog.Info("ws client connected", "total", n, "party", c.party)
}

func (h *WSHub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WebSocketClients.Dec()
	}
	h.mu.Unlock()
}

// Broadcast queues a transaction event for every observer whose party filter
// matches. Slow clients are disconnected instead of blocking the caller.
func (h *WSHub) Broadcast(tx *model.Transaction) {
	msg := WSMessage{
		Type:       "transaction",
		TxID:       tx.ID,
		TxType:     tx.Type,
		SenderID:   tx.SenderID,
		ReceiverID: tx.ReceiverID,
		Amount:     tx.Amount.String(),
		Month:      tx.Month,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	var stalled []*wsClient
	for c := range h.clients {
		if c.party != "" && c.party != tx.SenderID && c.party != tx.ReceiverID {
			continue
		}
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		delete(h.clients, c)
		close(c.send)
		metrics.WebSocketClients.Dec()
	}
	h.mu.Unlock()

	for _, c := range stalled {
		c.conn.Close()
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// HandleWS upgrades GET /api/v1/ws. An optional ?party= query narrows the
// feed to one agent's transactions.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	c := &wsClient{
		conn:  conn,
		send:  make(chan []byte, wsSendBuffer),
		party: r.URL.Query().Get("party"),
	}
	h.add(c)
	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the client queue and keeps the connection alive with
// pings. Exits when the queue is closed or a write fails.
func (h *WSHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *WSHub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
