package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Voter is the part of the booth reachable from a socket.
type Voter interface {
	CurrentEntry(ctx context.Context) (*models.CurrentPlay, error)
	Vote(ctx context.Context, userID, historyID string, direction int) error
}

type client struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub fans bus deliveries out to every connected socket and accepts a small
// set of inbound commands.
type Hub struct {
	upgrader websocket.Upgrader
	voter    Voter
	logger   zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(voter Voter, origins []string, logger zerolog.Logger) *Hub {
	h := &Hub{
		voter:   voter,
		logger:  logger.With().Str("ns", "uwave:ws").Logger(),
		clients: make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || lo.Contains(origins, origin)
		},
	}
	return h
}

func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	cl := &client{
		conn:   conn,
		userID: c.GetString("user_id"),
		send:   make(chan []byte, sendBuffer),
	}
	h.register(cl)

	go h.writePump(cl)
	h.readPump(cl)
}

// Relay forwards an encoded bus message to every client. It has the shape of
// an events.Handler so it can be passed to Bus.Subscribe directly.
func (h *Hub) Relay(d events.Delivery) error {
	h.Broadcast(d.Raw)
	return nil
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	var slow []*client
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.Debug().Str("user", cl.userID).Msg("dropping slow client")
		h.unregister(cl)
	}
}

// Count returns the number of connected sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := lo.Keys(h.clients)
	h.mu.RUnlock()
	for _, cl := range all {
		h.unregister(cl)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("user", cl.userID).Msg("client connected")
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl)
	close(cl.send)
	h.mu.Unlock()
	h.logger.Debug().Str("user", cl.userID).Msg("client disconnected")
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
	}()

	cl.conn.SetReadLimit(4096)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("user", cl.userID).Msg("websocket error")
			}
			return
		}
		h.handleCommand(cl, message)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleCommand accepts {"command":"vote","data":1} or, to pin the vote to a
// specific play, {"command":"vote","data":{"historyID":"...","direction":-1}}.
func (h *Hub) handleCommand(cl *client, message []byte) {
	if !gjson.ValidBytes(message) {
		h.logger.Debug().Str("user", cl.userID).Msg("ignoring malformed message")
		return
	}
	parsed := gjson.ParseBytes(message)

	switch parsed.Get("command").String() {
	case "vote":
		if cl.userID == "" {
			return
		}
		h.vote(cl, parsed.Get("data"))
	default:
		h.logger.Debug().Str("user", cl.userID).Str("command", parsed.Get("command").String()).Msg("unknown command")
	}
}

func (h *Hub) vote(cl *client, data gjson.Result) {
	ctx := context.Background()

	direction := data.Int()
	historyID := ""
	if data.IsObject() {
		direction = data.Get("direction").Int()
		historyID = data.Get("historyID").String()
	}
	if direction != 1 && direction != -1 {
		return
	}

	if historyID == "" {
		current, err := h.voter.CurrentEntry(ctx)
		if err != nil || current == nil {
			return
		}
		historyID = current.HistoryID
	}

	if err := h.voter.Vote(ctx, cl.userID, historyID, int(direction)); err != nil {
		h.logger.Debug().Err(err).Str("user", cl.userID).Msg("vote rejected")
	}
}
