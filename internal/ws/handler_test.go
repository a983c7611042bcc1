package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/u-wave/u-wave-core-sub000/pkg/events"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

type vote struct {
	userID    string
	historyID string
	direction int
}

type fakeVoter struct {
	mu    sync.Mutex
	votes []vote
}

func (f *fakeVoter) CurrentEntry(context.Context) (*models.CurrentPlay, error) {
	return &models.CurrentPlay{HistoryID: "h1", UserID: "dj"}, nil
}

func (f *fakeVoter) Vote(_ context.Context, userID, historyID string, direction int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.votes = append(f.votes, vote{userID, historyID, direction})
	return nil
}

func (f *fakeVoter) recorded() []vote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vote(nil), f.votes...)
}

func newTestHub(t *testing.T, origins ...string) (*Hub, *fakeVoter, string) {
	t.Helper()
	voter := &fakeVoter{}
	hub := NewHub(voter, origins, zerolog.Nop())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		c.Set("user_id", c.Query("user"))
		hub.HandleWebSocket(c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, voter, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Relay(t *testing.T) {
	hub, _, url := newTestHub(t)
	a := dial(t, url+"?user=a", nil)
	b := dial(t, url+"?user=b", nil)
	waitFor(t, func() bool { return hub.Count() == 2 })

	raw, err := events.Encode(events.WaitlistJoin{UserID: "a", Waitlist: []string{"a"}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := hub.Relay(events.Delivery{Raw: raw}); err != nil {
		t.Fatalf("Relay failed: %v", err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage failed: %v", err)
		}
		if string(msg) != string(raw) {
			t.Errorf("expected %s, got %s", raw, msg)
		}
	}
}

func TestHub_VoteCommand(t *testing.T) {
	hub, voter, url := newTestHub(t)
	conn := dial(t, url+"?user=alice", nil)
	waitFor(t, func() bool { return hub.Count() == 1 })

	messages := []string{
		`{"command":"vote","data":1}`,
		`{"command":"vote","data":{"historyID":"h0","direction":-1}}`,
		`{"command":"vote","data":7}`,
		`{"command":"dance"}`,
		`not json`,
	}
	for _, m := range messages {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}

	waitFor(t, func() bool { return len(voter.recorded()) == 2 })
	got := voter.recorded()
	if got[0] != (vote{"alice", "h1", 1}) {
		t.Errorf("unexpected first vote %+v", got[0])
	}
	if got[1] != (vote{"alice", "h0", -1}) {
		t.Errorf("unexpected second vote %+v", got[1])
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	_, _, url := newTestHub(t, "http://localhost:6041")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Error("expected foreign origin to be rejected")
	}

	header = http.Header{"Origin": []string{"http://localhost:6041"}}
	dial(t, url, header)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub, _, url := newTestHub(t)
	conn := dial(t, url+"?user=a", nil)
	waitFor(t, func() bool { return hub.Count() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Count() == 0 })
}
