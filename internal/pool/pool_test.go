package pool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticMembers map[int64][]int64

func (m staticMembers) GetMemberIDs(_ context.Context, conversationID int64) ([]int64, error) {
	return m[conversationID], nil
}

// dial connects a fake user to the pool through a real websocket server.
func dial(t *testing.T, p *Pool, userID int64) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		client := p.AddClient(userID, conn)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestBroadcastEventReachesMembersOnly(t *testing.T) {
	members := staticMembers{42: {1, 2}}
	p := NewPool(members, zerolog.Nop())

	alice := dial(t, p, 1)
	bob := dial(t, p, 2)
	eve := dial(t, p, 3)

	p.BroadcastEvent(context.Background(), 42, EventMessageCreated, map[string]int{"id": 7})

	for _, conn := range []*websocket.Conn{alice, bob} {
		env := readEnvelope(t, conn)
		assert.Equal(t, EventMessageCreated, env.Event)
		assert.Equal(t, int64(42), env.ConversationID)
	}

	eve.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := eve.ReadMessage()
	assert.Error(t, err, "a non-member must not receive the event")
}

func TestBroadcastEventPreservesOrder(t *testing.T) {
	members := staticMembers{42: {1}}
	p := NewPool(members, zerolog.Nop())

	conn := dial(t, p, 1)

	for i := 0; i < 5; i++ {
		p.BroadcastEvent(context.Background(), 42, EventMessageCreated, map[string]int{"seq": i})
	}

	for i := 0; i < 5; i++ {
		env := readEnvelope(t, conn)
		data, ok := env.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(i), data["seq"], "events arrive in publish order")
	}
}

func TestBroadcastToUser(t *testing.T) {
	p := NewPool(staticMembers{}, zerolog.Nop())

	first := dial(t, p, 1)
	second := dial(t, p, 1)

	p.BroadcastToUser(1, 42, EventReadReceipt, nil)

	for _, conn := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, conn)
		assert.Equal(t, EventReadReceipt, env.Event)
	}
}

func TestRemoveClient(t *testing.T) {
	p := NewPool(staticMembers{}, zerolog.Nop())

	conn := dial(t, p, 1)
	require.Eventually(t, func() bool {
		return len(p.ConnectedUserIDs()) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(p.ConnectedUserIDs()) == 0
	}, 2*time.Second, 10*time.Millisecond, "closing the socket removes the session")
}

func TestBroadcastSkipsFullBuffer(t *testing.T) {
	members := staticMembers{42: {1}}
	p := NewPool(members, zerolog.Nop())

	// Register a session without a running write pump so the buffer fills.
	client := &Client{
		SessionID: "stuck",
		UserID:    1,
		send:      make(chan []byte, 1),
		pool:      p,
		log:       zerolog.Nop(),
	}
	p.mu.Lock()
	p.clients[1] = map[string]*Client{client.SessionID: client}
	p.mu.Unlock()

	p.BroadcastEvent(context.Background(), 42, EventMessageCreated, nil)
	p.BroadcastEvent(context.Background(), 42, EventMessageCreated, nil)

	assert.Len(t, client.send, 1, "the second event is dropped, not queued")
}
