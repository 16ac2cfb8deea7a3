package pool

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MemberSource resolves the current membership of a conversation. The
// conversation service implements it; the pool stays free of SQL.
type MemberSource interface {
	GetMemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// Pool fans conversation events out to connected sessions. Delivery is
// best effort and at most once per session: an offline or slow client
// misses events and reconciles by re-fetching on reconnect. The message
// store stays the source of truth.
type Pool struct {
	mu      sync.RWMutex
	clients map[int64]map[string]*Client

	members MemberSource
	log     zerolog.Logger
}

func NewPool(members MemberSource, log zerolog.Logger) *Pool {
	return &Pool{
		clients: make(map[int64]map[string]*Client),
		members: members,
		log:     log,
	}
}

// AddClient registers a new session for the user and returns it. The
// caller starts the read and write pumps.
func (p *Pool) AddClient(userID int64, conn *websocket.Conn) *Client {
	client := &Client{
		SessionID: uuid.NewString(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		pool:      p,
		log:       p.log,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sessions, ok := p.clients[userID]
	if !ok {
		sessions = make(map[string]*Client)
		p.clients[userID] = sessions
	}
	sessions[client.SessionID] = client

	p.log.Info().Int64("user_id", userID).Str("session_id", client.SessionID).Msg("client added to pool")
	return client
}

func (p *Pool) RemoveClient(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sessions, ok := p.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := sessions[client.SessionID]; !ok {
		return
	}
	delete(sessions, client.SessionID)
	if len(sessions) == 0 {
		delete(p.clients, client.UserID)
	}
	close(client.send)

	p.log.Info().Int64("user_id", client.UserID).Str("session_id", client.SessionID).Msg("client removed from pool")
}

// BroadcastEvent pushes an event to every connected member of the
// conversation. A session with a full send buffer is skipped rather than
// blocking the caller.
func (p *Pool) BroadcastEvent(ctx context.Context, conversationID int64, event string, data interface{}) {
	memberIDs, err := p.members.GetMemberIDs(ctx, conversationID)
	if err != nil {
		p.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("error resolving members for broadcast")
		return
	}

	payload, err := json.Marshal(Envelope{
		Event:          event,
		ConversationID: conversationID,
		Data:           data,
	})
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("error marshaling event")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, userID := range memberIDs {
		for _, client := range p.clients[userID] {
			select {
			case client.send <- payload:
			default:
				p.log.Warn().Int64("user_id", userID).Str("session_id", client.SessionID).Str("event", event).Msg("send buffer full, dropping event")
			}
		}
	}
}

// BroadcastToUser pushes an event to all sessions of a single user.
func (p *Pool) BroadcastToUser(userID int64, conversationID int64, event string, data interface{}) {
	payload, err := json.Marshal(Envelope{
		Event:          event,
		ConversationID: conversationID,
		Data:           data,
	})
	if err != nil {
		p.log.Error().Err(err).Str("event", event).Msg("error marshaling event")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, client := range p.clients[userID] {
		select {
		case client.send <- payload:
		default:
			p.log.Warn().Int64("user_id", userID).Str("session_id", client.SessionID).Str("event", event).Msg("send buffer full, dropping event")
		}
	}
}

// ConnectedUserIDs lists users with at least one live session.
func (p *Pool) ConnectedUserIDs() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := make([]int64, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	return ids
}
