// README: Connection hub; routes outbound frames to one connection or to every connection bound to a user.
package realtime

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"colibri/internal/events"
	"colibri/internal/types"
)

var (
	ErrUnknownConn  = errors.New("unknown connection")
	ErrSlowConsumer = errors.New("send buffer full")
)

const sendBuffer = 64

type Client struct {
	ID   types.ID
	Send chan []byte
}

// Hub owns every live connection. A connection may be bound to one user
// identity (driver email or passenger name); a user may hold several
// connections, e.g. two browser tabs. A pinned connection carries a verified
// identity and can never be rebound.
type Hub struct {
	mu       sync.RWMutex
	clients  map[types.ID]*Client
	identity map[types.ID]types.ID
	pinned   map[types.ID]struct{}
	users    map[types.ID]map[types.ID]struct{}
	log      *slog.Logger
	newID    func() types.ID
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:  map[types.ID]*Client{},
		identity: map[types.ID]types.ID{},
		pinned:   map[types.ID]struct{}{},
		users:    map[types.ID]map[types.ID]struct{}{},
		log:      log,
		newID:    func() types.ID { return types.ID(uuid.NewString()) },
	}
}

func (h *Hub) Register() *Client {
	client := &Client{
		ID:   h.newID(),
		Send: make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	return client
}

// Unregister drops the connection and its binding and closes its Send channel.
// It returns the identity the connection was bound to, if any.
func (h *Hub) Unregister(client *Client) types.ID {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return ""
	}
	delete(h.clients, client.ID)
	delete(h.pinned, client.ID)
	user := h.unbindLocked(client.ID)
	close(client.Send)
	return user
}

// Bind attaches connID to user, replacing any earlier binding of that
// connection. It fails for unknown connections and for a pinned connection
// asked to speak for someone else.
func (h *Hub) Bind(connID, user types.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bindLocked(connID, user)
}

// Pin binds connID to a verified identity for the rest of its life.
func (h *Hub) Pin(connID, user types.ID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.bindLocked(connID, user) {
		return false
	}
	h.pinned[connID] = struct{}{}
	return true
}

func (h *Hub) bindLocked(connID, user types.ID) bool {
	if user == "" {
		return false
	}
	if _, ok := h.clients[connID]; !ok {
		return false
	}
	if h.identity[connID] == user {
		return true
	}
	if _, ok := h.pinned[connID]; ok {
		return false
	}
	h.unbindLocked(connID)
	h.identity[connID] = user
	if h.users[user] == nil {
		h.users[user] = map[types.ID]struct{}{}
	}
	h.users[user][connID] = struct{}{}
	return true
}

func (h *Hub) unbindLocked(connID types.ID) types.ID {
	user, ok := h.identity[connID]
	if !ok {
		return ""
	}
	delete(h.identity, connID)
	if conns := h.users[user]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.users, user)
		}
	}
	return user
}

// Identity returns the user bound to connID, or "".
func (h *Hub) Identity(connID types.ID) types.ID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.identity[connID]
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToConn queues one frame for connID. It never blocks: a full buffer
// drops the frame and returns ErrSlowConsumer.
func (h *Hub) SendToConn(connID types.ID, event string, payload any) error {
	frame, err := events.Encode(event, payload)
	if err != nil {
		h.log.Error("encode frame", "event", event, "err", err)
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConn
	}
	select {
	case client.Send <- frame:
		return nil
	default:
		return ErrSlowConsumer
	}
}

// SendToUser queues one frame on every connection bound to user and returns
// how many accepted it. Zero means the user is offline or too slow.
func (h *Hub) SendToUser(user types.ID, event string, payload any) int {
	frame, err := events.Encode(event, payload)
	if err != nil {
		h.log.Error("encode frame", "event", event, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for connID := range h.users[user] {
		client := h.clients[connID]
		if client == nil {
			continue
		}
		select {
		case client.Send <- frame:
			delivered++
		default:
			h.log.Debug("dropped frame for slow connection", "conn", connID, "event", event)
		}
	}
	return delivered
}
