// Package realtime maintains live websocket connections grouped into
// per-channel rooms and fans out chat events. Durability belongs to the
// message store; the hub broadcasts only after persistence succeeds so
// broadcast order always equals stored order.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/advisorly/advisorly/internal/access"
	"github.com/advisorly/advisorly/internal/chat"
	"github.com/advisorly/advisorly/internal/errs"
	"github.com/advisorly/advisorly/internal/metrics"
	"github.com/advisorly/advisorly/internal/models"
	"github.com/advisorly/advisorly/internal/store"
)

// opTimeout bounds the datastore work behind a single inbound event.
const opTimeout = 10 * time.Second

// Hub is the process-wide connection registry. It is constructed at
// startup and owned by the server, not a package-level singleton.
type Hub struct {
	resolver *access.Resolver
	messages *chat.Service
	db       store.DataStore
	logger   zerolog.Logger

	mu          sync.RWMutex
	connections map[string]*Client               // by connection id
	rooms       map[uuid.UUID]map[*Client]bool   // membership secondary index
	sendLocks   map[uuid.UUID]*sync.Mutex        // per-channel ordering section
}

// NewHub creates an empty hub.
func NewHub(resolver *access.Resolver, messages *chat.Service, db store.DataStore, logger zerolog.Logger) *Hub {
	return &Hub{
		resolver:    resolver,
		messages:    messages,
		db:          db,
		logger:      logger,
		connections: make(map[string]*Client),
		rooms:       make(map[uuid.UUID]map[*Client]bool),
		sendLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// register adds a new connection to the registry.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.connections[c.id] = c
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

// disconnect removes the connection from the registry and any room.
// No broadcast: presence beyond "connected" is out of scope.
func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.connections[c.id]; ok {
		delete(h.connections, c.id)
		h.removeFromRoomLocked(c)
		metrics.WSConnections.Dec()
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) removeFromRoomLocked(c *Client) {
	if c.channel == uuid.Nil {
		return
	}
	if room, ok := h.rooms[c.channel]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.channel)
		}
	}
	c.channel = uuid.Nil
}

// dispatch routes one validated inbound event. Operation failures are
// answered to the originating connection only and never terminate it.
func (h *Hub) dispatch(c *Client, event *InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch event.Type {
	case EventJoinRoom:
		h.join(ctx, c, event.ChannelID)
	case EventSendMessage:
		h.handleSend(ctx, c, event.ChannelID, event.Content)
	case EventTypingStart:
		h.typing(ctx, c, event.ChannelID, event.UserName, true)
	case EventTypingEnd:
		h.typing(ctx, c, event.ChannelID, "", false)
	case EventMarkRead:
		h.markRead(ctx, c, event.ChannelID, event.MessageIDs)
	}
}

// join admits the connection into the channel's room after a fresh
// membership check. A denied join leaves the connection untouched.
func (h *Hub) join(ctx context.Context, c *Client, channelID uuid.UUID) {
	if !h.resolver.IsMember(ctx, channelID, c.userID) {
		c.sendError("not authorized")
		return
	}

	h.mu.Lock()
	h.removeFromRoomLocked(c)
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Client]bool)
	}
	h.rooms[channelID][c] = true
	c.channel = channelID
	h.mu.Unlock()

	c.deliver(OutboundEvent{Type: EventJoinedRoom, Payload: JoinedPayload{ChannelID: channelID}})
}

// handleSend re-verifies membership (connections outlive request state),
// persists, then broadcasts the stored form to the whole room including
// every connection of the sender. Persistence and broadcast run inside
// the channel's ordering section so concurrent sends cannot interleave
// their stored order with their broadcast order.
func (h *Hub) handleSend(ctx context.Context, c *Client, channelID uuid.UUID, content string) {
	lock := h.channelLock(channelID)
	lock.Lock()
	msg, err := h.messages.Append(ctx, channelID, c.userID, content, models.ContentText, "")
	if err != nil {
		lock.Unlock()
		c.sendError(errMessage(err))
		return
	}
	h.broadcast(channelID, OutboundEvent{Type: EventNewMessage, Payload: msg}, nil)
	lock.Unlock()

	c.deliver(OutboundEvent{Type: EventMessageSent, Payload: SentPayload{MessageID: msg.ID}})
}

// AppendFile persists a file message submitted over HTTP and pushes it
// to the room, so live members see uploads without a history refetch.
// Runs inside the same ordering section as handleSend: an upload racing
// a websocket send cannot interleave stored and broadcast order.
func (h *Hub) AppendFile(ctx context.Context, channelID, senderID uuid.UUID, caption, fileURL string) (*models.Message, error) {
	lock := h.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	msg, err := h.messages.Append(ctx, channelID, senderID, caption, models.ContentFile, fileURL)
	if err != nil {
		return nil, err
	}
	h.broadcast(channelID, OutboundEvent{Type: EventNewMessage, Payload: msg}, nil)
	return msg, nil
}

// typing relays ephemeral typing state to every other connection in the
// room. Nothing is persisted.
func (h *Hub) typing(ctx context.Context, c *Client, channelID uuid.UUID, userName string, start bool) {
	if !h.resolver.IsMember(ctx, channelID, c.userID) {
		c.sendError("not authorized")
		return
	}

	kind := EventTypingEnd
	if start {
		kind = EventTypingStart
	}
	h.broadcast(channelID, OutboundEvent{
		Type:    kind,
		Payload: TypingPayload{ChannelID: channelID, UserID: c.userID, UserName: userName},
	}, c)
}

// markRead persists the receipt then tells the rest of the room so
// delivery ticks update.
func (h *Hub) markRead(ctx context.Context, c *Client, channelID uuid.UUID, messageIDs []string) {
	if _, err := h.messages.MarkRead(ctx, channelID, c.userID, messageIDs); err != nil {
		c.sendError(errMessage(err))
		return
	}

	h.broadcast(channelID, OutboundEvent{
		Type:    EventMessagesRead,
		Payload: ReadPayload{UserID: c.userID, MessageIDs: messageIDs},
	}, c)
}

// MinutesFinished pushes the pipeline outcome into the request's room.
// Implements the minutes pipeline's Notifier.
func (h *Hub) MinutesFinished(requestID uuid.UUID, run *models.ConsultationMinutes) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ch, err := h.db.GetChannelByRequest(ctx, requestID)
	if err != nil || ch == nil {
		return
	}

	kind := EventMinutesReady
	if run.Status == models.MinutesError {
		kind = EventMinutesError
	}
	h.broadcast(ch.ID, OutboundEvent{Type: kind, Payload: MinutesPayload{
		RequestID:       requestID,
		RunID:           run.ID,
		Status:          string(run.Status),
		ProcessingError: run.ProcessingError,
	}}, nil)
}

// broadcast fans an event out to the room, skipping the excluded
// connection. Peers that cannot drain their buffer are dropped.
func (h *Hub) broadcast(channelID uuid.UUID, event OutboundEvent, exclude *Client) {
	h.mu.RLock()
	room := h.rooms[channelID]
	targets := make([]*Client, 0, len(room))
	for client := range room {
		if client != exclude {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	var dropped []*Client
	for _, client := range targets {
		if !client.deliver(event) {
			dropped = append(dropped, client)
		}
	}
	for _, client := range dropped {
		h.logger.Warn().Str("connection_id", client.id).Msg("dropping slow connection")
		h.disconnect(client)
		client.conn.Close()
	}
}

// channelLock returns the ordering mutex for a channel, creating it on
// first use.
func (h *Hub) channelLock(channelID uuid.UUID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.sendLocks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		h.sendLocks[channelID] = lock
	}
	return lock
}

// errMessage maps service errors to client-facing text. Authorization
// denials stay uniform regardless of cause.
func errMessage(err error) string {
	if errs.Is(err, errs.KindAuthorization) {
		return "not authorized"
	}
	return err.Error()
}
