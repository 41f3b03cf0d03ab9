// ABOUTME: One realtime session per live connection with buffered egress
// ABOUTME: Read pump dispatches inbound frames; write pump owns all socket writes

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/receipts"

	"github.com/google/uuid"
)

const (
	// writeWait bounds a single socket write.
	writeWait = 10 * time.Second

	// maxFrameSize caps inbound frames. Messages are text; anything larger
	// is a misbehaving client.
	maxFrameSize = 64 * 1024

	// dispatchTimeout bounds the store work triggered by one inbound frame.
	dispatchTimeout = 10 * time.Second

	defaultIdleTimeout = 60 * time.Second
	defaultSendBuffer  = 256
)

// Session is one authenticated realtime connection. All writes to the socket
// go through the send channel so the write pump is the only writer.
type Session struct {
	id       string
	userID   string
	username string

	conn *websocket.Conn
	send chan []byte

	// done is closed exactly once to stop the write pump with a normal
	// close handshake.
	done     chan struct{}
	doneOnce sync.Once

	hub    *Hub
	logger *slog.Logger

	idleTimeout time.Duration
}

// shutdown asks the write pump to close the connection cleanly.
func (s *Session) shutdown() {
	s.doneOnce.Do(func() { close(s.done) })
}

func newSession(conn *websocket.Conn, userID, username string, hub *Hub) *Session {
	idle := hub.idleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	buf := hub.sendBuffer
	if buf <= 0 {
		buf = defaultSendBuffer
	}
	id := uuid.NewString()
	return &Session{
		id:          id,
		userID:      userID,
		username:    username,
		conn:        conn,
		send:        make(chan []byte, buf),
		done:        make(chan struct{}),
		hub:         hub,
		logger:      hub.logger.With("connection_id", id, "user_id", userID),
		idleTimeout: idle,
	}
}

// queueOut offers a frame to the session without blocking. A full buffer
// means the client is too slow; the frame is dropped and counted.
func (s *Session) queueOut(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		metrics.FanoutDropped.Inc()
		s.logger.Warn("send buffer full, dropping frame")
		return false
	}
}

// readPump reads frames until the connection dies. Runs as the connection's
// goroutine; unregisters the session on exit.
func (s *Session) readPump() {
	defer func() {
		s.hub.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("connection closed unexpectedly", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		s.dispatch(raw)
	}
}

// writePump owns the socket for writing: queued frames, pings, and the
// closing handshake.
func (s *Session) writePump() {
	pingPeriod := s.idleTimeout * 9 / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))
			return
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("write failed", "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch decodes one inbound frame and routes it. Malformed or rejected
// frames produce an error frame; the connection stays open.
func (s *Session) dispatch(raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.logger.Debug("malformed frame", "error", err)
		s.queueOut(marshalError("malformed frame"))
		return
	}

	switch {
	case frame.isHeartbeat():
		s.hub.manager.Refresh(ctx, s.userID)
		s.queueOut(marshalHeartbeat(time.Now().UTC()))

	case frame.isReceipt():
		s.handleReceipt(ctx, &frame)

	case frame.isChatMessage():
		s.handleChatMessage(ctx, &frame)

	default:
		s.queueOut(marshalError("unrecognized frame"))
	}
}

func (s *Session) handleReceipt(ctx context.Context, frame *inboundFrame) {
	var status string
	switch frame.StatusType {
	case receiptDelivered:
		status = "delivered"
	case receiptRead:
		status = "read"
	default:
		s.queueOut(marshalError("unknown receipt status"))
		return
	}

	// Receipts apply on behalf of the authenticated user regardless of the
	// userId the client claims.
	s.hub.receipts.Apply(ctx, s.userID, []receipts.Update{{
		MessageID: frame.MessageID,
		Status:    status,
	}})
}

func (s *Session) handleChatMessage(ctx context.Context, frame *inboundFrame) {
	if frame.Content == "" {
		s.queueOut(marshalError("empty message content"))
		return
	}
	if frame.SenderID != "" && frame.SenderID != s.userID {
		s.logger.Warn("sender mismatch", "claimed_sender", frame.SenderID)
		s.queueOut(marshalError("sender does not match connection"))
		return
	}

	allowed, err := s.hub.conv.HasAccess(ctx, s.userID, frame.ConversationID)
	if err != nil {
		s.logger.Error("checking conversation access",
			"conversation_id", frame.ConversationID, "error", err)
		s.queueOut(marshalError("internal error"))
		return
	}
	if !allowed {
		s.queueOut(marshalError("not a participant of this conversation"))
		return
	}

	msg := &msgstore.Message{
		ID:             uuid.NewString(),
		ConversationID: frame.ConversationID,
		SenderID:       s.userID,
		SenderUsername: s.username,
		Content:        frame.Content,
	}
	if err := s.hub.pipe.Submit(ctx, msg); err != nil {
		s.logger.Error("submitting message", "error", err)
		s.queueOut(marshalError("could not accept message"))
		return
	}
	s.queueOut(marshalAck(msg.ID))
}
