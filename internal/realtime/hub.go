// ABOUTME: Hub holding the live session registry and participant-filtered fanout
// ABOUTME: Implements the pipeline's distribution hook for this instance

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/receipts"
	"github.com/parley-im/parley/internal/store"
)

// fanoutTimeout bounds the participant lookup during distribution.
const fanoutTimeout = 5 * time.Second

// Submitter accepts message drafts for persistence and fanout. The pipeline
// implements it.
type Submitter interface {
	Submit(ctx context.Context, msg *msgstore.Message) error
}

// ReceiptSink applies batches of receipt updates. The receipt service
// implements it.
type ReceiptSink interface {
	Apply(ctx context.Context, userID string, updates []receipts.Update)
}

// AccessChecker answers conversation membership questions. The conversation
// service implements it.
type AccessChecker interface {
	HasAccess(ctx context.Context, userID, conversationID string) (bool, error)
	ActiveParticipants(ctx context.Context, conversationID string) ([]*store.Participant, error)
}

// Hub tracks every live session on this instance and fans persisted messages
// out to the sessions of the conversation's participants. Non-participants
// on the same instance never see the frame.
type Hub struct {
	manager  *ConnectionManager
	conv     AccessChecker
	pipe     Submitter
	receipts ReceiptSink
	logger   *slog.Logger

	idleTimeout time.Duration
	sendBuffer  int

	mu     sync.RWMutex
	byConn map[string]*Session
	byUser map[string]map[string]*Session
}

// NewHub creates a hub. idleTimeout and sendBuffer fall back to defaults
// when zero.
func NewHub(manager *ConnectionManager, conv AccessChecker, pipe Submitter, sink ReceiptSink, idleTimeout time.Duration, sendBuffer int, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		manager:     manager,
		conv:        conv,
		pipe:        pipe,
		receipts:    sink,
		logger:      logger.With("component", "realtime"),
		idleTimeout: idleTimeout,
		sendBuffer:  sendBuffer,
		byConn:      make(map[string]*Session),
		byUser:      make(map[string]map[string]*Session),
	}
}

// SetSubmitter wires the message pipeline in after construction. The hub and
// the pipeline reference each other, so one of the two links is set late.
func (h *Hub) SetSubmitter(pipe Submitter) {
	h.pipe = pipe
}

func (h *Hub) add(ctx context.Context, s *Session) error {
	if err := h.manager.Register(ctx, s.userID, s.id); err != nil {
		return err
	}

	h.mu.Lock()
	h.byConn[s.id] = s
	if h.byUser[s.userID] == nil {
		h.byUser[s.userID] = make(map[string]*Session)
	}
	h.byUser[s.userID][s.id] = s
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	return nil
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	if _, ok := h.byConn[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.byConn, s.id)
	if conns := h.byUser[s.userID]; conns != nil {
		delete(conns, s.id)
		if len(conns) == 0 {
			delete(h.byUser, s.userID)
		}
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()
	h.manager.Unregister(ctx, s.userID, s.id)
	metrics.LiveConnections.Dec()
}

// Count returns the number of live sessions on this instance.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byConn)
}

// Distribute sends a persisted message to every live session belonging to a
// participant of its conversation, the sender's other sessions included. A
// slow connection drops the frame; it never stalls the rest of the fanout.
func (h *Hub) Distribute(msg *msgstore.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), fanoutTimeout)
	defer cancel()

	participants, err := h.conv.ActiveParticipants(ctx, msg.ConversationID)
	if err != nil {
		h.logger.Error("resolving fanout participants",
			"conversation_id", msg.ConversationID, "error", err)
		return
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("serializing message", "message_id", msg.ID, "error", err)
		return
	}

	h.mu.RLock()
	var targets []*Session
	for _, p := range participants {
		for _, s := range h.byUser[p.UserID] {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.queueOut(frame)
	}
}

// CloseAll closes every live session with a normal close status. Used during
// graceful shutdown after the pipeline has drained.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.byConn))
	for _, s := range h.byConn {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.shutdown()
	}
}
