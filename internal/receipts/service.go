// ABOUTME: Receipt service recording delivered and read transitions on messages
// ABOUTME: Access-gates every update and keeps the stored aggregate status current

package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/msgstore"
)

// Update is a single receipt transition requested by a client, usually
// batched over the websocket.
type Update struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"` // "delivered" or "read"
}

// Service applies receipt transitions. Every mutation is idempotent and
// monotonic (first instant wins, enforced by the message store), skips the
// sender, and is silently dropped when the acting user has no access to the
// conversation. Denials are logged, never surfaced, so a malicious client
// cannot probe conversation existence through receipts.
type Service struct {
	msgs   msgstore.Store
	conv   *conversation.Service
	logger *slog.Logger
}

// New creates a receipt service.
func New(msgs msgstore.Store, conv *conversation.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		msgs:   msgs,
		conv:   conv,
		logger: logger.With("component", "receipts"),
	}
}

// MarkDelivered records that userID's device received the message. No-op for
// the sender, for unknown messages, and for users without conversation
// access.
func (s *Service) MarkDelivered(ctx context.Context, messageID, userID string) error {
	msg, ok, err := s.authorize(ctx, messageID, userID)
	if err != nil || !ok {
		return err
	}
	if err := s.msgs.MarkDelivered(ctx, messageID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking delivered: %w", err)
	}
	return s.refreshAggregate(ctx, msg.ID)
}

// MarkRead records that userID saw the message. Read implies delivered, so a
// missing delivered entry is filled with the same instant.
func (s *Service) MarkRead(ctx context.Context, messageID, userID string) error {
	msg, ok, err := s.authorize(ctx, messageID, userID)
	if err != nil || !ok {
		return err
	}
	if err := s.msgs.MarkRead(ctx, messageID, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	return s.refreshAggregate(ctx, msg.ID)
}

// MarkConversationRead marks every message in the conversation read for the
// user (sender's own messages excluded) and records the read position on the
// participant row. Returns the number of messages whose read vector changed.
func (s *Service) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	allowed, err := s.conv.HasAccess(ctx, userID, conversationID)
	if err != nil {
		return 0, err
	}
	if !allowed {
		s.logger.Warn("receipt denied, user not in conversation",
			"conversation_id", conversationID, "user_id", userID)
		return 0, nil
	}

	now := time.Now().UTC()
	n, err := s.msgs.MarkConversationRead(ctx, conversationID, userID, now)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}
	if err := s.conv.MarkLastRead(ctx, conversationID, userID, now); err != nil {
		s.logger.Error("recording read position",
			"conversation_id", conversationID, "user_id", userID, "error", err)
	}
	if n > 0 {
		if err := s.refreshConversationAggregates(ctx, conversationID); err != nil {
			s.logger.Error("refreshing aggregates after bulk read",
				"conversation_id", conversationID, "error", err)
		}
	}
	return n, nil
}

// Apply processes a batch of receipt updates independently; one bad update
// never blocks the rest. Unknown statuses are logged and skipped.
func (s *Service) Apply(ctx context.Context, userID string, updates []Update) {
	for _, u := range updates {
		var err error
		switch u.Status {
		case "delivered":
			err = s.MarkDelivered(ctx, u.MessageID, userID)
		case "read":
			err = s.MarkRead(ctx, u.MessageID, userID)
		default:
			s.logger.Warn("unknown receipt status",
				"status", u.Status, "message_id", u.MessageID, "user_id", userID)
			continue
		}
		if err != nil {
			s.logger.Error("applying receipt update",
				"message_id", u.MessageID, "user_id", userID, "error", err)
		}
	}
}

// StatusFor computes the delivery status the viewer should see. Only the
// author observes the recomputed aggregate; everyone else sees SENT, so
// recipients never learn each other's read state.
func (s *Service) StatusFor(msg *msgstore.Message, viewerID string) msgstore.Status {
	if msg.SenderID == viewerID {
		return msg.AggregateStatus()
	}
	return msgstore.StatusSent
}

// authorize loads the message and decides whether the receipt should be
// applied. Returns ok=false for silent no-ops: sender self-receipts, unknown
// messages, and access denials.
func (s *Service) authorize(ctx context.Context, messageID, userID string) (*msgstore.Message, bool, error) {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		if errors.Is(err, msgstore.ErrNotFound) {
			s.logger.Debug("receipt for unknown message",
				"message_id", messageID, "user_id", userID)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading message: %w", err)
	}
	if msg.SenderID == userID {
		return nil, false, nil
	}

	allowed, err := s.conv.HasAccess(ctx, userID, msg.ConversationID)
	if err != nil {
		return nil, false, err
	}
	if !allowed {
		s.logger.Warn("receipt denied, user not in conversation",
			"conversation_id", msg.ConversationID,
			"message_id", messageID, "user_id", userID)
		return nil, false, nil
	}
	return msg, true, nil
}

// refreshAggregate recomputes and persists the stored aggregate status after
// a vector mutation.
func (s *Service) refreshAggregate(ctx context.Context, messageID string) error {
	msg, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return fmt.Errorf("reloading message: %w", err)
	}
	agg := msg.AggregateStatus()
	if agg == msg.Status {
		return nil
	}
	if err := s.msgs.SetStatus(ctx, messageID, agg); err != nil {
		return fmt.Errorf("updating aggregate status: %w", err)
	}
	return nil
}

func (s *Service) refreshConversationAggregates(ctx context.Context, conversationID string) error {
	msgs, err := s.msgs.ListByConversation(ctx, conversationID, time.Time{}, 0)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if agg := m.AggregateStatus(); agg != m.Status {
			if err := s.msgs.SetStatus(ctx, m.ID, agg); err != nil {
				return err
			}
		}
	}
	return nil
}
