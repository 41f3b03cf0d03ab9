// ABOUTME: Store interface and Message type for the append-only message stream
// ABOUTME: Messages carry per-recipient delivered/read vectors mutated only by receipts

package msgstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested message does not exist
var ErrNotFound = errors.New("message not found")

// Status is the author-visible aggregate delivery state of a message
type Status string

// Message statuses
const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// Type distinguishes message payloads. Only TEXT is carried today.
type Type string

// Message types
const (
	TypeText Type = "TEXT"
)

// Message is an append-only event within a conversation. The receipt vectors
// map recipient user ids to the instant of the transition; the sender never
// appears in either vector.
type Message struct {
	ID             string               `bson:"_id" json:"id"`
	ConversationID string               `bson:"conversationId" json:"conversationId"`
	SenderID       string               `bson:"senderId" json:"senderId"`
	SenderUsername string               `bson:"senderUsername" json:"senderUsername"`
	Content        string               `bson:"content" json:"content"`
	Type           Type                 `bson:"type" json:"type"`
	Timestamp      time.Time            `bson:"timestamp" json:"timestamp"`
	Status         Status               `bson:"status" json:"status"`
	DeliveredTo    map[string]time.Time `bson:"deliveredTo" json:"deliveredTo"`
	ReadBy         map[string]time.Time `bson:"readBy" json:"readBy"`
}

// AggregateStatus recomputes the author-visible status from the receipt
// vectors. The recipient set is the union of the vector keys, which the
// pipeline seeds with the active non-sender participants at send time.
func (m *Message) AggregateStatus() Status {
	recipients := make(map[string]struct{}, len(m.DeliveredTo)+len(m.ReadBy))
	for u := range m.DeliveredTo {
		recipients[u] = struct{}{}
	}
	for u := range m.ReadBy {
		recipients[u] = struct{}{}
	}
	if len(recipients) == 0 {
		return StatusSent
	}

	allRead := true
	allDelivered := true
	for u := range recipients {
		if _, ok := m.ReadBy[u]; !ok {
			allRead = false
		}
		if _, ok := m.DeliveredTo[u]; !ok {
			allDelivered = false
		}
	}

	if allRead {
		return StatusRead
	}
	if allDelivered {
		return StatusDelivered
	}
	return StatusSent
}

// Store defines the interface for message persistence.
//
// Receipt mutations are monotonic and idempotent: an existing vector entry is
// never overwritten, so the first recorded instant wins. All receipt
// operations silently skip the message's own sender.
type Store interface {
	// Append persists a message, assigning an opaque id if unset.
	Append(ctx context.Context, msg *Message) error
	Get(ctx context.Context, id string) (*Message, error)

	// ListByConversation returns messages strictly after since (all messages
	// when since is the zero time), oldest first, capped at limit.
	ListByConversation(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error)
	// ListAround returns all conversation messages within +/- radius of
	// center, oldest first.
	ListAround(ctx context.Context, conversationID string, center time.Time, radius time.Duration) ([]*Message, error)

	// Receipts
	MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) error
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) error
	// MarkConversationRead applies the read transition to every conversation
	// message not sent by userID, in one batched write. Returns the number of
	// messages whose vectors changed.
	MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error)
	SetStatus(ctx context.Context, messageID string, status Status) error

	// Search. SearchText uses the backend text index with relevance ranking;
	// SearchLiteral matches the query as a case-insensitive literal.
	SearchText(ctx context.Context, conversationID, query string, skip, limit int) ([]*Message, error)
	SearchLiteral(ctx context.Context, conversationID, literal string, skip, limit int) ([]*Message, error)

	// Cleanup support
	CountByConversation(ctx context.Context, conversationID string) (int64, error)
	SampleIDs(ctx context.Context, conversationID string, limit int) ([]string, error)
	ListConversationIDs(ctx context.Context) ([]string, error)
	PurgeConversation(ctx context.Context, conversationID string) (int64, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
