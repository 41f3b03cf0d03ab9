// ABOUTME: In-memory message Store implementation for testing
// ABOUTME: Mirrors the MongoDB semantics including first-instant-wins receipts

package msgstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory Store implementation for testing.
type Memory struct {
	mu   sync.RWMutex
	msgs map[string]*Message
	seq  map[string]int // insertion order, breaks timestamp ties
	next int
}

// Ensure Memory implements the Store interface
var _ Store = (*Memory)(nil)

// NewMemory creates a new in-memory message store.
func NewMemory() *Memory {
	return &Memory{
		msgs: make(map[string]*Message),
		seq:  make(map[string]int),
	}
}

func cloneMessage(m *Message) *Message {
	c := *m
	c.DeliveredTo = maps.Clone(m.DeliveredTo)
	c.ReadBy = maps.Clone(m.ReadBy)
	return &c
}

// Append stores a message, assigning an id if unset.
func (s *Memory) Append(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.DeliveredTo == nil {
		msg.DeliveredTo = map[string]time.Time{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = map[string]time.Time{}
	}

	s.msgs[msg.ID] = cloneMessage(msg)
	s.seq[msg.ID] = s.next
	s.next++
	return nil
}

// Get retrieves a message by id.
func (s *Memory) Get(ctx context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.msgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *Memory) listSorted(conversationID string, keep func(*Message) bool) []*Message {
	var msgs []*Message
	for _, m := range s.msgs {
		if m.ConversationID != conversationID {
			continue
		}
		if keep != nil && !keep(m) {
			continue
		}
		msgs = append(msgs, cloneMessage(m))
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return s.seq[msgs[i].ID] < s.seq[msgs[j].ID]
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs
}

// ListByConversation returns messages strictly after since, oldest first.
func (s *Memory) ListByConversation(ctx context.Context, conversationID string, since time.Time, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.listSorted(conversationID, func(m *Message) bool {
		return since.IsZero() || m.Timestamp.After(since)
	})
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// ListAround returns all conversation messages within +/- radius of center.
func (s *Memory) ListAround(ctx context.Context, conversationID string, center time.Time, radius time.Duration) ([]*Message, error) {
	lo := center.Add(-radius)
	hi := center.Add(radius)

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listSorted(conversationID, func(m *Message) bool {
		return !m.Timestamp.Before(lo) && !m.Timestamp.After(hi)
	}), nil
}

// MarkDelivered records delivery for userID unless already recorded.
func (s *Memory) MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok || m.SenderID == userID {
		return nil
	}
	if _, ok := m.DeliveredTo[userID]; !ok {
		m.DeliveredTo[userID] = at.UTC()
	}
	return nil
}

// MarkRead records the read transition for userID, implying delivery.
func (s *Memory) MarkRead(ctx context.Context, messageID, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok || m.SenderID == userID {
		return nil
	}
	s.markReadLocked(m, userID, at)
	return nil
}

func (s *Memory) markReadLocked(m *Message, userID string, at time.Time) bool {
	changed := false
	if _, ok := m.DeliveredTo[userID]; !ok {
		m.DeliveredTo[userID] = at.UTC()
		changed = true
	}
	if _, ok := m.ReadBy[userID]; !ok {
		m.ReadBy[userID] = at.UTC()
		changed = true
	}
	return changed
}

// MarkConversationRead applies the read transition to every conversation
// message not sent by userID.
func (s *Memory) MarkConversationRead(ctx context.Context, conversationID, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var modified int64
	for _, m := range s.msgs {
		if m.ConversationID != conversationID || m.SenderID == userID {
			continue
		}
		if s.markReadLocked(m, userID, at) {
			modified++
		}
	}
	return modified, nil
}

// SetStatus updates the stored aggregate status.
func (s *Memory) SetStatus(ctx context.Context, messageID string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.msgs[messageID]; ok {
		m.Status = status
	}
	return nil
}

// SearchText matches the query as a case-insensitive substring, standing in
// for the text index.
func (s *Memory) SearchText(ctx context.Context, conversationID, query string, skip, limit int) ([]*Message, error) {
	return s.searchSubstring(conversationID, query, skip, limit)
}

// SearchLiteral matches the query as a case-insensitive literal substring.
func (s *Memory) SearchLiteral(ctx context.Context, conversationID, literal string, skip, limit int) ([]*Message, error) {
	return s.searchSubstring(conversationID, literal, skip, limit)
}

func (s *Memory) searchSubstring(conversationID, query string, skip, limit int) ([]*Message, error) {
	needle := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.listSorted(conversationID, func(m *Message) bool {
		return strings.Contains(strings.ToLower(m.Content), needle)
	})

	// Newest first, like the backend fallback
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	if skip >= len(msgs) {
		return []*Message{}, nil
	}
	msgs = msgs[skip:]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// CountByConversation returns the number of messages in a conversation.
func (s *Memory) CountByConversation(ctx context.Context, conversationID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

// SampleIDs returns up to limit message ids from a conversation.
func (s *Memory) SampleIDs(ctx context.Context, conversationID string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, m := range s.listSorted(conversationID, nil) {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, m.ID)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// ListConversationIDs returns the distinct conversation ids present.
func (s *Memory) ListConversationIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, m := range s.msgs {
		if _, ok := seen[m.ConversationID]; ok {
			continue
		}
		seen[m.ConversationID] = struct{}{}
		ids = append(ids, m.ConversationID)
	}

	sort.Strings(ids)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// PurgeConversation deletes every message in a conversation.
func (s *Memory) PurgeConversation(ctx context.Context, conversationID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, m := range s.msgs {
		if m.ConversationID == conversationID {
			delete(s.msgs, id)
			delete(s.seq, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Memory) Close(ctx context.Context) error {
	return nil
}
