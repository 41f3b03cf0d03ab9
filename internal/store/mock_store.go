// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User         // keyed by user ID
	usernameIndex map[string]string        // keyed by username -> user ID
	emailIndex    map[string]string        // keyed by email -> user ID
	conversations map[string]*Conversation // keyed by conversation ID
	participants  map[string]*Participant  // keyed by "conversationID:userID"
	failing       map[string]bool          // method names forced to fail
}

// FailOn makes the named method return an error until cleared. Used to test
// partial-failure handling.
func (m *MockStore) FailOn(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing == nil {
		m.failing = make(map[string]bool)
	}
	m.failing[method] = true
}

func (m *MockStore) shouldFail(method string) error {
	if m.failing[method] {
		return errors.New(method + ": injected failure")
	}
	return nil
}

// Ensure MockStore implements the Store interface
var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		usernameIndex: make(map[string]string),
		emailIndex:    make(map[string]string),
		conversations: make(map[string]*Conversation),
		participants:  make(map[string]*Participant),
	}
}

func participantKey(conversationID, userID string) string {
	return conversationID + ":" + userID
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usernameIndex[user.Username]; ok {
		return ErrUsernameTaken
	}
	if _, ok := m.emailIndex[user.Email]; ok {
		return ErrEmailTaken
	}

	// Make a copy to avoid external modification
	u := *user
	m.users[u.ID] = &u
	m.usernameIndex[u.Username] = u.ID
	m.emailIndex[u.Email] = u.ID

	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *u
	return &result, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usernameIndex[username]
	if !ok {
		return nil, ErrNotFound
	}

	result := *m.users[id]
	return &result, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emailIndex[email]
	if !ok {
		return nil, ErrNotFound
	}

	result := *m.users[id]
	return &result, nil
}

// GetUsersByIDs retrieves multiple users, omitting missing IDs.
func (m *MockStore) GetUsersByIDs(ctx context.Context, ids []string) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			userCopy := *u
			users = append(users, &userCopy)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})

	return users, nil
}

// UpdateUserProfile applies the non-nil fields of update.
func (m *MockStore) UpdateUserProfile(ctx context.Context, id string, update ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}

	if update.DisplayName != nil {
		u.DisplayName = *update.DisplayName
	}
	if update.AvatarURL != nil {
		u.AvatarURL = *update.AvatarURL
	}

	return nil
}

// UpdateUserPassword replaces the user's password hash.
func (m *MockStore) UpdateUserPassword(ctx context.Context, id string, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}

	u.PasswordHash = passwordHash
	return nil
}

// SetUserPresence records online state and last-seen time.
func (m *MockStore) SetUserPresence(ctx context.Context, id string, online bool, lastSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}

	u.Online = online
	seen := lastSeen
	u.LastSeenAt = &seen
	return nil
}

// CreateConversation stores a conversation and its initial participants.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation, participants []*Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[conv.ID]; ok {
		return ErrDuplicateConversation
	}

	c := *conv
	m.conversations[c.ID] = &c

	for _, p := range participants {
		pCopy := *p
		m.participants[participantKey(p.ConversationID, p.UserID)] = &pCopy
	}

	return nil
}

// GetConversation retrieves a conversation by ID, soft-deleted included.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	result := *c
	return &result, nil
}

// ListConversationsForUser returns live conversations the user actively
// participates in, most recently updated first.
func (m *MockStore) ListConversationsForUser(ctx context.Context, userID string) ([]*Conversation, error) {
	return m.listConversationsForUser(userID, "")
}

// ListConversationsForUserByKind restricts ListConversationsForUser to one kind.
func (m *MockStore) ListConversationsForUserByKind(ctx context.Context, userID string, kind ConversationKind) ([]*Conversation, error) {
	return m.listConversationsForUser(userID, kind)
}

func (m *MockStore) listConversationsForUser(userID string, kind ConversationKind) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, p := range m.participants {
		if p.UserID != userID || !p.Active {
			continue
		}
		c, ok := m.conversations[p.ConversationID]
		if !ok || c.DeletedAt != nil {
			continue
		}
		if kind != "" && c.Kind != kind {
			continue
		}
		convCopy := *c
		convs = append(convs, &convCopy)
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	if convs == nil {
		convs = []*Conversation{}
	}

	return convs, nil
}

// UpdateConversationSettings applies the non-nil fields of update.
func (m *MockStore) UpdateConversationSettings(ctx context.Context, id string, update SettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok || c.DeletedAt != nil {
		return ErrNotFound
	}

	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	if update.IsPublic != nil {
		c.IsPublic = *update.IsPublic
	}
	if update.MaxParticipants != nil {
		c.MaxParticipants = *update.MaxParticipants
	}
	c.UpdatedAt = time.Now().UTC()

	return nil
}

// TouchConversation bumps updated_at.
func (m *MockStore) TouchConversation(ctx context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conversations[id]; ok {
		c.UpdatedAt = when
	}
	return nil
}

// SoftDeleteConversation marks a conversation deleted.
func (m *MockStore) SoftDeleteConversation(ctx context.Context, id string, deletedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if c.DeletedAt == nil {
		t := deletedAt
		c.DeletedAt = &t
	}
	return nil
}

// HardDeleteConversation removes a conversation and its participant rows.
func (m *MockStore) HardDeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}

	delete(m.conversations, id)
	for key, p := range m.participants {
		if p.ConversationID == id {
			delete(m.participants, key)
		}
	}
	return nil
}

// ListActiveConversationIDs returns the IDs of all live conversations.
func (m *MockStore) ListActiveConversationIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.shouldFail("ListActiveConversationIDs"); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(m.conversations))
	for id, c := range m.conversations {
		if c.DeletedAt == nil {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// ListSoftDeletedConversations returns soft-deleted conversations, oldest
// deletion first.
func (m *MockStore) ListSoftDeletedConversations(ctx context.Context) ([]*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var convs []*Conversation
	for _, c := range m.conversations {
		if c.DeletedAt != nil {
			convCopy := *c
			convs = append(convs, &convCopy)
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].DeletedAt.Before(*convs[j].DeletedAt)
	})

	if convs == nil {
		convs = []*Conversation{}
	}

	return convs, nil
}

// AddParticipant inserts a participant row.
func (m *MockStore) AddParticipant(ctx context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := participantKey(p.ConversationID, p.UserID)
	if _, ok := m.participants[key]; ok {
		return ErrDuplicateParticipant
	}

	pCopy := *p
	m.participants[key] = &pCopy
	return nil
}

// GetParticipant retrieves one participant row.
func (m *MockStore) GetParticipant(ctx context.Context, conversationID, userID string) (*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.participants[participantKey(conversationID, userID)]
	if !ok {
		return nil, ErrNotFound
	}

	result := *p
	return &result, nil
}

// ListParticipants returns all participant rows for a conversation.
func (m *MockStore) ListParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	return m.listParticipants(conversationID, false)
}

// ListActiveParticipants returns only the active participants.
func (m *MockStore) ListActiveParticipants(ctx context.Context, conversationID string) ([]*Participant, error) {
	return m.listParticipants(conversationID, true)
}

func (m *MockStore) listParticipants(conversationID string, activeOnly bool) ([]*Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var participants []*Participant
	for _, p := range m.participants {
		if p.ConversationID != conversationID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		pCopy := *p
		participants = append(participants, &pCopy)
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].JoinedAt.Before(participants[j].JoinedAt)
	})

	if participants == nil {
		participants = []*Participant{}
	}

	return participants, nil
}

// CountActiveParticipants returns the number of active participants.
func (m *MockStore) CountActiveParticipants(ctx context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.participants {
		if p.ConversationID == conversationID && p.Active {
			count++
		}
	}
	return count, nil
}

// SetParticipantActive activates or deactivates a participant.
func (m *MockStore) SetParticipantActive(ctx context.Context, conversationID, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[participantKey(conversationID, userID)]
	if !ok {
		return ErrNotFound
	}

	p.Active = active
	return nil
}

// SetParticipantLastRead records the user's read high-water mark.
func (m *MockStore) SetParticipantLastRead(ctx context.Context, conversationID, userID string, readAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.participants[participantKey(conversationID, userID)]
	if !ok {
		return ErrNotFound
	}

	t := readAt
	p.LastReadAt = &t
	return nil
}

// Ping always succeeds.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
