// ABOUTME: Conversation service for direct/group lifecycle, membership, and access checks
// ABOUTME: Canonical direct ids make pair creation idempotent across races

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/store"
)

// Conversation errors
var (
	ErrNotParticipant      = errors.New("not a participant of this conversation")
	ErrNotOwner            = errors.New("only the owner may perform this operation")
	ErrOperationNotAllowed = errors.New("operation not allowed for this conversation kind")
	ErrParticipantNotFound = errors.New("participant user not found")
	ErrConversationFull    = errors.New("conversation participant limit reached")
	ErrSelfConversation    = errors.New("cannot create a direct conversation with yourself")
)

// DefaultMaxParticipants caps group size when the creator does not choose one
const DefaultMaxParticipants = 100

// DirectID returns the canonical id for a direct conversation between two
// users: dm_<lo>_<hi> with the user ids in lexicographic order. Both
// orderings of the pair map to the same id, which is what makes direct
// creation idempotent.
func DirectID(a, b string) string {
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("dm_%s_%s", lo, hi)
}

// newGroupID mints a random group conversation id.
func newGroupID() string {
	return "grp_" + uuid.New().String()
}

// Service implements conversation lifecycle and access control. Message
// deletion during a cascade goes through the message store; everything else
// is relational.
type Service struct {
	store  store.Store
	msgs   msgstore.Store
	logger *slog.Logger
}

// New creates a conversation service.
func New(s store.Store, msgs msgstore.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		msgs:   msgs,
		logger: logger.With("component", "conversation"),
	}
}

// CreateDirect returns the direct conversation between a and b, creating it
// if needed. Repeated and concurrent calls with either argument order return
// the same conversation; the unique primary key on the canonical id resolves
// races.
func (s *Service) CreateDirect(ctx context.Context, a, b string) (*store.Conversation, error) {
	if a == b {
		return nil, ErrSelfConversation
	}

	users, err := s.store.GetUsersByIDs(ctx, []string{a, b})
	if err != nil {
		return nil, err
	}
	if len(users) != 2 {
		return nil, ErrParticipantNotFound
	}

	id := DirectID(a, b)
	if conv, err := s.store.GetConversation(ctx, id); err == nil {
		return conv, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:        id,
		Kind:      store.KindDirect,
		CreatedBy: a,
		CreatedAt: now,
		UpdatedAt: now,
	}
	participants := []*store.Participant{
		{ConversationID: id, UserID: a, Role: store.RoleMember, Active: true, JoinedAt: now},
		{ConversationID: id, UserID: b, Role: store.RoleMember, Active: true, JoinedAt: now},
	}

	if err := s.store.CreateConversation(ctx, conv, participants); err != nil {
		// Another request created the pair between our lookup and insert
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := s.store.GetConversation(ctx, id)
			if lookupErr == nil {
				s.logger.Debug("found existing direct conversation after race", "conversation_id", id)
				return existing, nil
			}
			return nil, lookupErr
		}
		return nil, err
	}

	s.logger.Debug("direct conversation created", "conversation_id", id)
	return conv, nil
}

// GroupSpec carries the inputs for creating a group conversation
type GroupSpec struct {
	Name            string
	Description     string
	IsPublic        bool
	MaxParticipants int
	ParticipantIDs  []string
}

// CreateGroup creates a group conversation with the creator as OWNER and the
// requested participants (deduplicated, creator excluded) as MEMBERs. Any
// unknown participant id fails the whole transaction.
func (s *Service) CreateGroup(ctx context.Context, creatorID string, spec GroupSpec) (*store.Conversation, error) {
	maxParticipants := spec.MaxParticipants
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}

	// Dedupe the requested members, excluding the creator
	seen := map[string]struct{}{creatorID: {}}
	var memberIDs []string
	for _, id := range spec.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}

	if len(memberIDs)+1 > maxParticipants {
		return nil, ErrConversationFull
	}

	wanted := append([]string{creatorID}, memberIDs...)
	users, err := s.store.GetUsersByIDs(ctx, wanted)
	if err != nil {
		return nil, err
	}
	if len(users) != len(wanted) {
		return nil, ErrParticipantNotFound
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:              newGroupID(),
		Kind:            store.KindGroup,
		Name:            spec.Name,
		Description:     spec.Description,
		IsPublic:        spec.IsPublic,
		MaxParticipants: maxParticipants,
		CreatedBy:       creatorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	participants := make([]*store.Participant, 0, len(memberIDs)+1)
	participants = append(participants, &store.Participant{
		ConversationID: conv.ID, UserID: creatorID, Role: store.RoleOwner, Active: true, JoinedAt: now,
	})
	for _, id := range memberIDs {
		participants = append(participants, &store.Participant{
			ConversationID: conv.ID, UserID: id, Role: store.RoleMember, Active: true, JoinedAt: now,
		})
	}

	if err := s.store.CreateConversation(ctx, conv, participants); err != nil {
		return nil, err
	}

	s.logger.Info("group conversation created",
		"conversation_id", conv.ID,
		"owner", creatorID,
		"members", len(participants))
	return conv, nil
}

// Get returns a conversation by id, including soft-deleted ones. Callers
// that need live access use HasAccess.
func (s *Service) Get(ctx context.Context, id string) (*store.Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// ListForUser returns the live conversations the user actively participates in.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*store.Conversation, error) {
	return s.store.ListConversationsForUser(ctx, userID)
}

// ListForUserByKind returns the user's live conversations of one kind.
func (s *Service) ListForUserByKind(ctx context.Context, userID string, kind store.ConversationKind) ([]*store.Conversation, error) {
	return s.store.ListConversationsForUserByKind(ctx, userID, kind)
}

// RoleOf returns the user's role in the conversation. Inactive rows report
// no role.
func (s *Service) RoleOf(ctx context.Context, conversationID, userID string) (store.Role, error) {
	p, err := s.store.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotParticipant
		}
		return "", err
	}
	if !p.Active {
		return "", ErrNotParticipant
	}
	return p.Role, nil
}

// HasAccess reports whether the user is an active participant of a live
// conversation. Soft-deleted conversations deny access.
func (s *Service) HasAccess(ctx context.Context, userID, conversationID string) (bool, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if conv.Deleted() {
		return false, nil
	}

	_, err = s.RoleOf(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// IsOwner reports whether the user holds the OWNER role.
func (s *Service) IsOwner(ctx context.Context, conversationID, userID string) (bool, error) {
	role, err := s.RoleOf(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return false, nil
		}
		return false, err
	}
	return role == store.RoleOwner, nil
}

// CanManageParticipants reports whether the user may add or remove members.
func (s *Service) CanManageParticipants(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.hasRole(ctx, conversationID, userID, store.RoleOwner, store.RoleAdmin)
}

// CanUpdateSettings reports whether the user may change group settings.
func (s *Service) CanUpdateSettings(ctx context.Context, conversationID, userID string) (bool, error) {
	return s.hasRole(ctx, conversationID, userID, store.RoleOwner, store.RoleAdmin)
}

func (s *Service) hasRole(ctx context.Context, conversationID, userID string, roles ...store.Role) (bool, error) {
	role, err := s.RoleOf(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, ErrNotParticipant) {
			return false, nil
		}
		return false, err
	}
	for _, r := range roles {
		if role == r {
			return true, nil
		}
	}
	return false, nil
}

// UpdateGroupSettings applies a partial settings change. Direct conversations
// carry no settings. Shrinking max-participants below the active member
// count is rejected.
func (s *Service) UpdateGroupSettings(ctx context.Context, conversationID, actorID string, update store.SettingsUpdate) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != store.KindGroup {
		return ErrOperationNotAllowed
	}

	allowed, err := s.CanUpdateSettings(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotOwner
	}

	if update.MaxParticipants != nil {
		count, err := s.store.CountActiveParticipants(ctx, conversationID)
		if err != nil {
			return err
		}
		if *update.MaxParticipants < count {
			return ErrConversationFull
		}
	}

	if err := s.store.UpdateConversationSettings(ctx, conversationID, update); err != nil {
		return err
	}
	return s.store.TouchConversation(ctx, conversationID, time.Now().UTC())
}

// AddUser adds userID to a group conversation as MEMBER. Re-adding an
// existing member is idempotent; a deactivated row is reactivated.
func (s *Service) AddUser(ctx context.Context, conversationID, actorID, userID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != store.KindGroup {
		return ErrOperationNotAllowed
	}

	allowed, err := s.CanManageParticipants(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrNotParticipant
	}

	existing, err := s.store.GetParticipant(ctx, conversationID, userID)
	if err == nil {
		if existing.Active {
			return nil
		}
		return s.store.SetParticipantActive(ctx, conversationID, userID, true)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if _, err := s.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrParticipantNotFound
		}
		return err
	}

	count, err := s.store.CountActiveParticipants(ctx, conversationID)
	if err != nil {
		return err
	}
	if count >= conv.MaxParticipants {
		return ErrConversationFull
	}

	return s.store.AddParticipant(ctx, &store.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           store.RoleMember,
		Active:         true,
		JoinedAt:       time.Now().UTC(),
	})
}

// RemoveUser deactivates a participant row, revoking access while keeping
// history. The group OWNER cannot be removed without a prior role transfer.
// Members may remove themselves; otherwise manage rights are required.
func (s *Service) RemoveUser(ctx context.Context, conversationID, actorID, userID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != store.KindGroup {
		return ErrOperationNotAllowed
	}

	if actorID != userID {
		allowed, err := s.CanManageParticipants(ctx, conversationID, actorID)
		if err != nil {
			return err
		}
		if !allowed {
			return ErrNotParticipant
		}
	}

	role, err := s.RoleOf(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if role == store.RoleOwner {
		return ErrOperationNotAllowed
	}

	return s.store.SetParticipantActive(ctx, conversationID, userID, false)
}

// SoftDelete tombstones a conversation, clearing live access immediately.
// The cleanup reconciler hard-deletes it after the retention window.
// Authorization matches DeleteConversation.
func (s *Service) SoftDelete(ctx context.Context, conversationID, actorID string) error {
	if err := s.authorizeDelete(ctx, conversationID, actorID); err != nil {
		return err
	}
	return s.store.SoftDeleteConversation(ctx, conversationID, time.Now().UTC())
}

// DeleteConversation removes a conversation and everything attached to it:
// messages first, then participant rows and the conversation row in one
// relational transaction. If the message purge fails, the relational rows
// stay untouched so the conversation remains recoverable.
func (s *Service) DeleteConversation(ctx context.Context, conversationID, actorID string) error {
	if err := s.authorizeDelete(ctx, conversationID, actorID); err != nil {
		return err
	}

	deleted, err := s.msgs.PurgeConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("purging conversation messages: %w", err)
	}

	if err := s.store.HardDeleteConversation(ctx, conversationID); err != nil {
		return err
	}

	s.logger.Info("conversation deleted",
		"conversation_id", conversationID,
		"actor", actorID,
		"messages_removed", deleted)
	return nil
}

// authorizeDelete applies the deletion rules: GROUP requires OWNER, DIRECT
// requires any active participant.
func (s *Service) authorizeDelete(ctx context.Context, conversationID, actorID string) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}

	role, err := s.RoleOf(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if conv.Kind == store.KindGroup && role != store.RoleOwner {
		return ErrNotOwner
	}
	return nil
}

// ActiveParticipants returns the active participant rows of a conversation.
// The pipeline uses this to seed receipt vectors at send time.
func (s *Service) ActiveParticipants(ctx context.Context, conversationID string) ([]*store.Participant, error) {
	return s.store.ListActiveParticipants(ctx, conversationID)
}

// MarkLastRead records the user's last-read instant on their participant row.
func (s *Service) MarkLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	return s.store.SetParticipantLastRead(ctx, conversationID, userID, at)
}
