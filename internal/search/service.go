// ABOUTME: Full-text message search with literal-regex fallback and filtering
// ABOUTME: Sanitizes queries, gates on conversation access, and highlights matches

package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/parley-im/parley/internal/conversation"
	"github.com/parley-im/parley/internal/msgstore"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// candidateLimit caps the fetch when filters must be applied in memory.
	candidateLimit = 1000

	maxQueryLen = 200

	// contextRadius is the time window around a message for context lookups.
	contextRadius = 300 * time.Second
)

// Filters narrows search results after the text match. Sender matches as a
// case-insensitive substring of the sender username. The date range is
// inclusive on From and covers the whole day of To.
type Filters struct {
	Sender   string
	From     time.Time
	To       time.Time
	HasMedia *bool
}

func (f *Filters) empty() bool {
	return f == nil || (f.Sender == "" && f.From.IsZero() && f.To.IsZero() && f.HasMedia == nil)
}

// Page selects a result window. Zero values mean the first page at the
// default size; Size is capped.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = defaultPageSize
	}
	if p.Size > maxPageSize {
		p.Size = maxPageSize
	}
	return p
}

// Result is one page of matches, newest first, with match occurrences in the
// content wrapped in <mark> markers.
type Result struct {
	Messages []*msgstore.Message `json:"messages"`
	Page     int                 `json:"page"`
	Size     int                 `json:"size"`
	Query    string              `json:"query"`
}

// Service searches message content within a single conversation.
type Service struct {
	msgs   msgstore.Store
	conv   *conversation.Service
	logger *slog.Logger
}

// New creates a search service.
func New(msgs msgstore.Store, conv *conversation.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		msgs:   msgs,
		conv:   conv,
		logger: logger.With("component", "search"),
	}
}

// Sanitize normalizes a raw query: trims, strips quote and backslash
// characters, collapses internal whitespace, and truncates to 200 characters.
func Sanitize(query string) string {
	query = strings.TrimSpace(query)
	query = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '`', '\\':
			return -1
		}
		return r
	}, query)
	query = strings.Join(strings.Fields(query), " ")
	if runes := []rune(query); len(runes) > maxQueryLen {
		query = string(runes[:maxQueryLen])
	}
	return query
}

// Search returns messages in the conversation matching the query. A viewer
// without access gets an empty result, not an error, so search cannot be
// used to probe for conversations.
func (s *Service) Search(ctx context.Context, conversationID, viewerID, query string, filters *Filters, page Page) (*Result, error) {
	page = page.normalize()
	query = Sanitize(query)

	empty := &Result{Messages: []*msgstore.Message{}, Page: page.Number, Size: page.Size, Query: query}
	if query == "" {
		return empty, nil
	}

	allowed, err := s.conv.HasAccess(ctx, viewerID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		s.logger.Debug("search denied", "conversation_id", conversationID, "viewer_id", viewerID)
		return empty, nil
	}

	var matches []*msgstore.Message
	if filters.empty() {
		skip := (page.Number - 1) * page.Size
		matches, err = s.query(ctx, conversationID, query, skip, page.Size)
		if err != nil {
			return nil, err
		}
	} else {
		candidates, err := s.query(ctx, conversationID, query, 0, candidateLimit)
		if err != nil {
			return nil, err
		}
		matches = paginate(applyFilters(candidates, filters), page)
	}

	for _, m := range matches {
		m.Content = highlight(m.Content, query)
	}
	return &Result{Messages: matches, Page: page.Number, Size: page.Size, Query: query}, nil
}

// query tries the text index first and degrades to a literal scan when the
// backend rejects the query or the index is unavailable.
func (s *Service) query(ctx context.Context, conversationID, query string, skip, limit int) ([]*msgstore.Message, error) {
	matches, err := s.msgs.SearchText(ctx, conversationID, query, skip, limit)
	if err == nil {
		return matches, nil
	}
	s.logger.Warn("text search failed, falling back to literal scan",
		"conversation_id", conversationID, "error", err)

	matches, err = s.msgs.SearchLiteral(ctx, conversationID, query, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("literal search: %w", err)
	}
	return matches, nil
}

func applyFilters(msgs []*msgstore.Message, f *Filters) []*msgstore.Message {
	out := msgs[:0:0]
	sender := strings.ToLower(f.Sender)
	for _, m := range msgs {
		if sender != "" && !strings.Contains(strings.ToLower(m.SenderUsername), sender) {
			continue
		}
		if !f.From.IsZero() && m.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !m.Timestamp.Before(f.To.Add(24*time.Hour)) {
			continue
		}
		if f.HasMedia != nil && *f.HasMedia != (m.Type != msgstore.TypeText) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func paginate(msgs []*msgstore.Message, page Page) []*msgstore.Message {
	start := (page.Number - 1) * page.Size
	if start >= len(msgs) {
		return []*msgstore.Message{}
	}
	end := start + page.Size
	if end > len(msgs) {
		end = len(msgs)
	}
	return msgs[start:end]
}

// highlight wraps case-insensitive occurrences of the query in mark tags,
// preserving the original casing of the content. Matching is done rune by
// rune: case folding can change UTF-8 byte lengths, so byte offsets into a
// lowered copy would not be valid offsets into the original.
func highlight(content, query string) string {
	if query == "" {
		return content
	}
	needle := lowerRunes([]rune(query))
	if len(needle) == 0 {
		return content
	}

	runes := []rune(content)
	lowered := lowerRunes(runes)

	var b strings.Builder
	i := 0
	for i < len(runes) {
		if runesMatchAt(lowered, needle, i) {
			b.WriteString("<mark>")
			b.WriteString(string(runes[i : i+len(needle)]))
			b.WriteString("</mark>")
			i += len(needle)
			continue
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func runesMatchAt(haystack, needle []rune, at int) bool {
	if at+len(needle) > len(haystack) {
		return false
	}
	for k, r := range needle {
		if haystack[at+k] != r {
			return false
		}
	}
	return true
}

// Context returns a window of n messages centered on the target message,
// drawn from the conversation traffic within five minutes of it, oldest
// first. Viewers without access get an empty window.
func (s *Service) Context(ctx context.Context, messageID, viewerID string, n int) ([]*msgstore.Message, error) {
	if n <= 0 {
		n = defaultPageSize
	}

	target, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("loading message: %w", err)
	}

	allowed, err := s.conv.HasAccess(ctx, viewerID, target.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("checking access: %w", err)
	}
	if !allowed {
		return []*msgstore.Message{}, nil
	}

	window, err := s.msgs.ListAround(ctx, target.ConversationID, target.Timestamp, contextRadius)
	if err != nil {
		return nil, fmt.Errorf("loading context window: %w", err)
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	idx := -1
	for i, m := range window {
		if m.ID == target.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return []*msgstore.Message{target}, nil
	}

	lo := idx - n/2
	if lo < 0 {
		lo = 0
	}
	hi := lo + n
	if hi > len(window) {
		hi = len(window)
		if lo = hi - n; lo < 0 {
			lo = 0
		}
	}
	return window[lo:hi], nil
}
