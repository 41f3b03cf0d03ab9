// ABOUTME: Cleanup reconciler removing orphaned and soft-deleted message data
// ABOUTME: Runs phases independently so one failure never blocks the rest

package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/store"
)

// DefaultRetentionDays is how long soft-deleted conversations keep their
// tombstone before hard deletion.
const DefaultRetentionDays = 30

// sampleLimit caps the example ids collected per finding in a dry run.
const sampleLimit = 5

// Finding describes one conversation's worth of removable data.
type Finding struct {
	ConversationID string   `json:"conversationId"`
	Kind           string   `json:"kind"` // orphan, soft_deleted, expired_tombstone
	MessageCount   int64    `json:"messageCount"`
	SampleIDs      []string `json:"sampleIds,omitempty"`
}

// Report summarizes one reconciler pass.
type Report struct {
	DryRun               bool      `json:"dryRun"`
	StartedAt            time.Time `json:"startedAt"`
	FinishedAt           time.Time `json:"finishedAt"`
	OrphanMessages       int64     `json:"orphanMessages"`
	SoftDeletedMessages  int64     `json:"softDeletedMessages"`
	ExpiredConversations int64     `json:"expiredConversations"`
	Findings             []Finding `json:"findings"`
	Errors               int       `json:"errors"`
}

// Reconciler removes message data that no longer belongs to a live
// conversation: orphans, messages of soft-deleted conversations, and
// conversations whose tombstone has outlived the retention window.
type Reconciler struct {
	users         store.Store
	msgs          msgstore.Store
	retentionDays int
	logger        *slog.Logger
}

// New creates a reconciler. retentionDays falls back to the default when
// zero or negative.
func New(users store.Store, msgs msgstore.Store, retentionDays int, logger *slog.Logger) *Reconciler {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		users:         users,
		msgs:          msgs,
		retentionDays: retentionDays,
		logger:        logger.With("component", "cleanup"),
	}
}

// Run executes one full pass. With dryRun set, nothing is mutated and the
// report carries counts and sample ids of what would be removed. Phase
// failures are logged and counted; they never abort the pass.
func (r *Reconciler) Run(ctx context.Context, dryRun bool) *Report {
	report := &Report{DryRun: dryRun, StartedAt: time.Now().UTC()}

	r.reapOrphans(ctx, dryRun, report)
	r.reapSoftDeleted(ctx, dryRun, report)

	report.FinishedAt = time.Now().UTC()
	r.logger.Info("cleanup pass finished",
		"dry_run", dryRun,
		"orphan_messages", report.OrphanMessages,
		"soft_deleted_messages", report.SoftDeletedMessages,
		"expired_conversations", report.ExpiredConversations,
		"errors", report.Errors,
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report
}

// reapOrphans deletes messages whose conversation row no longer exists.
// Soft-deleted conversations are not orphans; their messages are handled by
// the tombstone phase.
func (r *Reconciler) reapOrphans(ctx context.Context, dryRun bool, report *Report) {
	messageConvs, err := r.msgs.ListConversationIDs(ctx)
	if err != nil {
		r.fail(report, "listing message conversations", err)
		return
	}

	known := make(map[string]struct{})
	activeIDs, err := r.users.ListActiveConversationIDs(ctx)
	if err != nil {
		r.fail(report, "listing active conversations", err)
		return
	}
	for _, id := range activeIDs {
		known[id] = struct{}{}
	}
	tombstoned, err := r.users.ListSoftDeletedConversations(ctx)
	if err != nil {
		r.fail(report, "listing soft-deleted conversations", err)
		return
	}
	for _, c := range tombstoned {
		known[c.ID] = struct{}{}
	}

	for _, convID := range messageConvs {
		if _, ok := known[convID]; ok {
			continue
		}
		n, err := r.purge(ctx, dryRun, convID, "orphan", report)
		if err != nil {
			r.fail(report, "purging orphaned messages", err)
			continue
		}
		report.OrphanMessages += n
		if !dryRun && n > 0 {
			metrics.CleanupRemoved.WithLabelValues("orphan_message").Add(float64(n))
		}
	}
}

// reapSoftDeleted purges messages of every tombstoned conversation and hard
// deletes conversations whose tombstone is past the retention window.
func (r *Reconciler) reapSoftDeleted(ctx context.Context, dryRun bool, report *Report) {
	tombstoned, err := r.users.ListSoftDeletedConversations(ctx)
	if err != nil {
		r.fail(report, "listing soft-deleted conversations", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	for _, conv := range tombstoned {
		// Messages go immediately, regardless of retention
		n, err := r.purge(ctx, dryRun, conv.ID, "soft_deleted", report)
		if err != nil {
			r.fail(report, "purging soft-deleted messages", err)
			continue
		}
		report.SoftDeletedMessages += n
		if !dryRun && n > 0 {
			metrics.CleanupRemoved.WithLabelValues("tombstone_message").Add(float64(n))
		}

		if conv.DeletedAt == nil || conv.DeletedAt.After(cutoff) {
			continue
		}
		report.ExpiredConversations++
		if dryRun {
			report.Findings = append(report.Findings, Finding{
				ConversationID: conv.ID,
				Kind:           "expired_tombstone",
			})
			continue
		}
		if err := r.users.HardDeleteConversation(ctx, conv.ID); err != nil {
			r.fail(report, "hard-deleting expired conversation", err)
			report.ExpiredConversations--
			continue
		}
		metrics.CleanupRemoved.WithLabelValues("conversation").Inc()
		r.logger.Info("expired conversation removed", "conversation_id", conv.ID)
	}
}

// purge removes (or, in dry-run, counts) every message of one conversation.
func (r *Reconciler) purge(ctx context.Context, dryRun bool, convID, kind string, report *Report) (int64, error) {
	if dryRun {
		n, err := r.msgs.CountByConversation(ctx, convID)
		if err != nil {
			return 0, fmt.Errorf("counting %s messages of %s: %w", kind, convID, err)
		}
		if n == 0 {
			return 0, nil
		}
		samples, err := r.msgs.SampleIDs(ctx, convID, sampleLimit)
		if err != nil {
			r.logger.Warn("sampling message ids", "conversation_id", convID, "error", err)
		}
		report.Findings = append(report.Findings, Finding{
			ConversationID: convID,
			Kind:           kind,
			MessageCount:   n,
			SampleIDs:      samples,
		})
		return n, nil
	}

	n, err := r.msgs.PurgeConversation(ctx, convID)
	if err != nil {
		return 0, fmt.Errorf("purging %s messages of %s: %w", kind, convID, err)
	}
	return n, nil
}

func (r *Reconciler) fail(report *Report, what string, err error) {
	report.Errors++
	r.logger.Error("cleanup phase failure", "phase", what, "error", err)
}
