// ABOUTME: Bounded multi-producer single-consumer message pipeline
// ABOUTME: Persists messages in FIFO order, seeds receipt vectors, and emits distribution events

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-im/parley/internal/metrics"
	"github.com/parley-im/parley/internal/msgstore"
	"github.com/parley-im/parley/internal/store"
)

// ErrEmptyDraft is returned for drafts missing a conversation or content
var ErrEmptyDraft = errors.New("message draft missing conversation or content")

// DefaultQueueCapacity bounds the queue when the config does not choose one
const DefaultQueueCapacity = 10_000

// persistTimeout bounds each store write so one slow insert cannot wedge the
// worker forever.
const persistTimeout = 10 * time.Second

// Distributor receives each persisted message for fanout to live
// connections. Wired at construction; the realtime hub implements it.
type Distributor interface {
	Distribute(msg *msgstore.Message)
}

// ParticipantSource enumerates the active participants of a conversation at
// send time. The conversation service implements it.
type ParticipantSource interface {
	ActiveParticipants(ctx context.Context, conversationID string) ([]*store.Participant, error)
}

// Pipeline decouples ingress latency from persistence latency. Producers
// enqueue drafts; exactly one worker per process dequeues in FIFO order,
// which is what guarantees per-instance ordering for persistence and fanout.
type Pipeline struct {
	queue  chan *msgstore.Message
	msgs   msgstore.Store
	parts  ParticipantSource
	dist   Distributor
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a pipeline with the given queue capacity. Call Start to launch
// the worker.
func New(capacity int, msgs msgstore.Store, parts ParticipantSource, dist Distributor, logger *slog.Logger) *Pipeline {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		queue:  make(chan *msgstore.Message, capacity),
		msgs:   msgs,
		parts:  parts,
		dist:   dist,
		logger: logger.With("component", "pipeline"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the single consumer worker. Safe to call once.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.worker()
}

func (p *Pipeline) worker() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.queue:
			metrics.PipelineDepth.Dec()
			p.process(msg)
		case <-p.stop:
			p.flush()
			return
		}
	}
}

// flush processes whatever is left in the queue without blocking for more.
func (p *Pipeline) flush() {
	for {
		select {
		case msg := <-p.queue:
			metrics.PipelineDepth.Dec()
			p.process(msg)
		default:
			return
		}
	}
}

// Submit enqueues a message draft. When the queue is full or the pipeline is
// stopped, the draft is processed synchronously on the caller's goroutine
// instead, trading ingress latency for delivery; the call then returns after
// fanout has been attempted.
//
// The enqueue happens under the mutex that Drain takes to flip stopped, so a
// send can never race the shutdown: every message is either in the queue
// before the stop signal (and flushed by the worker) or takes the
// synchronous path.
func (p *Pipeline) Submit(ctx context.Context, msg *msgstore.Message) error {
	if msg == nil || msg.ConversationID == "" || msg.Content == "" {
		return ErrEmptyDraft
	}

	p.mu.Lock()
	stopped := p.stopped
	if !stopped {
		select {
		case p.queue <- msg:
			p.mu.Unlock()
			metrics.PipelineEnqueued.Inc()
			metrics.PipelineDepth.Inc()
			return nil
		default:
			// Queue full, fall through to the synchronous path
		}
	}
	p.mu.Unlock()

	metrics.PipelineFallback.Inc()
	p.logger.Warn("queue unavailable, processing message synchronously",
		"conversation_id", msg.ConversationID,
		"stopped", stopped)
	p.process(msg)
	return nil
}

// process executes the per-message steps in order: default the status, seed
// the delivered-to vector from the active participants at send time, persist,
// and emit the distribution event.
func (p *Pipeline) process(msg *msgstore.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	now := time.Now().UTC()
	if msg.Status == "" {
		msg.Status = msgstore.StatusSent
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Type == "" {
		msg.Type = msgstore.TypeText
	}
	if msg.DeliveredTo == nil {
		msg.DeliveredTo = map[string]time.Time{}
	}
	if msg.ReadBy == nil {
		msg.ReadBy = map[string]time.Time{}
	}

	// Delivery-to-server semantics: every active participant other than the
	// sender gets a delivered entry at persist time. Failures here are
	// logged and do not abort the message.
	participants, err := p.parts.ActiveParticipants(ctx, msg.ConversationID)
	if err != nil {
		p.logger.Error("enumerating participants",
			"conversation_id", msg.ConversationID,
			"error", err)
	} else {
		for _, part := range participants {
			if part.UserID == msg.SenderID {
				continue
			}
			if _, ok := msg.DeliveredTo[part.UserID]; !ok {
				msg.DeliveredTo[part.UserID] = now
			}
		}
	}

	if err := p.msgs.Append(ctx, msg); err != nil {
		p.logger.Error("persisting message",
			"conversation_id", msg.ConversationID,
			"sender", msg.SenderID,
			"error", err)
		return
	}
	metrics.MessagesPersisted.Inc()

	if p.dist != nil {
		p.dist.Distribute(msg)
	}
}

// Drain stops accepting new messages, lets the worker finish the queued
// backlog, and waits for it up to the context deadline. The queue channel is
// never closed; the worker is told to stop through a separate signal so
// in-flight Submit calls cannot send on a closed channel.
func (p *Pipeline) Drain(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()

	if !started {
		// No worker to hand the backlog to; process it here.
		p.flush()
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
