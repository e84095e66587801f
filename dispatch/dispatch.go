// Package dispatch holds the collaborator interfaces the engine depends on
// (audit log, notifier, search indexer, project membership) and the
// asynchronous dispatcher that fans suite-run completion events out to them.
//
// Collaborator failures never propagate back into the engine: the core write
// stays durable even when ancillary systems are degraded. Instead of
// swallowing errors at each call site, completion side effects go through an
// explicit event queue consumed by a worker, so failures are at least
// visible in the logs and the queue depth is observable.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/testdeck/testdeck/metrics"
	"github.com/testdeck/testdeck/types"
)

// AuditEntry describes one audited action.
type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceID   string
	ProjectID    string
	Description  string
	OldValues    map[string]any
	NewValues    map[string]any
}

// AuditLog records platform actions. Persistence mechanics are external.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Notification is the payload delivered to one user.
type Notification struct {
	Title      string
	Message    string
	Type       string
	SourceType string
	SourceID   string
	ActionURL  string
}

// Notifier delivers notifications. Delivery mechanics are external.
type Notifier interface {
	Notify(ctx context.Context, userID string, n Notification) error
}

// SearchIndexer indexes executions for search. Best-effort.
type SearchIndexer interface {
	IndexExecution(ctx context.Context, executionID, projectID string) error
}

// ProjectMembership resolves the members of a project, used as the
// recipient list for failure notifications.
type ProjectMembership interface {
	ListMembers(ctx context.Context, projectID string) ([]string, error)
}

// RunCompletedEvent is published when a suite-run reaches a terminal status.
type RunCompletedEvent struct {
	SuiteRunID   string
	SuiteID      string
	SuiteName    string
	ProjectID    string
	Status       types.RunStatus
	Executed     int
	Failed       int
	Blocked      int
	ExecutionIDs []string
}

// Publisher is the aggregator-facing side of the dispatcher.
type Publisher interface {
	Publish(event RunCompletedEvent)
}

// Config holds configuration for creating a Dispatcher.
type Config struct {
	Notifier   Notifier
	Indexer    SearchIndexer
	Membership ProjectMembership
	Log        *slog.Logger

	// QueueSize bounds the in-flight event queue; Publish drops (and logs)
	// when it is full. Workers bounds the per-event fan-out goroutines.
	QueueSize int
	Workers   int
}

// Dispatcher consumes run-completion events and performs the notification
// and indexing side effects.
type Dispatcher struct {
	notifier   Notifier
	indexer    SearchIndexer
	membership ProjectMembership
	log        *slog.Logger
	workers    int

	queue chan RunCompletedEvent
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewDispatcher creates a dispatcher. Nil collaborators default to no-ops.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	if cfg.Indexer == nil {
		cfg.Indexer = NopIndexer{}
	}
	if cfg.Membership == nil {
		cfg.Membership = NopMembership{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Dispatcher{
		notifier:   cfg.Notifier,
		indexer:    cfg.Indexer,
		membership: cfg.Membership,
		log:        cfg.Log,
		workers:    cfg.Workers,
		queue:      make(chan RunCompletedEvent, cfg.QueueSize),
		done:       make(chan struct{}),
	}
}

// Start begins consuming events until Stop is called or ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case event := <-d.queue:
				d.handle(ctx, event)
			case <-d.done:
				// Drain what is already queued, then exit.
				for {
					select {
					case event := <-d.queue:
						d.handle(ctx, event)
					default:
						return
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop signals shutdown and waits for queued events to drain. The queue
// channel itself is never closed; a late Publish drops instead of panicking.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Publish enqueues an event without blocking. A full queue or a stopped
// dispatcher drops the event; side effects are best-effort by contract.
func (d *Dispatcher) Publish(event RunCompletedEvent) {
	select {
	case <-d.done:
		d.log.Warn("dispatcher stopped, dropping run-completed event",
			"suiteRunID", event.SuiteRunID)
		metrics.RecordError("dispatch_stopped")
		return
	default:
	}
	select {
	case d.queue <- event:
	default:
		d.log.Warn("dispatch queue full, dropping run-completed event",
			"suiteRunID", event.SuiteRunID)
		metrics.RecordError("dispatch_queue_full")
	}
}

// handle performs the side effects for one event. Every failure is logged
// and dropped.
func (d *Dispatcher) handle(ctx context.Context, event RunCompletedEvent) {
	p := pool.New().WithMaxGoroutines(d.workers)

	if event.Failed > 0 || event.Blocked > 0 {
		members, err := d.membership.ListMembers(ctx, event.ProjectID)
		if err != nil {
			d.log.Error("failed to resolve project members for failure notification",
				"projectID", event.ProjectID, "err", err)
			metrics.RecordError("membership_lookup_failed")
		}
		notification := Notification{
			Title: fmt.Sprintf("Suite run failed: %s", event.SuiteName),
			Message: fmt.Sprintf("%d failed, %d blocked out of %d executed",
				event.Failed, event.Blocked, event.Executed),
			Type:       "suite_run_failed",
			SourceType: "suite_run",
			SourceID:   event.SuiteRunID,
			ActionURL:  fmt.Sprintf("/suite-runs/%s", event.SuiteRunID),
		}
		for _, member := range members {
			member := member
			p.Go(func() {
				if err := d.notifier.Notify(ctx, member, notification); err != nil {
					d.log.Error("failed to deliver failure notification",
						"userID", member, "suiteRunID", event.SuiteRunID, "err", err)
					metrics.RecordError("notification_failed")
					return
				}
				metrics.RecordNotification(event.ProjectID)
			})
		}
	}

	for _, executionID := range event.ExecutionIDs {
		executionID := executionID
		p.Go(func() {
			if err := d.indexer.IndexExecution(ctx, executionID, event.ProjectID); err != nil {
				d.log.Error("failed to index execution",
					"executionID", executionID, "err", err)
				metrics.RecordError("search_index_failed")
			}
		})
	}

	p.Wait()
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, Notification) error { return nil }

// NopIndexer discards indexing requests.
type NopIndexer struct{}

func (NopIndexer) IndexExecution(context.Context, string, string) error { return nil }

// NopMembership resolves every project to no members.
type NopMembership struct{}

func (NopMembership) ListMembers(context.Context, string) ([]string, error) { return nil, nil }

// NopAuditLog discards audit entries.
type NopAuditLog struct{}

func (NopAuditLog) Record(context.Context, AuditEntry) error { return nil }

// LogAuditLog writes audit entries to the structured log. It is the default
// collaborator when no external audit sink is wired.
type LogAuditLog struct {
	Log *slog.Logger
}

func (l LogAuditLog) Record(_ context.Context, entry AuditEntry) error {
	l.Log.Info("audit",
		"action", entry.Action,
		"resourceType", entry.ResourceType,
		"resourceID", entry.ResourceID,
		"projectID", entry.ProjectID,
		"description", entry.Description,
	)
	return nil
}
