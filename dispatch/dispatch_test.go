package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testdeck/testdeck/types"
)

type captureNotifier struct {
	mu    sync.Mutex
	sent  map[string]Notification
	fail  bool
	calls int
}

func (c *captureNotifier) Notify(_ context.Context, userID string, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return errors.New("delivery failed")
	}
	if c.sent == nil {
		c.sent = map[string]Notification{}
	}
	c.sent[userID] = n
	return nil
}

type captureIndexer struct {
	mu  sync.Mutex
	ids []string
}

func (c *captureIndexer) IndexExecution(_ context.Context, executionID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, executionID)
	return nil
}

type staticMembership struct {
	members []string
}

func (s staticMembership) ListMembers(context.Context, string) ([]string, error) {
	return s.members, nil
}

func TestDispatcherNotifiesMembersOnFailure(t *testing.T) {
	notifier := &captureNotifier{}
	indexer := &captureIndexer{}
	d := NewDispatcher(Config{
		Notifier:   notifier,
		Indexer:    indexer,
		Membership: staticMembership{members: []string{"alice", "bob"}},
	})

	d.Start(context.Background())
	d.Publish(RunCompletedEvent{
		SuiteRunID:   "sr1",
		SuiteName:    "Login",
		ProjectID:    "p1",
		Status:       types.RunStatusFailed,
		Executed:     3,
		Failed:       2,
		Blocked:      1,
		ExecutionIDs: []string{"e1", "e2", "e3"},
	})
	d.Stop()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.sent, 2)
	n := notifier.sent["alice"]
	assert.Contains(t, n.Title, "Login")
	assert.Contains(t, n.Message, "2 failed")
	assert.Equal(t, "sr1", n.SourceID)

	indexer.mu.Lock()
	defer indexer.mu.Unlock()
	sort.Strings(indexer.ids)
	assert.Equal(t, []string{"e1", "e2", "e3"}, indexer.ids)
}

func TestDispatcherSkipsNotificationOnPass(t *testing.T) {
	notifier := &captureNotifier{}
	indexer := &captureIndexer{}
	d := NewDispatcher(Config{
		Notifier:   notifier,
		Indexer:    indexer,
		Membership: staticMembership{members: []string{"alice"}},
	})

	d.Start(context.Background())
	d.Publish(RunCompletedEvent{
		SuiteRunID:   "sr1",
		Status:       types.RunStatusPassed,
		Executed:     1,
		ExecutionIDs: []string{"e1"},
	})
	d.Stop()

	notifier.mu.Lock()
	assert.Zero(t, notifier.calls, "passing runs do not notify")
	notifier.mu.Unlock()

	indexer.mu.Lock()
	assert.Len(t, indexer.ids, 1, "indexing happens regardless of outcome")
	indexer.mu.Unlock()
}

func TestDispatcherSurvivesNotifierFailure(t *testing.T) {
	notifier := &captureNotifier{fail: true}
	indexer := &captureIndexer{}
	d := NewDispatcher(Config{
		Notifier:   notifier,
		Indexer:    indexer,
		Membership: staticMembership{members: []string{"alice"}},
	})

	d.Start(context.Background())
	d.Publish(RunCompletedEvent{
		SuiteRunID:   "sr1",
		Status:       types.RunStatusFailed,
		Failed:       1,
		Executed:     1,
		ExecutionIDs: []string{"e1"},
	})
	d.Stop()

	notifier.mu.Lock()
	assert.Equal(t, 1, notifier.calls)
	notifier.mu.Unlock()

	// The indexing side effect still ran.
	indexer.mu.Lock()
	assert.Len(t, indexer.ids, 1)
	indexer.mu.Unlock()
}

func TestDispatcherPublishDropsWhenFull(t *testing.T) {
	d := NewDispatcher(Config{QueueSize: 1})

	// Not started, so the first event fills the queue and the second is
	// dropped without blocking.
	d.Publish(RunCompletedEvent{SuiteRunID: "sr1"})
	d.Publish(RunCompletedEvent{SuiteRunID: "sr2"})

	d.Start(context.Background())
	d.Stop()
}

func TestDispatcherPublishAfterStopDrops(t *testing.T) {
	notifier := &captureNotifier{}
	d := NewDispatcher(Config{
		Notifier:   notifier,
		Membership: staticMembership{members: []string{"alice"}},
	})
	d.Start(context.Background())
	d.Stop()

	// Late completions (a result recorded during shutdown) must be dropped,
	// not crash the process.
	assert.NotPanics(t, func() {
		d.Publish(RunCompletedEvent{
			SuiteRunID: "sr1",
			Status:     types.RunStatusFailed,
			Failed:     1,
			Executed:   1,
		})
	})

	notifier.mu.Lock()
	assert.Zero(t, notifier.calls)
	notifier.mu.Unlock()
}

func TestDispatcherStopDrainsQueuedEvents(t *testing.T) {
	indexer := &captureIndexer{}
	d := NewDispatcher(Config{Indexer: indexer})

	// Queued before the worker starts; Stop must still process it.
	d.Publish(RunCompletedEvent{SuiteRunID: "sr1", ExecutionIDs: []string{"e1"}})
	d.Start(context.Background())
	d.Stop()

	indexer.mu.Lock()
	assert.Equal(t, []string{"e1"}, indexer.ids)
	indexer.mu.Unlock()
}

func TestDispatcherStopIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{})
	d.Start(context.Background())
	d.Stop()
	d.Stop()
}
