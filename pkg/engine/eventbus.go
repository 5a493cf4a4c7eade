package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/workflowkit/engine/pkg/models"
)

// eventBus is an ExecutionNotifier that fans lifecycle events out to
// subscribers instead of discarding them, backing subscribe/unsubscribe
// (§6.1). Each subscription is scoped to a single execution ID.
type eventBus struct {
	mu          sync.RWMutex
	bySub       map[string]chan ExecutionEvent
	subExecID   map[string]string
	byExecution map[string]map[string]struct{}
	nextID      int64
}

func newEventBus() *eventBus {
	return &eventBus{
		bySub:       make(map[string]chan ExecutionEvent),
		subExecID:   make(map[string]string),
		byExecution: make(map[string]map[string]struct{}),
	}
}

// Notify implements ExecutionNotifier. A full subscriber channel drops the
// event rather than blocking execution.
func (b *eventBus) Notify(ctx context.Context, event ExecutionEvent) {
	b.mu.RLock()
	subs := b.byExecution[event.ExecutionID]
	chans := make([]chan ExecutionEvent, 0, len(subs))
	for id := range subs {
		chans = append(chans, b.bySub[id])
	}
	b.mu.RUnlock()

	for _, ch := range chans {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber for an execution ID and returns its
// subscription ID plus a receive-only channel of events for that execution.
func (b *eventBus) Subscribe(executionID string) (string, <-chan ExecutionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("sub-%d", atomic.AddInt64(&b.nextID, 1))
	ch := make(chan ExecutionEvent, 64)

	b.bySub[id] = ch
	b.subExecID[id] = executionID
	if b.byExecution[executionID] == nil {
		b.byExecution[executionID] = make(map[string]struct{})
	}
	b.byExecution[executionID][id] = struct{}{}

	return id, ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *eventBus) Unsubscribe(subscriptionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.bySub[subscriptionID]
	if !ok {
		return models.ErrSubscriberNotFound
	}

	executionID := b.subExecID[subscriptionID]
	delete(b.byExecution[executionID], subscriptionID)
	if len(b.byExecution[executionID]) == 0 {
		delete(b.byExecution, executionID)
	}
	delete(b.subExecID, subscriptionID)
	delete(b.bySub, subscriptionID)
	close(ch)

	return nil
}
