package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_Emit(t *testing.T) {
	t.Run("stamps id and timestamp", func(t *testing.T) {
		inbox := make(chan Event, 1)
		publisher := NewPublisher(inbox, nil)

		publisher.Emit(Event{Source: "ofac-sdn", Action: ActionRunStarted})

		event := <-inbox
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	})

	t.Run("drops instead of blocking when the inbox is full", func(t *testing.T) {
		inbox := make(chan Event, 1)
		publisher := NewPublisher(inbox, nil)

		done := make(chan struct{})
		go func() {
			defer close(done)
			publisher.Emit(Event{Source: "ofac-sdn", Action: ActionRunStarted})
			publisher.Emit(Event{Source: "ofac-sdn", Action: ActionRunCompleted})
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("emit blocked on a full inbox")
		}
	})

	t.Run("nil publisher is a no-op", func(t *testing.T) {
		var publisher *Publisher
		publisher.Emit(Event{Source: "ofac-sdn", Action: ActionRunStarted})
	})
}

func TestWorker_Run(t *testing.T) {
	t.Run("persists events until cancelled", func(t *testing.T) {
		store := NewInMemoryStore()
		inbox := make(chan Event)
		worker := NewWorker(store, inbox, nil)

		ctx, cancel := context.WithCancel(context.Background())
		workerDone := make(chan error, 1)
		go func() { workerDone <- worker.Run(ctx) }()

		inbox <- Event{ID: "1", Source: "ofac-sdn", Action: ActionRunStarted}
		inbox <- Event{ID: "2", Source: "ofac-sdn", Action: ActionRunCompleted}

		require.Eventually(t, func() bool {
			events, err := store.ListRecent(context.Background(), 10)
			return err == nil && len(events) == 2
		}, time.Second, 10*time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-workerDone, context.Canceled)
	})

	t.Run("append failure does not stop the worker", func(t *testing.T) {
		store := &flakyStore{failFirst: true, InMemoryStore: NewInMemoryStore()}
		inbox := make(chan Event)
		worker := NewWorker(store, inbox, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = worker.Run(ctx) }()

		inbox <- Event{ID: "1", Source: "ofac-sdn", Action: ActionRunFailed}
		inbox <- Event{ID: "2", Source: "ofac-sdn", Action: ActionRunCompleted}

		require.Eventually(t, func() bool {
			events, err := store.ListRecent(context.Background(), 10)
			return err == nil && len(events) == 1 && events[0].ID == "2"
		}, time.Second, 10*time.Millisecond)
	})
}

type flakyStore struct {
	*InMemoryStore
	failFirst bool
}

func (s *flakyStore) Append(ctx context.Context, event Event) error {
	if s.failFirst {
		s.failFirst = false
		return errors.New("transient store failure")
	}
	return s.InMemoryStore.Append(ctx, event)
}

func TestInMemoryStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, store.Append(ctx, Event{ID: id, Source: "ofac-sdn", Action: ActionRunCompleted}))
	}

	events, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "3", events[0].ID, "newest first")
	assert.Equal(t, "2", events[1].ID)
}

type fakeOutbox struct {
	pending   []Event
	published []string
}

func (o *fakeOutbox) Unpublished(_ context.Context, limit int) ([]Event, error) {
	if limit > len(o.pending) {
		limit = len(o.pending)
	}
	return o.pending[:limit], nil
}

func (o *fakeOutbox) MarkPublished(_ context.Context, ids []string) error {
	o.published = append(o.published, ids...)
	remaining := o.pending[:0]
	for _, event := range o.pending {
		keep := true
		for _, id := range ids {
			if event.ID == id {
				keep = false
				break
			}
		}
		if keep {
			remaining = append(remaining, event)
		}
	}
	o.pending = remaining
	return nil
}

type fakeSink struct {
	records [][]byte
	failOn  int
}

func (s *fakeSink) Publish(_ context.Context, _ []byte, value []byte) error {
	if s.failOn > 0 && len(s.records)+1 == s.failOn {
		return errors.New("broker unavailable")
	}
	s.records = append(s.records, value)
	return nil
}

func TestKafkaPublisher_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks the whole batch", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []Event{
			{ID: "1", Source: "ofac-sdn", Action: ActionRunStarted},
			{ID: "2", Source: "ofac-sdn", Action: ActionRunCompleted},
		}}
		sink := &fakeSink{}
		publisher := NewKafkaPublisher(outbox, sink, time.Second, nil)

		require.NoError(t, publisher.Drain(ctx))
		assert.Len(t, sink.records, 2)
		assert.Equal(t, []string{"1", "2"}, outbox.published)
		assert.Empty(t, outbox.pending)
	})

	t.Run("broker failure keeps unpublished rows for retry", func(t *testing.T) {
		outbox := &fakeOutbox{pending: []Event{
			{ID: "1", Source: "ofac-sdn", Action: ActionRunStarted},
			{ID: "2", Source: "ofac-sdn", Action: ActionRunCompleted},
		}}
		sink := &fakeSink{failOn: 2}
		publisher := NewKafkaPublisher(outbox, sink, time.Second, nil)

		require.Error(t, publisher.Drain(ctx))
		assert.Equal(t, []string{"1"}, outbox.published, "the delivered prefix is stamped")
		require.Len(t, outbox.pending, 1)
		assert.Equal(t, "2", outbox.pending[0].ID)
	})

	t.Run("empty outbox is a no-op", func(t *testing.T) {
		sink := &fakeSink{}
		publisher := NewKafkaPublisher(&fakeOutbox{}, sink, time.Second, nil)
		require.NoError(t, publisher.Drain(ctx))
		assert.Empty(t, sink.records)
	})
}
