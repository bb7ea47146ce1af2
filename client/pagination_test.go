package client

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
)

func cursorRef(cursor string) *string {
	return &cursor
}

func TestFetchOlderPrependsAndTracksCursor(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore[*Message]()
	pagination := NewPaginationCursor[*Message](ctx, store)

	loads := 0
	loader := func(ctx context.Context, cursor *string) (*Page[*Message], error) {
		loads += 1
		switch loads {
		case 1:
			assert.Equal(t, cursor, nil)
			return &Page[*Message]{
				Entities: []*Message{
					confirmedMessage(3, 1, "c"),
					confirmedMessage(4, 2, "d"),
				},
				NextCursor: cursorRef("c1"),
			}, nil
		case 2:
			assert.Equal(t, "c1", *cursor)
			return &Page[*Message]{
				Entities: []*Message{
					confirmedMessage(1, 1, "a"),
					confirmedMessage(2, 2, "b"),
				},
				NextCursor: nil,
			}, nil
		default:
			t.Fatal("loader called after exhaustion")
			return nil, nil
		}
	}

	err := pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{"c", "d"}, messageContents(store.OrderedEntities()))
	assert.Equal(t, false, pagination.Exhausted())

	// a realtime arrival lands at the new end between pages
	store.Append(confirmedMessage(5, 1, "e"))

	err = pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	// the older page lands at the old end. Everything else keeps its order.
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, messageContents(store.OrderedEntities()))
	assert.Equal(t, true, pagination.Exhausted())

	// exhausted. The loader is never called again.
	err = pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	assert.Equal(t, 2, loads)
}

func TestFetchOlderEmptyBatchNonNilCursor(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore[*Message]()
	pagination := NewPaginationCursor[*Message](ctx, store)

	loader := func(ctx context.Context, cursor *string) (*Page[*Message], error) {
		return &Page[*Message]{
			Entities:   []*Message{},
			NextCursor: cursorRef("c2"),
		}, nil
	}

	err := pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	// the cursor is the source of truth, not the batch size
	assert.Equal(t, false, pagination.Exhausted())
	assert.Equal(t, "c2", *pagination.CursorToken())
}

func TestFetchOlderErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore[*Message]()
	pagination := NewPaginationCursor[*Message](ctx, store)

	store.Append(confirmedMessage(1, 1, "a"))

	loads := 0
	loader := func(ctx context.Context, cursor *string) (*Page[*Message], error) {
		loads += 1
		if loads == 1 {
			return nil, errors.New("load failed")
		}
		assert.Equal(t, cursor, nil)
		return &Page[*Message]{
			Entities:   []*Message{confirmedMessage(2, 1, "b")},
			NextCursor: nil,
		}, nil
	}

	err := pagination.FetchOlder(loader)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, []string{"a"}, messageContents(store.OrderedEntities()))
	assert.Equal(t, false, pagination.Exhausted())
	assert.Equal(t, pagination.CursorToken(), nil)

	// retryable
	err = pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{"b", "a"}, messageContents(store.OrderedEntities()))
	assert.Equal(t, true, pagination.Exhausted())
}

func TestFetchOlderConcurrentGuard(t *testing.T) {
	ctx := context.Background()
	store := NewEntityStore[*Message]()
	pagination := NewPaginationCursor[*Message](ctx, store)

	started := make(chan struct{})
	release := make(chan struct{})
	loads := 0
	loader := func(ctx context.Context, cursor *string) (*Page[*Message], error) {
		loads += 1
		close(started)
		<-release
		return &Page[*Message]{NextCursor: nil}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- pagination.FetchOlder(loader)
	}()
	<-started

	// a second call while fetching is a no-op
	err := pagination.FetchOlder(loader)
	assert.Equal(t, err, nil)
	assert.Equal(t, 1, loads)

	close(release)
	assert.Equal(t, <-done, nil)
	assert.Equal(t, true, pagination.Exhausted())
}
