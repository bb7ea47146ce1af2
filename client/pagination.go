package client

import (
	"context"
	"sync"
)

// Page is one page of older history. `NextCursor` nil means the history is
// exhausted. An empty entity list with a non nil cursor is a valid page and
// does not mean exhaustion.
type Page[T Entity] struct {
	Entities   []T
	NextCursor *string
}

// LoaderFunc fetches the page of history older than `cursor`.
// A nil cursor requests the newest page. Entities are oldest first.
type LoaderFunc[T Entity] func(ctx context.Context, cursor *string) (*Page[T], error)

// PaginationCursor manages backward pagination for one collection.
// Pages land at the old end of the ordering while realtime entities land at
// the new end, so the two can be in flight at the same time without
// disturbing each other.
type PaginationCursor[T Entity] struct {
	ctx        context.Context
	collection EntityCollection[T]

	stateLock   sync.Mutex
	cursorToken *string
	exhausted   bool
	fetching    bool
}

func NewPaginationCursor[T Entity](ctx context.Context, collection EntityCollection[T]) *PaginationCursor[T] {
	return &PaginationCursor[T]{
		ctx:        ctx,
		collection: collection,
	}
}

// FetchOlder loads and prepends the next older page.
// A call while a fetch is in flight, or after exhaustion, is a no-op.
// On error the cursor state and the collection are left exactly as before.
func (self *PaginationCursor[T]) FetchOlder(loader LoaderFunc[T]) error {
	self.stateLock.Lock()
	if self.exhausted || self.fetching {
		self.stateLock.Unlock()
		return nil
	}
	self.fetching = true
	cursor := self.cursorToken
	self.stateLock.Unlock()

	page, err := loader(self.ctx, cursor)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.fetching = false
	if err != nil {
		return err
	}

	self.collection.PrependBatch(page.Entities)
	self.cursorToken = page.NextCursor
	// the cursor is the source of truth for exhaustion, not the batch size
	self.exhausted = page.NextCursor == nil
	return nil
}

func (self *PaginationCursor[T]) Exhausted() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.exhausted
}

func (self *PaginationCursor[T]) Fetching() bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.fetching
}

func (self *PaginationCursor[T]) CursorToken() *string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.cursorToken
}
