package client

import (
	"sync"
)

type MergeOutcome int

const (
	// already present under its durable id
	MergeDuplicate MergeOutcome = iota
	// collapsed into a matching pending entity from the same author
	MergeEchoConfirmed
	// genuinely new, inserted at the new end
	MergeInserted
	// rejected before reaching the collection (no durable id)
	MergeDropped
)

func (self MergeOutcome) String() string {
	switch self {
	case MergeDuplicate:
		return "duplicate"
	case MergeEchoConfirmed:
		return "echo_confirmed"
	case MergeInserted:
		return "inserted"
	case MergeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// EntityCollection is the mutation surface shared by the flat store and the
// comment tree. Each operation is atomic with respect to the others, which
// is what keeps a pending entity and its confirmed counterpart collapsed
// into one slot when the http response and the realtime echo race.
type EntityCollection[T Entity] interface {
	// InsertNew adds a newly created or realtime-delivered entity at the
	// new end of the ordering.
	InsertNew(item T)
	// PrependBatch adds a batch of older entities, oldest first,
	// at the old end. Relative order inside the batch is preserved.
	PrependBatch(items []T)
	UpdateByTemporaryToken(token string, patch T) bool
	RemoveByTemporaryToken(token string) bool
	// ConfirmByTemporaryToken replaces the pending entity with the
	// confirmed one, retaining the token. If the durable id is already
	// present elsewhere the pending slot is dropped instead, so the entity
	// is never represented twice.
	ConfirmByTemporaryToken(token string, confirmed T) bool
	// FailByTemporaryToken flips a still pending entity to failed in one
	// step under the lock. An entity the realtime echo already confirmed is
	// left untouched and false is returned.
	FailByTemporaryToken(token string) bool
	// ResubmitByTemporaryToken flips a failed entity back to pending for a
	// retry. False when the entity is absent or not failed.
	ResubmitByTemporaryToken(token string) bool
	ContainsDurableId(id EntityId) bool
	GetByTemporaryToken(token string) (T, bool)
	// MergeConfirmed applies the realtime dedup policy:
	// drop known durable ids, collapse own pending echoes, insert the rest.
	MergeConfirmed(incoming T) MergeOutcome
	UpdateMonitor() *Monitor
}

// ordered oldest to newest
type EntityStore[T Entity] struct {
	orderedItems []T
	// temporary token -> index in orderedItems
	tokenIndexes map[string]int
	// durable id -> index in orderedItems
	durableIndexes map[EntityId]int
	monitor        *Monitor
	stateLock      sync.Mutex
}

func NewEntityStore[T Entity]() *EntityStore[T] {
	return &EntityStore[T]{
		orderedItems:   []T{},
		tokenIndexes:   map[string]int{},
		durableIndexes: map[EntityId]int{},
		monitor:        NewMonitor(),
	}
}

func (self *EntityStore[T]) UpdateMonitor() *Monitor {
	return self.monitor
}

func (self *EntityStore[T]) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.orderedItems)
}

// OrderedEntities returns a copy of the ordering, oldest to newest.
func (self *EntityStore[T]) OrderedEntities() []T {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	out := make([]T, len(self.orderedItems))
	copy(out, self.orderedItems)
	return out
}

// Append adds at the new end.
func (self *EntityStore[T]) Append(item T) {
	self.stateLock.Lock()
	i := len(self.orderedItems)
	self.orderedItems = append(self.orderedItems, item)
	self.indexItem(item, i)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
}

func (self *EntityStore[T]) InsertNew(item T) {
	self.Append(item)
}

func (self *EntityStore[T]) PrependBatch(items []T) {
	if len(items) == 0 {
		return
	}
	self.stateLock.Lock()
	next := make([]T, 0, len(items)+len(self.orderedItems))
	next = append(next, items...)
	next = append(next, self.orderedItems...)
	self.orderedItems = next
	self.rebuildIndexes()
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
}

// UpdateByTemporaryToken replaces the matching entity with `patch`.
// The token stays attached to the slot. Returns false if no entity has the
// token, which callers must treat as a no-op since a concurrent remove may
// have raced the update.
func (self *EntityStore[T]) UpdateByTemporaryToken(token string, patch T) bool {
	self.stateLock.Lock()
	i, ok := self.tokenIndexes[token]
	if !ok {
		self.stateLock.Unlock()
		return false
	}
	self.replaceAt(i, token, patch)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *EntityStore[T]) RemoveByTemporaryToken(token string) bool {
	self.stateLock.Lock()
	i, ok := self.tokenIndexes[token]
	if !ok {
		self.stateLock.Unlock()
		return false
	}
	self.removeAt(i)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *EntityStore[T]) ConfirmByTemporaryToken(token string, confirmed T) bool {
	self.stateLock.Lock()
	i, ok := self.tokenIndexes[token]
	if !ok {
		self.stateLock.Unlock()
		return false
	}
	if durableId, hasDurableId := confirmed.DurableId(); hasDurableId {
		if j, present := self.durableIndexes[durableId]; present && j != i {
			// the realtime echo landed first. Drop the pending slot.
			self.removeAt(i)
			self.stateLock.Unlock()
			self.monitor.NotifyAll()
			return true
		}
	}
	confirmed.SetStatus(StatusConfirmed)
	self.replaceAt(i, token, confirmed)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *EntityStore[T]) FailByTemporaryToken(token string) bool {
	return self.setStatusByToken(token, StatusPending, StatusFailed)
}

func (self *EntityStore[T]) ResubmitByTemporaryToken(token string) bool {
	return self.setStatusByToken(token, StatusFailed, StatusPending)
}

func (self *EntityStore[T]) setStatusByToken(token string, from EntityStatus, to EntityStatus) bool {
	self.stateLock.Lock()
	i, ok := self.tokenIndexes[token]
	if !ok || self.orderedItems[i].Status() != from {
		self.stateLock.Unlock()
		return false
	}
	next := self.orderedItems[i].CloneWithStatus(to).(T)
	self.replaceAt(i, token, next)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *EntityStore[T]) GetByTemporaryToken(token string) (T, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	i, ok := self.tokenIndexes[token]
	if !ok {
		var empty T
		return empty, false
	}
	return self.orderedItems[i], true
}

func (self *EntityStore[T]) ContainsDurableId(id EntityId) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	_, ok := self.durableIndexes[id]
	return ok
}

func (self *EntityStore[T]) MergeConfirmed(incoming T) MergeOutcome {
	durableId, hasDurableId := incoming.DurableId()
	if !hasDurableId {
		return MergeDropped
	}

	self.stateLock.Lock()
	if _, ok := self.durableIndexes[durableId]; ok {
		self.stateLock.Unlock()
		return MergeDuplicate
	}
	if i, ok := self.findPendingEcho(incoming); ok {
		token := self.orderedItems[i].TemporaryToken()
		incoming.SetStatus(StatusConfirmed)
		self.replaceAt(i, token, incoming)
		self.stateLock.Unlock()
		self.monitor.NotifyAll()
		return MergeEchoConfirmed
	}
	i := len(self.orderedItems)
	incoming.SetStatus(StatusConfirmed)
	self.orderedItems = append(self.orderedItems, incoming)
	self.indexItem(incoming, i)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return MergeInserted
}

// must be called with the state lock held

func (self *EntityStore[T]) findPendingEcho(incoming T) (int, bool) {
	for i, item := range self.orderedItems {
		if item.Status() != StatusPending {
			continue
		}
		if item.AuthorId() == incoming.AuthorId() && item.EchoKey() == incoming.EchoKey() {
			return i, true
		}
	}
	return 0, false
}

func (self *EntityStore[T]) replaceAt(i int, token string, patch T) {
	previous := self.orderedItems[i]
	if previousId, ok := previous.DurableId(); ok {
		delete(self.durableIndexes, previousId)
	}
	patch.SetTemporaryToken(token)
	self.orderedItems[i] = patch
	self.indexItem(patch, i)
}

func (self *EntityStore[T]) removeAt(i int) {
	item := self.orderedItems[i]
	if token := item.TemporaryToken(); token != "" {
		delete(self.tokenIndexes, token)
	}
	if durableId, ok := item.DurableId(); ok {
		delete(self.durableIndexes, durableId)
	}
	self.orderedItems = append(self.orderedItems[:i], self.orderedItems[i+1:]...)
	self.rebuildIndexes()
}

func (self *EntityStore[T]) indexItem(item T, i int) {
	if token := item.TemporaryToken(); token != "" {
		self.tokenIndexes[token] = i
	}
	if durableId, ok := item.DurableId(); ok {
		self.durableIndexes[durableId] = i
	}
}

func (self *EntityStore[T]) rebuildIndexes() {
	clear(self.tokenIndexes)
	clear(self.durableIndexes)
	for i, item := range self.orderedItems {
		self.indexItem(item, i)
	}
}
