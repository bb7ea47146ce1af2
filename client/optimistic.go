package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// RemoteWriteFunc issues the create request for a draft entity and returns
// the server's canonical version with its durable id. Any error is treated
// uniformly as a write failure.
type RemoteWriteFunc[T Entity] func(ctx context.Context, draft T) (T, error)

type SubmitCallback[T Entity] func(confirmed T, err error)

type pendingWrite[T Entity] struct {
	draft       T
	remoteWrite RemoteWriteFunc[T]
}

// OptimisticMutator inserts a pending entity synchronously, runs the remote
// write off the caller's goroutine, and reconciles the outcome back into the
// collection by temporary token. Any number of submits can be in flight at
// once. Each reconciliation only touches its own token, so out of order
// confirmation is fine.
type OptimisticMutator[T Entity] struct {
	ctx        context.Context
	collection EntityCollection[T]

	stateLock sync.Mutex
	// token -> write, retained while pending or failed so retry can
	// resubmit the original payload verbatim
	pendingWrites map[string]*pendingWrite[T]
}

func NewOptimisticMutator[T Entity](ctx context.Context, collection EntityCollection[T]) *OptimisticMutator[T] {
	return &OptimisticMutator[T]{
		ctx:           ctx,
		collection:    collection,
		pendingWrites: map[string]*pendingWrite[T]{},
	}
}

// Submit inserts `draft` as pending and starts the remote write.
// The insert happens before Submit returns, so readers see the entity
// immediately. The returned token addresses the entity for retry or remove.
func (self *OptimisticMutator[T]) Submit(draft T, remoteWrite RemoteWriteFunc[T], callback SubmitCallback[T]) string {
	token := NewTemporaryToken()
	draft.SetTemporaryToken(token)
	draft.SetStatus(StatusPending)

	write := &pendingWrite[T]{
		draft:       draft,
		remoteWrite: remoteWrite,
	}
	self.stateLock.Lock()
	self.pendingWrites[token] = write
	self.stateLock.Unlock()

	self.collection.InsertNew(draft)

	go self.resolve(token, write, callback)
	return token
}

// Retry resubmits a failed entity with its original payload.
// The status flips back to pending before the write starts.
func (self *OptimisticMutator[T]) Retry(token string, callback SubmitCallback[T]) error {
	self.stateLock.Lock()
	write, ok := self.pendingWrites[token]
	self.stateLock.Unlock()
	if !ok {
		return fmt.Errorf("no retryable write for token %s", token)
	}

	if !self.collection.ResubmitByTemporaryToken(token) {
		// confirmed or removed since the failure. Resubmitting would create
		// a duplicate on the server.
		return fmt.Errorf("no failed entity for token %s", token)
	}

	go self.resolve(token, write, callback)
	return nil
}

// Remove deletes the entity. No network call is made. An in flight write for
// the token resolves into nothing.
func (self *OptimisticMutator[T]) Remove(token string) {
	self.stateLock.Lock()
	delete(self.pendingWrites, token)
	self.stateLock.Unlock()

	self.collection.RemoveByTemporaryToken(token)
}

func (self *OptimisticMutator[T]) resolve(token string, write *pendingWrite[T], callback SubmitCallback[T]) {
	confirmed, err := write.remoteWrite(self.ctx, write.draft)

	if self.ctx.Err() != nil {
		// the owner is gone. Do not touch a detached collection.
		return
	}

	if err != nil {
		glog.V(1).Infof("[opt]write failed %s = %s\n", token, err)
		if !self.collection.FailByTemporaryToken(token) {
			// the realtime echo confirmed the entity, or it was removed.
			// nothing is left to retry, so drop the kept draft.
			self.stateLock.Lock()
			delete(self.pendingWrites, token)
			self.stateLock.Unlock()
		}
		if callback != nil {
			var empty T
			callback(empty, err)
		}
		return
	}

	self.stateLock.Lock()
	delete(self.pendingWrites, token)
	self.stateLock.Unlock()

	// if the realtime echo already confirmed this entity,
	// ConfirmByTemporaryToken drops the pending slot instead of duplicating
	self.collection.ConfirmByTemporaryToken(token, confirmed)
	if callback != nil {
		callback(confirmed, nil)
	}
}
