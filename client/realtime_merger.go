package client

import (
	"github.com/golang/glog"
)

// RealtimeMerger folds confirmed entities from the push channel into a
// collection without ever representing an entity twice. In priority order:
//
//  1. an entity whose durable id is already present is a duplicate delivery
//     (or this device's own write, already confirmed) and is discarded
//  2. a pending entity from the same author with the same payload is the
//     server echo of our own optimistic write arriving before the http
//     response. It is confirmed in place, keeping its temporary token
//  3. anything else is new and lands at the new end of the ordering
//
// The echo match in (2) is author plus content. Two identical messages sent
// back to back can confirm the wrong slot. A client generated idempotency
// key echoed by the server would remove the ambiguity; the platform does not
// send one.
type RealtimeMerger[T Entity] struct {
	collection EntityCollection[T]
}

func NewRealtimeMerger[T Entity](collection EntityCollection[T]) *RealtimeMerger[T] {
	return &RealtimeMerger[T]{
		collection: collection,
	}
}

// MergeIncoming merges one confirmed entity from the push channel.
// Entities without a durable id are dropped. Never panics.
func (self *RealtimeMerger[T]) MergeIncoming(incoming T) MergeOutcome {
	outcome := self.collection.MergeConfirmed(incoming)
	switch outcome {
	case MergeDropped:
		glog.Infof("[rt]drop incoming entity\n")
	default:
		glog.V(2).Infof("[rt]merge = %s\n", outcome)
	}
	return outcome
}
