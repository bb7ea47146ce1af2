package client

import (
	"sync"
)

// CommentTree is the nested counterpart of EntityStore for threaded
// comments. Children nest recursively via `Comment.Children` with no depth
// limit. Every lookup is a full recursive descent, so reconciliation works
// the same at any depth.
//
// Roots are ordered oldest to newest. Children keep their server order and
// new replies append at the end of their parent's children.
type CommentTree struct {
	roots []*Comment
	// durable ids present anywhere in the tree
	durableIds map[EntityId]bool
	monitor    *Monitor
	stateLock  sync.Mutex
}

func NewCommentTree() *CommentTree {
	return &CommentTree{
		roots:      []*Comment{},
		durableIds: map[EntityId]bool{},
		monitor:    NewMonitor(),
	}
}

func (self *CommentTree) UpdateMonitor() *Monitor {
	return self.monitor
}

// OrderedEntities returns a copy of the root list. Children are shared.
func (self *CommentTree) OrderedEntities() []*Comment {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	out := make([]*Comment, len(self.roots))
	copy(out, self.roots)
	return out
}

// Flatten returns every comment in the tree in depth first order.
func (self *CommentTree) Flatten() []*Comment {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	out := []*Comment{}
	var descend func(nodes []*Comment)
	descend = func(nodes []*Comment) {
		for _, node := range nodes {
			out = append(out, node)
			descend(node.Children)
		}
	}
	descend(self.roots)
	return out
}

func (self *CommentTree) Len() int {
	return len(self.Flatten())
}

// InsertNew attaches the comment under its parent, or as a new root when it
// has none. A missing parent is a silent no-op: the parent may have been
// removed concurrently or may sit beyond a pagination gap.
func (self *CommentTree) InsertNew(item *Comment) {
	self.stateLock.Lock()
	inserted := self.insert(item)
	self.stateLock.Unlock()
	if inserted {
		self.monitor.NotifyAll()
	}
}

// InsertAtParent attaches `node` at the end of the parent's children,
// anywhere in the tree. Returns false when the parent is not present.
func (self *CommentTree) InsertAtParent(parentId EntityId, node *Comment) bool {
	self.stateLock.Lock()
	parent := findByDurableId(self.roots, parentId)
	if parent == nil {
		self.stateLock.Unlock()
		return false
	}
	parent.Children = append(parent.Children, node)
	self.indexSubtree(node)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *CommentTree) PrependBatch(items []*Comment) {
	if len(items) == 0 {
		return
	}
	self.stateLock.Lock()
	next := make([]*Comment, 0, len(items)+len(self.roots))
	next = append(next, items...)
	next = append(next, self.roots...)
	self.roots = next
	for _, item := range items {
		self.indexSubtree(item)
	}
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
}

func (self *CommentTree) UpdateByTemporaryToken(token string, patch *Comment) bool {
	self.stateLock.Lock()
	ok := self.update(token, patch)
	self.stateLock.Unlock()
	if ok {
		self.monitor.NotifyAll()
	}
	return ok
}

func (self *CommentTree) RemoveByTemporaryToken(token string) bool {
	self.stateLock.Lock()
	ok := self.remove(token)
	self.stateLock.Unlock()
	if ok {
		self.monitor.NotifyAll()
	}
	return ok
}

func (self *CommentTree) ConfirmByTemporaryToken(token string, confirmed *Comment) bool {
	self.stateLock.Lock()
	node := findByToken(self.roots, token)
	if node == nil {
		self.stateLock.Unlock()
		return false
	}
	if durableId, hasDurableId := confirmed.DurableId(); hasDurableId {
		if self.durableIds[durableId] && findByDurableId(self.roots, durableId) != node {
			// the realtime echo landed first. Drop the pending slot.
			self.remove(token)
			self.stateLock.Unlock()
			self.monitor.NotifyAll()
			return true
		}
	}
	confirmed.SetStatus(StatusConfirmed)
	self.update(token, confirmed)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *CommentTree) FailByTemporaryToken(token string) bool {
	return self.setStatusByToken(token, StatusPending, StatusFailed)
}

func (self *CommentTree) ResubmitByTemporaryToken(token string) bool {
	return self.setStatusByToken(token, StatusFailed, StatusPending)
}

func (self *CommentTree) setStatusByToken(token string, from EntityStatus, to EntityStatus) bool {
	self.stateLock.Lock()
	node := findByToken(self.roots, token)
	if node == nil || node.Status() != from {
		self.stateLock.Unlock()
		return false
	}
	next := node.CloneWithStatus(to).(*Comment)
	self.update(token, next)
	self.stateLock.Unlock()
	self.monitor.NotifyAll()
	return true
}

func (self *CommentTree) ContainsDurableId(id EntityId) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.durableIds[id]
}

func (self *CommentTree) GetByTemporaryToken(token string) (*Comment, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	node := findByToken(self.roots, token)
	return node, node != nil
}

func (self *CommentTree) MergeConfirmed(incoming *Comment) MergeOutcome {
	durableId, hasDurableId := incoming.DurableId()
	if !hasDurableId {
		return MergeDropped
	}

	self.stateLock.Lock()
	if self.durableIds[durableId] {
		self.stateLock.Unlock()
		return MergeDuplicate
	}
	if pending := findPendingEchoNode(self.roots, incoming); pending != nil {
		incoming.SetStatus(StatusConfirmed)
		self.update(pending.TemporaryToken(), incoming)
		self.stateLock.Unlock()
		self.monitor.NotifyAll()
		return MergeEchoConfirmed
	}
	incoming.SetStatus(StatusConfirmed)
	inserted := self.insert(incoming)
	self.stateLock.Unlock()
	if inserted {
		self.monitor.NotifyAll()
		return MergeInserted
	}
	// parent beyond a pagination gap
	return MergeDropped
}

// must be called with the state lock held

func (self *CommentTree) insert(item *Comment) bool {
	if item.ParentCommentId == nil {
		self.roots = append(self.roots, item)
		self.indexSubtree(item)
		return true
	}
	parent := findByDurableId(self.roots, *item.ParentCommentId)
	if parent == nil {
		return false
	}
	parent.Children = append(parent.Children, item)
	self.indexSubtree(item)
	return true
}

func (self *CommentTree) update(token string, patch *Comment) bool {
	var ok bool
	self.roots, ok = updateByToken(self.roots, token, patch, self)
	return ok
}

func (self *CommentTree) remove(token string) bool {
	var ok bool
	self.roots, ok = removeByToken(self.roots, token, self)
	return ok
}

func (self *CommentTree) indexSubtree(node *Comment) {
	if durableId, ok := node.DurableId(); ok {
		self.durableIds[durableId] = true
	}
	for _, child := range node.Children {
		self.indexSubtree(child)
	}
}

func (self *CommentTree) unindexSubtree(node *Comment) {
	if durableId, ok := node.DurableId(); ok {
		delete(self.durableIds, durableId)
	}
	for _, child := range node.Children {
		self.unindexSubtree(child)
	}
}

// recursive traversal helpers

func findByToken(nodes []*Comment, token string) *Comment {
	for _, node := range nodes {
		if node.TemporaryToken() == token {
			return node
		}
		if found := findByToken(node.Children, token); found != nil {
			return found
		}
	}
	return nil
}

func findByDurableId(nodes []*Comment, id EntityId) *Comment {
	for _, node := range nodes {
		if durableId, ok := node.DurableId(); ok && durableId == id {
			return node
		}
		if found := findByDurableId(node.Children, id); found != nil {
			return found
		}
	}
	return nil
}

func findPendingEchoNode(nodes []*Comment, incoming *Comment) *Comment {
	for _, node := range nodes {
		if node.Status() == StatusPending &&
			node.AuthorId() == incoming.AuthorId() &&
			node.EchoKey() == incoming.EchoKey() {
			return node
		}
		if found := findPendingEchoNode(node.Children, incoming); found != nil {
			return found
		}
	}
	return nil
}

// updateByToken replaces the node with `patch` in place, keeping the node's
// position and children. The token stays attached.
func updateByToken(nodes []*Comment, token string, patch *Comment, tree *CommentTree) ([]*Comment, bool) {
	for i, node := range nodes {
		if node.TemporaryToken() == token {
			patch.SetTemporaryToken(token)
			if len(patch.Children) == 0 {
				patch.Children = node.Children
			}
			if previousId, ok := node.DurableId(); ok {
				delete(tree.durableIds, previousId)
			}
			if durableId, ok := patch.DurableId(); ok {
				tree.durableIds[durableId] = true
			}
			nodes[i] = patch
			return nodes, true
		}
		if children, ok := updateByToken(node.Children, token, patch, tree); ok {
			node.Children = children
			return nodes, true
		}
	}
	return nodes, false
}

func removeByToken(nodes []*Comment, token string, tree *CommentTree) ([]*Comment, bool) {
	for i, node := range nodes {
		if node.TemporaryToken() == token {
			tree.unindexSubtree(node)
			nodes = append(nodes[:i], nodes[i+1:]...)
			return nodes, true
		}
		if children, ok := removeByToken(node.Children, token, tree); ok {
			node.Children = children
			return nodes, true
		}
	}
	return nodes, false
}
