package client

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

const CommentCreatedEvent = "CommentCreated"

func PostChannel(postId EntityId) string {
	return fmt.Sprintf("post.%d", postId)
}

// CommentApi is the slice of the rest api the comment controller consumes.
type CommentApi interface {
	GetCommentsSync(getComments *GetCommentsArgs) (*GetCommentsResult, error)
	SendCommentSync(sendComment *SendCommentArgs) (*Comment, error)
}

var _ CommentApi = (*SocialApi)(nil)

// CommentThreadController owns the comment tree for one post and is its
// only mutator. Same wiring as ChatController, with the nested tree in
// place of the flat store: optimistic replies attach under their parent at
// any depth, realtime comments from other users insert at their parent, and
// pagination prepends older root comments.
type CommentThreadController struct {
	ctx    context.Context
	cancel context.CancelFunc

	api        CommentApi
	postId     EntityId
	selfUserId EntityId

	tree       *CommentTree
	mutator    *OptimisticMutator[*Comment]
	merger     *RealtimeMerger[*Comment]
	pagination *PaginationCursor[*Comment]

	unsubscribe func()
}

func NewCommentThreadController(
	ctx context.Context,
	api CommentApi,
	realtime Subscriber,
	auth *ClientAuth,
	postId EntityId,
) *CommentThreadController {
	cancelCtx, cancel := context.WithCancel(ctx)

	selfUserId, err := auth.UserId()
	if err != nil {
		glog.Infof("[comments]no user id = %s\n", err)
	}

	tree := NewCommentTree()
	self := &CommentThreadController{
		ctx:        cancelCtx,
		cancel:     cancel,
		api:        api,
		postId:     postId,
		selfUserId: selfUserId,
		tree:       tree,
		mutator:    NewOptimisticMutator[*Comment](cancelCtx, tree),
		merger:     NewRealtimeMerger[*Comment](tree),
		pagination: NewPaginationCursor[*Comment](cancelCtx, tree),
	}
	self.unsubscribe = realtime.Subscribe(PostChannel(postId), self.handleEvent)
	return self
}

func (self *CommentThreadController) handleEvent(event string, data []byte) {
	if event != CommentCreatedEvent {
		glog.V(2).Infof("[comments]ignore event %s\n", event)
		return
	}
	comment, err := NormalizeCommentEvent(data)
	if err != nil {
		glog.Infof("[comments]drop event = %s\n", err)
		return
	}
	if comment.PostId != 0 && comment.PostId != self.postId {
		glog.Infof("[comments]drop event for post %d\n", comment.PostId)
		return
	}
	self.merger.MergeIncoming(comment)
}

// Comments returns the root comments, oldest to newest.
// Replies hang off `Comment.Children`.
func (self *CommentThreadController) Comments() []*Comment {
	return self.tree.OrderedEntities()
}

// AllComments returns every comment in depth first order.
func (self *CommentThreadController) AllComments() []*Comment {
	return self.tree.Flatten()
}

func (self *CommentThreadController) UpdateMonitor() *Monitor {
	return self.tree.UpdateMonitor()
}

// SubmitNew shows a pending comment immediately, under its parent when
// `parentCommentId` is set, and sends it.
func (self *CommentThreadController) SubmitNew(
	content string,
	parentCommentId *EntityId,
	callback SubmitCallback[*Comment],
) string {
	draft := &Comment{
		PostId:          self.postId,
		UserId:          self.selfUserId,
		ParentCommentId: parentCommentId,
		Content:         content,
		CreatedAt:       time.Now(),
	}
	return self.mutator.Submit(draft, self.remoteWrite, callback)
}

func (self *CommentThreadController) Retry(token string, callback SubmitCallback[*Comment]) error {
	return self.mutator.Retry(token, callback)
}

func (self *CommentThreadController) Remove(token string) {
	self.mutator.Remove(token)
}

func (self *CommentThreadController) LoadOlder() error {
	return self.pagination.FetchOlder(self.loadPage)
}

func (self *CommentThreadController) Exhausted() bool {
	return self.pagination.Exhausted()
}

func (self *CommentThreadController) Close() {
	self.unsubscribe()
	self.cancel()
}

func (self *CommentThreadController) remoteWrite(ctx context.Context, draft *Comment) (*Comment, error) {
	return self.api.SendCommentSync(&SendCommentArgs{
		PostId:          draft.PostId,
		Content:         draft.Content,
		ParentCommentId: draft.ParentCommentId,
	})
}

func (self *CommentThreadController) loadPage(ctx context.Context, cursor *string) (*Page[*Comment], error) {
	result, err := self.api.GetCommentsSync(&GetCommentsArgs{
		PostId: self.postId,
		Cursor: cursor,
	})
	if err != nil {
		return nil, err
	}
	return &Page[*Comment]{
		Entities:   result.Data,
		NextCursor: result.NextCursor,
	}, nil
}
