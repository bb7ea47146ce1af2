package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

const MessageSentEvent = "MessageSent"

func ChatChannel(conversationId EntityId) string {
	return fmt.Sprintf("private-chat.%d", conversationId)
}

// ChatApi is the slice of the rest api the chat controller consumes.
type ChatApi interface {
	GetMessagesSync(getMessages *GetMessagesArgs) (*GetMessagesResult, error)
	SendMessageSync(sendMessage *SendMessageArgs) (*Message, error)
}

var _ ChatApi = (*SocialApi)(nil)

// ChatController owns the message store for one conversation and is its
// only mutator. It wires together the optimistic mutator for sends, the
// realtime merger for the push channel, and the pagination cursor for older
// history. Realtime messages land at the new end, history at the old end,
// so the two never reorder what is already present.
type ChatController struct {
	ctx    context.Context
	cancel context.CancelFunc

	api            ChatApi
	conversationId EntityId
	selfUserId     EntityId

	store      *EntityStore[*Message]
	mutator    *OptimisticMutator[*Message]
	merger     *RealtimeMerger[*Message]
	pagination *PaginationCursor[*Message]

	unsubscribe func()

	stateLock    sync.Mutex
	conversation *Conversation
}

func NewChatController(
	ctx context.Context,
	api ChatApi,
	realtime Subscriber,
	auth *ClientAuth,
	conversationId EntityId,
) *ChatController {
	cancelCtx, cancel := context.WithCancel(ctx)

	selfUserId, err := auth.UserId()
	if err != nil {
		// echo matching will not recognize own writes, dedup by durable id
		// still applies
		glog.Infof("[chat]no user id = %s\n", err)
	}

	store := NewEntityStore[*Message]()
	self := &ChatController{
		ctx:            cancelCtx,
		cancel:         cancel,
		api:            api,
		conversationId: conversationId,
		selfUserId:     selfUserId,
		store:          store,
		mutator:        NewOptimisticMutator[*Message](cancelCtx, store),
		merger:         NewRealtimeMerger[*Message](store),
		pagination:     NewPaginationCursor[*Message](cancelCtx, store),
	}
	self.unsubscribe = realtime.Subscribe(ChatChannel(conversationId), self.handleEvent)
	return self
}

func (self *ChatController) handleEvent(event string, data []byte) {
	if event != MessageSentEvent {
		glog.V(2).Infof("[chat]ignore event %s\n", event)
		return
	}
	message, err := NormalizeMessageEvent(data)
	if err != nil {
		glog.Infof("[chat]drop event = %s\n", err)
		return
	}
	if message.ConversationId != 0 && message.ConversationId != self.conversationId {
		glog.Infof("[chat]drop event for conversation %d\n", message.ConversationId)
		return
	}
	self.merger.MergeIncoming(message)
}

// Messages returns the current ordering, oldest to newest.
func (self *ChatController) Messages() []*Message {
	return self.store.OrderedEntities()
}

func (self *ChatController) Conversation() *Conversation {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.conversation
}

// UpdateMonitor notifies whenever the message ordering changes.
func (self *ChatController) UpdateMonitor() *Monitor {
	return self.store.UpdateMonitor()
}

// SubmitNew shows `content` as a pending message immediately and sends it.
// The returned token addresses the message for `Retry` and `Remove`.
func (self *ChatController) SubmitNew(content string, callback SubmitCallback[*Message]) string {
	draft := &Message{
		ConversationId: self.conversationId,
		SenderId:       self.selfUserId,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	return self.mutator.Submit(draft, self.remoteWrite, callback)
}

func (self *ChatController) Retry(token string, callback SubmitCallback[*Message]) error {
	return self.mutator.Retry(token, callback)
}

func (self *ChatController) Remove(token string) {
	self.mutator.Remove(token)
}

// LoadOlder fetches the next older history page. The first call loads the
// newest page. No-op while a load is in flight or after exhaustion.
func (self *ChatController) LoadOlder() error {
	return self.pagination.FetchOlder(self.loadPage)
}

func (self *ChatController) Exhausted() bool {
	return self.pagination.Exhausted()
}

// Close detaches the controller. Late write resolutions and realtime events
// no longer touch the store.
func (self *ChatController) Close() {
	self.unsubscribe()
	self.cancel()
}

func (self *ChatController) remoteWrite(ctx context.Context, draft *Message) (*Message, error) {
	return self.api.SendMessageSync(&SendMessageArgs{
		ConversationId: draft.ConversationId,
		Content:        draft.Content,
	})
}

func (self *ChatController) loadPage(ctx context.Context, cursor *string) (*Page[*Message], error) {
	result, err := self.api.GetMessagesSync(&GetMessagesArgs{
		ConversationId: self.conversationId,
		Cursor:         cursor,
	})
	if err != nil {
		return nil, err
	}

	if result.Conversation != nil {
		self.stateLock.Lock()
		self.conversation = result.Conversation
		self.stateLock.Unlock()
	}

	page := &Page[*Message]{}
	if result.Messages != nil {
		page.Entities = result.Messages.Data
		page.NextCursor = result.Messages.NextCursor
	}
	return page, nil
}
