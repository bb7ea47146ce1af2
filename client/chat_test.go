package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/go-playground/assert/v2"
)

func testJwt(userId EntityId) string {
	encode := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	header := encode(map[string]any{"alg": "none", "typ": "JWT"})
	claims := encode(map[string]any{"user_id": userId})
	return fmt.Sprintf("%s.%s.", header, claims)
}

type fakeRealtime struct {
	channelKey   string
	callback     EventCallback
	unsubscribed bool
}

func (self *fakeRealtime) Subscribe(channelKey string, callback EventCallback) func() {
	self.channelKey = channelKey
	self.callback = callback
	return func() {
		self.unsubscribed = true
	}
}

type fakeChatApi struct {
	getMessages func(getMessages *GetMessagesArgs) (*GetMessagesResult, error)
	sendMessage func(sendMessage *SendMessageArgs) (*Message, error)
}

func (self *fakeChatApi) GetMessagesSync(getMessages *GetMessagesArgs) (*GetMessagesResult, error) {
	return self.getMessages(getMessages)
}

func (self *fakeChatApi) SendMessageSync(sendMessage *SendMessageArgs) (*Message, error) {
	return self.sendMessage(sendMessage)
}

func TestClientAuthUserId(t *testing.T) {
	auth := NewClientAuth(testJwt(7))
	userId, err := auth.UserId()
	assert.Equal(t, err, nil)
	assert.Equal(t, EntityId(7), userId)

	auth = NewClientAuth("not-a-jwt")
	_, err = auth.UserId()
	assert.NotEqual(t, err, nil)
}

func TestChatControllerSubmitAndConfirm(t *testing.T) {
	ctx := context.Background()
	realtime := &fakeRealtime{}

	release := make(chan *Message)
	api := &fakeChatApi{
		sendMessage: func(sendMessage *SendMessageArgs) (*Message, error) {
			assert.Equal(t, EntityId(3), sendMessage.ConversationId)
			return <-release, nil
		},
	}

	controller := NewChatController(ctx, api, realtime, NewClientAuth(testJwt(7)), 3)
	defer controller.Close()

	assert.Equal(t, "private-chat.3", realtime.channelKey)

	done := make(chan struct{})
	controller.SubmitNew("hi", func(confirmed *Message, err error) {
		close(done)
	})

	// pending before the write resolves
	messages := controller.Messages()
	assert.Equal(t, 1, len(messages))
	assert.Equal(t, StatusPending, messages[0].Status())
	assert.Equal(t, EntityId(7), messages[0].SenderId)

	release <- confirmedMessage(42, 7, "hi")
	<-done

	messages = controller.Messages()
	assert.Equal(t, 1, len(messages))
	assert.Equal(t, StatusConfirmed, messages[0].Status())
	assert.Equal(t, EntityId(42), messages[0].Id)
}

func TestChatControllerRealtimeEcho(t *testing.T) {
	ctx := context.Background()
	realtime := &fakeRealtime{}

	release := make(chan *Message)
	api := &fakeChatApi{
		sendMessage: func(sendMessage *SendMessageArgs) (*Message, error) {
			return <-release, nil
		},
	}

	controller := NewChatController(ctx, api, realtime, NewClientAuth(testJwt(7)), 3)
	defer controller.Close()

	done := make(chan struct{})
	controller.SubmitNew("hi", func(confirmed *Message, err error) {
		close(done)
	})

	// the push channel delivers the echo before the http response
	realtime.callback(MessageSentEvent, []byte(`{
		"id": 42,
		"conversation_id": 3,
		"sender_id": 7,
		"content": "hi"
	}`))

	messages := controller.Messages()
	assert.Equal(t, 1, len(messages))
	assert.Equal(t, StatusConfirmed, messages[0].Status())
	assert.Equal(t, EntityId(42), messages[0].Id)

	// the http resolution with the same id never duplicates
	release <- confirmedMessage(42, 7, "hi")
	<-done
	assert.Equal(t, 1, len(controller.Messages()))
}

func TestChatControllerDropsForeignAndMalformedEvents(t *testing.T) {
	ctx := context.Background()
	realtime := &fakeRealtime{}
	api := &fakeChatApi{}

	controller := NewChatController(ctx, api, realtime, NewClientAuth(testJwt(7)), 3)
	defer controller.Close()

	realtime.callback("SomethingElse", []byte(`{"id": 1, "content": "x"}`))
	realtime.callback(MessageSentEvent, []byte(`no json`))
	realtime.callback(MessageSentEvent, []byte(`{"content": "missing id"}`))
	// another conversation's message
	realtime.callback(MessageSentEvent, []byte(`{"id": 5, "conversation_id": 99, "content": "x"}`))

	assert.Equal(t, 0, len(controller.Messages()))

	realtime.callback(MessageSentEvent, []byte(`{"id": 5, "conversation_id": 3, "sender_id": 2, "content": "x"}`))
	assert.Equal(t, 1, len(controller.Messages()))
}

func TestChatControllerLoadOlder(t *testing.T) {
	ctx := context.Background()
	realtime := &fakeRealtime{}

	loads := 0
	api := &fakeChatApi{
		getMessages: func(getMessages *GetMessagesArgs) (*GetMessagesResult, error) {
			loads += 1
			assert.Equal(t, EntityId(3), getMessages.ConversationId)
			switch loads {
			case 1:
				return &GetMessagesResult{
					Conversation: &Conversation{Id: 3, Name: "nhóm"},
					Messages: &MessagePage{
						Data: []*Message{
							confirmedMessage(10, 1, "c"),
							confirmedMessage(11, 2, "d"),
						},
						NextCursor: cursorRef("c1"),
					},
				}, nil
			default:
				assert.Equal(t, "c1", *getMessages.Cursor)
				return &GetMessagesResult{
					Messages: &MessagePage{
						Data: []*Message{
							confirmedMessage(8, 1, "a"),
							confirmedMessage(9, 2, "b"),
						},
						NextCursor: nil,
					},
				}, nil
			}
		},
	}

	controller := NewChatController(ctx, api, realtime, NewClientAuth(testJwt(7)), 3)
	defer controller.Close()

	err := controller.LoadOlder()
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{"c", "d"}, messageContents(controller.Messages()))
	assert.Equal(t, "nhóm", controller.Conversation().Name)
	assert.Equal(t, false, controller.Exhausted())

	err = controller.LoadOlder()
	assert.Equal(t, err, nil)
	assert.Equal(t, []string{"a", "b", "c", "d"}, messageContents(controller.Messages()))
	assert.Equal(t, true, controller.Exhausted())
}

func TestChatControllerClose(t *testing.T) {
	ctx := context.Background()
	realtime := &fakeRealtime{}
	api := &fakeChatApi{}

	controller := NewChatController(ctx, api, realtime, NewClientAuth(testJwt(7)), 3)
	controller.Close()

	assert.Equal(t, true, realtime.unsubscribed)
}
