package client

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func confirmedMessage(id EntityId, senderId EntityId, content string) *Message {
	message := &Message{
		Id:       id,
		SenderId: senderId,
		Content:  content,
	}
	message.SetStatus(StatusConfirmed)
	return message
}

func pendingMessage(token string, senderId EntityId, content string) *Message {
	message := &Message{
		SenderId: senderId,
		Content:  content,
	}
	message.SetTemporaryToken(token)
	message.SetStatus(StatusPending)
	return message
}

func messageContents(messages []*Message) []string {
	contents := make([]string, len(messages))
	for i, message := range messages {
		contents[i] = message.Content
	}
	return contents
}

func TestEntityStoreOrdering(t *testing.T) {
	store := NewEntityStore[*Message]()

	store.Append(confirmedMessage(10, 1, "c"))
	store.Append(confirmedMessage(11, 2, "d"))
	store.PrependBatch([]*Message{
		confirmedMessage(8, 1, "a"),
		confirmedMessage(9, 2, "b"),
	})
	store.Append(confirmedMessage(12, 1, "e"))

	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, messageContents(store.OrderedEntities()))
	assert.Equal(t, 5, store.Len())

	assert.Equal(t, true, store.ContainsDurableId(8))
	assert.Equal(t, true, store.ContainsDurableId(12))
	assert.Equal(t, false, store.ContainsDurableId(13))
}

func TestEntityStoreUpdateByTemporaryToken(t *testing.T) {
	store := NewEntityStore[*Message]()

	token := NewTemporaryToken()
	store.Append(pendingMessage(token, 1, "hi"))

	patch := confirmedMessage(42, 1, "hi")
	ok := store.UpdateByTemporaryToken(token, patch)
	assert.Equal(t, true, ok)

	// one slot, token retained, durable id indexed
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, true, store.ContainsDurableId(42))
	item, ok := store.GetByTemporaryToken(token)
	assert.Equal(t, true, ok)
	assert.Equal(t, StatusConfirmed, item.Status())
	assert.Equal(t, EntityId(42), item.Id)

	// a missing token is a no-op, not an error
	ok = store.UpdateByTemporaryToken("tmp-0-missing", patch)
	assert.Equal(t, false, ok)
}

func TestEntityStoreRemoveByTemporaryToken(t *testing.T) {
	store := NewEntityStore[*Message]()

	token := NewTemporaryToken()
	store.Append(confirmedMessage(1, 1, "a"))
	store.Append(pendingMessage(token, 1, "b"))
	store.Append(confirmedMessage(2, 2, "c"))

	ok := store.RemoveByTemporaryToken(token)
	assert.Equal(t, true, ok)
	assert.Equal(t, []string{"a", "c"}, messageContents(store.OrderedEntities()))

	ok = store.RemoveByTemporaryToken(token)
	assert.Equal(t, false, ok)

	// indexes survive the reindex after removal
	assert.Equal(t, true, store.ContainsDurableId(1))
	assert.Equal(t, true, store.ContainsDurableId(2))
}

func TestEntityStoreConfirmDropsPendingWhenEchoWon(t *testing.T) {
	store := NewEntityStore[*Message]()

	token := NewTemporaryToken()
	store.Append(pendingMessage(token, 1, "hi"))
	// the realtime echo was inserted as a separate confirmed entity
	store.Append(confirmedMessage(42, 1, "hi"))

	ok := store.ConfirmByTemporaryToken(token, confirmedMessage(42, 1, "hi"))
	assert.Equal(t, true, ok)

	// the pending slot is dropped, never a second representation
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, true, store.ContainsDurableId(42))
}

func TestEntityStoreFailAndResubmit(t *testing.T) {
	store := NewEntityStore[*Message]()

	token := NewTemporaryToken()
	store.Append(pendingMessage(token, 1, "hi"))
	snapshot := store.OrderedEntities()

	assert.Equal(t, true, store.FailByTemporaryToken(token))
	// only a pending slot fails
	assert.Equal(t, false, store.FailByTemporaryToken(token))

	item, ok := store.GetByTemporaryToken(token)
	assert.Equal(t, true, ok)
	assert.Equal(t, StatusFailed, item.Status())
	// the flip replaced the slot. Earlier snapshots are never written.
	assert.Equal(t, StatusPending, snapshot[0].Status())

	assert.Equal(t, true, store.ResubmitByTemporaryToken(token))
	assert.Equal(t, false, store.ResubmitByTemporaryToken(token))
	item, _ = store.GetByTemporaryToken(token)
	assert.Equal(t, StatusPending, item.Status())

	// a confirmed slot never fails
	confirmToken := NewTemporaryToken()
	store.Append(pendingMessage(confirmToken, 1, "x"))
	store.ConfirmByTemporaryToken(confirmToken, confirmedMessage(42, 1, "x"))
	assert.Equal(t, false, store.FailByTemporaryToken(confirmToken))
}

func TestEntityStoreMonitorNotifies(t *testing.T) {
	store := NewEntityStore[*Message]()

	notify := store.UpdateMonitor().NotifyChannel()
	store.Append(confirmedMessage(1, 1, "a"))

	select {
	case <-notify:
	default:
		t.Fatal("expected an update notification")
	}
}

func TestNewTemporaryTokenUnique(t *testing.T) {
	tokens := map[string]bool{}
	for i := 0; i < 1000; i += 1 {
		token := NewTemporaryToken()
		assert.Equal(t, false, tokens[token])
		tokens[token] = true
	}
}
