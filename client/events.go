package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// The push channel is the only place where payload shapes are not under our
// control. The platform has emitted both snake_case and camelCase spellings,
// and some events wrap the entity in a named field. Everything is normalized
// here into canonical confirmed entities before it can reach a merger, so a
// wire shape change only ever touches this file.

type rawMessageEvent struct {
	Message *rawMessageEvent `json:"message,omitempty"`

	Id                *EntityId `json:"id,omitempty"`
	ConversationId    *EntityId `json:"conversation_id,omitempty"`
	ConversationIdAlt *EntityId `json:"conversationId,omitempty"`
	SenderId          *EntityId `json:"sender_id,omitempty"`
	SenderIdAlt       *EntityId `json:"senderId,omitempty"`
	Content           *string   `json:"content,omitempty"`
	CreatedAt         string    `json:"created_at,omitempty"`
	CreatedAtAlt      string    `json:"createdAt,omitempty"`
	Sender            *User     `json:"sender,omitempty"`
}

// NormalizeMessageEvent converts a raw `MessageSent` payload into a
// confirmed Message. An error means the payload is malformed and must be
// dropped by the caller, never applied.
func NormalizeMessageEvent(data []byte) (*Message, error) {
	var raw rawMessageEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed message event: %w", err)
	}
	if raw.Message != nil {
		raw = *raw.Message
	}

	if raw.Id == nil || *raw.Id <= 0 {
		return nil, fmt.Errorf("message event missing id")
	}
	if raw.Content == nil {
		return nil, fmt.Errorf("message event missing content")
	}

	message := &Message{
		Id:             *raw.Id,
		ConversationId: coalesceId(raw.ConversationId, raw.ConversationIdAlt),
		SenderId:       coalesceId(raw.SenderId, raw.SenderIdAlt),
		Content:        *raw.Content,
		CreatedAt:      parseEventTime(raw.CreatedAt, raw.CreatedAtAlt),
		Sender:         raw.Sender,
	}
	message.SetStatus(StatusConfirmed)
	return message, nil
}

type rawCommentEvent struct {
	Comment *rawCommentEvent `json:"comment,omitempty"`

	Id                 *EntityId `json:"id,omitempty"`
	PostId             *EntityId `json:"post_id,omitempty"`
	PostIdAlt          *EntityId `json:"postId,omitempty"`
	UserId             *EntityId `json:"user_id,omitempty"`
	UserIdAlt          *EntityId `json:"userId,omitempty"`
	ParentCommentId    *EntityId `json:"parent_comment_id,omitempty"`
	ParentCommentIdAlt *EntityId `json:"parentCommentId,omitempty"`
	Content            *string   `json:"content,omitempty"`
	CreatedAt          string    `json:"created_at,omitempty"`
	CreatedAtAlt       string    `json:"createdAt,omitempty"`
	User               *User     `json:"user,omitempty"`
}

// NormalizeCommentEvent converts a raw `CommentCreated` payload into a
// confirmed Comment.
func NormalizeCommentEvent(data []byte) (*Comment, error) {
	var raw rawCommentEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed comment event: %w", err)
	}
	if raw.Comment != nil {
		raw = *raw.Comment
	}

	if raw.Id == nil || *raw.Id <= 0 {
		return nil, fmt.Errorf("comment event missing id")
	}
	if raw.Content == nil {
		return nil, fmt.Errorf("comment event missing content")
	}

	var parentCommentId *EntityId
	if raw.ParentCommentId != nil {
		parentCommentId = raw.ParentCommentId
	} else if raw.ParentCommentIdAlt != nil {
		parentCommentId = raw.ParentCommentIdAlt
	}

	comment := &Comment{
		Id:              *raw.Id,
		PostId:          coalesceId(raw.PostId, raw.PostIdAlt),
		UserId:          coalesceId(raw.UserId, raw.UserIdAlt),
		ParentCommentId: parentCommentId,
		Content:         *raw.Content,
		CreatedAt:       parseEventTime(raw.CreatedAt, raw.CreatedAtAlt),
		User:            raw.User,
	}
	comment.SetStatus(StatusConfirmed)
	return comment, nil
}

func coalesceId(ids ...*EntityId) EntityId {
	for _, id := range ids {
		if id != nil {
			return *id
		}
	}
	return 0
}

var eventTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
}

func parseEventTime(values ...string) time.Time {
	for _, value := range values {
		if value == "" {
			continue
		}
		for _, layout := range eventTimeLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
