package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// EntityId is a durable identity assigned by the platform.
// 0 means not yet assigned.
type EntityId = int64

type EntityStatus int

const (
	// server-acknowledged. This is the zero value so that entities decoded
	// from the api or the realtime channel are confirmed by construction.
	StatusConfirmed EntityStatus = iota
	StatusPending
	StatusFailed
)

func (self EntityStatus) String() string {
	switch self {
	case StatusConfirmed:
		return "confirmed"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

// Entity is an optimistically managed domain entity (message or comment).
// A locally created entity carries a temporary token for its entire life,
// even after it is confirmed and has a durable id. A durable id and a
// temporary token are two separate fields. Never infer one from the other.
type Entity interface {
	TemporaryToken() string
	SetTemporaryToken(token string)
	DurableId() (EntityId, bool)
	Status() EntityStatus
	SetStatus(status EntityStatus)
	AuthorId() EntityId
	// EchoKey summarizes the payload content for realtime echo matching.
	// Two entities from the same author with equal echo keys are treated
	// as the same logical entity. See `MergeConfirmed`.
	EchoKey() string
	// CloneWithStatus returns a shallow copy carrying `status`. An entity is
	// never written again once a collection has handed it to readers; status
	// changes replace the slot with a clone instead.
	CloneWithStatus(status EntityStatus) Entity
}

var temporaryTokenSeq atomic.Uint64

// NewTemporaryToken returns a token unique for the process lifetime.
// The monotonic counter makes collisions structurally impossible and the
// ulid suffix keeps tokens unique across client instances.
func NewTemporaryToken() string {
	seq := temporaryTokenSeq.Add(1)
	return fmt.Sprintf("tmp-%d-%s", seq, ulid.Make())
}

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

type User struct {
	Id        EntityId `json:"id"`
	Name      string   `json:"name,omitempty"`
	Email     string   `json:"email,omitempty"`
	AvatarUrl string   `json:"avatar_url,omitempty"`
}

type Message struct {
	Id             EntityId  `json:"id,omitempty"`
	ConversationId EntityId  `json:"conversation_id,omitempty"`
	SenderId       EntityId  `json:"sender_id,omitempty"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	Sender         *User     `json:"sender,omitempty"`

	// transient reconciliation state, never sent on the wire
	temporaryToken string
	status         EntityStatus
}

// Entity implementation

func (self *Message) TemporaryToken() string {
	return self.temporaryToken
}

func (self *Message) SetTemporaryToken(token string) {
	self.temporaryToken = token
}

func (self *Message) DurableId() (EntityId, bool) {
	return self.Id, 0 < self.Id
}

func (self *Message) Status() EntityStatus {
	return self.status
}

func (self *Message) SetStatus(status EntityStatus) {
	self.status = status
}

func (self *Message) AuthorId() EntityId {
	if self.SenderId != 0 {
		return self.SenderId
	}
	if self.Sender != nil {
		return self.Sender.Id
	}
	return 0
}

func (self *Message) EchoKey() string {
	return self.Content
}

func (self *Message) CloneWithStatus(status EntityStatus) Entity {
	next := *self
	next.status = status
	return &next
}

type Comment struct {
	Id              EntityId   `json:"id,omitempty"`
	PostId          EntityId   `json:"post_id,omitempty"`
	UserId          EntityId   `json:"user_id,omitempty"`
	ParentCommentId *EntityId  `json:"parent_comment_id,omitempty"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at,omitempty"`
	User            *User      `json:"user,omitempty"`
	ReactionsCount  int        `json:"reactions_count,omitempty"`
	Children        []*Comment `json:"children_recursive,omitempty"`

	temporaryToken string
	status         EntityStatus
}

// Entity implementation

func (self *Comment) TemporaryToken() string {
	return self.temporaryToken
}

func (self *Comment) SetTemporaryToken(token string) {
	self.temporaryToken = token
}

func (self *Comment) DurableId() (EntityId, bool) {
	return self.Id, 0 < self.Id
}

func (self *Comment) Status() EntityStatus {
	return self.status
}

func (self *Comment) SetStatus(status EntityStatus) {
	self.status = status
}

func (self *Comment) AuthorId() EntityId {
	if self.UserId != 0 {
		return self.UserId
	}
	if self.User != nil {
		return self.User.Id
	}
	return 0
}

func (self *Comment) EchoKey() string {
	parentCommentId := EntityId(0)
	if self.ParentCommentId != nil {
		parentCommentId = *self.ParentCommentId
	}
	return fmt.Sprintf("%d|%s", parentCommentId, self.Content)
}

func (self *Comment) CloneWithStatus(status EntityStatus) Entity {
	next := *self
	next.status = status
	return &next
}

type Conversation struct {
	Id            EntityId       `json:"id"`
	Name          string         `json:"name,omitempty"`
	AvatarUrl     string         `json:"avatar_url,omitempty"`
	CreatedAt     time.Time      `json:"created_at,omitempty"`
	LastMessageAt time.Time      `json:"last_message_at,omitempty"`
	Participants  []*Participant `json:"participants,omitempty"`
	LastMessage   *Message       `json:"last_message,omitempty"`
}

type Participant struct {
	Id                EntityId `json:"id"`
	ConversationId    EntityId `json:"conversation_id"`
	UserId            EntityId `json:"user_id"`
	LastReadMessageId EntityId `json:"last_read_message_id,omitempty"`
	User              *User    `json:"user,omitempty"`
}
