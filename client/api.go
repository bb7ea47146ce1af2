package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

type SocialApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	accessToken string
}

func NewSocialApi(apiUrl string) *SocialApi {
	return NewSocialApiWithContext(context.Background(), apiUrl)
}

func NewSocialApiWithContext(ctx context.Context, apiUrl string) *SocialApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &SocialApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *SocialApi) SetAccessToken(accessToken string) {
	self.accessToken = accessToken
}

func (self *SocialApi) Close() {
	self.cancel()
}

type LoginCallback apiCallback[*LoginResult]

type LoginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string `json:"access_token,omitempty"`
	TokenType   string `json:"token_type,omitempty"`
	User        *User  `json:"user,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (self *SocialApi) Login(login *LoginArgs, callback LoginCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/login", self.apiUrl),
		login,
		self.accessToken,
		&LoginResult{},
		callback,
	)
}

func (self *SocialApi) LoginSync(login *LoginArgs) (*LoginResult, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/login", self.apiUrl),
		login,
		self.accessToken,
		&LoginResult{},
		NewNoopApiCallback[*LoginResult](),
	)
}

type GetConversationsCallback apiCallback[*GetConversationsResult]

type GetConversationsResult struct {
	Data []*Conversation `json:"data"`
}

func (self *SocialApi) GetConversations(callback GetConversationsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/conversations", self.apiUrl),
		self.accessToken,
		&GetConversationsResult{},
		callback,
	)
}

func (self *SocialApi) GetConversationsSync() (*GetConversationsResult, error) {
	return get(
		self.ctx,
		fmt.Sprintf("%s/conversations", self.apiUrl),
		self.accessToken,
		&GetConversationsResult{},
		NewNoopApiCallback[*GetConversationsResult](),
	)
}

type GetMessagesCallback apiCallback[*GetMessagesResult]

type GetMessagesArgs struct {
	ConversationId EntityId
	// nil requests the newest page
	Cursor *string
}

type GetMessagesResult struct {
	Conversation *Conversation `json:"conversation,omitempty"`
	Messages     *MessagePage  `json:"messages,omitempty"`
}

// cursor paginated, oldest first within the page.
// a nil NextCursor means no older page exists.
type MessagePage struct {
	Data       []*Message `json:"data"`
	NextCursor *string    `json:"next_cursor"`
}

func (self *SocialApi) GetMessages(getMessages *GetMessagesArgs, callback GetMessagesCallback) {
	go get(
		self.ctx,
		self.messagesUrl(getMessages),
		self.accessToken,
		&GetMessagesResult{},
		callback,
	)
}

func (self *SocialApi) GetMessagesSync(getMessages *GetMessagesArgs) (*GetMessagesResult, error) {
	return get(
		self.ctx,
		self.messagesUrl(getMessages),
		self.accessToken,
		&GetMessagesResult{},
		NewNoopApiCallback[*GetMessagesResult](),
	)
}

func (self *SocialApi) messagesUrl(getMessages *GetMessagesArgs) string {
	messagesUrl := fmt.Sprintf(
		"%s/conversations/%d/messages",
		self.apiUrl,
		getMessages.ConversationId,
	)
	if getMessages.Cursor != nil {
		messagesUrl += "?cursor=" + url.QueryEscape(*getMessages.Cursor)
	}
	return messagesUrl
}

type SendMessageCallback apiCallback[*Message]

type SendMessageArgs struct {
	ConversationId EntityId `json:"-"`
	Content        string   `json:"content"`
}

func (self *SocialApi) SendMessage(sendMessage *SendMessageArgs, callback SendMessageCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/conversations/%d/messages", self.apiUrl, sendMessage.ConversationId),
		sendMessage,
		self.accessToken,
		&Message{},
		callback,
	)
}

func (self *SocialApi) SendMessageSync(sendMessage *SendMessageArgs) (*Message, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/conversations/%d/messages", self.apiUrl, sendMessage.ConversationId),
		sendMessage,
		self.accessToken,
		&Message{},
		NewNoopApiCallback[*Message](),
	)
}

type GetCommentsCallback apiCallback[*GetCommentsResult]

type GetCommentsArgs struct {
	PostId EntityId
	Cursor *string
}

type GetCommentsResult struct {
	Data       []*Comment `json:"data"`
	NextCursor *string    `json:"next_cursor"`
}

func (self *SocialApi) GetComments(getComments *GetCommentsArgs, callback GetCommentsCallback) {
	go get(
		self.ctx,
		self.commentsUrl(getComments),
		self.accessToken,
		&GetCommentsResult{},
		callback,
	)
}

func (self *SocialApi) GetCommentsSync(getComments *GetCommentsArgs) (*GetCommentsResult, error) {
	return get(
		self.ctx,
		self.commentsUrl(getComments),
		self.accessToken,
		&GetCommentsResult{},
		NewNoopApiCallback[*GetCommentsResult](),
	)
}

func (self *SocialApi) commentsUrl(getComments *GetCommentsArgs) string {
	commentsUrl := fmt.Sprintf("%s/posts/%d/comments", self.apiUrl, getComments.PostId)
	if getComments.Cursor != nil {
		commentsUrl += "?cursor=" + url.QueryEscape(*getComments.Cursor)
	}
	return commentsUrl
}

type SendCommentCallback apiCallback[*Comment]

type SendCommentArgs struct {
	PostId          EntityId  `json:"-"`
	Content         string    `json:"content"`
	ParentCommentId *EntityId `json:"parent_comment_id,omitempty"`
}

func (self *SocialApi) SendComment(sendComment *SendCommentArgs, callback SendCommentCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/posts/%d/comments", self.apiUrl, sendComment.PostId),
		sendComment,
		self.accessToken,
		&Comment{},
		callback,
	)
}

func (self *SocialApi) SendCommentSync(sendComment *SendCommentArgs) (*Comment, error) {
	return post(
		self.ctx,
		fmt.Sprintf("%s/posts/%d/comments", self.apiUrl, sendComment.PostId),
		sendComment,
		self.accessToken,
		&Comment{},
		NewNoopApiCallback[*Comment](),
	)
}

func post[R any](ctx context.Context, url string, args any, accessToken string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	if accessToken != "" {
		auth := fmt.Sprintf("Bearer %s", accessToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, accessToken string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Accept", "application/json")

	if accessToken != "" {
		auth := fmt.Sprintf("Bearer %s", accessToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if r.StatusCode < 200 || 300 <= r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
