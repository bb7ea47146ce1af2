package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"
)

const realtimeSendBufferSize = 32

// EventCallback receives one named event on a subscribed channel.
// `data` is the raw payload, normalized by the event adapter before it
// reaches a merger.
type EventCallback func(event string, data []byte)

// Subscriber is the push channel surface the controllers consume.
// Implemented by RealtimeService; substituted by a fake in tests.
type Subscriber interface {
	// Subscribe registers a callback for a channel and returns a function
	// that removes it. The last removal unsubscribes the channel.
	Subscribe(channelKey string, callback EventCallback) func()
}

// wire frame for the push channel
type realtimeFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type RealtimeServiceSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultRealtimeServiceSettings() *RealtimeServiceSettings {
	return &RealtimeServiceSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
	}
}

// RealtimeService multiplexes channel subscriptions over one websocket to
// the platform. It is constructed and owned by the session that creates it,
// never reached as ambient global state. Lifecycle:
// `Init` connects, `Subscribe`/`Unsubscribe` manage channels,
// `Disconnect` tears everything down.
//
// The connection is maintained with a reconnect loop. Channel subscriptions
// survive reconnects; they are replayed after each successful dial.
type RealtimeService struct {
	ctx    context.Context
	cancel context.CancelFunc

	realtimeUrl string
	auth        *ClientAuth
	settings    *RealtimeServiceSettings

	stateLock   sync.Mutex
	initialized bool
	channels    map[string]*CallbackList[EventCallback]
	send        chan *realtimeFrame
}

func NewRealtimeServiceWithDefaults(
	ctx context.Context,
	realtimeUrl string,
	auth *ClientAuth,
) *RealtimeService {
	return NewRealtimeService(ctx, realtimeUrl, auth, DefaultRealtimeServiceSettings())
}

func NewRealtimeService(
	ctx context.Context,
	realtimeUrl string,
	auth *ClientAuth,
	settings *RealtimeServiceSettings,
) *RealtimeService {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &RealtimeService{
		ctx:         cancelCtx,
		cancel:      cancel,
		realtimeUrl: realtimeUrl,
		auth:        auth,
		settings:    settings,
		channels:    map[string]*CallbackList[EventCallback]{},
		send:        make(chan *realtimeFrame, realtimeSendBufferSize),
	}
}

// Init starts the connection loop. Calling it more than once is a no-op.
func (self *RealtimeService) Init() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if self.initialized {
		return
	}
	self.initialized = true
	go self.run()
}

func (self *RealtimeService) Subscribe(channelKey string, callback EventCallback) func() {
	self.stateLock.Lock()
	list, ok := self.channels[channelKey]
	if !ok {
		list = NewCallbackList[EventCallback]()
		self.channels[channelKey] = list
	}
	remove := list.Add(callback)
	self.stateLock.Unlock()

	if !ok {
		self.enqueue(&realtimeFrame{
			Event:   "subscribe",
			Channel: channelKey,
		})
	}

	return func() {
		remove()
		self.stateLock.Lock()
		list, ok := self.channels[channelKey]
		empty := ok && list.Len() == 0
		if empty {
			delete(self.channels, channelKey)
		}
		self.stateLock.Unlock()
		if empty {
			self.enqueue(&realtimeFrame{
				Event:   "unsubscribe",
				Channel: channelKey,
			})
		}
	}
}

// Unsubscribe drops a channel and all of its listeners.
func (self *RealtimeService) Unsubscribe(channelKey string) {
	self.stateLock.Lock()
	_, ok := self.channels[channelKey]
	delete(self.channels, channelKey)
	self.stateLock.Unlock()
	if ok {
		self.enqueue(&realtimeFrame{
			Event:   "unsubscribe",
			Channel: channelKey,
		})
	}
}

func (self *RealtimeService) Disconnect() {
	self.cancel()
}

// best effort. A dropped frame is recovered by the resubscribe on reconnect.
func (self *RealtimeService) enqueue(frame *realtimeFrame) {
	select {
	case self.send <- frame:
	default:
		glog.Infof("[rts]send queue full, drop %s %s\n", frame.Event, frame.Channel)
	}
}

func (self *RealtimeService) run() {
	defer self.cancel()

	for {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		header := http.Header{}
		header.Add("Authorization", fmt.Sprintf("Bearer %s", self.auth.AccessToken))
		header.Add("X-Instance-Id", self.auth.InstanceId.String())

		ws, _, err := dialer.DialContext(self.ctx, self.realtimeUrl, header)
		if err != nil {
			glog.Infof("[rts]connect error = %s\n", err)
			reconnect := NewReconnect(self.settings.ReconnectTimeout)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		// replay the channel subscriptions on this connection
		self.stateLock.Lock()
		channelKeys := maps.Keys(self.channels)
		self.stateLock.Unlock()
		for _, channelKey := range channelKeys {
			self.enqueue(&realtimeFrame{
				Event:   "subscribe",
				Channel: channelKey,
			})
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case frame := <-self.send:
						frameBytes, err := json.Marshal(frame)
						if err != nil {
							glog.Errorf("[rts]marshal error = %s\n", err)
							continue
						}
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, frameBytes); err != nil {
							glog.Infof("[rts]-> error = %s\n", err)
							return
						}
						glog.V(2).Infof("[rts]-> %s %s\n", frame.Event, frame.Channel)
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						pingBytes, _ := json.Marshal(&realtimeFrame{
							Event: "ping",
						})
						if err := ws.WriteMessage(websocket.TextMessage, pingBytes); err != nil {
							return
						}
					}
				}
			}()

			for {
				select {
				case <-handleCtx.Done():
					return
				default:
				}

				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				_, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[rts]<- error = %s\n", err)
					return
				}

				var frame realtimeFrame
				if err := json.Unmarshal(message, &frame); err != nil {
					// malformed frames never reach listeners
					glog.Infof("[rts]<- malformed frame = %s\n", err)
					continue
				}

				switch frame.Event {
				case "ping", "pong":
					glog.V(2).Infof("[rts]<- %s\n", frame.Event)
				default:
					glog.V(2).Infof("[rts]<- %s %s\n", frame.Event, frame.Channel)
					self.dispatch(&frame)
				}
			}
		}

		c()

		reconnect := NewReconnect(self.settings.ReconnectTimeout)
		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *RealtimeService) dispatch(frame *realtimeFrame) {
	self.stateLock.Lock()
	list, ok := self.channels[frame.Channel]
	self.stateLock.Unlock()
	if !ok {
		glog.V(2).Infof("[rts]no listeners %s\n", frame.Channel)
		return
	}
	for _, callback := range list.Get() {
		self.safeDispatch(callback, frame)
	}
}

// a panicking listener must not take down the read loop or the other
// listeners on the channel
func (self *RealtimeService) safeDispatch(callback EventCallback, frame *realtimeFrame) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[rts]listener panic %s %s = %v\n", frame.Event, frame.Channel, r)
		}
	}()
	callback(frame.Event, frame.Data)
}
