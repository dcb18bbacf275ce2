package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/common"
	"github.com/anonto42/nano-midea/client/internal/feed"
	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/live"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/middleware"
	"github.com/anonto42/nano-midea/client/internal/mutation"
	"github.com/anonto42/nano-midea/client/internal/notification"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

const ( // ping pong keeps the view connection alive
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     localOrigin,
}

// localOrigin accepts clients without an Origin header, pages served by this
// host and pages on the loopback interface.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Event types pushed to the view.
const (
	EventFeed          = "feed"
	EventPost          = "post"
	EventNotifications = "notifications"
	EventAlert         = "alert"
	EventDismiss       = "dismiss"
	EventNavigate      = "navigate"
	EventError         = "error"
)

// Command types accepted from the view.
const (
	CommandVisible          = "visible"
	CommandLoadMore         = "loadMore"
	CommandRetry            = "retry"
	CommandWatchPost        = "watchPost"
	CommandUnwatchPost      = "unwatchPost"
	CommandLike             = "like"
	CommandDraft            = "draft"
	CommandComment          = "comment"
	CommandShowMore         = "showMore"
	CommandDismissError     = "dismissError"
	CommandOpenNotification = "openNotification"
)

// Event is one message to the view.
type Event struct {
	Type   string      `json:"type"`
	PostID string      `json:"postId,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Command is one message from the view.
type Command struct {
	Type   string `json:"type"`
	Index  int    `json:"index,omitempty"`
	PostID string `json:"postId,omitempty"`
	Key    string `json:"key,omitempty"`
	Text   string `json:"text,omitempty"`
}

type feedPayload struct {
	feed.View
	Error string `json:"error,omitempty"`
}

type inboxPayload struct {
	notification.InboxView
	Error string `json:"error,omitempty"`
}

// LiveOptions configures the per-connection live views.
type LiveOptions struct {
	PageSize      int
	AlertDuration time.Duration
}

// LiveHandler upgrades view connections and runs one live session per
// connection: the feed, the notification inbox and any watched post cards.
type LiveHandler struct {
	store         backend.Store
	posts         repositories.PostRepository
	notifications repositories.NotificationRepository
	engine        *mutation.Engine
	cell          *identity.Cell
	shown         *notification.ShownSet
	opts          LiveOptions
	log           logging.Logger
}

// NewLiveHandler creates a new LiveHandler
func NewLiveHandler(store backend.Store, posts repositories.PostRepository,
	notifications repositories.NotificationRepository, engine *mutation.Engine, cell *identity.Cell,
	shown *notification.ShownSet, opts LiveOptions, log logging.Logger) *LiveHandler {
	return &LiveHandler{
		store:         store,
		posts:         posts,
		notifications: notifications,
		engine:        engine,
		cell:          cell,
		shown:         shown,
		opts:          opts,
		log:           log,
	}
}

// RegisterLiveRoutes registers the websocket route
func (h *LiveHandler) RegisterLiveRoutes(g *echo.Group) {
	g.GET("/ws", h.Serve)
}

// Serve upgrades the connection and blocks until the session ends.
func (h *LiveHandler) Serve(c echo.Context) error {
	uid, _ := c.Get(middleware.ContextUID).(string)
	if uid == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized: user ID not found")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Warn(c.Request().Context(), "websocket upgrade failed", "error", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &liveSession{
		h:       h,
		uid:     uid,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		log:     h.log.With("uid", uid, "remote", c.RealIP()),
		scope:   live.NewScope(),
		cards:   make(map[string]*mutation.Card),
		written: make(chan struct{}),
	}
	s.run()
	return nil
}

type liveSession struct {
	h      *LiveHandler
	uid    string
	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	log    logging.Logger

	feed    *feed.Controller
	inbox   *notification.Inbox
	toaster *notification.Toaster
	scope   *live.Scope

	mu    sync.Mutex
	cards map[string]*mutation.Card

	tasks   sync.WaitGroup
	written chan struct{}
}

func (s *liveSession) run() {
	// a sign-out or account switch ends every view of the previous user
	unwatch := s.h.cell.Watch(func(uid string) {
		if uid != s.uid {
			s.cancel()
		}
	})
	defer unwatch()
	if s.h.cell.Current() != s.uid {
		s.cancel()
	}

	s.toaster = notification.NewToaster(s.h.opts.AlertDuration,
		func(a notification.Alert) { s.push(Event{Type: EventAlert, PostID: a.PostID, Data: a}) },
		func(a notification.Alert) { s.push(Event{Type: EventDismiss, PostID: a.PostID, Data: a}) })
	s.inbox = notification.NewInbox(s.ctx, s.h.store, s.h.notifications, s.uid, s.h.shown, s.toaster, s.log,
		func(v notification.InboxView) {
			p := inboxPayload{InboxView: v}
			if v.Err != nil {
				p.Error = v.Err.Error()
			}
			s.push(Event{Type: EventNotifications, Data: p})
		})
	s.feed = feed.NewController(s.ctx, s.h.store, s.h.posts, s.h.opts.PageSize, s.log,
		func(v feed.View) {
			p := feedPayload{View: v}
			if v.Err != nil {
				p.Error = v.Err.Error()
			}
			s.push(Event{Type: EventFeed, Data: p})
		})

	go s.writePump()
	s.log.Info(s.ctx, "live session opened")

	s.inbox.Start()
	s.feed.LoadInitial()
	s.readPump()
	s.close()
}

func (s *liveSession) close() {
	s.cancel()
	s.tasks.Wait()
	s.scope.Close()
	s.feed.Close()
	s.inbox.Close()
	s.toaster.Close()
	<-s.written
	s.log.Info(context.Background(), "live session closed", "subscriptions", live.Active())
}

// push queues ev for the writer. A view that falls sendBuffer events behind
// is disconnected.
func (s *liveSession) push(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error(s.ctx, "could not encode event", "type", ev.Type, "error", err)
		return
	}
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.send <- data:
	default:
		s.log.Warn(s.ctx, "view is not reading, closing session")
		s.cancel()
	}
}

func (s *liveSession) pushError(postID string, err error) {
	s.push(Event{Type: EventError, PostID: postID, Data: err.Error()})
}

func (s *liveSession) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
		close(s.written)
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.cancel()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *liveSession) readPump() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn(s.ctx, "live session read failed", "error", err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.pushError("", fmt.Errorf("%w: malformed command", common.ErrInvalidInput))
			continue
		}
		s.handle(cmd)
	}
}

func (s *liveSession) handle(cmd Command) {
	switch cmd.Type {
	case CommandVisible:
		s.feed.ItemVisible(cmd.Index)
	case CommandLoadMore:
		s.feed.LoadMore()
	case CommandRetry:
		s.feed.Retry()
	case CommandWatchPost:
		s.watchPost(cmd.PostID)
	case CommandUnwatchPost:
		s.unwatchPost(cmd.PostID)
	case CommandOpenNotification:
		s.spawn(func() { s.openNotification(cmd.Key) })
	case CommandLike, CommandDraft, CommandComment, CommandShowMore, CommandDismissError:
		card := s.card(cmd.PostID)
		if card == nil {
			s.pushError(cmd.PostID, fmt.Errorf("%w: post %q is not watched", common.ErrInvalidInput, cmd.PostID))
			return
		}
		s.cardCommand(card, cmd)
	default:
		s.pushError("", fmt.Errorf("%w: unknown command %q", common.ErrInvalidInput, cmd.Type))
	}
}

// cardCommand forwards to the card; failures land in the card's error slot.
func (s *liveSession) cardCommand(card *mutation.Card, cmd Command) {
	switch cmd.Type {
	case CommandLike:
		s.spawn(func() { _, _ = card.ToggleLike(s.ctx) })
	case CommandDraft:
		card.SetDraft(cmd.Text)
	case CommandComment:
		if cmd.Text != "" {
			card.SetDraft(cmd.Text)
		}
		s.spawn(func() { _ = card.SubmitComment(s.ctx) })
	case CommandShowMore:
		card.ShowMore()
	case CommandDismissError:
		card.DismissError()
	}
}

func (s *liveSession) spawn(fn func()) {
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		fn()
	}()
}

func (s *liveSession) watchPost(postID string) {
	if postID == "" {
		s.pushError("", fmt.Errorf("%w: missing post id", common.ErrInvalidInput))
		return
	}
	card := mutation.NewCard(s.h.engine, postID, func(v mutation.CardView) {
		s.push(Event{Type: EventPost, PostID: postID, Data: v})
	})
	s.mu.Lock()
	s.cards[postID] = card
	s.mu.Unlock()
	s.scope.Replace("post:"+postID, func() *live.Subscription {
		return card.Subscribe(s.ctx, s.h.store)
	})
}

func (s *liveSession) unwatchPost(postID string) {
	s.scope.Release("post:" + postID)
	s.mu.Lock()
	delete(s.cards, postID)
	s.mu.Unlock()
}

func (s *liveSession) card(postID string) *mutation.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards[postID]
}

func (s *liveSession) openNotification(key string) {
	postID, err := s.inbox.Open(s.ctx, key)
	if err != nil {
		s.pushError("", err)
		if postID == "" {
			return
		}
	}
	s.push(Event{Type: EventNavigate, PostID: postID})
	s.watchPost(postID)
}
