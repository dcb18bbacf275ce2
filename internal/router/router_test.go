package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/client/internal/backend"
	"github.com/anonto42/nano-midea/client/internal/handlers"
	"github.com/anonto42/nano-midea/client/internal/identity"
	"github.com/anonto42/nano-midea/client/internal/images"
	"github.com/anonto42/nano-midea/client/internal/logging"
	"github.com/anonto42/nano-midea/client/internal/models"
	"github.com/anonto42/nano-midea/client/internal/notification"
	"github.com/anonto42/nano-midea/client/internal/repositories"
)

const secret = "test-secret"

// nameVerifier accepts any token except "bad" and uses it as the uid.
type nameVerifier struct{}

func (nameVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if idToken == "bad" {
		return nil, errors.New("token revoked")
	}
	return &auth.Token{UID: idToken, Claims: map[string]interface{}{"name": strings.ToUpper(idToken[:1]) + idToken[1:]}}, nil
}

type app struct {
	e        *echo.Echo
	store    *backend.Memory
	storage  *images.MemorySource
	notifier *notification.Notifier
}

func newApp(t *testing.T) *app {
	t.Helper()
	store := backend.NewMemory()
	storage := images.NewMemorySource()
	log := logging.Discard()

	users := repositories.NewStoreUserRepository(store)
	resolver := identity.NewResolver(identity.NewCell(), identity.NewMemorySessionStore(), users, nameVerifier{}, log)
	notifier := notification.NewNotifier(repositories.NewStoreNotificationRepository(store), nil, log)
	t.Cleanup(func() {
		notifier.Close()
		resolver.Close()
	})

	e := echo.New()
	SetupRoutes(e, Dependencies{
		Store:         store,
		Resolver:      resolver,
		Storage:       storage,
		Notifier:      notifier,
		Shown:         notification.NewShownSet(),
		SessionSecret: secret,
		SessionTTL:    time.Hour,
		Live:          handlers.LiveOptions{PageSize: 10, AlertDuration: time.Minute},
		Logger:        log,
	})
	return &app{e: e, store: store, storage: storage, notifier: notifier}
}

func (a *app) do(t *testing.T, method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) json(t *testing.T, method, path, token string, v interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if v != nil {
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return a.do(t, method, path, token, body, echo.MIMEApplicationJSON)
}

func (a *app) signIn(t *testing.T, uid string) string {
	t.Helper()
	rec := a.json(t, http.MethodPost, "/api/v1/session", "", models.SignInRequest{IDToken: uid})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		UID   string `json:"uid"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, uid, out.UID)
	return out.Token
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), w.FormDataContentType()
}

func (a *app) createPost(t *testing.T, token, content string, files map[string]string) models.Post {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"content": content}, files)
	rec := a.do(t, http.MethodPost, "/api/v1/posts", token, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var post models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &post))
	return post
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestSession_RequiredAndBadToken(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodGet, "/api/v1/profile", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/session", "", models.SignInRequest{IDToken: "bad"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.json(t, http.MethodPost, "/api/v1/session", "", echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSession_SwitchInvalidatesOldToken(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")

	rec := a.do(t, http.MethodGet, "/api/v1/profile", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var profile handlers.ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, models.TierBasic, profile.Tier)
	assert.Empty(t, profile.Badge)

	bob := a.signIn(t, "bob")
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/profile", alice, nil, "").Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, "/api/v1/profile", bob, nil, "").Code)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/session", bob, nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/api/v1/profile", bob, nil, "").Code)
}

func TestPosts_CreateResolveLikeComment(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")

	post := a.createPost(t, alice, "hello", map[string]string{"Photo.JPG": "jpeg-bytes"})
	require.Len(t, post.ImageURLs, 1)
	assert.True(t, strings.HasSuffix(post.ImageURLs[0], ".jpg"))
	assert.Equal(t, "Alice", post.AuthorName)

	rec := a.do(t, http.MethodGet, "/api/v1/images/alice/"+post.ImageURLs[0], alice, nil, "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "memory:///images/alice/"+post.ImageURLs[0], rec.Header().Get("Location"))

	rec = a.do(t, http.MethodGet, "/api/v1/images/alice/missing.png", alice, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	bob := a.signIn(t, "bob")
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/like", bob, nil, "").Code)

	rec = a.json(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", bob, echo.Map{"text": "nice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.json(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/comments", bob, echo.Map{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/posts/"+post.ID, bob, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"bob"}, got.Likes)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "Bob", got.Comments[0].Name)

	a.notifier.Close()
	snaps, err := a.store.Find(context.Background(), repositories.NewStoreNotificationRepository(a.store).ListQuery("alice"))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/posts/nope", bob, nil, "").Code)
}

func TestPosts_OnlyAuthorEdits(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")
	post := a.createPost(t, alice, "draft", map[string]string{"a.png": "a", "b.png": "b"})
	require.Len(t, post.ImageURLs, 2)

	body, ct := multipartBody(t, map[string]string{"content": "final", "keep": post.ImageURLs[1]}, map[string]string{"c.png": "c"})
	rec := a.do(t, http.MethodPut, "/api/v1/posts/"+post.ID, alice, body, ct)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/posts/"+post.ID, alice, nil, "")
	var got models.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "final", got.Content)
	require.Len(t, got.ImageURLs, 2)
	assert.Equal(t, post.ImageURLs[1], got.ImageURLs[0])
	assert.True(t, strings.HasSuffix(got.ImageURLs[1], ".png"))

	bob := a.signIn(t, "bob")
	rec = a.json(t, http.MethodPut, "/api/v1/posts/"+post.ID, bob, echo.Map{"content": "mine now"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodDelete, "/api/v1/posts/"+post.ID, bob, nil, "").Code)
}

func TestProfile_UpdateAndImages(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")

	rec := a.json(t, http.MethodPut, "/api/v1/profile", alice, models.UpdateProfileRequest{Name: "Alice L", Bio: "hi", Birthday: "1990-04-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"Alice L"`)

	rec = a.json(t, http.MethodPut, "/api/v1/profile", alice, models.UpdateProfileRequest{Name: "A", Birthday: "April"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("image", "me.png")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("png"))
	require.NoError(t, w.Close())

	rec = a.do(t, http.MethodPut, "/api/v1/profile/images/cover", alice, buf.Bytes(), w.FormDataContentType())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var profile handlers.ProfileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.True(t, strings.HasSuffix(profile.CoverPhoto, ".png"))

	rec = a.do(t, http.MethodPut, "/api/v1/profile/images/banner", alice, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscriptions_SubmitAndTier(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")

	fields := map[string]string{"package": "premium", "phone": "+15550100", "email": "a@example.com"}
	body, ct := multipartBody(t, fields, nil)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/subscriptions", alice, body, ct).Code)

	body, ct = multipartBody(t, fields, map[string]string{"id.jpg": "id"})
	rec := a.do(t, http.MethodPost, "/api/v1/subscriptions", alice, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/subscriptions/tier/alice", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tier":"premium","badge":"badge-premium"}`, rec.Body.String())
}

func TestNotifications_ListAndRead(t *testing.T) {
	a := newApp(t)
	alice := a.signIn(t, "alice")
	post := a.createPost(t, alice, "hello", nil)

	bob := a.signIn(t, "bob")
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodPost, "/api/v1/posts/"+post.ID+"/like", bob, nil, "").Code)
	a.notifier.Close()

	alice = a.signIn(t, "alice")
	rec := a.do(t, http.MethodGet, "/api/v1/notifications/unread-count", alice, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":1,"badge":"1"}`, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/api/v1/notifications", alice, nil, "")
	var items []models.Notification
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Bob liked your post", items[0].Message())

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodPut, "/api/v1/notifications/"+items[0].Key+"/read", alice, nil, "").Code)
	rec = a.do(t, http.MethodGet, "/api/v1/notifications/unread-count", alice, nil, "")
	assert.JSONEq(t, `{"count":0,"badge":""}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodPut, "/api/v1/notifications/nope/read", alice, nil, "").Code)
}

type wireEvent struct {
	Type   string          `json:"type"`
	PostID string          `json:"postId"`
	Data   json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(wireEvent) bool) wireEvent {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var ev wireEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if match(ev) {
			return ev
		}
	}
}

func TestLive_FeedCardAndAlert(t *testing.T) {
	a := newApp(t)
	bob := a.signIn(t, "bob")
	bobPost := a.createPost(t, bob, "from bob", nil)

	alice := a.signIn(t, "alice")
	post := a.createPost(t, alice, "from alice", nil)

	srv := httptest.NewServer(a.e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?token=" + alice
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readUntil(t, conn, func(ev wireEvent) bool {
		return ev.Type == handlers.EventFeed && strings.Contains(string(ev.Data), `"state":"exhausted"`)
	})
	var view struct {
		Posts   []models.Post `json:"posts"`
		HasMore bool          `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(ev.Data, &view))
	require.Len(t, view.Posts, 2)
	assert.Equal(t, post.ID, view.Posts[0].ID)
	assert.False(t, view.HasMore)

	require.NoError(t, conn.WriteJSON(handlers.Command{Type: handlers.CommandWatchPost, PostID: bobPost.ID}))
	readUntil(t, conn, func(ev wireEvent) bool { return ev.Type == handlers.EventPost && ev.PostID == bobPost.ID })

	require.NoError(t, conn.WriteJSON(handlers.Command{Type: handlers.CommandLike, PostID: bobPost.ID}))
	ev = readUntil(t, conn, func(ev wireEvent) bool {
		return ev.Type == handlers.EventPost && strings.Contains(string(ev.Data), `"liked":true`)
	})
	assert.Contains(t, string(ev.Data), `"likeCount":1`)

	require.NoError(t, conn.WriteJSON(handlers.Command{Type: handlers.CommandLike, PostID: "unknown"}))
	readUntil(t, conn, func(ev wireEvent) bool { return ev.Type == handlers.EventError })

	// an entry appended for alice by someone else raises exactly one alert
	repo := repositories.NewStoreNotificationRepository(a.store)
	_, err = repo.Append(context.Background(), "alice", models.Notification{
		ActorName: "Carol", Kind: models.NotificationComment, PostID: post.ID, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	var (
		alert  notification.Alert
		listed bool
	)
	readUntil(t, conn, func(ev wireEvent) bool {
		switch ev.Type {
		case handlers.EventAlert:
			require.NoError(t, json.Unmarshal(ev.Data, &alert))
		case handlers.EventNotifications:
			listed = listed || strings.Contains(string(ev.Data), "Carol")
		}
		return alert.Key != "" && listed
	})
	assert.Equal(t, "Carol commented on your post", alert.Message)

	require.NoError(t, conn.WriteJSON(handlers.Command{Type: handlers.CommandOpenNotification, Key: alert.Key}))
	ev = readUntil(t, conn, func(ev wireEvent) bool { return ev.Type == handlers.EventNavigate })
	assert.Equal(t, post.ID, ev.PostID)

	// signing out ends the session
	require.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/session", alice, nil, "").Code)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
