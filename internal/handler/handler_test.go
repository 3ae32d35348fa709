package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/cinelist/internal/config"
	"github.com/user/cinelist/internal/handler"
	"github.com/user/cinelist/internal/model"
	"github.com/user/cinelist/internal/realtime"
	"github.com/user/cinelist/internal/repository"
	"github.com/user/cinelist/internal/repository/testhelper"
	"github.com/user/cinelist/internal/router"
	"github.com/user/cinelist/internal/service"
	"github.com/user/cinelist/internal/store"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
}

type itemsData struct {
	Items   []model.Item `json:"items"`
	Summary struct {
		Count         int      `json:"count"`
		AverageRating *float64 `json:"average_rating"`
	} `json:"summary"`
	Ready   bool   `json:"ready"`
	Version uint64 `json:"version"`
}

type platformsData struct {
	Added     bool `json:"added"`
	Platforms []struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	} `json:"platforms"`
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testhelper.SetupTestDB(t)
	broker := realtime.NewLocalBroker()
	hub := service.NewHub(store.New(repository.NewItemRepository(db), broker), time.Minute)
	t.Cleanup(func() {
		hub.Close()
		broker.Close()
	})

	cfg := &config.Config{
		Env:            "test",
		AppSecret:      "test-secret",
		IdentityExpiry: time.Hour,
		ViewIdleTTL:    time.Minute,
	}

	r := gin.New()
	r.Use(sessions.Sessions("cinelist", cookie.NewStore([]byte(cfg.AppSecret))))
	router.RegisterRoutes(r, handler.NewHandler(hub, cfg))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{t: t, base: srv.URL, http: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (c *client) do(method, path string, body interface{}) (int, envelope) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	_ = json.NewDecoder(resp.Body).Decode(&env)
	return resp.StatusCode, env
}

func (c *client) join(code string) {
	c.t.Helper()
	status, _ := c.do(http.MethodPost, "/api/list/join", map[string]string{"code": code})
	require.Equal(c.t, http.StatusOK, status)
}

func (c *client) items(query string) itemsData {
	c.t.Helper()
	status, env := c.do(http.MethodGet, "/api/items"+query, nil)
	require.Equal(c.t, http.StatusOK, status)
	var data itemsData
	require.NoError(c.t, json.Unmarshal(env.Data, &data))
	return data
}

func (c *client) waitItems(query string, cond func(itemsData) bool) itemsData {
	c.t.Helper()
	var data itemsData
	require.Eventually(c.t, func() bool {
		data = c.items(query)
		return data.Ready && cond(data)
	}, 3*time.Second, 20*time.Millisecond)
	return data
}

func (c *client) add(title, typ, platform string) model.Item {
	c.t.Helper()
	status, env := c.do(http.MethodPost, "/api/items", map[string]string{
		"title": title, "type": typ, "platform": platform,
	})
	require.Equal(c.t, http.StatusCreated, status, env.Message)
	var item model.Item
	require.NoError(c.t, json.Unmarshal(env.Data, &item))
	return item
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnonymousIdentityIssued(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	status, _ := c.do(http.MethodGet, "/api/list", nil)
	assert.Equal(t, http.StatusConflict, status)

	resp, err := c.http.Get(srv.URL + "/api/list")
	require.NoError(t, err)
	resp.Body.Close()
	var found bool
	for _, ck := range c.http.Jar.Cookies(resp.Request.URL) {
		if ck.Name == "token" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestJoinList(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	status, _ := c.do(http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = c.do(http.MethodPost, "/api/list/join", map[string]string{"code": "ab"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env := c.do(http.MethodPost, "/api/list/join", map[string]string{"code": " home "})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"code":"HOME"}`, string(env.Data))

	status, env = c.do(http.MethodGet, "/api/list", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"code":"HOME"}`, string(env.Data))

	data := c.waitItems("", func(itemsData) bool { return true })
	assert.Empty(t, data.Items)

	status, _ = c.do(http.MethodPost, "/api/list/leave", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = c.do(http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestItemLifecycle(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	item := c.add("Dune", "movie", "Netflix")
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "HOME", item.ListID)
	assert.Equal(t, model.StatusPending, item.Status)

	data := c.waitItems("", func(d itemsData) bool { return len(d.Items) == 1 })
	assert.Equal(t, item.ID, data.Items[0].ID)
	assert.Equal(t, 1, data.Summary.Count)

	// 非 0.5 步长的评分
	status, _ := c.do(http.MethodPost, "/api/items/"+item.ID+"/watched", map[string]interface{}{
		"rating": 7.3, "date": "2024-05-01",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodPost, "/api/items/"+item.ID+"/watched", map[string]interface{}{
		"rating": 8.5, "date": "2024-05-01", "review": "stunning",
	})
	require.Equal(t, http.StatusOK, status)

	history := c.waitItems("?tab=history", func(d itemsData) bool { return len(d.Items) == 1 })
	got := history.Items[0]
	assert.Equal(t, model.StatusWatched, got.Status)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 8.5, *got.Rating)
	require.NotNil(t, got.Review)
	assert.Equal(t, "stunning", *got.Review)
	require.NotNil(t, history.Summary.AverageRating)
	assert.Equal(t, 8.5, *history.Summary.AverageRating)
	assert.Empty(t, c.items("").Items)

	// 已看过的条目不可编辑
	status, _ = c.do(http.MethodPut, "/api/items/"+item.ID, map[string]string{"title": "Dune 2"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodDelete, "/api/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, status)
	c.waitItems("?tab=history", func(d itemsData) bool { return len(d.Items) == 0 })

	status, _ = c.do(http.MethodDelete, "/api/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestUpdateItem(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	item := c.add("Dune", "movie", "Netflix")
	c.waitItems("", func(d itemsData) bool { return len(d.Items) == 1 })

	status, _ := c.do(http.MethodPut, "/api/items/"+item.ID, map[string]string{"type": "documentary"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodPut, "/api/items/"+item.ID, map[string]string{"title": "Dune: Part One", "type": "series"})
	require.Equal(t, http.StatusOK, status)

	data := c.waitItems("", func(d itemsData) bool {
		return len(d.Items) == 1 && d.Items[0].Title == "Dune: Part One"
	})
	assert.Equal(t, model.TypeSeries, data.Items[0].Type)
	assert.Equal(t, "Netflix", data.Items[0].Platform)

	status, _ = c.do(http.MethodPut, "/api/items/missing", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAddItemValidation(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	status, _ := c.do(http.MethodPost, "/api/items", map[string]string{"title": "", "type": "movie", "platform": "Netflix"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodPost, "/api/items", map[string]string{"title": "Dune", "type": "book", "platform": "Netflix"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = c.do(http.MethodPost, "/api/items", map[string]string{"title": "Dune", "type": "movie", "platform": "HBO Max"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPlatforms(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	status, env := c.do(http.MethodPost, "/api/platforms", map[string]string{"name": " HBO Max "})
	require.Equal(t, http.StatusOK, status)
	var data platformsData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.Added)
	last := data.Platforms[len(data.Platforms)-1]
	assert.Equal(t, "HBO Max", last.Name)
	assert.Equal(t, "violet", last.Color)

	status, env = c.do(http.MethodPost, "/api/platforms", map[string]string{"name": "HBO Max"})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.False(t, data.Added)

	status, _ = c.do(http.MethodPost, "/api/platforms", map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, status)

	item := c.add("The Last of Us", "series", "HBO Max")
	assert.Equal(t, "HBO Max", item.Platform)
}

func TestListsAreSharedByCode(t *testing.T) {
	srv := newServer(t)
	alice := newClient(t, srv)
	bob := newClient(t, srv)
	carol := newClient(t, srv)
	alice.join("home")
	bob.join("HOME")
	carol.join("work")

	item := alice.add("Dune", "movie", "Netflix")

	data := bob.waitItems("", func(d itemsData) bool { return len(d.Items) == 1 })
	assert.Equal(t, item.ID, data.Items[0].ID)

	assert.Empty(t, carol.waitItems("", func(itemsData) bool { return true }).Items)
}

func TestOtherListCannotTouchItems(t *testing.T) {
	srv := newServer(t)
	alice := newClient(t, srv)
	mallory := newClient(t, srv)
	alice.join("home")
	mallory.join("work")

	item := alice.add("Dune", "movie", "Netflix")
	alice.waitItems("", func(d itemsData) bool { return len(d.Items) == 1 })

	status, _ := mallory.do(http.MethodPut, "/api/items/"+item.ID, map[string]string{"title": "Hijacked"})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = mallory.do(http.MethodPost, "/api/items/"+item.ID+"/watched", map[string]interface{}{
		"rating": 1, "date": "2024-05-01",
	})
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = mallory.do(http.MethodDelete, "/api/items/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)

	data := alice.items("")
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Dune", data.Items[0].Title)
}

func TestListItemsFilters(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	c.add("Dune", "movie", "Netflix")
	c.add("The Bear", "series", "Disney+")
	c.waitItems("", func(d itemsData) bool { return len(d.Items) == 2 })

	assert.Len(t, c.items("?type=series").Items, 1)
	assert.Len(t, c.items("?platform=Netflix").Items, 1)
	assert.Len(t, c.items("?q=BEAR").Items, 1)
	assert.Empty(t, c.items("?q=nothing").Items)

	status, _ := c.do(http.MethodGet, "/api/items?tab=archive", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStream(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)
	c.join("home")

	dialer := websocket.Dialer{Jar: c.http.Jar, HandshakeTimeout: 5 * time.Second}
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	type message struct {
		Type string    `json:"type"`
		Data itemsData `json:"data"`
	}
	read := func() message {
		var msg message
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "snapshot", first.Type)

	item := c.add("Dune", "movie", "Netflix")
	for {
		msg := read()
		if len(msg.Data.Items) == 1 {
			assert.Equal(t, item.ID, msg.Data.Items[0].ID)
			assert.True(t, msg.Data.Ready)
			break
		}
	}
}

func TestStreamRequiresList(t *testing.T) {
	srv := newServer(t)
	c := newClient(t, srv)

	dialer := websocket.Dialer{Jar: c.http.Jar, HandshakeTimeout: 5 * time.Second}
	// 先发起一次普通请求以获得身份
	c.do(http.MethodGet, "/api/list", nil)

	_, resp, err := dialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/stream", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
