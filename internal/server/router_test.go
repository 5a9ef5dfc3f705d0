package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sailchat/internal/auth"
	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/datamodels/listing"
	"github.com/example/sailchat/internal/datamodels/user"
	"github.com/example/sailchat/internal/monitor"
	"github.com/example/sailchat/internal/repository/sqlstore"
	"github.com/example/sailchat/internal/service"
	"github.com/example/sailchat/internal/snapshot"
)

const (
	buyerID    = int64(1)
	sellerID   = int64(2)
	outsiderID = int64(3)
)

var testJWT = &config.JWTConfig{Secret: "router-test"}

type testServer struct {
	app    *iris.Application
	tokens map[int64]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gdb, err := sqlstore.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", MaxOpenConns: 1, LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, sqlstore.Migrate(gdb))
	require.NoError(t, gdb.AutoMigrate(&listing.Listing{}, &user.User{}))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	price := int64(25000)
	require.NoError(t, gdb.Create(&listing.Listing{ID: 10, UserID: sellerID, Title: "Dinghy", PriceAmount: &price, PriceCurrency: "EUR", Status: listing.StatusActive}).Error)
	require.NoError(t, gdb.Create(&listing.Listing{ID: 11, UserID: sellerID, Title: "Oars", Status: listing.StatusSold}).Error)
	for _, u := range []*user.User{
		{ID: buyerID, Username: "alice", DisplayName: "Alice"},
		{ID: sellerID, Username: "bob"},
		{ID: outsiderID, Username: "eve"},
	} {
		require.NoError(t, gdb.Create(u).Error)
	}

	mon := monitor.New(prometheus.NewRegistry())
	app := iris.New()
	RegisterRoutes(app, Deps{
		Chat:     service.NewChatService(sqlstore.NewChatRepository(gdb)),
		Resolver: snapshot.NewResolver(sqlstore.NewListingRepository(gdb), sqlstore.NewUserRepository(gdb), nil),
		Auth:     auth.NewAuthenticator(testJWT, nil),
		Monitor:  mon,
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, app.Build())

	s := &testServer{app: app, tokens: map[int64]string{}}
	for _, id := range []int64{buyerID, sellerID, outsiderID} {
		token, err := auth.GenerateToken(testJWT, id, "")
		require.NoError(t, err)
		s.tokens[id] = token
	}
	return s
}

// do 发请求并解析 {"code":..., "data":...} 响应
func (s *testServer) do(t *testing.T, method, path string, as int64, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != 0 {
		req.Header.Set("Authorization", "Bearer "+s.tokens[as])
	}
	rec := httptest.NewRecorder()
	s.app.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	d, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return d
}

func (s *testServer) createThread(t *testing.T, body string) string {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{
		"listing_id": 10,
		"message":    map[string]any{"body": body},
	})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, code, resp)
	view := data(t, resp)["thread"].(map[string]any)
	return view["thread"].(map[string]any)["id"].(string)
}

func TestRequiresToken(t *testing.T) {
	s := newTestServer(t)
	code, resp := s.do(t, http.MethodGet, "/api/chat/threads", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, float64(401), resp["code"])

	code, _ = s.do(t, http.MethodGet, "/api/health", 0, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCreateThreadFlow(t *testing.T) {
	s := newTestServer(t)

	code, resp := s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{
		"listing_id": 10,
		"message":    map[string]any{"body": "  Is it still available?  "},
	})
	require.Equal(t, http.StatusCreated, code, resp)
	d := data(t, resp)
	assert.Equal(t, true, d["created"])
	msg := d["message"].(map[string]any)
	assert.Equal(t, "Is it still available?", msg["body"])
	assert.Equal(t, "Alice", msg["sender_display_name"])
	assert.Equal(t, false, msg["is_deleted"])

	view := d["thread"].(map[string]any)
	thread := view["thread"].(map[string]any)
	assert.Equal(t, "Dinghy", thread["listing_title"])
	assert.Equal(t, float64(25000), thread["listing_price_amount"])
	assert.Equal(t, "bob", view["counterpart"].(map[string]any)["display_name"])

	code, resp = s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{"listing_id": 10})
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, false, data(t, resp)["created"])
	assert.Nil(t, data(t, resp)["message"])

	code, resp = s.do(t, http.MethodGet, "/api/chat/threads?role=seller&unread=true", sellerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	list := resp["data"].([]any)
	require.Len(t, list, 1)
	me := list[0].(map[string]any)["me"].(map[string]any)
	assert.Equal(t, float64(1), me["unread_count"])
	assert.Equal(t, "seller", me["role"])
}

func TestCreateThreadRejections(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, http.MethodPost, "/api/chat/threads", sellerID, map[string]any{"listing_id": 10})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{"listing_id": 11})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{"listing_id": 404})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, http.MethodPost, "/api/chat/threads", buyerID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := s.do(t, http.MethodGet, "/api/chat/threads?role=admin", buyerID, nil)
	assert.Equal(t, http.StatusBadRequest, code, resp)
}

func TestMessagesAndReadState(t *testing.T) {
	s := newTestServer(t)
	threadID := s.createThread(t, "hello")
	base := "/api/chat/threads/" + threadID

	code, resp := s.do(t, http.MethodPost, base+"/messages", sellerID, map[string]any{
		"body":        "yes, come by",
		"attachments": []map[string]any{{"type": "image", "url": "/uploads/dinghy.jpg", "width": 640, "height": 480}},
	})
	require.Equal(t, http.StatusCreated, code, resp)

	code, resp = s.do(t, http.MethodPost, base+"/messages", sellerID, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code, resp)

	code, resp = s.do(t, http.MethodGet, base+"/messages?limit=1", buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	page := data(t, resp)
	msgs := page["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "yes, come by", msgs[0].(map[string]any)["body"])
	assert.Equal(t, true, page["has_more"])
	next := page["next_before"].(string)
	require.NotEmpty(t, next)

	code, resp = s.do(t, http.MethodGet, base+"/messages?limit=1&before="+next, buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	msgs = data(t, resp)["messages"].([]any)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].(map[string]any)["body"])
	assert.Equal(t, false, data(t, resp)["has_more"])

	code, _ = s.do(t, http.MethodGet, base+"/messages?before=%25%25", buyerID, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(t, http.MethodPost, base+"/read", buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, float64(0), data(t, resp)["unread_count"])

	code, _ = s.do(t, http.MethodGet, base, outsiderID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodGet, "/api/chat/threads/00000000-0000-0000-0000-000000000000", buyerID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDeleteMessageAndThread(t *testing.T) {
	s := newTestServer(t)
	threadID := s.createThread(t, "first")
	base := "/api/chat/threads/" + threadID

	code, resp := s.do(t, http.MethodGet, base+"/messages", buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	msgID := data(t, resp)["messages"].([]any)[0].(map[string]any)["id"].(string)

	code, _ = s.do(t, http.MethodDelete, base+"/messages/"+msgID, sellerID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = s.do(t, http.MethodDelete, base+"/messages/"+msgID, buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, true, data(t, resp)["is_deleted"])
	assert.Equal(t, "", data(t, resp)["body"])

	code, resp = s.do(t, http.MethodPost, base+"/archive", sellerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, true, data(t, resp)["is_archived"])

	code, resp = s.do(t, http.MethodGet, "/api/chat/threads?archived=false", sellerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Empty(t, resp["data"])

	code, _ = s.do(t, http.MethodDelete, base, buyerID, nil)
	require.Equal(t, http.StatusOK, code)
	code, resp = s.do(t, http.MethodGet, "/api/chat/threads", buyerID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp["data"])
}

func TestListingStatusAndSync(t *testing.T) {
	s := newTestServer(t)
	s.createThread(t, "hi")

	code, resp := s.do(t, http.MethodGet, "/api/chat/listings/status?ids=10,11,99", buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, map[string]any{
		"10": string(chat.ListingAvailable),
		"11": string(chat.ListingUnavailable),
		"99": string(chat.ListingDeleted),
	}, resp["data"])

	ids := make([]int64, snapshot.MaxBulkListings+1)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	code, _ = s.do(t, http.MethodPost, "/api/chat/listings/status", buyerID, map[string]any{"ids": ids})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodGet, "/api/chat/listings/status?ids=abc", buyerID, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = s.do(t, http.MethodPost, "/api/chat/listings/sync-availability", buyerID, nil)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, float64(1), data(t, resp)["synced"])
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{chat.ErrNotFound, http.StatusNotFound},
		{chat.ErrListingUnavailable, http.StatusNotFound},
		{&chat.ValidationError{Field: "body", Reason: "too long"}, http.StatusBadRequest},
		{chat.ErrSelfContact, http.StatusBadRequest},
		{chat.ErrInvalidCursor, http.StatusBadRequest},
		{snapshot.ErrTooManyListings, http.StatusBadRequest},
		{chat.ErrNotAParticipant, http.StatusForbidden},
		{chat.ErrNotSender, http.StatusForbidden},
		{chat.ErrTransientStore, http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, statusOf(c.err), c.err.Error())
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs(" 1, 2,,3 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	_, err = parseIDs("1,-2")
	assert.Error(t, err)
}
