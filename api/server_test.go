package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/folio/content"
	"github.com/pevans/folio/feed"
	"github.com/pevans/folio/session"
	"github.com/pevans/folio/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testCollections = []feed.Collection{
	{Path: "news", Title: "Blog", PageSize: 5, Sortable: true},
	{Path: "projects", Title: "My Projects", PageSize: 8},
}

type testServer struct {
	server *Server
	router *gin.Engine
	store  *store.MemoryStore
	tokens *session.Tokens
}

// Test helper: create a router over a memory store
func setupTestRouter(t *testing.T) *testServer {
	t.Helper()
	tokens, err := session.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	server := NewServer(st, Options{
		Collections: testCollections,
		Tokens:      tokens,
		Location:    time.UTC,
	})
	t.Cleanup(func() {
		server.Close()
		st.Close()
	})

	return &testServer{
		server: server,
		router: server.SetupRouter(),
		store:  st,
		tokens: tokens,
	}
}

func (ts *testServer) token(t *testing.T, role session.Role) string {
	t.Helper()
	signed, err := ts.tokens.Issue(session.User{UID: "u1", Email: "someone@example.com", Role: role})
	require.NoError(t, err)
	return signed
}

func (ts *testServer) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) seed(t *testing.T, path, title string, hoursAfter int, forAdmin bool) string {
	t.Helper()
	date := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC).Add(time.Duration(hoursAfter) * time.Hour)
	id, err := ts.store.Create(context.Background(), path, content.Record{
		Title:    title,
		Text:     "About " + title,
		ImageURL: "https://img.example.com/" + title + ".png",
		Source:   "https://example.com/" + title,
		Date:     content.FormatDate(date),
		ForAdmin: forAdmin,
	})
	require.NoError(t, err)
	return id
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp store.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error.Code
}

const validRecord = `{"title":"Launch","text":"We shipped","imageUrl":"https://img.example.com/l.png","source":"https://example.com/l"}`

// TestListCollections verifies configured collections are listed in order
func TestListCollections(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(http.MethodGet, "/api/v1/collections", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListCollectionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "news", resp.Collections[0].Path)
	assert.Equal(t, "My Projects", resp.Collections[1].Title)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// TestCreateRecord_Auth verifies only admins may write
func TestCreateRecord_Auth(t *testing.T) {
	ts := setupTestRouter(t)

	other, err := session.NewTokens("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(session.User{Email: "x@example.com", Role: session.RoleAdmin})
	require.NoError(t, err)

	tests := []struct {
		name       string
		token      string
		expectCode int
		errCode    string
	}{
		{"no token", "", http.StatusUnauthorized, "unauthorized"},
		{"forged token", forged, http.StatusUnauthorized, "unauthorized"},
		{"user", ts.token(t, session.RoleUser), http.StatusForbidden, "forbidden"},
		{"admin", ts.token(t, session.RoleAdmin), http.StatusCreated, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/v1/collections/news/records", tt.token, validRecord)
			require.Equal(t, tt.expectCode, w.Code, w.Body.String())
			if tt.errCode != "" {
				assert.Equal(t, tt.errCode, errorCode(t, w))
				return
			}

			var resp store.CreateResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			item, err := ts.store.Get(context.Background(), "news", resp.ID)
			require.NoError(t, err)
			assert.Equal(t, "Launch", item.Title)
			assert.False(t, content.ParseDate(item.Date).IsZero(), "date is stamped")
		})
	}
}

// TestCreateRecord_Validation verifies incomplete records are refused
func TestCreateRecord_Validation(t *testing.T) {
	ts := setupTestRouter(t)
	admin := ts.token(t, session.RoleAdmin)

	tests := []struct {
		name string
		body string
	}{
		{"missing title", `{"text":"t","imageUrl":"i","source":"s"}`},
		{"missing image", `{"title":"t","text":"t","source":"s"}`},
		{"bad date", `{"title":"t","text":"t","imageUrl":"i","source":"s","date":"soon"}`},
		{"not json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/v1/collections/news/records", admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	items, err := ts.store.List(context.Background(), "news", store.OrderByDate)
	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestUnknownCollection verifies unconfigured paths are 404
func TestUnknownCollection(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(http.MethodGet, "/api/v1/collections/secrets/records", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown_collection", errorCode(t, w))
}

// TestGetRecord verifies single record lookups
func TestGetRecord(t *testing.T) {
	ts := setupTestRouter(t)
	id := ts.seed(t, "news", "hello", 0, false)

	w := ts.do(http.MethodGet, "/api/v1/collections/news/records/"+id, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var item content.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, id, item.ID)
	assert.Equal(t, "hello", item.Title)

	w = ts.do(http.MethodGet, "/api/v1/collections/news/records/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", errorCode(t, w))

	w = ts.do(http.MethodGet, "/api/v1/collections/projects/records/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "records are scoped to their collection")

	secret := ts.seed(t, "news", "secret", 1, true)
	for _, role := range []session.Role{session.RoleNone, session.RoleUser} {
		token := ""
		if role != session.RoleNone {
			token = ts.token(t, role)
		}
		w = ts.do(http.MethodGet, "/api/v1/collections/news/records/"+secret, token, "")
		assert.Equal(t, http.StatusNotFound, w.Code, "admin-only record hidden from %q", role)
	}
	w = ts.do(http.MethodGet, "/api/v1/collections/news/records/"+secret, ts.token(t, session.RoleAdmin), "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestListRecords verifies the collection is returned oldest first, with
// admin-only records for admins only
func TestListRecords(t *testing.T) {
	ts := setupTestRouter(t)
	newer := ts.seed(t, "news", "newer", 2, false)
	older := ts.seed(t, "news", "older", 0, true)

	list := func(token string) store.ListResponse {
		t.Helper()
		w := ts.do(http.MethodGet, "/api/v1/collections/news/records?orderBy=date", token, "")
		require.Equal(t, http.StatusOK, w.Code)
		var resp store.ListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	resp := list(ts.token(t, session.RoleAdmin))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, []string{older, newer}, []string{resp.Items[0].ID, resp.Items[1].ID})

	for _, token := range []string{"", ts.token(t, session.RoleUser)} {
		resp = list(token)
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, newer, resp.Items[0].ID)
	}
}

// TestUpdateRecord verifies patches are merged
func TestUpdateRecord(t *testing.T) {
	ts := setupTestRouter(t)
	admin := ts.token(t, session.RoleAdmin)
	id := ts.seed(t, "news", "hello", 0, false)

	w := ts.do(http.MethodPatch, "/api/v1/collections/news/records/"+id, admin, `{"title":"Renamed","forAdmin":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var item content.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &item))
	assert.Equal(t, "Renamed", item.Title)
	assert.True(t, item.ForAdmin)
	assert.Equal(t, "About hello", item.Text)

	w = ts.do(http.MethodPatch, "/api/v1/collections/news/records/missing", admin, `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPatch, "/api/v1/collections/news/records/"+id, ts.token(t, session.RoleUser), `{"title":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// TestDeleteRecord verifies deletes and idempotence
func TestDeleteRecord(t *testing.T) {
	ts := setupTestRouter(t)
	admin := ts.token(t, session.RoleAdmin)
	id := ts.seed(t, "news", "hello", 0, false)

	w := ts.do(http.MethodDelete, "/api/v1/collections/news/records/"+id, admin, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err := ts.store.Get(context.Background(), "news", id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	w = ts.do(http.MethodDelete, "/api/v1/collections/news/records/"+id, admin, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodDelete, "/api/v1/collections/news/records/"+id, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestFeed verifies the derived view follows the caller's role
func TestFeed(t *testing.T) {
	ts := setupTestRouter(t)
	for i := 0; i < 6; i++ {
		ts.seed(t, "news", "post"+string(rune('a'+i)), i, false)
	}
	ts.seed(t, "news", "secret", 10, true)
	admin := ts.token(t, session.RoleAdmin)

	tests := []struct {
		name      string
		query     string
		token     string
		wantTotal int
		wantLen   int
		wantFirst string
		wantMore  bool
	}{
		{"anonymous", "", "", 6, 5, "postf", true},
		{"second page", "?page=2", "", 6, 6, "postf", false},
		{"ascending", "?sort=asc", "", 6, 5, "posta", true},
		{"search", "?q=POSTC", "", 1, 1, "postc", false},
		{"admin hides by default", "", admin, 6, 5, "postf", true},
		{"admin shows", "?show_admin=true", admin, 7, 5, "secret", true},
		{"user cannot show", "?show_admin=true", ts.token(t, session.RoleUser), 6, 5, "postf", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodGet, "/api/v1/collections/news/feed"+tt.query, tt.token, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp FeedResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "Blog", resp.Collection)
			assert.Equal(t, tt.wantTotal, resp.Total)
			assert.Len(t, resp.Items, tt.wantLen)
			assert.Equal(t, tt.wantFirst, resp.Items[0].Title)
			assert.Equal(t, tt.wantMore, resp.HasMore)
			assert.Equal(t, 5, resp.PageSize)
			assert.Equal(t, "example.com", resp.Items[0].Host)
		})
	}

	w := ts.do(http.MethodGet, "/api/v1/collections/news/feed?sort=sideways", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodGet, "/api/v1/collections/news/feed?page=0", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestFeed_UnsortableIgnoresSort verifies collections without a sort toggle
// stay newest first
func TestFeed_UnsortableIgnoresSort(t *testing.T) {
	ts := setupTestRouter(t)
	ts.seed(t, "projects", "first", 0, false)
	ts.seed(t, "projects", "second", 1, false)

	w := ts.do(http.MethodGet, "/api/v1/collections/projects/feed?sort=asc", "", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp FeedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "second", resp.Items[0].Title)
	assert.Equal(t, feed.Desc, resp.Order)
}

// TestCORS verifies preflight requests short-circuit
func TestCORS(t *testing.T) {
	ts := setupTestRouter(t)

	w := ts.do(http.MethodOptions, "/api/v1/collections/news/records", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
