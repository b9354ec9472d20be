package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectkids/internal/opportunity"
	"connectkids/internal/session"
)

func TestSubmitLimiter(t *testing.T) {
	l := newSubmitLimiter(1, 2)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))
	assert.True(t, l.allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.allow("10.0.0.1"))

	now = now.Add(5 * time.Minute)
	l.sweep()
	assert.Empty(t, l.visitors)
}

func TestSubmitLimiterOnlyLimitsPosts(t *testing.T) {
	l := newSubmitLimiter(1, 1)
	h := l.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method string) int {
		req := httptest.NewRequest(method, "/CreateOpportunity", nil)
		req.RemoteAddr = "192.0.2.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve(http.MethodPost))
	assert.Equal(t, http.StatusTooManyRequests, serve(http.MethodPost))
	assert.Equal(t, http.StatusNoContent, serve(http.MethodGet))
}

func TestHandlerRejectsPostWithoutCSRFToken(t *testing.T) {
	fb := newFakeBackend()
	s := newTestServer(t, fb, false)

	req := httptest.NewRequest(http.MethodPost, "/CreateOpportunity", strings.NewReader(exampleForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "tok-organizer"})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, parse(t, rec).Find("#error-page").Length())
	assert.Empty(t, fb.createCalls())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func cookieValue(rec *httptest.ResponseRecorder, name string) (string, bool) {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name && c.MaxAge >= 0 {
			return c.Value, true
		}
	}
	return "", false
}

func TestHandlerIgnoresTokenInPageURL(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), false)

	req := httptest.NewRequest(http.MethodGet, "/CreateOpportunity?access_token=tok-organizer", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "https://login.example.org/"))
	_, ok := cookieValue(rec, session.CookieName)
	assert.False(t, ok)
}

func TestAuthCallbackRequiresMatchingState(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), false)

	cases := map[string]*http.Cookie{
		"no state cookie":    nil,
		"foreign state":      {Name: loginStateCookie, Value: "someone-else"},
		"empty state cookie": {Name: loginStateCookie, Value: ""},
	}
	for name, cookie := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, callbackPath+"?state=abc&from_url=%2FCreateOpportunity&access_token=tok-organizer", nil)
			if cookie != nil {
				req.AddCookie(cookie)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 1, parse(t, rec).Find("#error-page").Length())
			_, ok := cookieValue(rec, session.CookieName)
			assert.False(t, ok)
		})
	}
}

func TestAuthCallbackStoresToken(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), false)

	start := httptest.NewRecorder()
	s.Handler().ServeHTTP(start, httptest.NewRequest(http.MethodGet, "/CreateOpportunity", nil))
	require.Equal(t, http.StatusSeeOther, start.Code)
	state, ok := cookieValue(start, loginStateCookie)
	require.True(t, ok)

	q := url.Values{
		"state":        {state},
		"from_url":     {"/CreateOpportunity"},
		"access_token": {"tok-organizer"},
	}
	req := httptest.NewRequest(http.MethodGet, callbackPath+"?"+q.Encode(), nil)
	req.AddCookie(&http.Cookie{Name: loginStateCookie, Value: state})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/CreateOpportunity", rec.Header().Get("Location"))
	token, ok := cookieValue(rec, session.CookieName)
	require.True(t, ok)
	assert.Equal(t, "tok-organizer", token)
	_, ok = cookieValue(rec, loginStateCookie)
	assert.False(t, ok)

	rec = get(t, s, "/CreateOpportunity", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthCallbackOnlyForHostedLogin(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), true)

	rec := get(t, s, callbackPath+"?state=abc&access_token=tok-organizer", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketReceivesInvalidation(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan []byte, 1)
	go func() {
		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- msg
		}
	}()

	// registration with the hub races the dial, so keep invalidating until
	// a message arrives
	deadline := time.After(2 * time.Second)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.listings.Invalidate(opportunity.ListingsKey...)
		select {
		case msg := <-received:
			var got struct {
				Type string `json:"type"`
				Data struct {
					Key []string `json:"key"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(msg, &got))
			assert.Equal(t, "invalidate", got.Type)
			assert.Equal(t, []string{"opportunities"}, got.Data.Key)
			return
		case <-deadline:
			t.Fatal("no invalidation received")
		case <-ticker.C:
		}
	}
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, newFakeBackend(), false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	header := http.Header{"Origin": {"https://evil.example.org"}}
	_, resp, err := websocket.DefaultDialer.Dial(strings.Replace(ts.URL, "http", "ws", 1)+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
