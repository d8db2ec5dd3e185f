package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refreshOK    bool
	validToken   string
	seenTokens   sync.Map
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": code, "message": message, "data": data})
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "password123" {
			writeEnvelope(w, http.StatusUnauthorized, 40101, "invalid email or password", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, 0, "ok", map[string]interface{}{
			"user":          map[string]string{"_id": "u1", "email": body["email"]},
			"access_token":  f.validToken,
			"refresh_token": "refresh-1",
		})
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		time.Sleep(f.refreshDelay)
		if !f.refreshOK {
			writeEnvelope(w, http.StatusUnauthorized, 40100, "invalid refresh token", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, 0, "ok", map[string]string{"access_token": f.validToken})
	})
	mux.HandleFunc("/chat/my-chats", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		f.seenTokens.Store(token, true)
		if token != "Bearer "+f.validToken {
			writeEnvelope(w, http.StatusUnauthorized, 40102, "token expired", nil)
			return
		}
		writeEnvelope(w, http.StatusOK, 0, "ok", []map[string]string{{"_id": "c1", "title": "hello"}})
	})
	mux.HandleFunc("/chat/missing", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, 40402, "chat not found", nil)
	})
	return mux
}

func newFakeClient(t *testing.T, api *fakeAPI, tokens Tokens) *Client {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	store := NewMemoryTokenStore()
	require.NoError(t, store.Save(tokens))
	return New(srv.URL, WithHTTPClient(srv.Client()), WithTokenStore(store))
}

func TestConcurrentUnauthorizedCallsShareOneRefresh(t *testing.T) {
	api := &fakeAPI{refreshOK: true, validToken: "fresh", refreshDelay: 50 * time.Millisecond}
	c := newFakeClient(t, api, Tokens{AccessToken: "stale", RefreshToken: "refresh-1"})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chats, err := c.MyChats(context.Background())
			errs[i] = err
			if err == nil && len(chats) != 1 {
				errs[i] = errors.New("unexpected chat count")
			}
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())

	stored, err := c.Tokens().Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
}

func TestFailedRefreshFailsAllWaitersAndClearsTokens(t *testing.T) {
	api := &fakeAPI{refreshOK: false, validToken: "fresh", refreshDelay: 50 * time.Millisecond}
	c := newFakeClient(t, api, Tokens{AccessToken: "stale", RefreshToken: "refresh-1"})

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.MyChats(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), api.refreshCalls.Load())

	stored, err := c.Tokens().Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, stored)
}

func TestLoginFailureIsNotRetried(t *testing.T) {
	api := &fakeAPI{refreshOK: true, validToken: "fresh"}
	c := newFakeClient(t, api, Tokens{AccessToken: "stale", RefreshToken: "refresh-1"})

	_, err := c.Login(context.Background(), "ada@example.com", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, 40101, apiErr.Code)
	assert.Zero(t, api.refreshCalls.Load())
}

func TestLoginStoresTokensAndSendsBearer(t *testing.T) {
	api := &fakeAPI{validToken: "access-1"}
	c := newFakeClient(t, api, Tokens{})

	user, err := c.Login(context.Background(), "ada@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)

	chats, err := c.MyChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, "hello", chats[0].Title)

	_, seen := api.seenTokens.Load("Bearer access-1")
	assert.True(t, seen)
	assert.Zero(t, api.refreshCalls.Load())
}

func TestUnauthorizedWithoutRefreshTokenIsReturned(t *testing.T) {
	api := &fakeAPI{refreshOK: true, validToken: "fresh"}
	c := newFakeClient(t, api, Tokens{})

	_, err := c.MyChats(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, api.refreshCalls.Load())
}

func TestAPIErrorCarriesEnvelope(t *testing.T) {
	api := &fakeAPI{validToken: "fresh"}
	c := newFakeClient(t, api, Tokens{AccessToken: "fresh"})

	_, err := c.GetChat(context.Background(), "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, 40402, apiErr.Code)
	assert.Equal(t, "chat not found", apiErr.Message)
}

func TestFileTokenStore(t *testing.T) {
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "nested", "tokens.json"))

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, empty)

	want := Tokens{AccessToken: "a", RefreshToken: "r"}
	require.NoError(t, store.Save(want))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, got)
}
