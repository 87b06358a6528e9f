package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-mystery/internal/config"
	"github.com/npezzotti/go-mystery/internal/database"
	"github.com/npezzotti/go-mystery/internal/game"
	"github.com/npezzotti/go-mystery/internal/server"
	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/stats"
	"github.com/npezzotti/go-mystery/internal/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testConfig = &config.Config{
	ServerAddr:     "localhost:8080",
	SigningKey:     []byte("test-signing-key"),
	AllowedOrigins: []string{"http://localhost:3000"},
}

type testApp struct {
	*App
	store *database.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	log := testutil.TestLogger(t)
	tickers := &database.ManualTickers{}
	store := database.NewMemoryStore(log, database.MemoryStoreOptions{NewTicker: tickers.NewTicker})
	t.Cleanup(func() { store.Close() })

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	svc := game.NewService(store, log, su)
	gs := server.NewGameServer(log, store, svc, su)
	go gs.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		gs.Shutdown(ctx)
	})

	return &testApp{
		App:   NewApp(http.NewServeMux(), log, gs, svc, store, testConfig),
		store: store,
	}
}

// do serves one request, carrying sess as the identity cookie when it is
// valid.
func (a *testApp) do(t *testing.T, method, path string, body any, sess session.Session) *httptest.ResponseRecorder {
	t.Helper()

	buf := &bytes.Buffer{}
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if sess.Valid() {
		req.AddCookie(a.cookieFor(t, sess))
	}

	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func (a *testApp) cookieFor(t *testing.T, sess session.Session) *http.Cookie {
	t.Helper()

	token, err := a.sessions.Encode(sess)
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func newTestSession(n int) session.Session {
	c := n
	return session.Session{Identity: session.Identity{
		PlayerId:    fmt.Sprintf("player%d", n),
		Name:        fmt.Sprintf("Player %d", n),
		CharacterId: &c,
	}}
}

// createRoom creates a room for host over HTTP and joins the guests.
func (a *testApp) createRoom(t *testing.T, host session.Session, guests ...session.Session) string {
	t.Helper()

	rr := a.do(t, http.MethodPost, "/api/rooms", nil, host)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp RoomResponse
	decode(t, rr, &resp)

	for _, g := range guests {
		rr := a.do(t, http.MethodPost, "/api/rooms/"+resp.Room.Id+"/join", nil, g)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	return resp.Room.Id
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
