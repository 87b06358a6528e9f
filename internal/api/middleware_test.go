package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/go-mystery/internal/session"
	"github.com/npezzotti/go-mystery/internal/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	app := &App{log: zap.New(core)}

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(panicHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	if assert.Equal(t, 1, logs.Len()) {
		entry := logs.All()[0]
		assert.Equal(t, "panic", entry.Message)
		assert.Equal(t, "test panic", entry.ContextMap()["error"])
	}
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &App{log: testutil.TestLogger(t)}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	app.errorHandler(okHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func TestSessionMiddleware(t *testing.T) {
	app := &App{log: testutil.TestLogger(t), sessions: session.NewManager(testConfig.SigningKey)}
	other := session.NewManager([]byte("another-key"))

	validToken, err := app.sessions.Encode(newTestSession(1))
	assert.NoError(t, err)
	forgedToken, err := other.Encode(newTestSession(1))
	assert.NoError(t, err)

	tcases := []struct {
		name     string
		cookie   *http.Cookie
		wantCode int
	}{
		{name: "no cookie", wantCode: http.StatusUnauthorized},
		{name: "garbage", cookie: &http.Cookie{Name: session.CookieName, Value: "garbage"}, wantCode: http.StatusUnauthorized},
		{name: "wrong key", cookie: &http.Cookie{Name: session.CookieName, Value: forgedToken}, wantCode: http.StatusUnauthorized},
		{name: "valid", cookie: &http.Cookie{Name: session.CookieName, Value: validToken}, wantCode: http.StatusOK},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var got session.Session
			next := func(w http.ResponseWriter, r *http.Request) {
				got, _ = session.FromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}
			rr := httptest.NewRecorder()
			app.sessionMiddleware(next)(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, "player1", got.PlayerId)
				assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
			}
		})
	}
}
