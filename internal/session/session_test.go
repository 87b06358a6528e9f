package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestNew(t *testing.T) {
	a, err := New("Ann", intPtr(1))
	require.NoError(t, err)
	b, err := New("Bob", nil)
	require.NoError(t, err)

	assert.True(t, a.Valid())
	assert.NotEqual(t, a.PlayerId, b.PlayerId)
	assert.False(t, a.InRoom())
	assert.Equal(t, 1, *a.CharacterId)
}

func TestSession_Transitions(t *testing.T) {
	s := Session{Identity: Identity{PlayerId: "p1", Name: "Ann"}}

	in := s.EnterRoom("ABC123")
	assert.True(t, in.InRoom())
	assert.False(t, s.InRoom(), "EnterRoom must not mutate the receiver")

	left := in.Leave()
	assert.False(t, left.InRoom())
	assert.Equal(t, "p1", left.PlayerId)

	restarted := in.Restart()
	assert.False(t, restarted.Valid())
	assert.False(t, restarted.InRoom())
}

func TestFromContext(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		expected bool
	}{
		{
			name:     "no session",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "session set",
			ctx:      WithSession(context.Background(), Session{Identity: Identity{PlayerId: "p1"}}),
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s, ok := FromContext(tc.ctx)
			assert.Equal(t, tc.expected, ok)
			if ok {
				assert.Equal(t, "p1", s.PlayerId)
			}
		})
	}
}

func TestManager_RoundTrip(t *testing.T) {
	m := NewManager([]byte("secret"))
	s := Session{
		Identity: Identity{PlayerId: "p1", Name: "Ann", CharacterId: intPtr(3)},
		RoomId:   "ABC123",
	}

	rr := httptest.NewRecorder()
	require.NoError(t, m.Save(rr, s))

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])

	got, err := m.Load(req)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestManager_Load(t *testing.T) {
	m := NewManager([]byte("secret"))
	valid, err := m.Encode(Session{Identity: Identity{PlayerId: "p1"}})
	require.NoError(t, err)

	other, err := NewManager([]byte("other")).Encode(Session{Identity: Identity{PlayerId: "p1"}})
	require.NoError(t, err)

	expired := NewManager([]byte("secret"))
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	stale, err := expired.Encode(Session{Identity: Identity{PlayerId: "p1"}})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		StandardClaims: jwt.StandardClaims{Subject: "p1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tcases := []struct {
		name    string
		cookie  *http.Cookie
		wantErr bool
	}{
		{name: "valid", cookie: &http.Cookie{Name: CookieName, Value: valid}},
		{name: "missing cookie", wantErr: true},
		{name: "wrong key", cookie: &http.Cookie{Name: CookieName, Value: other}, wantErr: true},
		{name: "expired", cookie: &http.Cookie{Name: CookieName, Value: stale}, wantErr: true},
		{name: "unsigned", cookie: &http.Cookie{Name: CookieName, Value: none}, wantErr: true},
		{name: "garbage", cookie: &http.Cookie{Name: CookieName, Value: "not-a-token"}, wantErr: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != nil {
				req.AddCookie(tc.cookie)
			}

			s, err := m.Load(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "p1", s.PlayerId)
		})
	}
}

func TestManager_EncodeRequiresIdentity(t *testing.T) {
	_, err := NewManager([]byte("secret")).Encode(Session{})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManager_Clear(t *testing.T) {
	rr := httptest.NewRecorder()
	NewManager([]byte("secret")).Clear(rr)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.True(t, cookies[0].MaxAge < 0)
}
