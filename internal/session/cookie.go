package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	CookieName = "mystery_session"
	defaultTTL = 24 * time.Hour
)

var ErrNoSession = errors.New("no session")

type claims struct {
	jwt.StandardClaims
	Name        string `json:"name"`
	CharacterId *int   `json:"character_id,omitempty"`
	RoomId      string `json:"room_id,omitempty"`
}

// Manager stores sessions in a signed cookie so that they survive reloads.
type Manager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewManager(key []byte) *Manager {
	return &Manager{key: key, ttl: defaultTTL, now: time.Now}
}

func (m *Manager) Encode(s Session) (string, error) {
	if !s.Valid() {
		return "", ErrNoSession
	}

	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   s.PlayerId,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(m.ttl).Unix(),
		},
		Name:        s.Name,
		CharacterId: s.CharacterId,
		RoomId:      s.RoomId,
	})

	return token.SignedString(m.key)
}

func (m *Manager) Decode(tokenString string) (Session, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || c.Subject == "" {
		return Session{}, fmt.Errorf("invalid token")
	}

	return Session{
		Identity: Identity{
			PlayerId:    c.Subject,
			Name:        c.Name,
			CharacterId: c.CharacterId,
		},
		RoomId: c.RoomId,
	}, nil
}

// Load restores the session carried by the request cookie.
func (m *Manager) Load(r *http.Request) (Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Session{}, ErrNoSession
	}

	return m.Decode(cookie.Value)
}

func (m *Manager) Save(w http.ResponseWriter, s Session) error {
	token, err := m.Encode(s)
	if err != nil {
		return err
	}

	http.SetCookie(w, m.cookie(token, m.now().Add(m.ttl)))
	return nil
}

// Clear instructs the browser to delete the cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, m.cookie("", time.Unix(0, 0)))
}

func (m *Manager) cookie(value string, expires time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		c.MaxAge = -1
	}
	return c
}
