package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionDuration is 7 days
	SessionDuration = 7 * 24 * time.Hour
	// SessionKeyPrefix is the Redis key prefix for sessions
	SessionKeyPrefix = "session:"
	// UserSessionKeyPrefix is the Redis key prefix for user->session mapping
	UserSessionKeyPrefix = "user_session:"
)

// Session identifies the signed-in member for one caller. It is handed out
// by Register and Login and passed explicitly to every authenticated
// operation. The zero value is "signed out".
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

// Authenticated reports whether s carries a token at all; it does not check
// that the token is still live.
func (s Session) Authenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// SessionRegistry issues and resolves session tokens. Creating a session for
// a user replaces any session that user already had.
type SessionRegistry interface {
	Create(ctx context.Context, userID string) (string, error)
	Resolve(ctx context.Context, token string) (userID string, ok bool, err error)
	Revoke(ctx context.Context, token string) error
}

func newSessionToken() (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(tokenBytes), nil
}

// RedisSessions keeps sessions in Redis with a sliding 7-day expiry.
type RedisSessions struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessions returns a registry over client.
func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client, ttl: SessionDuration}
}

// Create invalidates any existing session for the user (so the 7-day timer
// resets from the current login) and stores a new one.
func (r *RedisSessions) Create(ctx context.Context, userID string) (string, error) {
	if err := r.revokeUser(ctx, userID); err != nil {
		return "", err
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return "", err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, SessionKeyPrefix+sessionToken, userID, r.ttl)
		pipe.Set(ctx, UserSessionKeyPrefix+userID, sessionToken, r.ttl)
		return nil
	})
	if err != nil {
		return "", err
	}
	return sessionToken, nil
}

// Resolve returns the user behind token and extends both keys.
func (r *RedisSessions) Resolve(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}

	userID, err := r.client.Get(ctx, SessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	pipe := r.client.Pipeline()
	pipe.Expire(ctx, SessionKeyPrefix+token, r.ttl)
	pipe.Expire(ctx, UserSessionKeyPrefix+userID, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", false, err
	}
	return userID, true, nil
}

// Revoke removes a session. Unknown tokens are not an error.
func (r *RedisSessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	sessionKey := SessionKeyPrefix + token

	// Only drop the user mapping if it still points at this token.
	userID, err := r.client.Get(ctx, sessionKey).Result()
	if err == nil && userID != "" {
		current, err := r.client.Get(ctx, UserSessionKeyPrefix+userID).Result()
		if err == nil && current == token {
			r.client.Del(ctx, UserSessionKeyPrefix+userID)
		}
	}

	return r.client.Del(ctx, sessionKey).Err()
}

func (r *RedisSessions) revokeUser(ctx context.Context, userID string) error {
	userSessionKey := UserSessionKeyPrefix + userID

	sessionToken, err := r.client.Get(ctx, userSessionKey).Result()
	if err == nil && sessionToken != "" {
		r.client.Del(ctx, SessionKeyPrefix+sessionToken)
	}
	return r.client.Del(ctx, userSessionKey).Err()
}

type memorySession struct {
	userID  string
	expires time.Time
}

// MemorySessions is an in-process SessionRegistry with the same
// single-session-per-user behaviour as RedisSessions.
type MemorySessions struct {
	mu     sync.Mutex
	now    func() time.Time
	ttl    time.Duration
	tokens map[string]memorySession
	byUser map[string]string
}

// NewMemorySessions returns an empty registry. now may be nil.
func NewMemorySessions(now func() time.Time) *MemorySessions {
	if now == nil {
		now = time.Now
	}
	return &MemorySessions{
		now:    now,
		ttl:    SessionDuration,
		tokens: make(map[string]memorySession),
		byUser: make(map[string]string),
	}
}

func (m *MemorySessions) Create(_ context.Context, userID string) (string, error) {
	token, err := newSessionToken()
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.byUser[userID]; ok {
		delete(m.tokens, old)
	}
	m.tokens[token] = memorySession{userID: userID, expires: m.now().Add(m.ttl)}
	m.byUser[userID] = token
	return token, nil
}

func (m *MemorySessions) Resolve(_ context.Context, token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.tokens[token]
	if !ok {
		return "", false, nil
	}
	now := m.now()
	if !now.Before(s.expires) {
		delete(m.tokens, token)
		if m.byUser[s.userID] == token {
			delete(m.byUser, s.userID)
		}
		return "", false, nil
	}
	s.expires = now.Add(m.ttl)
	m.tokens[token] = s
	return s.userID, true, nil
}

func (m *MemorySessions) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.tokens[token]
	if !ok {
		return nil
	}
	delete(m.tokens, token)
	if m.byUser[s.userID] == token {
		delete(m.byUser, s.userID)
	}
	return nil
}
