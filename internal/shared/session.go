package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionManager issues bearer tokens and keeps their sessions in Redis.
// A token is only valid while its session key exists, so revocation is a
// key delete.
type SessionManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
	now    func() time.Time
}

type sessionPayload struct {
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	IssuedAt time.Time `json:"issued_at"`
}

type tokenClaims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// IssuedSession describes a freshly created session.
type IssuedSession struct {
	Token     string
	Identity  *Identity
	ExpiresAt time.Time
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		client: client,
		ttl:    ttl,
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithNow overrides the clock used for token timestamps.
func (sm *SessionManager) WithNow(now func() time.Time) *SessionManager {
	if now != nil {
		sm.now = now
	}
	return sm
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// Issue creates a session for the identity and returns its signed token.
func (sm *SessionManager) Issue(ctx context.Context, id Identity) (IssuedSession, error) {
	if id.UserID <= 0 {
		return IssuedSession{}, errors.New("session: user id required")
	}
	sid, err := uuid.NewRandom()
	if err != nil {
		return IssuedSession{}, fmt.Errorf("session: generate id: %w", err)
	}
	now := sm.now().UTC()
	expiresAt := now.Add(sm.ttl)
	id.SessionID = sid.String()

	data, err := json.Marshal(sessionPayload{
		UserID:   id.UserID,
		Role:     id.Role,
		Email:    id.Email,
		Name:     id.Name,
		IssuedAt: now,
	})
	if err != nil {
		return IssuedSession{}, err
	}
	_, err = sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(id.SessionID), data, sm.ttl)
		pipe.SAdd(ctx, userSessionsKey(id.UserID), id.SessionID)
		pipe.Expire(ctx, userSessionsKey(id.UserID), sm.ttl)
		return nil
	})
	if err != nil {
		return IssuedSession{}, fmt.Errorf("session: store: %w", err)
	}

	claims := tokenClaims{
		SessionID: id.SessionID,
		Role:      id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(sm.secret)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("session: sign token: %w", err)
	}
	return IssuedSession{Token: token, Identity: &id, ExpiresAt: expiresAt}, nil
}

// Resolve validates the token and loads the identity of its live session.
func (sm *SessionManager) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return sm.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(sm.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}

	raw, err := sm.client.Get(ctx, sessionKey(claims.SessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if strconv.FormatInt(stored.UserID, 10) != claims.Subject {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:    stored.UserID,
		SessionID: claims.SessionID,
		Role:      stored.Role,
		Email:     stored.Email,
		Name:      stored.Name,
	}, nil
}

// Revoke deletes a single session. Revoking a missing session is not an error.
func (sm *SessionManager) Revoke(ctx context.Context, id *Identity) error {
	if id == nil || id.SessionID == "" {
		return nil
	}
	_, err := sm.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id.SessionID))
		pipe.SRem(ctx, userSessionsKey(id.UserID), id.SessionID)
		return nil
	})
	return err
}

// RevokeUser deletes every session of the user and returns how many were live.
func (sm *SessionManager) RevokeUser(ctx context.Context, userID int64) (int, error) {
	ids, err := sm.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, sid := range ids {
		keys = append(keys, sessionKey(sid))
	}
	removed := 0
	if len(keys) > 0 {
		n, err := sm.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, err
		}
		removed = int(n)
	}
	if err := sm.client.Del(ctx, userSessionsKey(userID)).Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

func userSessionsKey(userID int64) string {
	return "user_sessions:" + strconv.FormatInt(userID, 10)
}
