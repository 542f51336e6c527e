package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"lootcase-api/internal/cache"
	"lootcase-api/internal/model"
	"lootcase-api/internal/repository"
	"lootcase-api/pkg/uid"
)

// SessionResult is the outcome of a session check. Stats holds only the
// requested player fields.
type SessionResult struct {
	Valid  bool
	Error  string
	Stats  map[string]interface{}
	Player *model.PlayerStats
}

// SessionValidator binds a bearer token to a claimed user. A returned error
// means the check could not be completed; callers must treat it as invalid.
type SessionValidator interface {
	Validate(ctx context.Context, token, claimedUserID string, fields []string) (SessionResult, error)
}

// SessionStore holds the server side of sessions.
type SessionStore interface {
	Save(ctx context.Context, s *model.SessionData) error
	// Load returns cache.ErrCacheMiss for an unknown or expired session.
	Load(ctx context.Context, id string) (*model.SessionData, error)
	Delete(ctx context.Context, id string) error
}

// CacheSessionStore keeps sessions as JSON in a cache.Cache, expiring with
// the session.
type CacheSessionStore struct {
	cache cache.Cache
}

var _ SessionStore = (*CacheSessionStore)(nil)

// NewCacheSessionStore creates a session store over c.
func NewCacheSessionStore(c cache.Cache) *CacheSessionStore {
	return &CacheSessionStore{cache: c}
}

func sessionKey(id string) string { return "session:" + id }

func (s *CacheSessionStore) Save(ctx context.Context, sess *model.SessionData) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	return s.cache.Set(ctx, sessionKey(sess.ID), raw, ttl)
}

func (s *CacheSessionStore) Load(ctx context.Context, id string) (*model.SessionData, error) {
	raw, err := s.cache.Get(ctx, sessionKey(id))
	if err != nil {
		return nil, err
	}

	var sess model.SessionData
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *CacheSessionStore) Delete(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionKey(id))
}

// SessionConfig configures SessionService.
type SessionConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// SessionService issues HS256 tokens whose jti names a server-held session.
// A token is valid only while its session exists.
type SessionService struct {
	cfg     SessionConfig
	store   SessionStore
	players repository.PlayerRepository
	now     func() time.Time
}

var _ SessionValidator = (*SessionService)(nil)

// NewSessionService creates a session service.
func NewSessionService(cfg SessionConfig, store SessionStore, players repository.PlayerRepository) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &SessionService{cfg: cfg, store: store, players: players, now: time.Now}
}

// Issue creates a session for userID and returns its bearer token.
func (s *SessionService) Issue(ctx context.Context, userID, ip string) (string, *model.SessionData, error) {
	now := s.now().UTC()
	sess := &model.SessionData{
		ID:        uid.New(),
		UserID:    userID,
		IPAddress: ip,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return "", nil, fmt.Errorf("failed to store session: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sess.ID,
		Subject:   userID,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
	})

	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	log.WithFields(log.Fields{
		"component":  "session",
		"user_id":    userID,
		"session_id": sess.ID,
		"expires_at": sess.ExpiresAt,
	}).Info("Session issued")

	return signed, sess, nil
}

func (s *SessionService) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return s.cfg.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func rejected(reason string) SessionResult {
	return SessionResult{Valid: false, Error: reason}
}

// Validate checks the token signature, the server-held session and the
// player record.
func (s *SessionService) Validate(ctx context.Context, token, claimedUserID string, fields []string) (SessionResult, error) {
	if token == "" || claimedUserID == "" {
		return rejected("missing credentials"), nil
	}

	claims, err := s.parse(token)
	if err != nil {
		return rejected("invalid token"), nil
	}
	if claims.Subject != claimedUserID {
		return rejected("token does not belong to user"), nil
	}

	sess, err := s.store.Load(ctx, claims.ID)
	if errors.Is(err, cache.ErrCacheMiss) {
		return rejected("session not found"), nil
	}
	if err != nil {
		return SessionResult{}, fmt.Errorf("failed to load session: %w", err)
	}
	if sess.UserID != claimedUserID || sess.Expired(s.now()) {
		return rejected("session expired"), nil
	}

	player, err := s.players.GetPlayer(ctx, claimedUserID)
	if errors.Is(err, repository.ErrNotFound) {
		return rejected("unknown player"), nil
	}
	if err != nil {
		return SessionResult{}, fmt.Errorf("failed to load player: %w", err)
	}

	return SessionResult{Valid: true, Stats: player.Project(fields), Player: player}, nil
}

// Revoke deletes the session behind token. An unparseable token is not an
// error: there is nothing to revoke.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	return s.store.Delete(ctx, claims.ID)
}
