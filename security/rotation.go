package security

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/malwarebo/reserva/models"
	"github.com/malwarebo/reserva/utils"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

// SessionStore is the durable backing for sessions. Conditional updates in
// the store serialize concurrent rotations across processes.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	AdvanceRotation(ctx context.Context, session *models.Session, newHash string, newExpiry time.Time) (bool, error)
	ConsumeGrace(ctx context.Context, id, previousHash string) (bool, error)
	Revoke(ctx context.Context, id, reason string) error
	RevokeAllForUser(ctx context.Context, userID, exceptSessionID, reason string) (int64, error)
}

// Credentials is what the authentication flow hands back to the client: the
// opaque refresh token (returned exactly once, never stored) and a
// short-lived access token for route middleware.
type Credentials struct {
	SessionID    string    `json:"session_id"`
	RefreshToken string    `json:"refresh_token"`
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RotateResult reports a successful rotation. On the one-time grace path
// Rotated is false and RefreshToken is empty: the caller keeps using the
// token it already holds.
type RotateResult struct {
	Rotated         bool      `json:"rotated"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	AccessToken     string    `json:"access_token"`
	RotationCounter int64     `json:"rotation_counter"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type RotationManager struct {
	store  SessionStore
	jwt    *JWTManager
	ttl    time.Duration
	logger *utils.Logger
}

func CreateRotationManager(store SessionStore, jwt *JWTManager, ttl time.Duration) *RotationManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RotationManager{
		store:  store,
		jwt:    jwt,
		ttl:    ttl,
		logger: utils.NewLogger("security"),
	}
}

// Create issues a new session with a fresh opaque refresh credential. Only
// the credential's hash is stored.
func (m *RotationManager) Create(ctx context.Context, userID string) (*Credentials, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		CurrentTokenHash: hashToken(token),
		RotationCounter:  0,
		LastSeenAt:       now,
		ExpiresAt:        now.Add(m.ttl),
	}

	if err := m.store.Create(ctx, session); err != nil {
		return nil, err
	}

	access, err := m.jwt.GenerateToken(session.ID, userID, accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &Credentials{
		SessionID:    session.ID,
		RefreshToken: token,
		AccessToken:  access,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// Rotate validates the presented refresh token and shifts the hash pair
// forward. The previous hash is honored exactly once per rotation cycle as a
// grace fallback for the legitimate double-refresh race; any other token is
// treated as replay and permanently revokes the session.
func (m *RotationManager) Rotate(ctx context.Context, sessionID, presentedToken string) (*RotateResult, error) {
	session, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Revoked() {
		return nil, utils.ErrSessionRevoked
	}
	if session.Expired(time.Now()) {
		return nil, utils.ErrSessionExpired
	}

	presentedHash := hashToken(presentedToken)

	if presentedHash == session.CurrentTokenHash {
		return m.rotateForward(ctx, session, presentedHash)
	}

	if session.PreviousTokenHash != nil && presentedHash == *session.PreviousTokenHash {
		return m.grace(ctx, session, presentedHash)
	}

	return nil, m.replay(ctx, session)
}

func (m *RotationManager) rotateForward(ctx context.Context, session *models.Session, presentedHash string) (*RotateResult, error) {
	newToken, err := newOpaqueToken()
	if err != nil {
		return nil, err
	}

	newExpiry := time.Now().Add(m.ttl)
	ok, err := m.store.AdvanceRotation(ctx, session, hashToken(newToken), newExpiry)
	if err != nil {
		return nil, err
	}

	if !ok {
		// A concurrent rotation won; our token just became the previous
		// hash. Fall back to the grace path against the fresh row.
		fresh, err := m.store.GetByID(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Revoked() {
			return nil, utils.ErrSessionRevoked
		}
		if fresh.PreviousTokenHash != nil && presentedHash == *fresh.PreviousTokenHash {
			return m.grace(ctx, fresh, presentedHash)
		}
		return nil, m.replay(ctx, fresh)
	}

	access, err := m.jwt.GenerateToken(session.ID, session.UserID, accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &RotateResult{
		Rotated:         true,
		RefreshToken:    newToken,
		AccessToken:     access,
		RotationCounter: session.RotationCounter + 1,
		ExpiresAt:       newExpiry,
	}, nil
}

func (m *RotationManager) grace(ctx context.Context, session *models.Session, presentedHash string) (*RotateResult, error) {
	ok, err := m.store.ConsumeGrace(ctx, session.ID, presentedHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Grace already spent in another request. A third presentation of
		// the same retired token is a theft signal.
		return nil, m.replay(ctx, session)
	}

	access, err := m.jwt.GenerateToken(session.ID, session.UserID, accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &RotateResult{
		Rotated:         false,
		AccessToken:     access,
		RotationCounter: session.RotationCounter,
		ExpiresAt:       session.ExpiresAt,
	}, nil
}

func (m *RotationManager) replay(ctx context.Context, session *models.Session) error {
	if err := m.store.Revoke(ctx, session.ID, models.RevokeReasonReplayDetected); err != nil {
		m.logger.Error(ctx, "failed to revoke session after replay", map[string]interface{}{
			"session_id": session.ID,
			"error":      err.Error(),
		})
	} else {
		m.logger.Warn(ctx, "refresh token replay detected, session revoked", map[string]interface{}{
			"session_id": session.ID,
			"user_id":    session.UserID,
		})
	}
	return utils.ErrReplayDetected
}

// Revoke terminates one session. Revocation is permanent; a new session must
// be created to continue.
func (m *RotationManager) Revoke(ctx context.Context, sessionID, reason string) error {
	return m.store.Revoke(ctx, sessionID, reason)
}

// RevokeAll implements "log out everywhere", optionally sparing the calling
// session.
func (m *RotationManager) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int64, error) {
	return m.store.RevokeAllForUser(ctx, userID, exceptSessionID, "user_logout_all")
}

func newOpaqueToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
