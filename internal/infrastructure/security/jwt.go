package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/codexdlc/gatewaykit/internal/domain"
)

// Refresh tokens always carry the fixed "refresh" audience; access tokens
// carry the configured audience (default "access"). The two families never
// validate interchangeably unless the legacy flag is set.
const refreshAudience = "refresh"

// TokenManager mints and verifies the HS256 token pair. The algorithm is
// pinned; the token header is never trusted for method selection.
type TokenManager struct {
	secret          []byte
	issuer          string
	accessAud       string
	refreshAud      string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	leeway          time.Duration
	acceptLegacyAud bool
}

type TokenManagerConfig struct {
	Secret          string
	Issuer          string
	Audience        string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	AcceptLegacyAud bool
}

func NewTokenManager(cfg TokenManagerConfig) *TokenManager {
	aud := cfg.Audience
	if aud == "" {
		aud = "access"
	}
	return &TokenManager{
		secret:          []byte(cfg.Secret),
		issuer:          cfg.Issuer,
		accessAud:       aud,
		refreshAud:      refreshAudience,
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		leeway:          10 * time.Second,
		acceptLegacyAud: cfg.AcceptLegacyAud,
	}
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

type accessClaims struct {
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	AccountID int64
	Username  string
	Scopes    []string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	AccountID int64
	JTI       uuid.UUID
	ExpiresAt time.Time
}

// MintAccessToken returns a signed access JWT for the account.
func (m *TokenManager) MintAccessToken(accountID int64, username string) (string, error) {
	now := time.Now()
	claims := accessClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.accessAud},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", domain.ErrInternal(err)
	}
	return signed, nil
}

// MintRefreshToken returns a signed refresh JWT, its JTI and its expiry. The
// caller persists SHA-256 of the token text, never the token itself.
func (m *TokenManager) MintRefreshToken(accountID int64) (string, uuid.UUID, time.Time, error) {
	now := time.Now()
	jti := uuid.New()
	expiresAt := now.Add(m.refreshTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(accountID, 10),
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.refreshAud},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        jti.String(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", uuid.Nil, time.Time{}, domain.ErrInternal(err)
	}
	return signed, jti, expiresAt, nil
}

// VerifyAccessToken checks signature, expiry, issuer and the access
// audience.
func (m *TokenManager) VerifyAccessToken(token string) (AccessClaims, error) {
	parsed, err := m.parse(token, &accessClaims{})
	if err != nil {
		return AccessClaims{}, err
	}
	claims, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, domain.ErrInvalidToken()
	}
	if !hasAudience(claims.Audience, m.accessAud) {
		return AccessClaims{}, domain.ErrInvalidToken()
	}
	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return AccessClaims{}, domain.ErrInvalidToken()
	}
	out := AccessClaims{
		AccountID: accountID,
		Username:  claims.Username,
		Audience:  m.accessAud,
	}
	if claims.Scope != "" {
		out.Scopes = splitScopes(claims.Scope)
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// VerifyRefreshToken checks signature, expiry, issuer, JTI presence and the
// refresh audience. With the legacy-audience flag enabled the access
// audience is also accepted, mirroring the permissive pre-v1 behavior.
func (m *TokenManager) VerifyRefreshToken(token string) (RefreshClaims, error) {
	parsed, err := m.parse(token, &jwt.RegisteredClaims{})
	if err != nil {
		return RefreshClaims{}, domain.ErrRefreshInvalid()
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return RefreshClaims{}, domain.ErrRefreshInvalid()
	}
	if !hasAudience(claims.Audience, m.refreshAud) {
		if !(m.acceptLegacyAud && hasAudience(claims.Audience, m.accessAud)) {
			return RefreshClaims{}, domain.ErrRefreshInvalid()
		}
	}
	if claims.ID == "" {
		return RefreshClaims{}, domain.ErrRefreshInvalid()
	}
	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return RefreshClaims{}, domain.ErrRefreshInvalid()
	}
	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return RefreshClaims{}, domain.ErrRefreshInvalid()
	}
	out := RefreshClaims{AccountID: accountID, JTI: jti}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) (*jwt.Token, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, domain.ErrInvalidToken()
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired()
		}
		return nil, domain.ErrInvalidToken()
	}
	return parsed, nil
}

// HashRefreshToken is the only refresh artifact that ever reaches storage.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

func splitScopes(scope string) []string {
	var out []string
	start := -1
	for i := 0; i <= len(scope); i++ {
		if i == len(scope) || scope[i] == ' ' {
			if start >= 0 {
				out = append(out, scope[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	return out
}
