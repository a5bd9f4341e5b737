package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes the two token kinds carried in the typ claim.
type TokenType string

const (
	// TypeAccess marks a short-lived request-authorizing token.
	TypeAccess TokenType = "access"
	// TypeRefresh marks a long-lived, revocable rotation token.
	TypeRefresh TokenType = "refresh"
)

const minSecretBytes = 32

var (
	// ErrExpired indicates the token signature is valid but the exp claim has passed.
	ErrExpired = errors.New("token expired")
	// ErrInvalid indicates a malformed token, a bad signature, or wrong iss/aud claims.
	ErrInvalid = errors.New("token invalid")
	// ErrWrongType indicates a structurally valid token presented as the wrong kind,
	// for example an access token offered for refresh.
	ErrWrongType = errors.New("token type mismatch")
)

// Config holds signing material and claim parameters for a [Manager].
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
}

// Claims is the decoded claim set of an authcore token.
type Claims struct {
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Pair is a freshly issued access/refresh token pair. TokenID is the jti
// of the refresh token; the engine keys the refresh record and any later
// blacklist entry on it.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	TokenID          string
	RefreshExpiresAt time.Time
}

// Manager signs and parses token pairs. Safe for concurrent use; the
// configuration is fixed at construction.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL shorter than access TTL")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("signing secret must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// CreatePair issues an access token and a refresh token for the subject.
// The refresh token's jti is a fresh random UUID.
func (m *Manager) CreatePair(subjectID, role string) (*Pair, error) {
	now := time.Now()

	access, err := m.sign(Claims{
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: m.registered(subjectID, "", now, now.Add(m.config.AccessTTL)),
	})
	if err != nil {
		return nil, err
	}

	tokenID := uuid.NewString()
	refreshExpiry := now.Add(m.config.RefreshTTL)
	refresh, err := m.sign(Claims{
		Role:      role,
		TokenType: TypeRefresh,
		RegisteredClaims: m.registered(subjectID, tokenID, now, refreshExpiry),
	})
	if err != nil {
		return nil, err
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenID:          tokenID,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Parse verifies the signature and registered claims and enforces the
// expected token type. It returns ErrExpired, ErrWrongType, or ErrInvalid;
// no other error values escape.
func (m *Manager) Parse(tokenStr string, expected TokenType) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalid
	}
	if claims.Subject == "" {
		return nil, ErrInvalid
	}
	if claims.TokenType != expected {
		return nil, ErrWrongType
	}
	if expected == TypeRefresh && claims.ID == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}

func (m *Manager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

func (m *Manager) registered(subjectID, tokenID string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subjectID,
		ID:        tokenID,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		Issuer:    m.config.Issuer,
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}
